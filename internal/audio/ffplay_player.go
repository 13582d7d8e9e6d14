package audio

import (
	"bytes"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"glossvoice/internal/logging"
	"glossvoice/internal/ports"
)

// FFPlayPlayer plays PCM through an ffplay subprocess fed on stdin.
type FFPlayPlayer struct {
	command string
	logger  logging.Logger
}

func NewFFPlayPlayer(command string, logger logging.Logger) *FFPlayPlayer {
	if command == "" {
		command = "ffplay"
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &FFPlayPlayer{command: command, logger: logger}
}

func (p *FFPlayPlayer) Open(decoded ports.DecodedAudio) (ports.PlaybackHandle, error) {
	if len(decoded.PCM) == 0 {
		return nil, errors.New("nothing to play")
	}
	if decoded.Format.SampleRate <= 0 || decoded.Format.Channels <= 0 {
		return nil, fmt.Errorf("invalid playback format %+v", decoded.Format)
	}
	return &ffplayHandle{
		command: p.command,
		audio:   decoded,
		logger:  p.logger,
	}, nil
}

type ffplayHandle struct {
	command string
	audio   ports.DecodedAudio
	logger  logging.Logger

	mu     sync.Mutex
	cmd    *exec.Cmd
	done   chan struct{}
	closed bool
}

// Play always starts from the beginning. A handle that is already playing is
// left alone.
func (h *ffplayHandle) Play() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return errors.New("playback handle closed")
	}
	if h.runningLocked() {
		return nil
	}

	cmd := exec.Command(h.command,
		"-nodisp",
		"-autoexit",
		"-hide_banner",
		"-loglevel", "error",
		"-f", "s16le",
		"-ar", strconv.Itoa(h.audio.Format.SampleRate),
		"-ac", strconv.Itoa(h.audio.Format.Channels),
		"-i", "pipe:0",
	)
	cmd.Stdin = bytes.NewReader(h.audio.PCM)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffplay: %w", err)
	}

	done := make(chan struct{})
	h.cmd = cmd
	h.done = done
	go func() {
		err := normalizeStopErr(cmd.Wait())
		if err != nil {
			h.logger.Warnf("playback ended with error: %v: %s", err, stringsTrimSpaceSafe(stderr.String()))
		}
		close(done)
	}()
	return nil
}

func (h *ffplayHandle) Stop() error {
	h.mu.Lock()
	cmd, done := h.cmd, h.done
	h.cmd, h.done = nil, nil
	h.mu.Unlock()

	if cmd == nil || done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	default:
	}
	if cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
	<-done
	return nil
}

func (h *ffplayHandle) Running() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.runningLocked()
}

func (h *ffplayHandle) runningLocked() bool {
	if h.done == nil {
		return false
	}
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

func (h *ffplayHandle) Close() error {
	err := h.Stop()
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	return err
}
