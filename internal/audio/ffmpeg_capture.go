package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"glossvoice/internal/domain"
	"glossvoice/internal/logging"
	"glossvoice/internal/ports"
)

const (
	defaultChunkSize  = 4096
	startupProbe      = 250 * time.Millisecond
	interruptDeadline = 1200 * time.Millisecond
)

// FFMPEGCapture captures mono microphone PCM using ffmpeg.
type FFMPEGCapture struct {
	command string
	logger  logging.Logger
}

func NewFFMPEGCapture(command string, logger logging.Logger) *FFMPEGCapture {
	if command == "" {
		command = "ffmpeg"
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &FFMPEGCapture{command: command, logger: logger}
}

// Acquire opens the capture line. Every failure to open the device is reported
// as a domain.PermissionError.
func (c *FFMPEGCapture) Acquire(ctx context.Context, cfg ports.AudioConfig, onChunk ports.ChunkHandler) (ports.CaptureStream, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if cfg.InputFormat == "" {
		cfg.InputFormat = "pulse"
	}
	if cfg.InputDevice == "" {
		cfg.InputDevice = "default"
	}
	if cfg.ChunkSize < 256 {
		cfg.ChunkSize = defaultChunkSize
	}

	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", cfg.InputFormat,
		"-i", cfg.InputDevice,
		"-ac", strconv.Itoa(cfg.Channels),
		"-ar", strconv.Itoa(cfg.SampleRate),
		"-f", "s16le",
		"-",
	}

	cmd := exec.Command(c.command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &domain.PermissionError{Cause: fmt.Errorf("failed to create ffmpeg stdout pipe: %w", err)}
	}
	if err := cmd.Start(); err != nil {
		return nil, &domain.PermissionError{Cause: fmt.Errorf("failed to start ffmpeg: %w", err)}
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		close(waitErr)
	}()

	select {
	case err := <-waitErr:
		if err != nil {
			return nil, &domain.PermissionError{Cause: fmt.Errorf("ffmpeg exited before capture started: %w: %s", err, stringsTrimSpaceSafe(stderr.String()))}
		}
		return nil, &domain.PermissionError{Cause: errors.New("ffmpeg exited before capture started")}
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		<-waitErr
		return nil, &domain.PermissionError{Cause: ctx.Err()}
	case <-time.After(startupProbe):
	}

	stream := &ffmpegStream{
		stdout:  stdout,
		stderr:  &stderr,
		process: cmd.Process,
		waitErr: waitErr,
		onChunk: onChunk,
		logger:  c.logger,
	}
	stream.group.Go(func() error {
		return stream.readLoop(cfg.ChunkSize)
	})

	c.logger.Infof("capture started: device=%s format=%s rate=%d channels=%d",
		cfg.InputDevice, cfg.InputFormat, cfg.SampleRate, cfg.Channels)
	return stream, nil
}

type ffmpegStream struct {
	stdout io.ReadCloser
	stderr *bytes.Buffer

	process *os.Process
	waitErr <-chan error
	group   errgroup.Group
	logger  logging.Logger

	handlerMu sync.Mutex
	onChunk   ports.ChunkHandler

	releaseOnce sync.Once
}

func (s *ffmpegStream) readLoop(chunkSize int) error {
	buf := make([]byte, chunkSize)
	for {
		n, err := s.stdout.Read(buf)
		if n > 0 {
			s.deliver(append([]byte(nil), buf[:n]...))
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
				return nil
			}
			return err
		}
	}
}

// deliver holds handlerMu for the whole callback so that Release, once it has
// detached the handler, knows no callback is still running.
func (s *ffmpegStream) deliver(chunk []byte) {
	s.handlerMu.Lock()
	defer s.handlerMu.Unlock()
	if s.onChunk == nil {
		return
	}
	s.onChunk(chunk)
}

func (s *ffmpegStream) detach() {
	s.handlerMu.Lock()
	s.onChunk = nil
	s.handlerMu.Unlock()
}

// Release detaches the chunk handler and closes the capture line. Only the
// first call does any work.
func (s *ffmpegStream) Release() error {
	var releaseErr error
	s.releaseOnce.Do(func() {
		s.detach()

		if s.process != nil {
			_ = s.process.Signal(os.Interrupt)
		}

		select {
		case err, ok := <-s.waitErr:
			if ok {
				releaseErr = normalizeStopErr(err)
			}
		case <-time.After(interruptDeadline):
			if s.process != nil {
				_ = s.process.Kill()
			}
			err, ok := <-s.waitErr
			if ok {
				releaseErr = normalizeStopErr(err)
			}
		}

		if closeErr := s.stdout.Close(); closeErr != nil && !errors.Is(closeErr, os.ErrClosed) {
			if releaseErr == nil {
				releaseErr = closeErr
			}
		}
		if readErr := s.group.Wait(); readErr != nil {
			s.logger.Warnf("capture read loop ended with error: %v", readErr)
		}

		if releaseErr != nil && s.stderr != nil && s.stderr.Len() > 0 {
			releaseErr = fmt.Errorf("%w: %s", releaseErr, stringsTrimSpaceSafe(s.stderr.String()))
		}
		s.logger.Infof("capture released")
	})
	return releaseErr
}

func normalizeStopErr(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) || errors.Is(err, exec.ErrWaitDelay) {
		return nil
	}
	return err
}

func stringsTrimSpaceSafe(input string) string {
	if input == "" {
		return input
	}
	return string(bytes.TrimSpace([]byte(input)))
}
