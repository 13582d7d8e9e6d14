package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"glossvoice/internal/domain"
	"glossvoice/internal/logging"
	"glossvoice/internal/ports"
)

var ErrNoPlaybackSource = errors.New("no playback source")

// PlaybackController keeps at most one playback handle open.
type PlaybackController struct {
	fetcher ports.Fetcher
	decoder ports.Decoder
	player  ports.Player
	logger  logging.Logger

	mu     sync.Mutex
	key    string
	handle ports.PlaybackHandle
	// generation advances on every Release; a load that started before the
	// bump must not install its handle.
	generation uint64
}

func NewPlaybackController(fetcher ports.Fetcher, decoder ports.Decoder, player ports.Player, logger logging.Logger) *PlaybackController {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &PlaybackController{fetcher: fetcher, decoder: decoder, player: player, logger: logger}
}

// Toggle stops the source if it is playing and otherwise plays it from the
// beginning. A different source replaces the current handle. Load failures
// leave the current handle in place.
func (p *PlaybackController) Toggle(ctx context.Context, src domain.PlaybackSource) error {
	if src.Artifact == nil && src.URL == "" {
		return ErrNoPlaybackSource
	}
	key := src.Key()

	p.mu.Lock()
	if p.handle != nil && p.key == key {
		handle := p.handle
		p.mu.Unlock()
		if handle.Running() {
			return handle.Stop()
		}
		return handle.Play()
	}
	generation := p.generation
	p.mu.Unlock()

	handle, err := p.open(ctx, src)
	if err != nil {
		return err
	}

	p.mu.Lock()
	if p.generation != generation {
		p.mu.Unlock()
		p.logger.Debugf("playback released while loading %s; dropping handle", key)
		return handle.Close()
	}
	previous := p.handle
	p.handle, p.key = handle, key
	p.mu.Unlock()

	if previous != nil {
		if err := previous.Close(); err != nil {
			p.logger.Warnf("failed to close previous playback: %v", err)
		}
	}
	return handle.Play()
}

// Release closes the current handle, if any.
func (p *PlaybackController) Release() error {
	p.mu.Lock()
	handle := p.handle
	p.handle, p.key = nil, ""
	p.generation++
	p.mu.Unlock()

	if handle == nil {
		return nil
	}
	return handle.Close()
}

func (p *PlaybackController) open(ctx context.Context, src domain.PlaybackSource) (ports.PlaybackHandle, error) {
	var data []byte
	if src.Artifact != nil {
		data = src.Artifact.Encoded()
	} else {
		if p.fetcher == nil {
			return nil, errors.New("remote playback unavailable")
		}
		fetched, err := p.fetcher.Fetch(ctx, src.URL)
		if err != nil {
			return nil, fmt.Errorf("fetch audio: %w", err)
		}
		data = fetched
	}

	decoded, err := p.decoder.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode audio: %w", err)
	}
	handle, err := p.player.Open(decoded)
	if err != nil {
		return nil, fmt.Errorf("open playback: %w", err)
	}
	return handle, nil
}
