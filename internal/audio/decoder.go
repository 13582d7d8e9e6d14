package audio

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/tosone/minimp3"

	"glossvoice/internal/domain"
	"glossvoice/internal/ports"
)

// ErrUnsupportedAudio is returned for payloads that are neither WAV nor MP3.
var ErrUnsupportedAudio = errors.New("unsupported audio container")

// Decoder turns recorded or downloaded audio into 16-bit PCM for playback.
type Decoder struct{}

func NewDecoder() *Decoder {
	return &Decoder{}
}

func (d *Decoder) Decode(data []byte) (ports.DecodedAudio, error) {
	switch {
	case len(data) == 0:
		return ports.DecodedAudio{}, errors.New("audio payload is empty")
	case looksLikeWAV(data):
		format, pcm, err := decodeWAV(data)
		if err != nil {
			return ports.DecodedAudio{}, err
		}
		return ports.DecodedAudio{Format: format, PCM: pcm}, nil
	case looksLikeMP3(data):
		return decodeMP3(data)
	default:
		return ports.DecodedAudio{}, ErrUnsupportedAudio
	}
}

func decodeMP3(data []byte) (ports.DecodedAudio, error) {
	dec, pcm, err := minimp3.DecodeFull(data)
	if err != nil {
		return ports.DecodedAudio{}, fmt.Errorf("decode mp3: %w", err)
	}
	if dec == nil || dec.SampleRate <= 0 || dec.Channels <= 0 || len(pcm) == 0 {
		return ports.DecodedAudio{}, errors.New("decode mp3: stream has no frames")
	}
	return ports.DecodedAudio{
		Format: domain.AudioFormat{SampleRate: dec.SampleRate, Channels: dec.Channels, BitsPerSample: 16},
		PCM:    pcm,
	}, nil
}

func looksLikeWAV(data []byte) bool {
	return len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE"))
}

func looksLikeMP3(data []byte) bool {
	if len(data) >= 3 && bytes.Equal(data[0:3], []byte("ID3")) {
		return true
	}
	// MPEG frame sync: eleven set bits.
	return len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0
}
