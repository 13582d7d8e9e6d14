package domain

import (
	"encoding/base64"
	"strings"
	"time"
)

// AudioFormat describes the PCM layout of an artifact payload.
type AudioFormat struct {
	SampleRate    int `json:"sampleRate"`
	Channels      int `json:"channels"`
	BitsPerSample int `json:"bitsPerSample"`
}

// BytesPerSecond returns the PCM byte rate of the format.
func (f AudioFormat) BytesPerSecond() int {
	return f.SampleRate * f.Channels * (f.BitsPerSample / 8)
}

// Artifact is a self-contained encoded recording.
//
// Payload is the ordered concatenation of every captured chunk. Container holds
// the bytes handed to storage and playback; its layout is declared by MIMEType.
type Artifact struct {
	ID        string
	MIMEType  string
	Format    AudioFormat
	Payload   []byte
	Container []byte
}

// Encoded returns the transportable container bytes.
func (a Artifact) Encoded() []byte {
	return a.Container
}

// Duration estimates the recorded length from the payload size.
func (a Artifact) Duration() time.Duration {
	rate := a.Format.BytesPerSecond()
	if rate <= 0 {
		return 0
	}
	return time.Duration(len(a.Payload)) * time.Second / time.Duration(rate)
}

// DataURL returns the base64 data URL form of the container.
func (a Artifact) DataURL() string {
	return "data:" + a.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(a.Container)
}

// Extension returns a file extension matching the MIME type.
func (a Artifact) Extension() string {
	mime := strings.ToLower(a.MIMEType)
	switch {
	case strings.Contains(mime, "wav"):
		return "wav"
	case strings.Contains(mime, "mpeg"), strings.Contains(mime, "mp3"):
		return "mp3"
	case strings.Contains(mime, "ogg"):
		return "ogg"
	case strings.Contains(mime, "webm"):
		return "webm"
	default:
		return "bin"
	}
}

// SubmissionRequest is built once per submit and never mutated.
type SubmissionRequest struct {
	Attempt     uint64
	Artifact    Artifact
	Identity    IdentityContext
	RequestedAt time.Time
}

// PlaybackSource is either a local artifact or a remote URL.
type PlaybackSource struct {
	Artifact *Artifact
	URL      string
}

// Key identifies the source so repeated toggles hit the same handle.
func (s PlaybackSource) Key() string {
	if s.Artifact != nil {
		return "artifact:" + s.Artifact.ID
	}
	return "url:" + s.URL
}
