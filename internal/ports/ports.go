package ports

import (
	"context"
	"time"

	"glossvoice/internal/domain"
)

// AudioConfig describes how the microphone should be captured.
type AudioConfig struct {
	SampleRate  int
	Channels    int
	InputFormat string
	InputDevice string
	ChunkSize   int
}

// ChunkHandler receives raw capture bytes in arrival order.
type ChunkHandler func(chunk []byte)

// CaptureStream is a live device grant. Release is idempotent.
type CaptureStream interface {
	Release() error
}

// CaptureDevice opens microphone capture streams.
type CaptureDevice interface {
	Acquire(ctx context.Context, cfg AudioConfig, onChunk ChunkHandler) (CaptureStream, error)
}

// Encoder turns the ordered captured chunks into a self-contained artifact.
type Encoder interface {
	Encode(chunks [][]byte) (domain.Artifact, error)
}

// StoreOptions carries per-object upload metadata.
type StoreOptions struct {
	Directory    string
	Filename     string
	ContentType  string
	CacheControl string
	Metadata     map[string]string
	Token        string
}

// ObjectStore persists binary objects and returns an addressable URL.
type ObjectStore interface {
	Store(ctx context.Context, data []byte, opts StoreOptions) (string, error)
}

// Fetcher downloads a previously stored object.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Submitter uploads one finished recording.
type Submitter interface {
	Submit(ctx context.Context, req domain.SubmissionRequest) (string, error)
}

// DecodedAudio is raw PCM ready for an output device.
type DecodedAudio struct {
	Format domain.AudioFormat
	PCM    []byte
}

// Decoder turns container bytes into PCM.
type Decoder interface {
	Decode(data []byte) (DecodedAudio, error)
}

// PlaybackHandle plays one decoded source.
type PlaybackHandle interface {
	Play() error
	Stop() error
	Running() bool
	Close() error
}

// Player opens playback handles on the output device.
type Player interface {
	Open(audio DecodedAudio) (PlaybackHandle, error)
}

// Playback toggles playback of the current source.
type Playback interface {
	Toggle(ctx context.Context, src domain.PlaybackSource) error
	Release() error
}

// IdentityResolver resolves the learner identity for uploads.
type IdentityResolver interface {
	Resolve(ctx context.Context) (domain.StudentIdentity, error)
}

// Translator looks up localized UI strings.
type Translator interface {
	Translate(key string, fallback string, vars map[string]string) string
}

// AnswerStore keeps accepted answers per glossary term.
type AnswerStore interface {
	Append(ctx context.Context, term string, value string) (domain.Answer, error)
	List(ctx context.Context, term string) ([]domain.Answer, error)
}

// Timer is a cancellable pending callback.
type Timer interface {
	Stop() bool
}

// Clock abstracts time for the session loop.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// EventSink emits backend state/events to the UI.
type EventSink interface {
	SessionStateChanged(status domain.Status, reason domain.SessionStateReason)
	DeadlineReached()
	RecordingAccepted(outcome domain.Outcome)
	SessionError(code domain.ErrorCode, detail string)
}
