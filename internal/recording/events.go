package recording

import (
	"time"

	"glossvoice/internal/domain"
)

// Event is an input to the state machine. Events that originate from
// asynchronous work carry the attempt they belong to.
type Event interface {
	isEvent()
}

type StartRequested struct{}

type AcquireSucceeded struct {
	Attempt uint64
	At      time.Time
}

type AcquireFailed struct {
	Attempt uint64
	Err     error
}

type ChunkReceived struct {
	Attempt uint64
	Data    []byte
}

type StopRequested struct{}

type DeadlineElapsed struct {
	Attempt uint64
}

type DeleteRequested struct{}

type SubmitRequested struct {
	Identity domain.IdentityContext
	At       time.Time
}

type UploadSucceeded struct {
	Attempt uint64
	URL     string
}

type UploadFailed struct {
	Attempt uint64
	Err     error
}

type PlaybackRequested struct{}

// CancelRequested closes the answer form, discarding any recording.
type CancelRequested struct{}

// ReviseRequested re-opens the answer form.
type ReviseRequested struct{}

// AnswerSaved reports that a typed answer was stored and the form can close.
type AnswerSaved struct{}

func (StartRequested) isEvent()    {}
func (AcquireSucceeded) isEvent()  {}
func (AcquireFailed) isEvent()     {}
func (ChunkReceived) isEvent()     {}
func (StopRequested) isEvent()     {}
func (DeadlineElapsed) isEvent()   {}
func (DeleteRequested) isEvent()   {}
func (SubmitRequested) isEvent()   {}
func (UploadSucceeded) isEvent()   {}
func (UploadFailed) isEvent()      {}
func (PlaybackRequested) isEvent() {}
func (CancelRequested) isEvent()   {}
func (ReviseRequested) isEvent()   {}
func (AnswerSaved) isEvent()       {}
