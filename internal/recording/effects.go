package recording

import (
	"time"

	"glossvoice/internal/domain"
)

// Effect is a side effect requested by a transition. The host loop executes
// effects in order after the transition has been committed.
type Effect interface {
	isEffect()
}

type AcquireDevice struct {
	Attempt uint64
}

// CancelAcquire abandons a pending device request.
type CancelAcquire struct {
	Attempt uint64
}

type ReleaseDevice struct {
	Attempt uint64
}

type ArmDeadline struct {
	Attempt uint64
	After   time.Duration
}

type DisarmDeadline struct {
	Attempt uint64
}

type EmitState struct {
	Reason domain.SessionStateReason
}

// NotifyDeadline is always ordered after the EmitState of the forced stop.
type NotifyDeadline struct{}

type EmitError struct {
	Code domain.ErrorCode
	Err  error
}

type Upload struct {
	Request domain.SubmissionRequest
}

type EmitAccepted struct {
	Outcome domain.Outcome
}

type TogglePlayback struct {
	Source domain.PlaybackSource
}

type ReleasePlayback struct{}

func (AcquireDevice) isEffect()   {}
func (CancelAcquire) isEffect()   {}
func (ReleaseDevice) isEffect()   {}
func (ArmDeadline) isEffect()     {}
func (DisarmDeadline) isEffect()  {}
func (EmitState) isEffect()       {}
func (NotifyDeadline) isEffect()  {}
func (EmitError) isEffect()       {}
func (Upload) isEffect()          {}
func (EmitAccepted) isEffect()    {}
func (TogglePlayback) isEffect()  {}
func (ReleasePlayback) isEffect() {}
