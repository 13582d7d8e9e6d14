// Package recording holds the spoken answer state machine. It performs no I/O:
// every transition returns the next session value plus the effects the host
// loop must execute.
package recording

import (
	"errors"
	"fmt"
	"time"

	"glossvoice/internal/domain"
	"glossvoice/internal/ports"
)

// DefaultDeadline is the maximum time a capture session may stay in Recording.
const DefaultDeadline = 60 * time.Second

var (
	ErrInvalidTransition = errors.New("invalid recording transition")
	ErrEmptyRecording    = errors.New("recording contains no audio")
)

// Session is the recording aggregate.
type Session struct {
	State           domain.RecordingState
	Attempt         uint64
	Granted         bool
	StartedAt       time.Time
	Chunks          [][]byte
	Artifact        *domain.Artifact
	QuestionVisible bool
}

// NewSession returns an idle session.
func NewSession(questionVisible bool) Session {
	return Session{State: domain.RecordingStateNotRecording, QuestionVisible: questionVisible}
}

// Status projects the session for the UI.
func (s Session) Status(deadline time.Duration) domain.Status {
	status := domain.Status{
		State:           s.State,
		Active:          s.State != domain.RecordingStateNotRecording,
		DeadlineMs:      deadline.Milliseconds(),
		QuestionVisible: s.QuestionVisible,
		HasRecording:    s.Artifact != nil,
	}
	if !s.StartedAt.IsZero() {
		status.StartedAtMs = s.StartedAt.UnixMilli()
	}
	return status
}

// Machine computes transitions.
type Machine struct {
	Encoder  ports.Encoder
	Deadline time.Duration
}

func NewMachine(encoder ports.Encoder, deadline time.Duration) Machine {
	if deadline <= 0 {
		deadline = DefaultDeadline
	}
	return Machine{Encoder: encoder, Deadline: deadline}
}

// Transition applies ev to s. Commands that are not valid in the current state
// return ErrInvalidTransition and leave s unchanged. Stale asynchronous events
// are dropped without error.
func (m Machine) Transition(s Session, ev Event) (Session, []Effect, error) {
	switch e := ev.(type) {
	case StartRequested:
		return m.start(s)
	case AcquireSucceeded:
		return m.granted(s, e)
	case AcquireFailed:
		return m.denied(s, e)
	case ChunkReceived:
		if s.State != domain.RecordingStateRecording || !s.Granted || e.Attempt != s.Attempt {
			return s, nil, nil
		}
		if len(e.Data) == 0 {
			return s, nil, nil
		}
		s.Chunks = append(s.Chunks, e.Data)
		return s, nil, nil
	case StopRequested:
		if s.State != domain.RecordingStateRecording {
			return s, nil, nil
		}
		if !s.Granted {
			next := reset(s)
			return next, []Effect{
				CancelAcquire{Attempt: s.Attempt},
				EmitState{Reason: domain.SessionReasonRecordingAbandoned},
			}, nil
		}
		return m.stop(s, false)
	case DeadlineElapsed:
		if s.State != domain.RecordingStateRecording || !s.Granted || e.Attempt != s.Attempt {
			return s, nil, nil
		}
		return m.stop(s, true)
	case DeleteRequested:
		if s.State != domain.RecordingStateAwaitingSubmit {
			return s, nil, invalid(s.State, "delete")
		}
		return reset(s), []Effect{
			ReleasePlayback{},
			EmitState{Reason: domain.SessionReasonRecordingDiscarded},
		}, nil
	case SubmitRequested:
		if s.State != domain.RecordingStateAwaitingSubmit || s.Artifact == nil {
			return s, nil, invalid(s.State, "submit")
		}
		req := domain.SubmissionRequest{
			Attempt:     s.Attempt,
			Artifact:    *s.Artifact,
			Identity:    e.Identity,
			RequestedAt: e.At,
		}
		s.State = domain.RecordingStateSavingRecording
		return s, []Effect{
			EmitState{Reason: domain.SessionReasonSavingRecording},
			Upload{Request: req},
		}, nil
	case UploadSucceeded:
		if s.State != domain.RecordingStateSavingRecording || e.Attempt != s.Attempt {
			return s, nil, nil
		}
		outcome := domain.Outcome{URL: e.URL, MIMEType: s.Artifact.MIMEType}
		next := reset(s)
		next.QuestionVisible = false
		return next, []Effect{
			ReleasePlayback{},
			EmitState{Reason: domain.SessionReasonRecordingSaved},
			EmitAccepted{Outcome: outcome},
		}, nil
	case UploadFailed:
		if s.State != domain.RecordingStateSavingRecording || e.Attempt != s.Attempt {
			return s, nil, nil
		}
		s.State = domain.RecordingStateAwaitingSubmit
		s.QuestionVisible = true
		return s, []Effect{
			EmitState{Reason: domain.SessionReasonUploadFailed},
			EmitError{Code: domain.ErrorCodeUpload, Err: asUploadError(e.Err)},
		}, nil
	case PlaybackRequested:
		if s.Artifact == nil {
			return s, nil, invalid(s.State, "play")
		}
		artifact := *s.Artifact
		return s, []Effect{TogglePlayback{Source: domain.PlaybackSource{Artifact: &artifact}}}, nil
	case CancelRequested:
		return m.cancel(s)
	case ReviseRequested:
		s.QuestionVisible = true
		return s, []Effect{EmitState{Reason: domain.SessionReasonIdle}}, nil
	case AnswerSaved:
		if s.State != domain.RecordingStateNotRecording {
			return s, nil, invalid(s.State, "save a typed answer")
		}
		s.QuestionVisible = false
		return s, []Effect{
			ReleasePlayback{},
			EmitState{Reason: domain.SessionReasonAnswerSaved},
		}, nil
	default:
		return s, nil, fmt.Errorf("%w: unknown event %T", ErrInvalidTransition, ev)
	}
}

func (m Machine) start(s Session) (Session, []Effect, error) {
	if s.State != domain.RecordingStateNotRecording {
		return s, nil, invalid(s.State, "start")
	}
	next := reset(s)
	next.State = domain.RecordingStateRecording
	next.Attempt = s.Attempt + 1
	return next, []Effect{
		ReleasePlayback{},
		AcquireDevice{Attempt: next.Attempt},
		EmitState{Reason: domain.SessionReasonAwaitingPermission},
	}, nil
}

func (m Machine) granted(s Session, e AcquireSucceeded) (Session, []Effect, error) {
	if s.State != domain.RecordingStateRecording || s.Granted || e.Attempt != s.Attempt {
		// The grant outlived its attempt; free the line right away.
		return s, []Effect{ReleaseDevice{Attempt: e.Attempt}}, nil
	}
	s.Granted = true
	s.StartedAt = e.At
	return s, []Effect{
		ArmDeadline{Attempt: s.Attempt, After: m.Deadline},
		EmitState{Reason: domain.SessionReasonRecordingStarted},
	}, nil
}

func (m Machine) denied(s Session, e AcquireFailed) (Session, []Effect, error) {
	if s.State != domain.RecordingStateRecording || s.Granted || e.Attempt != s.Attempt {
		return s, nil, nil
	}
	var permErr *domain.PermissionError
	if !errors.As(e.Err, &permErr) {
		permErr = &domain.PermissionError{Cause: e.Err}
	}
	return reset(s), []Effect{
		CancelAcquire{Attempt: s.Attempt},
		EmitState{Reason: domain.SessionReasonPermissionDenied},
		EmitError{Code: domain.ErrorCodePermission, Err: permErr},
	}, nil
}

func (m Machine) stop(s Session, deadline bool) (Session, []Effect, error) {
	effects := []Effect{
		DisarmDeadline{Attempt: s.Attempt},
		ReleaseDevice{Attempt: s.Attempt},
	}

	artifact, err := m.encode(s.Chunks)
	if err != nil {
		return reset(s), append(effects,
			EmitState{Reason: domain.SessionReasonEncodingFailed},
			EmitError{Code: domain.ErrorCodeEncoding, Err: err},
		), nil
	}
	artifact.ID = fmt.Sprintf("recording-%d", s.Attempt)

	s.State = domain.RecordingStateAwaitingSubmit
	s.Granted = false
	s.StartedAt = time.Time{}
	s.Artifact = &artifact

	reason := domain.SessionReasonRecordingStopped
	if deadline {
		reason = domain.SessionReasonTimeLimitReached
	}
	effects = append(effects, EmitState{Reason: reason})
	if deadline {
		effects = append(effects, NotifyDeadline{})
	}
	return s, effects, nil
}

func (m Machine) encode(chunks [][]byte) (domain.Artifact, error) {
	total := 0
	for _, chunk := range chunks {
		total += len(chunk)
	}
	if total == 0 {
		return domain.Artifact{}, &domain.EncodingError{Cause: ErrEmptyRecording}
	}
	if m.Encoder == nil {
		return domain.Artifact{}, &domain.EncodingError{Cause: errors.New("no encoder configured")}
	}
	artifact, err := m.Encoder.Encode(chunks)
	if err != nil {
		var encErr *domain.EncodingError
		if errors.As(err, &encErr) {
			return domain.Artifact{}, err
		}
		return domain.Artifact{}, &domain.EncodingError{Cause: err}
	}
	return artifact, nil
}

func (m Machine) cancel(s Session) (Session, []Effect, error) {
	var effects []Effect
	switch s.State {
	case domain.RecordingStateSavingRecording:
		return s, nil, invalid(s.State, "cancel")
	case domain.RecordingStateRecording:
		if s.Granted {
			effects = append(effects, DisarmDeadline{Attempt: s.Attempt}, ReleaseDevice{Attempt: s.Attempt})
		} else {
			effects = append(effects, CancelAcquire{Attempt: s.Attempt})
		}
	}
	next := reset(s)
	next.QuestionVisible = false
	effects = append(effects, ReleasePlayback{}, EmitState{Reason: domain.SessionReasonCancelled})
	return next, effects, nil
}

func reset(s Session) Session {
	return Session{
		State:           domain.RecordingStateNotRecording,
		Attempt:         s.Attempt,
		QuestionVisible: s.QuestionVisible,
	}
}

func invalid(state domain.RecordingState, command string) error {
	return fmt.Errorf("%w: cannot %s while %s", ErrInvalidTransition, command, state)
}

func asUploadError(err error) error {
	var uploadErr *domain.UploadError
	if errors.As(err, &uploadErr) {
		return err
	}
	return &domain.UploadError{Cause: err}
}
