package domain

// RecordingState models the spoken answer lifecycle.
type RecordingState string

const (
	RecordingStateNotRecording    RecordingState = "not_recording"
	RecordingStateRecording       RecordingState = "recording"
	RecordingStateAwaitingSubmit  RecordingState = "awaiting_submit"
	RecordingStateSavingRecording RecordingState = "saving_recording"
)

// SessionStateReason provides a structured reason for state transitions.
type SessionStateReason string

const (
	SessionReasonIdle                SessionStateReason = "idle"
	SessionReasonAwaitingPermission  SessionStateReason = "awaiting_permission"
	SessionReasonRecordingStarted    SessionStateReason = "recording_started"
	SessionReasonRecordingStopped    SessionStateReason = "recording_stopped"
	SessionReasonTimeLimitReached    SessionStateReason = "time_limit_reached"
	SessionReasonRecordingDiscarded  SessionStateReason = "recording_discarded"
	SessionReasonRecordingAbandoned  SessionStateReason = "recording_abandoned"
	SessionReasonSavingRecording     SessionStateReason = "saving_recording"
	SessionReasonRecordingSaved      SessionStateReason = "recording_saved"
	SessionReasonUploadFailed        SessionStateReason = "upload_failed"
	SessionReasonPermissionDenied    SessionStateReason = "permission_denied"
	SessionReasonEncodingFailed      SessionStateReason = "encoding_failed"
	SessionReasonCancelled           SessionStateReason = "cancelled"
	SessionReasonAnswerSaved         SessionStateReason = "answer_saved"
)

// ErrorCode identifies errors surfaced to the UI.
type ErrorCode string

const (
	ErrorCodeStartup    ErrorCode = "startup"
	ErrorCodePermission ErrorCode = "permission"
	ErrorCodeEncoding   ErrorCode = "encoding"
	ErrorCodeUpload     ErrorCode = "upload"
	ErrorCodePlayback   ErrorCode = "playback"
	ErrorCodeAudioStop  ErrorCode = "audio_stop"
	ErrorCodeStorage    ErrorCode = "storage"
	ErrorCodeAnswers    ErrorCode = "answers"
)

// StudentIdentity scopes and credentials uploads of student-linked recordings.
type StudentIdentity struct {
	Source    string `json:"source"`
	ContextID string `json:"contextId"`
	UserID    string `json:"userId"`
	Token     string `json:"-"`
}

// IdentityContext is passed along with every submit.
type IdentityContext struct {
	Student  *StudentIdentity
	DemoMode bool
}

// Status summarizes the current runtime status for the UI.
type Status struct {
	State           RecordingState `json:"state"`
	Active          bool           `json:"active"`
	StartedAtMs     int64          `json:"startedAtMs,omitempty"`
	DeadlineMs      int64          `json:"deadlineMs"`
	QuestionVisible bool           `json:"questionVisible"`
	HasRecording    bool           `json:"hasRecording"`
	Message         string         `json:"message,omitempty"`
}

// Outcome is emitted once an uploaded recording has been accepted.
type Outcome struct {
	URL      string `json:"url"`
	MIMEType string `json:"mimeType"`
}
