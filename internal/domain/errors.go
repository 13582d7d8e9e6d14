package domain

import "fmt"

// PermissionError reports a denied or missing capture device.
type PermissionError struct {
	Cause error
}

func (e *PermissionError) Error() string {
	if e.Cause == nil {
		return "microphone access denied"
	}
	return fmt.Sprintf("microphone access denied: %v", e.Cause)
}

func (e *PermissionError) Unwrap() error { return e.Cause }

// EncodingError reports a failure to turn captured chunks into an artifact.
type EncodingError struct {
	Cause error
}

func (e *EncodingError) Error() string {
	if e.Cause == nil {
		return "recording could not be encoded"
	}
	return fmt.Sprintf("recording could not be encoded: %v", e.Cause)
}

func (e *EncodingError) Unwrap() error { return e.Cause }

// UploadError reports a failed submission. The recording is kept for a retry.
type UploadError struct {
	Cause error
}

func (e *UploadError) Error() string {
	if e.Cause == nil {
		return "recording upload failed"
	}
	return fmt.Sprintf("recording upload failed: %v", e.Cause)
}

func (e *UploadError) Unwrap() error { return e.Cause }
