package verifier

import (
	"errors"
	"fmt"
)

// FailureKind classifies why an upload failed. The classification is for logs
// and callers that want it; the user-facing message does not depend on it.
type FailureKind string

const (
	FailureRequest   FailureKind = "request"
	FailureTransport FailureKind = "transport"
	FailureTimeout   FailureKind = "timeout"
	FailureStatus    FailureKind = "status"
	FailureMalformed FailureKind = "malformed_response"
)

// ErrNoFile is returned when an UploadRequest carries no file.
var ErrNoFile = errors.New("upload request has no file")

// Error describes a failed upload round trip.
type Error struct {
	Kind       FailureKind
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("upload %s (status %d): %v", e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("upload %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the FailureKind of err, or "" if err is not an upload Error.
func KindOf(err error) FailureKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
