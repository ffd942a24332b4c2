package models

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidTrackEvent = fmt.Errorf("invalid track event")
	ErrInvalidStatus     = fmt.Errorf("invalid status")

	// Transport and sink failure taxonomy
	ErrFraming           = fmt.Errorf("framing error")
	ErrTransportLost     = fmt.Errorf("transport lost")
	ErrSinkAuthFailure   = fmt.Errorf("sink authentication failure")
	ErrSinkTimeout       = fmt.Errorf("sink timeout")
	ErrSinkGeneric       = fmt.Errorf("sink error")
	ErrActivityRejected  = fmt.Errorf("activity rejected")
	ErrUnrecoverableHost = fmt.Errorf("unrecoverable host fault")
)

// FramingError reports a single well-framed message whose payload could not be decoded.
//
// The stream it came from stays usable.
type FramingError struct {
	Size int   // payload length announced by the frame header
	Err  error // underlying decode error
}

func (e *FramingError) Error() string {
	return fmt.Sprintf("framing error: %d byte message: %v", e.Size, e.Err)
}

func (e *FramingError) Unwrap() []error {
	return []error{ErrFraming, e.Err}
}

// SinkError is a failure reported by the Presence Sink.
//
// Kind is one of the sink sentinels above and selects the backoff bucket.
type SinkError struct {
	Kind    error
	Message string
}

// NewSinkError builds a [SinkError], defaulting the kind to [ErrSinkGeneric].
func NewSinkError(kind error, message string) *SinkError {
	if kind == nil {
		kind = ErrSinkGeneric
	}
	return &SinkError{Kind: kind, Message: message}
}

func (e *SinkError) Error() string {
	if e.Message == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%v: %s", e.Kind, e.Message)
}

func (e *SinkError) Unwrap() error {
	return e.Kind
}

// IsSinkFailure reports whether err belongs to the sink part of the taxonomy.
func IsSinkFailure(err error) bool {
	return errors.Is(err, ErrSinkAuthFailure) ||
		errors.Is(err, ErrSinkTimeout) ||
		errors.Is(err, ErrSinkGeneric) ||
		errors.Is(err, ErrActivityRejected)
}
