package llm

import (
	"errors"
)

// Error kinds raised by model backends.

// ConnectionError means the model could not be reached or the connection
// dropped before the response completed.
type ConnectionError struct {
	err error
}

func (e *ConnectionError) Error() string {
	return "model connection failed: " + e.err.Error()
}

func (e *ConnectionError) Unwrap() error {
	return e.err
}

// NewConnectionError wraps err as a ConnectionError.
func NewConnectionError(err error) error {
	return &ConnectionError{err: err}
}

// MalformedStreamError means the model answered with data that cannot be
// interpreted as the requested structure.
type MalformedStreamError struct {
	err error
	// Raw is the text received before the failure, if any.
	Raw string
}

func (e *MalformedStreamError) Error() string {
	return "malformed model output: " + e.err.Error()
}

func (e *MalformedStreamError) Unwrap() error {
	return e.err
}

// NewMalformedStreamError wraps err as a MalformedStreamError carrying raw.
func NewMalformedStreamError(err error, raw string) error {
	return &MalformedStreamError{err: err, Raw: raw}
}

// IsConnection returns true if err is a ConnectionError.
func IsConnection(err error) bool {
	var ce *ConnectionError
	return errors.As(err, &ce)
}

// IsMalformed returns true if err is a MalformedStreamError.
func IsMalformed(err error) bool {
	var me *MalformedStreamError
	return errors.As(err, &me)
}
