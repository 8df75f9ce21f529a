package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound             = errors.New("resource not found")
	ErrMalformedInput       = errors.New("malformed input")
	ErrUnsupportedMediaType = errors.New("unsupported media type")
	ErrPayloadTooLarge      = errors.New("document exceeds maximum allowed size")
	ErrNoBackends           = errors.New("no recognition backends configured")
	ErrUnknownBackend       = errors.New("unknown recognition backend")
	ErrDownloadFailed       = errors.New("document download from storage failed")
)

// RecognitionError is a backend failure tagged with its kind.
type RecognitionError struct {
	Kind    ErrorKind
	Backend string
	Err     error
}

// NewRecognitionError builds a tagged recognition error.
func NewRecognitionError(kind ErrorKind, backend string, err error) *RecognitionError {
	return &RecognitionError{Kind: kind, Backend: backend, Err: err}
}

func (e *RecognitionError) Error() string {
	if e.Backend == "" {
		return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s error: %v", e.Backend, e.Kind, e.Err)
}

func (e *RecognitionError) Unwrap() error {
	return e.Err
}

// KindOf returns the error kind carried by err, or "" if err is not a
// RecognitionError.
func KindOf(err error) ErrorKind {
	var re *RecognitionError
	if errors.As(err, &re) {
		return re.Kind
	}
	return ""
}
