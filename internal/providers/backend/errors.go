package backend

import (
	"errors"
	"fmt"

	"cinemastudio/internal/domain"
)

// Error is a classified backend failure. Kind is one of the domain backend
// sentinels and is matched through errors.Is.
type Error struct {
	Backend string
	Kind    error
	Detail  string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Backend + ": " + e.Kind.Error()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Unavailable classifies a transport level failure: the backend could not be
// reached or did not answer in time.
func Unavailable(name string, err error, format string, args ...any) error {
	return &Error{Backend: name, Kind: domain.ErrBackendUnavailable, Detail: fmt.Sprintf(format, args...), Err: err}
}

// Rejected classifies an application level failure: the backend answered
// with an error status, an error payload or an empty result.
func Rejected(name string, format string, args ...any) error {
	return &Error{Backend: name, Kind: domain.ErrBackendRejected, Detail: fmt.Sprintf(format, args...)}
}

// BackendName extracts the adapter name from a classified error.
func BackendName(err error) string {
	var be *Error
	if errors.As(err, &be) {
		return be.Backend
	}
	return ""
}
