package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidRequest     = errors.New("invalid request")
	ErrBackendUnavailable = errors.New("backend unavailable")
	ErrBackendRejected    = errors.New("generation failed")
	ErrResourceResolution = errors.New("reference could not be resolved")
	ErrUnsupported        = errors.New("unsupported operation")
)
