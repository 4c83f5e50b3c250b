package apperrors

import "errors"

var (
	ErrNotFound               = errors.New("not found")
	ErrInvalidLevel           = errors.New("invalid metric level")
	ErrInvalidDate            = errors.New("invalid date")
	ErrInvalidArgument        = errors.New("invalid argument")
	ErrLockTimeout            = errors.New("timed out waiting for metric lock")
	ErrUnsupportedEventSource = errors.New("unsupported event source type")
)
