package catalog

import "errors"

var (
	// ErrNotFound is returned when a catalog or materials file does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument is returned for out-of-range matching parameters.
	ErrInvalidArgument = errors.New("invalid argument")
)
