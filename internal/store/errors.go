package store

import (
	"errors"
	"fmt"
)

// ErrLiveChanged is returned by DiscardLive when the live log no longer
// starts with the snapshot being discarded, e.g. after a user clear.
var ErrLiveChanged = errors.New("live log changed since snapshot")

// IOError reports a failed read or durable write of a resource.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

func ioErr(op, path string, err error) error {
	return &IOError{Op: op, Path: path, Err: err}
}
