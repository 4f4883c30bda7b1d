package domain

import (
	"errors"
	"fmt"
)

var (
	ErrProfileResolution = errors.New("profile resolution failed")
	ErrNoIdentity        = errors.New("no authenticated identity")
	ErrProfileNotFound   = errors.New("user profile not found")
	ErrNewsItemNotFound  = errors.New("news item not found")
	ErrInvalidRating     = errors.New("rating must be within [0,1]")
)

// RemoteWriteError marks a failed write against the backend.
type RemoteWriteError struct {
	Op  string
	Err error
}

func (e *RemoteWriteError) Error() string {
	return fmt.Sprintf("remote %s: %v", e.Op, e.Err)
}

func (e *RemoteWriteError) Unwrap() error { return e.Err }

// StorageError marks a failure of the local persistence layer.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("local storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// IsStorageError reports whether err originates from local storage.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
