package data

import (
	"errors"
	"sync"
)

// Standard errors returned by every s3fs component.
var (
	// Path resolution errors
	ErrInvalidPath = errors.New("s3fs: invalid path detected")

	// Configuration errors
	ErrConfig = errors.New("s3fs: invalid configuration")

	// Open mode errors
	ErrModeConflict    = errors.New("s3fs: simultaneous reading and writing is not supported")
	ErrModeUnsupported = errors.New("s3fs: unsupported open mode")
	ErrModeExclusive   = errors.New("s3fs: exclusive open failed, file already exists")

	// File operation errors
	ErrNotExist          = errors.New("s3fs: file does not exist")
	ErrExist             = errors.New("s3fs: file already exists")
	ErrIsDirectory       = errors.New("s3fs: is a directory")
	ErrNotDirectory      = errors.New("s3fs: not a directory")
	ErrPermission        = errors.New("s3fs: permission denied")
	ErrDirectoryNotEmpty = errors.New("s3fs: directory not empty")

	// Remote store errors
	ErrUploadFailed  = errors.New("s3fs: upload failed")
	ErrConsistency   = errors.New("s3fs: object not visible after upload")
	ErrCacheDiverged = errors.New("s3fs: remote store changed but metadata cache was not updated")

	// I/O errors
	ErrClosed    = errors.New("s3fs: file already closed")
	ErrBusy      = errors.New("s3fs: file is busy")
	ErrInvalid   = errors.New("s3fs: invalid argument")
	ErrSeekLimit = errors.New("s3fs: seek beyond buffer limit")
)

type Errors struct {
	mu     sync.RWMutex
	errors []error
}

func (e *Errors) Add(err error) {
	if err == nil {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.errors = append(e.errors, err)
}

func (e *Errors) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.errors = make([]error, 0)
}

func (e *Errors) Errors() error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if len(e.errors) == 0 {
		return nil
	}

	return errors.Join(e.errors...)
}
