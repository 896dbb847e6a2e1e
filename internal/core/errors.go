package core

import (
	"errors"
	"fmt"
)

var (
	// ErrBackendUnready is retryable: the backend is still loading.
	ErrBackendUnready = errors.New("generation backend is not ready")
	ErrWindowTooSmall = errors.New("context window too small for reserved response budget")
	ErrSessionBusy    = errors.New("generation already in flight for session")
	ErrNotFound       = errors.New("not found")
	ErrContextFull    = errors.New("context is full, clear the chat or reduce the context window")
	ErrCancelled      = errors.New("generation cancelled")
	ErrExists         = errors.New("already exists")
	ErrInvalidName    = errors.New("invalid name")
	ErrNoReply        = errors.New("no assistant reply to regenerate")
)

type PersistenceError struct {
	Op        string
	SessionID string
	Err       error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s %s: %v", e.Op, e.SessionID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ArtifactWriteError aborts a summarization before the log is truncated.
type ArtifactWriteError struct {
	Name string
	Err  error
}

func (e *ArtifactWriteError) Error() string {
	return fmt.Sprintf("failed to write summary artifact %s: %v", e.Name, e.Err)
}

func (e *ArtifactWriteError) Unwrap() error { return e.Err }

type BackendError struct {
	Err error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend failure: %v", e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }
