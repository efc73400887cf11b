package watch

import (
	"errors"
	"fmt"
)

var (
	// ErrHandleNotFound is returned by Resolve for a handle the registry does not know.
	ErrHandleNotFound = errors.New("watch handle not found")

	// ErrAlreadyWatched is returned by Register when the notifier hands back a
	// handle that already watches the same directory under another path.
	ErrAlreadyWatched = errors.New("directory already watched")

	// ErrStaleHandle marks raw events whose handle no longer resolves.
	ErrStaleHandle = errors.New("event for unregistered watch handle")

	// ErrClosed is returned by a notifier after Close.
	ErrClosed = errors.New("notifier closed")
)

// ConfigurationError reports an invalid watcher configuration. It is fatal.
type ConfigurationError struct {
	Path   string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid configuration for %q: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid configuration for %q: %s", e.Path, e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// RegistrationError reports a directory that could not be watched.
type RegistrationError struct {
	Path string
	Err  error
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("cannot watch %q: %v", e.Path, e.Err)
}

func (e *RegistrationError) Unwrap() error { return e.Err }

// RecursionLimitError reports a branch that was not descended because of the depth cap.
type RecursionLimitError struct {
	Path     string
	Depth    int
	MaxDepth int
}

func (e *RecursionLimitError) Error() string {
	return fmt.Sprintf("not watching %q: depth %d reaches limit %d", e.Path, e.Depth, e.MaxDepth)
}

// DecodeError reports a malformed raw event buffer. The whole batch is discarded.
type DecodeError struct {
	Offset int
	Len    int
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("malformed event buffer at offset %d of %d: %s", e.Offset, e.Len, e.Reason)
}

// ReadError wraps a fatal failure reading from the notification channel.
type ReadError struct {
	Err error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("reading events: %v", e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// OverflowError reports that the kernel queue overflowed and events were lost.
type OverflowError struct {
	Root string
}

func (e *OverflowError) Error() string {
	return fmt.Sprintf("event queue overflow, resynchronizing %q", e.Root)
}
