//go:build !linux

package watch

import (
	"errors"
	"runtime"
)

// NewInotifyNotifier is only available on Linux; use the fsnotify backend elsewhere.
func NewInotifyNotifier() (Notifier, error) {
	return nil, errors.New("inotify backend is not supported on " + runtime.GOOS)
}
