package watch

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// WatchedDirectory is one registry entry.
type WatchedDirectory struct {
	Handle Handle `json:"handle" yaml:"handle"`
	Path   string `json:"path" yaml:"path"`
	// Depth is relative to the watch root, which has depth 0.
	Depth int `json:"depth" yaml:"depth"`
}

// Registry maps watch handles to absolute directory paths and back. It is
// owned by a single goroutine and does no locking.
type Registry struct {
	notifier Notifier
	fs       FileSystem
	logger   *zap.Logger

	byHandle map[Handle]WatchedDirectory
	byPath   map[string]Handle
}

// NewRegistry returns an empty registry installing watches through n.
func NewRegistry(n Notifier, fs FileSystem, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		notifier: n,
		fs:       fs,
		logger:   logger,
		byHandle: make(map[Handle]WatchedDirectory),
		byPath:   make(map[string]Handle),
	}
}

// Register watches the directory at path. On failure the registry is not
// modified and the error is a *RegistrationError. If the notifier returns a
// handle that already watches the same directory under a different path,
// the original entry is kept and ErrAlreadyWatched is returned with it.
func (r *Registry) Register(path string, depth int) (Handle, error) {
	path = filepath.Clean(path)
	if h, ok := r.byPath[path]; ok {
		return h, nil
	}

	h, err := r.notifier.AddWatch(path, WatchMask)
	if err != nil {
		return NoHandle, &RegistrationError{Path: path, Err: err}
	}

	if prev, ok := r.byHandle[h]; ok && prev.Path != path {
		if r.sameDirectory(prev.Path, path) {
			return h, ErrAlreadyWatched
		}
		// The kernel reused a handle whose release we never saw.
		r.logger.Debug("replacing stale registry entry",
			zap.Int32("handle", int32(h)),
			zap.String("stale", prev.Path),
			zap.String("path", path))
		delete(r.byPath, prev.Path)
	}

	r.byHandle[h] = WatchedDirectory{Handle: h, Path: path, Depth: depth}
	r.byPath[path] = h
	metricWatches.Set(float64(len(r.byHandle)))
	return h, nil
}

func (r *Registry) sameDirectory(a, b string) bool {
	ai, err := r.fs.Stat(a, true)
	if err != nil {
		return false
	}
	bi, err := r.fs.Stat(b, true)
	if err != nil {
		return false
	}
	return os.SameFile(ai, bi)
}

// Unregister removes h and releases its kernel watch. Unknown handles are ignored.
func (r *Registry) Unregister(h Handle) {
	if _, ok := r.byHandle[h]; !ok {
		return
	}
	if err := r.notifier.RemoveWatch(h); err != nil {
		r.logger.Debug("removing watch", zap.Int32("handle", int32(h)), zap.Error(err))
	}
	r.Drop(h)
}

// Drop forgets h without touching the kernel watch, for handles the kernel
// has already released.
func (r *Registry) Drop(h Handle) {
	wd, ok := r.byHandle[h]
	if !ok {
		return
	}
	delete(r.byHandle, h)
	if r.byPath[wd.Path] == h {
		delete(r.byPath, wd.Path)
	}
	metricWatches.Set(float64(len(r.byHandle)))
}

// Resolve returns the path watched by h.
func (r *Registry) Resolve(h Handle) (string, error) {
	wd, ok := r.byHandle[h]
	if !ok {
		return "", ErrHandleNotFound
	}
	return wd.Path, nil
}

// Get returns the full entry for h.
func (r *Registry) Get(h Handle) (WatchedDirectory, bool) {
	wd, ok := r.byHandle[h]
	return wd, ok
}

// Lookup returns the handle watching path.
func (r *Registry) Lookup(path string) (Handle, bool) {
	h, ok := r.byPath[filepath.Clean(path)]
	return h, ok
}

// Len returns the number of active watches.
func (r *Registry) Len() int { return len(r.byHandle) }

// Entries returns a snapshot sorted by path.
func (r *Registry) Entries() []WatchedDirectory {
	out := make([]WatchedDirectory, 0, len(r.byHandle))
	for _, wd := range r.byHandle {
		out = append(out, wd)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// subtree returns the handles of path and everything below it.
func (r *Registry) subtree(path string) []Handle {
	prefix := path + string(filepath.Separator)
	var hs []Handle
	for p, h := range r.byPath {
		if p == path || strings.HasPrefix(p, prefix) {
			hs = append(hs, h)
		}
	}
	return hs
}

// RemoveSubtree unregisters path and every watched directory below it.
func (r *Registry) RemoveSubtree(path string) int {
	hs := r.subtree(filepath.Clean(path))
	for _, h := range hs {
		r.Unregister(h)
	}
	return len(hs)
}

// Move rewrites the paths of a renamed directory and its descendants,
// keeping their handles, and shifts their depths by depthDelta. It returns
// the updated entries.
func (r *Registry) Move(oldPath, newPath string, depthDelta int) []WatchedDirectory {
	oldPath, newPath = filepath.Clean(oldPath), filepath.Clean(newPath)
	var moved []WatchedDirectory
	for _, h := range r.subtree(oldPath) {
		wd := r.byHandle[h]
		delete(r.byPath, wd.Path)
		wd.Path = newPath + strings.TrimPrefix(wd.Path, oldPath)
		wd.Depth += depthDelta
		moved = append(moved, wd)
	}
	for _, wd := range moved {
		if other, ok := r.byPath[wd.Path]; ok && other != wd.Handle {
			r.Unregister(other)
		}
		r.byHandle[wd.Handle] = wd
		r.byPath[wd.Path] = wd.Handle
	}
	return moved
}

// Reset releases every watch.
func (r *Registry) Reset() {
	for h := range r.byHandle {
		if err := r.notifier.RemoveWatch(h); err != nil {
			r.logger.Debug("removing watch", zap.Int32("handle", int32(h)), zap.Error(err))
		}
	}
	r.byHandle = make(map[Handle]WatchedDirectory)
	r.byPath = make(map[string]Handle)
	metricWatches.Set(0)
}

// Clear forgets every entry without releasing kernel watches, for use once
// the notification channel itself has been closed.
func (r *Registry) Clear() {
	r.byHandle = make(map[Handle]WatchedDirectory)
	r.byPath = make(map[string]Handle)
	metricWatches.Set(0)
}
