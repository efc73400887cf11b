package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// harness runs a Watcher on a temporary tree with an in-memory notifier,
// so tests decide exactly which raw records arrive in which batch.
type harness struct {
	t    *testing.T
	root string
	mem  *MemoryNotifier
	w    *Watcher
}

func newHarness(t *testing.T, opts Options, setup func(root string)) *harness {
	t.Helper()
	root, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	if setup != nil {
		setup(root)
	}

	mem := NewMemoryNotifier()
	opts.Notifier = mem
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	w, err := New(context.Background(), root, opts)
	require.NoError(t, err)
	t.Cleanup(func() { w.Stop() })

	return &harness{t: t, root: root, mem: mem, w: w}
}

func (h *harness) path(rel string) string {
	return filepath.Join(h.root, filepath.FromSlash(rel))
}

// handle returns the registry handle for a path relative to the root.
func (h *harness) handle(rel string) Handle {
	h.t.Helper()
	hd, ok := h.w.registry.Lookup(h.path(rel))
	require.True(h.t, ok, "%s is not watched", rel)
	return hd
}

func (h *harness) watched(rel string) bool {
	_, ok := h.w.registry.Lookup(h.path(rel))
	return ok
}

// feed runs one batch through the loop's processing step and returns
// everything handed to the handler.
func (h *harness) feed(events ...RawEvent) []Result {
	h.t.Helper()
	return h.feedRaw(EncodeEvents(events...))
}

func (h *harness) feedRaw(buf []byte) []Result {
	h.t.Helper()
	var results []Result
	err := h.w.process(context.Background(), buf, func(_ context.Context, r Result) error {
		results = append(results, r)
		return nil
	})
	require.NoError(h.t, err)
	return results
}

// drain returns and clears diagnostics queued outside of feed.
func (h *harness) drain() []error {
	errs := h.w.pending
	h.w.pending = nil
	return errs
}

func (h *harness) mkdir(rel string) {
	h.t.Helper()
	require.NoError(h.t, os.MkdirAll(h.path(rel), 0o755))
}

func (h *harness) write(rel, content string) {
	h.t.Helper()
	require.NoError(h.t, os.WriteFile(h.path(rel), []byte(content), 0o644))
}

func eventsOf(results []Result) []Event {
	var out []Event
	for _, r := range results {
		if r.Err == nil {
			out = append(out, r.Event)
		}
	}
	return out
}

func errorsOf(results []Result) []error {
	var out []error
	for _, r := range results {
		if r.Err != nil {
			out = append(out, r.Err)
		}
	}
	return out
}

// summary renders events without timestamps for comparison.
type summary struct {
	Kind      EntryKind
	Action    Action
	Path      string
	Secondary string
}

func summarize(events []Event) []summary {
	out := make([]summary, 0, len(events))
	for _, ev := range events {
		out = append(out, summary{ev.Kind, ev.Action, ev.Path, ev.SecondaryPath})
	}
	return out
}

// requireInjective checks that no two handles share a path and no handle
// appears twice.
func requireInjective(t *testing.T, entries []WatchedDirectory) {
	t.Helper()
	handles := make(map[Handle]string)
	paths := make(map[string]Handle)
	for _, e := range entries {
		_, dupHandle := handles[e.Handle]
		require.False(t, dupHandle, "handle %d mapped twice", e.Handle)
		_, dupPath := paths[e.Path]
		require.False(t, dupPath, "path %s mapped twice", e.Path)
		handles[e.Handle] = e.Path
		paths[e.Path] = e.Handle
	}
}

func watchedPaths(entries []WatchedDirectory) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Path)
	}
	return out
}

// recorder collects events delivered by a running watcher.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) handle(_ context.Context, res Result) error {
	if res.Err == nil {
		r.mu.Lock()
		r.events = append(r.events, res.Event)
		r.mu.Unlock()
	}
	return nil
}

func (r *recorder) has(kind EntryKind, action Action, path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range r.events {
		if ev.Kind == kind && ev.Action == action && ev.Path == path {
			return true
		}
	}
	return false
}
