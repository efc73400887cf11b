package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestFsnotify(t *testing.T, dirs ...string) (*fsnotifyNotifier, string) {
	t.Helper()
	root, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	makeTree(t, root, dirs...)

	n, err := NewFsnotifyNotifier()
	require.NoError(t, err)
	t.Cleanup(func() { n.Close() })
	return n.(*fsnotifyNotifier), root
}

func TestFsnotifyTranslateEntryEvents(t *testing.T) {
	n, root := newTestFsnotify(t)
	h, err := n.AddWatch(root, WatchMask)
	require.NoError(t, err)

	tests := []struct {
		op   fsnotify.Op
		want Op
	}{
		{fsnotify.Create, OpCreate},
		{fsnotify.Write, OpModify},
		{fsnotify.Chmod, OpAttrib},
		{fsnotify.Remove, OpDelete},
		{fsnotify.Rename, OpMovedFrom},
		{fsnotify.Create | fsnotify.Write, OpCreate | OpModify},
	}
	for _, tt := range tests {
		t.Run(tt.op.String(), func(t *testing.T) {
			got := n.translate(fsnotify.Event{Name: filepath.Join(root, "f.txt"), Op: tt.op})
			assert.Equal(t, []RawEvent{{Handle: h, Mask: tt.want, Name: "f.txt"}}, got)
		})
	}
}

func TestFsnotifyTranslateUnwatchedParent(t *testing.T) {
	n, root := newTestFsnotify(t)
	got := n.translate(fsnotify.Event{Name: filepath.Join(root, "elsewhere", "f"), Op: fsnotify.Create})
	assert.Empty(t, got)
}

func TestFsnotifyTranslateWatchedDirectoryRemoved(t *testing.T) {
	n, root := newTestFsnotify(t, "sub")
	rootHandle, err := n.AddWatch(root, WatchMask)
	require.NoError(t, err)
	sub := filepath.Join(root, "sub")
	subHandle, err := n.AddWatch(sub, WatchMask)
	require.NoError(t, err)

	got := n.translate(fsnotify.Event{Name: sub, Op: fsnotify.Remove})
	assert.Equal(t, []RawEvent{
		{Handle: rootHandle, Mask: OpDelete | OpIsDir, Name: "sub"},
		{Handle: subHandle, Mask: OpDeleteSelf},
	}, got)

	// The same removal reported again through the parent is dropped.
	assert.Empty(t, n.translate(fsnotify.Event{Name: sub, Op: fsnotify.Remove}))
	assert.ErrorIs(t, n.RemoveWatch(subHandle), ErrHandleNotFound)
}

func TestFsnotifyTranslateWatchedDirectoryRenamed(t *testing.T) {
	n, root := newTestFsnotify(t, "sub")
	rootHandle, err := n.AddWatch(root, WatchMask)
	require.NoError(t, err)
	sub := filepath.Join(root, "sub")
	subHandle, err := n.AddWatch(sub, WatchMask)
	require.NoError(t, err)

	got := n.translate(fsnotify.Event{Name: sub, Op: fsnotify.Rename})
	assert.Equal(t, []RawEvent{
		{Handle: rootHandle, Mask: OpMovedFrom | OpIsDir, Name: "sub"},
		{Handle: subHandle, Mask: OpMoveSelf},
	}, got)
}

func TestFsnotifyAddWatchIsIdempotent(t *testing.T) {
	n, root := newTestFsnotify(t)
	a, err := n.AddWatch(root, WatchMask)
	require.NoError(t, err)
	b, err := n.AddWatch(root+string(filepath.Separator), WatchMask)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	require.NoError(t, n.RemoveWatch(a))
	assert.ErrorIs(t, n.RemoveWatch(a), ErrHandleNotFound)
}

func TestFsnotifyReadAfterClose(t *testing.T) {
	n, _ := newTestFsnotify(t)
	require.NoError(t, n.Close())
	_, err := n.ReadEvents()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestFsnotifyBackendReportsCreatedFile(t *testing.T) {
	root, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)

	w, err := New(context.Background(), root, Options{Backend: BackendFsnotify, Logger: zap.NewNop()})
	require.NoError(t, err)

	rec := &recorder{}
	done := make(chan error, 1)
	go func() { done <- w.Run(context.Background(), rec.handle) }()
	defer func() {
		w.Stop()
		require.NoError(t, <-done)
	}()

	file := filepath.Join(root, "new.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	assert.Eventually(t, func() bool { return rec.has(KindFile, Created, file) }, 2*time.Second, 10*time.Millisecond)
}
