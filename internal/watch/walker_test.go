package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func makeTree(t *testing.T, root string, dirs ...string) {
	t.Helper()
	for _, d := range dirs {
		require.NoError(t, os.MkdirAll(filepath.Join(root, filepath.FromSlash(d)), 0o755))
	}
}

func TestWalkerRegistersEveryDirectory(t *testing.T) {
	h := newHarness(t, Options{}, func(root string) {
		makeTree(t, root, "a/b/c", "a/d", "e")
		require.NoError(t, os.WriteFile(filepath.Join(root, "a", "file.txt"), nil, 0o644))
	})

	entries := h.w.Watched()
	assert.Equal(t, []string{
		h.root,
		h.path("a"),
		h.path("a/b"),
		h.path("a/b/c"),
		h.path("a/d"),
		h.path("e"),
	}, watchedPaths(entries))
	requireInjective(t, entries)
	assert.Equal(t, len(entries), h.mem.Len())

	for _, e := range entries {
		rel, err := filepath.Rel(h.root, e.Path)
		require.NoError(t, err)
		depth := 0
		if rel != "." {
			depth = countSeparators(rel) + 1
		}
		assert.Equal(t, depth, e.Depth, "depth of %s", rel)
	}
	assert.Empty(t, h.drain())
}

func countSeparators(p string) int {
	n := 0
	for _, c := range p {
		if c == filepath.Separator {
			n++
		}
	}
	return n
}

func TestWalkerDepthLimit(t *testing.T) {
	h := newHarness(t, Options{MaxDepth: 2}, func(root string) {
		makeTree(t, root, "a/b/c", "x")
	})

	assert.Equal(t, []string{h.root, h.path("a"), h.path("x")}, watchedPaths(h.w.Watched()))

	errs := h.drain()
	require.Len(t, errs, 1)
	var limitErr *RecursionLimitError
	require.ErrorAs(t, errs[0], &limitErr)
	assert.Equal(t, h.path("a/b"), limitErr.Path)
	assert.Equal(t, 2, limitErr.MaxDepth)
}

func TestWalkerDepthLimitOfOneWatchesOnlyRoot(t *testing.T) {
	h := newHarness(t, Options{MaxDepth: 1}, func(root string) {
		makeTree(t, root, "a", "b")
	})
	assert.Equal(t, []string{h.root}, watchedPaths(h.w.Watched()))
	assert.Len(t, h.drain(), 2)
}

func TestWalkerWalkAtLimitReportsAndReturns(t *testing.T) {
	h := newHarness(t, Options{MaxDepth: 3}, nil)
	h.mkdir("deep")

	require.NoError(t, h.w.walker.Walk(context.Background(), h.path("deep"), 3))
	assert.False(t, h.watched("deep"))

	errs := h.drain()
	require.Len(t, errs, 1)
	var limitErr *RecursionLimitError
	assert.ErrorAs(t, errs[0], &limitErr)
}

func TestWalkerSymlinksNotFollowed(t *testing.T) {
	skipped := counterValue(t, metricDiagnostics.WithLabelValues("symlink_skipped"))
	h := newHarness(t, Options{}, func(root string) {
		makeTree(t, root, "real/sub")
		require.NoError(t, os.Symlink(filepath.Join(root, "real"), filepath.Join(root, "link")))
	})

	assert.Equal(t, []string{h.root, h.path("real"), h.path("real/sub")}, watchedPaths(h.w.Watched()))
	assert.False(t, h.watched("link"))
	assert.Equal(t, skipped+1, counterValue(t, metricDiagnostics.WithLabelValues("symlink_skipped")))
	assert.Empty(t, h.drain(), "a skipped symlink is not a diagnostic")
}

func TestWalkerSymlinksFollowedOnce(t *testing.T) {
	h := newHarness(t, Options{FollowSymlinks: true}, func(root string) {
		makeTree(t, root, "real/sub")
		require.NoError(t, os.Symlink(filepath.Join(root, "real"), filepath.Join(root, "link")))
	})

	entries := h.w.Watched()
	requireInjective(t, entries)
	// real and link are one directory; whichever was reached first owns it.
	require.Len(t, entries, 3)
	assert.Equal(t, 3, h.mem.Len())
	assert.True(t, h.watched("real") || h.watched("link"))
	assert.False(t, h.watched("real") && h.watched("link"))
	assert.True(t, h.watched("real/sub") || h.watched("link/sub"))
}

func TestWalkerSymlinkCycleStopsAtKnownDirectory(t *testing.T) {
	h := newHarness(t, Options{FollowSymlinks: true, MaxDepth: 10}, func(root string) {
		makeTree(t, root, "a")
		require.NoError(t, os.Symlink(root, filepath.Join(root, "a", "loop")))
	})

	assert.Equal(t, []string{h.root, h.path("a")}, watchedPaths(h.w.Watched()))
}

func TestWalkerRegistrationFailureSkipsOnlyThatBranch(t *testing.T) {
	root, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	makeTree(t, root, "bad/child", "good/child")

	mem := NewMemoryNotifier()
	denied := errors.New("permission denied")
	mem.FailPath(filepath.Join(root, "bad"), denied)

	w, err := New(context.Background(), root, Options{Notifier: mem})
	require.NoError(t, err)
	defer w.Stop()

	assert.Equal(t, []string{root, filepath.Join(root, "good"), filepath.Join(root, "good", "child")},
		watchedPaths(w.Watched()))

	require.Len(t, w.pending, 1)
	var regErr *RegistrationError
	require.ErrorAs(t, w.pending[0], &regErr)
	assert.Equal(t, filepath.Join(root, "bad"), regErr.Path)
	assert.ErrorIs(t, w.pending[0], denied)
}

func TestWalkerHonoursCancellation(t *testing.T) {
	h := newHarness(t, Options{}, nil)
	h.mkdir("x/y")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := h.w.walker.Walk(ctx, h.root, 0)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, h.watched("x"))
}

func TestScan(t *testing.T) {
	root, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	makeTree(t, root, "a/b/c")

	entries, diags, err := Scan(context.Background(), root, Options{MaxDepth: 3})
	require.NoError(t, err)
	assert.Equal(t, []string{root, filepath.Join(root, "a"), filepath.Join(root, "a", "b")}, watchedPaths(entries))
	assert.Len(t, diags, 1)
}
