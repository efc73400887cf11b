package watch

import (
	"context"
	"errors"
	"path/filepath"

	"go.uber.org/zap"
)

// DefaultMaxDepth is used when Options.MaxDepth is zero.
const DefaultMaxDepth = 64

// visitFn is called for every entry discovered while installing a new subtree.
type visitFn func(path string, kind EntryKind)

// Walker installs watches for a directory subtree.
type Walker struct {
	registry       *Registry
	fs             FileSystem
	followSymlinks bool
	maxDepth       int
	diag           *diagnostics
}

func newWalker(r *Registry, fs FileSystem, followSymlinks bool, maxDepth int, diag *diagnostics) *Walker {
	return &Walker{
		registry:       r,
		fs:             fs,
		followSymlinks: followSymlinks,
		maxDepth:       maxDepth,
		diag:           diag,
	}
}

// Install registers the directory at path, which sits at depth below the
// root, and walks it. A directory that is already watched under another
// path is not descended again.
func (w *Walker) Install(ctx context.Context, path string, depth int) error {
	return w.install(ctx, path, depth, nil)
}

func (w *Walker) install(ctx context.Context, path string, depth int, visit visitFn) error {
	if depth >= w.maxDepth {
		return &RecursionLimitError{Path: path, Depth: depth, MaxDepth: w.maxDepth}
	}
	h, err := w.registry.Register(path, depth)
	if errors.Is(err, ErrAlreadyWatched) {
		w.diag.logger.Debug("directory already watched through another path",
			zap.String("path", path), zap.Int32("handle", int32(h)))
		return nil
	}
	if err != nil {
		return err
	}
	w.diag.logger.Debug("watching directory",
		zap.String("path", path), zap.Int32("handle", int32(h)), zap.Int("depth", depth))
	return w.walk(ctx, path, depth, visit)
}

// Walk registers every directory below path, which itself sits at depth.
// Failures on single entries are reported as diagnostics and do not stop
// the walk; only context cancellation is returned.
func (w *Walker) Walk(ctx context.Context, path string, depth int) error {
	return w.walk(ctx, path, depth, nil)
}

func (w *Walker) walk(ctx context.Context, path string, depth int, visit visitFn) error {
	if depth >= w.maxDepth {
		w.diag.report(&RecursionLimitError{Path: path, Depth: depth, MaxDepth: w.maxDepth})
		return nil
	}
	entries, err := w.fs.ReadDir(path)
	if err != nil {
		w.diag.report(&RegistrationError{Path: path, Err: err})
		return nil
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if entry.Name == "." || entry.Name == ".." {
			continue
		}
		child := filepath.Join(path, entry.Name)

		isDir := entry.IsDir
		if entry.IsSymlink {
			if !w.followSymlinks {
				w.diag.logger.Debug("not following symlink", zap.String("path", child))
				metricDiagnostics.WithLabelValues("symlink_skipped").Inc()
				if visit != nil {
					visit(child, KindFile)
				}
				continue
			}
			info, err := w.fs.Stat(child, true)
			isDir = err == nil && info.IsDir()
		}

		if !isDir {
			if visit != nil {
				visit(child, KindFile)
			}
			continue
		}
		if visit != nil {
			visit(child, KindDirectory)
		}
		if err := w.install(ctx, child, depth+1, visit); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			w.diag.report(err)
		}
	}
	return nil
}
