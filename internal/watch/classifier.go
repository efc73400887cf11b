package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// Classifier turns batches of raw records into semantic events and keeps
// the registry in step with directories appearing and disappearing.
type Classifier struct {
	registry       *Registry
	walker         *Walker
	fs             FileSystem
	followSymlinks bool
	maxDepth       int
	diag           *diagnostics
	now            func() time.Time
}

func newClassifier(r *Registry, w *Walker, fs FileSystem, diag *diagnostics) *Classifier {
	return &Classifier{
		registry:       r,
		walker:         w,
		fs:             fs,
		followSymlinks: w.followSymlinks,
		maxDepth:       w.maxDepth,
		diag:           diag,
		now:            time.Now,
	}
}

type groupKey struct {
	cookie uint32
	handle Handle
	name   string
}

// resolvedRecord is a raw record whose handle resolved in the registry.
type resolvedRecord struct {
	RawEvent
	dir  WatchedDirectory
	path string
}

// Classify processes one decoded batch. Records are grouped by cookie, or
// by (handle, name) when they carry none; each group yields one event per
// distinct action in the order Created, Renamed, Modified,
// AttributesModified, Deleted.
func (c *Classifier) Classify(ctx context.Context, batch []RawEvent) []Event {
	var (
		order  []groupKey
		groups = make(map[groupKey][]RawEvent)
	)
	for _, ev := range batch {
		key := groupKey{cookie: ev.Cookie}
		if ev.Cookie == 0 {
			key = groupKey{handle: ev.Handle, name: ev.Name}
		}
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], ev)
	}

	var out []Event
	emit := func(ev Event) {
		ev.Time = c.now()
		metricEventsTotal.WithLabelValues(ev.Action.String(), ev.Kind.String()).Inc()
		out = append(out, ev)
	}
	for _, key := range order {
		c.classifyGroup(ctx, groups[key], emit)
	}
	return out
}

func (c *Classifier) classifyGroup(ctx context.Context, records []RawEvent, emit func(Event)) {
	var (
		resolved   []resolvedRecord
		from, to   *resolvedRecord
		mask       Op
		ignored    []Handle
		selfHandle = NoHandle
	)
	for _, rec := range records {
		wd, ok := c.registry.Get(rec.Handle)
		if !ok {
			if !rec.Mask.Has(OpIgnored) {
				c.diag.report(fmt.Errorf("%w: handle %d, %s %q", ErrStaleHandle, rec.Handle, rec.Mask, rec.Name))
			}
			continue
		}
		resolved = append(resolved, resolvedRecord{RawEvent: rec, dir: wd, path: joinEntry(wd.Path, rec.Name)})
		mask |= rec.Mask
		if rec.Mask.Has(OpIgnored) {
			ignored = append(ignored, rec.Handle)
		}
		if rec.IsSelf() {
			selfHandle = rec.Handle
		}
	}
	if len(resolved) == 0 {
		return
	}
	for i := range resolved {
		r := &resolved[i]
		if r.Mask.Has(OpMovedFrom) && from == nil {
			from = r
		}
		if r.Mask.Has(OpMovedTo) && to == nil {
			to = r
		}
	}

	if selfHandle != NoHandle {
		c.classifySelf(resolved[0], mask, emit)
		for _, h := range ignored {
			c.registry.Drop(h)
		}
		return
	}

	path := resolved[len(resolved)-1].path
	switch {
	case to != nil:
		path = to.path
	case from != nil:
		path = from.path
	}
	kind := c.kindOf(path, mask, from != nil && to == nil)
	if from != nil && to != nil && kind == KindFile {
		if _, ok := c.registry.Lookup(from.path); ok {
			kind = KindDirectory
		}
	}

	created := mask.Has(OpCreate) || (to != nil && from == nil)
	if created {
		emit(Event{Kind: kind, Action: Created, Path: path})
		if kind == KindDirectory {
			c.installCreated(ctx, path, resolvedParent(to, resolved).dir, emit)
		}
	}
	if from != nil && to != nil {
		emit(Event{Kind: kind, Action: Renamed, Path: from.path, SecondaryPath: to.path})
		if kind == KindDirectory {
			c.moveDirectory(ctx, from.path, to.path, to.dir)
		}
	}
	if mask.Has(OpModify) {
		emit(Event{Kind: kind, Action: Modified, Path: path})
	}
	if mask.Has(OpAttrib) {
		emit(Event{Kind: kind, Action: AttributesModified, Path: path})
	}
	if mask.Has(OpDelete) || (from != nil && to == nil) {
		emit(Event{Kind: kind, Action: Deleted, Path: path})
		if from != nil && to == nil && kind == KindDirectory {
			// Moved out of the tree; the kernel keeps watching it elsewhere.
			c.registry.RemoveSubtree(from.path)
		}
	}
	for _, h := range ignored {
		c.registry.Drop(h)
	}
}

func resolvedParent(to *resolvedRecord, resolved []resolvedRecord) resolvedRecord {
	if to != nil {
		return *to
	}
	return resolved[len(resolved)-1]
}

// classifySelf handles records about a watched directory itself. A
// directory whose parent is watched is reported through the parent's
// records, so only the registry is updated; the root reports its own
// changes.
func (c *Classifier) classifySelf(rec resolvedRecord, mask Op, emit func(Event)) {
	_, parentWatched := c.registry.Lookup(filepath.Dir(rec.dir.Path))
	gone := mask.Has(OpDeleteSelf | OpUnmount)

	if !parentWatched || mask.Has(OpUnmount) {
		if mask.Has(OpModify) {
			emit(Event{Kind: KindDirectory, Action: Modified, Path: rec.dir.Path})
		}
		if mask.Has(OpAttrib) {
			emit(Event{Kind: KindDirectory, Action: AttributesModified, Path: rec.dir.Path})
		}
		if gone {
			emit(Event{Kind: KindDirectory, Action: Deleted, Path: rec.dir.Path})
		}
		if mask.Has(OpMoveSelf) && !parentWatched {
			c.diag.logger.Warn("watch root was moved", zap.String("path", rec.dir.Path))
		}
	}
	if gone {
		c.diag.logger.Debug("directory gone, dropping watch",
			zap.String("path", rec.dir.Path), zap.Int32("handle", int32(rec.Handle)))
		c.registry.Drop(rec.Handle)
	}
}

// installCreated watches a new directory and reports everything already
// inside it, so entries created before the watch was in place are not lost.
func (c *Classifier) installCreated(ctx context.Context, path string, parent WatchedDirectory, emit func(Event)) {
	if _, ok := c.registry.Lookup(path); ok {
		return
	}
	visit := func(p string, k EntryKind) {
		emit(Event{Kind: k, Action: Created, Path: p})
	}
	if err := c.walker.install(ctx, path, parent.Depth+1, visit); err != nil && ctx.Err() == nil {
		c.diag.report(err)
	}
}

// moveDirectory keeps the watches of a renamed directory, rewriting their
// paths. Entries pushed past the depth limit are released.
func (c *Classifier) moveDirectory(ctx context.Context, oldPath, newPath string, newParent WatchedDirectory) {
	h, ok := c.registry.Lookup(oldPath)
	if !ok {
		if err := c.walker.install(ctx, newPath, newParent.Depth+1, nil); err != nil && ctx.Err() == nil {
			c.diag.report(err)
		}
		return
	}
	oldDepth := 0
	if wd, ok := c.registry.Get(h); ok {
		oldDepth = wd.Depth
	}
	delta := newParent.Depth + 1 - oldDepth
	for _, wd := range c.registry.Move(oldPath, newPath, delta) {
		if wd.Depth >= c.maxDepth {
			c.registry.Unregister(wd.Handle)
			continue
		}
		// Children of a directory that sat at the last admitted depth were
		// never watched; moving it up brings them within the limit.
		if delta < 0 && wd.Depth-delta == c.maxDepth-1 {
			if err := c.walker.Walk(ctx, wd.Path, wd.Depth); err != nil {
				return
			}
		}
	}
}

// kindOf resolves whether path is a directory. The filesystem is asked
// first; a vanished entry falls back to what the registry and the kernel
// flags say, and finally to KindFile.
func (c *Classifier) kindOf(path string, mask Op, departed bool) EntryKind {
	if !departed {
		if info, err := c.fs.Stat(path, false); err == nil {
			if info.IsDir() {
				return KindDirectory
			}
			if isSymlink(info) && c.followSymlinks {
				if target, err := c.fs.Stat(path, true); err == nil && target.IsDir() {
					return KindDirectory
				}
			}
			return KindFile
		}
	}
	if _, ok := c.registry.Lookup(path); ok {
		return KindDirectory
	}
	if mask.Has(OpIsDir) {
		return KindDirectory
	}
	if mask.Has(OpDelete | OpMovedFrom) {
		metricDiagnostics.WithLabelValues("kind_unknown").Inc()
		c.diag.logger.Debug("entry vanished before classification, assuming file", zap.String("path", path))
	}
	return KindFile
}

func joinEntry(dir, name string) string {
	if name == "" {
		return dir
	}
	return filepath.Join(dir, name)
}
