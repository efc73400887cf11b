package watch

import (
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
	"golang.org/x/text/unicode/norm"
)

// filter decides which events reach the handler. It never affects which
// directories are watched.
type filter struct {
	actions       map[Action]bool
	include       glob.Glob
	exclude       glob.Glob
	excludeHidden bool
}

func newFilter(opts Options) (*filter, error) {
	f := &filter{excludeHidden: opts.ExcludeHidden}
	if len(opts.Events) > 0 {
		f.actions = make(map[Action]bool, len(opts.Events))
		for _, a := range opts.Events {
			f.actions[a] = true
		}
	}
	var err error
	if opts.Pattern != "" {
		if f.include, err = glob.Compile(norm.NFC.String(opts.Pattern)); err != nil {
			return nil, err
		}
	}
	if opts.IgnorePattern != "" {
		if f.exclude, err = glob.Compile(norm.NFC.String(opts.IgnorePattern)); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func (f *filter) match(ev Event) bool {
	if ev.Action == Resync {
		return true
	}
	if f.actions != nil && !f.actions[ev.Action] {
		return false
	}

	names := []string{filepath.Base(ev.Path)}
	if ev.SecondaryPath != "" {
		names = append(names, filepath.Base(ev.SecondaryPath))
	}
	for i, n := range names {
		names[i] = norm.NFC.String(n)
	}

	if f.include != nil && !anyMatch(f.include, names) {
		return false
	}
	if f.exclude != nil && anyMatch(f.exclude, names) {
		return false
	}
	if f.excludeHidden && (isHidden(ev.Path) || (ev.SecondaryPath != "" && isHidden(ev.SecondaryPath))) {
		return false
	}
	return true
}

func anyMatch(g glob.Glob, names []string) bool {
	for _, n := range names {
		if g.Match(n) {
			return true
		}
	}
	return false
}

func isHidden(path string) bool {
	name := filepath.Base(path)
	return strings.HasPrefix(name, ".")
}
