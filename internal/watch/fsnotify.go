package watch

import (
	"errors"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// maxFsnotifyBatch bounds how many queued fsnotify events are folded into one batch.
const maxFsnotifyBatch = 256

// fsnotifyNotifier adapts fsnotify to the raw record stream. fsnotify
// reports full paths and no rename cookies, so renames reach the
// classifier as unpaired moves (Deleted then Created) and handles are
// synthesized here.
type fsnotifyNotifier struct {
	w *fsnotify.Watcher

	mu       sync.Mutex
	next     Handle
	byPath   map[string]Handle
	byHandle map[Handle]string
	// selfRemoved holds watched directories whose removal was already
	// translated; fsnotify reports it again through the parent.
	selfRemoved map[string]struct{}

	buf []byte
}

// NewFsnotifyNotifier returns a Notifier backed by github.com/fsnotify/fsnotify.
func NewFsnotifyNotifier() (Notifier, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &fsnotifyNotifier{
		w:           w,
		next:        1,
		byPath:      make(map[string]Handle),
		byHandle:    make(map[Handle]string),
		selfRemoved: make(map[string]struct{}),
	}, nil
}

func (n *fsnotifyNotifier) AddWatch(path string, _ Op) (Handle, error) {
	path = filepath.Clean(path)
	n.mu.Lock()
	defer n.mu.Unlock()
	if h, ok := n.byPath[path]; ok {
		return h, nil
	}
	if err := n.w.Add(path); err != nil {
		if errors.Is(err, fsnotify.ErrClosed) {
			return NoHandle, ErrClosed
		}
		return NoHandle, err
	}
	h := n.next
	n.next++
	n.byPath[path] = h
	n.byHandle[h] = path
	return h, nil
}

func (n *fsnotifyNotifier) RemoveWatch(h Handle) error {
	n.mu.Lock()
	path, ok := n.byHandle[h]
	if ok {
		delete(n.byHandle, h)
		delete(n.byPath, path)
	}
	n.mu.Unlock()
	if !ok {
		return ErrHandleNotFound
	}
	if err := n.w.Remove(path); err != nil && !errors.Is(err, fsnotify.ErrNonExistentWatch) {
		return err
	}
	return nil
}

func (n *fsnotifyNotifier) ReadEvents() ([]byte, error) {
	n.buf = n.buf[:0]
	select {
	case ev, ok := <-n.w.Events:
		if !ok {
			return nil, ErrClosed
		}
		n.append(ev)
	case err, ok := <-n.w.Errors:
		if !ok {
			return nil, ErrClosed
		}
		if !errors.Is(err, fsnotify.ErrEventOverflow) {
			return nil, err
		}
		n.buf = AppendEvent(n.buf, RawEvent{Handle: NoHandle, Mask: OpOverflow})
	}

	for i := 0; i < maxFsnotifyBatch; i++ {
		select {
		case ev, ok := <-n.w.Events:
			if !ok {
				return n.buf, nil
			}
			n.append(ev)
		default:
			return n.buf, nil
		}
	}
	return n.buf, nil
}

func (n *fsnotifyNotifier) append(ev fsnotify.Event) {
	for _, raw := range n.translate(ev) {
		n.buf = AppendEvent(n.buf, raw)
	}
}

func (n *fsnotifyNotifier) translate(ev fsnotify.Event) []RawEvent {
	n.mu.Lock()
	defer n.mu.Unlock()

	name := filepath.Clean(ev.Name)
	parent, parentOK := n.byPath[filepath.Dir(name)]
	self, selfOK := n.byPath[name]

	if ev.Has(fsnotify.Remove) && !selfOK {
		if _, seen := n.selfRemoved[name]; seen {
			delete(n.selfRemoved, name)
			if !ev.Has(fsnotify.Create | fsnotify.Write | fsnotify.Chmod) {
				return nil
			}
		}
	}

	var mask Op
	if ev.Has(fsnotify.Create) {
		mask |= OpCreate
	}
	if ev.Has(fsnotify.Write) {
		mask |= OpModify
	}
	if ev.Has(fsnotify.Chmod) {
		mask |= OpAttrib
	}
	if ev.Has(fsnotify.Remove) {
		mask |= OpDelete
	}
	if ev.Has(fsnotify.Rename) {
		mask |= OpMovedFrom
	}
	if selfOK {
		mask |= OpIsDir
	}

	var out []RawEvent
	if parentOK {
		out = append(out, RawEvent{Handle: parent, Mask: mask, Name: filepath.Base(name)})
	}
	if selfOK && ev.Has(fsnotify.Remove) {
		out = append(out, RawEvent{Handle: self, Mask: OpDeleteSelf})
		delete(n.byPath, name)
		delete(n.byHandle, self)
		if parentOK {
			n.selfRemoved[name] = struct{}{}
		}
	} else if selfOK && ev.Has(fsnotify.Rename) {
		out = append(out, RawEvent{Handle: self, Mask: OpMoveSelf})
	}
	return out
}

func (n *fsnotifyNotifier) Close() error {
	return n.w.Close()
}
