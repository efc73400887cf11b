package watch

import (
	"fmt"
	"path/filepath"
	"sync"
)

// MemoryNotifier is an in-process Notifier. It hands out handles without
// touching the kernel and delivers only the batches pushed into it. The
// scan command uses it for dry runs; tests use it to inject raw records.
type MemoryNotifier struct {
	mu       sync.Mutex
	next     Handle
	byKey    map[string]Handle
	byHandle map[Handle]string
	failures map[string]error

	batches   chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// NewMemoryNotifier returns an empty MemoryNotifier.
func NewMemoryNotifier() *MemoryNotifier {
	return &MemoryNotifier{
		next:     1,
		byKey:    make(map[string]Handle),
		byHandle: make(map[Handle]string),
		failures: make(map[string]error),
		batches:  make(chan []byte, 64),
		done:     make(chan struct{}),
	}
}

// identity mirrors the kernel keying watches by inode: aliases reached
// through symlinks share one handle.
func identity(path string) string {
	if real, err := filepath.EvalSymlinks(path); err == nil {
		return real
	}
	return filepath.Clean(path)
}

// AddWatch returns the handle for path, allocating one on first use.
func (m *MemoryNotifier) AddWatch(path string, _ Op) (Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	select {
	case <-m.done:
		return NoHandle, ErrClosed
	default:
	}
	if err, ok := m.failures[filepath.Clean(path)]; ok {
		return NoHandle, err
	}
	key := identity(path)
	if h, ok := m.byKey[key]; ok {
		return h, nil
	}
	h := m.next
	m.next++
	m.byKey[key] = h
	m.byHandle[h] = key
	return h, nil
}

// RemoveWatch forgets h.
func (m *MemoryNotifier) RemoveWatch(h Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key, ok := m.byHandle[h]
	if !ok {
		return fmt.Errorf("remove watch %d: %w", h, ErrHandleNotFound)
	}
	delete(m.byHandle, h)
	delete(m.byKey, key)
	return nil
}

// FailPath makes subsequent AddWatch calls for path return err.
func (m *MemoryNotifier) FailPath(path string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[filepath.Clean(path)] = err
}

// Handle returns the handle currently assigned to path.
func (m *MemoryNotifier) Handle(path string) (Handle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.byKey[identity(path)]
	return h, ok
}

// Len returns the number of active watches.
func (m *MemoryNotifier) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byHandle)
}

// Push queues the encoded events as one batch.
func (m *MemoryNotifier) Push(events ...RawEvent) {
	m.PushRaw(EncodeEvents(events...))
}

// PushRaw queues buf as one batch, verbatim.
func (m *MemoryNotifier) PushRaw(buf []byte) {
	select {
	case m.batches <- buf:
	case <-m.done:
	}
}

// ReadEvents blocks until a batch is pushed or the notifier is closed.
func (m *MemoryNotifier) ReadEvents() ([]byte, error) {
	select {
	case buf := <-m.batches:
		return buf, nil
	case <-m.done:
		return nil, ErrClosed
	}
}

// Close unblocks ReadEvents. It is safe to call more than once.
func (m *MemoryNotifier) Close() error {
	m.closeOnce.Do(func() { close(m.done) })
	return nil
}
