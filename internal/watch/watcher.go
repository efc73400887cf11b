// Package watch reports changes anywhere below a directory as semantic
// events (created, deleted, modified, attributes modified, renamed), built
// on a notification primitive that only watches single directories.
//
// A Watcher owns a registry of watched directories. It installs a watch on
// every directory under the root at construction, then runs a single
// read → decode → classify → emit loop that keeps the registry in step
// with directories appearing, moving and disappearing.
package watch

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// Backend selects the notification primitive.
type Backend string

const (
	// BackendAuto uses inotify on Linux and fsnotify elsewhere.
	BackendAuto     Backend = ""
	BackendInotify  Backend = "inotify"
	BackendFsnotify Backend = "fsnotify"
)

// Options configures a Watcher.
type Options struct {
	// Follow symbolic links to directories while walking.
	FollowSymlinks bool

	// Directories at this depth below the root or deeper are not watched.
	// Zero selects DefaultMaxDepth.
	MaxDepth int

	// Notification backend; ignored when Notifier is set.
	Backend Backend
	// Notifier overrides Backend.
	Notifier Notifier
	// FileSystem overrides the operating system metadata source.
	FileSystem FileSystem

	// Events to report (empty means all).
	Events []Action
	// Pattern to match entry names (glob syntax), e.g. "*.go".
	Pattern string
	// Pattern of entry names to ignore.
	IgnorePattern string
	// Whether to drop events for hidden entries.
	ExcludeHidden bool

	Logger   *zap.Logger
	LogLevel LogLevel

	// Timeout for Watch and its variants (0 means no timeout).
	Timeout time.Duration
}

// Handler processes results from the event loop. Returning an error ends
// Run with that error.
type Handler func(ctx context.Context, result Result) error

// defaultHandler returns a default handler that prints events
func defaultHandler() Handler {
	return func(ctx context.Context, result Result) error {
		if result.Err != nil {
			fmt.Printf("ERROR: %v\n", result.Err)
			return nil
		}
		fmt.Printf("%s: %s\n", strings.ToUpper(result.Event.Action.String()), result.Event)
		return nil
	}
}

// Watcher watches a directory subtree.
type Watcher struct {
	root       string
	opts       Options
	logger     *zap.Logger
	notifier   Notifier
	registry   *Registry
	walker     *Walker
	classifier *Classifier
	filter     *filter
	diag       *diagnostics

	// mu guards registry access between the loop and Watched, and the
	// running/closed state below.
	mu      sync.RWMutex
	running bool
	closed  bool
	pending []error

	stopOnce sync.Once
	stopErr  error
}

// New validates root, opens the notification backend and installs watches
// on root and every directory below it that the depth limit and symlink
// policy admit.
func New(ctx context.Context, root string, opts Options) (*Watcher, error) {
	if root == "" {
		return nil, &ConfigurationError{Path: root, Reason: "empty root path"}
	}
	if opts.MaxDepth < 0 {
		return nil, &ConfigurationError{Path: root, Reason: fmt.Sprintf("negative max depth %d", opts.MaxDepth)}
	}
	if opts.MaxDepth == 0 {
		opts.MaxDepth = DefaultMaxDepth
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, &ConfigurationError{Path: root, Reason: "cannot resolve path", Err: err}
	}
	root = abs

	fs := opts.FileSystem
	if fs == nil {
		fs = NewOSFileSystem()
	}
	info, err := fs.Stat(root, true)
	if err != nil {
		return nil, &ConfigurationError{Path: root, Reason: "cannot stat root", Err: err}
	}
	if !info.IsDir() {
		return nil, &ConfigurationError{Path: root, Reason: "not a directory"}
	}

	flt, err := newFilter(opts)
	if err != nil {
		return nil, &ConfigurationError{Path: root, Reason: "invalid event filter", Err: err}
	}

	logger := opts.Logger
	if logger == nil {
		logger = NewLogger(opts.LogLevel)
	}
	logger = logger.With(zap.String("root", root))

	notifier := opts.Notifier
	if notifier == nil {
		notifier, err = openBackend(opts.Backend)
		if err != nil {
			return nil, err
		}
	}

	w := &Watcher{
		root:     root,
		opts:     opts,
		logger:   logger,
		notifier: notifier,
		filter:   flt,
	}
	w.diag = &diagnostics{logger: logger, sink: w.queue}
	w.registry = NewRegistry(notifier, fs, logger)
	w.walker = newWalker(w.registry, fs, opts.FollowSymlinks, opts.MaxDepth, w.diag)
	w.classifier = newClassifier(w.registry, w.walker, fs, w.diag)

	if err := w.install(ctx); err != nil {
		notifier.Close()
		return nil, err
	}
	logger.Info("watching",
		zap.Int("directories", w.registry.Len()),
		zap.Int("max_depth", opts.MaxDepth),
		zap.Bool("follow_symlinks", opts.FollowSymlinks))
	return w, nil
}

func openBackend(b Backend) (Notifier, error) {
	switch b {
	case BackendInotify:
		return NewInotifyNotifier()
	case BackendFsnotify:
		return NewFsnotifyNotifier()
	case BackendAuto:
		if n, err := NewInotifyNotifier(); err == nil {
			return n, nil
		}
		return NewFsnotifyNotifier()
	}
	return nil, &ConfigurationError{Reason: fmt.Sprintf("unknown backend %q", b)}
}

// install registers the root and walks it from depth zero.
func (w *Watcher) install(ctx context.Context) error {
	if _, err := w.registry.Register(w.root, 0); err != nil {
		return err
	}
	return w.walker.Walk(ctx, w.root, 0)
}

// queue holds a diagnostic for delivery after the current step.
func (w *Watcher) queue(err error) {
	w.pending = append(w.pending, err)
}

// Root returns the absolute path being watched.
func (w *Watcher) Root() string { return w.root }

// Watched returns a snapshot of the watched directories, sorted by path.
func (w *Watcher) Watched() []WatchedDirectory {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.registry.Entries()
}

// Run reads and classifies events until ctx is done, Stop is called, the
// handler returns an error, or reading fails. Losing the root's watch
// (the root was deleted or unmounted) stops the watcher once the batch's
// events are delivered. Stopping returns nil; a read failure returns a
// *ReadError and leaves the registry as it was.
func (w *Watcher) Run(ctx context.Context, handler Handler) error {
	if handler == nil {
		handler = defaultHandler()
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrClosed
	}
	if w.running {
		w.mu.Unlock()
		return errors.New("watcher already running")
	}
	w.running = true
	w.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { w.Stop() })
	defer stop()
	defer w.finish()

	if err := w.deliver(ctx, handler, nil); err != nil {
		return err
	}
	for {
		buf, err := w.notifier.ReadEvents()
		if err != nil {
			if errors.Is(err, ErrClosed) {
				w.logger.Debug("notification channel closed")
				return nil
			}
			if isTransient(err) {
				continue
			}
			w.logger.Error("reading events failed", zap.Error(err))
			return &ReadError{Err: err}
		}
		if err := w.process(ctx, buf, handler); err != nil {
			return err
		}
	}
}

func (w *Watcher) finish() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.running = false
	if w.closed {
		// Closing the channel released the kernel watches.
		w.registry.Clear()
	}
}

func isTransient(err error) bool {
	return errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.EINTR)
}

// process handles one batch from the notifier.
func (w *Watcher) process(ctx context.Context, buf []byte, handler Handler) error {
	raw, err := DecodeEvents(buf)
	if err != nil {
		w.diag.report(err)
		return w.deliver(ctx, handler, nil)
	}
	metricRawEvents.Add(float64(len(raw)))

	overflow := false
	batch := make([]RawEvent, 0, len(raw))
	for _, ev := range raw {
		if ev.Mask.Has(OpOverflow) {
			overflow = true
			continue
		}
		if ce := w.logger.Check(zap.DebugLevel, "raw event"); ce != nil {
			ce.Write(zap.Int32("handle", int32(ev.Handle)), zap.Stringer("mask", ev.Mask),
				zap.Uint32("cookie", ev.Cookie), zap.String("name", ev.Name))
		}
		batch = append(batch, ev)
	}

	w.mu.Lock()
	events := w.classifier.Classify(ctx, batch)
	_, rooted := w.registry.Lookup(w.root)
	w.mu.Unlock()
	if err := w.deliver(ctx, handler, events); err != nil {
		return err
	}

	if !rooted {
		// Nothing below a removed root can be watched again; the next read
		// sees the closed channel and Run returns.
		w.logger.Info("watch root removed, stopping")
		w.Stop()
		return nil
	}
	if overflow {
		if err := w.resync(ctx); err != nil {
			return err
		}
		resync := Event{Kind: KindDirectory, Action: Resync, Path: w.root, Time: time.Now()}
		return w.deliver(ctx, handler, []Event{resync})
	}
	return nil
}

// resync rebuilds the registry from scratch after lost events.
func (w *Watcher) resync(ctx context.Context) error {
	w.logger.Warn("resynchronizing", zap.Error(&OverflowError{Root: w.root}))
	metricResyncs.Inc()

	w.mu.Lock()
	defer w.mu.Unlock()
	w.registry.Reset()
	if err := w.install(ctx); err != nil {
		var regErr *RegistrationError
		if errors.As(err, &regErr) {
			return &ReadError{Err: fmt.Errorf("%w: %w", &OverflowError{Root: w.root}, err)}
		}
		return err
	}
	return nil
}

// deliver hands pending diagnostics, then events, to the handler.
func (w *Watcher) deliver(ctx context.Context, handler Handler, events []Event) error {
	pending := w.pending
	w.pending = nil
	for _, err := range pending {
		if herr := handler(ctx, Result{Err: err}); herr != nil {
			return herr
		}
	}
	for _, ev := range events {
		if !w.filter.match(ev) {
			continue
		}
		if herr := handler(ctx, Result{Event: ev}); herr != nil {
			return herr
		}
	}
	return nil
}

// Stop closes the notification channel. A running loop returns promptly
// and every watch is released. Stop is safe to call more than once and
// from any goroutine.
func (w *Watcher) Stop() error {
	w.stopOnce.Do(func() {
		// Mark closed first so a loop woken by Close clears the registry.
		w.mu.Lock()
		w.closed = true
		if !w.running {
			w.registry.Clear()
		}
		w.mu.Unlock()
		w.stopErr = w.notifier.Close()
	})
	return w.stopErr
}

var errStopIteration = errors.New("iteration stopped")

// All returns an iterator over the loop's results. Recoverable
// diagnostics are yielded with a non-nil error and a zero Event; a fatal
// error is yielded last. Breaking out of the loop stops the watcher.
func (w *Watcher) All(ctx context.Context) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		err := w.Run(ctx, func(_ context.Context, r Result) error {
			if !yield(r.Event, r.Err) {
				return errStopIteration
			}
			return nil
		})
		if errors.Is(err, errStopIteration) {
			w.Stop()
			return
		}
		if err != nil {
			yield(Event{}, err)
		}
	}
}

// Watch monitors root until ctx is done or opts.Timeout elapses.
func Watch(ctx context.Context, root string, opts Options, handler Handler) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	w, err := New(ctx, root, opts)
	if err != nil {
		return err
	}
	defer w.Stop()
	return w.Run(ctx, handler)
}
