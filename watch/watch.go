// Package watch reports changes anywhere below a directory as semantic
// events: files and directories created, deleted, modified, having their
// attributes changed, or renamed.
//
// The operating system only watches single directories. A Watcher keeps a
// watch on every directory of the tree, installing watches as directories
// appear, keeping them across renames, and rebuilding everything when the
// kernel reports that events were dropped.
package watch

import (
	"context"

	internal "github.com/TFMV/subwatch/internal/watch"
	"go.uber.org/zap"
)

// Re-export the types from the internal package
type (
	// Watcher watches a directory subtree.
	Watcher = internal.Watcher

	// Options configures a Watcher.
	Options = internal.Options

	// Event is a semantic change notification.
	Event = internal.Event

	// Result carries either an event or a recoverable error.
	Result = internal.Result

	// Handler processes results from the event loop.
	Handler = internal.Handler

	// EntryKind says whether an event concerns a file or a directory.
	EntryKind = internal.EntryKind

	// Action is the kind of change reported.
	Action = internal.Action

	// Backend selects the notification primitive.
	Backend = internal.Backend

	// WatchedDirectory is one directory under watch.
	WatchedDirectory = internal.WatchedDirectory

	// LogLevel defines the verbosity of logging.
	LogLevel = internal.LogLevel

	// Notifier and FileSystem let callers replace the operating system.
	Notifier       = internal.Notifier
	FileSystem     = internal.FileSystem
	MemoryNotifier = internal.MemoryNotifier

	// Error types
	ConfigurationError  = internal.ConfigurationError
	RegistrationError   = internal.RegistrationError
	RecursionLimitError = internal.RecursionLimitError
	DecodeError         = internal.DecodeError
	ReadError           = internal.ReadError
	OverflowError       = internal.OverflowError
)

// Re-export the constants
const (
	KindFile      = internal.KindFile
	KindDirectory = internal.KindDirectory

	Created            = internal.Created
	Renamed            = internal.Renamed
	Modified           = internal.Modified
	AttributesModified = internal.AttributesModified
	Deleted            = internal.Deleted
	Resync             = internal.Resync

	BackendAuto     = internal.BackendAuto
	BackendInotify  = internal.BackendInotify
	BackendFsnotify = internal.BackendFsnotify

	LogLevelError = internal.LogLevelError
	LogLevelWarn  = internal.LogLevelWarn
	LogLevelInfo  = internal.LogLevelInfo
	LogLevelDebug = internal.LogLevelDebug

	DefaultMaxDepth = internal.DefaultMaxDepth
)

// Re-export the sentinel errors
var (
	ErrClosed         = internal.ErrClosed
	ErrAlreadyWatched = internal.ErrAlreadyWatched
	ErrHandleNotFound = internal.ErrHandleNotFound
	ErrStaleHandle    = internal.ErrStaleHandle
)

// New creates a Watcher on root and installs its initial watches.
func New(ctx context.Context, root string, opts Options) (*Watcher, error) {
	return internal.New(ctx, root, opts)
}

// Watch monitors root until ctx is done or opts.Timeout elapses.
func Watch(ctx context.Context, root string, opts Options, handler Handler) error {
	return internal.Watch(ctx, root, opts, handler)
}

// WatchWithExec runs a command for each event. See FormatEvent for the
// placeholders the command may use.
func WatchWithExec(ctx context.Context, root string, opts Options, cmdTemplate string) error {
	return internal.WatchWithExec(ctx, root, opts, cmdTemplate)
}

// WatchWithFormat prints each event through a template.
func WatchWithFormat(ctx context.Context, root string, opts Options, formatTemplate string) error {
	return internal.WatchWithFormat(ctx, root, opts, formatTemplate)
}

// FormatEvent expands the placeholders of template for ev.
func FormatEvent(template string, ev Event) string {
	return internal.FormatEvent(template, ev)
}

// Scan lists the directories a Watcher on root would watch, without
// installing any watches.
func Scan(ctx context.Context, root string, opts Options) ([]WatchedDirectory, []error, error) {
	return internal.Scan(ctx, root, opts)
}

// ParseAction parses an action name such as "created" or "rename".
func ParseAction(s string) (Action, error) {
	return internal.ParseAction(s)
}

// NewLogger creates a zap logger with the specified log level.
func NewLogger(level LogLevel) *zap.Logger {
	return internal.NewLogger(level)
}

// NewMemoryNotifier returns an in-process Notifier for tests and dry runs.
func NewMemoryNotifier() *MemoryNotifier {
	return internal.NewMemoryNotifier()
}
