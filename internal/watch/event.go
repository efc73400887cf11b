package watch

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// EntryKind says whether an event concerns a file or a directory.
type EntryKind int

const (
	KindFile EntryKind = iota
	KindDirectory
)

func (k EntryKind) String() string {
	if k == KindDirectory {
		return "directory"
	}
	return "file"
}

func (k EntryKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Action is the semantic change reported for an entry. The declaration
// order of the first five values is the order events for one entry are
// emitted in.
type Action int

const (
	Created Action = iota
	Renamed
	Modified
	AttributesModified
	Deleted
	// Resync is emitted after the watcher rebuilt its state following
	// lost events. Path is the watch root.
	Resync
)

var actionNames = map[Action]string{
	Created:            "created",
	Renamed:            "renamed",
	Modified:           "modified",
	AttributesModified: "attributes_modified",
	Deleted:            "deleted",
	Resync:             "resync",
}

func (a Action) String() string {
	if s, ok := actionNames[a]; ok {
		return s
	}
	return fmt.Sprintf("action(%d)", int(a))
}

func (a Action) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

// ParseAction is the inverse of Action.String. It also accepts the short
// names create, write, modify, remove, delete, rename and chmod.
func ParseAction(s string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "created", "create":
		return Created, nil
	case "renamed", "rename", "move":
		return Renamed, nil
	case "modified", "modify", "write":
		return Modified, nil
	case "attributes_modified", "attrib", "chmod":
		return AttributesModified, nil
	case "deleted", "delete", "remove":
		return Deleted, nil
	case "resync":
		return Resync, nil
	}
	return 0, fmt.Errorf("unknown event type %q", s)
}

// Event is a semantic change notification.
type Event struct {
	Kind   EntryKind `json:"kind" yaml:"kind"`
	Action Action    `json:"action" yaml:"action"`
	// Path is the affected entry; for Renamed it is the old path.
	Path string `json:"path" yaml:"path"`
	// SecondaryPath is the new path of a Renamed event.
	SecondaryPath string    `json:"secondary_path,omitempty" yaml:"secondary_path,omitempty"`
	Time          time.Time `json:"time" yaml:"time"`
}

// Name returns the base name of the current path of the entry.
func (e Event) Name() string { return filepath.Base(e.CurrentPath()) }

// CurrentPath is the path the entry has after the event.
func (e Event) CurrentPath() string {
	if e.Action == Renamed && e.SecondaryPath != "" {
		return e.SecondaryPath
	}
	return e.Path
}

func (e Event) String() string {
	if e.Action == Renamed {
		return fmt.Sprintf("%s/%s %s -> %s", e.Kind, e.Action, e.Path, e.SecondaryPath)
	}
	return fmt.Sprintf("%s/%s %s", e.Kind, e.Action, e.Path)
}

// Result is delivered to a Handler: either an event or a recoverable
// diagnostic in Err.
type Result struct {
	Event Event
	Err   error
}
