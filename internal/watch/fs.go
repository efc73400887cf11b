package watch

import (
	"os"

	"github.com/karrick/godirwalk"
)

// Notifier is the kernel-facing change notification channel. Implementations
// are owned by a single Watcher; only Close may be called concurrently with
// ReadEvents.
type Notifier interface {
	// AddWatch starts watching the directory at path and returns its handle.
	// Adding an already watched directory returns the existing handle.
	AddWatch(path string, mask Op) (Handle, error)
	// RemoveWatch stops watching the directory behind h.
	RemoveWatch(h Handle) error
	// ReadEvents blocks until a batch of encoded records is available. The
	// returned slice is only valid until the next call. After Close it
	// returns ErrClosed.
	ReadEvents() ([]byte, error)
	Close() error
}

// Entry is one directory entry as seen without following symlinks.
type Entry struct {
	Name      string
	IsDir     bool
	IsSymlink bool
}

// FileSystem is the metadata surface the walker and classifier need.
type FileSystem interface {
	// Stat returns metadata for path, dereferencing a final symlink only
	// when followLinks is set.
	Stat(path string, followLinks bool) (os.FileInfo, error)
	// ReadDir lists the entries of a directory.
	ReadDir(path string) ([]Entry, error)
}

// OSFileSystem reads the local filesystem.
type OSFileSystem struct {
	scratch []byte
}

// NewOSFileSystem returns a FileSystem backed by the operating system.
func NewOSFileSystem() *OSFileSystem {
	return &OSFileSystem{scratch: make([]byte, godirwalk.MinimumScratchBufferSize)}
}

func (f *OSFileSystem) Stat(path string, followLinks bool) (os.FileInfo, error) {
	if followLinks {
		return os.Stat(path)
	}
	return os.Lstat(path)
}

func (f *OSFileSystem) ReadDir(path string) ([]Entry, error) {
	dirents, err := godirwalk.ReadDirents(path, f.scratch)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(dirents))
	for _, de := range dirents {
		entries = append(entries, Entry{
			Name:      de.Name(),
			IsDir:     de.IsDir(),
			IsSymlink: de.IsSymlink(),
		})
	}
	return entries, nil
}

func isSymlink(info os.FileInfo) bool {
	return info.Mode()&os.ModeSymlink != 0
}
