//go:build linux

package watch

import (
	"errors"
	"fmt"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// inotifyBufferSize holds a burst of records with maximal names.
const inotifyBufferSize = 4096 * (unix.SizeofInotifyEvent + unix.NAME_MAX + 1)

type inotifyNotifier struct {
	file *os.File
	conn syscall.RawConn
	buf  []byte
}

// NewInotifyNotifier opens an inotify instance. The descriptor is
// non-blocking and handed to the runtime poller, so Close wakes a pending
// ReadEvents.
func NewInotifyNotifier() (Notifier, error) {
	fd, err := unix.InotifyInit1(unix.IN_CLOEXEC | unix.IN_NONBLOCK)
	if err != nil {
		return nil, os.NewSyscallError("inotify_init1", err)
	}
	file := os.NewFile(uintptr(fd), "inotify")
	conn, err := file.SyscallConn()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("inotify descriptor: %w", err)
	}
	return &inotifyNotifier{
		file: file,
		conn: conn,
		buf:  make([]byte, inotifyBufferSize),
	}, nil
}

// control runs fn with the descriptor, which stays open for its duration.
func (n *inotifyNotifier) control(fn func(fd int)) error {
	err := n.conn.Control(func(fd uintptr) { fn(int(fd)) })
	if errors.Is(err, os.ErrClosed) {
		return ErrClosed
	}
	return err
}

func (n *inotifyNotifier) AddWatch(path string, mask Op) (Handle, error) {
	var (
		wd     int
		addErr error
	)
	err := n.control(func(fd int) {
		wd, addErr = unix.InotifyAddWatch(fd, path, uint32(mask)|unix.IN_ONLYDIR)
	})
	if err != nil {
		return NoHandle, err
	}
	if addErr != nil {
		return NoHandle, os.NewSyscallError("inotify_add_watch", addErr)
	}
	return Handle(wd), nil
}

func (n *inotifyNotifier) RemoveWatch(h Handle) error {
	var rmErr error
	err := n.control(func(fd int) {
		_, rmErr = unix.InotifyRmWatch(fd, uint32(h))
	})
	if err != nil {
		return err
	}
	if rmErr != nil {
		return os.NewSyscallError("inotify_rm_watch", rmErr)
	}
	return nil
}

func (n *inotifyNotifier) ReadEvents() ([]byte, error) {
	nread, err := n.file.Read(n.buf)
	if err != nil {
		if errors.Is(err, os.ErrClosed) {
			return nil, ErrClosed
		}
		return nil, err
	}
	return n.buf[:nread], nil
}

func (n *inotifyNotifier) Close() error {
	err := n.file.Close()
	if errors.Is(err, os.ErrClosed) {
		return nil
	}
	return err
}
