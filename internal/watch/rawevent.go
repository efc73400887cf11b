package watch

import (
	"bytes"
	"encoding/binary"
	"strings"
)

// Handle identifies one active watch on a directory.
type Handle int32

// NoHandle is the handle carried by queue-level records such as overflow.
const NoHandle Handle = -1

// Op is the set of kernel action flags carried by a raw event. The values
// follow the Linux inotify ABI so buffers can be decoded on any platform.
type Op uint32

const (
	OpAccess       Op = 0x00000001
	OpModify       Op = 0x00000002
	OpAttrib       Op = 0x00000004
	OpCloseWrite   Op = 0x00000008
	OpCloseNoWrite Op = 0x00000010
	OpOpen         Op = 0x00000020
	OpMovedFrom    Op = 0x00000040
	OpMovedTo      Op = 0x00000080
	OpCreate       Op = 0x00000100
	OpDelete       Op = 0x00000200
	OpDeleteSelf   Op = 0x00000400
	OpMoveSelf     Op = 0x00000800
	OpUnmount      Op = 0x00002000
	OpOverflow     Op = 0x00004000
	OpIgnored      Op = 0x00008000
	OpIsDir        Op = 0x40000000
)

// WatchMask is the set of flags requested for every watched directory.
const WatchMask = OpModify | OpAttrib | OpMovedFrom | OpMovedTo |
	OpCreate | OpDelete | OpDeleteSelf | OpMoveSelf

var opNames = []struct {
	op   Op
	name string
}{
	{OpAccess, "ACCESS"},
	{OpModify, "MODIFY"},
	{OpAttrib, "ATTRIB"},
	{OpCloseWrite, "CLOSE_WRITE"},
	{OpCloseNoWrite, "CLOSE_NOWRITE"},
	{OpOpen, "OPEN"},
	{OpMovedFrom, "MOVED_FROM"},
	{OpMovedTo, "MOVED_TO"},
	{OpCreate, "CREATE"},
	{OpDelete, "DELETE"},
	{OpDeleteSelf, "DELETE_SELF"},
	{OpMoveSelf, "MOVE_SELF"},
	{OpUnmount, "UNMOUNT"},
	{OpOverflow, "Q_OVERFLOW"},
	{OpIgnored, "IGNORED"},
	{OpIsDir, "ISDIR"},
}

// Has reports whether any flag of o is set.
func (op Op) Has(o Op) bool { return op&o != 0 }

// String renders the set flags joined by "|".
func (op Op) String() string {
	var parts []string
	for _, n := range opNames {
		if op&n.op != 0 {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "NONE"
	}
	return strings.Join(parts, "|")
}

// RawEvent is one decoded kernel record.
type RawEvent struct {
	Handle Handle
	Mask   Op
	// Cookie pairs the moved-from and moved-to halves of a rename; zero means none.
	Cookie uint32
	// Name is relative to the watched directory and empty for self events.
	Name string
}

// IsSelf reports whether the event concerns the watched directory itself.
func (e RawEvent) IsSelf() bool { return e.Name == "" }

const (
	// rawHeaderSize is sizeof(struct inotify_event) without the name.
	rawHeaderSize = 16
	// rawAlign is the boundary names are padded to.
	rawAlign = rawHeaderSize
)

// DecodeEvents parses a buffer of consecutive records. Every header and
// name length is checked against the remaining bytes before use; on any
// inconsistency nothing is returned and the error is a *DecodeError.
func DecodeEvents(buf []byte) ([]RawEvent, error) {
	var events []RawEvent
	for off := 0; off < len(buf); {
		if len(buf)-off < rawHeaderSize {
			return nil, &DecodeError{Offset: off, Len: len(buf), Reason: "truncated header"}
		}
		hdr := buf[off : off+rawHeaderSize]
		ev := RawEvent{
			Handle: Handle(int32(binary.NativeEndian.Uint32(hdr[0:4]))),
			Mask:   Op(binary.NativeEndian.Uint32(hdr[4:8])),
			Cookie: binary.NativeEndian.Uint32(hdr[8:12]),
		}
		nameLen := int(binary.NativeEndian.Uint32(hdr[12:16]))
		off += rawHeaderSize
		if nameLen < 0 || nameLen > len(buf)-off {
			return nil, &DecodeError{Offset: off - rawHeaderSize, Len: len(buf), Reason: "name length exceeds buffer"}
		}
		name := buf[off : off+nameLen]
		if i := bytes.IndexByte(name, 0); i >= 0 {
			name = name[:i]
		}
		ev.Name = string(name)
		off += nameLen
		events = append(events, ev)
	}
	return events, nil
}

// AppendEvent encodes ev in the kernel layout, padding the name with NULs
// to the record alignment.
func AppendEvent(buf []byte, ev RawEvent) []byte {
	nameLen := 0
	if ev.Name != "" {
		nameLen = (len(ev.Name) + 1 + rawAlign - 1) / rawAlign * rawAlign
	}
	buf = binary.NativeEndian.AppendUint32(buf, uint32(int32(ev.Handle)))
	buf = binary.NativeEndian.AppendUint32(buf, uint32(ev.Mask))
	buf = binary.NativeEndian.AppendUint32(buf, ev.Cookie)
	buf = binary.NativeEndian.AppendUint32(buf, uint32(nameLen))
	buf = append(buf, ev.Name...)
	for i := len(ev.Name); i < nameLen; i++ {
		buf = append(buf, 0)
	}
	return buf
}

// EncodeEvents encodes a batch of records.
func EncodeEvents(events ...RawEvent) []byte {
	var buf []byte
	for _, ev := range events {
		buf = AppendEvent(buf, ev)
	}
	return buf
}
