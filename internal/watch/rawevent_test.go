package watch

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEvents(t *testing.T) {
	buf := EncodeEvents(
		RawEvent{Handle: 1, Mask: OpCreate | OpIsDir, Name: "a"},
		RawEvent{Handle: 2, Mask: OpMovedFrom, Cookie: 42, Name: "a-rather-long-file-name.txt"},
		RawEvent{Handle: 2, Mask: OpDeleteSelf},
		RawEvent{Handle: NoHandle, Mask: OpOverflow},
	)

	events, err := DecodeEvents(buf)
	require.NoError(t, err)
	require.Len(t, events, 4)

	assert.Equal(t, RawEvent{Handle: 1, Mask: OpCreate | OpIsDir, Name: "a"}, events[0])
	assert.Equal(t, uint32(42), events[1].Cookie)
	assert.Equal(t, "a-rather-long-file-name.txt", events[1].Name)
	assert.True(t, events[2].IsSelf())
	assert.Equal(t, NoHandle, events[3].Handle)
	assert.True(t, events[3].Mask.Has(OpOverflow))
}

func TestAppendEventPadsNames(t *testing.T) {
	buf := AppendEvent(nil, RawEvent{Handle: 1, Mask: OpCreate, Name: "x"})
	assert.Len(t, buf, rawHeaderSize+rawAlign)
	assert.Equal(t, uint32(rawAlign), binary.NativeEndian.Uint32(buf[12:16]))

	// A name filling the alignment exactly still needs its terminator.
	buf = AppendEvent(nil, RawEvent{Handle: 1, Mask: OpCreate, Name: "0123456789abcdef"})
	assert.Len(t, buf, rawHeaderSize+2*rawAlign)

	buf = AppendEvent(nil, RawEvent{Handle: 1, Mask: OpDeleteSelf})
	assert.Len(t, buf, rawHeaderSize)
}

func TestDecodeEventsEmpty(t *testing.T) {
	events, err := DecodeEvents(nil)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestDecodeEventsTruncatedHeader(t *testing.T) {
	buf := EncodeEvents(RawEvent{Handle: 1, Mask: OpCreate, Name: "ok"})
	buf = append(buf, 1, 2, 3)

	events, err := DecodeEvents(buf)
	assert.Nil(t, events, "a malformed batch must be discarded entirely")

	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Equal(t, len(buf)-3, decodeErr.Offset)
	assert.Contains(t, decodeErr.Error(), "truncated header")
}

func TestDecodeEventsNameOverrun(t *testing.T) {
	buf := EncodeEvents(RawEvent{Handle: 1, Mask: OpCreate, Name: "file"})
	binary.NativeEndian.PutUint32(buf[12:16], 4096)

	events, err := DecodeEvents(buf)
	assert.Nil(t, events)

	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Equal(t, 0, decodeErr.Offset)
}

func TestDecodeEventsNameWithoutPadding(t *testing.T) {
	hdr := make([]byte, rawHeaderSize)
	binary.NativeEndian.PutUint32(hdr[0:4], 3)
	binary.NativeEndian.PutUint32(hdr[4:8], uint32(OpModify))
	binary.NativeEndian.PutUint32(hdr[12:16], 3)
	buf := append(hdr, "abc"...)

	events, err := DecodeEvents(buf)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "abc", events[0].Name)
	assert.Equal(t, Handle(3), events[0].Handle)
}

func TestOpString(t *testing.T) {
	assert.Equal(t, "NONE", Op(0).String())
	assert.Equal(t, "CREATE", OpCreate.String())
	assert.Equal(t, "CREATE|ISDIR", (OpCreate | OpIsDir).String())
	assert.Equal(t, "MODIFY|ATTRIB|DELETE_SELF", (OpDeleteSelf | OpAttrib | OpModify).String())
}
