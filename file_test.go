package instpatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileHandleBufferedStaging(t *testing.T) {
	h := NewFileHandle(&growBuf{buf: []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x01, 0x02}}, "buf.bin")

	require.NoError(t, h.BufLoad(6))
	b, err := h.BufReadU16()
	require.NoError(t, err)
	assert.Equal(t, uint16(0xADDE), b)

	u32, err := h.BufReadU32()
	require.NoError(t, err)
	assert.Equal(t, uint32(0x0201EFBE), u32)
}

func TestFileHandleBufferedWriteCommit(t *testing.T) {
	gb := &growBuf{}
	h := NewFileHandle(gb, "buf.bin")

	h.BufReset(4)
	require.NoError(t, h.BufWriteU16(0x1234))
	require.NoError(t, h.BufWriteU16(0x5678))
	require.NoError(t, h.BufCommit())

	assert.Equal(t, []byte{0x34, 0x12, 0x78, 0x56}, gb.buf)
}

func TestFileHandleRefCounting(t *testing.T) {
	h := NewFileHandle(&growBuf{}, "ref.bin")
	h.Acquire()
	h.Acquire()
	assert.Equal(t, int64(2), h.RefCount())
	require.NoError(t, h.Release())
	assert.Equal(t, int64(1), h.RefCount())
}

func TestIdentifyByExtensionOnly(t *testing.T) {
	format, ok := Identify(nil, "patch.sf2")
	require.True(t, ok)
	assert.Equal(t, "sf2", format)

	format, ok = Identify(nil, "patch.gig")
	require.True(t, ok)
	assert.Equal(t, "gig", format)

	_, ok = Identify(nil, "patch.unknown")
	assert.False(t, ok)
}

func TestIdentifyByMagicBytes(t *testing.T) {
	buf := &growBuf{}
	h := NewFileHandle(buf, "patch.sf2")
	require.NoError(t, h.WriteFourCC(IDRIFF))
	require.NoError(t, h.WriteU32(4))
	require.NoError(t, h.WriteFourCC(IDsfbk))

	format, ok := Identify(h, "whatever.sf2")
	require.True(t, ok)
	assert.Equal(t, "sf2", format)
}

func TestIdentifyGigRequiresBothMagicAndExtension(t *testing.T) {
	buf := &growBuf{}
	h := NewFileHandle(buf, "patch.dls")
	require.NoError(t, h.WriteFourCC(IDRIFF))
	require.NoError(t, h.WriteU32(4))
	require.NoError(t, h.WriteFourCC(IDDLS))

	format, ok := Identify(h, "patch.dls")
	require.True(t, ok)
	assert.Equal(t, "dls", format)

	format, ok = Identify(h, "patch.gig")
	require.True(t, ok)
	assert.Equal(t, "gig", format)
}
