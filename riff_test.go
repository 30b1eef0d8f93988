package instpatch

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// growBuf is a minimal in-memory ReadWriteSeeker backed by a []byte that
// grows on write, used by the writer round-trip tests.
type growBuf struct {
	buf []byte
	pos int64
}

func (g *growBuf) Read(p []byte) (int, error) {
	if g.pos >= int64(len(g.buf)) {
		return 0, io.EOF
	}
	n := copy(p, g.buf[g.pos:])
	g.pos += int64(n)
	return n, nil
}

func (g *growBuf) Write(p []byte) (int, error) {
	end := g.pos + int64(len(p))
	if end > int64(len(g.buf)) {
		grown := make([]byte, end)
		copy(grown, g.buf)
		g.buf = grown
	}
	copy(g.buf[g.pos:end], p)
	g.pos = end
	return len(p), nil
}

func (g *growBuf) Seek(offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case 0:
		base = 0
	case 1:
		base = g.pos
	case 2:
		base = int64(len(g.buf))
	}
	g.pos = base + offset
	return g.pos, nil
}

func buildMiniRIFF(t *testing.T) []byte {
	t.Helper()
	h := NewFileHandle(&growBuf{}, "mini.bin")
	e, err := NewWriteEngine(h, FourCCFromString("TEST"))
	require.NoError(t, err)

	require.NoError(t, e.StartList(FourCCFromString("INFO")))
	require.NoError(t, e.StartSub(FourCCFromString("ICMT")))
	require.NoError(t, e.WriteBytes([]byte("hello"))) // odd length, exercises padding
	require.NoError(t, e.CloseChunk())
	require.NoError(t, e.CloseChunk())

	require.NoError(t, e.StartSub(FourCCFromString("data")))
	require.NoError(t, e.WriteBytes([]byte{1, 2, 3, 4}))
	require.NoError(t, e.CloseChunk())

	require.NoError(t, e.CloseChunk()) // root

	return h.f.(*growBuf).buf
}

func TestEngineWriteThenReadRoundTrip(t *testing.T) {
	raw := buildMiniRIFF(t)

	h := NewFileHandle(&growBuf{buf: raw}, "mini.bin")
	e := NewReadEngine(h)

	root, err := e.ReadChunkVerify(ChunkRIFF, FourCCFromString("TEST"))
	require.NoError(t, err)
	assert.Equal(t, uint32(len(raw)-8), root.DeclaredSize)

	info, err := e.ReadChunkVerify(ChunkLIST, FourCCFromString("INFO"))
	require.NoError(t, err)
	_ = info

	icmt, err := e.ReadChunkVerify(ChunkSUB, FourCCFromString("ICMT"))
	require.NoError(t, err)
	b, err := e.ReadBytes(int(icmt.PayloadSize()))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(b))
	require.NoError(t, e.EndChunk())
	require.NoError(t, e.EndChunk()) // close INFO

	data, err := e.ReadChunkVerify(ChunkSUB, FourCCFromString("data"))
	require.NoError(t, err)
	b, err = e.ReadBytes(int(data.PayloadSize()))
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, b)
	require.NoError(t, e.EndChunk())

	next, err := e.ReadChunk()
	require.NoError(t, err)
	assert.Nil(t, next, "no more chunks at root level")

	require.NoError(t, e.EndChunk()) // close root
}

func TestEnginePushPopState(t *testing.T) {
	raw := buildMiniRIFF(t)
	h := NewFileHandle(&growBuf{buf: raw}, "mini.bin")
	e := NewReadEngine(h)

	_, err := e.ReadChunkVerify(ChunkRIFF, FourCCFromString("TEST"))
	require.NoError(t, err)
	_, err = e.ReadChunkVerify(ChunkLIST, FourCCFromString("INFO"))
	require.NoError(t, err)

	st, err := e.PushState()
	require.NoError(t, err)

	// Jump ahead: read and fully consume ICMT.
	icmt, err := e.ReadChunkVerify(ChunkSUB, FourCCFromString("ICMT"))
	require.NoError(t, err)
	_, err = e.ReadBytes(int(icmt.PayloadSize()))
	require.NoError(t, err)
	require.NoError(t, e.EndChunk())
	require.NoError(t, e.EndChunk())

	// Rewind: re-read the very same ICMT chunk from the saved position.
	require.NoError(t, e.PopState(st))
	icmt2, err := e.ReadChunkVerify(ChunkSUB, FourCCFromString("ICMT"))
	require.NoError(t, err)
	b, err := e.ReadBytes(int(icmt2.PayloadSize()))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(b))
}

func TestChunkDepthAndGetChunk(t *testing.T) {
	raw := buildMiniRIFF(t)
	h := NewFileHandle(&growBuf{buf: raw}, "mini.bin")
	e := NewReadEngine(h)

	_, err := e.ReadChunkVerify(ChunkRIFF, FourCCFromString("TEST"))
	require.NoError(t, err)
	assert.Equal(t, 1, e.Depth())

	_, err = e.ReadChunkVerify(ChunkLIST, FourCCFromString("INFO"))
	require.NoError(t, err)
	assert.Equal(t, 2, e.Depth())
	assert.Equal(t, ChunkRIFF, e.GetChunk(0).Kind)
	assert.Equal(t, ChunkLIST, e.GetChunk(-1).Kind)
}
