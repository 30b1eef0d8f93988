package dls

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	instpatch "github.com/instpatch/instpatch-go"
)

// growBuf is a minimal in-memory ReadWriteSeeker, matching the root
// package's and sf2's test helper.
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

func newMonoWave(t *testing.T, f *File, name string, frames int16, rate uint32) *Wave {
	t.Helper()
	pattern := make([]int16, frames)
	for i := range pattern {
		pattern[i] = int16(i * 1000)
	}
	store, err := instpatch.NewSwapStore(instpatch.FormatS16LE, int64(len(pattern)), rate)
	require.NoError(t, err)
	h, err := store.Open(instpatch.ModeWrite)
	require.NoError(t, err)
	defer h.Close()

	buf := make([]byte, len(pattern)*2)
	for i, v := range pattern {
		buf[i*2] = byte(v)
		buf[i*2+1] = byte(v >> 8)
	}
	require.NoError(t, store.Write(h, 0, int64(len(pattern)), buf))

	data := instpatch.NewSampleData(name)
	data.AddStore(store)

	w := f.AddWave(name, data)
	w.BitsPerSample = 16
	w.Channels = 1
	return w
}

func buildTestTree(t *testing.T) *File {
	t.Helper()
	f := NewFile()
	f.Info[instpatch.IDINAM] = "Test Collection"
	f.VersionMS, f.VersionLS = 1, 0

	wave := newMonoWave(t, f, "Snare", 8, 44100)
	wave.Sample.UnityNote = 60
	wave.Sample.Loops = []Loop{{Type: LoopForward, Start: 1, Length: 4}}

	inst := f.AddInstrument("Snare Kit", 0, 5, false)
	r := inst.AddRegion(wave)
	r.KeyRange = Range{38, 38}
	r.VelRange = Range{1, 127}
	r.Articulators = ArticulatorList{{Source: 1, Control: 0, Destination: 17, Transform: 0, Scale: 500}}

	return f
}

func TestDLSWriteReadRoundTrip(t *testing.T) {
	f := buildTestTree(t)

	gb := &growBuf{}
	wh := instpatch.NewFileHandle(gb, "test.dls")
	require.NoError(t, Write(f, wh))

	rh := instpatch.NewFileHandle(&growBuf{buf: gb.buf}, "test.dls")
	got, err := Read(rh)
	require.NoError(t, err)

	assert.Equal(t, "Test Collection", got.Info[instpatch.IDINAM])
	assert.Equal(t, uint32(1), got.VersionMS)

	require.Len(t, got.Waves, 1)
	w := got.Waves[0]
	assert.Equal(t, "Snare", w.Name)
	assert.Equal(t, uint16(60), w.Sample.UnityNote)
	require.Len(t, w.Sample.Loops, 1)
	assert.Equal(t, uint32(1), w.Sample.Loops[0].Start)
	assert.Equal(t, uint32(4), w.Sample.Loops[0].Length)

	require.Len(t, got.Instruments, 1)
	inst := got.Instruments[0]
	assert.Equal(t, "Snare Kit", inst.Name)
	assert.Equal(t, uint32(5), inst.Program)

	require.Len(t, inst.Regions, 1)
	r := inst.Regions[0]
	assert.Equal(t, uint8(38), r.KeyRange.Low)
	assert.Equal(t, uint8(38), r.KeyRange.High)
	require.NotNil(t, r.WaveRef)
	assert.Same(t, w, r.WaveRef)
	require.Len(t, r.Articulators, 1)
	assert.Equal(t, uint16(17), r.Articulators[0].Destination)
	assert.Equal(t, int32(500), r.Articulators[0].Scale)
}

func TestDLSPercussionBankBit(t *testing.T) {
	f := NewFile()
	inst := f.AddInstrument("Drums", 1, 0, true)

	gb := &growBuf{}
	wh := instpatch.NewFileHandle(gb, "perc.dls")
	require.NoError(t, Write(f, wh))

	rh := instpatch.NewFileHandle(&growBuf{buf: gb.buf}, "perc.dls")
	got, err := Read(rh)
	require.NoError(t, err)

	require.Len(t, got.Instruments, 1)
	assert.True(t, got.Instruments[0].Percussion)
	assert.Equal(t, uint32(1), got.Instruments[0].Bank)
	_ = inst
}

// TestDLSGigDetection confirms that a GIG-only chunk (here "3lnk", the
// GIG dimension-region header) anywhere in the tree aborts the read with
// ErrGigDetected rather than being silently misinterpreted as DLS data
// (§4.4 Scenario E).
func TestDLSGigDetection(t *testing.T) {
	gb := &growBuf{}
	h := instpatch.NewFileHandle(gb, "fake.dls")

	// RIFF 'DLS ' { '3lnk' <4 bytes> }
	require.NoError(t, h.WriteFourCC(instpatch.IDRIFF))
	require.NoError(t, h.WriteU32(4+8+4))
	require.NoError(t, h.WriteFourCC(instpatch.IDDLS))
	require.NoError(t, h.WriteFourCC(instpatch.ID3lnk))
	require.NoError(t, h.WriteU32(4))
	require.NoError(t, h.Write([]byte{0, 0, 0, 0}))

	rh := instpatch.NewFileHandle(&growBuf{buf: gb.buf}, "fake.dls")
	_, err := Read(rh)
	require.ErrorIs(t, err, instpatch.ErrGigDetected)
}
