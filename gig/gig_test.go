package gig

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dls "github.com/instpatch/instpatch-go/dls"
	instpatch "github.com/instpatch/instpatch-go"
)

// growBuf is a minimal in-memory ReadWriteSeeker, matching the dls/sf2/root
// test helper of the same name.
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

func newMonoWave(t *testing.T, f *File, name string, frames int16, rate uint32) *dls.Wave {
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
	f.VersionMS = 1

	soft := newMonoWave(t, f, "Snare Soft", 4, 44100)
	hard := newMonoWave(t, f, "Snare Hard", 4, 44100)

	inst := f.AddInstrument("Snare Kit", 0, 5, false)
	r := inst.AddRegion(nil)
	r.KeyRange = dls.Range{Low: 38, High: 38}
	r.VelRange = dls.Range{Low: 0, High: 127}

	ext := f.RegionExtFor(r)
	ext.Dimensions = []DimensionDef{{Type: DimVelocity, Bits: 1, Zones: 2}}
	ext.ExclusiveGroupRaw = []byte{1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}
	f.AddSubRegion(r, soft, []uint8{0})
	sr := f.AddSubRegion(r, hard, []uint8{1})
	sr.EffectRaw = make([]byte, ewaRecordSize)
	sr.EffectRaw[0] = 0x7F

	f.WaveExtFor(hard).SamplerRaw = make([]byte, smplRecordSize)
	f.WaveExtFor(hard).GroupIndexRaw = []byte{0, 0, 0, 0}

	f.SampleGroups = []SampleGroup{{Name: "Drums"}}
	f.DimensionNamesRaw = []byte("velocity\x00")

	return f
}

func TestGigWriteReadRoundTrip(t *testing.T) {
	f := buildTestTree(t)

	gb := &growBuf{}
	wh := instpatch.NewFileHandle(gb, "test.gig")
	require.NoError(t, Write(f, wh))

	rh := instpatch.NewFileHandle(&growBuf{buf: gb.buf}, "test.gig")
	got, err := Read(rh)
	require.NoError(t, err)

	assert.Equal(t, "Test Collection", got.Info[instpatch.IDINAM])
	require.Len(t, got.Waves, 2)
	require.Len(t, got.Instruments, 1)

	inst := got.Instruments[0]
	require.Len(t, inst.Regions, 1)
	r := inst.Regions[0]

	ext, ok := got.RegionExts[r]
	require.True(t, ok)
	require.Len(t, ext.Dimensions, 1)
	assert.Equal(t, DimVelocity, ext.Dimensions[0].Type)
	assert.Equal(t, []byte{1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}, ext.ExclusiveGroupRaw)

	require.Len(t, ext.SubRegions, 2)
	assert.Same(t, got.Waves[0], ext.SubRegions[0].Wave)
	assert.Same(t, got.Waves[1], ext.SubRegions[1].Wave)
	require.Len(t, ext.SubRegions[1].EffectRaw, ewaRecordSize)
	assert.Equal(t, byte(0x7F), ext.SubRegions[1].EffectRaw[0])

	waveExt, ok := got.WaveExts[got.Waves[1]]
	require.True(t, ok)
	assert.Len(t, waveExt.SamplerRaw, smplRecordSize)
	assert.Equal(t, []byte{0, 0, 0, 0}, waveExt.GroupIndexRaw)

	require.Len(t, got.SampleGroups, 1)
	assert.Equal(t, "Drums", got.SampleGroups[0].Name)
	assert.Equal(t, f.DimensionNamesRaw, got.DimensionNamesRaw)
}

// TestGigModeDoesNotAbortOnGigChunks confirms a GIG-only chunk (3lnk) does
// not trip any DLS-reader-style gig-detection error here: the gig package
// IS the GIG-mode reader, unlike dls.Read (§4.4 Scenario E).
func TestGigModeDoesNotAbortOnGigChunks(t *testing.T) {
	f := buildTestTree(t)

	gb := &growBuf{}
	wh := instpatch.NewFileHandle(gb, "test.gig")
	require.NoError(t, Write(f, wh))

	rh := instpatch.NewFileHandle(&growBuf{buf: gb.buf}, "test.gig")
	_, err := Read(rh)
	require.NoError(t, err)
}
