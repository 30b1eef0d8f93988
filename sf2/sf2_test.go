package sf2

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	instpatch "github.com/instpatch/instpatch-go"
)

// growBuf is a minimal in-memory ReadWriteSeeker, mirroring the root
// package's test helper so sf2's round-trip tests don't need real files.
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

func newMonoSwapSample(t *testing.T, name string, frames int16, rate uint32) *Sample {
	t.Helper()
	store, err := instpatch.NewSwapStore(instpatch.FormatS16LE, int64(len(samplePattern(frames))), rate)
	require.NoError(t, err)
	h, err := store.Open(instpatch.ModeWrite)
	require.NoError(t, err)
	defer h.Close()

	pattern := samplePattern(frames)
	buf := make([]byte, len(pattern)*2)
	for i, v := range pattern {
		buf[i*2] = byte(v)
		buf[i*2+1] = byte(v >> 8)
	}
	require.NoError(t, store.Write(h, 0, int64(len(pattern)), buf))

	data := instpatch.NewSampleData(name)
	data.AddStore(store)

	return &Sample{Name: name, Rate: rate, RootNote: 60, ChannelRole: instpatch.ChannelMono, Data: data}
}

// samplePattern produces a short deterministic waveform for round-trip
// comparison.
func samplePattern(n int16) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(i * 100)
	}
	return out
}

func buildTestFile(t *testing.T) *File {
	t.Helper()
	f := NewFile()
	f.Info[instpatch.IDINAM] = "Test Bank"

	s := newMonoSwapSample(t, "Kick", 8, 44100)
	s.LoopStart, s.LoopEnd = 1, 6
	f.Samples = append(f.Samples, s)

	inst := f.AddInstrument("Kick Inst")
	z := inst.AddZone(s)
	z.Generators.Set(GenPan, 200)
	z.NoteRange.Set(36, 36)

	p := f.AddPreset("Kick Preset", 0, 0)
	pz := p.AddZone(inst)
	pz.Generators.Set(GenCoarseTune, 1)

	return f
}

func TestSF2WriteReadRoundTrip(t *testing.T) {
	f := buildTestFile(t)

	gb := &growBuf{}
	wh := instpatch.NewFileHandle(gb, "test.sf2")
	require.NoError(t, Write(f, wh))

	rh := instpatch.NewFileHandle(&growBuf{buf: gb.buf}, "test.sf2")
	got, err := Read(rh)
	require.NoError(t, err)

	require.Len(t, got.Samples, 1)
	assert.Equal(t, "Kick", got.Samples[0].Name)
	assert.Equal(t, uint32(44100), got.Samples[0].Rate)
	assert.Equal(t, uint8(60), got.Samples[0].RootNote)
	assert.Equal(t, int64(1), got.Samples[0].LoopStart)
	assert.Equal(t, int64(6), got.Samples[0].LoopEnd)

	require.Len(t, got.Instruments, 1)
	require.Len(t, got.Instruments[0].Zones, 1)
	iz := got.Instruments[0].Zones[0]
	assert.Equal(t, int16(200), iz.Generators.Get(GenPan))
	assert.Equal(t, uint8(36), iz.NoteRange.Low)
	assert.Equal(t, uint8(36), iz.NoteRange.High)
	assert.Same(t, got.Samples[0], iz.SampleRef)

	require.Len(t, got.Presets, 1)
	assert.Equal(t, "Kick Preset", got.Presets[0].Name)
	require.Len(t, got.Presets[0].Zones, 1)
	pz := got.Presets[0].Zones[0]
	assert.Equal(t, int16(1), pz.Generators.Get(GenCoarseTune))
	assert.Same(t, got.Instruments[0], pz.InstRef)

	assert.Equal(t, "Test Bank", got.Info[instpatch.IDINAM])
	assert.Contains(t, got.Info[instpatch.IDISFT], instpatch.LibraryName)
}

func TestSF2StereoLinkRoundTrip(t *testing.T) {
	f := NewFile()

	left := newMonoSwapSample(t, "Pad L", 4, 44100)
	left.ChannelRole = instpatch.ChannelLeft
	right := newMonoSwapSample(t, "Pad R", 4, 44100)
	right.ChannelRole = instpatch.ChannelRight
	require.NoError(t, left.SetLinked(right))

	f.Samples = append(f.Samples, left, right)
	inst := f.AddInstrument("Pad")
	inst.AddZone(left)
	inst.AddZone(right)
	p := f.AddPreset("Pad Preset", 0, 1)
	p.AddZone(inst)

	gb := &growBuf{}
	wh := instpatch.NewFileHandle(gb, "pad.sf2")
	require.NoError(t, Write(f, wh))

	rh := instpatch.NewFileHandle(&growBuf{buf: gb.buf}, "pad.sf2")
	got, err := Read(rh)
	require.NoError(t, err)

	require.Len(t, got.Samples, 2)
	l, r := got.Samples[0], got.Samples[1]
	require.NotNil(t, l.Linked)
	require.NotNil(t, r.Linked)
	assert.Same(t, r, l.Linked)
	assert.Same(t, l, r.Linked)
}

func TestSF2GlobalZoneAbsorption(t *testing.T) {
	f := buildTestFile(t)
	inst := f.Instruments[0]

	// Give the instrument a global zone (no sample reference) ahead of its
	// existing per-sample zone.
	inst.GlobalGenerators = &GenArray{}
	inst.GlobalGenerators.Set(GenPan, -100)
	inst.GlobalModulators = DefaultModulators()[:1]

	gb := &growBuf{}
	wh := instpatch.NewFileHandle(gb, "global.sf2")
	require.NoError(t, Write(f, wh))

	rh := instpatch.NewFileHandle(&growBuf{buf: gb.buf}, "global.sf2")
	got, err := Read(rh)
	require.NoError(t, err)

	require.Len(t, got.Instruments, 1)
	gi := got.Instruments[0]
	require.NotNil(t, gi.GlobalGenerators)
	assert.Equal(t, int16(-100), gi.GlobalGenerators.Get(GenPan))
	require.Len(t, gi.GlobalModulators, 1)
	require.Len(t, gi.Zones, 1)
}

func TestGenArrayMergeSemantics(t *testing.T) {
	base := &GenArray{}
	base.Set(GenPan, 100)
	base.Set(GenCoarseTune, 2)

	delta := &GenArray{}
	delta.Set(GenPan, 50)
	delta.Set(GenFineTune, 10)

	overridden := base.Clone()
	overridden.OverrideFrom(delta)
	assert.Equal(t, int16(50), overridden.Get(GenPan))
	assert.Equal(t, int16(2), overridden.Get(GenCoarseTune))
	assert.Equal(t, int16(10), overridden.Get(GenFineTune))

	added := base.Clone()
	added.AddFrom(delta)
	assert.Equal(t, int16(150), added.Get(GenPan))
	assert.Equal(t, int16(2), added.Get(GenCoarseTune))
	assert.Equal(t, int16(10), added.Get(GenFineTune))
}

func TestModListMergeSemantics(t *testing.T) {
	base := ModList{
		{Src: 1, Dest: GenPan, Amount: 100},
	}
	override := ModList{
		{Src: 1, Dest: GenPan, Amount: 50},
		{Src: 2, Dest: GenInitialAttenuation, Amount: 5},
	}

	overridden := base.Override(override)
	require.Len(t, overridden, 2)
	assert.Equal(t, int16(50), overridden[0].Amount)

	additive := base.Additive(override)
	require.Len(t, additive, 2)
	assert.Equal(t, int16(150), additive[0].Amount)
}

func newMono24SwapSample(t *testing.T, name string, values []int32, rate uint32) *Sample {
	t.Helper()
	store, err := instpatch.NewSwapStore(instpatch.FormatS24LE, int64(len(values)), rate)
	require.NoError(t, err)
	h, err := store.Open(instpatch.ModeWrite)
	require.NoError(t, err)
	defer h.Close()

	buf := make([]byte, len(values)*3)
	for i, v := range values {
		instpatch.PutFrame24At(buf, i, v)
	}
	require.NoError(t, store.Write(h, 0, int64(len(values)), buf))

	data := instpatch.NewSampleData(name)
	data.AddStore(store)

	return &Sample{Name: name, Rate: rate, RootNote: 60, ChannelRole: instpatch.ChannelMono, Data: data}
}

// TestSF2Split24RoundTrip exercises the smpl/sm24 split-sample path
// end to end (§3.5, §8 invariant 8): a 24-bit sample is written, which
// must produce both an smpl and an sm24 chunk, and read back through
// Split24Store, which reassembles the original 24-bit frame values from
// the 16-bit MSBs in smpl and the LS byte in sm24.
func TestSF2Split24RoundTrip(t *testing.T) {
	values := []int32{0, 1, -1, 1000, -1000, 8388607, -8388608, 12345}

	f := NewFile()
	f.Info[instpatch.IDINAM] = "Split24 Bank"

	s := newMono24SwapSample(t, "Strings24", values, 48000)
	s.LoopStart, s.LoopEnd = 1, int64(len(values)-1)
	f.Samples = append(f.Samples, s)

	inst := f.AddInstrument("Strings Inst")
	inst.AddZone(s)
	p := f.AddPreset("Strings Preset", 0, 2)
	p.AddZone(inst)

	gb := &growBuf{}
	wh := instpatch.NewFileHandle(gb, "split24.sf2")
	require.NoError(t, Write(f, wh))

	rh := instpatch.NewFileHandle(&growBuf{buf: gb.buf}, "split24.sf2")
	got, err := Read(rh)
	require.NoError(t, err)

	require.Len(t, got.Samples, 1)
	rs := got.Samples[0]
	assert.Equal(t, int64(len(values)-1), rs.LoopEnd)

	store := rs.Data.Best(instpatch.FormatS24LE)
	require.NotNil(t, store)
	_, ok := store.(*instpatch.Split24Store)
	require.True(t, ok, "expected the reader to reconstruct a Split24Store for a split-24 sample")
	assert.Equal(t, int64(len(values)), store.FrameCount())

	hr, err := store.Open(instpatch.ModeRead)
	require.NoError(t, err)
	defer hr.Close()

	buf := make([]byte, len(values)*3)
	require.NoError(t, store.Read(hr, 0, int64(len(values)), buf))
	for i, want := range values {
		assert.Equal(t, want, instpatch.Frame24At(buf, i), "frame %d", i)
	}
}

func TestFindPresetSlotSkipsCollisions(t *testing.T) {
	f := NewFile()
	f.AddPreset("One", 0, 0)
	f.AddPreset("Two", 0, 0) // collides, should land on program 1
	require.Len(t, f.Presets, 2)
	assert.Equal(t, 0, f.Presets[1].Bank)
	assert.Equal(t, 1, f.Presets[1].Program)
}
