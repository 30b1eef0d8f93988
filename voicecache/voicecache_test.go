package voicecache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	instpatch "github.com/instpatch/instpatch-go"
	dls "github.com/instpatch/instpatch-go/dls"
	"github.com/instpatch/instpatch-go/gig"
	"github.com/instpatch/instpatch-go/sf2"
)

func TestFlattenSF2MergesGeneratorsAndIntersectsRange(t *testing.T) {
	f := sf2.NewFile()
	sample := f.AddSample("Piano", nil)
	sample.Rate = 44100
	sample.RootNote = 60
	sample.LoopStart = 100
	sample.LoopEnd = 200

	inst := f.AddInstrument("Piano Inst")
	iz := inst.AddZone(sample)
	iz.NoteRange.Set(0, 60)
	iz.Generators.Set(sf2.GenInitialAttenuation, 50)

	preset := f.AddPreset("Piano Preset", 0, 0)
	pz := preset.AddZone(inst)
	pz.NoteRange.Set(40, 127)
	pz.Generators.Set(sf2.GenCoarseTune, 12)

	cache, err := FlattenSF2(f)
	require.NoError(t, err)
	require.Len(t, cache.Voices, 1)

	v := cache.Voices[0]
	assert.Equal(t, Range{40, 60}, v.NoteRange())
	assert.Equal(t, Range{0, 127}, v.VelRange())
	assert.Equal(t, int16(50), v.Gens.Get(sf2.GenInitialAttenuation))
	assert.Equal(t, int16(12), v.Gens.Get(sf2.GenCoarseTune))
	assert.EqualValues(t, 44100, v.Rate)
	assert.EqualValues(t, 100, v.LoopStart)
	assert.EqualValues(t, 200, v.LoopEnd)
	assert.Equal(t, uint8(60), v.RootNote)
}

func TestFlattenSF2SkipsDisjointRange(t *testing.T) {
	f := sf2.NewFile()
	sample := f.AddSample("Strings", nil)

	inst := f.AddInstrument("Strings Inst")
	iz := inst.AddZone(sample)
	iz.NoteRange.Set(0, 30)

	preset := f.AddPreset("Strings Preset", 0, 1)
	pz := preset.AddZone(inst)
	pz.NoteRange.Set(40, 127)

	cache, err := FlattenSF2(f)
	require.NoError(t, err)
	assert.Empty(t, cache.Voices)
}

func TestFlattenSF2ModulatorMergeChain(t *testing.T) {
	f := sf2.NewFile()
	sample := f.AddSample("Lead", nil)

	inst := f.AddInstrument("Lead Inst")
	inst.GlobalModulators = sf2.ModList{
		{Src: 0x0502, Dest: sf2.GenInitialAttenuation, Amount: 100, Transform: sf2.TransformLinear},
	}
	iz := inst.AddZone(sample)

	preset := f.AddPreset("Lead Preset", 0, 2)
	preset.GlobalModulators = sf2.ModList{
		{Src: 0x0502, Dest: sf2.GenInitialAttenuation, Amount: 50, Transform: sf2.TransformLinear},
	}
	pz := preset.AddZone(inst)

	cache, err := FlattenSF2(f)
	require.NoError(t, err)
	require.Len(t, cache.Voices, 1)

	v := cache.Voices[0]
	var found bool
	for _, m := range v.Mods {
		if m.Src == 0x0502 && m.Dest == sf2.GenInitialAttenuation {
			// The default modulator list already carries this (src, dest)
			// identity at amount 960; instrument override replaces it with
			// 100, then preset's additive contributes +50.
			assert.Equal(t, int16(150), m.Amount)
			found = true
		}
	}
	assert.True(t, found)
	_ = iz
	_ = pz
}

func TestFlattenSF2SoloPreset(t *testing.T) {
	f := sf2.NewFile()
	sample := f.AddSample("Pad", nil)
	inst := f.AddInstrument("Pad Inst")
	inst.AddZone(sample)

	presetA := f.AddPreset("Pad A", 0, 0)
	presetA.AddZone(inst)
	presetB := f.AddPreset("Pad B", 0, 1)
	presetB.AddZone(inst)

	cache, err := FlattenSF2(f, WithSoloPreset(presetA))
	require.NoError(t, err)
	assert.Len(t, cache.Voices, 1)
}

func newDLSWave(t *testing.T, f *dls.File, name string, frames int64, rate uint32) *dls.Wave {
	t.Helper()
	store, err := instpatch.NewSwapStore(instpatch.FormatS16LE, frames, rate)
	require.NoError(t, err)
	data := instpatch.NewSampleData(name)
	data.AddStore(store)
	w := f.AddWave(name, data)
	w.BitsPerSample = 16
	w.Channels = 1
	return w
}

func TestFlattenDLSRegionAndArticulatorMapping(t *testing.T) {
	f := dls.NewFile()
	wave := newDLSWave(t, f, "Kick", 8, 44100)

	inst := f.AddInstrument("Drums", 0, 0, true)
	r := inst.AddRegion(wave)
	r.KeyRange = dls.Range{Low: 36, High: 36}
	r.VelRange = dls.Range{Low: 0, High: 127}
	r.Sample.Loops = []dls.Loop{{Type: dls.LoopForward, Start: 2, Length: 4}}
	r.Articulators = dls.ArticulatorList{
		{Source: 0x0002, Control: 0, Destination: 0x0001, Scale: 500}, // attenuation, mapped
		{Source: 0x0002, Control: 0, Destination: 0x0104, Scale: 10},  // LFO freq, unmapped
	}

	cache, err := FlattenDLS(f)
	require.NoError(t, err)
	require.Len(t, cache.Voices, 1)

	v := cache.Voices[0]
	assert.Equal(t, Range{36, 36}, v.NoteRange())
	assert.EqualValues(t, 44100, v.Rate)
	assert.EqualValues(t, 2, v.LoopStart)
	assert.EqualValues(t, 6, v.LoopEnd)
	require.Len(t, v.UnmappedArticulators, 1)
	assert.EqualValues(t, 0x0104, v.UnmappedArticulators[0].Destination)

	var sawAttenuation bool
	for _, m := range v.Mods {
		if m.Dest == sf2.GenInitialAttenuation && m.Amount == 500 {
			sawAttenuation = true
		}
	}
	assert.True(t, sawAttenuation)
}

func TestFlattenGigSubRegionsSplitVelocity(t *testing.T) {
	f := gig.NewFile()
	soft := newDLSWave(t, f.File, "Soft", 4, 44100)
	hard := newDLSWave(t, f.File, "Hard", 4, 44100)

	inst := f.AddInstrument("Snare Kit", 0, 5, false)
	r := inst.AddRegion(nil)
	r.KeyRange = dls.Range{Low: 38, High: 38}
	r.VelRange = dls.Range{Low: 0, High: 127}

	ext := f.RegionExtFor(r)
	ext.Dimensions = []gig.DimensionDef{{Type: gig.DimVelocity, Bits: 1, Zones: 2}}
	f.AddSubRegion(r, soft, []uint8{0})
	f.AddSubRegion(r, hard, []uint8{1})

	cache, err := FlattenGig(f)
	require.NoError(t, err)
	require.Len(t, cache.Voices, 2)

	assert.Equal(t, Range{0, 63}, cache.Voices[0].VelRange())
	assert.Equal(t, Range{64, 127}, cache.Voices[1].VelRange())
	assert.Same(t, soft.Data, cache.Voices[0].Data)
	assert.Same(t, hard.Data, cache.Voices[1].Data)
}

func TestFlattenGigRegionWithoutSubRegionsActsLikeDLS(t *testing.T) {
	f := gig.NewFile()
	wave := newDLSWave(t, f.File, "Tom", 4, 44100)

	inst := f.AddInstrument("Toms", 0, 6, false)
	r := inst.AddRegion(wave)
	r.KeyRange = dls.Range{Low: 45, High: 45}

	cache, err := FlattenGig(f)
	require.NoError(t, err)
	require.Len(t, cache.Voices, 1)
	assert.Equal(t, Range{45, 45}, cache.Voices[0].NoteRange())
}
