package voicecache

import (
	instpatch "github.com/instpatch/instpatch-go"
	dls "github.com/instpatch/instpatch-go/dls"
	"github.com/instpatch/instpatch-go/sf2"
)

// DLS has no preset/instrument split the way SF2 does: an Instrument's
// regions are directly addressable by (bank, program), so each region
// flattens into exactly one voice rather than a (PresetZone, InstZone)
// pair (§4.5: "analogous... sourced from the DLS parameter array").
//
// dlsDestToGen maps a DLS articulator Connection.Destination to the SF2
// generator it corresponds to, limited to the handful of destinations
// whose semantics are unambiguous cross-format (§6.1's "published
// mapping"). A connection whose destination isn't in this table is
// preserved verbatim on the voice's UnmappedArticulators rather than
// silently dropped; see DESIGN.md's Open Question decision on this
// mapping's limited scope.
var dlsDestToGen = map[uint16]sf2.GenID{
	0x0001: sf2.GenInitialAttenuation, // CONN_DST_ATTENUATION
	0x0003: sf2.GenPitchDest,          // CONN_DST_PITCH
	0x0004: sf2.GenPan,                // CONN_DST_PAN
	0x0080: sf2.GenChorusEffectsSend,  // CONN_DST_CHORUS
	0x0081: sf2.GenReverbEffectsSend,  // CONN_DST_REVERB
}

// translateConnections splits arts into the subset translatable to SF2
// modulators and the remainder, preserved opaquely.
func translateConnections(arts dls.ArticulatorList) (sf2.ModList, dls.ArticulatorList) {
	var mods sf2.ModList
	var unmapped dls.ArticulatorList
	for _, c := range arts {
		dest, ok := dlsDestToGen[c.Destination]
		if !ok {
			unmapped = append(unmapped, c)
			continue
		}
		mods = append(mods, sf2.Modulator{
			Src:       sf2.ModSrc(c.Source),
			Dest:      dest,
			Amount:    int16(c.Scale),
			AmountSrc: sf2.ModSrc(c.Control),
			Transform: sf2.TransformLinear,
		})
	}
	return mods, unmapped
}

// DLSOption configures FlattenDLS.
type DLSOption func(*dlsOptions)

type dlsOptions struct {
	soloInst *dls.Instrument
}

// WithSoloDLSInstrument restricts flattening to inst's regions.
func WithSoloDLSInstrument(inst *dls.Instrument) DLSOption {
	return func(o *dlsOptions) { o.soloInst = inst }
}

// FlattenDLS flattens f's instrument/region tree into a VoiceCache. Each
// region with a wave reference becomes one voice; a region's key/velocity
// range becomes the voice's selection ranges directly (DLS has no
// preset-level offset to merge in), and the instrument's global
// articulators merge under the region's own (override, per §4.5's
// "analogous" rule applied at this single level).
func FlattenDLS(f *dls.File, opts ...DLSOption) (*VoiceCache, error) {
	var o dlsOptions
	for _, opt := range opts {
		opt(&o)
	}

	f.RLock()
	defer f.RUnlock()

	cache := &VoiceCache{
		Dimensions: []SelectionDim{{Type: DimNote}, {Type: DimVelocity}},
	}

	insts := f.Instruments
	if o.soloInst != nil {
		insts = []*dls.Instrument{o.soloInst}
	}

	for _, inst := range insts {
		for _, r := range inst.Regions {
			voice, ok := flattenDLSRegion(inst, r)
			if !ok {
				continue
			}
			cache.Voices = append(cache.Voices, voice)
		}
	}

	return cache, nil
}

func flattenDLSRegion(inst *dls.Instrument, r *dls.Region) (*Voice, bool) {
	wave := r.WaveRef
	if wave == nil {
		return nil, false
	}

	gens := &sf2.GenArray{}
	gens.SetRange(sf2.GenKeyRange, r.KeyRange.Low, r.KeyRange.High)
	gens.SetRange(sf2.GenVelRange, r.VelRange.Low, r.VelRange.High)

	globalMods, globalUnmapped := translateConnections(inst.GlobalArticulators)
	regionMods, regionUnmapped := translateConnections(r.Articulators)
	mods := sf2.DefaultModulators().Override(globalMods).Override(regionMods)
	unmapped := append(append(dls.ArticulatorList(nil), globalUnmapped...), regionUnmapped...)

	sample := pickWaveSample(r.Sample, wave.Sample)
	rate := waveRate(wave)
	loopStart, loopEnd := loopRange(sample)

	return &Voice{
		Gens:                 gens,
		Mods:                 mods,
		Ranges:               []Range{{r.KeyRange.Low, r.KeyRange.High}, {r.VelRange.Low, r.VelRange.High}},
		Data:                 wave.Data,
		Rate:                 rate,
		LoopStart:            loopStart,
		LoopEnd:              loopEnd,
		RootNote:             uint8(sample.UnityNote),
		FineTune:             int8(sample.FineTune / 100),
		UnmappedArticulators: unmapped,
	}, true
}

// pickWaveSample prefers the region-level WSMP override over the wave's
// own, when the region actually carries one. DLS's optional wsmp chunk
// means a genuinely-present all-zero override and an absent override are
// indistinguishable once parsed into a WaveSample value; this treats a
// non-zero-valued region WaveSample as "present," a known limitation
// shared with the region/wave WSMP fields themselves.
func pickWaveSample(region, wave dls.WaveSample) dls.WaveSample {
	if region.UnityNote != 0 || region.FineTune != 0 || region.Gain != 0 || len(region.Loops) > 0 {
		return region
	}
	return wave
}

func loopRange(ws dls.WaveSample) (start, end int64) {
	if len(ws.Loops) == 0 {
		return 0, 0
	}
	l := ws.Loops[0]
	return int64(l.Start), int64(l.Start + l.Length)
}

func waveRate(w *dls.Wave) uint32 {
	if w.Data == nil {
		return 0
	}
	format := instpatch.FormatS16LE
	if w.BitsPerSample == 8 {
		format = instpatch.FormatU8
	}
	store := w.Data.Best(format)
	if store == nil {
		return 0
	}
	return store.SampleRate()
}
