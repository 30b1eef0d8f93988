package voicecache

import (
	"github.com/instpatch/instpatch-go/sf2"
)

// SF2Option configures FlattenSF2.
type SF2Option func(*sf2Options)

type sf2Options struct {
	soloPreset   *sf2.Preset
	soloInst     *sf2.Instrument
	overrideMods sf2.ModList
}

// WithSoloPreset restricts flattening to zones reachable from p, per §4.5's
// "if a solo sub-item was specified at construction, only zones under that
// sub-item contribute."
func WithSoloPreset(p *sf2.Preset) SF2Option {
	return func(o *sf2Options) { o.soloPreset = p }
}

// WithSoloInstrument further restricts flattening to preset zones
// referencing inst.
func WithSoloInstrument(inst *sf2.Instrument) SF2Option {
	return func(o *sf2Options) { o.soloInst = inst }
}

// WithOverrideModulators supplies the cache-level override stage of §4.5's
// modulator merge chain (the final "cache-level-override" link).
func WithOverrideModulators(mods sf2.ModList) SF2Option {
	return func(o *sf2Options) { o.overrideMods = mods }
}

// FlattenSF2 flattens f's preset/instrument zone hierarchy into a
// VoiceCache, per §4.5's SF2 flattening algorithm: for each (PresetZone,
// InstZone) pair, generators merge instrument-first then preset-as-offset
// (with NOTE_RANGE/VELOCITY_RANGE intersected instead of offset, dropping
// the voice if the intersection is empty), and modulators merge through
// the six-stage default/override/override/additive/additive/override
// chain.
func FlattenSF2(f *sf2.File, opts ...SF2Option) (*VoiceCache, error) {
	var o sf2Options
	for _, opt := range opts {
		opt(&o)
	}

	f.RLock()
	defer f.RUnlock()

	cache := &VoiceCache{
		Dimensions: []SelectionDim{{Type: DimNote}, {Type: DimVelocity}},
	}

	presets := f.Presets
	if o.soloPreset != nil {
		presets = []*sf2.Preset{o.soloPreset}
	}

	for _, preset := range presets {
		for _, pz := range preset.Zones {
			inst := pz.InstRef
			if inst == nil {
				continue
			}
			if o.soloInst != nil && inst != o.soloInst {
				continue
			}
			for _, iz := range inst.Zones {
				voice, ok := flattenSF2Voice(preset, pz, inst, iz, o.overrideMods)
				if !ok {
					continue
				}
				cache.Voices = append(cache.Voices, voice)
			}
		}
	}

	return cache, nil
}

func flattenSF2Voice(preset *sf2.Preset, pz *sf2.PresetZone, inst *sf2.Instrument, iz *sf2.InstZone, overrideMods sf2.ModList) (*Voice, bool) {
	sample := iz.SampleRef
	if sample == nil {
		return nil, false
	}

	// Step 1a/1b: copy the instrument's absorbed global zone, then
	// overwrite with this instrument zone (§4.5 step 1b).
	instGens := cloneOrEmptyGens(inst.GlobalGenerators)
	instGens.OverrideFrom(iz.Generators)

	// Step 1c: the preset side merges the same way, but contributes to the
	// voice as an additive offset rather than an overwrite.
	presetGens := cloneOrEmptyGens(preset.GlobalGenerators)
	presetGens.OverrideFrom(pz.Generators)

	// Ranges live on the zone's own NoteRange/VelRange fields, not inside
	// Generators: AddZone-built zones only ever populate the former (see
	// writer_pdta.go's effectiveRanges, which derives the disk generator
	// from these fields, not the reverse), so those fields — not a
	// GenArray lookup — are the range source of truth here.
	instNote := Range(iz.NoteRange)
	instVel := Range(iz.VelRange)
	presetNote := Range(pz.NoteRange)
	presetVel := Range(pz.VelRange)

	noteRange, ok := instNote.Intersect(presetNote)
	if !ok {
		return nil, false
	}
	velRange, ok := instVel.Intersect(presetVel)
	if !ok {
		return nil, false
	}

	presetOffset := presetGens.Clone()
	presetOffset.Unset(sf2.GenKeyRange)
	presetOffset.Unset(sf2.GenVelRange)

	voiceGens := instGens.Clone()
	voiceGens.AddFrom(presetOffset)
	voiceGens.SetRange(sf2.GenKeyRange, noteRange.Low, noteRange.High)
	voiceGens.SetRange(sf2.GenVelRange, velRange.Low, velRange.High)

	// Step 1d: default ⊕ instrument-global(override) ⊕ instrument-zone
	// (override) ⊕ preset-global(additive) ⊕ preset-zone(additive) ⊕
	// cache-level-override(override).
	mods := sf2.DefaultModulators()
	mods = mods.Override(inst.GlobalModulators)
	mods = mods.Override(iz.Modulators)
	mods = mods.Additive(preset.GlobalModulators)
	mods = mods.Additive(pz.Modulators)
	if overrideMods != nil {
		mods = mods.Override(overrideMods)
	}

	rate := sample.Rate
	loopStart, loopEnd := sample.LoopStart, sample.LoopEnd
	root, fineTune := sample.RootNote, sample.FineTune
	if iz.LocalLoopStart != nil {
		loopStart = *iz.LocalLoopStart
	}
	if iz.LocalLoopEnd != nil {
		loopEnd = *iz.LocalLoopEnd
	}
	if iz.LocalRootNote != nil {
		root = *iz.LocalRootNote
	}
	if iz.LocalFineTune != nil {
		fineTune = *iz.LocalFineTune
	}

	return &Voice{
		Gens:      voiceGens,
		Mods:      mods,
		Ranges:    []Range{noteRange, velRange},
		Data:      sample.Data,
		Rate:      rate,
		LoopStart: loopStart,
		LoopEnd:   loopEnd,
		RootNote:  root,
		FineTune:  fineTune,
	}, true
}

func cloneOrEmptyGens(g *sf2.GenArray) *sf2.GenArray {
	if g == nil {
		return &sf2.GenArray{}
	}
	return g.Clone()
}
