package voicecache

import (
	dls "github.com/instpatch/instpatch-go/dls"
	"github.com/instpatch/instpatch-go/gig"
	"github.com/instpatch/instpatch-go/sf2"
)

// GigOption configures FlattenGig.
type GigOption func(*gigOptions)

type gigOptions struct {
	soloInst *dls.Instrument
}

// WithSoloGigInstrument restricts flattening to inst's regions.
func WithSoloGigInstrument(inst *dls.Instrument) GigOption {
	return func(o *gigOptions) { o.soloInst = inst }
}

// FlattenGig flattens f's instrument/region/sub-region tree into a
// VoiceCache. A region with no sub-regions flattens exactly like a plain
// DLS region (FlattenDLS's rule); a region with sub-regions produces one
// voice per sub-region, with the sub-region's dimension-value tuple
// narrowing the note/velocity range (for the DimKeyboardSplit/DimVelocity
// axes) or contributing an additional selection axis (any other
// DimensionType), per the supplemented "dimension split-bits -> sub-region
// index" behavior of the original GIG region reader.
//
// The GIG effect block (3ewa) is not translated into generators: it is
// kept opaque by the gig package (see DESIGN.md's Open Question decision),
// so there is no verified field-by-field mapping to SF2 generators for it.
// Only the region/instrument-level DLS articulator connections — which
// are structurally decoded — feed the voice's modulator list, via the
// same dlsDestToGen table FlattenDLS uses.
func FlattenGig(f *gig.File, opts ...GigOption) (*VoiceCache, error) {
	var o gigOptions
	for _, opt := range opts {
		opt(&o)
	}

	f.RLock()
	defer f.RUnlock()

	cache := &VoiceCache{
		Dimensions: []SelectionDim{{Type: DimNote}, {Type: DimVelocity}},
	}
	seenExtraDims := map[gig.DimensionType]bool{}

	insts := f.Instruments
	if o.soloInst != nil {
		insts = []*dls.Instrument{o.soloInst}
	}

	for _, inst := range insts {
		for _, r := range inst.Regions {
			ext, hasExt := f.RegionExts[r]
			if !hasExt || len(ext.SubRegions) == 0 {
				voice, ok := flattenDLSRegion(inst, r)
				if ok {
					cache.Voices = append(cache.Voices, voice)
				}
				continue
			}

			for _, d := range ext.Dimensions {
				if d.Type != gig.DimKeyboardSplit && d.Type != gig.DimVelocity && !seenExtraDims[d.Type] {
					seenExtraDims[d.Type] = true
					cache.Dimensions = append(cache.Dimensions, SelectionDim{Type: gigDimToVoicecacheDim(d.Type), Param1: d.Param1})
				}
			}

			for _, sr := range ext.SubRegions {
				voice, ok := flattenGigSubRegion(inst, r, ext, sr)
				if ok {
					cache.Voices = append(cache.Voices, voice)
				}
			}
		}
	}

	return cache, nil
}

func flattenGigSubRegion(inst *dls.Instrument, r *dls.Region, ext *gig.RegionExt, sr *gig.SubRegion) (*Voice, bool) {
	wave := sr.Wave
	if wave == nil {
		return nil, false
	}

	noteRange := Range{r.KeyRange.Low, r.KeyRange.High}
	velRange := Range{r.VelRange.Low, r.VelRange.High}
	var extraRanges []Range

	for i, d := range ext.Dimensions {
		if i >= len(sr.DimensionValues) {
			break
		}
		val := sr.DimensionValues[i]
		switch d.Type {
		case gig.DimKeyboardSplit:
			noteRange = subRangeFor(noteRange, d.Zones, val)
		case gig.DimVelocity:
			velRange = subRangeFor(velRange, d.Zones, val)
		default:
			extraRanges = append(extraRanges, subRangeFor(Range{0, 127}, d.Zones, val))
		}
	}

	gens := &sf2.GenArray{}
	gens.SetRange(sf2.GenKeyRange, noteRange.Low, noteRange.High)
	gens.SetRange(sf2.GenVelRange, velRange.Low, velRange.High)

	globalMods, globalUnmapped := translateConnections(inst.GlobalArticulators)
	regionMods, regionUnmapped := translateConnections(r.Articulators)
	mods := sf2.DefaultModulators().Override(globalMods).Override(regionMods)
	unmapped := append(append(dls.ArticulatorList(nil), globalUnmapped...), regionUnmapped...)

	sample := pickWaveSample(r.Sample, wave.Sample)
	rate := waveRate(wave)
	loopStart, loopEnd := loopRange(sample)

	ranges := append([]Range{noteRange, velRange}, extraRanges...)

	return &Voice{
		Gens:                 gens,
		Mods:                 mods,
		Ranges:               ranges,
		Data:                 wave.Data,
		Rate:                 rate,
		LoopStart:            loopStart,
		LoopEnd:              loopEnd,
		RootNote:             uint8(sample.UnityNote),
		FineTune:             int8(sample.FineTune / 100),
		UnmappedArticulators: unmapped,
	}, true
}

// subRangeFor divides domain into zones equal-width buckets and returns
// the bucket at index val, clamping the final bucket to domain's upper
// bound so integer-division remainders don't leave a gap (§4.4's
// supplemented "dimension split-bits -> sub-region index" feature, applied
// in reverse to recover each axis's per-voice value range).
func subRangeFor(domain Range, zones, val uint8) Range {
	if zones == 0 {
		zones = 1
	}
	size := int(domain.High) - int(domain.Low) + 1
	width := size / int(zones)
	if width < 1 {
		width = 1
	}
	lo := int(domain.Low) + int(val)*width
	hi := lo + width - 1
	if val == zones-1 || hi > int(domain.High) {
		hi = int(domain.High)
	}
	if lo > hi {
		lo = hi
	}
	return Range{uint8(lo), uint8(hi)}
}

func gigDimToVoicecacheDim(t gig.DimensionType) DimKind {
	switch t {
	case gig.DimKeyboardSplit:
		return DimKeyboardSplit
	case gig.DimVelocity:
		return DimVelocity
	case gig.DimChannelAftertouch:
		return DimChannelAftertouch
	case gig.DimReleaseTrigger:
		return DimReleaseTrigger
	case gig.DimMIDICC:
		return DimMIDICC
	case gig.DimRoundRobin:
		return DimRoundRobin
	case gig.DimRandom:
		return DimRandom
	case gig.DimSmartMIDI:
		return DimSmartMIDI
	case gig.DimRoundRobinKeyboard:
		return DimRoundRobinKeyboard
	default:
		return DimKeyboardSplit
	}
}
