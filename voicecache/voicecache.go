// Package voicecache implements the voice cache: flattening a patch tree's
// two-level (or instrument-level) zone hierarchy into a flat list of
// playable Voices, per §4.5. A Voice carries everything a synthesizer needs
// without re-walking the source tree: a complete generator array, a merged
// modulator list, and the sample parameters captured at flatten time.
package voicecache

import (
	instpatch "github.com/instpatch/instpatch-go"
	dls "github.com/instpatch/instpatch-go/dls"
	"github.com/instpatch/instpatch-go/sf2"
)

// Range is an inclusive (low, high) selection range, the same shape as
// sf2.Range and dls.Range, duplicated here so a Voice's ranges have one
// type whichever source format produced it.
type Range struct {
	Low, High uint8
}

// Intersect returns the overlap of r and o, and whether they overlap at
// all — the same rule sf2.Range.Intersect implements, applied here to
// dimensions voicecache itself owns (note/velocity, and any further GIG
// selection axes), per §4.5 step 1c: "a range-typed generator is
// intersected, not added; a disjoint intersection drops the voice."
func (r Range) Intersect(o Range) (Range, bool) {
	lo := r.Low
	if o.Low > lo {
		lo = o.Low
	}
	hi := r.High
	if o.High < hi {
		hi = o.High
	}
	if lo > hi {
		return Range{}, false
	}
	return Range{lo, hi}, true
}

// DimKind identifies a voice-cache selection axis. Axis 0 is always MIDI
// note and axis 1 is always MIDI velocity (§4.5); further axes, present
// only for GIG sources, come from the region's DimensionDef table.
type DimKind uint8

const (
	DimNote DimKind = iota
	DimVelocity
	DimKeyboardSplit
	DimChannelAftertouch
	DimReleaseTrigger
	DimMIDICC
	DimRoundRobin
	DimRandom
	DimSmartMIDI
	DimRoundRobinKeyboard
)

// SelectionDim describes one axis of a VoiceCache's selection space.
// Param1 carries axis-specific data (e.g. the MIDI CC number for
// DimMIDICC), mirroring gig.DimensionDef's (type, param1) shape.
type SelectionDim struct {
	Type   DimKind
	Param1 uint8
}

// Voice is one flattened, playable voice: a complete generator array, a
// fully merged modulator list, and the sample parameters it plays at,
// captured at flatten time rather than re-read from the source tree on
// every lookup (§4.5).
type Voice struct {
	Gens *sf2.GenArray
	Mods sf2.ModList

	// Ranges holds this voice's extent along each axis of the owning
	// VoiceCache's Dimensions, in the same order; Ranges[0] is the note
	// range and Ranges[1] is the velocity range.
	Ranges []Range

	Data      *instpatch.SampleData
	Rate      uint32
	LoopStart int64
	LoopEnd   int64
	RootNote  uint8
	FineTune  int8

	// UnmappedArticulators preserves DLS/GIG articulator connections whose
	// destination had no corresponding SF2 generator at flatten time; only
	// ever set by FlattenDLS/FlattenGig. See DESIGN.md's Open Question
	// decision on the DLS-connection-to-SF2-generator mapping.
	UnmappedArticulators dls.ArticulatorList
}

// NoteRange returns the voice's axis-0 range.
func (v *Voice) NoteRange() Range { return v.Ranges[0] }

// VelRange returns the voice's axis-1 range.
func (v *Voice) VelRange() Range { return v.Ranges[1] }

// VoiceCache is a flat list of Voices plus the selection dimensions they
// are indexed along (§4.5: "A VoiceCache is a flat list of Voices plus a
// list of selection dimensions").
type VoiceCache struct {
	Dimensions []SelectionDim
	Voices     []*Voice
}

// Select returns every voice whose range on each of the first len(coords)
// dimensions contains the matching coordinate, implementing the cache's
// lookup side of §4.5 (a synthesizer selects by note and velocity, and by
// whatever further axes the source format contributed).
func (c *VoiceCache) Select(coords ...uint8) []*Voice {
	var out []*Voice
	for _, v := range c.Voices {
		match := true
		for i, coord := range coords {
			if i >= len(v.Ranges) {
				match = false
				break
			}
			r := v.Ranges[i]
			if coord < r.Low || coord > r.High {
				match = false
				break
			}
		}
		if match {
			out = append(out, v)
		}
	}
	return out
}
