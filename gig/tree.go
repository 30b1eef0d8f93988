// Package gig implements the GigaSampler patch tree, reader and writer.
// GIG extends DLS Level 2 (§4.4): a gig.File wraps a dls.File and attaches
// per-region dimension tables and sub-regions, and per-wave
// gigasampler metadata, keyed by pointer into the underlying DLS tree
// rather than duplicating its fields.
package gig

import (
	dls "github.com/instpatch/instpatch-go/dls"
)

// DimensionType identifies a GIG selection axis beyond the universal
// note/velocity pair every format carries (§4.5's "axis 0 is always MIDI
// note, axis 1 is conventionally MIDI velocity... GIG files may add
// further axes").
type DimensionType uint8

const (
	DimNone DimensionType = iota
	DimKeyboardSplit
	DimVelocity
	DimChannelAftertouch
	DimReleaseTrigger
	DimMIDICC // Param1 is the CC number
	DimRoundRobin
	DimRandom
	DimSmartMIDI
	DimRoundRobinKeyboard
)

// DimensionDef is one 8-byte 3lnk dimension descriptor (§6.1: "up to 5 x
// 8-byte dimension descriptors"). Bits is the split-bit count for this
// axis; Zones is 2^Bits, the number of sub-region slices the axis
// contributes.
type DimensionDef struct {
	Type   DimensionType
	Bits   uint8
	Zones  uint8
	Param1 uint8
}

// SubRegion is one 3lnk/3ewl slot: a (dimension value tuple) -> sample
// mapping plus its opaque effect block, nested under a Region once the
// region's dimension set makes it more than a single flat sample (§4.4,
// §6.1's 32-sample-index table).
type SubRegion struct {
	Index int

	// DimensionValues holds this sub-region's coordinate along each of the
	// owning Region's Dimensions, in the same order.
	DimensionValues []uint8

	Wave *dls.Wave

	// EffectRaw is the 140-byte 3ewa effect/envelope block, preserved
	// opaquely (not decoded into named fields — see DESIGN.md's Open
	// Question decision on 3ewa).
	EffectRaw []byte
}

// RegionExt carries a Region's GIG-only extensions: its sub-region table
// and the opaque per-region exclusive-group block.
type RegionExt struct {
	Dimensions []DimensionDef
	SubRegions []*SubRegion

	// ExclusiveGroupRaw is the 12-byte 3ewg block, preserved verbatim per
	// spec.md §4.4: "writers preserve opaque proprietary byte blocks
	// (3ewg, 3ddp, 3gix) verbatim."
	ExclusiveGroupRaw []byte
}

// WaveExt carries a Wave's GIG-only extensions.
type WaveExt struct {
	// SamplerRaw is the 60-byte "smpl" gigasampler sample-metadata block.
	SamplerRaw []byte
	// GroupIndexRaw is the 4-byte "3gix" sample-group-index block.
	GroupIndexRaw []byte
}

// SampleGroup is one entry of the 3gri/3gnl/3gnm sample-group name list.
type SampleGroup struct {
	Name string
}

// File is a GIG patch tree: a DLS tree plus GIG extensions layered over
// it. Instruments/Waves/Regions are the embedded dls.File's — GIG adds no
// new top-level collection, only per-object metadata.
type File struct {
	*dls.File

	RegionExts map[*dls.Region]*RegionExt
	WaveExts   map[*dls.Wave]*WaveExt

	SampleGroups []SampleGroup

	// DimensionNamesRaw is the 3dnl block (dimension display names),
	// preserved verbatim; spec.md does not require these to be
	// individually addressable for synthesis.
	DimensionNamesRaw []byte
	// SampleGroupDefsRaw is the 3ddp block, preserved verbatim.
	SampleGroupDefsRaw []byte
}

// NewFile constructs an empty GIG tree over a fresh DLS tree.
func NewFile() *File {
	return &File{
		File:       dls.NewFile(),
		RegionExts: map[*dls.Region]*RegionExt{},
		WaveExts:   map[*dls.Wave]*WaveExt{},
	}
}

// RegionExtFor returns r's extension record, creating an empty one on
// first access so callers can always attach sub-regions/dimensions
// without a separate existence check.
func (f *File) RegionExtFor(r *dls.Region) *RegionExt {
	ext, ok := f.RegionExts[r]
	if !ok {
		ext = &RegionExt{}
		f.RegionExts[r] = ext
	}
	return ext
}

// WaveExtFor returns w's extension record, creating an empty one on first
// access.
func (f *File) WaveExtFor(w *dls.Wave) *WaveExt {
	ext, ok := f.WaveExts[w]
	if !ok {
		ext = &WaveExt{}
		f.WaveExts[w] = ext
	}
	return ext
}

// AddSubRegion appends a new sub-region to region's extension, backed by
// wave.
func (f *File) AddSubRegion(r *dls.Region, wave *dls.Wave, dimValues []uint8) *SubRegion {
	ext := f.RegionExtFor(r)
	sr := &SubRegion{Index: len(ext.SubRegions), DimensionValues: dimValues, Wave: wave}
	ext.SubRegions = append(ext.SubRegions, sr)
	return sr
}
