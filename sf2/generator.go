// Package sf2 implements the SoundFont 2 patch tree, reader and writer.
package sf2

import "fmt"

// GenID identifies one of the 60 SF2 generator slots (§3.4).
type GenID uint16

// The standard SF2 2.04 generator ids. Comments note ids with asymmetric
// validity (preset-only / instrument-only) and the two range-typed ids.
const (
	GenStartAddrsOffset           GenID = 0
	GenEndAddrsOffset             GenID = 1
	GenStartloopAddrsOffset       GenID = 2
	GenEndloopAddrsOffset         GenID = 3
	GenStartAddrsCoarseOffset     GenID = 4
	GenModLFOToPitch              GenID = 5
	GenVibLFOToPitch              GenID = 6
	GenModEnvToPitch              GenID = 7
	GenInitialFilterFc            GenID = 8
	GenInitialFilterQ             GenID = 9
	GenModLFOToFilterFc           GenID = 10
	GenModEnvToFilterFc           GenID = 11
	GenEndAddrsCoarseOffset       GenID = 12
	GenModLFOToVolume             GenID = 13
	GenUnused1                    GenID = 14
	GenChorusEffectsSend          GenID = 15
	GenReverbEffectsSend          GenID = 16
	GenPan                        GenID = 17
	GenUnused2                    GenID = 18
	GenUnused3                    GenID = 19
	GenUnused4                    GenID = 20
	GenDelayModLFO                GenID = 21
	GenFreqModLFO                 GenID = 22
	GenDelayVibLFO                GenID = 23
	GenFreqVibLFO                 GenID = 24
	GenDelayModEnv                GenID = 25
	GenAttackModEnv               GenID = 26
	GenHoldModEnv                 GenID = 27
	GenDecayModEnv                GenID = 28
	GenSustainModEnv              GenID = 29
	GenReleaseModEnv              GenID = 30
	GenKeynumToModEnvHold         GenID = 31
	GenKeynumToModEnvDecay        GenID = 32
	GenDelayVolEnv                GenID = 33
	GenAttackVolEnv               GenID = 34
	GenHoldVolEnv                 GenID = 35
	GenDecayVolEnv                GenID = 36
	GenSustainVolEnv              GenID = 37
	GenReleaseVolEnv              GenID = 38
	GenKeynumToVolEnvHold         GenID = 39
	GenKeynumToVolEnvDecay        GenID = 40
	GenInstrumentID               GenID = 41 // preset zones only
	GenReserved1                  GenID = 42
	GenKeyRange                   GenID = 43 // range
	GenVelRange                   GenID = 44 // range
	GenStartloopAddrsCoarseOffset GenID = 45
	GenKeynum                     GenID = 46
	GenVelocity                   GenID = 47
	GenInitialAttenuation         GenID = 48
	GenReserved2                  GenID = 49
	GenEndloopAddrsCoarseOffset   GenID = 50
	GenCoarseTune                 GenID = 51
	GenFineTune                   GenID = 52
	GenSampleID                   GenID = 53 // instrument zones only
	GenSampleModes                GenID = 54
	GenReserved3                  GenID = 55
	GenScaleTuning                GenID = 56
	GenExclusiveClass             GenID = 57
	GenOverridingRootKey          GenID = 58
	GenUnused5                    GenID = 59

	// NumGenerators is the fixed size of a GenArray (§3.4).
	NumGenerators = 60
)

// genInfo is the per-generator validity/default table used by the reader
// (level validity checks), the writer (ordering), and the voice cache's
// default-value fill for unset generators. Grounded on the original
// source's IpatchSF2GenInfo table (SPEC_FULL.md item 2); libinstpatch's
// own defaults are reproduced where they differ meaningfully from zero.
type genInfo struct {
	validPreset bool
	validInst   bool
	isRange     bool
	def         int16
}

var genTable = map[GenID]genInfo{
	GenStartAddrsOffset:           {validInst: true},
	GenEndAddrsOffset:             {validInst: true},
	GenStartloopAddrsOffset:       {validInst: true},
	GenEndloopAddrsOffset:         {validInst: true},
	GenStartAddrsCoarseOffset:     {validInst: true},
	GenModLFOToPitch:              {validPreset: true, validInst: true},
	GenVibLFOToPitch:              {validPreset: true, validInst: true},
	GenModEnvToPitch:              {validPreset: true, validInst: true},
	GenInitialFilterFc:            {validPreset: true, validInst: true, def: 13500},
	GenInitialFilterQ:             {validPreset: true, validInst: true},
	GenModLFOToFilterFc:           {validPreset: true, validInst: true},
	GenModEnvToFilterFc:           {validPreset: true, validInst: true},
	GenEndAddrsCoarseOffset:       {validInst: true},
	GenModLFOToVolume:             {validPreset: true, validInst: true},
	GenChorusEffectsSend:          {validPreset: true, validInst: true},
	GenReverbEffectsSend:          {validPreset: true, validInst: true},
	GenPan:                        {validPreset: true, validInst: true},
	GenDelayModLFO:                {validPreset: true, validInst: true, def: -12000},
	GenFreqModLFO:                 {validPreset: true, validInst: true},
	GenDelayVibLFO:                {validPreset: true, validInst: true, def: -12000},
	GenFreqVibLFO:                 {validPreset: true, validInst: true},
	GenDelayModEnv:                {validPreset: true, validInst: true, def: -12000},
	GenAttackModEnv:               {validPreset: true, validInst: true, def: -12000},
	GenHoldModEnv:                 {validPreset: true, validInst: true, def: -12000},
	GenDecayModEnv:                {validPreset: true, validInst: true, def: -12000},
	GenSustainModEnv:              {validPreset: true, validInst: true},
	GenReleaseModEnv:              {validPreset: true, validInst: true, def: -12000},
	GenKeynumToModEnvHold:         {validPreset: true, validInst: true},
	GenKeynumToModEnvDecay:        {validPreset: true, validInst: true},
	GenDelayVolEnv:                {validPreset: true, validInst: true, def: -12000},
	GenAttackVolEnv:               {validPreset: true, validInst: true, def: -12000},
	GenHoldVolEnv:                 {validPreset: true, validInst: true, def: -12000},
	GenDecayVolEnv:                {validPreset: true, validInst: true, def: -12000},
	GenSustainVolEnv:              {validPreset: true, validInst: true},
	GenReleaseVolEnv:              {validPreset: true, validInst: true, def: -12000},
	GenKeynumToVolEnvHold:         {validPreset: true, validInst: true},
	GenKeynumToVolEnvDecay:        {validPreset: true, validInst: true},
	GenInstrumentID:               {validPreset: true},
	GenKeyRange:                   {validPreset: true, validInst: true, isRange: true, def: rangeDefault()},
	GenVelRange:                   {validPreset: true, validInst: true, isRange: true, def: rangeDefault()},
	GenStartloopAddrsCoarseOffset: {validInst: true},
	GenKeynum:                     {validInst: true, def: -1},
	GenVelocity:                   {validInst: true, def: -1},
	GenInitialAttenuation:         {validPreset: true, validInst: true},
	GenEndloopAddrsCoarseOffset:   {validInst: true},
	GenCoarseTune:                 {validPreset: true, validInst: true},
	GenFineTune:                   {validPreset: true, validInst: true},
	GenSampleID:                   {validInst: true},
	GenSampleModes:                {validInst: true},
	GenScaleTuning:                {validInst: true, def: 100},
	GenExclusiveClass:             {validInst: true},
	GenOverridingRootKey:          {validInst: true, def: -1},
}

func rangeDefault() int16 {
	return packRange(0, 127)
}

func packRange(lo, hi uint8) int16 {
	return int16(uint16(lo) | uint16(hi)<<8)
}

func unpackRange(v int16) (lo, hi uint8) {
	u := uint16(v)
	return uint8(u), uint8(u >> 8)
}

// ValidAtPreset reports whether id may appear in a preset zone's generator
// list.
func (id GenID) ValidAtPreset() bool { return genTable[id].validPreset }

// ValidAtInst reports whether id may appear in an instrument zone's
// generator list.
func (id GenID) ValidAtInst() bool { return genTable[id].validInst }

// IsRange reports whether id packs a (low, high) byte pair rather than a
// scalar.
func (id GenID) IsRange() bool { return genTable[id].isRange }

// Default returns the generator's default value when unset, per the
// original source's per-id default table (SPEC_FULL.md item 2).
func (id GenID) Default() int16 { return genTable[id].def }

func (id GenID) String() string {
	return fmt.Sprintf("gen%d", uint16(id))
}

// GenArray is a fixed-size array of 60 generator values plus a bitset
// marking which are explicitly set, per §3.4.
type GenArray struct {
	values [NumGenerators]int16
	set    uint64 // bit i == 1 iff values[i] was explicitly set
}

// Get returns the raw value for id, ignoring whether it was explicitly set
// (callers that need the "is it set" distinction should use IsSet first).
func (g *GenArray) Get(id GenID) int16 {
	return g.values[id]
}

// Set stores v for id and marks it as explicitly set.
func (g *GenArray) Set(id GenID, v int16) {
	g.values[id] = v
	g.set |= 1 << uint(id)
}

// Unset clears id's explicit-set bit, without touching its stored value
// (readers reset GenArrays to zero value + unset rather than per-field
// defaults, matching how the original clears a freshly allocated zone).
func (g *GenArray) Unset(id GenID) {
	g.set &^= 1 << uint(id)
}

// IsSet reports whether id has been explicitly set.
func (g *GenArray) IsSet(id GenID) bool {
	return g.set&(1<<uint(id)) != 0
}

// GetRange returns the (low, high) pair for a range-typed id.
func (g *GenArray) GetRange(id GenID) (lo, hi uint8) {
	return unpackRange(g.values[id])
}

// SetRange stores a (low, high) pair for a range-typed id, swapping the
// arguments if given in reverse order (§3.3: "setters swap arguments if
// reversed").
func (g *GenArray) SetRange(id GenID, lo, hi uint8) {
	if lo > hi {
		lo, hi = hi, lo
	}
	g.Set(id, packRange(lo, hi))
}

// EffectiveOrDefault returns the set value for id, or its table default if
// unset — the value the voice cache should use at flatten time (resolves
// SPEC_FULL.md's Open Question about unset-generator defaults).
func (g *GenArray) EffectiveOrDefault(id GenID) int16 {
	if g.IsSet(id) {
		return g.values[id]
	}
	return id.Default()
}

// SetIDs returns every explicitly-set generator id, in ascending order.
func (g *GenArray) SetIDs() []GenID {
	var ids []GenID
	for i := GenID(0); i < NumGenerators; i++ {
		if g.IsSet(i) {
			ids = append(ids, i)
		}
	}
	return ids
}

// AddFrom adds (offsets) every generator set in src onto g, per the SF2
// preset-over-instrument "additive" rule of §4.5 step 1c. Range generators
// are intersected instead of added by the caller (GenArray itself doesn't
// know which ids are "this zone's selection ranges" — that's the voice
// cache's job per the spec's step-by-step algorithm).
func (g *GenArray) AddFrom(src *GenArray) {
	for i := GenID(0); i < NumGenerators; i++ {
		if src.IsSet(i) {
			g.values[i] += src.values[i]
			g.set |= 1 << uint(i)
		}
	}
}

// OverrideFrom copies every generator set in src onto g, replacing
// whatever was there (the "overwrite" rule of §4.5 step 1b).
func (g *GenArray) OverrideFrom(src *GenArray) {
	for i := GenID(0); i < NumGenerators; i++ {
		if src.IsSet(i) {
			g.values[i] = src.values[i]
			g.set |= 1 << uint(i)
		}
	}
}

// Clone returns a deep copy.
func (g *GenArray) Clone() *GenArray {
	c := *g
	return &c
}
