package sf2

import (
	"fmt"
	"sync"

	instpatch "github.com/instpatch/instpatch-go"
)

// ChannelRole mirrors instpatch.ChannelRole for the sample stereo-link
// bookkeeping of §3.3.
type ChannelRole = instpatch.ChannelRole

const (
	ChannelMono    = instpatch.ChannelMono
	ChannelLeft    = instpatch.ChannelLeft
	ChannelRight   = instpatch.ChannelRight
	ChannelRomMono = instpatch.ChannelRomMono
)

// Version is a (major, minor) pair with an "is set" flag, per §3.3.
type Version struct {
	Major, Minor uint16
	IsSet        bool
}

// File is the SF2 patch tree root (§3.3's `Base`). It owns the file
// handle (if any) backing its samples, the INFO map, and the ordered
// sample/instrument/preset lists.
type File struct {
	mu sync.RWMutex

	FileHandle *instpatch.FileHandle

	Info       map[instpatch.FourCC]string
	FileVersion Version // ifil
	ROMVersion  Version // iver, only meaningful if ROM name is set

	Samples     []*Sample
	Instruments []*Instrument
	Presets     []*Preset
}

// NewFile constructs an empty SF2 tree with the mandatory ifil/isng
// defaults a writer needs (§4.3.1: ifil is mandatory; isng defaults to
// EMU8000 when absent on read).
func NewFile() *File {
	return &File{
		Info:        map[instpatch.FourCC]string{instpatch.IDisng: "EMU8000"},
		FileVersion: Version{Major: 2, Minor: 1, IsSet: true},
	}
}

// Lock/Unlock/RLock/RUnlock expose the base's reader-writer lock per §5:
// every mutable node has one, and recursive shared acquisition (lock
// parent, lock child) is permitted because Go's sync.RWMutex supports
// multiple concurrent RLock holders including from the same goroutine as
// long as no writer is interleaved.
func (f *File) Lock()    { f.mu.Lock() }
func (f *File) Unlock()  { f.mu.Unlock() }
func (f *File) RLock()   { f.mu.RLock() }
func (f *File) RUnlock() { f.mu.RUnlock() }

// FindPresetSlot finds an unused (bank, program) pair, starting from the
// requested values and incrementing program (wrapping bank) until a free
// slot is found, per §3.3's "(bank,program) must be unique... the base
// enforces this by searching for an unused slot when required".
func (f *File) FindPresetSlot(bank, program int) (int, int) {
	used := make(map[[2]int]bool, len(f.Presets))
	for _, p := range f.Presets {
		used[[2]int{p.Bank, p.Program}] = true
	}
	b, p := bank, program
	for used[[2]int{b, p}] {
		p++
		if p > 127 {
			p = 0
			b++
		}
	}
	return b, p
}

// AddSample appends a new Sample backed by data, returning it.
func (f *File) AddSample(name string, data *instpatch.SampleData) *Sample {
	s := &Sample{Name: name, Data: data}
	f.Samples = append(f.Samples, s)
	return s
}

// AddInstrument appends a new, empty Instrument.
func (f *File) AddInstrument(name string) *Instrument {
	i := &Instrument{Name: name}
	f.Instruments = append(f.Instruments, i)
	return i
}

// AddPreset appends a new, empty Preset at (bank, program), resolving a
// collision via FindPresetSlot.
func (f *File) AddPreset(name string, bank, program int) *Preset {
	bank, program = f.FindPresetSlot(bank, program)
	p := &Preset{Name: name, Bank: bank, Program: program}
	f.Presets = append(f.Presets, p)
	return p
}

// Sample is one SF2 sample header plus its shared audio data (§3.3).
type Sample struct {
	Name string

	Rate      uint32
	RootNote  uint8
	FineTune  int8 // cents, -99..99 typically but stored as given

	LoopStart int64 // frame index, relative to sample start
	LoopEnd   int64 // frame index, exclusive, relative to sample start

	ChannelRole ChannelRole
	Linked      *Sample // the other half of a stereo pair, or nil

	Data *instpatch.SampleData

	isROM bool
}

// IsROM reports whether this sample's type flag carried the ROM bit
// (§6.1's `ROM=0x8000`); such samples can never be rendered without
// external ROM data but are preserved structurally.
func (s *Sample) IsROM() bool { return s.isROM }

// SetLinked establishes a mutual stereo link between s and other,
// enforcing §3.3's invariant: `a.linked == b ⇔ b.linked == a`, with
// opposite channel roles.
func (s *Sample) SetLinked(other *Sample) error {
	if s.ChannelRole != ChannelLeft && s.ChannelRole != ChannelRight {
		return fmt.Errorf("sf2: sample %q must be Left or Right to link", s.Name)
	}
	if other.ChannelRole != ChannelLeft && other.ChannelRole != ChannelRight {
		return fmt.Errorf("sf2: sample %q must be Left or Right to link", other.Name)
	}
	if s.ChannelRole == other.ChannelRole {
		return fmt.Errorf("sf2: samples %q and %q have the same channel role, cannot link", s.Name, other.Name)
	}
	s.Linked = other
	other.Linked = s
	return nil
}

// FrameCount returns the frame count of the sample's audio data.
func (s *Sample) FrameCount() int64 {
	if s.Data == nil {
		return 0
	}
	return s.Data.FrameCount()
}

// Instrument is an SF2 instrument: a named group of zones plus the
// absorbed global zone's generators/modulators (§3.3).
type Instrument struct {
	Name string

	Zones []*InstZone

	GlobalGenerators *GenArray
	GlobalModulators ModList
}

// AddZone appends a new zone referencing sample (which may be nil only if
// this is to become the absorbed global zone during reading — application
// code should normally always pass a sample).
func (inst *Instrument) AddZone(sample *Sample) *InstZone {
	z := &InstZone{
		parent:     inst,
		SampleRef:  sample,
		Generators: &GenArray{},
	}
	z.NoteRange = Range{0, 127}
	z.VelRange = Range{0, 127}
	inst.Zones = append(inst.Zones, z)
	return z
}

// Range is an inclusive (low, high) pair, used for note and velocity
// selection ranges (§3.3).
type Range struct {
	Low, High uint8
}

// Set assigns the range, swapping arguments if given in reverse order
// (§3.3: "setters swap arguments if reversed").
func (r *Range) Set(lo, hi uint8) {
	if lo > hi {
		lo, hi = hi, lo
	}
	r.Low, r.High = lo, hi
}

// Intersect returns the overlap of r and o, and whether the two ranges
// overlap at all (the same rule voicecache.Range.Intersect applies for
// §4.5 step 1c).
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

// InstZone is one instrument zone (§3.3's InstZone). A zone with a nil
// SampleRef is legal only as the instrument's (already-absorbed) global
// zone placeholder during reading; after the reader's absorb pass, all
// zones in Instrument.Zones have a non-nil SampleRef.
type InstZone struct {
	parent *Instrument

	NoteRange Range
	VelRange  Range

	KeyGroup, LayerGroup, PhaseGroup, Channel uint8

	SampleRef *Sample

	// LocalLoopStart/LocalLoopEnd/LocalRootNote/LocalFineTune override the
	// referenced sample's own values when IsSet, per §3.3's
	// "local_sample_info? : overrides of sample's loop/root/tune".
	LocalLoopStart, LocalLoopEnd   *int64
	LocalRootNote                  *uint8
	LocalFineTune                  *int8

	Generators *GenArray
	Modulators ModList
}

// Instrument returns the owning instrument.
func (z *InstZone) Instrument() *Instrument { return z.parent }

// Preset is an SF2 preset: a MIDI-addressable (bank, program) entry
// referencing instruments via its zones (§3.3).
type Preset struct {
	Name string

	Bank, Program int

	Library, Genre, Morphology uint32

	Zones []*PresetZone

	GlobalGenerators *GenArray
	GlobalModulators ModList
}

// AddZone appends a new zone referencing inst.
func (p *Preset) AddZone(inst *Instrument) *PresetZone {
	z := &PresetZone{
		parent:     p,
		InstRef:    inst,
		Generators: &GenArray{},
	}
	z.NoteRange = Range{0, 127}
	z.VelRange = Range{0, 127}
	p.Zones = append(p.Zones, z)
	return z
}

// PresetZone is one preset zone (§3.3's "Preset.zones").
type PresetZone struct {
	parent *Preset

	NoteRange Range
	VelRange  Range

	InstRef *Instrument

	Generators *GenArray
	Modulators ModList
}

// Preset returns the owning preset.
func (z *PresetZone) Preset() *Preset { return z.parent }
