// Package dls implements the DLS Level 2 patch tree, reader and writer.
package dls

import (
	"sync"

	"github.com/google/uuid"

	instpatch "github.com/instpatch/instpatch-go"
)

// DLSID is a DLS/GIG 16-byte unique identifier. The format reuses a UUID's
// byte layout (SPEC_FULL.md item: "DLSID is modeled as google/uuid.UUID"),
// though DLS predates UUIDs and does not require RFC 4122 compliance of
// generated ids.
type DLSID [16]byte

// NewDLSID generates a fresh random DLSID, for newly constructed
// files/instruments/waves that have no identity inherited from a read file.
func NewDLSID() DLSID {
	return DLSID(uuid.New())
}

func (id DLSID) String() string { return uuid.UUID(id).String() }

// IsZero reports whether id is the all-zero value, which DLS treats as
// "unset" (the writer omits the dlid chunk for a zero id).
func (id DLSID) IsZero() bool { return id == DLSID{} }

// Connection is one DLS articulator connection block (§6.1, 12 bytes on
// disk): a (source, control) pair modulates destination through transform,
// scaled by Scale.
type Connection struct {
	Source      uint16
	Control     uint16
	Destination uint16
	Transform   uint16
	Scale       int32
}

// ArticulatorList is an ordered set of Connections, carried at both the
// instrument level (global, lart/lar2) and the region level.
type ArticulatorList []Connection

// LoopType mirrors WSMP's loop-type field (§4.4: "0=forward, 1=release,
// else none").
type LoopType uint32

const (
	LoopForward LoopType = 0
	LoopRelease LoopType = 1
)

// Loop is one WSMP loop descriptor (16 bytes on disk).
type Loop struct {
	Type   LoopType
	Start  uint32 // frame index
	Length uint32 // frame count
}

// WaveSample carries the WSMP chunk's per-wave or per-region defaults:
// unity note, fine tune, gain, and loop list (§4.4, §6.1).
type WaveSample struct {
	UnityNote uint16
	FineTune  int16 // cents
	Gain      int32 // relative gain, 0.1% * 65536ths of a dB per the DLS unit convention
	NoTruncate bool // fulOptions bit 0
	NoCompress bool // fulOptions bit 1
	Loops      []Loop
}

// File is a DLS patch tree root.
type File struct {
	mu sync.RWMutex

	FileHandle *instpatch.FileHandle

	DLSID DLSID
	Info  map[instpatch.FourCC]string

	VersionMS, VersionLS uint32

	Instruments []*Instrument
	Waves       []*Wave
}

// NewFile constructs an empty DLS tree.
func NewFile() *File {
	return &File{
		Info:      map[instpatch.FourCC]string{},
		DLSID:     NewDLSID(),
		VersionMS: 0,
		VersionLS: 0,
	}
}

func (f *File) Lock()    { f.mu.Lock() }
func (f *File) Unlock()  { f.mu.Unlock() }
func (f *File) RLock()   { f.mu.RLock() }
func (f *File) RUnlock() { f.mu.RUnlock() }

// AddWave appends a new Wave backed by data.
func (f *File) AddWave(name string, data *instpatch.SampleData) *Wave {
	w := &Wave{Name: name, DLSID: NewDLSID(), Data: data}
	f.Waves = append(f.Waves, w)
	return w
}

// AddInstrument appends a new, empty Instrument at (bank, program).
func (f *File) AddInstrument(name string, bank uint32, program uint32, percussion bool) *Instrument {
	i := &Instrument{Name: name, DLSID: NewDLSID(), Bank: bank & 0x3FFF, Program: program, Percussion: percussion}
	f.Instruments = append(f.Instruments, i)
	return i
}

// Instrument is a DLS instrument: a bank/program-addressable group of
// regions plus global articulators (§4.4).
type Instrument struct {
	Name string
	DLSID DLSID

	Bank       uint32 // masked to 14 bits, §6.1
	Program    uint32
	Percussion bool

	Regions []*Region

	GlobalArticulators ArticulatorList
}

// AddRegion appends a new region referencing wave.
func (inst *Instrument) AddRegion(wave *Wave) *Region {
	r := &Region{parent: inst, WaveRef: wave}
	r.KeyRange = Range{0, 127}
	r.VelRange = Range{0, 127}
	inst.Regions = append(inst.Regions, r)
	return r
}

// Range is an inclusive (low, high) pair (shared shape with sf2.Range).
type Range struct {
	Low, High uint8
}

// Region is a DLS region: one wave reference plus the key/velocity range
// and articulation it applies over (§4.4's "instruments and regions are
// LIST chunks").
type Region struct {
	parent *Instrument

	KeyRange Range
	VelRange Range

	KeyGroup uint16
	Layer    uint16

	SelfNonExclusive bool // fusOptions bit 0 of rgnh

	PhaseGroup uint16
	Channel    uint32

	WaveRef *Wave

	Sample WaveSample

	Articulators ArticulatorList
}

// Instrument returns the owning instrument.
func (r *Region) Instrument() *Instrument { return r.parent }

// Wave is one DLS wave pool entry: a PCM sample plus its WSMP defaults
// (§4.4's "samples live in a wvpl list as individual wave LIST chunks").
type Wave struct {
	Name  string
	DLSID DLSID

	Channels      uint16
	BitsPerSample uint16

	Sample WaveSample

	Data *instpatch.SampleData

	// byteOffset is the wave chunk's offset within wvpl as read from disk,
	// used by the reader to resolve ptbl pool-table indices to *Wave
	// (§4.4's "hash wave-chunk byte offset -> Sample").
	byteOffset int64
}

// FrameCount returns the wave's frame count.
func (w *Wave) FrameCount() int64 {
	if w.Data == nil {
		return 0
	}
	return w.Data.FrameCount()
}
