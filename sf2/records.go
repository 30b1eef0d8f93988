package sf2

import (
	"bytes"
	"encoding/binary"
)

// The fixed-size on-disk "hydra" records of §4.3.1, directly generalizing
// the teacher's PresetHeader/Instrument/SampleHeader structs (hydra.go) —
// same field layout and binary.Read-based decoding, now shared between the
// reader and the writer instead of being read-only.

const (
	presetHeaderSize = 38
	instHeaderSize   = 22
	sampleHeaderSize = 46
	bagRecordSize    = 4
	modRecordSize    = 10
	genRecordSize    = 4
)

// sampleGuardFrames is the run of zero-valued frames required after every
// sample's data in smpl/sm24 (§4.3.2 step 4), so that a loop or end-of-
// sample read near a sample's boundary reads silence instead of bleeding
// into the next sample's data.
const sampleGuardFrames = 46

type presetHeaderRecord struct {
	PresetName   [20]byte
	Preset       uint16
	Bank         uint16
	PresetBagNdx uint16
	Library      uint32
	Genre        uint32
	Morphology   uint32
}

type instHeaderRecord struct {
	InstName   [20]byte
	InstBagNdx uint16
}

type bagRecord struct {
	GenNdx uint16
	ModNdx uint16
}

type modRecord struct {
	SrcOper       uint16
	DestOper      uint16
	Amount        int16
	AmtSrcOper    uint16
	TransOper     uint16
}

type genRecord struct {
	GenOper uint16
	Amount  int16
}

type sampleHeaderRecord struct {
	SampleName    [20]byte
	Start         uint32
	End           uint32
	StartLoop     uint32
	EndLoop       uint32
	SampleRate    uint32
	OriginalPitch uint8
	PitchCorrect  int8
	SampleLink    uint16
	SampleType    uint16
}

// sfSampleType bits, §6.1.
const (
	sfSampleMono  = 1
	sfSampleRight = 2
	sfSampleLeft  = 4
	sfSampleLink  = 8
	sfSampleROM   = 0x8000
)

func decodeRecord(buf []byte, v any) error {
	return binary.Read(bytes.NewReader(buf), binary.LittleEndian, v)
}

func encodeRecord(v any) []byte {
	buf := &bytes.Buffer{}
	_ = binary.Write(buf, binary.LittleEndian, v)
	return buf.Bytes()
}

func nameToFixed20(s string) [20]byte {
	var b [20]byte
	copy(b[:], s)
	return b
}

func fixed20ToName(b [20]byte) string {
	n := bytes.IndexByte(b[:], 0)
	if n < 0 {
		n = len(b)
	}
	return string(b[:n])
}
