package dls

import (
	"bytes"
	"encoding/binary"
)

// Fixed-size DLS chunk payload records, §6.1. Mirrors instpatch/sf2's
// decodeRecord/encodeRecord convention: a thin binary.Read/Write wrapper
// keyed off a plain Go struct's field order, rather than hand-rolled
// per-field byte offsets.

const (
	versRecordSize = 8
	inshRecordSize = 12
	rgnhRecordSize = 12 // +2 more when a layer group is present, handled separately
	wlnkRecordSize = 12
	wsmpHeaderSize = 20
	loopRecordSize = 16
	artHeaderSize  = 8
	connRecordSize = 12
	ptblHeaderSize = 8
	cueRecordSize  = 4
	fmtRecordSize  = 16
)

type versRecord struct {
	VersionMS uint32
	VersionLS uint32
}

type inshRecord struct {
	Regions    uint32
	Bank       uint32
	Instrument uint32
}

// inshPercussionBit marks a percussion bank (§6.1: "bank bit 31 =
// percussion; bank mask = 0x3FFF").
const inshPercussionBit = 1 << 31

type rgnhRecord struct {
	KeyLow, KeyHigh   uint16
	VelLow, VelHigh   uint16
	Options           uint16
	KeyGroup          uint16
}

const rgnhSelfNonExclusive = 1 << 0

type wlnkRecord struct {
	Options    uint16
	PhaseGroup uint16
	Channel    uint32
	TableIndex uint32
}

type wsmpHeaderRecord struct {
	Size        uint32
	UnityNote   uint16
	FineTune    int16
	Gain        int32
	Options     uint32
	LoopCount   uint32
}

const (
	wsmpNoTruncate = 1 << 0
	wsmpNoCompress = 1 << 1
)

type loopRecord struct {
	Size   uint32
	Type   uint32
	Start  uint32
	Length uint32
}

type artHeaderRecord struct {
	Size        uint32
	Connections uint32
}

type connRecord struct {
	Source      uint16
	Control     uint16
	Destination uint16
	Transform   uint16
	Scale       int32
}

type ptblHeaderRecord struct {
	Size uint32
	Cues uint32
}

type cueRecord struct {
	Offset uint32
}

// fmtRecord is the wave fmt chunk, PCM only (§6.1: "wave fmt=16 (PCM
// only)"). Formats other than tag 1 are rejected by the reader.
type fmtRecord struct {
	FormatTag      uint16
	Channels       uint16
	SamplesPerSec  uint32
	AvgBytesPerSec uint32
	BlockAlign     uint16
	BitsPerSample  uint16
}

const wavFormatPCM = 1

func decodeRecord(buf []byte, v any) error {
	return binary.Read(bytes.NewReader(buf), binary.LittleEndian, v)
}

func encodeRecord(v any) []byte {
	buf := &bytes.Buffer{}
	_ = binary.Write(buf, binary.LittleEndian, v)
	return buf.Bytes()
}
