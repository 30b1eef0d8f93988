package gig

import (
	"bytes"
	"encoding/binary"
)

// Fixed-size GIG chunk payload records, §6.1. Mirrors dls/records.go's
// decodeRecord/encodeRecord convention, applied to GIG's own chunk shapes.

const (
	lnkHeaderSize  = 4
	lnkDimDescSize = 8
	lnkMaxDims     = 5
	lnkMaxSamples  = 32
	lnkRecordSize  = lnkHeaderSize + lnkDimDescSize*lnkMaxDims + 4*lnkMaxSamples // 172, §6.1

	ewaRecordSize  = 140
	ewgRecordSize  = 12
	gixRecordSize  = 4
	gnmRecordSize  = 64
	smplRecordSize = 60
)

// noSampleIndex marks an unused 3lnk sample-index slot (§6.1: "32 x 4-byte
// sample indices padded with 0xFFFFFFFF").
const noSampleIndex = 0xFFFFFFFF

type dimDescRecord struct {
	Type   uint8
	Bits   uint8
	Zones  uint8
	Param1 uint8
	_      [4]byte
}

type lnkHeaderRecord struct {
	SubRegionCount uint32
}

func decodeRecord(buf []byte, v any) error {
	return binary.Read(bytes.NewReader(buf), binary.LittleEndian, v)
}

func encodeRecord(v any) []byte {
	buf := &bytes.Buffer{}
	_ = binary.Write(buf, binary.LittleEndian, v)
	return buf.Bytes()
}
