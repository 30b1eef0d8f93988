package gig

import (
	"fmt"

	dls "github.com/instpatch/instpatch-go/dls"
	instpatch "github.com/instpatch/instpatch-go"
)

// readLins reads an already-opened LIST "lins" chunk's "ins " entries,
// mirroring dls.readLins but additionally recognizing the GIG-only chunks
// nested inside each instrument/region (§4.4).
func readLins(e *instpatch.Engine, f *File) ([]*dls.Instrument, []poolLink, error) {
	var insts []*dls.Instrument
	var pending []poolLink

	for {
		c, err := e.ReadChunk()
		if err != nil {
			return nil, nil, err
		}
		if c == nil {
			break
		}
		if c.Kind != instpatch.ChunkLIST || c.Form != instpatch.IDins {
			instpatch.Warnf("gig: lins contains unexpected chunk %q, skipping", c.ID)
			if err := e.EndChunk(); err != nil {
				return nil, nil, err
			}
			continue
		}

		inst, links, err := readIns(e, f)
		if err != nil {
			return nil, nil, err
		}
		insts = append(insts, inst)
		pending = append(pending, links...)

		if err := e.EndChunk(); err != nil {
			return nil, nil, err
		}
	}
	return insts, pending, nil
}

func readIns(e *instpatch.Engine, f *File) (*dls.Instrument, []poolLink, error) {
	inst := &dls.Instrument{DLSID: dls.NewDLSID()}
	var pending []poolLink
	haveHeader := false

	for {
		c, err := e.ReadChunk()
		if err != nil {
			return nil, nil, err
		}
		if c == nil {
			break
		}

		switch c.Kind {
		case instpatch.ChunkSUB:
			switch c.ID {
			case instpatch.IDinsh:
				buf, err := e.ReadBytes(int(c.PayloadSize()))
				if err != nil {
					return nil, nil, err
				}
				bank, program, percussion, err := decodeInsh(buf)
				if err != nil {
					return nil, nil, err
				}
				inst.Bank, inst.Program, inst.Percussion = bank, program, percussion
				haveHeader = true
			case instpatch.IDdlid:
				buf, err := e.ReadBytes(int(c.PayloadSize()))
				if err != nil {
					return nil, nil, err
				}
				copy(inst.DLSID[:], buf)
			default:
				instpatch.Warnf("gig: skipping unknown chunk %q inside ins", c.ID)
			}

		case instpatch.ChunkLIST:
			switch c.Form {
			case instpatch.IDINFO:
				info := map[instpatch.FourCC]string{}
				if err := readInfo(e, info); err != nil {
					return nil, nil, err
				}
				inst.Name = info[instpatch.IDINAM]
			case instpatch.IDlart, instpatch.IDlar2:
				arts, err := readArticulators(e)
				if err != nil {
					return nil, nil, err
				}
				inst.GlobalArticulators = append(inst.GlobalArticulators, arts...)
			case instpatch.IDlrgn:
				regions, links, err := readLrgn(e, inst, f)
				if err != nil {
					return nil, nil, err
				}
				inst.Regions = regions
				pending = append(pending, links...)
			default:
				instpatch.Warnf("gig: skipping unknown LIST form %q inside ins", c.Form)
			}
		}

		if err := e.EndChunk(); err != nil {
			return nil, nil, err
		}
	}

	if !haveHeader {
		instpatch.Warnf("gig: instrument %q has no insh header", inst.Name)
	}
	return inst, pending, nil
}

// decodeInsh mirrors dls's insh decode (bank percussion bit and 14-bit
// mask), duplicated here because dls.decodeRecord/inshRecord are unexported
// to that package.
func decodeInsh(buf []byte) (bank uint32, program uint32, percussion bool, err error) {
	const inshRecordSize = 12
	const inshPercussionBit = 1 << 31
	if len(buf) < inshRecordSize {
		return 0, 0, false, fmt.Errorf("gig: insh too short: %w", instpatch.ErrSizeMismatch)
	}
	regions := u32le(buf[0:4])
	_ = regions
	rawBank := u32le(buf[4:8])
	instrument := u32le(buf[8:12])
	return rawBank & 0x3FFF, instrument, rawBank&inshPercussionBit != 0, nil
}

// readLrgn reads an already-opened LIST "lrgn" chunk's "rgn "/"rgn2"
// entries.
func readLrgn(e *instpatch.Engine, inst *dls.Instrument, f *File) ([]*dls.Region, []poolLink, error) {
	var regions []*dls.Region
	var pending []poolLink

	for {
		c, err := e.ReadChunk()
		if err != nil {
			return nil, nil, err
		}
		if c == nil {
			break
		}
		if c.Kind != instpatch.ChunkLIST || (c.Form != instpatch.IDrgn && c.Form != instpatch.IDrgn2) {
			instpatch.Warnf("gig: lrgn contains unexpected chunk %q, skipping", c.ID)
			if err := e.EndChunk(); err != nil {
				return nil, nil, err
			}
			continue
		}

		region, links, err := readRgn(e, inst, f)
		if err != nil {
			return nil, nil, err
		}
		regions = append(regions, region)
		pending = append(pending, links...)

		if err := e.EndChunk(); err != nil {
			return nil, nil, err
		}
	}
	return regions, pending, nil
}

// readRgn reads an already-opened LIST "rgn "/"rgn2" chunk, recognizing the
// GIG-only 3lnk/3ewl/3ewg additions alongside the DLS rgnh/wlnk/wsmp/lart
// shape (§4.4, §6.1).
func readRgn(e *instpatch.Engine, inst *dls.Instrument, f *File) (*dls.Region, []poolLink, error) {
	r := inst.AddRegion(nil)
	inst.Regions = inst.Regions[:len(inst.Regions)-1] // caller appends; avoid double-add
	var pending []poolLink
	var dims []DimensionDef
	var subRegionCount int
	var sampleIndices []uint32
	var ewaBlocks [][]byte

	for {
		c, err := e.ReadChunk()
		if err != nil {
			return nil, nil, err
		}
		if c == nil {
			break
		}

		switch c.Kind {
		case instpatch.ChunkSUB:
			switch c.ID {
			case instpatch.IDrgnh:
				buf, err := e.ReadBytes(int(c.PayloadSize()))
				if err != nil {
					return nil, nil, err
				}
				if err := decodeRgnh(buf, r); err != nil {
					return nil, nil, err
				}
			case instpatch.IDwlnk:
				buf, err := e.ReadBytes(int(c.PayloadSize()))
				if err != nil {
					return nil, nil, err
				}
				idx, phaseGroup, channel, err := decodeWlnk(buf)
				if err != nil {
					return nil, nil, err
				}
				r.PhaseGroup = phaseGroup
				r.Channel = channel
				region := r
				pending = append(pending, poolLink{index: idx, setWave: func(w *dls.Wave) { region.WaveRef = w }})
			case instpatch.IDwsmp:
				ws, err := readWsmp(e, c)
				if err != nil {
					return nil, nil, err
				}
				r.Sample = ws
			case instpatch.ID3lnk:
				buf, err := e.ReadBytes(int(c.PayloadSize()))
				if err != nil {
					return nil, nil, err
				}
				dims, subRegionCount, sampleIndices, err = decode3lnk(buf)
				if err != nil {
					return nil, nil, err
				}
			case instpatch.ID3ewg:
				buf, err := e.ReadBytes(int(c.PayloadSize()))
				if err != nil {
					return nil, nil, err
				}
				f.RegionExtFor(r).ExclusiveGroupRaw = buf
			default:
				instpatch.Warnf("gig: skipping unknown chunk %q inside region", c.ID)
			}

		case instpatch.ChunkLIST:
			switch c.Form {
			case instpatch.IDlart, instpatch.IDlar2:
				arts, err := readArticulators(e)
				if err != nil {
					return nil, nil, err
				}
				r.Articulators = append(r.Articulators, arts...)
			case instpatch.ID3ewl:
				blocks, err := read3ewl(e)
				if err != nil {
					return nil, nil, err
				}
				ewaBlocks = blocks
			default:
				instpatch.Warnf("gig: skipping unknown LIST form %q inside region", c.Form)
			}
		}

		if err := e.EndChunk(); err != nil {
			return nil, nil, err
		}
	}

	if len(dims) > 0 || subRegionCount > 0 {
		ext := f.RegionExtFor(r)
		ext.Dimensions = dims
		for i := 0; i < subRegionCount; i++ {
			sr := &SubRegion{Index: i, DimensionValues: subRegionDimensionValues(dims, i)}
			if i < len(ewaBlocks) {
				sr.EffectRaw = ewaBlocks[i]
			}
			ext.SubRegions = append(ext.SubRegions, sr)
			if i < len(sampleIndices) && sampleIndices[i] != noSampleIndex {
				idx := sampleIndices[i]
				srCopy := sr
				pending = append(pending, poolLink{index: idx, setWave: func(w *dls.Wave) { srCopy.Wave = w }})
			}
		}
	}

	return r, pending, nil
}

// subRegionDimensionValues recovers a sub-region's per-axis coordinate from
// its linear 3lnk table index by splitting the index's bits across dims in
// order (§4.4/§6.1, and the dimension split-bit layout IpatchGigRegion.c
// derives the index from, applied here in reverse).
func subRegionDimensionValues(dims []DimensionDef, index int) []uint8 {
	values := make([]uint8, len(dims))
	shift := uint(0)
	for i, d := range dims {
		mask := uint8(1)<<d.Bits - 1
		values[i] = uint8(index>>shift) & mask
		shift += uint(d.Bits)
	}
	return values
}

func decodeRgnh(buf []byte, r *dls.Region) error {
	const rgnhRecordSize = 12
	if len(buf) < rgnhRecordSize {
		return fmt.Errorf("gig: rgnh too short: %w", instpatch.ErrSizeMismatch)
	}
	r.KeyRange = dls.Range{Low: uint8(u16le(buf[0:2])), High: uint8(u16le(buf[2:4]))}
	r.VelRange = dls.Range{Low: uint8(u16le(buf[4:6])), High: uint8(u16le(buf[6:8]))}
	options := u16le(buf[8:10])
	r.SelfNonExclusive = options&1 != 0
	r.KeyGroup = u16le(buf[10:12])
	if len(buf) >= rgnhRecordSize+2 {
		r.Layer = u16le(buf[rgnhRecordSize : rgnhRecordSize+2])
	}
	return nil
}

func decodeWlnk(buf []byte) (tableIndex uint32, phaseGroup uint16, channel uint32, err error) {
	const wlnkRecordSize = 12
	if len(buf) < wlnkRecordSize {
		return 0, 0, 0, fmt.Errorf("gig: wlnk too short: %w", instpatch.ErrSizeMismatch)
	}
	phaseGroup = u16le(buf[2:4])
	channel = u32le(buf[4:8])
	tableIndex = u32le(buf[8:12])
	return tableIndex, phaseGroup, channel, nil
}

func u16le(b []byte) uint16 { return uint16(b[0]) | uint16(b[1])<<8 }

// decode3lnk decodes a 172-byte 3lnk chunk: subregion count, up to 5
// dimension descriptors, and 32 sample-pool indices (§6.1).
func decode3lnk(buf []byte) ([]DimensionDef, int, []uint32, error) {
	if len(buf) < lnkRecordSize {
		return nil, 0, nil, fmt.Errorf("gig: 3lnk too short: %w", instpatch.ErrSizeMismatch)
	}
	var hdr lnkHeaderRecord
	if err := decodeRecord(buf[:lnkHeaderSize], &hdr); err != nil {
		return nil, 0, nil, err
	}

	var dims []DimensionDef
	off := lnkHeaderSize
	for i := 0; i < lnkMaxDims; i++ {
		var d dimDescRecord
		if err := decodeRecord(buf[off:off+lnkDimDescSize], &d); err != nil {
			return nil, 0, nil, err
		}
		if d.Type != 0 || d.Bits != 0 || d.Zones != 0 {
			dims = append(dims, DimensionDef{
				Type:   DimensionType(d.Type),
				Bits:   d.Bits,
				Zones:  d.Zones,
				Param1: d.Param1,
			})
		}
		off += lnkDimDescSize
	}

	var indices []uint32
	for i := 0; i < lnkMaxSamples; i++ {
		indices = append(indices, u32le(buf[off:off+4]))
		off += 4
	}

	return dims, int(hdr.SubRegionCount), indices, nil
}

// read3ewl reads an already-opened LIST "3ewl" chunk's ordered "3ewa"
// 140-byte blocks, one per sub-region, preserved opaquely.
func read3ewl(e *instpatch.Engine) ([][]byte, error) {
	var blocks [][]byte
	for {
		c, err := e.ReadChunk()
		if err != nil {
			return nil, err
		}
		if c == nil {
			break
		}
		if c.Kind != instpatch.ChunkSUB || c.ID != instpatch.ID3ewa {
			instpatch.Warnf("gig: 3ewl contains unexpected chunk %q, skipping", c.ID)
			if err := e.EndChunk(); err != nil {
				return nil, err
			}
			continue
		}
		buf, err := e.ReadBytes(int(c.PayloadSize()))
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, buf)
		if err := e.EndChunk(); err != nil {
			return nil, err
		}
	}
	return blocks, nil
}

// readWsmp reads an already-opened "wsmp" chunk, duplicating dls's decode
// since its WaveSample type and record layout are unexported to dls.
func readWsmp(e *instpatch.Engine, c *instpatch.Chunk) (dls.WaveSample, error) {
	const wsmpHeaderSize = 20
	const loopRecordSize = 16
	var ws dls.WaveSample
	buf, err := e.ReadBytes(int(c.PayloadSize()))
	if err != nil {
		return ws, err
	}
	if len(buf) < wsmpHeaderSize {
		return ws, fmt.Errorf("gig: wsmp too short: %w", instpatch.ErrSizeMismatch)
	}
	ws.UnityNote = u16le(buf[4:6])
	ws.FineTune = int16(u16le(buf[6:8]))
	ws.Gain = int32(u32le(buf[8:12]))
	options := u32le(buf[12:16])
	ws.NoTruncate = options&1 != 0
	ws.NoCompress = options&2 != 0
	loopCount := u32le(buf[16:20])

	off := wsmpHeaderSize
	for i := uint32(0); i < loopCount; i++ {
		if off+loopRecordSize > len(buf) {
			instpatch.Warnf("gig: wsmp declares %d loops but payload is short, truncating", loopCount)
			break
		}
		ws.Loops = append(ws.Loops, dls.Loop{
			Type:   dls.LoopType(u32le(buf[off+4 : off+8])),
			Start:  u32le(buf[off+8 : off+12]),
			Length: u32le(buf[off+12 : off+16]),
		})
		off += loopRecordSize
	}
	return ws, nil
}

// readArticulators reads an already-opened LIST "lart"/"lar2" chunk's
// art1/art2 connection blocks, duplicated from dls for the same unexported-
// type reason as readWsmp.
func readArticulators(e *instpatch.Engine) (dls.ArticulatorList, error) {
	const artHeaderSize = 8
	const connRecordSize = 12
	var out dls.ArticulatorList
	for {
		c, err := e.ReadChunk()
		if err != nil {
			return nil, err
		}
		if c == nil {
			break
		}
		if c.Kind != instpatch.ChunkSUB || (c.ID != instpatch.IDart1 && c.ID != instpatch.IDart2) {
			instpatch.Warnf("gig: lart/lar2 contains unexpected chunk %q, skipping", c.ID)
			if err := e.EndChunk(); err != nil {
				return nil, err
			}
			continue
		}
		buf, err := e.ReadBytes(int(c.PayloadSize()))
		if err != nil {
			return nil, err
		}
		if len(buf) < artHeaderSize {
			return nil, fmt.Errorf("gig: art1/art2 too short: %w", instpatch.ErrSizeMismatch)
		}
		size := int(u32le(buf[0:4]))
		connections := u32le(buf[4:8])
		off := size
		if off < artHeaderSize {
			off = artHeaderSize
		}
		for i := uint32(0); i < connections; i++ {
			if off+connRecordSize > len(buf) {
				instpatch.Warnf("gig: art1/art2 declares %d connections but payload is short, truncating", connections)
				break
			}
			out = append(out, dls.Connection{
				Source:      u16le(buf[off : off+2]),
				Control:     u16le(buf[off+2 : off+4]),
				Destination: u16le(buf[off+4 : off+6]),
				Transform:   u16le(buf[off+6 : off+8]),
				Scale:       int32(u32le(buf[off+8 : off+12])),
			})
			off += connRecordSize
		}
		if err := e.EndChunk(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// readWvpl reads an already-opened LIST "wvpl" chunk's "wave" entries,
// additionally preserving each wave's GIG-only "smpl"/"3gix" blocks into
// its WaveExt.
func readWvpl(e *instpatch.Engine, f *File) ([]*dls.Wave, map[int64]*dls.Wave, error) {
	h := f.FileHandle
	payloadStart := e.GetChunk(-1).StartOffset
	var waves []*dls.Wave
	offsets := map[int64]*dls.Wave{}

	for {
		pos, err := h.Tell()
		if err != nil {
			return nil, nil, err
		}
		relOffset := pos - payloadStart
		c, err := e.ReadChunk()
		if err != nil {
			return nil, nil, err
		}
		if c == nil {
			break
		}
		if c.Kind != instpatch.ChunkLIST || c.Form != instpatch.IDwave {
			instpatch.Warnf("gig: wvpl contains unexpected chunk %q, skipping", c.ID)
			if err := e.EndChunk(); err != nil {
				return nil, nil, err
			}
			continue
		}

		w, err := readWave(e, h, f)
		if err != nil {
			return nil, nil, err
		}
		waves = append(waves, w)
		offsets[relOffset] = w

		if err := e.EndChunk(); err != nil {
			return nil, nil, err
		}
	}
	return waves, offsets, nil
}

func readWave(e *instpatch.Engine, h *instpatch.FileHandle, f *File) (*dls.Wave, error) {
	w := &dls.Wave{DLSID: dls.NewDLSID()}
	var haveFmt bool
	var formatTag, channels, bitsPerSample uint16
	var samplesPerSec uint32
	var dataOffset int64
	var dataSize int64

	for {
		c, err := e.ReadChunk()
		if err != nil {
			return nil, err
		}
		if c == nil {
			break
		}

		switch c.Kind {
		case instpatch.ChunkSUB:
			switch c.ID {
			case instpatch.IDfmt:
				buf, err := e.ReadBytes(int(c.PayloadSize()))
				if err != nil {
					return nil, err
				}
				if len(buf) < 16 {
					return nil, fmt.Errorf("gig: fmt too short: %w", instpatch.ErrSizeMismatch)
				}
				formatTag = u16le(buf[0:2])
				channels = u16le(buf[2:4])
				samplesPerSec = u32le(buf[4:8])
				bitsPerSample = u16le(buf[14:16])
				haveFmt = true
				w.Channels = channels
				w.BitsPerSample = bitsPerSample
			case instpatch.IDdata:
				dataOffset = c.StartOffset
				dataSize = int64(c.PayloadSize())
				if _, err := e.ReadBytes(int(c.PayloadSize())); err != nil {
					return nil, err
				}
			case instpatch.IDwsmp:
				ws, err := readWsmp(e, c)
				if err != nil {
					return nil, err
				}
				w.Sample = ws
			case instpatch.IDdlid:
				buf, err := e.ReadBytes(int(c.PayloadSize()))
				if err != nil {
					return nil, err
				}
				copy(w.DLSID[:], buf)
			case instpatch.IDsmpl:
				buf, err := e.ReadBytes(int(c.PayloadSize()))
				if err != nil {
					return nil, err
				}
				f.WaveExtFor(w).SamplerRaw = buf
			case instpatch.ID3gix:
				buf, err := e.ReadBytes(int(c.PayloadSize()))
				if err != nil {
					return nil, err
				}
				f.WaveExtFor(w).GroupIndexRaw = buf
			default:
				instpatch.Warnf("gig: skipping unknown chunk %q inside wave", c.ID)
			}

		case instpatch.ChunkLIST:
			switch c.Form {
			case instpatch.IDINFO:
				info := map[instpatch.FourCC]string{}
				if err := readInfo(e, info); err != nil {
					return nil, err
				}
				w.Name = info[instpatch.IDINAM]
			default:
				instpatch.Warnf("gig: skipping unknown LIST form %q inside wave", c.Form)
			}
		}

		if err := e.EndChunk(); err != nil {
			return nil, err
		}
	}

	if !haveFmt || dataSize <= 0 {
		instpatch.Warnf("gig: wave %q missing fmt/data, leaving unbacked", w.Name)
		return w, nil
	}
	const wavFormatPCM = 1
	if formatTag != wavFormatPCM {
		instpatch.Warnf("gig: wave %q uses non-PCM format tag %d, leaving unbacked", w.Name, formatTag)
		return w, nil
	}
	if channels != 1 {
		instpatch.Warnf("gig: wave %q has %d channels, only mono waves are backed with audio", w.Name, channels)
		return w, nil
	}

	var format instpatch.SampleFormat
	switch bitsPerSample {
	case 8:
		format = instpatch.FormatU8
	case 16:
		format = instpatch.FormatS16LE
	default:
		instpatch.Warnf("gig: wave %q has unsupported bit depth %d, leaving unbacked", w.Name, bitsPerSample)
		return w, nil
	}

	bpf := int64(format.BytesPerFrame())
	frameCount := dataSize / bpf
	data := instpatch.NewSampleData(w.Name)
	store := instpatch.NewFileStore(h, dataOffset, format, frameCount, samplesPerSec)
	data.AddStore(store)
	w.Data = data
	return w, nil
}
