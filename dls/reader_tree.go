package dls

import (
	"fmt"

	instpatch "github.com/instpatch/instpatch-go"
)

// readLins reads an already-opened LIST "lins" chunk's "ins " instrument
// entries (§4.4).
func readLins(e *instpatch.Engine) ([]*Instrument, []regionLink, error) {
	var insts []*Instrument
	var pending []regionLink

	for {
		c, err := e.ReadChunk()
		if err != nil {
			return nil, nil, err
		}
		if c == nil {
			break
		}
		if err := checkGig(c.ID); err != nil {
			return nil, nil, err
		}
		if c.Kind != instpatch.ChunkLIST || c.Form != instpatch.IDins {
			instpatch.Warnf("dls: lins contains unexpected chunk %q, skipping", c.ID)
			if err := e.EndChunk(); err != nil {
				return nil, nil, err
			}
			continue
		}

		inst, links, err := readIns(e)
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

// readIns reads an already-opened LIST "ins " chunk: insh header, optional
// INFO, optional instrument-global lart/lar2, and lrgn region list.
func readIns(e *instpatch.Engine) (*Instrument, []regionLink, error) {
	inst := &Instrument{DLSID: NewDLSID()}
	var pending []regionLink
	haveHeader := false

	for {
		c, err := e.ReadChunk()
		if err != nil {
			return nil, nil, err
		}
		if c == nil {
			break
		}
		if err := checkGig(c.ID); err != nil {
			return nil, nil, err
		}

		switch c.Kind {
		case instpatch.ChunkSUB:
			switch c.ID {
			case instpatch.IDinsh:
				buf, err := e.ReadBytes(int(c.PayloadSize()))
				if err != nil {
					return nil, nil, err
				}
				if len(buf) < inshRecordSize {
					return nil, nil, fmt.Errorf("dls: insh too short: %w", instpatch.ErrSizeMismatch)
				}
				var rec inshRecord
				if err := decodeRecord(buf[:inshRecordSize], &rec); err != nil {
					return nil, nil, err
				}
				inst.Percussion = rec.Bank&inshPercussionBit != 0
				inst.Bank = rec.Bank & 0x3FFF
				inst.Program = rec.Instrument
				haveHeader = true
			case instpatch.IDdlid:
				buf, err := e.ReadBytes(int(c.PayloadSize()))
				if err != nil {
					return nil, nil, err
				}
				copy(inst.DLSID[:], buf)
			default:
				instpatch.Warnf("dls: skipping unknown chunk %q inside ins", c.ID)
			}

		case instpatch.ChunkLIST:
			if err := checkGig(c.Form); err != nil {
				return nil, nil, err
			}
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
				regions, links, err := readLrgn(e, inst)
				if err != nil {
					return nil, nil, err
				}
				inst.Regions = regions
				pending = append(pending, links...)
			default:
				instpatch.Warnf("dls: skipping unknown LIST form %q inside ins", c.Form)
			}
		}

		if err := e.EndChunk(); err != nil {
			return nil, nil, err
		}
	}

	if !haveHeader {
		instpatch.Warnf("dls: instrument %q has no insh header", inst.Name)
	}
	return inst, pending, nil
}

// readLrgn reads an already-opened LIST "lrgn" chunk's "rgn "/"rgn2"
// entries.
func readLrgn(e *instpatch.Engine, inst *Instrument) ([]*Region, []regionLink, error) {
	var regions []*Region
	var pending []regionLink

	for {
		c, err := e.ReadChunk()
		if err != nil {
			return nil, nil, err
		}
		if c == nil {
			break
		}
		if err := checkGig(c.ID); err != nil {
			return nil, nil, err
		}
		if c.Kind != instpatch.ChunkLIST || (c.Form != instpatch.IDrgn && c.Form != instpatch.IDrgn2) {
			instpatch.Warnf("dls: lrgn contains unexpected chunk %q, skipping", c.ID)
			if err := e.EndChunk(); err != nil {
				return nil, nil, err
			}
			continue
		}

		region, link, err := readRgn(e, inst)
		if err != nil {
			return nil, nil, err
		}
		regions = append(regions, region)
		if link != nil {
			pending = append(pending, *link)
		}

		if err := e.EndChunk(); err != nil {
			return nil, nil, err
		}
	}
	return regions, pending, nil
}

// readRgn reads an already-opened LIST "rgn "/"rgn2" chunk: rgnh, wlnk,
// optional wsmp, optional lart/lar2.
func readRgn(e *instpatch.Engine, inst *Instrument) (*Region, *regionLink, error) {
	r := &Region{parent: inst, KeyRange: Range{0, 127}, VelRange: Range{0, 127}}
	var link *regionLink

	for {
		c, err := e.ReadChunk()
		if err != nil {
			return nil, nil, err
		}
		if c == nil {
			break
		}
		if err := checkGig(c.ID); err != nil {
			return nil, nil, err
		}

		switch c.Kind {
		case instpatch.ChunkSUB:
			switch c.ID {
			case instpatch.IDrgnh:
				buf, err := e.ReadBytes(int(c.PayloadSize()))
				if err != nil {
					return nil, nil, err
				}
				if len(buf) < rgnhRecordSize {
					return nil, nil, fmt.Errorf("dls: rgnh too short: %w", instpatch.ErrSizeMismatch)
				}
				var rec rgnhRecord
				if err := decodeRecord(buf[:rgnhRecordSize], &rec); err != nil {
					return nil, nil, err
				}
				r.KeyRange = Range{uint8(rec.KeyLow), uint8(rec.KeyHigh)}
				r.VelRange = Range{uint8(rec.VelLow), uint8(rec.VelHigh)}
				r.KeyGroup = rec.KeyGroup
				r.SelfNonExclusive = rec.Options&rgnhSelfNonExclusive != 0
				if len(buf) >= rgnhRecordSize+2 {
					r.Layer = uint16(buf[rgnhRecordSize]) | uint16(buf[rgnhRecordSize+1])<<8
				}
			case instpatch.IDwlnk:
				buf, err := e.ReadBytes(int(c.PayloadSize()))
				if err != nil {
					return nil, nil, err
				}
				if len(buf) < wlnkRecordSize {
					return nil, nil, fmt.Errorf("dls: wlnk too short: %w", instpatch.ErrSizeMismatch)
				}
				var rec wlnkRecord
				if err := decodeRecord(buf[:wlnkRecordSize], &rec); err != nil {
					return nil, nil, err
				}
				r.PhaseGroup = rec.PhaseGroup
				r.Channel = rec.Channel
				link = &regionLink{region: r, index: rec.TableIndex}
			case instpatch.IDwsmp:
				ws, err := readWsmp(e, c)
				if err != nil {
					return nil, nil, err
				}
				r.Sample = ws
			default:
				instpatch.Warnf("dls: skipping unknown chunk %q inside region", c.ID)
			}

		case instpatch.ChunkLIST:
			if err := checkGig(c.Form); err != nil {
				return nil, nil, err
			}
			switch c.Form {
			case instpatch.IDlart, instpatch.IDlar2:
				arts, err := readArticulators(e)
				if err != nil {
					return nil, nil, err
				}
				r.Articulators = append(r.Articulators, arts...)
			default:
				instpatch.Warnf("dls: skipping unknown LIST form %q inside region", c.Form)
			}
		}

		if err := e.EndChunk(); err != nil {
			return nil, nil, err
		}
	}

	return r, link, nil
}

// readWsmp reads an already-opened "wsmp" chunk's header plus its loop
// list (§6.1: 20-byte header, 16 bytes per loop).
func readWsmp(e *instpatch.Engine, c *instpatch.Chunk) (WaveSample, error) {
	var ws WaveSample
	buf, err := e.ReadBytes(int(c.PayloadSize()))
	if err != nil {
		return ws, err
	}
	if len(buf) < wsmpHeaderSize {
		return ws, fmt.Errorf("dls: wsmp too short: %w", instpatch.ErrSizeMismatch)
	}
	var hdr wsmpHeaderRecord
	if err := decodeRecord(buf[:wsmpHeaderSize], &hdr); err != nil {
		return ws, err
	}
	ws.UnityNote = hdr.UnityNote
	ws.FineTune = hdr.FineTune
	ws.Gain = hdr.Gain
	ws.NoTruncate = hdr.Options&wsmpNoTruncate != 0
	ws.NoCompress = hdr.Options&wsmpNoCompress != 0

	off := wsmpHeaderSize
	for i := uint32(0); i < hdr.LoopCount; i++ {
		if off+loopRecordSize > len(buf) {
			instpatch.Warnf("dls: wsmp declares %d loops but payload is short, truncating", hdr.LoopCount)
			break
		}
		var lr loopRecord
		if err := decodeRecord(buf[off:off+loopRecordSize], &lr); err != nil {
			return ws, err
		}
		ws.Loops = append(ws.Loops, Loop{Type: LoopType(lr.Type), Start: lr.Start, Length: lr.Length})
		off += loopRecordSize
	}
	return ws, nil
}

// readArticulators reads an already-opened LIST "lart"/"lar2" chunk's
// "art1"/"art2" connection-block array (§6.1: 8-byte header, 12 bytes per
// connection).
func readArticulators(e *instpatch.Engine) (ArticulatorList, error) {
	var out ArticulatorList
	for {
		c, err := e.ReadChunk()
		if err != nil {
			return nil, err
		}
		if c == nil {
			break
		}
		if c.Kind != instpatch.ChunkSUB || (c.ID != instpatch.IDart1 && c.ID != instpatch.IDart2) {
			instpatch.Warnf("dls: lart/lar2 contains unexpected chunk %q, skipping", c.ID)
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
			return nil, fmt.Errorf("dls: art1/art2 too short: %w", instpatch.ErrSizeMismatch)
		}
		var hdr artHeaderRecord
		if err := decodeRecord(buf[:artHeaderSize], &hdr); err != nil {
			return nil, err
		}
		off := int(hdr.Size)
		if off < artHeaderSize {
			off = artHeaderSize
		}
		for i := uint32(0); i < hdr.Connections; i++ {
			if off+connRecordSize > len(buf) {
				instpatch.Warnf("dls: art1/art2 declares %d connections but payload is short, truncating", hdr.Connections)
				break
			}
			var cr connRecord
			if err := decodeRecord(buf[off:off+connRecordSize], &cr); err != nil {
				return nil, err
			}
			out = append(out, Connection{
				Source: cr.Source, Control: cr.Control, Destination: cr.Destination,
				Transform: cr.Transform, Scale: cr.Scale,
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
// recording each wave's byte offset relative to wvpl's own payload start so
// ptbl cue offsets (which are relative to the same origin, §4.4) resolve to
// the right Wave.
func readWvpl(e *instpatch.Engine, h *instpatch.FileHandle) ([]*Wave, map[int64]*Wave, error) {
	payloadStart := e.GetChunk(-1).StartOffset // wvpl's own payload start, the offset origin
	var waves []*Wave
	offsets := map[int64]*Wave{}

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
		if err := checkGig(c.ID); err != nil {
			return nil, nil, err
		}
		if c.Kind != instpatch.ChunkLIST || c.Form != instpatch.IDwave {
			instpatch.Warnf("dls: wvpl contains unexpected chunk %q, skipping", c.ID)
			if err := e.EndChunk(); err != nil {
				return nil, nil, err
			}
			continue
		}

		w, err := readWave(e, h)
		if err != nil {
			return nil, nil, err
		}
		w.byteOffset = relOffset
		waves = append(waves, w)
		offsets[relOffset] = w

		if err := e.EndChunk(); err != nil {
			return nil, nil, err
		}
	}
	return waves, offsets, nil
}

// readWave reads an already-opened LIST "wave" chunk: fmt, data, optional
// wsmp, optional INFO. Only PCM format is supported for real audio backing;
// non-PCM or multi-channel waves are kept as metadata-only Wave entries
// with no SampleData, matching the reader's warn-and-continue policy (§7)
// rather than failing the whole file over one malformed sample.
func readWave(e *instpatch.Engine, h *instpatch.FileHandle) (*Wave, error) {
	w := &Wave{DLSID: NewDLSID()}
	var fmtRec fmtRecord
	var haveFmt bool
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
		if err := checkGig(c.ID); err != nil {
			return nil, err
		}

		switch c.Kind {
		case instpatch.ChunkSUB:
			switch c.ID {
			case instpatch.IDfmt:
				buf, err := e.ReadBytes(int(c.PayloadSize()))
				if err != nil {
					return nil, err
				}
				if len(buf) < fmtRecordSize {
					return nil, fmt.Errorf("dls: fmt too short: %w", instpatch.ErrSizeMismatch)
				}
				if err := decodeRecord(buf[:fmtRecordSize], &fmtRec); err != nil {
					return nil, err
				}
				haveFmt = true
				w.Channels = fmtRec.Channels
				w.BitsPerSample = fmtRec.BitsPerSample
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
			default:
				instpatch.Warnf("dls: skipping unknown chunk %q inside wave", c.ID)
			}

		case instpatch.ChunkLIST:
			if err := checkGig(c.Form); err != nil {
				return nil, err
			}
			switch c.Form {
			case instpatch.IDINFO:
				info := map[instpatch.FourCC]string{}
				if err := readInfo(e, info); err != nil {
					return nil, err
				}
				w.Name = info[instpatch.IDINAM]
			default:
				instpatch.Warnf("dls: skipping unknown LIST form %q inside wave", c.Form)
			}
		}

		if err := e.EndChunk(); err != nil {
			return nil, err
		}
	}

	if !haveFmt || dataSize <= 0 {
		instpatch.Warnf("dls: wave %q missing fmt/data, leaving unbacked", w.Name)
		return w, nil
	}
	if fmtRec.FormatTag != wavFormatPCM {
		instpatch.Warnf("dls: wave %q uses non-PCM format tag %d, leaving unbacked", w.Name, fmtRec.FormatTag)
		return w, nil
	}
	if fmtRec.Channels != 1 {
		instpatch.Warnf("dls: wave %q has %d channels, only mono waves are backed with audio", w.Name, fmtRec.Channels)
		return w, nil
	}

	var format instpatch.SampleFormat
	switch fmtRec.BitsPerSample {
	case 8:
		format = instpatch.FormatU8
	case 16:
		format = instpatch.FormatS16LE
	default:
		instpatch.Warnf("dls: wave %q has unsupported bit depth %d, leaving unbacked", w.Name, fmtRec.BitsPerSample)
		return w, nil
	}

	bpf := int64(format.BytesPerFrame())
	frameCount := dataSize / bpf
	data := instpatch.NewSampleData(w.Name)
	store := instpatch.NewFileStore(h, dataOffset, format, frameCount, fmtRec.SamplesPerSec)
	data.AddStore(store)
	w.Data = data
	return w, nil
}

// resolveRegionLinks maps each pending region's wlnk pool-table index
// through poolTable (cue offset) and waveOffsets (offset -> Wave) to set
// WaveRef, per §4.4's pool-table resolution.
func resolveRegionLinks(pending []regionLink, poolTable []uint32, waveOffsets map[int64]*Wave) {
	for _, link := range pending {
		if int(link.index) >= len(poolTable) {
			instpatch.Warnf("dls: region references out-of-range pool index %d", link.index)
			continue
		}
		offset := int64(poolTable[link.index])
		w, ok := waveOffsets[offset]
		if !ok {
			instpatch.Warnf("dls: region's pool index %d resolves to no known wave (offset %d)", link.index, offset)
			continue
		}
		link.region.WaveRef = w
	}
}
