package gig

import (
	dls "github.com/instpatch/instpatch-go/dls"
	instpatch "github.com/instpatch/instpatch-go"
)

// Write serializes f as a complete GIG file (a DLS Level 2 stream carrying
// the GIG-only dimension/sub-region/opaque-block extensions) to h,
// following the same placeholder-then-back-patch discipline as dls.Write
// (§4.3.2, §4.4).
func Write(f *File, h *instpatch.FileHandle) error {
	f.Lock()
	defer f.Unlock()

	e, err := instpatch.NewWriteEngine(h, instpatch.IDDLS)
	if err != nil {
		return err
	}

	if err := writeVers(e, f); err != nil {
		return err
	}
	if err := writeDlid(e, f.DLSID); err != nil {
		return err
	}
	if err := writeInfo(e, f.Info); err != nil {
		return err
	}
	if err := writeLins(e, f); err != nil {
		return err
	}

	waveOffsets, err := writeWvpl(e, f, h)
	if err != nil {
		return err
	}
	if err := writePtbl(e, f, waveOffsets); err != nil {
		return err
	}
	if len(f.DimensionNamesRaw) > 0 {
		if err := writeRawChunk(e, instpatch.ID3dnl, f.DimensionNamesRaw); err != nil {
			return err
		}
	}
	if len(f.SampleGroupDefsRaw) > 0 {
		if err := writeRawChunk(e, instpatch.ID3ddp, f.SampleGroupDefsRaw); err != nil {
			return err
		}
	}
	if len(f.SampleGroups) > 0 {
		if err := writeSampleGroups(e, f.SampleGroups); err != nil {
			return err
		}
	}

	return e.CloseChunk()
}

func putU16(buf []byte, off int, v uint16) {
	buf[off] = byte(v)
	buf[off+1] = byte(v >> 8)
}

func putU32(buf []byte, off int, v uint32) {
	buf[off] = byte(v)
	buf[off+1] = byte(v >> 8)
	buf[off+2] = byte(v >> 16)
	buf[off+3] = byte(v >> 24)
}

func writeRawChunk(e *instpatch.Engine, id instpatch.FourCC, raw []byte) error {
	if err := e.StartSub(id); err != nil {
		return err
	}
	if err := e.WriteBytes(raw); err != nil {
		return err
	}
	return e.CloseChunk()
}

func writeVers(e *instpatch.Engine, f *File) error {
	if f.VersionMS == 0 && f.VersionLS == 0 {
		return nil
	}
	buf := make([]byte, 8)
	putU32(buf, 0, f.VersionMS)
	putU32(buf, 4, f.VersionLS)
	return writeRawChunk(e, instpatch.IDvers, buf)
}

func writeDlid(e *instpatch.Engine, id dls.DLSID) error {
	if id.IsZero() {
		return nil
	}
	return writeRawChunk(e, instpatch.IDdlid, id[:])
}

func writeInfoField(e *instpatch.Engine, id instpatch.FourCC, text string) error {
	if text == "" {
		return nil
	}
	return writeRawChunk(e, id, append([]byte(text), 0))
}

func writeInfo(e *instpatch.Engine, info map[instpatch.FourCC]string) error {
	if len(info) == 0 {
		return nil
	}
	if err := e.StartList(instpatch.IDINFO); err != nil {
		return err
	}
	if name, ok := info[instpatch.IDINAM]; ok {
		if err := writeInfoField(e, instpatch.IDINAM, name); err != nil {
			return err
		}
	}
	for id, text := range info {
		if id == instpatch.IDINAM {
			continue
		}
		if err := writeInfoField(e, id, text); err != nil {
			return err
		}
	}
	return e.CloseChunk()
}

func writeLins(e *instpatch.Engine, f *File) error {
	if len(f.Instruments) == 0 {
		return nil
	}
	if err := e.StartList(instpatch.IDlins); err != nil {
		return err
	}
	for _, inst := range f.Instruments {
		if err := writeIns(e, f, inst); err != nil {
			return err
		}
	}
	return e.CloseChunk()
}

func writeIns(e *instpatch.Engine, f *File, inst *dls.Instrument) error {
	if err := e.StartList(instpatch.IDins); err != nil {
		return err
	}

	bank := inst.Bank & 0x3FFF
	if inst.Percussion {
		bank |= 1 << 31
	}
	hdr := make([]byte, 12)
	putU32(hdr, 0, uint32(len(inst.Regions)))
	putU32(hdr, 4, bank)
	putU32(hdr, 8, inst.Program)
	if err := writeRawChunk(e, instpatch.IDinsh, hdr); err != nil {
		return err
	}

	if !inst.DLSID.IsZero() {
		if err := writeDlid(e, inst.DLSID); err != nil {
			return err
		}
	}

	if inst.Name != "" {
		if err := e.StartList(instpatch.IDINFO); err != nil {
			return err
		}
		if err := writeInfoField(e, instpatch.IDINAM, inst.Name); err != nil {
			return err
		}
		if err := e.CloseChunk(); err != nil {
			return err
		}
	}

	if len(inst.GlobalArticulators) > 0 {
		if err := writeArticulators(e, inst.GlobalArticulators); err != nil {
			return err
		}
	}

	if err := e.StartList(instpatch.IDlrgn); err != nil {
		return err
	}
	for _, r := range inst.Regions {
		if err := writeRgn(e, f, r); err != nil {
			return err
		}
	}
	if err := e.CloseChunk(); err != nil {
		return err
	}

	return e.CloseChunk()
}

func writeRgn(e *instpatch.Engine, f *File, r *dls.Region) error {
	if err := e.StartList(instpatch.IDrgn); err != nil {
		return err
	}

	var opts uint16
	if r.SelfNonExclusive {
		opts |= 1
	}
	rgnh := make([]byte, 12, 14)
	putU16(rgnh, 0, uint16(r.KeyRange.Low))
	putU16(rgnh, 2, uint16(r.KeyRange.High))
	putU16(rgnh, 4, uint16(r.VelRange.Low))
	putU16(rgnh, 6, uint16(r.VelRange.High))
	putU16(rgnh, 8, opts)
	putU16(rgnh, 10, r.KeyGroup)
	if r.Layer != 0 {
		rgnh = append(rgnh, byte(r.Layer), byte(r.Layer>>8))
	}
	if err := writeRawChunk(e, instpatch.IDrgnh, rgnh); err != nil {
		return err
	}

	ext, haveExt := f.RegionExts[r]
	hasSubRegions := haveExt && len(ext.SubRegions) > 0

	if !hasSubRegions || r.WaveRef != nil {
		poolIndex := poolIndexOf(f, r.WaveRef)
		wlnk := make([]byte, 12)
		putU16(wlnk, 2, r.PhaseGroup)
		putU32(wlnk, 4, r.Channel)
		putU32(wlnk, 8, poolIndex)
		if err := writeRawChunk(e, instpatch.IDwlnk, wlnk); err != nil {
			return err
		}
	}

	if len(r.Sample.Loops) > 0 || r.Sample.UnityNote != 0 || r.Sample.FineTune != 0 || r.Sample.Gain != 0 {
		if err := writeWsmp(e, r.Sample); err != nil {
			return err
		}
	}

	if len(r.Articulators) > 0 {
		if err := writeArticulators(e, r.Articulators); err != nil {
			return err
		}
	}

	if haveExt && (len(ext.Dimensions) > 0 || len(ext.SubRegions) > 0) {
		if err := write3lnk(e, f, ext); err != nil {
			return err
		}
		if err := write3ewl(e, ext); err != nil {
			return err
		}
	}
	if haveExt && len(ext.ExclusiveGroupRaw) > 0 {
		if err := writeRawChunk(e, instpatch.ID3ewg, ext.ExclusiveGroupRaw); err != nil {
			return err
		}
	}

	return e.CloseChunk()
}

// poolIndexOf returns wave's index within f.Waves, the region's (or
// sub-region's) pool-table index under the writer's 1:1
// pool-index-equals-wave-index convention, shared with dls's writer.
func poolIndexOf(f *File, wave *dls.Wave) uint32 {
	if wave == nil {
		return 0
	}
	for i, w := range f.Waves {
		if w == wave {
			return uint32(i)
		}
	}
	return 0
}

func writeWsmp(e *instpatch.Engine, ws dls.WaveSample) error {
	var opts uint32
	if ws.NoTruncate {
		opts |= 1
	}
	if ws.NoCompress {
		opts |= 2
	}
	const wsmpHeaderSize = 20
	buf := make([]byte, wsmpHeaderSize)
	putU32(buf, 0, wsmpHeaderSize)
	putU16(buf, 4, ws.UnityNote)
	putU16(buf, 6, uint16(ws.FineTune))
	putU32(buf, 8, uint32(ws.Gain))
	putU32(buf, 12, opts)
	putU32(buf, 16, uint32(len(ws.Loops)))
	for _, lp := range ws.Loops {
		lr := make([]byte, 16)
		putU32(lr, 0, 16)
		putU32(lr, 4, uint32(lp.Type))
		putU32(lr, 8, lp.Start)
		putU32(lr, 12, lp.Length)
		buf = append(buf, lr...)
	}
	return writeRawChunk(e, instpatch.IDwsmp, buf)
}

func writeArticulators(e *instpatch.Engine, arts dls.ArticulatorList) error {
	if err := e.StartList(instpatch.IDlart); err != nil {
		return err
	}
	const artHeaderSize = 8
	buf := make([]byte, artHeaderSize)
	putU32(buf, 0, artHeaderSize)
	putU32(buf, 4, uint32(len(arts)))
	for _, c := range arts {
		cr := make([]byte, 12)
		putU16(cr, 0, c.Source)
		putU16(cr, 2, c.Control)
		putU16(cr, 4, c.Destination)
		putU16(cr, 6, c.Transform)
		putU32(cr, 8, uint32(c.Scale))
		buf = append(buf, cr...)
	}
	if err := writeRawChunk(e, instpatch.IDart1, buf); err != nil {
		return err
	}
	return e.CloseChunk()
}

// write3lnk writes the 172-byte dimension-table/sample-index chunk for a
// region with sub-regions (§6.1).
func write3lnk(e *instpatch.Engine, f *File, ext *RegionExt) error {
	buf := make([]byte, lnkRecordSize)
	hdr := lnkHeaderRecord{SubRegionCount: uint32(len(ext.SubRegions))}
	copy(buf[:lnkHeaderSize], encodeRecord(hdr))

	off := lnkHeaderSize
	for i := 0; i < lnkMaxDims; i++ {
		var d dimDescRecord
		if i < len(ext.Dimensions) {
			dd := ext.Dimensions[i]
			d = dimDescRecord{Type: uint8(dd.Type), Bits: dd.Bits, Zones: dd.Zones, Param1: dd.Param1}
		}
		copy(buf[off:off+lnkDimDescSize], encodeRecord(d))
		off += lnkDimDescSize
	}

	for i := 0; i < lnkMaxSamples; i++ {
		idx := uint32(noSampleIndex)
		if i < len(ext.SubRegions) {
			idx = poolIndexOf(f, ext.SubRegions[i].Wave)
			if ext.SubRegions[i].Wave == nil {
				idx = noSampleIndex
			}
		}
		putU32(buf, off, idx)
		off += 4
	}

	return writeRawChunk(e, instpatch.ID3lnk, buf)
}

// write3ewl writes the LIST "3ewl" chunk holding exactly one "3ewa" opaque
// block per sub-region, in sub-region order, so the reader can re-pair
// blocks with sub-regions positionally. A sub-region with no EffectRaw
// (never read from disk) gets a zero-filled block rather than being
// omitted, preserving that 1:1 correspondence (§4.4's opaque-block
// preservation requirement; §6.1's fixed 140-byte size).
func write3ewl(e *instpatch.Engine, ext *RegionExt) error {
	if len(ext.SubRegions) == 0 {
		return nil
	}
	if err := e.StartList(instpatch.ID3ewl); err != nil {
		return err
	}
	for _, sr := range ext.SubRegions {
		block := make([]byte, ewaRecordSize)
		copy(block, sr.EffectRaw)
		if err := writeRawChunk(e, instpatch.ID3ewa, block); err != nil {
			return err
		}
	}
	return e.CloseChunk()
}

// writeWvpl writes every wave in f.Waves order and returns each wave's byte
// offset relative to wvpl's payload start, matching dls.writeWvpl's
// convention and readWvpl's expectations.
func writeWvpl(e *instpatch.Engine, f *File, h *instpatch.FileHandle) ([]uint32, error) {
	offsets := make([]uint32, len(f.Waves))
	if len(f.Waves) == 0 {
		return offsets, nil
	}

	if err := e.StartList(instpatch.IDwvpl); err != nil {
		return nil, err
	}
	payloadStart := e.GetChunk(-1).StartOffset

	for i, w := range f.Waves {
		pos, err := h.Tell()
		if err != nil {
			return nil, err
		}
		offsets[i] = uint32(pos - payloadStart)
		if err := writeWave(e, f, w); err != nil {
			return nil, err
		}
	}

	if err := e.CloseChunk(); err != nil {
		return nil, err
	}
	return offsets, nil
}

func writeWave(e *instpatch.Engine, f *File, w *dls.Wave) error {
	if err := e.StartList(instpatch.IDwave); err != nil {
		return err
	}

	if !w.DLSID.IsZero() {
		if err := writeDlid(e, w.DLSID); err != nil {
			return err
		}
	}

	format := instpatch.FormatS16LE
	if w.BitsPerSample == 8 {
		format = instpatch.FormatU8
	}
	channels := w.Channels
	if channels == 0 {
		channels = 1
	}
	var rate uint32
	if w.Data != nil {
		if store := w.Data.Best(format); store != nil {
			rate = store.SampleRate()
		}
	}
	bits := w.BitsPerSample
	if bits == 0 {
		bits = 16
	}
	bpf := uint16(format.BytesPerFrame())

	const wavFormatPCM = 1
	fmtBuf := make([]byte, 16)
	putU16(fmtBuf, 0, wavFormatPCM)
	putU16(fmtBuf, 2, channels)
	putU32(fmtBuf, 4, rate)
	putU32(fmtBuf, 8, rate*uint32(bpf))
	putU16(fmtBuf, 12, bpf)
	putU16(fmtBuf, 14, bits)
	if err := writeRawChunk(e, instpatch.IDfmt, fmtBuf); err != nil {
		return err
	}

	if err := e.StartSub(instpatch.IDdata); err != nil {
		return err
	}
	if err := streamWave(e, w, format); err != nil {
		return err
	}
	if err := e.CloseChunk(); err != nil {
		return err
	}

	if len(w.Sample.Loops) > 0 || w.Sample.UnityNote != 0 || w.Sample.FineTune != 0 || w.Sample.Gain != 0 {
		if err := writeWsmp(e, w.Sample); err != nil {
			return err
		}
	}

	if ext, ok := f.WaveExts[w]; ok {
		if len(ext.SamplerRaw) > 0 {
			if err := writeRawChunk(e, instpatch.IDsmpl, ext.SamplerRaw); err != nil {
				return err
			}
		}
		if len(ext.GroupIndexRaw) > 0 {
			if err := writeRawChunk(e, instpatch.ID3gix, ext.GroupIndexRaw); err != nil {
				return err
			}
		}
	}

	if w.Name != "" {
		if err := e.StartList(instpatch.IDINFO); err != nil {
			return err
		}
		if err := writeInfoField(e, instpatch.IDINAM, w.Name); err != nil {
			return err
		}
		if err := e.CloseChunk(); err != nil {
			return err
		}
	}

	return e.CloseChunk()
}

func streamWave(e *instpatch.Engine, w *dls.Wave, format instpatch.SampleFormat) error {
	if w.Data == nil {
		return nil
	}
	store := w.Data.Best(format)
	if store == nil {
		return nil
	}
	n := store.FrameCount()
	if n == 0 {
		return nil
	}
	h, err := store.Open(instpatch.ModeRead)
	if err != nil {
		return err
	}
	defer h.Close()

	bpf := store.Format().BytesPerFrame()
	const chunkFrames = 4096
	buf := make([]byte, chunkFrames*bpf)
	for off := int64(0); off < n; off += chunkFrames {
		n2 := n - off
		if n2 > chunkFrames {
			n2 = chunkFrames
		}
		if err := store.Read(h, off, n2, buf[:n2*int64(bpf)]); err != nil {
			return err
		}
		if err := e.WriteBytes(buf[:n2*int64(bpf)]); err != nil {
			return err
		}
	}
	return nil
}

func writePtbl(e *instpatch.Engine, f *File, offsets []uint32) error {
	if len(f.Waves) == 0 {
		return nil
	}
	const ptblHeaderSize = 8
	buf := make([]byte, ptblHeaderSize)
	putU32(buf, 0, ptblHeaderSize)
	putU32(buf, 4, uint32(len(offsets)))
	for _, off := range offsets {
		cue := make([]byte, 4)
		putU32(cue, 0, off)
		buf = append(buf, cue...)
	}
	return writeRawChunk(e, instpatch.IDptbl, buf)
}

// writeSampleGroups writes the 3gri/3gnl/3gnm sample-group name list.
func writeSampleGroups(e *instpatch.Engine, groups []SampleGroup) error {
	if err := e.StartList(instpatch.ID3gri); err != nil {
		return err
	}
	if err := e.StartList(instpatch.ID3gnl); err != nil {
		return err
	}
	for _, g := range groups {
		name := make([]byte, gnmRecordSize)
		copy(name, g.Name)
		if err := writeRawChunk(e, instpatch.ID3gnm, name); err != nil {
			return err
		}
	}
	if err := e.CloseChunk(); err != nil {
		return err
	}
	return e.CloseChunk()
}
