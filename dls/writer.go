package dls

import (
	instpatch "github.com/instpatch/instpatch-go"
)

// Write serializes f as a complete DLS Level 2 file to h, following the
// same placeholder-then-back-patch chunk discipline as instpatch/sf2's
// writer (§4.3.2, generalized to DLS's chunk shapes by §6.1).
//
// Write takes f's read lock for its entire duration, matching sf2.Write's
// snapshot-under-shared-lock convention.
func Write(f *File, h *instpatch.FileHandle) error {
	f.RLock()
	defer f.RUnlock()

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

	return e.CloseChunk()
}

func writeVers(e *instpatch.Engine, f *File) error {
	if f.VersionMS == 0 && f.VersionLS == 0 {
		return nil
	}
	if err := e.StartSub(instpatch.IDvers); err != nil {
		return err
	}
	rec := versRecord{VersionMS: f.VersionMS, VersionLS: f.VersionLS}
	if err := e.WriteBytes(encodeRecord(rec)); err != nil {
		return err
	}
	return e.CloseChunk()
}

func writeDlid(e *instpatch.Engine, id DLSID) error {
	if id.IsZero() {
		return nil
	}
	if err := e.StartSub(instpatch.IDdlid); err != nil {
		return err
	}
	if err := e.WriteBytes(id[:]); err != nil {
		return err
	}
	return e.CloseChunk()
}

func writeInfoField(e *instpatch.Engine, id instpatch.FourCC, text string) error {
	if text == "" {
		return nil
	}
	if err := e.StartSub(id); err != nil {
		return err
	}
	b := append([]byte(text), 0)
	if err := e.WriteBytes(b); err != nil {
		return err
	}
	return e.CloseChunk()
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

func writeIns(e *instpatch.Engine, f *File, inst *Instrument) error {
	if err := e.StartList(instpatch.IDins); err != nil {
		return err
	}

	if err := e.StartSub(instpatch.IDinsh); err != nil {
		return err
	}
	bank := inst.Bank & 0x3FFF
	if inst.Percussion {
		bank |= inshPercussionBit
	}
	rec := inshRecord{Regions: uint32(len(inst.Regions)), Bank: bank, Instrument: inst.Program}
	if err := e.WriteBytes(encodeRecord(rec)); err != nil {
		return err
	}
	if err := e.CloseChunk(); err != nil {
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

func writeRgn(e *instpatch.Engine, f *File, r *Region) error {
	if err := e.StartList(instpatch.IDrgn); err != nil {
		return err
	}

	if err := e.StartSub(instpatch.IDrgnh); err != nil {
		return err
	}
	var opts uint16
	if r.SelfNonExclusive {
		opts |= rgnhSelfNonExclusive
	}
	rec := rgnhRecord{
		KeyLow: uint16(r.KeyRange.Low), KeyHigh: uint16(r.KeyRange.High),
		VelLow: uint16(r.VelRange.Low), VelHigh: uint16(r.VelRange.High),
		Options: opts, KeyGroup: r.KeyGroup,
	}
	buf := encodeRecord(rec)
	if r.Layer != 0 {
		buf = append(buf, byte(r.Layer), byte(r.Layer>>8))
	}
	if err := e.WriteBytes(buf); err != nil {
		return err
	}
	if err := e.CloseChunk(); err != nil {
		return err
	}

	poolIndex := poolIndexOf(f, r.WaveRef)
	if err := e.StartSub(instpatch.IDwlnk); err != nil {
		return err
	}
	wl := wlnkRecord{PhaseGroup: r.PhaseGroup, Channel: r.Channel, TableIndex: poolIndex}
	if err := e.WriteBytes(encodeRecord(wl)); err != nil {
		return err
	}
	if err := e.CloseChunk(); err != nil {
		return err
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

	return e.CloseChunk()
}

// poolIndexOf returns wave's index within f.Waves, the region's pool-table
// index under the writer's 1:1 pool-index-equals-wave-index convention.
func poolIndexOf(f *File, wave *Wave) uint32 {
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

func writeWsmp(e *instpatch.Engine, ws WaveSample) error {
	if err := e.StartSub(instpatch.IDwsmp); err != nil {
		return err
	}
	var opts uint32
	if ws.NoTruncate {
		opts |= wsmpNoTruncate
	}
	if ws.NoCompress {
		opts |= wsmpNoCompress
	}
	hdr := wsmpHeaderRecord{
		Size: wsmpHeaderSize, UnityNote: ws.UnityNote, FineTune: ws.FineTune,
		Gain: ws.Gain, Options: opts, LoopCount: uint32(len(ws.Loops)),
	}
	buf := encodeRecord(hdr)
	for _, lp := range ws.Loops {
		lr := loopRecord{Size: loopRecordSize, Type: uint32(lp.Type), Start: lp.Start, Length: lp.Length}
		buf = append(buf, encodeRecord(lr)...)
	}
	if err := e.WriteBytes(buf); err != nil {
		return err
	}
	return e.CloseChunk()
}

func writeArticulators(e *instpatch.Engine, arts ArticulatorList) error {
	if err := e.StartList(instpatch.IDlart); err != nil {
		return err
	}
	if err := e.StartSub(instpatch.IDart1); err != nil {
		return err
	}
	hdr := artHeaderRecord{Size: artHeaderSize, Connections: uint32(len(arts))}
	buf := encodeRecord(hdr)
	for _, c := range arts {
		cr := connRecord{Source: c.Source, Control: c.Control, Destination: c.Destination, Transform: c.Transform, Scale: c.Scale}
		buf = append(buf, encodeRecord(cr)...)
	}
	if err := e.WriteBytes(buf); err != nil {
		return err
	}
	if err := e.CloseChunk(); err != nil {
		return err
	}
	return e.CloseChunk()
}

// writeWvpl writes every wave in f.Waves order and returns each wave's
// byte offset (its own LIST header's position relative to wvpl's payload
// start), matching the convention readWvpl expects on the way back in.
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
		if err := writeWave(e, w); err != nil {
			return nil, err
		}
	}

	if err := e.CloseChunk(); err != nil {
		return nil, err
	}
	return offsets, nil
}

func writeWave(e *instpatch.Engine, w *Wave) error {
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
	bpf := uint16(format.BytesPerFrame())

	if err := e.StartSub(instpatch.IDfmt); err != nil {
		return err
	}
	fr := fmtRecord{
		FormatTag: wavFormatPCM, Channels: channels, SamplesPerSec: rate,
		AvgBytesPerSec: rate * uint32(bpf), BlockAlign: bpf, BitsPerSample: w.BitsPerSample,
	}
	if fr.BitsPerSample == 0 {
		fr.BitsPerSample = 16
	}
	if err := e.WriteBytes(encodeRecord(fr)); err != nil {
		return err
	}
	if err := e.CloseChunk(); err != nil {
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

func streamWave(e *instpatch.Engine, w *Wave, format instpatch.SampleFormat) error {
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
	if err := e.StartSub(instpatch.IDptbl); err != nil {
		return err
	}
	hdr := ptblHeaderRecord{Size: ptblHeaderSize, Cues: uint32(len(offsets))}
	buf := encodeRecord(hdr)
	for _, off := range offsets {
		buf = append(buf, encodeRecord(cueRecord{Offset: off})...)
	}
	if err := e.WriteBytes(buf); err != nil {
		return err
	}
	return e.CloseChunk()
}
