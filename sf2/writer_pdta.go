package sf2

import (
	instpatch "github.com/instpatch/instpatch-go"
)

// writePdta emits the nine hydra record arrays in file order, building
// dense zero-based index maps for samples and instruments as it goes so
// that GenSampleID/GenInstrumentID amounts resolve back to the same
// pointers on the next read (§4.3.2 step 5's "dense index maps").
func writePdta(e *instpatch.Engine, f *File) error {
	if err := e.StartList(instpatch.IDpdta); err != nil {
		return err
	}

	sampleIndex := make(map[*Sample]int, len(f.Samples))
	for i, s := range f.Samples {
		sampleIndex[s] = i
	}
	instIndex := make(map[*Instrument]int, len(f.Instruments))
	for i, in := range f.Instruments {
		instIndex[in] = i
	}

	presetBags, presetGens, presetMods, presetHdrs := buildPresetRecords(f.Presets, instIndex)
	if err := writeFixedChunk(e, instpatch.IDphdr, presetHdrs, presetHeaderSize); err != nil {
		return err
	}
	if err := writeFixedChunk(e, instpatch.IDpbag, presetBags, bagRecordSize); err != nil {
		return err
	}
	if err := writeFixedChunk(e, instpatch.IDpmod, presetMods, modRecordSize); err != nil {
		return err
	}
	if err := writeFixedChunk(e, instpatch.IDpgen, presetGens, genRecordSize); err != nil {
		return err
	}

	instBags, instGens, instMods, instHdrs := buildInstRecords(f.Instruments, sampleIndex)
	if err := writeFixedChunk(e, instpatch.IDinst, instHdrs, instHeaderSize); err != nil {
		return err
	}
	if err := writeFixedChunk(e, instpatch.IDibag, instBags, bagRecordSize); err != nil {
		return err
	}
	if err := writeFixedChunk(e, instpatch.IDimod, instMods, modRecordSize); err != nil {
		return err
	}
	if err := writeFixedChunk(e, instpatch.IDigen, instGens, genRecordSize); err != nil {
		return err
	}

	shdrs := buildSampleHeaderRecords(f.Samples, sampleIndex)
	if err := writeFixedChunk(e, instpatch.IDshdr, shdrs, sampleHeaderSize); err != nil {
		return err
	}

	return e.CloseChunk()
}

func writeFixedChunk[T any](e *instpatch.Engine, id instpatch.FourCC, recs []T, recSize int) error {
	if err := e.StartSub(id); err != nil {
		return err
	}
	for i := range recs {
		if err := e.WriteBytes(encodeRecord(&recs[i])); err != nil {
			return err
		}
	}
	return e.CloseChunk()
}

// effectiveRanges returns a generator array equal to arr but with
// GenKeyRange/GenVelRange set from the zone's Range fields whenever they
// narrow the default full range, so that zones built through the AddZone
// API (which sets Range fields, not raw generators) round-trip correctly.
func effectiveRanges(arr *GenArray, note, vel Range) *GenArray {
	out := arr.Clone()
	if note != (Range{0, 127}) {
		out.SetRange(GenKeyRange, note.Low, note.High)
	}
	if vel != (Range{0, 127}) {
		out.SetRange(GenVelRange, vel.Low, vel.High)
	}
	return out
}

// emitGenerators serializes arr's explicitly-set generators in the
// required on-disk order (§4.3.1: KeyRange first if present, VelRange at
// position 0 or 1, then everything else, with the terminal link generator
// — if any — forced last) and appends a terminal SampleID/InstrumentID
// record when terminalIndex >= 0.
func emitGenerators(arr *GenArray, terminalID GenID, terminalIndex int) []genRecord {
	var out []genRecord
	if arr.IsSet(GenKeyRange) {
		out = append(out, genRecord{GenOper: uint16(GenKeyRange), Amount: arr.Get(GenKeyRange)})
	}
	if arr.IsSet(GenVelRange) {
		out = append(out, genRecord{GenOper: uint16(GenVelRange), Amount: arr.Get(GenVelRange)})
	}
	for _, id := range arr.SetIDs() {
		if id == GenKeyRange || id == GenVelRange {
			continue
		}
		out = append(out, genRecord{GenOper: uint16(id), Amount: arr.Get(id)})
	}
	if terminalIndex >= 0 {
		out = append(out, genRecord{GenOper: uint16(terminalID), Amount: int16(terminalIndex)})
	}
	return out
}

func emitModulators(mods ModList) []modRecord {
	out := make([]modRecord, len(mods))
	for i, m := range mods {
		out[i] = modRecord{
			SrcOper:    uint16(m.Src),
			DestOper:   uint16(m.Dest),
			Amount:     m.Amount,
			AmtSrcOper: uint16(m.AmountSrc),
			TransOper:  uint16(m.Transform),
		}
	}
	return out
}

func buildInstRecords(instruments []*Instrument, sampleIndex map[*Sample]int) (bags []bagRecord, gens []genRecord, mods []modRecord, hdrs []instHeaderRecord) {
	for _, inst := range instruments {
		bagStart := len(bags)

		if inst.GlobalGenerators != nil && (inst.GlobalGenerators.SetIDs() != nil || len(inst.GlobalModulators) > 0) {
			bags = append(bags, bagRecord{GenNdx: uint16(len(gens)), ModNdx: uint16(len(mods))})
			gens = append(gens, emitGenerators(inst.GlobalGenerators, GenSampleID, -1)...)
			mods = append(mods, emitModulators(inst.GlobalModulators)...)
		}

		for _, z := range inst.Zones {
			bags = append(bags, bagRecord{GenNdx: uint16(len(gens)), ModNdx: uint16(len(mods))})
			idx, ok := sampleIndex[z.SampleRef]
			if !ok {
				idx = 0
			}
			arr := effectiveRanges(z.Generators, z.NoteRange, z.VelRange)
			gens = append(gens, emitGenerators(arr, GenSampleID, idx)...)
			mods = append(mods, emitModulators(z.Modulators)...)
		}

		hdrs = append(hdrs, instHeaderRecord{InstName: nameToFixed20(inst.Name), InstBagNdx: uint16(bagStart)})
	}

	// Terminal "EOI" sentinel.
	bags = append(bags, bagRecord{GenNdx: uint16(len(gens)), ModNdx: uint16(len(mods))})
	hdrs = append(hdrs, instHeaderRecord{InstName: nameToFixed20("EOI"), InstBagNdx: uint16(len(bags) - 1)})

	return bags, gens, mods, hdrs
}

func buildPresetRecords(presets []*Preset, instIndex map[*Instrument]int) (bags []bagRecord, gens []genRecord, mods []modRecord, hdrs []presetHeaderRecord) {
	for _, p := range presets {
		bagStart := len(bags)

		if p.GlobalGenerators != nil && (p.GlobalGenerators.SetIDs() != nil || len(p.GlobalModulators) > 0) {
			bags = append(bags, bagRecord{GenNdx: uint16(len(gens)), ModNdx: uint16(len(mods))})
			gens = append(gens, emitGenerators(p.GlobalGenerators, GenInstrumentID, -1)...)
			mods = append(mods, emitModulators(p.GlobalModulators)...)
		}

		for _, z := range p.Zones {
			bags = append(bags, bagRecord{GenNdx: uint16(len(gens)), ModNdx: uint16(len(mods))})
			idx, ok := instIndex[z.InstRef]
			if !ok {
				idx = 0
			}
			arr := effectiveRanges(z.Generators, z.NoteRange, z.VelRange)
			gens = append(gens, emitGenerators(arr, GenInstrumentID, idx)...)
			mods = append(mods, emitModulators(z.Modulators)...)
		}

		hdrs = append(hdrs, presetHeaderRecord{
			PresetName:   nameToFixed20(p.Name),
			Preset:       uint16(p.Program),
			Bank:         uint16(p.Bank),
			PresetBagNdx: uint16(bagStart),
			Library:      p.Library,
			Genre:        p.Genre,
			Morphology:   p.Morphology,
		})
	}

	bags = append(bags, bagRecord{GenNdx: uint16(len(gens)), ModNdx: uint16(len(mods))})
	hdrs = append(hdrs, presetHeaderRecord{PresetName: nameToFixed20("EOP"), PresetBagNdx: uint16(len(bags) - 1)})

	return bags, gens, mods, hdrs
}

func buildSampleHeaderRecords(samples []*Sample, sampleIndex map[*Sample]int) []sampleHeaderRecord {
	out := make([]sampleHeaderRecord, 0, len(samples)+1)
	var cursor uint32

	for _, s := range samples {
		rec := sampleHeaderRecord{
			SampleName:    nameToFixed20(s.Name),
			SampleRate:    s.Rate,
			OriginalPitch: s.RootNote,
			PitchCorrect:  s.FineTune,
		}

		if romStore, ok := romStoreOf(s); ok {
			rec.Start = romStore.ROMAddress()
			rec.End = rec.Start + uint32(romStore.FrameCount())
			rec.StartLoop = rec.Start + uint32(s.LoopStart)
			rec.EndLoop = rec.Start + uint32(s.LoopEnd)
		} else {
			frames := uint32(s.FrameCount())
			rec.Start = cursor
			rec.End = cursor + frames
			rec.StartLoop = cursor + uint32(s.LoopStart)
			rec.EndLoop = cursor + uint32(s.LoopEnd)
			// Leave a 46-frame zero guard band before the next sample's data
			// begins (§4.3.2 step 4); streamSample16/streamSampleLSB write
			// the matching zero frames during the PCM streaming pass.
			cursor += frames + sampleGuardFrames
		}

		rec.SampleType = sampleTypeBits(s)
		if s.Linked != nil {
			rec.SampleLink = uint16(sampleIndex[s.Linked])
			rec.SampleType |= sfSampleLink
		}

		out = append(out, rec)
	}

	out = append(out, sampleHeaderRecord{SampleName: nameToFixed20("EOS")})
	return out
}

func romStoreOf(s *Sample) (*instpatch.RomStore, bool) {
	if s.Data == nil {
		return nil, false
	}
	for _, st := range s.Data.Stores() {
		if rs, ok := st.(*instpatch.RomStore); ok {
			return rs, true
		}
	}
	return nil, false
}

func sampleTypeBits(s *Sample) uint16 {
	var t uint16
	switch s.ChannelRole {
	case instpatch.ChannelLeft:
		t = sfSampleLeft
	case instpatch.ChannelRight:
		t = sfSampleRight
	default:
		t = sfSampleMono
	}
	if s.isROM {
		t |= sfSampleROM
	}
	return t
}
