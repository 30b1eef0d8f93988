package sf2

import (
	"fmt"

	instpatch "github.com/instpatch/instpatch-go"
)

// readPdta parses the pdta LIST's nine fixed-size record arrays and
// resolves the hydra into the patch tree, per §4.3.1's "load then fixup"
// protocol: phdr/pbag/pmod/pgen are decoded and held in memory while
// inst/ibag/imod/igen/shdr are read and turned into Instruments+Samples,
// so that by the time preset zones are built, GenInstrumentID's pool index
// resolves directly to an *Instrument.
func readPdta(e *instpatch.Engine, f *File, sd sdtaInfo, h *instpatch.FileHandle) error {
	presetHeaders, err := readRecordChunk(e, instpatch.IDphdr, presetHeaderSize)
	if err != nil {
		return err
	}
	presetBagsRaw, err := readRecordChunk(e, instpatch.IDpbag, bagRecordSize)
	if err != nil {
		return err
	}
	presetModsRaw, err := readRecordChunk(e, instpatch.IDpmod, modRecordSize)
	if err != nil {
		return err
	}
	presetGensRaw, err := readRecordChunk(e, instpatch.IDpgen, genRecordSize)
	if err != nil {
		return err
	}
	instHeadersRaw, err := readRecordChunk(e, instpatch.IDinst, instHeaderSize)
	if err != nil {
		return err
	}
	instBagsRaw, err := readRecordChunk(e, instpatch.IDibag, bagRecordSize)
	if err != nil {
		return err
	}
	instModsRaw, err := readRecordChunk(e, instpatch.IDimod, modRecordSize)
	if err != nil {
		return err
	}
	instGensRaw, err := readRecordChunk(e, instpatch.IDigen, genRecordSize)
	if err != nil {
		return err
	}
	shdrRaw, err := readRecordChunk(e, instpatch.IDshdr, sampleHeaderSize)
	if err != nil {
		return err
	}

	presetHdrs, err := decodePresetHeaders(presetHeaders)
	if err != nil {
		return err
	}
	presetBags, err := decodeBags(presetBagsRaw)
	if err != nil {
		return err
	}
	presetMods, err := decodeMods(presetModsRaw)
	if err != nil {
		return err
	}
	presetGens, err := decodeGens(presetGensRaw)
	if err != nil {
		return err
	}
	instHdrs, err := decodeInstHeaders(instHeadersRaw)
	if err != nil {
		return err
	}
	instBags, err := decodeBags(instBagsRaw)
	if err != nil {
		return err
	}
	instMods, err := decodeMods(instModsRaw)
	if err != nil {
		return err
	}
	instGens, err := decodeGens(instGensRaw)
	if err != nil {
		return err
	}
	shdrs, err := decodeSampleHeaders(shdrRaw)
	if err != nil {
		return err
	}

	samples, err := buildSamples(shdrs, sd, h)
	if err != nil {
		return err
	}
	f.Samples = samples

	instruments, err := buildInstruments(instHdrs, instBags, instMods, instGens, samples)
	if err != nil {
		return err
	}
	f.Instruments = instruments

	presets, err := buildPresets(presetHdrs, presetBags, presetMods, presetGens, instruments)
	if err != nil {
		return err
	}
	f.Presets = presets

	return nil
}

// readRecordChunk reads a single SUB chunk known to hold a flat array of
// fixed-size records and returns its raw bytes, verifying the size is an
// exact multiple of recSize (§4.3.1's "malformed hydra: size not a
// multiple of the record size" check).
func readRecordChunk(e *instpatch.Engine, id instpatch.FourCC, recSize int) ([]byte, error) {
	c, err := e.ReadChunkVerify(instpatch.ChunkSUB, id)
	if err != nil {
		return nil, err
	}
	if int(c.PayloadSize())%recSize != 0 {
		return nil, fmt.Errorf("sf2: %q size %d is not a multiple of %d: %w", id, c.PayloadSize(), recSize, instpatch.ErrSizeMismatch)
	}
	buf, err := e.ReadBytes(int(c.PayloadSize()))
	if err != nil {
		return nil, err
	}
	return buf, e.EndChunk()
}

func decodePresetHeaders(buf []byte) ([]presetHeaderRecord, error) {
	n := len(buf) / presetHeaderSize
	out := make([]presetHeaderRecord, n)
	for i := range out {
		if err := decodeRecord(buf[i*presetHeaderSize:(i+1)*presetHeaderSize], &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func decodeInstHeaders(buf []byte) ([]instHeaderRecord, error) {
	n := len(buf) / instHeaderSize
	out := make([]instHeaderRecord, n)
	for i := range out {
		if err := decodeRecord(buf[i*instHeaderSize:(i+1)*instHeaderSize], &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func decodeSampleHeaders(buf []byte) ([]sampleHeaderRecord, error) {
	n := len(buf) / sampleHeaderSize
	out := make([]sampleHeaderRecord, n)
	for i := range out {
		if err := decodeRecord(buf[i*sampleHeaderSize:(i+1)*sampleHeaderSize], &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func decodeBags(buf []byte) ([]bagRecord, error) {
	n := len(buf) / bagRecordSize
	out := make([]bagRecord, n)
	for i := range out {
		if err := decodeRecord(buf[i*bagRecordSize:(i+1)*bagRecordSize], &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func decodeMods(buf []byte) ([]modRecord, error) {
	n := len(buf) / modRecordSize
	out := make([]modRecord, n)
	for i := range out {
		if err := decodeRecord(buf[i*modRecordSize:(i+1)*modRecordSize], &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func decodeGens(buf []byte) ([]genRecord, error) {
	n := len(buf) / genRecordSize
	out := make([]genRecord, n)
	for i := range out {
		if err := decodeRecord(buf[i*genRecordSize:(i+1)*genRecordSize], &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// buildSamples turns the raw shdr records into *Sample, attaching a
// SampleStore for each one backed by the sdta chunk's file offsets
// (§3.3, §3.5). The final sentinel "EOS" record is excluded.
func buildSamples(shdrs []sampleHeaderRecord, sd sdtaInfo, h *instpatch.FileHandle) ([]*Sample, error) {
	if len(shdrs) == 0 {
		return nil, fmt.Errorf("sf2: shdr is empty, missing terminal record: %w", instpatch.ErrInvalidData)
	}
	recs := shdrs[:len(shdrs)-1] // drop the terminal sentinel
	out := make([]*Sample, len(recs))

	for i, r := range recs {
		name := fixed20ToName(r.SampleName)
		s := &Sample{
			Name:     name,
			Rate:     r.SampleRate,
			RootNote: r.OriginalPitch,
			FineTune: r.PitchCorrect,
		}

		switch {
		case r.SampleType&sfSampleRight != 0:
			s.ChannelRole = instpatch.ChannelRight
		case r.SampleType&sfSampleLeft != 0:
			s.ChannelRole = instpatch.ChannelLeft
		default:
			s.ChannelRole = instpatch.ChannelMono
		}
		s.isROM = r.SampleType&sfSampleROM != 0

		if r.End < r.Start {
			instpatch.Warnf("sf2: sample %q has end < start, treating as empty", name)
			out[i] = s
			s.Data = instpatch.NewSampleData(name)
			continue
		}

		frameCount := int64(r.End - r.Start)
		s.LoopStart = int64(r.StartLoop) - int64(r.Start)
		s.LoopEnd = int64(r.EndLoop) - int64(r.Start)

		data := instpatch.NewSampleData(name)
		if s.isROM {
			store := instpatch.NewRomStore(instpatch.FormatS16LE, frameCount, r.SampleRate, r.Start)
			data.AddStore(store)
		} else if frameCount <= 0 || int64(r.End) > sd.smplFrames {
			instpatch.Warnf("sf2: sample %q data range [%d,%d) exceeds smpl data (%d frames), leaving unbacked", name, r.Start, r.End, sd.smplFrames)
		} else if sd.is24 {
			smplByteOff := sd.smplOffset + int64(r.Start)*2
			sm24ByteOff := sd.sm24Offset + int64(r.Start)
			store := instpatch.NewSplit24Store(h, smplByteOff, sm24ByteOff, frameCount, r.SampleRate)
			data.AddStore(store)
		} else {
			byteOff := sd.smplOffset + int64(r.Start)*2
			store := instpatch.NewFileStore(h, byteOff, instpatch.FormatS16LE, frameCount, r.SampleRate)
			data.AddStore(store)
		}
		s.Data = data
		out[i] = s
	}

	// Resolve each LEFT/RIGHT sample's link index into a direct mutual
	// pointer (§3.3's stereo-link invariant). A sample only links to
	// another of the opposite role; anything else is a malformed file and
	// is left unlinked with a warning rather than rejected outright.
	for i, r := range recs {
		s := out[i]
		if s.ChannelRole != instpatch.ChannelLeft && s.ChannelRole != instpatch.ChannelRight {
			continue
		}
		if s.Linked != nil || r.SampleLink == 0 {
			continue
		}
		j := int(r.SampleLink)
		if j < 0 || j >= len(out) || out[j] == s {
			instpatch.Warnf("sf2: sample %q has invalid stereo link index %d", s.Name, j)
			continue
		}
		if err := s.SetLinked(out[j]); err != nil {
			instpatch.Warnf("sf2: sample %q and %q cannot be linked: %v", s.Name, out[j].Name, err)
		}
	}

	return out, nil
}

// buildInstruments builds the instrument pool, resolving each instrument
// zone's SAMPLE_ID generator into a direct *Sample pointer and absorbing an
// unterminated first zone as the instrument's global zone, per §4.3.1's
// zone-building rules and §3.4's global-zone absorption.
func buildInstruments(hdrs []instHeaderRecord, bags []bagRecord, mods []modRecord, gens []genRecord, samples []*Sample) ([]*Instrument, error) {
	if len(hdrs) == 0 {
		return nil, fmt.Errorf("sf2: inst is empty, missing terminal record: %w", instpatch.ErrInvalidData)
	}
	out := make([]*Instrument, 0, len(hdrs)-1)

	for i := 0; i < len(hdrs)-1; i++ {
		inst := &Instrument{Name: fixed20ToName(hdrs[i].InstName)}

		bagStart := int(hdrs[i].InstBagNdx)
		bagEnd := int(hdrs[i+1].InstBagNdx)
		if bagEnd < bagStart || bagEnd >= len(bags) {
			return nil, fmt.Errorf("sf2: instrument %q has invalid bag range [%d,%d): %w", inst.Name, bagStart, bagEnd, instpatch.ErrInvalidData)
		}

		for z := bagStart; z < bagEnd; z++ {
			genStart := int(bags[z].GenNdx)
			genEnd := int(bags[z+1].GenNdx)
			modStart := int(bags[z].ModNdx)
			modEnd := int(bags[z+1].ModNdx)
			if genEnd < genStart || genEnd > len(gens) || modEnd < modStart || modEnd > len(mods) {
				instpatch.Warnf("sf2: instrument %q zone %d has invalid gen/mod range, skipping", inst.Name, z-bagStart)
				continue
			}

			genArr, sampleIdx, hasSampleID := buildZoneGenerators(gens[genStart:genEnd], false)
			zoneMods := buildZoneModulators(mods[modStart:modEnd])

			if !hasSampleID {
				if z == bagStart {
					inst.GlobalGenerators = genArr
					inst.GlobalModulators = zoneMods
				} else {
					instpatch.Warnf("sf2: instrument %q zone %d has no terminal sampleID generator, discarding", inst.Name, z-bagStart)
				}
				continue
			}

			if sampleIdx < 0 || sampleIdx >= len(samples) {
				instpatch.Warnf("sf2: instrument %q zone %d references out-of-range sample %d, dropping zone", inst.Name, z-bagStart, sampleIdx)
				continue
			}

			zone := inst.AddZone(samples[sampleIdx])
			zone.Generators = genArr
			zone.Modulators = zoneMods
			if genArr.IsSet(GenKeyRange) {
				lo, hi := genArr.GetRange(GenKeyRange)
				zone.NoteRange = Range{lo, hi}
			}
			if genArr.IsSet(GenVelRange) {
				lo, hi := genArr.GetRange(GenVelRange)
				zone.VelRange = Range{lo, hi}
			}
		}

		out = append(out, inst)
	}

	return out, nil
}

// buildPresets mirrors buildInstruments one level up, resolving
// GenInstrumentID into a direct *Instrument pointer.
func buildPresets(hdrs []presetHeaderRecord, bags []bagRecord, mods []modRecord, gens []genRecord, instruments []*Instrument) ([]*Preset, error) {
	if len(hdrs) == 0 {
		return nil, fmt.Errorf("sf2: phdr is empty, missing terminal record: %w", instpatch.ErrInvalidData)
	}
	out := make([]*Preset, 0, len(hdrs)-1)

	for i := 0; i < len(hdrs)-1; i++ {
		h := hdrs[i]
		p := &Preset{
			Name:       fixed20ToName(h.PresetName),
			Bank:       int(h.Bank),
			Program:    int(h.Preset),
			Library:    h.Library,
			Genre:      h.Genre,
			Morphology: h.Morphology,
		}

		bagStart := int(h.PresetBagNdx)
		bagEnd := int(hdrs[i+1].PresetBagNdx)
		if bagEnd < bagStart || bagEnd >= len(bags) {
			return nil, fmt.Errorf("sf2: preset %q has invalid bag range [%d,%d): %w", p.Name, bagStart, bagEnd, instpatch.ErrInvalidData)
		}

		for z := bagStart; z < bagEnd; z++ {
			genStart := int(bags[z].GenNdx)
			genEnd := int(bags[z+1].GenNdx)
			modStart := int(bags[z].ModNdx)
			modEnd := int(bags[z+1].ModNdx)
			if genEnd < genStart || genEnd > len(gens) || modEnd < modStart || modEnd > len(mods) {
				instpatch.Warnf("sf2: preset %q zone %d has invalid gen/mod range, skipping", p.Name, z-bagStart)
				continue
			}

			genArr, instIdx, hasInstID := buildZoneGenerators(gens[genStart:genEnd], true)
			zoneMods := buildZoneModulators(mods[modStart:modEnd])

			if !hasInstID {
				if z == bagStart {
					p.GlobalGenerators = genArr
					p.GlobalModulators = zoneMods
				} else {
					instpatch.Warnf("sf2: preset %q zone %d has no terminal instrumentID generator, discarding", p.Name, z-bagStart)
				}
				continue
			}

			if instIdx < 0 || instIdx >= len(instruments) {
				instpatch.Warnf("sf2: preset %q zone %d references out-of-range instrument %d, dropping zone", p.Name, z-bagStart, instIdx)
				continue
			}

			zone := p.AddZone(instruments[instIdx])
			zone.Generators = genArr
			zone.Modulators = zoneMods
			if genArr.IsSet(GenKeyRange) {
				lo, hi := genArr.GetRange(GenKeyRange)
				zone.NoteRange = Range{lo, hi}
			}
			if genArr.IsSet(GenVelRange) {
				lo, hi := genArr.GetRange(GenVelRange)
				zone.VelRange = Range{lo, hi}
			}
		}

		out = append(out, p)
	}

	return out, nil
}

// buildZoneGenerators decodes a zone's raw gen records into a GenArray,
// enforcing §4.3.1's ordering rule (KeyRange must come first if present,
// VelRange at position 0 or 1, the terminal SampleID/InstrumentID — if any
// — must be last and is excluded from the returned GenArray since it's
// pool-routing information, not a synthesis parameter). A KeyRange or
// VelRange found out of place is ignored with a warning. hasTerminal
// reports whether a terminal link generator was found; poolIndex is its
// amount.
func buildZoneGenerators(recs []genRecord, wantInstrumentID bool) (arr *GenArray, poolIndex int, hasTerminal bool) {
	arr = &GenArray{}
	poolIndex = -1
	terminalID := GenSampleID
	if wantInstrumentID {
		terminalID = GenInstrumentID
	}

	for i, r := range recs {
		id := GenID(r.GenOper)
		if id == terminalID {
			if i != len(recs)-1 {
				instpatch.Warnf("sf2: terminal generator %v not last in zone, ignoring generators after it", id)
			}
			poolIndex = int(r.Amount)
			hasTerminal = true
			break
		}
		valid := id.ValidAtInst()
		if wantInstrumentID {
			valid = id.ValidAtPreset()
		}
		if !valid {
			instpatch.Warnf("sf2: generator %v is not valid in this zone kind, ignoring", id)
			continue
		}
		if (id == GenKeyRange && i != 0) || (id == GenVelRange && i > 1) {
			instpatch.Warnf("sf2: generator %v out of order at position %d, ignoring", id, i)
			continue
		}
		arr.Set(id, r.Amount)
	}

	return arr, poolIndex, hasTerminal
}

func buildZoneModulators(recs []modRecord) ModList {
	out := make(ModList, 0, len(recs))
	for _, r := range recs {
		out = append(out, Modulator{
			Src:       ModSrc(r.SrcOper),
			Dest:      GenID(r.DestOper),
			Amount:    r.Amount,
			AmountSrc: ModSrc(r.AmtSrcOper),
			Transform: ModTransform(r.TransOper),
		})
	}
	return out
}
