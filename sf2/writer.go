package sf2

import (
	"strings"

	instpatch "github.com/instpatch/instpatch-go"
)

// Write serializes f as a complete SoundFont file to h, implementing the
// back-patching protocol of §4.3.2: every chunk's size field is written as
// a placeholder and patched once its payload is known, via the Engine's
// write-side bookkeeping (riff.go's closeWriteChunk).
//
// Write takes f's read lock for its entire duration (§5: writers snapshot
// under a shared lock rather than requiring exclusive access, since they
// never mutate the tree).
func Write(f *File, h *instpatch.FileHandle) error {
	f.RLock()
	defer f.RUnlock()

	e, err := instpatch.NewWriteEngine(h, instpatch.IDsfbk)
	if err != nil {
		return err
	}

	if err := writeInfo(e, f); err != nil {
		return err
	}
	if err := writeSdta(e, f); err != nil {
		return err
	}
	if err := writePdta(e, f); err != nil {
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
	b := append([]byte(text), 0) // NUL terminator; RIFF pad byte handles odd total length
	if err := e.WriteBytes(b); err != nil {
		return err
	}
	return e.CloseChunk()
}

// writeInfo emits the mandatory ifil first, then every other INFO field in
// the map, applying the ISFT round-trip augmentation rule of SPEC_FULL.md
// item 1: the original ISFT's text is split on its first comma, the part
// before it is replaced by "appname (libname version)" (just "libname
// version" when no application name is set), and the part from the comma
// on — such as a "created:" suffix — is kept.
func writeInfo(e *instpatch.Engine, f *File) error {
	if err := e.StartList(instpatch.IDINFO); err != nil {
		return err
	}

	if err := e.StartSub(instpatch.IDifil); err != nil {
		return err
	}
	if err := e.WriteBytes([]byte{
		byte(f.FileVersion.Major), byte(f.FileVersion.Major >> 8),
		byte(f.FileVersion.Minor), byte(f.FileVersion.Minor >> 8),
	}); err != nil {
		return err
	}
	if err := e.CloseChunk(); err != nil {
		return err
	}

	if name, ok := f.Info[instpatch.IDisng]; ok {
		if err := writeInfoField(e, instpatch.IDisng, name); err != nil {
			return err
		}
	}
	if name, ok := f.Info[instpatch.IDINAM]; ok {
		if err := writeInfoField(e, instpatch.IDINAM, name); err != nil {
			return err
		}
	}

	if f.ROMVersion.IsSet {
		if err := e.StartSub(instpatch.IDiver); err != nil {
			return err
		}
		if err := e.WriteBytes([]byte{
			byte(f.ROMVersion.Major), byte(f.ROMVersion.Major >> 8),
			byte(f.ROMVersion.Minor), byte(f.ROMVersion.Minor >> 8),
		}); err != nil {
			return err
		}
		if err := e.CloseChunk(); err != nil {
			return err
		}
	}

	for id, text := range f.Info {
		switch id {
		case instpatch.IDifil, instpatch.IDiver, instpatch.IDisng, instpatch.IDINAM, instpatch.IDISFT:
			continue // handled specially above/below
		default:
			if err := writeInfoField(e, id, text); err != nil {
				return err
			}
		}
	}

	if err := writeInfoField(e, instpatch.IDISFT, augmentISFT(f.Info[instpatch.IDISFT])); err != nil {
		return err
	}

	return e.CloseChunk()
}

func augmentISFT(existing string) string {
	tag := instpatch.LibraryName + " " + instpatch.LibraryVersion
	if app := instpatch.ApplicationName(); app != "" {
		tag = app + " (" + tag + ")"
	}
	suffix := ""
	if i := strings.IndexByte(existing, ','); i >= 0 {
		suffix = existing[i:]
	}
	return tag + suffix
}

// writeSdta concatenates every sample's backing 16-bit data into one smpl
// chunk (plus sm24 if any sample is 24-bit), per §4.3.2 step 4 — "samples
// sharing file-backed stores may be written in place; otherwise their
// frames are streamed through a read buffer." This implementation always
// re-streams, which is simpler and always correct; in-place reuse is an
// optimization a future writer could add without changing the format.
func writeSdta(e *instpatch.Engine, f *File) error {
	if err := e.StartList(instpatch.IDsdta); err != nil {
		return err
	}

	any24 := false
	for _, s := range f.Samples {
		if s.Data == nil {
			continue
		}
		if store := s.Data.Best(instpatch.FormatS24LE); store != nil && store.Format() == instpatch.FormatS24LE {
			any24 = true
		}
	}

	if err := e.StartSub(instpatch.IDsmpl); err != nil {
		return err
	}
	for _, s := range f.Samples {
		if err := streamSample16(e, s); err != nil {
			return err
		}
	}
	if err := e.CloseChunk(); err != nil {
		return err
	}

	if any24 {
		if err := e.StartSub(instpatch.IDsm24); err != nil {
			return err
		}
		for _, s := range f.Samples {
			if err := streamSampleLSB(e, s); err != nil {
				return err
			}
		}
		if err := e.CloseChunk(); err != nil {
			return err
		}
	}

	return e.CloseChunk()
}

// streamSample16 writes s's 16-bit (or 16-bit-truncated) frame data into
// the smpl chunk, followed by sampleGuardFrames of zero-valued frames
// (§4.3.2 step 4) — matching the guard band buildSampleHeaderRecords
// already reserved in the sample's Start/End cursor arithmetic, so the
// on-disk stream position always agrees with the header offsets. ROM
// samples never occupy smpl space, so they write nothing and reserve no
// guard band either.
func streamSample16(e *instpatch.Engine, s *Sample) error {
	if s.isROM {
		return nil
	}
	if err := writeSampleFrames16(e, s); err != nil {
		return err
	}
	return e.WriteBytes(make([]byte, sampleGuardFrames*2))
}

func writeSampleFrames16(e *instpatch.Engine, s *Sample) error {
	if s.Data == nil {
		return nil
	}
	store := s.Data.Best(instpatch.FormatS16LE)
	if store == nil {
		store = s.Data.Best(instpatch.FormatS24LE)
	}
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

	const chunkFrames = 4096
	buf := make([]byte, chunkFrames*3)
	out := make([]byte, chunkFrames*2)
	for off := int64(0); off < n; off += chunkFrames {
		n2 := n - off
		if n2 > chunkFrames {
			n2 = chunkFrames
		}
		if store.Format() == instpatch.FormatS24LE {
			if err := store.Read(h, off, n2, buf[:n2*3]); err != nil {
				return err
			}
			for i := int64(0); i < n2; i++ {
				v := instpatch.Frame24At(buf, int(i))
				out[i*2] = byte(v >> 8)
				out[i*2+1] = byte(v >> 16)
			}
			if err := e.WriteBytes(out[:n2*2]); err != nil {
				return err
			}
		} else {
			if err := store.Read(h, off, n2, out[:n2*2]); err != nil {
				return err
			}
			if err := e.WriteBytes(out[:n2*2]); err != nil {
				return err
			}
		}
	}
	return nil
}

// streamSampleLSB mirrors streamSample16 on the sm24 side: it writes s's
// 24-bit LSBs (or n zero LSBs for a non-24-bit sample, to keep sm24
// aligned with smpl per §3.5), followed by the same sampleGuardFrames
// zero-byte guard band streamSample16 appends, so smpl and sm24 advance
// by identical frame counts for every sample.
func streamSampleLSB(e *instpatch.Engine, s *Sample) error {
	if s.isROM {
		return nil
	}

	var n int64
	if s.Data != nil {
		n = s.Data.FrameCount()
	}
	store := sample24Store(s)
	if store == nil {
		if err := e.WriteBytes(make([]byte, n)); err != nil {
			return err
		}
		return e.WriteBytes(make([]byte, sampleGuardFrames))
	}

	h, err := store.Open(instpatch.ModeRead)
	if err != nil {
		return err
	}
	defer h.Close()

	const chunkFrames = 4096
	buf := make([]byte, chunkFrames*3)
	out := make([]byte, chunkFrames)
	for off := int64(0); off < n; off += chunkFrames {
		n2 := n - off
		if n2 > chunkFrames {
			n2 = chunkFrames
		}
		if err := store.Read(h, off, n2, buf[:n2*3]); err != nil {
			return err
		}
		for i := int64(0); i < n2; i++ {
			out[i] = buf[i*3]
		}
		if err := e.WriteBytes(out[:n2]); err != nil {
			return err
		}
	}
	return e.WriteBytes(make([]byte, sampleGuardFrames))
}

func sample24Store(s *Sample) instpatch.SampleStore {
	if s.Data == nil {
		return nil
	}
	store := s.Data.Best(instpatch.FormatS24LE)
	if store == nil || store.Format() != instpatch.FormatS24LE {
		return nil
	}
	return store
}
