package sf2

import (
	"fmt"

	"github.com/pkg/errors"

	instpatch "github.com/instpatch/instpatch-go"
)

// sdtaInfo carries the sample-data chunk's file offsets through to the
// hydra pass, which needs them to build each Sample's SampleStore once
// shdr is decoded (§4.3.1).
type sdtaInfo struct {
	smplOffset int64
	smplFrames int64

	is24       bool
	sm24Offset int64
}

// Read parses a complete SoundFont file from h, reconstructing the patch
// tree and resolving every pool-index reference to a direct pointer
// before returning, per the two-phase "load then fixup" protocol of
// §4.3.1 and the Design Notes' "never expose a partially-fixed-up tree"
// rule (§9).
func Read(h *instpatch.FileHandle) (f *File, err error) {
	e := instpatch.NewReadEngine(h)

	if _, err := h.Seek(0, 0); err != nil {
		return nil, errors.Wrap(err, "sf2: seek to start")
	}

	if _, err := e.ReadChunkVerify(instpatch.ChunkRIFF, instpatch.IDsfbk); err != nil {
		return nil, errors.Wrap(err, "sf2: reading RIFF/sfbk header")
	}
	defer func() {
		if cerr := e.EndChunk(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	f = NewFile()
	f.FileHandle = h
	h.Acquire()

	var sd sdtaInfo
	var haveInfo, haveSdta, havePdta bool

	for {
		c, err := e.ReadChunk()
		if err != nil {
			return nil, errors.Wrap(err, "sf2: reading top-level chunk")
		}
		if c == nil {
			break
		}
		if c.Kind != instpatch.ChunkLIST {
			instpatch.Warnf("sf2: unexpected top-level chunk kind %v, skipping", c.Kind)
			if err := e.EndChunk(); err != nil {
				return nil, err
			}
			continue
		}

		switch c.Form {
		case instpatch.IDINFO:
			if err := readInfo(e, f); err != nil {
				return nil, errors.Wrap(err, "sf2: reading INFO")
			}
			haveInfo = true
		case instpatch.IDsdta:
			sd, err = readSdta(e)
			if err != nil {
				return nil, errors.Wrap(err, "sf2: reading sdta")
			}
			haveSdta = true
		case instpatch.IDpdta:
			if err := readPdta(e, f, sd, h); err != nil {
				return nil, errors.Wrap(err, "sf2: reading pdta")
			}
			havePdta = true
		default:
			instpatch.Warnf("sf2: unknown top-level LIST form %q, skipping", c.Form)
		}

		if err := e.EndChunk(); err != nil {
			return nil, err
		}
	}

	if !haveInfo {
		return nil, fmt.Errorf("sf2: missing INFO chunk: %w", instpatch.ErrInvalidData)
	}
	if !haveSdta {
		return nil, fmt.Errorf("sf2: missing sdta chunk: %w", instpatch.ErrInvalidData)
	}
	if !havePdta {
		return nil, fmt.Errorf("sf2: missing pdta chunk: %w", instpatch.ErrInvalidData)
	}

	return f, nil
}

// readInfo generalizes the teacher's ReadSoundFontInfo (info.go): same
// per-id switch and size caps, now driven by the streaming Engine instead
// of a slurped []byte, and warning-and-truncating instead of aborting on
// an oversized field.
func readInfo(e *instpatch.Engine, f *File) error {
	for {
		c, err := e.ReadChunk()
		if err != nil {
			return err
		}
		if c == nil {
			break
		}
		if c.Kind != instpatch.ChunkSUB {
			instpatch.Warnf("sf2: INFO contains non-leaf chunk %q, skipping", c.ID)
			if err := e.EndChunk(); err != nil {
				return err
			}
			continue
		}

		payload, err := e.ReadBytes(int(c.PayloadSize()))
		if err != nil {
			return err
		}

		switch c.ID {
		case instpatch.IDifil:
			if len(payload) != 4 {
				return fmt.Errorf("sf2: ifil must be 4 bytes: %w", instpatch.ErrSizeMismatch)
			}
			f.FileVersion = Version{
				Major: uint16(payload[0]) | uint16(payload[1])<<8,
				Minor: uint16(payload[2]) | uint16(payload[3])<<8,
				IsSet: true,
			}
		case instpatch.IDiver:
			if len(payload) != 4 {
				return fmt.Errorf("sf2: iver must be 4 bytes: %w", instpatch.ErrSizeMismatch)
			}
			f.ROMVersion = Version{
				Major: uint16(payload[0]) | uint16(payload[1])<<8,
				Minor: uint16(payload[2]) | uint16(payload[3])<<8,
				IsSet: true,
			}
		default:
			max := instpatch.InfoMaxSize(c.ID)
			text := payload
			if max > 0 && len(text) > max {
				instpatch.Warnf("sf2: INFO field %q exceeds %d bytes, truncating", c.ID, max)
				text = text[:max]
			}
			f.Info[c.ID] = trimNulAndPad(text)
		}

		if err := e.EndChunk(); err != nil {
			return err
		}
	}

	if !f.FileVersion.IsSet {
		return fmt.Errorf("sf2: ifil chunk is missing: %w", instpatch.ErrInvalidData)
	}
	return nil
}

func trimNulAndPad(b []byte) string {
	n := len(b)
	for n > 0 && (b[n-1] == 0 || b[n-1] == ' ') {
		n--
	}
	return string(b[:n])
}

// readSdta generalizes the teacher's ReadSoundFontSamples (samples.go):
// same smpl/sm24 pairing, but records file offsets instead of slurping
// sample words into an []int16, since the reader no longer eagerly
// materializes audio — samples are read lazily through their SampleStore.
func readSdta(e *instpatch.Engine) (sdtaInfo, error) {
	var sd sdtaInfo

	c, err := e.ReadChunkVerify(instpatch.ChunkSUB, instpatch.IDsmpl)
	if err != nil {
		return sd, err
	}
	sd.smplOffset = c.StartOffset
	sd.smplFrames = int64(c.PayloadSize() / 2)
	if err := e.EndChunk(); err != nil {
		return sd, err
	}

	c, err = e.ReadChunk()
	if err != nil {
		return sd, err
	}
	if c == nil {
		return sd, nil
	}
	if c.Kind == instpatch.ChunkSUB && c.ID == instpatch.IDsm24 {
		expected := sd.smplFrames
		if expected&1 == 1 {
			expected++ // smpl itself is pad-rounded; sm24 is allowed to match the padded count
		}
		if int64(c.PayloadSize()) != sd.smplFrames && int64(c.PayloadSize()) != expected {
			instpatch.Warnf("sf2: sm24 size %d does not match smpl frame count %d, ignoring sm24", c.PayloadSize(), sd.smplFrames)
		} else {
			sd.is24 = true
			sd.sm24Offset = c.StartOffset
		}
		return sd, e.EndChunk()
	}

	instpatch.Warnf("sf2: unexpected chunk %q in sdta, skipping", c.ID)
	return sd, e.EndChunk()
}
