package gig

import (
	"fmt"

	"github.com/pkg/errors"

	dls "github.com/instpatch/instpatch-go/dls"
	instpatch "github.com/instpatch/instpatch-go"
)

// poolLink mirrors dls's unexported regionLink: a region (or sub-region)
// waiting for its wlnk/3lnk pool-table index to resolve to a *dls.Wave,
// resolved once the whole file has been read, per the "load then fixup"
// discipline shared with sf2 and dls.
type poolLink struct {
	setWave func(*dls.Wave)
	index   uint32
}

// Read parses a complete GIG file from h. Unlike dls.Read, encountering a
// GIG-only chunk is expected, not an error; Read is the destination of the
// DLS reader's ErrGigDetected restart (§4.4 Scenario E).
func Read(h *instpatch.FileHandle) (f *File, err error) {
	e := instpatch.NewReadEngine(h)

	if _, err := h.Seek(0, 0); err != nil {
		return nil, errors.Wrap(err, "gig: seek to start")
	}
	if _, err := e.ReadChunkVerify(instpatch.ChunkRIFF, instpatch.IDDLS); err != nil {
		return nil, errors.Wrap(err, "gig: reading RIFF/DLS header")
	}
	defer func() {
		if cerr := e.EndChunk(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	f = NewFile()
	f.FileHandle = h
	h.Acquire()

	var pending []poolLink
	var waveOffsets map[int64]*dls.Wave
	var poolTable []uint32

	for {
		c, err := e.ReadChunk()
		if err != nil {
			return nil, errors.Wrap(err, "gig: reading top-level chunk")
		}
		if c == nil {
			break
		}

		switch c.Kind {
		case instpatch.ChunkSUB:
			switch c.ID {
			case instpatch.IDvers:
				buf, err := e.ReadBytes(int(c.PayloadSize()))
				if err != nil {
					return nil, err
				}
				if len(buf) >= 8 {
					f.VersionMS = u32le(buf[0:4])
					f.VersionLS = u32le(buf[4:8])
				}
			case instpatch.IDdlid:
				buf, err := e.ReadBytes(int(c.PayloadSize()))
				if err != nil {
					return nil, err
				}
				copy(f.DLSID[:], buf)
			case instpatch.IDptbl:
				poolTable, err = readPtblBody(e, c)
				if err != nil {
					return nil, err
				}
			case instpatch.ID3dnl:
				buf, err := e.ReadBytes(int(c.PayloadSize()))
				if err != nil {
					return nil, err
				}
				f.DimensionNamesRaw = buf
			case instpatch.ID3ddp:
				buf, err := e.ReadBytes(int(c.PayloadSize()))
				if err != nil {
					return nil, err
				}
				f.SampleGroupDefsRaw = buf
			default:
				instpatch.Warnf("gig: skipping unknown top-level chunk %q", c.ID)
			}

		case instpatch.ChunkLIST:
			switch c.Form {
			case instpatch.IDINFO:
				if err := readInfo(e, f.Info); err != nil {
					return nil, err
				}
			case instpatch.IDlins:
				insts, links, err := readLins(e, f)
				if err != nil {
					return nil, err
				}
				f.Instruments = insts
				pending = append(pending, links...)
			case instpatch.IDwvpl:
				waves, offsets, err := readWvpl(e, f)
				if err != nil {
					return nil, err
				}
				f.Waves = waves
				waveOffsets = offsets
			case instpatch.ID3gri:
				groups, err := readSampleGroups(e)
				if err != nil {
					return nil, err
				}
				f.SampleGroups = groups
			default:
				instpatch.Warnf("gig: skipping unknown top-level LIST form %q", c.Form)
			}
		}

		if err := e.EndChunk(); err != nil {
			return nil, err
		}
	}

	for _, link := range pending {
		if int(link.index) >= len(poolTable) {
			instpatch.Warnf("gig: reference to out-of-range pool index %d", link.index)
			continue
		}
		w, ok := waveOffsets[int64(poolTable[link.index])]
		if !ok {
			instpatch.Warnf("gig: pool index %d resolves to no known wave", link.index)
			continue
		}
		link.setWave(w)
	}

	return f, nil
}

func u32le(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func readInfo(e *instpatch.Engine, dst map[instpatch.FourCC]string) error {
	for {
		c, err := e.ReadChunk()
		if err != nil {
			return err
		}
		if c == nil {
			break
		}
		if c.Kind != instpatch.ChunkSUB {
			instpatch.Warnf("gig: unexpected non-leaf chunk %q inside INFO, skipping", c.ID)
			if err := e.EndChunk(); err != nil {
				return err
			}
			continue
		}
		buf, err := e.ReadBytes(int(c.PayloadSize()))
		if err != nil {
			return err
		}
		dst[c.ID] = trimNulAndPad(buf)
		if err := e.EndChunk(); err != nil {
			return err
		}
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

func readPtblBody(e *instpatch.Engine, c *instpatch.Chunk) ([]uint32, error) {
	const ptblHeaderSize = 8
	const cueRecordSize = 4
	buf, err := e.ReadBytes(int(c.PayloadSize()))
	if err != nil {
		return nil, err
	}
	if len(buf) < ptblHeaderSize {
		return nil, fmt.Errorf("gig: ptbl too short: %w", instpatch.ErrSizeMismatch)
	}
	cues := u32le(buf[4:8])
	cuesStart := int(u32le(buf[0:4]))
	if cuesStart < ptblHeaderSize {
		cuesStart = ptblHeaderSize
	}
	offsets := make([]uint32, 0, cues)
	for i := uint32(0); i < cues; i++ {
		off := cuesStart + int(i)*cueRecordSize
		if off+cueRecordSize > len(buf) {
			instpatch.Warnf("gig: ptbl declares %d cues but payload is short, truncating", cues)
			break
		}
		offsets = append(offsets, u32le(buf[off:off+4]))
	}
	return offsets, nil
}

// readSampleGroups reads an already-opened LIST "3gri" chunk's nested LIST
// "3gnl" of "3gnm" 64-byte name records (§4.4, §6.1).
func readSampleGroups(e *instpatch.Engine) ([]SampleGroup, error) {
	var groups []SampleGroup
	for {
		c, err := e.ReadChunk()
		if err != nil {
			return nil, err
		}
		if c == nil {
			break
		}
		if c.Kind == instpatch.ChunkLIST && c.Form == instpatch.ID3gnl {
			for {
				gc, err := e.ReadChunk()
				if err != nil {
					return nil, err
				}
				if gc == nil {
					break
				}
				if gc.Kind != instpatch.ChunkSUB || gc.ID != instpatch.ID3gnm {
					instpatch.Warnf("gig: 3gnl contains unexpected chunk %q, skipping", gc.ID)
					if err := e.EndChunk(); err != nil {
						return nil, err
					}
					continue
				}
				buf, err := e.ReadBytes(int(gc.PayloadSize()))
				if err != nil {
					return nil, err
				}
				groups = append(groups, SampleGroup{Name: trimNulAndPad(buf)})
				if err := e.EndChunk(); err != nil {
					return nil, err
				}
			}
		} else {
			instpatch.Warnf("gig: skipping unexpected chunk %q inside 3gri", c.ID)
		}
		if err := e.EndChunk(); err != nil {
			return nil, err
		}
	}
	return groups, nil
}
