package dls

import (
	"fmt"

	"github.com/pkg/errors"

	instpatch "github.com/instpatch/instpatch-go"
)

// gigOnlyChunks are the proprietary sub-chunks that only ever appear inside
// a GIG file (§4.4). Encountering one while reading in DLS mode means the
// file is actually GIG; Read aborts with ErrGigDetected rather than
// attempting to interpret GIG-specific data as plain DLS, and the caller
// (instpatch/gig) rewinds and re-parses in GIG mode.
var gigOnlyChunks = map[instpatch.FourCC]bool{
	instpatch.ID3lnk: true,
	instpatch.ID3prg: true,
	instpatch.ID3ewl: true,
	instpatch.ID3ewa: true,
	instpatch.ID3ewg: true,
	instpatch.ID3dnl: true,
	instpatch.ID3ddp: true,
	instpatch.ID3gri: true,
	instpatch.ID3gnl: true,
	instpatch.ID3gnm: true,
	instpatch.ID3gix: true,
}

func checkGig(id instpatch.FourCC) error {
	if gigOnlyChunks[id] {
		return instpatch.ErrGigDetected
	}
	return nil
}

// regionLink records an as-yet-unresolved region -> wave pool-table index,
// gathered while walking the instrument tree and resolved only once the
// whole file (lins, wvpl and ptbl, in whatever order they appeared on disk)
// has been read, mirroring the sf2 reader's load-then-fixup discipline.
type regionLink struct {
	region *Region
	index  uint32
}

// Read parses a complete DLS Level 2 file from h. If a GIG-only chunk is
// encountered, Read returns instpatch.ErrGigDetected without completing the
// parse; the caller is expected to re-read via instpatch/gig.Read.
func Read(h *instpatch.FileHandle) (f *File, err error) {
	e := instpatch.NewReadEngine(h)

	if _, err := h.Seek(0, 0); err != nil {
		return nil, errors.Wrap(err, "dls: seek to start")
	}
	if _, err := e.ReadChunkVerify(instpatch.ChunkRIFF, instpatch.IDDLS); err != nil {
		return nil, errors.Wrap(err, "dls: reading RIFF/DLS header")
	}
	defer func() {
		if cerr := e.EndChunk(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	f = NewFile()
	f.FileHandle = h
	h.Acquire()

	var pending []regionLink
	var waveOffsets map[int64]*Wave
	var poolTable []uint32
	haveInstruments := false

	for {
		c, err := e.ReadChunk()
		if err != nil {
			return nil, errors.Wrap(err, "dls: reading top-level chunk")
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
			case instpatch.IDvers:
				buf, err := e.ReadBytes(int(c.PayloadSize()))
				if err != nil {
					return nil, err
				}
				var rec versRecord
				if len(buf) >= versRecordSize {
					if err := decodeRecord(buf[:versRecordSize], &rec); err != nil {
						return nil, err
					}
				}
				f.VersionMS, f.VersionLS = rec.VersionMS, rec.VersionLS
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
			default:
				instpatch.Warnf("dls: skipping unknown top-level chunk %q", c.ID)
			}

		case instpatch.ChunkLIST:
			if err := checkGig(c.Form); err != nil {
				return nil, err
			}
			switch c.Form {
			case instpatch.IDINFO:
				if err := readInfo(e, f.Info); err != nil {
					return nil, err
				}
			case instpatch.IDlins:
				insts, links, err := readLins(e)
				if err != nil {
					return nil, err
				}
				f.Instruments = insts
				pending = append(pending, links...)
				haveInstruments = true
			case instpatch.IDwvpl:
				waves, offsets, err := readWvpl(e, h)
				if err != nil {
					return nil, err
				}
				f.Waves = waves
				waveOffsets = offsets
			default:
				instpatch.Warnf("dls: skipping unknown top-level LIST form %q", c.Form)
			}
		}

		if err := e.EndChunk(); err != nil {
			return nil, err
		}
	}

	if !haveInstruments {
		instpatch.Warnf("dls: file has no lins (instrument) list")
	}

	resolveRegionLinks(pending, poolTable, waveOffsets)

	return f, nil
}

// readInfo reads an already-opened LIST "INFO" chunk's text sub-chunks into
// dst, matching the SF2 reader's trim-trailing-NUL-or-space convention
// since DLS INFO ids share the same RIFF INFO text-chunk shape (§6.1).
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
			instpatch.Warnf("dls: unexpected non-leaf chunk %q inside INFO, skipping", c.ID)
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

// readPtblBody reads the already-opened "ptbl" chunk c's header and cue
// array, returning each cue's byte offset (§6.1: ptbl is an 8-byte header
// followed by Cues 4-byte offset records).
func readPtblBody(e *instpatch.Engine, c *instpatch.Chunk) ([]uint32, error) {
	buf, err := e.ReadBytes(int(c.PayloadSize()))
	if err != nil {
		return nil, err
	}
	if len(buf) < ptblHeaderSize {
		return nil, fmt.Errorf("dls: ptbl too short: %w", instpatch.ErrSizeMismatch)
	}
	var hdr ptblHeaderRecord
	if err := decodeRecord(buf[:ptblHeaderSize], &hdr); err != nil {
		return nil, err
	}

	cuesStart := int(hdr.Size)
	if cuesStart < ptblHeaderSize {
		cuesStart = ptblHeaderSize
	}
	offsets := make([]uint32, 0, hdr.Cues)
	for i := uint32(0); i < hdr.Cues; i++ {
		off := cuesStart + int(i)*cueRecordSize
		if off+cueRecordSize > len(buf) {
			instpatch.Warnf("dls: ptbl declares %d cues but payload is short, truncating", hdr.Cues)
			break
		}
		var cue cueRecord
		if err := decodeRecord(buf[off:off+cueRecordSize], &cue); err != nil {
			return nil, err
		}
		offsets = append(offsets, cue.Offset)
	}
	return offsets, nil
}
