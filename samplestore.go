package instpatch

import (
	"fmt"
	"io"
)

// SampleFormat identifies the on-the-wire PCM encoding of a store's frames.
type SampleFormat int

const (
	// FormatS16LE is mono/interleaved signed 16-bit little-endian PCM —
	// the universal SF2/DLS format and the GIG default.
	FormatS16LE SampleFormat = iota
	// FormatS24LE is signed 24-bit PCM, assembled on the fly by
	// Split24Store from the smpl/sm24 chunk pair (§3.5, §8 invariant 8).
	FormatS24LE
	// FormatU8 is unsigned 8-bit PCM, the minimum DLS wave format.
	FormatU8
)

// BytesPerFrame returns the storage width, in bytes, of one mono sample
// frame in the given format.
func (f SampleFormat) BytesPerFrame() int {
	switch f {
	case FormatS24LE:
		return 3
	case FormatU8:
		return 1
	default:
		return 2
	}
}

// ChannelRole identifies which half of a (possibly stereo-linked) sample a
// store represents, per §3.3's Sample.channel_role.
type ChannelRole int

const (
	ChannelMono ChannelRole = iota
	ChannelLeft
	ChannelRight
	ChannelRomMono
)

// StoreMode selects the direction Open is requested for.
type StoreMode int

const (
	ModeRead StoreMode = iota
	ModeWrite
)

// Handle is an opaque I/O handle returned by SampleStore.Open, scoped to
// one reader or writer session against the store.
type Handle interface {
	io.Closer
}

// SampleStore is a polymorphic, reference-counted abstraction over PCM
// audio bytes living in a file region, in RAM, in the swap file, or in the
// split-24-bit SoundFont arrangement (§3.5).
type SampleStore interface {
	// Format returns the immutable sample format this store was created
	// with.
	Format() SampleFormat
	// FrameCount returns the immutable frame count.
	FrameCount() int64
	// SampleRate returns the immutable sample rate in Hz.
	SampleRate() uint32

	// Open returns a Handle for subsequent Read/Write calls. Stores that
	// cannot be reopened (RomStore) return ErrStoreNotReopenable.
	Open(mode StoreMode) (Handle, error)

	// Read reads frameCount frames starting at frameOffset into buf, which
	// must be sized for frameCount*Format().BytesPerFrame() bytes (read as
	// signed 16-bit samples regardless of on-disk width is NOT performed
	// here — callers read raw frame bytes and interpret per Format()).
	Read(h Handle, frameOffset, frameCount int64, buf []byte) error

	// Write writes frameCount frames from buf at frameOffset. Returns
	// ErrStoreNotWritable for read-only stores (FileStore, Split24Store);
	// RomStore returns ErrStoreNotReopenable.
	Write(h Handle, frameOffset, frameCount int64, buf []byte) error

	// Close releases a Handle obtained from Open.
	Close(h Handle) error
}

// --- FileStore -----------------------------------------------------------

// FileStore reads PCM bytes at a fixed (file, byteOffset) region of a
// read-only backing file, per §3.5.
type FileStore struct {
	file       *FileHandle
	byteOffset int64
	format     SampleFormat
	frameCount int64
	rate       uint32
}

// NewFileStore constructs a FileStore over an already-open FileHandle. The
// caller must Acquire the handle (done here) to keep it open for the
// lifetime of the store; call Close on the returned store's handles as
// usual and Release the FileHandle when the owning Sample is dropped.
func NewFileStore(file *FileHandle, byteOffset int64, format SampleFormat, frameCount int64, rate uint32) *FileStore {
	file.Acquire()
	return &FileStore{file: file, byteOffset: byteOffset, format: format, frameCount: frameCount, rate: rate}
}

func (s *FileStore) Format() SampleFormat { return s.format }
func (s *FileStore) FrameCount() int64    { return s.frameCount }
func (s *FileStore) SampleRate() uint32   { return s.rate }

type fileStoreHandle struct{}

func (s *FileStore) Open(mode StoreMode) (Handle, error) {
	if mode == ModeWrite {
		return nil, ErrStoreNotWritable
	}
	return fileStoreHandle{}, nil
}

func (s *FileStore) Read(_ Handle, frameOffset, frameCount int64, buf []byte) error {
	if frameOffset < 0 || frameOffset+frameCount > s.frameCount {
		return fmt.Errorf("instpatch: FileStore read [%d,%d) out of bounds (frames=%d)", frameOffset, frameOffset+frameCount, s.frameCount)
	}
	bpf := int64(s.format.BytesPerFrame())
	off := s.byteOffset + frameOffset*bpf
	n := frameCount * bpf
	if int64(len(buf)) < n {
		return fmt.Errorf("instpatch: FileStore read buffer too small (%d < %d)", len(buf), n)
	}
	if _, err := s.file.Seek(off, io.SeekStart); err != nil {
		return err
	}
	return s.file.ReadFull(buf[:n])
}

func (s *FileStore) Write(Handle, int64, int64, []byte) error {
	return ErrStoreNotWritable
}

func (s *FileStore) Close(Handle) error { return nil }

// Release drops this store's reference to its backing FileHandle. Callers
// (typically SampleData) must call this when the store itself is
// discarded.
func (s *FileStore) Release() error { return s.file.Release() }

// ByteOffset reports the store's offset into its backing file, used by
// writers that re-base samples on a newly written file (§4.3.2 step 6).
func (s *FileStore) ByteOffset() int64 { return s.byteOffset }

// File returns the backing FileHandle.
func (s *FileStore) File() *FileHandle { return s.file }

// --- RomStore --------------------------------------------------------

// RomStore is a placeholder recording a ROM location; it can never be
// opened for I/O (§3.5).
type RomStore struct {
	format     SampleFormat
	frameCount int64
	rate       uint32
	romAddr    uint32
}

// NewRomStore constructs a ROM-sample placeholder at the given ROM address.
func NewRomStore(format SampleFormat, frameCount int64, rate uint32, romAddr uint32) *RomStore {
	return &RomStore{format: format, frameCount: frameCount, rate: rate, romAddr: romAddr}
}

func (s *RomStore) Format() SampleFormat { return s.format }
func (s *RomStore) FrameCount() int64    { return s.frameCount }
func (s *RomStore) SampleRate() uint32   { return s.rate }
func (s *RomStore) ROMAddress() uint32   { return s.romAddr }

func (s *RomStore) Open(StoreMode) (Handle, error)                 { return nil, ErrStoreNotReopenable }
func (s *RomStore) Read(Handle, int64, int64, []byte) error        { return ErrStoreNotReopenable }
func (s *RomStore) Write(Handle, int64, int64, []byte) error       { return ErrStoreNotReopenable }
func (s *RomStore) Close(Handle) error                             { return nil }

// --- Split24Store ----------------------------------------------------

// Split24Store assembles 24-bit signed samples on the fly from the SF2
// 2.04 split encoding: the 16 MSBs live in the smpl chunk, the LS byte of
// each frame lives in sm24 (§3.5, §8 invariant 8).
type Split24Store struct {
	file           *FileHandle
	smplByteOffset int64 // offset of this sample's 16-bit words within smpl
	sm24ByteOffset int64 // offset of this sample's LS bytes within sm24
	frameCount     int64
	rate           uint32
}

// NewSplit24Store constructs a split-24 store over an open FileHandle.
func NewSplit24Store(file *FileHandle, smplOffset, sm24Offset int64, frameCount int64, rate uint32) *Split24Store {
	file.Acquire()
	return &Split24Store{file: file, smplByteOffset: smplOffset, sm24ByteOffset: sm24Offset, frameCount: frameCount, rate: rate}
}

func (s *Split24Store) Format() SampleFormat { return FormatS24LE }
func (s *Split24Store) FrameCount() int64    { return s.frameCount }
func (s *Split24Store) SampleRate() uint32   { return s.rate }

func (s *Split24Store) Open(mode StoreMode) (Handle, error) {
	if mode == ModeWrite {
		return nil, ErrStoreNotWritable
	}
	return fileStoreHandle{}, nil
}

func (s *Split24Store) Read(_ Handle, frameOffset, frameCount int64, buf []byte) error {
	if frameOffset < 0 || frameOffset+frameCount > s.frameCount {
		return fmt.Errorf("instpatch: Split24Store read out of bounds")
	}
	if int64(len(buf)) < frameCount*3 {
		return fmt.Errorf("instpatch: Split24Store read buffer too small")
	}

	msb := make([]byte, frameCount*2)
	if _, err := s.file.Seek(s.smplByteOffset+frameOffset*2, io.SeekStart); err != nil {
		return err
	}
	if err := s.file.ReadFull(msb); err != nil {
		return err
	}

	lsb := make([]byte, frameCount)
	if _, err := s.file.Seek(s.sm24ByteOffset+frameOffset, io.SeekStart); err != nil {
		return err
	}
	if err := s.file.ReadFull(lsb); err != nil {
		return err
	}

	for i := int64(0); i < frameCount; i++ {
		// 24-bit signed sample: MSBs (16-bit LE) followed (in significance)
		// by the LS byte. Reassembled in little-endian 24-bit order.
		buf[i*3+0] = lsb[i]
		buf[i*3+1] = msb[i*2+0]
		buf[i*3+2] = msb[i*2+1]
	}
	return nil
}

func (s *Split24Store) Write(Handle, int64, int64, []byte) error {
	return ErrStoreNotWritable
}

func (s *Split24Store) Close(Handle) error { return nil }

// Release drops this store's reference to its backing FileHandle.
func (s *Split24Store) Release() error { return s.file.Release() }

// Frame24At decodes frame i (already read into a 3-byte-per-frame buffer
// produced by Read) into a sign-extended int32.
func Frame24At(buf []byte, i int) int32 {
	b0, b1, b2 := buf[i*3], buf[i*3+1], buf[i*3+2]
	u := uint32(b0) | uint32(b1)<<8 | uint32(b2)<<16
	if u&0x800000 != 0 {
		return int32(u | 0xFF000000)
	}
	return int32(u)
}

// PutFrame24At encodes a sign-extended 24-bit sample into a 3-byte-per-
// frame buffer at index i, the inverse of Frame24At.
func PutFrame24At(buf []byte, i int, v int32) {
	u := uint32(v) & 0xFFFFFF
	buf[i*3+0] = byte(u)
	buf[i*3+1] = byte(u >> 8)
	buf[i*3+2] = byte(u >> 16)
}
