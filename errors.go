package instpatch

import "fmt"

// Sentinel error kinds returned by the RIFF engine, the format readers and
// writers, and the sample-storage layer. Callers compare with errors.Is;
// the concrete error values carry additional context via %w wrapping.
var (
	// ErrUnexpectedID is returned by ReadChunkVerify when a chunk's FOURCC
	// does not match what the caller expected.
	ErrUnexpectedID = fmt.Errorf("riff: unexpected chunk id")

	// ErrUnexpectedKind is returned by ReadChunkVerify when a chunk's kind
	// (RIFF/LIST/SUB) does not match what the caller expected.
	ErrUnexpectedKind = fmt.Errorf("riff: unexpected chunk kind")

	// ErrSizeMismatch is returned when a non-leaf chunk's declared size is
	// violated by its children, or a fixed-size record array chunk's size
	// is not a multiple of its record size.
	ErrSizeMismatch = fmt.Errorf("riff: chunk size mismatch")

	// ErrInvalidData marks structurally malformed chunk payloads (e.g.
	// non-monotonic bag indices) that abort the current read.
	ErrInvalidData = fmt.Errorf("riff: invalid data")

	// ErrUnsupportedVersion is returned when a file declares a format
	// version this package does not know how to parse.
	ErrUnsupportedVersion = fmt.Errorf("instpatch: unsupported version")

	// ErrGigDetected signals that a reader operating in DLS mode found a
	// GIG-only chunk. The caller must rewind the handle and re-read in GIG
	// mode; see instpatch/gig.
	ErrGigDetected = fmt.Errorf("instpatch: gig chunk detected in dls stream")

	// ErrInvalidSample marks a single sample as unusable; the reader warns
	// and substitutes the blank-audio sentinel rather than aborting.
	ErrInvalidSample = fmt.Errorf("instpatch: invalid sample")

	// ErrSwapOutOfSpace is returned by the swap allocator when neither RAM
	// nor the swap file can satisfy an allocation (e.g. swap file I/O
	// failure).
	ErrSwapOutOfSpace = fmt.Errorf("instpatch: swap allocator out of space")

	// ErrInvalidChildType is returned when code attempts to build a
	// structurally impossible patch-tree node (e.g. a preset zone without
	// a parent preset).
	ErrInvalidChildType = fmt.Errorf("instpatch: invalid child type for parent")

	// ErrStoreNotReopenable is returned by SampleStore.Open for stores
	// that can never be opened for I/O (ROM stubs).
	ErrStoreNotReopenable = fmt.Errorf("instpatch: sample store cannot be reopened")

	// ErrStoreNotWritable is returned by SampleStore.Open(ModeWrite) for
	// stores that only support reading.
	ErrStoreNotWritable = fmt.Errorf("instpatch: sample store is read-only")
)

// UnexpectedIDError gives the caller the expected and actual FOURCC values
// alongside the ErrUnexpectedID sentinel.
type UnexpectedIDError struct {
	Expected, Got FourCC
}

func (e *UnexpectedIDError) Error() string {
	return fmt.Sprintf("riff: expected chunk id %q, got %q", e.Expected, e.Got)
}

func (e *UnexpectedIDError) Unwrap() error { return ErrUnexpectedID }

// UnexpectedKindError gives the caller the expected and actual chunk kinds
// alongside the ErrUnexpectedKind sentinel.
type UnexpectedKindError struct {
	Expected, Got ChunkKind
}

func (e *UnexpectedKindError) Error() string {
	return fmt.Sprintf("riff: expected chunk kind %v, got %v", e.Expected, e.Got)
}

func (e *UnexpectedKindError) Unwrap() error { return ErrUnexpectedKind }
