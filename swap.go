package instpatch

import (
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
)

// segment is a free (or, transiently, about-to-be-freed) byte range of the
// swap file.
type segment struct {
	offset int64
	size   int64
}

// swapAllocator is the single process-wide swap file described in §3.6.
// Every field is guarded by mu, which the source spec calls out (§5) as a
// single coarse process-wide mutex: swap is a fallback path, not a hot
// one, so simplicity wins over fine-grained locking.
type swapAllocator struct {
	mu sync.Mutex

	file *os.File
	path string

	appendCursor int64

	// freeBySize and freeByOffset both hold the same
	// segment values; the spec (§3.6) keeps two sorted views so creation
	// can first-fit by size and compaction can walk by location.
	freeBySize   []segment // sorted by decreasing size
	freeByOffset []segment // sorted by increasing offset

	ramUsed int64
	ramMax  int64

	swapList []*SwapStore
}

var globalSwap = &swapAllocator{ramMax: DefaultSwapMaxMemory}

func init() {
	globalSwap.ramMax = SwapMaxMemory()
}

func (a *swapAllocator) ensureFile() error {
	if a.file != nil {
		return nil
	}
	path := SwapFileName()
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return fmt.Errorf("instpatch: opening swap file %s: %w", path, err)
	}
	a.file = f
	a.path = path
	return nil
}

// insertFree adds a free segment to both sorted views, merging with any
// neighbor whose range touches its ends (§3.6, and the original source's
// two-sided coalescing noted in SPEC_FULL.md item 4).
func (a *swapAllocator) insertFree(s segment) {
	// Merge with neighbors by offset first.
	merged := s
	idx := sort.Search(len(a.freeByOffset), func(i int) bool { return a.freeByOffset[i].offset >= merged.offset })

	// Check predecessor.
	if idx > 0 {
		prev := a.freeByOffset[idx-1]
		if prev.offset+prev.size == merged.offset {
			merged.offset = prev.offset
			merged.size += prev.size
			a.removeFree(prev)
			idx--
		}
	}
	// Check successor (recompute index after potential removal).
	idx = sort.Search(len(a.freeByOffset), func(i int) bool { return a.freeByOffset[i].offset >= merged.offset })
	if idx < len(a.freeByOffset) {
		next := a.freeByOffset[idx]
		if merged.offset+merged.size == next.offset {
			merged.size += next.size
			a.removeFree(next)
		}
	}

	a.freeByOffset = insertSortedByOffset(a.freeByOffset, merged)
	a.freeBySize = insertSortedBySizeDesc(a.freeBySize, merged)
}

func (a *swapAllocator) removeFree(s segment) {
	for i, v := range a.freeByOffset {
		if v == s {
			a.freeByOffset = append(a.freeByOffset[:i], a.freeByOffset[i+1:]...)
			break
		}
	}
	for i, v := range a.freeBySize {
		if v == s {
			a.freeBySize = append(a.freeBySize[:i], a.freeBySize[i+1:]...)
			break
		}
	}
}

func insertSortedByOffset(list []segment, s segment) []segment {
	idx := sort.Search(len(list), func(i int) bool { return list[i].offset >= s.offset })
	list = append(list, segment{})
	copy(list[idx+1:], list[idx:])
	list[idx] = s
	return list
}

func insertSortedBySizeDesc(list []segment, s segment) []segment {
	idx := sort.Search(len(list), func(i int) bool { return list[i].size <= s.size })
	list = append(list, segment{})
	copy(list[idx+1:], list[idx:])
	list[idx] = s
	return list
}

// allocate picks a location for a new store of the given size: RAM if
// under budget, else the smallest free segment that fits (first-fit
// walking the size-sorted list from the small end backward, i.e. from the
// tail of freeBySize which holds the smallest remaining segments), else
// append at appendCursor (§3.6).
func (a *swapAllocator) allocate(size int64) (inRAM bool, offset int64, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.ramMax < 0 || a.ramUsed+size <= a.ramMax {
		a.ramUsed += size
		return true, 0, nil
	}

	// First-fit: walk from the smallest free segment upward, looking for
	// the first one big enough, which picks the *smallest* adequate
	// segment overall (§3.6: "pick the smallest free segment that fits").
	for i := len(a.freeBySize) - 1; i >= 0; i-- {
		if a.freeBySize[i].size >= size {
			seg := a.freeBySize[i]
			a.removeFree(seg)
			if seg.size > size {
				a.insertFree(segment{offset: seg.offset + size, size: seg.size - size})
			}
			if err := a.ensureFile(); err != nil {
				return false, 0, err
			}
			return false, seg.offset, nil
		}
	}

	if err := a.ensureFile(); err != nil {
		return false, 0, err
	}
	offset = a.appendCursor
	a.appendCursor += size
	return false, offset, nil
}

// free releases a previously allocated (non-RAM) segment, or reduces
// ramUsed for a RAM-resident one.
func (a *swapAllocator) free(inRAM bool, offset, size int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if inRAM {
		a.ramUsed -= size
		return
	}
	a.insertFree(segment{offset: offset, size: size})
}

// UnusedSwapSize returns the total size of free (unallocated, on-disk)
// segments — used by tests to assert Scenario F's invariants.
func UnusedSwapSize() int64 {
	globalSwap.mu.Lock()
	defer globalSwap.mu.Unlock()
	var total int64
	for _, s := range globalSwap.freeByOffset {
		total += s.size
	}
	return total
}

// SwapAppendCursor exposes the allocator's current append cursor for
// tests.
func SwapAppendCursor() int64 {
	globalSwap.mu.Lock()
	defer globalSwap.mu.Unlock()
	return globalSwap.appendCursor
}

// SwapRAMUsed exposes current RAM usage for tests/diagnostics.
func SwapRAMUsed() int64 {
	globalSwap.mu.Lock()
	defer globalSwap.mu.Unlock()
	return globalSwap.ramUsed
}

// ResetSwapAllocatorForTest tears down and reinitializes the global swap
// allocator. Exported (not `_test.go`-gated) so tests in any package can
// get a clean allocator between scenarios; production callers have no
// reason to call it.
func ResetSwapAllocatorForTest() {
	globalSwap.mu.Lock()
	defer globalSwap.mu.Unlock()
	if globalSwap.file != nil {
		globalSwap.file.Close()
		os.Remove(globalSwap.path)
	}
	*globalSwap = swapAllocator{ramMax: SwapMaxMemory()}
}

// SwapStore is a sample store whose bytes live in RAM (if under the
// configured cap) or in a region of the single process-wide swap file
// (§3.5, §3.6).
type SwapStore struct {
	format     SampleFormat
	frameCount int64
	rate       uint32

	inRAM bool
	ram   []byte

	offset int64 // valid only when !inRAM
	size   int64

	closed bool
}

// NewSwapStore allocates storage for frameCount frames of format, spilling
// to the swap file if the RAM cap is exceeded.
func NewSwapStore(format SampleFormat, frameCount int64, rate uint32) (*SwapStore, error) {
	size := frameCount * int64(format.BytesPerFrame())
	inRAM, offset, err := globalSwap.allocate(size)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSwapOutOfSpace, err)
	}
	s := &SwapStore{format: format, frameCount: frameCount, rate: rate, inRAM: inRAM, offset: offset, size: size}
	if inRAM {
		s.ram = make([]byte, size)
	} else {
		globalSwap.mu.Lock()
		globalSwap.swapList = append(globalSwap.swapList, s)
		globalSwap.mu.Unlock()
	}
	return s, nil
}

func (s *SwapStore) Format() SampleFormat { return s.format }
func (s *SwapStore) FrameCount() int64    { return s.frameCount }
func (s *SwapStore) SampleRate() uint32   { return s.rate }

type swapStoreHandle struct{}

func (s *SwapStore) Open(StoreMode) (Handle, error) { return swapStoreHandle{}, nil }
func (s *SwapStore) Close(Handle) error              { return nil }

func (s *SwapStore) Read(_ Handle, frameOffset, frameCount int64, buf []byte) error {
	bpf := int64(s.format.BytesPerFrame())
	byteOff := frameOffset * bpf
	n := frameCount * bpf
	if byteOff < 0 || byteOff+n > s.size {
		return fmt.Errorf("instpatch: SwapStore read out of bounds")
	}
	if s.inRAM {
		copy(buf, s.ram[byteOff:byteOff+n])
		return nil
	}
	globalSwap.mu.Lock()
	defer globalSwap.mu.Unlock()
	if _, err := globalSwap.file.Seek(s.offset+byteOff, io.SeekStart); err != nil {
		return err
	}
	_, err := io.ReadFull(globalSwap.file, buf[:n])
	return err
}

func (s *SwapStore) Write(_ Handle, frameOffset, frameCount int64, buf []byte) error {
	bpf := int64(s.format.BytesPerFrame())
	byteOff := frameOffset * bpf
	n := frameCount * bpf
	if byteOff < 0 || byteOff+n > s.size {
		return fmt.Errorf("instpatch: SwapStore write out of bounds")
	}
	if s.inRAM {
		copy(s.ram[byteOff:byteOff+n], buf[:n])
		return nil
	}
	globalSwap.mu.Lock()
	defer globalSwap.mu.Unlock()
	if _, err := globalSwap.file.Seek(s.offset+byteOff, io.SeekStart); err != nil {
		return err
	}
	_, err := globalSwap.file.Write(buf[:n])
	return err
}

// Drop releases the store's storage back to the allocator (RAM budget or
// swap free list). Calls after the first do nothing.
func (s *SwapStore) Drop() {
	if s.closed {
		return
	}
	s.closed = true
	globalSwap.free(s.inRAM, s.offset, s.size)
	if !s.inRAM {
		globalSwap.mu.Lock()
		for i, v := range globalSwap.swapList {
			if v == s {
				globalSwap.swapList = append(globalSwap.swapList[:i], globalSwap.swapList[i+1:]...)
				break
			}
		}
		globalSwap.mu.Unlock()
	}
}

// InRAM reports whether this store currently lives in RAM rather than the
// swap file.
func (s *SwapStore) InRAM() bool { return s.inRAM }

// Offset reports the store's byte offset within the swap file (undefined
// if InRAM()).
func (s *SwapStore) Offset() int64 { return s.offset }

// CompactSwap rewrites the swap file with no gaps, relocating every live
// on-disk SwapStore and updating its offset, under the global swap lock
// (§3.6's compact()).
func CompactSwap() error {
	globalSwap.mu.Lock()
	defer globalSwap.mu.Unlock()

	if globalSwap.file == nil || len(globalSwap.swapList) == 0 {
		globalSwap.freeBySize = nil
		globalSwap.freeByOffset = nil
		globalSwap.appendCursor = 0
		return nil
	}

	// Stable order by current offset so relocation preserves relative
	// layout (not load-bearing, just deterministic for tests).
	stores := append([]*SwapStore(nil), globalSwap.swapList...)
	sort.Slice(stores, func(i, j int) bool { return stores[i].offset < stores[j].offset })

	tmpPath := globalSwap.path + ".compact"
	tmp, err := os.OpenFile(tmpPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("instpatch: compact: %w", err)
	}

	var cursor int64
	buf := make([]byte, 0)
	for _, s := range stores {
		if int64(len(buf)) < s.size {
			buf = make([]byte, s.size)
		}
		if _, err := globalSwap.file.Seek(s.offset, io.SeekStart); err != nil {
			tmp.Close()
			return err
		}
		if _, err := io.ReadFull(globalSwap.file, buf[:s.size]); err != nil {
			tmp.Close()
			return err
		}
		if _, err := tmp.Write(buf[:s.size]); err != nil {
			tmp.Close()
			return err
		}
		s.offset = cursor
		cursor += s.size
	}

	if err := tmp.Close(); err != nil {
		return err
	}
	globalSwap.file.Close()
	if err := os.Rename(tmpPath, globalSwap.path); err != nil {
		return err
	}
	f, err := os.OpenFile(globalSwap.path, os.O_RDWR, 0o600)
	if err != nil {
		return err
	}
	globalSwap.file = f
	globalSwap.appendCursor = cursor
	globalSwap.freeBySize = nil
	globalSwap.freeByOffset = nil
	return nil
}
