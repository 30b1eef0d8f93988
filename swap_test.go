package instpatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSwapAllocatorRAMThenDisk exercises Scenario F's core invariant: small
// allocations stay in RAM until the configured cap is exceeded, after which
// new stores spill to the swap file.
func TestSwapAllocatorRAMThenDisk(t *testing.T) {
	SetSwapMaxMemory(16)
	ResetSwapAllocatorForTest()
	defer SetSwapMaxMemory(DefaultSwapMaxMemory)
	defer ResetSwapAllocatorForTest()

	s1, err := NewSwapStore(FormatS16LE, 4, 44100) // 8 bytes, fits in RAM
	require.NoError(t, err)
	assert.True(t, s1.InRAM())

	s2, err := NewSwapStore(FormatS16LE, 4, 44100) // another 8 bytes: total 16, still fits
	require.NoError(t, err)
	assert.True(t, s2.InRAM())

	s3, err := NewSwapStore(FormatS16LE, 4, 44100) // pushes past the 16-byte cap
	require.NoError(t, err)
	assert.False(t, s3.InRAM())
	assert.Equal(t, int64(0), s3.Offset())
}

// TestSwapAllocatorFreeListCoalesces verifies the two-sided coalescing rule
// of SPEC_FULL.md item 4: dropping adjacent segments merges them into one
// contiguous free range rather than leaving fragments.
func TestSwapAllocatorFreeListCoalesces(t *testing.T) {
	SetSwapMaxMemory(0) // force everything to disk
	ResetSwapAllocatorForTest()
	defer SetSwapMaxMemory(DefaultSwapMaxMemory)
	defer ResetSwapAllocatorForTest()

	a, err := NewSwapStore(FormatU8, 10, 44100)
	require.NoError(t, err)
	b, err := NewSwapStore(FormatU8, 10, 44100)
	require.NoError(t, err)
	c, err := NewSwapStore(FormatU8, 10, 44100)
	require.NoError(t, err)

	a.Drop()
	c.Drop()
	assert.Equal(t, int64(20), UnusedSwapSize())

	b.Drop()
	assert.Equal(t, int64(30), UnusedSwapSize())

	// A fresh allocation exactly the size of the coalesced range should
	// reuse it via first-fit rather than growing the append cursor.
	cursorBefore := SwapAppendCursor()
	d, err := NewSwapStore(FormatU8, 30, 44100)
	require.NoError(t, err)
	assert.False(t, d.InRAM())
	assert.Equal(t, int64(0), d.Offset())
	assert.Equal(t, cursorBefore, SwapAppendCursor())
}

func TestSwapStoreReadWriteRoundTrip(t *testing.T) {
	ResetSwapAllocatorForTest()
	defer ResetSwapAllocatorForTest()

	s, err := NewSwapStore(FormatS16LE, 4, 44100)
	require.NoError(t, err)
	h, err := s.Open(ModeWrite)
	require.NoError(t, err)
	defer h.Close()

	want := []byte{1, 0, 2, 0, 3, 0, 4, 0}
	require.NoError(t, s.Write(h, 0, 4, want))

	got := make([]byte, 8)
	require.NoError(t, s.Read(h, 0, 4, got))
	assert.Equal(t, want, got)
}

func TestCompactSwapRelocatesStores(t *testing.T) {
	SetSwapMaxMemory(0)
	ResetSwapAllocatorForTest()
	defer SetSwapMaxMemory(DefaultSwapMaxMemory)
	defer ResetSwapAllocatorForTest()

	a, err := NewSwapStore(FormatU8, 10, 44100)
	require.NoError(t, err)
	_, err = NewSwapStore(FormatU8, 10, 44100)
	require.NoError(t, err)
	c, err := NewSwapStore(FormatU8, 10, 44100)
	require.NoError(t, err)

	hA, _ := a.Open(ModeWrite)
	require.NoError(t, a.Write(hA, 0, 10, bytesOf(10, 0xAA)))
	hC, _ := c.Open(ModeWrite)
	require.NoError(t, c.Write(hC, 0, 10, bytesOf(10, 0xCC)))

	a.Drop() // leaves a hole before the middle store

	require.NoError(t, CompactSwap())

	got := make([]byte, 10)
	hC2, _ := c.Open(ModeRead)
	require.NoError(t, c.Read(hC2, 0, 10, got))
	assert.Equal(t, bytesOf(10, 0xCC), got)
}

func bytesOf(n int, v byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = v
	}
	return b
}
