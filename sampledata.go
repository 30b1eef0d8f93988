package instpatch

import "sync/atomic"

// SampleData is a shared logical audio asset: it owns a small ordered list
// of alternate SampleStores, all representing the same audio in different
// encodings/locations (§3.5). Consumers ask for the store best matching
// their needs via Best; a SampleData's "used" refcount is tracked
// separately from Go's own garbage-collector ownership, matching the
// source's distinction between "someone is actively reading this" and
// "someone still holds a reference" (§5).
type SampleData struct {
	name string

	stores []SampleStore

	usedCount int64 // atomic
}

// NewSampleData constructs an empty, named SampleData. A freshly
// constructed SampleData with no store attached behaves as the "blank
// audio sentinel" of §3.3: readers checking len(Stores()) == 0 know to
// treat it as silence.
func NewSampleData(name string) *SampleData {
	return &SampleData{name: name}
}

// Name returns the sample data's informational name (typically the owning
// Sample's name, kept in sync by the patch-tree layer).
func (d *SampleData) Name() string { return d.name }

// SetName updates the informational name.
func (d *SampleData) SetName(name string) { d.name = name }

// AddStore appends an alternate store representing the same audio.
func (d *SampleData) AddStore(s SampleStore) {
	d.stores = append(d.stores, s)
}

// Stores returns the list of alternate stores, in the order they were
// added (most recently added last).
func (d *SampleData) Stores() []SampleStore {
	return d.stores
}

// storeRank scores how good a match a store is for a requested
// (format, channel) combination; higher is better. An exact format match
// plus no additional resampling work ranks highest; this is an
// implementation-defined ranking per §3.5's "implementation-defined
// ranking decides".
func storeRank(s SampleStore, want SampleFormat) int {
	switch {
	case s.Format() == want:
		return 2
	case s.Format() == FormatS24LE || want == FormatS24LE:
		return 0 // width mismatch against the highest-fidelity format
	default:
		return 1
	}
}

// Best returns the store that best matches the requested format, or nil
// if the SampleData has no stores (the blank-audio sentinel case).
func (d *SampleData) Best(want SampleFormat) SampleStore {
	var best SampleStore
	bestRank := -1
	for _, s := range d.stores {
		r := storeRank(s, want)
		if r > bestRank {
			bestRank = r
			best = s
		}
	}
	return best
}

// FrameCount returns the frame count reported by the first store, or 0 for
// a store-less (blank) SampleData.
func (d *SampleData) FrameCount() int64 {
	if len(d.stores) == 0 {
		return 0
	}
	return d.stores[0].FrameCount()
}

// Use increments the "used" refcount (§5: a distinct counter from
// ownership; dropping it to zero permits future optimizations but never
// frees the data out from under a still-owning reference).
func (d *SampleData) Use() int64 { return atomic.AddInt64(&d.usedCount, 1) }

// Unuse decrements the "used" refcount.
func (d *SampleData) Unuse() int64 { return atomic.AddInt64(&d.usedCount, -1) }

// UsedCount reports the current "used" refcount.
func (d *SampleData) UsedCount() int64 { return atomic.LoadInt64(&d.usedCount) }

// RemoveStore drops a store from the list once neither its ownership
// (captured by the caller no longer referencing it) nor any active "used"
// session needs it (§3.5). Callers are responsible for checking
// UsedCount() == 0 before calling this if they need the stronger
// guarantee; RemoveStore itself only performs the list surgery plus
// release of any file-backed resources the store holds.
func (d *SampleData) RemoveStore(s SampleStore) {
	for i, v := range d.stores {
		if v == s {
			d.stores = append(d.stores[:i], d.stores[i+1:]...)
			break
		}
	}
	switch st := s.(type) {
	case *FileStore:
		st.Release()
	case *Split24Store:
		st.Release()
	case *SwapStore:
		st.Drop()
	}
}
