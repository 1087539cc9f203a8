// Package bitmap provides a simple, memory-efficient bitset over non-negative
// integer ids. The pipeline uses it to detect repeated source row ids in a
// single pass: one bit per possible id, so ten million ids cost 1.25 MB.
//
// A Bitmap is not safe for concurrent use.
package bitmap

// Bitmap represents a bitset backed by a slice of uint64 words.
// Each bit corresponds to a non-negative integer id.
type Bitmap struct {
	data  []uint64
	maxID int64
}

// New allocates a bitmap that can store bits for ids in the range [0, maxID].
// If maxID < 0, no backing storage is allocated and the bitmap tracks nothing.
func New(maxID int64) *Bitmap {
	if maxID < 0 {
		return &Bitmap{maxID: -1}
	}
	return &Bitmap{
		data:  make([]uint64, maxID/64+1),
		maxID: maxID,
	}
}

// Covers reports whether id is inside the tracked range.
func (b *Bitmap) Covers(id int64) bool {
	return id >= 0 && id <= b.maxID
}

// Add sets the bit for id. Ids outside [0, maxID] are ignored.
func (b *Bitmap) Add(id int64) {
	if !b.Covers(id) {
		return
	}
	b.data[id/64] |= 1 << uint(id%64)
}

// Has reports whether the bit for id is set. Untracked ids return false.
func (b *Bitmap) Has(id int64) bool {
	if !b.Covers(id) {
		return false
	}
	return b.data[id/64]&(1<<uint(id%64)) != 0
}

// TestAndSet sets the bit for id and reports whether it was already set.
// Untracked ids are never reported as seen.
func (b *Bitmap) TestAndSet(id int64) bool {
	if !b.Covers(id) {
		return false
	}
	w, m := id/64, uint64(1)<<uint(id%64)
	seen := b.data[w]&m != 0
	b.data[w] |= m
	return seen
}

// Bytes returns the size of the backing storage.
func (b *Bitmap) Bytes() int { return len(b.data) * 8 }
