package record

import "sync"

// Batch is a pooled container of raw records moving from the reader to a
// normalize worker.
//
// Contract:
//   - The reader fills Items up to the capacity it asked for in GetBatch.
//   - The worker that consumes a batch calls Free once it no longer needs
//     the raw records.
//   - Nobody retains Items after Free.
type Batch struct {
	Items []RawRecord
	Seq   int64 // 0-based batch sequence number assigned by the reader
}

var batchPool sync.Pool

// GetBatch returns an empty pooled batch with room for size records.
func GetBatch(size int) *Batch {
	if v := batchPool.Get(); v != nil {
		b := v.(*Batch)
		if cap(b.Items) < size {
			b.Items = make([]RawRecord, 0, size)
		}
		b.Items = b.Items[:0]
		b.Seq = 0
		return b
	}
	return &Batch{Items: make([]RawRecord, 0, size)}
}

// Len reports the number of records in the batch.
func (b *Batch) Len() int { return len(b.Items) }

// Free clears the batch and returns it to the pool. b must not be used after.
func (b *Batch) Free() {
	clear(b.Items)
	b.Items = b.Items[:0]
	batchPool.Put(b)
}
