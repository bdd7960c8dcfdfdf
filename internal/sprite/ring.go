// Package sprite carries scaled sprite frames from the playback task to
// the compositor. The hand-off is a triple buffer: the writer fills a back
// slot and publishes it with one atomic swap, the reader takes the freshest
// published slot with another, so neither side ever touches a slot the
// other holds.
package sprite

import (
	"sync/atomic"
)

// Placement positions one copy of the sprite on screen.
type Placement struct {
	X, Y   int
	Mirror bool
}

// Frame is one published sprite.
type Frame struct {
	Width      int
	Height     int
	Pix        []uint16
	Placements []Placement
	// Seq increases with every publish.
	Seq     uint64
	AssetID int
	Index   int
}

const freshBit = 0x4

// Ring is a single-writer single-reader triple buffer.
type Ring struct {
	slots [3]Frame
	// middle holds the index of the shared slot plus freshBit when it has
	// been published and not yet taken.
	middle atomic.Uint32

	// Writer side.
	back uint32
	seq  uint64

	// Reader side.
	front   uint32
	started bool

	published atomic.Uint64
	dropped   atomic.Uint64
	grown     atomic.Uint64
}

// NewRing returns an empty ring.
func NewRing() *Ring {
	r := &Ring{front: 0, back: 2}
	r.middle.Store(1)
	return r
}

// Publish copies pix and placements into the back slot and makes it the
// freshest frame. A slot whose buffer is too small gets a fresh allocation;
// buffers are never resized in place. Only one goroutine may publish.
func (r *Ring) Publish(width, height int, pix []uint16, placements []Placement, assetID, index int) {
	slot := &r.slots[r.back]
	n := width * height
	if cap(slot.Pix) < n {
		slot.Pix = make([]uint16, n)
		r.grown.Add(1)
	}
	slot.Pix = slot.Pix[:n]
	copy(slot.Pix, pix)
	slot.Placements = append(slot.Placements[:0], placements...)
	slot.Width, slot.Height = width, height
	slot.AssetID, slot.Index = assetID, index
	r.seq++
	slot.Seq = r.seq

	prev := r.middle.Swap(r.back | freshBit)
	if prev&freshBit != 0 {
		// The reader never saw the previous frame.
		r.dropped.Add(1)
	}
	r.back = prev &^ freshBit
	r.published.Add(1)
}

// Latest returns the freshest published frame, or nil before the first
// publish. The frame stays valid and unchanged until the next Latest call.
// Only one goroutine may read.
func (r *Ring) Latest() *Frame {
	if r.middle.Load()&freshBit != 0 {
		prev := r.middle.Swap(r.front)
		r.front = prev &^ freshBit
		r.started = true
	}
	if !r.started {
		return nil
	}
	return &r.slots[r.front]
}

// Stats reports publish activity.
type Stats struct {
	Published uint64
	Dropped   uint64
	Grown     uint64
}

// Stats returns a snapshot of the counters.
func (r *Ring) Stats() Stats {
	return Stats{
		Published: r.published.Load(),
		Dropped:   r.dropped.Load(),
		Grown:     r.grown.Load(),
	}
}
