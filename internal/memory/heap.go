// Package memory models the capability-tagged heaps of the target board.
// Buffers are ordinary Go slices; the heap only enforces per-region byte
// budgets so that allocation failure paths behave as they do on hardware.
package memory

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Caps is a set of memory capabilities a buffer requires.
type Caps uint8

const (
	// CapInternal is fast on-chip RAM.
	CapInternal Caps = 1 << iota
	// CapDMA is memory the transfer engine can read.
	CapDMA
	// CapSPIRAM is bulk external RAM.
	CapSPIRAM
)

// CapDefault accepts any region.
const CapDefault Caps = 0

func (c Caps) String() string {
	if c == CapDefault {
		return "default"
	}
	var parts []string
	if c&CapInternal != 0 {
		parts = append(parts, "internal")
	}
	if c&CapDMA != 0 {
		parts = append(parts, "dma")
	}
	if c&CapSPIRAM != 0 {
		parts = append(parts, "spiram")
	}
	return strings.Join(parts, "|")
}

var ErrNoRegion = errors.New("memory: no region satisfies the capabilities")

// AllocationError reports a failed allocation.
type AllocationError struct {
	Caps      Caps
	Size      int
	Available int
	Err       error
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("memory: allocating %d bytes (%s) failed, %d available: %v",
		e.Size, e.Caps, e.Available, e.Err)
}

func (e *AllocationError) Unwrap() error {
	return e.Err
}

var ErrExhausted = errors.New("memory: region exhausted")

// Region describes one heap. A zero Limit means unbounded.
type Region struct {
	Name  string
	Caps  Caps
	Limit int
}

// RegionStats is a snapshot of one region's usage.
type RegionStats struct {
	Name     string
	Used     int
	Peak     int
	Limit    int
	Failures int
}

type regionState struct {
	Region
	used     int
	peak     int
	failures int
}

type allocation struct {
	region int
	size   int
}

// Heap hands out buffers from capability-tagged regions. A nil *Heap
// allocates from the Go heap without limits.
type Heap struct {
	mu      sync.Mutex
	regions []*regionState
	owners  map[any]allocation
}

// NewHeap returns a heap over regions, searched in order.
func NewHeap(regions ...Region) *Heap {
	h := &Heap{owners: make(map[any]allocation)}
	for _, r := range regions {
		h.regions = append(h.regions, &regionState{Region: r})
	}
	return h
}

// DefaultRegions is the usual board split: DMA-capable internal RAM and a
// larger external RAM for bulk buffers.
func DefaultRegions(internal, spiram int) []Region {
	return []Region{
		{Name: "internal", Caps: CapInternal | CapDMA, Limit: internal},
		{Name: "spiram", Caps: CapSPIRAM, Limit: spiram},
	}
}

func (h *Heap) reserve(size int, caps Caps) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	matched := false
	best := 0
	for i, r := range h.regions {
		if r.Caps&caps != caps {
			continue
		}
		matched = true
		free := r.Limit - r.used
		if r.Limit == 0 || size <= free {
			r.used += size
			if r.used > r.peak {
				r.peak = r.used
			}
			return i, nil
		}
		if free > best {
			best = free
		}
		r.failures++
	}
	if !matched {
		return -1, &AllocationError{Caps: caps, Size: size, Err: ErrNoRegion}
	}
	return -1, &AllocationError{Caps: caps, Size: size, Available: best, Err: ErrExhausted}
}

func (h *Heap) track(key any, region, size int) {
	h.mu.Lock()
	h.owners[key] = allocation{region: region, size: size}
	h.mu.Unlock()
}

func (h *Heap) release(key any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	a, ok := h.owners[key]
	if !ok {
		return
	}
	delete(h.owners, key)
	h.regions[a.region].used -= a.size
}

// Alloc16 returns n zeroed pixels from a region providing caps.
func (h *Heap) Alloc16(n int, caps Caps) ([]uint16, error) {
	if h == nil || n <= 0 {
		return make([]uint16, n), nil
	}
	region, err := h.reserve(n*2, caps)
	if err != nil {
		return nil, err
	}
	buf := make([]uint16, n)
	h.track(&buf[0], region, n*2)
	return buf, nil
}

// AllocBytes returns n zeroed bytes from a region providing caps.
func (h *Heap) AllocBytes(n int, caps Caps) ([]byte, error) {
	if h == nil || n <= 0 {
		return make([]byte, n), nil
	}
	region, err := h.reserve(n, caps)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	h.track(&buf[0], region, n)
	return buf, nil
}

// Alloc16Preferred tries each capability set in order and returns the
// first success, or the last error.
func (h *Heap) Alloc16Preferred(n int, prefs ...Caps) ([]uint16, error) {
	var err error
	for _, caps := range prefs {
		var buf []uint16
		if buf, err = h.Alloc16(n, caps); err == nil {
			return buf, nil
		}
	}
	return nil, err
}

// Free16 returns buf's budget to its region. Unknown buffers are ignored.
func (h *Heap) Free16(buf []uint16) {
	if h == nil || cap(buf) == 0 {
		return
	}
	h.release(&buf[:1][0])
}

// FreeBytes returns buf's budget to its region.
func (h *Heap) FreeBytes(buf []byte) {
	if h == nil || cap(buf) == 0 {
		return
	}
	h.release(&buf[:1][0])
}

// Grow16 returns buf resliced to n when its capacity suffices. Otherwise it
// allocates a fresh buffer, releases the old one and returns the new one.
// Contents are not carried over.
func (h *Heap) Grow16(buf []uint16, n int, caps Caps) ([]uint16, error) {
	if cap(buf) >= n {
		return buf[:n], nil
	}
	fresh, err := h.Alloc16(n, caps)
	if err != nil {
		return buf, err
	}
	h.Free16(buf)
	return fresh, nil
}

// GrowBytes is Grow16 for byte buffers.
func (h *Heap) GrowBytes(buf []byte, n int, caps Caps) ([]byte, error) {
	if cap(buf) >= n {
		return buf[:n], nil
	}
	fresh, err := h.AllocBytes(n, caps)
	if err != nil {
		return buf, err
	}
	h.FreeBytes(buf)
	return fresh, nil
}

// Stats returns a snapshot of every region.
func (h *Heap) Stats() []RegionStats {
	if h == nil {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]RegionStats, 0, len(h.regions))
	for _, r := range h.regions {
		out = append(out, RegionStats{
			Name: r.Name, Used: r.used, Peak: r.peak, Limit: r.Limit, Failures: r.failures,
		})
	}
	return out
}
