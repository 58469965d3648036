// Package dma implements the coherent-allocation and streaming-mapping
// halves of the DMA subsystem. Identity virt<->phys mapping is assumed,
// so "dma_addr" here is the same offset as the backing arena's
// page-aligned address; the interesting behavior is the allocation-table
// bookkeeping and the cache-sync discipline a real bus-mastering device
// would require, modeled with owned buffers rather than raw pointers into
// the arena.
package dma

import (
	"github.com/embodios/kernel/internal/config"
	"github.com/embodios/kernel/internal/errs"
	"github.com/embodios/kernel/internal/heap"
)

// Direction classifies a streaming mapping's cache-sync requirement.
type Direction int

const (
	ToDevice Direction = iota
	FromDevice
	Bidirectional
)

// slot is one entry of the fixed allocation table
type slot struct {
	block *heap.Block
	size  int
	inUse bool
}

// Table is the fixed-capacity DMA allocation table. Entries are
// addressed by index rather than pointer index-based
// rewrite of the original's pointer-linked bookkeeping.
type Table struct {
	heap  *heap.Heap
	slots []slot
}

// New constructs a DMA table over h with room for at most capacity live
// coherent allocations.
func New(h *heap.Heap, capacity int) *Table {
	return &Table{heap: h, slots: make([]slot, capacity)}
}

// Handle identifies one coherent allocation by table index; DMAAddr is the
// identity-mapped device-visible address.
type Handle struct {
	Index   int
	DMAAddr uintptr
}

// Alloc page-aligns size, takes it from the heap with page alignment,
// zeroes it, records it in the table, and returns its data plus handle.
func (t *Table) Alloc(size int) ([]byte, Handle, error) {
	if size <= 0 {
		return nil, Handle{}, errs.New("dma.Alloc", errs.Invalid, "size must be positive, got %d", size)
	}
	idx := -1
	for i := range t.slots {
		if !t.slots[i].inUse {
			idx = i
			break
		}
	}
	if idx == -1 {
		return nil, Handle{}, errs.New("dma.Alloc", errs.Full, "allocation table exhausted (capacity %d)", len(t.slots))
	}
	b, err := t.heap.AllocAligned(size, config.PageSize)
	if err != nil {
		return nil, Handle{}, errs.Wrap("dma.Alloc", errs.NoMem, err, "allocating %d coherent bytes", size)
	}
	clear(b.Data)
	t.slots[idx] = slot{block: b, size: size, inUse: true}
	return b.Data, Handle{Index: idx, DMAAddr: addrOf(b.Data)}, nil
}

// Free releases the coherent allocation identified by h, removing its table
// entry and returning the memory to the heap.
func (t *Table) Free(h Handle) error {
	if h.Index < 0 || h.Index >= len(t.slots) {
		return errs.New("dma.Free", errs.Bounds, "index %d out of range", h.Index)
	}
	s := &t.slots[h.Index]
	if !s.inUse {
		return errs.New("dma.Free", errs.Invalid, "double free of slot %d", h.Index)
	}
	if err := t.heap.Free(s.block); err != nil {
		return errs.Wrap("dma.Free", errs.Invalid, err, "freeing slot %d", h.Index)
	}
	*s = slot{}
	return nil
}

// InUse reports the number of live coherent allocations, used by tests that
// want to confirm a full round trip leaves the table empty.
func (t *Table) InUse() int {
	n := 0
	for _, s := range t.slots {
		if s.inUse {
			n++
		}
	}
	return n
}
