// Package heap implements malloc/calloc/realloc/free and the
// aligned-allocation entry points backing everything above the buddy PMM.
// It is the PMM's sole client for small allocations; no particular
// free-list-by-size strategy is load-bearing here, so this favors small,
// composable scoped-resource types by returning a *Block handle that is
// released through Heap.Free.
package heap

import (
	"github.com/embodios/kernel/internal/config"
	"github.com/embodios/kernel/internal/errs"
	"github.com/embodios/kernel/internal/pmm"
)

// Heap allocates variable-size, optionally aligned regions over a PMM.
type Heap struct {
	pmm *pmm.PMM
}

// Block is an owned heap allocation; Heap.Free is its paired release call.
type Block struct {
	Data      []byte
	pageIdx   int
	pageCount int
	freed     bool
}

// New wraps a PMM as a heap.
func New(p *pmm.PMM) *Heap {
	return &Heap{pmm: p}
}

func pagesFor(size int) int {
	return (size + config.PageSize - 1) / config.PageSize
}

// Alloc allocates at least `size` bytes, page-granular (the heap here
// backs every request with whole PMM pages; sub-page packing is left to
// callers that need it statement that only the
// contract matters).
func (h *Heap) Alloc(size int) (*Block, error) {
	if size <= 0 {
		return nil, errs.New("heap.Alloc", errs.Invalid, "size must be positive, got %d", size)
	}
	pages := pagesFor(size)
	data, idx, err := h.pmm.AllocPages(pages)
	if err != nil {
		return nil, errs.Wrap("heap.Alloc", errs.NoMem, err, "allocating %d bytes", size)
	}
	return &Block{Data: data[:size], pageIdx: idx, pageCount: pages}, nil
}

// Calloc allocates and zero-initializes (PMM.AllocPages already zeroes).
func (h *Heap) Calloc(size int) (*Block, error) { return h.Alloc(size) }

// AllocAligned allocates `size` bytes such that the returned slice's
// backing array starts on an `alignment`-byte boundary (a power of two
// no greater than PageSize*2^MaxOrder) Because every PMM
// allocation already starts on a page boundary (4096), any alignment that
// divides the page size is satisfied for free; larger alignments round the
// page count up to the next power of two so the block itself is
// power-of-two sized and therefore aligned to its own size.
func (h *Heap) AllocAligned(size, alignment int) (*Block, error) {
	if alignment <= 0 || alignment&(alignment-1) != 0 {
		return nil, errs.New("heap.AllocAligned", errs.Invalid, "alignment %d is not a power of two", alignment)
	}
	if alignment <= config.PageSize {
		return h.Alloc(size)
	}
	pages := pagesFor(size)
	neededPages := pagesFor(alignment)
	order := 0
	for (1 << order) < neededPages {
		order++
	}
	alignedPages := 1 << order
	if alignedPages < pages {
		for alignedPages < pages {
			alignedPages <<= 1
		}
	}
	data, idx, err := h.pmm.AllocPages(alignedPages)
	if err != nil {
		return nil, errs.Wrap("heap.AllocAligned", errs.NoMem, err, "allocating %d bytes aligned to %d", size, alignment)
	}
	return &Block{Data: data[:size], pageIdx: idx, pageCount: alignedPages}, nil
}

// Free releases b back to the PMM; it is an error to use b afterward.
func (h *Heap) Free(b *Block) error {
	if b == nil {
		return errs.New("heap.Free", errs.Null, "nil block")
	}
	if b.freed {
		return errs.New("heap.Free", errs.Invalid, "double free")
	}
	if err := h.pmm.FreePages(b.pageIdx, b.pageCount); err != nil {
		return errs.Wrap("heap.Free", errs.Invalid, err, "freeing block")
	}
	b.freed = true
	b.Data = nil
	return nil
}

// Realloc grows or shrinks b to n bytes, preserving the first min(old,n)
// bytes
func (h *Heap) Realloc(b *Block, n int) (*Block, error) {
	if b == nil {
		return h.Alloc(n)
	}
	nb, err := h.Alloc(n)
	if err != nil {
		return nil, err
	}
	copy(nb.Data, b.Data[:min(len(b.Data), n)])
	if err := h.Free(b); err != nil {
		return nil, err
	}
	return nb, nil
}
