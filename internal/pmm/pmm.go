// Package pmm implements the buddy physical memory manager: a
// bitmap-tracked, order-indexed free-list allocator over a byte arena
// standing in for a physical memory region. The intrusive
// pointer-threaded free lists a C kernel would use ("memory used as its
// own control block") become an index-based structure here: free blocks
// are identified by page index, and each free list is a plain slice of
// indices rather than a linked list threaded through the backing bytes.
// The PMM owns the arena and is its sole allocator, built directly on the
// buddy algorithm rather than a third-party library: page allocation has
// no off-the-shelf Go equivalent worth adapting.
package pmm

import (
	"unsafe"

	"github.com/embodios/kernel/internal/config"
	"github.com/embodios/kernel/internal/errs"
)

const (
	pageSize = config.PageSize
	maxOrder = config.MaxOrder
)

// PMM manages a region of total_pages pages via 2^order free lists and a
// one-bit-per-page allocation bitmap
type PMM struct {
	arena      []byte
	totalPages int
	bitmap     []bool // true = page allocated
	freeLists  [maxOrder + 1][]int
	freeCount  int
}

// New creates a PMM over a freshly allocated arena of `pages` 4 KiB pages,
// modeling a bitmap-backed page allocator: the bitmap lives conceptually
// at the region start but is represented here as a separate owned slice
// (an owned buffer, not a raw pointer into the arena), and the remainder
// is registered into the free lists at the largest aligned order that
// fits.
func New(pages int) (*PMM, error) {
	if pages <= 0 {
		return nil, errs.New("pmm.New", errs.Invalid, "pages must be positive, got %d", pages)
	}
	p := &PMM{
		arena:      alignedArena(pages * pageSize),
		totalPages: pages,
		bitmap:     make([]bool, pages),
	}
	p.seedFreeLists()
	return p, nil
}

// alignedArena returns a byte slice of exactly `size` bytes whose backing
// array starts on a page boundary, so that every page-granular offset into
// it (and in turn every heap.AllocAligned request up to the page size) is
// trivially satisfied without per-OS mmap support. It over-allocates by one
// page and slices forward to the first aligned byte.
func alignedArena(size int) []byte {
	raw := make([]byte, size+pageSize)
	base := uintptr(unsafe.Pointer(&raw[0]))
	offset := (pageSize - int(base%pageSize)) % pageSize
	return raw[offset : offset+size]
}

func (p *PMM) seedFreeLists() {
	idx := 0
	for idx < p.totalPages {
		order := maxOrder
		for order > 0 {
			size := 1 << order
			if idx%size == 0 && idx+size <= p.totalPages {
				break
			}
			order--
		}
		p.insertFree(idx, order)
		idx += 1 << order
	}
}

func (p *PMM) insertFree(pageIdx, order int) {
	p.freeLists[order] = append(p.freeLists[order], pageIdx)
	p.freeCount += 1 << order
}

// removeFree deletes pageIdx from free list `order`, returning whether it
// was present.
func (p *PMM) removeFree(order, pageIdx int) bool {
	list := p.freeLists[order]
	for i, v := range list {
		if v == pageIdx {
			p.freeLists[order] = append(list[:i], list[i+1:]...)
			p.freeCount -= 1 << order
			return true
		}
	}
	return false
}

func orderFor(pages int) int {
	order := 0
	size := 1
	for size < pages {
		size <<= 1
		order++
	}
	return order
}

// Buddy returns the buddy page index of p at order o: p XOR (1<<o).
func Buddy(pageIdx, order int) int {
	return pageIdx ^ (1 << order)
}

// AllocPages rounds count up to 2^order, finds the lowest order with a
// non-empty free list, splits higher-order blocks as needed (inserting
// each split buddy's *right* half into progressively lower lists), marks
// the bitmap, and zeroes the returned memory
func (p *PMM) AllocPages(count int) ([]byte, int, error) {
	if count <= 0 {
		return nil, 0, errs.New("pmm.AllocPages", errs.Invalid, "count must be positive, got %d", count)
	}
	order := orderFor(count)
	if order > maxOrder {
		return nil, 0, errs.New("pmm.AllocPages", errs.Bounds, "order %d exceeds max %d", order, maxOrder)
	}

	found := -1
	for o := order; o <= maxOrder; o++ {
		if len(p.freeLists[o]) > 0 {
			found = o
			break
		}
	}
	if found == -1 {
		return nil, 0, errs.New("pmm.AllocPages", errs.NoMem, "no free block >= order %d", order)
	}

	list := p.freeLists[found]
	pageIdx := list[len(list)-1]
	p.freeLists[found] = list[:len(list)-1]
	p.freeCount -= 1 << found

	// Split from `found` down to `order`, keeping the left half and
	// inserting the right half into each intermediate list.
	for o := found; o > order; o-- {
		half := 1 << (o - 1)
		p.insertFree(pageIdx+half, o-1)
	}

	for i := 0; i < (1 << order); i++ {
		p.bitmap[pageIdx+i] = true
	}

	start := pageIdx * pageSize
	size := (1 << order) * pageSize
	region := p.arena[start : start+size]
	clear(region)
	return region, pageIdx, nil
}

// FreePages releases the count-page block starting at pageIdx, clearing
// its bitmap bits and coalescing with its buddy at each order while the
// buddy is entirely free
func (p *PMM) FreePages(pageIdx, count int) error {
	order := orderFor(count)
	if pageIdx < 0 || pageIdx+(1<<order) > p.totalPages {
		return errs.New("pmm.FreePages", errs.Bounds, "page %d+%d out of range", pageIdx, count)
	}
	for i := 0; i < (1 << order); i++ {
		if !p.bitmap[pageIdx+i] {
			return errs.New("pmm.FreePages", errs.Invalid, "double free at page %d", pageIdx+i)
		}
		p.bitmap[pageIdx+i] = false
	}

	for order < maxOrder {
		buddy := Buddy(pageIdx, order)
		if buddy+(1<<order) > p.totalPages {
			break
		}
		if !p.removeFree(order, buddy) {
			break
		}
		if buddy < pageIdx {
			pageIdx = buddy
		}
		order++
	}
	p.insertFree(pageIdx, order)
	return nil
}

// FreePageCount returns the number of pages currently available for
// allocation, used by the PMM round-trip property (property 1).
func (p *PMM) FreePageCount() int { return p.freeCount }

// TotalPages returns the region's page count.
func (p *PMM) TotalPages() int { return p.totalPages }
