package pmm

import (
	"testing"

	"github.com/embodios/kernel/internal/errs"
)

func TestBuddySymmetry(t *testing.T) {
	// Property 2: buddy(buddy(p,o),o) == p, for all p and o.
	for order := 0; order <= 10; order++ {
		for p := 0; p < 1024; p += 1 << order {
			b := Buddy(p, order)
			if got := Buddy(b, order); got != p {
				t.Errorf("Buddy(Buddy(%d,%d),%d) = %d, want %d", p, order, order, got, p)
			}
		}
	}
}

func TestRoundTrip(t *testing.T) {
	p, err := New(256)
	if err != nil {
		t.Fatal(err)
	}
	before := p.FreePageCount()

	r1, i1, err := p.AllocPages(3)
	if err != nil {
		t.Fatal(err)
	}
	if len(r1) != 4*pageSize {
		t.Errorf("alloc(3) rounded to %d bytes, want %d (order-2 block)", len(r1), 4*pageSize)
	}
	r2, i2, err := p.AllocPages(10)
	if err != nil {
		t.Fatal(err)
	}
	_ = r2

	if err := p.FreePages(i1, 3); err != nil {
		t.Fatal(err)
	}
	if err := p.FreePages(i2, 10); err != nil {
		t.Fatal(err)
	}

	if got := p.FreePageCount(); got != before {
		t.Errorf("FreePageCount after round trip = %d, want %d", got, before)
	}
}

func TestStressAllocUntilExhausted(t *testing.T) {
	// Scenario S2: allocate all pages of a 4 MiB region (1024 4KiB pages)
	// one by one; the next allocation returns NOMEM; freeing them in
	// arbitrary order restores the full free count.
	const pages = 1024 // 4 MiB / 4 KiB
	p, err := New(pages)
	if err != nil {
		t.Fatal(err)
	}

	var indices []int
	for i := 0; i < pages; i++ {
		_, idx, err := p.AllocPages(1)
		if err != nil {
			t.Fatalf("alloc %d failed: %v", i, err)
		}
		indices = append(indices, idx)
	}

	if _, _, err := p.AllocPages(1); err == nil {
		t.Fatal("expected NOMEM after exhausting region")
	} else if k, ok := errs.KindOf(err); !ok || k != errs.NoMem {
		t.Fatalf("expected NOMEM kind, got %v", err)
	}

	// Free in a scrambled (non-monotonic) order.
	order := []int{3, 1, 4, 1, 5, 9, 2, 6}
	freed := make(map[int]bool)
	n := 0
	for _, seed := range order {
		for i := seed; i < len(indices); i += 7 {
			if !freed[indices[i]] {
				if err := p.FreePages(indices[i], 1); err != nil {
					t.Fatal(err)
				}
				freed[indices[i]] = true
				n++
			}
		}
	}
	for _, idx := range indices {
		if !freed[idx] {
			if err := p.FreePages(idx, 1); err != nil {
				t.Fatal(err)
			}
			freed[idx] = true
		}
	}

	if got := p.FreePageCount(); got != pages {
		t.Errorf("FreePageCount after freeing all = %d, want %d", got, pages)
	}
}

func TestNoOverlapBetweenLiveAllocations(t *testing.T) {
	p, err := New(64)
	if err != nil {
		t.Fatal(err)
	}
	type live struct {
		start, size int
	}
	var allocs []live
	for i := 0; i < 8; i++ {
		_, idx, err := p.AllocPages(2)
		if err != nil {
			t.Fatal(err)
		}
		allocs = append(allocs, live{idx, 2})
	}
	for i := range allocs {
		for j := range allocs {
			if i == j {
				continue
			}
			a, b := allocs[i], allocs[j]
			if a.start < b.start+b.size && b.start < a.start+a.size {
				t.Errorf("overlap between allocation %d and %d", i, j)
			}
		}
	}
}

func TestFreeBadAddressIsBounds(t *testing.T) {
	p, err := New(16)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.FreePages(1000, 1); err == nil {
		t.Fatal("expected error freeing out-of-range page")
	} else if k, _ := errs.KindOf(err); k != errs.Bounds {
		t.Errorf("expected Bounds kind, got %v", k)
	}
}
