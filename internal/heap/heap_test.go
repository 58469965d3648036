package heap

import (
	"testing"
	"unsafe"

	"github.com/embodios/kernel/internal/pmm"
)

func uintptrOf(b []byte) uintptr {
	if len(b) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&b[0]))
}

func newHeap(t *testing.T, pages int) *Heap {
	t.Helper()
	p, err := pmm.New(pages)
	if err != nil {
		t.Fatal(err)
	}
	return New(p)
}

func TestAllocFreeReusable(t *testing.T) {
	h := newHeap(t, 16)
	b, err := h.Alloc(100)
	if err != nil {
		t.Fatal(err)
	}
	copy(b.Data, []byte("hello"))
	if err := h.Free(b); err != nil {
		t.Fatal(err)
	}
	b2, err := h.Alloc(100)
	if err != nil {
		t.Fatal(err)
	}
	if b2.Data == nil {
		t.Fatal("expected usable memory after free/realloc")
	}
}

func TestAllocAlignedSatisfiesAlignment(t *testing.T) {
	h := newHeap(t, 64)
	for _, align := range []int{4096, 8192, 16384} {
		b, err := h.AllocAligned(1000, align)
		if err != nil {
			t.Fatal(err)
		}
		addr := uintptrOf(b.Data)
		if addr%uintptr(align) != 0 {
			t.Errorf("AllocAligned(%d) not aligned: addr=%x", align, addr)
		}
	}
}

func TestReallocPreservesPrefix(t *testing.T) {
	h := newHeap(t, 16)
	b, err := h.Alloc(10)
	if err != nil {
		t.Fatal(err)
	}
	copy(b.Data, []byte("0123456789"))
	nb, err := h.Realloc(b, 20)
	if err != nil {
		t.Fatal(err)
	}
	if string(nb.Data[:10]) != "0123456789" {
		t.Errorf("realloc lost prefix: %q", nb.Data[:10])
	}
}

func TestDoubleFreeRejected(t *testing.T) {
	h := newHeap(t, 16)
	b, err := h.Alloc(10)
	if err != nil {
		t.Fatal(err)
	}
	if err := h.Free(b); err != nil {
		t.Fatal(err)
	}
	if err := h.Free(b); err == nil {
		t.Fatal("expected error on double free")
	}
}
