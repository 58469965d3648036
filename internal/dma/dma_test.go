package dma

import (
	"testing"

	"github.com/embodios/kernel/internal/errs"
	"github.com/embodios/kernel/internal/heap"
	"github.com/embodios/kernel/internal/pmm"
)

func newTable(t *testing.T, pages, capacity int) *Table {
	t.Helper()
	p, err := pmm.New(pages)
	if err != nil {
		t.Fatal(err)
	}
	return New(heap.New(p), capacity)
}

func TestAllocFreeRoundTrip(t *testing.T) {
	tbl := newTable(t, 64, 4)
	data, h, err := tbl.Alloc(1000)
	if err != nil {
		t.Fatal(err)
	}
	if h.DMAAddr == 0 {
		t.Fatal("expected non-zero DMA address")
	}
	for _, b := range data {
		if b != 0 {
			t.Fatal("expected zeroed coherent allocation")
		}
	}
	if tbl.InUse() != 1 {
		t.Fatalf("InUse() = %d, want 1", tbl.InUse())
	}
	if err := tbl.Free(h); err != nil {
		t.Fatal(err)
	}
	if tbl.InUse() != 0 {
		t.Fatalf("InUse() after free = %d, want 0", tbl.InUse())
	}
}

func TestAllocTableExhausted(t *testing.T) {
	tbl := newTable(t, 64, 2)
	if _, _, err := tbl.Alloc(100); err != nil {
		t.Fatal(err)
	}
	if _, _, err := tbl.Alloc(100); err != nil {
		t.Fatal(err)
	}
	if _, _, err := tbl.Alloc(100); err == nil {
		t.Fatal("expected FULL once table capacity is exhausted")
	} else if k, _ := errs.KindOf(err); k != errs.Full {
		t.Errorf("expected Full kind, got %v", k)
	}
}

func TestDoubleFreeRejected(t *testing.T) {
	tbl := newTable(t, 64, 2)
	_, h, err := tbl.Alloc(100)
	if err != nil {
		t.Fatal(err)
	}
	if err := tbl.Free(h); err != nil {
		t.Fatal(err)
	}
	if err := tbl.Free(h); err == nil {
		t.Fatal("expected error on double free")
	}
}

func TestSGListDirectionalSync(t *testing.T) {
	l := NewSGList(4)
	a := make([]byte, 16)
	b := make([]byte, 16)
	if err := l.Add(a); err != nil {
		t.Fatal(err)
	}
	if err := l.Add(b); err != nil {
		t.Fatal(err)
	}
	if err := l.Map(Bidirectional); err != nil {
		t.Fatal(err)
	}
	if stats := l.Stats(); stats.Flushes != 2 {
		t.Errorf("Flushes after Map(Bidirectional) = %d, want 2", stats.Flushes)
	}
	for _, e := range l.Entries() {
		if e.DMAAddr == 0 {
			t.Error("expected entries to be translated after Map")
		}
	}
	if err := l.Unmap(); err != nil {
		t.Fatal(err)
	}
	if stats := l.Stats(); stats.Invalidates != 2 {
		t.Errorf("Invalidates after Unmap = %d, want 2", stats.Invalidates)
	}
	for _, e := range l.Entries() {
		if e.DMAAddr != 0 {
			t.Error("expected DMA addresses cleared after Unmap")
		}
	}
}

func TestAddAfterMapRejected(t *testing.T) {
	l := NewSGList(4)
	if err := l.Add(make([]byte, 8)); err != nil {
		t.Fatal(err)
	}
	if err := l.Map(ToDevice); err != nil {
		t.Fatal(err)
	}
	if err := l.Add(make([]byte, 8)); err == nil {
		t.Fatal("expected error adding to a mapped list")
	}
}

func TestSGListFull(t *testing.T) {
	l := NewSGList(1)
	if err := l.Add(make([]byte, 8)); err != nil {
		t.Fatal(err)
	}
	if err := l.Add(make([]byte, 8)); err == nil {
		t.Fatal("expected FULL once capacity is exhausted")
	} else if k, _ := errs.KindOf(err); k != errs.Full {
		t.Errorf("expected Full kind, got %v", k)
	}
}
