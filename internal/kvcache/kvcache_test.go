package kvcache

import (
	"testing"

	"github.com/embodios/kernel/internal/errs"
	"github.com/embodios/kernel/internal/fixedpoint"
	"github.com/embodios/kernel/internal/heap"
	"github.com/embodios/kernel/internal/pmm"
)

func newHeap(t *testing.T, pages int) *heap.Heap {
	t.Helper()
	p, err := pmm.New(pages)
	if err != nil {
		t.Fatal(err)
	}
	return heap.New(p)
}

func vec(n int, base fixedpoint.Fixed) []fixedpoint.Fixed {
	v := make([]fixedpoint.Fixed, n)
	for i := range v {
		v[i] = base + fixedpoint.Fixed(i)
	}
	return v
}

func TestStoreAndGetRoundTrip(t *testing.T) {
	h := newHeap(t, 256)
	c, err := Create(h, Config{NLayers: 2, NKVHeads: 2, HeadDim: 4, MaxSeqLen: 8, Eviction: EvictNone})
	if err != nil {
		t.Fatal(err)
	}
	vlen := 2 * 4
	key := vec(vlen, 10)
	val := vec(vlen, 100)
	if err := c.Store(0, 3, key, val); err != nil {
		t.Fatal(err)
	}
	if c.SeqLen(0) != 4 {
		t.Errorf("SeqLen = %d, want 4", c.SeqLen(0))
	}
	got := make([]fixedpoint.Fixed, vlen)
	if err := c.GetKeys(0, 3, 1, got); err != nil {
		t.Fatal(err)
	}
	for i := range got {
		if got[i] != key[i] {
			t.Errorf("GetKeys[%d] = %v, want %v", i, got[i], key[i])
		}
	}
}

// TestNoneEvictionOverflowRejected implements property 6's first
// half: without eviction, storing at position >= max_seq_len returns
// BOUNDS and state is unchanged.
func TestNoneEvictionOverflowRejected(t *testing.T) {
	h := newHeap(t, 256)
	c, err := Create(h, Config{NLayers: 1, NKVHeads: 1, HeadDim: 4, MaxSeqLen: 4, Eviction: EvictNone})
	if err != nil {
		t.Fatal(err)
	}
	v := vec(4, 1)
	if err := c.Store(0, 0, v, v); err != nil {
		t.Fatal(err)
	}
	before := c.SeqLen(0)
	if err := c.Store(0, 4, v, v); err == nil {
		t.Fatal("expected BOUNDS storing at position == max_seq_len with NONE eviction")
	} else if k, _ := errs.KindOf(err); k != errs.Bounds {
		t.Errorf("expected Bounds kind, got %v", k)
	}
	if c.SeqLen(0) != before {
		t.Errorf("SeqLen changed after rejected store: %d -> %d", before, c.SeqLen(0))
	}
}

// TestSlidingWindowScenario implements scenario S4: max_seq_len=8,
// window=4, SLIDING; store positions 0..7 then 8: seq_len after the last
// store is 4, start_pos is 5, and the entry stored at position 8 reads
// back from slot 3 of the shifted window (slots 0..3 hold old positions
// 5..8).
func TestSlidingWindowScenario(t *testing.T) {
	h := newHeap(t, 256)
	c, err := Create(h, Config{NLayers: 1, NKVHeads: 1, HeadDim: 2, MaxSeqLen: 8, Window: 4, Eviction: EvictSliding})
	if err != nil {
		t.Fatal(err)
	}
	vlen := 2
	for pos := 0; pos < 8; pos++ {
		v := vec(vlen, fixedpoint.Fixed(pos*10))
		if err := c.Store(0, pos, v, v); err != nil {
			t.Fatalf("store at %d: %v", pos, err)
		}
	}
	v8 := vec(vlen, 80)
	if err := c.Store(0, 8, v8, v8); err != nil {
		t.Fatal(err)
	}
	if c.SeqLen(0) != 4 {
		t.Errorf("SeqLen after overflow store = %d, want 4", c.SeqLen(0))
	}
	if c.StartPos(0) != 5 {
		t.Errorf("StartPos after overflow store = %d, want 5", c.StartPos(0))
	}
	got := make([]fixedpoint.Fixed, vlen)
	// The newest entry (logical position 8) lands in the last slot of the
	// now-4-wide live window.
	if err := c.GetKeys(0, 3, 1, got); err != nil {
		t.Fatal(err)
	}
	want := vec(vlen, 80)
	for i := range got {
		if got[i] != want[i] {
			t.Errorf("post-slide key[%d] = %v, want %v (value from old position 8)", i, got[i], want[i])
		}
	}
}

func TestRingEvictionAdvancesStartPos(t *testing.T) {
	h := newHeap(t, 256)
	c, err := Create(h, Config{NLayers: 1, NKVHeads: 1, HeadDim: 2, MaxSeqLen: 4, Eviction: EvictRing})
	if err != nil {
		t.Fatal(err)
	}
	v := vec(2, 1)
	for pos := 0; pos < 6; pos++ {
		if err := c.Store(0, pos, v, v); err != nil {
			t.Fatalf("store at %d: %v", pos, err)
		}
	}
	if c.StartPos(0) == 0 {
		t.Error("expected StartPos to advance under RING eviction")
	}
}

func TestDestroyRejectsFurtherUse(t *testing.T) {
	h := newHeap(t, 256)
	c, err := Create(h, Config{NLayers: 1, NKVHeads: 1, HeadDim: 2, MaxSeqLen: 4, Eviction: EvictNone})
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Destroy(); err != nil {
		t.Fatal(err)
	}
	v := vec(2, 1)
	if err := c.Store(0, 0, v, v); err == nil {
		t.Fatal("expected error using a destroyed cache")
	} else if k, _ := errs.KindOf(err); k != errs.NotInit {
		t.Errorf("expected NotInit kind, got %v", k)
	}
}

func TestCreateRejectsOutOfRangeConfig(t *testing.T) {
	h := newHeap(t, 256)
	if _, err := Create(h, Config{NLayers: 0, NKVHeads: 1, HeadDim: 1, MaxSeqLen: 1}); err == nil {
		t.Fatal("expected error for n_layers=0")
	}
	if _, err := Create(h, Config{NLayers: 1, NKVHeads: 1, HeadDim: 1, MaxSeqLen: 99999}); err == nil {
		t.Fatal("expected error for max_seq_len exceeding cap")
	}
}
