// Package kvcache implements the per-layer page-aligned key/value store:
// bounded config validation, page-aligned per-layer buffers, magic/version
// guards against use-after-destroy, and the NONE/SLIDING/RING/ATTENTION
// eviction policies.
package kvcache

import (
	"github.com/embodios/kernel/internal/config"
	"github.com/embodios/kernel/internal/errs"
	"github.com/embodios/kernel/internal/fixedpoint"
	"github.com/embodios/kernel/internal/heap"
)

// Eviction selects the cache's overflow policy
type Eviction int

const (
	EvictNone Eviction = iota
	EvictSliding
	EvictRing
	EvictAttention
)

const (
	cacheMagic   = 0x4B564341 // 'KVCA'
	cacheVersion = 1
)

// Config describes the shape of a cache instance create()
// validation ranges.
type Config struct {
	NLayers    int
	NKVHeads   int
	HeadDim    int
	MaxSeqLen  int
	Window     int // used only by EvictSliding
	Eviction   Eviction
}

func (c Config) vectorLen() int { return c.NKVHeads * c.HeadDim }

func validate(c Config) error {
	if c.NLayers < 1 || c.NLayers > config.KVCacheMaxLayers {
		return errs.New("kvcache.validate", errs.Bounds, "n_layers %d out of [1,%d]", c.NLayers, config.KVCacheMaxLayers)
	}
	if c.NKVHeads < 1 || c.NKVHeads > config.KVCacheMaxKVHeads {
		return errs.New("kvcache.validate", errs.Bounds, "n_kv_heads %d out of [1,%d]", c.NKVHeads, config.KVCacheMaxKVHeads)
	}
	if c.HeadDim < 1 || c.HeadDim > config.KVCacheMaxHeadDim {
		return errs.New("kvcache.validate", errs.Bounds, "head_dim %d out of [1,%d]", c.HeadDim, config.KVCacheMaxHeadDim)
	}
	if c.MaxSeqLen < 1 || c.MaxSeqLen > config.KVCacheMaxSeqLen {
		return errs.New("kvcache.validate", errs.Bounds, "max_seq_len %d out of [1,%d]", c.MaxSeqLen, config.KVCacheMaxSeqLen)
	}
	return nil
}

// layer holds one transformer layer's K/V store and write cursor.
type layer struct {
	k, v              *heap.Block
	seqLen, startPos  int
	stores, evictions int
}

// Cache is a KV attention cache
type Cache struct {
	magic  uint32
	heap   *heap.Heap
	cfg    Config
	layers []layer
}

// Create validates cfg, page-aligns each per-layer K
// and V buffer, and stamps the cache's magic/version. On any allocation
// failure every preceding allocation is freed before returning the error.
func Create(h *heap.Heap, cfg Config) (*Cache, error) {
	if err := validate(cfg); err != nil {
		return nil, err
	}
	c := &Cache{magic: cacheMagic, heap: h, cfg: cfg, layers: make([]layer, cfg.NLayers)}

	elemSize := 4 // fixedpoint.Fixed is 4 bytes
	bufSize := cfg.MaxSeqLen * cfg.vectorLen() * elemSize

	for i := 0; i < cfg.NLayers; i++ {
		kb, err := h.AllocAligned(bufSize, config.PageSize)
		if err != nil {
			c.freeLayers(i)
			return nil, errs.Wrap("kvcache.Create", errs.NoMem, err, "allocating layer %d K buffer", i)
		}
		vb, err := h.AllocAligned(bufSize, config.PageSize)
		if err != nil {
			if ferr := h.Free(kb); ferr != nil {
				return nil, errs.Wrap("kvcache.Create", errs.NoMem, ferr, "rollback of layer %d K buffer also failed", i)
			}
			c.freeLayers(i)
			return nil, errs.Wrap("kvcache.Create", errs.NoMem, err, "allocating layer %d V buffer", i)
		}
		c.layers[i] = layer{k: kb, v: vb}
	}
	return c, nil
}

func (c *Cache) freeLayers(upTo int) {
	for i := 0; i < upTo; i++ {
		_ = c.heap.Free(c.layers[i].k)
		_ = c.heap.Free(c.layers[i].v)
	}
}

func (c *Cache) checkAlive(op string) error {
	if c.magic != cacheMagic {
		return errs.New(op, errs.NotInit, "cache has been destroyed")
	}
	return nil
}

func (c *Cache) checkLayer(op string, l int) error {
	if l < 0 || l >= len(c.layers) {
		return errs.New(op, errs.Bounds, "layer %d out of [0,%d)", l, len(c.layers))
	}
	return nil
}

// Store writes key and value (each n_kv_heads*head_dim fixed-point
// elements) for layer l at position pos, applying eviction if pos would
// overflow max_seq_len
func (c *Cache) Store(l, pos int, key, value []fixedpoint.Fixed) error {
	if err := c.checkAlive("kvcache.Store"); err != nil {
		return err
	}
	if err := c.checkLayer("kvcache.Store", l); err != nil {
		return err
	}
	vlen := c.cfg.vectorLen()
	if len(key) != vlen || len(value) != vlen {
		return errs.New("kvcache.Store", errs.Invalid, "key/value length %d/%d, want %d", len(key), len(value), vlen)
	}

	ly := &c.layers[l]
	if pos >= c.cfg.MaxSeqLen {
		if err := c.evict(l); err != nil {
			return err
		}
		switch c.cfg.Eviction {
		case EvictRing:
			// Ring eviction advanced start_pos past the oldest slot; the
			// new entry overwrites that vacated slot in place.
			pos = (ly.startPos + c.cfg.MaxSeqLen - 1) % c.cfg.MaxSeqLen
		default:
			// SLIDING/ATTENTION shrank the live window to window-1; the
			// incoming entry lands right after it.
			pos = ly.seqLen
		}
	}
	if pos < 0 {
		return errs.New("kvcache.Store", errs.Bounds, "position %d is negative", pos)
	}

	writeVector(ly.k.Data, pos, vlen, key)
	writeVector(ly.v.Data, pos, vlen, value)
	if c.cfg.Eviction != EvictRing && pos+1 > ly.seqLen {
		ly.seqLen = pos + 1
	} else if c.cfg.Eviction == EvictRing && ly.seqLen < c.cfg.MaxSeqLen {
		ly.seqLen++
	}
	ly.stores++
	return nil
}

func writeVector(buf []byte, pos, vlen int, v []fixedpoint.Fixed) {
	off := pos * vlen * 4
	for i, f := range v {
		putFixed(buf[off+i*4:], f)
	}
}

func readVector(buf []byte, pos, vlen int, dst []fixedpoint.Fixed) {
	off := pos * vlen * 4
	for i := range dst {
		dst[i] = getFixed(buf[off+i*4:])
	}
}

func putFixed(b []byte, f fixedpoint.Fixed) {
	u := uint32(f)
	b[0] = byte(u)
	b[1] = byte(u >> 8)
	b[2] = byte(u >> 16)
	b[3] = byte(u >> 24)
}

func getFixed(b []byte) fixedpoint.Fixed {
	u := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
	return fixedpoint.Fixed(int32(u))
}

// GetKeys copies n key vectors starting at position start from layer l
// into dst, bounds-checked with overflow-safe comparison
func (c *Cache) GetKeys(l, start, n int, dst []fixedpoint.Fixed) error {
	return c.getVectors(l, start, n, dst, true)
}

// GetValues copies n value vectors starting at position start from layer l
// into dst.
func (c *Cache) GetValues(l, start, n int, dst []fixedpoint.Fixed) error {
	return c.getVectors(l, start, n, dst, false)
}

func (c *Cache) getVectors(l, start, n int, dst []fixedpoint.Fixed, keys bool) error {
	if err := c.checkAlive("kvcache.get"); err != nil {
		return err
	}
	if err := c.checkLayer("kvcache.get", l); err != nil {
		return err
	}
	ly := &c.layers[l]
	if n < 0 || start < 0 || n > ly.seqLen || start > ly.seqLen-n {
		return errs.New("kvcache.get", errs.Bounds, "range [%d,%d) outside seq_len %d", start, start+n, ly.seqLen)
	}
	vlen := c.cfg.vectorLen()
	if len(dst) != n*vlen {
		return errs.New("kvcache.get", errs.Invalid, "dst length %d, want %d", len(dst), n*vlen)
	}
	buf := ly.v.Data
	if keys {
		buf = ly.k.Data
	}
	for i := 0; i < n; i++ {
		readVector(buf, start+i, vlen, dst[i*vlen:(i+1)*vlen])
	}
	return nil
}

// SeqLen returns layer l's current logical sequence length.
func (c *Cache) SeqLen(l int) int { return c.layers[l].seqLen }

// StartPos returns layer l's current eviction start position.
func (c *Cache) StartPos(l int) int { return c.layers[l].startPos }

// evict applies the cache's configured policy to layer l when a store
// would overflow max_seq_len
func (c *Cache) evict(l int) error {
	ly := &c.layers[l]
	switch c.cfg.Eviction {
	case EvictNone:
		return errs.New("kvcache.evict", errs.Bounds, "layer %d is full (NONE eviction policy)", l)
	case EvictSliding, EvictAttention:
		window := c.cfg.Window
		if window <= 0 || window > c.cfg.MaxSeqLen {
			window = c.cfg.MaxSeqLen
		}
		// Evict is called to make room for exactly one new entry, so it
		// shrinks the live window to window-1 rather than window, per
		// scenario S4 (seq_len == window only after the new store
		// lands).
		target := window - 1
		if ly.seqLen <= target {
			return nil
		}
		shift := ly.seqLen - target
		vlen := c.cfg.vectorLen()
		shiftLeft(ly.k.Data, shift, vlen)
		shiftLeft(ly.v.Data, shift, vlen)
		ly.seqLen = target
		ly.startPos += shift
		ly.evictions++
		return nil
	case EvictRing:
		ly.startPos = (ly.startPos + 1) % c.cfg.MaxSeqLen
		ly.evictions++
		return nil
	default:
		return errs.New("kvcache.evict", errs.Invalid, "unknown eviction policy %d", c.cfg.Eviction)
	}
}

// shiftLeft moves buf's vectors left by `positions` vectors of vlen
// fixed-point elements, overlap-safe
func shiftLeft(buf []byte, positions, vlen int) {
	stride := vlen * 4
	copy(buf, buf[positions*stride:])
}

// Destroy clears the cache's magic before freeing its buffers, so any
// subsequent use is rejected with NOT_INIT rather than silently operating
// on freed memory.
func (c *Cache) Destroy() error {
	if err := c.checkAlive("kvcache.Destroy"); err != nil {
		return err
	}
	c.magic = 0
	for i := range c.layers {
		if err := c.heap.Free(c.layers[i].k); err != nil {
			return err
		}
		if err := c.heap.Free(c.layers[i].v); err != nil {
			return err
		}
	}
	return nil
}
