// Package transformer implements the forward pass: embedding lookup,
// per-layer RMSNorm -> QKV projection -> RoPE -> KV-cache store ->
// attention -> output projection -> residual -> FFN-norm -> SwiGLU ->
// residual, final norm + output projection to logits, and
// temperature/top-p sampling. Weights are held as packed quantized rows
// and consumed directly by internal/quant.MatMul, never dequantized
// wholesale.
package transformer

import (
	"github.com/embodios/kernel/internal/errs"
	"github.com/embodios/kernel/internal/fixedpoint"
	"github.com/embodios/kernel/internal/kvcache"
	"github.com/embodios/kernel/internal/quant"
)

// Config mirrors the model's init-time hyperparameters.
type Config struct {
	NVocab    int
	NEmbd     int
	NLayer    int
	NHeads    int
	NKVHeads  int
	NFF       int
	MaxSeqLen int
}

func (c Config) headDim() int { return c.NEmbd / c.NHeads }

func validate(c Config) error {
	if c.NVocab == 0 {
		return errs.New("transformer.validate", errs.Bounds, "n_vocab must be non-zero")
	}
	if c.NHeads == 0 {
		return errs.New("transformer.validate", errs.Bounds, "n_heads must be non-zero")
	}
	if c.NEmbd%c.NHeads != 0 {
		return errs.New("transformer.validate", errs.Invalid, "n_embd %d not divisible by n_heads %d", c.NEmbd, c.NHeads)
	}
	if c.NLayer == 0 || c.NFF == 0 || c.NKVHeads == 0 || c.MaxSeqLen == 0 {
		return errs.New("transformer.validate", errs.Bounds, "n_layer, n_ff, n_kv_heads, and max_seq_len must be non-zero")
	}
	return nil
}

// Weights is one quantized weight row-set; Format describes the on-disk
// block layout and Cols is the row length in logical elements.
type Weights struct {
	Format quant.Format
	Data   []byte
	Cols   int
	Rows   int
}

// matVec computes y = W*x directly on packed weights via the quantized
// codec, without ever materializing a dequantized copy of W.
func (w Weights) matVec(x []fixedpoint.Fixed, y []fixedpoint.Fixed) {
	quant.MatMul(w.Format, w.Data, w.Cols, x, y, w.Rows)
}

// Layer holds one transformer block's weights
type Layer struct {
	AttnNorm []fixedpoint.Fixed
	FFNNorm  []fixedpoint.Fixed

	WQ, WK, WV, WO Weights
	WGate, WUp, WDown Weights
}

// Model holds the full set of weights and runtime state for a single
// inference sequence as one owned value, with no ambient package-level
// globals.
type Model struct {
	cfg    Config
	layers []Layer

	embedding   []fixedpoint.Fixed // n_vocab * n_embd, row-major
	outputNorm  []fixedpoint.Fixed
	outputProj  Weights

	cache *kvcache.Cache
	pos   int

	ropeFreqBase float64

	initialized bool
}

// New validates cfg and returns a Model with no weights or
// KV cache attached yet; callers populate Layers/Embedding/OutputProj and
// call Init to bind a KV cache before the first Forward.
func New(cfg Config) (*Model, error) {
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return &Model{cfg: cfg, layers: make([]Layer, cfg.NLayer), ropeFreqBase: 10000}, nil
}

// SetRopeFreqBase overrides the RoPE frequency base (default 10000, per
// the architecture defaults).
func (m *Model) SetRopeFreqBase(base float64) { m.ropeFreqBase = base }

// Init attaches cache and rejects a second call
// ALREADY_INIT rule.
func (m *Model) Init(cache *kvcache.Cache) error {
	if m.initialized {
		return errs.New("transformer.Model.Init", errs.AlreadyInit, "model already initialized")
	}
	m.cache = cache
	m.initialized = true
	return nil
}

// Reset zeroes the current position
func (m *Model) Reset() { m.pos = 0 }

// Cleanup tears the model down; it simply marks the model
// uninitialized so further Forward calls are rejected.
func (m *Model) Cleanup() {
	m.initialized = false
	m.cache = nil
}

// Position returns the model's current write position.
func (m *Model) Position() int { return m.pos }

// Layers returns the mutable per-layer weight slots for population by a
// loader.
func (m *Model) Layers() []Layer { return m.layers }

// SetEmbedding installs the n_vocab*n_embd embedding table.
func (m *Model) SetEmbedding(table []fixedpoint.Fixed) { m.embedding = table }

// SetOutput installs the final RMSNorm weight and output projection.
func (m *Model) SetOutput(norm []fixedpoint.Fixed, proj Weights) {
	m.outputNorm = norm
	m.outputProj = proj
}
