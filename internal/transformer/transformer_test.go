package transformer

import (
	"testing"

	"github.com/embodios/kernel/internal/fixedpoint"
	"github.com/embodios/kernel/internal/heap"
	"github.com/embodios/kernel/internal/kvcache"
	"github.com/embodios/kernel/internal/pmm"
	"github.com/embodios/kernel/internal/quant"
)

// buildQ8Weights constructs a deterministic Q8_0 weight matrix of rows x
// cols, scale 1.0, with small varied signed byte values so matmul output is
// neither identically zero nor overflow-prone.
func buildQ8Weights(rows, cols int) Weights {
	blocksPerRow := quant.BlocksPerRow(quant.FormatQ8_0, cols)
	rowBytes := blocksPerRow * quant.BlockBytesQ8
	data := make([]byte, rows*rowBytes)
	one := uint16(1 << 8) // Q8.8 scale of 1.0
	for r := 0; r < rows; r++ {
		for b := 0; b < blocksPerRow; b++ {
			off := r*rowBytes + b*quant.BlockBytesQ8
			blk := data[off : off+quant.BlockBytesQ8]
			blk[0] = byte(one)
			blk[1] = byte(one >> 8)
			for i := 0; i < quant.ValuesPerBlockQ8; i++ {
				blk[2+i] = byte((r*7 + b*3 + i) % 17 - 8)
			}
		}
	}
	return Weights{Format: quant.FormatQ8_0, Data: data, Cols: cols, Rows: rows}
}

func newTestModel(t *testing.T, cfg Config) *Model {
	t.Helper()
	m, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	headDim := cfg.headDim()
	for l := range m.Layers() {
		ly := &m.Layers()[l]
		ly.AttnNorm = onesVec(cfg.NEmbd)
		ly.FFNNorm = onesVec(cfg.NEmbd)
		ly.WQ = buildQ8Weights(cfg.NHeads*headDim, cfg.NEmbd)
		ly.WK = buildQ8Weights(cfg.NKVHeads*headDim, cfg.NEmbd)
		ly.WV = buildQ8Weights(cfg.NKVHeads*headDim, cfg.NEmbd)
		ly.WO = buildQ8Weights(cfg.NEmbd, cfg.NHeads*headDim)
		ly.WGate = buildQ8Weights(cfg.NFF, cfg.NEmbd)
		ly.WUp = buildQ8Weights(cfg.NFF, cfg.NEmbd)
		ly.WDown = buildQ8Weights(cfg.NEmbd, cfg.NFF)
	}
	m.SetOutput(onesVec(cfg.NEmbd), buildQ8Weights(cfg.NVocab, cfg.NEmbd))

	p, err := pmm.New(4096)
	if err != nil {
		t.Fatal(err)
	}
	h := heap.New(p)
	cache, err := kvcache.Create(h, kvcache.Config{
		NLayers: cfg.NLayer, NKVHeads: cfg.NKVHeads, HeadDim: headDim,
		MaxSeqLen: cfg.MaxSeqLen, Eviction: kvcache.EvictNone,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Init(cache); err != nil {
		t.Fatal(err)
	}
	return m
}

func onesVec(n int) []fixedpoint.Fixed {
	v := make([]fixedpoint.Fixed, n)
	for i := range v {
		v[i] = fixedpoint.One
	}
	return v
}

// TestTokenStreamScenario implements scenario S3.
func TestTokenStreamScenario(t *testing.T) {
	cfg := Config{NVocab: 1000, NEmbd: 256, NLayer: 2, NHeads: 8, NKVHeads: 4, NFF: 512, MaxSeqLen: 64}
	m := newTestModel(t, cfg)

	tokens := []int{3, 17, 42, 5, 900, 2, 2, 3, 500, 501, 600, 1, 0, 999, 4}
	seen := make(map[int]bool)
	for i, tok := range tokens {
		logits, err := m.Forward(tok)
		if err != nil {
			t.Fatalf("forward %d: %v", i, err)
		}
		if len(logits) != cfg.NVocab {
			t.Fatalf("forward %d: logits length %d, want %d", i, len(logits), cfg.NVocab)
		}
		sampled := Sample(logits, fixedpoint.FromFloat(0.8), fixedpoint.FromFloat(0.9))
		if sampled < 0 || sampled >= cfg.NVocab {
			t.Fatalf("forward %d: sampled token %d out of [0,%d)", i, sampled, cfg.NVocab)
		}
		seen[sampled] = true
	}
	if m.Position() != len(tokens) {
		t.Errorf("Position() = %d, want %d", m.Position(), len(tokens))
	}
	if len(seen) < 2 {
		t.Errorf("expected at least 2 distinct sampled tokens, got %d", len(seen))
	}
}

func TestForwardRejectsPastMaxSeqLen(t *testing.T) {
	cfg := Config{NVocab: 10, NEmbd: 8, NLayer: 1, NHeads: 2, NKVHeads: 2, NFF: 16, MaxSeqLen: 2}
	m := newTestModel(t, cfg)
	if _, err := m.Forward(0); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Forward(1); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Forward(2); err == nil {
		t.Fatal("expected BOUNDS once position reaches max_seq_len")
	}
}

func TestInitTwiceRejected(t *testing.T) {
	cfg := Config{NVocab: 10, NEmbd: 8, NLayer: 1, NHeads: 2, NKVHeads: 2, NFF: 16, MaxSeqLen: 4}
	m := newTestModel(t, cfg)
	if err := m.Init(nil); err == nil {
		t.Fatal("expected ALREADY_INIT on second Init")
	}
}

func TestNewRejectsBadHeadDivision(t *testing.T) {
	if _, err := New(Config{NVocab: 10, NEmbd: 10, NHeads: 3, NLayer: 1, NKVHeads: 1, NFF: 4, MaxSeqLen: 4}); err == nil {
		t.Fatal("expected error when n_embd is not divisible by n_heads")
	}
}

// TestRoPEPreservesMagnitude implements property 5.
func TestRoPEPreservesMagnitude(t *testing.T) {
	headDim := 8
	q := make([]fixedpoint.Fixed, headDim)
	for i := range q {
		q[i] = fixedpoint.FromFloat(float64(i+1) / 4)
	}
	var before int64
	for _, v := range q {
		before += (int64(v) * int64(v)) >> 16
	}
	cosTab, sinTab := RoPETables(5, headDim, 10000)
	ApplyRoPE(q, cosTab, sinTab)
	var after int64
	for _, v := range q {
		after += (int64(v) * int64(v)) >> 16
	}
	if after < before/2 || after > before*2 {
		t.Errorf("||q||^2 changed too much: before=%d after=%d", before, after)
	}
}

func TestSampleLowTemperatureIsArgmax(t *testing.T) {
	logits := []fixedpoint.Fixed{
		fixedpoint.FromFloat(0.1),
		fixedpoint.FromFloat(5.0),
		fixedpoint.FromFloat(-2.0),
	}
	if got := Sample(logits, 0, fixedpoint.FromFloat(0.9)); got != 1 {
		t.Errorf("Sample with temperature 0 = %d, want argmax 1", got)
	}
}

// TestSampleTopPReturnsNucleusHead builds a 3-token vocab whose logits
// (2.0, 1.0, 0.0) give descending softmax probabilities roughly
// 0.665/0.244/0.090. With topP=0.7 the nucleus is {token 0, token 1}
// (0.665 alone falls short of 0.7, so token 1 is pulled in to reach it),
// and the pick must be the head of that prefix, token 0, not the tail
// token pulled in last to cross topP.
func TestSampleTopPReturnsNucleusHead(t *testing.T) {
	logits := []fixedpoint.Fixed{
		fixedpoint.FromFloat(2.0),
		fixedpoint.FromFloat(1.0),
		fixedpoint.FromFloat(0.0),
	}
	got := Sample(logits, fixedpoint.FromFloat(1.0), fixedpoint.FromFloat(0.7))
	if got != 0 {
		t.Errorf("Sample top-p = %d, want nucleus head 0 (highest-probability token)", got)
	}
}
