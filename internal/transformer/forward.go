package transformer

import (
	"github.com/embodios/kernel/internal/errs"
	"github.com/embodios/kernel/internal/fixedpoint"
)

// Forward runs one token through the model at the current position and
// advances it It returns the vocab-sized logits.
func (m *Model) Forward(token int) ([]fixedpoint.Fixed, error) {
	if !m.initialized {
		return nil, errs.New("transformer.Model.Forward", errs.NotInit, "model not initialized")
	}
	if m.pos >= m.cfg.MaxSeqLen {
		return nil, errs.New("transformer.Model.Forward", errs.Bounds, "position %d would reach max_seq_len %d", m.pos, m.cfg.MaxSeqLen)
	}
	if token < 0 || token >= m.cfg.NVocab {
		return nil, errs.New("transformer.Model.Forward", errs.Bounds, "token %d out of [0,%d)", token, m.cfg.NVocab)
	}

	x := m.embeddingLookup(token)
	headDim := m.cfg.headDim()
	kvVecLen := m.cfg.NKVHeads * headDim
	groupSize := m.cfg.NHeads / m.cfg.NKVHeads
	if groupSize == 0 {
		groupSize = 1
	}

	cosTab, sinTab := RoPETables(m.pos, headDim, m.ropeFreqBase)

	for l := range m.layers {
		ly := &m.layers[l]

		normed := make([]fixedpoint.Fixed, len(x))
		fixedpoint.RMSNorm(x, ly.AttnNorm, normed)

		q := make([]fixedpoint.Fixed, m.cfg.NHeads*headDim)
		k := make([]fixedpoint.Fixed, kvVecLen)
		v := make([]fixedpoint.Fixed, kvVecLen)
		ly.WQ.matVec(normed, q)
		ly.WK.matVec(normed, k)
		ly.WV.matVec(normed, v)

		for h := 0; h < m.cfg.NHeads; h++ {
			ApplyRoPE(q[h*headDim:(h+1)*headDim], cosTab, sinTab)
		}
		for h := 0; h < m.cfg.NKVHeads; h++ {
			ApplyRoPE(k[h*headDim:(h+1)*headDim], cosTab, sinTab)
		}

		if err := m.cache.Store(l, m.pos, k, v); err != nil {
			return nil, errs.Wrap("transformer.Model.Forward", errs.IO, err, "storing KV at layer %d position %d", l, m.pos)
		}

		n := m.cache.SeqLen(l)
		allK := make([]fixedpoint.Fixed, n*kvVecLen)
		allV := make([]fixedpoint.Fixed, n*kvVecLen)
		if err := m.cache.GetKeys(l, 0, n, allK); err != nil {
			return nil, errs.Wrap("transformer.Model.Forward", errs.IO, err, "reading keys at layer %d", l)
		}
		if err := m.cache.GetValues(l, 0, n, allV); err != nil {
			return nil, errs.Wrap("transformer.Model.Forward", errs.IO, err, "reading values at layer %d", l)
		}

		attnOut := make([]fixedpoint.Fixed, m.cfg.NHeads*headDim)
		for h := 0; h < m.cfg.NHeads; h++ {
			kvh := h / groupSize
			keys := make([][]fixedpoint.Fixed, n)
			values := make([][]fixedpoint.Fixed, n)
			for t := 0; t < n; t++ {
				off := t*kvVecLen + kvh*headDim
				keys[t] = allK[off : off+headDim]
				values[t] = allV[off : off+headDim]
			}
			out := attend(q[h*headDim:(h+1)*headDim], keys, values, headDim)
			copy(attnOut[h*headDim:(h+1)*headDim], out)
		}

		proj := make([]fixedpoint.Fixed, len(x))
		ly.WO.matVec(attnOut, proj)
		for i := range x {
			x[i] = fixedpoint.Add(x[i], proj[i])
		}

		normed2 := make([]fixedpoint.Fixed, len(x))
		fixedpoint.RMSNorm(x, ly.FFNNorm, normed2)

		gate := make([]fixedpoint.Fixed, m.cfg.NFF)
		up := make([]fixedpoint.Fixed, m.cfg.NFF)
		ly.WGate.matVec(normed2, gate)
		ly.WUp.matVec(normed2, up)

		hidden := make([]fixedpoint.Fixed, m.cfg.NFF)
		for i := range hidden {
			silu := fixedpoint.Mul(gate[i], fixedpoint.Sigmoid(gate[i]))
			hidden[i] = fixedpoint.Mul(silu, up[i])
		}

		down := make([]fixedpoint.Fixed, len(x))
		ly.WDown.matVec(hidden, down)
		for i := range x {
			x[i] = fixedpoint.Add(x[i], down[i])
		}
	}

	final := make([]fixedpoint.Fixed, len(x))
	fixedpoint.RMSNorm(x, m.outputNorm, final)
	logits := make([]fixedpoint.Fixed, m.cfg.NVocab)
	m.outputProj.matVec(final, logits)

	m.pos++
	return logits, nil
}

func (m *Model) embeddingLookup(token int) []fixedpoint.Fixed {
	n := m.cfg.NEmbd
	if m.embedding == nil {
		// No embedding table was loaded: derive a deterministic,
		// distinguishable vector from the token ID so the rest of the
		// forward pass still has well-formed input.
		v := make([]fixedpoint.Fixed, n)
		for i := range v {
			v[i] = fixedpoint.FromFloat(float64((token*2654435761+i)%4001-2000) / 4000)
		}
		return v
	}
	out := make([]fixedpoint.Fixed, n)
	copy(out, m.embedding[token*n:(token+1)*n])
	return out
}
