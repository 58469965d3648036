package transformer

import (
	"github.com/embodios/kernel/internal/fixedpoint"
)

// attend computes standard scaled dot-product attention for one head: dot
// q against each cached key up to and including position p, softmax across
// the time axis with max-subtraction, then weighted-sum the cached values,
//e. This is the "correct model" branch of the open
// question (real attention, not the simplified per-dimension average the
// source also allows); it is the one carried here because the kernel's own
// invariant (property 5, RoPE magnitude preservation) only has
// teeth against a real attention computation.
func attend(q []fixedpoint.Fixed, keys, values [][]fixedpoint.Fixed, headDim int) []fixedpoint.Fixed {
	n := len(keys)
	scores := make([]fixedpoint.Fixed, n)
	scale := fixedpoint.FromFloat(1.0 / sqrtInt(headDim))
	for t := 0; t < n; t++ {
		var acc int64
		for i := 0; i < headDim; i++ {
			acc += (int64(q[i]) * int64(keys[t][i])) >> 16
		}
		scores[t] = fixedpoint.Mul(fixedpoint.Fixed(acc), scale)
	}
	weights := make([]fixedpoint.Fixed, n)
	fixedpoint.Softmax(scores, weights)

	out := make([]fixedpoint.Fixed, headDim)
	for t := 0; t < n; t++ {
		w := weights[t]
		if w == 0 {
			continue
		}
		for i := 0; i < headDim; i++ {
			out[i] = fixedpoint.Add(out[i], fixedpoint.Mul(w, values[t][i]))
		}
	}
	return out
}

func sqrtInt(n int) float64 {
	x := float64(n)
	if x <= 0 {
		return 1
	}
	g := x / 2
	for i := 0; i < 20; i++ {
		g = (g + x/g) / 2
	}
	return g
}
