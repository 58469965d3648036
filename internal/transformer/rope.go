package transformer

import (
	"math"

	"github.com/embodios/kernel/internal/fixedpoint"
)

// ApplyRoPE rotates consecutive dimension pairs (2i, 2i+1) of vec (one
// head's worth of head_dim fixed-point elements) by (cos theta, sin theta),
// where theta depends on position and dimensionc. freqBase
// is the architecture's RoPE frequency base (default 10000).
//
// theta_i(pos) = pos / freqBase^(2i/head_dim); since the kernel has no
// floating point inside this function, the per-dimension angle is computed
// in float64 by the caller (Forward calls RoPETables once per token for the
// current position) and passed in as cos/sin Q16.16 tables indexed by
// i -- ApplyRoPE itself performs
// only fixed-point multiply-adds "all neural ops
// operate on fixed_t" contract.
func ApplyRoPE(vec []fixedpoint.Fixed, cosTab, sinTab []fixedpoint.Fixed) {
	headDim := len(vec)
	for i := 0; i < headDim/2; i++ {
		c, s := cosTab[i], sinTab[i]
		x0, x1 := vec[2*i], vec[2*i+1]
		vec[2*i] = fixedpoint.Sub(fixedpoint.Mul(x0, c), fixedpoint.Mul(x1, s))
		vec[2*i+1] = fixedpoint.Add(fixedpoint.Mul(x0, s), fixedpoint.Mul(x1, c))
	}
}

// RoPETables precomputes the per-dimension cos/sin Q16.16 tables for a
// given position, head_dim, and frequency basec.
func RoPETables(pos int, headDim int, freqBase float64) (cosTab, sinTab []fixedpoint.Fixed) {
	cosTab = make([]fixedpoint.Fixed, headDim/2)
	sinTab = make([]fixedpoint.Fixed, headDim/2)
	for i := 0; i < headDim/2; i++ {
		theta := ropeAngle(pos, i, headDim, freqBase)
		cosTab[i] = fixedpoint.FromFloat(math.Cos(theta))
		sinTab[i] = fixedpoint.FromFloat(math.Sin(theta))
	}
	return cosTab, sinTab
}

// ropeAngle computes pos / freqBase^(2i/head_dim)c with a plain
// math.Pow call rather than a fixed-point approximation. It runs inside
// RoPETables, which Forward calls once per token, so this float64 work is
// on the per-token path.
func ropeAngle(pos, i, headDim int, freqBase float64) float64 {
	exponent := float64(2*i) / float64(headDim)
	freq := math.Pow(freqBase, -exponent)
	return float64(pos) * freq
}
