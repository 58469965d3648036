package simd

import "github.com/embodios/kernel/internal/fixedpoint"

// Dot computes the fixed-point dot product of a and b, accumulating in i64
// before the final >>16. a and b must have equal length;
// extra elements beyond the shorter are ignored.
func Dot(a, b []fixedpoint.Fixed) fixedpoint.Fixed {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	lanes := lanesFor(Detect().Level)
	var acc int64
	i := 0
	for ; i+lanes <= n; i += lanes {
		for j := 0; j < lanes; j++ {
			acc += int64(a[i+j]) * int64(b[i+j])
		}
	}
	for ; i < n; i++ {
		acc += int64(a[i]) * int64(b[i])
	}
	return fixedpoint.Fixed(acc >> 16)
}

// VAdd computes out[i] = a[i] + b[i] elementwise.
func VAdd(a, b, out []fixedpoint.Fixed) {
	n := min(len(a), min(len(b), len(out)))
	for i := 0; i < n; i++ {
		out[i] = fixedpoint.Add(a[i], b[i])
	}
}

// VMul computes out[i] = a[i] * b[i] elementwise (Q16.16 multiply).
func VMul(a, b, out []fixedpoint.Fixed) {
	n := min(len(a), min(len(b), len(out)))
	for i := 0; i < n; i++ {
		out[i] = fixedpoint.Mul(a[i], b[i])
	}
}

// MatVec computes out = M * v for an M with `rows` rows and `cols` columns
// stored row-major. out must have length >= rows.
func MatVec(m []fixedpoint.Fixed, rows, cols int, v []fixedpoint.Fixed, out []fixedpoint.Fixed) {
	for r := 0; r < rows; r++ {
		row := m[r*cols : (r+1)*cols]
		out[r] = Dot(row, v)
	}
}

// RMSNorm delegates to fixedpoint.RMSNorm; kept here so callers reach all
// dispatched neural ops through one package, alongside dot/vadd/vmul/matvec.
func RMSNorm(x, weight, out []fixedpoint.Fixed) { fixedpoint.RMSNorm(x, weight, out) }

// Softmax delegates to fixedpoint.Softmax for the same reason as RMSNorm.
func Softmax(x, out []fixedpoint.Fixed) { fixedpoint.Softmax(x, out) }
