package quant

import "github.com/embodios/kernel/internal/fixedpoint"

// Dequantize dispatches to the format-specific dequantizer, materializing
// out as Q16.16 weights
func Dequantize(f Format, data []byte, out []fixedpoint.Fixed) {
	switch f {
	case FormatQ4K:
		DequantizeQ4K(data, out)
	case FormatQ5K:
		DequantizeQ5K(data, out)
	case FormatQ6K:
		DequantizeQ6K(data, out)
	case FormatQ8_0:
		DequantizeQ8_0(data, out)
	}
}

// MatMul dispatches to the format-specific direct matmul: y[r] =
// sum_c W[r,c]*x[c], computed directly on packed weights without a
// dequantize pass
func MatMul(f Format, w []byte, cols int, x []fixedpoint.Fixed, y []fixedpoint.Fixed, rows int) {
	switch f {
	case FormatQ4K:
		MatMulQ4K(w, cols, x, y, rows)
	case FormatQ5K:
		MatMulQ5K(w, cols, x, y, rows)
	case FormatQ6K:
		MatMulQ6K(w, cols, x, y, rows)
	case FormatQ8_0:
		MatMulQ8_0(w, cols, x, y, rows)
	}
}

// DotDequantized computes dot(dequantize(row), x) for one row's worth of
// blocks: the reference path MatMul's direct computation must agree with.
func DotDequantized(f Format, rowBlocks []byte, x []fixedpoint.Fixed) fixedpoint.Fixed {
	n := ValuesPerBlock(f) * (len(rowBlocks) / BlockBytes(f))
	buf := make([]fixedpoint.Fixed, n)
	Dequantize(f, rowBlocks, buf)
	var acc int64
	for i := 0; i < n && i < len(x); i++ {
		acc += (int64(buf[i]) * int64(x[i])) >> 16
	}
	return fixedpoint.Fixed(acc)
}
