package quant

import "github.com/embodios/kernel/internal/fixedpoint"

// DequantizeQ8_0 converts packed Q8_0 blocks into Q16.16 weights: each
// 34-byte block holds a Q8.8 scale plus 32 signed int8 quants,
// output[i] = d * qs[i].
func DequantizeQ8_0(data []byte, out []fixedpoint.Fixed) {
	nblocks := len(data) / BlockBytesQ8
	for b := 0; b < nblocks; b++ {
		blk := data[b*BlockBytesQ8 : (b+1)*BlockBytesQ8]
		d := readQ8_8(blk[0:2])
		qs := blk[2:34]
		outOff := b * ValuesPerBlockQ8
		for i := 0; i < ValuesPerBlockQ8; i++ {
			out[outOff+i] = scaleByInt(d, int32(int8(qs[i])))
		}
	}
}

// MatMulQ8_0 computes y = W*x directly on packed Q8_0 rows, accumulating
// each block's contribution in i64 before applying the block scale.
func MatMulQ8_0(w []byte, cols int, x []fixedpoint.Fixed, y []fixedpoint.Fixed, rows int) {
	rowBlocks := BlocksPerRow(FormatQ8_0, cols)
	rowBytes := rowBlocks * BlockBytesQ8
	for r := 0; r < rows; r++ {
		row := w[r*rowBytes : (r+1)*rowBytes]
		var acc int64
		for b := 0; b < rowBlocks; b++ {
			blk := row[b*BlockBytesQ8 : (b+1)*BlockBytesQ8]
			d := readQ8_8(blk[0:2])
			qs := blk[2:34]
			xOff := b * ValuesPerBlockQ8

			var blockAcc int64
			for i := 0; i < ValuesPerBlockQ8 && xOff+i < len(x); i++ {
				blockAcc += int64(int8(qs[i])) * int64(x[xOff+i])
			}
			// blockAcc is sum(q_i * x_i) with q_i a plain integer and x_i
			// already Q16.16; apply the block's Q16.16 scale with the
			// standard fixed multiply (>>16).
			acc += (int64(d) * blockAcc) >> 16
		}
		y[r] = fixedpoint.Fixed(acc)
	}
}
