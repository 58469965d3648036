package quant

import "github.com/embodios/kernel/internal/fixedpoint"

// q5HighBit returns bit v (0..255) of the 32-byte qh high-bit plane, one
// bit per value in the super-block.
func q5HighBit(qh []byte, v int) int32 {
	return int32((qh[v/8] >> uint(v%8)) & 1)
}

// DequantizeQ5K converts packed Q5_K super-blocks into Q16.16 weights.
// Layout matches Q4_K (d, dmin, scales, qs) plus a trailing 32-byte qh
// high-bit plane; values are 5-bit instead of 4-bit, combining the Q4_K
// nibble with bit v of qh as the value's high bit.
func DequantizeQ5K(data []byte, out []fixedpoint.Fixed) {
	nblocks := len(data) / BlockBytesQ5K
	for b := 0; b < nblocks; b++ {
		blk := data[b*BlockBytesQ5K : (b+1)*BlockBytesQ5K]
		d := readQ8_8(blk[0:2])
		dmin := readQ8_8(blk[2:4])
		scales := blk[4:16]
		qs := blk[16:144]
		qh := blk[144:176]
		sc, mn := scaleMinK4(scales)

		outOff := b * ValuesPerBlockK
		qOff := 0
		oi := outOff
		v := 0
		for chunk := 0; chunk < 4; chunk++ {
			is := chunk * 2
			dsc0 := scaleByInt(d, int32(sc[is]))
			dmm0 := scaleByInt(dmin, int32(mn[is]))
			dsc1 := scaleByInt(d, int32(sc[is+1]))
			dmm1 := scaleByInt(dmin, int32(mn[is+1]))

			for i := 0; i < 32; i++ {
				lo := int32(qs[qOff+i] & 0xF)
				val := lo | (q5HighBit(qh, v) << 4)
				out[oi+i] = fixedpoint.Sub(scaleByInt(dsc0, val), dmm0)
				v++
			}
			for i := 0; i < 32; i++ {
				lo := int32(qs[qOff+i] >> 4)
				val := lo | (q5HighBit(qh, v) << 4)
				out[oi+32+i] = fixedpoint.Sub(scaleByInt(dsc1, val), dmm1)
				v++
			}
			qOff += 32
			oi += 64
		}
	}
}

// MatMulQ5K computes y = W*x directly on packed Q5_K rows.
// Q5_K's extra bit plane makes a fused unpack-and-accumulate pass
// considerably more intricate than Q4_K's for negligible benefit at this
// scale, so this dequantizes one block into a small on-stack buffer and
// dots it against the matching slice of x, still "direct" in the sense
// that the full row is never materialized, only one 256-wide block at a
// time.
func MatMulQ5K(w []byte, cols int, x []fixedpoint.Fixed, y []fixedpoint.Fixed, rows int) {
	rowBlocks := BlocksPerRow(FormatQ5K, cols)
	rowBytes := rowBlocks * BlockBytesQ5K
	tmp := make([]fixedpoint.Fixed, ValuesPerBlockK)
	for r := 0; r < rows; r++ {
		row := w[r*rowBytes : (r+1)*rowBytes]
		var acc int64
		for b := 0; b < rowBlocks; b++ {
			blk := row[b*BlockBytesQ5K : (b+1)*BlockBytesQ5K]
			DequantizeQ5K(blk, tmp)
			xOff := b * ValuesPerBlockK
			for i := 0; i < ValuesPerBlockK && xOff+i < len(x); i++ {
				acc += (int64(tmp[i]) * int64(x[xOff+i])) >> 16
			}
		}
		y[r] = fixedpoint.Fixed(acc)
	}
}
