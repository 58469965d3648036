package quant

import "github.com/embodios/kernel/internal/fixedpoint"

// DequantizeQ6K converts packed Q6_K super-blocks into Q16.16 weights.
// Each 210-byte super-block holds a 128-byte low-4-bit plane
// (ql), a 64-byte high-2-bit plane (qh), 16 signed per-sub-block scales,
// and a trailing Q8.8 super-block scale d. 16 sub-blocks of 16 values;
// values are centered at 32 to become signed.
//
// The sub-block scale is applied as a plain int8 multiply against the
// Q16.16-lifted super-block scale d (scaleByInt, whose Fixed result is
// already Q16.16, so no separate >>16 follows), and the constant /32
// implied by the signed-sub-scale range is applied once, as a single >>5
// on each scaled value.
func DequantizeQ6K(data []byte, out []fixedpoint.Fixed) {
	nblocks := len(data) / BlockBytesQ6K
	for b := 0; b < nblocks; b++ {
		blk := data[b*BlockBytesQ6K : (b+1)*BlockBytesQ6K]
		ql := blk[0:128]
		qh := blk[128:192]
		sc := blk[192:208]
		d := readQ8_8(blk[208:210])

		outOff := b * ValuesPerBlockK
		for j := 0; j < 16; j++ {
			scaleVal := scaleByInt(d, int32(int8(sc[j])))
			baseOut := outOff + j*16

			half := j / 8
			group := (j % 8) / 2
			lBase := (j % 2) * 16
			qlOff := half*64 + (group&1)*32
			qhOff := half * 32
			nibbleShift := uint((group / 2) * 4)
			qhShift := uint(group * 2)

			for i := 0; i < 16; i++ {
				l := lBase + i
				low4 := int32((ql[qlOff+l] >> nibbleShift) & 0xF)
				high2 := int32((qh[qhOff+l] >> qhShift) & 3)
				q := (low4 | (high2 << 4)) - 32
				out[baseOut+i] = scaleByInt(scaleVal, q) >> 5
			}
		}
	}
}

// MatMulQ6K computes y = W*x directly on packed Q6_K rows
func MatMulQ6K(w []byte, cols int, x []fixedpoint.Fixed, y []fixedpoint.Fixed, rows int) {
	rowBlocks := BlocksPerRow(FormatQ6K, cols)
	rowBytes := rowBlocks * BlockBytesQ6K
	tmp := make([]fixedpoint.Fixed, ValuesPerBlockK)
	for r := 0; r < rows; r++ {
		row := w[r*rowBytes : (r+1)*rowBytes]
		var acc int64
		for b := 0; b < rowBlocks; b++ {
			blk := row[b*BlockBytesQ6K : (b+1)*BlockBytesQ6K]
			DequantizeQ6K(blk, tmp)
			xOff := b * ValuesPerBlockK
			for i := 0; i < ValuesPerBlockK && xOff+i < len(x); i++ {
				acc += (int64(tmp[i]) * int64(x[xOff+i])) >> 16
			}
		}
		y[r] = fixedpoint.Fixed(acc)
	}
}
