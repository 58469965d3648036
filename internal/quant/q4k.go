package quant

import "github.com/embodios/kernel/internal/fixedpoint"

// DequantizeQ4K converts packed Q4_K blocks into Q16.16 weights. Each
// 144-byte super-block holds d, dmin (Q8.8), 12 bytes of
// packed 6-bit sub-scales/mins, and 128 bytes of nibble-packed quants
// covering 256 weights in 8 sub-blocks of 32.
func DequantizeQ4K(data []byte, out []fixedpoint.Fixed) {
	nblocks := len(data) / BlockBytesQ4K
	for b := 0; b < nblocks; b++ {
		blk := data[b*BlockBytesQ4K : (b+1)*BlockBytesQ4K]
		d := readQ8_8(blk[0:2])
		dmin := readQ8_8(blk[2:4])
		scales := blk[4:16]
		qs := blk[16:144]
		sc, mn := scaleMinK4(scales)

		outOff := b * ValuesPerBlockK
		qOff := 0
		oi := outOff
		for chunk := 0; chunk < 4; chunk++ {
			is := chunk * 2
			dsc0 := scaleByInt(d, int32(sc[is]))
			dmm0 := scaleByInt(dmin, int32(mn[is]))
			dsc1 := scaleByInt(d, int32(sc[is+1]))
			dmm1 := scaleByInt(dmin, int32(mn[is+1]))

			for i := 0; i < 32; i++ {
				out[oi+i] = fixedpoint.Sub(scaleByInt(dsc0, int32(qs[qOff+i]&0xF)), dmm0)
			}
			for i := 0; i < 32; i++ {
				out[oi+32+i] = fixedpoint.Sub(scaleByInt(dsc1, int32(qs[qOff+i]>>4)), dmm1)
			}
			qOff += 32
			oi += 64
		}
	}
}

// MatMulQ4K computes y[r] = sum_c W[r,c] * x[c] directly on packed Q4_K
// weight rows, without a dequantize pass W holds `rows`
// rows of `cols` columns, each row BlocksPerRow(Q4K,cols) blocks.
func MatMulQ4K(w []byte, cols int, x []fixedpoint.Fixed, y []fixedpoint.Fixed, rows int) {
	rowBlocks := BlocksPerRow(FormatQ4K, cols)
	rowBytes := rowBlocks * BlockBytesQ4K
	for r := 0; r < rows; r++ {
		row := w[r*rowBytes : (r+1)*rowBytes]
		var acc int64
		for b := 0; b < rowBlocks; b++ {
			blk := row[b*BlockBytesQ4K : (b+1)*BlockBytesQ4K]
			d := readQ8_8(blk[0:2])
			dmin := readQ8_8(blk[2:4])
			scales := blk[4:16]
			qs := blk[16:144]
			sc, mn := scaleMinK4(scales)

			xOff := b * ValuesPerBlockK
			qOff := 0
			xi := xOff
			for chunk := 0; chunk < 4; chunk++ {
				is := chunk * 2
				dsc0 := scaleByInt(d, int32(sc[is]))
				dmm0 := scaleByInt(dmin, int32(mn[is]))
				dsc1 := scaleByInt(d, int32(sc[is+1]))
				dmm1 := scaleByInt(dmin, int32(mn[is+1]))

				for i := 0; i < 32 && xi+i < len(x); i++ {
					wv := fixedpoint.Sub(scaleByInt(dsc0, int32(qs[qOff+i]&0xF)), dmm0)
					acc += (int64(wv) * int64(x[xi+i])) >> 16
				}
				for i := 0; i < 32 && xi+32+i < len(x); i++ {
					wv := fixedpoint.Sub(scaleByInt(dsc1, int32(qs[qOff+i]>>4)), dmm1)
					acc += (int64(wv) * int64(x[xi+32+i])) >> 16
				}
				qOff += 32
				xi += 64
			}
		}
		y[r] = fixedpoint.Fixed(acc)
	}
}
