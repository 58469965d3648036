package quant

import (
	"testing"

	"github.com/embodios/kernel/internal/fixedpoint"
)

// buildQ4KMatrix constructs an 8-block-per-row Q4_K matrix using the
// literal construction from scenario S1: d[b] = 256 + 17*b,
// sub-scales[i] = (b+i)*3 mod 256, qs[i] = (7*b+i) mod 256.
func buildQ4KMatrix(rows, blocksPerRow int) []byte {
	rowBytes := blocksPerRow * BlockBytesQ4K
	data := make([]byte, rows*rowBytes)
	for r := 0; r < rows; r++ {
		for b := 0; b < blocksPerRow; b++ {
			off := r*rowBytes + b*BlockBytesQ4K
			blk := data[off : off+BlockBytesQ4K]
			d := uint16(256 + 17*b)
			blk[0] = byte(d)
			blk[1] = byte(d >> 8)
			dmin := uint16(64)
			blk[2] = byte(dmin)
			blk[3] = byte(dmin >> 8)
			for i := 0; i < 12; i++ {
				blk[4+i] = byte((b + i) * 3 % 256)
			}
			for i := 0; i < 128; i++ {
				blk[16+i] = byte((7*b + i) % 256)
			}
		}
	}
	return data
}

func buildX(n int) []fixedpoint.Fixed {
	x := make([]fixedpoint.Fixed, n)
	for i := range x {
		x[i] = fixedpoint.Fixed(int32((256 * i) % 65536))
	}
	return x
}

// TestQ4KAgreement implements scenario S1: direct matmul must agree
// with dequantize-then-dot on >=95% of rows within 256 Q16.16 ULPs.
func TestQ4KAgreement(t *testing.T) {
	const rows = 20
	const blocksPerRow = 8
	cols := blocksPerRow * ValuesPerBlockK
	w := buildQ4KMatrix(rows, blocksPerRow)
	x := buildX(cols)

	y := make([]fixedpoint.Fixed, rows)
	MatMulQ4K(w, cols, x, y, rows)

	rowBytes := blocksPerRow * BlockBytesQ4K
	agree := 0
	for r := 0; r < rows; r++ {
		rowData := w[r*rowBytes : (r+1)*rowBytes]
		want := DotDequantized(FormatQ4K, rowData, x)
		diff := int64(y[r]) - int64(want)
		if diff < 0 {
			diff = -diff
		}
		if diff <= 256 {
			agree++
		}
	}
	if float64(agree)/float64(rows) < 0.95 {
		t.Errorf("agreement %d/%d rows, want >=95%%", agree, rows)
	}
}

func TestQ8_0Agreement(t *testing.T) {
	const rows = 10
	const blocksPerRow = 4
	cols := blocksPerRow * ValuesPerBlockQ8
	rowBytes := blocksPerRow * BlockBytesQ8
	w := make([]byte, rows*rowBytes)
	for r := 0; r < rows; r++ {
		for b := 0; b < blocksPerRow; b++ {
			off := r*rowBytes + b*BlockBytesQ8
			blk := w[off : off+BlockBytesQ8]
			d := uint16(300 + 11*b + 7*r)
			blk[0] = byte(d)
			blk[1] = byte(d >> 8)
			for i := 0; i < 32; i++ {
				blk[2+i] = byte((i*3 + b + r) % 256)
			}
		}
	}
	x := buildX(cols)
	y := make([]fixedpoint.Fixed, rows)
	MatMulQ8_0(w, cols, x, y, rows)

	agree := 0
	for r := 0; r < rows; r++ {
		rowData := w[r*rowBytes : (r+1)*rowBytes]
		want := DotDequantized(FormatQ8_0, rowData, x)
		diff := int64(y[r]) - int64(want)
		if diff < 0 {
			diff = -diff
		}
		if diff <= 256 {
			agree++
		}
	}
	if float64(agree)/float64(rows) < 0.95 {
		t.Errorf("agreement %d/%d rows, want >=95%%", agree, rows)
	}
}

func TestQ6KCenteredAtThirtyTwo(t *testing.T) {
	data := make([]byte, BlockBytesQ6K)
	// q = 32 everywhere (low4=0, high2=2 -> (0|32)-32=0), scale=1, d=1.0.
	for i := 128; i < 192; i++ {
		data[i] = 0b10101010 // high2 bits = 2 for every 2-bit group
	}
	for i := 192; i < 208; i++ {
		data[i] = 1
	}
	dOne := uint16(1 << 8) // Q8.8 for 1.0
	data[208] = byte(dOne)
	data[209] = byte(dOne >> 8)

	out := make([]fixedpoint.Fixed, ValuesPerBlockK)
	DequantizeQ6K(data, out)
	for i, v := range out {
		if v != 0 {
			t.Fatalf("out[%d] = %v, want 0 (centered value should cancel)", i, v.ToFloat())
			break
		}
	}
}

func TestBlocksPerRow(t *testing.T) {
	if got := BlocksPerRow(FormatQ8_0, 100); got != 4 {
		t.Errorf("BlocksPerRow(Q8_0,100) = %d, want 4", got)
	}
	if got := BlocksPerRow(FormatQ4K, 256); got != 1 {
		t.Errorf("BlocksPerRow(Q4K,256) = %d, want 1", got)
	}
	if got := BlocksPerRow(FormatQ4K, 257); got != 2 {
		t.Errorf("BlocksPerRow(Q4K,257) = %d, want 2", got)
	}
}
