package quant

// scaleMinK4 unpacks the 12-byte 6-bit packed (scale, min) pairs shared by
// Q4_K and Q5_K super-blocks into 8 sub-block scale/min integers in
// [0,63], following the same bit layout as llama.cpp's get_scale_min_k4
// (and the reference BaseDequantizeQ4K comment referencing it).
func scaleMinK4(scales []byte) (sc, mn [8]byte) {
	for j := 0; j < 4; j++ {
		sc[j] = scales[j] & 63
		mn[j] = scales[j+4] & 63
	}
	for j := 4; j < 8; j++ {
		sc[j] = (scales[j+4] & 0xF) | ((scales[j-4] >> 6) << 4)
		mn[j] = (scales[j+4] >> 4) | ((scales[j] >> 6) << 4)
	}
	return sc, mn
}
