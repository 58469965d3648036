package gguf

import (
	"encoding/binary"
	"math"

	"github.com/embodios/kernel/internal/config"
	"github.com/embodios/kernel/internal/errs"
)

// reader is a bounded, strictly-forward cursor over a GGUF buffer. Every
// safe_read_* method rejects reads that would run past the end of data
// rather than ever slicing out of bounds, so a truncated prefix always
// decodes to an explicit error instead of reading past the buffer.
type reader struct {
	data []byte
	pos  int
}

func newReader(data []byte) *reader { return &reader{data: data} }

func (r *reader) require(n int) error {
	if n < 0 || r.pos+n > len(r.data) {
		return errs.New("gguf.reader", errs.Decode, "truncated: need %d bytes at offset %d, have %d", n, r.pos, len(r.data))
	}
	return nil
}

func (r *reader) u8() (uint8, error) {
	if err := r.require(1); err != nil {
		return 0, err
	}
	v := r.data[r.pos]
	r.pos++
	return v, nil
}

func (r *reader) bool8() (bool, error) {
	v, err := r.u8()
	return v != 0, err
}

func (r *reader) u16() (uint16, error) {
	if err := r.require(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(r.data[r.pos:])
	r.pos += 2
	return v, nil
}

func (r *reader) u32() (uint32, error) {
	if err := r.require(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.data[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *reader) u64() (uint64, error) {
	if err := r.require(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(r.data[r.pos:])
	r.pos += 8
	return v, nil
}

func (r *reader) f32() (float32, error) {
	v, err := r.u32()
	return math.Float32frombits(v), err
}

func (r *reader) f64() (float64, error) {
	v, err := r.u64()
	return math.Float64frombits(v), err
}

// str reads a u64 length followed by raw bytes (not NUL-terminated),
// bounded by config.GGUFMaxStringBytes to reject an absurd length before
// ever allocating for it.
func (r *reader) str() (string, error) {
	n, err := r.u64()
	if err != nil {
		return "", err
	}
	if n > config.GGUFMaxStringBytes {
		return "", errs.New("gguf.reader.str", errs.Decode, "string length %d exceeds cap %d", n, config.GGUFMaxStringBytes)
	}
	if err := r.require(int(n)); err != nil {
		return "", err
	}
	s := string(r.data[r.pos : r.pos+int(n)])
	r.pos += int(n)
	return s, nil
}

// count reads an element count in the width the file version uses:
// u32 for versions 1-2, u64 for version 3+
func (r *reader) count(version uint32) (uint64, error) {
	if version >= 3 {
		return r.u64()
	}
	v, err := r.u32()
	return uint64(v), err
}
