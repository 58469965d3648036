package gguf

import (
	"github.com/embodios/kernel/internal/config"
	"github.com/embodios/kernel/internal/errs"
)

// Parse decodes a complete in-memory GGUF buffer: header, KV metadata, and
// tensor directory It never reads past data's bounds; any
// truncation, including of a byte-for-byte valid prefix, returns a DECODE
// error (property 7).
func Parse(data []byte) (*File, error) {
	r := newReader(data)

	magic, err := r.u32()
	if err != nil {
		return nil, errs.Wrap("gguf.Parse", errs.Decode, err, "reading magic")
	}
	if len(data) >= 4 && data[0] == legacyMagic[0] && data[1] == legacyMagic[1] && data[2] == legacyMagic[2] && data[3] == legacyMagic[3] {
		return nil, errs.New("gguf.Parse", errs.Decode, "legacy GGML magic is not a GGUF file")
	}
	if magic != Magic {
		return nil, errs.New("gguf.Parse", errs.Decode, "bad magic %08x, want %08x", magic, uint32(Magic))
	}

	version, err := r.u32()
	if err != nil {
		return nil, errs.Wrap("gguf.Parse", errs.Decode, err, "reading version")
	}
	if version < 1 || version > 3 {
		return nil, errs.New("gguf.Parse", errs.Decode, "unsupported version %d", version)
	}

	nTensors, err := r.count(version)
	if err != nil {
		return nil, errs.Wrap("gguf.Parse", errs.Decode, err, "reading tensor count")
	}
	if nTensors > config.GGUFMaxTensors {
		return nil, errs.New("gguf.Parse", errs.Decode, "tensor count %d exceeds cap %d", nTensors, config.GGUFMaxTensors)
	}
	nKVs, err := r.count(version)
	if err != nil {
		return nil, errs.Wrap("gguf.Parse", errs.Decode, err, "reading KV count")
	}
	if nKVs > config.GGUFMaxKVs {
		return nil, errs.New("gguf.Parse", errs.Decode, "KV count %d exceeds cap %d", nKVs, config.GGUFMaxKVs)
	}

	f := &File{
		Header:     Header{Version: version, NTensors: nTensors, NKVs: nKVs},
		TypeCounts: make(map[uint32]int),
	}

	for i := uint64(0); i < nKVs; i++ {
		kv, err := readKV(r, version)
		if err != nil {
			return nil, errs.Wrap("gguf.Parse", errs.Decode, err, "reading KV %d", i)
		}
		f.KVs = append(f.KVs, kv)
	}

	for i := uint64(0); i < nTensors; i++ {
		ti, err := readTensorInfo(r, version)
		if err != nil {
			return nil, errs.Wrap("gguf.Parse", errs.Decode, err, "reading tensor %d", i)
		}
		f.TypeCounts[ti.Type]++
		if uint64(len(f.Tensors)) < config.GGUFMaxStoredTensors {
			f.Tensors = append(f.Tensors, ti)
		}
	}

	alignment := uint64(alignmentOf(f.KVs))
	f.TensorDataStart = alignUp(uint64(r.pos), alignment)

	return f, nil
}

func readKV(r *reader, version uint32) (KV, error) {
	key, err := r.str()
	if err != nil {
		return KV{}, err
	}
	typ, err := r.u32()
	if err != nil {
		return KV{}, err
	}
	val, err := readValue(r, ValueType(typ), version)
	if err != nil {
		return KV{}, err
	}
	return KV{Key: key, Type: ValueType(typ), Value: val}, nil
}

func readValue(r *reader, typ ValueType, version uint32) (any, error) {
	switch typ {
	case TypeUint8:
		return r.u8()
	case TypeInt8:
		v, err := r.u8()
		return int8(v), err
	case TypeUint16:
		return r.u16()
	case TypeInt16:
		v, err := r.u16()
		return int16(v), err
	case TypeUint32:
		return r.u32()
	case TypeInt32:
		v, err := r.u32()
		return int32(v), err
	case TypeFloat32:
		return r.f32()
	case TypeBool:
		return r.bool8()
	case TypeString:
		return r.str()
	case TypeUint64:
		return r.u64()
	case TypeInt64:
		v, err := r.u64()
		return int64(v), err
	case TypeFloat64:
		return r.f64()
	case TypeArray:
		innerType, err := r.u32()
		if err != nil {
			return nil, err
		}
		n, err := r.count(version)
		if err != nil {
			return nil, err
		}
		if n > config.GGUFMaxArrayElements {
			return nil, errs.New("gguf.readValue", errs.Decode, "array length %d exceeds cap %d", n, config.GGUFMaxArrayElements)
		}
		out := make([]any, n)
		for i := range out {
			v, err := readValue(r, ValueType(innerType), version)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	default:
		return nil, errs.New("gguf.readValue", errs.Decode, "unknown value type tag %d", typ)
	}
}

func readTensorInfo(r *reader, version uint32) (TensorInfo, error) {
	name, err := r.str()
	if err != nil {
		return TensorInfo{}, err
	}
	nDims, err := r.u32()
	if err != nil {
		return TensorInfo{}, err
	}
	if nDims > 4 {
		return TensorInfo{}, errs.New("gguf.readTensorInfo", errs.Decode, "n_dims %d exceeds 4", nDims)
	}
	dims := make([]uint64, nDims)
	for i := range dims {
		d, err := r.u64()
		if err != nil {
			return TensorInfo{}, err
		}
		dims[i] = d
	}
	typ, err := r.u32()
	if err != nil {
		return TensorInfo{}, err
	}
	offset, err := r.u64()
	if err != nil {
		return TensorInfo{}, err
	}
	return TensorInfo{Name: name, Dims: dims, Type: typ, Offset: offset}, nil
}

// alignmentOf extracts general.alignment from kvs, defaulting to
// config.DefaultAlignment and clamping to config.AlignmentMax
func alignmentOf(kvs []KV) uint32 {
	for _, kv := range kvs {
		if kv.Key == "general.alignment" {
			if v, ok := asUint(kv.Value); ok {
				a := uint32(v)
				if a == 0 || a&(a-1) != 0 {
					break
				}
				if a > config.AlignmentMax {
					a = config.AlignmentMax
				}
				return a
			}
		}
	}
	return config.DefaultAlignment
}

func alignUp(v, align uint64) uint64 {
	if align == 0 {
		return v
	}
	return (v + align - 1) / align * align
}

func asUint(v any) (uint64, bool) {
	switch x := v.(type) {
	case uint8:
		return uint64(x), true
	case uint16:
		return uint64(x), true
	case uint32:
		return uint64(x), true
	case uint64:
		return x, true
	case int8:
		return uint64(x), true
	case int16:
		return uint64(x), true
	case int32:
		return uint64(x), true
	case int64:
		return uint64(x), true
	default:
		return 0, false
	}
}
