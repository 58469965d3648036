package gguf

import (
	"github.com/embodios/kernel/internal/block"
	"github.com/embodios/kernel/internal/config"
	"github.com/embodios/kernel/internal/errs"
	"github.com/embodios/kernel/internal/heap"
)

// LoadFromBlockDevice implements the block-device loading path:
// compute size from device capacity if size is 0, allocate a contiguous
// heap buffer, read in sector-aligned config.GGUFLoadChunk chunks, and
// parse in memory. A partial read aborts with a single rollback (the heap
// buffer is freed) so no allocation is ever leaked last
// sentence.
func LoadFromBlockDevice(dev block.Device, h *heap.Heap, size uint64) (*File, error) {
	if size == 0 {
		size = dev.Capacity()
	}
	if size == 0 || size%config.SectorSize != 0 {
		return nil, errs.New("gguf.LoadFromBlockDevice", errs.Invalid, "size %d is not a positive multiple of sector size %d", size, config.SectorSize)
	}

	blk, err := h.Alloc(int(size))
	if err != nil {
		return nil, errs.Wrap("gguf.LoadFromBlockDevice", errs.NoMem, err, "allocating %d-byte load buffer", size)
	}

	const chunk = config.GGUFLoadChunk
	var done uint64
	for done < size {
		n := size - done
		if n > chunk {
			n = chunk
		}
		lba := done / config.SectorSize
		nsectors := n / config.SectorSize
		if err := dev.ReadSectors(lba, nsectors, blk.Data[done:done+n]); err != nil {
			if ferr := h.Free(blk); ferr != nil {
				return nil, errs.Wrap("gguf.LoadFromBlockDevice", errs.IO, ferr, "rollback failed after read error: %v", err)
			}
			return nil, errs.Wrap("gguf.LoadFromBlockDevice", errs.IO, err, "reading chunk at offset %d", done)
		}
		done += n
	}

	f, err := Parse(blk.Data)
	if err != nil {
		if ferr := h.Free(blk); ferr != nil {
			return nil, errs.Wrap("gguf.LoadFromBlockDevice", errs.Decode, ferr, "rollback failed after parse error: %v", err)
		}
		return nil, err
	}
	return f, nil
}
