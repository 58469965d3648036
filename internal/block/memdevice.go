package block

import "github.com/embodios/kernel/internal/errs"

// MemDevice is an in-memory Device, used by the GGUF loader's tests and by
// host tooling (cmd/ggufinspect) when no real NVMe controller is attached.
type MemDevice struct {
	data []byte
}

// NewMemDevice wraps data as a read/write block device; len(data) must be a
// multiple of SectorSize.
func NewMemDevice(data []byte) *MemDevice {
	return &MemDevice{data: data}
}

func (d *MemDevice) ReadSectors(lba, nsectors uint64, dst []byte) error {
	start := lba * SectorSize
	n := nsectors * SectorSize
	if start+n > uint64(len(d.data)) {
		return errs.New("block.MemDevice.ReadSectors", errs.Bounds, "read [%d,%d) exceeds capacity %d", start, start+n, len(d.data))
	}
	if uint64(len(dst)) != n {
		return errs.New("block.MemDevice.ReadSectors", errs.Invalid, "dst is %d bytes, want %d", len(dst), n)
	}
	copy(dst, d.data[start:start+n])
	return nil
}

func (d *MemDevice) WriteSectors(lba, nsectors uint64, src []byte) error {
	start := lba * SectorSize
	n := nsectors * SectorSize
	if start+n > uint64(len(d.data)) {
		return errs.New("block.MemDevice.WriteSectors", errs.Bounds, "write [%d,%d) exceeds capacity %d", start, start+n, len(d.data))
	}
	if uint64(len(src)) != n {
		return errs.New("block.MemDevice.WriteSectors", errs.Invalid, "src is %d bytes, want %d", len(src), n)
	}
	copy(d.data[start:start+n], src)
	return nil
}

func (d *MemDevice) Capacity() uint64 { return uint64(len(d.data)) }
