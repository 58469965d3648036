// Package block implements the generic block-device interface shared by
// the GGUF loader and the NVMe driver: sector size 512,
// block_read(dev, lba, nsectors, dst), block_capacity(dev). Per-driver
// register maps are out of scope; this package is the narrow surface the
// core consumes, backed in this repo by the NVMe driver (internal/nvme) or,
// for tests and host tooling, a plain in-memory device.
package block

import "github.com/embodios/kernel/internal/config"

// Device is anything that can be read sector-granular and report its total
// capacity; internal/nvme.Controller implements it.
type Device interface {
	// ReadSectors reads nsectors sectors starting at lba into dst, which
	// must be exactly nsectors*SectorSize bytes.
	ReadSectors(lba, nsectors uint64, dst []byte) error
	// WriteSectors writes nsectors sectors starting at lba from src, which
	// must be exactly nsectors*SectorSize bytes.
	WriteSectors(lba, nsectors uint64, src []byte) error
	// Capacity returns the device's total size in bytes.
	Capacity() uint64
}

// SectorSize is the block-device sector size
const SectorSize = config.SectorSize
