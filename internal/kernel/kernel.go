// Package kernel wires every subsystem into a single Kernel value,
// following the "global singletons -> a single Kernel value" rewrite
// guidance: the PMM, heap, DMA table, KV cache, and GGUF-loaded model
// that the original kernel holds as process-wide globals are fields here
// instead, with no ambient package-level state. New sets up the PMM and
// heap; Boot then runs DMA.init -> GGUF.load_from_block -> architecture
// extraction -> KV cache allocation -> inference.init over a
// caller-supplied block device. Boot does not probe an NVMe controller
// and does not materialize tensor weights into the model.
package kernel

import (
	"github.com/embodios/kernel/internal/block"
	"github.com/embodios/kernel/internal/config"
	"github.com/embodios/kernel/internal/dma"
	"github.com/embodios/kernel/internal/errs"
	"github.com/embodios/kernel/internal/gguf"
	"github.com/embodios/kernel/internal/heap"
	"github.com/embodios/kernel/internal/kvcache"
	"github.com/embodios/kernel/internal/pmm"
	"github.com/embodios/kernel/internal/transformer"
)

// Kernel owns every subsystem. No field here is ever reached through a
// package-level variable; a caller threads *Kernel explicitly.
type Kernel struct {
	PMM      *pmm.PMM
	Heap     *heap.Heap
	DMA      *dma.Table
	Device   block.Device
	GGUFFile *gguf.File
	Arch     *gguf.Architecture
	Cache    *kvcache.Cache
	Model    *transformer.Model

	booted bool
}

// New constructs a Kernel over a PMM region of the given page count. The
// subsystems above the PMM are brought up by Boot.
func New(totalPages int) (*Kernel, error) {
	p, err := pmm.New(totalPages)
	if err != nil {
		return nil, errs.Wrap("kernel.New", errs.NoMem, err, "constructing PMM over %d pages", totalPages)
	}
	return &Kernel{PMM: p, Heap: heap.New(p)}, nil
}

// Boot runs the data-flow line against dev: DMA.init, GGUF load from
// the block device, architecture extraction, KV cache allocation sized
// from the loaded architecture, and transformer Model construction. It
// does not run inference; callers drive Forward/Sample themselves.
func (k *Kernel) Boot(dev block.Device, gguSize uint64, maxSeqLen int, dmaSlots int) error {
	if k.booted {
		return errs.New("kernel.Boot", errs.AlreadyInit, "kernel already booted")
	}
	k.Device = dev
	k.DMA = dma.New(k.Heap, dmaSlots)

	f, err := gguf.LoadFromBlockDevice(dev, k.Heap, gguSize)
	if err != nil {
		return errs.Wrap("kernel.Boot", errs.IO, err, "loading GGUF model")
	}
	k.GGUFFile = f

	arch, err := gguf.BuildArchitecture(f)
	if err != nil {
		return errs.Wrap("kernel.Boot", errs.Decode, err, "extracting model architecture")
	}
	k.Arch = arch

	headDim := int(arch.EmbeddingLength / arch.HeadCount)
	cache, err := kvcache.Create(k.Heap, kvcache.Config{
		NLayers:   int(arch.BlockCount),
		NKVHeads:  int(arch.HeadCountKV),
		HeadDim:   headDim,
		MaxSeqLen: maxSeqLen,
		Window:    maxSeqLen,
		Eviction:  kvcache.EvictSliding,
	})
	if err != nil {
		return errs.Wrap("kernel.Boot", errs.NoMem, err, "allocating KV cache")
	}
	k.Cache = cache

	m, err := transformer.New(transformer.Config{
		NVocab:    int(arch.VocabSize),
		NEmbd:     int(arch.EmbeddingLength),
		NLayer:    int(arch.BlockCount),
		NHeads:    int(arch.HeadCount),
		NKVHeads:  int(arch.HeadCountKV),
		NFF:       int(arch.FeedForwardLen),
		MaxSeqLen: maxSeqLen,
	})
	if err != nil {
		return errs.Wrap("kernel.Boot", errs.Invalid, err, "constructing transformer model")
	}
	m.SetRopeFreqBase(float64(arch.RopeFreqBase))
	if err := m.Init(cache); err != nil {
		return errs.Wrap("kernel.Boot", errs.Invalid, err, "initializing transformer model")
	}
	k.Model = m

	k.booted = true
	return nil
}

// Shutdown tears the KV cache down; PMM/heap allocations below it are left
// to the caller's own lifetime (a real boot never shuts down the PMM).
func (k *Kernel) Shutdown() error {
	if !k.booted {
		return errs.New("kernel.Shutdown", errs.NotInit, "kernel was never booted")
	}
	if k.Model != nil {
		k.Model.Cleanup()
	}
	if k.Cache != nil {
		if err := k.Cache.Destroy(); err != nil {
			return err
		}
	}
	k.booted = false
	return nil
}

// DefaultDMASlots is the slot-table capacity Boot uses when the caller has
// no specific requirement, sized generously for a handful of in-flight
// NVMe transfers.
const DefaultDMASlots = 8

var _ = config.PageSize // referenced by subsystems Boot wires together
