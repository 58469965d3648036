package dma

import "github.com/embodios/kernel/internal/errs"

// Entry is one scatter-gather list element: a virtual range
// plus the DMA address it translates to once mapped.
type Entry struct {
	Data    []byte
	DMAAddr uintptr
}

// SGList is a bounded scatter-gather list Entries may only be
// added while the list is unmapped; map/unmap are paired, guard-style
// operations "scoped resources" guidance.
type SGList struct {
	entries []Entry
	mapped  bool
	dir     Direction
	sync    SyncStats
}

// NewSGList constructs an empty scatter-gather list with room for at most
// capacity entries.
func NewSGList(capacity int) *SGList {
	return &SGList{entries: make([]Entry, 0, capacity)}
}

// Add appends a range to the list. Rejected once the list is mapped, per
// the "add-after-map is rejected".
func (l *SGList) Add(data []byte) error {
	if l.mapped {
		return errs.New("dma.SGList.Add", errs.Invalid, "cannot add entries to a mapped list")
	}
	if len(l.entries) == cap(l.entries) {
		return errs.New("dma.SGList.Add", errs.Full, "scatter-gather list full (capacity %d)", cap(l.entries))
	}
	l.entries = append(l.entries, Entry{Data: data})
	return nil
}

// Map translates every entry's DMA address (identity mapping) and syncs
// each for the device under dir. A failure partway rolls back the DMA
// addresses already assigned.
func (l *SGList) Map(dir Direction) error {
	if l.mapped {
		return errs.New("dma.SGList.Map", errs.Invalid, "list already mapped")
	}
	for i := range l.entries {
		e := &l.entries[i]
		addr := addrOf(e.Data)
		if addr == 0 && len(e.Data) != 0 {
			for j := 0; j < i; j++ {
				l.entries[j].DMAAddr = 0
			}
			return errs.New("dma.SGList.Map", errs.Invalid, "entry %d has no backing address", i)
		}
		e.DMAAddr = addr
		l.sync.SyncBeforeDevice(dir, e.Data)
	}
	l.mapped = true
	l.dir = dir
	return nil
}

// Unmap syncs every entry for the CPU under the direction it was mapped
// with, clears DMA addresses, and allows further Add calls.
func (l *SGList) Unmap() error {
	if !l.mapped {
		return errs.New("dma.SGList.Unmap", errs.Invalid, "list is not mapped")
	}
	for i := range l.entries {
		e := &l.entries[i]
		l.sync.SyncAfterDevice(l.dir, e.Data)
		e.DMAAddr = 0
	}
	l.mapped = false
	return nil
}

// Entries returns the list's current entries (read-only use expected).
func (l *SGList) Entries() []Entry { return l.entries }

// Mapped reports whether the list is currently mapped.
func (l *SGList) Mapped() bool { return l.mapped }

// Stats exposes the cache-sync call counts recorded during Map/Unmap.
func (l *SGList) Stats() SyncStats { return l.sync }
