// Package nvme implements the NVMe controller state machine, submission and
// completion queues, and PRP list construction, exposed as a block.Device.
// Queues and doorbells are modeled as owned Go structs rather than
// memory-mapped registers; the submission/completion protocol (phase-bit
// flip on wrap, CID matching) is preserved exactly since that protocol, not
// the register layout, is what callers depend on.
package nvme

import "github.com/embodios/kernel/internal/errs"

// Opcode values for the admin and I/O command sets.
const (
	OpAdminCreateSQ = 0x01
	OpAdminCreateCQ = 0x05
	OpAdminIdentify = 0x06

	OpIOFlush = 0x00
	OpIOWrite = 0x01
	OpIORead  = 0x02
)

// SQEntry is a submission-queue entry. Prp2 is populated
// PRP setup rules.
type SQEntry struct {
	Opcode uint8
	CID    uint16
	NSID   uint32
	Prp1   uintptr
	Prp2   uintptr
	LBA    uint64
	NLB    uint32
}

// CQEntry is a completion-queue entry.
type CQEntry struct {
	CID    uint16
	Status uint16
	Phase  bool
}

// SQ is a submission queue: contiguous, page-aligned, power-of-two sized,
//
type SQ struct {
	entries []SQEntry
	tail    int
}

// NewSQ constructs a submission queue of the given power-of-two size.
func NewSQ(size int) (*SQ, error) {
	if size <= 0 || size&(size-1) != 0 {
		return nil, errs.New("nvme.NewSQ", errs.Invalid, "size %d is not a power of two", size)
	}
	return &SQ{entries: make([]SQEntry, size)}, nil
}

// Submit copies sqe into the tail slot and advances the tail mod size, per
// the command-submission steps 2-3. The caller rings the doorbell
// afterward (modeled by the Controller, which calls Submit then processes
// immediately in this single-submitter, polling-only design).
func (q *SQ) Submit(sqe SQEntry) {
	q.entries[q.tail] = sqe
	q.tail = (q.tail + 1) % len(q.entries)
}

// CQ is a completion queue: contiguous, page-aligned, power-of-two sized,
// tracking a phase bit that flips each time the ring wraps
type CQ struct {
	entries []CQEntry
	head    int
	phase   bool // expected phase for the next unconsumed entry
}

// NewCQ constructs a completion queue of the given power-of-two size; the
// expected phase starts true, matching the convention that freshly zeroed
// CQ memory (phase bit 0) is not yet a valid completion.
func NewCQ(size int) (*CQ, error) {
	if size <= 0 || size&(size-1) != 0 {
		return nil, errs.New("nvme.NewCQ", errs.Invalid, "size %d is not a power of two", size)
	}
	return &CQ{entries: make([]CQEntry, size), phase: true}, nil
}

// Post writes a completion for cid/status at the current head with the
// controller's current phase
func (q *CQ) Post(cid uint16, status uint16) {
	q.entries[q.head] = CQEntry{CID: cid, Status: status, Phase: q.phase}
}

// Poll reads the entry at head; it belongs to the caller iff its phase
// equals the expected phase AND its CID matches cid and
// property 8. On match it advances head, toggling the expected
// phase when head wraps to 0.
func (q *CQ) Poll(cid uint16) (CQEntry, bool) {
	e := q.entries[q.head]
	if e.Phase != q.phase || e.CID != cid {
		return CQEntry{}, false
	}
	q.head = (q.head + 1) % len(q.entries)
	if q.head == 0 {
		q.phase = !q.phase
	}
	return e, true
}
