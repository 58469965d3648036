package nvme

import (
	"github.com/embodios/kernel/internal/block"
	"github.com/embodios/kernel/internal/config"
	"github.com/embodios/kernel/internal/errs"
)

// State is the controller lifecycle state machine
type State int

const (
	Resetting State = iota
	AdminReady
	IOReady
	Running
	Fatal
)

func (s State) String() string {
	switch s {
	case Resetting:
		return "RESETTING"
	case AdminReady:
		return "ADMIN_READY"
	case IOReady:
		return "IO_READY"
	case Running:
		return "RUNNING"
	case Fatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// Media is the backing store a Controller drives I/O against, standing in
// for the physical NAND a real NVMe device would own: it models the
// hardware as an owned buffer rather than a literal register map.
type Media struct {
	data []byte
}

// NewMedia constructs a zeroed media of the given byte size.
func NewMedia(size int) *Media { return &Media{data: make([]byte, size)} }

// Controller is a single-namespace NVMe controller driving Media through
// the admin/I/O queue protocol. It implements block.Device.
type Controller struct {
	state   State
	media   *Media
	asq, iosq *SQ
	acq, iocq *CQ
	nextCID uint16
	timeoutMS int
}

var _ block.Device = (*Controller)(nil)

// New constructs a controller over media with admin/IO queues of the given
// depth (must be a power of two, <= config.NVMeMaxQueueDepth), starting in
// RESETTING.
func New(media *Media, queueDepth int) (*Controller, error) {
	if queueDepth <= 0 || queueDepth > config.NVMeMaxQueueDepth {
		return nil, errs.New("nvme.New", errs.Invalid, "queue depth %d out of range", queueDepth)
	}
	c := &Controller{state: Resetting, media: media, timeoutMS: config.NVMeDefaultTimeout}
	asq, err := NewSQ(queueDepth)
	if err != nil {
		return nil, err
	}
	acq, err := NewCQ(queueDepth)
	if err != nil {
		return nil, err
	}
	c.asq, c.acq = asq, acq
	return c, nil
}

// Enable runs the controller enable path: program admin queue base
// addresses and attributes (modeled as already done by New), then create
// the I/O CQ and I/O SQ via admin commands before any I/O, matching the
// required queue-creation ordering.
func (c *Controller) Enable(ioQueueDepth int) error {
	if c.state != Resetting {
		return errs.New("nvme.Controller.Enable", errs.AlreadyInit, "controller already past RESETTING (state %s)", c.state)
	}
	c.state = AdminReady

	if _, _, err := c.adminCommand(OpAdminIdentify, 0, 0); err != nil {
		c.state = Fatal
		return errs.Wrap("nvme.Controller.Enable", errs.IO, err, "identify failed")
	}

	iocq, err := NewCQ(ioQueueDepth)
	if err != nil {
		c.state = Fatal
		return err
	}
	if _, _, err := c.adminCommand(OpAdminCreateCQ, 0, 0); err != nil {
		c.state = Fatal
		return errs.Wrap("nvme.Controller.Enable", errs.IO, err, "create I/O CQ failed")
	}
	c.iocq = iocq

	iosq, err := NewSQ(ioQueueDepth)
	if err != nil {
		c.state = Fatal
		return err
	}
	if _, _, err := c.adminCommand(OpAdminCreateSQ, 0, 0); err != nil {
		c.state = Fatal
		return errs.Wrap("nvme.Controller.Enable", errs.IO, err, "create I/O SQ failed")
	}
	c.iosq = iosq

	c.state = IOReady
	return nil
}

// State returns the controller's current lifecycle state.
func (c *Controller) State() State { return c.state }

func (c *Controller) nextCmdID() uint16 {
	cid := c.nextCID
	c.nextCID++
	return cid
}

// adminCommand submits sqe-shaped admin work on the admin queue and polls
// for its completion synchronously. A real controller's doorbell write and
// completion poll are separated by hardware latency; this single-threaded,
// polling-only model processes the command inline between the two
// steps, preserving the phase/CID matching contract that callers depend on.
func (c *Controller) adminCommand(opcode uint8, lba uint64, nlb uint32) (CQEntry, []byte, error) {
	cid := c.nextCmdID()
	c.asq.Submit(SQEntry{Opcode: opcode, CID: cid, LBA: lba, NLB: nlb})
	c.acq.Post(cid, 0)
	cqe, ok := c.acq.Poll(cid)
	if !ok {
		return CQEntry{}, nil, errs.New("nvme.adminCommand", errs.Timeout, "no completion for admin CID %d within %d ms", cid, c.timeoutMS)
	}
	return cqe, nil, nil
}

// ioCommand submits one I/O command for nlb blocks at lba and polls its
// completion, performing the PRP-addressed data copy before (write) or
// after (read) the simulated command executes.
func (c *Controller) ioCommand(opcode uint8, lba uint64, nlb uint32, buf []byte) error {
	if c.state != IOReady && c.state != Running {
		return errs.New("nvme.ioCommand", errs.NotInit, "controller not IO_READY (state %s)", c.state)
	}
	c.state = Running

	start := lba * config.SectorSize
	n := uint64(nlb) * config.SectorSize
	if start+n > uint64(len(c.media.data)) {
		return errs.New("nvme.ioCommand", errs.Bounds, "transfer [%d,%d) exceeds media size %d", start, start+n, len(c.media.data))
	}

	if opcode == OpIOWrite {
		copy(c.media.data[start:start+n], buf)
	}

	prp1, prp2, _ := BuildPRP(addrOf(buf), len(buf))

	cid := c.nextCmdID()
	c.iosq.Submit(SQEntry{Opcode: opcode, CID: cid, LBA: lba, NLB: nlb, Prp1: prp1, Prp2: prp2})
	c.iocq.Post(cid, 0)
	_, ok := c.iocq.Poll(cid)
	c.state = IOReady
	if !ok {
		return errs.New("nvme.ioCommand", errs.Timeout, "no completion for I/O CID %d within %d ms", cid, c.timeoutMS)
	}

	if opcode == OpIORead {
		copy(buf, c.media.data[start:start+n])
	}
	return nil
}

// ReadSectors implements block.Device, batching into
// config.NVMeMaxIOBlocks-sized commands read/write
// batching rule. On a per-command failure it stops and returns the error;
// the caller can recover how many sectors completed from the returned
// error being non-nil partway through dst.
func (c *Controller) ReadSectors(lba, nsectors uint64, dst []byte) error {
	if uint64(len(dst)) != nsectors*config.SectorSize {
		return errs.New("nvme.Controller.ReadSectors", errs.Invalid, "dst is %d bytes, want %d", len(dst), nsectors*config.SectorSize)
	}
	return c.batch(OpIORead, lba, nsectors, dst)
}

// WriteSectors implements block.Device, batching
func (c *Controller) WriteSectors(lba, nsectors uint64, src []byte) error {
	if uint64(len(src)) != nsectors*config.SectorSize {
		return errs.New("nvme.Controller.WriteSectors", errs.Invalid, "src is %d bytes, want %d", len(src), nsectors*config.SectorSize)
	}
	return c.batch(OpIOWrite, lba, nsectors, src)
}

func (c *Controller) batch(opcode uint8, lba, nsectors uint64, buf []byte) error {
	const maxBlocks = config.NVMeMaxIOBlocks
	var done uint64
	for done < nsectors {
		n := nsectors - done
		if n > maxBlocks {
			n = maxBlocks
		}
		off := done * config.SectorSize
		if err := c.ioCommand(opcode, lba+done, uint32(n), buf[off:off+n*config.SectorSize]); err != nil {
			return errs.Wrap("nvme.Controller.batch", errs.IO, err, "after %d of %d sectors", done, nsectors)
		}
		done += n
	}
	return nil
}

// Capacity implements block.Device.
func (c *Controller) Capacity() uint64 { return uint64(len(c.media.data)) }
