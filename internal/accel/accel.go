// Package accel implements the optional accelerator bridge: a
// shared-memory slot with a tiny {IDLE, PENDING, RUNNING, DONE} state
// machine. Following the owned-value rewrite guidance, the "fixed
// physical address" region is modeled as an in-process struct the kernel
// and its offload peer both hold a reference to, rather than a literal
// memory-mapped address.
package accel

import (
	"github.com/embodios/kernel/internal/config"
	"github.com/embodios/kernel/internal/errs"
)

// Status is the slot's tiny state machine
type Status int

const (
	Idle Status = iota
	Pending
	Running
	Done
)

// Slot is the shared-memory accelerator request/response region: magic,
// version, a request ID, fixed-size prompt/response buffers, sampling
// parameters, flags, and status.
type Slot struct {
	Magic    uint32
	Version  uint32
	RequestID uint64
	Prompt   [config.AccelPromptBytes]byte
	Response [config.AccelResponseBytes]byte
	MaxTokens   uint32
	Temperature uint32 // Q16.16
	Flags       uint32
	Status      Status
}

// NewSlot constructs a slot stamped with the bridge's magic and version,
//
func NewSlot() *Slot {
	return &Slot{Magic: config.AccelMagic, Version: config.AccelVersion, Status: Idle}
}

func (s *Slot) checkMagic(op string) error {
	if s.Magic != config.AccelMagic {
		return errs.New(op, errs.Invalid, "bad slot magic %08x, want %08x", s.Magic, uint32(config.AccelMagic))
	}
	if s.Version != config.AccelVersion {
		return errs.New(op, errs.Invalid, "unsupported slot version %d, want %d", s.Version, config.AccelVersion)
	}
	return nil
}

// SubmitPrompt writes prompt into the slot and transitions IDLE -> PENDING,
// "kernel writes PENDING" half of the protocol.
func (s *Slot) SubmitPrompt(requestID uint64, prompt string, maxTokens uint32, temperature uint32) error {
	if err := s.checkMagic("accel.Slot.SubmitPrompt"); err != nil {
		return err
	}
	if s.Status != Idle {
		return errs.New("accel.Slot.SubmitPrompt", errs.Invalid, "slot is not IDLE (status %d)", s.Status)
	}
	if len(prompt) > len(s.Prompt) {
		return errs.New("accel.Slot.SubmitPrompt", errs.Bounds, "prompt length %d exceeds %d", len(prompt), len(s.Prompt))
	}
	clear(s.Prompt[:])
	copy(s.Prompt[:], prompt)
	s.RequestID = requestID
	s.MaxTokens = maxTokens
	s.Temperature = temperature
	s.Status = Pending
	return nil
}

// AcceptAndRun is the offload peer's half: it claims a PENDING slot,
// transitioning it to RUNNING mirror protocol.
func (s *Slot) AcceptAndRun() error {
	if err := s.checkMagic("accel.Slot.AcceptAndRun"); err != nil {
		return err
	}
	if s.Status != Pending {
		return errs.New("accel.Slot.AcceptAndRun", errs.Invalid, "slot is not PENDING (status %d)", s.Status)
	}
	s.Status = Running
	return nil
}

// CompleteWithResponse is the offload peer's half: it writes the response
// and transitions RUNNING -> DONE.
func (s *Slot) CompleteWithResponse(response string) error {
	if err := s.checkMagic("accel.Slot.CompleteWithResponse"); err != nil {
		return err
	}
	if s.Status != Running {
		return errs.New("accel.Slot.CompleteWithResponse", errs.Invalid, "slot is not RUNNING (status %d)", s.Status)
	}
	if len(response) > len(s.Response) {
		return errs.New("accel.Slot.CompleteWithResponse", errs.Bounds, "response length %d exceeds %d", len(response), len(s.Response))
	}
	clear(s.Response[:])
	copy(s.Response[:], response)
	s.Status = Done
	return nil
}

// CollectAndReset is the kernel's half: once DONE, it copies out the
// response and resets the slot to IDLE "copies out and
// writes IDLE".
func (s *Slot) CollectAndReset() (string, error) {
	if err := s.checkMagic("accel.Slot.CollectAndReset"); err != nil {
		return "", err
	}
	if s.Status != Done {
		return "", errs.New("accel.Slot.CollectAndReset", errs.Invalid, "slot is not DONE (status %d)", s.Status)
	}
	n := 0
	for n < len(s.Response) && s.Response[n] != 0 {
		n++
	}
	resp := string(s.Response[:n])
	s.Status = Idle
	return resp, nil
}
