// Copyright © 2026 The cm5674emu Authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.

// Package intc implements the interrupt controller and exception queue of
// §4.D: four priority-separated FIFOs, a current-priority gate (CPR), and
// the vector/retire lifecycle. A single flat cause-register/priority-gate
// shape doesn't fit a core with four independent priority classes, so each
// class gets its own FIFO and its own saved-state stack.
package intc

import "fmt"

// Class is an exception priority class. Ordering matters: higher value is
// higher priority, matching §4.D "Machine-Check > Critical > Standard."
type Class int

const (
	ClassStandard Class = iota
	ClassCritical
	ClassMachineCheck
	ClassResetDebug
)

func (c Class) String() string {
	switch c {
	case ClassStandard:
		return "standard"
	case ClassCritical:
		return "critical"
	case ClassMachineCheck:
		return "machine-check"
	case ClassResetDebug:
		return "reset-debug"
	default:
		return "unknown"
	}
}

// Kind names the specific exception within its class.
type Kind int

const (
	KindReset Kind = iota
	KindMachineCheck
	KindCritical
	KindStandardExternal
	KindAlignment
)

// Pending describes one queued exception, per §3 "Pending exception."
type Pending struct {
	SourceID      int
	Class         Class
	Kind          Kind
	Vector        uint32
	SavedPC       uint32
	SavedMSR      uint32
	ErrorSyndrome uint32
}

// SavedState is the SRR0/SRR1-shaped register pair a class retires into.
type SavedState struct {
	PC  uint32
	MSR uint32
}

// Sink is the narrow interface a peripheral uses to post an external
// interrupt source; it is handed to peripherals non-owning at construction
// time per the §9 "Cyclic ownership" redesign, rather than a back-pointer
// to the whole emulator.
type Sink interface {
	PostStandardExternal(sourceID int, vector uint32)
}

// VectorTable maps a peripheral-local source ID to an architectural vector.
// Each peripheral owns one (§4.D "looked up from the source ID").
type VectorTable map[int]uint32

// Controller is the priority-ordered pending set plus the exception stack
// described in §4.D. CPR gating is evaluated from the live queues on every
// ReadyToVector query.
type Controller struct {
	cpr    Class
	queues [4][]Pending

	// saved holds the register pair per class, pushed on vector and popped
	// on RFI, modeling SRR0/1, CSRR0/1, MCSRR0/1.
	saved [4][]SavedState
}

// New creates a Controller with CPR at the lowest priority (everything
// vectors immediately until software raises CPR).
func New() *Controller {
	return &Controller{cpr: ClassStandard}
}

// Reset clears all queues and saved state and resets CPR, used on core
// reset.
func (c *Controller) Reset() {
	for i := range c.queues {
		c.queues[i] = nil
		c.saved[i] = nil
	}
	c.cpr = ClassStandard
}

// SetCPR updates the current-priority gate. Per §4.D, lowering CPR
// immediately makes previously-latched exceptions eligible; ReadyToVector
// reflects this on the next query, there is no separate "re-evaluate" step
// since ReadyToVector always recomputes from the live queues.
func (c *Controller) SetCPR(class Class) { c.cpr = class }

// CPR returns the current-priority gate.
func (c *Controller) CPR() Class { return c.cpr }

// Post enqueues an exception. Queueing is infallible (§4.D "Failure
// semantics"): the FIFOs are unbounded Go slices.
func (c *Controller) Post(p Pending) {
	c.queues[p.Class] = append(c.queues[p.Class], p)
}

// PostStandardExternal implements Sink for peripherals raising external
// interrupts.
func (c *Controller) PostStandardExternal(sourceID int, vector uint32) {
	c.Post(Pending{SourceID: sourceID, Class: ClassStandard, Kind: KindStandardExternal, Vector: vector})
}

// ReadyToVector reports the highest-priority pending exception whose class
// meets the CPR gate, or ok=false if none does. Within a class, FIFO order
// is preserved (the oldest posted exception of the winning class is
// returned).
func (c *Controller) ReadyToVector() (Pending, bool) {
	for class := ClassResetDebug; class >= ClassStandard; class-- {
		if class < c.cpr {
			continue
		}
		if len(c.queues[class]) > 0 {
			return c.queues[class][0], true
		}
	}
	return Pending{}, false
}

// Vector pops the highest-priority ready exception, pushes the faulting
// (pc, msr) onto that class's saved-state stack, and returns it for the
// executor to act on (jump to the handler entry). It panics if nothing is
// ready: callers must check ReadyToVector first, since an empty class here
// is an invariant violation, not a guest-visible error.
func (c *Controller) Vector(pc, msr uint32) Pending {
	p, ok := c.ReadyToVector()
	if !ok {
		panic("intc: Vector called with nothing ready to vector")
	}
	c.queues[p.Class] = c.queues[p.Class][1:]
	c.saved[p.Class] = append(c.saved[p.Class], SavedState{PC: pc, MSR: msr})
	return p
}

// RFI pops the saved-state pair for class, restoring the architectural
// PC/MSR a real RFI/CRFI/MCRFI instruction would reload. RFI from an empty
// class is a fatal emulator invariant violation per §7.
func (c *Controller) RFI(class Class) SavedState {
	stack := c.saved[class]
	if len(stack) == 0 {
		panic(fmt.Sprintf("intc: RFI from empty %s class: invariant violation", class))
	}
	top := stack[len(stack)-1]
	c.saved[class] = stack[:len(stack)-1]
	return top
}

// PendingCount returns the number of latched (not yet vectored) exceptions
// in a class, used by tests and diagnostics.
func (c *Controller) PendingCount(class Class) int {
	return len(c.queues[class])
}
