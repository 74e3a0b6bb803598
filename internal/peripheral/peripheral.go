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

// Package peripheral defines the capability set every MMIO peripheral
// implements (§4.C) and the bounded-queue IO worker scaffold used by
// peripherals that speak to external transports (DSPI when a real device
// is attached): a state machine constructed once, reset on demand, driven
// by discrete byte-at-a-time events, with no back-pointer to the owning
// CPU. This is the §9 "Cyclic ownership" redesign: peripherals take
// non-owning (bus, sink) references at call sites instead of holding an
// emulator pointer.
package peripheral

import (
	"context"

	"github.com/cm5674/emu/internal/bus"
)

// Base is the capability set every peripheral implements.
type Base interface {
	// Name identifies the peripheral for logging and the memory map.
	Name() string
	// Reset restores registers to their power-on values and re-evaluates
	// any derived mode (e.g. DSPI's mode machine).
	Reset()
	bus.Handler
}

// Frame is one unit exchanged with an external transport: DSPI's 16-bit
// data word plus its chip-select mask, or a FlexCAN/eQADC-shaped payload.
// Workers and peripherals agree out of band on how to interpret Data.
type Frame struct {
	Select uint32
	Data   []byte
}

// Worker is the optional IO worker a peripheral runs on a dedicated
// goroutine to exchange Frames with an external transport (§4.C, §5
// Scheduling model). It communicates with the core thread only through
// the bounded inbound/outbound queues created by NewWorker; the core loop
// drains inbound (Drain) between instructions and the transport goroutine
// reads outbound (Outgoing).
type Worker struct {
	inbound  chan Frame
	outbound chan Frame
	cancel   context.CancelFunc
}

// NewWorker creates a Worker with the given queue depth. depth bounds both
// directions per §5 "bounded, thread-safe FIFOs."
func NewWorker(depth int) *Worker {
	return &Worker{
		inbound:  make(chan Frame, depth),
		outbound: make(chan Frame, depth),
	}
}

// Inbound is the channel a transport goroutine sends frames into for the
// peripheral to deliver to the guest (e.g. bytes received over a real SPI
// link, to be pushed into DSPI's Rx FIFO).
func (w *Worker) Inbound() chan<- Frame { return w.inbound }

// Outbound is the channel the peripheral sends transmitted frames into for
// a transport goroutine to deliver externally.
func (w *Worker) Outbound() chan<- Frame { return w.outbound }

// Drain is called by the core loop between instructions (§5 "Ordering
// guarantees"): it non-blockingly pulls any frames the worker produced and
// hands them to consume. The core thread never blocks on I/O.
func (w *Worker) Drain(consume func(Frame)) {
	for {
		select {
		case f := <-w.inbound:
			consume(f)
		default:
			return
		}
	}
}

// Send enqueues a frame the peripheral transmitted for the worker to carry
// out over the external transport; it blocks only until the bounded queue
// has room, matching the core thread's "never blocks on I/O" contract when
// called from code paths that first check capacity.
func (w *Worker) Send(f Frame) {
	w.outbound <- f
}

// Outgoing returns the receive-only view of the outbound queue, used by
// the transport goroutine.
func (w *Worker) Outgoing() <-chan Frame { return w.outbound }

// Stop cancels the worker's context if one was started via Run.
func (w *Worker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
}

// Run starts fn on a dedicated goroutine with a cancellable context, the
// shape used by DSPI/FlexCAN/eQADC workers that block on a socket read
// with a short timeout and check ctx.Done() cooperatively (§5
// "Cancellation").
func (w *Worker) Run(ctx context.Context, fn func(ctx context.Context, in <-chan Frame, out chan<- Frame)) {
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	go fn(ctx, w.inbound, w.outbound)
}
