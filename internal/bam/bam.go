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

// Package bam implements the Boot Assist Module / reset orchestrator of
// §4.G: the RCHW scan that locates the firmware's entry point on cold
// reset, and the SRAM preservation policy that distinguishes a warm reset
// from a cold one. The boot ROM supports more than one flash layout, so
// reset doesn't load one fixed image at a fixed address; it scans six
// candidate vectors for the first one bearing a valid RCHW.
package bam

import (
	"fmt"

	"github.com/cm5674/emu/internal/bus"
)

// bootID is the RCHW marker byte identifying a valid reset configuration
// half-word, per §4.G.
const bootID = 0x5A

// rchwOffsets are the fixed candidate boot vectors scanned in order on
// cold reset, per §4.G.
var rchwOffsets = [6]uint32{0x0000, 0x4000, 0x10000, 0x1C000, 0x20000, 0x30000}

// Orchestrator owns SRAM and performs the RCHW scan and cold/warm reset
// policy. It takes the bus as a non-owning reference at call sites rather
// than owning or wrapping it (§9).
type Orchestrator struct {
	ram         []byte
	ramBase     uint32
	standbySize uint32

	// entryOverride, when set, replaces the RCHW-derived PC (§4.G "Entry-
	// point override"): a loader that registered exactly one program
	// entry point wins over the scanned vector.
	entryOverride *uint32
	callConvAlign uint32
}

// New allocates SRAM of the given size at ramBase, with the first
// standbySize bytes preserved across a warm reset.
func New(ramBase, size, standbySize uint32) *Orchestrator {
	return &Orchestrator{
		ram:           make([]byte, size),
		ramBase:       ramBase,
		standbySize:   standbySize,
		callConvAlign: 8,
	}
}

// RAM returns the backing SRAM slice for mapping onto the bus.
func (o *Orchestrator) RAM() []byte { return o.ram }

// RAMBase returns the physical base address SRAM is mapped at.
func (o *Orchestrator) RAMBase() uint32 { return o.ramBase }

// SetEntryPoint registers the loader's single program entry point,
// overriding the RCHW scan result, per §4.G.
func (o *Orchestrator) SetEntryPoint(pc uint32) { o.entryOverride = &pc }

// ColdReset zeros all of SRAM, per §4.G "On cold reset everything is
// zeroed."
func (o *Orchestrator) ColdReset() {
	for i := range o.ram {
		o.ram[i] = 0
	}
}

// WarmReset preserves the standby region [0, standbySize) and zeros the
// rest, per §4.G "SRAM preservation."
func (o *Orchestrator) WarmReset() {
	for i := int(o.standbySize); i < len(o.ram); i++ {
		o.ram[i] = 0
	}
}

// ScanRCHW reads each of the six fixed offsets through b, returning the PC
// taken from the word following the first RCHW whose BOOT_ID byte is
// 0x5A. ok is false if no candidate matched (§4.G "enters an external-boot
// state," which this implementation reports to the caller rather than
// modeling further, per the Non-goals). The top byte of the RCHW word is a
// reserved 0; BOOT_ID occupies the next byte down (bits 23:16), per §8 S1's
// worked example (0x005A_FFFF).
func (o *Orchestrator) ScanRCHW(b *bus.Bus) (pc uint32, ok bool) {
	for _, off := range rchwOffsets {
		rchw, err := b.ReadUint32(off)
		if err != nil {
			continue
		}
		if byte(rchw>>16) != bootID {
			continue
		}
		pc, err = b.ReadUint32(off + 4)
		if err != nil {
			continue
		}
		return pc, true
	}
	return 0, false
}

// Boot performs the reset policy for cold or warm reset and returns the
// PC the core should start executing at. Both paths scan the RCHW from
// flash, since flash content is unaffected by reset type; only the SRAM
// zeroing policy differs between cold and warm reset, per §4.G.
func (o *Orchestrator) Boot(b *bus.Bus, cold bool) (uint32, error) {
	if cold {
		o.ColdReset()
	} else {
		o.WarmReset()
	}

	pc, ok := o.ScanRCHW(b)
	if o.entryOverride != nil {
		pc = *o.entryOverride
		ok = true
	}
	if !ok {
		return 0, fmt.Errorf("bam: no RCHW with BOOT_ID=0x%02X found at any configured offset", bootID)
	}
	return pc, nil
}

// StackPointer returns the initial stack pointer when an entry-point
// override is active: ram_end - call_conv_alignment, per §4.G.
func (o *Orchestrator) StackPointer() uint32 {
	end := o.ramBase + uint32(len(o.ram))
	return end - o.callConvAlign
}
