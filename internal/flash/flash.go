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

// Package flash implements the dual-array flash controller of §4.E: two
// interleaved program/erase arrays (A and B) backed by a shared 4 MiB main
// image plus two 16 KiB shadow-flash blocks, a program/erase state machine
// driven by MCR writes, lock-magic-gated configuration registers, and
// MD5-keyed backup-file persistence. Grounded throughout on
// original_source/cm2350/peripherals/flash.py, translated from its
// per-array VBitField dispatch into internal/regfield registers and from
// its mutable Python object graph into the non-owning-reference shape of
// §9: each Array holds a Persister, not a pointer back to the Controller.
package flash

import (
	"github.com/cm5674/emu/internal/bus"
	"github.com/cm5674/emu/internal/regfield"
	"github.com/cm5674/emu/internal/tracelog"
)

const (
	mainSize   = 0x400000
	shadowSize = 0x4000
	configSize = 0x4000
)

// Persister is the narrow, non-owning interface an Array uses to commit a
// byte range to the backup file; it is implemented by Controller and
// handed to each Array at construction, per the §9 "no cyclic ownership"
// redesign.
type Persister interface {
	saveMain(start, size uint32)
	saveShadow(isB bool, start, size uint32)
}

// staged holds the in-flight program/erase payload for one array, per
// §4.E's ARMED/STAGED states. Data is nil while erasing (the erase payload
// is generated fresh for each selected block); it is an 0xFF-seeded buffer
// while programming.
type staged struct {
	block Block
	data  []byte
}

// Array is one of the two interleaved flash arrays (A or B), owning its
// own configuration registers, lock state, and 16 KiB shadow flash.
type Array struct {
	name string
	isB  bool

	mcr, lmlr, hlr, slmlr, lmsr, hsr, ar, biucr, biuapr, biucr2, ut0, ut1, ut2 *regfield.Register

	blocks []blockEntry
	shadow []byte

	// mainData is the non-owning slice Controller hands each Array at
	// construction; slices share their backing array, so writes here are
	// visible through Controller.data without Array holding a pointer
	// back to Controller (§9 "no cyclic ownership").
	mainData []byte

	persist Persister
	log     *tracelog.Tracer

	staged *staged
}

func newArray(name string, isB bool, persist Persister, log *tracelog.Tracer) *Array {
	var las, mas uint32
	if isB {
		las, mas = 0, 1
	} else {
		las, mas = 0b100, 0
	}
	a := &Array{
		name:    name,
		isB:     isB,
		mcr:     newMCR(las, mas),
		lmlr:    newLMLR(),
		hlr:     newHLR(),
		slmlr:   newSLMLR(),
		lmsr:    newLMSR(),
		hsr:     newHSR(),
		ar:      newAR(),
		biucr:   newBIUCR(),
		biuapr:  newBIUAPR(),
		biucr2:  newBIUCR2(),
		ut0:     newUT0(),
		ut1:     newUT1or2("UT1"),
		ut2:     newUT1or2("UT2"),
		blocks:  arrayBlocks(isB),
		shadow:  make([]byte, shadowSize),
		persist: persist,
		log:     log,
	}
	a.mcr.OnParse(a.handleMCRWrite)
	return a
}

// Reset restores this array's configuration registers to their power-on
// values and abandons any in-flight program/erase, per §4.C "reset(emu)
// ... restore registers." The backing flash data itself is not part of
// the register reset; it persists across a peripheral reset the same way
// real flash content survives a core reset.
func (a *Array) Reset() {
	a.mcr.Reset()
	a.lmlr.Reset()
	a.hlr.Reset()
	a.slmlr.Reset()
	a.lmsr.Reset()
	a.hsr.Reset()
	a.ar.Reset()
	a.biucr.Reset()
	a.biuapr.Reset()
	a.biucr2.Reset()
	a.ut0.Reset()
	a.ut1.Reset()
	a.ut2.Reset()
	a.staged = nil
}

// handleMCRWrite is the regfield parse hook grounded on flash.py's
// `self.mcr.vsAddParseCallback('ehv', self._handleEHV)`: any bus write to
// MCR that leaves EHV set triggers the EXECUTING state per §4.E.
func (a *Array) handleMCRWrite(r *regfield.Register) {
	if !r.Bit("ehv") {
		return
	}
	r.Override("done", 0)
	r.Override("peg", 0)

	switch {
	case r.Bit("pgm"):
		a.program()
	case r.Bit("ers"):
		a.erase()
	}

	r.Override("peas", 0)
	r.Override("pgm", 0)
	r.Override("ers", 0)
	r.Override("done", 1)
	r.Override("peg", 1)
	r.Override("ehv", 0)
}

func (a *Array) findBlock(b Block) (blockEntry, bool) {
	for _, e := range a.blocks {
		if e.Block == b {
			return e, true
		}
	}
	return blockEntry{}, false
}

// writable reports whether a block is currently unlocked, per §4.E "Lock
// enforcement": locked = (LMLR bit | SLMLR bit) for low/mid/shadow, or
// HLR.hlock for high.
func (a *Array) writable(b Block) bool {
	switch b.Type {
	case BlockShadow:
		return (a.lmlr.Get("slock")|a.slmlr.Get("sslock"))&1 == 0
	case BlockLow:
		return (a.lmlr.Get("llock")|a.slmlr.Get("sllock"))&b.Mask == 0
	case BlockMid:
		return (a.lmlr.Get("mlock")|a.slmlr.Get("smlock"))&b.Mask == 0
	case BlockHigh:
		return a.hlr.Get("hlock")&b.Mask == 0
	default:
		return false
	}
}

// selectedBlocks returns the blocks currently chosen by LMSR/HSR/MCR.peas,
// used only while erasing (§4.E "selection is taken from LMSR.lsel/msel,
// HSR.hsel, and MCR.peas").
func (a *Array) selectedBlocks() []blockEntry {
	var out []blockEntry
	for _, e := range a.blocks {
		switch e.Block.Type {
		case BlockLow:
			if a.lmsr.Get("lsel")&e.Block.Mask != 0 {
				out = append(out, e)
			}
		case BlockMid:
			if a.lmsr.Get("msel")&e.Block.Mask != 0 {
				out = append(out, e)
			}
		case BlockHigh:
			if a.hsr.Get("hsel")&e.Block.Mask != 0 {
				out = append(out, e)
			}
		case BlockShadow:
			if a.mcr.Bit("peas") {
				out = append(out, e)
			}
		}
	}
	return out
}

// writeStage is called for every bus write that lands inside this array's
// flash/shadow window while MCR.pgm or MCR.ers is set, per §4.E's
// ARMED→STAGED transition ("first flash write: block inferred from
// address").
func (a *Array) writeStage(b Block, localOffset uint32, data []byte) {
	entry, ok := a.findBlock(b)
	if !ok {
		return
	}
	if a.staged == nil {
		switch {
		case a.mcr.Bit("pgm"):
			buf := make([]byte, entry.Size)
			for i := range buf {
				buf[i] = 0xFF
			}
			a.staged = &staged{block: b, data: buf}
		case a.mcr.Bit("ers"):
			if b.Type == BlockShadow {
				a.mcr.Override("peas", 1)
			} else {
				a.mcr.Override("peas", 0)
			}
			a.staged = &staged{block: b}
		default:
			return
		}
	}
	if a.mcr.Bit("pgm") && a.staged.data != nil {
		copy(a.staged.data[localOffset:], data)
	}
}

// program commits the staged payload of the single block named by the
// first write after MCR.pgm was set, per §4.E's EXECUTING step.
func (a *Array) program() {
	if a.staged == nil {
		return
	}
	b, data := a.staged.block, a.staged.data
	entry, ok := a.findBlock(b)
	if !ok {
		a.staged = nil
		return
	}
	if !a.writable(b) {
		a.log.Field(a.name).Warnf("flash program failed, block %s locked", b.Name)
		a.staged = nil
		return
	}
	a.commit(entry, data)
	a.staged = nil
}

// erase commits 0xFF across every currently-selected block, per §4.E.
func (a *Array) erase() {
	if a.staged == nil {
		return
	}
	for _, entry := range a.selectedBlocks() {
		if !a.writable(entry.Block) {
			a.log.Field(a.name).Warnf("flash erase failed, block %s locked", entry.Block.Name)
			continue
		}
		erased := make([]byte, entry.Size)
		for i := range erased {
			erased[i] = 0xFF
		}
		a.commit(entry, erased)
	}
	a.staged = nil
}

// commit writes data (len == entry.Size) into the shared backing store and
// the persistent backup file, applying the high-block interleave when
// needed.
func (a *Array) commit(entry blockEntry, data []byte) {
	switch entry.Block.Type {
	case BlockShadow:
		copy(a.shadow, data)
		a.persist.saveShadow(a.isB, 0, shadowSize)
	case BlockHigh:
		for local := uint32(0); int(local) < len(data); local++ {
			global := highStripeOffset(entry.Offset, local, a.isB)
			a.mainData[global] = data[local]
		}
		// The interleaved writes above land throughout the block's full
		// logical span (double this array's own byte count, since every
		// other 16-byte half-stripe belongs to the other array), so the
		// backup commit must cover that whole span too, not just the first
		// half of it.
		a.persist.saveMain(entry.Offset, entry.logicalSize())
	default:
		copy(a.mainData[entry.Offset:], data)
		a.persist.saveMain(entry.Offset, entry.Size)
	}
}

// Controller owns both flash arrays, the shared main image, and the backup
// file. It supplies the bus.Handlers for five MMIO windows: main flash and
// shadow A/B (MainHandler, ShadowAHandler, ShadowBHandler), and the two
// arrays' configuration register blocks (each Array is itself a handler).
type Controller struct {
	A, B *Array
	data []byte

	log *tracelog.Tracer

	backup *backupFile
}

// New creates a Controller with erased (0xFF) main flash and shadow
// blocks; call LoadMain/LoadShadow before LoadComplete to seed real
// firmware images.
func New(log *tracelog.Tracer) *Controller {
	c := &Controller{
		data: make([]byte, mainSize),
		log:  log,
	}
	for i := range c.data {
		c.data[i] = 0xFF
	}
	c.A = newArray("A", false, c, log)
	c.B = newArray("B", true, c, log)
	c.A.mainData = c.data
	c.B.mainData = c.data
	c.DefaultShadowA()
	c.DefaultShadowB()
	return c
}

// Name identifies the controller for logging, per §4.C's capability set.
func (c *Controller) Name() string { return "Flash" }

// Reset restores both arrays' configuration registers to their power-on
// values, per §4.C "reset(emu) ... restore registers." Called from
// Runtime.Boot alongside the other peripherals' resets.
func (c *Controller) Reset() {
	c.A.Reset()
	c.B.Reset()
}

func (c *Controller) saveMain(start, size uint32) { c.backup.save(c, flashMain, start, size) }

func (c *Controller) saveShadow(isB bool, start, size uint32) {
	if isB {
		c.backup.save(c, flashShadowB, start, size)
	} else {
		c.backup.save(c, flashShadowA, start, size)
	}
}

// DefaultShadowA seeds shadow flash A with the canonical boot values §4.E
// specifies when no firmware image supplies one: serial passcode
// FE ED FA CE CA FE BE EF at 0x3DD8, censorship word 55 AA 55 AA at
// 0x3DE0. Grounded on flash.py's load_defaults for FLASH_A_CONFIG.
func (c *Controller) DefaultShadowA() {
	for i := range c.A.shadow {
		c.A.shadow[i] = 0xFF
	}
	copy(c.A.shadow[0x3DD8:], []byte{0xFE, 0xED, 0xFA, 0xCE, 0xCA, 0xFE, 0xBE, 0xEF})
	copy(c.A.shadow[0x3DE0:], []byte{0x55, 0xAA, 0x55, 0xAA})
}

// DefaultShadowB seeds shadow flash B with nothing but the 0xFF erased
// state; flash.py's load_defaults only special-cases the A array's
// config-block offsets.
func (c *Controller) DefaultShadowB() {
	for i := range c.B.shadow {
		c.B.shadow[i] = 0xFF
	}
}

// MMIORead/MMIOWrite for the main flash window (0x00000000-0x003FFFFF).
type mainHandler struct{ c *Controller }

func (c *Controller) MainHandler() bus.Handler { return mainHandler{c} }

func (h mainHandler) MMIORead(addr, offset uint32, size int) ([]byte, error) {
	return append([]byte(nil), h.c.data[offset:offset+uint32(size)]...), nil
}

func (h mainHandler) MMIOWrite(addr, offset uint32, data []byte) error {
	arr, block, localOffset, ok := h.c.resolveMainOffset(offset)
	if !ok {
		return &bus.BusError{Kind: bus.ErrUnmapped, VirtualAddress: addr, AttemptedData: data}
	}
	arr.writeStage(block, localOffset, data)
	return nil
}

// shadowHandler serves one array's 16 KiB shadow-flash window.
type shadowHandler struct {
	c   *Controller
	isB bool
}

func (c *Controller) ShadowAHandler() bus.Handler { return shadowHandler{c, false} }
func (c *Controller) ShadowBHandler() bus.Handler { return shadowHandler{c, true} }

func (h shadowHandler) array() *Array {
	if h.isB {
		return h.c.B
	}
	return h.c.A
}

func (h shadowHandler) MMIORead(addr, offset uint32, size int) ([]byte, error) {
	a := h.array()
	return append([]byte(nil), a.shadow[offset:offset+uint32(size)]...), nil
}

func (h shadowHandler) MMIOWrite(addr, offset uint32, data []byte) error {
	h.array().writeStage(blockS0, offset, data)
	return nil
}

// ConfigHandler serves one array's register window (MCR..UT2); it is the
// Array itself that implements bus.Handler, via MMIORead/MMIOWrite below.
func (a *Array) MMIORead(addr, offset uint32, size int) ([]byte, error) {
	idx := offset / 4
	reg := a.regByIndex(idx)
	if reg == nil {
		return nil, &bus.BusError{Kind: bus.ErrUnmapped, VirtualAddress: addr}
	}
	full := reg.Emit()
	within := offset % 4
	return append([]byte(nil), full[within:within+uint32(size)]...), nil
}

func (a *Array) MMIOWrite(addr, offset uint32, data []byte) error {
	idx := offset / 4
	reg := a.regByIndex(idx)
	if reg == nil {
		return &bus.BusError{Kind: bus.ErrUnmapped, VirtualAddress: addr, AttemptedData: data}
	}
	full := reg.Emit()
	within := offset % 4
	copy(full[within:], data)
	word := uint32(full[0])<<24 | uint32(full[1])<<16 | uint32(full[2])<<8 | uint32(full[3])

	switch idx {
	case idxLMLR:
		a.writeLMLR(word)
	case idxHLR:
		a.writeHLR(word)
	case idxSLMLR:
		a.writeSLMLR(word)
	default:
		reg.Parse(word)
	}
	return nil
}

func (a *Array) regByIndex(idx uint32) *regfield.Register {
	switch idx {
	case idxMCR:
		return a.mcr
	case idxLMLR:
		return a.lmlr
	case idxHLR:
		return a.hlr
	case idxSLMLR:
		return a.slmlr
	case idxLMSR:
		return a.lmsr
	case idxHSR:
		return a.hsr
	case idxAR:
		return a.ar
	case idxBIUCR:
		return a.biucr
	case idxBIUAPR:
		return a.biuapr
	case idxBIUCR2:
		return a.biucr2
	case idxUT0:
		return a.ut0
	case idxUT1:
		return a.ut1
	case idxUT2:
		return a.ut2
	default:
		return nil
	}
}

// Lock-magic unlock words, per §4.E.
const (
	unlockLMLR  = 0xA1A11111
	unlockHLR   = 0xB2B22222
	unlockSLMLR = 0xC3C33333
)

func (a *Array) writeLMLR(word uint32) {
	if word == unlockLMLR {
		a.lmlr.Override("lme", 1)
		return
	}
	if a.lmlr.Bit("lme") {
		a.lmlr.Parse(word)
	}
}

func (a *Array) writeHLR(word uint32) {
	if word == unlockHLR {
		a.hlr.Override("hbe", 1)
		return
	}
	if a.hlr.Bit("hbe") {
		a.hlr.Parse(word)
	}
}

func (a *Array) writeSLMLR(word uint32) {
	if word == unlockSLMLR {
		a.slmlr.Override("sle", 1)
		return
	}
	if a.slmlr.Bit("sle") {
		a.slmlr.Parse(word)
	}
}
