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

// Package dspi implements one DSPI (Deserial Serial Peripheral Interface)
// controller of §4.F: the seven-state mode machine, the 4-entry Tx FIFO
// fed through PUSHR, the 4+1-entry Rx FIFO drained through POPR, and the
// chip-select-keyed SPI bus façade frames are dispatched to. Grounded on
// original_source/cm2350/peripherals/dspi.py's DSPI class, translated from
// its bytearray-shifting FIFOs into Go slices and from its
// raise-NotImplementedError DSI/CSI handling into a returned error (§9
// "typed bus errors instead of exceptions").
package dspi

import (
	"fmt"

	"github.com/cm5674/emu/internal/intc"
	"github.com/cm5674/emu/internal/peripheral"
	"github.com/cm5674/emu/internal/regfield"
	"github.com/cm5674/emu/internal/tracelog"
)

// Controller satisfies the §4.C capability set: Name/Reset plus
// bus.Handler's MMIORead/MMIOWrite, so the emulator arena can store it
// (and every other peripheral) behind peripheral.Base instead of a
// concrete type.
var _ peripheral.Base = (*Controller)(nil)

// Mode names the seven DSPI operating states of §4.F.
type Mode int

const (
	ModeDisable Mode = iota
	ModeSPIController
	ModeSPIPeripheral
	ModeDSIController
	ModeDSIPeripheral
	ModeCSIController
	ModeCSIPeripheral
)

func (m Mode) String() string {
	switch m {
	case ModeDisable:
		return "disable"
	case ModeSPIController:
		return "spi-controller"
	case ModeSPIPeripheral:
		return "spi-peripheral"
	case ModeDSIController:
		return "dsi-controller"
	case ModeDSIPeripheral:
		return "dsi-peripheral"
	case ModeCSIController:
		return "csi-controller"
	case ModeCSIPeripheral:
		return "csi-peripheral"
	default:
		return "unknown"
	}
}

// EventBinding names the external-interrupt source a status event posts
// to, per §4.F "Event→interrupt table." Vector tables are supplied per
// device instance by the collaborator wiring the interrupt controller
// (§6), not hardcoded here.
type EventBinding struct {
	SourceID int
	Vector   uint32
}

// EventTable maps an SR event name (tcf, eoqf, tfff, tfuf, rfdf, rfof) to
// its external-interrupt binding.
type EventTable map[string]EventBinding

// Target is the chip-select-addressed device a transmitted frame is
// delivered to, implemented by whatever peripheral or test double sits on
// the other end of the wire (§4.F "SPI bus façade").
type Target interface {
	SPITransfer(value uint32, widthBits int) uint32
}

type frame [4]byte

func beWord(f frame) uint32 {
	return uint32(f[0])<<24 | uint32(f[1])<<16 | uint32(f[2])<<8 | uint32(f[3])
}

func wordBE(v uint32) frame {
	return frame{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}

// Controller is one DSPI_A..DSPI_D instance.
type Controller struct {
	name string

	mcr, tcr, sr, rser                   *regfield.Register
	ctar                                 [ctarCount]*regfield.Register
	dsicr, sdr, asdr, compr, ddr, dsicr1 *regfield.Register

	txFifo []frame
	rxFifo []frame

	// poprEmpty is returned by a POPR read while the Rx FIFO is empty,
	// per §4.F "a fixed device-specific filler is returned."
	poprEmpty frame

	mode Mode

	// cs maps a PUSHR PCS bitmask to the device it selects. Non-owning:
	// devices are registered by the emulator wiring step, not constructed
	// here (§9).
	cs map[uint32]Target

	// sink is the narrow interrupt-posting capability this controller
	// was wired to; it is not an owning reference to the interrupt
	// controller (§9 "Cyclic ownership").
	sink   intc.Sink
	events EventTable

	log *tracelog.Tracer
}

// New creates a DSPI controller. name is used in log lines and to select
// the well-known POPR filler (DSPI_D returns 0x00 00 87 AD; all others
// return 0x00 00 FF FF, per §4.F).
func New(name string, sink intc.Sink, events EventTable, log *tracelog.Tracer) *Controller {
	c := &Controller{
		name:   name,
		mcr:    newMCR(),
		tcr:    newTCR(),
		sr:     newSR(),
		rser:   newRSER(),
		dsicr:  newWord32("DSICR"),
		sdr:    newWord32("SDR"),
		asdr:   newWord32("ASDR"),
		compr:  newWord32("COMPR"),
		ddr:    newWord32("DDR"),
		dsicr1: newWord32("DSICR1"),
		cs:     make(map[uint32]Target),
		sink:   sink,
		events: events,
		log:    log,
	}
	for i := range c.ctar {
		c.ctar[i] = newCTAR()
	}
	if name == "DSPI_D" {
		c.poprEmpty = frame{0x00, 0x00, 0x87, 0xAD}
	} else {
		c.poprEmpty = frame{0x00, 0x00, 0xFF, 0xFF}
	}
	c.mcr.OnParse(func(r *regfield.Register) { c.mcrUpdate() })
	c.sr.OnParse(func(r *regfield.Register) { c.srUpdate() })
	return c
}

// RegisterTarget binds a chip-select mask to the device PUSHR[PCS]
// selects, per §4.F "SPI bus façade."
func (c *Controller) RegisterTarget(csMask uint32, t Target) {
	c.cs[csMask] = t
}

func (c *Controller) Name() string { return c.name }

// Reset restores registers and empties both FIFOs, per §4.C.
func (c *Controller) Reset() {
	c.mcr.Reset()
	c.tcr.Reset()
	c.sr.Reset()
	c.rser.Reset()
	for _, r := range c.ctar {
		r.Reset()
	}
	c.dsicr.Reset()
	c.sdr.Reset()
	c.asdr.Reset()
	c.compr.Reset()
	c.ddr.Reset()
	c.dsicr1.Reset()
	c.txFifo = nil
	c.rxFifo = nil
	c.mode = ModeDisable
	c.updateMode()
}

// event sets or clears an SR status bit and, if RSER enables it and it
// went active, posts the bound external-interrupt source, per §4.C
// "event(name, active)".
func (c *Controller) event(name string, active bool) {
	c.sr.SetBit(name, active)
	if !active {
		return
	}
	if c.rser.Get(name) == 0 {
		return
	}
	b, ok := c.events[name]
	if !ok {
		return
	}
	c.sink.PostStandardExternal(b.SourceID, b.Vector)
}

// mcrUpdate is the regfield parse hook grounded on dspi.py's
// `self.registers.vsAddParseCallback('mcr', self.mcrUpdate)`.
func (c *Controller) mcrUpdate() {
	if c.mcr.Bit("clr_txf") {
		c.txFifo = nil
		c.sr.Override("txctr", 0)
		c.sr.Override("txnxtptr", 0)
		c.mcr.Override("clr_txf", 0)
		c.event("tfff", true)
	}
	if c.mcr.Bit("clr_rxf") {
		c.rxFifo = nil
		c.sr.Override("rxctr", 0)
		c.mcr.Override("clr_rxf", 0)
	}
	if err := c.updateMode(); err != nil {
		c.log.Fatal(c.name, "%v", err)
	}
}

// srUpdate re-raises tfff if it was cleared but the Tx FIFO still has
// room, per dspi.py's srUpdate.
func (c *Controller) srUpdate() {
	if c.sr.Get("tfff") == 0 && !c.txFifoFull() {
		c.event("tfff", true)
	}
}

// updateMode recomputes the mode machine from MCR, per §4.F. DSI/CSI modes
// are out of scope (§4 Non-goals) and surface as an error rather than
// dspi.py's NotImplementedError.
func (c *Controller) updateMode() error {
	var mode Mode
	switch {
	case c.mcr.Bit("mdis"):
		mode = ModeDisable
	case c.mcr.Get("dconf") == 0b00:
		if c.mcr.Bit("mstr") {
			mode = ModeSPIController
		} else {
			mode = ModeSPIPeripheral
		}
	case c.mcr.Get("dconf") == 0b01:
		mode = ModeDSIController
		if !c.mcr.Bit("mstr") {
			mode = ModeDSIPeripheral
		}
	case c.mcr.Get("dconf") == 0b10:
		mode = ModeCSIController
		if !c.mcr.Bit("mstr") {
			mode = ModeCSIPeripheral
		}
	default:
		mode = ModeDisable
	}
	if mode != c.mode {
		c.log.Field(c.name).Debugf("changing to mode %s", mode)
		c.mode = mode
	}
	if mode == ModeDSIController || mode == ModeDSIPeripheral {
		return fmt.Errorf("dspi: %s DSI mode not supported", c.name)
	}
	if mode == ModeCSIController || mode == ModeCSIPeripheral {
		return fmt.Errorf("dspi: %s CSI mode not supported", c.name)
	}

	wasRunning := c.sr.Bit("txrxs")
	running := mode != ModeDisable && !c.mcr.Bit("halt")
	c.sr.Override("txrxs", boolBit(running))
	if running && !wasRunning {
		c.drainTx()
	}
	return nil
}

func boolBit(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

// drainTx pulls frames from the Tx FIFO until it is empty or an EOQ frame
// transmits, per §4.F "the peripheral drains its Tx FIFO ... whichever
// comes first."
func (c *Controller) drainTx() {
	for {
		data, ok := c.popTx()
		if !ok {
			return
		}
		if c.normalTx(data) {
			return
		}
	}
}

func (c *Controller) txFifoFull() bool {
	max := fifoDepth
	if c.mcr.Bit("dis_txf") {
		max = 1
	}
	return len(c.txFifo) >= max
}

// pushTx handles a PUSHR write: transmit immediately if Tx/Rx is already
// running, otherwise stage into the Tx FIFO, per §4.F.
func (c *Controller) pushTx(data frame) {
	if c.sr.Bit("txrxs") {
		c.normalTx(data)
		c.event("tfff", true)
		return
	}
	max := fifoDepth
	if c.mcr.Bit("dis_txf") {
		max = 1
	}
	if len(c.txFifo) >= max {
		return
	}
	c.txFifo = append(c.txFifo, data)
	c.sr.Override("txctr", uint32(len(c.txFifo)))
	c.sr.Override("txnxtptr", uint32(maxInt(len(c.txFifo)-1, 0)))
	c.event("tfff", len(c.txFifo) != max)
}

func (c *Controller) popTx() (frame, bool) {
	if len(c.txFifo) == 0 {
		return frame{}, false
	}
	data := c.txFifo[0]
	c.txFifo = c.txFifo[1:]
	c.sr.Override("txctr", uint32(len(c.txFifo)))
	c.sr.Override("txnxtptr", uint32(maxInt(len(c.txFifo)-1, 0)))
	c.event("tfff", true)
	return data, true
}

// normalTx decodes one PUSHR frame (CONT/CTAS/EOQ/CTCNT/PCS/DATA),
// dispatches it through the SPI bus façade, and updates TCR/SR, per §4.F.
// It returns whether the frame carried EOQ.
func (c *Controller) normalTx(data frame) bool {
	word := beWord(data)
	ctas := (word >> 28) & 0x7
	eoq := (word>>27)&1 == 1
	ctcnt := (word>>26)&1 == 1
	pcs := (word >> 16) & 0x3F
	ctar := c.ctar[ctas]
	bits := ctar.Get("fmsz") + 1
	mask := uint32(1)
	if bits < 32 {
		mask = (uint32(1) << bits) - 1
	} else {
		mask = 0xFFFFFFFF
	}
	value := word & mask

	if target, ok := c.cs[pcs]; ok {
		response := target.SPITransfer(value, int(bits))
		c.pushRx(wordBE(response))
	}

	count := c.tcr.Get("spi_tcnt")
	if ctcnt {
		count = 0
	}
	c.tcr.Override("spi_tcnt", (count+1)&0xFFFF)

	c.event("tcf", true)
	c.event("eoqf", eoq)
	if eoq {
		c.sr.Override("txrxs", 0)
		c.mcr.Override("halt", 1)
	}
	return eoq
}

// pushRx appends a received frame to the Rx FIFO, per §4.F "Rx FIFO (4
// visible + 1 shift slot)": rfdf is raised on success; a sixth arrival
// raises rfof and is dropped unless MCR.rooe permits overwriting the
// shift slot.
func (c *Controller) pushRx(data frame) {
	if len(c.rxFifo) < rxShiftCap {
		c.rxFifo = append(c.rxFifo, data)
		if len(c.rxFifo) <= fifoDepth {
			c.sr.Override("rxctr", uint32(len(c.rxFifo)))
		}
		c.event("rfdf", true)
		return
	}
	c.event("rfof", true)
	if c.mcr.Bit("rooe") {
		c.rxFifo[rxShiftCap-1] = data
	}
}

// popRx pops the oldest Rx frame, returning the filler frame when empty.
func (c *Controller) popRx() frame {
	if len(c.rxFifo) == 0 {
		return c.poprEmpty
	}
	data := c.rxFifo[0]
	c.rxFifo = c.rxFifo[1:]
	if len(c.rxFifo) < fifoDepth {
		c.sr.Override("rxctr", uint32(len(c.rxFifo)))
	} else {
		c.sr.Override("rxctr", uint32(fifoDepth))
	}
	c.event("rfdf", len(c.rxFifo) != 0)
	return data
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
