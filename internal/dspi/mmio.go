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

package dspi

import (
	"github.com/cm5674/emu/internal/bus"
	"github.com/cm5674/emu/internal/regfield"
)

// MMIORead/MMIOWrite implement bus.Handler for one DSPI controller's
// 16 KiB register window, dispatching PUSHR/POPR/TXFR/RXFR by hand (per
// registers.go's comment) and every other register through regfield.
func (c *Controller) MMIORead(addr, offset uint32, size int) ([]byte, error) {
	switch {
	case offset >= offPOPR && offset < offPOPR+4:
		f := c.popRx()
		return f[4-size:], nil
	case offset >= offTXFR && offset < offTXFR+fifoDepth*4:
		idx := int(offset-offTXFR) / 4
		if idx < len(c.txFifo) {
			f := c.txFifo[idx]
			return f[:], nil
		}
		return make([]byte, size), nil
	case offset >= offRXFR && offset < offRXFR+fifoDepth*4:
		idx := int(offset-offRXFR) / 4
		if idx < len(c.rxFifo) {
			f := c.rxFifo[idx]
			return f[:], nil
		}
		return make([]byte, size), nil
	}

	reg := c.regByOffset(offset)
	if reg == nil {
		return nil, &bus.BusError{Kind: bus.ErrUnmapped, VirtualAddress: addr}
	}
	full := reg.Emit()
	within := offset % 4
	return append([]byte(nil), full[within:within+uint32(size)]...), nil
}

func (c *Controller) MMIOWrite(addr, offset uint32, data []byte) error {
	if offset >= offPUSHR && offset < offPUSHR+4 {
		// §4.F "1/2/4-byte writes allowed, right-aligned, others
		// zero-padded": place the written bytes at the low end of the
		// 32-bit frame.
		var f frame
		copy(f[4-len(data):], data)
		c.pushTx(f)
		return nil
	}

	reg := c.regByOffset(offset)
	if reg == nil {
		return &bus.BusError{Kind: bus.ErrUnmapped, VirtualAddress: addr, AttemptedData: data}
	}
	full := reg.Emit()
	within := offset % 4
	copy(full[within:], data)
	reg.ParseBytes(full)
	return nil
}

func (c *Controller) regByOffset(offset uint32) *regfield.Register {
	switch {
	case offset == offMCR:
		return c.mcr
	case offset == offTCR:
		return c.tcr
	case offset >= offCTAR && offset < offCTAR+ctarCount*4:
		return c.ctar[(offset-offCTAR)/4]
	case offset == offSR:
		return c.sr
	case offset == offRSER:
		return c.rser
	case offset == offDSICR:
		return c.dsicr
	case offset == offSDR:
		return c.sdr
	case offset == offASDR:
		return c.asdr
	case offset == offCOMPR:
		return c.compr
	case offset == offDDR:
		return c.ddr
	case offset == offDSICR1:
		return c.dsicr1
	default:
		return nil
	}
}
