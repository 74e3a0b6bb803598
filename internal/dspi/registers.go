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

// Register layouts for one DSPI controller, per §4.F. Widths/kinds/reset
// values are grounded on
// original_source/cm2350/peripherals/dspi.py's DSPI_x_MCR/TCR/CTAR/SR/RSER
// classes; PUSHR/POPR/TXFR/RXFR are deliberately NOT regfield registers,
// since the operation of these fields depends on live FIFO state rather
// than fixed bit positions. They're dispatched by hand in mmio.go against
// the Tx/Rx FIFO state kept in dspi.go.
package dspi

import "github.com/cm5674/emu/internal/regfield"

func newMCR() *regfield.Register {
	return regfield.New("MCR", []regfield.Field{
		{Name: "mstr", Width: 1, Kind: regfield.RW},
		{Name: "cont_scke", Width: 1, Kind: regfield.RW},
		{Name: "dconf", Width: 2, Kind: regfield.RW},
		{Name: "frz", Width: 1, Kind: regfield.RW},
		{Name: "mtfe", Width: 1, Kind: regfield.RW},
		{Name: "pcsse", Width: 1, Kind: regfield.RW},
		{Name: "rooe", Width: 1, Kind: regfield.RW},
		{Name: "_pad0", Width: 2, Kind: regfield.Reserved},
		{Name: "pcsis", Width: 6, Kind: regfield.RW},
		{Name: "doze", Width: 1, Kind: regfield.RW},
		{Name: "mdis", Width: 1, Kind: regfield.RW},
		{Name: "dis_txf", Width: 1, Kind: regfield.RW},
		{Name: "dis_rxf", Width: 1, Kind: regfield.RW},
		{Name: "clr_txf", Width: 1, Kind: regfield.RW},
		{Name: "clr_rxf", Width: 1, Kind: regfield.RW},
		{Name: "smpl_pt", Width: 2, Kind: regfield.RW},
		{Name: "_pad1", Width: 7, Kind: regfield.Reserved},
		{Name: "halt", Width: 1, Kind: regfield.RW, Reset: 1},
	})
}

func newTCR() *regfield.Register {
	return regfield.New("TCR", []regfield.Field{
		{Name: "spi_tcnt", Width: 16, Kind: regfield.RW},
		{Name: "_pad0", Width: 16, Kind: regfield.Reserved},
	})
}

func newCTAR() *regfield.Register {
	return regfield.New("CTAR", []regfield.Field{
		{Name: "dbr", Width: 1, Kind: regfield.RW},
		{Name: "fmsz", Width: 4, Kind: regfield.RW, Reset: 0xF},
		{Name: "cpol", Width: 1, Kind: regfield.RW},
		{Name: "cpha", Width: 1, Kind: regfield.RW},
		{Name: "lsbfe", Width: 1, Kind: regfield.RW},
		{Name: "pcssck", Width: 2, Kind: regfield.RW},
		{Name: "pasc", Width: 2, Kind: regfield.RW},
		{Name: "pdt", Width: 2, Kind: regfield.RW},
		{Name: "pbr", Width: 2, Kind: regfield.RW},
		{Name: "cssck", Width: 4, Kind: regfield.RW},
		{Name: "asc", Width: 4, Kind: regfield.RW},
		{Name: "dt", Width: 4, Kind: regfield.RW},
		{Name: "br", Width: 4, Kind: regfield.RW},
	})
}

func newSR() *regfield.Register {
	return regfield.New("SR", []regfield.Field{
		{Name: "tcf", Width: 1, Kind: regfield.W1C},
		{Name: "txrxs", Width: 1, Kind: regfield.RO},
		{Name: "_pad0", Width: 1, Kind: regfield.Reserved},
		{Name: "eoqf", Width: 1, Kind: regfield.W1C},
		{Name: "tfuf", Width: 1, Kind: regfield.W1C},
		{Name: "_pad1", Width: 1, Kind: regfield.Reserved},
		{Name: "tfff", Width: 1, Kind: regfield.W1C, Reset: 1},
		{Name: "_pad2", Width: 5, Kind: regfield.Reserved},
		{Name: "rfof", Width: 1, Kind: regfield.W1C},
		{Name: "_pad3", Width: 1, Kind: regfield.Reserved},
		{Name: "rfdf", Width: 1, Kind: regfield.W1C},
		{Name: "_pad4", Width: 1, Kind: regfield.Reserved},
		{Name: "txctr", Width: 4, Kind: regfield.RO},
		{Name: "txnxtptr", Width: 4, Kind: regfield.RO},
		{Name: "rxctr", Width: 4, Kind: regfield.RO},
		{Name: "popnxtptr", Width: 4, Kind: regfield.RO},
	})
}

func newRSER() *regfield.Register {
	return regfield.New("RSER", []regfield.Field{
		{Name: "tcf", Width: 1, Kind: regfield.RW},
		{Name: "_pad0", Width: 2, Kind: regfield.Reserved},
		{Name: "eoqf", Width: 1, Kind: regfield.RW},
		{Name: "tfuf", Width: 1, Kind: regfield.RW},
		{Name: "_pad1", Width: 1, Kind: regfield.Reserved},
		{Name: "tfff", Width: 1, Kind: regfield.RW},
		{Name: "tfff_dirs", Width: 1, Kind: regfield.RW},
		{Name: "_pad2", Width: 4, Kind: regfield.Reserved},
		{Name: "rfof", Width: 1, Kind: regfield.RW},
		{Name: "_pad3", Width: 1, Kind: regfield.Reserved},
		{Name: "rfdf", Width: 1, Kind: regfield.RW},
		{Name: "rfdf_dirs", Width: 1, Kind: regfield.RW},
		{Name: "_pad4", Width: 16, Kind: regfield.Reserved},
	})
}

// newWord32 builds a plain 32-bit RW word, used for the "Deserial SPI"
// configuration registers (DSICR/SDR/ASDR/COMPR/DDR/DSICR1) that this
// implementation exposes but does not act on (§4 Non-goals: selecting a
// DSI/CSI mode makes updateMode return an error).
func newWord32(name string) *regfield.Register {
	return regfield.New(name, []regfield.Field{
		{Name: "data", Width: 32, Kind: regfield.RW},
	})
}

const (
	offMCR    = 0x0000
	offTCR    = 0x0008
	offCTAR   = 0x000C // 8 consecutive 4-byte CTAR registers, 0x000C-0x002B
	offSR     = 0x002C
	offRSER   = 0x0030
	offPUSHR  = 0x0034
	offPOPR   = 0x0038
	offTXFR   = 0x003C // 4 x 4 bytes, read-only FIFO window
	offRXFR   = 0x007C
	offDSICR  = 0x00BC
	offSDR    = 0x00C0
	offASDR   = 0x00C4
	offCOMPR  = 0x00C8
	offDDR    = 0x00CC
	offDSICR1 = 0x00D0

	ctarCount  = 8
	fifoDepth  = 4 // visible Tx/Rx FIFO entries
	rxShiftCap = 5 // Rx FIFO + 1 hidden shift slot, per §4.F
)
