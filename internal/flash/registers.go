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

// Register layouts for the flash controller of §4.E: MCR and its twelve
// companion registers, built with internal/regfield. Field widths, kinds,
// and reset values are grounded directly on
// original_source/cm2350/peripherals/flash.py's FLASH_MCR/FLASH_LMLR/
// FLASH_HLR/FLASH_SLMLR/FLASH_LMSR/FLASH_HSR/FLASH_AR/FLASH_BIUCR/
// FLASH_BIUAPR/FLASH_BIUCR2/FLASH_UT0-2 classes (each field there is a
// v_const/v_bits/v_w1c of an exact width; we reproduce the same bit
// layout as regfield.Field{Width, Kind, Reset}).
package flash

import "github.com/cm5674/emu/internal/regfield"

// newMCR builds the Memory Configuration Register for one array. las/mas
// distinguish array A (las=0b100, mas=0) from array B (las=0, mas=1), per
// flash.py's FlashArray.__init__.
func newMCR(las, mas uint32) *regfield.Register {
	return regfield.New("MCR", []regfield.Field{
		{Name: "_pad0", Width: 5, Kind: regfield.Reserved},
		{Name: "size", Width: 3, Kind: regfield.RO, Reset: 0b101},
		{Name: "_pad1", Width: 1, Kind: regfield.Reserved},
		{Name: "las", Width: 3, Kind: regfield.RO, Reset: las},
		{Name: "_pad2", Width: 3, Kind: regfield.Reserved},
		{Name: "mas", Width: 1, Kind: regfield.RO, Reset: mas},
		{Name: "eer", Width: 1, Kind: regfield.W1C},
		{Name: "rwe", Width: 1, Kind: regfield.W1C},
		{Name: "sbc", Width: 1, Kind: regfield.W1C},
		{Name: "_pad3", Width: 1, Kind: regfield.Reserved},
		{Name: "peas", Width: 1, Kind: regfield.RO},
		{Name: "done", Width: 1, Kind: regfield.RO, Reset: 1},
		{Name: "peg", Width: 1, Kind: regfield.RO, Reset: 1},
		{Name: "_pad4", Width: 4, Kind: regfield.Reserved},
		{Name: "pgm", Width: 1, Kind: regfield.RW},
		{Name: "psus", Width: 1, Kind: regfield.RW},
		{Name: "ers", Width: 1, Kind: regfield.RW},
		{Name: "esus", Width: 1, Kind: regfield.RW},
		{Name: "ehv", Width: 1, Kind: regfield.RW},
	})
}

// newLMLR builds the Low/Mid Lock Register. lme only ever moves through
// Override (the 0xA1A11111 unlock word), never through Parse, so it is
// modeled as RO at the regfield level.
func newLMLR() *regfield.Register {
	return regfield.New("LMLR", []regfield.Field{
		{Name: "lme", Width: 1, Kind: regfield.RO},
		{Name: "_pad0", Width: 10, Kind: regfield.Reserved},
		{Name: "slock", Width: 1, Kind: regfield.RW},
		{Name: "_pad1", Width: 2, Kind: regfield.Reserved},
		{Name: "mlock", Width: 2, Kind: regfield.RW},
		{Name: "_pad2", Width: 6, Kind: regfield.Reserved},
		{Name: "llock", Width: 10, Kind: regfield.RW},
	})
}

func newHLR() *regfield.Register {
	return regfield.New("HLR", []regfield.Field{
		{Name: "hbe", Width: 1, Kind: regfield.RO},
		{Name: "_pad0", Width: 21, Kind: regfield.Reserved},
		{Name: "hlock", Width: 10, Kind: regfield.RW},
	})
}

func newSLMLR() *regfield.Register {
	return regfield.New("SLMLR", []regfield.Field{
		{Name: "sle", Width: 1, Kind: regfield.RO},
		{Name: "_pad0", Width: 10, Kind: regfield.Reserved},
		{Name: "sslock", Width: 1, Kind: regfield.RW},
		{Name: "_pad1", Width: 2, Kind: regfield.Reserved},
		{Name: "smlock", Width: 2, Kind: regfield.RW},
		{Name: "_pad2", Width: 6, Kind: regfield.Reserved},
		{Name: "sllock", Width: 10, Kind: regfield.RW},
	})
}

func newLMSR() *regfield.Register {
	return regfield.New("LMSR", []regfield.Field{
		{Name: "_pad0", Width: 14, Kind: regfield.Reserved},
		{Name: "msel", Width: 2, Kind: regfield.RW},
		{Name: "_pad1", Width: 6, Kind: regfield.Reserved},
		{Name: "lsel", Width: 10, Kind: regfield.RW},
	})
}

func newHSR() *regfield.Register {
	return regfield.New("HSR", []regfield.Field{
		{Name: "_pad0", Width: 26, Kind: regfield.Reserved},
		{Name: "hsel", Width: 6, Kind: regfield.RW},
	})
}

func newAR() *regfield.Register {
	return regfield.New("AR", []regfield.Field{
		{Name: "sad", Width: 1, Kind: regfield.RO},
		{Name: "_pad0", Width: 13, Kind: regfield.Reserved},
		{Name: "addr", Width: 15, Kind: regfield.RW},
		{Name: "_pad1", Width: 3, Kind: regfield.Reserved},
	})
}

// newBIUCR, newBIUAPR and newBIUCR2 are inert bus-interface configuration
// registers (§3 Supplemented Features): nothing reads them to change
// controller behavior, but guest firmware programs and reads them back, so
// they must hold whatever was last written.
func newBIUCR() *regfield.Register {
	return regfield.New("BIUCR", []regfield.Field{
		{Name: "_pad0", Width: 7, Kind: regfield.Reserved},
		{Name: "m8pfe", Width: 1, Kind: regfield.RW},
		{Name: "_pad1", Width: 1, Kind: regfield.Reserved},
		{Name: "m6pfe", Width: 1, Kind: regfield.RW},
		{Name: "m5pfe", Width: 1, Kind: regfield.RW},
		{Name: "m4pfe", Width: 1, Kind: regfield.RW},
		{Name: "_pad2", Width: 3, Kind: regfield.Reserved},
		{Name: "m0pfe", Width: 1, Kind: regfield.RW},
		{Name: "apc", Width: 3, Kind: regfield.RW, Reset: 0b111},
		{Name: "wwsc", Width: 2, Kind: regfield.RW, Reset: 0b11},
		{Name: "rwsc", Width: 3, Kind: regfield.RW, Reset: 0b111},
		{Name: "_pad3", Width: 1, Kind: regfield.Reserved},
		{Name: "dpfen", Width: 1, Kind: regfield.RW},
		{Name: "_pad4", Width: 1, Kind: regfield.Reserved},
		{Name: "ifpfen", Width: 1, Kind: regfield.RW},
		{Name: "_pad5", Width: 1, Kind: regfield.Reserved},
		{Name: "pflim", Width: 2, Kind: regfield.RW},
		{Name: "bfen", Width: 1, Kind: regfield.RW},
	})
}

func newBIUAPR() *regfield.Register {
	return regfield.New("BIUAPR", []regfield.Field{
		{Name: "_pad0", Width: 14, Kind: regfield.RW, Reset: 0x3FFF},
		{Name: "m8ap", Width: 2, Kind: regfield.RW, Reset: 0b11},
		{Name: "_pad1", Width: 2, Kind: regfield.RW, Reset: 0b11},
		{Name: "m6ap", Width: 2, Kind: regfield.RW, Reset: 0b11},
		{Name: "m5ap", Width: 2, Kind: regfield.RW, Reset: 0b11},
		{Name: "m4ap", Width: 2, Kind: regfield.RW, Reset: 0b11},
		{Name: "_pad2", Width: 6, Kind: regfield.RW, Reset: 0x3F},
		{Name: "m0ap", Width: 2, Kind: regfield.RW, Reset: 0b11},
	})
}

func newBIUCR2() *regfield.Register {
	return regfield.New("BIUCR2", []regfield.Field{
		{Name: "lbcfg", Width: 2, Kind: regfield.RW},
		{Name: "_pad0", Width: 30, Kind: regfield.Reserved},
	})
}

func newUT0() *regfield.Register {
	return regfield.New("UT0", []regfield.Field{
		{Name: "ute", Width: 1, Kind: regfield.RW},
		{Name: "scbe", Width: 1, Kind: regfield.RW},
		{Name: "_pad0", Width: 6, Kind: regfield.Reserved},
		{Name: "dsi", Width: 8, Kind: regfield.RW},
		{Name: "_pad1", Width: 8, Kind: regfield.Reserved},
		{Name: "ea", Width: 1, Kind: regfield.RO, Reset: 1},
		{Name: "_pad2", Width: 1, Kind: regfield.Reserved},
		{Name: "mre", Width: 1, Kind: regfield.RW},
		{Name: "mrv", Width: 1, Kind: regfield.RW},
		{Name: "eie", Width: 1, Kind: regfield.RW},
		{Name: "ais", Width: 1, Kind: regfield.RW},
		{Name: "aie", Width: 1, Kind: regfield.RW},
		{Name: "aid", Width: 1, Kind: regfield.RO, Reset: 1},
	})
}

func newUT1or2(name string) *regfield.Register {
	return regfield.New(name, []regfield.Field{
		{Name: "dai", Width: 32, Kind: regfield.RW},
	})
}

// Word-index layout of the per-array configuration window, offset 0x00-0x44.
// Indices not present here read/write as reserved and raise a bus error
// per §5 Open Questions decision 2.
const (
	idxMCR    = 0x0000 / 4
	idxLMLR   = 0x0004 / 4
	idxHLR    = 0x0008 / 4
	idxSLMLR  = 0x000C / 4
	idxLMSR   = 0x0010 / 4
	idxHSR    = 0x0014 / 4
	idxAR     = 0x0018 / 4
	idxBIUCR  = 0x001C / 4
	idxBIUAPR = 0x0020 / 4
	idxBIUCR2 = 0x0024 / 4
	idxUT0    = 0x003C / 4
	idxUT1    = 0x0040 / 4
	idxUT2    = 0x0044 / 4
)
