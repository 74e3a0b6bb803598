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

// Package emulator wires the bus, peripherals, interrupt controller, clock,
// and boot orchestrator into a single non-owning arena, per §9 "Cyclic
// ownership": Runtime constructs every peripheral once and hands out
// narrow (bus, sink) references at call sites rather than giving
// peripherals a pointer back to itself.
package emulator

import (
	"fmt"
	"os"

	"github.com/cm5674/emu/internal/bam"
	"github.com/cm5674/emu/internal/bus"
	"github.com/cm5674/emu/internal/clock"
	"github.com/cm5674/emu/internal/dspi"
	"github.com/cm5674/emu/internal/flash"
	"github.com/cm5674/emu/internal/intc"
	"github.com/cm5674/emu/internal/peripheral"
	"github.com/cm5674/emu/internal/sysconfig"
	"github.com/cm5674/emu/internal/tracelog"
)

// Physical base addresses from §6 "Peripheral memory map (selected)".
const (
	baseFlashMain    = 0x00000000
	baseFlashShadowB = 0x00EFC000
	baseFlashShadowA = 0x00FFC000
	baseSRAM         = 0x40000000

	basePBridgeA  = 0xC3F00000
	baseFMPLL     = 0xC3F80000
	baseFlashACfg = 0xC3F88000
	baseFlashBCfg = 0xC3F8C000
	baseSIU       = 0xC3F90000
	baseEMIOS200  = 0xC3FA0000
	baseETPU2     = 0xC3FC0000
	basePIT       = 0xC3FF0000

	basePBridgeB = 0xFFF00000
	baseSWT      = 0xFFF38000
	baseECSM     = 0xFFF40000
	baseINTC     = 0xFFF48000
	baseEQADCA   = 0xFFF80000
	baseEQADCB   = 0xFFF84000
	baseDSPIA    = 0xFFF90000
	baseDSPIB    = 0xFFF94000
	baseDSPIC    = 0xFFF98000
	baseDSPID    = 0xFFF9C000
	baseESCIA    = 0xFFFB0000
	baseESCIB    = 0xFFFB4000
	baseESCIC    = 0xFFFB8000
	baseFlexCANA = 0xFFFC0000
	baseFlexCANB = 0xFFFC4000
	baseFlexCANC = 0xFFFC8000
	baseFlexCAND = 0xFFFCC000
	baseSIM      = 0xFFFEC000
	baseBAM      = 0xFFFFC000

	dspiStride    = 0x4000
	stubWindow    = 0x4000
	sramDefault   = 0x40000 // 256 KiB default SRAM, sized from config
	sramStandby   = 0x4000  // standby-preserved prefix, per §4.G
	configWindow  = 0x4000 // each flash array's config-register window
)

// DSPI interrupt source IDs, per §6 "Interrupt source IDs (DSPI example)":
// for device base b, tfuf/rfof share b+0, eoqf=b+1, tfff=b+2, tcf=b+3,
// rfdf=b+4.
const (
	srcBaseDSPIA = 275
	srcBaseDSPIB = 131
	srcBaseDSPIC = 136
	srcBaseDSPID = 141
)

// Executor is the collaborator interface a real instruction decoder/core
// loop would implement against Runtime; no decoder is implemented here,
// per spec §1/§9 Non-goals.
type Executor interface {
	// Step executes exactly one instruction, committing all of its
	// MMIO-visible effects (§5 "Ordering guarantees") before returning.
	Step() error
}

// BusRequester is the narrow view of the bus an Executor needs: sized
// reads/writes at the current privilege mode, with typed bus errors
// (§4.A) surfacing instead of panics.
type BusRequester interface {
	Read(addr uint32, size int) ([]byte, error)
	Write(addr uint32, data []byte) error
}

// Runtime is the wired arena: one bus, the flash and DSPI peripherals,
// the interrupt controller, the timebase, and the boot orchestrator.
type Runtime struct {
	Bus   *bus.Bus
	Intc  *intc.Controller
	Clock *clock.Clock
	Flash *flash.Controller
	BAM   *bam.Orchestrator

	// DSPI is stored as peripheral.Base, not *dspi.Controller, so that
	// construction and reset go through the §4.C capability set rather
	// than a concrete type the bus-mapping step happens to know about.
	DSPI map[string]peripheral.Base

	log *tracelog.Tracer
}

// dspiEvents is the per-device event->interrupt table supplementing
// spec.md's DSPI example, derived mechanically from the base source IDs
// above per §6's "tfuf=base+0, rfof=base+0 (shared), eoqf=+1, tfff=+2,
// tcf=+3, rfdf=+4" rule.
func dspiEvents(base int) dspi.EventTable {
	return dspi.EventTable{
		"tfuf": {SourceID: base + 0, Vector: uint32(base + 0)},
		"rfof": {SourceID: base + 0, Vector: uint32(base + 0)},
		"eoqf": {SourceID: base + 1, Vector: uint32(base + 1)},
		"tfff": {SourceID: base + 2, Vector: uint32(base + 2)},
		"tcf":  {SourceID: base + 3, Vector: uint32(base + 3)},
		"rfdf": {SourceID: base + 4, Vector: uint32(base + 4)},
	}
}

// stub is a bus.Handler for peripheral windows named in §6's memory map
// but whose internals are out of scope (FMPLL, SIU, eMIOS200, eTPU2, PIT,
// SWT, ECSM, the INTC register window itself, eQADC, eSCI, FlexCAN, SIM),
// per §3 "esci.py / sim.py placeholders": reads return zero, writes are
// accepted and logged once at DEBUG rather than raising a false unmapped
// bus error.
type stub struct {
	name string
	log  *tracelog.Tracer
	seen bool
}

func (s *stub) MMIORead(addr, offset uint32, size int) ([]byte, error) {
	s.note(addr)
	return make([]byte, size), nil
}

func (s *stub) MMIOWrite(addr, offset uint32, data []byte) error {
	s.note(addr)
	return nil
}

func (s *stub) note(addr uint32) {
	if s.seen {
		return
	}
	s.seen = true
	s.log.Field(s.name).Debugf("unimplemented peripheral touched at 0x%08X", addr)
}

// Config parameterizes Runtime construction.
type Config struct {
	SRAMSize    uint32 // 0 selects sramDefault
	StandbySize uint32 // 0 selects sramStandby
	Log         *tracelog.Tracer
}

// New wires a full Runtime: bus regions for flash, SRAM, the four DSPI
// controllers, and logged stubs for the other named peripheral windows of
// §6's memory map. The PBRIDGE_A/PBRIDGE_B bridge windows and the BAM
// window are not mapped.
func New(cfg Config) *Runtime {
	log := cfg.Log
	if log == nil {
		log = tracelog.New(os.Stderr)
	}
	sramSize := cfg.SRAMSize
	if sramSize == 0 {
		sramSize = sramDefault
	}
	standby := cfg.StandbySize
	if standby == 0 {
		standby = sramStandby
	}

	r := &Runtime{
		Bus:   bus.New(),
		Intc:  intc.New(),
		Clock: clock.New(),
		Flash: flash.New(log),
		BAM:   bam.New(baseSRAM, sramSize, standby),
		DSPI:  make(map[string]peripheral.Base),
		log:   log,
	}

	r.mapFlash()
	r.mapSRAM()
	r.mapDSPI()
	r.mapStubs()

	return r
}

func (r *Runtime) mapFlash() {
	r.Bus.Map(&bus.Region{Name: "flash-main", Base: baseFlashMain, Size: mainFlashSize, Perm: bus.PermRead | bus.PermWrite | bus.PermExec, Handler: r.Flash.MainHandler()})
	r.Bus.Map(&bus.Region{Name: "flash-shadow-b", Base: baseFlashShadowB, Size: shadowFlashSize, Perm: bus.PermRead | bus.PermWrite, SupervisorOnly: true, Handler: r.Flash.ShadowBHandler()})
	r.Bus.Map(&bus.Region{Name: "flash-shadow-a", Base: baseFlashShadowA, Size: shadowFlashSize, Perm: bus.PermRead | bus.PermWrite, SupervisorOnly: true, Handler: r.Flash.ShadowAHandler()})
	r.Bus.Map(&bus.Region{Name: "flash-a-config", Base: baseFlashACfg, Size: configWindow, Perm: bus.PermRead | bus.PermWrite, SupervisorOnly: true, Handler: r.Flash.A})
	r.Bus.Map(&bus.Region{Name: "flash-b-config", Base: baseFlashBCfg, Size: configWindow, Perm: bus.PermRead | bus.PermWrite, SupervisorOnly: true, Handler: r.Flash.B})
}

func (r *Runtime) mapSRAM() {
	r.Bus.Map(&bus.Region{
		Name: "sram", Base: baseSRAM, Size: uint32(len(r.BAM.RAM())),
		Perm:    bus.PermRead | bus.PermWrite | bus.PermExec,
		Handler: ramHandler{ram: r.BAM.RAM()},
	})
}

func (r *Runtime) mapDSPI() {
	devices := []struct {
		name string
		base uint32
		src  int
	}{
		{"DSPI_A", baseDSPIA, srcBaseDSPIA},
		{"DSPI_B", baseDSPIB, srcBaseDSPIB},
		{"DSPI_C", baseDSPIC, srcBaseDSPIC},
		{"DSPI_D", baseDSPID, srcBaseDSPID},
	}
	for _, d := range devices {
		ctl := dspi.New(d.name, r.Intc, dspiEvents(d.src), r.log)
		r.DSPI[d.name] = ctl
		r.Bus.Map(&bus.Region{
			Name: d.name, Base: d.base, Size: dspiStride,
			Perm: bus.PermRead | bus.PermWrite, SupervisorOnly: true,
			Handler: ctl,
		})
	}
}

// mapStubs covers the other peripheral windows in §6's memory map that
// this module does not model, per §3 "esci.py / sim.py placeholders."
// PBRIDGE_A, PBRIDGE_B and BAM get no stub and stay unmapped.
func (r *Runtime) mapStubs() {
	type window struct {
		name string
		base uint32
		size uint32
	}
	windows := []window{
		{"FMPLL", baseFMPLL, stubWindow},
		{"SIU", baseSIU, stubWindow},
		{"eMIOS200", baseEMIOS200, stubWindow},
		{"eTPU2", baseETPU2, stubWindow},
		{"PIT", basePIT, stubWindow},
		{"SWT", baseSWT, stubWindow},
		{"ECSM", baseECSM, stubWindow},
		{"INTC", baseINTC, stubWindow},
		{"eQADC_A", baseEQADCA, stubWindow},
		{"eQADC_B", baseEQADCB, stubWindow},
		{"eSCI_A", baseESCIA, stubWindow},
		{"eSCI_B", baseESCIB, stubWindow},
		{"eSCI_C", baseESCIC, stubWindow},
		{"FlexCAN_A", baseFlexCANA, stubWindow},
		{"FlexCAN_B", baseFlexCANB, stubWindow},
		{"FlexCAN_C", baseFlexCANC, stubWindow},
		{"FlexCAN_D", baseFlexCAND, stubWindow},
		{"SIM", baseSIM, stubWindow},
	}
	for _, w := range windows {
		r.Bus.Map(&bus.Region{
			Name: w.name, Base: w.base, Size: w.size,
			Perm: bus.PermRead | bus.PermWrite, SupervisorOnly: true,
			Handler: &stub{name: w.name, log: r.log},
		})
	}
}

const (
	mainFlashSize   = 0x400000
	shadowFlashSize = 0x4000
)

// ramHandler is the bus.Handler for the SRAM window: a direct byte-slice
// view, no register semantics.
type ramHandler struct{ ram []byte }

func (h ramHandler) MMIORead(addr, offset uint32, size int) ([]byte, error) {
	if int(offset)+size > len(h.ram) {
		return nil, &bus.BusError{Kind: bus.ErrUnmapped, VirtualAddress: addr}
	}
	return append([]byte(nil), h.ram[offset:offset+uint32(size)]...), nil
}

func (h ramHandler) MMIOWrite(addr, offset uint32, data []byte) error {
	if int(offset)+len(data) > len(h.ram) {
		return &bus.BusError{Kind: bus.ErrUnmapped, VirtualAddress: addr, AttemptedData: data}
	}
	copy(h.ram[offset:], data)
	return nil
}

// Boot loads firmware from firmwarePath (if non-empty), performs
// LoadComplete backup handling against backupPath (empty disables backup
// persistence, per §6 "--no-backup"), and runs the boot orchestrator,
// returning the initial program counter.
func (r *Runtime) Boot(firmwarePath, backupPath string, cold bool) (uint32, error) {
	if firmwarePath != "" {
		fw, err := sysconfig.LoadFirmware(firmwarePath)
		if err != nil {
			r.log.Critical("boot", "%v; using erased flash defaults", err)
		} else {
			r.Flash.LoadMain(fw.Main)
			if fw.ShadowB != nil {
				r.Flash.LoadShadow(true, fw.ShadowB)
			}
			if fw.ShadowA != nil {
				r.Flash.LoadShadow(false, fw.ShadowA)
			}
		}
	}
	if err := r.Flash.LoadComplete(backupPath); err != nil {
		return 0, fmt.Errorf("emulator: flash backup: %w", err)
	}

	r.Clock.Reset()
	r.Intc.Reset()
	r.Flash.Reset()
	for _, d := range r.DSPI {
		d.Reset()
	}
	return r.BAM.Boot(r.Bus, cold)
}

// Close releases Runtime-owned resources (the flash backup file).
func (r *Runtime) Close() error {
	return r.Flash.Close()
}
