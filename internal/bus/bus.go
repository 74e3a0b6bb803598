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

// Package bus implements the address-routed MMIO bus: region lookup,
// endian-aware read/write, supervisor gating, and bus-error reporting.
// Regions vary wildly in size (16 KiB shadow flash up to 4 MiB main flash),
// so lookup walks a sorted interval list by binary search rather than a
// fixed-size slot table.
package bus

import (
	"fmt"
	"sort"

	"github.com/cm5674/emu/internal/bitops"
)

// Perm is a bitmask of permissions a region grants.
type Perm uint8

const (
	PermRead Perm = 1 << iota
	PermWrite
	PermExec
)

func (p Perm) Has(want Perm) bool { return p&want == want }

// Handler services reads and writes that land inside a Region. offset is
// the byte offset from the region's base; size is 1, 2, or 4.
type Handler interface {
	MMIORead(addr uint32, offset uint32, size int) ([]byte, error)
	MMIOWrite(addr uint32, offset uint32, data []byte) error
}

// Region is a non-overlapping range of the 32-bit physical address space.
type Region struct {
	Name           string
	Base           uint32
	Size           uint32
	Perm           Perm
	SupervisorOnly bool
	Handler        Handler
}

// end returns the exclusive upper bound of the region.
func (r *Region) end() uint64 { return uint64(r.Base) + uint64(r.Size) }

// ErrorKind classifies a bus failure for the executor to translate into an
// architectural exception (§4.A / §7).
type ErrorKind int

const (
	ErrUnmapped ErrorKind = iota
	ErrPermission
	ErrSupervisor
	ErrAlignment
)

// BusError is raised, never silently swallowed, per §4.A "Failure
// semantics." The executor (a collaborator) maps this to a Machine-Check
// bus error or an Alignment exception.
type BusError struct {
	Kind           ErrorKind
	VirtualAddress uint32
	ProgramCounter uint32
	AttemptedData  []byte // writes only
	BytesWritten   int    // always 0 for a write BusError
}

func (e *BusError) Error() string {
	switch e.Kind {
	case ErrAlignment:
		return fmt.Sprintf("bus: alignment fault at 0x%08X (pc=0x%08X)", e.VirtualAddress, e.ProgramCounter)
	case ErrSupervisor:
		return fmt.Sprintf("bus: supervisor-only region accessed from user mode at 0x%08X (pc=0x%08X)", e.VirtualAddress, e.ProgramCounter)
	case ErrPermission:
		return fmt.Sprintf("bus: permission violation at 0x%08X (pc=0x%08X)", e.VirtualAddress, e.ProgramCounter)
	default:
		return fmt.Sprintf("bus: unmapped access at 0x%08X (pc=0x%08X)", e.VirtualAddress, e.ProgramCounter)
	}
}

// Bus routes MMIO accesses to the region whose interval contains the
// address. Regions are kept sorted by Base and looked up by binary search
// (O(log N)), matching the §4.A dispatch contract.
type Bus struct {
	regions []*Region
	mode    bitops.Mode
	// pc is the program counter the executor most recently reported via
	// SetProgramCounter; it is only used to decorate BusError with context,
	// never to drive control flow.
	pc uint32
}

// New creates an empty Bus in Supervisor mode (the reset mode of the core).
func New() *Bus {
	return &Bus{mode: bitops.Supervisor}
}

// ModePtr exposes the mode cell so a SupervisorOverride can bind to it.
func (b *Bus) ModePtr() *bitops.Mode { return &b.mode }

// SetMode sets the access mode derived from the core's MSR.
func (b *Bus) SetMode(m bitops.Mode) { b.mode = m }

// Mode returns the current access mode.
func (b *Bus) Mode() bitops.Mode { return b.mode }

// SetProgramCounter records the faulting instruction's PC for BusError
// decoration. The executor calls this before issuing a request.
func (b *Bus) SetProgramCounter(pc uint32) { b.pc = pc }

// Map registers a new region. Regions must not overlap; Map panics on
// overlap since that is a configuration bug discovered at emulator init,
// not a guest-visible runtime condition.
func (b *Bus) Map(r *Region) {
	newEnd := r.end()
	for _, existing := range b.regions {
		if uint64(r.Base) < existing.end() && uint64(existing.Base) < newEnd {
			panic(fmt.Sprintf("bus: region %s [0x%08X,0x%08X) overlaps %s [0x%08X,0x%08X)",
				r.Name, r.Base, newEnd, existing.Name, existing.Base, existing.end()))
		}
	}
	b.regions = append(b.regions, r)
	sort.Slice(b.regions, func(i, j int) bool { return b.regions[i].Base < b.regions[j].Base })
}

// lookup finds the region containing addr via binary search over the
// sorted interval list, or nil on a miss.
func (b *Bus) lookup(addr uint32) *Region {
	i := sort.Search(len(b.regions), func(i int) bool {
		return b.regions[i].end() > uint64(addr)
	})
	if i == len(b.regions) {
		return nil
	}
	r := b.regions[i]
	if uint64(addr) < uint64(r.Base) {
		return nil
	}
	return r
}

func alignedOK(addr uint32, size int) bool {
	switch size {
	case 1:
		return true
	case 2:
		return addr&1 == 0
	case 4:
		return addr&3 == 0
	default:
		return false
	}
}

// Read performs a naturally-aligned load of size bytes (1, 2, or 4).
func (b *Bus) Read(addr uint32, size int) ([]byte, error) {
	if !alignedOK(addr, size) {
		return nil, &BusError{Kind: ErrAlignment, VirtualAddress: addr, ProgramCounter: b.pc}
	}
	r := b.lookup(addr)
	if r == nil {
		return nil, &BusError{Kind: ErrUnmapped, VirtualAddress: addr, ProgramCounter: b.pc}
	}
	if r.SupervisorOnly && b.mode == bitops.User {
		return nil, &BusError{Kind: ErrSupervisor, VirtualAddress: addr, ProgramCounter: b.pc}
	}
	if !r.Perm.Has(PermRead) {
		return nil, &BusError{Kind: ErrPermission, VirtualAddress: addr, ProgramCounter: b.pc}
	}
	offset := addr - r.Base
	data, err := r.Handler.MMIORead(addr, offset, size)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Write performs a naturally-aligned store of data (len 1, 2, or 4).
func (b *Bus) Write(addr uint32, data []byte) error {
	size := len(data)
	if !alignedOK(addr, size) {
		return &BusError{Kind: ErrAlignment, VirtualAddress: addr, ProgramCounter: b.pc, AttemptedData: data}
	}
	r := b.lookup(addr)
	if r == nil {
		return &BusError{Kind: ErrUnmapped, VirtualAddress: addr, ProgramCounter: b.pc, AttemptedData: data}
	}
	if r.SupervisorOnly && b.mode == bitops.User {
		return &BusError{Kind: ErrSupervisor, VirtualAddress: addr, ProgramCounter: b.pc, AttemptedData: data}
	}
	if !r.Perm.Has(PermWrite) {
		return &BusError{Kind: ErrPermission, VirtualAddress: addr, ProgramCounter: b.pc, AttemptedData: data}
	}
	offset := addr - r.Base
	return r.Handler.MMIOWrite(addr, offset, data)
}

// ReadUint32 is a convenience helper for collaborators that want a decoded
// big-endian word instead of raw bytes.
func (b *Bus) ReadUint32(addr uint32) (uint32, error) {
	data, err := b.Read(addr, 4)
	if err != nil {
		return 0, err
	}
	return bitops.BEUint32(data), nil
}

// WriteUint32 is the write-side counterpart of ReadUint32.
func (b *Bus) WriteUint32(addr uint32, v uint32) error {
	var buf [4]byte
	bitops.PutBEUint32(buf[:], v)
	return b.Write(addr, buf[:])
}
