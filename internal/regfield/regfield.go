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

// Package regfield implements the declarative bitfield kit peripherals use
// to describe 32-bit, big-endian registers without hand-written per-bit
// masking code. Fields are declared MSB-first as a table instead of being
// shifted and masked by hand at each call site, in the spirit of the
// field-packing helpers seen in the retrieval pack's bitfield package and
// tamago's reg/bits packages.
package regfield

import "fmt"

// Kind classifies how a field behaves when the owning register is written
// by the bus (via Parse). Kind never affects direct field access via Get/
// Override.
type Kind int

const (
	// RW fields take the incoming bits verbatim.
	RW Kind = iota
	// RO fields ignore incoming bits; only Override or internal state
	// machines may change them.
	RO
	// Reserved fields are constant and read back a fixed value.
	Reserved
	// W1C fields clear only the bits where the incoming word has a 1;
	// a written 0 leaves the corresponding bit unchanged.
	W1C
)

// Field describes one bitfield of a 32-bit register, ordered MSB-first to
// match the reference manual's bit numbering (bit 0 is the field closest to
// the register's bit 31 boundary in the declaration order; Offset below is
// computed from declaration order and Width, not supplied by hand).
type Field struct {
	Name    string
	Width   uint
	Kind    Kind
	Reset   uint32 // reset value, pre-shifted into field-local bits
	mask    uint32 // field-local mask, e.g. width 3 -> 0b111
	offset  uint   // bit offset from LSB of the 32-bit word
}

// ParseHook fires after parse-rule application when the register is written
// via the bus. It never fires for Override. name identifies the field that
// triggered inspection is not passed; hooks inspect the Register directly.
type ParseHook func(r *Register)

// Register is an ordered set of Fields whose widths sum to 32, with
// optional parse hooks fired in declared order after a bus write applies
// kind rules.
type Register struct {
	Name   string
	fields []*Field
	byName map[string]*Field
	word   uint32
	hooks  []ParseHook
}

// New builds a Register from an ordered field list. Panics (a programmer
// error, not a guest-visible condition) if widths don't sum to 32 or a name
// repeats.
func New(name string, fields []Field) *Register {
	r := &Register{Name: name, byName: make(map[string]*Field, len(fields))}
	var total uint
	// Fields are declared MSB-first (bit 31 downward); offset counts from
	// the LSB, so compute it after knowing the total width.
	widths := make([]uint, len(fields))
	for i, f := range fields {
		widths[i] = f.Width
		total += f.Width
	}
	if total != 32 {
		panic(fmt.Sprintf("regfield: register %s fields sum to %d bits, want 32", name, total))
	}

	cursorFromTop := uint(0)
	for i := range fields {
		f := fields[i]
		if f.Width == 0 || f.Width > 32 {
			panic(fmt.Sprintf("regfield: register %s field %s has invalid width %d", name, f.Name, f.Width))
		}
		if _, dup := r.byName[f.Name]; dup {
			panic(fmt.Sprintf("regfield: register %s duplicate field %s", name, f.Name))
		}
		cursorFromTop += f.Width
		f.offset = 32 - cursorFromTop
		f.mask = (uint32(1)<<f.Width - 1)
		stored := f
		r.fields = append(r.fields, stored)
		r.byName[f.Name] = stored
	}
	r.Reset()
	return r
}

// OnParse registers a hook fired, in declared order, after a bus-driven
// Parse applies field kind rules.
func (r *Register) OnParse(hook ParseHook) {
	r.hooks = append(r.hooks, hook)
}

// Reset restores every field to its declared reset value.
func (r *Register) Reset() {
	var word uint32
	for _, f := range r.fields {
		word |= (f.Reset & f.mask) << f.offset
	}
	r.word = word
}

// Emit produces the current word as 4 big-endian bytes.
func (r *Register) Emit() [4]byte {
	var out [4]byte
	out[0] = byte(r.word >> 24)
	out[1] = byte(r.word >> 16)
	out[2] = byte(r.word >> 8)
	out[3] = byte(r.word)
	return out
}

// Word returns the current 32-bit value directly.
func (r *Register) Word() uint32 { return r.word }

// Parse writes a new word arriving from the bus, applying per-field kind
// rules, then fires parse hooks in declared order.
func (r *Register) Parse(word uint32) {
	var result uint32
	for _, f := range r.fields {
		cur := (r.word >> f.offset) & f.mask
		in := (word >> f.offset) & f.mask
		var next uint32
		switch f.Kind {
		case RO, Reserved:
			next = cur
		case W1C:
			next = cur &^ in
		case RW:
			next = in
		}
		result |= next << f.offset
	}
	r.word = result
	for _, hook := range r.hooks {
		hook(r)
	}
}

// ParseBytes is a convenience wrapper over Parse for 4 big-endian bytes.
func (r *Register) ParseBytes(b [4]byte) {
	r.Parse(uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]))
}

// Get returns a field's current value, unshifted.
func (r *Register) Get(name string) uint32 {
	f := r.mustField(name)
	return (r.word >> f.offset) & f.mask
}

// Override mutates a field directly, bypassing parse rules and hooks. This
// is how state machines (flash program/erase, DSPI FIFO counters) update
// read-only and W1C-backed fields.
func (r *Register) Override(name string, value uint32) {
	f := r.mustField(name)
	r.word = (r.word &^ (f.mask << f.offset)) | ((value & f.mask) << f.offset)
}

// OverrideWord replaces the entire word, bypassing parse rules and hooks.
func (r *Register) OverrideWord(word uint32) {
	r.word = word
}

// SetBit sets or clears a single-bit field by name, a common case for
// status/event bits.
func (r *Register) SetBit(name string, set bool) {
	if set {
		r.Override(name, 1)
	} else {
		r.Override(name, 0)
	}
}

// Bit returns a single-bit field's value as a bool.
func (r *Register) Bit(name string) bool {
	return r.Get(name) != 0
}

func (r *Register) mustField(name string) *Field {
	f, ok := r.byName[name]
	if !ok {
		panic(fmt.Sprintf("regfield: register %s has no field %q", r.Name, name))
	}
	return f
}
