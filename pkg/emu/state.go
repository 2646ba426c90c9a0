// Package emu interprets the PPC32 instruction subset the generator
// emits. It exists so tests can execute emitted code and check
// architectural state instead of only pattern-matching words.
package emu

import (
	"encoding/binary"
	"fmt"
)

// Machine is the architectural state: 32 GPRs, the condition register,
// LR/CTR, the carry bit, and a flat memory image. Code and data live in
// the same image; the PC is an absolute address into it.
type Machine struct {
	R   [32]uint32
	CR  uint32
	LR  uint32
	CTR uint32
	CA  bool
	PC  uint32

	Mem []byte

	// Hooks intercept execution at absolute addresses. When the PC
	// lands on a hooked address the function runs instead of a fetch
	// and control returns through LR. Tests use this to stand in for
	// runtime helpers.
	Hooks map[uint32]func(*Machine)
}

// New allocates a machine with memSize bytes of zeroed memory.
func New(memSize int) *Machine {
	return &Machine{
		Mem:   make([]byte, memSize),
		Hooks: make(map[uint32]func(*Machine)),
	}
}

// LoadCode copies an instruction stream into memory at addr.
func (m *Machine) LoadCode(addr uint32, text []byte) error {
	if int(addr)+len(text) > len(m.Mem) {
		return fmt.Errorf("code at %#x..%#x outside memory", addr, int(addr)+len(text))
	}
	copy(m.Mem[addr:], text)
	return nil
}

func (m *Machine) checkRange(addr, size uint32) error {
	if uint64(addr)+uint64(size) > uint64(len(m.Mem)) {
		return fmt.Errorf("access at %#x size %d outside memory", addr, size)
	}
	return nil
}

// Load32 reads a big-endian word.
func (m *Machine) Load32(addr uint32) (uint32, error) {
	if err := m.checkRange(addr, 4); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(m.Mem[addr:]), nil
}

// Store32 writes a big-endian word.
func (m *Machine) Store32(addr, v uint32) error {
	if err := m.checkRange(addr, 4); err != nil {
		return err
	}
	binary.BigEndian.PutUint32(m.Mem[addr:], v)
	return nil
}

// Load16 reads a big-endian halfword.
func (m *Machine) Load16(addr uint32) (uint16, error) {
	if err := m.checkRange(addr, 2); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(m.Mem[addr:]), nil
}

// Store16 writes a big-endian halfword.
func (m *Machine) Store16(addr uint32, v uint16) error {
	if err := m.checkRange(addr, 2); err != nil {
		return err
	}
	binary.BigEndian.PutUint16(m.Mem[addr:], v)
	return nil
}

// Load8 reads a byte.
func (m *Machine) Load8(addr uint32) (uint8, error) {
	if err := m.checkRange(addr, 1); err != nil {
		return 0, err
	}
	return m.Mem[addr], nil
}

// Store8 writes a byte.
func (m *Machine) Store8(addr uint32, v uint8) error {
	if err := m.checkRange(addr, 1); err != nil {
		return err
	}
	m.Mem[addr] = v
	return nil
}

// setCRField writes one 4-bit condition field. Field 0 is the top nibble.
func (m *Machine) setCRField(f uint32, lt, gt, eq bool) {
	var bits uint32
	if lt {
		bits |= 8
	}
	if gt {
		bits |= 4
	}
	if eq {
		bits |= 2
	}
	shift := 28 - 4*f
	m.CR = m.CR&^(0xf<<shift) | bits<<shift
}

// crBit reads CR bit i, numbered from the MSB as the branch encodings do.
func (m *Machine) crBit(i uint32) bool {
	return m.CR>>(31-i)&1 != 0
}

func (m *Machine) setCRBit(i uint32, v bool) {
	if v {
		m.CR |= 1 << (31 - i)
	} else {
		m.CR &^= 1 << (31 - i)
	}
}

// cmpSigned sets a CR field from a signed comparison.
func (m *Machine) cmpSigned(f uint32, a, b int32) {
	m.setCRField(f, a < b, a > b, a == b)
}

// cmpUnsigned sets a CR field from an unsigned comparison.
func (m *Machine) cmpUnsigned(f uint32, a, b uint32) {
	m.setCRField(f, a < b, a > b, a == b)
}

// Run steps until the PC reaches stop. maxSteps bounds runaway code.
func (m *Machine) Run(stop uint32, maxSteps int) error {
	for range maxSteps {
		if m.PC == stop {
			return nil
		}
		if err := m.Step(); err != nil {
			return err
		}
	}
	return fmt.Errorf("no halt after %d steps, pc=%#x", maxSteps, m.PC)
}
