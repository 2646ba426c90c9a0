// Package code provides the executable code buffer the generator writes
// into, and the branch relocation machinery that patches emitted words once
// their targets are known.
package code

import "encoding/binary"

// Buffer is a contiguous code region with an append cursor. Words are
// stored big-endian (the host is a big-endian PPC). The cursor only ever
// moves forward; patching rewrites words in place.
type Buffer struct {
	base int32
	buf  []byte
}

// NewBuffer returns an empty buffer that pretends to be loaded at base.
// base must be 4-byte aligned.
func NewBuffer(base int32) *Buffer {
	return &Buffer{base: base}
}

// Put32 appends one instruction word.
func (b *Buffer) Put32(insn uint32) {
	b.buf = binary.BigEndian.AppendUint32(b.buf, insn)
}

// Patch32 overwrites the word at byte offset off.
func (b *Buffer) Patch32(off int32, insn uint32) {
	binary.BigEndian.PutUint32(b.buf[off:], insn)
}

// Word reads back the word at byte offset off.
func (b *Buffer) Word(off int32) uint32 {
	return binary.BigEndian.Uint32(b.buf[off:])
}

// Reserve appends n zero bytes and returns the byte offset of the slot.
// Used for branch slots the outer runtime patches after translation.
func (b *Buffer) Reserve(n int32) int32 {
	off := b.Len()
	b.buf = append(b.buf, make([]byte, n)...)
	return off
}

// Len returns the cursor position in bytes.
func (b *Buffer) Len() int32 { return int32(len(b.buf)) }

// Base returns the buffer's load address.
func (b *Buffer) Base() int32 { return b.base }

// Addr returns the absolute address of the cursor.
func (b *Buffer) Addr() int32 { return b.base + b.Len() }

// AddrOf converts a byte offset to an absolute address.
func (b *Buffer) AddrOf(off int32) int32 { return b.base + off }

// OffsetOf converts an absolute address back to a byte offset.
func (b *Buffer) OffsetOf(addr int32) int32 { return addr - b.base }

// Bytes returns the emitted code. The slice aliases the buffer.
func (b *Buffer) Bytes() []byte { return b.buf }

// Words returns the emitted code as instruction words.
func (b *Buffer) Words() []uint32 {
	words := make([]uint32, len(b.buf)/4)
	for i := range words {
		words[i] = binary.BigEndian.Uint32(b.buf[i*4:])
	}
	return words
}
