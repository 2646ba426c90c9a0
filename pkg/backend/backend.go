// Package backend lowers architecture-neutral IR operations to PPC32
// machine code in a caller-provided code buffer. It is the hot path of the
// translator: each IR op becomes a short sequence of instruction words,
// with inline software-TLB fast paths for guest memory accesses.
package backend

import (
	"fmt"

	"github.com/oisee/ppc-codegen/pkg/code"
	"github.com/oisee/ppc-codegen/pkg/ppc"
	"github.com/oisee/ppc-codegen/pkg/tcg"
)

// Config carries everything the generated code bakes in about the guest
// execution environment. The backend itself has no knowledge of the guest
// CPU layout beyond these numbers.
type Config struct {
	// AddrBits is the guest virtual address width, 32 or 64.
	AddrBits int
	// PhysAddrBits selects the extra addend displacement inside a TLB
	// entry when the physical address is wider than 32 bits.
	PhysAddrBits int
	// GuestBigEndian disables byte-swap emission. The host is big-endian.
	GuestBigEndian bool

	// Software TLB geometry.
	PageBits     int
	TLBBits      int
	TLBEntryBits int

	// Offsets into the guest CPU state reached from AREG0.
	TLBTableOff  int32 // start of tlb_table
	AddrReadOff  int32 // addr_read within an entry
	AddrWriteOff int32 // addr_write within an entry
	AddendOff    int32 // addend within an entry

	// AREG0 is the host register holding the CPU state base.
	AREG0 uint32

	// Runtime helper entry points, one per access width (8/16/32/64).
	LdHelpers [4]int32
	StHelpers [4]int32
	// Wide-division trampolines.
	DivTrampoline  int32
	UdivTrampoline int32

	// StaticCallArgsSize is the outgoing-argument area in the prologue
	// frame.
	StaticCallArgsSize int32
}

// Backend emits PPC32 code for one translation at a time.
type Backend struct {
	cfg Config
	ctx *tcg.Context
	buf *code.Buffer

	// addendExtra is 0 for 32-bit physical addresses, 4 otherwise.
	addendExtra int32
	// tbRetAddr is the address of the common translation-block return
	// path, recorded when the prologue is emitted.
	tbRetAddr int32
}

// New validates the configuration and binds a backend to a translation
// context. Geometry errors surface here, not at emission time.
func New(ctx *tcg.Context, cfg Config) (*Backend, error) {
	switch cfg.AddrBits {
	case 32, 64:
	default:
		return nil, fmt.Errorf("guest address width %d unsupported", cfg.AddrBits)
	}
	if cfg.PageBits <= cfg.TLBEntryBits || cfg.PageBits >= 32 {
		return nil, fmt.Errorf("page bits %d incompatible with TLB entry bits %d", cfg.PageBits, cfg.TLBEntryBits)
	}
	if cfg.TLBBits <= 0 || cfg.TLBBits+cfg.TLBEntryBits >= 32 {
		return nil, fmt.Errorf("TLB bits %d out of range", cfg.TLBBits)
	}
	if cfg.AREG0 == 0 {
		cfg.AREG0 = defaultAREG0
	}
	if cfg.StaticCallArgsSize == 0 {
		cfg.StaticCallArgsSize = 128
	}
	b := &Backend{cfg: cfg, ctx: ctx, buf: ctx.Buf}
	if cfg.PhysAddrBits > 32 {
		b.addendExtra = 4
	}
	if b.addendExtra+cfg.AddendOff+4 > int32(1)<<cfg.TLBEntryBits {
		return nil, fmt.Errorf("TLB entry of %d bytes too small for the addend at %#x",
			1<<cfg.TLBEntryBits, b.addendExtra+cfg.AddendOff)
	}
	// Every TLB displacement the config can produce must reach a signed
	// 16-bit field: the largest is the last entry of the last mem index.
	worst := b.tlbReadDisp(maxMemIndex) + int32(1)<<(cfg.TLBBits+cfg.TLBEntryBits)
	if !fitsI16(worst) {
		return nil, fmt.Errorf("TLB table offset %#x beyond displacement range", worst)
	}
	return b, nil
}

// maxMemIndex bounds the mmu index namespace the displacement check
// covers.
const maxMemIndex = 3

// defaultAREG0 is the conventional CPU-state base register.
const defaultAREG0 = 27

// TBRetAddr returns the epilogue address every exit_tb branches to. Valid
// after EmitPrologue.
func (b *Backend) TBRetAddr() int32 { return b.tbRetAddr }

// tlbReadDisp is the displacement of addr_read for entry 0 of memIndex.
func (b *Backend) tlbReadDisp(memIndex int) int32 {
	return b.tlbEntryDisp(memIndex) + b.cfg.AddrReadOff
}

// tlbWriteDisp is the displacement of addr_write for entry 0 of memIndex.
func (b *Backend) tlbWriteDisp(memIndex int) int32 {
	return b.tlbEntryDisp(memIndex) + b.cfg.AddrWriteOff
}

func (b *Backend) tlbEntryDisp(memIndex int) int32 {
	perIndex := int32(1) << (b.cfg.TLBBits + b.cfg.TLBEntryBits)
	return b.cfg.TLBTableOff + int32(memIndex)*perIndex
}

// codegenError aborts the whole translation; it is recovered at the
// exported entry points and returned as an error.
type codegenError struct{ err error }

func (b *Backend) abortf(format string, args ...any) {
	panic(codegenError{fmt.Errorf(format, args...)})
}

func (b *Backend) abort(err error) {
	panic(codegenError{err})
}

// handleAbort converts an internal abort into the entry point's error
// return. Unrelated panics propagate.
func handleAbort(err *error) {
	switch r := recover().(type) {
	case nil:
	case codegenError:
		*err = r.err
	default:
		panic(r)
	}
}

func fitsI16(v int32) bool { return v == int32(int16(v)) }

func fitsU16(v uint32) bool { return v == uint32(uint16(v)) }

// out32 appends one instruction word.
func (b *Backend) out32(insn uint32) { b.buf.Put32(insn) }

// mov copies rs into rd.
func (b *Backend) mov(rd, rs uint32) {
	b.out32(ppc.OR | ppc.SAB(rs, rd, rs))
}

// movi materializes a 32-bit constant. Values that fit a signed 16-bit
// immediate take one ADDI against the literal-zero base; everything else
// takes ADDIS plus ORI, the ORI dropped when the low half is zero.
func (b *Backend) movi(rd uint32, v int32) {
	if fitsI16(v) {
		b.out32(ppc.ADDI | ppc.RT(rd) | ppc.RA(0) | uint32(v)&0xffff)
	} else {
		b.out32(ppc.ADDIS | ppc.RT(rd) | ppc.RA(0) | uint32(v)>>16&0xffff)
		if v&0xffff != 0 {
			b.out32(ppc.ORI | ppc.RS(rd) | ppc.RA(rd) | uint32(v)&0xffff)
		}
	}
}

// ldst emits a base+displacement access, falling back to the indexed form
// with the offset materialized in r0 when the displacement does not fit.
func (b *Backend) ldst(ret, addr uint32, off int32, opImm, opIdx uint32) {
	if fitsI16(off) {
		b.out32(opImm | ppc.RT(ret) | ppc.RA(addr) | uint32(off)&0xffff)
	} else {
		b.movi(0, off)
		b.out32(opIdx | ppc.RT(ret) | ppc.RA(addr) | ppc.RB(0))
	}
}

// branch emits a transfer to an absolute target: a direct B when the
// displacement fits 24 bits, otherwise a CTR trampoline through r0. mask
// carries the link bit for calls.
func (b *Backend) branch(mask uint32, target int32) {
	disp := target - b.buf.Addr()
	if disp<<6>>6 == disp {
		b.out32(ppc.B | uint32(disp)&0x3fffffc | mask)
	} else {
		b.movi(0, target)
		b.out32(ppc.MTSPR | ppc.RS(0) | ppc.CTRSPR)
		b.out32(ppc.BCCTR | ppc.BOAlways | mask)
	}
}

// addi adds a constant to ra into rt. A zero add onto the same register
// emits nothing. The two-instruction form folds the signed carry from the
// low half into the high half.
func (b *Backend) addi(rt, ra uint32, si int32) {
	if si == 0 && rt == ra {
		return
	}
	if fitsI16(si) {
		b.out32(ppc.ADDI | ppc.RT(rt) | ppc.RA(ra) | uint32(si)&0xffff)
	} else {
		h := (uint32(si)>>16 + uint32(si)>>15&1) & 0xffff
		b.out32(ppc.ADDIS | ppc.RT(rt) | ppc.RA(ra) | h)
		b.out32(ppc.ADDI | ppc.RT(rt) | ppc.RA(rt) | uint32(si)&0xffff)
	}
}

// EmitMov is the register-copy primitive exposed to the allocator.
func (b *Backend) EmitMov(rd, rs uint32) { b.mov(rd, rs) }

// EmitMovi is the constant-materialization primitive exposed to the
// allocator.
func (b *Backend) EmitMovi(rd uint32, v int32) { b.movi(rd, v) }

// EmitAddi adjusts reg by a constant in place.
func (b *Backend) EmitAddi(reg uint32, v int32) { b.addi(reg, reg, v) }

// EmitLd emits a 32-bit host load, used for spill reloads.
func (b *Backend) EmitLd(ret, base uint32, off int32) {
	b.ldst(ret, base, off, ppc.LWZ, ppc.LWZX)
}

// EmitSt emits a 32-bit host store, used for spills.
func (b *Backend) EmitSt(arg, base uint32, off int32) {
	b.ldst(arg, base, off, ppc.STW, ppc.STWX)
}

// PatchReloc resolves the branch at byte offset off to value+addend. The
// IR driver calls this when a label acquires its address.
func (b *Backend) PatchReloc(off int32, kind code.RelocKind, value, addend int32) error {
	return b.buf.PatchReloc(off, kind, value, addend)
}
