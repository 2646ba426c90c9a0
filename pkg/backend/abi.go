package backend

import (
	"fmt"

	"github.com/oisee/ppc-codegen/pkg/ppc"
	"github.com/oisee/ppc-codegen/pkg/tcg"
)

// RegNames are the register spellings reported to the IR driver. r2 is the
// reserved TOC pointer, spelled rp.
var RegNames = [32]string{
	"r0", "r1", "rp", "r3", "r4", "r5", "r6", "r7",
	"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15",
	"r16", "r17", "r18", "r19", "r20", "r21", "r22", "r23",
	"r24", "r25", "r26", "r27", "r28", "r29", "r30", "r31",
}

// regAllocOrder is the allocator's preference order.
var regAllocOrder = func() []uint32 {
	order := make([]uint32, 32)
	for i := range order {
		order[i] = uint32(i)
	}
	return order
}()

// callIArgRegs are the integer call-argument registers, in order.
var callIArgRegs = []uint32{3, 4, 5, 6, 7, 8, 9, 10}

// callOArgRegs are the return-value registers; 64-bit results come back in
// the r3:r4 pair.
var callOArgRegs = [2]uint32{3, 4}

// calleeSaveRegs are spilled by the prologue. r24..r27 are left out; r27
// conventionally carries the CPU-state base across the translation.
var calleeSaveRegs = []uint32{
	13, 14, 15, 16, 17, 18, 19, 20, 21, 22, 23,
	28, 29, 30, 31,
}

// IArgRegCount returns the number of call-argument registers. flags is
// unused on this target.
func IArgRegCount(flags int) int { return len(callIArgRegs) }

// EmitPrologue emits the entry and exit stubs for the translated-code
// region. Entry saves LR and the callee-saved registers, then jumps
// through CTR to the block address passed in r3. The epilogue that
// follows is the landing pad every exit_tb branches to; its address is
// recorded for them.
func (b *Backend) EmitPrologue() (err error) {
	defer handleAbort(&err)

	frameSize := int32(4+4) + b.cfg.StaticCallArgsSize + int32(len(calleeSaveRegs))*4
	frameSize = (frameSize + 15) &^ 15

	b.out32(ppc.MFSPR | ppc.RT(0) | ppc.LRSPR)
	b.out32(ppc.STWU | ppc.RS(1) | ppc.RA(1) | uint32(-frameSize)&0xffff)
	for i, reg := range calleeSaveRegs {
		b.out32(ppc.STW | ppc.RS(reg) | ppc.RA(1) |
			uint32(int32(i)*4+8+b.cfg.StaticCallArgsSize))
	}
	b.out32(ppc.STW | ppc.RS(0) | ppc.RA(1) | uint32(frameSize-4))

	b.out32(ppc.MTSPR | ppc.RS(3) | ppc.CTRSPR)
	b.out32(ppc.BCCTR | ppc.BOAlways)
	b.tbRetAddr = b.buf.Addr()

	for i, reg := range calleeSaveRegs {
		b.out32(ppc.LWZ | ppc.RT(reg) | ppc.RA(1) |
			uint32(int32(i)*4+8+b.cfg.StaticCallArgsSize))
	}
	b.out32(ppc.LWZ | ppc.RT(0) | ppc.RA(1) | uint32(frameSize-4))
	b.out32(ppc.MTSPR | ppc.RS(0) | ppc.LRSPR)
	b.out32(ppc.ADDI | ppc.RT(1) | ppc.RA(1) | uint32(frameSize))
	b.out32(ppc.BCLR | ppc.BOAlways)
	return nil
}

// ParseConstraint interprets one target constraint character, fills ct,
// and returns the unconsumed remainder of the string.
func (b *Backend) ParseConstraint(ct *tcg.ArgConstraint, s string) (string, error) {
	if s == "" {
		return "", fmt.Errorf("empty constraint")
	}
	switch c := s[0]; c {
	case 'A', 'B', 'C', 'D':
		ct.Ct |= tcg.CtReg
		ct.Regs.Set(3 + uint32(c-'A'))
	case 'r':
		ct.Ct |= tcg.CtReg
		ct.Regs = tcg.AllRegs
	case 'L': // qemu_ld address
		ct.Ct |= tcg.CtReg
		ct.Regs = tcg.AllRegs
		ct.Regs.Reset(3)
		ct.Regs.Reset(4)
	case 'K': // qemu_st (8..32) address and data
		ct.Ct |= tcg.CtReg
		ct.Regs = tcg.AllRegs
		ct.Regs.Reset(3)
		ct.Regs.Reset(4)
		ct.Regs.Reset(5)
		if b.cfg.AddrBits == 64 {
			ct.Regs.Reset(6)
		}
	case 'M': // qemu_st64
		ct.Ct |= tcg.CtReg
		ct.Regs = tcg.AllRegs
		ct.Regs.Reset(3)
		ct.Regs.Reset(4)
		ct.Regs.Reset(5)
		ct.Regs.Reset(6)
		ct.Regs.Reset(7)
	default:
		return s, fmt.Errorf("unknown constraint %q", string(c))
	}
	return s[1:], nil
}

// ConstMatch reports whether a constant satisfies a constraint. This
// target accepts any constant wherever constants are allowed.
func ConstMatch(val int32, ct *tcg.ArgConstraint) bool {
	return ct.Ct&tcg.CtConst != 0
}

// OpDefs returns the op-definitions table for the configured guest
// address width. Outputs precede inputs; "1" is a match constraint
// resolved by the driver.
func (b *Backend) OpDefs() []tcg.OpDef {
	defs := []tcg.OpDef{
		{Op: tcg.OpExitTB},
		{Op: tcg.OpGotoTB},
		{Op: tcg.OpCall, Args: []string{"ri"}},
		{Op: tcg.OpJmp, Args: []string{"ri"}},
		{Op: tcg.OpBr},

		{Op: tcg.OpMov, Args: []string{"r", "r"}},
		{Op: tcg.OpMovi, Args: []string{"r"}},
		{Op: tcg.OpLd8u, Args: []string{"r", "r"}},
		{Op: tcg.OpLd8s, Args: []string{"r", "r"}},
		{Op: tcg.OpLd16u, Args: []string{"r", "r"}},
		{Op: tcg.OpLd16s, Args: []string{"r", "r"}},
		{Op: tcg.OpLd, Args: []string{"r", "r"}},
		{Op: tcg.OpSt8, Args: []string{"r", "r"}},
		{Op: tcg.OpSt16, Args: []string{"r", "r"}},
		{Op: tcg.OpSt, Args: []string{"r", "r"}},

		{Op: tcg.OpAdd, Args: []string{"r", "r", "ri"}},
		{Op: tcg.OpMul, Args: []string{"r", "r", "ri"}},
		{Op: tcg.OpMulu2, Args: []string{"r", "r", "r", "r"}},
		{Op: tcg.OpDiv2, Args: []string{"D", "A", "B", "1", "C"}},
		{Op: tcg.OpDivu2, Args: []string{"D", "A", "B", "1", "C"}},
		{Op: tcg.OpSub, Args: []string{"r", "r", "ri"}},
		{Op: tcg.OpAnd, Args: []string{"r", "r", "ri"}},
		{Op: tcg.OpOr, Args: []string{"r", "r", "ri"}},
		{Op: tcg.OpXor, Args: []string{"r", "r", "ri"}},

		{Op: tcg.OpShl, Args: []string{"r", "r", "ri"}},
		{Op: tcg.OpShr, Args: []string{"r", "r", "ri"}},
		{Op: tcg.OpSar, Args: []string{"r", "r", "ri"}},

		{Op: tcg.OpBrcond, Args: []string{"r", "ri"}},

		{Op: tcg.OpAdd2, Args: []string{"r", "r", "r", "r", "r", "r"}},
		{Op: tcg.OpSub2, Args: []string{"r", "r", "r", "r", "r", "r"}},
		{Op: tcg.OpBrcond2, Args: []string{"r", "r", "r", "r"}},

		{Op: tcg.OpNeg, Args: []string{"r", "r"}},
	}

	if b.cfg.AddrBits == 32 {
		defs = append(defs,
			tcg.OpDef{Op: tcg.OpQemuLd8u, Args: []string{"r", "L"}},
			tcg.OpDef{Op: tcg.OpQemuLd8s, Args: []string{"r", "L"}},
			tcg.OpDef{Op: tcg.OpQemuLd16u, Args: []string{"r", "L"}},
			tcg.OpDef{Op: tcg.OpQemuLd16s, Args: []string{"r", "L"}},
			tcg.OpDef{Op: tcg.OpQemuLd32u, Args: []string{"r", "L"}},
			tcg.OpDef{Op: tcg.OpQemuLd32s, Args: []string{"r", "L"}},
			tcg.OpDef{Op: tcg.OpQemuLd64, Args: []string{"r", "r", "L"}},

			tcg.OpDef{Op: tcg.OpQemuSt8, Args: []string{"K", "K"}},
			tcg.OpDef{Op: tcg.OpQemuSt16, Args: []string{"K", "K"}},
			tcg.OpDef{Op: tcg.OpQemuSt32, Args: []string{"K", "K"}},
			tcg.OpDef{Op: tcg.OpQemuSt64, Args: []string{"M", "M", "M"}},
		)
	} else {
		defs = append(defs,
			tcg.OpDef{Op: tcg.OpQemuLd8u, Args: []string{"r", "L", "L"}},
			tcg.OpDef{Op: tcg.OpQemuLd8s, Args: []string{"r", "L", "L"}},
			tcg.OpDef{Op: tcg.OpQemuLd16u, Args: []string{"r", "L", "L"}},
			tcg.OpDef{Op: tcg.OpQemuLd16s, Args: []string{"r", "L", "L"}},
			tcg.OpDef{Op: tcg.OpQemuLd32u, Args: []string{"r", "L", "L"}},
			tcg.OpDef{Op: tcg.OpQemuLd32s, Args: []string{"r", "L", "L"}},
			tcg.OpDef{Op: tcg.OpQemuLd64, Args: []string{"r", "r", "L", "L"}},

			tcg.OpDef{Op: tcg.OpQemuSt8, Args: []string{"K", "K", "K"}},
			tcg.OpDef{Op: tcg.OpQemuSt16, Args: []string{"K", "K", "K"}},
			tcg.OpDef{Op: tcg.OpQemuSt32, Args: []string{"K", "K", "K"}},
			tcg.OpDef{Op: tcg.OpQemuSt64, Args: []string{"M", "M", "M", "M"}},
		)
	}
	return defs
}

// TargetInfo is the allocator's view of this target, published once by
// TargetInit.
type TargetInfo struct {
	Available   tcg.RegSet
	CallClobber tcg.RegSet
	Reserved    tcg.RegSet
	AllocOrder  []uint32
	RegNames    [32]string
	CallIArgs   []uint32
	CallOArgs   [2]uint32
	OpDefs      []tcg.OpDef
}

// TargetInit populates the register descriptors and op-definitions table.
func (b *Backend) TargetInit() TargetInfo {
	var clobber tcg.RegSet
	clobber.Set(0)
	for r := uint32(3); r <= 12; r++ {
		clobber.Set(r)
	}

	var reserved tcg.RegSet
	reserved.Set(0) // scratch and ADDI zero-base idiom
	reserved.Set(1) // stack pointer
	reserved.Set(2) // TOC

	return TargetInfo{
		Available:   tcg.AllRegs,
		CallClobber: clobber,
		Reserved:    reserved,
		AllocOrder:  regAllocOrder,
		RegNames:    RegNames,
		CallIArgs:   callIArgRegs,
		CallOArgs:   callOArgRegs,
		OpDefs:      b.OpDefs(),
	}
}
