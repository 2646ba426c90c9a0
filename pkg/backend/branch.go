package backend

import (
	"github.com/oisee/ppc-codegen/pkg/code"
	"github.com/oisee/ppc-codegen/pkg/ppc"
	"github.com/oisee/ppc-codegen/pkg/tcg"
)

// condBC maps a condition to its BC encoding against CR7. Signed and
// unsigned variants share CR bits; signedness was expressed by the
// preceding compare.
var condBC = [...]uint32{
	tcg.CondEQ:  ppc.BC | ppc.BI(7, ppc.CREQ) | ppc.BOCondTrue,
	tcg.CondNE:  ppc.BC | ppc.BI(7, ppc.CREQ) | ppc.BOCondFalse,
	tcg.CondLT:  ppc.BC | ppc.BI(7, ppc.CRLT) | ppc.BOCondTrue,
	tcg.CondGE:  ppc.BC | ppc.BI(7, ppc.CRLT) | ppc.BOCondFalse,
	tcg.CondLE:  ppc.BC | ppc.BI(7, ppc.CRGT) | ppc.BOCondFalse,
	tcg.CondGT:  ppc.BC | ppc.BI(7, ppc.CRGT) | ppc.BOCondTrue,
	tcg.CondLTU: ppc.BC | ppc.BI(7, ppc.CRLT) | ppc.BOCondTrue,
	tcg.CondGEU: ppc.BC | ppc.BI(7, ppc.CRLT) | ppc.BOCondFalse,
	tcg.CondLEU: ppc.BC | ppc.BI(7, ppc.CRGT) | ppc.BOCondFalse,
	tcg.CondGTU: ppc.BC | ppc.BI(7, ppc.CRGT) | ppc.BOCondTrue,
}

// patchHere resolves the branch at byte offset off to the current cursor.
func (b *Backend) patchHere(off int32, kind code.RelocKind) {
	if err := b.buf.PatchReloc(off, kind, b.buf.Addr(), 0); err != nil {
		b.abort(err)
	}
}

// brcond compares arg1 against arg2 into CR7 and emits the conditional
// branch. Constants that fit a 16-bit immediate use CMPI/CMPLI; anything
// else is materialized into r0 for a register compare.
func (b *Backend) brcond(cond tcg.Cond, arg1, arg2 tcg.Arg, const2 bool, label int) {
	l, err := b.ctx.Label(label)
	if err != nil {
		b.abort(err)
	}

	var op uint32
	imm := false
	switch cond {
	case tcg.CondEQ, tcg.CondNE:
		switch {
		case const2 && fitsI16(int32(arg2)):
			op, imm = ppc.CMPI, true
		case const2 && fitsU16(arg2):
			op, imm = ppc.CMPLI, true
		default:
			op = ppc.CMPL
		}
	case tcg.CondLT, tcg.CondGE, tcg.CondLE, tcg.CondGT:
		if const2 && fitsI16(int32(arg2)) {
			op, imm = ppc.CMPI, true
		} else {
			op = ppc.CMP
		}
	case tcg.CondLTU, tcg.CondGEU, tcg.CondLEU, tcg.CondGTU:
		if const2 && fitsU16(arg2) {
			op, imm = ppc.CMPLI, true
		} else {
			op = ppc.CMPL
		}
	default:
		b.abortf("brcond: bad condition %d", int(cond))
	}
	op |= ppc.BF(7)

	switch {
	case imm:
		b.out32(op | ppc.RA(arg1) | arg2&0xffff)
	case const2:
		b.movi(0, int32(arg2))
		b.out32(op | ppc.RA(arg1) | ppc.RB(0))
	default:
		b.out32(op | ppc.RA(arg1) | ppc.RB(arg2))
	}

	if l.HasValue {
		field, err := code.Reloc14Val(b.buf.Addr(), l.Value)
		if err != nil {
			b.abort(err)
		}
		b.out32(condBC[cond] | field)
	} else {
		off := b.buf.Len()
		b.out32(condBC[cond])
		b.ctx.OutReloc(off, code.Reloc14, label, 0)
	}
}

// brcond2 lowers a 64-bit comparison to chained 32-bit compares. The
// ordered conditions decide on the high halves first and fall through a
// local label to the low-half compare only on high equality.
// args: low1, high1, low2, high2, cond, label.
func (b *Backend) brcond2(args []tcg.Arg, constArgs []bool) {
	next := b.ctx.NewLabel()
	cond := tcg.Cond(args[4])
	label := int(args[5])

	switch cond {
	case tcg.CondEQ:
		b.brcond(tcg.CondNE, args[0], args[2], constArgs[2], next)
		b.brcond(tcg.CondEQ, args[1], args[3], constArgs[3], label)
	case tcg.CondNE:
		b.brcond(tcg.CondNE, args[0], args[2], constArgs[2], label)
		b.brcond(tcg.CondNE, args[1], args[3], constArgs[3], label)
	case tcg.CondLT:
		b.brcond(tcg.CondLT, args[1], args[3], constArgs[3], label)
		b.brcond(tcg.CondNE, args[1], args[3], constArgs[3], next)
		b.brcond(tcg.CondLTU, args[0], args[2], constArgs[2], label)
	case tcg.CondLE:
		b.brcond(tcg.CondLT, args[1], args[3], constArgs[3], label)
		b.brcond(tcg.CondNE, args[1], args[3], constArgs[3], next)
		b.brcond(tcg.CondLEU, args[0], args[2], constArgs[2], label)
	case tcg.CondGT:
		b.brcond(tcg.CondGT, args[1], args[3], constArgs[3], label)
		b.brcond(tcg.CondNE, args[1], args[3], constArgs[3], next)
		b.brcond(tcg.CondGTU, args[0], args[2], constArgs[2], label)
	case tcg.CondGE:
		b.brcond(tcg.CondGT, args[1], args[3], constArgs[3], label)
		b.brcond(tcg.CondNE, args[1], args[3], constArgs[3], next)
		b.brcond(tcg.CondGEU, args[0], args[2], constArgs[2], label)
	case tcg.CondLTU:
		b.brcond(tcg.CondLTU, args[1], args[3], constArgs[3], label)
		b.brcond(tcg.CondNE, args[1], args[3], constArgs[3], next)
		b.brcond(tcg.CondLTU, args[0], args[2], constArgs[2], label)
	case tcg.CondLEU:
		b.brcond(tcg.CondLTU, args[1], args[3], constArgs[3], label)
		b.brcond(tcg.CondNE, args[1], args[3], constArgs[3], next)
		b.brcond(tcg.CondLEU, args[0], args[2], constArgs[2], label)
	case tcg.CondGTU:
		b.brcond(tcg.CondGTU, args[1], args[3], constArgs[3], label)
		b.brcond(tcg.CondNE, args[1], args[3], constArgs[3], next)
		b.brcond(tcg.CondGTU, args[0], args[2], constArgs[2], label)
	case tcg.CondGEU:
		b.brcond(tcg.CondGTU, args[1], args[3], constArgs[3], label)
		b.brcond(tcg.CondNE, args[1], args[3], constArgs[3], next)
		b.brcond(tcg.CondGEU, args[0], args[2], constArgs[2], label)
	default:
		b.abortf("brcond2: bad condition %d", int(cond))
	}

	if err := b.ctx.ResolveLabel(next, b.buf.Addr()); err != nil {
		b.abort(err)
	}
}

// div2 lowers a 64/32 division. Operands are pinned by constraints:
// dividend in r3:r4 (high:low), divisor in r5, quotient to r6, remainder
// to r3. A zero high word shrinks the division to DIVW/DIVWU inline; the
// general case calls the trampoline.
func (b *Backend) div2(uns bool) {
	b.out32(ppc.CMPLI | ppc.BF(7) | ppc.RA(3))
	label1 := b.buf.Len()
	b.out32(ppc.BC | ppc.BI(7, ppc.CREQ) | ppc.BOCondTrue)

	target := b.cfg.DivTrampoline
	if uns {
		target = b.cfg.UdivTrampoline
	}
	b.branch(ppc.LK, target)

	label2 := b.buf.Len()
	b.out32(ppc.B)

	b.patchHere(label1, code.Reloc14)

	div := ppc.DIVW
	if uns {
		div = ppc.DIVWU
	}
	b.out32(div | ppc.TAB(6, 4, 5))
	b.out32(ppc.MULLW | ppc.TAB(0, 6, 5))
	b.out32(ppc.SUBF | ppc.TAB(3, 0, 4))

	b.patchHere(label2, code.Reloc24)
}
