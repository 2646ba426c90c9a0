package backend

import (
	"github.com/oisee/ppc-codegen/pkg/code"
	"github.com/oisee/ppc-codegen/pkg/ppc"
	"github.com/oisee/ppc-codegen/pkg/tcg"
)

// EmitOp lowers one IR operation. constArgs marks which args are
// immediates rather than register ids. Errors abort the whole
// translation; no partial recovery is possible.
func (b *Backend) EmitOp(op tcg.Op, args []tcg.Arg, constArgs []bool) (err error) {
	defer handleAbort(&err)
	b.emitOp(op, args, constArgs)
	return nil
}

func (b *Backend) emitOp(op tcg.Op, args []tcg.Arg, constArgs []bool) {
	switch op {
	case tcg.OpExitTB:
		b.movi(3, int32(args[0]))
		b.branch(0, b.tbRetAddr)
	case tcg.OpGotoTB:
		// Reserve a slot the outer runtime patches with a direct jump
		// once the destination block exists.
		b.ctx.TBJmpOffset[args[0]] = b.buf.Reserve(16)
		b.ctx.TBNextOffset[args[0]] = b.buf.Len()
	case tcg.OpBr:
		l, err := b.ctx.Label(int(args[0]))
		if err != nil {
			b.abort(err)
		}
		if l.HasValue {
			b.branch(0, l.Value)
		} else {
			off := b.buf.Len()
			b.out32(ppc.B)
			b.ctx.OutReloc(off, code.Reloc24, int(args[0]), 0)
		}
	case tcg.OpCall:
		if constArgs[0] {
			b.branch(ppc.LK, int32(args[0]))
		} else {
			b.out32(ppc.MTSPR | ppc.RS(args[0]) | ppc.LRSPR)
			b.out32(ppc.BCLR | ppc.BOAlways | ppc.LK)
		}
	case tcg.OpJmp:
		if constArgs[0] {
			b.branch(0, int32(args[0]))
		} else {
			b.out32(ppc.MTSPR | ppc.RS(args[0]) | ppc.CTRSPR)
			b.out32(ppc.BCCTR | ppc.BOAlways)
		}

	case tcg.OpMov:
		b.mov(args[0], args[1])
	case tcg.OpMovi:
		b.movi(args[0], int32(args[1]))
	case tcg.OpLd8u:
		b.ldst(args[0], args[1], int32(args[2]), ppc.LBZ, ppc.LBZX)
	case tcg.OpLd8s:
		b.ldst(args[0], args[1], int32(args[2]), ppc.LBZ, ppc.LBZX)
		b.out32(ppc.EXTSB | ppc.RS(args[0]) | ppc.RA(args[0]))
	case tcg.OpLd16u:
		b.ldst(args[0], args[1], int32(args[2]), ppc.LHZ, ppc.LHZX)
	case tcg.OpLd16s:
		b.ldst(args[0], args[1], int32(args[2]), ppc.LHA, ppc.LHAX)
	case tcg.OpLd:
		b.ldst(args[0], args[1], int32(args[2]), ppc.LWZ, ppc.LWZX)
	case tcg.OpSt8:
		b.ldst(args[0], args[1], int32(args[2]), ppc.STB, ppc.STBX)
	case tcg.OpSt16:
		b.ldst(args[0], args[1], int32(args[2]), ppc.STH, ppc.STHX)
	case tcg.OpSt:
		b.ldst(args[0], args[1], int32(args[2]), ppc.STW, ppc.STWX)

	case tcg.OpAdd:
		if constArgs[2] {
			b.addi(args[0], args[1], int32(args[2]))
		} else {
			b.out32(ppc.ADD | ppc.TAB(args[0], args[1], args[2]))
		}
	case tcg.OpSub:
		if constArgs[2] {
			b.addi(args[0], args[1], -int32(args[2]))
		} else {
			b.out32(ppc.SUBF | ppc.TAB(args[0], args[2], args[1]))
		}

	case tcg.OpAnd:
		b.emitAnd(args, constArgs)
	case tcg.OpOr:
		b.emitOr(args, constArgs)
	case tcg.OpXor:
		b.emitXor(args, constArgs)

	case tcg.OpMul:
		if constArgs[2] {
			if fitsI16(int32(args[2])) {
				b.out32(ppc.MULLI | ppc.RT(args[0]) | ppc.RA(args[1]) | args[2]&0xffff)
			} else {
				b.movi(0, int32(args[2]))
				b.out32(ppc.MULLW | ppc.TAB(args[0], args[1], 0))
			}
		} else {
			b.out32(ppc.MULLW | ppc.TAB(args[0], args[1], args[2]))
		}
	case tcg.OpMulu2:
		if args[0] == args[2] || args[0] == args[3] {
			b.out32(ppc.MULLW | ppc.TAB(0, args[2], args[3]))
			b.out32(ppc.MULHWU | ppc.TAB(args[1], args[2], args[3]))
			b.mov(args[0], 0)
		} else {
			b.out32(ppc.MULLW | ppc.TAB(args[0], args[2], args[3]))
			b.out32(ppc.MULHWU | ppc.TAB(args[1], args[2], args[3]))
		}
	case tcg.OpDiv2:
		b.div2(false)
	case tcg.OpDivu2:
		b.div2(true)

	case tcg.OpShl:
		if constArgs[2] {
			if args[2] != 0 {
				b.out32(ppc.RLWINM | ppc.RA(args[0]) | ppc.RS(args[1]) |
					ppc.SH(args[2]) | ppc.MB(0) | ppc.ME(31-args[2]))
			} else {
				b.mov(args[0], args[1])
			}
		} else {
			b.out32(ppc.SLW | ppc.SAB(args[1], args[0], args[2]))
		}
	case tcg.OpShr:
		if constArgs[2] {
			if args[2] != 0 {
				b.out32(ppc.RLWINM | ppc.RA(args[0]) | ppc.RS(args[1]) |
					ppc.SH(32-args[2]) | ppc.MB(args[2]) | ppc.ME(31))
			} else {
				b.mov(args[0], args[1])
			}
		} else {
			b.out32(ppc.SRW | ppc.SAB(args[1], args[0], args[2]))
		}
	case tcg.OpSar:
		if constArgs[2] {
			b.out32(ppc.SRAWI | ppc.RS(args[1]) | ppc.RA(args[0]) | ppc.SH(args[2]))
		} else {
			b.out32(ppc.SRAW | ppc.SAB(args[1], args[0], args[2]))
		}

	case tcg.OpAdd2:
		if args[0] == args[3] || args[0] == args[5] {
			b.out32(ppc.ADDC | ppc.TAB(0, args[2], args[4]))
			b.out32(ppc.ADDE | ppc.TAB(args[1], args[3], args[5]))
			b.mov(args[0], 0)
		} else {
			b.out32(ppc.ADDC | ppc.TAB(args[0], args[2], args[4]))
			b.out32(ppc.ADDE | ppc.TAB(args[1], args[3], args[5]))
		}
	case tcg.OpSub2:
		if args[0] == args[3] || args[0] == args[5] {
			b.out32(ppc.SUBFC | ppc.TAB(0, args[4], args[2]))
			b.out32(ppc.SUBFE | ppc.TAB(args[1], args[5], args[3]))
			b.mov(args[0], 0)
		} else {
			b.out32(ppc.SUBFC | ppc.TAB(args[0], args[4], args[2]))
			b.out32(ppc.SUBFE | ppc.TAB(args[1], args[5], args[3]))
		}

	case tcg.OpBrcond:
		b.brcond(tcg.Cond(args[2]), args[0], args[1], constArgs[1], int(args[3]))
	case tcg.OpBrcond2:
		b.brcond2(args, constArgs)

	case tcg.OpNeg:
		b.out32(ppc.NEG | ppc.RT(args[0]) | ppc.RA(args[1]))

	case tcg.OpQemuLd8u:
		b.qemuLd(args, 0)
	case tcg.OpQemuLd8s:
		b.qemuLd(args, 0|4)
	case tcg.OpQemuLd16u:
		b.qemuLd(args, 1)
	case tcg.OpQemuLd16s:
		b.qemuLd(args, 1|4)
	case tcg.OpQemuLd32u, tcg.OpQemuLd32s:
		b.qemuLd(args, 2)
	case tcg.OpQemuLd64:
		b.qemuLd(args, 3)
	case tcg.OpQemuSt8:
		b.qemuSt(args, 0)
	case tcg.OpQemuSt16:
		b.qemuSt(args, 1)
	case tcg.OpQemuSt32:
		b.qemuSt(args, 2)
	case tcg.OpQemuSt64:
		b.qemuSt(args, 3)

	default:
		b.abortf("unsupported op %s", op)
	}
}

func (b *Backend) emitAnd(args []tcg.Arg, constArgs []bool) {
	if !constArgs[2] {
		b.out32(ppc.AND | ppc.SAB(args[1], args[0], args[2]))
		return
	}
	v := args[2]
	switch {
	case v == 0:
		b.movi(args[0], 0)
	case v&0xffff == v:
		b.out32(ppc.ANDI | ppc.RS(args[1]) | ppc.RA(args[0]) | v)
	case v&0xffff0000 == v:
		b.out32(ppc.ANDIS | ppc.RS(args[1]) | ppc.RA(args[0]) | v>>16&0xffff)
	case v == 0xffffffff:
		if args[0] != args[1] {
			b.mov(args[0], args[1])
		}
	default:
		b.movi(0, int32(v))
		b.out32(ppc.AND | ppc.SAB(args[1], args[0], 0))
	}
}

func (b *Backend) emitOr(args []tcg.Arg, constArgs []bool) {
	if !constArgs[2] {
		b.out32(ppc.OR | ppc.SAB(args[1], args[0], args[2]))
		return
	}
	v := args[2]
	switch {
	case v == 0:
		if args[0] != args[1] {
			b.mov(args[0], args[1])
		}
	case v&0xffff != 0:
		b.out32(ppc.ORI | ppc.RS(args[1]) | ppc.RA(args[0]) | v&0xffff)
		if v>>16 != 0 {
			b.out32(ppc.ORIS | ppc.RS(args[0]) | ppc.RA(args[0]) | v>>16&0xffff)
		}
	default:
		b.out32(ppc.ORIS | ppc.RS(args[1]) | ppc.RA(args[0]) | v>>16&0xffff)
	}
}

func (b *Backend) emitXor(args []tcg.Arg, constArgs []bool) {
	if !constArgs[2] {
		b.out32(ppc.XOR | ppc.SAB(args[1], args[0], args[2]))
		return
	}
	v := args[2]
	switch {
	case v == 0:
		if args[0] != args[1] {
			b.mov(args[0], args[1])
		}
	case v&0xffff == v:
		b.out32(ppc.XORI | ppc.RS(args[1]) | ppc.RA(args[0]) | v&0xffff)
	case v&0xffff0000 == v:
		b.out32(ppc.XORIS | ppc.RS(args[1]) | ppc.RA(args[0]) | v>>16&0xffff)
	default:
		b.movi(0, int32(v))
		b.out32(ppc.XOR | ppc.SAB(args[1], args[0], 0))
	}
}
