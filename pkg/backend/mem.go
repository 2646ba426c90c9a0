package backend

import (
	"github.com/oisee/ppc-codegen/pkg/code"
	"github.com/oisee/ppc-codegen/pkg/ppc"
	"github.com/oisee/ppc-codegen/pkg/tcg"
)

// Guest memory accesses lower to an inline software-TLB probe with the
// helper call laid out before the fast path:
//
//	rlwinm  r3,addr,...        entry offset = (addr>>PAGE_BITS & mask) << ENTRY_BITS
//	add     r3,r3,AREG0
//	lwzu    r4,disp(r3)        tag fetch; r3 advances to the entry
//	rlwinm  r0,addr,0,MB,ME    page tag with alignment bits left in
//	cmpl    cr7,r0,r4
//	bc      hit                ---> fast path
//	...slow path: marshal args, call helper, branch to done...
//	hit:
//	lwz     r3,delta(r3)       entry addend
//	add     r3,r3,addr         host address
//	...actual access, byte-swapped for little-endian guests...
//	done:
//
// For 64-bit guest addresses the high tag word is compared into CR6 and
// the two EQ bits are combined with CRAND. The alignment check rides on
// the tag compare: the low s_bits of the masked address stay in place, so
// a misaligned access mismatches the tag and takes the slow path.

// tlbProbe emits the shared probe sequence up to and including the
// conditional branch to the fast path, returning the branch site offset.
// tagDisp is the addr_read or addr_write displacement for entry 0.
func (b *Backend) tlbProbe(addrReg, addrReg2 tcg.Arg, sBits int, tagDisp int32) int32 {
	cfg := &b.cfg
	b.out32(ppc.RLWINM |
		ppc.RA(3) |
		ppc.RS(addrReg) |
		ppc.SH(uint32(32-(cfg.PageBits-cfg.TLBEntryBits))) |
		ppc.MB(uint32(32-(cfg.TLBBits+cfg.TLBEntryBits))) |
		ppc.ME(uint32(31-cfg.TLBEntryBits)))
	b.out32(ppc.ADD | ppc.TAB(3, 3, cfg.AREG0))
	b.out32(ppc.LWZU | ppc.RT(4) | ppc.RA(3) | uint32(tagDisp)&0xffff)
	b.out32(ppc.RLWINM |
		ppc.RA(0) |
		ppc.RS(addrReg) |
		ppc.SH(0) |
		ppc.MB(uint32((32-sBits)&31)) |
		ppc.ME(uint32(31-cfg.PageBits)))

	b.out32(ppc.CMPL | ppc.BF(7) | ppc.RA(0) | ppc.RB(4))
	if cfg.AddrBits == 64 {
		b.out32(ppc.LWZ | ppc.RT(4) | ppc.RA(3) | 4)
		b.out32(ppc.CMPL | ppc.BF(6) | ppc.RA(addrReg2) | ppc.RB(4))
		b.out32(ppc.CRAND | ppc.BT(7, ppc.CREQ) | ppc.BA(6, ppc.CREQ) | ppc.BB(7, ppc.CREQ))
	}

	site := b.buf.Len()
	b.out32(ppc.BC | ppc.BI(7, ppc.CREQ) | ppc.BOCondTrue)
	return site
}

// tlbAddend finishes the fast path: r3 still points at the matched entry's
// tag slot, so one load reaches the addend and one add forms the host
// address.
func (b *Backend) tlbAddend(addrReg tcg.Arg, tagDisp int32) {
	b.out32(ppc.LWZ | ppc.RT(3) | ppc.RA(3) |
		uint32(b.addendExtra+b.cfg.AddendOff-tagDisp)&0xffff)
	b.out32(ppc.ADD | ppc.TAB(3, 3, addrReg))
}

// qemuLd lowers a guest load. opc&3 is the access width log2; opc&4
// requests sign extension.
func (b *Backend) qemuLd(args []tcg.Arg, opc int) {
	i := 0
	dataReg := args[i]
	i++
	var dataReg2 tcg.Arg
	if opc == 3 {
		dataReg2 = args[i]
		i++
	}
	addrReg := args[i]
	i++
	var addrReg2 tcg.Arg
	if b.cfg.AddrBits == 64 {
		addrReg2 = args[i]
		i++
	}
	memIndex := int(args[i])
	sBits := opc & 3

	tagDisp := b.cfg.AddrReadOff
	label1 := b.tlbProbe(addrReg, addrReg2, sBits, b.tlbReadDisp(memIndex))

	// Slow path.
	if b.cfg.AddrBits == 32 {
		b.mov(3, addrReg)
		b.movi(4, int32(memIndex))
	} else {
		b.mov(3, addrReg2)
		b.mov(4, addrReg)
		b.movi(5, int32(memIndex))
	}

	b.branch(ppc.LK, b.cfg.LdHelpers[sBits])
	switch opc {
	case 0 | 4:
		b.out32(ppc.EXTSB | ppc.RA(dataReg) | ppc.RS(3))
	case 1 | 4:
		b.out32(ppc.EXTSH | ppc.RA(dataReg) | ppc.RS(3))
	case 0, 1, 2:
		if dataReg != 3 {
			b.mov(dataReg, 3)
		}
	case 3:
		if dataReg == 3 {
			if dataReg2 == 4 {
				b.mov(0, 4)
				b.mov(4, 3)
				b.mov(3, 0)
			} else {
				b.mov(dataReg2, 3)
				b.mov(3, 4)
			}
		} else {
			if dataReg != 4 {
				b.mov(dataReg, 4)
			}
			if dataReg2 != 3 {
				b.mov(dataReg2, 3)
			}
		}
	}
	label2 := b.buf.Len()
	b.out32(ppc.B)

	// Fast path.
	b.patchHere(label1, code.Reloc14)
	b.tlbAddend(addrReg, tagDisp)
	r0 := tcg.Arg(3)

	bswap := !b.cfg.GuestBigEndian
	switch opc {
	default:
		fallthrough
	case 0:
		b.out32(ppc.LBZ | ppc.RT(dataReg) | ppc.RA(r0))
	case 0 | 4:
		b.out32(ppc.LBZ | ppc.RT(dataReg) | ppc.RA(r0))
		b.out32(ppc.EXTSB | ppc.RA(dataReg) | ppc.RS(dataReg))
	case 1:
		if bswap {
			b.out32(ppc.LHBRX | ppc.RT(dataReg) | ppc.RB(r0))
		} else {
			b.out32(ppc.LHZ | ppc.RT(dataReg) | ppc.RA(r0))
		}
	case 1 | 4:
		if bswap {
			b.out32(ppc.LHBRX | ppc.RT(dataReg) | ppc.RB(r0))
			b.out32(ppc.EXTSH | ppc.RA(dataReg) | ppc.RS(dataReg))
		} else {
			b.out32(ppc.LHA | ppc.RT(dataReg) | ppc.RA(r0))
		}
	case 2:
		if bswap {
			b.out32(ppc.LWBRX | ppc.RT(dataReg) | ppc.RB(r0))
		} else {
			b.out32(ppc.LWZ | ppc.RT(dataReg) | ppc.RA(r0))
		}
	case 3:
		if bswap {
			// Low word sits at the lower address; the pair lands
			// inverted so the 64-bit value comes out swapped too.
			if r0 == dataReg {
				b.out32(ppc.LWBRX | ppc.RT(0) | ppc.RB(r0))
				b.out32(ppc.ADDI | ppc.RT(r0) | ppc.RA(r0) | 4)
				b.out32(ppc.LWBRX | ppc.RT(dataReg2) | ppc.RB(r0))
				b.mov(dataReg, 0)
			} else {
				b.out32(ppc.LWBRX | ppc.RT(dataReg) | ppc.RB(r0))
				b.out32(ppc.ADDI | ppc.RT(r0) | ppc.RA(r0) | 4)
				b.out32(ppc.LWBRX | ppc.RT(dataReg2) | ppc.RB(r0))
			}
		} else {
			if r0 == dataReg2 {
				b.out32(ppc.LWZ | ppc.RT(0) | ppc.RA(r0))
				b.out32(ppc.LWZ | ppc.RT(dataReg) | ppc.RA(r0) | 4)
				b.mov(dataReg2, 0)
			} else {
				b.out32(ppc.LWZ | ppc.RT(dataReg2) | ppc.RA(r0))
				b.out32(ppc.LWZ | ppc.RT(dataReg) | ppc.RA(r0) | 4)
			}
		}
	}

	b.patchHere(label2, code.Reloc24)
}

// qemuSt lowers a guest store. opc is the access width log2.
func (b *Backend) qemuSt(args []tcg.Arg, opc int) {
	i := 0
	dataReg := args[i]
	i++
	var dataReg2 tcg.Arg
	if opc == 3 {
		dataReg2 = args[i]
		i++
	}
	addrReg := args[i]
	i++
	var addrReg2 tcg.Arg
	if b.cfg.AddrBits == 64 {
		addrReg2 = args[i]
		i++
	}
	memIndex := int(args[i])

	tagDisp := b.cfg.AddrWriteOff
	label1 := b.tlbProbe(addrReg, addrReg2, opc, b.tlbWriteDisp(memIndex))

	// Slow path. Narrow store data is masked, not just moved, so the
	// helper never sees stray high bits.
	var ir uint32
	if b.cfg.AddrBits == 32 {
		b.mov(3, addrReg)
		ir = 4
	} else {
		b.mov(3, addrReg2)
		b.mov(4, addrReg)
		ir = 5
	}

	switch opc {
	case 0:
		b.out32(ppc.RLWINM | ppc.RA(ir) | ppc.RS(dataReg) | ppc.SH(0) | ppc.MB(24) | ppc.ME(31))
	case 1:
		b.out32(ppc.RLWINM | ppc.RA(ir) | ppc.RS(dataReg) | ppc.SH(0) | ppc.MB(16) | ppc.ME(31))
	case 2:
		b.mov(ir, dataReg)
	case 3:
		b.mov(5, dataReg2)
		b.mov(6, dataReg)
		ir = 6
	}
	ir++

	b.movi(ir, int32(memIndex))
	b.branch(ppc.LK, b.cfg.StHelpers[opc])
	label2 := b.buf.Len()
	b.out32(ppc.B)

	// Fast path.
	b.patchHere(label1, code.Reloc14)
	b.tlbAddend(addrReg, tagDisp)
	r0 := tcg.Arg(3)
	r1 := tcg.Arg(4)

	bswap := !b.cfg.GuestBigEndian
	switch opc {
	case 0:
		b.out32(ppc.STB | ppc.RS(dataReg) | ppc.RA(r0))
	case 1:
		if bswap {
			b.out32(ppc.STHBRX | ppc.RS(dataReg) | ppc.RA(0) | ppc.RB(r0))
		} else {
			b.out32(ppc.STH | ppc.RS(dataReg) | ppc.RA(r0))
		}
	case 2:
		if bswap {
			b.out32(ppc.STWBRX | ppc.RS(dataReg) | ppc.RA(0) | ppc.RB(r0))
		} else {
			b.out32(ppc.STW | ppc.RS(dataReg) | ppc.RA(r0))
		}
	case 3:
		if bswap {
			b.out32(ppc.ADDI | ppc.RT(r1) | ppc.RA(r0) | 4)
			b.out32(ppc.STWBRX | ppc.RS(dataReg) | ppc.RA(0) | ppc.RB(r0))
			b.out32(ppc.STWBRX | ppc.RS(dataReg2) | ppc.RA(0) | ppc.RB(r1))
		} else {
			b.out32(ppc.STW | ppc.RS(dataReg2) | ppc.RA(r0))
			b.out32(ppc.STW | ppc.RS(dataReg) | ppc.RA(r0) | 4)
		}
	}

	b.patchHere(label2, code.Reloc24)
}
