package emu

import (
	"fmt"
	"math/bits"
)

// maskMBME builds the rotate mask for mb..me in IBM bit numbering,
// wrapping when mb > me.
func maskMBME(mb, me uint32) uint32 {
	m1 := uint32(0xffffffff) >> mb
	m2 := uint32(0xffffffff) << (31 - me)
	if mb <= me {
		return m1 & m2
	}
	return m1 | m2
}

func signExt16(v uint32) uint32 { return uint32(int32(int16(v))) }

// branchTaken evaluates a BO/BI pair. CTR-decrementing forms are not in
// the emitted subset.
func (m *Machine) branchTaken(bo, bi uint32) (bool, error) {
	if bo&4 == 0 {
		return false, fmt.Errorf("CTR-decrement branch BO=%d unsupported", bo)
	}
	if bo&16 != 0 {
		return true, nil
	}
	return m.crBit(bi) == (bo&8 != 0), nil
}

// Step executes one instruction. Branch-and-link saves the return address
// before any hook at the target runs.
func (m *Machine) Step() error {
	if fn, ok := m.Hooks[m.PC]; ok {
		fn(m)
		m.PC = m.LR
		return nil
	}

	word, err := m.Load32(m.PC)
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	npc := m.PC + 4

	opcd := word >> 26
	rt := word >> 21 & 0x1f
	ra := word >> 16 & 0x1f
	rb := word >> 11 & 0x1f
	si := signExt16(word & 0xffff)
	ui := word & 0xffff

	// base+displacement effective address; RA=0 reads as literal zero.
	dEA := func() uint32 {
		if ra == 0 {
			return si
		}
		return m.R[ra] + si
	}
	// indexed effective address.
	xEA := func() uint32 {
		if ra == 0 {
			return m.R[rb]
		}
		return m.R[ra] + m.R[rb]
	}

	switch opcd {
	case 7: // mulli
		m.R[rt] = uint32(int32(m.R[ra]) * int32(si))
	case 10: // cmpli
		m.cmpUnsigned(word>>23&7, m.R[ra], ui)
	case 11: // cmpi
		m.cmpSigned(word>>23&7, int32(m.R[ra]), int32(si))
	case 14: // addi
		if ra == 0 {
			m.R[rt] = si
		} else {
			m.R[rt] = m.R[ra] + si
		}
	case 15: // addis
		if ra == 0 {
			m.R[rt] = ui << 16
		} else {
			m.R[rt] = m.R[ra] + ui<<16
		}
	case 16: // bc
		taken, err := m.branchTaken(rt, ra)
		if err != nil {
			return err
		}
		if word&1 != 0 {
			m.LR = m.PC + 4
		}
		if taken {
			npc = m.PC + signExt16(word&0xfffc)
		}
	case 18: // b
		disp := uint32(int32(word&0x3fffffc) << 6 >> 6)
		if word&1 != 0 {
			m.LR = m.PC + 4
		}
		npc = m.PC + disp
	case 19:
		switch xo := word >> 1 & 0x3ff; xo {
		case 16: // bclr
			taken, err := m.branchTaken(rt, ra)
			if err != nil {
				return err
			}
			target := m.LR &^ 3
			if word&1 != 0 {
				m.LR = m.PC + 4
			}
			if taken {
				npc = target
			}
		case 257: // crand
			m.setCRBit(rt, m.crBit(ra) && m.crBit(rb))
		case 528: // bcctr
			taken, err := m.branchTaken(rt, ra)
			if err != nil {
				return err
			}
			if word&1 != 0 {
				m.LR = m.PC + 4
			}
			if taken {
				npc = m.CTR &^ 3
			}
		default:
			return fmt.Errorf("opcode 19 xo %d at %#x", xo, m.PC)
		}
	case 21: // rlwinm
		sh := word >> 11 & 0x1f
		mb := word >> 6 & 0x1f
		me := word >> 1 & 0x1f
		m.R[ra] = bits.RotateLeft32(m.R[rt], int(sh)) & maskMBME(mb, me)
	case 24: // ori
		m.R[ra] = m.R[rt] | ui
	case 25: // oris
		m.R[ra] = m.R[rt] | ui<<16
	case 26: // xori
		m.R[ra] = m.R[rt] ^ ui
	case 27: // xoris
		m.R[ra] = m.R[rt] ^ ui<<16
	case 28: // andi.
		m.R[ra] = m.R[rt] & ui
		m.cmpSigned(0, int32(m.R[ra]), 0)
	case 29: // andis.
		m.R[ra] = m.R[rt] & (ui << 16)
		m.cmpSigned(0, int32(m.R[ra]), 0)
	case 31:
		if err := m.stepX(word, rt, ra, rb, xEA); err != nil {
			return err
		}
	case 32: // lwz
		v, err := m.Load32(dEA())
		if err != nil {
			return err
		}
		m.R[rt] = v
	case 33: // lwzu
		ea := m.R[ra] + si
		v, err := m.Load32(ea)
		if err != nil {
			return err
		}
		m.R[rt] = v
		m.R[ra] = ea
	case 34: // lbz
		v, err := m.Load8(dEA())
		if err != nil {
			return err
		}
		m.R[rt] = uint32(v)
	case 36: // stw
		if err := m.Store32(dEA(), m.R[rt]); err != nil {
			return err
		}
	case 37: // stwu
		ea := m.R[ra] + si
		if err := m.Store32(ea, m.R[rt]); err != nil {
			return err
		}
		m.R[ra] = ea
	case 38: // stb
		if err := m.Store8(dEA(), uint8(m.R[rt])); err != nil {
			return err
		}
	case 40: // lhz
		v, err := m.Load16(dEA())
		if err != nil {
			return err
		}
		m.R[rt] = uint32(v)
	case 42: // lha
		v, err := m.Load16(dEA())
		if err != nil {
			return err
		}
		m.R[rt] = uint32(int32(int16(v)))
	case 44: // sth
		if err := m.Store16(dEA(), uint16(m.R[rt])); err != nil {
			return err
		}
	default:
		return fmt.Errorf("opcode %d at %#x", opcd, m.PC)
	}

	m.PC = npc
	return nil
}

// stepX handles the opcode-31 extended forms.
func (m *Machine) stepX(word, rt, ra, rb uint32, xEA func() uint32) error {
	switch xo := word >> 1 & 0x3ff; xo {
	case 0: // cmp
		m.cmpSigned(word>>23&7, int32(m.R[ra]), int32(m.R[rb]))
	case 32: // cmpl
		m.cmpUnsigned(word>>23&7, m.R[ra], m.R[rb])
	case 4: // tw
		return fmt.Errorf("trap at %#x", m.PC)

	case 266: // add
		m.R[rt] = m.R[ra] + m.R[rb]
	case 40: // subf
		m.R[rt] = m.R[rb] - m.R[ra]
	case 104: // neg
		m.R[rt] = -m.R[ra]
	case 10: // addc
		sum := uint64(m.R[ra]) + uint64(m.R[rb])
		m.R[rt] = uint32(sum)
		m.CA = sum>>32 != 0
	case 138: // adde
		sum := uint64(m.R[ra]) + uint64(m.R[rb]) + b2u64(m.CA)
		m.R[rt] = uint32(sum)
		m.CA = sum>>32 != 0
	case 8: // subfc
		sum := uint64(^m.R[ra]) + uint64(m.R[rb]) + 1
		m.R[rt] = uint32(sum)
		m.CA = sum>>32 != 0
	case 136: // subfe
		sum := uint64(^m.R[ra]) + uint64(m.R[rb]) + b2u64(m.CA)
		m.R[rt] = uint32(sum)
		m.CA = sum>>32 != 0

	case 235: // mullw
		m.R[rt] = uint32(int32(m.R[ra]) * int32(m.R[rb]))
	case 11: // mulhwu
		m.R[rt] = uint32(uint64(m.R[ra]) * uint64(m.R[rb]) >> 32)
	case 491: // divw
		if m.R[rb] == 0 {
			return fmt.Errorf("divw by zero at %#x", m.PC)
		}
		m.R[rt] = uint32(int32(m.R[ra]) / int32(m.R[rb]))
	case 459: // divwu
		if m.R[rb] == 0 {
			return fmt.Errorf("divwu by zero at %#x", m.PC)
		}
		m.R[rt] = m.R[ra] / m.R[rb]

	case 28: // and
		m.R[ra] = m.R[rt] & m.R[rb]
	case 444: // or
		m.R[ra] = m.R[rt] | m.R[rb]
	case 316: // xor
		m.R[ra] = m.R[rt] ^ m.R[rb]

	case 24: // slw
		sh := m.R[rb] & 0x3f
		if sh >= 32 {
			m.R[ra] = 0
		} else {
			m.R[ra] = m.R[rt] << sh
		}
	case 536: // srw
		sh := m.R[rb] & 0x3f
		if sh >= 32 {
			m.R[ra] = 0
		} else {
			m.R[ra] = m.R[rt] >> sh
		}
	case 792: // sraw
		sh := m.R[rb] & 0x3f
		v := int32(m.R[rt])
		if sh >= 32 {
			m.R[ra] = uint32(v >> 31)
			m.CA = v < 0 && v != 0
		} else {
			m.R[ra] = uint32(v >> sh)
			m.CA = v < 0 && m.R[rt]&(uint32(1)<<sh-1) != 0
		}
	case 824: // srawi
		sh := rb
		v := int32(m.R[rt])
		m.R[ra] = uint32(v >> sh)
		m.CA = v < 0 && m.R[rt]&(uint32(1)<<sh-1) != 0

	case 954: // extsb
		m.R[ra] = uint32(int32(int8(m.R[rt])))
	case 922: // extsh
		m.R[ra] = uint32(int32(int16(m.R[rt])))

	case 339: // mfspr
		spr := (word >> 16 & 0x1f) | (word>>11&0x1f)<<5
		switch spr {
		case 8:
			m.R[rt] = m.LR
		case 9:
			m.R[rt] = m.CTR
		default:
			return fmt.Errorf("mfspr %d at %#x", spr, m.PC)
		}
	case 467: // mtspr
		spr := (word >> 16 & 0x1f) | (word>>11&0x1f)<<5
		switch spr {
		case 8:
			m.LR = m.R[rt]
		case 9:
			m.CTR = m.R[rt]
		default:
			return fmt.Errorf("mtspr %d at %#x", spr, m.PC)
		}

	case 23: // lwzx
		v, err := m.Load32(xEA())
		if err != nil {
			return err
		}
		m.R[rt] = v
	case 87: // lbzx
		v, err := m.Load8(xEA())
		if err != nil {
			return err
		}
		m.R[rt] = uint32(v)
	case 276: // lhzx
		v, err := m.Load16(xEA())
		if err != nil {
			return err
		}
		m.R[rt] = uint32(v)
	case 343: // lhax
		v, err := m.Load16(xEA())
		if err != nil {
			return err
		}
		m.R[rt] = uint32(int32(int16(v)))
	case 534: // lwbrx
		v, err := m.Load32(xEA())
		if err != nil {
			return err
		}
		m.R[rt] = bits.ReverseBytes32(v)
	case 790: // lhbrx
		v, err := m.Load16(xEA())
		if err != nil {
			return err
		}
		m.R[rt] = uint32(bits.ReverseBytes16(v))

	case 151: // stwx
		return m.Store32(xEA(), m.R[rt])
	case 215: // stbx
		return m.Store8(xEA(), uint8(m.R[rt]))
	case 407: // sthx
		return m.Store16(xEA(), uint16(m.R[rt]))
	case 662: // stwbrx
		return m.Store32(xEA(), bits.ReverseBytes32(m.R[rt]))
	case 918: // sthbrx
		return m.Store16(xEA(), bits.ReverseBytes16(uint16(m.R[rt])))

	default:
		return fmt.Errorf("opcode 31 xo %d at %#x", xo, m.PC)
	}
	return nil
}

func b2u64(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}
