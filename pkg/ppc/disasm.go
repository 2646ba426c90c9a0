package ppc

import "fmt"

// Disasm renders one instruction word from the emitted subset. pc is the
// word's own address, used to print absolute branch targets. Unknown words
// come back as ".long 0x...." so dumps stay readable.
func Disasm(pc uint32, word uint32) string {
	info, ok := Lookup(word)
	if !ok {
		return fmt.Sprintf(".long 0x%08x", word)
	}

	rt := word >> 21 & 0x1f
	ra := word >> 16 & 0x1f
	rb := word >> 11 & 0x1f
	si := int32(int16(word))
	ui := word & 0xffff

	switch info.Form {
	case FormDArith:
		return fmt.Sprintf("%s r%d,r%d,%d", info.Mnemonic, rt, ra, si)
	case FormDLogic:
		// RS is the source, RA the destination.
		return fmt.Sprintf("%s r%d,r%d,0x%x", info.Mnemonic, ra, rt, ui)
	case FormDCmp:
		crf := word >> 23 & 7
		if word>>26 == 10 { // cmpli takes an unsigned immediate
			return fmt.Sprintf("%s cr%d,r%d,0x%x", info.Mnemonic, crf, ra, ui)
		}
		return fmt.Sprintf("%s cr%d,r%d,%d", info.Mnemonic, crf, ra, si)
	case FormDMem:
		return fmt.Sprintf("%s r%d,%d(r%d)", info.Mnemonic, rt, si, ra)
	case FormXArith:
		return fmt.Sprintf("%s r%d,r%d,r%d", info.Mnemonic, rt, ra, rb)
	case FormXLogic:
		if info.Mnemonic == "or" && rt == rb {
			return fmt.Sprintf("mr r%d,r%d", ra, rt)
		}
		return fmt.Sprintf("%s r%d,r%d,r%d", info.Mnemonic, ra, rt, rb)
	case FormXCmp:
		crf := word >> 23 & 7
		return fmt.Sprintf("%s cr%d,r%d,r%d", info.Mnemonic, crf, ra, rb)
	case FormXMem:
		return fmt.Sprintf("%s r%d,r%d,r%d", info.Mnemonic, rt, ra, rb)
	case FormXExt:
		return fmt.Sprintf("%s r%d,r%d", info.Mnemonic, ra, rt)
	case FormXNeg:
		return fmt.Sprintf("%s r%d,r%d", info.Mnemonic, rt, ra)
	case FormXShImm:
		return fmt.Sprintf("%s r%d,r%d,%d", info.Mnemonic, ra, rt, rb)
	case FormXSpr:
		spr := (word >> 16 & 0x1f) | (word>>11&0x1f)<<5
		name := fmt.Sprintf("%d", spr)
		switch spr {
		case 8:
			name = "lr"
		case 9:
			name = "ctr"
		}
		if info.Mnemonic == "mtspr" {
			return fmt.Sprintf("mt%s r%d", name, rt)
		}
		return fmt.Sprintf("mf%s r%d", name, rt)
	case FormMD:
		sh := word >> 11 & 0x1f
		mb := word >> 6 & 0x1f
		me := word >> 1 & 0x1f
		return fmt.Sprintf("%s r%d,r%d,%d,%d,%d", info.Mnemonic, ra, rt, sh, mb, me)
	case FormBranch:
		disp := int32(word&0x3fffffc) << 6 >> 6
		m := info.Mnemonic
		if word&LK != 0 {
			m += "l"
		}
		return fmt.Sprintf("%s 0x%x", m, pc+uint32(disp))
	case FormBranchC:
		bo := word >> 21 & 0x1f
		bi := word >> 16 & 0x1f
		disp := int32(int16(word & 0xfffc))
		return fmt.Sprintf("%s %d,%d,0x%x", info.Mnemonic, bo, bi, pc+uint32(disp))
	case FormBranchR:
		m := info.Mnemonic
		if word&LK != 0 {
			m += "l"
		}
		return fmt.Sprintf("%s %d,%d", m, word>>21&0x1f, word>>16&0x1f)
	case FormCRLogic:
		return fmt.Sprintf("%s %d,%d,%d", info.Mnemonic, rt, ra, rb)
	case FormTrap:
		return fmt.Sprintf("%s %d,r%d,r%d", info.Mnemonic, rt, ra, rb)
	}
	return fmt.Sprintf(".long 0x%08x", word)
}
