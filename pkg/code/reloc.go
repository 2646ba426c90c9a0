package code

import "fmt"

// RelocKind selects the displacement field layout of a branch word.
type RelocKind int

const (
	// Reloc14 is the 14-bit conditional-branch displacement, bits 2..15.
	Reloc14 RelocKind = iota
	// Reloc24 is the 24-bit unconditional-branch displacement, bits 2..25.
	Reloc24
)

func (k RelocKind) String() string {
	switch k {
	case Reloc14:
		return "REL14"
	case Reloc24:
		return "REL24"
	}
	return fmt.Sprintf("RelocKind(%d)", int(k))
}

// Reloc14Val computes the conditional-branch displacement field for a
// branch at site targeting target. Both are absolute addresses.
func Reloc14Val(site, target int32) (uint32, error) {
	disp := target - site
	if disp != int32(int16(disp)) {
		return 0, fmt.Errorf("conditional branch displacement %#x out of 14-bit range", disp)
	}
	return uint32(disp) & 0xfffc, nil
}

// Reloc24Val computes the unconditional-branch displacement field.
func Reloc24Val(site, target int32) (uint32, error) {
	disp := target - site
	if disp<<6>>6 != disp {
		return 0, fmt.Errorf("branch displacement %#x out of 24-bit range", disp)
	}
	return uint32(disp) & 0x3fffffc, nil
}

// PatchReloc resolves the branch word at byte offset off against the
// absolute address value+addend. The displacement is OR-combined into the
// field; opcode, branch-option and link bits are preserved.
func (b *Buffer) PatchReloc(off int32, kind RelocKind, value, addend int32) error {
	site := b.AddrOf(off)
	target := value + addend
	switch kind {
	case Reloc14:
		field, err := Reloc14Val(site, target)
		if err != nil {
			return err
		}
		b.Patch32(off, b.Word(off)&^uint32(0xfffc)|field)
	case Reloc24:
		field, err := Reloc24Val(site, target)
		if err != nil {
			return err
		}
		b.Patch32(off, b.Word(off)&^uint32(0x3fffffc)|field)
	default:
		return fmt.Errorf("unknown relocation kind %d", int(kind))
	}
	return nil
}
