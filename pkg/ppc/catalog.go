package ppc

// Form describes how an instruction's operands are laid out, so the
// disassembler knows which fields to pull out of the word.
type Form int

const (
	FormDArith  Form = iota // RT,RA,SI (addi, addis, mulli)
	FormDLogic              // RA,RS,UI (ori, andi., xori, ...)
	FormDCmp                // crfD,RA,SI/UI (cmpi, cmpli)
	FormDMem                // RT/RS,D(RA) (lwz, stw, lbz, ...)
	FormXArith              // RT,RA,RB (add, subf, mullw, ...)
	FormXLogic              // RA,RS,RB (or, and, slw, ...)
	FormXCmp                // crfD,RA,RB (cmp, cmpl)
	FormXMem                // RT/RS,RA,RB (lwzx, lwbrx, ...)
	FormXExt                // RA,RS (extsb, extsh)
	FormXNeg                // RT,RA (neg)
	FormXShImm              // RA,RS,SH (srawi)
	FormXSpr                // mtspr/mfspr
	FormMD                  // RA,RS,SH,MB,ME (rlwinm)
	FormBranch              // b/bl with LI
	FormBranchC             // bc with BO,BI,BD
	FormBranchR             // bclr/bcctr
	FormCRLogic             // crand
	FormTrap
)

// Info holds static metadata for one instruction pattern.
type Info struct {
	Mnemonic string
	Form     Form
}

// opcdCatalog maps primary opcodes of D/I/B-form instructions.
var opcdCatalog = map[uint32]Info{
	7:  {"mulli", FormDArith},
	10: {"cmpli", FormDCmp},
	11: {"cmpi", FormDCmp},
	14: {"addi", FormDArith},
	15: {"addis", FormDArith},
	16: {"bc", FormBranchC},
	18: {"b", FormBranch},
	21: {"rlwinm", FormMD},
	24: {"ori", FormDLogic},
	25: {"oris", FormDLogic},
	26: {"xori", FormDLogic},
	27: {"xoris", FormDLogic},
	28: {"andi.", FormDLogic},
	29: {"andis.", FormDLogic},
	32: {"lwz", FormDMem},
	33: {"lwzu", FormDMem},
	34: {"lbz", FormDMem},
	36: {"stw", FormDMem},
	37: {"stwu", FormDMem},
	38: {"stb", FormDMem},
	40: {"lhz", FormDMem},
	42: {"lha", FormDMem},
	44: {"sth", FormDMem},
}

// xo19Catalog maps extended opcodes under primary opcode 19.
var xo19Catalog = map[uint32]Info{
	16:  {"bclr", FormBranchR},
	257: {"crand", FormCRLogic},
	528: {"bcctr", FormBranchR},
}

// xo31Catalog maps extended opcodes under primary opcode 31.
var xo31Catalog = map[uint32]Info{
	0:   {"cmp", FormXCmp},
	4:   {"tw", FormTrap},
	8:   {"subfc", FormXArith},
	10:  {"addc", FormXArith},
	11:  {"mulhwu", FormXArith},
	23:  {"lwzx", FormXMem},
	24:  {"slw", FormXLogic},
	28:  {"and", FormXLogic},
	32:  {"cmpl", FormXCmp},
	40:  {"subf", FormXArith},
	87:  {"lbzx", FormXMem},
	104: {"neg", FormXNeg},
	136: {"subfe", FormXArith},
	138: {"adde", FormXArith},
	151: {"stwx", FormXMem},
	215: {"stbx", FormXMem},
	235: {"mullw", FormXArith},
	266: {"add", FormXArith},
	276: {"lhzx", FormXMem},
	316: {"xor", FormXLogic},
	339: {"mfspr", FormXSpr},
	343: {"lhax", FormXMem},
	407: {"sthx", FormXMem},
	444: {"or", FormXLogic},
	459: {"divwu", FormXArith},
	467: {"mtspr", FormXSpr},
	491: {"divw", FormXArith},
	534: {"lwbrx", FormXMem},
	536: {"srw", FormXLogic},
	662: {"stwbrx", FormXMem},
	790: {"lhbrx", FormXMem},
	792: {"sraw", FormXLogic},
	824: {"srawi", FormXShImm},
	918: {"sthbrx", FormXMem},
	922: {"extsh", FormXExt},
	954: {"extsb", FormXExt},
}

// Lookup finds the Info for an instruction word. ok is false for words
// outside the emitted subset.
func Lookup(word uint32) (Info, bool) {
	opcd := word >> 26
	switch opcd {
	case 19:
		info, ok := xo19Catalog[(word>>1)&0x3ff]
		return info, ok
	case 31:
		info, ok := xo31Catalog[(word>>1)&0x3ff]
		return info, ok
	default:
		info, ok := opcdCatalog[opcd]
		return info, ok
	}
}
