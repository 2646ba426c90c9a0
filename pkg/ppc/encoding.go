package ppc

// Instruction words are assembled by OR-ing a base opcode with operand
// fields. Bit positions follow the IBM convention (bit 0 is the MSB), so a
// field "at bits 21..25" shifts left by 21 counted from the LSB side.

// Opcd places a primary opcode in bits 0..5.
func Opcd(op uint32) uint32 { return op << 26 }

// XO31 builds an X-form base for primary opcode 31 with the given extended
// opcode in bits 21..30.
func XO31(xo uint32) uint32 { return Opcd(31) | xo<<1 }

// XO19 builds an XL-form base for primary opcode 19.
func XO19(xo uint32) uint32 { return Opcd(19) | xo<<1 }

// D-form and I/B-form base opcodes.
var (
	B   = Opcd(18)
	BC  = Opcd(16)
	LBZ = Opcd(34)
	LHZ = Opcd(40)
	LHA = Opcd(42)
	LWZ = Opcd(32)
	STB = Opcd(38)
	STH = Opcd(44)
	STW = Opcd(36)

	ADDI  = Opcd(14)
	ADDIS = Opcd(15)
	ORI   = Opcd(24)
	ORIS  = Opcd(25)
	XORI  = Opcd(26)
	XORIS = Opcd(27)
	ANDI  = Opcd(28)
	ANDIS = Opcd(29)
	MULLI = Opcd(7)
	CMPLI = Opcd(10)
	CMPI  = Opcd(11)

	LWZU = Opcd(33)
	STWU = Opcd(37)

	RLWINM = Opcd(21)
)

// XL-form (opcode 19).
var (
	BCLR  = XO19(16)
	BCCTR = XO19(528)
	CRAND = XO19(257)
)

// X/XO-form (opcode 31).
var (
	EXTSB  = XO31(954)
	EXTSH  = XO31(922)
	ADD    = XO31(266)
	ADDE   = XO31(138)
	ADDC   = XO31(10)
	AND    = XO31(28)
	SUBF   = XO31(40)
	SUBFC  = XO31(8)
	SUBFE  = XO31(136)
	OR     = XO31(444)
	XOR    = XO31(316)
	MULLW  = XO31(235)
	MULHWU = XO31(11)
	DIVW   = XO31(491)
	DIVWU  = XO31(459)
	CMP    = XO31(0)
	CMPL   = XO31(32)
	LHBRX  = XO31(790)
	LWBRX  = XO31(534)
	STHBRX = XO31(918)
	STWBRX = XO31(662)
	MFSPR  = XO31(339)
	MTSPR  = XO31(467)
	SRAWI  = XO31(824)
	NEG    = XO31(104)

	LBZX = XO31(87)
	LHZX = XO31(276)
	LHAX = XO31(343)
	LWZX = XO31(23)
	STBX = XO31(215)
	STHX = XO31(407)
	STWX = XO31(151)

	SLW  = XO31(24)
	SRW  = XO31(536)
	SRAW = XO31(792)
)

var (
	LMW  = Opcd(46)
	STMW = Opcd(47)

	TW   = XO31(4)
	TRAP = TW | TO(31)
)

// SPR encodes a split special-purpose-register number for MFSPR/MTSPR.
func SPR(a, b uint32) uint32 { return (a<<5 | b) << 11 }

// Link register and count register SPR fields.
var (
	LRSPR  = SPR(8, 0)
	CTRSPR = SPR(9, 0)
)

// LK is the link bit on branches.
const LK = 1

// Operand field builders.
func RT(r uint32) uint32 { return r << 21 }
func RS(r uint32) uint32 { return r << 21 }
func RA(r uint32) uint32 { return r << 16 }
func RB(r uint32) uint32 { return r << 11 }
func TO(t uint32) uint32 { return t << 21 }
func SH(s uint32) uint32 { return s << 11 }
func MB(b uint32) uint32 { return b << 6 }
func ME(e uint32) uint32 { return e << 1 }
func BO(o uint32) uint32 { return o << 21 }

// TAB packs the RT/RA/RB triple of an XO-form arithmetic op.
func TAB(t, a, b uint32) uint32 { return RT(t) | RA(a) | RB(b) }

// SAB packs the RS/RA/RB triple of a logical op (result goes to RA).
func SAB(s, a, b uint32) uint32 { return RS(s) | RA(a) | RB(b) }

// Condition-register bits within a 4-bit CR field.
const (
	CRLT = iota
	CRGT
	CREQ
	CRSO
)

// BF selects the CR field written by a compare.
func BF(n uint32) uint32 { return n << 23 }

// BI selects CR bit c of field n as a branch condition.
func BI(n, c uint32) uint32 { return (c + n*4) << 16 }

// BT/BA/BB select CR bits for CR-logical ops (CRAND).
func BT(n, c uint32) uint32 { return (c + n*4) << 21 }
func BA(n, c uint32) uint32 { return (c + n*4) << 16 }
func BB(n, c uint32) uint32 { return (c + n*4) << 11 }

// Branch-option encodings. Only the three forms the generator emits.
var (
	BOCondTrue  = BO(12)
	BOCondFalse = BO(4)
	BOAlways    = BO(20)
)
