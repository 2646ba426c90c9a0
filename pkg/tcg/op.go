// Package tcg defines the architecture-neutral intermediate operation
// namespace the backend lowers, together with the label and relocation
// bookkeeping shared between the IR driver and the backend.
package tcg

// Arg is one operand of an IR operation: a register id, an immediate, a
// condition code or a label index depending on position. The parallel
// const-flags vector says which.
type Arg = uint32

// Op identifies one IR operation.
type Op int

const (
	OpExitTB Op = iota
	OpGotoTB
	OpCall
	OpJmp
	OpBr

	OpMov
	OpMovi
	OpLd8u
	OpLd8s
	OpLd16u
	OpLd16s
	OpLd
	OpSt8
	OpSt16
	OpSt

	OpAdd
	OpSub
	OpAnd
	OpOr
	OpXor
	OpMul
	OpMulu2
	OpDiv2
	OpDivu2

	OpShl
	OpShr
	OpSar

	OpAdd2
	OpSub2
	OpBrcond
	OpBrcond2
	OpNeg

	OpQemuLd8u
	OpQemuLd8s
	OpQemuLd16u
	OpQemuLd16s
	OpQemuLd32u
	OpQemuLd32s
	OpQemuLd64
	OpQemuSt8
	OpQemuSt16
	OpQemuSt32
	OpQemuSt64

	opCount
)

var opNames = [opCount]string{
	OpExitTB: "exit_tb", OpGotoTB: "goto_tb", OpCall: "call", OpJmp: "jmp", OpBr: "br",
	OpMov: "mov_i32", OpMovi: "movi_i32",
	OpLd8u: "ld8u_i32", OpLd8s: "ld8s_i32", OpLd16u: "ld16u_i32", OpLd16s: "ld16s_i32",
	OpLd: "ld_i32", OpSt8: "st8_i32", OpSt16: "st16_i32", OpSt: "st_i32",
	OpAdd: "add_i32", OpSub: "sub_i32", OpAnd: "and_i32", OpOr: "or_i32", OpXor: "xor_i32",
	OpMul: "mul_i32", OpMulu2: "mulu2_i32", OpDiv2: "div2_i32", OpDivu2: "divu2_i32",
	OpShl: "shl_i32", OpShr: "shr_i32", OpSar: "sar_i32",
	OpAdd2: "add2_i32", OpSub2: "sub2_i32",
	OpBrcond: "brcond_i32", OpBrcond2: "brcond2_i32", OpNeg: "neg_i32",
	OpQemuLd8u: "qemu_ld8u", OpQemuLd8s: "qemu_ld8s",
	OpQemuLd16u: "qemu_ld16u", OpQemuLd16s: "qemu_ld16s",
	OpQemuLd32u: "qemu_ld32u", OpQemuLd32s: "qemu_ld32s", OpQemuLd64: "qemu_ld64",
	OpQemuSt8: "qemu_st8", OpQemuSt16: "qemu_st16",
	OpQemuSt32: "qemu_st32", OpQemuSt64: "qemu_st64",
}

func (op Op) String() string {
	if op >= 0 && int(op) < len(opNames) && opNames[op] != "" {
		return opNames[op]
	}
	return "op?"
}

// Cond is a comparison condition. The order matches the backend's branch
// encoding table.
type Cond int

const (
	CondEQ Cond = iota
	CondNE
	CondLT
	CondGE
	CondLE
	CondGT
	CondLTU
	CondGEU
	CondLEU
	CondGTU
)

var condNames = [...]string{"eq", "ne", "lt", "ge", "le", "gt", "ltu", "geu", "leu", "gtu"}

func (c Cond) String() string {
	if c >= 0 && int(c) < len(condNames) {
		return condNames[c]
	}
	return "cond?"
}
