package codegen

import (
	"fmt"

	"github.com/zil-lang/zilc/pkg/diagnostics"
	"github.com/zil-lang/zilc/pkg/ir"
)

// operandTypeBits returns the 2-bit operand type code spec §6 defines:
// 00 large constant, 01 small constant, 10 variable, 11 omitted.
func operandTypeBits(o ir.Operand) byte {
	switch o.Kind {
	case ir.OperandLargeConst, ir.OperandPlaceholder:
		return 0x00
	case ir.OperandSmallConst:
		return 0x01
	case ir.OperandVariable:
		return 0x02
	default:
		return 0x03
	}
}

// LabelResolver maps a routine-local label name to its final byte
// offset within the routine, once the assembler's layout pass has
// placed every instruction.
type LabelResolver func(label string) (int, bool)

// PlaceholderSlot records where one unresolved ir.Operand landed within
// an Encode call's returned bytes, so the assembler can come back after
// layout and patch in the real routine/string/vocabulary address (spec
// §4.9 "phase 2 — fixup").
type PlaceholderSlot struct {
	Offset  int
	Operand ir.Operand
}

// Encoder turns ir.Instructions into Z-machine machine code for a
// fixed target version.
type Encoder struct {
	Version int
}

func NewEncoder(version int) *Encoder { return &Encoder{Version: version} }

// Encode emits the bytes for one instruction. pc is the instruction's
// own starting byte offset (needed to compute a branch's relative
// offset); resolve looks up label byte offsets already fixed by the
// assembler's layout pass — during the first layout pass resolve may
// return false, in which case Encode emits the same number of bytes
// with a zero offset, and the assembler's second pass encodes the
// instruction again once every label is placed (spec §8
// "two-phase layout … forward-reference/placeholder fixups").
func (e *Encoder) Encode(instr ir.Instruction, pc int, resolve LabelResolver) ([]byte, []PlaceholderSlot, error) {
	if instr.Op == "JUMP" && instr.Branch != nil {
		out, err := e.encodeJump(instr, pc, resolve)
		return out, nil, err
	}

	info, err := Lookup(instr.Op, e.Version)
	if err != nil {
		return nil, nil, diagnostics.Wrap(diagnostics.Codegen, instr.Pos, err, "encoding %s", instr.Op)
	}

	var out []byte
	switch info.Class {
	case Op0:
		out = append(out, info.Number)
	case Op1:
		out, err = e.encode1OP(info, instr)
	case Op2:
		out, err = e.encode2OP(info, instr)
	case OpVar:
		out, err = e.encodeVAR(info, instr, 0xE0)
	case OpExt:
		out, err = e.encodeEXT(info, instr)
	default:
		return nil, nil, fmt.Errorf("unhandled opcode class for %s", instr.Op)
	}
	if err != nil {
		return nil, nil, err
	}

	var slots []PlaceholderSlot
	for _, o := range instr.Operands {
		if o.Kind == ir.OperandPlaceholder {
			slots = append(slots, PlaceholderSlot{Offset: len(out), Operand: o})
		}
		out = append(out, e.encodeOperandValue(o)...)
	}

	if instr.HasStore {
		out = append(out, byte(instr.Store.Value))
	}

	if instr.Branch != nil {
		branchBytes, err := e.encodeBranch(instr, pc+len(out), resolve)
		if err != nil {
			return nil, nil, err
		}
		out = append(out, branchBytes...)
	}

	return out, slots, nil
}

// encodeJump emits the 1OP JUMP instruction. Unusually for the
// Z-machine ISA, JUMP's one operand is not a branch byte but a plain
// large-constant operand holding a signed offset added to PC after
// the instruction executes (spec §6 "control-flow lowering").
func (e *Encoder) encodeJump(instr ir.Instruction, pc int, resolve LabelResolver) ([]byte, error) {
	const opByte = 0x8C // 1OP, large-constant type bits, opcode 0x0C
	out := []byte{opByte, 0x00, 0x00}
	target, ok := resolve(instr.Branch.Target)
	if !ok {
		return out, nil
	}
	offset := int16(target - (pc + 3))
	out[1] = byte(uint16(offset) >> 8)
	out[2] = byte(uint16(offset))
	return out, nil
}

func (e *Encoder) encodeOperandValue(o ir.Operand) []byte {
	switch o.Kind {
	case ir.OperandLargeConst:
		return []byte{byte(o.Value >> 8), byte(o.Value)}
	case ir.OperandSmallConst, ir.OperandVariable:
		return []byte{byte(o.Value)}
	default:
		// Unresolved placeholder: reserve the worst-case two bytes: a
		// Placeholder's final shape is always a routine/string address,
		// which is a large constant (spec §3 "Placeholder").
		return []byte{0x00, 0x00}
	}
}

// encode1OP picks short form (one operand) and its top two type bits.
func (e *Encoder) encode1OP(info opcodeInfo, instr ir.Instruction) ([]byte, error) {
	if len(instr.Operands) != 1 {
		return nil, fmt.Errorf("%s (1OP) requires exactly one operand, got %d", instr.Op, len(instr.Operands))
	}
	typeBits := operandTypeBits(instr.Operands[0])
	opByte := 0x80 | (typeBits << 4) | (info.Number & 0x0F)
	return []byte{opByte}, nil
}

// encode2OP picks long form when both operands are small-const/variable
// (the common case), falling back to variable form (0xC0|number) when
// an operand needs the large-constant type, since long form only has
// one bit per operand for const-vs-variable.
func (e *Encoder) encode2OP(info opcodeInfo, instr ir.Instruction) ([]byte, error) {
	if len(instr.Operands) != 2 {
		return nil, fmt.Errorf("%s (2OP) requires exactly two operands, got %d", instr.Op, len(instr.Operands))
	}
	if operandTypeBits(instr.Operands[0]) == 0x00 || operandTypeBits(instr.Operands[1]) == 0x00 {
		return e.encodeVAR(info, instr, 0xC0)
	}
	bit6 := byte(0)
	if operandTypeBits(instr.Operands[0]) == 0x02 {
		bit6 = 1
	}
	bit5 := byte(0)
	if operandTypeBits(instr.Operands[1]) == 0x02 {
		bit5 = 1
	}
	opByte := (bit6 << 6) | (bit5 << 5) | (info.Number & 0x1F)
	return []byte{opByte}, nil
}

// encodeVAR emits variable form: the opcode byte, then one or two
// operand-type bytes (4 operands per byte, 2 bits each, 11=terminator
// when fewer than 4/8 operands are present).
func (e *Encoder) encodeVAR(info opcodeInfo, instr ir.Instruction, formBase byte) ([]byte, error) {
	if len(instr.Operands) > 8 {
		return nil, fmt.Errorf("%s: too many operands (%d), max 8", instr.Op, len(instr.Operands))
	}
	two2OPAsVar := formBase == 0xC0
	opByte := formBase | (info.Number & 0x1F)
	if !two2OPAsVar {
		opByte = 0xE0 | (info.Number & 0x1F)
	}
	out := []byte{opByte}
	out = append(out, typeByte(instr.Operands, 0)...)
	if len(instr.Operands) > 4 {
		out = append(out, typeByte(instr.Operands, 4)...)
	}
	return out, nil
}

func typeByte(operands []ir.Operand, from int) []byte {
	b := byte(0xFF) // all-omitted default
	for i := 0; i < 4; i++ {
		shift := uint(6 - 2*i)
		var bits byte = 0x03
		if from+i < len(operands) {
			bits = operandTypeBits(operands[from+i])
		}
		b = (b &^ (0x03 << shift)) | (bits << shift)
	}
	return []byte{b}
}

// encodeEXT emits V5+ extended form: opcode byte 0xBE, then the real
// opcode number, then a VAR-style operand type byte.
func (e *Encoder) encodeEXT(info opcodeInfo, instr ir.Instruction) ([]byte, error) {
	out := []byte{0xBE, info.Number}
	out = append(out, typeByte(instr.Operands, 0)...)
	return out, nil
}

// encodeBranch emits the branch operand byte(s): bit 7 is polarity
// (Sense), bit 6 selects the 1-byte short form (offset fits in 6 bits)
// vs the 2-byte long form, and the remaining bits hold the branch
// offset computed from pc (the byte just after the branch field) to
// the label (spec §6 "offset formula target - branch_end_pc + 2").
//
// A branch to a label always takes the 2-byte long form, even when its
// final offset would fit the 1-byte short form: a routine's instruction
// sizes must not depend on addresses that are only known once the
// whole routine is laid out, so the assembler's layout pass and its
// later fixup pass agree on size without a fixed-point iteration. A
// branch that returns true or false instead takes the 1-byte short
// form with offset 1 or 0.
func (e *Encoder) encodeBranch(instr ir.Instruction, branchFieldStart int, resolve LabelResolver) ([]byte, error) {
	b := instr.Branch
	sense := byte(0x80)
	if b.Sense == ir.BranchOnFalse {
		sense = 0x00
	}

	if b.ReturnsTrue {
		return []byte{sense | 0x40 | 1}, nil
	}
	if b.ReturnsFalse {
		return []byte{sense | 0x40 | 0}, nil
	}

	target, ok := resolve(b.Target)
	if !ok {
		return []byte{sense, 0x00}, nil
	}
	offset := target - (branchFieldStart + 2) + 2
	hi := byte((offset >> 8) & 0x3F)
	lo := byte(offset)
	return []byte{sense | hi, lo}, nil
}
