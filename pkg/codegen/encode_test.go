package codegen

import (
	"testing"

	"github.com/zil-lang/zilc/pkg/ir"
)

func alwaysUnresolved(string) (int, bool) { return 0, false }

// Scenario 1 from spec §8: QUIT with no operands compiles to the
// single byte 0xBA.
func TestEncodeQuit(t *testing.T) {
	enc := NewEncoder(3)
	instr := ir.Instruction{Op: "QUIT"}
	out, ph, err := enc.Encode(instr, 0, alwaysUnresolved)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ph) != 0 {
		t.Errorf("expected no placeholder slots, got %d", len(ph))
	}
	if len(out) != 1 || out[0] != 0xBA {
		t.Errorf("got % X, want [BA]", out)
	}
}

func TestEncodeNewLine(t *testing.T) {
	enc := NewEncoder(3)
	out, _, err := enc.Encode(ir.Instruction{Op: "NEW_LINE"}, 0, alwaysUnresolved)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 || out[0] != 0xBB {
		t.Errorf("got % X, want [BB]", out)
	}
}

// A branch target that is not yet resolvable must still produce a
// fixed-size, 2-byte long-form branch: the assembler's layout pass
// needs every instruction's size to be independent of whether its
// branch target happens to be known yet (pkg/assemble's two-pass
// routine placement depends on this).
func TestEncodeBranchAlwaysLongForm(t *testing.T) {
	enc := NewEncoder(3)
	instr := ir.Instruction{
		Op:       "JE",
		Operands: []ir.Operand{ir.VarOperand(1), ir.ConstOperand(3)},
		Branch:   &ir.Branch{Sense: ir.BranchOnTrue, Target: "somewhere"},
	}

	unresolvedBytes, _, err := enc.Encode(instr, 0, alwaysUnresolved)
	if err != nil {
		t.Fatalf("unexpected error (unresolved): %v", err)
	}

	resolved := func(label string) (int, bool) {
		if label == "somewhere" {
			return 40, true
		}
		return 0, false
	}
	resolvedBytes, _, err := enc.Encode(instr, 0, resolved)
	if err != nil {
		t.Fatalf("unexpected error (resolved): %v", err)
	}

	if len(unresolvedBytes) != len(resolvedBytes) {
		t.Errorf("branch instruction size changed once its target resolved: %d vs %d bytes",
			len(unresolvedBytes), len(resolvedBytes))
	}
	for _, got := range [][]byte{unresolvedBytes, resolvedBytes} {
		// opcode byte, two operand bytes, then two branch bytes whose
		// first has the short-form bit (bit 6) clear.
		if len(got) != 5 || got[3]&0x40 != 0 {
			t.Errorf("JE branch encoded as % X, want 5 bytes ending in a 2-byte long-form branch", got)
		}
	}
}

// JUMP uses its own 1OP-large-constant signed-offset encoding (opcode
// 0x8C followed by a 2-byte signed offset), not a branch byte.
func TestEncodeJumpOpcodeAndWidth(t *testing.T) {
	enc := NewEncoder(3)
	instr := ir.Instruction{
		Op:     "JUMP",
		Branch: &ir.Branch{Target: "label"},
	}
	resolved := func(string) (int, bool) { return 10, true }
	out, _, err := enc.Encode(instr, 0, resolved)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("JUMP should encode to 3 bytes (opcode + signed offset), got %d", len(out))
	}
	if out[0] != 0x8C {
		t.Errorf("JUMP opcode byte = 0x%02X, want 0x8C", out[0])
	}
}
