package zilctest

import (
	"testing"

	"github.com/zil-lang/zilc/pkg/ir"
)

// routineNamed returns the lowered routine named name, or fails the test.
func routineNamed(t *testing.T, r *CompileResult, name string) *ir.Routine {
	t.Helper()
	for _, rt := range r.Routines {
		if r.Atoms.Name(rt.Name) == name {
			return rt
		}
	}
	t.Fatalf("no lowered routine named %q", name)
	return nil
}

// Scenario 3 from spec §8: RTRUE/RFALSE used as bare statements inside
// COND must compile to the real 0OP opcodes, not calls to undefined
// routines named RTRUE/RFALSE.
func TestRtrueRfalseInCondLowerToRealOpcodes(t *testing.T) {
	h := New(t, 3)
	r := h.MustCompile(`<ROUTINE GO (X)
		<COND (<EQUAL? .X 1> <RTRUE>)
		      (T <RFALSE>)>>`)

	routine := routineNamed(t, r, "GO")
	var sawRtrue, sawRfalse bool
	for _, instr := range routine.Instructions {
		switch instr.Op {
		case "RTRUE":
			sawRtrue = true
		case "RFALSE":
			sawRfalse = true
		case "CALL":
			t.Errorf("unexpected CALL instruction in GO: %+v (RTRUE/RFALSE mis-lowered as a routine call)", instr)
		}
	}
	if !sawRtrue {
		t.Error("expected an RTRUE instruction in GO's body")
	}
	if !sawRfalse {
		t.Error("expected an RFALSE instruction in GO's body")
	}
}

// Scenario 2 from spec §8: QUIT following a TELL must still lower to
// the real opcode rather than a call.
func TestQuitAfterTellLowersToRealOpcode(t *testing.T) {
	h := New(t, 3)
	r := h.MustCompile(`<ROUTINE GO () <TELL "Hello." CR> <QUIT>>`)
	routine := routineNamed(t, r, "GO")
	var sawQuit bool
	for _, instr := range routine.Instructions {
		if instr.Op == "CALL" {
			t.Errorf("unexpected CALL instruction in GO: %+v (QUIT mis-lowered as a routine call)", instr)
		}
		if instr.Op == "QUIT" {
			sawQuit = true
		}
	}
	if !sawQuit {
		t.Error("expected a QUIT instruction in GO's body")
	}
}

// A representative sample of the ZIL object/table builtins must emit
// their mapped opcode directly, never a CALL to an undefined routine
// sharing the builtin's name.
func TestObjectAndTableBuiltinsLowerToRealOpcodes(t *testing.T) {
	h := New(t, 3)
	r := h.MustCompile(`<OBJECT PLAYER (IN ROOMS) (CAPACITY 5)>
		<OBJECT ROOMS (FLAGS CONTBIT)>
		<ROUTINE GO ()
			<MOVE PLAYER ROOMS>
			<FSET PLAYER CONTBIT>
			<FCLEAR PLAYER CONTBIT>
			<PUTP PLAYER CAPACITY 1>
			<GETP PLAYER CAPACITY>
			<QUIT>>`)

	routine := routineNamed(t, r, "GO")
	want := map[string]bool{
		"INSERT_OBJ": false,
		"SET_ATTR":   false,
		"CLEAR_ATTR": false,
		"PUT_PROP":   false,
		"GET_PROP":   false,
	}
	for _, instr := range routine.Instructions {
		if instr.Op == "CALL" {
			t.Errorf("unexpected CALL instruction in GO: %+v", instr)
		}
		if _, ok := want[string(instr.Op)]; ok {
			want[string(instr.Op)] = true
		}
	}
	for op, seen := range want {
		if !seen {
			t.Errorf("expected a %s instruction in GO's body, never emitted", op)
		}
	}
}

// AGAIN must jump back to the enclosing REPEAT's top, and RETURN
// inside a REPEAT must exit only the loop (jump to its end), not the
// whole routine, per spec §4.8.2.
func TestAgainAndReturnInsideRepeat(t *testing.T) {
	h := New(t, 3)
	r := h.MustCompile(`<ROUTINE GO ("AUX" (I 0))
		<REPEAT ()
			<SET I <+ .I 1>>
			<COND (<G? .I 10> <RETURN .I>)>
			<AGAIN>>
		<RTRUE>>`)

	routine := routineNamed(t, r, "GO")
	var jumps, rets int
	for _, instr := range routine.Instructions {
		if instr.Op == "JUMP" {
			jumps++
		}
		if instr.Op == "RET" {
			rets++
		}
	}
	if jumps < 2 {
		t.Errorf("expected at least 2 JUMP instructions (AGAIN's back-edge and RETURN's exit-to-L_end), got %d", jumps)
	}
	// RETURN inside the loop must not emit a routine-level RET; only
	// the routine's own trailing RET (from LowerRoutine's fallthrough)
	// and the final RTRUE should produce routine exits.
	if rets != 1 {
		t.Errorf("expected exactly 1 RET instruction (the routine's own trailing return), got %d", rets)
	}
}
