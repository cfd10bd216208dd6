package ir

import "testing"

// Spec §6: operand values 0-255 encode as a small constant, larger
// values require the two-byte large-constant form.
func TestConstOperandChoosesWidthByValue(t *testing.T) {
	small := ConstOperand(255)
	if small.Kind != OperandSmallConst {
		t.Errorf("ConstOperand(255).Kind = %v, want OperandSmallConst", small.Kind)
	}
	large := ConstOperand(256)
	if large.Kind != OperandLargeConst {
		t.Errorf("ConstOperand(256).Kind = %v, want OperandLargeConst", large.Kind)
	}
}

func TestVarOperand(t *testing.T) {
	op := VarOperand(3)
	if op.Kind != OperandVariable || op.Value != 3 {
		t.Errorf("VarOperand(3) = %+v, want Kind=OperandVariable Value=3", op)
	}
}

func TestPlaceholderStringOpCarriesText(t *testing.T) {
	op := PlaceholderStringOp(PlaceholderTellString, "hello")
	if op.Kind != OperandPlaceholder {
		t.Errorf("Kind = %v, want OperandPlaceholder", op.Kind)
	}
	if op.PH != PlaceholderTellString {
		t.Errorf("PH = %v, want PlaceholderTellString", op.PH)
	}
	if op.PHString != "hello" {
		t.Errorf("PHString = %q, want %q", op.PHString, "hello")
	}
}

func TestBuilderEmitReturnsIndex(t *testing.T) {
	b := NewBuilder(0)
	i0 := b.Emit(Instruction{Op: "QUIT"})
	i1 := b.Emit(Instruction{Op: "NEW_LINE"})
	if i0 != 0 || i1 != 1 {
		t.Errorf("Emit indices = %d, %d, want 0, 1", i0, i1)
	}
	if len(b.Routine().Instructions) != 2 {
		t.Errorf("Instructions length = %d, want 2", len(b.Routine().Instructions))
	}
}

func TestNewLabelIsUniquePerBuilder(t *testing.T) {
	b := NewBuilder(0)
	l1 := b.NewLabel("loop")
	l2 := b.NewLabel("loop")
	if l1 == l2 {
		t.Errorf("NewLabel produced the same name twice: %q", l1)
	}
}

func TestPlaceLabelTagsNextInstructionSlot(t *testing.T) {
	b := NewBuilder(0)
	b.PlaceLabel("top")
	instrs := b.Routine().Instructions
	if len(instrs) != 1 || instrs[0].Label != "top" {
		t.Errorf("Instructions = %+v, want one NOP labeled %q", instrs, "top")
	}
}
