package ctie

import "testing"

func TestEvalIntArithmetic(t *testing.T) {
	e := New(nil, nil)
	defer e.Close()

	got, err := e.EvalInt("<+ 1 2>")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 3 {
		t.Errorf("<+ 1 2> = %d, want 3", got)
	}
}

func TestEvalIntComparison(t *testing.T) {
	e := New(nil, map[string]int{"VERSION": 3})
	defer e.Close()

	got, err := e.EvalInt("<G? ,VERSION 2>")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 1 {
		t.Errorf("<G? ,VERSION 2> = %d, want 1 (true)", got)
	}
}

func TestEvalIntFlagLookup(t *testing.T) {
	e := New(map[string]bool{"DEBUG": true}, nil)
	defer e.Close()

	got, err := e.EvalInt("<GASSIGNED? DEBUG>")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 1 {
		t.Errorf("<GASSIGNED? DEBUG> = %d, want 1", got)
	}

	got, err = e.EvalInt("<GASSIGNED? NOPE>")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 0 {
		t.Errorf("<GASSIGNED? NOPE> = %d, want 0", got)
	}
}

func TestEvalIntRejectsMalformedForm(t *testing.T) {
	e := New(nil, nil)
	defer e.Close()
	if _, err := e.EvalInt("<+ 1 2"); err == nil {
		t.Error("expected an error for an unterminated form")
	}
}
