package ast

import "testing"

// ZIL's truthiness rule: everything is true except the integer (or
// FALSE-alias) 0 (spec §3).
func TestTruthy(t *testing.T) {
	cases := []struct {
		v    *Value
		want bool
	}{
		{IntValue(0, Position{}), false},
		{IntValue(1, Position{}), true},
		{IntValue(-1, Position{}), true},
		{StringValue("", Position{}), true},
		{nil, false},
	}
	for _, c := range cases {
		if got := c.v.Truthy(); got != c.want {
			t.Errorf("Truthy(%v) = %v, want %v", c.v, got, c.want)
		}
	}
}

func TestRoutineDeclCounts(t *testing.T) {
	tab := NewAtomTable()
	r := &RoutineDecl{
		Name: tab.Intern("GO"),
		Params: []*Param{
			{Name: tab.Intern("X"), Kind: ParamRequired},
			{Name: tab.Intern("Y"), Kind: ParamRequired},
			{Name: tab.Intern("Z"), Kind: ParamOptional},
			{Name: tab.Intern("W"), Kind: ParamAux},
			{Name: tab.Intern("TAIL"), Kind: ParamTuple},
		},
	}
	if got := r.RequiredCount(); got != 2 {
		t.Errorf("RequiredCount = %d, want 2", got)
	}
	if got := r.OptionalCount(); got != 1 {
		t.Errorf("OptionalCount = %d, want 1", got)
	}
	// LocalCount excludes quoted/tuple params: required + optional + aux = 4.
	if got := r.LocalCount(); got != 4 {
		t.Errorf("LocalCount = %d, want 4", got)
	}
}
