package ast

import "fmt"

// ValueKind tags the universal compile-time Value union (see spec §3).
type ValueKind int

const (
	ValInt ValueKind = iota
	ValAtom
	ValString
	ValList
	ValVector
	ValForm
	ValTable
	ValRoutineRef
	ValObjectRef
	ValFalse // distinguished from ValInt(0) only for readability; compares equal to ValInt 0
)

// Value is the tagged union every compile-time expression reduces to:
// integers, atoms, strings, lists/vectors, forms (operator + operands),
// and references to tables/routines/objects once those have been
// registered by the symbol table.
type Value struct {
	Kind ValueKind
	Int  int16    // ValInt: 16-bit signed; 0 doubles as boolean false
	Atom Atom     // ValAtom, ValRoutineRef, ValObjectRef
	Str  string   // ValString
	List []*Value // ValList, ValVector
	Form *Form    // ValForm
	Pos  Position

	// spliceMark marks a ValList produced by a macro's <SPLICE list>
	// constructor (package macro), telling the caller assembling an
	// operand list to flatten this value's elements in rather than
	// nesting it as a single sub-list.
	spliceMark bool
}

// MarkSplice flags v (which must be a ValList) as a macro splice
// marker; see spliceMark.
func (v *Value) MarkSplice() { v.spliceMark = true }

// IsSpliceMarked reports whether MarkSplice was called on v.
func (v *Value) IsSpliceMarked() bool { return v.spliceMark }

func IntValue(n int16, pos Position) *Value  { return &Value{Kind: ValInt, Int: n, Pos: pos} }
func AtomValue(a Atom, pos Position) *Value  { return &Value{Kind: ValAtom, Atom: a, Pos: pos} }
func StringValue(s string, pos Position) *Value {
	return &Value{Kind: ValString, Str: s, Pos: pos}
}
func ListValue(items []*Value, pos Position) *Value {
	return &Value{Kind: ValList, List: items, Pos: pos}
}
func VectorValue(items []*Value, pos Position) *Value {
	return &Value{Kind: ValVector, List: items, Pos: pos}
}
func FormValue(f *Form, pos Position) *Value { return &Value{Kind: ValForm, Form: f, Pos: pos} }

// Truthy implements ZIL's boolean convention: everything is true except
// the integer (or FALSE-alias) 0.
func (v *Value) Truthy() bool {
	if v == nil || v.Kind == ValFalse {
		return false
	}
	return v.Kind != ValInt || v.Int != 0
}

func (v *Value) String() string {
	if v == nil {
		return "<>"
	}
	switch v.Kind {
	case ValInt:
		return fmt.Sprintf("%d", v.Int)
	case ValAtom:
		return fmt.Sprintf("#atom(%d)", v.Atom)
	case ValString:
		return fmt.Sprintf("%q", v.Str)
	case ValList:
		return fmt.Sprintf("(%d items)", len(v.List))
	case ValVector:
		return fmt.Sprintf("[%d items]", len(v.List))
	case ValForm:
		return v.Form.String()
	default:
		return "<value>"
	}
}

// Form is an operator applied to operands: <OPERATOR operand operand …>.
// Every executable ZIL expression and every macro template is a Form;
// top-level declarations (ROUTINE, OBJECT, GLOBAL, …) are Forms whose
// Operator names the declaration kind.
type Form struct {
	Operator Atom
	Operands []*Value
	Pos      Position
	Quoted   bool // true if this form appeared behind a quote ('X or <QUOTE X>)
}

func (f *Form) String() string {
	return fmt.Sprintf("<form op=%d nargs=%d>", f.Operator, len(f.Operands))
}

// Local reference: .X
type LocalRef struct {
	Name Atom
	Pos  Position
}

// Global reference: ,X
type GlobalRef struct {
	Name Atom
	Pos  Position
}
