package macro

import (
	"testing"

	"github.com/zil-lang/zilc/pkg/ast"
	"github.com/zil-lang/zilc/pkg/ctie"
	"github.com/zil-lang/zilc/pkg/lexer"
	"github.com/zil-lang/zilc/pkg/parser"
)

func expandSource(t *testing.T, src string) (*ast.AtomTable, *ast.File) {
	t.Helper()
	toks, err := lexer.New("<test>", src).Tokenize()
	if err != nil {
		t.Fatalf("tokenize: %v", err)
	}
	atoms := ast.NewAtomTable()
	file, err := parser.New(atoms, "<test>", toks).ParseFile()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	ctieEnv := ctie.New(nil, nil)
	defer ctieEnv.Close()
	expanded, err := New(atoms, ctieEnv).ExpandFile(file)
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	return atoms, expanded
}

func firstRoutineBody(t *testing.T, atoms *ast.AtomTable, file *ast.File, name string) []*ast.Value {
	t.Helper()
	for _, d := range file.Declarations {
		if r, ok := d.(*ast.RoutineDecl); ok && atoms.Name(r.Name) == name {
			return r.Body
		}
	}
	t.Fatalf("routine %s not found after expansion", name)
	return nil
}

// A DEFMAC definition is stripped from the declaration list after
// expansion (spec §4.4).
func TestDefmacIsRemovedFromDeclarations(t *testing.T) {
	_, file := expandSource(t, `
		<DEFMAC DOUBLE (X) <FORM + .X .X>>
		<ROUTINE GO () <DOUBLE 3>>
	`)
	for _, d := range file.Declarations {
		if _, ok := d.(*ast.DefmacDecl); ok {
			t.Fatal("DEFMAC declaration survived expansion")
		}
	}
}

// Calling a macro substitutes its bound parameter and expands <FORM ...>
// into a real operator application.
func TestMacroCallExpandsFormConstructor(t *testing.T) {
	atoms, file := expandSource(t, `
		<DEFMAC DOUBLE (X) <FORM + .X .X>>
		<ROUTINE GO () <DOUBLE 3>>
	`)
	body := firstRoutineBody(t, atoms, file, "GO")
	if len(body) != 1 || body[0].Kind != ast.ValForm {
		t.Fatalf("expanded body = %v, want a single Form", body)
	}
	f := body[0].Form
	if atoms.Name(f.Operator) != "+" {
		t.Errorf("operator = %q, want %q", atoms.Name(f.Operator), "+")
	}
	if len(f.Operands) != 2 || f.Operands[0].Int != 3 || f.Operands[1].Int != 3 {
		t.Errorf("operands = %v, want two copies of 3", f.Operands)
	}
}

// A quoted parameter is substituted verbatim without expanding its
// contents as a call.
func TestQuotedParameterIsNotExpanded(t *testing.T) {
	atoms, file := expandSource(t, `
		<DEFMAC NAME-OF ('X) '.X>
		<ROUTINE GO () <NAME-OF FOO>>
	`)
	body := firstRoutineBody(t, atoms, file, "GO")
	if len(body) != 1 {
		t.Fatalf("expanded body = %v, want one value", body)
	}
	if body[0].Kind != ast.ValAtom || atoms.Name(body[0].Atom) != "FOO" {
		t.Errorf("got %v, want the bare atom FOO", body[0])
	}
}

// A macro with no matching call-site argument and no default falls back
// to 0 (spec §4.4 OPT/AUX defaulting).
func TestMissingOptionalArgumentDefaultsToZero(t *testing.T) {
	atoms, file := expandSource(t, `
		<DEFMAC MAYBE ("OPT" X) <FORM + .X 1>>
		<ROUTINE GO () <MAYBE>>
	`)
	body := firstRoutineBody(t, atoms, file, "GO")
	f := body[0].Form
	if f.Operands[0].Int != 0 {
		t.Errorf("defaulted operand = %d, want 0", f.Operands[0].Int)
	}
}
