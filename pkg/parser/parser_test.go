package parser

import (
	"testing"

	"github.com/zil-lang/zilc/pkg/ast"
	"github.com/zil-lang/zilc/pkg/lexer"
)

func parse(t *testing.T, src string) (*ast.AtomTable, *ast.File) {
	t.Helper()
	toks, err := lexer.New("<test>", src).Tokenize()
	if err != nil {
		t.Fatalf("tokenize: %v", err)
	}
	atoms := ast.NewAtomTable()
	file, err := New(atoms, "<test>", toks).ParseFile()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return atoms, file
}

func TestParseVersionDecl(t *testing.T) {
	_, file := parse(t, `<VERSION XZIP>`)
	if len(file.Declarations) != 1 {
		t.Fatalf("declarations = %d, want 1", len(file.Declarations))
	}
	v, ok := file.Declarations[0].(*ast.VersionDecl)
	if !ok {
		t.Fatalf("decl = %T, want *ast.VersionDecl", file.Declarations[0])
	}
	if v.Version != 5 {
		t.Errorf("Version = %d, want 5 (XZIP)", v.Version)
	}
}

func TestParseRoutineParams(t *testing.T) {
	atoms, file := parse(t, `<ROUTINE GO (X "OPT" Y "AUX" Z) <QUIT>>`)
	r := file.Declarations[0].(*ast.RoutineDecl)
	if atoms.Name(r.Name) != "GO" {
		t.Errorf("Name = %q, want GO", atoms.Name(r.Name))
	}
	if len(r.Params) != 3 {
		t.Fatalf("Params = %d, want 3", len(r.Params))
	}
	if r.Params[0].Kind != ast.ParamRequired {
		t.Errorf("Params[0].Kind = %v, want ParamRequired", r.Params[0].Kind)
	}
	if r.Params[1].Kind != ast.ParamOptional {
		t.Errorf("Params[1].Kind = %v, want ParamOptional", r.Params[1].Kind)
	}
	if r.Params[2].Kind != ast.ParamAux {
		t.Errorf("Params[2].Kind = %v, want ParamAux", r.Params[2].Kind)
	}
}

// A direction property is recognized by its second token (TO/PER/SORRY/
// UEXIT), distinguishing it from an ordinary (property value…) pair
// (spec §4.3).
func TestParseObjectDirectionExit(t *testing.T) {
	_, file := parse(t, `<ROOM FOREST (DESC "Forest") (NORTH TO CLEARING) (SOUTH SORRY "No path.")>`)
	room := file.Declarations[0].(*ast.ObjectDecl)
	if !room.IsRoom {
		t.Error("IsRoom = false, want true")
	}
	if room.DescString != "Forest" {
		t.Errorf("DescString = %q, want %q", room.DescString, "Forest")
	}
	var north, south *ast.PropValue
	for _, pv := range room.Props {
		if pv.Exit == nil {
			continue
		}
		switch pv.Exit.Kind {
		case ast.ExitTo:
			north = pv
		case ast.ExitSorry:
			south = pv
		}
	}
	if north == nil {
		t.Fatal("no TO exit parsed for NORTH")
	}
	if south == nil {
		t.Fatal("no SORRY exit parsed for SOUTH")
	}
	if south.Exit.Sorry != "No path." {
		t.Errorf("Sorry = %q, want %q", south.Exit.Sorry, "No path.")
	}
}

func TestParseObjectOrdinaryPropertyNotMistakenForExit(t *testing.T) {
	_, file := parse(t, `<OBJECT LAMP (FLAGS TAKEBIT) (SYNONYM LAMP LANTERN)>`)
	obj := file.Declarations[0].(*ast.ObjectDecl)
	if len(obj.Flags) != 1 {
		t.Fatalf("Flags = %v, want 1 entry", obj.Flags)
	}
	if len(obj.Props) != 1 || obj.Props[0].Exit != nil {
		t.Fatalf("Props = %+v, want one ordinary (non-exit) property", obj.Props)
	}
}

func TestParseGlobalWithInitialValue(t *testing.T) {
	atoms, file := parse(t, `<GLOBAL SCORE 0>`)
	g := file.Declarations[0].(*ast.GlobalDecl)
	if atoms.Name(g.Name) != "SCORE" {
		t.Errorf("Name = %q, want SCORE", atoms.Name(g.Name))
	}
	if g.Initial == nil || g.Initial.Int != 0 {
		t.Errorf("Initial = %v, want IntValue(0)", g.Initial)
	}
}

func TestParseLocalAndGlobalReferencesDesugarToForms(t *testing.T) {
	atoms, file := parse(t, `<ROUTINE GO (X) <SET X ,SCORE>>`)
	r := file.Declarations[0].(*ast.RoutineDecl)
	setForm := r.Body[0].Form
	globalRef := setForm.Operands[1]
	if globalRef.Kind != ast.ValForm || atoms.Name(globalRef.Form.Operator) != "GVAL" {
		t.Errorf("global reference desugared to %+v, want a GVAL form", globalRef)
	}
}

// Unknown top-level operators are retained as a GenericDecl so the
// macro expander still gets a chance at them (spec §4.3).
func TestUnknownTopLevelFormBecomesGenericDecl(t *testing.T) {
	atoms, file := parse(t, `<SOME-UNKNOWN-PRAGMA 1 2>`)
	g, ok := file.Declarations[0].(*ast.GenericDecl)
	if !ok {
		t.Fatalf("decl = %T, want *ast.GenericDecl", file.Declarations[0])
	}
	if atoms.Name(g.Form.Operator) != "SOME-UNKNOWN-PRAGMA" {
		t.Errorf("Operator = %q, want SOME-UNKNOWN-PRAGMA", atoms.Name(g.Form.Operator))
	}
}

func TestParseRejectsUnterminatedForm(t *testing.T) {
	toks, err := lexer.New("<test>", `<ROUTINE GO () <QUIT>`).Tokenize()
	if err != nil {
		t.Fatalf("tokenize: %v", err)
	}
	atoms := ast.NewAtomTable()
	if _, err := New(atoms, "<test>", toks).ParseFile(); err == nil {
		t.Error("expected a syntax error for an unterminated top-level form")
	}
}
