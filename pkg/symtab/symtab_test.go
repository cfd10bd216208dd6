package symtab

import (
	"testing"

	"github.com/zil-lang/zilc/pkg/ast"
	"github.com/zil-lang/zilc/pkg/lexer"
	"github.com/zil-lang/zilc/pkg/parser"
)

func buildTable(t *testing.T, version int, src string) (*ast.AtomTable, *Table) {
	t.Helper()
	atoms := ast.NewAtomTable()
	toks, err := lexer.New("<test>", src).Tokenize()
	if err != nil {
		t.Fatalf("tokenize: %v", err)
	}
	file, err := parser.New(atoms, "<test>", toks).ParseFile()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	syms := New(atoms, version)
	if err := syms.Build(file); err != nil {
		t.Fatalf("symtab build: %v", err)
	}
	return atoms, syms
}

// Object numbering follows the ZILF convention: reverse of definition
// order (spec §4.5), so the last object declared gets number 1.
func TestObjectNumberingIsReverseOfDefinitionOrder(t *testing.T) {
	atoms, syms := buildTable(t, 3, `
		<OBJECT FIRST>
		<OBJECT SECOND>
		<OBJECT THIRD>
	`)
	first, _ := atoms.Lookup("FIRST")
	second, _ := atoms.Lookup("SECOND")
	third, _ := atoms.Lookup("THIRD")

	fo, _ := syms.LookupObject(first)
	so, _ := syms.LookupObject(second)
	to, _ := syms.LookupObject(third)

	if to.Number != 1 {
		t.Errorf("THIRD (last declared) = object %d, want 1", to.Number)
	}
	if so.Number != 2 {
		t.Errorf("SECOND = object %d, want 2", so.Number)
	}
	if fo.Number != 3 {
		t.Errorf("FIRST (first declared) = object %d, want 3", fo.Number)
	}
}

// Direction properties get the highest ids, descending (spec §3).
func TestDirectionPropertiesDescendFromCeiling(t *testing.T) {
	_, syms := buildTable(t, 3, `
		<DIRECTIONS NORTH SOUTH EAST>
	`)
	ceiling := syms.MaxPropertyID()
	north, _ := syms.atoms.Lookup("NORTH")
	south, _ := syms.atoms.Lookup("SOUTH")
	east, _ := syms.atoms.Lookup("EAST")

	if syms.Props[north] != ceiling {
		t.Errorf("NORTH property id = %d, want ceiling %d", syms.Props[north], ceiling)
	}
	if syms.Props[south] != ceiling-1 {
		t.Errorf("SOUTH property id = %d, want %d", syms.Props[south], ceiling-1)
	}
	if syms.Props[east] != ceiling-2 {
		t.Errorf("EAST property id = %d, want %d", syms.Props[east], ceiling-2)
	}
}

// Boundary behavior from spec §8: a V3 target with 255 objects
// compiles; 256 objects rejects with SemanticError.
func TestObjectCountBoundaryOnV3(t *testing.T) {
	build := func(n int) error {
		src := ""
		for i := 0; i < n; i++ {
			src += "<OBJECT O" + itoa(i) + ">\n"
		}
		atoms := ast.NewAtomTable()
		toks, err := lexer.New("<test>", src).Tokenize()
		if err != nil {
			t.Fatalf("tokenize: %v", err)
		}
		file, err := parser.New(atoms, "<test>", toks).ParseFile()
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		return New(atoms, 3).Build(file)
	}

	if err := build(255); err != nil {
		t.Errorf("255 objects on V3 should compile, got: %v", err)
	}
	if err := build(256); err == nil {
		t.Error("256 objects on V3 should reject, got no error")
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}
