// Package zilctest is an in-process end-to-end harness for compiling
// ZIL source and checking the resulting story file against the
// compiler's structural invariants, without shelling out to an
// external tool.
//
// Grounded on the teacher's pkg/z80testing/e2e_harness.go: the same
// compile-then-inspect shape (E2ETestHarness.CompileMinZ followed by
// assertions on the produced binary/symbols), but with the Z80
// assemble-and-execute step replaced by a direct in-process pipeline
// call and static invariant checks, since no Z-machine interpreter
// exists in this repo to execute the output (runtime execution is out
// of scope).
package zilctest

import (
	"fmt"
	"testing"

	"github.com/zil-lang/zilc/pkg/assemble"
	"github.com/zil-lang/zilc/pkg/ast"
	"github.com/zil-lang/zilc/pkg/codegen"
	"github.com/zil-lang/zilc/pkg/ctie"
	"github.com/zil-lang/zilc/pkg/dictionary"
	"github.com/zil-lang/zilc/pkg/diagnostics"
	"github.com/zil-lang/zilc/pkg/ir"
	"github.com/zil-lang/zilc/pkg/lexer"
	"github.com/zil-lang/zilc/pkg/macro"
	"github.com/zil-lang/zilc/pkg/parser"
	"github.com/zil-lang/zilc/pkg/preprocess"
	"github.com/zil-lang/zilc/pkg/symtab"
	"github.com/zil-lang/zilc/pkg/ztext"
)

// Harness compiles ZIL source strings and exposes the resulting image
// for inspection in tests.
type Harness struct {
	t       *testing.T
	Version int
}

// New creates a harness targeting the given Z-machine version.
func New(t *testing.T, version int) *Harness {
	return &Harness{t: t, Version: version}
}

// CompileResult bundles the assembled image with the intermediate
// state a test might want to inspect directly (symbol table, lowered
// routines) rather than re-parsing the header.
type CompileResult struct {
	Image    []byte
	Atoms    *ast.AtomTable
	Syms     *symtab.Table
	Routines []*ir.Routine
	Warnings []diagnostics.Warning
}

// Compile runs the full preprocess -> lex -> parse -> macro-expand ->
// symtab -> codegen -> dictionary -> assemble pipeline over an
// in-memory source string, named "<test>" for diagnostics.
func (h *Harness) Compile(source string) (*CompileResult, error) {
	proc := preprocess.NewProcessor(h.Version)
	text, err := proc.Run(source)
	if err != nil {
		return nil, fmt.Errorf("preprocess: %w", err)
	}

	toks, err := lexer.New("<test>", text).Tokenize()
	if err != nil {
		return nil, fmt.Errorf("lex: %w", err)
	}

	atoms := ast.NewAtomTable()
	file, err := parser.New(atoms, "<test>", toks).ParseFile()
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}

	ctieEnv := ctie.New(map[string]bool{}, map[string]int{})
	defer ctieEnv.Close()
	file, err = macro.New(atoms, ctieEnv).ExpandFile(file)
	if err != nil {
		return nil, fmt.Errorf("macro-expand: %w", err)
	}

	targetVersion := h.Version
	for _, d := range file.Declarations {
		if v, ok := d.(*ast.VersionDecl); ok {
			targetVersion = v.Version
		}
	}

	syms := symtab.New(atoms, targetVersion)
	if err := syms.Build(file); err != nil {
		return nil, fmt.Errorf("symtab: %w", err)
	}

	lowerer := codegen.NewLowerer(atoms, syms, targetVersion)
	var routines []*ir.Routine
	for _, d := range file.Declarations {
		rd, ok := d.(*ast.RoutineDecl)
		if !ok {
			continue
		}
		r, err := lowerer.LowerRoutine(rd)
		if err != nil {
			return nil, fmt.Errorf("codegen %s: %w", atoms.Name(rd.Name), err)
		}
		routines = append(routines, r)
	}

	textEnc := ztext.New(targetVersion, nil, ztext.Flags{})
	dictTable, err := dictionary.NewBuilder(targetVersion, textEnc, false).Build(nil)
	if err != nil {
		return nil, fmt.Errorf("dictionary: %w", err)
	}

	warn := diagnostics.NewSink(100)
	asm := assemble.NewAssembler(atoms, syms, textEnc, warn)
	result, err := asm.Assemble(file, routines, dictTable)
	if err != nil {
		return nil, fmt.Errorf("assemble: %w", err)
	}

	return &CompileResult{
		Image:    result.Image,
		Atoms:    atoms,
		Syms:     syms,
		Routines: routines,
		Warnings: warn.Warnings(),
	}, nil
}

// MustCompile is Compile but fails the test immediately on error,
// for the common case where a test expects the source to compile.
func (h *Harness) MustCompile(source string) *CompileResult {
	h.t.Helper()
	r, err := h.Compile(source)
	if err != nil {
		h.t.Fatalf("compile failed: %v", err)
	}
	return r
}
