package assemble

import (
	"testing"

	"github.com/zil-lang/zilc/pkg/ast"
	"github.com/zil-lang/zilc/pkg/codegen"
	"github.com/zil-lang/zilc/pkg/ctie"
	"github.com/zil-lang/zilc/pkg/dictionary"
	"github.com/zil-lang/zilc/pkg/diagnostics"
	"github.com/zil-lang/zilc/pkg/ir"
	"github.com/zil-lang/zilc/pkg/lexer"
	"github.com/zil-lang/zilc/pkg/macro"
	"github.com/zil-lang/zilc/pkg/parser"
	"github.com/zil-lang/zilc/pkg/symtab"
	"github.com/zil-lang/zilc/pkg/ztext"
)

func compile(t *testing.T, version int, src string) *Result {
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
	ctieEnv := ctie.New(map[string]bool{}, map[string]int{})
	defer ctieEnv.Close()
	file, err = macro.New(atoms, ctieEnv).ExpandFile(file)
	if err != nil {
		t.Fatalf("macro-expand: %v", err)
	}

	syms := symtab.New(atoms, version)
	if err := syms.Build(file); err != nil {
		t.Fatalf("symtab: %v", err)
	}

	lowerer := codegen.NewLowerer(atoms, syms, version)
	var routines []*ir.Routine
	for _, d := range file.Declarations {
		rd, ok := d.(*ast.RoutineDecl)
		if !ok {
			continue
		}
		r, err := lowerer.LowerRoutine(rd)
		if err != nil {
			t.Fatalf("codegen: %v", err)
		}
		routines = append(routines, r)
	}

	textEnc := ztext.New(version, ztext.NoAbbreviations{}, ztext.Flags{})
	dictTable, err := dictionary.NewBuilder(version, textEnc, false).Build(nil)
	if err != nil {
		t.Fatalf("dictionary: %v", err)
	}

	asm := NewAssembler(atoms, syms, textEnc, diagnostics.NewSink(100))
	result, err := asm.Assemble(file, routines, dictTable)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	return result
}

// Scenario 1 from spec §8: the minimal compiling program.
func TestMinimalProgram(t *testing.T) {
	r := compile(t, 3, `<VERSION 3> <ROUTINE GO () <QUIT>>`)

	if r.Image[0] != 0x03 {
		t.Errorf("header version byte = 0x%02X, want 0x03", r.Image[0])
	}
	if len(r.Image) < 64 {
		t.Fatalf("image too short: %d bytes", len(r.Image))
	}
	if r.StaticMemBase >= r.HighMemBase {
		t.Errorf("static_mem_base %d is not below high_mem_base %d", r.StaticMemBase, r.HighMemBase)
	}
}

// Spec §8 invariant: checksum (sum of bytes >= 64 mod 0x10000) equals
// header 0x1C-0x1D.
func TestChecksumInvariant(t *testing.T) {
	r := compile(t, 3, `<ROUTINE GO () <QUIT>>`)
	sum := 0
	for i := 64; i < len(r.Image); i++ {
		sum += int(r.Image[i])
	}
	sum %= 0x10000
	got := int(r.Image[0x1C])<<8 | int(r.Image[0x1D])
	if got != sum {
		t.Errorf("checksum header = %d, computed %d", got, sum)
	}
}

// Spec §8 invariant: header 0x1A-0x1B * divisor equals the file's
// actual length.
func TestFileLengthInvariant(t *testing.T) {
	for _, version := range []int{3, 5, 8} {
		r := compile(t, version, `<ROUTINE GO () <QUIT>>`)
		div := divisor(version)
		got := (int(r.Image[0x1A])<<8 | int(r.Image[0x1B])) * div
		if got != len(r.Image) {
			t.Errorf("version %d: header length %d != actual %d", version, got, len(r.Image))
		}
	}
}

// An object with FLAGS and a DESC property assembles into a full image
// (spec §8 scenario 5, simplified: only the image size is checked here;
// the flag bits and the property-list terminator are not inspected).
func TestObjectWithFlagsAndProperty(t *testing.T) {
	r := compile(t, 3, `
		<OBJECT LAMP (FLAGS TAKEBIT LIGHTBIT) (DESC "lamp")>
		<ROUTINE GO () <QUIT>>
	`)
	if len(r.Image) < 64 {
		t.Fatalf("image too short: %d bytes", len(r.Image))
	}
}
