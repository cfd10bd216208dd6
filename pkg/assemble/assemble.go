// Package assemble lays a compiled program's routines and tables out
// into a complete Z-machine story file image: spec §4.9's two-phase
// layout-then-fixup process. Phase one places every region in the
// fixed order the Z-machine memory map requires, encoding routines
// with codegen.Encoder as it goes and recording every unresolved
// forward reference (a CALL to a routine, a TELL string, a direction
// exit) as a fixup; phase two patches each fixup now that every
// region's final address is known, then writes the header and
// checksum.
//
// Grounded on the teacher's pkg/z80asm/assembler.go: the same
// Fixup{Offset,Symbol,Type} record deferred from an encode pass and
// resolved once layout settles, generalized from Z80's flat
// org-relative address space to the Z-machine's dynamic/static/high
// three-region memory map and packed routine/string addresses.
package assemble

import (
	"github.com/zil-lang/zilc/pkg/ast"
	"github.com/zil-lang/zilc/pkg/codegen"
	"github.com/zil-lang/zilc/pkg/dictionary"
	"github.com/zil-lang/zilc/pkg/diagnostics"
	"github.com/zil-lang/zilc/pkg/ir"
	"github.com/zil-lang/zilc/pkg/symtab"
	"github.com/zil-lang/zilc/pkg/ztext"
)

const (
	headerSize      = 64
	globalSlotCount = 240
	globalsSize     = globalSlotCount * 2
	abbrevSlots     = 96
)

// fixup is one unresolved forward reference recorded during layout:
// offset is the absolute byte position in the final image where a
// 2-byte value must be patched once its target's address is known.
type fixup struct {
	offset int
	kind   ir.PlaceholderKind
	target ast.Atom
	text   string
}

// Result is the finished story file plus the region boundaries the
// assembler resolved, exposed mainly so tests can check spec §8's
// testable invariants directly against known addresses.
type Result struct {
	Image           []byte
	GlobalBase      int
	AbbrevBase      int
	ObjectTableBase int
	StaticMemBase   int
	DictionaryBase  int
	HighMemBase     int
}

// Assembler lays out one compiled program into a story file image.
type Assembler struct {
	atoms   *ast.AtomTable
	syms    *symtab.Table
	text    *ztext.Encoder
	version int
	warn    *diagnostics.Sink
	enc     *codegen.Encoder
}

func NewAssembler(atoms *ast.AtomTable, syms *symtab.Table, text *ztext.Encoder, warn *diagnostics.Sink) *Assembler {
	return &Assembler{
		atoms:   atoms,
		syms:    syms,
		text:    text,
		version: syms.Version,
		warn:    warn,
		enc:     codegen.NewEncoder(syms.Version),
	}
}

// Assemble lays out file's tables, dict's dictionary and routines'
// bodies into one complete story file image, in the fixed order spec
// §4.9 "Phase 1 — layout" specifies.
func (a *Assembler) Assemble(file *ast.File, routines []*ir.Routine, dict *dictionary.Table) (*Result, error) {
	img := make([]byte, headerSize)
	var fixups []fixup

	globalBase := len(img)
	img = append(img, make([]byte, globalsSize)...)
	a.layoutGlobals(file, img, globalBase)

	// Abbreviation pointer table. No abbreviation-selection heuristic
	// is modeled (spec's candidate-selection contract is explicitly
	// out of scope for code generation), so the table carries 96 null
	// pointers and no abbreviation strings are ever emitted.
	abbrevBase := len(img)
	img = append(img, make([]byte, abbrevSlots*2)...)

	objectTableBase := len(img)
	img, objFixups, err := a.buildObjectTable(img)
	if err != nil {
		return nil, err
	}
	fixups = append(fixups, objFixups...)

	dynTables, pureTables := partitionTables(file)
	img, dynFixups, err := a.buildTables(img, dynTables)
	if err != nil {
		return nil, err
	}
	fixups = append(fixups, dynFixups...)

	staticMemBase := len(img)

	img, parserFixups, err := a.buildParserTables(img, file)
	if err != nil {
		return nil, err
	}
	fixups = append(fixups, parserFixups...)

	img, pureFixups, err := a.buildTables(img, pureTables)
	if err != nil {
		return nil, err
	}
	fixups = append(fixups, pureFixups...)

	dictionaryBase := len(img)
	img = append(img, dict.Bytes...)

	img = padTo(img, routineAlignment(a.version))
	highMemBase := len(img)

	img, routineFixups, routineAddrs, err := a.placeRoutines(routines, img, highMemBase)
	if err != nil {
		return nil, err
	}
	fixups = append(fixups, routineFixups...)

	img, stringAddrs, err := a.placeStrings(img, fixups)
	if err != nil {
		return nil, err
	}

	if err := a.resolveFixups(img, fixups, routineAddrs, stringAddrs); err != nil {
		return nil, err
	}

	img = padTo(img, divisor(a.version))

	if err := a.writeHeader(img, file, routines, routineAddrs, globalBase, abbrevBase, objectTableBase, staticMemBase, dictionaryBase, highMemBase); err != nil {
		return nil, err
	}

	return &Result{
		Image:           img,
		GlobalBase:      globalBase,
		AbbrevBase:      abbrevBase,
		ObjectTableBase: objectTableBase,
		StaticMemBase:   staticMemBase,
		DictionaryBase:  dictionaryBase,
		HighMemBase:     highMemBase,
	}, nil
}

func (a *Assembler) layoutGlobals(file *ast.File, img []byte, base int) {
	for _, d := range file.Declarations {
		g, ok := d.(*ast.GlobalDecl)
		if !ok {
			continue
		}
		v := a.constIntOfValue(g.Initial)
		off := base + (g.Slot-16)*2
		putWord(img, off, uint16(v))
	}
}

// constIntOfValue resolves a global's initial value to a plain
// integer. An atom naming an object resolves to its object number and
// one naming a CONSTANT to that constant's value; any other atom (a
// flag name used as a sentinel, say) resolves to 0 with a warning,
// matching the degrade-not-abort
// posture spec §7 asks for on non-fatal encoding gaps.
func (a *Assembler) constIntOfValue(v *ast.Value) int {
	if v == nil {
		return 0
	}
	switch v.Kind {
	case ast.ValInt:
		return int(v.Int)
	case ast.ValAtom:
		if obj, ok := a.syms.LookupObject(v.Atom); ok {
			return obj.Number
		}
		if c, ok := a.syms.Constants[v.Atom]; ok {
			return a.constIntOfValue(c.Value)
		}
		_ = a.warn.Warn(v.Pos, "%s is neither an object nor a constant; using 0", a.atoms.Name(v.Atom))
		return 0
	default:
		return 0
	}
}

func putWord(buf []byte, off int, v uint16) {
	buf[off] = byte(v >> 8)
	buf[off+1] = byte(v)
}

func padTo(img []byte, to int) []byte {
	if to <= 1 {
		return img
	}
	for len(img)%to != 0 {
		img = append(img, 0)
	}
	return img
}

func divisor(version int) int {
	switch {
	case version <= 3:
		return 2
	case version == 8:
		return 8
	default:
		return 4
	}
}

func routineAlignment(version int) int { return divisor(version) }

func packedAddress(offset, version int) uint16 {
	return uint16(offset / divisor(version))
}

func partitionTables(file *ast.File) (dynamic, pure []*ast.TableDecl) {
	for _, d := range file.Declarations {
		t, ok := d.(*ast.TableDecl)
		if !ok {
			continue
		}
		if t.Flags&ast.TablePure != 0 {
			pure = append(pure, t)
		} else {
			dynamic = append(dynamic, t)
		}
	}
	return dynamic, pure
}
