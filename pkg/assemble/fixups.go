package assemble

import (
	"github.com/zil-lang/zilc/pkg/ast"
	"github.com/zil-lang/zilc/pkg/ir"
)

// resolveFixups is the assembler's phase 2 (spec §4.9): patch every
// forward reference collected during layout now that every routine and
// string's final address is known. A routine reference that names no
// declared routine (a SYNTAX action that was never given a matching
// ROUTINE) is a warning, not a hard error — the placeholder resolves to
// 0, which the dispatcher sees as "no such routine" at run time.
func (a *Assembler) resolveFixups(img []byte, fixups []fixup, routineAddrs map[ast.Atom]uint16, stringAddrs map[string]uint16) error {
	for _, f := range fixups {
		var value uint16
		switch f.kind {
		case ir.PlaceholderRoutineAddr, ir.PlaceholderPropertyRoutine:
			addr, ok := routineAddrs[f.target]
			if !ok {
				if err := a.warn.Warn(ast.Position{}, "reference to undefined routine %q left unresolved (patched as 0)", a.atoms.Name(f.target)); err != nil {
					return err
				}
				value = 0
			} else {
				value = addr
			}
		case ir.PlaceholderTellString, ir.PlaceholderStringOperand:
			value = stringAddrs[f.text]
		case ir.PlaceholderNewParserVWord:
			if err := a.warn.Warn(ast.Position{}, "NEW-PARSER? vocabulary-word reference to %q left unresolved (patched as 0)", a.atoms.Name(f.target)); err != nil {
				return err
			}
			value = 0
		}
		putWord(img, f.offset, value)
	}
	return nil
}
