package codegen

import (
	"strings"

	"github.com/zil-lang/zilc/pkg/ast"
	"github.com/zil-lang/zilc/pkg/diagnostics"
	"github.com/zil-lang/zilc/pkg/ir"
	"github.com/zil-lang/zilc/pkg/symtab"
)

// arithOps maps a ZIL arithmetic/bitwise operator atom to its opcode,
// for the common case of a binary form lowered entirely by opcode
// substitution (spec §6's control-flow lowering table).
var arithOps = map[string]ir.Op{
	"+":    "ADD",
	"ADD":  "ADD",
	"-":    "SUB",
	"SUB":  "SUB",
	"*":    "MUL",
	"MUL":  "MUL",
	"/":    "DIV",
	"DIV":  "DIV",
	"MOD":  "MOD",
	"BAND": "AND",
	"BOR":  "OR",
}

// compareOps maps a ZIL comparison/predicate operator to the opcode
// that branches on it.
var compareOps = map[string]ir.Op{
	"EQUAL?": "JE",
	"=?":     "JE",
	"L?":     "JL",
	"G?":     "JG",
	"IN?":    "JIN",
	"FSET?":  "TEST_ATTR",
}

// terminalBuiltins are statement-position ZIL builtins that never fall
// through to a following instruction in the same routine.
var terminalBuiltins = map[string]ir.Op{
	"QUIT":   "QUIT",
	"RTRUE":  "RTRUE",
	"RFALSE": "RFALSE",
}

// builtinSpec names the opcode and fixed operand count for a ZIL
// built-in that maps directly onto one Z-machine instruction, rather
// than a routine call (spec §4.8 "opcode emission for ZIL builtins").
type builtinSpec struct {
	Op      ir.Op
	NumArgs int
}

// voidBuiltins have no result: the instruction runs for its side
// effect only. Used in value position they push the ZIL convention of
// T (1) for "the operation ran".
var voidBuiltins = map[string]builtinSpec{
	"MOVE":   {"INSERT_OBJ", 2},
	"REMOVE": {"REMOVE_OBJ", 1},
	"PUT":    {"STOREW", 3},
	"PUTB":   {"STOREB", 3},
	"PUTP":   {"PUT_PROP", 3},
	"FSET":   {"SET_ATTR", 2},
	"FCLEAR": {"CLEAR_ATTR", 2},
	"PRINTC": {"PRINT_CHAR", 1},
	"PRINTN": {"PRINT_NUM", 1},
	"PRINTD": {"PRINT_OBJ", 1},
	"CRLF":   {"NEW_LINE", 0},
}

// valueBuiltins always produce a result, so the Z-machine opcode
// itself requires a store operand regardless of whether the caller
// wants the value.
var valueBuiltins = map[string]builtinSpec{
	"GET":   {"LOADW", 2},
	"GETB":  {"LOADB", 2},
	"GETP":  {"GET_PROP", 2},
	"GETPT": {"GET_PROP_ADDR", 2},
	"NEXTP": {"GET_NEXT_PROP", 2},
}

// Lowerer compiles ZIL routine bodies to the IR, resolving routine,
// global, flag, and property names through a *symtab.Table built by
// an earlier compiler pass.
type Lowerer struct {
	atoms   *ast.AtomTable
	syms    *symtab.Table
	version int
}

func NewLowerer(atoms *ast.AtomTable, syms *symtab.Table, version int) *Lowerer {
	return &Lowerer{atoms: atoms, syms: syms, version: version}
}

// localSlots assigns routine locals 1..N (0 is reserved for the stack,
// spec §6 store-byte convention) in parameter declaration order. A
// REPEAT/PROG/MAP-* binding not already a parameter gets the next free
// slot the first time it's encountered (allocLocal).
type localSlots map[ast.Atom]uint16

func (l *Lowerer) assignLocals(decl *ast.RoutineDecl) localSlots {
	slots := localSlots{}
	var n uint16 = 1
	for _, p := range decl.Params {
		if p.Kind == ast.ParamQuoted || p.Kind == ast.ParamTuple {
			continue
		}
		slots[p.Name] = n
		n++
	}
	return slots
}

// allocLocal returns name's existing slot, or assigns it the next free
// one. Slots are handed out contiguously, so this only works correctly
// called in lowering order, never concurrently.
func allocLocal(locals localSlots, name ast.Atom) uint16 {
	if slot, ok := locals[name]; ok {
		return slot
	}
	slot := uint16(len(locals) + 1)
	locals[name] = slot
	return slot
}

// loopFrame is one lexically enclosing REPEAT/PROG/MAP-* scope AGAIN
// and RETURN can target. topLabel is empty for scopes with no
// back-edge (PROG, BIND, an unrolled MAPF/MAPR/MAPT).
type loopFrame struct {
	name     ast.Atom
	topLabel string
	endLabel string
}

func findLoopFrame(loops []loopFrame, name ast.Atom) (loopFrame, bool) {
	if name == ast.NoAtom {
		if len(loops) == 0 {
			return loopFrame{}, false
		}
		return loops[len(loops)-1], true
	}
	for i := len(loops) - 1; i >= 0; i-- {
		if loops[i].name == name {
			return loops[i], true
		}
	}
	return loopFrame{}, false
}

// LowerRoutine lowers one routine declaration to its IR form, with
// initial local values honored on V1-V4 and zero-initialized on V5+
// (spec §6 "routine emission").
// maxLocals is the Z-machine's hard limit on local variable slots per
// routine call frame (the local-count byte in a routine header only
// has room for values 0-15).
const maxLocals = 15

func (l *Lowerer) LowerRoutine(decl *ast.RoutineDecl) (*ir.Routine, error) {
	if decl.LocalCount() > maxLocals {
		return nil, diagnostics.New(diagnostics.Semantic, decl.StartPos,
			"routine %s declares %d locals, exceeding the Z-machine's %d-local limit",
			l.atoms.Name(decl.Name), decl.LocalCount(), maxLocals)
	}

	locals := l.assignLocals(decl)
	b := ir.NewBuilder(decl.Name)

	paramInitials := map[uint16]uint16{}
	if l.version <= 4 {
		for _, p := range decl.Params {
			if slot, ok := locals[p.Name]; ok && p.Default != nil {
				if v, ok := constIntOf(p.Default); ok {
					paramInitials[slot] = uint16(v)
				}
			}
		}
	}

	var loops []loopFrame
	for i, v := range decl.Body {
		wantValue := i == len(decl.Body)-1
		if err := l.lowerStatement(b, v, locals, loops, wantValue); err != nil {
			return nil, err
		}
	}
	// A routine falling off its last statement returns whatever was
	// left on the stack by that statement; lowerStatement(..., true)
	// on the final statement guarantees something is pushed, so a
	// trailing RET POP makes that explicit and uniform.
	b.Emit(ir.Instruction{Op: "RET", Operands: []ir.Operand{ir.VarOperand(0)}, Pos: decl.StartPos})

	// REPEAT/PROG/MAP-* bindings may have grown locals past what
	// assignLocals saw; re-check the limit against the final count.
	if len(locals) > maxLocals {
		return nil, diagnostics.New(diagnostics.Semantic, decl.StartPos,
			"routine %s needs %d locals once loop variables are counted, exceeding the Z-machine's %d-local limit",
			l.atoms.Name(decl.Name), len(locals), maxLocals)
	}
	initials := make([]uint16, len(locals))
	for slot, v := range paramInitials {
		initials[slot-1] = v
	}
	b.Routine().Locals = initials

	return b.Routine(), nil
}

func constIntOf(v *ast.Value) (int16, bool) {
	if v != nil && v.Kind == ast.ValInt {
		return v.Int, true
	}
	return 0, false
}

// constIntValue resolves a compile-time integer: a literal, or a
// CONSTANT name. Used by MAPF/MAPR/MAPT, whose iteration count must be
// known at compile time (spec §4.8.2).
func (l *Lowerer) constIntValue(v *ast.Value) (int, bool) {
	if v == nil {
		return 0, false
	}
	if v.Kind == ast.ValInt {
		return int(v.Int), true
	}
	if v.Kind == ast.ValAtom {
		if c, ok := l.syms.Constants[v.Atom]; ok {
			return l.constIntValue(c.Value)
		}
	}
	return 0, false
}

// variableNumberOf resolves name to its Z-machine variable number
// (local slot or global), for builtins whose operand names a variable
// rather than its value (INC/DEC).
func (l *Lowerer) variableNumberOf(locals localSlots, name ast.Atom, pos ast.Position) (uint16, error) {
	if slot, ok := locals[name]; ok {
		return slot, nil
	}
	if slot, ok := l.syms.Globals[name]; ok {
		return uint16(slot), nil
	}
	return 0, diagnostics.New(diagnostics.Codegen, pos, "undeclared variable %q", l.atoms.Name(name))
}

// lowerStatement lowers one body form for its side effects, optionally
// leaving its result pushed on the stack (wantValue). loops names the
// lexically enclosing REPEAT/PROG/MAP-* scopes, innermost last, so
// AGAIN and RETURN can resolve their target.
func (l *Lowerer) lowerStatement(b *ir.Builder, v *ast.Value, locals localSlots, loops []loopFrame, wantValue bool) error {
	if v == nil {
		return nil
	}
	if v.Kind != ast.ValForm {
		if wantValue {
			operand, err := l.operandOf(b, v, locals)
			if err != nil {
				return err
			}
			b.Emit(ir.Instruction{Op: "PUSH", Operands: []ir.Operand{operand}, Pos: v.Pos})
		}
		return nil
	}

	op := l.atoms.Name(v.Form.Operator)
	switch op {
	case "COND":
		return l.lowerCond(b, v.Form, locals, loops, wantValue)
	case "REPEAT":
		return l.lowerRepeat(b, v.Form, locals, loops)
	case "PROG", "BIND":
		return l.lowerProg(b, v.Form, locals, loops, wantValue)
	case "AND", "OR":
		return l.lowerShortCircuit(b, v.Form, locals, wantValue, op == "OR")
	case "SET", "SETG":
		return l.lowerSet(b, v.Form, locals, op == "SETG", wantValue)
	case "RETURN":
		return l.lowerReturn(b, v.Form, locals, loops)
	case "AGAIN":
		return l.lowerAgain(b, v.Form, loops)
	case "TELL":
		return l.lowerTell(b, v.Form, locals)
	case "MAP-CONTENTS":
		return l.lowerMapContents(b, v.Form, locals, loops)
	case "MAP-DIRECTIONS":
		return l.lowerMapDirections(b, v.Form, locals, loops)
	case "MAPF", "MAPR", "MAPT":
		return l.lowerMapIndexed(b, v.Form, locals, loops)
	default:
		return l.lowerCallOrOp(b, v.Form, locals, wantValue)
	}
}

// lowerCond lowers <COND (t1 e1…) (t2 e2…) … (T eN…)> into a chain of
// test-and-branch instructions, one clause falling through to the
// next clause's test on failure (spec §6 "control-flow lowering").
func (l *Lowerer) lowerCond(b *ir.Builder, f *ast.Form, locals localSlots, loops []loopFrame, wantValue bool) error {
	endLabel := b.NewLabel("cond_end")
	for _, clauseVal := range f.Operands {
		if clauseVal.Kind != ast.ValList || len(clauseVal.List) == 0 {
			return diagnostics.New(diagnostics.Codegen, clauseVal.Pos, "COND clause must be a non-empty list")
		}
		test := clauseVal.List[0]
		body := clauseVal.List[1:]
		nextLabel := b.NewLabel("cond_next")

		if !isTrueLiteral(l.atoms, test) {
			if err := l.emitBranchOnFalse(b, test, locals, nextLabel); err != nil {
				return err
			}
		}
		for i, stmt := range body {
			if err := l.lowerStatement(b, stmt, locals, loops, wantValue && i == len(body)-1); err != nil {
				return err
			}
		}
		b.Emit(ir.Instruction{Op: "JUMP", Branch: &ir.Branch{Target: endLabel}})
		b.PlaceLabel(nextLabel)
	}
	b.PlaceLabel(endLabel)
	return nil
}

func isTrueLiteral(atoms *ast.AtomTable, v *ast.Value) bool {
	return v.Kind == ast.ValAtom && (atoms.Name(v.Atom) == "T" || atoms.Name(v.Atom) == "ELSE")
}

// bindLoopLocals lowers a REPEAT/PROG binding list: a bare atom just
// reserves a local, `(name init)` also stores init's value into it.
func (l *Lowerer) bindLoopLocals(b *ir.Builder, bindings *ast.Value, locals localSlots) error {
	if bindings == nil {
		return nil
	}
	if bindings.Kind != ast.ValList {
		return diagnostics.New(diagnostics.Codegen, bindings.Pos, "binding list must be a list")
	}
	for _, bind := range bindings.List {
		switch bind.Kind {
		case ast.ValAtom:
			allocLocal(locals, bind.Atom)
		case ast.ValList:
			if len(bind.List) == 0 || bind.List[0].Kind != ast.ValAtom {
				return diagnostics.New(diagnostics.Codegen, bind.Pos, "binding entry must name a variable")
			}
			slot := allocLocal(locals, bind.List[0].Atom)
			if len(bind.List) > 1 {
				val, err := l.operandOf(b, bind.List[1], locals)
				if err != nil {
					return err
				}
				b.Emit(ir.Instruction{Op: "STORE", Operands: []ir.Operand{ir.VarOperand(slot), val}, Pos: bind.Pos})
			}
		default:
			return diagnostics.New(diagnostics.Codegen, bind.Pos, "binding entry must be an atom or a (name init) pair")
		}
	}
	return nil
}

// lowerRepeat lowers <REPEAT (bindings…) body…> into a loop that
// re-evaluates body until a RETURN exits it (spec §4.8.2 "REPEAT"):
// reaching the end of body jumps back to L_start, as AGAIN does, and
// RETURN stores its value and jumps to L_end.
func (l *Lowerer) lowerRepeat(b *ir.Builder, f *ast.Form, locals localSlots, loops []loopFrame) error {
	if len(f.Operands) < 1 {
		return diagnostics.New(diagnostics.Codegen, f.Pos, "REPEAT requires a binding list")
	}
	if err := l.bindLoopLocals(b, f.Operands[0], locals); err != nil {
		return err
	}

	topLabel := b.NewLabel("repeat_top")
	endLabel := b.NewLabel("repeat_end")
	b.PlaceLabel(topLabel)

	frame := loopFrame{name: ast.NoAtom, topLabel: topLabel, endLabel: endLabel}
	inner := append(append([]loopFrame{}, loops...), frame)
	for _, stmt := range f.Operands[1:] {
		if err := l.lowerStatement(b, stmt, locals, inner, false); err != nil {
			return err
		}
	}
	b.Emit(ir.Instruction{Op: "JUMP", Branch: &ir.Branch{Target: topLabel}})
	b.PlaceLabel(endLabel)
	return nil
}

// lowerProg lowers <PROG [name] (bindings…) body…>/<BIND (bindings…)
// body…>: identical to REPEAT minus the back-jump (spec §4.8.2). A
// leading bare atom names the scope so a nested RETURN name val can
// target it specifically instead of the innermost enclosing scope.
func (l *Lowerer) lowerProg(b *ir.Builder, f *ast.Form, locals localSlots, loops []loopFrame, wantValue bool) error {
	operands := f.Operands
	name := ast.NoAtom
	if len(operands) > 0 && operands[0].Kind == ast.ValAtom {
		name = operands[0].Atom
		operands = operands[1:]
	}
	var bindings *ast.Value
	if len(operands) > 0 {
		bindings = operands[0]
		operands = operands[1:]
	}
	if err := l.bindLoopLocals(b, bindings, locals); err != nil {
		return err
	}

	endLabel := b.NewLabel("prog_end")
	frame := loopFrame{name: name, topLabel: "", endLabel: endLabel}
	inner := append(append([]loopFrame{}, loops...), frame)
	for i, stmt := range operands {
		if err := l.lowerStatement(b, stmt, locals, inner, wantValue && i == len(operands)-1); err != nil {
			return err
		}
	}
	b.PlaceLabel(endLabel)
	return nil
}

// lowerShortCircuit lowers AND/OR into a branch chain equivalent to
// the boolean short-circuit each clause demands.
func (l *Lowerer) lowerShortCircuit(b *ir.Builder, f *ast.Form, locals localSlots, wantValue bool, isOr bool) error {
	endLabel := b.NewLabel("sc_end")
	for i, operand := range f.Operands {
		last := i == len(f.Operands)-1
		if last {
			if wantValue {
				o, err := l.operandOf(b, operand, locals)
				if err != nil {
					return err
				}
				b.Emit(ir.Instruction{Op: "PUSH", Operands: []ir.Operand{o}})
			}
			break
		}
		if isOr {
			if err := l.emitBranchOnTrue(b, operand, locals, endLabel); err != nil {
				return err
			}
		} else {
			if err := l.emitBranchOnFalse(b, operand, locals, endLabel); err != nil {
				return err
			}
		}
	}
	b.PlaceLabel(endLabel)
	return nil
}

// lowerSet lowers <SET local value>/<SETG global value> to a STORE.
func (l *Lowerer) lowerSet(b *ir.Builder, f *ast.Form, locals localSlots, global bool, wantValue bool) error {
	if len(f.Operands) != 2 || f.Operands[0].Kind != ast.ValAtom {
		return diagnostics.New(diagnostics.Codegen, f.Pos, "SET/SETG requires a variable name and a value")
	}
	name := f.Operands[0].Atom
	var slot uint16
	if global {
		g, ok := l.syms.Globals[name]
		if !ok {
			return diagnostics.New(diagnostics.Codegen, f.Pos, "undeclared global %q", l.atoms.Name(name))
		}
		slot = uint16(g)
	} else {
		s, ok := locals[name]
		if !ok {
			return diagnostics.New(diagnostics.Codegen, f.Pos, "undeclared local %q", l.atoms.Name(name))
		}
		slot = s
	}
	valOperand, err := l.operandOf(b, f.Operands[1], locals)
	if err != nil {
		return err
	}
	b.Emit(ir.Instruction{Op: "STORE", Operands: []ir.Operand{ir.VarOperand(slot), valOperand}, Pos: f.Pos})
	if wantValue {
		b.Emit(ir.Instruction{Op: "PUSH", Operands: []ir.Operand{ir.VarOperand(slot)}})
	}
	return nil
}

// lowerReturn lowers <RETURN>, <RETURN val> and <RETURN name val>
// (spec §4.8.2). Outside any REPEAT/PROG it returns from the routine
// itself (the teacher's original behavior); inside one it stores the
// value and jumps to that scope's L_end instead, so a RETURN inside a
// loop only exits the loop, not the whole routine. A 2-operand form
// whose first operand names an enclosing named PROG targets that scope
// specifically rather than the innermost one.
func (l *Lowerer) lowerReturn(b *ir.Builder, f *ast.Form, locals localSlots, loops []loopFrame) error {
	operands := f.Operands
	target := ast.NoAtom
	if len(operands) == 2 && operands[0].Kind == ast.ValAtom {
		if _, ok := findLoopFrame(loops, operands[0].Atom); ok {
			target = operands[0].Atom
			operands = operands[1:]
		}
	}

	var valOperand ir.Operand
	if len(operands) == 0 {
		valOperand = ir.ConstOperand(1)
	} else {
		o, err := l.operandOf(b, operands[0], locals)
		if err != nil {
			return err
		}
		valOperand = o
	}

	frame, ok := findLoopFrame(loops, target)
	if !ok {
		b.Emit(ir.Instruction{Op: "PUSH", Operands: []ir.Operand{valOperand}, Pos: f.Pos})
		b.Emit(ir.Instruction{Op: "RET", Operands: []ir.Operand{ir.VarOperand(0)}, Pos: f.Pos})
		return nil
	}
	b.Emit(ir.Instruction{Op: "PUSH", Operands: []ir.Operand{valOperand}, Pos: f.Pos})
	b.Emit(ir.Instruction{Op: "JUMP", Branch: &ir.Branch{Target: frame.endLabel}, Pos: f.Pos})
	return nil
}

// lowerAgain lowers <AGAIN>: a jump back to the nearest enclosing
// loop's L_start (spec §4.8.2). PROG/BIND scopes have no L_start, so
// AGAIN skips past them to the next REPEAT/MAP-* loop outward.
func (l *Lowerer) lowerAgain(b *ir.Builder, f *ast.Form, loops []loopFrame) error {
	for i := len(loops) - 1; i >= 0; i-- {
		if loops[i].topLabel != "" {
			b.Emit(ir.Instruction{Op: "JUMP", Branch: &ir.Branch{Target: loops[i].topLabel}, Pos: f.Pos})
			return nil
		}
	}
	return diagnostics.New(diagnostics.Codegen, f.Pos, "AGAIN used outside any enclosing loop")
}

// lowerMapContents lowers <MAP-CONTENTS var obj [(END end-expr…)]
// body…>: var walks obj's children via GET_CHILD/GET_SIBLING until
// null (spec §4.8.2), and the END expressions run once the walk ends.
func (l *Lowerer) lowerMapContents(b *ir.Builder, f *ast.Form, locals localSlots, loops []loopFrame) error {
	if len(f.Operands) < 2 || f.Operands[0].Kind != ast.ValAtom {
		return diagnostics.New(diagnostics.Codegen, f.Pos, "MAP-CONTENTS requires a variable and an object")
	}
	varSlot := allocLocal(locals, f.Operands[0].Atom)
	objOperand, err := l.operandOf(b, f.Operands[1], locals)
	if err != nil {
		return err
	}

	rest := f.Operands[2:]
	var endExprs []*ast.Value
	if len(rest) > 0 && rest[0].Kind == ast.ValList && len(rest[0].List) > 0 &&
		rest[0].List[0].Kind == ast.ValAtom && strings.EqualFold(l.atoms.Name(rest[0].List[0].Atom), "END") {
		endExprs = rest[0].List[1:]
		rest = rest[1:]
	}

	topLabel := b.NewLabel("map_contents_top")
	endLabel := b.NewLabel("map_contents_end")
	b.Emit(ir.Instruction{
		Op:       "GET_CHILD",
		Operands: []ir.Operand{objOperand},
		HasStore: true, Store: ir.VarOperand(varSlot),
		Branch: &ir.Branch{Sense: ir.BranchOnFalse, Target: endLabel},
		Pos:    f.Pos,
	})
	b.PlaceLabel(topLabel)
	frame := loopFrame{name: ast.NoAtom, topLabel: topLabel, endLabel: endLabel}
	inner := append(append([]loopFrame{}, loops...), frame)
	for _, stmt := range rest {
		if err := l.lowerStatement(b, stmt, locals, inner, false); err != nil {
			return err
		}
	}
	b.Emit(ir.Instruction{
		Op:       "GET_SIBLING",
		Operands: []ir.Operand{ir.VarOperand(varSlot)},
		HasStore: true, Store: ir.VarOperand(varSlot),
		Branch: &ir.Branch{Sense: ir.BranchOnTrue, Target: topLabel},
		Pos:    f.Pos,
	})
	b.PlaceLabel(endLabel)
	for _, stmt := range endExprs {
		if err := l.lowerStatement(b, stmt, locals, loops, false); err != nil {
			return err
		}
	}
	return nil
}

// lowerMapDirections lowers <MAP-DIRECTIONS (var dir-var) room
// body…>: unrolled at compile time over every DIRECTIONS-declared exit
// property, highest id (the first direction DIRECTIONS declares)
// first, matching assignDirectionProperties' descending
// numbering (spec §4.8.2, §4.5). var is bound to the direction's
// property id, dir-var to GET_PROP's result for that direction; a
// direction the room doesn't set is simply skipped.
func (l *Lowerer) lowerMapDirections(b *ir.Builder, f *ast.Form, locals localSlots, loops []loopFrame) error {
	if len(f.Operands) < 3 || f.Operands[0].Kind != ast.ValList || len(f.Operands[0].List) != 2 {
		return diagnostics.New(diagnostics.Codegen, f.Pos, "MAP-DIRECTIONS requires a (direction-var dest-var) binding pair and a room")
	}
	bind := f.Operands[0].List
	if bind[0].Kind != ast.ValAtom || bind[1].Kind != ast.ValAtom {
		return diagnostics.New(diagnostics.Codegen, f.Pos, "MAP-DIRECTIONS binding variables must be atoms")
	}
	dirSlot := allocLocal(locals, bind[0].Atom)
	destSlot := allocLocal(locals, bind[1].Atom)
	roomOperand, err := l.operandOf(b, f.Operands[1], locals)
	if err != nil {
		return err
	}
	body := f.Operands[2:]

	endLabel := b.NewLabel("map_directions_end")
	frame := loopFrame{name: ast.NoAtom, topLabel: "", endLabel: endLabel}
	inner := append(append([]loopFrame{}, loops...), frame)

	for _, dir := range l.syms.Directions {
		propID, ok := l.syms.Props[dir]
		if !ok {
			continue
		}
		skipLabel := b.NewLabel("map_directions_skip")
		// GET_PROP has no branch field of its own (unlike GET_CHILD/
		// GET_SIBLING); a direction the room doesn't set reads back as
		// the property's default (0), so a separate JZ skips it.
		b.Emit(ir.Instruction{
			Op:       "GET_PROP",
			Operands: []ir.Operand{roomOperand, ir.ConstOperand(uint16(propID))},
			HasStore: true, Store: ir.VarOperand(destSlot),
			Pos: f.Pos,
		})
		b.Emit(ir.Instruction{
			Op:       "JZ",
			Operands: []ir.Operand{ir.VarOperand(destSlot)},
			Branch:   &ir.Branch{Sense: ir.BranchOnTrue, Target: skipLabel},
			Pos:      f.Pos,
		})
		b.Emit(ir.Instruction{Op: "STORE", Operands: []ir.Operand{ir.VarOperand(dirSlot), ir.ConstOperand(uint16(propID))}, Pos: f.Pos})
		for _, stmt := range body {
			if err := l.lowerStatement(b, stmt, locals, inner, false); err != nil {
				return err
			}
		}
		b.PlaceLabel(skipLabel)
	}
	b.PlaceLabel(endLabel)
	return nil
}

// mapUnrollLimit is the largest compile-time-known MAPF/MAPR/MAPT
// iteration count codegen fully unrolls; beyond it, a DEC_CHK-driven
// loop is emitted instead (spec §4.8.2).
const mapUnrollLimit = 8

// lowerMapIndexed lowers <MAPF|MAPR|MAPT (var count) body…>, an
// indexed walk over a compile-time-sized structure: var runs count-1
// down to 0. Small counts unroll completely; larger ones use a single
// DEC_CHK per iteration (spec §4.8.2).
func (l *Lowerer) lowerMapIndexed(b *ir.Builder, f *ast.Form, locals localSlots, loops []loopFrame) error {
	if len(f.Operands) < 1 || f.Operands[0].Kind != ast.ValList || len(f.Operands[0].List) != 2 {
		return diagnostics.New(diagnostics.Codegen, f.Pos, "MAPF/MAPR/MAPT requires a (variable count) binding pair")
	}
	bind := f.Operands[0].List
	if bind[0].Kind != ast.ValAtom {
		return diagnostics.New(diagnostics.Codegen, f.Pos, "MAPF/MAPR/MAPT binding variable must be an atom")
	}
	count, ok := l.constIntValue(bind[1])
	if !ok || count < 0 {
		return diagnostics.New(diagnostics.Codegen, f.Pos, "MAPF/MAPR/MAPT requires a compile-time constant iteration count")
	}
	varSlot := allocLocal(locals, bind[0].Atom)
	body := f.Operands[1:]

	if count <= mapUnrollLimit {
		endLabel := b.NewLabel("mapidx_end")
		frame := loopFrame{name: ast.NoAtom, topLabel: "", endLabel: endLabel}
		inner := append(append([]loopFrame{}, loops...), frame)
		for i := 0; i < count; i++ {
			b.Emit(ir.Instruction{Op: "STORE", Operands: []ir.Operand{ir.VarOperand(varSlot), ir.ConstOperand(uint16(count - 1 - i))}, Pos: f.Pos})
			for _, stmt := range body {
				if err := l.lowerStatement(b, stmt, locals, inner, false); err != nil {
					return err
				}
			}
		}
		b.PlaceLabel(endLabel)
		return nil
	}

	if count == 0 {
		return nil
	}
	b.Emit(ir.Instruction{Op: "STORE", Operands: []ir.Operand{ir.VarOperand(varSlot), ir.ConstOperand(uint16(count - 1))}, Pos: f.Pos})
	topLabel := b.NewLabel("mapidx_top")
	endLabel := b.NewLabel("mapidx_end")
	b.PlaceLabel(topLabel)
	frame := loopFrame{name: ast.NoAtom, topLabel: topLabel, endLabel: endLabel}
	inner := append(append([]loopFrame{}, loops...), frame)
	for _, stmt := range body {
		if err := l.lowerStatement(b, stmt, locals, inner, false); err != nil {
			return err
		}
	}
	// Decrementing var past 0 ends the loop: dec_chk branches when the
	// new value is NOT less than 0, i.e. while var is still in range.
	b.Emit(ir.Instruction{
		Op:       "DEC_CHK",
		Operands: []ir.Operand{ir.VarOperand(varSlot), ir.ConstOperand(0)},
		Branch:   &ir.Branch{Sense: ir.BranchOnFalse, Target: topLabel},
		Pos:      f.Pos,
	})
	b.PlaceLabel(endLabel)
	return nil
}

// lowerTell lowers a TELL form. Each operand kind gets its own opcode
// (spec §4.8.4 "TELL operand kinds"): a string literal becomes
// PRINT_PADDR against a TellString placeholder the assembler resolves
// once the deduplicated string table is laid out; CR is NEW_LINE; an
// atom naming a declared object is PRINT_OBJ; anything else is printed
// as a signed number via PRINT_NUM.
func (l *Lowerer) lowerTell(b *ir.Builder, f *ast.Form, locals localSlots) error {
	for _, operand := range f.Operands {
		if operand.Kind == ast.ValString {
			op := ir.PlaceholderStringOp(ir.PlaceholderTellString, operand.Str)
			b.Emit(ir.Instruction{Op: "PRINT_PADDR", Operands: []ir.Operand{op}, Pos: operand.Pos})
			continue
		}
		if operand.Kind == ast.ValAtom && strings.EqualFold(l.atoms.Name(operand.Atom), "CR") {
			b.Emit(ir.Instruction{Op: "NEW_LINE", Pos: operand.Pos})
			continue
		}
		if operand.Kind == ast.ValAtom {
			if _, ok := l.syms.LookupObject(operand.Atom); ok {
				o, err := l.operandOf(b, operand, locals)
				if err != nil {
					return err
				}
				b.Emit(ir.Instruction{Op: "PRINT_OBJ", Operands: []ir.Operand{o}, Pos: operand.Pos})
				continue
			}
		}
		o, err := l.operandOf(b, operand, locals)
		if err != nil {
			return err
		}
		b.Emit(ir.Instruction{Op: "PRINT_NUM", Operands: []ir.Operand{o}, Pos: operand.Pos})
	}
	return nil
}

// lowerBuiltin recognizes a ZIL built-in operator that maps directly
// onto a Z-machine instruction and emits it, reporting handled=true so
// lowerCallOrOp never falls through to treating the builtin's name as
// an undefined routine to call (spec §4.8 "opcode emission for ZIL
// builtins").
func (l *Lowerer) lowerBuiltin(b *ir.Builder, f *ast.Form, locals localSlots, name string, wantValue bool) (handled bool, err error) {
	if zop, ok := terminalBuiltins[name]; ok {
		b.Emit(ir.Instruction{Op: zop, Pos: f.Pos})
		return true, nil
	}

	if name == "PRINTI" || name == "PRINTR" {
		if len(f.Operands) != 1 || f.Operands[0].Kind != ast.ValString {
			return true, diagnostics.New(diagnostics.Codegen, f.Pos, "%s requires a single string literal", name)
		}
		op := ir.PlaceholderStringOp(ir.PlaceholderTellString, f.Operands[0].Str)
		b.Emit(ir.Instruction{Op: "PRINT_PADDR", Operands: []ir.Operand{op}, Pos: f.Pos})
		if name == "PRINTR" {
			b.Emit(ir.Instruction{Op: "NEW_LINE", Pos: f.Pos})
			b.Emit(ir.Instruction{Op: "RTRUE", Pos: f.Pos})
			return true, nil
		}
		if wantValue {
			b.Emit(ir.Instruction{Op: "PUSH", Operands: []ir.Operand{ir.ConstOperand(1)}})
		}
		return true, nil
	}

	if name == "INC" || name == "DEC" {
		if len(f.Operands) != 1 || f.Operands[0].Kind != ast.ValAtom {
			return true, diagnostics.New(diagnostics.Codegen, f.Pos, "%s requires a single variable name", name)
		}
		slot, err := l.variableNumberOf(locals, f.Operands[0].Atom, f.Pos)
		if err != nil {
			return true, err
		}
		zop := ir.Op("INC")
		if name == "DEC" {
			zop = "DEC"
		}
		b.Emit(ir.Instruction{Op: zop, Operands: []ir.Operand{ir.ConstOperand(slot)}, Pos: f.Pos})
		if wantValue {
			b.Emit(ir.Instruction{Op: "PUSH", Operands: []ir.Operand{ir.ConstOperand(1)}})
		}
		return true, nil
	}

	if spec, ok := valueBuiltins[name]; ok {
		if len(f.Operands) != spec.NumArgs {
			return true, diagnostics.New(diagnostics.Codegen, f.Pos, "%s requires %d operand(s)", name, spec.NumArgs)
		}
		operands, err := l.operandsOf(b, f.Operands, locals)
		if err != nil {
			return true, err
		}
		b.Emit(ir.Instruction{Op: spec.Op, Operands: operands, HasStore: true, Store: ir.VarOperand(0), Pos: f.Pos})
		return true, nil
	}

	if spec, ok := voidBuiltins[name]; ok {
		if len(f.Operands) != spec.NumArgs {
			return true, diagnostics.New(diagnostics.Codegen, f.Pos, "%s requires %d operand(s)", name, spec.NumArgs)
		}
		operands, err := l.operandsOf(b, f.Operands, locals)
		if err != nil {
			return true, err
		}
		b.Emit(ir.Instruction{Op: spec.Op, Operands: operands, Pos: f.Pos})
		if wantValue {
			b.Emit(ir.Instruction{Op: "PUSH", Operands: []ir.Operand{ir.ConstOperand(1)}})
		}
		return true, nil
	}

	return false, nil
}

func (l *Lowerer) operandsOf(b *ir.Builder, vals []*ast.Value, locals localSlots) ([]ir.Operand, error) {
	operands := make([]ir.Operand, 0, len(vals))
	for _, v := range vals {
		o, err := l.operandOf(b, v, locals)
		if err != nil {
			return nil, err
		}
		operands = append(operands, o)
	}
	return operands, nil
}

// lowerCallOrOp lowers a built-in instruction (lowerBuiltin), an
// arithmetic opcode form, a comparison used as a plain value (pushing
// 1/0), or — when the operator names none of those — a routine call.
func (l *Lowerer) lowerCallOrOp(b *ir.Builder, f *ast.Form, locals localSlots, wantValue bool) error {
	name := l.atoms.Name(f.Operator)

	if handled, err := l.lowerBuiltin(b, f, locals, name, wantValue); handled {
		return err
	}

	if zop, ok := arithOps[name]; ok && len(f.Operands) == 2 {
		dest := ir.VarOperand(0)
		lhs, err := l.operandOf(b, f.Operands[0], locals)
		if err != nil {
			return err
		}
		rhs, err := l.operandOf(b, f.Operands[1], locals)
		if err != nil {
			return err
		}
		instr := ir.Instruction{
			Op:       zop,
			Operands: []ir.Operand{lhs, rhs},
			Pos:      f.Pos,
		}
		if wantValue {
			instr.HasStore = true
			instr.Store = dest
		}
		b.Emit(instr)
		return nil
	}

	if _, ok := compareOps[name]; ok {
		trueLabel := b.NewLabel("cmp_true")
		endLabel := b.NewLabel("cmp_end")
		if err := l.emitBranchOnTrue(b, ast.FormValue(f, f.Pos), locals, trueLabel); err != nil {
			return err
		}
		if wantValue {
			b.Emit(ir.Instruction{Op: "PUSH", Operands: []ir.Operand{ir.ConstOperand(0)}})
		}
		b.Emit(ir.Instruction{Op: "JUMP", Branch: &ir.Branch{Target: endLabel}})
		b.PlaceLabel(trueLabel)
		if wantValue {
			b.Emit(ir.Instruction{Op: "PUSH", Operands: []ir.Operand{ir.ConstOperand(1)}})
		}
		b.PlaceLabel(endLabel)
		return nil
	}

	// Routine call: the operator names the routine, operands are its
	// arguments (spec §6 "routine emission").
	target := ir.PlaceholderOperand(ir.PlaceholderRoutineAddr, f.Operator)
	operands := []ir.Operand{target}
	for _, a := range f.Operands {
		o, err := l.operandOf(b, a, locals)
		if err != nil {
			return err
		}
		operands = append(operands, o)
	}
	instr := ir.Instruction{Op: "CALL", Operands: operands, Pos: f.Pos}
	if wantValue {
		instr.HasStore = true
		instr.Store = ir.VarOperand(0)
	}
	b.Emit(instr)
	return nil
}

// emitBranchOnTrue/emitBranchOnFalse lower a predicate expression into
// a single conditional-branch instruction. Non-comparison expressions
// fall back to "evaluate then JZ/branch-if-nonzero".
func (l *Lowerer) emitBranchOnTrue(b *ir.Builder, v *ast.Value, locals localSlots, target string) error {
	return l.emitBranch(b, v, locals, target, ir.BranchOnTrue)
}
func (l *Lowerer) emitBranchOnFalse(b *ir.Builder, v *ast.Value, locals localSlots, target string) error {
	return l.emitBranch(b, v, locals, target, ir.BranchOnFalse)
}

func (l *Lowerer) emitBranch(b *ir.Builder, v *ast.Value, locals localSlots, target string, sense ir.BranchSense) error {
	if v.Kind == ast.ValForm {
		name := l.atoms.Name(v.Form.Operator)
		if zop, ok := compareOps[name]; ok {
			var operands []ir.Operand
			for _, o := range v.Form.Operands {
				operand, err := l.operandOf(b, o, locals)
				if err != nil {
					return err
				}
				operands = append(operands, operand)
			}
			b.Emit(ir.Instruction{
				Op:       zop,
				Operands: operands,
				Branch:   &ir.Branch{Sense: sense, Target: target},
				Pos:      v.Pos,
			})
			return nil
		}
		if name == "NOT" && len(v.Form.Operands) == 1 {
			flipped := ir.BranchOnTrue
			if sense == ir.BranchOnTrue {
				flipped = ir.BranchOnFalse
			}
			return l.emitBranch(b, v.Form.Operands[0], locals, target, flipped)
		}
	}
	operand, err := l.operandOf(b, v, locals)
	if err != nil {
		return err
	}
	b.Emit(ir.Instruction{
		Op:       "JZ",
		Operands: []ir.Operand{operand},
		Branch:   &ir.Branch{Sense: oppositeSense(sense), Target: target},
	})
	return nil
}

func oppositeSense(s ir.BranchSense) ir.BranchSense {
	if s == ir.BranchOnTrue {
		return ir.BranchOnFalse
	}
	return ir.BranchOnTrue
}

// operandOf lowers a Value appearing in operand position to an
// ir.Operand: literal integers/atoms-as-constants, local/global
// variable references, or — for a nested form — emits that form's
// instructions now (pushing its result) and returns a reference to the
// stack slot they leave behind, so operand position can hold arbitrary
// expressions, not just names and literals.
func (l *Lowerer) operandOf(b *ir.Builder, v *ast.Value, locals localSlots) (ir.Operand, error) {
	if v == nil {
		return ir.ConstOperand(0), nil
	}
	switch v.Kind {
	case ast.ValInt:
		return ir.ConstOperand(uint16(v.Int)), nil
	case ast.ValAtom:
		if slot, ok := locals[v.Atom]; ok {
			return ir.VarOperand(slot), nil
		}
		if slot, ok := l.syms.Globals[v.Atom]; ok {
			return ir.VarOperand(uint16(slot)), nil
		}
		if obj, ok := l.syms.LookupObject(v.Atom); ok {
			return ir.ConstOperand(uint16(obj.Number)), nil
		}
		if attr, ok := l.syms.Flags[v.Atom]; ok {
			return ir.ConstOperand(uint16(attr)), nil
		}
		if prop, ok := l.syms.Props[v.Atom]; ok {
			return ir.ConstOperand(uint16(prop)), nil
		}
		return ir.PlaceholderOperand(ir.PlaceholderRoutineAddr, v.Atom), nil
	case ast.ValForm:
		if l.atoms.Name(v.Form.Operator) == "LVAL" && len(v.Form.Operands) == 1 {
			return l.operandOf(b, v.Form.Operands[0], locals)
		}
		if l.atoms.Name(v.Form.Operator) == "GVAL" && len(v.Form.Operands) == 1 && v.Form.Operands[0].Kind == ast.ValAtom {
			if slot, ok := l.syms.Globals[v.Form.Operands[0].Atom]; ok {
				return ir.VarOperand(uint16(slot)), nil
			}
		}
		// Any other nested form is a subexpression: lower it now for
		// its value and reference the stack slot it leaves behind.
		if err := l.lowerStatement(b, v, locals, nil, true); err != nil {
			return ir.Operand{}, err
		}
		return ir.VarOperand(0), nil
	default:
		return ir.ConstOperand(0), nil
	}
}
