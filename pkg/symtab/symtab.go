// Package symtab builds the two-pass symbol/object model spec §4.5
// describes: object numbering, flag/property/global id assignment, and
// PROPDEF pattern matching. Pass one walks every declaration and
// registers names; pass two assigns the numeric ids that depend on
// the whole program having been seen first (an object's number, for
// instance, depends on how many objects follow it in the source).
//
// Grounded on the teacher's pkg/semantic/scope.go: the same
// interface-tagged Symbol union for heterogeneous name kinds (here:
// routine/object/global/constant/propdef/flag, where the teacher has
// var/func/type/namespace), generalized from MinZ's single compile
// pass to ZIL's declare-then-number two-pass scheme.
package symtab

import (
	"fmt"

	"golang.org/x/exp/slices"

	"github.com/zil-lang/zilc/pkg/ast"
	"github.com/zil-lang/zilc/pkg/diagnostics"
)

// Symbol is any named entity the table tracks.
type Symbol interface {
	symbol()
}

type RoutineSymbol struct{ Decl *ast.RoutineDecl }
type ObjectSymbol struct{ Decl *ast.ObjectDecl }
type GlobalSymbol struct{ Decl *ast.GlobalDecl }
type ConstantSymbol struct{ Decl *ast.ConstantDecl }
type PropDefSymbol struct{ Decl *ast.PropDefDecl }

func (*RoutineSymbol) symbol()  {}
func (*ObjectSymbol) symbol()   {}
func (*GlobalSymbol) symbol()   {}
func (*ConstantSymbol) symbol() {}
func (*PropDefSymbol) symbol()  {}

// maxAttribute returns the highest legal attribute id for version:
// 31 on V3 (32-bit attribute word), 47 on V4+ (48-bit).
func maxAttribute(version int) int {
	if version <= 3 {
		return 31
	}
	return 47
}

// maxProperty returns the highest legal property id for version: 31
// numeric properties on V3, 63 on V4+ (spec §3 "Property").
func maxProperty(version int) int {
	if version <= 3 {
		return 31
	}
	return 63
}

// Table is the fully resolved symbol/object model for one compilation.
type Table struct {
	Version int

	byName    map[ast.Atom]Symbol
	Routines  map[ast.Atom]*ast.RoutineDecl
	Objects   []*ast.ObjectDecl // final numbering order, index 0 == object #1
	objByName map[ast.Atom]*ast.ObjectDecl
	Globals   map[ast.Atom]int
	Constants map[ast.Atom]*ast.ConstantDecl
	Flags     map[ast.Atom]int
	Props     map[ast.Atom]int
	PropDefs  map[ast.Atom]*ast.PropDefDecl
	Directions []ast.Atom

	atoms *ast.AtomTable
}

func New(atoms *ast.AtomTable, version int) *Table {
	return &Table{
		Version:   version,
		byName:    map[ast.Atom]Symbol{},
		Routines:  map[ast.Atom]*ast.RoutineDecl{},
		objByName: map[ast.Atom]*ast.ObjectDecl{},
		Globals:   map[ast.Atom]int{},
		Constants: map[ast.Atom]*ast.ConstantDecl{},
		Flags:     map[ast.Atom]int{},
		Props:     map[ast.Atom]int{},
		PropDefs:  map[ast.Atom]*ast.PropDefDecl{},
		atoms:     atoms,
	}
}

// Build runs both passes over file and populates the table, or returns
// the first SemanticError encountered (duplicate definition, id-space
// exhaustion, …).
func (t *Table) Build(file *ast.File) error {
	var objectsInOrder []*ast.ObjectDecl
	nextGlobalSlot := 16 // spec §3 "Global": slots 16..255

	for _, d := range file.Declarations {
		switch v := d.(type) {
		case *ast.RoutineDecl:
			if err := t.declare(v.Name, &RoutineSymbol{v}, v.StartPos); err != nil {
				return err
			}
			t.Routines[v.Name] = v
		case *ast.ObjectDecl:
			if err := t.declare(v.Name, &ObjectSymbol{v}, v.StartPos); err != nil {
				return err
			}
			t.objByName[v.Name] = v
			objectsInOrder = append(objectsInOrder, v)
			t.collectFlags(v)
		case *ast.GlobalDecl:
			if err := t.declare(v.Name, &GlobalSymbol{v}, v.StartPos); err != nil {
				return err
			}
			if nextGlobalSlot > 255 {
				return diagnostics.New(diagnostics.Semantic, v.StartPos, "too many GLOBALs: slot space (16..255) exhausted")
			}
			v.Slot = nextGlobalSlot
			t.Globals[v.Name] = nextGlobalSlot
			nextGlobalSlot++
		case *ast.ConstantDecl:
			if err := t.declare(v.Name, &ConstantSymbol{v}, v.StartPos); err != nil {
				return err
			}
			t.Constants[v.Name] = v
		case *ast.PropDefDecl:
			if err := t.declare(v.Name, &PropDefSymbol{v}, v.StartPos); err != nil {
				return err
			}
			t.PropDefs[v.Name] = v
		case *ast.DirectionsDecl:
			t.Directions = append(t.Directions, v.Names...)
		}
	}

	if t.Version <= 3 && len(objectsInOrder) > 255 {
		return diagnostics.New(diagnostics.Semantic, ast.Position{},
			"too many OBJECTs/ROOMs for a V3 target: %d declared, object numbers only fit one byte (max 255)", len(objectsInOrder))
	}

	t.assignObjectNumbers(objectsInOrder)
	t.linkObjectTree(objectsInOrder)
	if err := t.assignDirectionProperties(); err != nil {
		return err
	}
	if err := t.assignOrdinaryProperties(file); err != nil {
		return err
	}
	return t.duplicateFlagsAcrossObjects()
}

func (t *Table) declare(name ast.Atom, sym Symbol, pos ast.Position) error {
	if existing, ok := t.byName[name]; ok {
		if sameKind(existing, sym) {
			return diagnostics.New(diagnostics.Semantic, pos, "%q is already defined", t.atoms.Name(name))
		}
	}
	t.byName[name] = sym
	return nil
}

func sameKind(a, b Symbol) bool {
	switch a.(type) {
	case *RoutineSymbol:
		_, ok := b.(*RoutineSymbol)
		return ok
	case *ObjectSymbol:
		_, ok := b.(*ObjectSymbol)
		return ok
	case *GlobalSymbol:
		_, ok := b.(*GlobalSymbol)
		return ok
	case *ConstantSymbol:
		_, ok := b.(*ConstantSymbol)
		return ok
	case *PropDefSymbol:
		_, ok := b.(*PropDefSymbol)
		return ok
	}
	return false
}

// assignObjectNumbers implements spec §4.5's "object numbering in
// reverse-of-definition-order (ZILF convention)": the last ROOM/OBJECT
// in the source gets object number 1.
func (t *Table) assignObjectNumbers(objectsInOrder []*ast.ObjectDecl) {
	n := len(objectsInOrder)
	t.Objects = make([]*ast.ObjectDecl, n)
	for i, obj := range objectsInOrder {
		obj.Number = n - i
		t.Objects[obj.Number-1] = obj
	}
}

// linkObjectTree derives the classic Infocom parent/sibling/child
// triple from each object's (IN room)/(LOC room) property, matching
// the convention that the most-recently-attached child becomes the
// parent's Child and pushes the previous Child into its Sibling slot.
func (t *Table) linkObjectTree(objectsInOrder []*ast.ObjectDecl) {
	for _, obj := range objectsInOrder {
		parent := t.locationOf(obj)
		if parent == ast.NoAtom {
			continue
		}
		obj.Parent = parent
		parentDecl, ok := t.objByName[parent]
		if !ok {
			continue
		}
		obj.Sibling = parentDecl.Child
		parentDecl.Child = obj.Name
	}
}

func (t *Table) locationOf(obj *ast.ObjectDecl) ast.Atom {
	for _, pv := range obj.Props {
		if pv.Exit != nil {
			continue
		}
		name := t.atoms.Name(pv.Property)
		if name != "IN" && name != "LOC" {
			continue
		}
		if len(pv.Values) == 1 && pv.Values[0].Kind == ast.ValAtom {
			return pv.Values[0].Atom
		}
	}
	return ast.NoAtom
}

func (t *Table) collectFlags(obj *ast.ObjectDecl) {
	for _, f := range obj.Flags {
		if _, ok := t.Flags[f]; !ok {
			t.Flags[f] = len(t.Flags)
		}
	}
}

// assignDirectionProperties gives DIRECTIONS-declared exits the
// highest property ids, in descending order, per spec §3's "direction
// properties get highest ids descending".
func (t *Table) assignDirectionProperties() error {
	maxID := maxProperty(t.Version)
	id := maxID
	for _, dir := range t.Directions {
		if id < 1 {
			return diagnostics.New(diagnostics.Semantic, ast.Position{}, "too many DIRECTIONS: property id space (1..%d) exhausted", maxID)
		}
		t.Props[dir] = id
		id--
	}
	return nil
}

// assignOrdinaryProperties gives every remaining property name
// (referenced by a PROPDEF or used directly in an object's property
// list) the next free low id, in first-appearance order, stopping
// just below the direction reservation.
func (t *Table) assignOrdinaryProperties(file *ast.File) error {
	maxID := maxProperty(t.Version)
	reserved := len(t.Directions)
	ceiling := maxID - reserved

	var order []ast.Atom
	seen := map[ast.Atom]bool{}
	record := func(a ast.Atom) {
		if _, isDir := t.Props[a]; isDir {
			return
		}
		if !seen[a] {
			seen[a] = true
			order = append(order, a)
		}
	}

	for _, d := range file.Declarations {
		switch v := d.(type) {
		case *ast.PropDefDecl:
			record(v.Name)
		case *ast.ObjectDecl:
			for _, pv := range v.Props {
				if pv.Exit == nil {
					record(pv.Property)
				}
			}
		}
	}

	id := 1
	for _, a := range order {
		if id > ceiling {
			return diagnostics.New(diagnostics.Semantic, ast.Position{}, "too many properties: id space (1..%d) exhausted", maxID)
		}
		t.Props[a] = id
		id++
	}
	return nil
}

// MatchPattern finds the first PROPDEF pattern (in declaration order)
// that structurally matches values, resolving spec §9's Open Question
// in favor of first-match-wins.
func MatchPattern(t *Table, propdef *ast.PropDefDecl, values []*ast.Value) (*ast.PropPattern, bool) {
	for _, pat := range propdef.Patterns {
		if patternMatches(t, pat, values) {
			return pat, true
		}
	}
	return nil, false
}

func patternMatches(t *Table, pat *ast.PropPattern, values []*ast.Value) bool {
	vi := 0
	for _, elem := range pat.Elems {
		if vi >= len(values) {
			if elem.Optional {
				continue
			}
			return false
		}
		if !elemMatches(t, elem, values[vi]) {
			if elem.Optional {
				continue
			}
			return false
		}
		vi++
	}
	return vi == len(values)
}

func elemMatches(t *Table, elem ast.PropPatternElem, v *ast.Value) bool {
	switch elem.Kind {
	case ast.PatByte:
		return v.Kind == ast.ValInt && v.Int >= -128 && v.Int <= 255
	case ast.PatWord:
		return v.Kind == ast.ValInt || v.Kind == ast.ValAtom
	case ast.PatRoom:
		if v.Kind != ast.ValAtom {
			return false
		}
		obj, ok := t.objByName[v.Atom]
		return ok && obj.IsRoom
	case ast.PatObject:
		if v.Kind != ast.ValAtom {
			return false
		}
		_, ok := t.objByName[v.Atom]
		return ok
	case ast.PatVoc:
		return v.Kind == ast.ValAtom
	default:
		return false
	}
}

// SortedFlagNames returns flag atoms ordered by assigned id, useful for
// deterministic diagnostics and test output.
func (t *Table) SortedFlagNames() []ast.Atom {
	names := make([]ast.Atom, 0, len(t.Flags))
	for a := range t.Flags {
		names = append(names, a)
	}
	slices.SortFunc(names, func(a, b ast.Atom) int { return t.Flags[a] - t.Flags[b] })
	return names
}

// LookupObject returns the ObjectDecl named name, if any.
func (t *Table) LookupObject(name ast.Atom) (*ast.ObjectDecl, bool) {
	o, ok := t.objByName[name]
	return o, ok
}

// HasRoutine reports whether name is a declared routine, used by the
// assembler's forward-reference validation pass.
func (t *Table) HasRoutine(name ast.Atom) bool {
	_, ok := t.Routines[name]
	return ok
}

// AttributeWordBits returns how many bits wide the object attribute
// bitset is for this table's version: 32 on V3, 48 on V4+.
func (t *Table) AttributeWordBits() int {
	if t.Version <= 3 {
		return 32
	}
	return 48
}

// MaxPropertyID returns the highest legal property number for this
// table's version (spec §3 "Property"), for sizing the property
// defaults table.
func (t *Table) MaxPropertyID() int { return maxProperty(t.Version) }

// ObjectEntrySize returns the byte width of one object table entry:
// 9 bytes (4 attribute + 3 tree-link + 2 property-pointer) on V3, 14
// bytes (6 + 6 + 2) on V4+ (spec §3 "Object/Room").
func (t *Table) ObjectEntrySize() int {
	if t.Version <= 3 {
		return 9
	}
	return 14
}

// duplicateFlagsAcrossObjects is a sanity helper exercised by tests:
// it reports any attribute id used by more flags than the version's
// attribute word can hold, which would indicate an internal bug in
// collectFlags rather than a user error.
func (t *Table) duplicateFlagsAcrossObjects() error {
	if len(t.Flags) > maxAttribute(t.Version)+1 {
		return fmt.Errorf("internal error: %d flags assigned but only %d attribute bits available", len(t.Flags), maxAttribute(t.Version)+1)
	}
	return nil
}
