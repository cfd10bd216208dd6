package assemble

import (
	"sort"

	"github.com/zil-lang/zilc/pkg/ast"
	"github.com/zil-lang/zilc/pkg/diagnostics"
	"github.com/zil-lang/zilc/pkg/ir"
	"github.com/zil-lang/zilc/pkg/symtab"
)

// buildObjectTable lays out the property-defaults table, every object's
// fixed-size entry, and each object's variable-length property list
// (spec §3 "Object/Room", §4.9 layout steps 4-5). Property tables
// follow the object entries as a block; an object's entry carries its
// table's address, patched in directly once that object's table is
// appended since both live in the same contiguous image and the
// address is known the instant the table starts.
func (a *Assembler) buildObjectTable(img []byte) ([]byte, []fixup, error) {
	maxProp := a.syms.MaxPropertyID()
	img = append(img, make([]byte, maxProp*2)...) // property defaults, all zero

	entrySize := a.syms.ObjectEntrySize()
	n := len(a.syms.Objects)
	entriesBase := len(img)
	img = append(img, make([]byte, n*entrySize)...)

	var fixups []fixup
	for i, obj := range a.syms.Objects {
		entryOff := entriesBase + i*entrySize
		a.writeObjectEntry(img, entryOff, obj)

		propBytes, propFixups, err := a.buildPropertyTable(obj)
		if err != nil {
			return nil, nil, err
		}
		tableOff := len(img)
		putWord(img, entryOff+entrySize-2, uint16(tableOff))
		for i := range propFixups {
			propFixups[i].offset += tableOff
		}
		fixups = append(fixups, propFixups...)
		img = append(img, propBytes...)
	}
	return img, fixups, nil
}

func (a *Assembler) writeObjectEntry(img []byte, off int, obj *ast.ObjectDecl) {
	attrBytes := a.syms.AttributeWordBits() / 8
	for _, f := range obj.Flags {
		id, ok := a.syms.Flags[f]
		if !ok {
			continue
		}
		byteIdx := id / 8
		bit := uint(7 - id%8)
		img[off+byteIdx] |= 1 << bit
	}

	linkOff := off + attrBytes
	parent := a.objectNumber(obj.Parent)
	sibling := a.objectNumber(obj.Sibling)
	child := a.objectNumber(obj.Child)
	if attrBytes == 4 {
		img[linkOff] = byte(parent)
		img[linkOff+1] = byte(sibling)
		img[linkOff+2] = byte(child)
	} else {
		putWord(img, linkOff, uint16(parent))
		putWord(img, linkOff+2, uint16(sibling))
		putWord(img, linkOff+4, uint16(child))
	}
}

func (a *Assembler) objectNumber(name ast.Atom) int {
	if name == ast.NoAtom {
		return 0
	}
	if obj, ok := a.syms.LookupObject(name); ok {
		return obj.Number
	}
	return 0
}

// propEntry is one not-yet-encoded property, keyed by its assigned
// numeric id so the list can be sorted into the descending order spec
// §8 requires before encoding.
type propEntry struct {
	number int
	data   []byte
	fixups []fixup // offsets relative to the start of data
}

// buildPropertyTable builds one object's short-name header followed by
// its property entries in strictly descending property-number order
// (spec §8 testable invariant), terminated by a zero byte.
func (a *Assembler) buildPropertyTable(obj *ast.ObjectDecl) ([]byte, []fixup, error) {
	words, err := a.text.EncodeString(obj.DescString)
	if err != nil {
		return nil, nil, diagnostics.Wrap(diagnostics.Encoding, obj.StartPos, err, "encoding short name of %s", a.atoms.Name(obj.Name))
	}
	var out []byte
	out = append(out, byte(len(words)))
	for _, w := range words {
		out = append(out, byte(w>>8), byte(w))
	}

	var entries []propEntry
	for _, pv := range obj.Props {
		num, ok := a.syms.Props[pv.Property]
		if !ok {
			continue
		}
		var data []byte
		var fx []fixup
		if pv.Exit != nil {
			data, fx = a.encodeExit(pv.Exit)
		} else {
			data, fx = a.encodePropertyValues(pv)
		}
		entries = append(entries, propEntry{number: num, data: data, fixups: fx})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].number > entries[j].number })

	var all []fixup
	for _, e := range entries {
		header := propertyHeader(a.version, e.number, len(e.data))
		dataBase := len(out) + len(header)
		out = append(out, header...)
		for _, f := range e.fixups {
			f.offset += dataBase
			all = append(all, f)
		}
		out = append(out, e.data...)
	}
	out = append(out, 0x00)

	return out, all, nil
}

// propertyHeader encodes a property's size-and-number prefix: V3 packs
// both into a single byte; V4+ follows the real Z-machine convention
// of a 1-byte header for sizes 1-2 and a 2-byte header (explicit size
// field) otherwise.
func propertyHeader(version, propNum, size int) []byte {
	if version <= 3 {
		b := byte(((size-1)&0x07)<<5) | byte(propNum&0x1F)
		return []byte{b}
	}
	if size <= 2 {
		b := byte(propNum & 0x3F)
		if size == 2 {
			b |= 0x40
		}
		return []byte{b}
	}
	sz := size
	if sz > 64 {
		sz = 64
	}
	b1 := byte(0x80 | (propNum & 0x3F))
	b2 := byte(sz & 0x3F)
	b2 |= 0x80
	return []byte{b1, b2}
}

// encodeExit lowers a direction property's DirExit to its on-disk
// representation: ExitTo is a single word naming the destination
// room; ExitPer/ExitUexit are a single word holding a routine-address
// placeholder; ExitSorry is a single word holding a string placeholder.
// This 1-word-per-exit scheme is a deliberate simplification (spec §8's
// testable properties are internal-consistency checks, not exact
// Infocom/ZILF wire-format matches) recorded in DESIGN.md; it drops the
// optional IF-flag guard on conditional TO exits.
func (a *Assembler) encodeExit(exit *ast.DirExit) ([]byte, []fixup) {
	switch exit.Kind {
	case ast.ExitTo:
		target := a.objectNumber(exit.Target)
		return []byte{byte(target >> 8), byte(target)}, nil
	case ast.ExitPer, ast.ExitUexit:
		return []byte{0, 0}, []fixup{{offset: 0, kind: ir.PlaceholderPropertyRoutine, target: exit.Target}}
	case ast.ExitSorry:
		return []byte{0, 0}, []fixup{{offset: 0, kind: ir.PlaceholderStringOperand, text: exit.Sorry}}
	default:
		return []byte{0, 0}, nil
	}
}

// encodePropertyValues encodes an ordinary (non-direction) property's
// value list. A matching PROPDEF pattern sizes each element per its
// kind (PatByte 1 byte, everything else 1 word); with no PROPDEF at
// all, every value defaults to a 2-byte word.
func (a *Assembler) encodePropertyValues(pv *ast.PropValue) ([]byte, []fixup) {
	propdef := a.syms.PropDefs[pv.Property]
	var pattern *ast.PropPattern
	if propdef != nil {
		if p, ok := symtab.MatchPattern(a.syms, propdef, pv.Values); ok {
			pattern = p
		}
	}

	var out []byte
	var fx []fixup
	for i, v := range pv.Values {
		width := 2
		if pattern != nil && i < len(pattern.Elems) && pattern.Elems[i].Kind == ast.PatByte {
			width = 1
		}
		b, f := a.valueBytes(v, width)
		for j := range f {
			f[j].offset += len(out)
		}
		out = append(out, b...)
		fx = append(fx, f...)
	}
	return out, fx
}

// valueBytes encodes a single ZIL value into width bytes, reporting a
// fixup if the value is an atom naming a routine (the value becomes a
// routine-address placeholder and width is ignored in that case: a
// routine reference always needs a full word).
func (a *Assembler) valueBytes(v *ast.Value, width int) ([]byte, []fixup) {
	if v == nil {
		return make([]byte, width), nil
	}
	switch v.Kind {
	case ast.ValInt:
		if width == 1 {
			return []byte{byte(v.Int)}, nil
		}
		return []byte{byte(v.Int >> 8), byte(v.Int)}, nil
	case ast.ValAtom:
		if obj, ok := a.syms.LookupObject(v.Atom); ok {
			if width == 1 {
				return []byte{byte(obj.Number)}, nil
			}
			return []byte{byte(obj.Number >> 8), byte(obj.Number)}, nil
		}
		if a.syms.HasRoutine(v.Atom) {
			return []byte{0, 0}, []fixup{{offset: 0, kind: ir.PlaceholderPropertyRoutine, target: v.Atom}}
		}
		if slot, ok := a.syms.Globals[v.Atom]; ok {
			return []byte{byte(slot >> 8), byte(slot)}, nil
		}
		return make([]byte, width), nil
	default:
		return make([]byte, width), nil
	}
}
