package assemble

import (
	"fmt"

	"github.com/zil-lang/zilc/pkg/ast"
	"github.com/zil-lang/zilc/pkg/codegen"
	"github.com/zil-lang/zilc/pkg/ir"
)

// placeRoutines lays out every routine's header (local count, and on
// V1-4 each local's initial value) and instruction bytes in high
// memory, padding each to the version's routine-alignment boundary
// (spec §4.9 "Routines then … string table"). It returns the extended
// image, the routine-reference fixups collected from instruction
// operands, and each routine's final packed address.
func (a *Assembler) placeRoutines(routines []*ir.Routine, img []byte, highBase int) ([]byte, []fixup, map[ast.Atom]uint16, error) {
	packed := map[ast.Atom]uint16{}
	var fixups []fixup

	for _, r := range routines {
		img = padTo(img, routineAlignment(a.version))
		absoluteBase := len(img)

		header := routineHeader(a.version, r)
		img = append(img, header...)

		body, slots, err := a.encodeRoutineBody(r, absoluteBase+len(header))
		if err != nil {
			return nil, nil, nil, fmt.Errorf("routine %s: %w", a.atoms.Name(r.Name), err)
		}
		bodyBase := len(img)
		img = append(img, body...)

		for _, s := range slots {
			fixups = append(fixups, fixup{
				offset: bodyBase + s.Offset,
				kind:   s.Operand.PH,
				target: s.Operand.PHTarget,
				text:   s.Operand.PHString,
			})
		}

		r.Offset = absoluteBase - highBase
		r.PackedAddress = packedAddress(absoluteBase, a.version)
		packed[r.Name] = r.PackedAddress
	}
	return img, fixups, packed, nil
}

// routineHeader emits a routine's local-count byte, plus on V1-4 the
// initial value of each local as a big-endian word (V5+ always
// zero-initializes locals at call time, so no values are stored).
func routineHeader(version int, r *ir.Routine) []byte {
	n := len(r.Locals)
	out := []byte{byte(n)}
	if version <= 4 {
		for i := 0; i < n; i++ {
			out = append(out, byte(r.Locals[i]>>8), byte(r.Locals[i]))
		}
	}
	return out
}

// encodeRoutineBody runs a sizing pass (labels unresolved, so every
// branch/JUMP is emitted at its fixed worst-case size) to find every
// label's final byte offset, then a second pass that encodes for real
// against those now-known offsets. Instruction sizes never depend on
// whether a branch target has been resolved (codegen always emits the
// 2-byte long branch form and the 3-byte JUMP form), so the two passes
// agree on every instruction's length.
func (a *Assembler) encodeRoutineBody(r *ir.Routine, bodyStart int) ([]byte, []codegen.PlaceholderSlot, error) {
	never := func(string) (int, bool) { return 0, false }

	offsets := make([]int, len(r.Instructions))
	labels := map[string]int{}
	running := 0
	for i, instr := range r.Instructions {
		offsets[i] = running
		if instr.Label != "" {
			labels[instr.Label] = bodyStart + running
		}
		bytes, _, err := a.enc.Encode(instr, 0, never)
		if err != nil {
			return nil, nil, err
		}
		running += len(bytes)
	}

	resolve := func(label string) (int, bool) {
		off, ok := labels[label]
		return off, ok
	}

	var out []byte
	var slots []codegen.PlaceholderSlot
	for i, instr := range r.Instructions {
		pc := bodyStart + offsets[i]
		bytes, instrSlots, err := a.enc.Encode(instr, pc, resolve)
		if err != nil {
			return nil, nil, err
		}
		base := len(out)
		for _, s := range instrSlots {
			slots = append(slots, codegen.PlaceholderSlot{Offset: base + s.Offset, Operand: s.Operand})
		}
		out = append(out, bytes...)
	}
	return out, slots, nil
}

// placeStrings deduplicates every TELL/property string-operand
// placeholder's literal text, encodes each exactly once, and appends
// them to the high-memory region following the routines (spec §4.9
// "deduplicated string table"). Each string is padded to the version's
// alignment boundary so its packed address divides evenly, matching
// the same constraint routines are placed under.
func (a *Assembler) placeStrings(img []byte, fixups []fixup) ([]byte, map[string]uint16, error) {
	addrs := map[string]uint16{}
	var order []string
	seen := map[string]bool{}
	for _, f := range fixups {
		if f.kind != ir.PlaceholderTellString && f.kind != ir.PlaceholderStringOperand {
			continue
		}
		if seen[f.text] {
			continue
		}
		seen[f.text] = true
		order = append(order, f.text)
	}

	for _, text := range order {
		img = padTo(img, routineAlignment(a.version))
		base := len(img)
		words, err := a.text.EncodeString(text)
		if err != nil {
			return nil, nil, fmt.Errorf("encoding string %q: %w", text, err)
		}
		for _, w := range words {
			img = append(img, byte(w>>8), byte(w))
		}
		addrs[text] = packedAddress(base, a.version)
	}
	return img, addrs, nil
}
