package assemble

import (
	"github.com/zil-lang/zilc/pkg/ast"
	"github.com/zil-lang/zilc/pkg/ir"
)

// fixedSerial is the 6-ASCII-digit release serial spec §6 reserves at
// header offset 0x12. A real date would break the determinism spec §5
// requires ("identical input produces byte-identical output" — not
// "byte-identical on a given day"), so the serial is a fixed constant
// rather than derived from the build clock.
const fixedSerial = "000000"

// writeHeader fills in the 64-byte header's fields once every region's
// address is final (spec §6 "Z-machine header"), then computes the
// file-length and checksum fields last since they depend on the whole
// image being in its final, padded form.
func (a *Assembler) writeHeader(img []byte, file *ast.File, routines []*ir.Routine, routineAddrs map[ast.Atom]uint16, globalBase, abbrevBase, objectTableBase, staticMemBase, dictionaryBase, highMemBase int) error {
	img[0] = byte(a.version)
	putWord(img, 0x04, uint16(highMemBase))
	putWord(img, 0x06, a.initialPC(routines, routineAddrs, highMemBase))
	putWord(img, 0x08, uint16(dictionaryBase))
	putWord(img, 0x0A, uint16(objectTableBase))
	putWord(img, 0x0C, uint16(globalBase))
	putWord(img, 0x0E, uint16(staticMemBase))
	copy(img[0x12:0x18], fixedSerial)
	putWord(img, 0x18, uint16(abbrevBase))

	div := divisor(a.version)
	putWord(img, 0x1A, uint16(len(img)/div))

	checksum := 0
	for i := 64; i < len(img); i++ {
		checksum += int(img[i])
	}
	putWord(img, 0x1C, uint16(checksum%0x10000))
	return nil
}

// initialPC resolves header offset 0x06: on V1-5 the raw byte address
// of GO's first instruction (past its local-count header); on V6+ the
// packed address of GO treated like any other routine call target
// (spec §6 header table).
func (a *Assembler) initialPC(routines []*ir.Routine, routineAddrs map[ast.Atom]uint16, highMemBase int) uint16 {
	goAtom, ok := a.atoms.Lookup("GO")
	if !ok {
		return 0
	}
	if a.version >= 6 {
		return routineAddrs[goAtom]
	}
	for _, r := range routines {
		if r.Name != goAtom {
			continue
		}
		headerLen := 1
		if a.version <= 4 {
			headerLen += 2 * len(r.Locals)
		}
		return uint16(highMemBase + r.Offset + headerLen)
	}
	return 0
}
