package zilctest

import (
	"fmt"
)

// divisorFor mirrors pkg/assemble's packed-address divisor so tests
// can check header 0x1A-0x1B without importing assemble's unexported
// table directly.
func divisorFor(version int) int {
	switch {
	case version <= 3:
		return 2
	case version == 8:
		return 8
	default:
		return 4
	}
}

func be16(img []byte, off int) int {
	return int(img[off])<<8 | int(img[off+1])
}

// CheckFileLength verifies header 0x1A-0x1B * divisor equals the
// image's actual length (spec §8 invariant 1).
func CheckFileLength(img []byte) error {
	version := int(img[0])
	want := len(img)
	got := be16(img, 0x1A) * divisorFor(version)
	if got != want {
		return fmt.Errorf("file length mismatch: header says %d, actual %d", got, want)
	}
	return nil
}

// CheckChecksum verifies header 0x1C-0x1D equals the sum of all bytes
// from offset 64 onward, mod 0x10000 (spec §8 invariant 2).
func CheckChecksum(img []byte) error {
	sum := 0
	for i := 64; i < len(img); i++ {
		sum += int(img[i])
	}
	sum %= 0x10000
	got := be16(img, 0x1C)
	if got != sum {
		return fmt.Errorf("checksum mismatch: header says %d, computed %d", got, sum)
	}
	return nil
}

// CheckMemoryRegionOrder verifies static_mem_base (0x0E) < high_mem_base
// (0x04) (spec §8 invariant 3).
func CheckMemoryRegionOrder(img []byte) error {
	staticBase := be16(img, 0x0E)
	highBase := be16(img, 0x04)
	if !(staticBase < highBase) {
		return fmt.Errorf("static_mem_base %d is not below high_mem_base %d", staticBase, highBase)
	}
	return nil
}

// CheckPropertyListTermination walks the object table's property lists
// and verifies each is strictly descending by property number and ends
// with a 0x00 terminator (spec §8 invariant 6).
func CheckPropertyListTermination(img []byte, version int, objectTableBase, numObjects int) error {
	entrySize := 9
	if version >= 4 {
		entrySize = 14
	}
	defaultsSize := 31 * 2
	if version >= 4 {
		defaultsSize = 63 * 2
	}
	entriesBase := objectTableBase + defaultsSize
	for i := 0; i < numObjects; i++ {
		entryOff := entriesBase + i*entrySize
		propTableOff := be16(img, entryOff+entrySize-2)

		off := propTableOff
		nameLen := int(img[off])
		off += 1 + nameLen*2

		lastProp := 64
		for {
			header := img[off]
			if header == 0 {
				break
			}
			var propNum, size int
			if version <= 3 {
				propNum = int(header & 0x1F)
				size = int((header>>5)&0x07) + 1
				off++
			} else if header&0x80 == 0 {
				propNum = int(header & 0x3F)
				if header&0x40 != 0 {
					size = 2
				} else {
					size = 1
				}
				off++
			} else {
				propNum = int(header & 0x3F)
				size = int(img[off+1] & 0x3F)
				if size == 0 {
					size = 64
				}
				off += 2
			}
			if propNum >= lastProp {
				return fmt.Errorf("object %d: property %d out of descending order (last was %d)", i, propNum, lastProp)
			}
			lastProp = propNum
			off += size
		}
	}
	return nil
}

// CheckDictionaryOrder verifies dictionary entries are strictly
// ascending by unsigned comparison of their encoded prefix bytes
// (spec §8 invariant 5).
func CheckDictionaryOrder(img []byte, dictBase, entryLen, encodeWidth, numEntries int) error {
	for i := 1; i < numEntries; i++ {
		prevOff := dictBase + (i-1)*entryLen
		curOff := dictBase + i*entryLen
		for b := 0; b < encodeWidth; b++ {
			p := img[prevOff+b]
			c := img[curOff+b]
			if p != c {
				if p > c {
					return fmt.Errorf("dictionary entry %d out of order relative to %d", i, i-1)
				}
				break
			}
		}
	}
	return nil
}

// CheckNoUnresolvedPlaceholders verifies none of the caller-supplied
// word offsets still carries the given sentinel value, the convention
// a test uses to mark "this word came from an unresolved fixup before
// the assembler ran" (spec §8 invariant 4: "no byte in the output
// equals an unresolved placeholder value").
func CheckNoUnresolvedPlaceholders(img []byte, offsets []int, sentinel uint16) error {
	for _, off := range offsets {
		if be16(img, off) == int(sentinel) {
			return fmt.Errorf("byte offset %d still carries unresolved placeholder sentinel 0x%04X", off, sentinel)
		}
	}
	return nil
}
