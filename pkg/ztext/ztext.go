// Package ztext implements the spec §5 text encoder: ZSCII-to-Z-character
// translation across the three alphabets (A0 lowercase, A1 uppercase, A2
// punctuation/digits), 5-bit Z-char packing (3 per 16-bit word, end bit
// on the last word), the 10-bit ZSCII escape for characters outside all
// three alphabets, abbreviation substitution, and the PRESERVE-SPACES?/
// CRLF-CHARACTER compilation flags.
//
// Grounded on the teacher's pkg/z80asm encoder's bit-packing style (fixed
// tables, a single pass that emits fixed-width units and patches the
// terminal one) — reworked here from Z80 byte opcodes into Z-machine
// 5-bit Z-chars packed three to a word.
package ztext

import "fmt"

// Z-char codes 0-5 carry fixed meaning in every alphabet (spec §5).
const (
	zcSpace      = 0
	zcAbbrev1    = 1
	zcAbbrev2    = 2
	zcAbbrev3    = 3
	zcShiftA1    = 4
	zcShiftA2    = 5
	zcEscapeOr10 = 6 // in A2: next two z-chars form a 10-bit ZSCII code
	zcPad        = 5
)

// alphabetA0/A1/A2 map z-char codes 6..31 to their ZSCII byte, per the
// standard Z-machine alphabet table (spec §5).
var alphabetA0 = [26]byte{'a', 'b', 'c', 'd', 'e', 'f', 'g', 'h', 'i', 'j', 'k', 'l', 'm', 'n', 'o', 'p', 'q', 'r', 's', 't', 'u', 'v', 'w', 'x', 'y', 'z'}
var alphabetA1 = [26]byte{'A', 'B', 'C', 'D', 'E', 'F', 'G', 'H', 'I', 'J', 'K', 'L', 'M', 'N', 'O', 'P', 'Q', 'R', 'S', 'T', 'U', 'V', 'W', 'X', 'Y', 'Z'}

// alphabetA2 starts at z-char 7 (z-char 6 is the 10-bit ZSCII escape).
var alphabetA2 = [25]byte{'\n', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9', '.', ',', '!', '?', '_', '#', '\'', '"', '/', '\\', '-', ':', '(', ')'}

// DefaultCRLFCharacter is ZSCII 13 (carriage return), the Z-machine's
// canonical newline code (spec §5).
const DefaultCRLFCharacter = 13

// Selector chooses an abbreviation to substitute at a given position in
// a Z-character stream. NoAbbreviations performs no substitution at
// all; a real implementation would be handed a frequency-ranked table
// computed from the whole source text.
type Selector interface {
	// Select looks at the ZSCII rune stream starting at runes[i] and,
	// if an abbreviation applies there, returns its trigger group
	// (1, 2 or 3), its table index (0..31), and how many runes of
	// input it consumes. ok is false when no abbreviation matches.
	Select(runes []rune, i int) (trigger, index, consumed int, ok bool)
}

// NoAbbreviations is the zero-cost Selector: every EncodeString call
// with it set produces output identical to an encoder with no
// abbreviation table at all.
type NoAbbreviations struct{}

func (NoAbbreviations) Select(runes []rune, i int) (int, int, int, bool) { return 0, 0, 0, false }

// Flags controls the encoder's handling of spacing and line breaks
// (spec §5 "PRESERVE-SPACES?/CRLF-CHARACTER").
type Flags struct {
	// PreserveSpaces disables the default collapse of whitespace
	// following '.', '!' and '?' into a single space.
	PreserveSpaces bool
	// CRLFCharacter is the ZSCII code '|' (ZIL literal newline) encodes
	// to; 0 selects DefaultCRLFCharacter.
	CRLFCharacter byte
}

// Encoder packs ZIL string literals into Z-character words for a given
// target version.
type Encoder struct {
	Version int
	Abbrevs Selector
	Flags   Flags
}

func New(version int, abbrevs Selector, flags Flags) *Encoder {
	if abbrevs == nil {
		abbrevs = NoAbbreviations{}
	}
	if flags.CRLFCharacter == 0 {
		flags.CRLFCharacter = DefaultCRLFCharacter
	}
	return &Encoder{Version: version, Abbrevs: abbrevs, Flags: flags}
}

// EncodeString converts s into a packed Z-character word sequence ready
// to place in the story file (the classic ASCII-text representation:
// a routine's body text, an object short name, a dictionary entry).
func (e *Encoder) EncodeString(s string) ([]uint16, error) {
	zchars, err := e.toZchars([]rune(s))
	if err != nil {
		return nil, err
	}
	return pack(zchars), nil
}

// toZchars lowers a rune stream to a flat Z-char code stream: alphabet
// shifts, abbreviation references, and 10-bit ZSCII escapes for
// anything outside all three alphabets.
func (e *Encoder) toZchars(runes []rune) ([]int, error) {
	var out []int
	i := 0
	collapsing := false // true right after '.', '!', '?' when not PreserveSpaces
	spaceKept := false  // the one space kept since collapsing began was emitted
	for i < len(runes) {
		if trigger, index, consumed, ok := e.Abbrevs.Select(runes, i); ok {
			out = append(out, zcAbbrevCode(trigger), index)
			i += consumed
			collapsing = false
			continue
		}

		r := runes[i]
		if r == '|' {
			out = append(out, zcShiftA2, zcEscapeOr10)
			out = append(out, e.encodeZSCII(e.Flags.CRLFCharacter)...)
			i++
			collapsing = false
			continue
		}
		if r == ' ' || r == '\t' {
			if collapsing && !e.Flags.PreserveSpaces {
				if spaceKept {
					i++
					continue
				}
				spaceKept = true
			}
			out = append(out, zcSpace)
			i++
			continue
		}
		collapsing = false

		if idx, found := indexOf(alphabetA0[:], byte(r)); found {
			out = append(out, zcOf(idx))
			i++
		} else if idx, found := indexOf(alphabetA1[:], byte(r)); found {
			out = append(out, zcShiftA1, zcOf(idx))
			i++
		} else if idx, found := indexOfA2(byte(r)); found {
			out = append(out, zcShiftA2, idx)
			i++
			if r == '.' || r == '!' || r == '?' {
				collapsing = true
				spaceKept = false
			}
		} else {
			zscii, err := toZSCII(r)
			if err != nil {
				return nil, err
			}
			out = append(out, zcShiftA2, zcEscapeOr10)
			out = append(out, e.encodeZSCII(zscii)...)
			i++
		}
	}
	return out, nil
}

func zcAbbrevCode(trigger int) int {
	switch trigger {
	case 1:
		return zcAbbrev1
	case 2:
		return zcAbbrev2
	default:
		return zcAbbrev3
	}
}

func zcOf(alphabetIndex int) int { return alphabetIndex + 6 }

func indexOf(table []byte, b byte) (int, bool) {
	for i, c := range table {
		if c == b {
			return i, true
		}
	}
	return 0, false
}

// indexOfA2 returns the z-char code (7..31) for b in the A2 table, or
// false if b isn't one of A2's fixed punctuation/digit symbols.
func indexOfA2(b byte) (int, bool) {
	for i, c := range alphabetA2 {
		if c == b {
			return i + 7, true
		}
	}
	return 0, false
}

// toZSCII maps a rune outside the three alphabets to its ZSCII code
// (printable ASCII passes through unchanged; anything else is rejected
// rather than silently mangled).
func toZSCII(r rune) (byte, error) {
	if r >= 32 && r <= 126 {
		return byte(r), nil
	}
	return 0, fmt.Errorf("character %q has no ZSCII representation", r)
}

// encodeZSCII emits the 10-bit-escape z-char pair (two 5-bit halves)
// spec §5 defines for a ZSCII code that isn't directly representable
// in any alphabet, or for an explicit CRLF-CHARACTER substitution.
func (e *Encoder) encodeZSCII(zscii byte) []int {
	return []int{int(zscii>>5) & 0x1F, int(zscii) & 0x1F}
}

// pack groups a Z-char stream into 16-bit words, 3 Z-chars per word,
// padding the final word with zcPad and setting the end-of-string bit
// (bit 15) on the last word.
func pack(zchars []int) []uint16 {
	for len(zchars)%3 != 0 {
		zchars = append(zchars, zcPad)
	}
	words := make([]uint16, 0, len(zchars)/3)
	for i := 0; i < len(zchars); i += 3 {
		w := uint16(zchars[i]&0x1F)<<10 | uint16(zchars[i+1]&0x1F)<<5 | uint16(zchars[i+2]&0x1F)
		words = append(words, w)
	}
	if len(words) > 0 {
		words[len(words)-1] |= 0x8000
	}
	return words
}

// EncodedLength returns the byte length EncodeString(s) would produce
// (two bytes per packed word), without actually building the word
// slice.
func (e *Encoder) EncodedLength(s string) (int, error) {
	zchars, err := e.toZchars([]rune(s))
	if err != nil {
		return 0, err
	}
	n := len(zchars)
	for n%3 != 0 {
		n++
	}
	return (n / 3) * 2, nil
}
