// Package dictionary builds the Z-machine dictionary table: the sorted
// vocabulary used by the classic parser, plus the NEW-PARSER? VWORD
// variant (spec §4.7, §6). Both forms are built from the same
// SYNONYM/ADJECTIVE/PREPOSITION/BUZZ word lists and SYNTAX verb
// declarations collected by the front end.
package dictionary

import (
	"fmt"

	"golang.org/x/exp/slices"

	"github.com/zil-lang/zilc/pkg/ast"
	"github.com/zil-lang/zilc/pkg/ztext"
)

// Flag bits recorded in a classic dictionary entry's flag byte (spec §4.7).
const (
	FlagVerb      byte = 0x01
	FlagBuzz      byte = 0x04
	FlagPrep      byte = 0x08
	FlagDirection byte = 0x10
	FlagAdjective byte = 0x20
)

// classicVerbCap is the classic parser's hard limit on distinct verbs
// and parser actions (spec §4.7).
const classicVerbCap = 255

// Word is one vocabulary entry prior to sorting: a dictionary word and
// the parser roles it plays.
type Word struct {
	Text      string
	Atom      ast.Atom
	Flags     byte
	VerbID    int // classic parser action/verb number, 0 if not a verb
	PrepValue int // classic parser preposition value, 0 if not a preposition
	AdjValue  int // adjective value, 0 if not an adjective
}

// Table is a built dictionary: the sorted entry list plus the encoded
// bytes ready for placement by the assembler.
type Table struct {
	EncodeWidth int // 4 (V3) or 6 (V4+) bytes of encoded text per entry
	EntryLen    int // EncodeWidth + 3 classic data bytes
	Separators  []byte
	Entries     []Word
	Bytes       []byte
}

// Builder assembles a Table from collected vocabulary.
type Builder struct {
	Version    int
	Encoder    *ztext.Encoder
	Separators []byte
	NewParser  bool
}

func NewBuilder(version int, enc *ztext.Encoder, newParser bool) *Builder {
	return &Builder{
		Version:    version,
		Encoder:    enc,
		Separators: []byte{'.', ',', '"'},
		NewParser:  newParser,
	}
}

func (b *Builder) encodeWidth() int {
	if b.Version <= 3 {
		return 4
	}
	return 6
}

// Build sorts, dedupes and encodes words into a dictionary Table. If
// NewParser is false and more distinct verbs are registered than the
// classic parser's cap allows, Build returns an error (spec §4.7).
func (b *Builder) Build(words []Word) (*Table, error) {
	if !b.NewParser {
		verbCount := 0
		for _, w := range words {
			if w.Flags&FlagVerb != 0 {
				verbCount++
			}
		}
		if verbCount > classicVerbCap {
			return nil, fmt.Errorf("classic parser supports at most %d verbs, got %d (use NEW-PARSER?)", classicVerbCap, verbCount)
		}
	}

	deduped := mergeDuplicates(words)

	encWidth := b.encodeWidth()
	entryLen := encWidth + 3

	type encoded struct {
		word Word
		key  []byte // encoded text, used both as sort key and as stored bytes
	}
	enc := make([]encoded, 0, len(deduped))
	for _, w := range deduped {
		key, err := b.encodeKey(w.Text, encWidth)
		if err != nil {
			return nil, err
		}
		enc = append(enc, encoded{word: w, key: key})
	}

	slices.SortFunc(enc, func(a, c encoded) int {
		return compareBytes(a.key, c.key)
	})

	out := make([]byte, 0, 4+len(b.Separators)+1+len(enc)*entryLen)
	out = append(out, byte(len(b.Separators)))
	out = append(out, b.Separators...)
	out = append(out, byte(entryLen))
	out = append(out, encodeEntryCount(len(enc))...)

	table := &Table{EncodeWidth: encWidth, EntryLen: entryLen, Separators: b.Separators}
	for _, e := range enc {
		out = append(out, e.key...)
		out = append(out, e.word.Flags, byte(e.word.VerbID|e.word.PrepValue|e.word.AdjValue), 0)
		table.Entries = append(table.Entries, e.word)
	}
	table.Bytes = out
	return table, nil
}

// encodeEntryCount emits the dictionary's entry count as a big-endian
// signed word (spec §6). Build lays out classic fixed-size entries in
// both parser modes, so the count is always the positive number of
// entries; no negative VWORD-layout marker is written.
func encodeEntryCount(n int) []byte {
	v := int16(n)
	return []byte{byte(v >> 8), byte(v)}
}

func (b *Builder) encodeKey(text string, width int) ([]byte, error) {
	words, err := b.Encoder.EncodeString(truncate(text, width))
	if err != nil {
		return nil, err
	}
	key := make([]byte, 0, width)
	for _, w := range words {
		key = append(key, byte(w>>8), byte(w))
	}
	for len(key) < width {
		key = append(key, 0)
	}
	return key[:width], nil
}

// truncate trims a dictionary word to the number of source characters
// that fit in width encoded bytes (roughly 3*width/2 Z-chars worth of
// plain text, the classic 6/9-char dictionary-word limit).
func truncate(s string, width int) string {
	maxChars := (width / 2) * 3
	r := []rune(s)
	if len(r) <= maxChars {
		return s
	}
	return string(r[:maxChars])
}

func compareBytes(a, b []byte) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return int(a[i]) - int(b[i])
		}
	}
	return len(a) - len(b)
}

// mergeDuplicates merges Words sharing the same Text, OR-ing flags and
// keeping the first nonzero VerbID/PrepValue/AdjValue — a single word
// can be both a noun synonym and an adjective.
func mergeDuplicates(words []Word) []Word {
	order := make([]string, 0, len(words))
	byText := map[string]*Word{}
	for _, w := range words {
		key := w.Text
		if existing, ok := byText[key]; ok {
			existing.Flags |= w.Flags
			if existing.VerbID == 0 {
				existing.VerbID = w.VerbID
			}
			if existing.PrepValue == 0 {
				existing.PrepValue = w.PrepValue
			}
			if existing.AdjValue == 0 {
				existing.AdjValue = w.AdjValue
			}
			continue
		}
		cp := w
		byText[key] = &cp
		order = append(order, key)
	}
	out := make([]Word, 0, len(order))
	for _, key := range order {
		out = append(out, *byText[key])
	}
	return out
}

// VWord is one NEW-PARSER? dictionary record: 7 words wide, carrying a
// richer part-of-speech encoding than the classic 1-flag-byte scheme
// (spec §4.7 "NEW-PARSER? VWORD mode").
type VWord struct {
	Text       string
	Atom       ast.Atom
	PartOfSpeech uint16
	Value      uint16
	Extra      [4]uint16
}

// BuildVWordTable builds the NEW-PARSER? VWORD + VERB-DATA tables: one
// 14-byte (7-word) record per vocabulary word, addressed directly by
// VERB-DATA entries rather than by dictionary binary search.
func (b *Builder) BuildVWordTable(words []VWord) []byte {
	out := make([]byte, 0, len(words)*14)
	for _, w := range words {
		out = append(out, byte(w.PartOfSpeech>>8), byte(w.PartOfSpeech))
		out = append(out, byte(w.Value>>8), byte(w.Value))
		for _, e := range w.Extra {
			out = append(out, byte(e>>8), byte(e))
		}
	}
	return out
}
