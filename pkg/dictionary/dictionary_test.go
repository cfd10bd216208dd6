package dictionary

import (
	"testing"

	"github.com/zil-lang/zilc/pkg/ztext"
)

// Scenario 6 from spec §8: ZEBRA, APPLE, MANGO sort to APPLE, MANGO, ZEBRA.
func TestBuildOrdersEntriesByEncodedText(t *testing.T) {
	enc := ztext.New(3, ztext.NoAbbreviations{}, ztext.Flags{})
	b := NewBuilder(3, enc, false)
	table, err := b.Build([]Word{
		{Text: "zebra"},
		{Text: "apple"},
		{Text: "mango"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(table.Entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(table.Entries))
	}
	want := []string{"apple", "mango", "zebra"}
	for i, w := range want {
		if table.Entries[i].Text != w {
			t.Errorf("entry %d: got %q, want %q", i, table.Entries[i].Text, w)
		}
	}
}

func TestBuildRejectsTooManyVerbsWithoutNewParser(t *testing.T) {
	enc := ztext.New(3, ztext.NoAbbreviations{}, ztext.Flags{})
	b := NewBuilder(3, enc, false)
	var words []Word
	for i := 0; i < classicVerbCap+1; i++ {
		words = append(words, Word{Text: "verb", Flags: FlagVerb, VerbID: i + 1})
	}
	if _, err := b.Build(words); err == nil {
		t.Fatal("expected an error exceeding the classic verb cap")
	}
}

func TestBuildAllowsManyVerbsWithNewParser(t *testing.T) {
	enc := ztext.New(5, ztext.NoAbbreviations{}, ztext.Flags{})
	b := NewBuilder(5, enc, true)
	var words []Word
	for i := 0; i < classicVerbCap+1; i++ {
		words = append(words, Word{Text: "verb", Flags: FlagVerb, VerbID: i + 1})
	}
	if _, err := b.Build(words); err != nil {
		t.Errorf("NEW-PARSER? build should not enforce the classic cap: %v", err)
	}
}

func TestEncodeWidthByVersion(t *testing.T) {
	enc := ztext.New(5, ztext.NoAbbreviations{}, ztext.Flags{})
	b := NewBuilder(5, enc, false)
	table, err := b.Build([]Word{{Text: "lamp"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if table.EncodeWidth != 6 {
		t.Errorf("V5 encode width = %d, want 6", table.EncodeWidth)
	}
}
