package ztext

import "testing"

func TestEncodeStringEndBitOnLastWord(t *testing.T) {
	enc := New(3, NoAbbreviations{}, Flags{})
	words, err := enc.EncodeString("hi")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(words) == 0 {
		t.Fatal("expected at least one word")
	}
	last := words[len(words)-1]
	if last&0x8000 == 0 {
		t.Errorf("last word 0x%04X does not have the end bit set", last)
	}
	for _, w := range words[:len(words)-1] {
		if w&0x8000 != 0 {
			t.Errorf("non-last word 0x%04X has the end bit set", w)
		}
	}
}

func TestEncodedLengthMatchesEncodeString(t *testing.T) {
	enc := New(3, NoAbbreviations{}, Flags{})
	for _, s := range []string{"", "a", "hello world", "UPPER CASE 123"} {
		words, err := enc.EncodeString(s)
		if err != nil {
			t.Fatalf("EncodeString(%q): %v", s, err)
		}
		n, err := enc.EncodedLength(s)
		if err != nil {
			t.Fatalf("EncodedLength(%q): %v", s, err)
		}
		if n != 2*len(words) {
			t.Errorf("EncodedLength(%q) = %d, EncodeString produced %d words (%d bytes)", s, n, len(words), 2*len(words))
		}
	}
}

func TestNoAbbreviationsNeverMatches(t *testing.T) {
	var sel Selector = NoAbbreviations{}
	_, _, _, ok := sel.Select([]rune("anything"), 0)
	if ok {
		t.Error("NoAbbreviations.Select should never report a match")
	}
}
