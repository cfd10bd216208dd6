package preprocess

import (
	"strings"
	"testing"
)

// Spec §4.1: COMPILATION-FLAG bindings, then IFFLAG picks the matching
// clause and strips everything else.
func TestIfflagSelectsMatchingClause(t *testing.T) {
	p := NewProcessor(3)
	out, err := p.Run(`<COMPILATION-FLAG DEBUG T> %<IFFLAG (DEBUG <TELL "on">) (ELSE <TELL "off">)>`)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !contains(out, `<TELL "on">`) {
		t.Errorf("output %q should contain the DEBUG clause", out)
	}
	if contains(out, `<TELL "off">`) {
		t.Errorf("output %q should not contain the ELSE clause", out)
	}
}

func TestIfflagFallsBackToElse(t *testing.T) {
	p := NewProcessor(3)
	out, err := p.Run(`%<IFFLAG (DEBUG <TELL "on">) (ELSE <TELL "off">)>`)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !contains(out, `<TELL "off">`) {
		t.Errorf("output %q should fall back to ELSE when DEBUG is unset", out)
	}
}

// VERSION? dispatches on the target version's ZILF tag (ZIP/EZIP/XZIP/…).
func TestVersionQSelectsTag(t *testing.T) {
	p := NewProcessor(5)
	out, err := p.Run(`%<VERSION? (ZIP <TELL "v3">) (XZIP <TELL "v5">) (ELSE <TELL "other">)>`)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !contains(out, `<TELL "v5">`) {
		t.Errorf("output %q should select the XZIP clause for version 5", out)
	}
}

// GASSIGNED? reduces to a literal "1" or "0" in-place.
func TestGassignedReducesToLiteral(t *testing.T) {
	p := NewProcessor(3)
	out, err := p.Run(`<COMPILATION-FLAG DEBUG T> <SET X %<GASSIGNED? DEBUG>>`)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !contains(out, "<SET X 1>") {
		t.Errorf("output %q should reduce GASSIGNED? DEBUG to 1", out)
	}
}

// Directives may nest arbitrarily deep inside ordinary forms.
func TestNestedDirectiveInsideRoutineBody(t *testing.T) {
	p := NewProcessor(3)
	out, err := p.Run(`<COMPILATION-FLAG DEBUG <>> <ROUTINE GO () %<IFFLAG (DEBUG <TELL "d">) (ELSE <QUIT>)>>`)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !contains(out, "<QUIT>") {
		t.Errorf("output %q should contain the nested ELSE clause's QUIT", out)
	}
}

// %<COND> is a preprocessor directive only with the leading %; bare
// <COND ...> is ordinary ZIL control flow and passes through untouched.
func TestBareCondPassesThrough(t *testing.T) {
	p := NewProcessor(3)
	out, err := p.Run(`<ROUTINE GO () <COND (<EQUAL? 1 1> <TELL "yes">)>>`)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !contains(out, "<COND") {
		t.Errorf("output %q should still contain the un-expanded COND form", out)
	}
}

func TestPercentCondExpands(t *testing.T) {
	p := NewProcessor(3)
	out, err := p.Run(`<COMPILATION-FLAG DEBUG T> %<COND (DEBUG <TELL "d">) (T <TELL "n">)>`)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !contains(out, `<TELL "d">`) {
		t.Errorf("output %q should select the DEBUG clause", out)
	}
}

func contains(s, substr string) bool {
	return strings.Contains(s, substr)
}
