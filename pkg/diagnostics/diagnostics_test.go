package diagnostics

import (
	"errors"
	"strings"
	"testing"

	"github.com/zil-lang/zilc/pkg/ast"
)

func TestKindString(t *testing.T) {
	if got := Semantic.String(); got != "SemanticError" {
		t.Errorf("Semantic.String() = %q, want %q", got, "SemanticError")
	}
}

func TestNewError(t *testing.T) {
	err := New(Syntax, ast.Position{}, "unexpected %s", "token")
	if err.Kind != Syntax {
		t.Errorf("Kind = %v, want Syntax", err.Kind)
	}
	if !strings.Contains(err.Error(), "unexpected token") {
		t.Errorf("Error() = %q, want it to contain %q", err.Error(), "unexpected token")
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(Codegen, ast.Position{}, cause, "lowering failed")
	if !errors.Is(err, cause) {
		t.Error("Wrap'd error does not unwrap to the original cause")
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Errorf("Error() = %q, want it to mention the wrapped cause", err.Error())
	}
}

// Spec §7: warnings accumulate up to a configurable limit, after which
// compilation stops.
func TestSinkStopsAfterLimit(t *testing.T) {
	s := NewSink(2)
	for i := 0; i < 2; i++ {
		if err := s.Warn(ast.Position{}, "warning %d", i); err != nil {
			t.Fatalf("unexpected error before the limit: %v", err)
		}
	}
	if err := s.Warn(ast.Position{}, "one too many"); err == nil {
		t.Error("expected an error once the warning limit was exceeded")
	}
	if s.Count() != 3 {
		t.Errorf("Count() = %d, want 3 (the offending warning is still recorded)", s.Count())
	}
}

func TestNewSinkDefaultsLimit(t *testing.T) {
	s := NewSink(0)
	if s.Limit != 100 {
		t.Errorf("NewSink(0).Limit = %d, want default 100", s.Limit)
	}
}
