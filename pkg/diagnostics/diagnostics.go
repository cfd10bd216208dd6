// Package diagnostics defines the compiler's typed error kinds (spec §7)
// and the warning sink shared by every front-end and back-end stage.
package diagnostics

import (
	"fmt"

	"github.com/zil-lang/zilc/pkg/ast"
)

// Kind is the typed error classification from spec §7. Every hard error
// the compiler raises carries one of these so callers (and tests) can
// distinguish "this input is lexically broken" from "this input asked
// for an opcode the target version doesn't have."
type Kind int

const (
	Lexical Kind = iota
	Syntax
	Macro
	Semantic
	Encoding
	Codegen
	Layout
)

func (k Kind) String() string {
	switch k {
	case Lexical:
		return "LexicalError"
	case Syntax:
		return "SyntaxError"
	case Macro:
		return "MacroError"
	case Semantic:
		return "SemanticError"
	case Encoding:
		return "EncodingError"
	case Codegen:
		return "CodegenError"
	case Layout:
		return "LayoutError"
	default:
		return "Error"
	}
}

// Error is a hard compilation error with a source location attached.
type Error struct {
	Kind Kind
	Pos  ast.Position
	Msg  string
	Err  error // wrapped cause, if any
}

func New(kind Kind, pos ast.Position, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, pos ast.Position, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Pos: pos, Msg: fmt.Sprintf(format, args...), Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.Pos, e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Pos, e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Warning is a non-fatal diagnostic (unused flag, opcode degradation,
// suspicious punctuation, missing-routine fixup, …).
type Warning struct {
	Pos ast.Position
	Msg string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: warning: %s", w.Pos, w.Msg)
}

// Sink accumulates warnings up to a configurable limit, after which
// compilation stops (spec §7: "Warnings … accumulate up to an error
// limit (default 100), after which compilation stops").
type Sink struct {
	Limit    int
	warnings []Warning
}

func NewSink(limit int) *Sink {
	if limit <= 0 {
		limit = 100
	}
	return &Sink{Limit: limit}
}

// Warn records a warning. It returns an error once the sink's limit is
// exceeded, so callers can propagate it as a hard stop.
func (s *Sink) Warn(pos ast.Position, format string, args ...interface{}) error {
	s.warnings = append(s.warnings, Warning{Pos: pos, Msg: fmt.Sprintf(format, args...)})
	if len(s.warnings) > s.Limit {
		return fmt.Errorf("too many warnings (limit %d exceeded)", s.Limit)
	}
	return nil
}

func (s *Sink) Warnings() []Warning { return s.warnings }
func (s *Sink) Count() int          { return len(s.warnings) }
