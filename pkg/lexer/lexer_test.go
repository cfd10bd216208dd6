package lexer

import "testing"

func tokenTypes(toks []Token) []TokenType {
	var out []TokenType
	for _, t := range toks {
		out = append(out, t.Type)
	}
	return out
}

func TestTokenizeForm(t *testing.T) {
	toks, err := New("<test>", `<ROUTINE GO () <QUIT>>`).Tokenize()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []TokenType{
		TokLAngle, TokAtom, TokAtom, TokLParen, TokRParen,
		TokLAngle, TokAtom, TokRAngle, TokRAngle, TokEOF,
	}
	got := tokenTypes(toks)
	if len(got) != len(want) {
		t.Fatalf("got %d tokens, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestSemicolonFollowedByAtomIsSeparator(t *testing.T) {
	// Inside a paren-depth > 0 context, `;` followed by anything other
	// than a string/form opener is a SEMICOLON separator token (spec
	// §4.2's context-sensitive disambiguation).
	toks, err := New("<test>", "(FOO ;BAR)").Tokenize()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	found := false
	for _, tok := range toks {
		if tok.Type == TokSemicolon {
			found = true
		}
	}
	if !found {
		t.Error("expected a TokSemicolon among the tokens")
	}
}

func TestSemicolonFollowedByFormIsComment(t *testing.T) {
	// `;<...>` comments out exactly the following form.
	toks, err := New("<test>", "<TELL ;<SKIPPED> \"hi\">").Tokenize()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, tok := range toks {
		if tok.Type == TokSemicolon {
			t.Error("did not expect a TokSemicolon; `;<...>` should be elided as a comment")
		}
	}
}

func TestLocalAndGlobalVariableTokens(t *testing.T) {
	toks, err := New("<test>", "<SET .X ,Y>").Tokenize()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var sawLocal, sawGlobal bool
	for _, tok := range toks {
		switch tok.Type {
		case TokLocal:
			sawLocal = true
		case TokGlobal:
			sawGlobal = true
		}
	}
	if !sawLocal {
		t.Error("expected a TokLocal for .X")
	}
	if !sawGlobal {
		t.Error("expected a TokGlobal for ,Y")
	}
}

func TestIntegerLiteral(t *testing.T) {
	toks, err := New("<test>", "<GLOBAL X 5>").Tokenize()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, tok := range toks {
		if tok.Type == TokInteger && tok.Int == 5 {
			return
		}
	}
	t.Error("expected an integer token with value 5")
}
