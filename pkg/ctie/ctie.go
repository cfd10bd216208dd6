// Package ctie (Compile-Time Interface Evaluation) evaluates the
// restricted arithmetic/comparison subset of ZIL that appears in
// %<COND> clauses and DEFMAC/AUX default-value expressions, without
// duplicating a second full Form evaluator.
//
// Grounded on the teacher's pkg/meta/lua_evaluator.go: rather than hand
// write a second interpreter for "the small bits of ZIL that need to
// run before code generation", both compilers embed gopher-lua and
// translate the compile-time subset into Lua source, reusing Lua's
// arithmetic and control flow instead of reimplementing it.
package ctie

import (
	"fmt"
	"strconv"
	"strings"

	lua "github.com/yuin/gopher-lua"
)

// Evaluator wraps an embedded Lua state seeded with the compiler's
// compile-time flag/global environment.
type Evaluator struct {
	L *lua.LState
}

// New creates an Evaluator. flags and globals mirror the preprocessor's
// Environment (package preprocess) so a DEFMAC default expression like
// <+ .N 1> or a %<COND> clause like <G? ,VERSION 3> can see the same
// compile-time bindings the preprocessor used.
func New(flags map[string]bool, globals map[string]int) *Evaluator {
	L := lua.NewState()
	flagTable := L.NewTable()
	for name, v := range flags {
		L.SetField(flagTable, strings.ToUpper(name), lua.LBool(v))
	}
	L.SetGlobal("FLAGS", flagTable)

	globalTable := L.NewTable()
	for name, v := range globals {
		L.SetField(globalTable, strings.ToUpper(name), lua.LNumber(v))
	}
	L.SetGlobal("GLOBALS", globalTable)

	L.SetGlobal("gassigned", L.NewFunction(func(L *lua.LState) int {
		name := strings.ToUpper(L.CheckString(1))
		_, isFlag := flags[name]
		_, isGlobal := globals[name]
		L.Push(lua.LBool(isFlag || isGlobal))
		return 1
	}))

	return &Evaluator{L: L}
}

func (e *Evaluator) Close() { e.L.Close() }

// EvalInt evaluates a ZIL compile-time arithmetic/comparison form (e.g.
// "<+ 1 2>", "<G? .N 3>") translated to Lua source, returning its
// integer result. Booleans evaluate to 1 (true) / 0 (false), matching
// ZIL's convention (spec §3).
func (e *Evaluator) EvalInt(zilExpr string) (int, error) {
	lx, err := TranslateExpr(zilExpr)
	if err != nil {
		return 0, err
	}
	code := fmt.Sprintf("return (%s)", lx)
	if err := e.L.DoString(code); err != nil {
		return 0, fmt.Errorf("compile-time evaluation of %q failed: %w", zilExpr, err)
	}
	result := e.L.Get(-1)
	e.L.Pop(1)
	switch v := result.(type) {
	case lua.LNumber:
		return int(v), nil
	case lua.LBool:
		if bool(v) {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("compile-time expression %q did not reduce to a number", zilExpr)
	}
}

// TranslateExpr rewrites the restricted ZIL form grammar this package
// supports — <OP a b …> with OP one of the arithmetic/comparison/boolean
// operators below, local refs (.X), global refs (,X), bare globals, and
// GASSIGNED? tests — into equivalent Lua source.
func TranslateExpr(expr string) (string, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return "0", nil
	}
	if expr[0] != '<' {
		return translateAtomOrLiteral(expr)
	}
	if expr[len(expr)-1] != '>' {
		return "", fmt.Errorf("malformed compile-time form: %s", expr)
	}
	inner := expr[1 : len(expr)-1]
	op, rest := splitFirst(inner)
	args, err := splitArgs(rest)
	if err != nil {
		return "", err
	}
	var luaArgs []string
	for _, a := range args {
		t, err := TranslateExpr(a)
		if err != nil {
			return "", err
		}
		luaArgs = append(luaArgs, t)
	}

	switch strings.ToUpper(op) {
	case "+", "ADD":
		return parenJoin(luaArgs, "+"), nil
	case "-", "SUB":
		return parenJoin(luaArgs, "-"), nil
	case "*", "MUL":
		return parenJoin(luaArgs, "*"), nil
	case "/", "DIV":
		return parenJoin(luaArgs, "//"), nil
	case "MOD":
		return parenJoin(luaArgs, "%"), nil
	case "EQUAL?", "==", "=?":
		return boolToNum(parenJoin(luaArgs, "==")), nil
	case "G?", ">":
		return boolToNum(parenJoin(luaArgs, ">")), nil
	case "L?", "<":
		return boolToNum(parenJoin(luaArgs, "<")), nil
	case "G=?", ">=":
		return boolToNum(parenJoin(luaArgs, ">=")), nil
	case "L=?", "<=":
		return boolToNum(parenJoin(luaArgs, "<=")), nil
	case "NOT":
		if len(luaArgs) != 1 {
			return "", fmt.Errorf("NOT takes exactly one argument")
		}
		return boolToNum(fmt.Sprintf("not (%s ~= 0)", luaArgs[0])), nil
	case "OR":
		return boolToNum(parenJoinBool(luaArgs, "or")), nil
	case "AND":
		return boolToNum(parenJoinBool(luaArgs, "and")), nil
	case "GASSIGNED?":
		if len(args) != 1 {
			return "", fmt.Errorf("GASSIGNED? takes exactly one argument")
		}
		name := strings.ToUpper(strings.Trim(strings.TrimSpace(args[0]), ".,"))
		return boolToNum(fmt.Sprintf("gassigned(%q)", name)), nil
	default:
		return "", fmt.Errorf("unsupported compile-time operator: %s", op)
	}
}

func boolToNum(expr string) string {
	return fmt.Sprintf("((%s) and 1 or 0)", expr)
}

func parenJoin(args []string, op string) string {
	return "(" + strings.Join(args, " "+op+" ") + ")"
}

func parenJoinBool(args []string, op string) string {
	converted := make([]string, len(args))
	for i, a := range args {
		converted[i] = fmt.Sprintf("(%s ~= 0)", a)
	}
	return "(" + strings.Join(converted, " "+op+" ") + ")"
}

func translateAtomOrLiteral(tok string) (string, error) {
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return "0", nil
	}
	if n, err := strconv.Atoi(tok); err == nil {
		return strconv.Itoa(n), nil
	}
	switch tok[0] {
	case '.', ',':
		name := strings.ToUpper(tok[1:])
		return fmt.Sprintf("(GLOBALS.%s or 0)", name), nil
	}
	if strings.EqualFold(tok, "T") {
		return "1", nil
	}
	if tok == "<>" {
		return "0", nil
	}
	return fmt.Sprintf("(GLOBALS.%s or 0)", strings.ToUpper(tok)), nil
}

func splitFirst(s string) (head, rest string) {
	s = strings.TrimSpace(s)
	i := 0
	for i < len(s) && s[i] != ' ' && s[i] != '\t' {
		i++
	}
	return s[:i], strings.TrimSpace(s[i:])
}

// splitArgs splits a form's operand text into individual top-level
// argument strings, honoring nested <...> forms.
func splitArgs(s string) ([]string, error) {
	var args []string
	depth := 0
	start := -1
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '<':
			if depth == 0 {
				start = i
			}
			depth++
		case '>':
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("unbalanced '>' in %q", s)
			}
			if depth == 0 {
				args = append(args, s[start:i+1])
				start = -1
			}
		case ' ', '\t':
			if depth == 0 && start >= 0 {
				args = append(args, s[start:i])
				start = -1
			}
		default:
			if depth == 0 && start < 0 {
				start = i
			}
		}
	}
	if start >= 0 {
		args = append(args, s[start:])
	}
	if depth != 0 {
		return nil, fmt.Errorf("unbalanced '<' in %q", s)
	}
	return args, nil
}
