package preprocess

import (
	"strconv"
	"strings"
)

// Environment holds the preprocessor's compile-time value environment:
// COMPILATION-FLAG bindings and the top-level SETG assignments that
// GASSIGNED? and %<COND> consult (spec §4.1).
type Environment struct {
	Flags   map[string]bool
	Globals map[string]string // name -> raw literal text of its last top-level SETG
}

func NewEnvironment() *Environment {
	return &Environment{Flags: map[string]bool{}, Globals: map[string]string{}}
}

// versionTag maps a target Z-machine version number to the ZILF
// %<VERSION?> branch keyword that selects it.
var versionTag = map[int]string{
	3: "ZIP",
	4: "EZIP",
	5: "XZIP",
	6: "YZIP",
	7: "YZIP",
	8: "YZIP",
}

// Processor evaluates conditional-compilation directives over a flat,
// include-spliced source text and strips declarations with no runtime
// effect (spec §4.1).
type Processor struct {
	Env     *Environment
	Version int
}

func NewProcessor(version int) *Processor {
	return &Processor{Env: NewEnvironment(), Version: version}
}

// Run applies control-character normalization, then repeatedly expands
// directives until the text reaches a fixed point (a directive's
// selected branch may itself contain further directives, e.g. a nested
// IFFLAG inside a COND arm pulled in from an included file).
func (p *Processor) Run(text string) (string, error) {
	text = normalizeControlChars(text)
	for {
		out, changed, err := p.passOnce(text)
		if err != nil {
			return "", err
		}
		if !changed {
			return out, nil
		}
		text = out
	}
}

func normalizeControlChars(s string) string {
	replacer := strings.NewReplacer("\f", " ", "\v", " ", "\r\n", "\n", "\r", "\n")
	return replacer.Replace(s)
}

func (p *Processor) passOnce(text string) (string, bool, error) {
	var out strings.Builder
	changed := false
	i := 0
	for i < len(text) {
		ch := text[i]
		if ch == '#' && hasWordAt(text, i+1, "DECL") {
			end, err := scanBalancedParen(text, skipWord(text, i+1, "DECL"))
			if err == nil {
				i = end
				changed = true
				continue
			}
		}
		percent := false
		start := i
		if ch == '%' && i+1 < len(text) && text[i+1] == '<' {
			percent = true
			start = i + 1
		}
		if text[start] == '<' {
			end, err := scanBalanced(text, start)
			if err == nil {
				replacement, handled, err := p.expandForm(text[start:end], percent)
				if err != nil {
					return "", false, err
				}
				if handled {
					out.WriteString(replacement)
					i = end
					changed = true
					continue
				}
				// Not a directive: recurse into operands to catch
				// directives nested arbitrarily deep (e.g. an IFFLAG
				// used inline inside a ROUTINE body), then re-emit.
				rebuilt, innerChanged, err := p.recurseInto(text[start:end])
				if err != nil {
					return "", false, err
				}
				if percent {
					out.WriteByte('%')
				}
				out.WriteString(rebuilt)
				i = end
				if innerChanged {
					changed = true
				}
				continue
			}
		}
		out.WriteByte(ch)
		i++
	}
	return out.String(), changed, nil
}

func hasWordAt(text string, pos int, word string) bool {
	if pos+len(word) > len(text) {
		return false
	}
	return strings.EqualFold(text[pos:pos+len(word)], word)
}

func skipWord(text string, pos int, word string) int {
	return pos + len(word)
}

func scanBalancedParen(text string, from int) (int, error) {
	i := from
	for i < len(text) && isSpaceByte(text[i]) {
		i++
	}
	if i >= len(text) || text[i] != '(' {
		return 0, errNotParen
	}
	depth := 0
	for i < len(text) {
		switch text[i] {
		case '"':
			j, err := scanString(text, i)
			if err != nil {
				return 0, err
			}
			i = j
			continue
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i + 1, nil
			}
		}
		i++
	}
	return 0, errUnbalanced
}

var errNotParen = strErr("expected '(' after #DECL")
var errUnbalanced = strErr("unbalanced '(' in #DECL")

type strErr string

func (e strErr) Error() string { return string(e) }

// recurseInto re-processes the operands of a non-directive form so that
// directives nested inside ordinary code are still expanded.
func (p *Processor) recurseInto(form string) (string, bool, error) {
	inner := form[1 : len(form)-1]
	out, changed, err := p.passOnce(inner)
	if err != nil {
		return "", false, err
	}
	return "<" + out + ">", changed, nil
}

// expandForm dispatches on a bracketed form's operator atom. formText
// includes its surrounding <...>.
func (p *Processor) expandForm(formText string, percent bool) (string, bool, error) {
	inner := formText[1 : len(formText)-1]
	head, rest := splitHead(inner)
	upper := strings.ToUpper(head)

	switch upper {
	case "INSERT-FILE", "IFILE":
		// Already spliced by the Includer; nothing to do here, but
		// guard against re-entry if Process is ever called standalone.
		return formText, false, nil
	case "COMPILATION-FLAG":
		return p.handleCompilationFlag(rest)
	case "IFFLAG":
		text, err := p.handleIfflag(rest)
		return text, true, err
	case "VERSION?":
		text, err := p.handleVersionQ(rest)
		return text, true, err
	case "COND":
		if !percent {
			// Bare <COND ...> without a leading %. is ordinary ZIL
			// control flow (spec §4.8.2), not a preprocessor directive.
			return formText, false, nil
		}
		text, err := p.handleCond(rest)
		return text, true, err
	case "GASSIGNED?":
		name := strings.ToUpper(strings.TrimSpace(rest))
		if p.testFlagOrGlobal(name) {
			return "1", true, nil
		}
		return "0", true, nil
	case "PACKAGE", "ENDPACKAGE", "ENTRY", "USE":
		return "", true, nil
	case "SETG", "SETG!-":
		p.recordSetg(rest)
		return formText, false, nil
	}
	return formText, false, nil
}

func splitHead(inner string) (head, rest string) {
	i := 0
	for i < len(inner) && isSpaceByte(inner[i]) {
		i++
	}
	start := i
	for i < len(inner) && !isSpaceByte(inner[i]) {
		i++
	}
	return inner[start:i], strings.TrimLeft(inner[i:], " \t\r\n")
}

func (p *Processor) handleCompilationFlag(rest string) (string, bool, error) {
	groups := splitTopLevelGroups(rest)
	if len(groups) < 2 {
		return "", false, strErr("COMPILATION-FLAG requires a name and a boolean value")
	}
	name := strings.ToUpper(strings.Trim(groups[0], "\""))
	valText := strings.TrimSpace(groups[1])
	val, err := p.evalBoolLiteral(valText)
	if err != nil {
		return "", false, err
	}
	p.Env.Flags[name] = val
	return "", true, nil
}

func (p *Processor) evalBoolLiteral(text string) (bool, error) {
	switch strings.ToUpper(text) {
	case "T", "<T>", "TRUE":
		return true, nil
	case "<>", "FALSE", "()":
		return false, nil
	}
	if n, err := strconv.Atoi(text); err == nil {
		return n != 0, nil
	}
	return false, strErr("COMPILATION-FLAG value must be boolean (T or <>), got " + text)
}

func (p *Processor) recordSetg(rest string) {
	groups := splitTopLevelGroups(rest)
	if len(groups) < 2 {
		return
	}
	p.Env.Globals[strings.ToUpper(groups[0])] = strings.TrimSpace(groups[1])
}

func (p *Processor) testFlagOrGlobal(name string) bool {
	if v, ok := p.Env.Flags[name]; ok {
		return v
	}
	_, ok := p.Env.Globals[name]
	return ok
}

// handleIfflag implements <IFFLAG (FLAG expr…) … (ELSE expr…)>.
func (p *Processor) handleIfflag(rest string) (string, error) {
	for _, g := range splitTopLevelGroups(rest) {
		if !strings.HasPrefix(g, "(") {
			continue
		}
		clause := strings.TrimSpace(g[1 : len(g)-1])
		test, body := splitHead(clause)
		if strings.EqualFold(test, "ELSE") || p.evalTest(test) {
			return strings.TrimSpace(body), nil
		}
	}
	return "", nil
}

// handleVersionQ implements %<VERSION? (ZIP e3) (EZIP e4) (XZIP e5) (ELSE eN)>.
func (p *Processor) handleVersionQ(rest string) (string, error) {
	tag := versionTag[p.Version]
	var elseBody string
	hasElse := false
	for _, g := range splitTopLevelGroups(rest) {
		if !strings.HasPrefix(g, "(") {
			continue
		}
		clause := strings.TrimSpace(g[1 : len(g)-1])
		kw, body := splitHead(clause)
		if strings.EqualFold(kw, "ELSE") {
			elseBody, hasElse = body, true
			continue
		}
		if tag != "" && strings.EqualFold(kw, tag) {
			return strings.TrimSpace(body), nil
		}
	}
	if hasElse {
		return strings.TrimSpace(elseBody), nil
	}
	return "", nil
}

// handleCond implements %<COND (test expr…) … (T expr…)>.
func (p *Processor) handleCond(rest string) (string, error) {
	for _, g := range splitTopLevelGroups(rest) {
		if !strings.HasPrefix(g, "(") {
			continue
		}
		clause := strings.TrimSpace(g[1 : len(g)-1])
		test, body := splitHead(clause)
		if strings.EqualFold(test, "T") || strings.EqualFold(test, "ELSE") || p.evalTest(test) {
			return strings.TrimSpace(body), nil
		}
	}
	return "", nil
}

// evalTest evaluates a compile-time boolean test: a bare flag/global
// name, or a nested <GASSIGNED? X>, <NOT t>, <OR t…>, <AND t…> form.
func (p *Processor) evalTest(test string) bool {
	test = strings.TrimSpace(test)
	if test == "" {
		return false
	}
	if test[0] != '<' {
		return p.testFlagOrGlobal(strings.ToUpper(test))
	}
	inner := test[1 : len(test)-1]
	head, rest := splitHead(inner)
	switch strings.ToUpper(head) {
	case "GASSIGNED?":
		return p.testFlagOrGlobal(strings.ToUpper(strings.TrimSpace(rest)))
	case "NOT":
		return !p.evalTest(rest)
	case "OR":
		for _, g := range splitTopLevelGroups(rest) {
			if p.evalTest(g) {
				return true
			}
		}
		return false
	case "AND":
		for _, g := range splitTopLevelGroups(rest) {
			if !p.evalTest(g) {
				return false
			}
		}
		return true
	}
	return p.testFlagOrGlobal(strings.ToUpper(head))
}

// splitTopLevelGroups splits s into whitespace-separated top-level
// groups, where a group is a balanced (...), <...>, a quoted string, or
// a bare word — the minimal tokenizer the directive handlers need to
// pull clause lists apart without invoking the full lexer.
func splitTopLevelGroups(s string) []string {
	var groups []string
	i := 0
	for i < len(s) {
		for i < len(s) && isSpaceByte(s[i]) {
			i++
		}
		if i >= len(s) {
			break
		}
		start := i
		switch s[i] {
		case '(':
			depth := 0
			for i < len(s) {
				if s[i] == '"' {
					j, err := scanString(s, i)
					if err != nil {
						i = len(s)
						break
					}
					i = j
					continue
				}
				if s[i] == '(' {
					depth++
				} else if s[i] == ')' {
					depth--
					if depth == 0 {
						i++
						break
					}
				}
				i++
			}
		case '<':
			depth := 0
			for i < len(s) {
				if s[i] == '"' {
					j, err := scanString(s, i)
					if err != nil {
						i = len(s)
						break
					}
					i = j
					continue
				}
				if s[i] == '<' {
					depth++
				} else if s[i] == '>' {
					depth--
					if depth == 0 {
						i++
						break
					}
				}
				i++
			}
		case '"':
			j, err := scanString(s, i)
			if err != nil {
				i = len(s)
			} else {
				i = j
			}
		default:
			for i < len(s) && !isSpaceByte(s[i]) {
				i++
			}
		}
		groups = append(groups, s[start:i])
	}
	return groups
}
