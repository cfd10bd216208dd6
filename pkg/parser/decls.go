package parser

import (
	"strings"

	"github.com/zil-lang/zilc/pkg/ast"
	"github.com/zil-lang/zilc/pkg/diagnostics"
	"github.com/zil-lang/zilc/pkg/lexer"
)

// parseRoutine parses <ROUTINE name (params…) body…> (spec §3, §4.8.3).
func (p *Parser) parseRoutine(start lexer.Token) (ast.Declaration, error) {
	nameTok, err := p.expectAtomLike("routine name")
	if err != nil {
		return nil, err
	}
	params, err := p.parseParamList()
	if err != nil {
		return nil, err
	}
	body, err := p.parseBodyUntilRAngle(start)
	if err != nil {
		return nil, err
	}
	return &ast.RoutineDecl{
		Name:     p.internAtom(nameTok.Text),
		Params:   params,
		Body:     body,
		StartPos: pos(start),
	}, nil
}

// parseParamList parses a routine/DEFMAC parameter list: required names
// followed by an optional "AUX"/(AUX …) and/or "OPT"/(OPT …) section
// (spec §4.3: "(AUX …) and (OPT …) … introduce optional parameters").
func (p *Parser) parseParamList() ([]*ast.Param, error) {
	if p.peek().Type != lexer.TokLParen {
		return nil, diagnostics.New(diagnostics.Syntax, p.peek().Pos, "expected parameter list '(...)'")
	}
	start := p.advance() // '('
	var params []*ast.Param
	mode := ast.ParamRequired
	for p.peek().Type != lexer.TokRParen {
		if p.atEOF() {
			return nil, diagnostics.New(diagnostics.Syntax, start.Pos, "unterminated parameter list")
		}
		if p.peek().Type == lexer.TokAtom {
			up := strings.ToUpper(p.peek().Text)
			if up == "AUX" || up == "\"AUX\"" {
				p.advance()
				mode = ast.ParamAux
				continue
			}
			if up == "OPT" || up == "\"OPT\"" {
				p.advance()
				mode = ast.ParamOptional
				continue
			}
		}
		if p.peek().Type == lexer.TokString {
			up := strings.ToUpper(p.peek().Text)
			if up == "AUX" {
				p.advance()
				mode = ast.ParamAux
				continue
			}
			if up == "OPT" {
				p.advance()
				mode = ast.ParamOptional
				continue
			}
		}
		param, err := p.parseOneParam(mode)
		if err != nil {
			return nil, err
		}
		params = append(params, param)
	}
	p.advance() // ')'
	return params, nil
}

func (p *Parser) parseOneParam(mode ast.ParamKind) (*ast.Param, error) {
	t := p.peek()
	switch t.Type {
	case lexer.TokQuote:
		p.advance()
		nameTok, err := p.expectAtomLike("quoted parameter name")
		if err != nil {
			return nil, err
		}
		return &ast.Param{Name: p.internAtom(nameTok.Text), Kind: ast.ParamQuoted, Pos: pos(t)}, nil
	case lexer.TokAtom:
		p.advance()
		return &ast.Param{Name: p.internAtom(t.Text), Kind: mode, Pos: pos(t)}, nil
	case lexer.TokLParen:
		p.advance()
		nameTok, err := p.expectAtomLike("parameter name")
		if err != nil {
			return nil, err
		}
		var def *ast.Value
		if p.peek().Type != lexer.TokRParen {
			def, err = p.parseValue()
			if err != nil {
				return nil, err
			}
		}
		if _, err := p.expect(lexer.TokRParen, "')'"); err != nil {
			return nil, err
		}
		return &ast.Param{Name: p.internAtom(nameTok.Text), Kind: mode, Default: def, Pos: pos(t)}, nil
	default:
		return nil, diagnostics.New(diagnostics.Syntax, t.Pos, "expected parameter")
	}
}

func (p *Parser) parseBodyUntilRAngle(start lexer.Token) ([]*ast.Value, error) {
	var body []*ast.Value
	for p.peek().Type != lexer.TokRAngle {
		if p.peek().Type == lexer.TokSemicolon {
			p.advance()
			continue
		}
		if p.atEOF() {
			return nil, diagnostics.New(diagnostics.Syntax, start.Pos, "unterminated form")
		}
		v, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		body = append(body, v)
	}
	p.advance()
	return body, nil
}

// directionIntroducers are the tokens spec §4.3 says identify a
// property-list entry as a direction exit rather than an ordinary
// (property value…) pair: "a direction name is recognized as a
// direction only if the list's second token is one of
// TO | PER | SORRY | UEXIT | <exit-object>".
var directionIntroducers = map[string]ast.DirExitKind{
	"TO":    ast.ExitTo,
	"PER":   ast.ExitPer,
	"SORRY": ast.ExitSorry,
	"UEXIT": ast.ExitUexit,
}

// parseObject parses <OBJECT name (FLAGS …) (prop value…)…> / <ROOM …>.
func (p *Parser) parseObject(start lexer.Token, isRoom bool) (ast.Declaration, error) {
	nameTok, err := p.expectAtomLike("object name")
	if err != nil {
		return nil, err
	}
	obj := &ast.ObjectDecl{Name: p.internAtom(nameTok.Text), IsRoom: isRoom, StartPos: pos(start)}
	for p.peek().Type != lexer.TokRAngle {
		if p.peek().Type == lexer.TokSemicolon {
			p.advance()
			continue
		}
		if p.atEOF() {
			return nil, diagnostics.New(diagnostics.Syntax, start.Pos, "unterminated object declaration")
		}
		if p.peek().Type != lexer.TokLParen {
			return nil, diagnostics.New(diagnostics.Syntax, p.peek().Pos, "expected (property value…) in object body")
		}
		if err := p.parseObjectProperty(obj); err != nil {
			return nil, err
		}
	}
	p.advance()
	return obj, nil
}

func (p *Parser) parseObjectProperty(obj *ast.ObjectDecl) error {
	lparen := p.advance() // '('
	propTok, err := p.expectAtomLike("property name")
	if err != nil {
		return err
	}
	propName := strings.ToUpper(propTok.Text)

	if propName == "FLAGS" {
		for p.peek().Type != lexer.TokRParen {
			t, err := p.expectAtomLike("flag name")
			if err != nil {
				return err
			}
			obj.Flags = append(obj.Flags, p.internAtom(t.Text))
		}
		p.advance()
		return nil
	}

	if exitKind, ok := directionIntroducers[peekUpperIfAtom(p, 0)]; ok {
		return p.finishDirectionExit(obj, propTok, exitKind, lparen)
	}

	pv := &ast.PropValue{Property: p.internAtom(propTok.Text), Pos: pos(lparen)}
	for p.peek().Type != lexer.TokRParen {
		if p.peek().Type == lexer.TokSemicolon {
			p.advance()
			continue
		}
		if p.atEOF() {
			return diagnostics.New(diagnostics.Syntax, lparen.Pos, "unterminated property list")
		}
		v, err := p.parseValue()
		if err != nil {
			return err
		}
		pv.Values = append(pv.Values, v)
	}
	p.advance()
	if propName == "DESC" && len(pv.Values) == 1 && pv.Values[0].Kind == ast.ValString {
		obj.DescString = pv.Values[0].Str
	}
	obj.Props = append(obj.Props, pv)
	return nil
}

func peekUpperIfAtom(p *Parser, n int) string {
	t := p.peekAt(n)
	if t.Type != lexer.TokAtom {
		return ""
	}
	return strings.ToUpper(t.Text)
}

func (p *Parser) finishDirectionExit(obj *ast.ObjectDecl, dirTok lexer.Token, kind ast.DirExitKind, lparen lexer.Token) error {
	p.advance() // consume TO/PER/SORRY/UEXIT keyword
	exit := &ast.DirExit{Direction: p.internAtom(dirTok.Text), Kind: kind, Pos: pos(lparen), Cond: ast.NoAtom}
	switch kind {
	case ast.ExitTo, ast.ExitPer, ast.ExitUexit:
		t, err := p.expectAtomLike("exit target")
		if err != nil {
			return err
		}
		exit.Target = p.internAtom(t.Text)
	case ast.ExitSorry:
		t, err := p.expect(lexer.TokString, "sorry message string")
		if err != nil {
			return err
		}
		exit.Sorry = t.Text
	}
	if peekUpperIfAtom(p, 0) == "IF" {
		p.advance()
		t, err := p.expectAtomLike("guard flag")
		if err != nil {
			return err
		}
		exit.Cond = p.internAtom(t.Text)
	}
	if _, err := p.expect(lexer.TokRParen, "')'"); err != nil {
		return err
	}
	obj.Props = append(obj.Props, &ast.PropValue{Property: exit.Direction, Exit: exit, Pos: pos(lparen)})
	return nil
}

func (p *Parser) parseGlobal(start lexer.Token) (ast.Declaration, error) {
	nameTok, err := p.expectAtomLike("global name")
	if err != nil {
		return nil, err
	}
	var initial *ast.Value
	if p.peek().Type != lexer.TokRAngle {
		initial, err = p.parseValue()
		if err != nil {
			return nil, err
		}
	}
	if err := p.expectRAngle(); err != nil {
		return nil, err
	}
	return &ast.GlobalDecl{Name: p.internAtom(nameTok.Text), Initial: initial, StartPos: pos(start)}, nil
}

func (p *Parser) parseConstant(start lexer.Token) (ast.Declaration, error) {
	nameTok, err := p.expectAtomLike("constant name")
	if err != nil {
		return nil, err
	}
	v, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	if err := p.expectRAngle(); err != nil {
		return nil, err
	}
	return &ast.ConstantDecl{Name: p.internAtom(nameTok.Text), Value: v, StartPos: pos(start)}, nil
}

// parsePropDef parses <PROPDEF name default (pattern…) (pattern…)…>
// (spec §4.5).
func (p *Parser) parsePropDef(start lexer.Token) (ast.Declaration, error) {
	nameTok, err := p.expectAtomLike("property name")
	if err != nil {
		return nil, err
	}
	def, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	decl := &ast.PropDefDecl{Name: p.internAtom(nameTok.Text), Default: def, StartPos: pos(start)}
	for p.peek().Type == lexer.TokLParen {
		lparen := p.advance()
		pattern := &ast.PropPattern{}
		for p.peek().Type != lexer.TokRParen {
			elem, err := p.parsePatternElem()
			if err != nil {
				return nil, err
			}
			pattern.Elems = append(pattern.Elems, elem)
		}
		p.advance()
		_ = lparen
		decl.Patterns = append(decl.Patterns, pattern)
	}
	if err := p.expectRAngle(); err != nil {
		return nil, err
	}
	return decl, nil
}

func (p *Parser) parsePatternElem() (ast.PropPatternElem, error) {
	optional := false
	if p.peek().Type == lexer.TokLBracket {
		p.advance()
		optional = true
	}
	t, err := p.expectAtomLike("pattern element")
	if err != nil {
		return ast.PropPatternElem{}, err
	}
	var kind ast.PropPatternElemKind
	switch strings.ToUpper(t.Text) {
	case "WORD":
		kind = ast.PatWord
	case "BYTE":
		kind = ast.PatByte
	case "ROOM":
		kind = ast.PatRoom
	case "OBJECT":
		kind = ast.PatObject
	case "VOC":
		kind = ast.PatVoc
	default:
		return ast.PropPatternElem{}, diagnostics.New(diagnostics.Syntax, t.Pos, "unknown PROPDEF pattern element %q", t.Text)
	}
	if optional {
		if _, err := p.expect(lexer.TokRBracket, "']'"); err != nil {
			return ast.PropPatternElem{}, err
		}
	}
	return ast.PropPatternElem{Kind: kind, Optional: optional}, nil
}

// parseTable parses <TABLE …> / <ITABLE n …> / <LTABLE …>.
func (p *Parser) parseTable(start lexer.Token, kw string) (ast.Declaration, error) {
	decl := &ast.TableDecl{StartPos: pos(start)}
	switch kw {
	case "ITABLE":
		decl.Kind = ast.TableITable
	case "LTABLE":
		decl.Kind = ast.TableLTable
		decl.Flags |= ast.TableLength
	default:
		decl.Kind = ast.TableTable
	}

	// Optional leading flag atoms (BYTE/WORD/PURE/LENGTH/PATTERN) and,
	// for ITABLE, a declared element count.
	for {
		t := p.peek()
		if t.Type == lexer.TokAtom {
			switch strings.ToUpper(t.Text) {
			case "BYTE":
				decl.Flags |= ast.TableByte
				p.advance()
				continue
			case "WORD":
				decl.Flags |= ast.TableWord
				p.advance()
				continue
			case "PURE":
				decl.Flags |= ast.TablePure
				p.advance()
				continue
			case "LENGTH":
				decl.Flags |= ast.TableLength
				p.advance()
				continue
			case "PATTERN":
				decl.Flags |= ast.TablePattern
				p.advance()
				continue
			}
		}
		if decl.Kind == ast.TableITable && t.Type == lexer.TokInteger {
			decl.DeclaredLen = int(t.Int)
			p.advance()
			continue
		}
		break
	}

	for p.peek().Type != lexer.TokRAngle {
		if p.atEOF() {
			return nil, diagnostics.New(diagnostics.Syntax, start.Pos, "unterminated table")
		}
		v, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		decl.Initializers = append(decl.Initializers, v)
	}
	p.advance()
	return decl, nil
}

// parseDefmac parses <DEFMAC name (params…) body…> (spec §4.4).
func (p *Parser) parseDefmac(start lexer.Token) (ast.Declaration, error) {
	nameTok, err := p.expectAtomLike("macro name")
	if err != nil {
		return nil, err
	}
	params, err := p.parseParamList()
	if err != nil {
		return nil, err
	}
	body, err := p.parseBodyUntilRAngle(start)
	if err != nil {
		return nil, err
	}
	return &ast.DefmacDecl{Name: p.internAtom(nameTok.Text), Params: params, Body: body, StartPos: pos(start)}, nil
}

// parseDirections parses <DIRECTIONS dir…>.
func (p *Parser) parseDirections(start lexer.Token) (ast.Declaration, error) {
	decl := &ast.DirectionsDecl{StartPos: pos(start)}
	for p.peek().Type != lexer.TokRAngle {
		t, err := p.expectAtomLike("direction name")
		if err != nil {
			return nil, err
		}
		decl.Names = append(decl.Names, p.internAtom(t.Text))
	}
	p.advance()
	return decl, nil
}

// parseSyntax parses <SYNTAX verb OBJECT (prep OBJECT)… = action [preaction]>.
func (p *Parser) parseSyntax(start lexer.Token) (ast.Declaration, error) {
	verbTok, err := p.expectAtomLike("verb name")
	if err != nil {
		return nil, err
	}
	decl := &ast.SyntaxDecl{Verb: p.internAtom(verbTok.Text), Preaction: ast.NoAtom, StartPos: pos(start)}
	for p.peek().Type != lexer.TokRAngle {
		t := p.peek()
		if t.Type == lexer.TokAtom && t.Text == "=" {
			p.advance()
			actTok, err := p.expectAtomLike("action routine name")
			if err != nil {
				return nil, err
			}
			decl.Action = p.internAtom(actTok.Text)
			if p.peek().Type == lexer.TokAtom {
				preTok := p.advance()
				decl.Preaction = p.internAtom(preTok.Text)
			}
			continue
		}
		if t.Type != lexer.TokAtom {
			return nil, diagnostics.New(diagnostics.Syntax, t.Pos, "unexpected token in SYNTAX pattern")
		}
		p.advance()
		if strings.ToUpper(t.Text) == "OBJECT" {
			decl.Pattern = append(decl.Pattern, ast.SyntaxToken{ObjectSlot: true})
		} else {
			decl.Pattern = append(decl.Pattern, ast.SyntaxToken{Atom: p.internAtom(t.Text)})
		}
	}
	p.advance()
	return decl, nil
}

// parseVocab parses SYNONYM/ADJECTIVE/PREPOSITION/BUZZ lists.
func (p *Parser) parseVocab(start lexer.Token, kw string) (ast.Declaration, error) {
	decl := &ast.VocabDecl{StartPos: pos(start), Of: ast.NoAtom}
	switch kw {
	case "SYNONYM":
		decl.Kind = ast.VocabSynonym
	case "ADJECTIVE":
		decl.Kind = ast.VocabAdjective
	case "PREPOSITION":
		decl.Kind = ast.VocabPreposition
	case "BUZZ":
		decl.Kind = ast.VocabBuzz
	}
	for p.peek().Type != lexer.TokRAngle {
		if p.peek().Type == lexer.TokSemicolon {
			// ZILF-style alternate-group marker inside a word list
			// (spec §4.3): treat it as an ordinary separator.
			p.advance()
			continue
		}
		t, err := p.expectAtomLike("vocabulary word")
		if err != nil {
			return nil, err
		}
		decl.Words = append(decl.Words, p.internAtom(t.Text))
	}
	p.advance()
	return decl, nil
}
