// Package macro expands DEFMAC macros over the parsed Value/Form tree
// (spec §4.4): parameter binding (required/quoted/tuple/auxiliary/
// optional), quote/unquote via QUOTE and SPLICE, <FORM op args…>
// construction, and fixed-point re-expansion with a bounded recursion
// depth so a macro whose body calls another macro keeps expanding
// until no further macro calls remain.
//
// Grounded on the teacher's pkg/semantic/template_expander.go: the same
// two-pass shape (register every definition first, then expand call
// sites against the registry) and the same env-gated debug tracing
// convention, reworked from MinZ's text-substitution {0}/{1} templates
// into ZIL's structural Form substitution, since DEFMAC operates on
// s-expressions rather than source text.
package macro

import (
	"fmt"
	"os"

	"github.com/zil-lang/zilc/pkg/ast"
	"github.com/zil-lang/zilc/pkg/ctie"
	"github.com/zil-lang/zilc/pkg/diagnostics"
)

var debugMacro = os.Getenv("DEBUG") != ""

// maxExpansionDepth bounds the fixed-point re-expansion loop so a
// macro that (mistakenly or recursively) calls itself cannot hang the
// compiler (spec §4.4 "bounded recursion depth").
const maxExpansionDepth = 64

// Expander holds the registry of DEFMAC definitions collected from a
// file's declarations.
type Expander struct {
	atoms   *ast.AtomTable
	macros  map[ast.Atom]*ast.DefmacDecl
	ctieEnv *ctie.Evaluator
}

func New(atoms *ast.AtomTable, ctieEnv *ctie.Evaluator) *Expander {
	return &Expander{atoms: atoms, macros: map[ast.Atom]*ast.DefmacDecl{}, ctieEnv: ctieEnv}
}

// ExpandFile collects every DEFMAC in file (removing them from the
// declaration list) and expands all macro calls appearing in the
// remaining declarations' bodies and values.
func (e *Expander) ExpandFile(file *ast.File) (*ast.File, error) {
	var kept []ast.Declaration
	for _, d := range file.Declarations {
		if dm, ok := d.(*ast.DefmacDecl); ok {
			e.macros[dm.Name] = dm
			if debugMacro {
				fmt.Fprintf(os.Stderr, "macro: registered %s (%d params)\n", e.atoms.Name(dm.Name), len(dm.Params))
			}
			continue
		}
		kept = append(kept, d)
	}

	for _, d := range kept {
		if err := e.expandDecl(d); err != nil {
			return nil, err
		}
	}
	file.Declarations = kept
	return file, nil
}

func (e *Expander) expandDecl(d ast.Declaration) error {
	switch v := d.(type) {
	case *ast.RoutineDecl:
		body, err := e.expandValues(v.Body, nil, 0)
		if err != nil {
			return err
		}
		v.Body = body
	case *ast.ObjectDecl:
		for _, pv := range v.Props {
			vals, err := e.expandValues(pv.Values, nil, 0)
			if err != nil {
				return err
			}
			pv.Values = vals
		}
	case *ast.GlobalDecl:
		if v.Initial != nil {
			nv, err := e.expandOne(v.Initial, nil, 0)
			if err != nil {
				return err
			}
			v.Initial = nv
		}
	case *ast.ConstantDecl:
		nv, err := e.expandOne(v.Value, nil, 0)
		if err != nil {
			return err
		}
		v.Value = nv
	case *ast.TableDecl:
		vals, err := e.expandValues(v.Initializers, nil, 0)
		if err != nil {
			return err
		}
		v.Initializers = vals
	case *ast.GenericDecl:
		operands, err := e.expandValues(v.Form.Operands, nil, 0)
		if err != nil {
			return err
		}
		v.Form.Operands = operands
	}
	return nil
}

// env binds macro parameter atoms to the (unevaluated) Value supplied
// at the call site.
type env map[ast.Atom]*ast.Value

func (e *Expander) expandValues(vals []*ast.Value, bindings env, depth int) ([]*ast.Value, error) {
	var out []*ast.Value
	for _, v := range vals {
		expanded, err := e.expandOne(v, bindings, depth)
		if err != nil {
			return nil, err
		}
		if spliced, ok := asSplice(expanded); ok {
			out = append(out, spliced...)
			continue
		}
		out = append(out, expanded)
	}
	return out, nil
}

// asSplice reports whether v is the result of a <SPLICE list> form,
// returning its elements so the caller can flatten them into the
// surrounding operand list (spec §4.4 "SPLICE").
func asSplice(v *ast.Value) ([]*ast.Value, bool) {
	if v == nil || v.Kind != ast.ValList {
		return nil, false
	}
	if !v.IsSpliceMarked() {
		return nil, false
	}
	return v.List, true
}

func (e *Expander) expandOne(v *ast.Value, bindings env, depth int) (*ast.Value, error) {
	if v == nil {
		return nil, nil
	}
	if depth > maxExpansionDepth {
		return nil, diagnostics.New(diagnostics.Macro, v.Pos, "macro expansion exceeded depth limit (%d); likely infinite recursion", maxExpansionDepth)
	}

	switch v.Kind {
	case ast.ValForm:
		return e.expandForm(v, bindings, depth)
	case ast.ValList, ast.ValVector:
		items, err := e.expandValues(v.List, bindings, depth)
		if err != nil {
			return nil, err
		}
		if v.Kind == ast.ValVector {
			return ast.VectorValue(items, v.Pos), nil
		}
		return ast.ListValue(items, v.Pos), nil
	default:
		return v, nil
	}
}

func (e *Expander) expandForm(v *ast.Value, bindings env, depth int) (*ast.Value, error) {
	f := v.Form

	// LVAL of a bound macro parameter substitutes in the bound value
	// verbatim, quoted params included (spec §4.4).
	if e.atoms.Name(f.Operator) == "LVAL" && len(f.Operands) == 1 && f.Operands[0].Kind == ast.ValAtom {
		if bound, ok := bindings[f.Operands[0].Atom]; ok {
			return bound, nil
		}
	}

	if f.Quoted {
		// QUOTE/'x blocks macro expansion of its contents, but FORM and
		// SPLICE still need to run so a quoted template can still build
		// code programmatically (spec §4.4).
		if len(f.Operands) == 1 {
			inner := f.Operands[0]
			rebuilt, err := e.rebuildQuotedLiteral(inner, bindings, depth)
			if err != nil {
				return nil, err
			}
			return rebuilt, nil
		}
		return v, nil
	}

	switch e.atoms.Name(f.Operator) {
	case "FORM":
		return e.expandFormConstructor(f, bindings, depth)
	case "SPLICE":
		if len(f.Operands) != 1 {
			return nil, diagnostics.New(diagnostics.Macro, v.Pos, "SPLICE takes exactly one list operand")
		}
		inner, err := e.expandOne(f.Operands[0], bindings, depth)
		if err != nil {
			return nil, err
		}
		if inner.Kind != ast.ValList && inner.Kind != ast.ValVector {
			return nil, diagnostics.New(diagnostics.Macro, v.Pos, "SPLICE operand must evaluate to a list")
		}
		marked := ast.ListValue(inner.List, inner.Pos)
		marked.MarkSplice()
		return marked, nil
	}

	if macro, ok := e.macros[f.Operator]; ok {
		return e.callMacro(macro, f, bindings, depth)
	}

	operands, err := e.expandValues(f.Operands, bindings, depth)
	if err != nil {
		return nil, err
	}
	return ast.FormValue(&ast.Form{Operator: f.Operator, Operands: operands, Pos: f.Pos}, v.Pos), nil
}

// rebuildQuotedLiteral walks a quoted template looking only for nested
// FORM/SPLICE constructor calls (which still run inside a quote, since
// that's how DEFMAC bodies build code) and LVAL substitutions; any
// other form is left completely untouched.
func (e *Expander) rebuildQuotedLiteral(v *ast.Value, bindings env, depth int) (*ast.Value, error) {
	if v == nil {
		return nil, nil
	}
	switch v.Kind {
	case ast.ValForm:
		name := e.atoms.Name(v.Form.Operator)
		if name == "FORM" {
			return e.expandFormConstructor(v.Form, bindings, depth)
		}
		if name == "SPLICE" {
			return e.expandForm(&ast.Value{Kind: ast.ValForm, Form: v.Form, Pos: v.Pos}, bindings, depth)
		}
		if name == "LVAL" && len(v.Form.Operands) == 1 && v.Form.Operands[0].Kind == ast.ValAtom {
			if bound, ok := bindings[v.Form.Operands[0].Atom]; ok {
				return bound, nil
			}
		}
		var operands []*ast.Value
		for _, o := range v.Form.Operands {
			rebuilt, err := e.rebuildQuotedLiteral(o, bindings, depth)
			if err != nil {
				return nil, err
			}
			operands = append(operands, rebuilt)
		}
		return ast.FormValue(&ast.Form{Operator: v.Form.Operator, Operands: operands, Pos: v.Form.Pos, Quoted: v.Form.Quoted}, v.Pos), nil
	case ast.ValList, ast.ValVector:
		var items []*ast.Value
		for _, o := range v.List {
			rebuilt, err := e.rebuildQuotedLiteral(o, bindings, depth)
			if err != nil {
				return nil, err
			}
			items = append(items, rebuilt)
		}
		if v.Kind == ast.ValVector {
			return ast.VectorValue(items, v.Pos), nil
		}
		return ast.ListValue(items, v.Pos), nil
	default:
		return v, nil
	}
}

// expandFormConstructor implements <FORM op arg…>: builds a new Form
// value at macro-expansion time from already-substituted operands.
func (e *Expander) expandFormConstructor(f *ast.Form, bindings env, depth int) (*ast.Value, error) {
	if len(f.Operands) < 1 {
		return nil, diagnostics.New(diagnostics.Macro, f.Pos, "FORM requires an operator argument")
	}
	opVal, err := e.expandOne(f.Operands[0], bindings, depth)
	if err != nil {
		return nil, err
	}
	if opVal.Kind != ast.ValAtom {
		return nil, diagnostics.New(diagnostics.Macro, f.Pos, "FORM's first argument must be an atom operator")
	}
	operands, err := e.expandValues(f.Operands[1:], bindings, depth)
	if err != nil {
		return nil, err
	}
	return ast.FormValue(&ast.Form{Operator: opVal.Atom, Operands: operands, Pos: f.Pos}, f.Pos), nil
}

// callMacro binds macro's parameters against the call site's operands
// and re-expands the substituted body to a fixed point.
func (e *Expander) callMacro(macro *ast.DefmacDecl, call *ast.Form, outer env, depth int) (*ast.Value, error) {
	if debugMacro {
		fmt.Fprintf(os.Stderr, "macro: expanding call to %s at depth %d\n", e.atoms.Name(macro.Name), depth)
	}
	bindings := env{}
	argIdx := 0
	for _, p := range macro.Params {
		switch p.Kind {
		case ast.ParamTuple:
			var rest []*ast.Value
			for ; argIdx < len(call.Operands); argIdx++ {
				rest = append(rest, call.Operands[argIdx])
			}
			bindings[p.Name] = ast.ListValue(rest, call.Pos)
		case ast.ParamQuoted:
			if argIdx >= len(call.Operands) {
				return nil, diagnostics.New(diagnostics.Macro, call.Pos, "macro %s: missing argument for quoted parameter", e.atoms.Name(macro.Name))
			}
			bindings[p.Name] = call.Operands[argIdx]
			argIdx++
		default: // required, optional, aux
			if argIdx < len(call.Operands) {
				v, err := e.expandOne(call.Operands[argIdx], outer, depth+1)
				if err != nil {
					return nil, err
				}
				bindings[p.Name] = v
				argIdx++
			} else if p.Default != nil {
				v, err := e.expandOne(p.Default, bindings, depth+1)
				if err != nil {
					return nil, err
				}
				bindings[p.Name] = v
			} else {
				bindings[p.Name] = ast.IntValue(0, call.Pos)
			}
		}
	}

	body, err := e.expandValues(macro.Body, bindings, depth+1)
	if err != nil {
		return nil, err
	}
	if len(body) == 1 {
		return e.expandOne(body[0], outer, depth+1)
	}
	// A macro body with more than one top-level form acts as an implicit
	// PROG, matching ZILF's convention for multi-form DEFMAC expansions.
	prog := ast.FormValue(&ast.Form{
		Operator: e.atoms.Intern("PROG"),
		Operands: append([]*ast.Value{ast.ListValue(nil, call.Pos)}, body...),
		Pos:      call.Pos,
	}, call.Pos)
	return e.expandOne(prog, outer, depth+1)
}
