// zilrepl is an interactive shell for trying out ZIL compile-time
// expressions and compiling whole files without re-invoking zilc for
// every edit-compile cycle.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/zil-lang/zilc/pkg/assemble"
	"github.com/zil-lang/zilc/pkg/ast"
	"github.com/zil-lang/zilc/pkg/codegen"
	"github.com/zil-lang/zilc/pkg/ctie"
	"github.com/zil-lang/zilc/pkg/dictionary"
	"github.com/zil-lang/zilc/pkg/diagnostics"
	"github.com/zil-lang/zilc/pkg/ir"
	"github.com/zil-lang/zilc/pkg/lexer"
	"github.com/zil-lang/zilc/pkg/macro"
	"github.com/zil-lang/zilc/pkg/parser"
	"github.com/zil-lang/zilc/pkg/preprocess"
	"github.com/zil-lang/zilc/pkg/symtab"
	"github.com/zil-lang/zilc/pkg/ztext"
)

type repl struct {
	reader  *bufio.Reader
	ctie    *ctie.Evaluator
	history []string
}

func main() {
	r := &repl{
		reader: bufio.NewReader(os.Stdin),
		ctie:   ctie.New(map[string]bool{}, map[string]int{}),
	}
	defer r.ctie.Close()
	r.run()
}

func (r *repl) run() {
	fmt.Println("zilc interactive shell")
	fmt.Println("commands: :load <file>  :compile <file> [out]  :eval <zil-expr>  :exit")
	if term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Println()
	}

	for {
		fmt.Print("zil> ")
		line, err := r.reader.ReadString('\n')
		if err != nil {
			fmt.Println()
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		r.history = append(r.history, line)

		switch {
		case line == ":exit" || line == ":quit":
			return
		case strings.HasPrefix(line, ":load "):
			r.load(strings.TrimSpace(strings.TrimPrefix(line, ":load")))
		case strings.HasPrefix(line, ":compile "):
			r.compile(strings.Fields(strings.TrimPrefix(line, ":compile ")))
		case strings.HasPrefix(line, ":eval "):
			r.eval(strings.TrimSpace(strings.TrimPrefix(line, ":eval")))
		default:
			r.eval(line)
		}
	}
}

func (r *repl) load(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	fmt.Printf("loaded %s (%d bytes)\n", path, len(data))
}

func (r *repl) eval(expr string) {
	v, err := r.ctie.EvalInt(expr)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	fmt.Printf("=> %d\n", v)
}

func (r *repl) compile(args []string) {
	if len(args) == 0 {
		fmt.Println("usage: :compile <file> [output]")
		return
	}
	src := args[0]
	out := strings.TrimSuffix(src, ".zil") + ".z3"
	if len(args) > 1 {
		out = args[1]
	}

	img, err := compileFile(src)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	if err := os.WriteFile(out, img, 0o644); err != nil {
		fmt.Printf("error writing %s: %v\n", out, err)
		return
	}
	fmt.Printf("wrote %s (%d bytes)\n", out, len(img))
}

// compileFile runs the front-end-through-assembler pipeline zilc uses,
// minus its flag handling and with an empty dictionary (no VOCAB words
// are collected), so the shell can re-compile a file on every :compile
// without shelling out.
func compileFile(src string) ([]byte, error) {
	inc := preprocess.NewIncluder(".")
	raw, err := inc.ReadFile(src)
	if err != nil {
		return nil, err
	}

	proc := preprocess.NewProcessor(3)
	text, err := proc.Run(raw)
	if err != nil {
		return nil, err
	}

	toks, err := lexer.New(src, text).Tokenize()
	if err != nil {
		return nil, err
	}

	atoms := ast.NewAtomTable()
	file, err := parser.New(atoms, src, toks).ParseFile()
	if err != nil {
		return nil, err
	}

	ctieEnv := ctie.New(map[string]bool{}, map[string]int{})
	defer ctieEnv.Close()
	file, err = macro.New(atoms, ctieEnv).ExpandFile(file)
	if err != nil {
		return nil, err
	}

	targetVersion := 3
	for _, d := range file.Declarations {
		if v, ok := d.(*ast.VersionDecl); ok {
			targetVersion = v.Version
		}
	}

	syms := symtab.New(atoms, targetVersion)
	if err := syms.Build(file); err != nil {
		return nil, err
	}

	lowerer := codegen.NewLowerer(atoms, syms, targetVersion)
	var routines []*ir.Routine
	for _, d := range file.Declarations {
		rd, ok := d.(*ast.RoutineDecl)
		if !ok {
			continue
		}
		rt, err := lowerer.LowerRoutine(rd)
		if err != nil {
			return nil, err
		}
		routines = append(routines, rt)
	}

	textEnc := ztext.New(targetVersion, nil, ztext.Flags{})
	dictTable, err := dictionary.NewBuilder(targetVersion, textEnc, false).Build(nil)
	if err != nil {
		return nil, err
	}

	asm := assemble.NewAssembler(atoms, syms, textEnc, diagnostics.NewSink(100))
	result, err := asm.Assemble(file, routines, dictTable)
	if err != nil {
		return nil, err
	}
	return result.Image, nil
}
