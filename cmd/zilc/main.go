package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zil-lang/zilc/internal/clog"
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
	"github.com/zil-lang/zilc/pkg/version"
	"github.com/zil-lang/zilc/pkg/ztext"
)

var (
	outputFile  string
	debug       bool
	dumpAST     bool
	versionFlag int
	newParser   bool
	showVersion bool
)

var rootCmd = &cobra.Command{
	Use:   "zilc [source file]",
	Short: "ZILC - ZIL to Z-machine story file compiler " + version.GetVersion(),
	Long: `zilc compiles ZIL (Zork Implementation Language) source into a
Z-machine story file (.z3/.z5/.z8), the same binary format the classic
Infocom interpreter runs.

EXAMPLES:
  zilc game.zil                  # compile to game.z3
  zilc game.zil -o game.z5 -V 5  # target Z-machine version 5
  zilc game.zil -d --dump-ast    # trace the front-end stages, then dump the AST
`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if showVersion {
			fmt.Println(version.GetVersion())
			return
		}
		if len(args) == 0 {
			cmd.Help()
			os.Exit(0)
		}
		if debug {
			clog.SetEnabled(true)
		}
		if err := compile(args[0]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.Flags().StringVarP(&outputFile, "output", "o", "", "output story file (default: input.z<version>)")
	rootCmd.Flags().BoolVarP(&debug, "debug", "d", false, "trace each compiler pipeline stage")
	rootCmd.Flags().BoolVar(&dumpAST, "dump-ast", false, "dump the parsed, macro-expanded AST instead of compiling")
	rootCmd.Flags().IntVarP(&versionFlag, "version-target", "V", 0, "override the VERSION declaration (3-8)")
	rootCmd.Flags().BoolVar(&newParser, "new-parser", false, "build NEW-PARSER? VWORD dictionary tables")
	rootCmd.Flags().BoolVarP(&showVersion, "version", "v", false, "show zilc's own version")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func compile(sourceFile string) error {
	clog.Stage("preprocess")
	inc := preprocess.NewIncluder(filepath.Dir(sourceFile))
	raw, err := inc.ReadFile(sourceFile)
	if err != nil {
		return fmt.Errorf("reading %s: %w", sourceFile, err)
	}

	proc := preprocess.NewProcessor(3) // re-run once the real VERSION is known below
	text, err := proc.Run(raw)
	if err != nil {
		return fmt.Errorf("preprocess error: %w", err)
	}

	clog.Stage("lex")
	toks, err := lexer.New(sourceFile, text).Tokenize()
	if err != nil {
		return err
	}

	clog.Stage("parse")
	atoms := ast.NewAtomTable()
	astFile, err := parser.New(atoms, sourceFile, toks).ParseFile()
	if err != nil {
		return err
	}

	clog.Stage("macro-expand")
	ctieEnv := ctie.New(map[string]bool{}, map[string]int{})
	defer ctieEnv.Close()
	expander := macro.New(atoms, ctieEnv)
	astFile, err = expander.ExpandFile(astFile)
	if err != nil {
		return err
	}

	if dumpAST {
		dumpDeclarations(astFile)
		return nil
	}

	targetVersion := detectVersion(astFile)
	if versionFlag != 0 {
		targetVersion = versionFlag
	}
	if targetVersion == 0 {
		targetVersion = 3
	}
	clog.Printf("target Z-machine version %d", targetVersion)

	clog.Stage("symtab")
	syms := symtab.New(atoms, targetVersion)
	if err := syms.Build(astFile); err != nil {
		return err
	}

	clog.Stage("codegen")
	lowerer := codegen.NewLowerer(atoms, syms, targetVersion)
	var routines []*ir.Routine
	for _, d := range astFile.Declarations {
		rd, ok := d.(*ast.RoutineDecl)
		if !ok {
			continue
		}
		r, err := lowerer.LowerRoutine(rd)
		if err != nil {
			return err
		}
		routines = append(routines, r)
	}

	clog.Stage("dictionary")
	textEnc := ztext.New(targetVersion, nil, ztext.Flags{})
	dictBuilder := dictionary.NewBuilder(targetVersion, textEnc, newParser)
	dictTable, err := dictBuilder.Build(collectVocabulary(astFile, atoms))
	if err != nil {
		return err
	}

	clog.Stage("assemble")
	warn := diagnostics.NewSink(100)
	asm := assemble.NewAssembler(atoms, syms, textEnc, warn)
	result, err := asm.Assemble(astFile, routines, dictTable)
	if err != nil {
		return err
	}
	for _, w := range warn.Warnings() {
		fmt.Fprintln(os.Stderr, w.String())
	}

	out := outputFile
	if out == "" {
		out = defaultOutputName(sourceFile, targetVersion)
	}
	if err := os.WriteFile(out, result.Image, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", out, err)
	}
	if debug {
		fmt.Printf("wrote %s (%d bytes)\n", out, len(result.Image))
	}
	return nil
}

// detectVersion scans for a VERSION declaration; ZIL convention allows
// at most one per program, and the first one found wins.
func detectVersion(file *ast.File) int {
	for _, d := range file.Declarations {
		if v, ok := d.(*ast.VersionDecl); ok {
			return v.Version
		}
	}
	return 0
}

func defaultOutputName(sourceFile string, version int) string {
	base := strings.TrimSuffix(filepath.Base(sourceFile), filepath.Ext(sourceFile))
	return fmt.Sprintf("%s.z%d", base, version)
}

func dumpDeclarations(file *ast.File) {
	for i, d := range file.Declarations {
		fmt.Printf("%d: %T\n", i, d)
	}
}

// collectVocabulary gathers every SYNONYM/ADJECTIVE/PREPOSITION/BUZZ
// word, every SYNTAX verb, and every DIRECTIONS name into the flat
// dictionary.Word list the dictionary builder expects (spec §4.7).
func collectVocabulary(file *ast.File, atoms *ast.AtomTable) []dictionary.Word {
	var words []dictionary.Word
	verbID := 0
	prepValue := 0
	adjValue := 0
	seenVerb := map[ast.Atom]bool{}

	for _, d := range file.Declarations {
		switch v := d.(type) {
		case *ast.VocabDecl:
			for _, w := range v.Words {
				text := strings.ToLower(atoms.Name(w))
				switch v.Kind {
				case ast.VocabPreposition:
					prepValue++
					words = append(words, dictionary.Word{Text: text, Atom: w, Flags: dictionary.FlagPrep, PrepValue: prepValue})
				case ast.VocabAdjective:
					adjValue++
					words = append(words, dictionary.Word{Text: text, Atom: w, Flags: dictionary.FlagAdjective, AdjValue: adjValue})
				case ast.VocabBuzz:
					words = append(words, dictionary.Word{Text: text, Atom: w, Flags: dictionary.FlagBuzz})
				default: // VocabSynonym
					words = append(words, dictionary.Word{Text: text, Atom: w})
				}
			}
		case *ast.SyntaxDecl:
			if seenVerb[v.Verb] {
				continue
			}
			seenVerb[v.Verb] = true
			verbID++
			words = append(words, dictionary.Word{
				Text: strings.ToLower(atoms.Name(v.Verb)), Atom: v.Verb,
				Flags: dictionary.FlagVerb, VerbID: verbID,
			})
		case *ast.DirectionsDecl:
			for _, dir := range v.Names {
				words = append(words, dictionary.Word{
					Text: strings.ToLower(atoms.Name(dir)), Atom: dir,
					Flags: dictionary.FlagDirection,
				})
			}
		}
	}
	return words
}
