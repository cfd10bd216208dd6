// Package clog is the compiler's debug-gated trace logger: every call
// is a no-op unless the caller turned debugging on, so hot paths (the
// lexer, the macro expander's recursive descent) can log liberally
// without a flag check at every call site.
//
// Grounded on the teacher's main.go convention of gating diagnostic
// prints behind `if debug { fmt.Printf(...) }` / `os.Getenv("DEBUG")`
// checks scattered through cmd/minzc/main.go; collected here into one
// small logger so every package shares the same on/off switch and
// prefix style instead of repeating the check.
package clog

import (
	"fmt"
	"os"
)

var enabled = os.Getenv("ZILC_DEBUG") != ""

// SetEnabled overrides the ZILC_DEBUG environment default, used by
// cmd/zilc's -d/--debug flag.
func SetEnabled(v bool) { enabled = v }

// Enabled reports whether debug tracing is currently on.
func Enabled() bool { return enabled }

// Printf writes a debug-prefixed line to stderr, only when enabled.
func Printf(format string, args ...interface{}) {
	if !enabled {
		return
	}
	fmt.Fprintf(os.Stderr, "DEBUG: "+format+"\n", args...)
}

// Stage announces entry into a compiler pipeline stage, useful for
// tracing where a large source file is spending its time.
func Stage(name string) {
	Printf("stage: %s", name)
}
