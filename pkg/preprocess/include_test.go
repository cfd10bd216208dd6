package preprocess

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestReadFileSplicesInsertFile(t *testing.T) {
	dir := t.TempDir()
	mustWrite(t, filepath.Join(dir, "common.zil"), `<GLOBAL SCORE 0>`)
	mustWrite(t, filepath.Join(dir, "main.zil"), `<INSERT-FILE "common"> <ROUTINE GO () <QUIT>>`)

	inc := NewIncluder(dir)
	out, err := inc.ReadFile(filepath.Join(dir, "main.zil"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(out, "<GLOBAL SCORE 0>") {
		t.Errorf("output %q should contain the spliced file's contents", out)
	}
}

func TestReadFileRejectsCycle(t *testing.T) {
	dir := t.TempDir()
	mustWrite(t, filepath.Join(dir, "a.zil"), `<INSERT-FILE "b">`)
	mustWrite(t, filepath.Join(dir, "b.zil"), `<INSERT-FILE "a">`)

	inc := NewIncluder(dir)
	_, err := inc.ReadFile(filepath.Join(dir, "a.zil"))
	if err == nil {
		t.Fatal("expected a circular-inclusion error")
	}
	if !strings.Contains(err.Error(), "circular") {
		t.Errorf("error = %q, want it to mention the cycle", err.Error())
	}
}

func TestReadFileMissingExtensionDefaultsToZil(t *testing.T) {
	dir := t.TempDir()
	mustWrite(t, filepath.Join(dir, "parser.zil"), `<SYNTAX TAKE OBJECT = V-TAKE>`)
	mustWrite(t, filepath.Join(dir, "main.zil"), `<INSERT-FILE "parser">`)

	inc := NewIncluder(dir)
	out, err := inc.ReadFile(filepath.Join(dir, "main.zil"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(out, "V-TAKE") {
		t.Errorf("output %q should contain the extension-less include's contents", out)
	}
}

func TestReadFileNotFound(t *testing.T) {
	dir := t.TempDir()
	inc := NewIncluder(dir)
	if _, err := inc.ReadFile(filepath.Join(dir, "nope.zil")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func mustWrite(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
