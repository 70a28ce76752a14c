package variables

import (
	"os"
	"path/filepath"
	"testing"

	"utms/internal/eval"
)

func writeVariablesFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "variables.hy")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFileStaticValues(t *testing.T) {
	path := writeVariablesFile(t, `
(def-variable "home_timezone" "America/New_York")
(def-variable "daily-goal-hours" 6)
`)
	s := New()
	if err := s.LoadFile(path, eval.New(), nil); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	v, ok := s.Get("home_timezone")
	if !ok || v != "America/New_York" {
		t.Fatalf("got %v, ok=%v", v, ok)
	}
	v, ok = s.Get("daily-goal-hours")
	if !ok || v != float64(6) {
		t.Fatalf("got %v, ok=%v", v, ok)
	}
}

func TestGlobalsExposesBothSpellings(t *testing.T) {
	path := writeVariablesFile(t, `(def-variable "daily-goal-hours" 6)`)
	s := New()
	if err := s.LoadFile(path, eval.New(), nil); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	g := s.Globals()
	if g["daily-goal-hours"] != float64(6) || g["daily_goal_hours"] != float64(6) {
		t.Fatalf("got %v", g)
	}
}

func TestLoadFileResolvesDynamicVariableReferencingEarlierOne(t *testing.T) {
	path := writeVariablesFile(t, `
(def-variable "base-hours" 4)
(def-variable "double-hours" '(multiply base_hours 2))
`)
	ev := eval.New()
	builtins := map[string]eval.Builtin{
		"multiply": func(args []any) (any, error) {
			a, _ := args[0].(float64)
			b, _ := args[1].(float64)
			return a * b, nil
		},
	}
	s := New()
	if err := s.LoadFile(path, ev, builtins); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	v, ok := s.Get("double-hours")
	if !ok || v != float64(8) {
		t.Fatalf("got %v, ok=%v, want 8", v, ok)
	}
}

func TestLoadFileMissingIsNotAnError(t *testing.T) {
	s := New()
	if err := s.LoadFile(filepath.Join(t.TempDir(), "missing.hy"), eval.New(), nil); err != nil {
		t.Fatalf("LoadFile on missing path: %v", err)
	}
}

func TestLoadFileSkipsMalformedFormAndKeepsRest(t *testing.T) {
	path := writeVariablesFile(t, `
(def-variable "bad-arity" 1 2)
(def-variable "good" "value")
`)
	s := New()
	if err := s.LoadFile(path, eval.New(), nil); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if _, ok := s.Get("bad-arity"); ok {
		t.Fatal("expected malformed form to be skipped")
	}
	v, ok := s.Get("good")
	if !ok || v != "value" {
		t.Fatalf("got %v, ok=%v", v, ok)
	}
}
