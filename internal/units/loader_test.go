package units

import (
	"os"
	"path/filepath"
	"testing"

	"utms/internal/timeutil"
)

func TestLoadDirRegistersCustomUnit(t *testing.T) {
	dir := t.TempDir()
	content := `(def-unit "Pomodoro" {:names ["pomo" "pomodoro"] :seconds 1500})`
	if err := os.WriteFile(filepath.Join(dir, "custom.hy"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	r, err := NewDefaultRegistry()
	if err != nil {
		t.Fatalf("NewDefaultRegistry: %v", err)
	}
	if err := r.LoadDir(dir); err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	v, ok := r.Lookup("pomo")
	if !ok {
		t.Fatal("expected pomo to resolve")
	}
	if v != timeutil.Length(1500*float64(timeutil.Second)) {
		t.Fatalf("got %v", v)
	}
	if v2, _ := r.Lookup("pomodoros"); v2 != v {
		t.Fatal("expected automatic plural form to resolve to the same value")
	}
}

func TestLoadDirMissingIsNotAnError(t *testing.T) {
	r := NewRegistry()
	if err := r.LoadDir(filepath.Join(t.TempDir(), "missing")); err != nil {
		t.Fatalf("LoadDir on missing dir: %v", err)
	}
}

func TestLoadDirSkipsMalformedUnitForm(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "bad.hy"), []byte(`(def-unit "broken")`), 0o644); err != nil {
		t.Fatal(err)
	}
	r := NewRegistry()
	if err := r.LoadDir(dir); err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if _, ok := r.Lookup("broken"); ok {
		t.Fatal("expected malformed unit form to be skipped")
	}
}
