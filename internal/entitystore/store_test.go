package entitystore

import (
	"os"
	"path/filepath"
	"testing"

	"utms/internal/sexpr"
	"utms/internal/typedvalue"
)

const taskSchema = `
(def-entity "TASK" entity-type
  (description {:type "string" :required true})
  (priority    {:type "enum" :enum_choices ["low" "med" "high"] :default_value "med"}))
`

const taskCategory = `
(def-task "write-spec"
  (description "Write the design spec")
  (priority "high")
  (on_deadline_hook '(notify "me" "due now")))
`

func setupStore(t *testing.T) (*Store, string, string) {
	t.Helper()
	dir := t.TempDir()
	schemaDir := filepath.Join(dir, "types")
	categoryDir := filepath.Join(dir, "tasks")
	cacheDir := filepath.Join(dir, "cache")
	if err := os.MkdirAll(schemaDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(categoryDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(schemaDir, "task.hy"), []byte(taskSchema), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(categoryDir, "default.hy"), []byte(taskCategory), 0o644); err != nil {
		t.Fatal(err)
	}

	s := New()
	if err := s.LoadSchemas(schemaDir); err != nil {
		t.Fatalf("LoadSchemas: %v", err)
	}
	if err := s.LoadCategoryDir("task", categoryDir, cacheDir); err != nil {
		t.Fatalf("LoadCategoryDir: %v", err)
	}
	return s, categoryDir, cacheDir
}

func TestLoadCategoryParsesEntityAndAppliesSchema(t *testing.T) {
	s, _, _ := setupStore(t)
	e, ok := s.Get("task", "default", "write-spec")
	if !ok {
		t.Fatal("expected entity to be loaded")
	}
	desc, ok := e.GetAttr("description")
	if !ok || desc != "Write the design spec" {
		t.Fatalf("got %v, ok=%v", desc, ok)
	}
	pr, ok := e.GetAttr("priority")
	if !ok || pr != "high" {
		t.Fatalf("got %v, ok=%v", pr, ok)
	}
}

func TestLoadCategoryPreservesDynamicHookSource(t *testing.T) {
	s, _, _ := setupStore(t)
	e, ok := s.Get("task", "default", "write-spec")
	if !ok {
		t.Fatal("expected entity")
	}
	tv, ok := e.Attributes["on-deadline-hook"]
	if !ok {
		t.Fatal("expected on-deadline-hook attribute")
	}
	if !tv.IsDynamic {
		t.Fatal("expected hook to be dynamic")
	}
	if tv.OriginalSource != `(notify "me" "due now")` {
		t.Fatalf("got %q", tv.OriginalSource)
	}
}

func TestLoadCategoryUsesCacheOnSecondLoad(t *testing.T) {
	s1, categoryDir, cacheDir := setupStore(t)
	_ = s1

	path, err := CachePath(cacheDir, filepath.Join(categoryDir, "default.hy"))
	if err != nil {
		t.Fatalf("CachePath: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected cache file to exist: %v", err)
	}

	s2 := New()
	if err := s2.LoadSchemas(filepath.Join(filepath.Dir(categoryDir), "types")); err != nil {
		t.Fatalf("LoadSchemas: %v", err)
	}
	if err := s2.LoadCategoryDir("task", categoryDir, cacheDir); err != nil {
		t.Fatalf("LoadCategoryDir: %v", err)
	}
	e, ok := s2.Get("task", "default", "write-spec")
	if !ok {
		t.Fatal("expected cached entity to load")
	}
	if v, _ := e.GetAttr("priority"); v != "high" {
		t.Fatalf("got %v", v)
	}
}

func TestUpdateAttributeRejectsUnknownEntity(t *testing.T) {
	s, _, _ := setupStore(t)
	err := s.UpdateAttribute("task", "default", "does-not-exist", "priority", "low", false, "")
	if err == nil {
		t.Fatal("expected error for unknown entity")
	}
}

func TestUpdateAttributeAppliesSchemaCoercion(t *testing.T) {
	s, _, _ := setupStore(t)
	if err := s.UpdateAttribute("task", "default", "write-spec", "priority", "bogus", false, ""); err != nil {
		t.Fatalf("UpdateAttribute: %v", err)
	}
	e, _ := s.Get("task", "default", "write-spec")
	v, _ := e.GetAttr("priority")
	if v != "low" {
		t.Fatalf("expected fallback to first enum choice, got %v", v)
	}
}

func TestSaveCategoryFileRoundTrips(t *testing.T) {
	s, categoryDir, _ := setupStore(t)
	path := filepath.Join(categoryDir, "default.hy")
	if err := s.SaveCategoryFile(path); err != nil {
		t.Fatalf("SaveCategoryFile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected non-empty rewritten file")
	}

	forms, err := sexpr.ReadAll(string(data))
	if err != nil {
		t.Fatalf("parsing rewritten file: %v", err)
	}
	et := typedvalue.EntityType{Key: "task", Attributes: map[string]typedvalue.AttributeSchema{
		"description": {DeclaredType: typedvalue.String},
		"priority":    {DeclaredType: typedvalue.String},
	}}
	entities, err := ParseEntityForms(forms, et, "default", path)
	if err != nil {
		t.Fatalf("ParseEntityForms: %v", err)
	}
	if len(entities) != 1 || entities[0].Name != "write-spec" {
		t.Fatalf("unexpected round-tripped entities: %+v", entities)
	}
}
