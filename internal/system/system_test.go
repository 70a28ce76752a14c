package system

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"utms/internal/config"
)

const taskSchema = `
(def-entity "TASK" entity-type
  (description {:type "string" :required true})
  (priority    {:type "enum" :enum_choices ["low" "med" "high"] :default_value "med"}))
`

func newTestSystem(t *testing.T) *System {
	t.Helper()
	root := t.TempDir()
	dirs := []string{
		filepath.Join(root, "users", "default", "entities"),
		filepath.Join(root, "users", "default", "tasks"),
		filepath.Join(root, "global", "patterns"),
		filepath.Join(root, "global", "units"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(root, "users", "default", "entities", "task.hy"), []byte(taskSchema), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := &config.Config{
		ConfigRoot: root,
		CacheRoot:  filepath.Join(root, "cache"),
		ActiveUser: "default",
	}
	sys, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { sys.Close() })
	return sys
}

func TestNewLoadsSchemaAndWiresHooks(t *testing.T) {
	sys := newTestSystem(t)
	if _, ok := sys.Store.EntityType("task"); !ok {
		t.Fatal("expected the task entity type to be registered")
	}
}

func TestCreateEntityThenStartAndEndOccurrence(t *testing.T) {
	sys := newTestSystem(t)
	if err := sys.CreateEntity("task", "default", "write-report", map[string]any{
		"description": "Write the report",
	}); err != nil {
		t.Fatalf("CreateEntity: %v", err)
	}
	e, ok := sys.Store.Get("task", "default", "write-report")
	if !ok {
		t.Fatal("expected entity to be registered")
	}
	if v, _ := e.GetAttr("priority"); v != "med" {
		t.Fatalf("expected default priority, got %v", v)
	}

	if err := sys.StartOccurrence("task", "default", "write-report"); err != nil {
		t.Fatalf("StartOccurrence: %v", err)
	}
	if err := sys.StartOccurrence("task", "default", "write-report"); err == nil {
		t.Fatal("expected Conflict starting an already-active entity")
	}
	if err := sys.EndOccurrence("task", "default", "write-report", "done"); err != nil {
		t.Fatalf("EndOccurrence: %v", err)
	}
}

func TestCreateEntityMissingRequiredAttributeFails(t *testing.T) {
	sys := newTestSystem(t)
	if err := sys.CreateEntity("task", "default", "incomplete", map[string]any{}); err == nil {
		t.Fatal("expected missing required attribute to fail")
	}
}

func TestUpdateEntityAttributePersistsToCategoryFile(t *testing.T) {
	sys := newTestSystem(t)
	if err := sys.CreateEntity("task", "default", "write-report", map[string]any{
		"description": "Write the report",
	}); err != nil {
		t.Fatalf("CreateEntity: %v", err)
	}
	if err := sys.UpdateEntityAttribute("task", "default", "write-report", "priority", "high"); err != nil {
		t.Fatalf("UpdateEntityAttribute: %v", err)
	}
	e, _ := sys.Store.Get("task", "default", "write-report")
	if v, _ := e.GetAttr("priority"); v != "high" {
		t.Fatalf("got %v", v)
	}

	data, err := os.ReadFile(e.SourceFile)
	if err != nil {
		t.Fatalf("reading category file: %v", err)
	}
	if !strings.Contains(string(data), "high") {
		t.Fatalf("expected persisted file to contain the updated priority, got %q", data)
	}
}

func TestLogMetricWithoutSinkIsANoop(t *testing.T) {
	sys := newTestSystem(t)
	sys.Metrics = nil
	if err := sys.LogMetric("focus", "minutes", 10); err != nil {
		t.Fatalf("LogMetric: %v", err)
	}
}

func TestEntityRefUnknownEntityIsNotFound(t *testing.T) {
	sys := newTestSystem(t)
	if _, err := sys.EntityRef("task", "default", "missing"); err == nil {
		t.Fatal("expected NotFound for an unregistered entity")
	}
}
