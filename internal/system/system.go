// Package system wires every UTMS component into one value constructed at
// process start and passed explicitly: no ambient package-level singletons.
package system

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"utms/internal/config"
	"utms/internal/entitystore"
	"utms/internal/eval"
	"utms/internal/httpapi"
	"utms/internal/logger"
	"utms/internal/metrics"
	"utms/internal/occurrence"
	"utms/internal/patternstore"
	"utms/internal/scheduler"
	"utms/internal/typedvalue"
	"utms/internal/units"
	"utms/internal/utmserrors"
	"utms/internal/variables"
)

// System owns the entity store, pattern store, variable store, evaluator,
// occurrence manager, scheduler agent, metrics sink, and ambient HTTP
// surface for one UTMS process.
type System struct {
	Config    *config.Config
	Units     *units.Registry
	Store     *entitystore.Store
	Patterns  *patternstore.Store
	Variables *variables.Store
	Eval      *eval.Evaluator
	Occ       *occurrence.Manager
	Agent     *scheduler.Agent
	Metrics   *metrics.Sink
	HTTP      *httpapi.Server

	builtins map[string]eval.Builtin
}

// New constructs and loads a System from cfg: schemas, complex types,
// entity instances, patterns, and variables, then rebuilds the claim map
// and wires the scheduler agent and ambient HTTP surface.
func New(cfg *config.Config) (*System, error) {
	reg, err := units.NewDefaultRegistry()
	if err != nil {
		return nil, fmt.Errorf("system: seeding unit registry: %w", err)
	}
	if err := reg.LoadDir(filepath.Join(cfg.GlobalRoot(), "units")); err != nil {
		return nil, fmt.Errorf("system: loading unit overrides: %w", err)
	}

	store := entitystore.New()
	if err := store.LoadSchemas(filepath.Join(cfg.UserRoot(), "entities")); err != nil {
		return nil, fmt.Errorf("system: loading entity schemas: %w", err)
	}
	if err := store.LoadSchemas(filepath.Join(cfg.UserRoot(), "types")); err != nil {
		return nil, fmt.Errorf("system: loading complex types: %w", err)
	}

	patterns := patternstore.New()
	if err := patterns.LoadDir(filepath.Join(cfg.GlobalRoot(), "patterns"), reg); err != nil {
		return nil, fmt.Errorf("system: loading global patterns: %w", err)
	}
	if err := patterns.LoadDir(filepath.Join(cfg.UserRoot(), "patterns"), reg); err != nil {
		return nil, fmt.Errorf("system: loading user patterns: %w", err)
	}

	ev := eval.New()
	occ := occurrence.New(store, ev)

	var sink *metrics.Sink
	if cfg.MetricsDBPath != "" {
		s, err := metrics.Open(cfg.MetricsDBPath)
		if err != nil {
			logger.Error("system: opening metrics sink: %v", err)
		} else {
			sink = s
		}
	}

	sys := &System{
		Config: cfg, Units: reg, Store: store, Patterns: patterns,
		Eval: ev, Occ: occ, Metrics: sink,
	}
	sys.builtins = eval.DefaultBuiltins(sys)
	occ.SetBindings(sys.builtins, func() map[string]any { return sys.Variables.Globals() })

	vars := variables.New()
	if err := vars.LoadFile(filepath.Join(cfg.UserRoot(), "variables.hy"), ev, sys.builtins); err != nil {
		return nil, fmt.Errorf("system: loading variables: %w", err)
	}
	sys.Variables = vars

	sys.loadCategoryFiles()
	occ.Rebuild()

	sys.Agent = scheduler.New(store, patterns, ev, sys.builtins, vars.Globals, sys, scheduler.Config{
		TickInterval: cfg.TickInterval,
		Horizon:      cfg.Horizon,
	})
	sys.HTTP = httpapi.New(store, sink)

	return sys, nil
}

func (s *System) loadCategoryFiles() {
	for _, et := range allTypes(s.Store, s.Config.UserRoot()) {
		dir := filepath.Join(s.Config.UserRoot(), et.Key+"s")
		if err := s.Store.LoadCategoryDir(et.Key, dir, s.Config.CacheRoot); err != nil {
			logger.Error("system: loading category dir for %s: %v", et.Key, err)
		}
	}
}

// allTypes returns every registered entity type that has a category
// directory (<type_key>s/) under userRoot.
func allTypes(store *entitystore.Store, userRoot string) []typedvalue.EntityType {
	entries, err := os.ReadDir(userRoot)
	if err != nil {
		return nil
	}
	var out []typedvalue.EntityType
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasSuffix(entry.Name(), "s") {
			continue
		}
		if et, ok := store.EntityType(strings.TrimSuffix(entry.Name(), "s")); ok {
			out = append(out, et)
		}
	}
	return out
}

// RecordFire implements scheduler.FireRecorder, delegating to the metrics
// sink's fire-audit log when one is configured.
func (s *System) RecordFire(entityIdentifier, attribute string, firedAt, cursorValue int64, hookErr error) {
	if s.Metrics == nil {
		return
	}
	s.Metrics.RecordFire(entityIdentifier, attribute, firedAt, cursorValue, hookErr)
}

// Close releases the metrics sink.
func (s *System) Close() error {
	if s.Metrics != nil {
		return s.Metrics.Close()
	}
	return nil
}

// --- eval.Hooks implementation -------------------------------------------

func splitRef(entityType, category, name string) string {
	return strings.ToLower(entityType) + ":" + strings.ToLower(category) + ":" + strings.ToLower(name)
}

// EntityRef resolves a live entity, exposed to the evaluator as a field-
// addressable Self-conforming record.
func (s *System) EntityRef(entityType, category, name string) (any, error) {
	e, ok := s.Store.Get(entityType, category, name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", utmserrors.ErrNotFound, splitRef(entityType, category, name))
	}
	return e, nil
}

// StartOccurrence dispatches into the occurrence manager.
func (s *System) StartOccurrence(entityType, category, name string) error {
	e, ok := s.Store.Get(entityType, category, name)
	if !ok {
		return fmt.Errorf("%w: %s", utmserrors.ErrNotFound, splitRef(entityType, category, name))
	}
	if err := s.Occ.StartOccurrence(e); err != nil {
		return err
	}
	return s.saveIfFileBacked(e)
}

// EndOccurrence dispatches into the occurrence manager.
func (s *System) EndOccurrence(entityType, category, name, notes string) error {
	e, ok := s.Store.Get(entityType, category, name)
	if !ok {
		return fmt.Errorf("%w: %s", utmserrors.ErrNotFound, splitRef(entityType, category, name))
	}
	if err := s.Occ.EndOccurrence(e, notes, nil); err != nil {
		return err
	}
	return s.saveIfFileBacked(e)
}

// CreateEntity constructs and registers a new entity from its declared
// schema, coercing attrs through typedvalue.Construct.
func (s *System) CreateEntity(entityType, category, name string, attrs map[string]any) error {
	et, ok := s.Store.EntityType(entityType)
	if !ok {
		return fmt.Errorf("%w: entity type %q", utmserrors.ErrNotFound, entityType)
	}
	sourceFile := filepath.Join(s.Config.UserRoot(), et.Key+"s", category+".hy")
	e := &entitystore.Entity{
		Name: name, TypeKey: et.Key, Category: category,
		Attributes: make(map[string]typedvalue.TypedValue, len(attrs)),
		SourceFile: sourceFile,
	}
	for attrName, raw := range attrs {
		canonical := entitystore.CanonicalAttrName(attrName)
		schema, known := et.Attributes[canonical]
		var tv typedvalue.TypedValue
		var err error
		if known {
			tv, err = typedvalue.Construct(raw, schema, false, "")
		} else {
			tv, err = typedvalue.New(raw, typedvalue.InferType(raw))
		}
		if err != nil {
			return fmt.Errorf("%w: %s.%s: %v", utmserrors.ErrValidation, name, attrName, err)
		}
		e.Attributes[canonical] = tv
	}
	for attrName, schema := range et.Attributes {
		if _, present := e.Attributes[attrName]; present {
			continue
		}
		if schema.Required && schema.DefaultValue == nil {
			return fmt.Errorf("%w: %s missing required attribute %q", utmserrors.ErrValidation, name, attrName)
		}
		tv, err := typedvalue.Construct(schema.DefaultValue, schema, false, "")
		if err != nil {
			return fmt.Errorf("%w: %s.%s default: %v", utmserrors.ErrValidation, name, attrName, err)
		}
		e.Attributes[attrName] = tv
	}
	s.Store.Put(e)
	return s.Store.SaveCategoryFile(sourceFile)
}

// UpdateEntityAttribute dispatches into the store, then persists the
// containing category file.
func (s *System) UpdateEntityAttribute(entityType, category, name, attr string, value any) error {
	if err := s.Store.UpdateAttribute(entityType, category, name, attr, value, false, ""); err != nil {
		return err
	}
	e, ok := s.Store.Get(entityType, category, name)
	if !ok {
		return fmt.Errorf("%w: %s", utmserrors.ErrNotFound, splitRef(entityType, category, name))
	}
	return s.saveIfFileBacked(e)
}

func (s *System) saveIfFileBacked(e *entitystore.Entity) error {
	if e.SourceFile == "" {
		return nil
	}
	return s.Store.SaveCategoryFile(e.SourceFile)
}

// LogMetric dispatches into the metrics sink, if configured.
func (s *System) LogMetric(category, name string, value float64) error {
	if s.Metrics == nil {
		return nil
	}
	return s.Metrics.LogMetric(category, name, value)
}

// Notify, Speak, and ExecuteOn have no real desktop/voice/remote-executor
// integration in this core; they log the request so hook authors can see it fired
// and, for ExecuteOn, actually run the command locally.
func (s *System) Notify(executor, msg, title string) error {
	logger.Info("notify[%s]: %s: %s", executor, title, msg)
	return nil
}

func (s *System) Speak(executor, msg string) error {
	logger.Info("speak[%s]: %s", executor, msg)
	return nil
}

func (s *System) ExecuteOn(executor, cmd string) (string, error) {
	logger.Info("execute-on[%s]: %s", executor, cmd)
	out, err := exec.Command("sh", "-c", cmd).CombinedOutput()
	return string(out), err
}
