// Package entitystore implements the file-backed entity store: schema
// loading, category-file parsing with an mtime-keyed binary cache, a typed
// attribute API, and whole-file-replacement persistence.
package entitystore

import (
	"fmt"
	"strings"
	"sync"

	"utms/internal/typedvalue"
	"utms/internal/utmserrors"
)

// Entity is one record of a given type within a category.
// Identity is the triple (TypeKey, Category, Name).
type Entity struct {
	Name       string
	TypeKey    string
	Category   string
	Attributes map[string]typedvalue.TypedValue
	SourceFile string
}

// Identifier renders a human-readable "type/category/name" label, used in
// log lines and as the Self.Identifier() the evaluator sees.
func (e *Entity) Identifier() string {
	return fmt.Sprintf("%s/%s/%s", e.TypeKey, e.Category, e.Name)
}

// GetAttr implements eval.Self: it returns the runtime-projected value of
// a canonical attribute, never the TypedValue wrapper itself.
func (e *Entity) GetAttr(name string) (any, bool) {
	tv, ok := e.Attributes[CanonicalAttrName(name)]
	if !ok {
		return nil, false
	}
	return tv.Value, true
}

// CanonicalAttrName collapses both hyphen and underscore forms to the
// store's single canonical convention (hyphen-form).
func CanonicalAttrName(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "_", "-")
}

// key is the store's internal identity triple, a comparable struct used as
// the map key.
type key struct {
	typeKey, category, name string
}

func keyOf(typeKey, category, name string) key {
	return key{strings.ToLower(typeKey), strings.ToLower(category), strings.ToLower(name)}
}

// Store holds every loaded EntityType, ComplexType, and Entity, guarded by
// a single RWMutex ("all mutations to the store and claim
// map serialize through a single mutex per store instance").
type Store struct {
	mu sync.RWMutex

	types        map[string]typedvalue.EntityType
	complexTypes map[string]typedvalue.ComplexType

	entities map[key]*Entity
	// order preserves insertion order so entities are processed in a
	// stable order on every scheduler tick.
	order []key
}

// New returns an empty Store. Loading schemas and category files is the
// responsibility of the loader in this package.
func New() *Store {
	return &Store{
		types:        make(map[string]typedvalue.EntityType),
		complexTypes: make(map[string]typedvalue.ComplexType),
		entities:     make(map[key]*Entity),
	}
}

// RegisterType adds an EntityType, returning an error (never aborting the
// caller's whole load) if its key collides with one already registered;
// first definition wins.
func (s *Store) RegisterType(et typedvalue.EntityType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	lower := strings.ToLower(et.Key)
	if _, exists := s.types[lower]; exists {
		return fmt.Errorf("%w: duplicate entity type %q (first definition wins)", utmserrors.ErrSchema, et.Key)
	}
	s.types[lower] = et
	return nil
}

// RegisterComplexType adds a ComplexType under the same first-wins rule.
func (s *Store) RegisterComplexType(ct typedvalue.ComplexType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	lower := strings.ToLower(ct.Key)
	if _, exists := s.complexTypes[lower]; exists {
		return fmt.Errorf("%w: duplicate complex type %q (first definition wins)", utmserrors.ErrSchema, ct.Key)
	}
	s.complexTypes[lower] = ct
	return nil
}

// EntityType looks up a registered type by key.
func (s *Store) EntityType(typeKey string) (typedvalue.EntityType, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	et, ok := s.types[strings.ToLower(typeKey)]
	return et, ok
}

// ComplexType looks up a registered complex type by key.
func (s *Store) ComplexType(typeKey string) (typedvalue.ComplexType, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ct, ok := s.complexTypes[strings.ToLower(typeKey)]
	return ct, ok
}

// Put inserts or replaces an entity, recording insertion order the first
// time its identity is seen.
func (s *Store) Put(e *Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := keyOf(e.TypeKey, e.Category, e.Name)
	if _, exists := s.entities[k]; !exists {
		s.order = append(s.order, k)
	}
	s.entities[k] = e
}

// Get looks up an entity by its identity triple.
func (s *Store) Get(typeKey, category, name string) (*Entity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entities[keyOf(typeKey, category, name)]
	return e, ok
}

// WithWriteLock runs fn while holding the store's write lock, so callers
// outside this package (the occurrence manager, the scheduler) can mutate
// an Entity's Attributes map directly — e.g. writing an undeclared cursor
// attribute with no governing schema — without racing the store's own
// mutations ("all mutations to the store and claim map
// serialize through a single mutex per store instance").
func (s *Store) WithWriteLock(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn()
}

// All returns every entity in stable insertion order.
func (s *Store) All() []*Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Entity, 0, len(s.order))
	for _, k := range s.order {
		if e, ok := s.entities[k]; ok {
			out = append(out, e)
		}
	}
	return out
}

// UpdateAttribute constructs a fresh TypedValue for attr using the entity
// type's schema and replaces it in place. The
// caller is responsible for persisting the containing category file
// afterwards; this method only mutates in-memory state, atomically with
// respect to other store operations.
func (s *Store) UpdateAttribute(typeKey, category, name, attr string, newValue any, isDynamic bool, originalSource string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entities[keyOf(typeKey, category, name)]
	if !ok {
		return fmt.Errorf("%w: entity %s/%s/%s", utmserrors.ErrNotFound, typeKey, category, name)
	}
	et, ok := s.types[strings.ToLower(typeKey)]
	if !ok {
		return fmt.Errorf("%w: entity type %q", utmserrors.ErrNotFound, typeKey)
	}
	canonical := CanonicalAttrName(attr)
	schema, ok := et.Attributes[canonical]
	if !ok {
		return fmt.Errorf("%w: %q has no attribute %q", utmserrors.ErrSchema, typeKey, attr)
	}
	tv, err := typedvalue.Construct(newValue, schema, isDynamic, originalSource)
	if err != nil {
		return fmt.Errorf("%w: %v", utmserrors.ErrValidation, err)
	}
	e.Attributes[canonical] = tv
	return nil
}
