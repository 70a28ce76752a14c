// Package occurrence implements the occurrence and claim manager:
// starting and ending timed occurrences, maintaining the
// exclusive resource-claim map, and auto-stopping conflicting holders so
// that at most one entity ever holds a given resource.
package occurrence

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"utms/internal/entitystore"
	"utms/internal/eval"
	"utms/internal/logger"
	"utms/internal/timeutil"
	"utms/internal/typedvalue"
	"utms/internal/utmserrors"
)

// occurrenceAttr is the list attribute name occurrence records append to.
const occurrenceAttr = "occurrences"

// activeAttr is the attribute holding the active occurrence's start time,
// null when the entity is idle.
const activeAttr = "active-occurrence-start-time"

// claimsAttr is the list attribute naming the resources an entity claims
// exclusively while active.
const claimsAttr = "exclusive-resource-claims"

const checklistAttr = "checklist"

// Manager owns the claim map and the store it arbitrates occurrences
// against. The claim map is guarded by the Manager's own mutex (mu), not by
// the store's lock; the store guards its entities with its own lock.
type Manager struct {
	store *entitystore.Store
	eval  *eval.Evaluator

	builtins map[string]eval.Builtin
	globals  func() map[string]any

	mu     sync.Mutex
	owners map[string]*entitystore.Entity // resource name -> holder; at most one per resource
}

// New returns a Manager over store, with an empty claim map. Call Rebuild
// once entities have been loaded to repopulate it from on-disk state.
func New(store *entitystore.Store, ev *eval.Evaluator) *Manager {
	return &Manager{
		store:  store,
		eval:   ev,
		owners: make(map[string]*entitystore.Entity),
	}
}

// SetBindings wires the built-in dispatch table and global-variable snapshot
// function that hook and default_action expressions evaluate against, the
// same bindings the scheduler agent uses.
// System calls this once its own builtins table exists, since that table is
// built from the System value that embeds this Manager.
func (m *Manager) SetBindings(builtins map[string]eval.Builtin, globals func() map[string]any) {
	m.builtins = builtins
	m.globals = globals
}

func (m *Manager) bindings(self eval.Self) eval.Bindings {
	b := eval.Bindings{Self: self, Builtins: m.builtins}
	if m.globals != nil {
		b.Globals = m.globals()
	}
	return b
}

// Rebuild repopulates the claim map from every entity carrying a non-null
// active-occurrence-start-time and a non-empty claims list, with no
// duplicate-holder detection required on a freshly loaded store.
func (m *Manager) Rebuild() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.owners = make(map[string]*entitystore.Entity)
	for _, e := range m.store.All() {
		if !isActive(e) {
			continue
		}
		for _, res := range claimedResources(e) {
			m.owners[res] = e
		}
	}
}

// Claims returns a snapshot of the resource -> holder-identifier map.
func (m *Manager) Claims() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.owners))
	for res, e := range m.owners {
		out[res] = e.Identifier()
	}
	return out
}

func isActive(e *entitystore.Entity) bool {
	tv, ok := e.Attributes[activeAttr]
	return ok && tv.Value != nil
}

func claimedResources(e *entitystore.Entity) []string {
	tv, ok := e.Attributes[claimsAttr]
	if !ok {
		return nil
	}
	items, ok := tv.Value.([]typedvalue.TypedValue)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.Value.(string); ok && s != "" {
			out = append(out, strings.ToLower(s))
		}
	}
	return out
}

// StartOccurrence begins an occurrence on e. It is a Conflict to start an
// already-active entity. Every currently-held
// resource e would claim is first released by ending the occurrence of
// whichever entity holds it (auto-stop), which happens-before e's
// active-occurrence-start-time is set.
func (m *Manager) StartOccurrence(e *entitystore.Entity) error {
	if isActive(e) {
		return fmt.Errorf("%w: %s already has an active occurrence", utmserrors.ErrConflict, e.Identifier())
	}

	for _, res := range claimedResources(e) {
		m.mu.Lock()
		holder, held := m.owners[res]
		m.mu.Unlock()
		if held && holder != e {
			logger.Info("occurrence: %s claims %q held by %s, auto-stopping holder", e.Identifier(), res, holder.Identifier())
			note := fmt.Sprintf("auto-stopped: resource %q claimed by %s", res, e.Identifier())
			if err := m.EndOccurrence(holder, note, nil); err != nil {
				return fmt.Errorf("occurrence: auto-stop of %s: %w", holder.Identifier(), err)
			}
		}
	}

	now := timeutil.Now()
	var attrErr error
	m.store.WithWriteLock(func() {
		attrErr = setAttr(e, activeAttr, int64(now), typedvalue.Timestamp)
		if attrErr != nil {
			return
		}
		resetChecklist(e)
	})
	if attrErr != nil {
		return attrErr
	}

	m.mu.Lock()
	for _, res := range claimedResources(e) {
		m.owners[res] = e
	}
	m.mu.Unlock()

	m.fireHook(e, "on-start-hook")
	return nil
}

// EndOccurrence ends e's active occurrence. It is a Conflict to end an idle
// entity. Auto-stop callers only ever reach this for entities the claim
// map already reports as holders, so in practice the auto-stop path never
// hits that Conflict.
func (m *Manager) EndOccurrence(e *entitystore.Entity, notes string, metadata map[string]any) error {
	startTV, ok := e.Attributes[activeAttr]
	if !ok || startTV.Value == nil {
		return fmt.Errorf("%w: %s has no active occurrence", utmserrors.ErrConflict, e.Identifier())
	}
	start, _ := startTV.Value.(timeutil.Instant)
	end := timeutil.Now()

	// completeChecklist may evaluate a default_action expression that calls
	// back into store-touching built-ins, so it runs outside the write lock
	// (the store's mutex is not reentrant); the record append and the
	// active-flag clear that follow are the only parts that need it.
	completeChecklist(m.eval, e, m.bindings(e))

	var attrErr error
	m.store.WithWriteLock(func() {
		record := map[string]any{
			"id":         uuid.NewString(),
			"start_time": int64(start),
			"end_time":   int64(end),
			"notes":      notes,
			"metadata":   metadata,
		}
		appendOccurrence(e, record)

		attrErr = setAttr(e, activeAttr, nil, typedvalue.Timestamp)
	})
	if attrErr != nil {
		return attrErr
	}

	m.mu.Lock()
	for res, holder := range m.owners {
		if holder == e {
			delete(m.owners, res)
		}
	}
	m.mu.Unlock()

	m.fireHook(e, "on-end-hook")
	return nil
}

// ToggleChecklistStep updates one checklist item's completed flag while e
// is active, running its default-action expression when marking complete
// and reverting the status if that expression fails.
func (m *Manager) ToggleChecklistStep(e *entitystore.Entity, stepName string, completed bool) error {
	if !isActive(e) {
		return fmt.Errorf("%w: %s has no active occurrence", utmserrors.ErrConflict, e.Identifier())
	}
	tv, ok := e.Attributes[checklistAttr]
	if !ok {
		return fmt.Errorf("%w: %s has no checklist", utmserrors.ErrNotFound, e.Identifier())
	}
	items, _ := tv.Value.([]typedvalue.TypedValue)
	for i, item := range items {
		m2, ok := item.Value.(map[string]typedvalue.TypedValue)
		if !ok {
			continue
		}
		nameTV, ok := m2["name"]
		if !ok || nameTV.Value != stepName {
			continue
		}
		prev := m2["completed"]
		m2["completed"] = typedvalue.TypedValue{FieldType: typedvalue.Boolean, Value: completed}
		items[i].Value = m2

		// default_action runs outside the store's write lock since it may
		// call back into store-touching built-ins (the mutex isn't
		// reentrant); on failure the status is reverted.
		if completed {
			if action, ok := m2["default_action"]; ok && action.IsDynamic && m.eval != nil {
				if _, err := m.eval.Evaluate(action.OriginalSource, m.bindings(e)); err != nil {
					m2["completed"] = prev
					items[i].Value = m2
					return fmt.Errorf("%w: checklist step %q default_action: %v", utmserrors.ErrEvaluator, stepName, err)
				}
			}
		}
		m.store.WithWriteLock(func() {
			e.Attributes[checklistAttr] = typedvalue.TypedValue{
				FieldType:      typedvalue.List,
				Value:          items,
				ItemSchemaType: tv.ItemSchemaType,
			}
		})
		return nil
	}
	return fmt.Errorf("%w: no checklist step named %q on %s", utmserrors.ErrNotFound, stepName, e.Identifier())
}

func resetChecklist(e *entitystore.Entity) {
	tv, ok := e.Attributes[checklistAttr]
	if !ok {
		return
	}
	items, ok := tv.Value.([]typedvalue.TypedValue)
	if !ok {
		return
	}
	for i, item := range items {
		m, ok := item.Value.(map[string]typedvalue.TypedValue)
		if !ok {
			continue
		}
		m["completed"] = typedvalue.TypedValue{FieldType: typedvalue.Boolean, Value: false}
		items[i].Value = m
	}
	tv.Value = items
	e.Attributes[checklistAttr] = tv
}

// completeChecklist auto-completes any mandatory-unchecked step, running
// its default_action expression. Errors from
// default_action are logged, not propagated: ending an occurrence must
// still succeed so data capture isn't lost.
func completeChecklist(ev *eval.Evaluator, e *entitystore.Entity, b eval.Bindings) {
	tv, ok := e.Attributes[checklistAttr]
	if !ok {
		return
	}
	items, ok := tv.Value.([]typedvalue.TypedValue)
	if !ok {
		return
	}
	for i, item := range items {
		m, ok := item.Value.(map[string]typedvalue.TypedValue)
		if !ok {
			continue
		}
		mandatory, _ := m["is_mandatory"].Value.(bool)
		completed, _ := m["completed"].Value.(bool)
		if !mandatory || completed {
			continue
		}
		m["completed"] = typedvalue.TypedValue{FieldType: typedvalue.Boolean, Value: true}
		items[i].Value = m
		if action, ok := m["default_action"]; ok && action.IsDynamic && ev != nil {
			if _, err := ev.Evaluate(action.OriginalSource, b); err != nil {
				logger.Error("occurrence: %s checklist default_action: %v", e.Identifier(), err)
			}
		}
	}
	tv.Value = items
	e.Attributes[checklistAttr] = tv
}

func appendOccurrence(e *entitystore.Entity, record map[string]any) {
	tv, ok := e.Attributes[occurrenceAttr]
	if !ok {
		tv = typedvalue.TypedValue{FieldType: typedvalue.List, ItemSchemaType: "OCCURRENCE"}
	}
	items, _ := tv.Value.([]typedvalue.TypedValue)
	entry := make(map[string]typedvalue.TypedValue, len(record))
	for k, v := range record {
		entry[k] = typedvalue.TypedValue{FieldType: typedvalue.InferType(v), Value: v}
	}
	items = append(items, typedvalue.TypedValue{FieldType: typedvalue.Dict, Value: entry})
	tv.Value = items
	e.Attributes[occurrenceAttr] = tv
}

func setAttr(e *entitystore.Entity, name string, raw any, ft typedvalue.FieldType) error {
	tv, err := typedvalue.New(raw, ft)
	if err != nil {
		return fmt.Errorf("%w: %s.%s: %v", utmserrors.ErrValidation, e.Identifier(), name, err)
	}
	e.Attributes[name] = tv
	return nil
}

// fireHook evaluates e's hookAttr, if it is a dynamic expression, binding
// self to e. Evaluator errors are logged, not propagated: occurrence state
// transitions must complete even when a hook body fails.
func (m *Manager) fireHook(e *entitystore.Entity, hookAttr string) {
	if m.eval == nil {
		return
	}
	tv, ok := e.Attributes[hookAttr]
	if !ok || !tv.IsDynamic {
		return
	}
	if _, err := m.eval.Evaluate(tv.OriginalSource, m.bindings(e)); err != nil {
		logger.Error("occurrence: %s %s: %v", e.Identifier(), hookAttr, err)
	}
}
