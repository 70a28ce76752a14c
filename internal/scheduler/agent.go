// Package scheduler implements the proactive agent: a single owning loop
// that scans the entity catalog on a fixed cadence,
// compares datetime deadlines and pattern-referenced recurrences against
// per-attribute cursors, and fires hooks when a trigger falls due within
// the look-ahead horizon.
package scheduler

import (
	"strings"
	"time"

	"utms/internal/entitystore"
	"utms/internal/eval"
	"utms/internal/logger"
	"utms/internal/patternstore"
	"utms/internal/recurrence"
	"utms/internal/timeutil"
	"utms/internal/typedvalue"
)

// statuses that suppress a datetime trigger from ever firing again.
var suppressedStatuses = map[string]bool{
	"completed": true, "done": true, "archived": true, "cancelled": true,
}

// FireRecorder is notified of every hook fire, with hookErr set when the
// hook failed, for the domain
// metrics sink's fire-audit log. Implementations must not block the tick.
type FireRecorder interface {
	RecordFire(entityIdentifier, attribute string, firedAt, cursorValue int64, hookErr error)
}

// Agent owns the periodic scheduling loop.
type Agent struct {
	store    *entitystore.Store
	patterns *patternstore.Store
	eval     *eval.Evaluator
	builtins map[string]eval.Builtin
	globals  func() map[string]any
	recorder FireRecorder
	tz       *time.Location

	tickInterval time.Duration
	horizon      time.Duration

	stop chan struct{}
	done chan struct{}
}

// Config configures an Agent's tick cadence and look-ahead window.
type Config struct {
	TickInterval time.Duration
	Horizon      time.Duration
	Timezone     *time.Location
}

// New returns an Agent wired to store, patterns, and an evaluator whose
// bindings table is (builtins, globals()) for every hook invocation.
func New(store *entitystore.Store, patterns *patternstore.Store, ev *eval.Evaluator, builtins map[string]eval.Builtin, globals func() map[string]any, recorder FireRecorder, cfg Config) *Agent {
	tz := cfg.Timezone
	if tz == nil {
		tz = time.UTC
	}
	tickInterval := cfg.TickInterval
	if tickInterval <= 0 {
		tickInterval = 60 * time.Second
	}
	horizon := cfg.Horizon
	if horizon <= 0 {
		horizon = 24 * time.Hour
	}
	return &Agent{
		store: store, patterns: patterns, eval: ev, builtins: builtins, globals: globals,
		recorder: recorder, tz: tz, tickInterval: tickInterval, horizon: horizon,
		stop: make(chan struct{}), done: make(chan struct{}),
	}
}

// Run executes the scheduling loop until Stop is called. The stop flag is
// polled every second between ticks so shutdown completes within one
// second.
func (a *Agent) Run() {
	defer close(a.done)
	a.tick()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	elapsed := time.Duration(0)
	for {
		select {
		case <-a.stop:
			return
		case <-ticker.C:
			elapsed += time.Second
			if elapsed >= a.tickInterval {
				elapsed = 0
				a.tick()
			}
		}
	}
}

// Stop requests a graceful shutdown: no new hook is started after Stop
// returns, but an in-flight hook is allowed to complete.
func (a *Agent) Stop() {
	close(a.stop)
	<-a.done
}

func (a *Agent) tick() {
	now := timeutil.Now()
	horizon := now.Add(timeutil.FromDuration(a.horizon))

	for _, e := range a.store.All() {
		select {
		case <-a.stop:
			return
		default:
		}
		a.scanEntity(e, now, horizon)
	}
}

func (a *Agent) scanEntity(e *entitystore.Entity, now, horizon timeutil.Instant) {
	// Range over a name snapshot: hook firing can mutate e.Attributes via
	// the evaluator's store-touching built-ins.
	names := make([]string, 0, len(e.Attributes))
	for name := range e.Attributes {
		names = append(names, name)
	}
	for _, name := range names {
		tv, ok := e.Attributes[name]
		if !ok {
			continue
		}
		switch {
		case tv.FieldType == typedvalue.DateTime:
			a.scanDatetimeTrigger(e, name, tv, now, horizon)
		case tv.FieldType == typedvalue.EntityReference && strings.EqualFold(tv.ReferencedEntityType, "pattern"):
			a.scanPatternTrigger(e, name, tv, now, horizon)
		}
	}
}

func hookAttrName(attr string) string   { return "on-" + attr + "-hook" }
func cursorAttrName(attr string) string { return attr + "-cursor" }

func (a *Agent) entityStatus(e *entitystore.Entity) string {
	tv, ok := e.Attributes["status"]
	if !ok {
		return ""
	}
	s, _ := tv.Value.(string)
	return strings.ToLower(s)
}

func (a *Agent) scanDatetimeTrigger(e *entitystore.Entity, attr string, tv typedvalue.TypedValue, now, horizon timeutil.Instant) {
	hookAttr := hookAttrName(attr)
	hook, ok := e.Attributes[hookAttr]
	if !ok || !hook.IsDynamic {
		return
	}
	deadline, ok := tv.Value.(timeutil.Instant)
	if !ok {
		return
	}
	if suppressedStatuses[a.entityStatus(e)] {
		return
	}
	cursor := a.readCursor(e, attr, 0)
	if !(cursor.Before(deadline) && !deadline.After(horizon)) {
		return
	}
	err := a.fireHook(e, hookAttr, hook)
	a.setCursor(e, attr, deadline)
	if a.recorder != nil {
		a.recorder.RecordFire(e.Identifier(), attr, int64(now), int64(deadline), err)
	}
}

func (a *Agent) scanPatternTrigger(e *entitystore.Entity, attr string, tv typedvalue.TypedValue, now, horizon timeutil.Instant) {
	hookAttr := hookAttrName(attr)
	hook, ok := e.Attributes[hookAttr]
	if !ok || !hook.IsDynamic {
		return
	}
	ref, ok := tv.Value.(typedvalue.Ref)
	if !ok {
		return
	}
	label := ref.Key
	if idx := strings.LastIndex(label, ":"); idx >= 0 {
		label = label[idx+1:]
	}
	pattern, ok := a.patterns.Get(label)
	if !ok {
		logger.Warn("scheduler: %s.%s references unknown pattern %q", e.Identifier(), attr, label)
		return
	}

	cursorSet := a.hasCursor(e, attr)
	cursor := a.readCursor(e, attr, now)
	if !cursorSet {
		a.setCursor(e, attr, cursor)
		return
	}

	next, err := recurrence.NextOccurrence(pattern.Pattern, cursor, a.tz)
	if err != nil {
		logger.Warn("scheduler: %s.%s pattern %q: %v", e.Identifier(), attr, label, err)
		return
	}
	if next.After(horizon) {
		return
	}
	fireErr := a.fireHook(e, hookAttr, hook)
	a.setCursor(e, attr, next)
	if a.recorder != nil {
		a.recorder.RecordFire(e.Identifier(), attr, int64(now), int64(next), fireErr)
	}
}

// fireHook evaluates a hook expression with self bound to e, catching and
// logging any EvaluatorError so it never aborts the tick or blocks cursor
// advancement.
func (a *Agent) fireHook(e *entitystore.Entity, hookAttr string, hook typedvalue.TypedValue) error {
	_, err := a.eval.Evaluate(hook.OriginalSource, eval.Bindings{
		Builtins: a.builtins,
		Self:     e,
		Globals:  a.globalsSnapshot(),
	})
	if err != nil {
		logger.Error("scheduler: %s %s: %v", e.Identifier(), hookAttr, err)
	}
	return err
}

func (a *Agent) globalsSnapshot() map[string]any {
	if a.globals == nil {
		return nil
	}
	return a.globals()
}

func (a *Agent) hasCursor(e *entitystore.Entity, attr string) bool {
	_, ok := e.Attributes[cursorAttrName(attr)]
	return ok
}

func (a *Agent) readCursor(e *entitystore.Entity, attr string, def timeutil.Instant) timeutil.Instant {
	tv, ok := e.Attributes[cursorAttrName(attr)]
	if !ok {
		return def
	}
	if inst, ok := tv.Value.(timeutil.Instant); ok {
		return inst
	}
	return def
}

// setCursor writes the cursor attribute in memory and persists the
// containing category file; an IOError here is logged and the fire is
// retried on the next tick, per the at-least-once firing policy.
func (a *Agent) setCursor(e *entitystore.Entity, attr string, value timeutil.Instant) {
	name := cursorAttrName(attr)
	var prev typedvalue.TypedValue
	var hadPrev bool
	a.store.WithWriteLock(func() {
		prev, hadPrev = e.Attributes[name]
		e.Attributes[name] = typedvalue.TypedValue{
			FieldType: typedvalue.Timestamp,
			Value:     value,
		}
	})
	if e.SourceFile == "" {
		return
	}
	if err := a.store.SaveCategoryFile(e.SourceFile); err != nil {
		logger.Error("scheduler: persisting cursor for %s.%s: %v", e.Identifier(), attr, err)
		// Put the old cursor back so the next tick sees the fire as pending.
		a.store.WithWriteLock(func() {
			if hadPrev {
				e.Attributes[name] = prev
			} else {
				delete(e.Attributes, name)
			}
		})
	}
}
