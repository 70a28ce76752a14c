// Package eval implements the expression-evaluator contract:
// evaluating a parsed S-expression AST against a binding
// environment that always includes a read-only "self" view of the owning
// entity, plus a fixed table of hook built-ins, and recording every
// evaluation in an append-only history for later inspection.
package eval

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"utms/internal/sexpr"
	"utms/internal/utmserrors"
)

// Self is the read-only entity view bound to "self" while evaluating one of
// that entity's own expressions (self-reference in hook
// bodies"). GetAttr must return the entity's own typed, runtime-projected
// attribute value by canonical name.
type Self interface {
	Identifier() string
	GetAttr(name string) (any, bool)
}

// Builtin is a hook/evaluator built-in function. Args are
// already-evaluated values; the built-in returns its result or an error,
// which the caller wraps in ErrEvaluator.
type Builtin func(args []any) (any, error)

// Bindings is the environment an expression is evaluated against: builtins,
// the current self view (nil outside entity-attribute context), and any
// additional named values (resolved variables, globals).
type Bindings struct {
	Builtins map[string]Builtin
	Self     Self
	Globals  map[string]any
}

// Record is one append-only history entry. ID correlates this evaluation
// with whatever triggered it (a hook fire, a default_action run) across
// logs emitted by the caller before and after Evaluate returns.
type Record struct {
	ID     string
	Source string
	Result any
	Err    error
}

// Evaluator evaluates parsed expressions and keeps an append-only history
// of every call. It holds no other state: bindings are supplied per call so
// a single Evaluator can serve every entity without synchronization beyond
// the history log itself.
type Evaluator struct {
	mu      sync.Mutex
	history []Record
}

// New returns an Evaluator with an empty history.
func New() *Evaluator {
	return &Evaluator{}
}

// Evaluate parses and evaluates source against b, appending the outcome to
// the evaluator's history regardless of success or failure.
func (e *Evaluator) Evaluate(source string, b Bindings) (any, error) {
	node, err := sexpr.ReadOne(source)
	if err != nil {
		wrapped := fmt.Errorf("eval: parsing %q: %w", source, err)
		e.record(source, nil, wrapped)
		return nil, wrapped
	}
	result, err := e.eval(node, b)
	if err != nil {
		wrapped := fmt.Errorf("eval: %q: %w", source, err)
		e.record(source, nil, wrapped)
		return nil, wrapped
	}
	e.record(source, result, nil)
	return result, nil
}

func (e *Evaluator) record(source string, result any, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history = append(e.history, Record{ID: uuid.NewString(), Source: source, Result: result, Err: err})
}

// History returns a copy of every evaluation recorded so far, in call order.
func (e *Evaluator) History() []Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Record, len(e.history))
	copy(out, e.history)
	return out
}

func (e *Evaluator) eval(n sexpr.Node, b Bindings) (any, error) {
	switch n.Kind {
	case sexpr.Number:
		return n.Num, nil
	case sexpr.StringLit:
		return n.Str, nil
	case sexpr.Bool:
		return n.BoolVal, nil
	case sexpr.Nil:
		return nil, nil
	case sexpr.Keyword:
		return n.Str, nil
	case sexpr.Quoted:
		// A quote suppresses evaluation: the caller wants the AST itself,
		// typically to store as a dynamic TypedValue's unresolved form.
		return n.Children[0], nil
	case sexpr.Symbol:
		return e.resolveSymbol(n.Str, b)
	case sexpr.Vector:
		return e.evalEach(n.Children, b)
	case sexpr.List:
		return e.evalCall(n, b)
	default:
		return nil, fmt.Errorf("%w: cannot evaluate node kind %v", utmserrors.ErrEvaluator, n.Kind)
	}
}

func (e *Evaluator) resolveSymbol(name string, b Bindings) (any, error) {
	if name == "self" {
		if b.Self == nil {
			return nil, fmt.Errorf("%w: self is unbound in this context", utmserrors.ErrEvaluator)
		}
		return b.Self, nil
	}
	if v, ok := b.Globals[name]; ok {
		return v, nil
	}
	return nil, fmt.Errorf("%w: unbound symbol %q", utmserrors.ErrEvaluator, name)
}

func (e *Evaluator) evalEach(nodes []sexpr.Node, b Bindings) ([]any, error) {
	out := make([]any, len(nodes))
	for i, c := range nodes {
		v, err := e.eval(c, b)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (e *Evaluator) evalCall(n sexpr.Node, b Bindings) (any, error) {
	if len(n.Children) == 0 {
		return nil, fmt.Errorf("%w: cannot evaluate empty form", utmserrors.ErrEvaluator)
	}
	head := n.Children[0]

	// (get-attr self "name") and its "get-attr entity-view name" general
	// form both resolve through the Self interface rather than a builtin,
	// since Self is the only thing that knows how to read its own
	// attributes by canonical name.
	if head.Kind == sexpr.Symbol && head.Str == "get-attr" {
		return e.evalGetAttr(n.Children[1:], b)
	}

	if head.Kind != sexpr.Symbol {
		return nil, fmt.Errorf("%w: call head must be a symbol", utmserrors.ErrEvaluator)
	}
	fn, ok := b.Builtins[head.Str]
	if !ok {
		return nil, fmt.Errorf("%w: unknown built-in %q", utmserrors.ErrEvaluator, head.Str)
	}
	args, err := e.evalEach(n.Children[1:], b)
	if err != nil {
		return nil, err
	}
	result, err := fn(args)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", utmserrors.ErrEvaluator, head.Str, err)
	}
	return result, nil
}

func (e *Evaluator) evalGetAttr(argNodes []sexpr.Node, b Bindings) (any, error) {
	if len(argNodes) != 2 {
		return nil, fmt.Errorf("%w: get-attr takes 2 arguments", utmserrors.ErrEvaluator)
	}
	target, err := e.eval(argNodes[0], b)
	if err != nil {
		return nil, err
	}
	self, ok := target.(Self)
	if !ok {
		return nil, fmt.Errorf("%w: get-attr target is not an entity view", utmserrors.ErrEvaluator)
	}
	nameVal, err := e.eval(argNodes[1], b)
	if err != nil {
		return nil, err
	}
	name, _ := nameVal.(string)
	v, ok := self.GetAttr(name)
	if !ok {
		return nil, fmt.Errorf("%w: no such attribute %q", utmserrors.ErrNotFound, name)
	}
	return v, nil
}
