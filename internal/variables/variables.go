// Package variables implements the top-level named-binding store: bindings
// loaded from a user's variables.hy, with dynamic variables resolved once
// at load time,
// honoring declaration order so a later variable's expression can
// reference an earlier one.
package variables

import (
	"fmt"
	"os"
	"strings"

	"utms/internal/eval"
	"utms/internal/logger"
	"utms/internal/sexpr"
	"utms/internal/typedvalue"
	"utms/internal/utmserrors"
)

// Store holds every loaded variable, keyed by canonical (hyphen-form)
// name, exposed to the evaluator's binding map under both hyphen and
// underscore spellings.
type Store struct {
	values map[string]typedvalue.TypedValue
	order  []string
}

// New returns an empty variable store.
func New() *Store {
	return &Store{values: make(map[string]typedvalue.TypedValue)}
}

// Get looks up a variable's resolved runtime value by either spelling.
func (s *Store) Get(name string) (any, bool) {
	tv, ok := s.values[canonical(name)]
	if !ok {
		return nil, false
	}
	return tv.Value, true
}

// Globals projects the store to the flat map[string]any the evaluator's
// Bindings.Globals expects, duplicated under hyphen and underscore
// spellings.
func (s *Store) Globals() map[string]any {
	out := make(map[string]any, len(s.values)*2)
	for name, tv := range s.values {
		out[name] = tv.Value
		out[strings.ReplaceAll(name, "-", "_")] = tv.Value
	}
	return out
}

func canonical(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "_", "-")
}

// LoadFile parses path as a sequence of (def-variable "name" value) forms
// and resolves them in declaration order, so that a dynamic variable's
// expression may reference variables declared earlier in the same file
// processing order honors dependencies between variables.
func (s *Store) LoadFile(path string, ev *eval.Evaluator, builtins map[string]eval.Builtin) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	forms, err := sexpr.ReadAll(string(data))
	if err != nil {
		return fmt.Errorf("%w: variables %s: %v", utmserrors.ErrParse, path, err)
	}
	for _, form := range forms {
		if err := s.applyForm(form, ev, builtins, path); err != nil {
			logger.Error("variables: %v", err)
		}
	}
	return nil
}

func (s *Store) applyForm(form sexpr.Node, ev *eval.Evaluator, builtins map[string]eval.Builtin, sourceFile string) error {
	children, ok := form.AsList()
	if !ok || len(children) != 3 || children[0].Kind != sexpr.Symbol || children[0].Str != "def-variable" {
		return fmt.Errorf("%w: expected (def-variable \"name\" value) in %s", utmserrors.ErrParse, sourceFile)
	}
	if children[1].Kind != sexpr.StringLit {
		return fmt.Errorf("%w: def-variable requires a string name in %s", utmserrors.ErrParse, sourceFile)
	}
	name := canonical(children[1].Str)
	valueNode := children[2]

	if valueNode.Kind == sexpr.Quoted {
		source := valueNode.Children[0].Text
		result, err := ev.Evaluate(source, eval.Bindings{Builtins: builtins, Globals: s.Globals()})
		if err != nil {
			return fmt.Errorf("%w: variable %q: %v", utmserrors.ErrEvaluator, name, err)
		}
		tv, err := typedvalue.New(result, typedvalue.InferType(result), typedvalue.WithDynamic(source))
		if err != nil {
			return err
		}
		s.set(name, tv)
		return nil
	}

	raw := sexprLiteral(valueNode)
	tv, err := typedvalue.New(raw, typedvalue.InferType(raw))
	if err != nil {
		return fmt.Errorf("%w: variable %q: %v", utmserrors.ErrValidation, name, err)
	}
	s.set(name, tv)
	return nil
}

func (s *Store) set(name string, tv typedvalue.TypedValue) {
	if _, exists := s.values[name]; !exists {
		s.order = append(s.order, name)
	}
	s.values[name] = tv
}

func sexprLiteral(n sexpr.Node) any {
	switch n.Kind {
	case sexpr.StringLit, sexpr.Symbol, sexpr.Keyword:
		return n.Str
	case sexpr.Number:
		return n.Num
	case sexpr.Bool:
		return n.BoolVal
	case sexpr.Nil:
		return nil
	case sexpr.Vector, sexpr.List:
		out := make([]any, len(n.Children))
		for i, c := range n.Children {
			out[i] = sexprLiteral(c)
		}
		return out
	case sexpr.Map:
		out := make(map[string]any)
		for _, p := range n.MapPairs() {
			out[p.Key.Str] = sexprLiteral(p.Value)
		}
		return out
	default:
		return nil
	}
}
