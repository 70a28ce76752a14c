// Package patternstore loads named recurrence
// patterns from a global directory and a per-user directory (user
// definitions override global ones by label), and O(1) lookup by label
// with insertion-order iteration.
package patternstore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"utms/internal/logger"
	"utms/internal/recurrence"
	"utms/internal/sexpr"
	"utms/internal/timeutil"
	"utms/internal/units"
	"utms/internal/utmserrors"
)

// Named is a recurrence.Pattern together with the groups it belongs to.
// It carries no timezone; NextOccurrence callers supply one.
type Named struct {
	recurrence.Pattern
	Groups []string
}

// Store holds every loaded Pattern, keyed by lowercase label, with
// insertion order preserved for iteration.
type Store struct {
	byLabel map[string]Named
	order   []string
}

// New returns an empty Store.
func New() *Store {
	return &Store{byLabel: make(map[string]Named)}
}

// Get looks up a pattern by label, case-insensitively.
func (s *Store) Get(label string) (Named, bool) {
	p, ok := s.byLabel[strings.ToLower(label)]
	return p, ok
}

// All returns every pattern in insertion order.
func (s *Store) All() []Named {
	out := make([]Named, 0, len(s.order))
	for _, label := range s.order {
		out = append(out, s.byLabel[label])
	}
	return out
}

// put inserts or overrides a pattern, recording insertion order only the
// first time a label is seen so a user override keeps the global
// definition's position (last-registration-wins on value, stable order).
func (s *Store) put(p Named) {
	key := strings.ToLower(p.Label)
	if _, exists := s.byLabel[key]; !exists {
		s.order = append(s.order, key)
	}
	s.byLabel[key] = p
}

// LoadDir parses every *.hy file in dir as a set of def-pattern forms and
// registers each pattern, overriding any pattern already registered under
// the same label (user overrides global by label: callers
// load the global directory first, then the user directory).
func (s *Store) LoadDir(dir string, reg *units.Registry) error {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".hy") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := s.loadFile(path, reg); err != nil {
			logger.Error("patternstore: loading %s: %v", path, err)
		}
	}
	return nil
}

func (s *Store) loadFile(path string, reg *units.Registry) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	forms, err := sexpr.ReadAll(string(data))
	if err != nil {
		return err
	}
	for _, form := range forms {
		p, err := parsePatternForm(form, reg, path)
		if err != nil {
			logger.Error("patternstore: %v", err)
			continue
		}
		s.put(p)
	}
	return nil
}

func parsePatternForm(form sexpr.Node, reg *units.Registry, sourceFile string) (Named, error) {
	children, ok := form.AsList()
	if !ok || len(children) < 2 || children[0].Kind != sexpr.Symbol || children[0].Str != "def-pattern" {
		return Named{}, fmt.Errorf("%w: expected (def-pattern ...) in %s", utmserrors.ErrParse, sourceFile)
	}
	if children[1].Kind != sexpr.StringLit {
		return Named{}, fmt.Errorf("%w: def-pattern requires a string label in %s", utmserrors.ErrParse, sourceFile)
	}
	label := children[1].Str
	p := recurrence.Pattern{Label: label}
	var groups []string

	for _, clause := range children[2:] {
		parts, ok := clause.AsList()
		if !ok || len(parts) < 1 || parts[0].Kind != sexpr.Symbol {
			continue
		}
		switch parts[0].Str {
		case "every":
			if len(parts) < 2 {
				return Named{}, fmt.Errorf("%w: (every ...) needs a time expression in %s", utmserrors.ErrParse, sourceFile)
			}
			length, err := units.Parse(parts[1].Str, reg)
			if err != nil {
				return Named{}, fmt.Errorf("%w: pattern %q every: %v", utmserrors.ErrParse, label, err)
			}
			p.Interval = length
		case "at":
			atTimes, err := parseAtTimes(parts[1:])
			if err != nil {
				return Named{}, fmt.Errorf("pattern %q: %w", label, err)
			}
			p.AtTimes = atTimes
		case "on", "on-weekdays":
			wds, err := parseWeekdays(parts[1:])
			if err != nil {
				return Named{}, fmt.Errorf("pattern %q: %w", label, err)
			}
			p.OnWeekdays = wds
		case "between":
			w, err := parseWindow(parts[1:], label)
			if err != nil {
				return Named{}, err
			}
			p.Between = &w
		case "except-between":
			w, err := parseWindow(parts[1:], label)
			if err != nil {
				return Named{}, err
			}
			p.ExceptBetween = &w
		case "groups":
			for _, g := range parts[1:] {
				groups = append(groups, g.Str)
			}
		}
	}

	if p.Interval <= 0 && len(p.AtTimes) == 0 {
		return Named{}, fmt.Errorf("%w: pattern %q has neither every nor at_times", utmserrors.ErrValidation, label)
	}
	return Named{Pattern: p, Groups: groups}, nil
}

func parseAtTimes(nodes []sexpr.Node) ([]recurrence.AtTime, error) {
	var out []recurrence.AtTime
	flat := nodes
	if len(nodes) == 1 && nodes[0].Kind == sexpr.Vector {
		flat = nodes[0].Children
	}
	for _, n := range flat {
		switch n.Kind {
		case sexpr.StringLit:
			tod, err := timeutil.ParseTimeOfDay(n.Str)
			if err != nil {
				return nil, fmt.Errorf("%w: at time %q: %v", utmserrors.ErrParse, n.Str, err)
			}
			out = append(out, recurrence.AtTime{Time: tod})
		case sexpr.Map:
			for _, pair := range n.MapPairs() {
				if pair.Key.Str == "minute" {
					out = append(out, recurrence.AtTime{Wildcard: true, Minute: int(pair.Value.Num)})
				}
			}
		}
	}
	return out, nil
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday,
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
}

func parseWeekdays(nodes []sexpr.Node) ([]int, error) {
	flat := nodes
	if len(nodes) == 1 && nodes[0].Kind == sexpr.Vector {
		flat = nodes[0].Children
	}
	var out []int
	for _, n := range flat {
		name := strings.ToLower(n.Str)
		wd, ok := weekdayNames[name]
		if !ok {
			return nil, fmt.Errorf("%w: unknown weekday %q", utmserrors.ErrParse, n.Str)
		}
		out = append(out, int(wd))
	}
	return out, nil
}

func parseWindow(nodes []sexpr.Node, label string) (recurrence.Window, error) {
	if len(nodes) < 2 {
		return recurrence.Window{}, fmt.Errorf("%w: pattern %q window needs start and end", utmserrors.ErrParse, label)
	}
	start, err := timeutil.ParseTimeOfDay(nodes[0].Str)
	if err != nil {
		return recurrence.Window{}, fmt.Errorf("%w: pattern %q window start: %v", utmserrors.ErrParse, label, err)
	}
	end, err := timeutil.ParseTimeOfDay(nodes[1].Str)
	if err != nil {
		return recurrence.Window{}, fmt.Errorf("%w: pattern %q window end: %v", utmserrors.ErrParse, label, err)
	}
	return recurrence.Window{Start: start, End: end}, nil
}
