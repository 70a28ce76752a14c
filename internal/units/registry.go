// Package units implements the unit registry and time-expression parser:
// a case-insensitive table of named Lengths, and a shunting-yard
// expression evaluator over "2h + 15m"-style strings.
package units

import (
	_ "embed"
	"strings"

	"gopkg.in/yaml.v2"

	"utms/internal/timeutil"
)

// Unit is a named multiple of a second. Label is its canonical display name
// (e.g. "Hour"); Names holds every alias it is looked up by, including its
// symbol ("h") and full name ("hour"); the plural form of each name is
// accepted automatically and need not be listed.
type Unit struct {
	Label string
	Names []string
	Value timeutil.Length
}

// Registry is a lookup table from unit name (any case, singular or plural)
// to its Length-per-unit value. Lookup is O(1); iteration order follows
// insertion order, mirroring the pattern store's label ordering guarantee.
type Registry struct {
	byName map[string]timeutil.Length
	order  []Unit
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]timeutil.Length)}
}

// Add registers a unit, indexing every alias (case-folded) and its plural
// form. A later Add for a name that already exists overwrites it, the same
// "first/last definition wins" tradeoff the entity-type loader makes
// explicit here (last wins, since unit files are meant to
// override built-in defaults).
func (r *Registry) Add(u Unit) {
	r.order = append(r.order, u)
	names := append([]string{u.Label}, u.Names...)
	for _, n := range names {
		lower := strings.ToLower(n)
		r.byName[lower] = u.Value
		if !strings.HasSuffix(lower, "s") {
			r.byName[lower+"s"] = u.Value
		}
	}
}

// Lookup resolves a unit name (case-insensitive, singular or plural) to its
// per-unit Length.
func (r *Registry) Lookup(name string) (timeutil.Length, bool) {
	v, ok := r.byName[strings.ToLower(strings.TrimSpace(name))]
	return v, ok
}

// Units returns every registered unit in insertion order.
func (r *Registry) Units() []Unit {
	out := make([]Unit, len(r.order))
	copy(out, r.order)
	return out
}

//go:embed defaults.yaml
var defaultsYAML []byte

type defaultsFile struct {
	Units []struct {
		Label   string   `yaml:"label"`
		Names   []string `yaml:"names"`
		Seconds float64  `yaml:"seconds"`
	} `yaml:"units"`
}

// NewDefaultRegistry returns a registry seeded from the built-in unit table
// (internal/units/defaults.yaml). Domain S-expression unit files
// (global/units/*.hy) are loaded afterwards and override or add
// to this seed by calling Add again with the same or new names.
func NewDefaultRegistry() (*Registry, error) {
	var df defaultsFile
	if err := yaml.Unmarshal(defaultsYAML, &df); err != nil {
		return nil, err
	}
	r := NewRegistry()
	for _, u := range df.Units {
		r.Add(Unit{
			Label: u.Label,
			Names: u.Names,
			Value: timeutil.Length(u.Seconds * float64(timeutil.Second)),
		})
	}
	return r, nil
}
