package units

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"utms/internal/logger"
	"utms/internal/sexpr"
	"utms/internal/timeutil"
	"utms/internal/utmserrors"
)

// LoadDir parses every *.hy file in dir as a set of (def-unit "label"
// {:names [...] :seconds N}) forms and registers each unit, overriding any
// built-in default of the same name.
func (r *Registry) LoadDir(dir string) error {
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
		if err := r.loadFile(path); err != nil {
			logger.Error("units: loading %s: %v", path, err)
		}
	}
	return nil
}

func (r *Registry) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	forms, err := sexpr.ReadAll(string(data))
	if err != nil {
		return fmt.Errorf("%w: units %s: %v", utmserrors.ErrParse, path, err)
	}
	for _, form := range forms {
		u, err := parseUnitForm(form, path)
		if err != nil {
			logger.Error("units: %v", err)
			continue
		}
		r.Add(u)
	}
	return nil
}

func parseUnitForm(form sexpr.Node, sourceFile string) (Unit, error) {
	children, ok := form.AsList()
	if !ok || len(children) < 2 || children[0].Kind != sexpr.Symbol || children[0].Str != "def-unit" {
		return Unit{}, fmt.Errorf("%w: expected (def-unit \"label\" {...}) in %s", utmserrors.ErrParse, sourceFile)
	}
	if children[1].Kind != sexpr.StringLit {
		return Unit{}, fmt.Errorf("%w: def-unit requires a string label in %s", utmserrors.ErrParse, sourceFile)
	}
	u := Unit{Label: children[1].Str}
	if len(children) < 3 || children[2].Kind != sexpr.Map {
		return Unit{}, fmt.Errorf("%w: def-unit %q requires a properties map in %s", utmserrors.ErrParse, u.Label, sourceFile)
	}
	var seconds float64
	for _, pair := range children[2].MapPairs() {
		switch pair.Key.Str {
		case "names":
			for _, n := range pair.Value.Children {
				u.Names = append(u.Names, n.Str)
			}
		case "seconds":
			seconds = pair.Value.Num
		}
	}
	u.Value = timeutil.Length(seconds * float64(timeutil.Second))
	return u, nil
}
