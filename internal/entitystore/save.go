package entitystore

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"utms/internal/sexpr"
	"utms/internal/typedvalue"
)

// SaveCategoryFile rewrites sourceFile with every entity in the store whose
// SourceFile matches it, in a stable (name-sorted) order. Writes are
// whole-file replacements. The attribute writer uses
// chronoiconic Serialize so dynamic attributes keep their original source
// text byte-for-byte.
func (s *Store) SaveCategoryFile(sourceFile string) error {
	s.mu.RLock()
	var entities []*Entity
	for _, k := range s.order {
		e := s.entities[k]
		if e.SourceFile == sourceFile {
			entities = append(entities, e)
		}
	}
	s.mu.RUnlock()

	sort.Slice(entities, func(i, j int) bool { return entities[i].Name < entities[j].Name })

	var sb strings.Builder
	for i, e := range entities {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(renderEntityForm(e))
	}
	sb.WriteByte('\n')

	tmp := sourceFile + ".tmp"
	if err := os.WriteFile(tmp, []byte(sb.String()), 0o644); err != nil {
		return fmt.Errorf("entitystore: writing %s: %w", sourceFile, err)
	}
	return os.Rename(tmp, sourceFile)
}

func renderEntityForm(e *Entity) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "(def-%s %q\n", e.TypeKey, e.Name)

	names := make([]string, 0, len(e.Attributes))
	for name := range e.Attributes {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		tv := e.Attributes[name]
		fmt.Fprintf(&sb, "  (%s %s)\n", name, renderAttrValue(tv))
	}
	sb.WriteString(")")
	return sb.String()
}

func renderAttrValue(tv typedvalue.TypedValue) string {
	if tv.IsDynamic {
		return "'" + tv.OriginalSource
	}
	if node, ok := tv.Value.(sexpr.Node); ok {
		return sexpr.Write(node)
	}
	return typedvalue.Serialize(tv)
}
