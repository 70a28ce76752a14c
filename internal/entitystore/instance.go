package entitystore

import (
	"fmt"
	"strings"

	"utms/internal/sexpr"
	"utms/internal/typedvalue"
	"utms/internal/utmserrors"
)

// ParseEntityForms extracts every instance form from a category file's
// parsed forms ("(def-task ...)" etc., one form per entity).
// The head symbol is expected to be "def-<type_key>"; forms whose head
// doesn't match et are skipped rather than erroring, so a category file
// may in principle mix forms (not required by the spec, but harmless).
func ParseEntityForms(forms []sexpr.Node, et typedvalue.EntityType, category, sourceFile string) ([]*Entity, error) {
	wantHead := "def-" + et.Key
	var out []*Entity
	for _, form := range forms {
		children, ok := form.AsList()
		if !ok || len(children) < 1 || children[0].Kind != sexpr.Symbol {
			continue
		}
		if strings.ToLower(children[0].Str) != wantHead {
			continue
		}
		if len(children) < 2 || children[1].Kind != sexpr.StringLit {
			return nil, fmt.Errorf("%w: %s requires a string name in %s", utmserrors.ErrParse, wantHead, sourceFile)
		}
		name := children[1].Str
		e := &Entity{
			Name:       name,
			TypeKey:    et.Key,
			Category:   category,
			Attributes: make(map[string]typedvalue.TypedValue),
			SourceFile: sourceFile,
		}
		for _, attrForm := range children[2:] {
			attrChildren, isList := attrForm.AsList()
			if !isList || len(attrChildren) != 2 || attrChildren[0].Kind != sexpr.Symbol {
				continue
			}
			attrName := CanonicalAttrName(attrChildren[0].Str)
			valueNode := attrChildren[1]
			if err := applyAttribute(e, et, attrName, valueNode); err != nil {
				return nil, err
			}
		}
		if err := applyDefaults(e, et); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func applyAttribute(e *Entity, et typedvalue.EntityType, attrName string, valueNode sexpr.Node) error {
	schema, known := et.Attributes[attrName]
	var raw any
	isDynamic := false
	originalSource := ""

	if valueNode.Kind == sexpr.Quoted {
		isDynamic = true
		originalSource = valueNode.Children[0].Text
		// The unresolved AST is stored as the value; the scheduler/eval
		// package resolves it later and updates the attribute in place.
		raw = valueNode.Children[0]
	} else {
		raw = literalGoValue(valueNode)
	}

	if !known {
		// Undeclared attribute: infer its type rather than rejecting the
		// whole entity, since hook attributes (on_<attr>_hook) and cursor
		// attributes are never part of the declared schema.
		e.Attributes[attrName] = typedvalue.TypedValue{
			FieldType:      typedvalue.InferType(raw),
			Value:          raw,
			IsDynamic:      isDynamic,
			OriginalSource: originalSource,
		}
		return nil
	}

	tv, err := typedvalue.Construct(raw, schema, isDynamic, originalSource)
	if err != nil {
		return fmt.Errorf("%w: %s.%s: %v", utmserrors.ErrValidation, e.Identifier(), attrName, err)
	}
	e.Attributes[attrName] = tv
	return nil
}

func applyDefaults(e *Entity, et typedvalue.EntityType) error {
	for name, schema := range et.Attributes {
		if _, present := e.Attributes[name]; present {
			continue
		}
		if schema.Required && schema.DefaultValue == nil {
			return fmt.Errorf("%w: %s missing required attribute %q", utmserrors.ErrValidation, e.Identifier(), name)
		}
		tv, err := typedvalue.Construct(schema.DefaultValue, schema, false, "")
		if err != nil {
			return fmt.Errorf("%w: %s.%s default: %v", utmserrors.ErrValidation, e.Identifier(), name, err)
		}
		e.Attributes[name] = tv
	}
	return nil
}
