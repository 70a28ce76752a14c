package entitystore

import (
	"fmt"
	"strings"

	"utms/internal/sexpr"
	"utms/internal/typedvalue"
	"utms/internal/utmserrors"
)

// ParseSchemaForms extracts every def-entity and def-type form from a
// parsed schema file.
func ParseSchemaForms(forms []sexpr.Node, sourceFile string) ([]typedvalue.EntityType, []typedvalue.ComplexType, error) {
	var types []typedvalue.EntityType
	var complexTypes []typedvalue.ComplexType
	for _, form := range forms {
		children, ok := form.AsList()
		if !ok || len(children) < 2 || children[0].Kind != sexpr.Symbol {
			return nil, nil, fmt.Errorf("%w: malformed top-level form in %s", utmserrors.ErrParse, sourceFile)
		}
		switch children[0].Str {
		case "def-entity":
			et, err := parseEntityTypeForm(children[1:], sourceFile)
			if err != nil {
				return nil, nil, err
			}
			types = append(types, et)
		case "def-type":
			ct, err := parseComplexTypeForm(children[1:], sourceFile)
			if err != nil {
				return nil, nil, err
			}
			complexTypes = append(complexTypes, ct)
		}
	}
	return types, complexTypes, nil
}

// parseEntityTypeForm parses the body of (def-entity "TASK" entity-type
// (attr-name {:type "..." ...}) ...).
func parseEntityTypeForm(children []sexpr.Node, sourceFile string) (typedvalue.EntityType, error) {
	if len(children) < 1 || children[0].Kind != sexpr.StringLit {
		return typedvalue.EntityType{}, fmt.Errorf("%w: def-entity requires a string key in %s", utmserrors.ErrParse, sourceFile)
	}
	displayName := children[0].Str
	attrs := make(map[string]typedvalue.AttributeSchema)
	// children[1] is the literal "entity-type" marker symbol; attribute
	// forms start after it, if present.
	rest := children[1:]
	if len(rest) > 0 && rest[0].Kind == sexpr.Symbol {
		rest = rest[1:]
	}
	for _, attrForm := range rest {
		nameNode, schemaNode, ok := attrPair(attrForm)
		if !ok {
			return typedvalue.EntityType{}, fmt.Errorf("%w: malformed attribute form in %s", utmserrors.ErrParse, sourceFile)
		}
		schema, err := parseAttributeSchema(schemaNode)
		if err != nil {
			return typedvalue.EntityType{}, err
		}
		attrs[CanonicalAttrName(nameNode.Str)] = schema
	}
	return typedvalue.EntityType{
		Key:         strings.ToLower(displayName),
		DisplayName: displayName,
		Attributes:  attrs,
		SourceFile:  sourceFile,
	}, nil
}

func parseComplexTypeForm(children []sexpr.Node, sourceFile string) (typedvalue.ComplexType, error) {
	if len(children) < 1 || children[0].Kind != sexpr.StringLit {
		return typedvalue.ComplexType{}, fmt.Errorf("%w: def-type requires a string key in %s", utmserrors.ErrParse, sourceFile)
	}
	key := children[0].Str
	attrs := make(map[string]typedvalue.AttributeSchema)
	for _, attrForm := range children[1:] {
		nameNode, schemaNode, ok := attrPair(attrForm)
		if !ok {
			continue
		}
		schema, err := parseAttributeSchema(schemaNode)
		if err != nil {
			return typedvalue.ComplexType{}, err
		}
		attrs[CanonicalAttrName(nameNode.Str)] = schema
	}
	return typedvalue.ComplexType{Key: strings.ToLower(key), Attributes: attrs, SourceFile: sourceFile}, nil
}

// attrPair splits an (attr-name {...}) form into its name symbol and map.
func attrPair(form sexpr.Node) (name, schemaMap sexpr.Node, ok bool) {
	children, isList := form.AsList()
	if !isList || len(children) != 2 || children[0].Kind != sexpr.Symbol || children[1].Kind != sexpr.Map {
		return sexpr.Node{}, sexpr.Node{}, false
	}
	return children[0], children[1], true
}

func parseAttributeSchema(m sexpr.Node) (typedvalue.AttributeSchema, error) {
	var schema typedvalue.AttributeSchema
	for _, pair := range m.MapPairs() {
		switch pair.Key.Str {
		case "type":
			schema.DeclaredType = typedvalue.ParseFieldType(pair.Value.Str)
		case "item_type":
			it := typedvalue.ParseFieldType(pair.Value.Str)
			schema.ItemType = &it
		case "item_schema_type":
			schema.ItemSchemaType = pair.Value.Str
		case "required":
			schema.Required = pair.Value.Kind == sexpr.Bool && pair.Value.BoolVal
		case "default_value":
			schema.DefaultValue = literalGoValue(pair.Value)
		case "enum_choices":
			for _, c := range pair.Value.Children {
				schema.EnumChoices = append(schema.EnumChoices, c.Str)
			}
		case "referenced_entity_type":
			schema.ReferencedEntityType = pair.Value.Str
		case "referenced_entity_category":
			schema.ReferencedEntityCategory = pair.Value.Str
		}
	}
	return schema, nil
}

// literalGoValue converts a non-dynamic sexpr literal node to a plain Go
// value suitable as a TypedValue construction input.
func literalGoValue(n sexpr.Node) any {
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
			out[i] = literalGoValue(c)
		}
		return out
	case sexpr.Map:
		out := make(map[string]any)
		for _, p := range n.MapPairs() {
			out[p.Key.Str] = literalGoValue(p.Value)
		}
		return out
	default:
		return nil
	}
}
