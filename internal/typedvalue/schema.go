package typedvalue

import (
	"fmt"

	"utms/internal/timeutil"
)

// AttributeSchema describes one declared attribute of an EntityType
//. A declared type always overrides whatever InferType would
// have guessed from a raw value.
type AttributeSchema struct {
	DeclaredType             FieldType
	ItemType                 *FieldType
	ItemSchemaType           string
	EnumChoices              []string
	Required                 bool
	DefaultValue             any
	ReferencedEntityType     string
	ReferencedEntityCategory string
}

// EntityType is a named record schema: a map from canonical attribute name
// to its AttributeSchema. Key is matched case-insensitively and is globally
// unique across every loaded schema file.
type EntityType struct {
	Key          string
	DisplayName  string
	Attributes   map[string]AttributeSchema
	SourceFile   string
}

// ComplexType is a named record schema usable as an ItemSchemaType inside a
// list or dict attribute, rather than as a standalone entity type.
type ComplexType struct {
	Key        string
	Attributes map[string]AttributeSchema
	SourceFile string
}

// InferType guesses a FieldType for a raw, undeclared value. It is used
// only when no AttributeSchema governs the attribute: declared types
// always override inferred types.
func InferType(value any) FieldType {
	switch v := value.(type) {
	case bool:
		return Boolean
	case int, int64:
		return Integer
	case float64:
		return Decimal
	case timeutil.Instant:
		return Timestamp
	case timeutil.Length:
		return TimeLength
	case timeutil.Range:
		return TimeRange
	case []any:
		return List
	case map[string]any:
		return Dict
	case string:
		if len(v) >= 2 && v[0] == '(' && v[len(v)-1] == ')' {
			return Code
		}
		return String
	default:
		return String
	}
}

// Construct builds a TypedValue from a raw source value and the attribute
// schema that governs it, applying every coercion rule construct(value,
// schema) is specified to perform. When is_dynamic is true,
// originalSource must be the verbatim expression text; value is then either
// the unresolved AST the evaluator will later fill in, or its most recently
// resolved result.
func Construct(raw any, schema AttributeSchema, isDynamic bool, originalSource string) (TypedValue, error) {
	opts := []Option{}
	if schema.ItemType != nil {
		opts = append(opts, WithItemType(*schema.ItemType))
	}
	if schema.ItemSchemaType != "" {
		opts = append(opts, WithItemSchemaType(schema.ItemSchemaType))
	}
	if len(schema.EnumChoices) > 0 {
		opts = append(opts, WithEnumChoices(schema.EnumChoices))
	}
	if schema.ReferencedEntityType != "" || schema.ReferencedEntityCategory != "" {
		opts = append(opts, WithReference(schema.ReferencedEntityType, schema.ReferencedEntityCategory))
	}
	if isDynamic {
		opts = append(opts, WithDynamic(originalSource))
	}
	if raw == nil && schema.DefaultValue != nil {
		raw = schema.DefaultValue
	}
	ft := schema.DeclaredType
	if ft == "" {
		ft = InferType(raw)
	}
	return New(raw, ft, opts...)
}

// SourceForm holds a parsed but not-yet-typed attribute value as read off
// disk: its raw literal, whether it was a quoted (dynamic) expression, and,
// if so, the verbatim text of that expression.
type SourceForm struct {
	Raw            any
	IsDynamic      bool
	OriginalSource string
}

// Deserialize reconstructs a TypedValue from its on-disk SourceForm using
// the governing attribute schema. It is the inverse of Serialize: for a
// dynamic attribute, Deserialize(Serialize(tv)) must reproduce tv exactly
// which is why SourceForm carries OriginalSource through
// unchanged rather than re-parsing it.
func Deserialize(sf SourceForm, schema AttributeSchema) (TypedValue, error) {
	if sf.IsDynamic {
		return Construct(sf.Raw, schema, true, sf.OriginalSource)
	}
	return Construct(sf.Raw, schema, false, "")
}

// DeserializeRuntime reconstructs a TypedValue from a RuntimeForm produced
// by SerializeForRuntime, given the same governing schema.
func DeserializeRuntime(rf RuntimeForm, schema AttributeSchema) (TypedValue, error) {
	raw, err := rawFromRuntime(rf.Value, schema.DeclaredType)
	if err != nil {
		return TypedValue{}, err
	}
	return Construct(raw, schema, rf.IsDynamic, "")
}

func rawFromRuntime(v any, ft FieldType) (any, error) {
	switch ft {
	case TimeRange:
		m, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("typedvalue: expected timerange object, got %T", v)
		}
		return m, nil
	case List:
		items, ok := v.([]any)
		if !ok {
			return nil, fmt.Errorf("typedvalue: expected list, got %T", v)
		}
		out := make([]any, len(items))
		for i, item := range items {
			m, ok := item.(map[string]any)
			if !ok {
				out[i] = item
				continue
			}
			out[i] = m["value"]
		}
		return out, nil
	default:
		return v, nil
	}
}
