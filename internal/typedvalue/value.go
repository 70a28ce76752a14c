package typedvalue

import (
	"fmt"
	"strconv"
	"strings"

	"utms/internal/timeutil"
)

// TypedValue pairs a resolved value with the type information needed to
// serialize it back to source. When IsDynamic is true, OriginalSource
// holds the verbatim expression text the value was parsed from, and Value
// holds the most recently resolved result (or an unresolved AST, for the
// eval package to fill in later). Serializing and then deserializing a
// TypedValue always yields an equal one.
type TypedValue struct {
	FieldType FieldType
	Value     any

	// ItemType governs coercion of List/Dict elements.
	ItemType *FieldType
	// ItemSchemaType names a ComplexType record elements must conform to.
	ItemSchemaType string

	EnumChoices []string

	ReferencedEntityType     string
	ReferencedEntityCategory string

	IsDynamic      bool
	OriginalSource string
}

// Ref holds an unresolved entity-reference key. Dereferencing is lazy
//: construction only normalizes the key, it never looks up
// the referenced entity.
type Ref struct {
	Key string
}

// New constructs a TypedValue of the given type from a raw source value,
// applying the declared attribute type's coercion rules. It is the non-dynamic
// counterpart of the evaluator's resolved-value path: callers holding a
// quoted expression should set IsDynamic/OriginalSource themselves once the
// evaluator has produced a concrete value.
func New(raw any, ft FieldType, opts ...Option) (TypedValue, error) {
	tv := TypedValue{FieldType: ft}
	for _, o := range opts {
		o(&tv)
	}
	v, err := coerce(raw, ft, &tv)
	if err != nil {
		return TypedValue{}, err
	}
	tv.Value = v
	return tv, nil
}

// Option configures optional TypedValue fields at construction time.
type Option func(*TypedValue)

func WithItemType(it FieldType) Option        { return func(tv *TypedValue) { tv.ItemType = &it } }
func WithItemSchemaType(name string) Option   { return func(tv *TypedValue) { tv.ItemSchemaType = name } }
func WithEnumChoices(choices []string) Option { return func(tv *TypedValue) { tv.EnumChoices = choices } }
func WithReference(entityType, category string) Option {
	return func(tv *TypedValue) {
		tv.ReferencedEntityType = entityType
		tv.ReferencedEntityCategory = category
	}
}
func WithDynamic(source string) Option {
	return func(tv *TypedValue) {
		tv.IsDynamic = true
		tv.OriginalSource = source
	}
}

func coerce(raw any, ft FieldType, tv *TypedValue) (any, error) {
	if raw == nil {
		return nil, nil
	}
	switch ft {
	case String:
		return coerceString(raw), nil
	case Integer:
		return coerceInteger(raw)
	case Decimal:
		return coerceDecimal(raw)
	case Boolean:
		return coerceBoolean(raw), nil
	case Timestamp:
		return coerceTimestamp(raw)
	case TimeLength:
		return coerceTimeLength(raw)
	case TimeRange:
		return coerceTimeRange(raw)
	case Enum:
		return coerceEnum(raw, tv.EnumChoices), nil
	case List:
		return coerceList(raw, tv)
	case Dict:
		return coerceDict(raw, tv)
	case Code:
		return raw, nil
	case EntityReference:
		return coerceReference(raw), nil
	case DateTime:
		return coerceTimestamp(raw)
	default:
		return raw, nil
	}
}

func coerceString(raw any) string {
	if s, ok := raw.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", raw)
}

func coerceInteger(raw any) (int64, error) {
	switch v := raw.(type) {
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		return int64(v), nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("typedvalue: invalid integer %q: %w", v, err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("typedvalue: cannot coerce %T to integer", raw)
	}
}

func coerceDecimal(raw any) (float64, error) {
	switch v := raw.(type) {
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case float64:
		return v, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("typedvalue: invalid decimal %q: %w", v, err)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("typedvalue: cannot coerce %T to decimal", raw)
	}
}

func coerceBoolean(raw any) bool {
	switch v := raw.(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "yes", "1", "t", "y":
			return true
		default:
			return false
		}
	case int:
		return v != 0
	case int64:
		return v != 0
	case float64:
		return v != 0
	default:
		return raw != nil
	}
}

func coerceTimestamp(raw any) (timeutil.Instant, error) {
	switch v := raw.(type) {
	case timeutil.Instant:
		return v, nil
	case int64:
		return timeutil.Instant(v), nil
	case float64:
		return timeutil.Instant(v), nil
	default:
		return 0, fmt.Errorf("typedvalue: cannot coerce %T to timestamp", raw)
	}
}

func coerceTimeLength(raw any) (timeutil.Length, error) {
	switch v := raw.(type) {
	case timeutil.Length:
		return v, nil
	case int64:
		return timeutil.Length(v), nil
	case float64:
		return timeutil.Length(v), nil
	default:
		return 0, fmt.Errorf("typedvalue: cannot coerce %T to timelength", raw)
	}
}

func coerceTimeRange(raw any) (timeutil.Range, error) {
	switch v := raw.(type) {
	case timeutil.Range:
		return v, nil
	case map[string]any:
		start, err := coerceTimestamp(v["start"])
		if err != nil {
			return timeutil.Range{}, err
		}
		dur, err := coerceTimeLength(v["duration"])
		if err != nil {
			return timeutil.Range{}, err
		}
		return timeutil.Range{Start: start, Duration: dur}, nil
	default:
		return timeutil.Range{}, fmt.Errorf("typedvalue: cannot coerce %T to timerange", raw)
	}
}

func coerceEnum(raw any, choices []string) string {
	if len(choices) == 0 {
		return ""
	}
	s := strings.ToLower(fmt.Sprintf("%v", raw))
	for _, c := range choices {
		if strings.ToLower(c) == s {
			return c
		}
	}
	return choices[0]
}

func coerceList(raw any, tv *TypedValue) ([]TypedValue, error) {
	items, ok := raw.([]any)
	if !ok {
		items = []any{raw}
	}
	out := make([]TypedValue, 0, len(items))
	itemType := String
	if tv.ItemType != nil {
		itemType = *tv.ItemType
	}
	for _, item := range items {
		itv, err := New(item, itemType)
		if err != nil {
			return nil, err
		}
		out = append(out, itv)
	}
	return out, nil
}

func coerceDict(raw any, tv *TypedValue) (map[string]TypedValue, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		m = map[string]any{"value": raw}
	}
	out := make(map[string]TypedValue, len(m))
	itemType := String
	if tv.ItemType != nil {
		itemType = *tv.ItemType
	}
	for k, v := range m {
		itv, err := New(v, itemType)
		if err != nil {
			return nil, err
		}
		out[k] = itv
	}
	return out, nil
}

func coerceReference(raw any) Ref {
	if r, ok := raw.(Ref); ok {
		return r
	}
	return Ref{Key: strings.ToLower(strings.TrimSpace(fmt.Sprintf("%v", raw)))}
}
