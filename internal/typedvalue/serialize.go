package typedvalue

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"utms/internal/timeutil"
)

// Serialize renders tv in on-disk source form. When IsDynamic is set, the
// verbatim OriginalSource is emitted unchanged (chronoiconicity: code is
// data, so the expression a user wrote is what comes back out), never a
// re-rendering of its resolved value.
func Serialize(tv TypedValue) string {
	if tv.IsDynamic && tv.OriginalSource != "" {
		return tv.OriginalSource
	}
	return formatLiteral(tv.Value, tv.FieldType)
}

func formatLiteral(v any, ft FieldType) string {
	if v == nil {
		return "nil"
	}
	switch ft {
	case String, Code, EntityReference:
		return fmt.Sprintf("%q", fmt.Sprintf("%v", v))
	case Integer:
		return fmt.Sprintf("%v", v)
	case Decimal:
		return strconv.FormatFloat(v.(float64), 'g', -1, 64)
	case Boolean:
		if b, _ := v.(bool); b {
			return "true"
		}
		return "false"
	case Timestamp, DateTime:
		if ts, ok := v.(timeutil.Instant); ok {
			return ts.String()
		}
		return fmt.Sprintf("%v", v)
	case TimeLength:
		if l, ok := v.(timeutil.Length); ok {
			return strconv.FormatFloat(l.Seconds(), 'g', -1, 64)
		}
		return fmt.Sprintf("%v", v)
	case TimeRange:
		if r, ok := v.(timeutil.Range); ok {
			return fmt.Sprintf("(timerange %s %s)", r.Start.String(),
				strconv.FormatFloat(r.Duration.Seconds(), 'g', -1, 64))
		}
		return fmt.Sprintf("%v", v)
	case Enum:
		return fmt.Sprintf("%q", v)
	case List:
		items, _ := v.([]TypedValue)
		parts := make([]string, len(items))
		for i, item := range items {
			parts[i] = Serialize(item)
		}
		return "[" + strings.Join(parts, " ") + "]"
	case Dict:
		m, _ := v.(map[string]TypedValue)
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("(%s . %s)", k, Serialize(m[k])))
		}
		return "{" + strings.Join(parts, " ") + "}"
	default:
		return fmt.Sprintf("%v", v)
	}
}

// RuntimeForm is the JSON-friendly projection of a TypedValue used by
// runtime consumers (the HTTP API, the scheduler's log lines) that should
// never see source-level detail like OriginalSource.
type RuntimeForm struct {
	Type           string `json:"type"`
	Value          any    `json:"value"`
	ItemType       string `json:"item_type,omitempty"`
	ItemSchemaType string `json:"item_schema_type,omitempty"`
	IsDynamic      bool   `json:"is_dynamic,omitempty"`
}

// SerializeForRuntime projects tv to its runtime (JSON) form.
func SerializeForRuntime(tv TypedValue) RuntimeForm {
	rf := RuntimeForm{
		Type:           string(tv.FieldType),
		ItemSchemaType: tv.ItemSchemaType,
		IsDynamic:      tv.IsDynamic,
	}
	if tv.ItemType != nil {
		rf.ItemType = string(*tv.ItemType)
	}
	rf.Value = runtimeValue(tv.Value, tv.FieldType)
	return rf
}

func runtimeValue(v any, ft FieldType) any {
	if v == nil {
		return nil
	}
	switch ft {
	case Timestamp, DateTime:
		if ts, ok := v.(timeutil.Instant); ok {
			return int64(ts)
		}
	case TimeLength:
		if l, ok := v.(timeutil.Length); ok {
			return l.Seconds()
		}
	case TimeRange:
		if r, ok := v.(timeutil.Range); ok {
			return map[string]any{
				"start":    int64(r.Start),
				"duration": r.Duration.Seconds(),
			}
		}
	case EntityReference:
		if ref, ok := v.(Ref); ok {
			return ref.Key
		}
	case List:
		if items, ok := v.([]TypedValue); ok {
			out := make([]any, len(items))
			for i, item := range items {
				out[i] = SerializeForRuntime(item)
			}
			return out
		}
	case Dict:
		if m, ok := v.(map[string]TypedValue); ok {
			out := make(map[string]any, len(m))
			for k, item := range m {
				out[k] = SerializeForRuntime(item)
			}
			return out
		}
	}
	return v
}
