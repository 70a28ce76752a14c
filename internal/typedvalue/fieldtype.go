// Package typedvalue implements the typed-attribute model:
// a closed FieldType enum, a TypedValue carrying both a resolved value and,
// for dynamic attributes, the verbatim source text it was parsed from
// (chronoiconicity), and the coercion rules that turn a raw source value
// into the canonical in-memory representation for its declared type.
package typedvalue

import "strings"

// FieldType is the closed set of attribute types the store allows.
type FieldType string

const (
	String          FieldType = "string"
	Integer         FieldType = "integer"
	Decimal         FieldType = "decimal"
	Boolean         FieldType = "boolean"
	Timestamp       FieldType = "timestamp"
	TimeLength      FieldType = "timelength"
	TimeRange       FieldType = "timerange"
	List            FieldType = "list"
	Dict            FieldType = "dict"
	Code            FieldType = "code"
	Enum            FieldType = "enum"
	EntityReference FieldType = "entity-reference"
	DateTime        FieldType = "datetime"
)

// validFieldTypes is the membership set used by ParseFieldType.
var validFieldTypes = map[FieldType]bool{
	String: true, Integer: true, Decimal: true, Boolean: true,
	Timestamp: true, TimeLength: true, TimeRange: true,
	List: true, Dict: true, Code: true, Enum: true,
	EntityReference: true, DateTime: true,
}

// ParseFieldType converts a source string to a FieldType, defaulting to
// String for anything outside the closed enum, mirroring FieldType.from_string
// in the original field-type model.
func ParseFieldType(s string) FieldType {
	ft := FieldType(strings.ToLower(strings.TrimSpace(s)))
	if validFieldTypes[ft] {
		return ft
	}
	return String
}

// String renders the canonical source-form name of ft.
func (ft FieldType) String() string { return string(ft) }

// IsContainer reports whether ft holds nested items governed by an item type.
func (ft FieldType) IsContainer() bool { return ft == List || ft == Dict }
