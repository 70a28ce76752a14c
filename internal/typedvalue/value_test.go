package typedvalue

import (
	"testing"
)

func TestConstructBooleanFromStringSynonyms(t *testing.T) {
	for _, s := range []string{"true", "yes", "1", "T", "Y"} {
		tv, err := New(s, Boolean)
		if err != nil {
			t.Fatalf("New(%q): %v", s, err)
		}
		if tv.Value != true {
			t.Fatalf("New(%q) = %v, want true", s, tv.Value)
		}
	}
	tv, err := New("no", Boolean)
	if err != nil {
		t.Fatalf("New(no): %v", err)
	}
	if tv.Value != false {
		t.Fatalf("New(no) = %v, want false", tv.Value)
	}
}

func TestConstructIntegerWidening(t *testing.T) {
	tv, err := New(true, Integer)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if tv.Value != int64(1) {
		t.Fatalf("bool->int widening: got %v", tv.Value)
	}
}

func TestConstructListRecursesItemType(t *testing.T) {
	tv, err := New([]any{"1", "2", "3"}, List, WithItemType(Integer))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	items, ok := tv.Value.([]TypedValue)
	if !ok || len(items) != 3 {
		t.Fatalf("expected 3 coerced items, got %#v", tv.Value)
	}
	if items[0].Value != int64(1) {
		t.Fatalf("expected first item coerced to int64(1), got %v", items[0].Value)
	}
}

func TestConstructEnumFallsBackToFirstChoice(t *testing.T) {
	tv, err := New("bogus", Enum, WithEnumChoices([]string{"red", "green", "blue"}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if tv.Value != "red" {
		t.Fatalf("expected fallback to first choice, got %v", tv.Value)
	}
	tv2, err := New("GREEN", Enum, WithEnumChoices([]string{"red", "green", "blue"}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if tv2.Value != "green" {
		t.Fatalf("expected case-insensitive match, got %v", tv2.Value)
	}
}

func TestSerializeDynamicPreservesOriginalSource(t *testing.T) {
	tv, err := New("(+ 2h 15m)", Code, WithDynamic("(+ 2h 15m)"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := Serialize(tv); got != "(+ 2h 15m)" {
		t.Fatalf("Serialize() = %q, want verbatim source", got)
	}
}

func TestDeserializeRoundTrip(t *testing.T) {
	schema := AttributeSchema{DeclaredType: Integer}
	sf := SourceForm{Raw: "42"}
	tv, err := Deserialize(sf, schema)
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if tv.Value != int64(42) {
		t.Fatalf("got %v, want 42", tv.Value)
	}
	back := Serialize(tv)
	tv2, err := Deserialize(SourceForm{Raw: back}, schema)
	if err != nil {
		t.Fatalf("Deserialize round trip: %v", err)
	}
	if tv2.Value != tv.Value {
		t.Fatalf("round trip mismatch: %v != %v", tv2.Value, tv.Value)
	}
}

func TestInferTypeCodeDetection(t *testing.T) {
	if InferType("(+ 1 2)") != Code {
		t.Fatal("expected parenthesized string to infer as Code")
	}
	if InferType("plain") != String {
		t.Fatal("expected plain string to infer as String")
	}
}

func TestReferenceNotDereferencedAtConstruction(t *testing.T) {
	tv, err := New("My-Task", EntityReference)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ref, ok := tv.Value.(Ref)
	if !ok {
		t.Fatalf("expected Ref, got %T", tv.Value)
	}
	if ref.Key != "my-task" {
		t.Fatalf("expected normalized lowercase key, got %q", ref.Key)
	}
}
