package sexpr

import "testing"

func TestReadAllTopLevelForms(t *testing.T) {
	src := `
(def-entity "TASK" entity-type
  (description {:type "string" :required true})
  (priority {:type "enum" :enum_choices ["low" "med" "high"]}))

(def-pattern "daily-9am"
  (every "1d") (at "09:00"))
`
	forms, err := ReadAll(src)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(forms) != 2 {
		t.Fatalf("expected 2 top-level forms, got %d", len(forms))
	}
	if forms[0].Kind != List {
		t.Fatalf("expected List, got %v", forms[0].Kind)
	}
	head := forms[0].Children[0]
	if head.Kind != Symbol || head.Str != "def-entity" {
		t.Fatalf("expected def-entity symbol, got %+v", head)
	}
}

func TestReadMapAndVector(t *testing.T) {
	n, err := ReadOne(`{:type "string" :required true}`)
	if err != nil {
		t.Fatalf("ReadOne: %v", err)
	}
	pairs := n.MapPairs()
	if len(pairs) != 2 {
		t.Fatalf("expected 2 pairs, got %d", len(pairs))
	}
	if pairs[0].Key.Str != "type" || pairs[0].Value.Str != "string" {
		t.Fatalf("unexpected pair: %+v", pairs[0])
	}

	v, err := ReadOne(`["low" "med" "high"]`)
	if err != nil {
		t.Fatalf("ReadOne vector: %v", err)
	}
	if v.Kind != Vector || len(v.Children) != 3 {
		t.Fatalf("expected 3-element vector, got %+v", v)
	}
}

func TestReadQuotedPreservesVerbatimText(t *testing.T) {
	src := `'(notify "me" "due now")`
	n, err := ReadOne(src)
	if err != nil {
		t.Fatalf("ReadOne: %v", err)
	}
	if n.Kind != Quoted {
		t.Fatalf("expected Quoted, got %v", n.Kind)
	}
	if n.Text != src {
		t.Fatalf("Text = %q, want %q", n.Text, src)
	}
	if Write(n) != src {
		t.Fatalf("Write() = %q, want verbatim %q", Write(n), src)
	}
}

func TestReadNumberBoolNil(t *testing.T) {
	n, err := ReadOne("42")
	if err != nil || n.Kind != Number || n.Num != 42 {
		t.Fatalf("number parse failed: %+v, err=%v", n, err)
	}
	b, err := ReadOne("true")
	if err != nil || b.Kind != Bool || !b.BoolVal {
		t.Fatalf("bool parse failed: %+v, err=%v", b, err)
	}
	nilNode, err := ReadOne("nil")
	if err != nil || nilNode.Kind != Nil {
		t.Fatalf("nil parse failed: %+v, err=%v", nilNode, err)
	}
}

func TestReadUnterminatedFormErrors(t *testing.T) {
	if _, err := ReadOne(`(def-entity "TASK"`); err == nil {
		t.Fatal("expected error for unterminated list")
	}
}

func TestWriteRoundTripsStructurally(t *testing.T) {
	src := `(at "09:00")`
	n, err := ReadOne(src)
	if err != nil {
		t.Fatalf("ReadOne: %v", err)
	}
	if got := Write(n); got != src {
		t.Fatalf("Write() = %q, want %q", got, src)
	}
}
