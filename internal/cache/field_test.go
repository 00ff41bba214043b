package cache

import "testing"

func TestFieldStates(t *testing.T) {
	unset := Unset[string]()
	if unset.Supplied() {
		t.Error("Expected unset field not supplied")
	}
	if unset.Ptr() != nil {
		t.Error("Expected nil pointer for an unset field")
	}

	cleared := Clear[string]()
	if !cleared.Supplied() {
		t.Error("Expected cleared field supplied")
	}
	if cleared.Ptr() != nil {
		t.Error("Expected nil pointer for a cleared field")
	}

	set := Set("value")
	if !set.Supplied() {
		t.Error("Expected set field supplied")
	}
	p := set.Ptr()
	if p == nil || *p != "value" {
		t.Fatalf("Expected pointer to the value, got %v", p)
	}

	// The pointer is a copy; mutating it must not reach the field.
	*p = "mutated"
	if q := set.Ptr(); *q != "value" {
		t.Errorf("Expected the field unchanged, got %q", *q)
	}
}
