package core

import (
	"testing"
)

func TestNewID_Unique(t *testing.T) {
	seen := make(map[ID]bool)
	for i := 0; i < 1000; i++ {
		id := NewID()
		if id.IsEmpty() {
			t.Fatal("generated ID is empty")
		}
		if seen[id] {
			t.Fatalf("duplicate ID generated: %s", id)
		}
		seen[id] = true
	}
}

func TestParseRunID(t *testing.T) {
	id, err := ParseRunID("0190b5a2-0000-7000-8000-000000000000")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id.String() == "" {
		t.Error("parsed ID is empty")
	}

	if _, err := ParseRunID("   "); err == nil {
		t.Error("blank run ID should be rejected")
	}
}

func TestFingerprint_Deterministic(t *testing.T) {
	type payload struct {
		Name  string         `json:"name"`
		Rates map[string]int `json:"rates"`
	}
	a := payload{Name: "x", Rates: map[string]int{"b": 2, "a": 1, "c": 3}}
	b := payload{Name: "x", Rates: map[string]int{"c": 3, "a": 1, "b": 2}}

	ha, err := Fingerprint(a)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	hb, err := Fingerprint(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ha.Equals(hb) {
		t.Errorf("equal values produced different fingerprints: %s vs %s", ha, hb)
	}

	hc, err := Fingerprint(payload{Name: "y", Rates: a.Rates})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ha.Equals(hc) {
		t.Error("different values produced the same fingerprint")
	}
}

func TestHash(t *testing.T) {
	h := NewHash([]byte("abc"))
	if len(h) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(h))
	}
	if h.IsEmpty() {
		t.Error("hash should not be empty")
	}
	if !h.Equals(NewHash([]byte("abc"))) {
		t.Error("identical input must hash identically")
	}
}
