package memory

import "testing"

func TestParseDecisionTextValid(t *testing.T) {
	got, err := ParseDecisionText("I chose PostgreSQL because we need ACID. This affects all data models.")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.What != "PostgreSQL" {
		t.Errorf("What = %q, want PostgreSQL", got.What)
	}
	if got.Why != "we need ACID" {
		t.Errorf("Why = %q, want %q", got.Why, "we need ACID")
	}
	if got.Affects != "all data models" {
		t.Errorf("Affects = %q, want %q", got.Affects, "all data models")
	}
}

func TestParseDecisionTextMalformed(t *testing.T) {
	_, err := ParseDecisionText("Using PostgreSQL")
	if err != ErrMalformedDecision {
		t.Fatalf("expected ErrMalformedDecision, got %v", err)
	}
}

func TestParseDecisionTextMissingAffects(t *testing.T) {
	_, err := ParseDecisionText("I chose PostgreSQL because we need ACID.")
	if err != ErrMalformedDecision {
		t.Fatalf("expected ErrMalformedDecision, got %v", err)
	}
}
