package plugin

import "testing"

func TestPredicateSatisfies(t *testing.T) {
	cases := []struct {
		predicate string
		version   string
		want      bool
	}{
		{"1.2.3", "1.2.3", true},
		{"=1.2.3", "1.2.4", false},
		{">1.0.0", "1.0.1", true},
		{">1.0.0", "1.0.0", false},
		{">=1.0.0", "1.0.0", true},
		{"<2.0.0", "1.9.9", true},
		{"<=2.0.0", "2.0.0", true},
		{"!=1.0.0", "1.0.1", true},
		{"!=1.0.0", "1.0.0", false},
		{"~=1.2.0", "1.2.9", true},
		{"~=1.2.0", "1.3.0", false},
		{"^1.2.0", "1.9.0", true},
		{"^1.2.0", "2.0.0", false},
	}

	for _, c := range cases {
		pred, err := ParsePredicate(c.predicate)
		if err != nil {
			t.Fatalf("ParsePredicate(%q): %v", c.predicate, err)
		}
		got, err := pred.Satisfies(c.version)
		if err != nil {
			t.Fatalf("Satisfies(%q) against %q: %v", c.predicate, c.version, err)
		}
		if got != c.want {
			t.Errorf("predicate %q against %q = %v, want %v", c.predicate, c.version, got, c.want)
		}
	}
}

func TestPredicateRoundTrip(t *testing.T) {
	// Semver predicate round-trip: parsing "{op}{literal}" and evaluating
	// against literal yields true for {=,>=,<=,~=,^} and false for {>,<,!=}.
	trueOps := []string{"=", ">=", "<=", "~=", "^"}
	falseOps := []string{">", "<", "!="}
	literal := "1.4.2"

	for _, op := range trueOps {
		pred, err := ParsePredicate(op + literal)
		if err != nil {
			t.Fatalf("ParsePredicate(%q): %v", op+literal, err)
		}
		got, err := pred.Satisfies(literal)
		if err != nil {
			t.Fatalf("Satisfies: %v", err)
		}
		if !got {
			t.Errorf("%q against its own literal = false, want true", op+literal)
		}
	}

	for _, op := range falseOps {
		pred, err := ParsePredicate(op + literal)
		if err != nil {
			t.Fatalf("ParsePredicate(%q): %v", op+literal, err)
		}
		got, err := pred.Satisfies(literal)
		if err != nil {
			t.Fatalf("Satisfies: %v", err)
		}
		if got {
			t.Errorf("%q against its own literal = true, want false", op+literal)
		}
	}
}

func TestParsePredicateRejectsUnknownOperatorAndMalformedVersion(t *testing.T) {
	if _, err := ParsePredicate("~1.0.0"); err == nil {
		t.Error("expected error for unsupported operator prefix")
	}
	if _, err := ParsePredicate(">=not-a-version"); err == nil {
		t.Error("expected error for malformed semver literal")
	}
}
