package plugin

import "testing"

func TestSubscriptionMatchesLaw(t *testing.T) {
	ev := Event{EventType: "ui/update", Payload: map[string]any{"panel": "main", "x": 1}}

	cases := []struct {
		name string
		sub  Subscription
		want bool
	}{
		{"exact type, no filter", Subscription{EventType: "ui/update"}, true},
		{"wildcard", Subscription{EventType: "*"}, true},
		{"wrong type", Subscription{EventType: "ui/other"}, false},
		{"filter matches", Subscription{EventType: "ui/update", FilterCriteria: map[string]any{"panel": "main"}}, true},
		{"filter mismatches value", Subscription{EventType: "ui/update", FilterCriteria: map[string]any{"panel": "other"}}, false},
		{"filter key missing", Subscription{EventType: "ui/update", FilterCriteria: map[string]any{"missing": "x"}}, false},
	}

	for _, c := range cases {
		if got := c.sub.Matches(ev); got != c.want {
			t.Errorf("%s: Matches = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestSubscriptionMatchesCompositeFilterValues(t *testing.T) {
	ev := Event{EventType: "x", Payload: map[string]any{"tags": []any{"a", "b"}}}
	sub := Subscription{EventType: "x", FilterCriteria: map[string]any{"tags": []any{"a", "b"}}}
	if !sub.Matches(ev) {
		t.Fatal("expected structural equality to match equal slices")
	}

	sub2 := Subscription{EventType: "x", FilterCriteria: map[string]any{"tags": []any{"a", "c"}}}
	if sub2.Matches(ev) {
		t.Fatal("expected mismatch for different slice contents")
	}
}
