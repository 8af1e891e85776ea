package outbox

import "testing"

func TestSubjectForEvent(t *testing.T) {
	cases := []struct {
		aggregateType, eventType, want string
	}{
		{"item", "item.created", "items.item.created"},
		{"claim", "claim.enqueued", "claims.claim.enqueued"},
		{"", "unknown", "items.unknown"},
	}
	for _, c := range cases {
		if got := SubjectForEvent(c.aggregateType, c.eventType); got != c.want {
			t.Errorf("SubjectForEvent(%q, %q) = %q, want %q", c.aggregateType, c.eventType, got, c.want)
		}
	}
}
