package backend

import (
	"testing"
	"time"
)

func TestFilterMatches(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	row := Row{
		"user_id":          "a1",
		"read":             false,
		"last_activity_at": now,
		"age":              int64(3),
	}

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"empty filter", nil, true},
		{"string equal", Where(Eq("user_id", "a1")), true},
		{"string differs", Where(Eq("user_id", "b2")), false},
		{"bool equal", Where(Eq("read", false)), true},
		{"bool differs", Where(Eq("read", true)), false},
		{"conjunction", Where(Eq("user_id", "a1"), Eq("read", false)), true},
		{"time at bound", Where(Gte("last_activity_at", now)), true},
		{"time after bound", Where(Gte("last_activity_at", now.Add(-time.Minute))), true},
		{"time before bound", Where(Gte("last_activity_at", now.Add(time.Minute))), false},
		{"mixed numeric types", Where(Eq("age", 3)), true},
		{"missing column", Where(Eq("nope", 1)), false},
		{"time against string", Where(Gte("last_activity_at", "x")), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Matches(row); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFilterString(t *testing.T) {
	if got := Filter(nil).String(); got != "*" {
		t.Errorf("empty filter String() = %q, want %q", got, "*")
	}
	got := Where(Eq("user_id", "a1"), Eq("read", false)).String()
	want := "user_id = a1 AND read = false"
	if got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
