package server

import (
	"testing"
	"time"
)

func TestIsDue(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	recent := now.Add(-30 * time.Minute)
	old := now.Add(-25 * time.Hour)

	cases := []struct {
		name string
		spec string
		last *time.Time
		want bool
	}{
		{"daily never run", "@daily", nil, true},
		{"daily ran recently", "@daily", &recent, false},
		{"daily ran yesterday", "@daily", &old, true},
		{"hourly ran recently", "@hourly", &recent, false},
		{"hourly overdue", "@hourly", &old, true},
		{"cron never run", "0 6 * * *", nil, true},
		{"cron fired since last", "0 6 * * *", &old, true},
		{"cron not yet due", "0 18 * * *", &recent, false},
		{"invalid spec treated as daily", "not-a-cron", &recent, false},
		{"invalid spec overdue", "not-a-cron", &old, true},
	}
	for _, tc := range cases {
		if got := isDue(tc.spec, tc.last, now); got != tc.want {
			t.Errorf("%s: isDue(%q) = %v, want %v", tc.name, tc.spec, got, tc.want)
		}
	}
}
