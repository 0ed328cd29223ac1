package output

import (
	"strings"
	"testing"
	"time"

	"github.com/mvarner/replog/internal/db"
)

// TestFormatTimeAgoJustNow tests times less than a minute ago
func TestFormatTimeAgoJustNow(t *testing.T) {
	now := time.Now()
	tests := []time.Time{
		now,
		now.Add(-30 * time.Second),
		now.Add(-59 * time.Second),
	}

	for _, tm := range tests {
		result := FormatTimeAgo(tm)
		if result != "just now" {
			t.Errorf("FormatTimeAgo(%v) = %q, want 'just now'", tm, result)
		}
	}
}

// TestFormatTimeAgoMinutes tests times 1-59 minutes ago
func TestFormatTimeAgoMinutes(t *testing.T) {
	tests := []struct {
		duration time.Duration
		expected string
	}{
		{1 * time.Minute, "1m ago"},
		{2 * time.Minute, "2m ago"},
		{30 * time.Minute, "30m ago"},
		{59 * time.Minute, "59m ago"},
	}

	for _, tc := range tests {
		tm := time.Now().Add(-tc.duration)
		result := FormatTimeAgo(tm)
		if result != tc.expected {
			t.Errorf("FormatTimeAgo(-%v) = %q, want %q", tc.duration, result, tc.expected)
		}
	}
}

// TestFormatTimeAgoHours tests times 1-23 hours ago
func TestFormatTimeAgoHours(t *testing.T) {
	tests := []struct {
		duration time.Duration
		expected string
	}{
		{1 * time.Hour, "1h ago"},
		{12 * time.Hour, "12h ago"},
		{23 * time.Hour, "23h ago"},
	}

	for _, tc := range tests {
		tm := time.Now().Add(-tc.duration)
		result := FormatTimeAgo(tm)
		if result != tc.expected {
			t.Errorf("FormatTimeAgo(-%v) = %q, want %q", tc.duration, result, tc.expected)
		}
	}
}

// TestFormatTimeAgoDate tests times 7+ days ago (returns date)
func TestFormatTimeAgoDate(t *testing.T) {
	tm := time.Now().Add(-8 * 24 * time.Hour)
	result := FormatTimeAgo(tm)
	expected := tm.Format("2006-01-02")
	if result != expected {
		t.Errorf("FormatTimeAgo(-8d) = %q, want %q", result, expected)
	}
}

// TestFormatWeight tests weight rendering without trailing zeros
func TestFormatWeight(t *testing.T) {
	tests := []struct {
		weight   float64
		expected string
	}{
		{0, "0"},
		{100, "100"},
		{62.5, "62.5"},
		{20.25, "20.25"},
	}

	for _, tc := range tests {
		result := FormatWeight(tc.weight)
		if result != tc.expected {
			t.Errorf("FormatWeight(%v) = %q, want %q", tc.weight, result, tc.expected)
		}
	}
}

func TestFormatQueueStats(t *testing.T) {
	tests := []struct {
		stats    db.QueueStats
		expected string
	}{
		{db.QueueStats{}, "queue empty"},
		{db.QueueStats{Pending: 3, Total: 3}, "3 pending"},
		{db.QueueStats{Pending: 3, Failed: 1, Total: 4}, "3 pending, 1 failed"},
		{db.QueueStats{Syncing: 2, Total: 2}, "2 syncing"},
	}

	for _, tc := range tests {
		result := FormatQueueStats(tc.stats)
		if result != tc.expected {
			t.Errorf("FormatQueueStats(%+v) = %q, want %q", tc.stats, result, tc.expected)
		}
	}
}

func TestFormatSetLine(t *testing.T) {
	line := FormatSetLine(db.LocalSet{
		SetID:        "s1",
		ExerciseName: "bench press",
		Reps:         5,
		Weight:       62.5,
	})
	for _, want := range []string{"s1", "bench press", "5 x 62.5"} {
		if !strings.Contains(line, want) {
			t.Errorf("set line %q missing %q", line, want)
		}
	}
}

func TestQueueBadgeUnknownStatus(t *testing.T) {
	badge := QueueBadge(db.Status("weird"))
	if !strings.Contains(badge, "?") || !strings.Contains(badge, "weird") {
		t.Errorf("unknown badge: got %q", badge)
	}
}

func TestFormatQueueStatusUnknown(t *testing.T) {
	if got := FormatQueueStatus(db.Status("weird")); got != "weird" {
		t.Errorf("unknown status: got %q", got)
	}
}

func TestSectionHeader(t *testing.T) {
	if got := SectionHeader("queue"); got != "\nQUEUE:\n" {
		t.Errorf("SectionHeader = %q", got)
	}
}

func TestIndentString(t *testing.T) {
	got := IndentString("a\nb", 2)
	if got != "  a\n  b" {
		t.Errorf("IndentString = %q", got)
	}
	if IndentString("", 2) != "" {
		t.Error("empty string should stay empty")
	}
}
