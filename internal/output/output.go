// Package output provides styled terminal output helpers (success, error,
// queue and workout formatting) using lipgloss.
package output

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/mvarner/replog/internal/db"
)

var (
	// Styles
	titleStyle   = lipgloss.NewStyle().Bold(true)
	subtleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	statusStyles = map[db.Status]lipgloss.Style{
		db.StatusPending: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		db.StatusSyncing: lipgloss.NewStyle().Foreground(lipgloss.Color("45")),
		db.StatusSynced:  lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		db.StatusFailed:  lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	}
)

// Success prints a success message
func Success(format string, args ...interface{}) {
	fmt.Println(successStyle.Render(fmt.Sprintf(format, args...)))
}

// Error prints an error message
func Error(format string, args ...interface{}) {
	fmt.Println(errorStyle.Render("ERROR: " + fmt.Sprintf(format, args...)))
}

// Warning prints a warning message
func Warning(format string, args ...interface{}) {
	fmt.Println(warningStyle.Render("Warning: " + fmt.Sprintf(format, args...)))
}

// Info prints an info message
func Info(format string, args ...interface{}) {
	fmt.Println(fmt.Sprintf(format, args...))
}

// Title renders bold text.
func Title(s string) string {
	return titleStyle.Render(s)
}

// Subtle renders dimmed text.
func Subtle(s string) string {
	return subtleStyle.Render(s)
}

// JSON outputs data as JSON
func JSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// Error codes for structured JSON output
const (
	ErrCodeUsage        = "usage"
	ErrCodeNotFound     = "not_found"
	ErrCodeInvalidInput = "invalid_input"
	ErrCodeStorage      = "storage_error"
	ErrCodeNetwork      = "network_error"
	ErrCodeConflict     = "conflict"
)

// JSONError outputs an error as JSON
func JSONError(code, message string) {
	fmt.Printf(`{"error":{"code":"%s","message":"%s"}}`, code, message)
	fmt.Println()
}

// FormatQueueStatus formats a queue status with color
func FormatQueueStatus(s db.Status) string {
	style, ok := statusStyles[s]
	if !ok {
		return string(s)
	}
	return style.Render(fmt.Sprintf("[%s]", s))
}

// QueueBadge returns a queue status indicator with symbol
// e.g., "● pending", "↑ syncing", "✓ synced", "✗ failed"
func QueueBadge(status db.Status) string {
	symbols := map[db.Status]string{
		db.StatusPending: "●",
		db.StatusSyncing: "↑",
		db.StatusSynced:  "✓",
		db.StatusFailed:  "✗",
	}
	symbol, ok := symbols[status]
	if !ok {
		symbol = "?"
	}
	style, hasStyle := statusStyles[status]
	if hasStyle {
		return style.Render(fmt.Sprintf("%s %s", symbol, status))
	}
	return fmt.Sprintf("%s %s", symbol, status)
}

// FormatWeight renders a weight without trailing zeros: 100, 62.5, 0.
func FormatWeight(w float64) string {
	return strconv.FormatFloat(w, 'f', -1, 64)
}

// FormatSetLine formats one logged set for the status display.
// e.g., "  s1  bench press  5 x 100"
func FormatSetLine(s db.LocalSet) string {
	return fmt.Sprintf("  %s  %s  %d x %s",
		subtleStyle.Render(s.SetID), s.ExerciseName, s.Reps, FormatWeight(s.Weight))
}

// FormatOpenWorkout formats the open workout header for the status display.
func FormatOpenWorkout(w *db.OpenWorkout) string {
	return fmt.Sprintf("%s  started %s",
		titleStyle.Render("workout "+w.WorkoutID), FormatTimeAgo(w.StartedAt))
}

// FormatQueueStats renders queue counts, skipping zero rows.
// e.g., "3 pending, 1 failed" or "queue empty".
func FormatQueueStats(stats db.QueueStats) string {
	var parts []string
	if stats.Pending > 0 {
		parts = append(parts, fmt.Sprintf("%d pending", stats.Pending))
	}
	if stats.Syncing > 0 {
		parts = append(parts, fmt.Sprintf("%d syncing", stats.Syncing))
	}
	if stats.Failed > 0 {
		parts = append(parts, fmt.Sprintf("%d failed", stats.Failed))
	}
	if len(parts) == 0 {
		return "queue empty"
	}
	return strings.Join(parts, ", ")
}

// FormatTimeAgo formats a time as a human-readable "ago" string
func FormatTimeAgo(t time.Time) string {
	diff := time.Since(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		mins := int(diff.Minutes())
		if mins == 1 {
			return "1m ago"
		}
		return fmt.Sprintf("%dm ago", mins)
	case diff < 24*time.Hour:
		hours := int(diff.Hours())
		if hours == 1 {
			return "1h ago"
		}
		return fmt.Sprintf("%dh ago", hours)
	case diff < 7*24*time.Hour:
		days := int(diff.Hours() / 24)
		if days == 1 {
			return "1d ago"
		}
		return fmt.Sprintf("%dd ago", days)
	default:
		return t.Format("2006-01-02")
	}
}

// SectionHeader returns a formatted section header for CLI output
// e.g., "\nQUEUE:\n"
func SectionHeader(title string) string {
	return fmt.Sprintf("\n%s:\n", strings.ToUpper(title))
}

// IndentString indents each line in a string by the specified number of spaces
func IndentString(s string, spaces int) string {
	if s == "" {
		return ""
	}
	indent := strings.Repeat(" ", spaces)
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = indent + line
	}
	return strings.Join(lines, "\n")
}
