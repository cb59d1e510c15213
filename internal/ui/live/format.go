package live

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"soulbench/internal/evaluation"
)

// formatRecordLabel returns the display id for a record row.
func formatRecordLabel(index int, id string) string {
	if id != "" {
		return id
	}
	return "#" + strconv.Itoa(index+1)
}

// formatRecordText truncates question text for display.
func formatRecordText(text string, limit int) string {
	normalized := strings.Join(strings.Fields(text), " ")
	if limit <= 3 || len([]rune(normalized)) <= limit {
		return normalized
	}
	runes := []rune(normalized)
	return string(runes[:limit-3]) + "..."
}

// formatStatus renders the status column for a row.
func formatStatus(row RecordRow, noColor bool) string {
	text := statusLabel(row)
	if row.Status == evaluation.EventRetrying && row.RetryAfter > 0 {
		text += " (" + formatDuration(row.RetryAfter) + ")"
	}
	if noColor {
		return text
	}
	return statusStyle(row).Render(text)
}

// statusLabel maps a row to its display label.
func statusLabel(row RecordRow) string {
	switch row.Status {
	case evaluation.EventGraded:
		return row.Outcome
	case evaluation.EventFailed:
		return "transport error"
	default:
		return string(row.Status)
	}
}

// statusStyle selects a style for a row.
func statusStyle(row RecordRow) lipgloss.Style {
	color := lipgloss.Color("246")
	switch row.Status {
	case evaluation.EventRunning:
		color = lipgloss.Color("33")
	case evaluation.EventRetrying:
		color = lipgloss.Color("39")
	case evaluation.EventFailed:
		color = lipgloss.Color("196")
	case evaluation.EventGraded:
		switch row.Outcome {
		case evaluation.OutcomeCorrect:
			color = lipgloss.Color("42")
		case evaluation.OutcomeIncorrect:
			color = lipgloss.Color("220")
		default:
			color = lipgloss.Color("201")
		}
	}
	return lipgloss.NewStyle().Foreground(color)
}

// formatRowDuration returns elapsed or total time for a row.
func formatRowDuration(row RecordRow, now time.Time) string {
	if !row.FinishedAt.IsZero() && !row.StartedAt.IsZero() {
		return row.FinishedAt.Sub(row.StartedAt).Round(100 * time.Millisecond).String()
	}
	if !row.StartedAt.IsZero() {
		return now.Sub(row.StartedAt).Round(100 * time.Millisecond).String()
	}
	return ""
}

// formatAttempts hides the common single-attempt case.
func formatAttempts(attempts int) string {
	if attempts <= 1 {
		return ""
	}
	return strconv.Itoa(attempts)
}

// formatAccuracy renders an accuracy or n/a.
func formatAccuracy(accuracy *float64) string {
	if accuracy == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.1f%%", *accuracy*100)
}

// formatHistory renders finished rounds as "v0 train 50.0% | v0 test 40.0%".
func formatHistory(history []RoundLine) string {
	parts := make([]string, 0, len(history))
	for _, line := range history {
		parts = append(parts, fmt.Sprintf("v%d %s %s", line.Version, line.Split, formatAccuracy(line.Accuracy)))
	}
	return strings.Join(parts, " | ")
}
