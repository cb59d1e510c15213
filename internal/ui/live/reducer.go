package live

import (
	"fmt"
	"time"

	"soulbench/internal/evaluation"
)

// Reduce applies a record event to the UI state. An event from a new
// version or split starts a fresh table.
func Reduce(state State, event evaluation.RecordEvent) State {
	if event.Version != state.Version || event.Split != state.Split {
		state.Version = event.Version
		state.Split = event.Split
		state.Rows = nil
	}
	state = ensureRow(state, event)
	state = applyRecordEvent(state, event)
	state.Counts = recount(state.Rows)
	if message := formatLastEvent(event); message != "" {
		state.LastEvent = message
	}
	return state
}

// ensureRow grows the state rows to include the target index.
func ensureRow(state State, event evaluation.RecordEvent) State {
	if event.Index < 0 || event.Index < len(state.Rows) {
		return state
	}
	rows := make([]RecordRow, event.Index+1)
	copy(rows, state.Rows)
	for i := len(state.Rows); i < len(rows); i++ {
		rows[i] = RecordRow{Index: i, Status: evaluation.EventQueued}
	}
	state.Rows = rows
	return state
}

// applyRecordEvent updates a row with the given event.
func applyRecordEvent(state State, event evaluation.RecordEvent) State {
	if event.Index < 0 || event.Index >= len(state.Rows) {
		return state
	}
	row := state.Rows[event.Index]
	if row.ID == "" {
		row.ID = event.RecordID
	}
	if row.Text == "" {
		row.Text = event.Question
	}
	row.Status = event.Type
	if event.Attempt > row.Attempts {
		row.Attempts = event.Attempt
	}
	switch event.Type {
	case evaluation.EventRunning:
		if row.StartedAt.IsZero() {
			row.StartedAt = event.EmittedAt
		}
	case evaluation.EventRetrying:
		row.RetryAfter = event.RetryAfter
		row.Error = event.Error
	case evaluation.EventGraded, evaluation.EventFailed:
		row.Outcome = event.Outcome
		row.Error = event.Error
		row.FinishedAt = event.EmittedAt
		if row.StartedAt.IsZero() && event.WallTime > 0 {
			row.StartedAt = event.EmittedAt.Add(-event.WallTime)
		}
	}
	state.Rows[event.Index] = row
	return state
}

// recount recomputes status counts for the current rows.
func recount(rows []RecordRow) StatusCounts {
	var counts StatusCounts
	for _, row := range rows {
		switch row.Status {
		case evaluation.EventQueued:
			counts.Queued++
		case evaluation.EventRunning:
			counts.Running++
		case evaluation.EventRetrying:
			counts.Retrying++
		case evaluation.EventGraded:
			counts.Done++
			switch row.Outcome {
			case evaluation.OutcomeCorrect:
				counts.Correct++
			case evaluation.OutcomeIncorrect:
				counts.Incorrect++
			default:
				counts.Ungradable++
			}
		case evaluation.EventFailed:
			counts.Done++
			counts.Failed++
		}
	}
	return counts
}

// formatLastEvent creates a short footer message for the event.
func formatLastEvent(event evaluation.RecordEvent) string {
	label := formatRecordLabel(event.Index, event.RecordID)
	switch event.Type {
	case evaluation.EventRetrying:
		if event.RetryAfter > 0 {
			return fmt.Sprintf("%s retry %d in %s (%s)", label, event.Attempt, formatDuration(event.RetryAfter), event.Error)
		}
		return fmt.Sprintf("%s retry %d (%s)", label, event.Attempt, event.Error)
	case evaluation.EventFailed:
		return fmt.Sprintf("%s failed: %s", label, event.Error)
	case evaluation.EventGraded:
		if event.Outcome == evaluation.OutcomeUngradable {
			return fmt.Sprintf("%s ungradable", label)
		}
		return fmt.Sprintf("%s %s", label, event.Outcome)
	}
	return ""
}

// formatDuration renders a rounded duration for display.
func formatDuration(duration time.Duration) string {
	if duration <= 0 {
		return "0s"
	}
	return duration.Round(100 * time.Millisecond).String()
}
