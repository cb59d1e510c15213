package live

import (
	"time"

	"github.com/charmbracelet/lipgloss"
)

// renderHeader renders the run header line.
func renderHeader(state State, now time.Time, noColor bool) string {
	line := "Run " + state.Run.RunID
	if state.Run.Command != "" {
		line = state.Run.Command + " " + state.Run.RunID
	}
	if state.Run.Task != "" {
		line += " | " + state.Run.Task + "/" + state.Run.Persona
	}
	if !state.StartedAt.IsZero() {
		line += " | Elapsed: " + now.Sub(state.StartedAt).Round(100*time.Millisecond).String()
	}
	return stylize(line, noColor, lipgloss.Color("33"))
}

// renderModels renders the model line.
func renderModels(state State, noColor bool) string {
	if state.Run.EvalModel == "" {
		return ""
	}
	line := "Eval: " + state.Run.EvalModel
	if state.Run.RevisionModel != "" {
		line += " | Revision: " + state.Run.RevisionModel
	}
	return stylize(line, noColor, lipgloss.Color("240"))
}

// renderPhase renders the loop state and the current round.
func renderPhase(state State, noColor bool) string {
	if state.Phase == "" && state.Split == "" {
		return ""
	}
	line := "State: " + state.Phase
	if state.Split != "" {
		line += " | Round v" + fmtInt(state.Version) + " " + state.Split
	}
	return stylize(line, noColor, lipgloss.Color("141"))
}

// renderSummary renders the status counts line.
func renderSummary(state State, noColor bool) string {
	counts := state.Counts
	line := "Queued: " + fmtInt(counts.Queued) +
		" Running: " + fmtInt(counts.Running) +
		" Retrying: " + fmtInt(counts.Retrying) +
		" Done: " + fmtInt(counts.Done) +
		" Correct: " + fmtInt(counts.Correct) +
		" Incorrect: " + fmtInt(counts.Incorrect) +
		" Ungradable: " + fmtInt(counts.Ungradable) +
		" Error: " + fmtInt(counts.Failed)
	return stylize(line, noColor, lipgloss.Color("242"))
}

// renderHistory renders the accuracy of finished rounds.
func renderHistory(state State, noColor bool) string {
	if len(state.History) == 0 {
		return ""
	}
	return stylize("Rounds: "+formatHistory(state.History), noColor, lipgloss.Color("42"))
}

// renderFooter renders the last event line.
func renderFooter(state State, noColor bool) string {
	if state.LastEvent == "" {
		return ""
	}
	return stylize("Last event: "+state.LastEvent, noColor, lipgloss.Color("244"))
}

// stylize applies optional color styling.
func stylize(text string, noColor bool, color lipgloss.Color) string {
	if noColor {
		return text
	}
	return lipgloss.NewStyle().Foreground(color).Render(text)
}
