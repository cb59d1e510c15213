package live

import (
	"strconv"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
)

const defaultQuestionWidth = 60

// tableStyles returns table styles for the UI.
func tableStyles(noColor bool) table.Styles {
	styles := table.DefaultStyles()
	if noColor {
		return styles
	}
	styles.Header = styles.Header.Foreground(lipgloss.Color("252"))
	return styles
}

// defaultColumns returns the columns used before the first resize.
func defaultColumns() []table.Column {
	return columnsForWidth(0)
}

// columnsForWidth fits the question column into the terminal width.
func columnsForWidth(width int) []table.Column {
	question := defaultQuestionWidth
	if width > 0 {
		fixed := 14 + 18 + 8 + 8 + 12
		question = max(width-fixed, 20)
	}
	return []table.Column{
		{Title: "Record", Width: 14},
		{Title: "Question", Width: question},
		{Title: "Status", Width: 18},
		{Title: "Time", Width: 8},
		{Title: "Tries", Width: 8},
	}
}

// rowsForState converts UI state into table rows.
func rowsForState(state State, now time.Time, noColor bool, questionWidth int) []table.Row {
	rows := make([]table.Row, 0, len(state.Rows))
	for _, row := range state.Rows {
		rows = append(rows, table.Row{
			formatRecordLabel(row.Index, row.ID),
			formatRecordText(row.Text, questionWidth),
			formatStatus(row, noColor),
			formatRowDuration(row, now),
			formatAttempts(row.Attempts),
		})
	}
	return rows
}

// fmtInt converts an int to string.
func fmtInt(value int) string {
	return strconv.Itoa(value)
}
