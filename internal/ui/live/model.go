package live

import (
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Model renders a live console UI using Bubble Tea.
type Model struct {
	state         State
	table         table.Model
	events        <-chan Event
	tickInterval  time.Duration
	now           time.Time
	noColor       bool
	questionWidth int
	interrupt     func()
	interrupts    int
}

// Options configures the live UI model.
type Options struct {
	NoColor      bool
	TickInterval time.Duration
	// Interrupt is called for each Ctrl+C. The UI quits on the second.
	Interrupt func()
}

// NewModel constructs a live UI model for an event stream.
func NewModel(events <-chan Event, opts Options) Model {
	tickInterval := opts.TickInterval
	if tickInterval <= 0 {
		tickInterval = 200 * time.Millisecond
	}
	t := table.New(
		table.WithColumns(defaultColumns()),
		table.WithRows([]table.Row{}),
		table.WithFocused(false),
	)
	t.SetStyles(tableStyles(opts.NoColor))
	return Model{
		table:         t,
		events:        events,
		tickInterval:  tickInterval,
		now:           time.Now(),
		noColor:       opts.NoColor,
		questionWidth: defaultQuestionWidth,
		interrupt:     opts.Interrupt,
	}
}

// Init starts ticking and waits for the first event.
func (m Model) Init() tea.Cmd {
	return tea.Batch(waitForEvent(m.events), tick(m.tickInterval))
}

// Update consumes UI events, timer ticks and key presses.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch typed := msg.(type) {
	case tea.KeyMsg:
		if typed.String() != "ctrl+c" {
			return m, nil
		}
		m.interrupts++
		if m.interrupt != nil {
			m.interrupt()
		}
		if m.interrupts == 1 {
			m.state.LastEvent = "Stop requested, press Ctrl+C again to abort"
			return m, nil
		}
		return m, tea.Quit
	case tea.WindowSizeMsg:
		columns := columnsForWidth(typed.Width)
		m.questionWidth = columns[1].Width
		m.table.SetWidth(typed.Width)
		m.table.SetHeight(max(typed.Height-7, 1))
		m.table.SetColumns(columns)
		m.table.SetRows(rowsForState(m.state, m.now, m.noColor, m.questionWidth))
		return m, nil
	case EventMsg:
		m = applyEvent(m, typed.Event)
		return m, waitForEvent(m.events)
	case tickMsg:
		m.now = time.Time(typed)
		m.table.SetRows(rowsForState(m.state, m.now, m.noColor, m.questionWidth))
		return m, tick(m.tickInterval)
	}
	return m, nil
}

// View renders the live UI.
func (m Model) View() string {
	return lipgloss.JoinVertical(lipgloss.Left,
		renderHeader(m.state, m.now, m.noColor),
		renderModels(m.state, m.noColor),
		renderPhase(m.state, m.noColor),
		renderSummary(m.state, m.noColor),
		m.table.View(),
		renderHistory(m.state, m.noColor),
		renderFooter(m.state, m.noColor),
	)
}

// State returns the current UI state.
func (m Model) State() State {
	return m.state
}

// EventMsg wraps a UI event for Bubble Tea.
type EventMsg struct {
	Event Event
}

// tickMsg carries a clock tick for updates.
type tickMsg time.Time

// waitForEvent blocks until a UI event is available.
func waitForEvent(events <-chan Event) tea.Cmd {
	return func() tea.Msg {
		if events == nil {
			return nil
		}
		event, ok := <-events
		if !ok {
			return tea.Quit()
		}
		return EventMsg{Event: event}
	}
}

// tick emits a periodic tick message.
func tick(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// applyEvent mutates model state based on a UI event.
func applyEvent(model Model, event Event) Model {
	model.state = Apply(model.state, event)
	model.table.SetRows(rowsForState(model.state, model.now, model.noColor, model.questionWidth))
	return model
}

// Apply folds any UI event into the state.
func Apply(state State, event Event) State {
	switch event.Kind {
	case EventRunStart:
		state.Run = event.Run
		if state.StartedAt.IsZero() {
			state.StartedAt = time.Now()
		}
	case EventState:
		state.Phase = string(event.To)
		state.LastEvent = "State " + string(event.From) + " -> " + string(event.To)
	case EventRecord:
		state = Reduce(state, event.Record)
	case EventRoundEnd:
		state.History = append(state.History, RoundLine{
			Version:  event.Summary.Version,
			Split:    event.Summary.Split,
			Accuracy: event.Summary.Accuracy,
		})
		state.LastEvent = "Round v" + fmtInt(event.Summary.Version) + " " + event.Summary.Split +
			" accuracy " + formatAccuracy(event.Summary.Accuracy)
	case EventRevisionFailure:
		state.LastEvent = "Revision of v" + fmtInt(event.Version) + " attempt " + fmtInt(event.Attempt) + " failed: " + event.Message
	case EventRunEnd:
		state.Phase = string(event.To)
		if event.Message != "" {
			state.LastEvent = "Run " + string(event.To) + " (" + event.Message + ")"
		} else {
			state.LastEvent = "Run " + string(event.To)
		}
	}
	return state
}
