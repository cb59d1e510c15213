package live

import (
	"io"
	"os"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"soulbench/internal/evaluation"
	"soulbench/internal/orchestrator"
)

// Controller runs the live UI. It implements evaluation.Observer and
// orchestrator.Observer.
type Controller struct {
	events  chan Event
	program *tea.Program
	done    chan struct{}

	mu     sync.Mutex
	closed bool
}

// Start launches a live UI controller that writes to stdout.
func Start(stdout io.Writer, opts Options) *Controller {
	if stdout == nil {
		stdout = os.Stdout
	}
	events := make(chan Event, 256)
	model := NewModel(events, opts)
	program := tea.NewProgram(model, tea.WithOutput(stdout), tea.WithAltScreen())
	controller := &Controller{
		events:  events,
		program: program,
		done:    make(chan struct{}),
	}
	go func() {
		_, _ = program.Run()
		close(controller.done)
	}()
	return controller
}

// Close signals the UI to stop.
func (c *Controller) Close() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.events)
}

// Wait blocks until the UI has exited.
func (c *Controller) Wait() {
	if c == nil {
		return
	}
	<-c.done
}

// OnRunStart forwards run start events to the UI.
func (c *Controller) OnRunStart(info RunInfo) {
	c.send(Event{Kind: EventRunStart, Run: info})
}

// OnRecordEvent forwards record status updates to the UI.
func (c *Controller) OnRecordEvent(event evaluation.RecordEvent) {
	c.send(Event{Kind: EventRecord, Record: event})
}

// OnStateChange forwards loop transitions to the UI.
func (c *Controller) OnStateChange(from, to orchestrator.State, version int) {
	c.send(Event{Kind: EventState, From: from, To: to, Version: version})
}

// OnRoundEnd forwards round summaries to the UI.
func (c *Controller) OnRoundEnd(summary evaluation.Summary) {
	c.send(Event{Kind: EventRoundEnd, Summary: summary})
}

// OnRevisionFailure forwards failed revision attempts to the UI.
func (c *Controller) OnRevisionFailure(version, attempt int, err error) {
	message := ""
	if err != nil {
		message = err.Error()
	}
	c.send(Event{Kind: EventRevisionFailure, Version: version, Attempt: attempt, Message: message})
}

// OnRunEnd forwards run completion to the UI and closes it.
func (c *Controller) OnRunEnd(state orchestrator.State, reason string) {
	c.send(Event{Kind: EventRunEnd, To: state, Message: reason})
	c.Close()
}

// send enqueues an event without blocking the caller. Events are dropped
// when the buffer is full or the controller is closed.
func (c *Controller) send(event Event) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.events <- event:
	default:
	}
}
