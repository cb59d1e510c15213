package evaluation

import "time"

// EventType identifies a record status update.
type EventType string

const (
	EventQueued   EventType = "queued"
	EventRunning  EventType = "running"
	EventRetrying EventType = "retrying"
	EventGraded   EventType = "graded"
	EventFailed   EventType = "failed"
)

// Outcome values carried by graded events.
const (
	OutcomeCorrect    = "correct"
	OutcomeIncorrect  = "incorrect"
	OutcomeUngradable = "ungradable"
)

// RecordEvent carries a single status update for a record.
type RecordEvent struct {
	Version    int
	Split      string
	Index      int
	RecordID   string
	Question   string
	Type       EventType
	Attempt    int
	RetryAfter time.Duration
	Outcome    string
	Error      string
	WallTime   time.Duration
	EmittedAt  time.Time
}

// Observer receives record events. Implementations must not block.
type Observer interface {
	OnRecordEvent(event RecordEvent)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(event RecordEvent)

// OnRecordEvent calls f.
func (f ObserverFunc) OnRecordEvent(event RecordEvent) {
	f(event)
}

// recordEmitter stamps events for one round.
type recordEmitter struct {
	observer Observer
	round    Round
	now      func() time.Time
}

func (e recordEmitter) emit(index int, event RecordEvent) {
	if e.observer == nil {
		return
	}
	record := e.round.Dataset.Records[index]
	event.Version = e.round.Version
	event.Split = e.round.Split
	event.Index = index
	event.RecordID = record.ID
	event.Question = record.Question
	if event.EmittedAt.IsZero() {
		event.EmittedAt = e.now()
	}
	e.observer.OnRecordEvent(event)
}
