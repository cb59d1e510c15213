package orchestrator

import (
	"errors"

	"soulbench/internal/evaluation"
	"soulbench/internal/revision"
)

// MultiSink fans every call out to each sink in order. Every sink is called
// even when an earlier one fails; the errors are joined.
type MultiSink []Sink

func (m MultiSink) SaveDocument(doc revision.Document) error {
	return m.each(func(s Sink) error { return s.SaveDocument(doc) })
}

func (m MultiSink) SaveRound(summary evaluation.Summary, results []evaluation.Result) error {
	return m.each(func(s Sink) error { return s.SaveRound(summary, results) })
}

func (m MultiSink) SaveSelected(doc revision.Document) error {
	return m.each(func(s Sink) error { return s.SaveSelected(doc) })
}

func (m MultiSink) SaveManifest(manifest Manifest) error {
	return m.each(func(s Sink) error { return s.SaveManifest(manifest) })
}

func (m MultiSink) each(call func(Sink) error) error {
	var errs []error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := call(sink); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ObserverFuncs adapts optional callbacks to Observer.
type ObserverFuncs struct {
	StateChange     func(from, to State, version int)
	RoundEnd        func(summary evaluation.Summary)
	RevisionFailure func(version, attempt int, err error)
}

func (f ObserverFuncs) OnStateChange(from, to State, version int) {
	if f.StateChange != nil {
		f.StateChange(from, to, version)
	}
}

func (f ObserverFuncs) OnRoundEnd(summary evaluation.Summary) {
	if f.RoundEnd != nil {
		f.RoundEnd(summary)
	}
}

func (f ObserverFuncs) OnRevisionFailure(version, attempt int, err error) {
	if f.RevisionFailure != nil {
		f.RevisionFailure(version, attempt, err)
	}
}
