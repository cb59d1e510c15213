package live

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

// TestCtrlCRequestsStopThenQuits verifies the raw-mode interrupt path.
func TestCtrlCRequestsStopThenQuits(t *testing.T) {
	calls := 0
	var model tea.Model = NewModel(nil, Options{NoColor: true, Interrupt: func() { calls++ }})

	model, cmd := model.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if calls != 1 {
		t.Fatalf("expected one interrupt, got %d", calls)
	}
	if cmd != nil {
		t.Fatalf("expected UI to keep running after the first Ctrl+C")
	}
	if got := model.(Model).State().LastEvent; got == "" {
		t.Fatalf("expected a stop notice in the last event")
	}

	_, cmd = model.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if calls != 2 {
		t.Fatalf("expected second interrupt, got %d", calls)
	}
	if cmd == nil {
		t.Fatalf("expected quit command on second Ctrl+C")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatalf("expected quit message")
	}
}

// TestOtherKeysAreIgnored verifies plain keys never interrupt the run.
func TestOtherKeysAreIgnored(t *testing.T) {
	calls := 0
	model := NewModel(nil, Options{Interrupt: func() { calls++ }})
	if _, cmd := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")}); cmd != nil || calls != 0 {
		t.Fatalf("expected q to be ignored, calls=%d", calls)
	}
}
