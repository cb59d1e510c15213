package verbose

import (
	"bytes"
	"strings"
	"sync"
	"testing"
)

func TestLoggerWritesPrefixedLines(t *testing.T) {
	var console, file bytes.Buffer
	logger := New(Options{Enabled: true, Console: &console, LogFile: &file})
	logger.Logf(StyleMetrics, "train accuracy %.3f", 0.5)
	want := "[verbose] train accuracy 0.500\n"
	if console.String() != want || file.String() != want {
		t.Fatalf("unexpected output %q / %q", console.String(), file.String())
	}
}

func TestLoggerDisabledConsoleStillWritesLogFile(t *testing.T) {
	var console, file bytes.Buffer
	logger := New(Options{Enabled: false, Console: &console, LogFile: &file})
	logger.Logf(StyleDefault, "hello")
	if console.Len() != 0 {
		t.Fatalf("expected no console output, got %q", console.String())
	}
	if !strings.Contains(file.String(), "hello") {
		t.Fatalf("expected log file output")
	}
}

func TestNilLoggerDiscards(t *testing.T) {
	var logger *Logger
	if logger.Enabled() {
		t.Fatalf("nil logger reported enabled")
	}
	logger.Logf(StyleError, "ignored")
	logger.Block("h", "b", StyleTask, StyleDefault)
}

func TestBlockTruncatesConsoleOnly(t *testing.T) {
	var console, file bytes.Buffer
	logger := New(Options{Enabled: true, Console: &console, LogFile: &file})
	body := strings.Repeat("x", consoleBlockBytes+10)
	logger.Block("Revised document", body, StyleTask, StyleDefault)
	if !strings.Contains(console.String(), truncationMarker) {
		t.Fatalf("expected console truncation")
	}
	if strings.Contains(file.String(), truncationMarker) {
		t.Fatalf("expected full body in log file")
	}
}

func TestTruncateKeepsRuneBoundary(t *testing.T) {
	got := truncate("ééé", 3)
	if got != "é\n"+truncationMarker {
		t.Fatalf("unexpected truncation %q", got)
	}
}

func TestShouldUseStylingRejectsBuffers(t *testing.T) {
	t.Setenv("NO_COLOR", "")
	if ShouldUseStyling(&bytes.Buffer{}) {
		t.Fatalf("buffer should not be styled")
	}
}

func TestLoggerConcurrentLinesStayWhole(t *testing.T) {
	var console bytes.Buffer
	logger := New(Options{Enabled: true, Console: &console})
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			logger.Logf(StyleDefault, "record %02d done", i)
		}(i)
	}
	wg.Wait()
	lines := strings.Split(strings.TrimSpace(console.String()), "\n")
	if len(lines) != 20 {
		t.Fatalf("expected 20 lines, got %d", len(lines))
	}
	for _, line := range lines {
		if !strings.HasPrefix(line, "[verbose] record ") {
			t.Fatalf("interleaved line %q", line)
		}
	}
}
