package verbose

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

const prefix = "[verbose]"

const (
	ansiReset  = "\x1b[0m"
	ansiBold   = "\x1b[1m"
	ansiDim    = "\x1b[2m"
	ansiGray   = "\x1b[90m"
	ansiGreen  = "\x1b[32m"
	ansiRed    = "\x1b[31m"
	ansiBlue   = "\x1b[34m"
	ansiYellow = "\x1b[33m"
)

// Style selects the color of a verbose line.
type Style int

const (
	StyleDefault Style = iota
	StyleTask
	StyleMetrics
	StyleWarning
	StyleError
)

// consoleBlockBytes bounds multi-line blocks on the console. The log file
// receives them in full.
const consoleBlockBytes = 4000

const truncationMarker = "... (truncated)"

type sink struct {
	writer   io.Writer
	palette  palette
	maxBytes int
}

// Logger writes verbose lines to the console when enabled and always to the
// optional log file. A nil Logger discards everything.
type Logger struct {
	sinks []sink
}

// Options configures a Logger.
type Options struct {
	Enabled bool
	Console io.Writer
	LogFile io.Writer
	NoColor bool
}

// New builds a Logger. Writers are wrapped so concurrent callers never
// interleave within a line.
func New(opts Options) *Logger {
	logger := &Logger{}
	if opts.Enabled && opts.Console != nil {
		logger.sinks = append(logger.sinks, sink{
			writer:   &lockedWriter{w: opts.Console},
			palette:  paletteFor(opts.Console, opts.NoColor),
			maxBytes: consoleBlockBytes,
		})
	}
	if opts.LogFile != nil {
		logger.sinks = append(logger.sinks, sink{
			writer:  &lockedWriter{w: opts.LogFile},
			palette: palette{},
		})
	}
	return logger
}

// Enabled reports whether any line would be written.
func (l *Logger) Enabled() bool {
	return l != nil && len(l.sinks) > 0
}

// Logf writes one styled line.
func (l *Logger) Logf(style Style, format string, args ...any) {
	if !l.Enabled() {
		return
	}
	line := fmt.Sprintf(format, args...)
	for _, s := range l.sinks {
		writeLine(s, style, line)
	}
}

// Block writes a header line followed by each line of body.
func (l *Logger) Block(header, body string, headerStyle, bodyStyle Style) {
	if !l.Enabled() {
		return
	}
	for _, s := range l.sinks {
		writeLine(s, headerStyle, header)
		trimmed := truncate(body, s.maxBytes)
		if strings.TrimSpace(trimmed) == "" {
			continue
		}
		for _, line := range strings.Split(trimmed, "\n") {
			writeLine(s, bodyStyle, line)
		}
	}
}

func writeLine(s sink, style Style, line string) {
	fmt.Fprintf(s.writer, "%s %s\n", s.palette.prefix(prefix), s.palette.apply(style, line))
}

func truncate(text string, maxBytes int) string {
	if maxBytes <= 0 || len(text) <= maxBytes {
		return text
	}
	cut := maxBytes
	for cut > 0 && !isRuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "\n" + truncationMarker
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

// lockedWriter serializes writes to an underlying writer.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

type palette struct {
	enabled bool
}

func paletteFor(writer io.Writer, noColor bool) palette {
	if noColor {
		return palette{}
	}
	return palette{enabled: ShouldUseStyling(writer)}
}

// ShouldUseStyling reports whether ANSI styling suits writer: a terminal,
// with NO_COLOR unset, TERM not dumb and CLICOLOR not 0.
func ShouldUseStyling(writer io.Writer) bool {
	if writer == nil {
		return false
	}
	if os.Getenv("NO_COLOR") != "" || os.Getenv("TERM") == "dumb" {
		return false
	}
	if strings.EqualFold(os.Getenv("CLICOLOR"), "0") {
		return false
	}
	if fder, ok := writer.(interface{ Fd() uintptr }); ok {
		return term.IsTerminal(int(fder.Fd()))
	}
	return false
}

func (p palette) prefix(text string) string {
	if !p.enabled {
		return text
	}
	return ansiDim + ansiGray + text + ansiReset
}

func (p palette) apply(style Style, text string) string {
	if !p.enabled {
		return text
	}
	switch style {
	case StyleTask:
		return ansiBold + ansiBlue + text + ansiReset
	case StyleMetrics:
		return ansiBold + ansiGreen + text + ansiReset
	case StyleWarning:
		return ansiYellow + text + ansiReset
	case StyleError:
		return ansiBold + ansiRed + text + ansiReset
	default:
		return text
	}
}
