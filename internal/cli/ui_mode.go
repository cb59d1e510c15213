package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// uiMode is the value of the --ui flag.
type uiMode string

const (
	uiAuto  uiMode = "auto"
	uiLive  uiMode = "live"
	uiPlain uiMode = "plain"
)

// uiModeDecision captures whether to use the live UI.
type uiModeDecision struct {
	useLive bool
	warning string
}

// isTerminal reports whether a writer is a TTY.
var isTerminal = defaultIsTerminal

// parseUIMode normalizes a --ui value. Empty means auto.
func parseUIMode(value string) (uiMode, error) {
	mode := uiMode(strings.ToLower(strings.TrimSpace(value)))
	switch mode {
	case "":
		return uiAuto, nil
	case uiAuto, uiLive, uiPlain:
		return mode, nil
	default:
		return "", fmt.Errorf("invalid ui mode %q (expected auto|live|plain)", value)
	}
}

// resolveUIMode determines whether to enable the live UI. Verbose output
// always wins, since verbose lines would tear the dashboard.
func resolveUIMode(value string, verbose bool, stdout io.Writer) (uiModeDecision, error) {
	mode, err := parseUIMode(value)
	if err != nil {
		return uiModeDecision{}, err
	}
	if verbose {
		decision := uiModeDecision{}
		if mode == uiLive {
			decision.warning = "Live UI disabled by --verbose; printing verbose lines instead."
		}
		return decision, nil
	}
	switch mode {
	case uiLive:
		if isTerminal(stdout) {
			return uiModeDecision{useLive: true}, nil
		}
		return uiModeDecision{
			warning: "Live UI requested but stdout is not a TTY; falling back to plain output.",
		}, nil
	case uiPlain:
		return uiModeDecision{}, nil
	default:
		return uiModeDecision{useLive: isTerminal(stdout)}, nil
	}
}

// defaultIsTerminal inspects stdout for TTY support.
func defaultIsTerminal(stdout io.Writer) bool {
	if stdout == nil {
		return false
	}
	if file, ok := stdout.(*os.File); ok {
		return term.IsTerminal(int(file.Fd()))
	}
	if fder, ok := stdout.(interface{ Fd() uintptr }); ok {
		return term.IsTerminal(int(fder.Fd()))
	}
	return false
}
