package cli

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"soulbench/internal/evaluation"
	"soulbench/internal/orchestrator"
	"soulbench/internal/revision"
	"soulbench/internal/ui/live"
	"soulbench/internal/verbose"
	"soulbench/pkg/ratelimiter"
)

// outputFlags are the presentation flags shared by eval and
// iterative_revision.
type outputFlags struct {
	ui      string
	verbose bool
	logPath string
	noColor bool

	// interrupt receives Ctrl+C pressed inside the live UI, which holds the
	// terminal in raw mode so no signal is raised.
	interrupt func()
}

func (f *outputFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.ui, "ui", "auto", "Console UI mode: auto|live|plain")
	fs.BoolVar(&f.verbose, "verbose", false, "Verbose logging")
	fs.StringVar(&f.logPath, "log", "", "Write verbose logs to a file")
	fs.BoolVar(&f.noColor, "no-color", false, "Disable ANSI colors")
}

// startLive is a test seam for the live UI.
var startLive = func(stdout io.Writer, opts live.Options) liveUI {
	return live.Start(stdout, opts)
}

// liveUI is the part of live.Controller the commands drive.
type liveUI interface {
	evaluation.Observer
	orchestrator.Observer
	OnRunStart(info live.RunInfo)
	OnRunEnd(state orchestrator.State, reason string)
	Close()
	Wait()
}

// output routes progress to the live UI or the verbose logger.
type output struct {
	logger  *verbose.Logger
	live    liveUI
	logFile *os.File
}

// openOutput resolves the UI mode and opens the optional log file.
func openOutput(flags outputFlags, stdout, stderr io.Writer) (*output, error) {
	decision, err := resolveUIMode(flags.ui, flags.verbose, stdout)
	if err != nil {
		return nil, err
	}
	if decision.warning != "" {
		fmt.Fprintln(stderr, decision.warning)
	}
	out := &output{}
	opts := verbose.Options{Enabled: flags.verbose, Console: stdout, NoColor: flags.noColor}
	if path := strings.TrimSpace(flags.logPath); path != "" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create log directory: %w", err)
			}
		}
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		out.logFile = file
		opts.LogFile = file
	}
	out.logger = verbose.New(opts)
	if decision.useLive {
		out.live = startLive(stdout, live.Options{NoColor: flags.noColor, Interrupt: flags.interrupt})
	}
	return out, nil
}

// finish stops the live UI, if any, and closes the log file.
func (o *output) finish() {
	if o == nil {
		return
	}
	if o.live != nil {
		o.live.Close()
		o.live.Wait()
	}
	if o.logFile != nil {
		_ = o.logFile.Close()
	}
}

func (o *output) start(info live.RunInfo) {
	if o.live != nil {
		o.live.OnRunStart(info)
	}
	o.logger.Logf(verbose.StyleTask, "%s task=%s persona=%s model=%s run=%s",
		info.Command, info.Task, info.Persona, info.EvalModel, info.RunID)
}

func (o *output) end(state orchestrator.State, reason string) {
	if o.live != nil {
		o.live.OnRunEnd(state, reason)
	}
}

// records returns the evaluation observer for the active output.
func (o *output) records() evaluation.Observer {
	if o.live != nil {
		return o.live
	}
	if !o.logger.Enabled() {
		return nil
	}
	return evaluation.ObserverFunc(o.logRecord)
}

// loop returns the revision loop observer for the active output.
func (o *output) loop() orchestrator.Observer {
	if o.live != nil {
		return o.live
	}
	return orchestrator.ObserverFuncs{
		StateChange: func(from, to orchestrator.State, version int) {
			o.logger.Logf(verbose.StyleTask, "state %s -> %s (v%d)", from, to, version)
		},
		RoundEnd: o.logRound,
		RevisionFailure: func(version, attempt int, err error) {
			kind := "call"
			if revision.IsValidation(err) {
				kind = "invalid response"
			}
			o.logger.Logf(verbose.StyleWarning, "revision of v%d attempt %d failed (%s): %v", version, attempt, kind, err)
		},
	}
}

// limits returns a scheduler observer that logs rate limiter pushback, or
// nil when verbose logging is off.
func (o *output) limits() ratelimiter.SchedulerObserver {
	if !o.logger.Enabled() {
		return nil
	}
	return limitLogger{logger: o.logger}
}

type limitLogger struct {
	logger *verbose.Logger
}

func (l limitLogger) OnReserveDenied(job ratelimiter.Job, res ratelimiter.ReserveResponse) {
	l.logger.Logf(verbose.StyleWarning, "rate limit on %s, retry in %dms", job.Key, res.RetryAfterMs)
}

func (l limitLogger) OnReserveError(job ratelimiter.Job, err error) {
	l.logger.Logf(verbose.StyleError, "rate limiter error on %s: %v", job.Key, err)
}

func (limitLogger) OnJobStart(ratelimiter.Job) {}

func (o *output) logRecord(event evaluation.RecordEvent) {
	switch event.Type {
	case evaluation.EventRetrying:
		o.logger.Logf(verbose.StyleWarning, "v%d %s #%d %s retry %d in %s: %s",
			event.Version, event.Split, event.Index+1, event.RecordID, event.Attempt, event.RetryAfter, event.Error)
	case evaluation.EventGraded:
		o.logger.Logf(verbose.StyleDefault, "v%d %s #%d %s %s (%s)",
			event.Version, event.Split, event.Index+1, event.RecordID, event.Outcome, event.WallTime.Round(time.Millisecond))
	case evaluation.EventFailed:
		o.logger.Logf(verbose.StyleError, "v%d %s #%d %s failed: %s",
			event.Version, event.Split, event.Index+1, event.RecordID, event.Error)
	}
}

func (o *output) logRound(summary evaluation.Summary) {
	o.logger.Logf(verbose.StyleMetrics, "v%d %s accuracy %s (%d/%d gradable, %d ungradable)",
		summary.Version, summary.Split, formatAccuracy(summary.Accuracy),
		summary.CorrectCount, summary.GradableCount, summary.UngradableCount)
}

func formatAccuracy(accuracy *float64) string {
	if accuracy == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.1f%%", *accuracy*100)
}
