package cli

import (
	"fmt"
	"io"
)

// Process exit codes returned by Run.
const (
	ExitOK    = 0
	ExitError = 1
	ExitUsage = 2
)

// Command is one soulbench subcommand.
type Command struct {
	Name    string
	Summary string
	Usage   []string
	Run     func(args []string, stdout, stderr io.Writer) int
}

// Run dispatches args to a subcommand and returns the process exit code.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		printUsage(stdout)
		return ExitUsage
	}
	if isHelpArg(args[0]) {
		printUsage(stdout)
		return ExitOK
	}

	cmd := findCommand(args[0])
	if cmd == nil {
		fmt.Fprintf(stderr, "Unknown command: %s\n\n", args[0])
		printUsage(stderr)
		return ExitUsage
	}

	return cmd.Run(args[1:], stdout, stderr)
}

func findCommand(name string) *Command {
	for _, cmd := range commands {
		if cmd.Name == name {
			return cmd
		}
	}
	return nil
}

func isHelpArg(arg string) bool {
	switch arg {
	case "-h", "--help", "help":
		return true
	default:
		return false
	}
}

func wantsHelp(args []string) bool {
	for _, arg := range args {
		switch arg {
		case "-h", "--help":
			return true
		}
	}
	return false
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  soulbench <command> [options]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	for _, cmd := range commands {
		fmt.Fprintf(w, "  %-20s %s\n", cmd.Name, cmd.Summary)
	}
	fmt.Fprintln(w, "\nUse \"soulbench <command> --help\" for more information.")
}

func printCommandUsage(cmd *Command, w io.Writer) {
	fmt.Fprintln(w, "Usage:")
	for _, line := range cmd.Usage {
		fmt.Fprintf(w, "  %s\n", line)
	}
	if cmd.Summary != "" {
		fmt.Fprintf(w, "\n%s\n", cmd.Summary)
	}
}

func command(name, summary string, usage []string, runner func(cmd *Command) func(args []string, stdout, stderr io.Writer) int) *Command {
	cmd := &Command{Name: name, Summary: summary, Usage: usage}
	cmd.Run = runner(cmd)
	return cmd
}

var commands = []*Command{
	command("eval", "Score one system prompt against a persona dataset", []string{
		"soulbench eval --task <task> --persona <name> --model <id> (--soul <doc_key> | --static <prompt_key>)",
		"soulbench eval ... [--split train|test] [--out <path>] [--max-concurrent <n>] [--timeout <dur>]",
		"soulbench eval ... [--config <path>] [--duckdb <path>] [--ui auto|live|plain] [--verbose] [--log <path>] [--no-color]",
	}, runEval),
	command("iterative_revision", "Revise a soul document until it reaches a target accuracy", []string{
		"soulbench iterative_revision --task <task> --persona <name> --eval-model <id> [--revision-model <id>]",
		"soulbench iterative_revision ... [--iterations <n>] [--target <0..1>] [--keep best|latest]",
		"soulbench iterative_revision ... [--soul <doc_key> | --initial-soul-doc <path>] [--max-wrong-examples <n>]",
		"soulbench iterative_revision ... [--out-dir <path>] [--config <path>] [--duckdb <path>] [--max-concurrent <n>]",
		"soulbench iterative_revision ... [--ui auto|live|plain] [--verbose] [--log <path>] [--no-color]",
	}, runIterativeRevision),
	command("validate", "Validate the config and prompt catalog", []string{
		"soulbench validate [--config <path>]",
	}, runValidate),
}
