package cli

import (
	"flag"
	"fmt"
	"io"
	"strings"
)

// runValidate builds the handler for the validate command.
func runValidate(cmd *Command) func(args []string, stdout, stderr io.Writer) int {
	return func(args []string, stdout, stderr io.Writer) int {
		if wantsHelp(args) {
			printCommandUsage(cmd, stdout)
			return ExitOK
		}

		flags := flag.NewFlagSet(cmd.Name, flag.ContinueOnError)
		flags.SetOutput(stderr)
		configPath := flags.String("config", "", "Path to config file (default: search for .soulbench/config.yml)")
		if err := flags.Parse(args); err != nil {
			if err == flag.ErrHelp {
				printCommandUsage(cmd, stdout)
				return ExitOK
			}
			fmt.Fprintf(stderr, "invalid arguments: %v\n", err)
			printCommandUsage(cmd, stderr)
			return ExitUsage
		}
		if flags.NArg() > 0 {
			fmt.Fprintf(stderr, "unexpected arguments: %s\n", strings.Join(flags.Args(), " "))
			printCommandUsage(cmd, stderr)
			return ExitUsage
		}

		env, err := loadEnvironment(*configPath)
		if err != nil {
			fmt.Fprintf(stderr, "Validation failed:\n%v\n", err)
			return ExitError
		}

		if env.configPath == "" {
			fmt.Fprintln(stdout, "No config file found; using defaults")
		} else {
			fmt.Fprintf(stdout, "Config: %s\n", env.configPath)
		}
		source := env.source()
		for _, name := range env.catalog.Tasks() {
			task, err := env.catalog.Task(name)
			if err != nil {
				fmt.Fprintf(stderr, "Validation failed:\n%v\n", err)
				return ExitError
			}
			available := 0
			for _, persona := range task.Personas {
				if source.Exists(name, persona, trainSplit) || source.Exists(name, persona, testSplit) {
					available++
				}
			}
			fmt.Fprintf(stdout, "Task %s: %d personas, %d with data, %d soul documents, %d static prompts\n",
				name, len(task.Personas), available, len(task.Souls), len(task.StaticPrompts))
		}
		fmt.Fprintln(stdout, "Config OK")
		return ExitOK
	}
}
