// Package main is the entry point for chokewatch.
// It dispatches to the worker daemon and the settings commands.
package main

import (
	"fmt"
	"os"

	"chokewatch/internal/config"

	"github.com/spf13/pflag"
)

// Version information - set during build with -ldflags "-X main.version=..."
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const helpText = `chokewatch - Quiet hours for chokepoint alerts

USAGE:
    chokewatch <command> [ARGS]

COMMANDS:
    worker               Run the background worker that receives alerts
    settings             Open the quiet hours settings screen
    quiet show           Print the stored quiet hours
    quiet set START END  Set quiet hours (e.g. 22 7, or 10pm 7am)
    quiet clear          Turn quiet hours off
    status               Show the running worker and stored quiet hours
    send TITLE           Send a test alert to the running worker
    backup               Back up the quiet hours store
    backup --list        List available backups
    restore NAME         Restore from a specific backup
    restore --latest     Restore from the most recent backup
    config               Print the effective configuration
    config --init        Write a default config file

OPTIONS:
    -h, --help           Show this help message
    -v, --version        Show version information

DESCRIPTION:
    chokewatch decides on this machine, without a network round-trip,
    whether each chokepoint alert delivered by the push service is shown as
    a desktop notification or silenced because it arrived during your quiet
    hours. The window may wrap past midnight: 10 PM to 7 AM silences alerts
    from 22:00 until 06:59.

DATA STORAGE:
    ~/.chokewatch/pta_prefs.db   Quiet hours (SQLite)
    ~/.chokewatch/worker.json    Running worker registry
    ~/.chokewatch/backups/       Backups

CONFIGURATION:
    Optional config file: ~/.config/chokewatch/config.yaml
    Optional .env file beside it; CHOKEWATCH_* variables override both.

EXAMPLES:
    # Start the worker
    chokewatch worker

    # Silence alerts overnight
    chokewatch quiet set 10pm 7am

    # Check what is configured and which worker is running
    chokewatch status
`

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "worker":
			runWorker(os.Args[2:])
			return
		case "settings":
			runSettings(os.Args[2:])
			return
		case "quiet":
			runQuiet(os.Args[2:])
			return
		case "status":
			runStatus(os.Args[2:])
			return
		case "send":
			runSend(os.Args[2:])
			return
		case "backup":
			runBackup(os.Args[2:])
			return
		case "restore":
			runRestore(os.Args[2:])
			return
		case "config":
			runConfig(os.Args[2:])
			return
		}
	}

	fs := pflag.NewFlagSet("chokewatch", pflag.ContinueOnError)
	showVersion := fs.BoolP("version", "v", false, "show version information")
	showHelp := fs.BoolP("help", "h", false, "show help message")
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, helpText)
	}

	if err := fs.Parse(os.Args[1:]); err != nil {
		os.Exit(1)
	}

	if *showVersion {
		fmt.Printf("chokewatch version %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
		os.Exit(0)
	}

	if *showHelp || fs.NArg() == 0 {
		fmt.Print(helpText)
		os.Exit(0)
	}

	fmt.Fprintf(os.Stderr, "Error: unknown command: %s\n\n", fs.Arg(0))
	fs.Usage()
	os.Exit(1)
}

// parseFlags parses args with the subcommand's help text and handles -h.
func parseFlags(fs *pflag.FlagSet, help string, args []string) {
	showHelp := fs.BoolP("help", "h", false, "show help message")
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, help)
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if *showHelp {
		fmt.Print(help)
		os.Exit(0)
	}
}

// loadConfig loads configuration or exits.
func loadConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// workerVersion is the version recorded for a worker started by this
// binary.
func workerVersion(cfg *config.Config) string {
	if cfg.Worker.Version != "" {
		return cfg.Worker.Version
	}
	return version
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
