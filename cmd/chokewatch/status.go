// This file contains the status subcommand.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"chokewatch/internal/prefs"
	"chokewatch/internal/worker"

	"github.com/spf13/pflag"
)

const statusHelpText = `chokewatch status - Show worker and quiet hours status

USAGE:
    chokewatch status [OPTIONS]

OPTIONS:
    --json         Print the status as JSON
    -h, --help     Show this help message

DESCRIPTION:
    Prints the worker that currently controls alert handling, every worker
    instance recorded in ~/.chokewatch/worker.json and the stored quiet
    hours.
`

type statusReport struct {
	Controller string            `json:"controller,omitempty"`
	Instances  []worker.Instance `json:"instances"`
	Quiet      *quietSnapshot    `json:"quiet_hours,omitempty"`
}

// runStatus handles the "chokewatch status" subcommand.
func runStatus(args []string) {
	fs := pflag.NewFlagSet("status", pflag.ContinueOnError)
	asJSON := fs.Bool("json", false, "print JSON")
	parseFlags(fs, statusHelpText, args)

	cfg := loadConfig()
	dataDir := cfg.GetDataDir()

	snap, err := worker.NewRegistry(worker.RegistryPath(dataDir)).Load()
	if err != nil {
		fatalf("reading worker registry: %v", err)
	}

	store := prefs.New(prefs.Path(dataDir), prefs.RoleReadOnly)
	defer store.Close()
	ctx, cancel := context.WithTimeout(context.Background(), cliTimeout)
	defer cancel()

	report := statusReport{Controller: snap.Controller, Instances: snap.Sorted()}
	if w, ok := store.Get(ctx); ok {
		report.Quiet = &quietSnapshot{Start: w.Start, End: w.End, Label: w.String()}
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			fatalf("%v", err)
		}
		return
	}

	if inst, ok := snap.ControllerInstance(); ok {
		fmt.Printf("Worker: %s (%s), pid %d\n", versionOrDev(inst.Version), inst.ID, inst.PID)
	} else {
		fmt.Println("Worker: none running")
	}
	for _, inst := range report.Instances {
		marker := " "
		if inst.ID == snap.Controller {
			marker = "*"
		}
		fmt.Printf("  %s %s  %-10s %s  installed %s\n",
			marker, inst.ID, inst.State, versionOrDev(inst.Version),
			inst.InstalledAt.Local().Format(time.DateTime))
	}

	if report.Quiet != nil {
		fmt.Printf("Quiet hours: %s\n", report.Quiet.Label)
	} else {
		fmt.Println("Quiet hours: off")
	}
}

func versionOrDev(v string) string {
	if v == "" {
		return "dev"
	}
	return v
}
