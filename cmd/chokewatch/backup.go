// This file contains the backup subcommand handler.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"chokewatch/internal/backup"

	"github.com/spf13/pflag"
)

// backupHelpText is the help message for the backup subcommand.
const backupHelpText = `chokewatch backup - Create and manage backups

USAGE:
    chokewatch backup [OPTIONS]

OPTIONS:
    -l, --list        List available backups
    --prune N         Keep only the N most recent backups
    -h, --help        Show this help message

DESCRIPTION:
    Takes a consistent snapshot of the quiet hours store while the worker
    keeps running. Backups are stored in ~/.chokewatch/backups/ and can be
    restored later.

EXAMPLES:
    # Create a new backup
    chokewatch backup

    # List all available backups
    chokewatch backup --list
`

// runBackup handles the "chokewatch backup" subcommand.
func runBackup(args []string) {
	fs := pflag.NewFlagSet("backup", pflag.ContinueOnError)
	listFlag := fs.BoolP("list", "l", false, "list available backups")
	pruneFlag := fs.Int("prune", 0, "keep only the N most recent backups")
	parseFlags(fs, backupHelpText, args)

	cfg := loadConfig()
	manager := backup.NewManager(cfg.GetDataDir(), version)

	switch {
	case *listFlag:
		listBackups(manager)
	case *pruneFlag > 0:
		removed, err := manager.Prune(*pruneFlag)
		if err != nil {
			fatalf("pruning backups: %v", err)
		}
		fmt.Printf("✓ Removed %d old backup(s)\n", removed)
	default:
		createBackup(manager)
	}
}

// createBackup creates a new backup and displays the result.
func createBackup(manager *backup.Manager) {
	ctx, cancel := context.WithTimeout(context.Background(), cliTimeout)
	defer cancel()

	name, err := manager.Create(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating backup: %v\n", err)
		os.Exit(1)
	}

	info, err := manager.GetBackup(name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading backup info: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✓ Backup created: %s\n", name)
	fmt.Printf("  Quiet hours: %s\n", quietOrOff(info.QuietHours))
	fmt.Printf("  Location: %s\n", info.Path)
}

// listBackups lists all available backups.
func listBackups(manager *backup.Manager) {
	backups, err := manager.List()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing backups: %v\n", err)
		os.Exit(1)
	}

	if len(backups) == 0 {
		fmt.Println("No backups available.")
		fmt.Println("Run 'chokewatch backup' to create one.")
		return
	}

	fmt.Println("Available backups:")
	for _, b := range backups {
		fmt.Printf("  %s  (%s)   Quiet hours: %s\n",
			b.Name, formatAge(b.CreatedAt), quietOrOff(b.QuietHours))
	}
}

func quietOrOff(label string) string {
	if label == "" {
		return "off"
	}
	return label
}

// formatAge returns a human-readable age string.
func formatAge(t time.Time) string {
	d := time.Since(t)

	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return plural(int(d.Minutes()), "minute")
	case d < 24*time.Hour:
		return plural(int(d.Hours()), "hour")
	case d < 7*24*time.Hour:
		return plural(int(d.Hours()/24), "day")
	default:
		return plural(int(d.Hours()/24/7), "week")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit + " ago"
	}
	return fmt.Sprintf("%d %ss ago", n, unit)
}
