// This file contains the restore subcommand handler.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"chokewatch/internal/backup"

	"github.com/spf13/pflag"
)

// restoreHelpText is the help message for the restore subcommand.
const restoreHelpText = `chokewatch restore - Restore quiet hours from a backup

USAGE:
    chokewatch restore [OPTIONS] [BACKUP_NAME]

OPTIONS:
    --latest       Restore from the most recent backup
    -f, --force    Skip confirmation prompt
    -h, --help     Show this help message

ARGUMENTS:
    BACKUP_NAME    Name of the backup to restore (e.g., 2025-12-15_143022_000)
                   Use 'chokewatch backup --list' to see available backups.

DESCRIPTION:
    Verifies the backup, takes a safety backup of the current store and
    then replaces it. A running worker picks up the restored quiet hours on
    its next alert.

EXAMPLES:
    # Restore from a specific backup
    chokewatch restore 2025-12-15_143022_000

    # Restore from the most recent backup
    chokewatch restore --latest

    # Restore without confirmation prompt
    chokewatch restore --force 2025-12-15_143022_000
`

// runRestore handles the "chokewatch restore" subcommand.
func runRestore(args []string) {
	fs := pflag.NewFlagSet("restore", pflag.ContinueOnError)
	latestFlag := fs.Bool("latest", false, "restore from most recent backup")
	forceFlag := fs.BoolP("force", "f", false, "skip confirmation prompt")
	parseFlags(fs, restoreHelpText, args)

	cfg := loadConfig()
	manager := backup.NewManager(cfg.GetDataDir(), version)

	var backupName string
	switch {
	case *latestFlag:
		backups, err := manager.List()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error listing backups: %v\n", err)
			os.Exit(1)
		}
		if len(backups) == 0 {
			fmt.Fprintln(os.Stderr, "No backups available.")
			os.Exit(1)
		}
		backupName = backups[0].Name
	case fs.NArg() > 0:
		backupName = fs.Arg(0)
	default:
		fmt.Fprintln(os.Stderr, "Error: no backup specified")
		fmt.Fprintln(os.Stderr, "Use 'chokewatch restore BACKUP_NAME' or 'chokewatch restore --latest'")
		fmt.Fprintln(os.Stderr, "Run 'chokewatch backup --list' to see available backups.")
		os.Exit(1)
	}

	info, err := manager.GetBackup(backupName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Restoring from backup: %s\n", info.Name)
	fmt.Printf("  Created: %s\n", info.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("  Quiet hours: %s\n", quietOrOff(info.QuietHours))
	fmt.Println()

	if !*forceFlag && !confirm("⚠ This will overwrite your current quiet hours.") {
		fmt.Println("Restore cancelled.")
		os.Exit(0)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cliTimeout)
	defer cancel()

	fmt.Println("✓ Creating safety backup first...")
	if err := manager.Restore(ctx, backupName); err != nil {
		fmt.Fprintf(os.Stderr, "Error restoring backup: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✓ Restored successfully from %s\n", backupName)
}

func confirm(warning string) bool {
	fmt.Println(warning)
	fmt.Print("Continue? [y/N] ")

	reader := bufio.NewReader(os.Stdin)
	response, err := reader.ReadString('\n')
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading input: %v\n", err)
		os.Exit(1)
	}

	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}
