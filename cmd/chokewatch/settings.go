// This file contains the settings subcommand that opens the TUI.
package main

import (
	"context"
	"fmt"
	"os"

	"chokewatch/internal/prefs"
	"chokewatch/internal/ui"
	"chokewatch/internal/worker"

	"github.com/spf13/pflag"
)

const settingsHelpText = `chokewatch settings - Edit quiet hours interactively

USAGE:
    chokewatch settings [OPTIONS]

OPTIONS:
    --no-confirm   Clear quiet hours without asking
    -h, --help     Show this help message

KEYBINDINGS:
    Tab, ←/→       Switch between start and end
    j/k, ↓/↑       Change the selected hour
    Enter, s       Save
    c              Turn quiet hours off
    ?              Show help overlay
    q              Quit
`

// runSettings handles the "chokewatch settings" subcommand.
func runSettings(args []string) {
	fs := pflag.NewFlagSet("settings", pflag.ContinueOnError)
	noConfirm := fs.Bool("no-confirm", false, "clear without confirmation")
	parseFlags(fs, settingsHelpText, args)

	cfg := loadConfig()
	dataDir := cfg.GetDataDir()

	store := prefs.New(prefs.Path(dataDir), prefs.RoleOwner)
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), cliTimeout)
	err := store.Initialize(ctx)
	cancel()
	if err != nil {
		fatalf("opening quiet hours store: %v", err)
	}
	registry := worker.NewRegistry(worker.RegistryPath(dataDir))

	styles := ui.NewStylesFromTheme(&cfg.Theme)
	appCfg := &ui.AppConfig{
		Keys:         &cfg.Keys,
		ConfirmClear: !*noConfirm,
	}

	if err := ui.Run(store, registry, styles, appCfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error running settings: %v\n", err)
		os.Exit(1)
	}
}
