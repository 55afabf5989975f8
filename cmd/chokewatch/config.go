// This file contains the config subcommand.
package main

import (
	"fmt"
	"os"

	"chokewatch/internal/config"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

const configHelpText = `chokewatch config - Show or create the configuration file

USAGE:
    chokewatch config [OPTIONS]

OPTIONS:
    --init         Write a config file with the default settings
    -f, --force    With --init, replace an existing file (kept as .bak)
    --path         Print the config file path
    -h, --help     Show this help message

DESCRIPTION:
    Without options, prints the effective configuration: the config file
    merged with .env and CHOKEWATCH_* overrides. The Redis password is
    masked.
`

// runConfig handles the "chokewatch config" subcommand.
func runConfig(args []string) {
	fs := pflag.NewFlagSet("config", pflag.ContinueOnError)
	initFlag := fs.Bool("init", false, "write a default config file")
	forceFlag := fs.BoolP("force", "f", false, "replace an existing file")
	pathFlag := fs.Bool("path", false, "print the config file path")
	parseFlags(fs, configHelpText, args)

	switch {
	case *pathFlag:
		fmt.Println(config.Path())
	case *initFlag:
		if _, err := os.Stat(config.Path()); err == nil && !*forceFlag {
			fatalf("%s already exists; use --force to replace it", config.Path())
		}
		path, err := config.Default().Save()
		if err != nil {
			fatalf("writing config: %v", err)
		}
		fmt.Printf("✓ Wrote %s\n", path)
	default:
		cfg := loadConfig()
		out, err := renderConfig(cfg)
		if err != nil {
			fatalf("%v", err)
		}
		fmt.Print(out)
	}
}

// renderConfig renders cfg as YAML with secrets masked.
func renderConfig(cfg *config.Config) (string, error) {
	shown := *cfg
	if shown.Push.Redis.Password != "" {
		shown.Push.Redis.Password = "********"
	}
	data, err := yaml.Marshal(&shown)
	if err != nil {
		return "", fmt.Errorf("encode config: %w", err)
	}
	return string(data), nil
}
