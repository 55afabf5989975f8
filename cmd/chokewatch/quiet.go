// This file contains the quiet subcommand, the command-line writer and
// reader of the stored quiet hours.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"chokewatch/internal/prefs"
	"chokewatch/internal/quiet"

	"github.com/spf13/pflag"
)

const quietHelpText = `chokewatch quiet - Show or change quiet hours

USAGE:
    chokewatch quiet show
    chokewatch quiet set START END
    chokewatch quiet clear

ARGUMENTS:
    START, END     Hours as 0-23 or 12-hour labels: 22, 10pm, "10 PM", 12am

DESCRIPTION:
    Alerts that arrive at or after START and before END are silenced. A
    window whose START is later than END wraps past midnight, so
    "quiet set 10pm 7am" silences 22:00 through 06:59. When START equals
    END every hour is quiet.

    The running worker reads the new window on the next alert; it does not
    need a restart.

EXAMPLES:
    chokewatch quiet set 22 7
    chokewatch quiet set 9am 5pm
    chokewatch quiet clear
`

const cliTimeout = 5 * time.Second

// runQuiet handles the "chokewatch quiet" subcommand.
func runQuiet(args []string) {
	fs := pflag.NewFlagSet("quiet", pflag.ContinueOnError)
	parseFlags(fs, quietHelpText, args)

	cfg := loadConfig()
	store := prefs.New(prefs.Path(cfg.GetDataDir()), prefs.RoleOwner)
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), cliTimeout)
	defer cancel()

	if err := store.Initialize(ctx); err != nil {
		fatalf("opening quiet hours store: %v", err)
	}

	action := "show"
	if fs.NArg() > 0 {
		action = fs.Arg(0)
	}

	switch action {
	case "show":
		showQuiet(ctx, store)
	case "set":
		if fs.NArg() != 3 {
			fmt.Fprintln(os.Stderr, "Error: quiet set needs START and END")
			fmt.Fprintln(os.Stderr, "Use 'chokewatch quiet set 10pm 7am'")
			os.Exit(1)
		}
		setQuiet(ctx, store, fs.Arg(1), fs.Arg(2))
	case "clear":
		if err := store.Clear(ctx); err != nil {
			fatalf("clearing quiet hours: %v", err)
		}
		fmt.Println("✓ Quiet hours are off")
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown quiet action: %s\n\n", action)
		fmt.Fprint(os.Stderr, quietHelpText)
		os.Exit(1)
	}
}

func showQuiet(ctx context.Context, store *prefs.Repository) {
	w, updated, ok := store.Stat(ctx)
	if !ok {
		fmt.Println("Quiet hours are off")
		return
	}
	fmt.Printf("Quiet hours set to %s\n", w)
	if !updated.IsZero() {
		fmt.Printf("  Updated: %s\n", updated.Local().Format("2006-01-02 15:04:05"))
	}
	state := "outside"
	if quiet.IsQuiet(quiet.HourOf(time.Now()), w) {
		state = "inside"
	}
	fmt.Printf("  %s\n", describeWindow(w))
	fmt.Printf("  Now: %s the window\n", state)
}

func setQuiet(ctx context.Context, store *prefs.Repository, startArg, endArg string) {
	start, err := quiet.ParseHour(startArg)
	if err != nil {
		fatalf("start %q: %v", startArg, err)
	}
	end, err := quiet.ParseHour(endArg)
	if err != nil {
		fatalf("end %q: %v", endArg, err)
	}

	w := quiet.Window{Start: start, End: end}
	if err := store.Put(ctx, w); err != nil {
		if errors.Is(err, quiet.ErrInvalidHour) {
			fatalf("%v", err)
		}
		fatalf("saving quiet hours: %v", err)
	}
	fmt.Printf("✓ Quiet hours set to %s\n", w)
	fmt.Println(" ", describeWindow(w))
}

// describeWindow explains which hours w silences.
func describeWindow(w quiet.Window) string {
	if w.Start == w.End {
		return "Start and end are equal: every hour is quiet."
	}
	last := (w.End + quiet.HoursPerDay - 1) % quiet.HoursPerDay
	msg := fmt.Sprintf("Alerts are silenced from %02d:00 until %02d:59", w.Start, last)
	if w.Wraps() && w.End != 0 {
		msg += ", past midnight"
	}
	return msg + "."
}
