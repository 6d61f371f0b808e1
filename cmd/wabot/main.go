package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Candra0x6/WA-Website-Offer-Automation/internal/app"
	"github.com/Candra0x6/WA-Website-Offer-Automation/internal/campaign"
)

// Exit codes, so operator tooling can tell a paused run (wait and
// rerun) from an aborted one (investigate).
const (
	exitOK     = 0
	exitFatal  = 1
	exitUsage  = 2
	exitPaused = 3
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		cfgPath  string
		contacts string
		dryRun   bool
		headless bool
		fresh    bool
	)
	fs := flag.NewFlagSet("wabot", flag.ContinueOnError)
	fs.StringVar(&cfgPath, "config", "./config.yaml", "path to config yaml")
	fs.StringVar(&contacts, "contacts", "", "contacts file (.xlsx or .csv), overrides config")
	fs.BoolVar(&dryRun, "dry-run", false, "log messages instead of sending them")
	fs.BoolVar(&headless, "headless", false, "run the browser headless")
	fs.BoolVar(&fresh, "fresh", false, "ignore saved progress and start from the first contact")
	if err := fs.Parse(os.Args[1:]); err != nil {
		return exitUsage
	}

	ov := app.Overrides{ContactsFile: contacts, Fresh: fresh}
	// Only explicit flags override the config file.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "dry-run":
			ov.DryRun = &dryRun
		case "headless":
			ov.Headless = &headless
		}
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	status, err := app.Run(ctx, cfgPath, ov)
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, "fatal:", err)
	}

	switch status {
	case campaign.StatusCompleted:
		return exitOK
	case campaign.StatusPaused, campaign.StatusPausedQuota:
		return exitPaused
	case campaign.StatusAborted:
		return exitFatal
	default:
		if err != nil {
			return exitUsage
		}
		return exitFatal
	}
}
