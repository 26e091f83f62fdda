// Command recover runs a legacy data recovery for one user against the
// configured document store and local storage, outside the API server.
//
//	recover -uid 42 -email ana@example.com            scan and import
//	recover -uid 42 -email ana@example.com -scan-only print what would be imported
//	recover -uid 42 -restore                          undo the last import
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/FACorreiaa/family-finance-tracker/cmd/api"
	"github.com/FACorreiaa/family-finance-tracker/internal/domain/auth"
	"github.com/FACorreiaa/family-finance-tracker/internal/domain/recovery"
	"github.com/FACorreiaa/family-finance-tracker/internal/domain/workspace"
	"github.com/FACorreiaa/family-finance-tracker/pkg/config"
)

type options struct {
	uid      string
	email    string
	scanOnly bool
	restore  bool
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	fs := flag.NewFlagSet("recover", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var opts options
	fs.StringVar(&opts.uid, "uid", "", "user id whose legacy data is recovered (required)")
	fs.StringVar(&opts.email, "email", "", "user email, enables the email-filtered probes")
	fs.BoolVar(&opts.scanOnly, "scan-only", false, "scan and classify without importing")
	fs.BoolVar(&opts.restore, "restore", false, "restore the backup taken before the last import")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if opts.uid == "" {
		return options{}, errors.New("-uid is required")
	}
	if opts.scanOnly && opts.restore {
		return options{}, errors.New("-scan-only and -restore are mutually exclusive")
	}
	return opts, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	if err := run(opts, os.Stdout); err != nil {
		slog.Error("recovery failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(opts options, out io.Writer) error {
	cfg, err := config.LoadWithoutSecrets()
	if err != nil {
		return err
	}

	logger := api.NewLogger(os.Stderr, cfg.Observability.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := api.InitStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Cleanup()

	ws, err := workspace.NewRegistry(deps.KV, logger).Get(ctx, opts.uid)
	if err != nil {
		return fmt.Errorf("failed to load workspace: %w", err)
	}

	if opts.restore {
		snap, err := recovery.NewRestorer(deps.KV).Restore(ctx, opts.uid, recovery.RestoreTargets{
			Transactions: ws.Transactions,
			Budgets:      ws.Budgets,
			Goals:        ws.Goals,
		})
		if err != nil {
			return err
		}
		if _, err := ws.RefreshBudgets(ctx); err != nil {
			return err
		}
		return writeJSON(out, snap)
	}

	prober := recovery.NewProber(deps.DocStore, recovery.ProberConfig{
		Candidates: cfg.Recovery.Candidates,
		SampleSize: cfg.Recovery.SampleSize,
		FetchLimit: cfg.Recovery.FetchLimit,
	}, logger, deps.Metrics)
	orchestrator := recovery.NewOrchestrator(prober, recovery.RuleClassifier{}, deps.KV, logger, deps.Metrics)
	identity := auth.Identity{UID: opts.uid, Email: opts.email}

	scan, err := orchestrator.Scan(ctx, identity)
	if err != nil {
		return err
	}
	if opts.scanOnly || !scan.Probe.Found {
		return writeJSON(out, scan)
	}

	report, err := orchestrator.Import(ctx, identity, scan, recovery.Targets{
		Transactions: ws.Transactions,
		Budgets:      ws.Budgets,
		Goals:        ws.Goals,
		Categories:   ws.Categories,
	})
	if err != nil {
		return err
	}
	if _, err := ws.RefreshBudgets(ctx); err != nil {
		return err
	}
	return writeJSON(out, report)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}
	return nil
}
