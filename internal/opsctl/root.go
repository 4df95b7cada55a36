// Package opsctl is the operator command line. Every command goes through the
// same ledger and orchestrator contracts the API uses; nothing here writes to
// the stores directly.
package opsctl

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/linebroker/internal/config"
	"github.com/linebroker/internal/engine/banned"
	"github.com/linebroker/internal/engine/ledger"
	"github.com/linebroker/internal/engine/orchestrator"
)

// Backend is what the commands operate on
type Backend struct {
	Ledger       ledger.Service
	Orchestrator orchestrator.Orchestrator
	Banned       banned.Tracker
	Close        func()
}

// Opener connects a Backend for one command run
type Opener func(ctx context.Context, cfg *config.Config) (*Backend, error)

// ConfigLoader loads configuration by name, config.LoadConfig in production
type ConfigLoader func(name string) (*config.Config, error)

type app struct {
	configName string
	loadConfig ConfigLoader
	open       Opener
	out        io.Writer
}

// NewRootCommand builds the opsctl command tree
func NewRootCommand(loadConfig ConfigLoader, open Opener, out io.Writer) *cobra.Command {
	a := &app{loadConfig: loadConfig, open: open, out: out}

	root := &cobra.Command{
		Use:   "opsctl",
		Short: "Operator tooling for the line broker",
		Long: `opsctl inspects wallets, issues goodwill credits, runs the expiry sweep
and reports offending numbers. It reads the same environment as the services.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&a.configName, "config", "opsctl", "Configuration name, read from <name>.env")

	root.AddCommand(newBalanceCmd(a))
	root.AddCommand(newEntriesCmd(a))
	root.AddCommand(newGoodwillCmd(a))
	root.AddCommand(newSweepCmd(a))
	root.AddCommand(newQuoteCmd(a))
	root.AddCommand(newBannedCmd(a))
	root.AddCommand(newTokenCmd(a))

	return root
}

// withBackend loads configuration, opens the backend and runs fn against it
func (a *app) withBackend(ctx context.Context, fn func(b *Backend) error) error {
	cfg, err := a.loadConfig(a.configName)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	b, err := a.open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	if b.Close != nil {
		defer b.Close()
	}
	return fn(b)
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
