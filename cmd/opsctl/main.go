package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/linebroker/internal/config"
	"github.com/linebroker/internal/engine"
	"github.com/linebroker/internal/logger"
	"github.com/linebroker/internal/opsctl"
	"github.com/linebroker/internal/platform/persistence"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := opsctl.NewRootCommand(config.LoadConfig, open, os.Stdout)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// open connects to Postgres and MongoDB and builds the engine. Logs go to
// stderr so command output stays machine readable.
func open(ctx context.Context, cfg *config.Config) (*opsctl.Backend, error) {
	log := logger.NewLoggerWithWriter(cfg, os.Stderr)

	postgresDB, err := persistence.NewPostgresDB(ctx, log, &cfg.Postgres)
	if err != nil {
		return nil, err
	}

	mongoDB, err := persistence.NewMongoDB(ctx, log, &cfg.MongoDB)
	if err != nil {
		postgresDB.Close()
		return nil, err
	}

	closeAll := func() {
		postgresDB.Close()
		if err := mongoDB.Close(context.Background()); err != nil {
			log.Error("Error closing MongoDB connection", "error", err)
		}
	}

	stores, err := engine.OpenStores(ctx, log, postgresDB, mongoDB)
	if err != nil {
		closeAll()
		return nil, err
	}
	core := engine.New(log, cfg, stores)

	return &opsctl.Backend{
		Ledger:       core.Ledger,
		Orchestrator: core.Orchestrator,
		Banned:       core.Banned,
		Close:        closeAll,
	}, nil
}
