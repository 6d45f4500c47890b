package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"

	"github.com/antigravity-dev/specsheet/internal/api"
	"github.com/antigravity-dev/specsheet/pkg/config"
	"github.com/antigravity-dev/specsheet/pkg/learning"
)

// cmdServeAPI starts the read-mostly status/control HTTP server (queue
// snapshots, host-yield lookups, enqueueing) and blocks until ctx is
// cancelled — same signal-driven shutdown as the rest of this binary.
func cmdServeAPI(ctx context.Context, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("serve-api", flag.ContinueOnError)
	helperRoot := fs.String("helper-root", ".", "directory containing category rule-pack trees")
	configPath := fs.String("config", "", "path to a TOML config file (optional, defaults used otherwise)")
	bind := fs.String("bind", "", "override the config's api.bind address")
	learningDB := fs.String("learning-db", "learning.db", "path to the host-yield learning store")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var cfg *config.Config
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return fmt.Errorf("serve-api: loading config: %w", err)
		}
		cfg = loaded
	} else {
		cfg = &config.Config{}
		cfg.API.Bind = "127.0.0.1:8090"
		cfg.Queue.MaxAttempts = 5
	}
	if *bind != "" {
		cfg.API.Bind = *bind
	}

	store, err := learning.Open(*learningDB)
	if err != nil {
		return fmt.Errorf("serve-api: opening learning store: %w", err)
	}
	defer store.Close()

	srv, err := api.NewServer(cfg, *helperRoot, store, logger)
	if err != nil {
		return fmt.Errorf("serve-api: %w", err)
	}
	defer srv.Close()

	return srv.Start(ctx)
}
