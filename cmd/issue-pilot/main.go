// Package main runs the issue-pilot webhook relay: a GitHub App that turns labeled issues,
// PR comments and reviews into repository_dispatch events for an automation workflow.
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/codeGROOVE-dev/issue-pilot/pkg/config"
	"github.com/codeGROOVE-dev/issue-pilot/pkg/github"
	"github.com/codeGROOVE-dev/issue-pilot/pkg/relay"
	"github.com/codeGROOVE-dev/issue-pilot/pkg/server"
	"github.com/codeGROOVE-dev/issue-pilot/pkg/store"

	"github.com/urfave/cli/v2"
)

var version = "dev"

func main() {
	configFlag := &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Load configuration from TOML `FILE` (environment variables take precedence)",
		EnvVars: []string{"ISSUE_PILOT_CONFIG"},
	}

	app := &cli.App{
		Name:    "issue-pilot",
		Usage:   "Relay GitHub webhooks to repository_dispatch runs for issue automation",
		Version: version,
		Flags: []cli.Flag{
			configFlag,
			&cli.IntFlag{
				Name:  "port",
				Usage: "HTTP port to listen on (overrides PORT)",
			},
		},
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Start the webhook server",
				Action: serve,
			},
			{
				Name:   "check-config",
				Usage:  "Validate the configuration and print a summary without secrets",
				Action: checkConfig,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func checkConfig(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(cfg.Summary())
}

func serve(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	if port := c.Int("port"); port > 0 {
		cfg.Port = port
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.Level(),
	}))
	slog.SetDefault(logger)

	summary := cfg.Summary()
	attrs := make([]any, 0, 2*len(summary))
	for k, v := range summary {
		attrs = append(attrs, k, v)
	}
	slog.Info("Starting issue-pilot", append([]any{"version", version}, attrs...)...)

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := github.NewApp(github.AppConfig{
		AppID:       cfg.AppID,
		PrivateKey:  []byte(cfg.PrivateKey),
		BaseURL:     cfg.GitHubAPIURL,
		HTTPTimeout: cfg.HTTPTimeout,
	})
	if err != nil {
		return fmt.Errorf("initializing GitHub App: %w", err)
	}

	var opts []relay.Option
	srvCfg := server.Config{
		WebhookSecret: cfg.WebhookSecret,
		Port:          cfg.Port,
		DeliveryTTL:   cfg.DeliveryTTL,
	}
	if cfg.RedisURL != "" {
		st, err := store.New(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer func() {
			if err := st.Close(); err != nil {
				slog.Warn("Failed to close redis client", "error", err)
			}
		}()
		opts = append(opts, relay.WithLocker(st))
		srvCfg.Deliveries = st
	} else {
		slog.Info("No REDIS_URL configured; delivery dedup and branch locks are disabled")
	}

	r, err := relay.New(app, cfg.Relay(), opts...)
	if err != nil {
		return fmt.Errorf("initializing relay: %w", err)
	}
	srvCfg.Handler = r

	srv, err := server.New(srvCfg)
	if err != nil {
		return err
	}
	return srv.Run(ctx)
}

var (
	_ github.Installations = (*github.App)(nil)
	_ relay.Locker         = (*store.Store)(nil)
	_ server.DeliveryLog   = (*store.Store)(nil)
	_ server.Handler       = (*relay.Relay)(nil)
)
