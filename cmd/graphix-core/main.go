// Command graphix-core runs the cross-indexing verification core: the
// polling loop, the divergence investigator, and the read/mutate JSON API,
// all against one Postgres-backed store.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/graphix-core/graphix-core/internal/api"
	"github.com/graphix-core/graphix-core/internal/config"
	"github.com/graphix-core/graphix-core/internal/investigate"
	"github.com/graphix-core/graphix-core/internal/polling"
	"github.com/graphix-core/graphix-core/internal/store"
	"github.com/graphix-core/graphix-core/internal/telemetry"
)

var (
	configPath     string
	databaseURL    string
	port           uint16
	prometheusPort uint16
	logFormat      string
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "graphix-core",
		Short: "Cross-indexing verification core for a network of subgraph indexers",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "graphix.yaml", "Path to the YAML configuration file")
	root.PersistentFlags().StringVar(&databaseURL, "database-url", "", "Postgres connection string (overrides config/env)")
	root.PersistentFlags().Uint16Var(&port, "port", 0, "API server port (overrides config/env)")
	root.PersistentFlags().Uint16Var(&prometheusPort, "prometheus-port", 0, "Prometheus metrics port (overrides config/env)")
	root.PersistentFlags().StringVar(&logFormat, "log-format", "json", "Log format: json or text")

	root.AddCommand(serveCmd(), migrateCmd())
	return root
}

// loadConfig reads the YAML file and layers CLI-flag overrides on top;
// config.Load itself layers the GRAPHIX_* environment variables (viper),
// so CLI flags take final precedence over both.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if databaseURL != "" {
		cfg.DatabaseURL = databaseURL
	}
	if port != 0 {
		cfg.GraphQL.Port = port
	}
	if prometheusPort != 0 {
		cfg.PrometheusPort = prometheusPort
	}
	return cfg, nil
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run pending schema migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log := telemetry.NewLogger(logFormat)
			st, err := store.Open(cmd.Context(), cfg.DatabaseURL, log)
			if err != nil {
				return err
			}
			defer st.Close()
			return st.Migrate(cmd.Context())
		},
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the polling loop, divergence investigator, and API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}
}

// serve wires every long-running component together and blocks until a
// shutdown signal arrives; cancellation stops the polling and investigator
// tasks at their next suspension point and drains the API server last.
func serve(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := telemetry.NewLogger(logFormat)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, cfg.PrometheusPort, log)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer shutdownTelemetry(context.Background())

	st, err := store.Open(ctx, cfg.DatabaseURL, log)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	if err := st.Migrate(ctx); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	roster := investigate.NewRoster()

	pollLoop := polling.NewLoop(cfg, st, roster, log)
	go pollLoop.Run(ctx)

	driver := investigate.NewDriver(investigate.NewStoreQueue(st), roster, log)
	go func() {
		if err := driver.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error("investigator driver stopped", "error", err)
		}
	}()

	apiAddr := fmt.Sprintf(":%d", cfg.GraphQL.Port)
	apiServer := api.NewServer(apiAddr, st, roster, log)
	log.Info("starting graphix-core", "api_addr", apiAddr, "prometheus_port", cfg.PrometheusPort)
	if err := apiServer.Start(ctx); err != nil {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}
