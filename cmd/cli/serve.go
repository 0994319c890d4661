// Package cli provides command-line interface commands for promgate.
// This file implements the serve command with lifecycle management.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/promgate/promgate/internal/api"
	"github.com/promgate/promgate/internal/config"
	"github.com/promgate/promgate/internal/logging"
	"github.com/promgate/promgate/internal/metrics"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the metrics exposition server",
	Long: `Start the HTTP server that publishes the current metrics snapshot
at /metrics in the Prometheus text exposition format, plus JSON health and
status endpoints under /api/v1.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	registry, store := buildRegistry(cfg)

	api.SetVersion(version)
	server := api.New(cfg, registry, store)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logging.Info("Starting promgate",
		"version", version,
		"address", server.GetAddress())

	return server.Start(ctx)
}

// buildRegistry assembles the served registry from the configured
// backends: promgate's own store plus a Prometheus gatherer carrying the
// standard runtime collectors.
func buildRegistry(cfg *config.Config) (metrics.Registry, *metrics.Store) {
	store := metrics.NewStore()
	registries := metrics.MultiRegistry{store}

	if cfg.Exposition.GoCollector || cfg.Exposition.ProcessCollector {
		promReg := prometheus.NewRegistry()
		if cfg.Exposition.GoCollector {
			promReg.MustRegister(collectors.NewGoCollector())
		}
		if cfg.Exposition.ProcessCollector {
			promReg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		}
		registries = append(registries, metrics.NewGathererRegistry(promReg))
	}

	return registries, store
}
