package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/levipshemish/jewgo-catalog/internal/config"
	"github.com/levipshemish/jewgo-catalog/pkg/logging"
)

// metricsMux serves the Prometheus registry.
func metricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func newRootCmd() *cobra.Command {
	var (
		configPath  string
		debug       bool
		pretty      bool
		metricsAddr string
	)

	cfg := config.Default()

	cmd := &cobra.Command{
		Use:           "catalog-cli",
		Short:         "Kosher restaurant catalog search client",
		Long:          "catalog-cli searches the restaurant catalog with cursor pagination and automatic offset fallback.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := config.Load(configPath)
			if err != nil {
				return err
			}
			cfg = *loaded

			logCfg := cfg.LogConfig()
			if debug {
				logCfg.Level = logging.LevelDebug
			}
			if pretty {
				logCfg.Pretty = true
			}
			logging.Setup(logCfg)

			if metricsAddr != "" {
				go func() {
					if err := http.ListenAndServe(metricsAddr, metricsMux()); err != nil {
						log.Warn().Err(err).Msg("Metrics listener stopped")
					}
				}()
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (YAML)")
	cmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	cmd.PersistentFlags().BoolVar(&pretty, "pretty", false, "human-readable log output")
	cmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "address for the Prometheus /metrics endpoint (disabled when empty)")

	cmd.AddCommand(newSearchCmd(&cfg))

	return cmd
}
