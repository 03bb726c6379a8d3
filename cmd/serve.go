package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/searchd/internal/config"
	"github.com/conneroisu/searchd/internal/logging"
	"github.com/conneroisu/searchd/internal/monitoring"
	"github.com/conneroisu/searchd/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the search server",
	Long: `Start the search server and serve exact-line membership queries.

Examples:
  searchd serve --corpus /data/texts/source.txt
  searchd serve --corpus data.txt --reread-on-query
  searchd serve --corpus data.txt --tls --cert certs/server.crt --key certs/server.key`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntP("port", "p", 44445, "Port to listen on")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
	serveCmd.Flags().String("corpus", "", "Path to the corpus file")
	serveCmd.Flags().Bool("reread-on-query", false, "Re-read the corpus on every query")
	serveCmd.Flags().String("strategy", config.StrategyMmap, "Reload-mode search strategy (hashset, scan, mmap, binary)")
	serveCmd.Flags().Bool("watch", false, "Rebuild the cached snapshot when the corpus file changes")
	serveCmd.Flags().Int("max-connections", 256, "Maximum concurrent connections")
	serveCmd.Flags().Duration("idle-timeout", 30*time.Second, "Per-connection idle timeout")
	serveCmd.Flags().Bool("tls", false, "Enable TLS")
	serveCmd.Flags().String("cert", "", "TLS certificate file")
	serveCmd.Flags().String("key", "", "TLS private key file")
	serveCmd.Flags().String("ca", "", "CA file for client certificate validation")
	serveCmd.Flags().String("psk", "", "Pre-shared key clients must present")
	serveCmd.Flags().Bool("metrics", false, "Expose Prometheus metrics")

	viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	viper.BindPFlag("corpus.path", serveCmd.Flags().Lookup("corpus"))
	viper.BindPFlag("corpus.reread_on_query", serveCmd.Flags().Lookup("reread-on-query"))
	viper.BindPFlag("corpus.strategy", serveCmd.Flags().Lookup("strategy"))
	viper.BindPFlag("corpus.watch", serveCmd.Flags().Lookup("watch"))
	viper.BindPFlag("server.max_connections", serveCmd.Flags().Lookup("max-connections"))
	viper.BindPFlag("server.idle_timeout", serveCmd.Flags().Lookup("idle-timeout"))
	viper.BindPFlag("tls.enabled", serveCmd.Flags().Lookup("tls"))
	viper.BindPFlag("tls.cert_file", serveCmd.Flags().Lookup("cert"))
	viper.BindPFlag("tls.key_file", serveCmd.Flags().Lookup("key"))
	viper.BindPFlag("tls.ca_file", serveCmd.Flags().Lookup("ca"))
	viper.BindPFlag("auth.psk", serveCmd.Flags().Lookup("psk"))
	viper.BindPFlag("monitoring.metrics_enabled", serveCmd.Flags().Lookup("metrics"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := logging.NewLogger(&logging.LoggerConfig{
		Level:  logging.ParseLevel(cfg.Monitoring.LogLevel),
		Format: cfg.Monitoring.LogFormat,
		Output: os.Stderr,
	})

	reporter, metricsServer := buildReporter(cfg, logger)

	srv, err := server.New(cfg, logger, reporter)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	// Create context that cancels on interrupt
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Error(shutdownCtx, shutdownErr, "error during shutdown")
		}
		if metricsServer != nil {
			_ = metricsServer.Shutdown(shutdownCtx)
		}

		cancel()
	}()

	if metricsServer != nil {
		go func() {
			if metricsErr := metricsServer.Start(); metricsErr != nil {
				logger.Error(ctx, metricsErr, "metrics endpoint failed")
			}
		}()
	}

	fmt.Printf("Starting searchd on %s:%d (TLS: %v, reread: %v)\n",
		cfg.Server.Host, cfg.Server.Port, cfg.TLS.Enabled, cfg.Corpus.RereadOnQuery)

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// buildReporter assembles the reporter stack: structured logs always,
// Prometheus when enabled.
func buildReporter(cfg *config.Config, logger logging.Logger) (monitoring.Reporter, *monitoring.MetricsServer) {
	logReporter := monitoring.NewLogReporter(logger)

	if !cfg.Monitoring.MetricsEnabled {
		return logReporter, nil
	}

	promReporter := monitoring.NewPrometheusReporter()
	metricsServer := monitoring.NewMetricsServer(cfg.Monitoring.MetricsAddr, promReporter, logger)

	return monitoring.NewMultiReporter(logReporter, promReporter), metricsServer
}
