package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/yourorg/payment-reconciler/internal/config"
	"github.com/yourorg/payment-reconciler/internal/server"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "reconciler",
		Short: "Payment confirmation and fulfillment reconciliation service",
	}
	root.AddCommand(serveCmd())
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the reconciliation HTTP service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if configPath != "" {
				loaded, err := config.Load(configPath)
				if err != nil {
					return err
				}
				cfg = loaded
			}

			logger, err := zap.NewProduction()
			if err != nil {
				return fmt.Errorf("initializing logger: %w", err)
			}
			defer logger.Sync()

			tp, err := initTracing()
			if err != nil {
				return fmt.Errorf("initializing tracing: %w", err)
			}
			defer tp.Shutdown(cmd.Context())

			if err := os.MkdirAll(cfg.Fulfillment.DownloadDir, 0o755); err != nil {
				return fmt.Errorf("creating download dir: %w", err)
			}

			srv, err := server.New(cfg, logger)
			if err != nil {
				return err
			}
			logger.Info("starting reconciler", zap.String("listen_addr", cfg.ListenAddr))
			return srv.Router().Run(cfg.ListenAddr)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")
	return cmd
}

func initTracing() (*sdktrace.TracerProvider, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(tp)
	return tp, nil
}
