package main

import (
	"context"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"flipbook-app/config"
	"flipbook-app/internal/envHelper"
	"flipbook-app/internal/logging"
	"flipbook-app/internal/pdf"
	"flipbook-app/internal/pipeline"
)

const version = "v0.3.0"

func main() {
	if err := rootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var envFile string
	root := &cobra.Command{
		Use:          "flipbook",
		Short:        "Turn PDFs of two-page spreads into page-by-page flipbooks",
		Version:      version,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if envFile != "" {
				envHelper.LoadEnv(envFile)
			} else {
				envHelper.LoadEnv()
			}
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env", "", "load environment variables from this file instead of .env")

	root.AddCommand(serveCmd(), convertCmd(), mcpCmd())
	return root
}

// newLogger builds the process logger from the configuration.
func newLogger(cfg config.LogConfig) *logrus.Logger {
	logger := logging.New(cfg.Level, cfg.Format)
	logger.SetReportCaller(cfg.ReportCaller)
	return logger
}

// newPipeline builds the conversion pipeline from the configuration.
func newPipeline(cfg config.PipelineConfig, logger logrus.FieldLogger) (*pipeline.Pipeline, error) {
	rasterizer, err := pdf.NewRasterizer(cfg.Rasterizer)
	if err != nil {
		return nil, err
	}
	return pipeline.New(rasterizer, pipeline.Options{
		Scale:        cfg.Scale,
		Workers:      cfg.Workers,
		ReorderDepth: cfg.ReorderDepth,
		Logger:       logger,
	}), nil
}
