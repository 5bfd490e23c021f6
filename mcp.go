package main

import (
	"github.com/spf13/cobra"

	"flipbook-app/config"
	"flipbook-app/internal/mcptool"
)

func mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the conversion tool over MCP on stdin and stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			// stdout carries the protocol, so logs go to stderr only.
			log := newLogger(cfg.Log)
			p, err := newPipeline(cfg.Pipeline, log)
			if err != nil {
				return err
			}
			log.Info("Starting MCP server")
			return mcptool.Serve(cmd.Context(), mcptool.NewConverter(p, log), version)
		},
	}
}
