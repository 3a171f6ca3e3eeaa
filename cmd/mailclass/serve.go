package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/crimson-sun/mailclass/internal/server"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the classifier over HTTP",
		Long: `Start the HTTP API and web page. The default model is loaded in the
background; /ready reports 200 once it is available.

  GET  /                      web form
  POST /api/v1/classify       {"text": "..."}
  POST /api/v1/classify/batch {"texts": ["...", "..."]}
  GET  /api/v1/labels
  GET  /health, /ready`,
		RunE: runServe,
	}
	cmd.Flags().String("addr", "", "listen address (default from server.addr)")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	addr := cfg.Server.Addr
	if cmd.Flags().Changed("addr") {
		addr, _ = cmd.Flags().GetString("addr")
	}

	eng := newEngine(cfg, nil)
	defer eng.Close()

	go func() {
		if _, err := eng.Load(ctx, ""); err != nil {
			slog.Error("serve: default model unavailable", "model", eng.DefaultIdentifier(), "error", err)
		}
	}()

	return server.New(addr, eng, slog.Default(), cfg.Server.ShutdownTimeout).Run(ctx)
}
