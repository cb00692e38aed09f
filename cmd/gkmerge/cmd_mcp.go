package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/nvandessel/gkmerge/internal/config"
	"github.com/nvandessel/gkmerge/internal/mcp"
)

func newMCPServerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp-server",
		Short: "Serve gkmerge over the Model Context Protocol (stdio)",
		Long: `Start an MCP server on stdin/stdout. Clients can build networks, run
cascades and mergers step by step, and run experiments whose results are
stored like those of the window and mergers commands.

Logs go to stderr; stdout carries the protocol.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			noAudit, _ := cmd.Flags().GetBool("no-audit")

			settings, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			logger := newLogger(cmd, settings)
			tracer, err := openTracer(settings)
			if err != nil {
				return err
			}
			defer tracer.Close()
			rs, err := openStore(settings)
			if err != nil {
				return err
			}

			cfg := &mcp.Config{
				Name:     "gkmerge",
				Version:  version,
				Store:    rs,
				Settings: settings,
				Logger:   logger,
				Tracer:   tracer,
			}
			if !noAudit {
				if cfg.AuditDir, err = config.Dir(); err != nil {
					rs.Close()
					return err
				}
			}

			server, err := mcp.NewServer(cfg)
			if err != nil {
				rs.Close()
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			// Run closes the server and its store.
			return server.Run(ctx)
		},
	}
	cmd.Flags().Bool("no-audit", false, "Do not write ~/.gkmerge/audit.jsonl")
	return cmd
}
