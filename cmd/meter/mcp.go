package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/workforce-ai/meter/pkg/mcp"
)

func newMCPCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start meter as an MCP server on stdin/stdout",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx, configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			deps := mcp.Deps{
				Evaluator: a.service,
				Summaries: a.store,
				Logger:    a.logger,
			}
			if a.cache != nil {
				deps.Cache = a.cache
			}
			if a.audit != nil {
				deps.Audit = a.audit
			}

			return mcp.New(deps, version).Run(ctx, os.Stdin, os.Stdout)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to meter config file")
	return cmd
}
