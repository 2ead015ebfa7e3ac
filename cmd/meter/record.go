package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/workforce-ai/meter/pkg/aggregate"
	"github.com/workforce-ai/meter/pkg/models"
)

func newRecordCmd() *cobra.Command {
	var (
		configPath string
		rec        models.UsageRecord
	)

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record a usage row for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if rec.UserID == "" {
				return fmt.Errorf("--user is required")
			}
			if rec.Provider == "" {
				return fmt.Errorf("--provider is required")
			}
			if rec.TotalTokens == 0 {
				rec.TotalTokens = models.AddTokens(rec.InputTokens, rec.OutputTokens)
			}
			if _, err := aggregate.AggregateStrict([]models.UsageRecord{rec}); err != nil {
				return err
			}

			ctx := context.Background()
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			st, closeStore, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			if err := st.Record(ctx, rec); err != nil {
				return err
			}
			fmt.Printf("Recorded %d %s tokens for %s.\n", rec.TotalTokens, models.NormalizeProvider(rec.Provider), rec.UserID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to meter config file")
	cmd.Flags().StringVar(&rec.UserID, "user", "", "user ID")
	cmd.Flags().StringVar(&rec.Provider, "provider", "", "provider (openai, anthropic, google, perplexity)")
	cmd.Flags().Int64Var(&rec.InputTokens, "input", 0, "input tokens")
	cmd.Flags().Int64Var(&rec.OutputTokens, "output", 0, "output tokens")
	cmd.Flags().Int64Var(&rec.TotalTokens, "total", 0, "total tokens (defaults to input + output)")
	cmd.Flags().Float64Var(&rec.TotalCost, "cost", 0, "cost in dollars")
	return cmd
}
