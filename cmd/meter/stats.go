package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/workforce-ai/meter/pkg/models"
)

func newStatsCmd() *cobra.Command {
	var (
		configPath string
		userID     string
		since      string
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show stored token usage grouped by user and provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			start := models.MonthlyPeriod(time.Now()).Start
			if since != "" {
				t, err := time.Parse("2006-01-02", since)
				if err != nil {
					return fmt.Errorf("invalid --since date (use YYYY-MM-DD): %w", err)
				}
				start = t
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

			rows, err := st.Summary(ctx, userID, start)
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				fmt.Println("No usage data found.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "USER\tPROVIDER\tREQUESTS\tINPUT\tOUTPUT\tTOTAL\tCOST")
			for _, r := range rows {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\t$%.2f\n",
					r.UserID, r.Provider, r.RequestCount, r.InputTokens, r.OutputTokens, r.TotalTokens, r.TotalCost)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to meter config file")
	cmd.Flags().StringVar(&userID, "user", "", "filter by user ID")
	cmd.Flags().StringVar(&since, "since", "", "start date (YYYY-MM-DD), defaults to start of the billing month")
	return cmd
}
