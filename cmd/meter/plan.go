package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/workforce-ai/meter/pkg/models"
	"github.com/workforce-ai/meter/pkg/plan"
)

func newPlanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "List plan tiers and manage user plans",
	}
	cmd.AddCommand(newPlanListCmd(), newPlanSetCmd(), newPlanShowCmd())
	return cmd
}

func newPlanListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List plan tiers with their limits and prices",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TIER\tPER PROVIDER\tTOTAL\tPRICE/MO\tFEATURES")
			for _, p := range plan.All() {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					p.Tier, limitString(p.PerProviderTokenLimit), limitString(p.TotalTokenLimit),
					plan.FormatPrice(p.MonthlyPriceMinorUnits), strings.Join(p.Features, ", "))
			}
			return w.Flush()
		},
	}
}

func newPlanSetCmd() *cobra.Command {
	var configPath, userID, tier string

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Set a user's plan tier",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" || tier == "" {
				return fmt.Errorf("--user and --tier are required")
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

			if err := st.SetPlan(ctx, userID, tier); err != nil {
				return err
			}
			fmt.Printf("Plan for %s set to %s.\n", userID, strings.ToLower(strings.TrimSpace(tier)))
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to meter config file")
	cmd.Flags().StringVar(&userID, "user", "", "user ID")
	cmd.Flags().StringVar(&tier, "tier", "", "plan tier ("+tierList()+")")
	return cmd
}

func newPlanShowCmd() *cobra.Command {
	var configPath, userID string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the plan tier stored for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return fmt.Errorf("--user is required")
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

			tier, err := st.PlanFor(ctx, userID)
			if err != nil {
				return err
			}
			fmt.Println(tier)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to meter config file")
	cmd.Flags().StringVar(&userID, "user", "", "user ID")
	return cmd
}

func limitString(limit int64) string {
	if limit == models.Unlimited {
		return "unlimited"
	}
	return fmt.Sprintf("%d", limit)
}

func tierList() string {
	tiers := plan.Tiers()
	names := make([]string, len(tiers))
	for i, t := range tiers {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}
