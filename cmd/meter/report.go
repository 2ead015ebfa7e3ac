package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/workforce-ai/meter/pkg/models"
)

func newReportCmd() *cobra.Command {
	var (
		configPath string
		userID     string
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Show a user's usage for the current billing period against plan limits",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return fmt.Errorf("--user is required")
			}

			ctx := context.Background()
			a, err := openApp(ctx, configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			eval, err := a.service.Evaluate(ctx, userID)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(eval)
			}
			return printEvaluation(os.Stdout, eval)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to meter config file")
	cmd.Flags().StringVar(&userID, "user", "", "user ID to report on")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the evaluation as JSON")
	return cmd
}

func printEvaluation(out io.Writer, eval *models.Evaluation) error {
	fmt.Fprintf(out, "User:   %s\n", eval.UserID)
	fmt.Fprintf(out, "Plan:   %s\n", eval.Report.Tier)
	fmt.Fprintf(out, "Period: %s to %s\n\n",
		eval.Period.Start.Format("2006-01-02"),
		eval.Period.End.AddDate(0, 0, -1).Format("2006-01-02"))

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PROVIDER\tTOKENS\tLIMIT\tUSED\tPROGRESS\tSTATUS\tREMAINING\tCOST")
	row := func(name string, l models.QuotaLine) {
		limit, remaining := "unlimited", "-"
		if l.Limit != models.Unlimited {
			limit = fmt.Sprintf("%d", l.Limit)
			remaining = fmt.Sprintf("%d", l.Remaining)
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%.1f%%\t%s\t%s\t%s\t$%.2f\n",
			name, l.Tokens, limit, l.Percent, bar(l.DisplayPercent()), l.Status, remaining, l.Cost)
	}
	for _, l := range eval.Report.PerProvider {
		row(l.Provider.DisplayName(), l)
	}
	row("TOTAL", eval.Report.Total)
	if err := w.Flush(); err != nil {
		return err
	}

	r := eval.Recommendation
	if !r.ShouldPromptUpgrade {
		fmt.Fprintln(out, "\nNo upgrade needed.")
		return nil
	}
	trigger := "total"
	if r.TriggeringProvider != "" {
		trigger = r.TriggeringProvider.DisplayName()
	}
	suggested := string(r.SuggestedTier)
	if suggested == "" {
		suggested = "contact sales"
	}
	fmt.Fprintf(out, "\nUpgrade recommended: %s (%s). Suggested tier: %s\n", r.Reason, trigger, suggested)
	return nil
}

// bar draws a 20-cell progress bar for a percentage in [0, 100].
func bar(percent float64) string {
	const width = 20
	filled := int(math.Round(percent / 100 * width))
	return strings.Repeat("#", filled) + strings.Repeat(".", width-filled)
}
