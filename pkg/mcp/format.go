package mcp

import (
	"fmt"
	"math"
	"strings"

	"github.com/workforce-ai/meter/pkg/models"
	"github.com/workforce-ai/meter/pkg/plan"
)

func formatLimit(limit int64) string {
	if limit == models.Unlimited {
		return "unlimited"
	}
	return fmt.Sprintf("%d", limit)
}

func formatRemaining(remaining int64) string {
	if remaining == models.Unlimited {
		return "-"
	}
	return fmt.Sprintf("%d", remaining)
}

// progressBar renders a line's usage as a ten-cell bar. Overages fill the
// bar; the percentage column still shows the raw value.
func progressBar(l models.QuotaLine) string {
	const width = 10
	filled := int(math.Round(l.DisplayPercent() / 100 * width))
	return "[" + strings.Repeat("#", filled) + strings.Repeat(".", width-filled) + "]"
}

// formatReport formats an evaluation as a text table. Percentages show the
// raw value so overages stay visible.
func formatReport(eval *models.Evaluation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Usage for %s (%s plan, %s to %s)\n\n",
		eval.UserID, eval.Report.Tier,
		eval.Period.Start.Format("2006-01-02"),
		eval.Period.End.AddDate(0, 0, -1).Format("2006-01-02"))
	fmt.Fprintf(&b, "%-12s %12s %12s %8s %-12s %-11s %12s %10s\n",
		"Provider", "Tokens", "Limit", "Used%", "Progress", "Status", "Remaining", "Cost")
	b.WriteString(strings.Repeat("-", 97) + "\n")

	row := func(name string, l models.QuotaLine) {
		fmt.Fprintf(&b, "%-12s %12d %12s %7.1f%% %-12s %-11s %12s %10s\n",
			name, l.Tokens, formatLimit(l.Limit), l.Percent, progressBar(l), l.Status,
			formatRemaining(l.Remaining), fmt.Sprintf("$%.2f", l.Cost))
	}
	for _, l := range eval.Report.PerProvider {
		row(l.Provider.DisplayName(), l)
	}
	b.WriteString(strings.Repeat("-", 97) + "\n")
	row("Total", eval.Report.Total)

	b.WriteString("\n" + formatRecommendation(eval.Recommendation))
	return b.String()
}

// formatRecommendation formats upgrade advice as a sentence.
func formatRecommendation(r models.Recommendation) string {
	if !r.ShouldPromptUpgrade {
		return "No upgrade needed.\n"
	}
	scope := "total usage"
	if r.TriggeringProvider != "" {
		scope = r.TriggeringProvider.DisplayName() + " usage"
	}
	state := "is approaching its limit"
	if r.Reason == models.ReasonAtLimit {
		state = "has reached its limit"
	}
	if r.SuggestedTier == "" {
		return fmt.Sprintf("Upgrade recommended (%s): %s %s. Contact sales for a custom plan.\n", r.Reason, scope, state)
	}
	return fmt.Sprintf("Upgrade recommended (%s): %s %s. Suggested tier: %s.\n", r.Reason, scope, state, r.SuggestedTier)
}

// formatPlans formats the plan table.
func formatPlans(plans []models.PlanLimits) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-12s %14s %14s %10s\n", "Tier", "Per provider", "Total", "Price/mo")
	b.WriteString(strings.Repeat("-", 53) + "\n")
	for _, p := range plans {
		fmt.Fprintf(&b, "%-12s %14s %14s %10s\n",
			p.Tier, formatLimit(p.PerProviderTokenLimit), formatLimit(p.TotalTokenLimit),
			plan.FormatPrice(p.MonthlyPriceMinorUnits))
	}
	return b.String()
}

// formatSummary formats usage summaries as a text table.
func formatSummary(rows []models.UsageSummary) string {
	if len(rows) == 0 {
		return "No usage data found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-24s %-12s %8s %10s %10s %10s %10s\n",
		"User", "Provider", "Requests", "Input", "Output", "Total", "Cost")
	b.WriteString(strings.Repeat("-", 90) + "\n")
	for _, r := range rows {
		user := r.UserID
		if len(user) > 24 {
			user = user[:10] + "..." + user[len(user)-10:]
		}
		fmt.Fprintf(&b, "%-24s %-12s %8d %10d %10d %10d %10s\n",
			user, r.Provider, r.RequestCount, r.InputTokens, r.OutputTokens, r.TotalTokens,
			fmt.Sprintf("$%.2f", r.TotalCost))
	}
	return b.String()
}

// formatCacheStats formats cache stats as text.
func formatCacheStats(stats models.CacheStats) string {
	total := stats.Hits + stats.Misses
	hitRate := float64(0)
	if total > 0 {
		hitRate = float64(stats.Hits) / float64(total) * 100
	}
	return fmt.Sprintf("Cache Statistics\n"+
		"  Entries:  %d\n"+
		"  Hits:     %d\n"+
		"  Misses:   %d\n"+
		"  Hit Rate: %.1f%%\n",
		stats.Entries, stats.Hits, stats.Misses, hitRate)
}

// formatAuditEntries formats evaluation audit entries as a text table.
func formatAuditEntries(entries []models.AuditEntry) string {
	if len(entries) == 0 {
		return "No audit entries found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-20s %-24s %-11s %12s %8s %-11s %-10s %-10s\n",
		"Time", "User", "Tier", "Tokens", "Total%", "Status", "Prompt", "Trigger")
	b.WriteString(strings.Repeat("-", 114) + "\n")
	for _, e := range entries {
		prompt := "-"
		if e.Prompted {
			prompt = string(e.Reason)
		}
		trigger := "total"
		if e.TriggeringProvider != "" {
			trigger = string(e.TriggeringProvider)
		}
		if !e.Prompted {
			trigger = "-"
		}
		fmt.Fprintf(&b, "%-20s %-24s %-11s %12d %7.1f%% %-11s %-10s %-10s\n",
			e.CreatedAt.Format("2006-01-02 15:04:05"), e.UserID, e.Tier,
			e.TotalTokens, e.TotalPercent, e.TotalStatus, prompt, trigger)
	}
	return b.String()
}
