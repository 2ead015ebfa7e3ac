// Package quota compares aggregated provider usage against plan limits.
package quota

import (
	"github.com/workforce-ai/meter/pkg/models"
)

// Status thresholds, in percent of the limit.
const (
	NearLimitPercent = 80.0
	AtLimitPercent   = 100.0
)

// Evaluate builds a usage report with one line per canonical provider and a
// total line. Providers missing from summaries report zero usage; providers
// outside canonical are ignored. Unbounded plans report every line as ok at 0%.
func Evaluate(
	summaries map[models.ProviderID]models.ProviderUsageSummary,
	limits models.PlanLimits,
	canonical []models.ProviderID,
) models.UsageReport {
	providers := dedupe(canonical)
	report := models.UsageReport{
		Tier:        limits.Tier,
		PerProvider: make([]models.QuotaLine, 0, len(providers)),
	}

	var totalTokens int64
	var totalCost float64
	for _, p := range providers {
		s := summaries[p]
		tokens := max(s.Tokens, 0)
		cost := max(s.Cost, 0)
		totalTokens = models.AddTokens(totalTokens, tokens)
		totalCost += cost
		report.PerProvider = append(report.PerProvider, line(p, tokens, cost, limits.PerProviderTokenLimit, limits.Unbounded()))
	}
	report.Total = line("", totalTokens, totalCost, limits.TotalTokenLimit, limits.Unbounded())
	return report
}

func line(p models.ProviderID, tokens int64, cost float64, limit int64, unbounded bool) models.QuotaLine {
	if unbounded {
		return models.QuotaLine{
			Provider:  p,
			Tokens:    tokens,
			Cost:      cost,
			Limit:     models.Unlimited,
			Percent:   0,
			Status:    models.StatusOK,
			Remaining: models.Unlimited,
		}
	}
	pct := Percent(tokens, limit)
	return models.QuotaLine{
		Provider:  p,
		Tokens:    tokens,
		Cost:      cost,
		Limit:     limit,
		Percent:   pct,
		Status:    Classify(pct),
		Remaining: Remaining(tokens, limit),
	}
}

// Percent returns tokens as an unclamped percentage of limit. A non-positive
// limit yields 0 for no usage and 100 for any usage.
func Percent(tokens, limit int64) float64 {
	if tokens < 0 {
		tokens = 0
	}
	if limit <= 0 {
		if tokens == 0 {
			return 0
		}
		return AtLimitPercent
	}
	return float64(tokens) * 100 / float64(limit)
}

// Classify maps a percentage to a quota status.
func Classify(percent float64) models.QuotaStatus {
	switch {
	case percent >= AtLimitPercent:
		return models.StatusAtLimit
	case percent >= NearLimitPercent:
		return models.StatusNearLimit
	default:
		return models.StatusOK
	}
}

// Remaining returns the tokens left before the limit, never negative.
func Remaining(tokens, limit int64) int64 {
	r := limit - max(tokens, 0)
	if r < 0 {
		return 0
	}
	return r
}

func dedupe(providers []models.ProviderID) []models.ProviderID {
	seen := make(map[models.ProviderID]bool, len(providers))
	out := make([]models.ProviderID, 0, len(providers))
	for _, p := range providers {
		n := models.NormalizeProvider(string(p))
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}
