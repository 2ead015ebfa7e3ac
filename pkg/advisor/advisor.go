// Package advisor turns a usage report into an upgrade recommendation.
package advisor

import (
	"github.com/workforce-ai/meter/pkg/models"
	"github.com/workforce-ai/meter/pkg/plan"
)

// Recommend scans the total line first, then providers in report order.
// The first at_limit line wins; failing that, the first near_limit line.
func Recommend(report models.UsageReport) models.Recommendation {
	lines := make([]models.QuotaLine, 0, len(report.PerProvider)+1)
	lines = append(lines, report.Total)
	lines = append(lines, report.PerProvider...)

	for _, want := range []models.QuotaStatus{models.StatusAtLimit, models.StatusNearLimit} {
		for _, l := range lines {
			if l.Status != want {
				continue
			}
			return models.Recommendation{
				ShouldPromptUpgrade: true,
				Reason:              reasonFor(want),
				TriggeringProvider:  l.Provider,
				SuggestedTier:       plan.Next(report.Tier),
			}
		}
	}
	return models.Recommendation{}
}

func reasonFor(s models.QuotaStatus) models.UpgradeReason {
	if s == models.StatusAtLimit {
		return models.ReasonAtLimit
	}
	return models.ReasonNearLimit
}
