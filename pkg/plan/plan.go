// Package plan maps subscription tiers to their quota limits.
package plan

import (
	"fmt"
	"strings"

	"github.com/workforce-ai/meter/pkg/models"
)

// UnknownTierError is returned for a tier outside the known set. It points
// at bad account data upstream and must not be replaced by a default tier.
type UnknownTierError struct {
	Tier string
}

func (e *UnknownTierError) Error() string {
	return fmt.Sprintf("unknown plan tier %q", e.Tier)
}

var table = map[models.PlanTier]models.PlanLimits{
	models.TierFree: {
		Tier:                   models.TierFree,
		PerProviderTokenLimit:  250_000,
		TotalTokenLimit:        1_000_000,
		MonthlyPriceMinorUnits: 0,
		Features: []string{
			"250K tokens per provider",
			"1M tokens per month",
			"Community support",
		},
	},
	models.TierPro: {
		Tier:                   models.TierPro,
		PerProviderTokenLimit:  2_500_000,
		TotalTokenLimit:        10_000_000,
		MonthlyPriceMinorUnits: 2000,
		Features: []string{
			"2.5M tokens per provider",
			"10M tokens per month",
			"Priority support",
			"Advanced analytics",
		},
	},
	models.TierEnterprise: {
		Tier:                   models.TierEnterprise,
		PerProviderTokenLimit:  models.Unlimited,
		TotalTokenLimit:        models.Unlimited,
		MonthlyPriceMinorUnits: models.Unlimited,
		Features: []string{
			"Custom token limits",
			"Dedicated support",
			"SSO and audit logs",
			"Custom contracts",
		},
	},
}

var order = []models.PlanTier{models.TierFree, models.TierPro, models.TierEnterprise}

// LimitsFor returns the limits of a tier.
func LimitsFor(tier models.PlanTier) (models.PlanLimits, error) {
	l, ok := table[tier]
	if !ok {
		return models.PlanLimits{}, &UnknownTierError{Tier: string(tier)}
	}
	// Features is shared with the table; hand out a copy.
	l.Features = append([]string(nil), l.Features...)
	return l, nil
}

// ParseTier normalizes case and whitespace and validates the tier.
func ParseTier(s string) (models.PlanTier, error) {
	tier := models.PlanTier(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := table[tier]; !ok {
		return "", &UnknownTierError{Tier: s}
	}
	return tier, nil
}

// Tiers lists all tiers in upgrade order.
func Tiers() []models.PlanTier {
	return append([]models.PlanTier(nil), order...)
}

// All returns the limits of every tier in upgrade order.
func All() []models.PlanLimits {
	out := make([]models.PlanLimits, 0, len(order))
	for _, t := range order {
		l, _ := LimitsFor(t)
		out = append(out, l)
	}
	return out
}

// Next returns the tier to upgrade to, or "" for the top tier and unknown tiers.
func Next(tier models.PlanTier) models.PlanTier {
	for i, t := range order {
		if t == tier && i+1 < len(order) {
			return order[i+1]
		}
	}
	return ""
}

// FormatPrice renders a monthly price in minor units (cents) as dollars.
func FormatPrice(minor int64) string {
	switch {
	case minor == models.Unlimited:
		return "Custom"
	case minor == 0:
		return "$0"
	case minor%100 == 0:
		return fmt.Sprintf("$%d", minor/100)
	default:
		return fmt.Sprintf("$%d.%02d", minor/100, minor%100)
	}
}
