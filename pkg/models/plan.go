package models

// PlanTier is a subscription tier.
type PlanTier string

const (
	TierFree       PlanTier = "free"
	TierPro        PlanTier = "pro"
	TierEnterprise PlanTier = "enterprise"
)

// Unlimited marks a limit or price that is not enforced numerically.
const Unlimited int64 = -1

// PlanLimits holds the quota ceilings and list price of a tier.
type PlanLimits struct {
	Tier                   PlanTier `json:"tier" yaml:"tier"`
	PerProviderTokenLimit  int64    `json:"per_provider_token_limit" yaml:"per_provider_token_limit"`
	TotalTokenLimit        int64    `json:"total_token_limit" yaml:"total_token_limit"`
	MonthlyPriceMinorUnits int64    `json:"monthly_price_minor_units" yaml:"monthly_price_minor_units"`
	Features               []string `json:"features" yaml:"features"`
}

// Unbounded reports whether the plan has no enforced token ceiling.
func (l PlanLimits) Unbounded() bool {
	return l.PerProviderTokenLimit == Unlimited || l.TotalTokenLimit == Unlimited
}
