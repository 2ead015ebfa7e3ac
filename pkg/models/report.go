package models

import "time"

// QuotaStatus classifies usage against a limit.
type QuotaStatus string

const (
	StatusOK        QuotaStatus = "ok"
	StatusNearLimit QuotaStatus = "near_limit"
	StatusAtLimit   QuotaStatus = "at_limit"
)

// QuotaLine is one row of a usage report. Provider is empty on the total row.
type QuotaLine struct {
	Provider  ProviderID  `json:"provider,omitempty"`
	Tokens    int64       `json:"tokens"`
	Cost      float64     `json:"cost"`
	Limit     int64       `json:"limit"`
	Percent   float64     `json:"percent"`
	Status    QuotaStatus `json:"status"`
	Remaining int64       `json:"remaining"`
}

// DisplayPercent returns Percent clamped to [0, 100] for progress bars.
func (l QuotaLine) DisplayPercent() float64 {
	switch {
	case l.Percent < 0:
		return 0
	case l.Percent > 100:
		return 100
	default:
		return l.Percent
	}
}

// UsageReport is the quota evaluation for one user and plan.
type UsageReport struct {
	Tier        PlanTier    `json:"tier"`
	PerProvider []QuotaLine `json:"per_provider"`
	Total       QuotaLine   `json:"total"`
}

// UpgradeReason explains why an upgrade prompt is shown.
type UpgradeReason string

const (
	ReasonNone      UpgradeReason = ""
	ReasonNearLimit UpgradeReason = "near-limit"
	ReasonAtLimit   UpgradeReason = "at-limit"
)

// Recommendation drives upgrade banners. TriggeringProvider is empty when
// the total row triggered the prompt or there is no prompt.
type Recommendation struct {
	ShouldPromptUpgrade bool          `json:"should_prompt_upgrade"`
	Reason              UpgradeReason `json:"reason,omitempty"`
	TriggeringProvider  ProviderID    `json:"triggering_provider,omitempty"`
	SuggestedTier       PlanTier      `json:"suggested_tier,omitempty"`
}

// Evaluation bundles a report with its recommendation and provenance.
type Evaluation struct {
	UserID          string         `json:"user_id"`
	Period          BillingPeriod  `json:"period"`
	Limits          PlanLimits     `json:"limits"`
	Report          UsageReport    `json:"report"`
	Recommendation  Recommendation `json:"recommendation"`
	SnapshotVersion string         `json:"snapshot_version"`
	GeneratedAt     time.Time      `json:"generated_at"`
}
