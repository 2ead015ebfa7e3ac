package models

import "time"

// AuditEntry records the outcome of one usage evaluation.
type AuditEntry struct {
	ID                 int64         `json:"id"`
	UserID             string        `json:"user_id"`
	Tier               PlanTier      `json:"tier"`
	PeriodStart        time.Time     `json:"period_start"`
	SnapshotVersion    string        `json:"snapshot_version"`
	TotalTokens        int64         `json:"total_tokens"`
	TotalPercent       float64       `json:"total_percent"`
	TotalStatus        QuotaStatus   `json:"total_status"`
	Prompted           bool          `json:"prompted"`
	Reason             UpgradeReason `json:"reason,omitempty"`
	TriggeringProvider ProviderID    `json:"triggering_provider,omitempty"`
	CreatedAt          time.Time     `json:"created_at"`
}

// AuditConfig controls the evaluation audit log.
type AuditConfig struct {
	Enabled       bool   `yaml:"enabled"`
	DBPath        string `yaml:"db_path"`
	RetentionDays int    `yaml:"retention_days"`
	PromptsOnly   bool   `yaml:"prompts_only"`
}

// AuditQueryOpts specifies filters for querying audit entries.
type AuditQueryOpts struct {
	UserID   string
	Reason   UpgradeReason
	Since    time.Time
	Prompted bool
	Limit    int
}

// AuditStat holds prompt counts for a tier/day combination.
type AuditStat struct {
	Tier        PlanTier
	Day         string
	Evaluations int
	Prompts     int
}
