package models

import (
	"math"
	"strings"
	"time"
)

// ProviderID identifies an upstream model provider. Values are stored
// lower-cased; use NormalizeProvider before comparing.
type ProviderID string

const (
	ProviderOpenAI     ProviderID = "openai"
	ProviderAnthropic  ProviderID = "anthropic"
	ProviderGoogle     ProviderID = "google"
	ProviderPerplexity ProviderID = "perplexity"
)

// CanonicalProviders is the default provider list shown on every report.
var CanonicalProviders = []ProviderID{
	ProviderOpenAI,
	ProviderAnthropic,
	ProviderGoogle,
	ProviderPerplexity,
}

// NormalizeProvider returns the case-insensitive form of a provider name.
func NormalizeProvider(name string) ProviderID {
	return ProviderID(strings.ToLower(strings.TrimSpace(name)))
}

var providerNames = map[ProviderID]string{
	ProviderOpenAI:     "OpenAI",
	ProviderAnthropic:  "Anthropic",
	ProviderGoogle:     "Google",
	ProviderPerplexity: "Perplexity",
}

// DisplayName returns the human-facing provider name.
func (p ProviderID) DisplayName() string {
	if name, ok := providerNames[p]; ok {
		return name
	}
	return string(p)
}

// UsageRecord is one row of per-provider token usage for a user. A row may
// cover a single request or be pre-aggregated over a billing period.
type UsageRecord struct {
	ID           int64     `json:"id,omitempty"`
	UserID       string    `json:"user_id,omitempty"`
	Provider     string    `json:"provider"`
	InputTokens  int64     `json:"input_tokens"`
	OutputTokens int64     `json:"output_tokens"`
	TotalTokens  int64     `json:"total_tokens"`
	TotalCost    float64   `json:"total_cost"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
}

// AddTokens adds two token counts, saturating at math.MaxInt64 instead of
// wrapping. Negative operands are treated as zero.
func AddTokens(a, b int64) int64 {
	a, b = max(a, 0), max(b, 0)
	if a > math.MaxInt64-b {
		return math.MaxInt64
	}
	return a + b
}

// ProviderUsageSummary is the sum of all usage records for one provider.
type ProviderUsageSummary struct {
	Provider ProviderID `json:"provider"`
	Tokens   int64      `json:"tokens"`
	Cost     float64    `json:"cost"`
	Records  int        `json:"records"`
}

// UsageSummary aggregates stored usage per user and provider.
type UsageSummary struct {
	UserID       string  `json:"user_id"`
	Provider     string  `json:"provider"`
	RequestCount int     `json:"request_count"`
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	TotalTokens  int64   `json:"total_tokens"`
	TotalCost    float64 `json:"total_cost"`
}

// BillingPeriod is a half-open [Start, End) accounting window.
type BillingPeriod struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// MonthlyPeriod returns the UTC calendar month containing t.
func MonthlyPeriod(t time.Time) BillingPeriod {
	t = t.UTC()
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return BillingPeriod{Start: start, End: start.AddDate(0, 1, 0)}
}
