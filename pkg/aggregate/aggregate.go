// Package aggregate reduces raw usage records to one summary per provider.
//
// Two policies are offered. Aggregate clamps negative or non-finite token and
// cost values to zero and skips rows without a provider; it never fails.
// AggregateStrict rejects the first such row with a MalformedRecordError.
package aggregate

import (
	"fmt"
	"math"

	"github.com/workforce-ai/meter/pkg/models"
)

// MalformedRecordError describes the record that failed strict validation.
type MalformedRecordError struct {
	Index    int
	Provider string
	Field    string
	Value    float64
}

func (e *MalformedRecordError) Error() string {
	if e.Field == "provider" {
		return fmt.Sprintf("malformed usage record %d: missing provider", e.Index)
	}
	return fmt.Sprintf("malformed usage record %d (%s): %s = %v", e.Index, e.Provider, e.Field, e.Value)
}

// Aggregate groups records by normalized provider and sums total tokens and cost.
// Token sums saturate at math.MaxInt64 rather than wrapping.
func Aggregate(records []models.UsageRecord) map[models.ProviderID]models.ProviderUsageSummary {
	out := make(map[models.ProviderID]models.ProviderUsageSummary)
	for _, r := range records {
		p := models.NormalizeProvider(r.Provider)
		if p == "" {
			continue
		}
		add(out, p, clampTokens(r.TotalTokens), clampCost(r.TotalCost))
	}
	return out
}

// AggregateStrict is Aggregate without clamping.
func AggregateStrict(records []models.UsageRecord) (map[models.ProviderID]models.ProviderUsageSummary, error) {
	out := make(map[models.ProviderID]models.ProviderUsageSummary)
	for i, r := range records {
		if err := validate(i, r); err != nil {
			return nil, err
		}
		add(out, models.NormalizeProvider(r.Provider), r.TotalTokens, r.TotalCost)
	}
	return out, nil
}

func add(out map[models.ProviderID]models.ProviderUsageSummary, p models.ProviderID, tokens int64, cost float64) {
	s := out[p]
	s.Provider = p
	s.Tokens = models.AddTokens(s.Tokens, tokens)
	s.Cost += cost
	s.Records++
	out[p] = s
}

func validate(i int, r models.UsageRecord) error {
	if models.NormalizeProvider(r.Provider) == "" {
		return &MalformedRecordError{Index: i, Field: "provider"}
	}
	fields := []struct {
		name string
		v    float64
	}{
		{"input_tokens", float64(r.InputTokens)},
		{"output_tokens", float64(r.OutputTokens)},
		{"total_tokens", float64(r.TotalTokens)},
		{"total_cost", r.TotalCost},
	}
	for _, f := range fields {
		if f.v < 0 || math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return &MalformedRecordError{Index: i, Provider: r.Provider, Field: f.name, Value: f.v}
		}
	}
	return nil
}

func clampTokens(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}

func clampCost(v float64) float64 {
	if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
