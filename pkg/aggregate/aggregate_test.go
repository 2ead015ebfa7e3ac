package aggregate

import (
	"errors"
	"math"
	"testing"

	"github.com/workforce-ai/meter/pkg/models"
)

func TestAggregateGroupsCaseInsensitive(t *testing.T) {
	got := Aggregate([]models.UsageRecord{
		{Provider: "OpenAI", TotalTokens: 100, TotalCost: 0.5},
		{Provider: "openai", TotalTokens: 50, TotalCost: 0.25},
		{Provider: " ANTHROPIC ", TotalTokens: 10, TotalCost: 0.1},
	})

	if len(got) != 2 {
		t.Fatalf("expected 2 providers, got %d", len(got))
	}
	oa := got[models.ProviderOpenAI]
	if oa.Tokens != 150 {
		t.Errorf("openai tokens = %d, want 150", oa.Tokens)
	}
	if oa.Cost != 0.75 {
		t.Errorf("openai cost = %v, want 0.75", oa.Cost)
	}
	if oa.Records != 2 {
		t.Errorf("openai records = %d, want 2", oa.Records)
	}
	if got[models.ProviderAnthropic].Tokens != 10 {
		t.Errorf("anthropic tokens = %d, want 10", got[models.ProviderAnthropic].Tokens)
	}
}

func TestAggregateSumsTotalTokensOnly(t *testing.T) {
	// total_tokens is authoritative even when it disagrees with input+output.
	got := Aggregate([]models.UsageRecord{
		{Provider: "google", InputTokens: 10, OutputTokens: 10, TotalTokens: 5},
	})
	if got[models.ProviderGoogle].Tokens != 5 {
		t.Errorf("tokens = %d, want 5", got[models.ProviderGoogle].Tokens)
	}
}

func TestAggregateOnlyReportsPresentProviders(t *testing.T) {
	got := Aggregate([]models.UsageRecord{{Provider: "perplexity", TotalTokens: 1}})
	if _, ok := got[models.ProviderOpenAI]; ok {
		t.Error("openai should not be reported without records")
	}
	if len(Aggregate(nil)) != 0 {
		t.Error("expected empty map for no records")
	}
}

func TestAggregateZeroRecords(t *testing.T) {
	got := Aggregate([]models.UsageRecord{{Provider: "openai"}})
	s, ok := got[models.ProviderOpenAI]
	if !ok {
		t.Fatal("expected openai summary for a zero-valued record")
	}
	if s.Tokens != 0 || s.Cost != 0 {
		t.Errorf("expected zero summary, got %+v", s)
	}
}

func TestAggregateClampsNegative(t *testing.T) {
	got := Aggregate([]models.UsageRecord{
		{Provider: "openai", TotalTokens: 100, TotalCost: 1},
		{Provider: "openai", TotalTokens: -500, TotalCost: -3},
		{Provider: "openai", TotalTokens: 20, TotalCost: math.NaN()},
	})
	s := got[models.ProviderOpenAI]
	if s.Tokens != 120 {
		t.Errorf("tokens = %d, want 120", s.Tokens)
	}
	if s.Cost != 1 {
		t.Errorf("cost = %v, want 1", s.Cost)
	}
	if s.Tokens < 0 || s.Cost < 0 {
		t.Error("summary must never be negative")
	}
}

func TestAggregateSkipsBlankProvider(t *testing.T) {
	got := Aggregate([]models.UsageRecord{{Provider: "  ", TotalTokens: 10}})
	if len(got) != 0 {
		t.Errorf("expected blank provider to be skipped, got %v", got)
	}
}

func TestAggregateStrictAccepts(t *testing.T) {
	got, err := AggregateStrict([]models.UsageRecord{
		{Provider: "openai", InputTokens: 60, OutputTokens: 40, TotalTokens: 100, TotalCost: 0.2},
		{Provider: "OPENAI", TotalTokens: 0},
	})
	if err != nil {
		t.Fatal(err)
	}
	if got[models.ProviderOpenAI].Tokens != 100 {
		t.Errorf("tokens = %d, want 100", got[models.ProviderOpenAI].Tokens)
	}
}

func TestAggregateStrictRejects(t *testing.T) {
	tests := []struct {
		name  string
		rec   models.UsageRecord
		field string
	}{
		{"negative total", models.UsageRecord{Provider: "openai", TotalTokens: -1}, "total_tokens"},
		{"negative input", models.UsageRecord{Provider: "openai", InputTokens: -1}, "input_tokens"},
		{"negative output", models.UsageRecord{Provider: "openai", OutputTokens: -1}, "output_tokens"},
		{"negative cost", models.UsageRecord{Provider: "openai", TotalCost: -0.01}, "total_cost"},
		{"nan cost", models.UsageRecord{Provider: "openai", TotalCost: math.NaN()}, "total_cost"},
		{"blank provider", models.UsageRecord{TotalTokens: 1}, "provider"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs := []models.UsageRecord{{Provider: "google", TotalTokens: 1}, tt.rec}
			_, err := AggregateStrict(recs)
			var mre *MalformedRecordError
			if !errors.As(err, &mre) {
				t.Fatalf("expected MalformedRecordError, got %v", err)
			}
			if mre.Index != 1 {
				t.Errorf("index = %d, want 1", mre.Index)
			}
			if mre.Field != tt.field {
				t.Errorf("field = %s, want %s", mre.Field, tt.field)
			}
		})
	}
}

func TestAggregateSaturatesOnOverflow(t *testing.T) {
	huge := []models.UsageRecord{
		{Provider: "openai", TotalTokens: 1 << 62},
		{Provider: "openai", TotalTokens: 1 << 62},
	}

	got := Aggregate(huge)
	if got[models.ProviderOpenAI].Tokens != math.MaxInt64 {
		t.Errorf("clamped sum = %d, want MaxInt64", got[models.ProviderOpenAI].Tokens)
	}

	strict, err := AggregateStrict(huge)
	if err != nil {
		t.Fatal(err)
	}
	if strict[models.ProviderOpenAI].Tokens != math.MaxInt64 {
		t.Errorf("strict sum = %d, want MaxInt64", strict[models.ProviderOpenAI].Tokens)
	}
}
