package plan

import (
	"errors"
	"testing"

	"github.com/workforce-ai/meter/pkg/models"
)

func TestLimitsFor(t *testing.T) {
	tests := []struct {
		tier        models.PlanTier
		perProvider int64
		total       int64
		price       int64
	}{
		{models.TierFree, 250_000, 1_000_000, 0},
		{models.TierPro, 2_500_000, 10_000_000, 2000},
		{models.TierEnterprise, models.Unlimited, models.Unlimited, models.Unlimited},
	}
	for _, tt := range tests {
		l, err := LimitsFor(tt.tier)
		if err != nil {
			t.Fatalf("%s: %v", tt.tier, err)
		}
		if l.Tier != tt.tier {
			t.Errorf("%s: tier = %s", tt.tier, l.Tier)
		}
		if l.PerProviderTokenLimit != tt.perProvider {
			t.Errorf("%s: per provider = %d, want %d", tt.tier, l.PerProviderTokenLimit, tt.perProvider)
		}
		if l.TotalTokenLimit != tt.total {
			t.Errorf("%s: total = %d, want %d", tt.tier, l.TotalTokenLimit, tt.total)
		}
		if l.MonthlyPriceMinorUnits != tt.price {
			t.Errorf("%s: price = %d, want %d", tt.tier, l.MonthlyPriceMinorUnits, tt.price)
		}
		if len(l.Features) == 0 {
			t.Errorf("%s: expected features", tt.tier)
		}
	}
}

func TestEnterpriseUnbounded(t *testing.T) {
	l, _ := LimitsFor(models.TierEnterprise)
	if !l.Unbounded() {
		t.Error("expected enterprise to be unbounded")
	}
	free, _ := LimitsFor(models.TierFree)
	if free.Unbounded() {
		t.Error("free must be bounded")
	}
}

func TestUnknownTier(t *testing.T) {
	_, err := LimitsFor("ultra")
	var ute *UnknownTierError
	if !errors.As(err, &ute) {
		t.Fatalf("expected UnknownTierError, got %v", err)
	}
	if ute.Tier != "ultra" {
		t.Errorf("tier = %q, want ultra", ute.Tier)
	}

	if _, err := LimitsFor(""); !errors.As(err, &ute) {
		t.Errorf("expected UnknownTierError for empty tier, got %v", err)
	}
}

func TestParseTier(t *testing.T) {
	tier, err := ParseTier("  PRO ")
	if err != nil {
		t.Fatal(err)
	}
	if tier != models.TierPro {
		t.Errorf("got %s, want pro", tier)
	}

	_, err = ParseTier("ultra")
	var ute *UnknownTierError
	if !errors.As(err, &ute) {
		t.Fatalf("expected UnknownTierError, got %v", err)
	}
}

func TestFeaturesAreCopied(t *testing.T) {
	l, _ := LimitsFor(models.TierFree)
	l.Features[0] = "mutated"
	again, _ := LimitsFor(models.TierFree)
	if again.Features[0] == "mutated" {
		t.Error("LimitsFor leaked the shared feature slice")
	}
}

func TestNext(t *testing.T) {
	if got := Next(models.TierFree); got != models.TierPro {
		t.Errorf("Next(free) = %s", got)
	}
	if got := Next(models.TierPro); got != models.TierEnterprise {
		t.Errorf("Next(pro) = %s", got)
	}
	if got := Next(models.TierEnterprise); got != "" {
		t.Errorf("Next(enterprise) = %s", got)
	}
}

func TestAllOrdered(t *testing.T) {
	all := All()
	if len(all) != 3 {
		t.Fatalf("got %d plans", len(all))
	}
	for i, want := range Tiers() {
		if all[i].Tier != want {
			t.Errorf("plan %d = %s, want %s", i, all[i].Tier, want)
		}
	}
}

func TestFormatPrice(t *testing.T) {
	tests := map[int64]string{
		0:                "$0",
		2000:             "$20",
		1999:             "$19.99",
		models.Unlimited: "Custom",
	}
	for in, want := range tests {
		if got := FormatPrice(in); got != want {
			t.Errorf("FormatPrice(%d) = %q, want %q", in, got, want)
		}
	}
}
