package audit

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/workforce-ai/meter/pkg/models"
)

func tempCfg(t *testing.T) models.AuditConfig {
	t.Helper()
	return models.AuditConfig{
		Enabled:       true,
		DBPath:        filepath.Join(t.TempDir(), "audit_test.db"),
		RetentionDays: 90,
	}
}

func mustNew(t *testing.T, cfg models.AuditConfig) *Logger {
	t.Helper()
	l, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func sampleEntry() models.AuditEntry {
	return models.AuditEntry{
		UserID:             "user-1",
		Tier:               models.TierFree,
		PeriodStart:        time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		SnapshotVersion:    "4-12",
		TotalTokens:        850_000,
		TotalPercent:       85,
		TotalStatus:        models.StatusNearLimit,
		Prompted:           true,
		Reason:             models.ReasonNearLimit,
		TriggeringProvider: "",
		CreatedAt:          time.Now(),
	}
}

func TestLogAndQuery(t *testing.T) {
	l := mustNew(t, tempCfg(t))
	ctx := context.Background()

	if err := l.Log(ctx, sampleEntry()); err != nil {
		t.Fatalf("Log: %v", err)
	}

	entries, err := l.Query(ctx, models.AuditQueryOpts{UserID: "user-1"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e.Tier != models.TierFree || e.TotalStatus != models.StatusNearLimit || e.Reason != models.ReasonNearLimit {
		t.Errorf("unexpected entry %+v", e)
	}
	if !e.Prompted || e.TotalTokens != 850_000 || e.SnapshotVersion != "4-12" {
		t.Errorf("unexpected entry %+v", e)
	}
	if !e.PeriodStart.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected period start %v", e.PeriodStart)
	}
}

func TestLogIgnoresDuplicateEvaluation(t *testing.T) {
	l := mustNew(t, tempCfg(t))
	ctx := context.Background()

	_ = l.Log(ctx, sampleEntry())
	_ = l.Log(ctx, sampleEntry())
	e := sampleEntry()
	e.SnapshotVersion = "5-13"
	_ = l.Log(ctx, e)

	entries, err := l.Query(ctx, models.AuditQueryOpts{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
}

func TestQueryFilters(t *testing.T) {
	l := mustNew(t, tempCfg(t))
	ctx := context.Background()

	_ = l.Log(ctx, sampleEntry())

	quiet := sampleEntry()
	quiet.UserID = "user-2"
	quiet.Prompted = false
	quiet.Reason = models.ReasonNone
	quiet.TotalStatus = models.StatusOK
	_ = l.Log(ctx, quiet)

	at := sampleEntry()
	at.UserID = "user-3"
	at.Reason = models.ReasonAtLimit
	at.TriggeringProvider = models.ProviderOpenAI
	_ = l.Log(ctx, at)

	tests := []struct {
		name string
		opts models.AuditQueryOpts
		want int
	}{
		{"all", models.AuditQueryOpts{}, 3},
		{"prompted", models.AuditQueryOpts{Prompted: true}, 2},
		{"reason", models.AuditQueryOpts{Reason: models.ReasonAtLimit}, 1},
		{"user", models.AuditQueryOpts{UserID: "user-2"}, 1},
		{"limit", models.AuditQueryOpts{Limit: 1}, 1},
		{"since future", models.AuditQueryOpts{Since: time.Now().Add(time.Hour)}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := l.Query(ctx, tt.opts)
			if err != nil {
				t.Fatalf("Query: %v", err)
			}
			if len(entries) != tt.want {
				t.Errorf("expected %d entries, got %d", tt.want, len(entries))
			}
		})
	}

	entries, _ := l.Query(ctx, models.AuditQueryOpts{UserID: "user-3"})
	if entries[0].TriggeringProvider != models.ProviderOpenAI {
		t.Errorf("expected openai trigger, got %q", entries[0].TriggeringProvider)
	}
}

func TestPromptsOnly(t *testing.T) {
	cfg := tempCfg(t)
	cfg.PromptsOnly = true
	l := mustNew(t, cfg)
	ctx := context.Background()

	quiet := sampleEntry()
	quiet.Prompted = false
	_ = l.Log(ctx, quiet)

	entries, err := l.Query(ctx, models.AuditQueryOpts{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected 0 entries when only prompts are kept, got %d", len(entries))
	}
}

func TestCleanup(t *testing.T) {
	cfg := tempCfg(t)
	cfg.RetentionDays = 0 // everything is old
	l := mustNew(t, cfg)
	ctx := context.Background()

	entry := sampleEntry()
	entry.CreatedAt = time.Now().AddDate(0, 0, -1)
	_ = l.Log(ctx, entry)

	deleted, err := l.Cleanup(ctx)
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if deleted != 1 {
		t.Errorf("expected 1 deleted, got %d", deleted)
	}
}

func TestStats(t *testing.T) {
	l := mustNew(t, tempCfg(t))
	ctx := context.Background()

	e1 := sampleEntry()
	e1.CreatedAt = time.Date(2026, 3, 14, 23, 59, 0, 0, time.UTC)
	_ = l.Log(ctx, e1)
	e2 := sampleEntry()
	e2.SnapshotVersion = "5-13"
	e2.Prompted = false
	e2.CreatedAt = time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)
	_ = l.Log(ctx, e2)
	e3 := sampleEntry()
	e3.SnapshotVersion = "6-14"
	e3.CreatedAt = time.Date(2026, 3, 15, 0, 30, 0, 0, time.UTC)
	_ = l.Log(ctx, e3)

	stats, err := l.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if len(stats) != 2 {
		t.Fatalf("expected 2 stat rows (one per day), got %d: %+v", len(stats), stats)
	}
	if stats[0].Day != "2026-03-15" || stats[0].Evaluations != 1 || stats[0].Prompts != 1 {
		t.Errorf("unexpected newest day %+v", stats[0])
	}
	if stats[1].Day != "2026-03-14" || stats[1].Tier != models.TierFree ||
		stats[1].Evaluations != 2 || stats[1].Prompts != 1 {
		t.Errorf("unexpected older day %+v", stats[1])
	}
}

func TestNilLoggerSafe(t *testing.T) {
	var l *Logger
	if err := l.Log(context.Background(), sampleEntry()); err != nil {
		t.Errorf("nil logger should be safe: %v", err)
	}
}

func TestNewInvalidPath(t *testing.T) {
	cfg := models.AuditConfig{
		Enabled: true,
		DBPath:  filepath.Join(os.TempDir(), "nonexistent", "deep", "path", "audit.db"),
	}
	_, err := New(cfg)
	if err == nil {
		t.Error("expected error for invalid path")
	}
}
