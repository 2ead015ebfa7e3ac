// Package meter evaluates a user's usage for the current billing period:
// snapshot, aggregate, compare against plan limits, recommend an upgrade.
package meter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/workforce-ai/meter/pkg/advisor"
	"github.com/workforce-ai/meter/pkg/aggregate"
	"github.com/workforce-ai/meter/pkg/metrics"
	"github.com/workforce-ai/meter/pkg/models"
	"github.com/workforce-ai/meter/pkg/plan"
	"github.com/workforce-ai/meter/pkg/quota"
	"github.com/workforce-ai/meter/pkg/tracker"
)

// ErrNoPlan is returned when the plan source has no plan for the user.
// It is the same value as tracker.ErrNoPlan.
var ErrNoPlan = tracker.ErrNoPlan

// ErrMissingUser is returned when Evaluate is called without a user ID.
var ErrMissingUser = errors.New("missing user id")

// Source serves consistent usage snapshots.
type Source interface {
	UsageSnapshot(ctx context.Context, userID string, period models.BillingPeriod) (tracker.Snapshot, error)
}

// PlanSource resolves a user's stored plan tier.
type PlanSource interface {
	PlanFor(ctx context.Context, userID string) (string, error)
}

// ReportCache stores encoded evaluations by key.
type ReportCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
}

// AuditRecorder receives one entry per freshly computed evaluation.
type AuditRecorder interface {
	Log(ctx context.Context, entry models.AuditEntry) error
}

// Options configures a Service. Zero values are usable.
type Options struct {
	// Providers is the canonical provider list; defaults to models.CanonicalProviders.
	Providers []models.ProviderID
	// Strict rejects malformed records instead of clamping them.
	Strict bool
	Cache  ReportCache
	Audit  AuditRecorder
	Logger *zap.Logger
	Now    func() time.Time
}

// Service computes evaluations. It is safe for concurrent use.
type Service struct {
	source    Source
	plans     PlanSource
	providers []models.ProviderID
	strict    bool
	cache     ReportCache
	audit     AuditRecorder
	logger    *zap.Logger
	now       func() time.Time
	group     singleflight.Group
}

// New creates a Service.
func New(source Source, plans PlanSource, opts Options) *Service {
	s := &Service{
		source:    source,
		plans:     plans,
		providers: opts.Providers,
		strict:    opts.Strict,
		cache:     opts.Cache,
		audit:     opts.Audit,
		logger:    opts.Logger,
		now:       opts.Now,
	}
	if len(s.providers) == 0 {
		s.providers = models.CanonicalProviders
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// CacheKey identifies one evaluation result. Any change in tier, billing
// period or snapshot version yields a new key.
func CacheKey(userID string, tier models.PlanTier, periodStart time.Time, version string) string {
	return fmt.Sprintf("report:%s:%s:%s:%s", userID, tier, periodStart.UTC().Format(time.RFC3339), version)
}

// Compute runs aggregation, quota evaluation and upgrade advice over an
// in-memory record set.
func Compute(records []models.UsageRecord, limits models.PlanLimits, providers []models.ProviderID, strict bool) (models.UsageReport, models.Recommendation, error) {
	var summaries map[models.ProviderID]models.ProviderUsageSummary
	if strict {
		var err error
		summaries, err = aggregate.AggregateStrict(records)
		if err != nil {
			return models.UsageReport{}, models.Recommendation{}, err
		}
	} else {
		summaries = aggregate.Aggregate(records)
	}
	report := quota.Evaluate(summaries, limits, providers)
	return report, advisor.Recommend(report), nil
}

// Evaluate returns the usage evaluation for the user's current billing
// period.
func (s *Service) Evaluate(ctx context.Context, userID string) (*models.Evaluation, error) {
	start := time.Now()
	defer func() { metrics.EvaluationDuration.Observe(time.Since(start).Seconds()) }()

	if userID == "" {
		return nil, s.fail("missing_user", ErrMissingUser)
	}

	now := s.now().UTC()
	period := models.MonthlyPeriod(now)
	log := s.logger.With(zap.String("user_id", userID))

	raw, err := s.plans.PlanFor(ctx, userID)
	if errors.Is(err, ErrNoPlan) {
		return nil, s.fail("no_plan", fmt.Errorf("evaluate %s: %w", userID, err))
	}
	if err != nil {
		return nil, s.fail("plan_source", fmt.Errorf("resolve plan: %w", err))
	}

	tier, err := plan.ParseTier(raw)
	if err != nil {
		log.Warn("stored plan tier is not recognised", zap.String("tier", raw))
		return nil, s.fail("unknown_tier", err)
	}
	limits, err := plan.LimitsFor(tier)
	if err != nil {
		return nil, s.fail("unknown_tier", err)
	}

	snap, err := s.source.UsageSnapshot(ctx, userID, period)
	if err != nil {
		return nil, s.fail("usage_source", fmt.Errorf("read usage snapshot: %w", err))
	}

	key := CacheKey(userID, tier, period.Start, snap.Version)
	v, err, shared := s.group.Do(key, func() (any, error) {
		if data, ok := s.cacheGet(ctx, log, key); ok {
			return data, nil
		}

		report, rec, err := Compute(snap.Records, limits, s.providers, s.strict)
		if err != nil {
			return nil, err
		}
		eval := models.Evaluation{
			UserID:          userID,
			Period:          period,
			Limits:          limits,
			Report:          report,
			Recommendation:  rec,
			SnapshotVersion: snap.Version,
			GeneratedAt:     now,
		}
		data, err := json.Marshal(eval)
		if err != nil {
			return nil, fmt.Errorf("encode evaluation: %w", err)
		}

		s.cachePut(ctx, log, key, data)
		s.record(ctx, log, eval)
		return data, nil
	})
	if err != nil {
		var mre *aggregate.MalformedRecordError
		if errors.As(err, &mre) {
			return nil, s.fail("malformed_record", err)
		}
		return nil, s.fail("internal", err)
	}

	var eval models.Evaluation
	if err := json.Unmarshal(v.([]byte), &eval); err != nil {
		return nil, s.fail("internal", fmt.Errorf("decode evaluation: %w", err))
	}

	metrics.EvaluationsTotal.WithLabelValues(string(tier)).Inc()
	if eval.Recommendation.ShouldPromptUpgrade {
		metrics.UpgradePromptsTotal.WithLabelValues(string(eval.Recommendation.Reason)).Inc()
	}
	log.Debug("usage evaluated",
		zap.String("tier", string(tier)),
		zap.String("snapshot_version", snap.Version),
		zap.Float64("total_percent", eval.Report.Total.Percent),
		zap.Bool("prompt", eval.Recommendation.ShouldPromptUpgrade),
		zap.Bool("shared", shared),
	)
	return &eval, nil
}

func (s *Service) fail(kind string, err error) error {
	metrics.EvaluationErrorsTotal.WithLabelValues(kind).Inc()
	return err
}

func (s *Service) cacheGet(ctx context.Context, log *zap.Logger, key string) ([]byte, bool) {
	if s.cache == nil {
		return nil, false
	}
	data, ok, err := s.cache.Get(ctx, key)
	switch {
	case err != nil:
		metrics.ReportCacheTotal.WithLabelValues("error").Inc()
		log.Warn("report cache get failed", zap.Error(err))
		return nil, false
	case ok:
		metrics.ReportCacheTotal.WithLabelValues("hit").Inc()
		return data, true
	default:
		metrics.ReportCacheTotal.WithLabelValues("miss").Inc()
		return nil, false
	}
}

func (s *Service) cachePut(ctx context.Context, log *zap.Logger, key string, data []byte) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Put(ctx, key, data); err != nil {
		log.Warn("report cache put failed", zap.Error(err))
	}
}

func (s *Service) record(ctx context.Context, log *zap.Logger, eval models.Evaluation) {
	if s.audit == nil {
		return
	}
	entry := models.AuditEntry{
		UserID:             eval.UserID,
		Tier:               eval.Report.Tier,
		PeriodStart:        eval.Period.Start,
		SnapshotVersion:    eval.SnapshotVersion,
		TotalTokens:        eval.Report.Total.Tokens,
		TotalPercent:       eval.Report.Total.Percent,
		TotalStatus:        eval.Report.Total.Status,
		Prompted:           eval.Recommendation.ShouldPromptUpgrade,
		Reason:             eval.Recommendation.Reason,
		TriggeringProvider: eval.Recommendation.TriggeringProvider,
		CreatedAt:          eval.GeneratedAt,
	}
	if err := s.audit.Log(ctx, entry); err != nil {
		log.Warn("audit log failed", zap.Error(err))
	}
}
