// Package postgres reads usage records and plans from the hosted Postgres
// backend (Supabase schema).
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/workforce-ai/meter/pkg/models"
	"github.com/workforce-ai/meter/pkg/plan"
	"github.com/workforce-ai/meter/pkg/tracker"
)

// DB is the subset of *pgxpool.Pool the store uses.
type DB interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store implements tracker.Tracker over the usage_stats and profiles tables.
// The pool is owned by the caller.
type Store struct {
	db DB
}

var _ tracker.Tracker = (*Store)(nil)

// NewStore wraps a pgx pool or connection.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

// Record inserts a usage row.
func (s *Store) Record(ctx context.Context, rec models.UsageRecord) error {
	if rec.UserID == "" {
		return fmt.Errorf("record usage: missing user id")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO usage_stats (user_id, provider, input_tokens, output_tokens, total_tokens, total_cost, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.db.Exec(ctx, query,
		rec.UserID, string(models.NormalizeProvider(rec.Provider)),
		rec.InputTokens, rec.OutputTokens, rec.TotalTokens, rec.TotalCost, rec.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("record usage: %w", err)
	}
	return nil
}

// UsageSnapshot reads the rows for the period inside one repeatable-read,
// read-only transaction and versions them by content, so rows the backend
// upserts in place invalidate cached reports.
func (s *Store) UsageSnapshot(ctx context.Context, userID string, period models.BillingPeriod) (tracker.Snapshot, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	})
	if err != nil {
		return tracker.Snapshot{}, fmt.Errorf("begin snapshot: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
		SELECT id, user_id, provider, input_tokens, output_tokens, total_tokens, total_cost::float8, created_at
		FROM usage_stats
		WHERE user_id = $1 AND created_at >= $2 AND created_at < $3
		ORDER BY id
	`, userID, period.Start, period.End)
	if err != nil {
		return tracker.Snapshot{}, fmt.Errorf("query usage stats: %w", err)
	}
	defer rows.Close()

	var snap tracker.Snapshot
	for rows.Next() {
		var r models.UsageRecord
		err := rows.Scan(
			&r.ID, &r.UserID, &r.Provider,
			&r.InputTokens, &r.OutputTokens, &r.TotalTokens, &r.TotalCost, &r.CreatedAt,
		)
		if err != nil {
			return tracker.Snapshot{}, fmt.Errorf("scan usage stat: %w", err)
		}
		snap.Records = append(snap.Records, r)
	}
	if err := rows.Err(); err != nil {
		return tracker.Snapshot{}, fmt.Errorf("iterate usage stats: %w", err)
	}
	snap.Version = tracker.Version(snap.Records)

	if err := tx.Commit(ctx); err != nil {
		return tracker.Snapshot{}, fmt.Errorf("commit snapshot: %w", err)
	}
	return snap, nil
}

// PlanFor returns profiles.plan for the user, or tracker.ErrNoPlan when the
// profile is missing or has no plan set.
func (s *Store) PlanFor(ctx context.Context, userID string) (string, error) {
	var tier *string
	err := s.db.QueryRow(ctx, `SELECT plan FROM profiles WHERE id = $1`, userID).Scan(&tier)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", tracker.ErrNoPlan
	}
	if err != nil {
		return "", fmt.Errorf("look up plan: %w", err)
	}
	if tier == nil || *tier == "" {
		return "", tracker.ErrNoPlan
	}
	return *tier, nil
}

// SetPlan updates profiles.plan. The profile must already exist; profiles
// are created by the auth backend.
func (s *Store) SetPlan(ctx context.Context, userID, tier string) error {
	parsed, err := plan.ParseTier(tier)
	if err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx, `UPDATE profiles SET plan = $2, updated_at = now() WHERE id = $1`, userID, string(parsed))
	if err != nil {
		return fmt.Errorf("set plan: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("set plan: no profile for user %s", userID)
	}
	return nil
}

// Summary returns stored usage grouped by user and provider since the given
// time, optionally filtered by user.
func (s *Store) Summary(ctx context.Context, userID string, since time.Time) ([]models.UsageSummary, error) {
	query := `
		SELECT user_id, provider, COUNT(*), SUM(input_tokens), SUM(output_tokens), SUM(total_tokens), SUM(total_cost)::float8
		FROM usage_stats
		WHERE created_at >= $1 AND ($2 = '' OR user_id::text = $2)
		GROUP BY user_id, provider
		ORDER BY user_id, provider
	`
	rows, err := s.db.Query(ctx, query, since, userID)
	if err != nil {
		return nil, fmt.Errorf("query usage summary: %w", err)
	}
	defer rows.Close()

	var summaries []models.UsageSummary
	for rows.Next() {
		var u models.UsageSummary
		if err := rows.Scan(&u.UserID, &u.Provider, &u.RequestCount, &u.InputTokens, &u.OutputTokens, &u.TotalTokens, &u.TotalCost); err != nil {
			return nil, fmt.Errorf("scan usage summary: %w", err)
		}
		summaries = append(summaries, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate usage summary: %w", err)
	}
	return summaries, nil
}

// Close is a no-op; the pool belongs to the caller.
func (s *Store) Close() error {
	return nil
}
