package tracker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	_ "modernc.org/sqlite"

	"github.com/workforce-ai/meter/pkg/models"
	"github.com/workforce-ai/meter/pkg/plan"
)

// ErrNoPlan is returned when no plan is stored for a user.
var ErrNoPlan = errors.New("no plan for user")

// Snapshot is a consistent read of a user's usage records for one period.
// Version changes whenever a record inside the period is added, removed or
// updated in place.
type Snapshot struct {
	Records []models.UsageRecord
	Version string
}

// Version fingerprints a record set as <count>-<max id>-<content hash>.
// The hash covers every field that reaches a report, so rows upserted in
// place yield a new version even though count and max id stay the same.
func Version(records []models.UsageRecord) string {
	h := xxhash.New()
	var maxID int64
	for _, r := range records {
		maxID = max(maxID, r.ID)
		_, _ = fmt.Fprintf(h, "%d|%s|%d|%d|%d|%s\n",
			r.ID, r.Provider, r.InputTokens, r.OutputTokens, r.TotalTokens,
			strconv.FormatFloat(r.TotalCost, 'g', -1, 64))
	}
	return fmt.Sprintf("%d-%d-%016x", len(records), maxID, h.Sum64())
}

// Tracker records usage and serves consistent snapshots of it.
type Tracker interface {
	// Record stores a usage record.
	Record(ctx context.Context, rec models.UsageRecord) error
	// UsageSnapshot returns every record for the user inside the period,
	// read within a single transaction.
	UsageSnapshot(ctx context.Context, userID string, period models.BillingPeriod) (Snapshot, error)
	// PlanFor returns the stored plan tier string for the user.
	PlanFor(ctx context.Context, userID string) (string, error)
	// Close releases resources.
	Close() error
}

// SQLiteTracker implements Tracker with a SQLite database.
type SQLiteTracker struct {
	db *sql.DB
}

const createTable = `
CREATE TABLE IF NOT EXISTS usage_records (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id TEXT NOT NULL,
	provider TEXT NOT NULL,
	input_tokens INTEGER NOT NULL,
	output_tokens INTEGER NOT NULL,
	total_tokens INTEGER NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_usage_user_time ON usage_records(user_id, created_at);
`

const createPlansTable = `
CREATE TABLE IF NOT EXISTS plans (
	user_id TEXT PRIMARY KEY,
	tier TEXT NOT NULL,
	updated_at DATETIME NOT NULL
);
`

// New creates a SQLiteTracker and runs auto-migration.
func New(dbPath string) (*SQLiteTracker, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open tracker db: %w", err)
	}

	if _, err := db.Exec(createTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate tracker db: %w", err)
	}

	if _, err := db.Exec(createPlansTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate plans table: %w", err)
	}

	// Cost was added after the first schema.
	if !columnExists(db, "usage_records", "total_cost") {
		if _, err := db.Exec(`ALTER TABLE usage_records ADD COLUMN total_cost REAL NOT NULL DEFAULT 0`); err != nil {
			db.Close()
			return nil, fmt.Errorf("add total_cost column: %w", err)
		}
	}

	return &SQLiteTracker{db: db}, nil
}

func columnExists(db *sql.DB, table, column string) bool {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false
	}
	defer rows.Close()
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull int
		var dflt sql.NullString
		var pk int
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return false
		}
		if name == column {
			return true
		}
	}
	return false
}

// Record stores a usage record. The provider is stored normalized.
func (t *SQLiteTracker) Record(ctx context.Context, rec models.UsageRecord) error {
	if rec.UserID == "" {
		return fmt.Errorf("record usage: missing user id")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := t.db.ExecContext(ctx,
		`INSERT INTO usage_records (user_id, provider, input_tokens, output_tokens, total_tokens, total_cost, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.UserID, string(models.NormalizeProvider(rec.Provider)),
		rec.InputTokens, rec.OutputTokens, rec.TotalTokens, rec.TotalCost, rec.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("record usage: %w", err)
	}
	return nil
}

// UsageSnapshot reads the records and their version in one read-only
// transaction so the two always agree.
func (t *SQLiteTracker) UsageSnapshot(ctx context.Context, userID string, period models.BillingPeriod) (Snapshot, error) {
	tx, err := t.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return Snapshot{}, fmt.Errorf("begin snapshot: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx,
		`SELECT id, user_id, provider, input_tokens, output_tokens, total_tokens, total_cost, created_at
		 FROM usage_records WHERE user_id = ? AND created_at >= ? AND created_at < ? ORDER BY id`,
		userID, period.Start.UTC(), period.End.UTC(),
	)
	if err != nil {
		return Snapshot{}, fmt.Errorf("query usage: %w", err)
	}
	defer rows.Close()

	var snap Snapshot
	for rows.Next() {
		var r models.UsageRecord
		if err := rows.Scan(&r.ID, &r.UserID, &r.Provider, &r.InputTokens, &r.OutputTokens, &r.TotalTokens, &r.TotalCost, &r.CreatedAt); err != nil {
			return Snapshot{}, fmt.Errorf("scan usage: %w", err)
		}
		snap.Records = append(snap.Records, r)
	}
	if err := rows.Err(); err != nil {
		return Snapshot{}, fmt.Errorf("iterate usage: %w", err)
	}
	snap.Version = Version(snap.Records)
	return snap, tx.Commit()
}

// SetPlan stores the plan tier for a user. Unknown tiers are rejected.
func (t *SQLiteTracker) SetPlan(ctx context.Context, userID, tier string) error {
	parsed, err := plan.ParseTier(tier)
	if err != nil {
		return err
	}
	_, err = t.db.ExecContext(ctx,
		`INSERT INTO plans (user_id, tier, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET tier = excluded.tier, updated_at = excluded.updated_at`,
		userID, string(parsed), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("set plan: %w", err)
	}
	return nil
}

// PlanFor returns the stored tier string, unvalidated, or ErrNoPlan.
func (t *SQLiteTracker) PlanFor(ctx context.Context, userID string) (string, error) {
	var tier string
	err := t.db.QueryRowContext(ctx, `SELECT tier FROM plans WHERE user_id = ?`, userID).Scan(&tier)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNoPlan
	}
	if err != nil {
		return "", fmt.Errorf("plan lookup: %w", err)
	}
	return tier, nil
}

// Summary returns stored usage grouped by user and provider, optionally
// filtered by user and start time.
func (t *SQLiteTracker) Summary(ctx context.Context, userID string, since time.Time) ([]models.UsageSummary, error) {
	query := `SELECT user_id, provider, COUNT(*), SUM(input_tokens), SUM(output_tokens), SUM(total_tokens), SUM(total_cost)
		 FROM usage_records WHERE created_at >= ?`
	args := []any{since.UTC()}
	if userID != "" {
		query += ` AND user_id = ?`
		args = append(args, userID)
	}
	query += ` GROUP BY user_id, provider ORDER BY user_id, provider`

	rows, err := t.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("summary: %w", err)
	}
	defer rows.Close()

	var summaries []models.UsageSummary
	for rows.Next() {
		var s models.UsageSummary
		if err := rows.Scan(&s.UserID, &s.Provider, &s.RequestCount, &s.InputTokens, &s.OutputTokens, &s.TotalTokens, &s.TotalCost); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// Close releases the database connection.
func (t *SQLiteTracker) Close() error {
	return t.db.Close()
}
