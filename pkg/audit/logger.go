// Package audit keeps a local history of usage evaluations and the upgrade
// prompts they produced.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/workforce-ai/meter/pkg/models"
	_ "modernc.org/sqlite"
)

// Logger writes and queries audit entries in a dedicated SQLite database.
type Logger struct {
	db   *sql.DB
	cfg  models.AuditConfig
	done chan struct{}
	wg   sync.WaitGroup
}

// New opens the audit SQLite database and creates the schema.
func New(cfg models.AuditConfig) (*Logger, error) {
	db, err := sql.Open("sqlite", cfg.DBPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate audit db: %w", err)
	}

	l := &Logger{
		db:   db,
		cfg:  cfg,
		done: make(chan struct{}),
	}

	if cfg.RetentionDays > 0 {
		l.wg.Add(1)
		go l.retentionLoop()
	}

	return l, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS audit_log (
		id                  INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id             TEXT NOT NULL,
		tier                TEXT NOT NULL,
		period_start        DATETIME NOT NULL,
		snapshot_version    TEXT NOT NULL,
		total_tokens        INTEGER NOT NULL,
		total_percent       REAL NOT NULL,
		total_status        TEXT NOT NULL,
		prompted            INTEGER NOT NULL,
		reason              TEXT,
		triggering_provider TEXT,
		created_at          DATETIME NOT NULL,
		UNIQUE (user_id, tier, period_start, snapshot_version)
	)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_audit_user ON audit_log(user_id)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_audit_created ON audit_log(created_at)`)
	return err
}

// Log inserts an audit entry. An evaluation already logged for the same
// user, tier, period and snapshot version is ignored.
func (l *Logger) Log(ctx context.Context, entry models.AuditEntry) error {
	if l == nil || l.db == nil {
		return nil
	}
	if l.cfg.PromptsOnly && !entry.Prompted {
		return nil
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	_, err := l.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO audit_log
		(user_id, tier, period_start, snapshot_version, total_tokens, total_percent,
		 total_status, prompted, reason, triggering_provider, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.UserID, string(entry.Tier), entry.PeriodStart.UTC(), entry.SnapshotVersion,
		entry.TotalTokens, entry.TotalPercent, string(entry.TotalStatus), entry.Prompted,
		string(entry.Reason), string(entry.TriggeringProvider), entry.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("audit log: %w", err)
	}
	return nil
}

// Query returns audit entries matching the given options, newest first.
func (l *Logger) Query(ctx context.Context, opts models.AuditQueryOpts) ([]models.AuditEntry, error) {
	q := `SELECT id, user_id, tier, period_start, snapshot_version, total_tokens, total_percent,
		total_status, prompted, reason, triggering_provider, created_at
		FROM audit_log WHERE 1=1`
	var args []any

	if opts.UserID != "" {
		q += " AND user_id = ?"
		args = append(args, opts.UserID)
	}
	if opts.Reason != "" {
		q += " AND reason = ?"
		args = append(args, string(opts.Reason))
	}
	if opts.Prompted {
		q += " AND prompted = 1"
	}
	if !opts.Since.IsZero() {
		q += " AND created_at >= ?"
		args = append(args, opts.Since.UTC())
	}

	q += " ORDER BY created_at DESC, id DESC"

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	q += " LIMIT ?"
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit: %w", err)
	}
	defer rows.Close()

	var entries []models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		var tier, status string
		var reason, provider sql.NullString
		if err := rows.Scan(
			&e.ID, &e.UserID, &tier, &e.PeriodStart, &e.SnapshotVersion,
			&e.TotalTokens, &e.TotalPercent, &status, &e.Prompted,
			&reason, &provider, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}
		e.Tier = models.PlanTier(tier)
		e.TotalStatus = models.QuotaStatus(status)
		e.Reason = models.UpgradeReason(reason.String)
		e.TriggeringProvider = models.ProviderID(provider.String)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Stats returns evaluation and prompt counts grouped by tier and UTC day.
// created_at is stored as RFC 3339 text, which SQLite's date() cannot parse,
// so the day is its leading YYYY-MM-DD.
func (l *Logger) Stats(ctx context.Context) ([]models.AuditStat, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT tier, substr(created_at, 1, 10) as day, count(*), COALESCE(SUM(prompted), 0)
		 FROM audit_log GROUP BY tier, day ORDER BY day DESC, tier`)
	if err != nil {
		return nil, fmt.Errorf("audit stats: %w", err)
	}
	defer rows.Close()

	var stats []models.AuditStat
	for rows.Next() {
		var s models.AuditStat
		var tier string
		var day sql.NullString
		if err := rows.Scan(&tier, &day, &s.Evaluations, &s.Prompts); err != nil {
			return nil, fmt.Errorf("scan audit stat: %w", err)
		}
		s.Tier = models.PlanTier(tier)
		s.Day = day.String
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// Cleanup deletes entries older than the configured retention period.
func (l *Logger) Cleanup(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -l.cfg.RetentionDays)
	res, err := l.db.ExecContext(ctx,
		`DELETE FROM audit_log WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("audit cleanup: %w", err)
	}
	return res.RowsAffected()
}

// Close stops the retention goroutine and closes the database.
func (l *Logger) Close() error {
	close(l.done)
	l.wg.Wait()
	return l.db.Close()
}

func (l *Logger) retentionLoop() {
	defer l.wg.Done()
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			_, _ = l.Cleanup(context.Background())
		}
	}
}
