// Package activity records chat, upload and download outcomes in SQLite.
package activity

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/pario-ai/costdesk/pkg/models"
)

// Logger writes and queries activity entries in a dedicated SQLite database.
type Logger struct {
	db   *sql.DB
	cfg  models.ActivityConfig
	done chan struct{}
	wg   sync.WaitGroup
}

// New opens the activity database and creates the schema.
func New(cfg models.ActivityConfig) (*Logger, error) {
	db, err := sql.Open("sqlite", cfg.DBPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open activity db: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate activity db: %w", err)
	}

	l := &Logger{
		db:   db,
		cfg:  cfg,
		done: make(chan struct{}),
	}

	l.wg.Add(1)
	go l.retentionLoop()

	return l, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS activity_log (
		id          TEXT PRIMARY KEY,
		kind        TEXT NOT NULL,
		subject     TEXT,
		outcome     TEXT NOT NULL,
		detail      TEXT,
		row_count   INTEGER NOT NULL DEFAULT 0,
		latency_ms  INTEGER NOT NULL DEFAULT 0,
		created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_activity_kind ON activity_log(kind)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_activity_created ON activity_log(created_at)`)
	return err
}

// Log inserts an entry. Chat queries are blanked unless include_queries is
// set; subjects are cut to max_subject_size.
func (l *Logger) Log(ctx context.Context, entry models.ActivityEntry) error {
	if l == nil || l.db == nil {
		return nil
	}

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	entry.CreatedAt = entry.CreatedAt.UTC()

	subject := entry.Subject
	if entry.Kind == models.ActivityChat && !l.cfg.IncludeQueries {
		subject = ""
	}
	if l.cfg.MaxSubjectSize > 0 && len(subject) > l.cfg.MaxSubjectSize {
		subject = subject[:l.cfg.MaxSubjectSize]
	}

	_, err := l.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO activity_log
		(id, kind, subject, outcome, detail, row_count, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, string(entry.Kind), subject, entry.Outcome, entry.Detail,
		entry.Rows, entry.LatencyMs, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

// Query returns entries matching opts, newest first.
func (l *Logger) Query(ctx context.Context, opts models.ActivityQueryOpts) ([]models.ActivityEntry, error) {
	q := `SELECT id, kind, subject, outcome, detail, row_count, latency_ms, created_at
		FROM activity_log WHERE 1=1`
	var args []any

	if opts.ID != "" {
		q += " AND id = ?"
		args = append(args, opts.ID)
	}
	if opts.Kind != "" {
		q += " AND kind = ?"
		args = append(args, string(opts.Kind))
	}
	if opts.Outcome != "" {
		q += " AND outcome = ?"
		args = append(args, opts.Outcome)
	}
	if !opts.Since.IsZero() {
		q += " AND created_at >= ?"
		args = append(args, opts.Since.UTC())
	}

	q += " ORDER BY created_at DESC"

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	q += " LIMIT ?"
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query activity: %w", err)
	}
	defer rows.Close()

	var entries []models.ActivityEntry
	for rows.Next() {
		var e models.ActivityEntry
		var kind string
		var subject, detail sql.NullString
		if err := rows.Scan(&e.ID, &kind, &subject, &e.Outcome, &detail,
			&e.Rows, &e.LatencyMs, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan activity row: %w", err)
		}
		e.Kind = models.ActivityKind(kind)
		e.Subject = subject.String
		e.Detail = detail.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Stats returns counts grouped by kind, outcome and day.
func (l *Logger) Stats(ctx context.Context) ([]models.ActivityStat, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT kind, outcome, date(created_at) as day, count(*) as cnt
		 FROM activity_log GROUP BY kind, outcome, day ORDER BY day DESC, kind, outcome`)
	if err != nil {
		return nil, fmt.Errorf("activity stats: %w", err)
	}
	defer rows.Close()

	var stats []models.ActivityStat
	for rows.Next() {
		var s models.ActivityStat
		var kind string
		var day sql.NullString
		if err := rows.Scan(&kind, &s.Outcome, &day, &s.Count); err != nil {
			return nil, fmt.Errorf("scan activity stat: %w", err)
		}
		s.Kind = models.ActivityKind(kind)
		s.Day = day.String
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// Cleanup deletes entries older than the retention period.
func (l *Logger) Cleanup(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -l.cfg.RetentionDays)
	res, err := l.db.ExecContext(ctx,
		`DELETE FROM activity_log WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("activity cleanup: %w", err)
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
