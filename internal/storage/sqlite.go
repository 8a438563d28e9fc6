package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "attendbot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) AppendAttempt(ctx context.Context, rec AttemptRecord) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if rec.At.IsZero() {
		rec.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO attempts(at, event, start, manual, success, took_ms, err)
		 VALUES(?,?,?,?,?,?,?)`,
		rec.At.Format(time.RFC3339Nano), rec.Event, rec.Start.Format(time.RFC3339Nano),
		boolInt(rec.Manual), boolInt(rec.Success), rec.TookMS, nullStr(rec.Error),
	)
	return err
}

func (s *sqliteStore) RecentAttempts(ctx context.Context, n int) ([]AttemptRecord, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	if n <= 0 {
		n = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT at, event, start, manual, success, took_ms, COALESCE(err, '')
		 FROM attempts ORDER BY at DESC, id DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AttemptRecord
	for rows.Next() {
		var rec AttemptRecord
		var at, start string
		var manual, success int
		if err := rows.Scan(&at, &rec.Event, &start, &manual, &success, &rec.TookMS, &rec.Error); err != nil {
			return nil, err
		}
		rec.At, _ = time.Parse(time.RFC3339Nano, at)
		rec.Start, _ = time.Parse(time.RFC3339Nano, start)
		rec.Manual = manual != 0
		rec.Success = success != 0
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *sqliteStore) Prune(ctx context.Context, maxAge time.Duration, maxRecords int) (int, error) {
	if s == nil || s.db == nil {
		return 0, ErrDisabled
	}
	dropped := 0
	if maxAge > 0 {
		cutoff := time.Now().Add(-maxAge).Format(time.RFC3339Nano)
		res, err := s.db.ExecContext(ctx, `DELETE FROM attempts WHERE at < ?`, cutoff)
		if err != nil {
			return dropped, err
		}
		if n, err := res.RowsAffected(); err == nil {
			dropped += int(n)
		}
	}
	if maxRecords > 0 {
		res, err := s.db.ExecContext(ctx,
			`DELETE FROM attempts WHERE id NOT IN
			 (SELECT id FROM attempts ORDER BY at DESC, id DESC LIMIT ?)`, maxRecords)
		if err != nil {
			return dropped, err
		}
		if n, err := res.RowsAffected(); err == nil {
			dropped += int(n)
		}
	}
	return dropped, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
