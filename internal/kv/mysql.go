package kv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// MySQL keeps entries in a single kv_entries table.  MySQL has no native
// key expiry, so reads filter on expires_at and PurgeExpired deletes dead
// rows in the background.
type MySQL struct {
	db  *sql.DB
	now func() time.Time
}

// NewMySQL wraps an open connection pool.
func NewMySQL(db *sql.DB) *MySQL { return &MySQL{db: db, now: time.Now} }

const createTable = `CREATE TABLE IF NOT EXISTS kv_entries (
    k          VARCHAR(255) NOT NULL PRIMARY KEY,
    v          MEDIUMBLOB   NOT NULL,
    expires_at DATETIME(6)  NULL,
    KEY idx_kv_expires (expires_at)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_bin`

// EnsureSchema creates the backing table when it is missing.
func (s *MySQL) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createTable); err != nil {
		return fmt.Errorf("kv: create kv_entries: %w", err)
	}
	return nil
}

func (s *MySQL) nowUTC() time.Time { return s.now().UTC() }

func (s *MySQL) Get(ctx context.Context, key string) ([]byte, error) {
	const q = `SELECT v FROM kv_entries WHERE k = ? AND (expires_at IS NULL OR expires_at > ?)`
	var v []byte
	err := s.db.QueryRowContext(ctx, q, key, s.nowUTC()).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return v, err
}

func (s *MySQL) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	const q = `INSERT INTO kv_entries (k, v, expires_at) VALUES (?, ?, ?)
               ON DUPLICATE KEY UPDATE v = VALUES(v), expires_at = VALUES(expires_at)`
	var exp sql.NullTime
	if ttl > 0 {
		exp = sql.NullTime{Time: s.nowUTC().Add(ttl), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, q, key, value, exp)
	return err
}

func (s *MySQL) Exists(ctx context.Context, key string) (bool, error) {
	const q = `SELECT 1 FROM kv_entries WHERE k = ? AND (expires_at IS NULL OR expires_at > ?)`
	var one int
	err := s.db.QueryRowContext(ctx, q, key, s.nowUTC()).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *MySQL) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	q := `DELETE FROM kv_entries WHERE k IN (` + placeholders(len(keys)) + `)`
	_, err := s.db.ExecContext(ctx, q, stringArgs(keys)...)
	return err
}

func (s *MySQL) Keys(ctx context.Context, prefix string) ([]string, error) {
	const q = `SELECT k FROM kv_entries WHERE k LIKE ? AND (expires_at IS NULL OR expires_at > ?) ORDER BY k`
	rows, err := s.db.QueryContext(ctx, q, escapeLike(prefix)+"%", s.nowUTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (s *MySQL) MGet(ctx context.Context, keys ...string) ([][]byte, error) {
	out := make([][]byte, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	q := `SELECT k, v FROM kv_entries WHERE k IN (` + placeholders(len(keys)) + `) AND (expires_at IS NULL OR expires_at > ?)`
	args := append(stringArgs(keys), s.nowUTC())
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	found := make(map[string][]byte, len(keys))
	for rows.Next() {
		var (
			k string
			v []byte
		)
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		found[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, k := range keys {
		out[i] = found[k]
	}
	return out, nil
}

// PurgeExpired deletes rows whose expiry has passed and reports how many
// were removed.
func (s *MySQL) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM kv_entries WHERE expires_at IS NOT NULL AND expires_at <= ?`, s.nowUTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// RunJanitor calls PurgeExpired every interval until ctx is cancelled.
func (s *MySQL) RunJanitor(ctx context.Context, interval time.Duration, onErr func(error)) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := s.PurgeExpired(ctx); err != nil && onErr != nil {
				onErr(err)
			}
		}
	}
}

func (s *MySQL) Close() error { return s.db.Close() }

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func stringArgs(keys []string) []any {
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}
	return args
}

// escapeLike quotes LIKE wildcards using MySQL's default '\' escape.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
