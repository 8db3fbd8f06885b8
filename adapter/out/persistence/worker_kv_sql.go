package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"triage_worker/core/port/out"
	"triage_worker/infra/database"

	"github.com/jmoiron/sqlx"
)

// DefaultTable is used when no table name is configured.
const DefaultTable = "triage_kv"

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLKV stores entries in a two-column table. Postgres, MySQL and SQLite are supported.
type SQLKV struct {
	db      *sqlx.DB
	dialect string
	table   string
}

var _ out.KVStore = (*SQLKV)(nil)

type kvRow struct {
	Key   string `db:"kv_key"`
	Value string `db:"kv_value"`
}

// NewSQLKV creates the adapter and its table if missing.
func NewSQLKV(ctx context.Context, db *sqlx.DB, dialect, table string) (*SQLKV, error) {
	if table == "" {
		table = DefaultTable
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("%w: table name %q", ErrInvalidInput, table)
	}

	kv := &SQLKV{db: db, dialect: dialect, table: table}
	if _, err := db.ExecContext(ctx, kv.createTableSQL()); err != nil {
		return nil, fmt.Errorf("create table %s: %w", table, err)
	}
	return kv, nil
}

func (s *SQLKV) createTableSQL() string {
	switch s.dialect {
	case database.DialectMySQL:
		return fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				kv_key   VARCHAR(255) NOT NULL PRIMARY KEY,
				kv_value LONGTEXT NOT NULL
			) DEFAULT CHARSET=utf8mb4`, s.table)
	default:
		return fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				kv_key   TEXT NOT NULL PRIMARY KEY,
				kv_value TEXT NOT NULL
			)`, s.table)
	}
}

func (s *SQLKV) upsertSQL() string {
	switch s.dialect {
	case database.DialectMySQL:
		return fmt.Sprintf(`INSERT INTO %s (kv_key, kv_value) VALUES (?, ?)
			ON DUPLICATE KEY UPDATE kv_value = VALUES(kv_value)`, s.table)
	default:
		return fmt.Sprintf(`INSERT INTO %s (kv_key, kv_value) VALUES (?, ?)
			ON CONFLICT (kv_key) DO UPDATE SET kv_value = excluded.kv_value`, s.table)
	}
}

func (s *SQLKV) Get(ctx context.Context, key string) (string, bool, error) {
	query := s.db.Rebind(fmt.Sprintf(`SELECT kv_value FROM %s WHERE kv_key = ?`, s.table))

	var value string
	if err := s.db.GetContext(ctx, &value, query, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get %s: %w", key, err)
	}
	return value, true, nil
}

func (s *SQLKV) Set(ctx context.Context, key, value string) error {
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(s.upsertSQL()), key, value); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (s *SQLKV) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	query, args, err := sqlx.In(fmt.Sprintf(`DELETE FROM %s WHERE kv_key IN (?)`, s.table), keys)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	return nil
}

// List narrows with LIKE and re-checks the prefix, since '_' in keys is a LIKE wildcard.
func (s *SQLKV) List(ctx context.Context, prefix string) (map[string]string, error) {
	query := s.db.Rebind(fmt.Sprintf(`SELECT kv_key, kv_value FROM %s WHERE kv_key LIKE ?`, s.table))

	var rows []kvRow
	if err := s.db.SelectContext(ctx, &rows, query, prefix+"%"); err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}

	result := make(map[string]string, len(rows))
	for _, r := range rows {
		if strings.HasPrefix(r.Key, prefix) {
			result[r.Key] = r.Value
		}
	}
	return result, nil
}

func (s *SQLKV) Close() error {
	return s.db.Close()
}
