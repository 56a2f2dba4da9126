// Package sqlite implements domain.ReadingStore on a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	migrate "github.com/rubenv/sql-migrate"

	"github.com/couchcryptid/meteo-telemetry-service/internal/domain"
)

//go:embed sql/migrations/*.sql
var migrationsFS embed.FS

//go:embed sql/insert-reading.sql
var insertReadingSQL string

//go:embed sql/get-latest-reading.sql
var getLatestReadingSQL string

//go:embed sql/delete-readings-before.sql
var deleteReadingsBeforeSQL string

// Migration returns the readings schema.
func Migration() migrate.EmbedFileSystemMigrationSource {
	return migrate.EmbedFileSystemMigrationSource{FileSystem: migrationsFS, Root: "sql/migrations"}
}

// Options configure Open.
type Options struct {
	// Path is a file path, a "file:" URI, or ":memory:".
	Path string
	// LogSQL logs every statement at debug level.
	LogSQL bool
}

// Store is a SQLite-backed reading store.
type Store struct {
	db *sqlx.DB
}

type readingRow struct {
	ID              int64  `db:"id"`
	ReceivedAt      int64  `db:"received_at"`
	StationUnixTime int64  `db:"station_unix_time"`
	StationID       string `db:"station_id"`
	ClientAddress   []byte `db:"client_address"`
	Fields          string `db:"fields"`
}

// Open opens (creating if needed) the database and applies pending migrations.
func Open(ctx context.Context, opts Options, logger *slog.Logger) (*Store, error) {
	dsn, err := buildDSN(opts.Path)
	if err != nil {
		return nil, err
	}

	var db *sqlx.DB
	if opts.LogSQL {
		db = sqlx.NewDb(sql.OpenDB(NewLoggingConnector(dsn, logger)), "sqlite3")
	} else {
		db, err = sqlx.Open("sqlite3", dsn)
		if err != nil {
			return nil, fmt.Errorf("db open: %w", err)
		}
	}

	// Every connection to ":memory:" is a separate database.
	if isMemory(opts.Path) {
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	applied, err := migrate.ExecContext(ctx, db.DB, "sqlite3", Migration(), migrate.Up)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	logger.Info("sqlite store opened", "path", opts.Path, "log_sql", opts.LogSQL, "migrations_applied", applied)
	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// CheckReadiness pings the database.
func (s *Store) CheckReadiness(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite not reachable: %w", err)
	}
	return nil
}

func (s *Store) Insert(ctx context.Context, r domain.Reading) (int64, error) {
	fields, err := encodeFields(r.Fields)
	if err != nil {
		return 0, domain.StoreError("encode fields", err)
	}

	res, err := s.db.ExecContext(ctx, insertReadingSQL,
		r.ReceivedAt.UnixNano(), r.StationUnixTime, r.StationID, addrBytes(r.ClientAddress), string(fields),
	)
	if err != nil {
		return 0, domain.StoreError("insert reading", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, domain.StoreError("insert reading", err)
	}
	return id, nil
}

func (s *Store) Latest(ctx context.Context) (domain.Reading, error) {
	var row readingRow
	if err := s.db.GetContext(ctx, &row, getLatestReadingSQL); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Reading{}, domain.ErrNotFound
		}
		return domain.Reading{}, domain.StoreError("query latest reading", err)
	}

	f, err := decodeFields(row.Fields)
	if err != nil {
		return domain.Reading{}, domain.StoreError("decode fields", err)
	}
	addr, _ := netip.AddrFromSlice(row.ClientAddress)
	return domain.Reading{
		ID:              row.ID,
		ReceivedAt:      time.Unix(0, row.ReceivedAt).UTC(),
		StationUnixTime: row.StationUnixTime,
		StationID:       row.StationID,
		ClientAddress:   addr,
		Fields:          f,
	}, nil
}

func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, deleteReadingsBeforeSQL, cutoff.UnixNano())
	if err != nil {
		return 0, domain.StoreError("delete old readings", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, domain.StoreError("delete old readings", err)
	}
	return n, nil
}

// encodeFields stores values as strings so they keep their pushed spelling.
func encodeFields(f domain.Fields) ([]byte, error) {
	m := make(map[string]string, len(f))
	for k, v := range f {
		m[k] = string(v)
	}
	return json.Marshal(m)
}

func decodeFields(s string) (domain.Fields, error) {
	var m map[string]string
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, err
	}
	f := make(domain.Fields, len(m))
	for k, v := range m {
		f[k] = domain.Value(v)
	}
	return f, nil
}

// addrBytes returns the 4- or 16-byte form of a, or nil for the zero Addr.
func addrBytes(a netip.Addr) []byte {
	if !a.IsValid() {
		return nil
	}
	return a.AsSlice()
}

func isMemory(path string) bool {
	return path == ":memory:" || strings.Contains(path, "mode=memory")
}

func buildDSN(path string) (string, error) {
	if path == "" {
		return "", errors.New("sqlite path is empty")
	}
	if isMemory(path) {
		return path, nil
	}

	if !strings.HasPrefix(path, "file:") {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return "", fmt.Errorf("mkdir %s: %w", dir, err)
			}
		}
	}

	params := []string{
		"_busy_timeout=5000",
		"_journal_mode=WAL",
	}
	if strings.HasPrefix(path, "file:") {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		return path + sep + strings.Join(params, "&"), nil
	}
	return fmt.Sprintf("file:%s?%s", path, strings.Join(params, "&")), nil
}
