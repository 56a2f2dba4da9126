// Package postgres implements domain.ReadingStore on PostgreSQL through a pgx
// connection pool.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	migrate "github.com/rubenv/sql-migrate"

	"github.com/couchcryptid/meteo-telemetry-service/internal/domain"
)

// Store is a PostgreSQL-backed reading store.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to dsn, verifies the connection, and applies pending migrations.
func Open(ctx context.Context, dsn string, logger *slog.Logger) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid postgres dsn: %w", err)
	}
	cfg.MaxConnIdleTime = 15 * time.Minute
	cfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	applied, err := migrate.ExecContext(ctx, stdlib.OpenDBFromPool(pool), "postgres", Migration(), migrate.Up)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	logger.Info("postgres store opened", "host", cfg.ConnConfig.Host, "database", cfg.ConnConfig.Database, "migrations_applied", applied)
	return &Store{pool: pool}, nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// CheckReadiness pings the database.
func (s *Store) CheckReadiness(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres not reachable: %w", err)
	}
	return nil
}

func (s *Store) Insert(ctx context.Context, r domain.Reading) (int64, error) {
	fields, err := encodeFields(r.Fields)
	if err != nil {
		return 0, domain.StoreError("encode fields", err)
	}

	var id int64
	err = s.pool.QueryRow(ctx,
		`INSERT INTO readings (received_at, station_unix_time, station_id, client_address, fields)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		r.ReceivedAt.UTC(), r.StationUnixTime, r.StationID, addrBytes(r.ClientAddress), fields,
	).Scan(&id)
	if err != nil {
		return 0, domain.StoreError("insert reading", err)
	}
	return id, nil
}

func (s *Store) Latest(ctx context.Context) (domain.Reading, error) {
	var (
		r      domain.Reading
		addr   []byte
		fields []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, received_at, station_unix_time, station_id, client_address, fields
		 FROM readings ORDER BY received_at DESC, id DESC LIMIT 1`,
	).Scan(&r.ID, &r.ReceivedAt, &r.StationUnixTime, &r.StationID, &addr, &fields)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Reading{}, domain.ErrNotFound
		}
		return domain.Reading{}, domain.StoreError("query latest reading", err)
	}

	f, err := decodeFields(fields)
	if err != nil {
		return domain.Reading{}, domain.StoreError("decode fields", err)
	}
	r.ReceivedAt = r.ReceivedAt.UTC()
	r.ClientAddress, _ = netip.AddrFromSlice(addr)
	r.Fields = f
	return r, nil
}

func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM readings WHERE received_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, domain.StoreError("delete old readings", err)
	}
	return tag.RowsAffected(), nil
}

func encodeFields(f domain.Fields) (string, error) {
	m := make(map[string]string, len(f))
	for k, v := range f {
		m[k] = string(v)
	}
	b, err := json.Marshal(m)
	return string(b), err
}

func decodeFields(b []byte) (domain.Fields, error) {
	var m map[string]string
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	f := make(domain.Fields, len(m))
	for k, v := range m {
		f[k] = domain.Value(v)
	}
	return f, nil
}

func addrBytes(a netip.Addr) []byte {
	if !a.IsValid() {
		return nil
	}
	return a.AsSlice()
}
