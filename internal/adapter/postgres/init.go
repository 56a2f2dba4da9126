package postgres

import migrate "github.com/rubenv/sql-migrate"

// Migration returns the readings schema.
func Migration() *migrate.MemoryMigrationSource {
	return &migrate.MemoryMigrationSource{
		Migrations: []*migrate.Migration{
			{
				Id: "readings_1",
				Up: []string{
					`CREATE TABLE IF NOT EXISTS readings (
						id                BIGSERIAL PRIMARY KEY,
						received_at       TIMESTAMPTZ NOT NULL,
						station_unix_time BIGINT      NOT NULL,
						station_id        TEXT        NOT NULL DEFAULT '',
						client_address    BYTEA,
						fields            JSONB       NOT NULL
					)`,
				},
				Down: []string{
					"DROP TABLE readings",
				},
			},
			{
				Id: "readings_2",
				Up: []string{
					`CREATE INDEX IF NOT EXISTS idx_readings_received_at ON readings (received_at DESC, id DESC)`,
				},
				Down: []string{
					"DROP INDEX IF EXISTS idx_readings_received_at",
				},
			},
		},
	}
}
