package db

import (
	"fmt"
	"log"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// presenceMigrations are applied in order and recorded in schema_migrations.
var presenceMigrations = []struct {
	version int
	stmt    string
}{
	{1, `CREATE TABLE IF NOT EXISTS presence_records (
            user_id TEXT PRIMARY KEY,
            status TEXT NOT NULL DEFAULT 'offline',
            last_seen TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`},
	{2, `CREATE TABLE IF NOT EXISTS presence_sessions (
            channel_id TEXT PRIMARY KEY,
            user_id TEXT NOT NULL,
            device_info TEXT NOT NULL DEFAULT '',
            last_active TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`},
	{3, `CREATE INDEX IF NOT EXISTS idx_presence_sessions_user ON presence_sessions (user_id);`},
	{4, `CREATE INDEX IF NOT EXISTS idx_presence_sessions_last_active ON presence_sessions (last_active);`},
}

// ConnectPostgres opens the presence trail database and brings its schema
// up to date.
func ConnectPostgres(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := migratePresence(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate presence schema: %w", err)
	}
	return db, nil
}

func migratePresence(db *sqlx.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
            version INT PRIMARY KEY,
            applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`); err != nil {
		return err
	}

	var current int
	if err := db.Get(&current, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`); err != nil {
		return err
	}

	applied := 0
	for _, m := range presenceMigrations {
		if m.version <= current {
			continue
		}
		tx, err := db.Beginx()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(m.stmt); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d: %w", m.version, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations (version) VALUES ($1)`, m.version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		applied++
	}
	log.Printf("presence schema ready version=%d applied=%d", len(presenceMigrations), applied)
	return nil
}
