package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"messbook/internal/domain"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// DB is the record store adapter: the only persistence boundary for
// records, listings and units.
type DB struct {
	*sql.DB
	logger *zerolog.Logger
	events domain.EventPublisher

	mu          sync.Mutex
	lastCreated map[string]int64 // kind -> последний выданный created_at, ns
	now         func() time.Time
}

// NewDB opens the SQLite database at path and runs migrations.
func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		// Создаем директорию для БД, если её нет
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite: один писатель; для :memory: каждое соединение - отдельная база
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := createTables(sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "store").Logger()
	l.Info().Str("path", path).Msg("database initialized")

	lastCreated, err := loadLastCreated(sqlDB)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to load record timestamps: %w", err)
	}

	return &DB{
		DB:          sqlDB,
		logger:      &l,
		lastCreated: lastCreated,
		now:         time.Now,
	}, nil
}

// loadLastCreated picks up the newest createdAt per kind so that ordering
// survives a restart even if the clock went backwards.
func loadLastCreated(db *sql.DB) (map[string]int64, error) {
	rows, err := db.Query(`SELECT kind, MAX(created_at) FROM records GROUP BY kind`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	last := make(map[string]int64)
	for rows.Next() {
		var (
			kind string
			ts   int64
		)
		if err := rows.Scan(&kind, &ts); err != nil {
			return nil, err
		}
		last[kind] = ts
	}
	return last, rows.Err()
}

// SetEventPublisher wires the bus that receives change events after each
// committed write.
func (db *DB) SetEventPublisher(p domain.EventPublisher) {
	db.events = p
}

func createTables(db *sql.DB) error {
	queries := []string{
		`PRAGMA foreign_keys = ON`,
		`CREATE TABLE IF NOT EXISTS listings (
            id TEXT PRIMARY KEY,
            partner_id TEXT NOT NULL DEFAULT '',
            name TEXT NOT NULL,
            address TEXT NOT NULL DEFAULT '',
            hidden BOOLEAN NOT NULL DEFAULT 0,
            available_count INTEGER NOT NULL DEFAULT 0 CHECK (available_count >= 0),
            gallery TEXT NOT NULL DEFAULT '[]',
            created_at INTEGER NOT NULL,
            updated_at INTEGER NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS units (
            id TEXT PRIMARY KEY,
            listing_id TEXT NOT NULL,
            title TEXT NOT NULL,
            capacity INTEGER NOT NULL DEFAULT 1,
            monthly_rent INTEGER NOT NULL DEFAULT 0,
            FOREIGN KEY (listing_id) REFERENCES listings(id) ON DELETE CASCADE
        )`,
		`CREATE TABLE IF NOT EXISTS records (
            id TEXT PRIMARY KEY,
            kind TEXT NOT NULL,
            status TEXT NOT NULL,
            owner_ref TEXT NOT NULL DEFAULT '',
            target_ref TEXT NOT NULL DEFAULT '',
            unit_ref TEXT NOT NULL DEFAULT '',
            name TEXT NOT NULL DEFAULT '',
            phone TEXT NOT NULL DEFAULT '',
            email TEXT NOT NULL DEFAULT '',
            message TEXT NOT NULL DEFAULT '',
            details TEXT NOT NULL DEFAULT '{}',
            remark TEXT NOT NULL DEFAULT '',
            created_at INTEGER NOT NULL,
            responded_at INTEGER,
            version INTEGER NOT NULL DEFAULT 1
        )`,

		`CREATE INDEX IF NOT EXISTS idx_records_kind_created ON records(kind, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_records_owner ON records(owner_ref)`,
		`CREATE INDEX IF NOT EXISTS idx_records_target ON records(target_ref)`,
		`CREATE INDEX IF NOT EXISTS idx_units_listing ON units(listing_id)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", trimSQL(query), err)
		}
	}
	return nil
}

func trimSQL(q string) string {
	q = strings.Join(strings.Fields(q), " ")
	if len(q) > 60 {
		return q[:60] + "..."
	}
	return q
}

// storeErr maps driver errors onto domain errors.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	}
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStoreUnavailable, err)
}

func (db *DB) publish(eventType string, payload interface{}) {
	if db.events == nil {
		return
	}
	if err := db.events.PublishJSON(eventType, payload); err != nil {
		db.logger.Error().Err(err).Str("event", eventType).Msg("failed to publish change event")
	}
}

func (db *DB) Close() error {
	return db.DB.Close()
}

func toNanos(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromNanos(ns int64) time.Time {
	return time.Unix(0, ns).UTC()
}
