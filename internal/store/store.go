package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sadopc/autotrackr/internal/clock"
	_ "modernc.org/sqlite"
)

const currentVersion = 1

// Store is the activity log. The single pooled connection makes it the only
// writer; every multi-statement write runs inside one transaction.
type Store struct {
	db    *sql.DB
	clock clock.Clock

	hooksMu sync.Mutex
	hooks   []func()

	// Cached taxonomy version, valid while data_version is unchanged.
	versionMu       sync.Mutex
	versionKnown    bool
	dataVersion     int64
	taxonomyVersion int64
}

// New opens (or creates) the SQLite database at dbPath and runs migrations.
func New(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("%w: create db directory: %v", ErrStorageUnavailable, err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: open database: %v", ErrStorageUnavailable, err)
	}

	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("%w: exec pragma %q: %v", ErrStorageUnavailable, p, err)
		}
	}

	s := &Store{db: db, clock: clock.Real{}}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: migrate: %v", ErrStorageUnavailable, err)
	}
	return s, nil
}

// NewMemory creates an in-memory store for testing.
func NewMemory() (*Store, error) {
	return New(":memory:")
}

func (s *Store) Close() error {
	return s.db.Close()
}

// SetClock replaces the time source used for "today" style queries.
func (s *Store) SetClock(c clock.Clock) {
	s.clock = c
}

// OnTaxonomyChange registers fn to run after any brand, project or rule
// mutation commits.
func (s *Store) OnTaxonomyChange(fn func()) {
	s.hooksMu.Lock()
	s.hooks = append(s.hooks, fn)
	s.hooksMu.Unlock()
}

func (s *Store) taxonomyChanged() {
	// data_version does not move for this connection's own commits.
	s.versionMu.Lock()
	s.versionKnown = false
	s.versionMu.Unlock()

	s.hooksMu.Lock()
	hooks := append([]func(){}, s.hooks...)
	s.hooksMu.Unlock()
	for _, fn := range hooks {
		fn()
	}
}

func (s *Store) withTx(fn func(tx *sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *Store) migrate() error {
	var version int
	err := s.db.QueryRow("PRAGMA user_version").Scan(&version)
	if err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}

	if version < 1 {
		if err := s.migrateV1(); err != nil {
			return err
		}
	}

	// Databases created before classification existed lack these columns.
	// Checked on every start so repeated startups never fail.
	if err := s.addColumnIfNotExists("activities", "project_id", "INTEGER"); err != nil {
		return fmt.Errorf("add project_id: %w", err)
	}
	if err := s.addColumnIfNotExists("activities", "project_source", "TEXT"); err != nil {
		return fmt.Errorf("add project_source: %w", err)
	}

	if _, err := s.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_activities_date    ON activities(date);
		CREATE INDEX IF NOT EXISTS idx_activities_app     ON activities(app_name);
		CREATE INDEX IF NOT EXISTS idx_activities_bundle  ON activities(bundle_id);
		CREATE INDEX IF NOT EXISTS idx_activities_project ON activities(project_id);
	`); err != nil {
		return fmt.Errorf("create indices: %w", err)
	}

	if err := s.ensureTaxonomyVersion(); err != nil {
		return fmt.Errorf("create taxonomy version: %w", err)
	}

	if version >= currentVersion {
		return nil
	}
	_, err = s.db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentVersion))
	return err
}

func (s *Store) migrateV1() error {
	const ddl = `
	CREATE TABLE IF NOT EXISTS brands (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		name        TEXT NOT NULL UNIQUE,
		color       TEXT NOT NULL DEFAULT '#6C63FF',
		sort_order  INTEGER NOT NULL DEFAULT 0,
		created_at  TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now'))
	);

	CREATE TABLE IF NOT EXISTS projects (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		brand_id    INTEGER NOT NULL REFERENCES brands(id),
		name        TEXT NOT NULL,
		color       TEXT NOT NULL DEFAULT '#6C63FF',
		sort_order  INTEGER NOT NULL DEFAULT 0,
		created_at  TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now')),
		UNIQUE(brand_id, name)
	);

	CREATE TABLE IF NOT EXISTS project_rules (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		project_id  INTEGER NOT NULL REFERENCES projects(id),
		rule_type   TEXT NOT NULL,
		pattern     TEXT NOT NULL,
		is_regex    INTEGER NOT NULL DEFAULT 0,
		priority    INTEGER NOT NULL DEFAULT 0,
		created_at  TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now'))
	);

	CREATE INDEX IF NOT EXISTS idx_rules_order ON project_rules(priority DESC, id ASC);

	CREATE TABLE IF NOT EXISTS activities (
		id               INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp        TEXT NOT NULL,
		app_name         TEXT NOT NULL,
		bundle_id        TEXT NOT NULL DEFAULT '',
		window_title     TEXT NOT NULL DEFAULT '',
		url              TEXT,
		extra_info       TEXT,
		duration_seconds INTEGER NOT NULL DEFAULT 0,
		date             TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS dismissed_suggestions (
		key          TEXT PRIMARY KEY,
		dismissed_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now'))
	);

	CREATE TABLE IF NOT EXISTS settings (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	INSERT OR IGNORE INTO settings (key, value) VALUES
		('daily_goal', '28800'),
		('week_start', 'monday');
	`
	_, err := s.db.Exec(ddl)
	return err
}

var taxonomyTables = []string{"brands", "projects", "project_rules"}

// ensureTaxonomyVersion installs a counter that triggers bump on every write
// to the taxonomy tables, whichever process commits it.
func (s *Store) ensureTaxonomyVersion() error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS taxonomy_version (
			id    INTEGER PRIMARY KEY CHECK (id = 1),
			value INTEGER NOT NULL
		);
		INSERT OR IGNORE INTO taxonomy_version (id, value) VALUES (1, 0);
	`); err != nil {
		return err
	}
	for _, table := range taxonomyTables {
		for _, op := range []string{"INSERT", "UPDATE", "DELETE"} {
			ddl := fmt.Sprintf(`CREATE TRIGGER IF NOT EXISTS bump_taxonomy_%s_%s AFTER %s ON %s
				BEGIN UPDATE taxonomy_version SET value = value + 1 WHERE id = 1; END`,
				table, strings.ToLower(op), op, table)
			if _, err := s.db.Exec(ddl); err != nil {
				return err
			}
		}
	}
	return nil
}

// TaxonomyVersion returns a counter that grows with every brand, project or
// rule change, including changes committed by other processes. While nothing
// has been committed elsewhere it is answered from PRAGMA data_version alone.
func (s *Store) TaxonomyVersion() (int64, error) {
	s.versionMu.Lock()
	defer s.versionMu.Unlock()

	var dv int64
	if err := s.db.QueryRow("PRAGMA data_version").Scan(&dv); err != nil {
		return 0, fmt.Errorf("read data_version: %w", err)
	}
	if s.versionKnown && dv == s.dataVersion {
		return s.taxonomyVersion, nil
	}

	var v int64
	if err := s.db.QueryRow(`SELECT value FROM taxonomy_version WHERE id = 1`).Scan(&v); err != nil {
		return 0, fmt.Errorf("read taxonomy version: %w", err)
	}
	s.versionKnown, s.dataVersion, s.taxonomyVersion = true, dv, v
	return v, nil
}

func (s *Store) addColumnIfNotExists(tableName, columnName, definition string) error {
	rows, err := s.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return err
	}

	found := false
	for rows.Next() {
		var cid int
		var name, typ string
		var notNull int
		var defaultValue any
		var pk int
		if err := rows.Scan(&cid, &name, &typ, &notNull, &defaultValue, &pk); err != nil {
			rows.Close()
			return err
		}
		if name == columnName {
			found = true
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()
	if found {
		return nil
	}

	_, err = s.db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", tableName, columnName, definition))
	return err
}

// DefaultDBPath returns ~/.config/autotrackr/autotrackr.db
func DefaultDBPath() (string, error) {
	cfg, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cfg, "autotrackr", "autotrackr.db"), nil
}
