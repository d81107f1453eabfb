// Package store persists accounts, player state, settings, terrain chunks
// and the gameplay event log in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"planetfall-server/internal/player"
)

// Store wraps the SQLite database connection
type Store struct {
	Logger zerolog.Logger
	conn   *sql.DB
}

// PlayerRow is an account plus its persisted game state
type PlayerRow struct {
	player.Record
	PassHash  string
	CreatedAt time.Time
}

// Open opens (or creates) the SQLite database at path and applies the schema
func Open(path string, logger zerolog.Logger) (*Store, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}

	// WAL lets session goroutines read while the tick saves
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enabling WAL: %w", err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &Store{
		Logger: logger.With().Str("component", "store").Logger(),
		conn:   conn,
	}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.conn.Close()
}

// Ping checks the connection
func (s *Store) Ping(ctx context.Context) error {
	return s.conn.PingContext(ctx)
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS players (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		pass_hash TEXT NOT NULL DEFAULT '',
		x REAL NOT NULL DEFAULT 0,
		y REAL NOT NULL DEFAULT 0,
		health REAL NOT NULL DEFAULT 100,
		coins INTEGER NOT NULL DEFAULT 0,
		space_x REAL NOT NULL DEFAULT 0,
		space_y REAL NOT NULL DEFAULT 0,
		space_angle REAL NOT NULL DEFAULT 0,
		last_planet TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS chunks (
		planet TEXT NOT NULL,
		cx INTEGER NOT NULL,
		cy INTEGER NOT NULL,
		data BLOB NOT NULL,
		PRIMARY KEY (planet, cx, cy)
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		kind TEXT NOT NULL,
		player_id INTEGER,
		session_id TEXT,
		data TEXT,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_events_kind ON events(kind);
	CREATE INDEX IF NOT EXISTS idx_events_created ON events(created_at);
	`
	if _, err := s.conn.Exec(schema); err != nil {
		s.Logger.Error().Err(err).Msg("migration failed")
		return fmt.Errorf("migrating schema: %w", err)
	}
	return nil
}

const playerColumns = `id, username, pass_hash, x, y, health, coins,
	space_x, space_y, space_angle, last_planet, created_at`

// CreatePlayer creates a new account and returns its id
func (s *Store) CreatePlayer(ctx context.Context, username, passHash string) (int64, error) {
	res, err := s.conn.ExecContext(ctx,
		"INSERT INTO players (username, pass_hash, health) VALUES (?, ?, ?)",
		username, passHash, player.StartingHealth,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting player %q: %w", username, err)
	}
	return res.LastInsertId()
}

// GetPlayerByUsername returns the account, or nil if there is none
func (s *Store) GetPlayerByUsername(ctx context.Context, username string) (*PlayerRow, error) {
	row := s.conn.QueryRowContext(ctx,
		"SELECT "+playerColumns+" FROM players WHERE username = ?", username)
	return scanPlayer(row)
}

// GetPlayerByID returns the account, or nil if there is none
func (s *Store) GetPlayerByID(ctx context.Context, id int64) (*PlayerRow, error) {
	row := s.conn.QueryRowContext(ctx,
		"SELECT "+playerColumns+" FROM players WHERE id = ?", id)
	return scanPlayer(row)
}

func scanPlayer(row *sql.Row) (*PlayerRow, error) {
	p := &PlayerRow{}
	err := row.Scan(&p.ID, &p.Username, &p.PassHash, &p.X, &p.Y, &p.Health, &p.Coins,
		&p.SpaceX, &p.SpaceY, &p.SpaceAngle, &p.LastPlanet, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning player: %w", err)
	}
	return p, nil
}

// UsernameExists checks if a username is taken
func (s *Store) UsernameExists(ctx context.Context, username string) (bool, error) {
	var count int
	err := s.conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM players WHERE username = ?", username).Scan(&count)
	return count > 0, err
}

// SavePlayer writes the mutable state of a player
func (s *Store) SavePlayer(ctx context.Context, r player.Record) error {
	res, err := s.conn.ExecContext(ctx, `
		UPDATE players SET
			x = ?, y = ?, health = ?, coins = ?,
			space_x = ?, space_y = ?, space_angle = ?, last_planet = ?
		WHERE id = ?`,
		r.X, r.Y, r.Health, r.Coins, r.SpaceX, r.SpaceY, r.SpaceAngle, r.LastPlanet, r.ID,
	)
	if err != nil {
		return fmt.Errorf("saving player %d: %w", r.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("saving player %d: no such player", r.ID)
	}
	return nil
}

// GetSetting returns a stored setting, or "" if unset
func (s *Store) GetSetting(key string) string {
	var v string
	err := s.conn.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&v)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		s.Logger.Warn().Err(err).Str("key", key).Msg("reading setting")
	}
	return v
}

// SetSetting stores a setting, replacing any previous value
func (s *Store) SetSetting(key, value string) error {
	_, err := s.conn.Exec(
		"INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	return err
}

// LoadChunk returns the stored blob of a chunk
func (s *Store) LoadChunk(ctx context.Context, planet string, cx, cy int) ([]byte, bool, error) {
	var data []byte
	err := s.conn.QueryRowContext(ctx,
		"SELECT data FROM chunks WHERE planet = ? AND cx = ? AND cy = ?", planet, cx, cy).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("loading chunk %s/%d,%d: %w", planet, cx, cy, err)
	}
	return data, true, nil
}

// SaveChunk stores the blob of a chunk
func (s *Store) SaveChunk(ctx context.Context, planet string, cx, cy int, blob []byte) error {
	_, err := s.conn.ExecContext(ctx,
		"INSERT OR REPLACE INTO chunks (planet, cx, cy, data) VALUES (?, ?, ?, ?)",
		planet, cx, cy, blob,
	)
	if err != nil {
		return fmt.Errorf("saving chunk %s/%d,%d: %w", planet, cx, cy, err)
	}
	return nil
}
