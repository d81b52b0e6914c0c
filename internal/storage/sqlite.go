package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/user/storyweave/internal/interfaces"
	"github.com/user/storyweave/internal/types"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

const migrationTable = "schema_migrations"

// SQLiteStore keeps players in SQLite: one row per player plus attribute
// and progress tables, with per-story session data stored as JSON
type SQLiteStore struct {
	db *sql.DB
}

var _ interfaces.PlayerStore = (*SQLiteStore)(nil)

// sessionData is the part of PlayerState without its own table
type sessionData struct {
	Turns    map[string]int               `json:"turns"`
	Pending  []types.PendingConsequence   `json:"pending"`
	World    map[string]map[string]string `json:"world"`
	Journeys map[string]*types.Journey    `json:"journeys"`
}

// OpenSQLite opens the database and applies pending migrations
func OpenSQLite(dsn string) (*SQLiteStore, error) {
	if !strings.Contains(dsn, "?") {
		dsn += "?_foreign_keys=on&_busy_timeout=5000"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := ApplyMigrations(db, migrationFS, "migrations"); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Load reads a player and its attribute and progress rows
func (s *SQLiteStore) Load(ctx context.Context, playerID string) (*types.PlayerState, error) {
	var (
		player     types.PlayerState
		created    int64
		active     int64
		expires    sql.NullInt64
		tier       string
		rawSession string
	)
	row := s.db.QueryRowContext(ctx, `
SELECT id, name, created_at, last_active_at, subscription_tier, subscription_expires_at, version, session
FROM players WHERE id = ?`, playerID)
	err := row.Scan(&player.ID, &player.Name, &created, &active, &tier, &expires, &player.Version, &rawSession)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPlayerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load player: %w", err)
	}

	player.CreatedAt = time.UnixMilli(created).UTC()
	player.LastActiveAt = time.UnixMilli(active).UTC()
	player.SubscriptionTier = types.SubscriptionTier(tier)
	if expires.Valid {
		t := time.UnixMilli(expires.Int64).UTC()
		player.SubscriptionExpiresAt = &t
	}

	var session sessionData
	if err := json.Unmarshal([]byte(rawSession), &session); err != nil {
		return nil, fmt.Errorf("decode player session: %w", err)
	}
	player.Turns = session.Turns
	player.Pending = session.Pending
	player.World = session.World
	player.Journeys = session.Journeys
	player.EnsureMaps()

	if err := s.loadAttributes(ctx, &player); err != nil {
		return nil, err
	}
	if err := s.loadProgress(ctx, &player); err != nil {
		return nil, err
	}
	return &player, nil
}

func (s *SQLiteStore) loadAttributes(ctx context.Context, player *types.PlayerState) error {
	rows, err := s.db.QueryContext(ctx, `SELECT name, value FROM player_attributes WHERE player_id = ?`, player.ID)
	if err != nil {
		return fmt.Errorf("load attributes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		var value int
		if err := rows.Scan(&name, &value); err != nil {
			return fmt.Errorf("scan attribute: %w", err)
		}
		player.Attributes[name] = value
	}
	return rows.Err()
}

func (s *SQLiteStore) loadProgress(ctx context.Context, player *types.PlayerState) error {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM player_progress WHERE player_id = ?`, player.ID)
	if err != nil {
		return fmt.Errorf("load progress: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return fmt.Errorf("scan progress: %w", err)
		}
		player.Progress[key] = value
	}
	return rows.Err()
}

// Save writes the player in one transaction, guarded by the version column
func (s *SQLiteStore) Save(ctx context.Context, player *types.PlayerState) error {
	session, err := json.Marshal(sessionData{
		Turns:    player.Turns,
		Pending:  player.Pending,
		World:    player.World,
		Journeys: player.Journeys,
	})
	if err != nil {
		return fmt.Errorf("encode player session: %w", err)
	}
	var expires sql.NullInt64
	if player.SubscriptionExpiresAt != nil {
		expires = sql.NullInt64{Int64: player.SubscriptionExpiresAt.UnixMilli(), Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback()

	var res sql.Result
	if player.Version == 0 {
		res, err = tx.ExecContext(ctx, `
INSERT INTO players (id, name, created_at, last_active_at, subscription_tier, subscription_expires_at, version, session)
VALUES (?, ?, ?, ?, ?, ?, 1, ?)
ON CONFLICT(id) DO NOTHING`,
			player.ID, player.Name, player.CreatedAt.UnixMilli(), player.LastActiveAt.UnixMilli(),
			string(player.SubscriptionTier), expires, string(session))
	} else {
		res, err = tx.ExecContext(ctx, `
UPDATE players SET name = ?, last_active_at = ?, subscription_tier = ?, subscription_expires_at = ?,
	session = ?, version = version + 1
WHERE id = ? AND version = ?`,
			player.Name, player.LastActiveAt.UnixMilli(), string(player.SubscriptionTier), expires,
			string(session), player.ID, player.Version)
	}
	if err != nil {
		return fmt.Errorf("save player: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("save player: %w", err)
	} else if n == 0 {
		return ErrVersionConflict
	}

	if err := replaceAttributes(ctx, tx, player); err != nil {
		return err
	}
	if err := replaceProgress(ctx, tx, player); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit player: %w", err)
	}

	player.Version++
	return nil
}

func replaceAttributes(ctx context.Context, tx *sql.Tx, player *types.PlayerState) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM player_attributes WHERE player_id = ?`, player.ID); err != nil {
		return fmt.Errorf("clear attributes: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO player_attributes (player_id, name, value) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare attributes: %w", err)
	}
	defer stmt.Close()
	for name, value := range player.Attributes {
		if _, err := stmt.ExecContext(ctx, player.ID, name, value); err != nil {
			return fmt.Errorf("save attribute %s: %w", name, err)
		}
	}
	return nil
}

func replaceProgress(ctx context.Context, tx *sql.Tx, player *types.PlayerState) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM player_progress WHERE player_id = ?`, player.ID); err != nil {
		return fmt.Errorf("clear progress: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO player_progress (player_id, key, value) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare progress: %w", err)
	}
	defer stmt.Close()
	for key, value := range player.Progress {
		if _, err := stmt.ExecContext(ctx, player.ID, key, value); err != nil {
			return fmt.Errorf("save progress %s: %w", key, err)
		}
	}
	return nil
}

// Delete removes the player and, through cascades, its rows
func (s *SQLiteStore) Delete(ctx context.Context, playerID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM players WHERE id = ?`, playerID)
	if err != nil {
		return fmt.Errorf("delete player: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrPlayerNotFound
	}
	return nil
}

// ApplyMigrations executes embedded migrations from root at most once per file
func ApplyMigrations(db *sql.DB, migrations fs.FS, root string) error {
	entries, err := fs.ReadDir(migrations, root)
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS ` + migrationTable + ` (
    name TEXT PRIMARY KEY,
    applied_at INTEGER NOT NULL
)`); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	for _, file := range files {
		var found int
		err := db.QueryRow(`SELECT 1 FROM `+migrationTable+` WHERE name = ?`, file).Scan(&found)
		if err == nil {
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("check migration %s: %w", file, err)
		}

		content, err := fs.ReadFile(migrations, root+"/"+file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}
		up := upMigration(string(content))
		if strings.TrimSpace(up) == "" {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %s: %w", file, err)
		}
		if _, err := tx.Exec(up); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("exec migration %s: %w", file, err)
		}
		if _, err := tx.Exec(`INSERT INTO `+migrationTable+` (name, applied_at) VALUES (?, ?)`,
			file, time.Now().UTC().UnixMilli()); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", file, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", file, err)
		}
	}
	return nil
}

// upMigration returns the SQL in the "-- +migrate Up" section
func upMigration(content string) string {
	_, up, ok := strings.Cut(content, "-- +migrate Up")
	if !ok {
		return content
	}
	up, _, _ = strings.Cut(up, "-- +migrate Down")
	return up
}
