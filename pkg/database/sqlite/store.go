// pkg/database/sqlite/store.go
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/obrien-tchaleu/ludo-server/pkg/database"
)

// Dialect est le dialecte SQLite embarqué
var Dialect = database.Dialect{
	Name: "sqlite",
	Schema: []string{
		`CREATE TABLE IF NOT EXISTS game_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			room_id TEXT NOT NULL,
			room_name TEXT NOT NULL,
			num_players INTEGER NOT NULL,
			winner_id INTEGER,
			duration_seconds INTEGER NOT NULL,
			started_at TIMESTAMP NOT NULL,
			ended_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_game_history_room ON game_history (room_id)`,
		`CREATE TABLE IF NOT EXISTS game_participants (
			game_id INTEGER NOT NULL REFERENCES game_history(id) ON DELETE CASCADE,
			user_id INTEGER NOT NULL,
			username TEXT NOT NULL,
			player_position INTEGER NOT NULL,
			color TEXT NOT NULL,
			is_scripted BOOLEAN NOT NULL,
			moves_made INTEGER NOT NULL,
			is_winner BOOLEAN NOT NULL,
			PRIMARY KEY (game_id, player_position)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_game_participants_user ON game_participants (user_id)`,
		`CREATE TABLE IF NOT EXISTS player_stats (
			user_id INTEGER PRIMARY KEY,
			games_played INTEGER NOT NULL DEFAULT 0,
			games_won INTEGER NOT NULL DEFAULT 0,
			total_moves INTEGER NOT NULL DEFAULT 0
		)`,
	},
	UpsertStats: `INSERT INTO player_stats (user_id, games_played, games_won, total_moves)
	              VALUES (?, 1, ?, ?)
	              ON CONFLICT(user_id) DO UPDATE SET
	              games_played = games_played + 1,
	              games_won = games_won + excluded.games_won,
	              total_moves = total_moves + excluded.total_moves`,
}

// Open ouvre la base SQLite et applique le schéma
func Open(ctx context.Context, path string) (*database.DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	if dir := filepath.Dir(cleanPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}

	dsn := "file:" + cleanPath +
		"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	conn.SetMaxOpenConns(1)

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	db := database.New(conn, Dialect)
	if err := db.Migrate(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return db, nil
}
