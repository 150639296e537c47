// pkg/database/database.go
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/obrien-tchaleu/ludo-server/internal/shared/models"
)

// ErrNotFound est retourné quand un joueur n'a pas de statistiques
var ErrNotFound = errors.New("player stats not found")

// Dialect regroupe ce qui diffère d'un moteur SQL à l'autre
type Dialect struct {
	Name        string
	Schema      []string
	UpsertStats string
}

// MySQL est le dialecte du serveur MySQL
var MySQL = Dialect{
	Name: "mysql",
	Schema: []string{
		`CREATE TABLE IF NOT EXISTS game_history (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			room_id VARCHAR(64) NOT NULL,
			room_name VARCHAR(100) NOT NULL,
			num_players INT NOT NULL,
			winner_id BIGINT NULL,
			duration_seconds INT NOT NULL,
			started_at DATETIME NOT NULL,
			ended_at DATETIME NOT NULL,
			INDEX idx_game_history_room (room_id)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		`CREATE TABLE IF NOT EXISTS game_participants (
			game_id BIGINT NOT NULL,
			user_id BIGINT NOT NULL,
			username VARCHAR(50) NOT NULL,
			player_position INT NOT NULL,
			color VARCHAR(10) NOT NULL,
			is_scripted BOOLEAN NOT NULL,
			moves_made INT NOT NULL,
			is_winner BOOLEAN NOT NULL,
			PRIMARY KEY (game_id, player_position),
			INDEX idx_game_participants_user (user_id),
			FOREIGN KEY (game_id) REFERENCES game_history(id) ON DELETE CASCADE
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		`CREATE TABLE IF NOT EXISTS player_stats (
			user_id BIGINT PRIMARY KEY,
			games_played INT NOT NULL DEFAULT 0,
			games_won INT NOT NULL DEFAULT 0,
			total_moves INT NOT NULL DEFAULT 0
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	},
	UpsertStats: `INSERT INTO player_stats (user_id, games_played, games_won, total_moves)
	              VALUES (?, 1, ?, ?)
	              ON DUPLICATE KEY UPDATE
	              games_played = games_played + 1,
	              games_won = games_won + VALUES(games_won),
	              total_moves = total_moves + VALUES(total_moves)`,
}

// DB archive les parties et les statistiques
type DB struct {
	conn    *sql.DB
	dialect Dialect
}

// New enveloppe une connexion déjà ouverte
func New(conn *sql.DB, dialect Dialect) *DB {
	return &DB{conn: conn, dialect: dialect}
}

// NewDB crée une nouvelle connexion à la base MySQL
func NewDB(ctx context.Context, host, port, user, password, dbname string) (*DB, error) {
	cfg := mysql.NewConfig()
	cfg.User = user
	cfg.Passwd = password
	cfg.Net = "tcp"
	cfg.Addr = host + ":" + port
	cfg.DBName = dbname
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	cfg.Params = map[string]string{"charset": "utf8mb4"}

	return OpenMySQL(ctx, cfg.FormatDSN())
}

// OpenMySQL ouvre une base MySQL depuis un DSN et applique le schéma
func OpenMySQL(ctx context.Context, dsn string) (*DB, error) {
	conn, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configuration du pool de connexions
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	// Test de connexion
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := New(conn, MySQL)
	if err := db.Migrate(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return db, nil
}

// Dialect retourne le nom du moteur
func (db *DB) Dialect() string {
	return db.dialect.Name
}

// Migrate crée les tables manquantes
func (db *DB) Migrate(ctx context.Context) error {
	for _, stmt := range db.dialect.Schema {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// Close ferme la connexion
func (db *DB) Close() error {
	if db == nil || db.conn == nil {
		return nil
	}
	return db.conn.Close()
}

// SaveGame enregistre une partie terminée et tous ses participants
func (db *DB) SaveGame(ctx context.Context, rec *models.GameRecord) error {
	if rec == nil {
		return fmt.Errorf("game record is nil")
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	finishedAt := rec.FinishedAt
	if finishedAt.IsZero() {
		finishedAt = time.Now()
	}
	startedAt := rec.StartedAt
	if startedAt.IsZero() {
		startedAt = finishedAt
	}
	duration := int(finishedAt.Sub(startedAt).Seconds())

	var winnerID sql.NullInt64
	if rec.WinnerID != 0 {
		winnerID = sql.NullInt64{Int64: rec.WinnerID, Valid: true}
	}

	result, err := tx.ExecContext(ctx,
		`INSERT INTO game_history
		 (room_id, room_name, num_players, winner_id, duration_seconds, started_at, ended_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.RoomID, rec.RoomName, len(rec.Participants), winnerID, duration,
		startedAt.UTC(), finishedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save game: %w", err)
	}

	gameID, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get game id: %w", err)
	}

	for i, p := range rec.Participants {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO game_participants
			 (game_id, user_id, username, player_position, color, is_scripted, moves_made, is_winner)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			gameID, p.ID, p.Name, i, string(p.Color), p.IsScripted, p.MovesMade,
			!p.IsScripted && p.ID == rec.WinnerID,
		)
		if err != nil {
			return fmt.Errorf("failed to save participant %d: %w", i, err)
		}
	}

	return tx.Commit()
}

// UpdatePlayerStats met à jour les statistiques après une partie
func (db *DB) UpdatePlayerStats(ctx context.Context, userID int64, won bool, moves int) error {
	wonInt := 0
	if won {
		wonInt = 1
	}
	if _, err := db.conn.ExecContext(ctx, db.dialect.UpsertStats, userID, wonInt, moves); err != nil {
		return fmt.Errorf("failed to update stats for user %d: %w", userID, err)
	}
	return nil
}

const statsColumns = `ps.user_id,
	COALESCE((SELECT gp.username FROM game_participants gp
	          WHERE gp.user_id = ps.user_id
	          ORDER BY gp.game_id DESC LIMIT 1), ''),
	ps.games_played, ps.games_won, ps.total_moves`

// GetPlayerStats récupère les statistiques d'un joueur
func (db *DB) GetPlayerStats(ctx context.Context, userID int64) (*models.PlayerStats, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+statsColumns+` FROM player_stats ps WHERE ps.user_id = ?`, userID)

	stats, err := scanStats(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}
	return stats, nil
}

// GetLeaderboard récupère le classement
func (db *DB) GetLeaderboard(ctx context.Context, limit int) ([]*models.PlayerStats, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+statsColumns+` FROM player_stats ps
		 ORDER BY ps.games_won DESC, ps.games_played ASC, ps.user_id ASC
		 LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard: %w", err)
	}
	defer rows.Close()

	board := make([]*models.PlayerStats, 0, limit)
	for rows.Next() {
		stats, err := scanStats(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard: %w", err)
		}
		board = append(board, stats)
	}
	return board, rows.Err()
}

// HistoryLimit est le nombre de parties retournées par défaut
const HistoryLimit = 50

// GetPlayerHistory liste les dernières parties d'un joueur, la plus récente d'abord
func (db *DB) GetPlayerHistory(ctx context.Context, userID int64, limit int) ([]*models.HistoryEntry, error) {
	if limit <= 0 || limit > HistoryLimit {
		limit = HistoryLimit
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT gh.id, gh.room_id, gh.room_name, gh.num_players, gp.color,
		        gp.moves_made, gp.is_winner, gh.duration_seconds, gh.ended_at
		 FROM game_participants gp
		 JOIN game_history gh ON gh.id = gp.game_id
		 WHERE gp.user_id = ? AND gp.is_scripted = ?
		 ORDER BY gh.ended_at DESC, gh.id DESC
		 LIMIT ?`, userID, false, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	history := make([]*models.HistoryEntry, 0, limit)
	for rows.Next() {
		entry := &models.HistoryEntry{Result: models.ResultLost}
		var won bool
		if err := rows.Scan(&entry.GameID, &entry.RoomID, &entry.RoomName, &entry.NumPlayers,
			&entry.Color, &entry.MovesMade, &won, &entry.DurationSeconds, &entry.EndedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		if won {
			entry.Result = models.ResultWon
		}
		history = append(history, entry)
	}
	return history, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanStats(s scanner) (*models.PlayerStats, error) {
	stats := &models.PlayerStats{}
	if err := s.Scan(&stats.UserID, &stats.Username, &stats.GamesPlayed, &stats.GamesWon, &stats.TotalMoves); err != nil {
		return nil, err
	}
	if stats.GamesPlayed > 0 {
		stats.WinRate = float64(stats.GamesWon) * 100 / float64(stats.GamesPlayed)
	}
	return stats, nil
}
