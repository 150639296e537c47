// internal/server/transport/http.go
package transport

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/obrien-tchaleu/ludo-server/internal/server/session"
	"github.com/obrien-tchaleu/ludo-server/internal/shared/constants"
	"github.com/obrien-tchaleu/ludo-server/internal/shared/models"
	"github.com/obrien-tchaleu/ludo-server/pkg/database"
)

// Lobby expose la liste publique des salles
type Lobby interface {
	ListRooms() []models.PublicRoom
	GetRoomCount() int
}

// StatsReader lit les statistiques archivées
type StatsReader interface {
	GetLeaderboard(ctx context.Context, limit int) ([]*models.PlayerStats, error)
	GetPlayerStats(ctx context.Context, userID int64) (*models.PlayerStats, error)
	GetPlayerHistory(ctx context.Context, userID int64, limit int) ([]*models.HistoryEntry, error)
}

// Options regroupe les dépendances du serveur HTTP
type Options struct {
	Hub            *Hub
	Handler        Handler
	Lobby          Lobby
	Stats          StatsReader
	Auth           *Authenticator
	Metrics        http.Handler
	Logger         *zap.Logger
	AllowedOrigin  string
	MaxConnections int
	MaxMessageSize int64
	NewConnID      func() string
}

// NewRouter construit le moteur gin du serveur
func NewRouter(opts Options) *gin.Engine {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.NewConnID == nil {
		opts.NewConnID = uuid.NewString
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = constants.DefaultMaxMessageSize
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(opts.Logger))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "ok",
			"rooms":       opts.Lobby.GetRoomCount(),
			"connections": opts.Hub.Count(),
		})
	})

	r.GET("/ws", wsHandler(opts))

	api := r.Group("/api")
	api.GET("/rooms", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"rooms": opts.Lobby.ListRooms()})
	})
	api.GET("/leaderboard", leaderboardHandler(opts.Stats))
	api.GET("/players/:id/stats", playerStatsHandler(opts.Stats))
	api.GET("/players/:id/history", playerHistoryHandler(opts.Stats))

	if opts.Metrics != nil {
		r.GET("/metrics", gin.WrapH(opts.Metrics))
	}
	return r
}

// wsHandler authentifie puis promeut la connexion en websocket
func wsHandler(opts Options) gin.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if opts.AllowedOrigin == "" {
				return true
			}
			return r.Header.Get("Origin") == opts.AllowedOrigin
		},
	}

	return func(c *gin.Context) {
		if opts.MaxConnections > 0 && opts.Hub.Count() >= opts.MaxConnections {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "server full"})
			return
		}

		s := &session.Session{ConnID: opts.NewConnID()}
		if opts.Auth.Enabled() {
			userID, username, err := opts.Auth.Parse(c.Query("token"))
			if err != nil {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
				return
			}
			s.UserID = userID
			s.Username = username
			s.Authenticated = true
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			opts.Logger.Warn("ws upgrade error", zap.Error(err))
			return
		}

		client := newClient(conn, s, opts.Hub, opts.Logger)
		client.run(opts.Handler, opts.MaxMessageSize)
	}
}

func leaderboardHandler(stats StatsReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		if stats == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "stats unavailable"})
			return
		}

		limit := 10
		if raw := c.Query("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed <= 0 || parsed > 100 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 100"})
				return
			}
			limit = parsed
		}

		board, err := stats.GetLeaderboard(c.Request.Context(), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load leaderboard"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"leaderboard": board})
	}
}

func playerStatsHandler(stats StatsReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		if stats == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "stats unavailable"})
			return
		}

		userID, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil || userID <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid player id"})
			return
		}

		s, err := stats.GetPlayerStats(c.Request.Context(), userID)
		if errors.Is(err, database.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "player not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load stats"})
			return
		}
		c.JSON(http.StatusOK, s)
	}
}

// playerHistoryHandler renvoie les dernières parties d'un joueur
func playerHistoryHandler(stats StatsReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		if stats == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "stats unavailable"})
			return
		}

		userID, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil || userID <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid player id"})
			return
		}

		limit := database.HistoryLimit
		if raw := c.Query("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed <= 0 || parsed > database.HistoryLimit {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 50"})
				return
			}
			limit = parsed
		}

		history, err := stats.GetPlayerHistory(c.Request.Context(), userID, limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load history"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"user_id": userID, "games": history})
	}
}

// requestLogger journalise les requêtes HTTP hors websocket
func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if c.FullPath() == "/ws" {
			return
		}
		log.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
