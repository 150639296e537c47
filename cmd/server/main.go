// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/obrien-tchaleu/ludo-server/internal/config"
	"github.com/obrien-tchaleu/ludo-server/internal/logger"
	"github.com/obrien-tchaleu/ludo-server/internal/server/board"
	"github.com/obrien-tchaleu/ludo-server/internal/server/metrics"
	"github.com/obrien-tchaleu/ludo-server/internal/server/room"
	"github.com/obrien-tchaleu/ludo-server/internal/server/session"
	"github.com/obrien-tchaleu/ludo-server/internal/server/transport"
	"github.com/obrien-tchaleu/ludo-server/pkg/database"
	"github.com/obrien-tchaleu/ludo-server/pkg/database/sqlite"
)

func main() {
	configPath := flag.String("config", "configs/server.yaml", "path to the YAML configuration")
	flag.Parse()

	// Charger la configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zl, err := logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, zl); err != nil {
		zl.Fatal("server stopped with error", zap.Error(err))
	}
}

func run(cfg *config.Config, zl *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connexion à la base de données
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	var (
		recorder room.Recorder
		stats    transport.StatsReader
	)
	if store != nil {
		defer store.Close()
		recorder = store
		stats = store
		zl.Info("connected to database", zap.String("driver", store.Dialect()))
	} else {
		zl.Warn("no database configured, finished games are not recorded")
	}

	rules, err := board.ParseRuleset(cfg.Game.Rules)
	if err != nil {
		return err
	}

	m := metrics.New()
	hub := transport.NewHub(m, zl.Named("hub"))

	rooms := room.NewManager(room.Settings{
		Rules:         rules,
		AILevel:       cfg.Game.AILevel,
		NoMoveDelay:   cfg.Game.NoMoveDelay,
		AIRollDelay:   cfg.Game.AIRollDelay,
		AIMoveDelay:   cfg.Game.AIMoveDelay,
		TurnTimeout:   cfg.Game.TurnTimeout,
		RecordTimeout: cfg.Game.RecordTimeout,
	}, room.Deps{
		Notifier: hub,
		Recorder: recorder,
		Observer: m,
		Logger:   zl.Named("rooms"),
	})

	router := session.NewRouter(rooms, hub, zl.Named("session"))

	gin.SetMode(gin.ReleaseMode)
	engine := transport.NewRouter(transport.Options{
		Hub:            hub,
		Handler:        router,
		Lobby:          rooms,
		Stats:          stats,
		Auth:           transport.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer),
		Metrics:        m.Handler(),
		Logger:         zl.Named("http"),
		AllowedOrigin:  cfg.Server.AllowedOrigin,
		MaxConnections: cfg.Server.MaxConnections,
		MaxMessageSize: cfg.Server.MaxMessageSize,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zl.Info("ludo server started",
			zap.String("addr", srv.Addr),
			zap.String("rules", string(rules)),
			zap.Bool("auth", cfg.Auth.JWTSecret != ""),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		zl.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zl.Warn("http shutdown", zap.Error(err))
	}

	hub.CloseAll()
	rooms.Close()
	return nil
}

// openStore ouvre le backend de persistance configuré, nil si aucun
func openStore(ctx context.Context, cfg *config.Config) (*database.DB, error) {
	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	switch cfg.Database.Driver {
	case config.StoreSQLite:
		return sqlite.Open(openCtx, cfg.Database.Path)
	case config.StoreMySQL:
		return database.NewDB(openCtx,
			cfg.Database.Host,
			cfg.Database.Port,
			cfg.Database.Username,
			cfg.Database.Password,
			cfg.Database.Database,
		)
	default:
		return nil, nil
	}
}
