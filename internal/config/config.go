// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/obrien-tchaleu/ludo-server/internal/server/board"
	"github.com/obrien-tchaleu/ludo-server/internal/shared/constants"
	"github.com/obrien-tchaleu/ludo-server/pkg/ai"
)

// Backends de persistance
const (
	StoreNone   = "none"
	StoreSQLite = "sqlite"
	StoreMySQL  = "mysql"
)

// Config représente la configuration du serveur
type Config struct {
	Server   ServerConfig   `yaml:"server" envPrefix:"SERVER_"`
	Database DatabaseConfig `yaml:"database" envPrefix:"DATABASE_"`
	Game     GameConfig     `yaml:"game" envPrefix:"GAME_"`
	Logging  LoggingConfig  `yaml:"logging" envPrefix:"LOG_"`
	Auth     AuthConfig     `yaml:"auth" envPrefix:"AUTH_"`
}

type ServerConfig struct {
	Host            string        `yaml:"host" env:"HOST"`
	Port            string        `yaml:"port" env:"PORT"`
	AllowedOrigin   string        `yaml:"allowed_origin" env:"ALLOWED_ORIGIN"`
	MaxConnections  int           `yaml:"max_connections" env:"MAX_CONNECTIONS"`
	MaxMessageSize  int64         `yaml:"max_message_size" env:"MAX_MESSAGE_SIZE"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

type DatabaseConfig struct {
	Driver   string `yaml:"driver" env:"DRIVER"`
	Path     string `yaml:"path" env:"PATH"`
	Host     string `yaml:"host" env:"HOST"`
	Port     string `yaml:"port" env:"PORT"`
	Username string `yaml:"username" env:"USERNAME"`
	Password string `yaml:"password" env:"PASSWORD"`
	Database string `yaml:"database" env:"NAME"`
}

type GameConfig struct {
	Rules         string        `yaml:"rules" env:"RULES"`
	AILevel       string        `yaml:"ai_level" env:"AI_LEVEL"`
	TurnTimeout   time.Duration `yaml:"turn_timeout" env:"TURN_TIMEOUT"`
	NoMoveDelay   time.Duration `yaml:"no_move_delay" env:"NO_MOVE_DELAY"`
	AIRollDelay   time.Duration `yaml:"ai_roll_delay" env:"AI_ROLL_DELAY"`
	AIMoveDelay   time.Duration `yaml:"ai_move_delay" env:"AI_MOVE_DELAY"`
	RecordTimeout time.Duration `yaml:"record_timeout" env:"RECORD_TIMEOUT"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" env:"JWT_SECRET"`
	Issuer    string `yaml:"issuer" env:"ISSUER"`
}

// Default retourne la configuration par défaut
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            constants.DefaultServerPort,
			MaxConnections:  1000,
			MaxMessageSize:  constants.DefaultMaxMessageSize,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Driver: StoreSQLite,
			Path:   "data/ludo.db",
			Host:   "localhost",
			Port:   "3306",
		},
		Game: GameConfig{
			Rules:         string(board.RulesHomeStretch),
			AILevel:       ai.LevelEasy,
			TurnTimeout:   constants.DefaultTurnTimeout,
			NoMoveDelay:   constants.DefaultNoMoveDelay,
			AIRollDelay:   constants.DefaultAIRollDelay,
			AIMoveDelay:   constants.DefaultAIMoveDelay,
			RecordTimeout: constants.DefaultRecordTimeout,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load charge la configuration : valeurs par défaut, fichier YAML optionnel,
// fichier .env puis variables LUDO_*
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: "LUDO_"}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFile charge la configuration depuis un fichier YAML
func loadFile(path string, cfg *Config) error {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil {
		return fmt.Errorf("failed to decode config: %w", err)
	}
	return nil
}

// Validate rejette les valeurs impossibles
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server.Port) == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.MaxConnections < 0 {
		return fmt.Errorf("max connections cannot be negative")
	}
	if c.Server.MaxMessageSize <= 0 {
		return fmt.Errorf("max message size must be positive")
	}

	switch c.Database.Driver {
	case StoreNone, StoreSQLite, StoreMySQL:
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	if c.Database.Driver == StoreSQLite && strings.TrimSpace(c.Database.Path) == "" {
		return fmt.Errorf("sqlite path is required")
	}
	if c.Database.Driver == StoreMySQL && strings.TrimSpace(c.Database.Database) == "" {
		return fmt.Errorf("mysql database name is required")
	}

	if _, err := board.ParseRuleset(c.Game.Rules); err != nil {
		return err
	}
	if !ai.ValidLevel(c.Game.AILevel) {
		return fmt.Errorf("unknown ai level %q", c.Game.AILevel)
	}
	if c.Game.TurnTimeout < 0 {
		return fmt.Errorf("turn timeout cannot be negative")
	}
	if c.Game.NoMoveDelay < 0 || c.Game.AIRollDelay < 0 || c.Game.AIMoveDelay < 0 {
		return fmt.Errorf("game delays cannot be negative")
	}
	if c.Game.RecordTimeout <= 0 {
		return fmt.Errorf("record timeout must be positive")
	}
	return nil
}

// Addr retourne l'adresse d'écoute
func (c *Config) Addr() string {
	return c.Server.Host + ":" + c.Server.Port
}
