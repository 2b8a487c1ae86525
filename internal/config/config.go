package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type Config struct {
	Store            string
	PostgresConn     string
	DatabaseDriver   string
	MaxOpenConns     int
	LockTimeout      time.Duration
	OperationTimeout time.Duration
	ServerAddress    string
	JWTSecret        string
	SessionTTL       time.Duration
	LogLevel         string
	Policy           Policy
}

// Load reads an optional .env file (envFile may be empty) and then the
// process environment. Variables already set in the environment win over
// the file.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	return FromEnv()
}

func FromEnv() (Config, error) {
	maxOpen, err := envInt("DATABASE_MAX_OPEN_CONNS", 10)
	if err != nil {
		return Config{}, err
	}
	lockTimeout, err := envDuration("DATABASE_LOCK_TIMEOUT", 2*time.Second)
	if err != nil {
		return Config{}, err
	}
	opTimeout, err := envDuration("OPERATION_TIMEOUT", 5*time.Second)
	if err != nil {
		return Config{}, err
	}
	sessionTTL, err := envDuration("SESSION_TTL", 72*time.Hour)
	if err != nil {
		return Config{}, err
	}
	policy, err := LoadPolicy(envString("POLICY_FILE", ""))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Store:            envString("STORE", StorePostgres),
		PostgresConn:     envString("POSTGRES_CONN", ""),
		DatabaseDriver:   envString("DATABASE_DRIVER", "postgres"),
		MaxOpenConns:     maxOpen,
		LockTimeout:      lockTimeout,
		OperationTimeout: opTimeout,
		ServerAddress:    envString("SERVER_ADDRESS", "0.0.0.0:8080"),
		JWTSecret:        envString("JWT_SECRET", ""),
		SessionTTL:       sessionTTL,
		LogLevel:         envString("LOG_LEVEL", "info"),
		Policy:           policy,
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Store {
	case StorePostgres:
		if c.PostgresConn == "" {
			return errors.New("POSTGRES_CONN env variable is not set")
		}
		if c.DatabaseDriver != "postgres" && c.DatabaseDriver != "pgx" {
			return fmt.Errorf("DATABASE_DRIVER must be postgres or pgx, got %q", c.DatabaseDriver)
		}
		if c.MaxOpenConns < 1 {
			return errors.New("DATABASE_MAX_OPEN_CONNS must be >= 1")
		}
		if c.LockTimeout < 0 {
			return errors.New("DATABASE_LOCK_TIMEOUT must be >= 0")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("STORE must be %s or %s, got %q", StorePostgres, StoreMemory, c.Store)
	}
	if c.OperationTimeout <= 0 {
		return errors.New("OPERATION_TIMEOUT must be positive")
	}
	if len(c.JWTSecret) < 16 {
		return errors.New("JWT_SECRET must be at least 16 bytes")
	}
	if c.SessionTTL <= 0 {
		return errors.New("SESSION_TTL must be positive")
	}
	return nil
}
