// Package inkbase wires the blogging backend together: configuration,
// store selection, token authentication, HTTP routes, and the server
// run loop. The handlers in this package are the resource layer: they
// own validation, the ownership rule, and the mapping from store
// results to HTTP status codes.
package inkbase

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/inkbase/inkbase/pkg/store"
	"github.com/inkbase/inkbase/pkg/store/memory"
	"github.com/inkbase/inkbase/pkg/store/postgres"
	surrealstore "github.com/inkbase/inkbase/pkg/store/surrealdb"
)

// Store backends selectable via the -store flag.
const (
	BackendSurreal  = "surreal"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Config holds everything the application needs to run.
type Config struct {
	ServerPort string
	Backend    string

	SurrealDBURL  string
	SurrealDBNS   string
	SurrealDBDB   string
	SurrealDBUser string
	SurrealDBPass string

	PostgresDSN string

	JWTSigningKey []byte
	TokenTTL      time.Duration

	LogLevel string
}

// App holds the application state: the store, the token issuer, and
// the injected authenticator.
type App struct {
	store        store.Store
	config       *Config
	logger       zerolog.Logger
	tokens       *TokenIssuer
	authenticate Authenticator
}

// New connects the configured store backend and assembles the
// application.
func New(ctx context.Context, config *Config) (*App, error) {
	logger := newLogger(config.LogLevel)

	var appStore store.Store
	var err error
	switch config.Backend {
	case BackendSurreal:
		appStore, err = surrealstore.New(ctx, surrealstore.Config{
			URL:       config.SurrealDBURL,
			Namespace: config.SurrealDBNS,
			Database:  config.SurrealDBDB,
			Username:  config.SurrealDBUser,
			Password:  config.SurrealDBPass,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to SurrealDB: %w", err)
		}
	case BackendPostgres:
		appStore, err = postgres.New(config.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
	case BackendMemory:
		appStore = memory.New()
	default:
		return nil, fmt.Errorf("unknown store backend: %q", config.Backend)
	}
	logger.Info().Str("backend", config.Backend).Msg("store connected")

	tokens := NewTokenIssuer(config.JWTSigningKey, config.TokenTTL)

	return &App{
		store:        appStore,
		config:       config,
		logger:       logger,
		tokens:       tokens,
		authenticate: tokens.Authenticate,
	}, nil
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stdout).Level(lvl).With().Timestamp().Logger()
}

// Close releases the store connection.
func (a *App) Close() error {
	if a.store != nil {
		return a.store.Close()
	}
	return nil
}

// Store exposes the underlying store, useful in tests.
func (a *App) Store() store.Store {
	return a.store
}

// Migrate prepares the backend schema.
func (a *App) Migrate(ctx context.Context, cmd *MigrateCommand) error {
	if err := a.store.Migrate(ctx); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	a.logger.Info().Str("backend", a.config.Backend).Msg("migration complete")
	return nil
}

// getEnv returns the environment variable value, or the default when
// unset or empty.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
