// Package app provides the dependency injection container for assembling
// application components.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/convosec/keycore/internal/config"
	"github.com/convosec/keycore/internal/database"
	"github.com/convosec/keycore/internal/metrics"
	"github.com/convosec/keycore/internal/scheduler"

	auditUseCase "github.com/convosec/keycore/internal/audit/usecase"
	keysDomain "github.com/convosec/keycore/internal/keys/domain"
	keysService "github.com/convosec/keycore/internal/keys/service"
	keysUseCase "github.com/convosec/keycore/internal/keys/usecase"
)

// Container holds all application dependencies and provides methods to access
// them. It follows the lazy initialization pattern - components are created on
// first access.
type Container struct {
	// Configuration
	config *config.Config

	// Infrastructure
	logger *slog.Logger
	db     *sql.DB

	// Managers
	txManager database.TxManager

	// Crypto services
	rootKey  *keysDomain.RootKey
	envelope *keysService.EnvelopeService

	// Repositories
	keyRepo   keysUseCase.KeyRepository
	auditRepo auditUseCase.AuditRepository

	// Use Cases
	lifecycleUseCase  keysUseCase.LifecycleUseCase
	encryptionUseCase keysUseCase.EncryptionUseCase
	sessionUseCase    keysUseCase.SessionUseCase
	auditUseCase      auditUseCase.AuditUseCase

	// Metrics
	metricsProvider *metrics.Provider
	businessMetrics metrics.BusinessMetrics
	metricsServer   *metrics.Server

	// Workers
	scheduler *scheduler.Scheduler

	// Initialization flags and mutex for thread-safety
	mu                    sync.Mutex
	loggerInit            sync.Once
	dbInit                sync.Once
	txManagerInit         sync.Once
	envelopeInit          sync.Once
	keyRepoInit           sync.Once
	auditRepoInit         sync.Once
	lifecycleUseCaseInit  sync.Once
	encryptionUseCaseInit sync.Once
	sessionUseCaseInit    sync.Once
	auditUseCaseInit      sync.Once
	metricsProviderInit   sync.Once
	businessMetricsInit   sync.Once
	metricsServerInit     sync.Once
	schedulerInit         sync.Once
	initErrors            map[string]error
}

// NewContainer creates a new dependency injection container with the provided
// configuration.
func NewContainer(cfg *config.Config) *Container {
	return &Container{
		config:     cfg,
		initErrors: make(map[string]error),
	}
}

// Config returns the application configuration.
func (c *Container) Config() *config.Config {
	return c.config
}

// Logger returns the configured logger instance.
// It creates a new logger on first access based on the log level in configuration.
func (c *Container) Logger() *slog.Logger {
	c.loggerInit.Do(func() {
		c.logger = c.initLogger()
	})
	return c.logger
}

// DB returns the database connection.
// It creates and configures the database connection on first access.
func (c *Container) DB() (*sql.DB, error) {
	var err error
	c.dbInit.Do(func() {
		c.db, err = c.initDB()
		if err != nil {
			c.initErrors["db"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["db"]; exists {
		return nil, storedErr
	}
	return c.db, nil
}

// TxManager returns the transaction manager.
// It requires a database connection to be initialized first.
func (c *Container) TxManager() (database.TxManager, error) {
	var err error
	c.txManagerInit.Do(func() {
		c.txManager, err = c.initTxManager()
		if err != nil {
			c.initErrors["txManager"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["txManager"]; exists {
		return nil, storedErr
	}
	return c.txManager, nil
}

// Envelope returns the root key envelope service. First access loads and
// validates the root secret (unwrapping it through the KMS when configured)
// and derives the sealing cipher key.
func (c *Container) Envelope() (keysService.Envelope, error) {
	var err error
	c.envelopeInit.Do(func() {
		c.envelope, err = c.initEnvelope()
		if err != nil {
			c.initErrors["envelope"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["envelope"]; exists {
		return nil, storedErr
	}
	return c.envelope, nil
}

// Shutdown performs cleanup of all initialized resources.
// It should be called when the application is shutting down.
func (c *Container) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var shutdownErrors []error

	if c.metricsServer != nil {
		if err := c.metricsServer.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("metrics server shutdown: %w", err))
		}
	}

	if c.metricsProvider != nil {
		if err := c.metricsProvider.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("metrics provider shutdown: %w", err))
		}
	}

	// Clear key material before releasing the rest
	if c.envelope != nil {
		c.envelope.Close()
	}
	if c.rootKey != nil {
		c.rootKey.Close()
	}

	if c.db != nil {
		if err := c.db.Close(); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("database close: %w", err))
		}
	}

	if len(shutdownErrors) > 0 {
		return fmt.Errorf("shutdown errors: %v", shutdownErrors)
	}

	return nil
}

// initLogger creates and configures a structured logger based on the log level.
func (c *Container) initLogger() *slog.Logger {
	var logLevel slog.Level
	switch c.config.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})

	return slog.New(handler)
}

// initDB creates and configures the database connection.
func (c *Container) initDB() (*sql.DB, error) {
	db, err := database.Connect(database.Config{
		Driver:             c.config.DBDriver,
		ConnectionString:   c.config.DBConnectionString,
		MaxOpenConnections: c.config.DBMaxOpenConnections,
		MaxIdleConnections: c.config.DBMaxIdleConnections,
		ConnMaxLifetime:    c.config.DBConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// initTxManager creates the transaction manager using the database connection.
func (c *Container) initTxManager() (database.TxManager, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for tx manager: %w", err)
	}
	return database.NewTxManager(db), nil
}

// initEnvelope loads the root key and creates the envelope service.
func (c *Container) initEnvelope() (*keysService.EnvelopeService, error) {
	logger := c.Logger()

	rootKey, err := keysDomain.LoadRootKey(
		context.Background(),
		c.config,
		keysService.NewKMSService(),
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load root key: %w", err)
	}
	c.rootKey = rootKey

	algorithm, err := keysDomain.ParseAlgorithm(c.config.DefaultAlgorithm)
	if err != nil {
		return nil, fmt.Errorf("invalid default algorithm: %w", err)
	}

	envelope, err := keysService.NewEnvelope(rootKey, keysService.NewAEADManager(), algorithm)
	if err != nil {
		return nil, fmt.Errorf("failed to create envelope service: %w", err)
	}
	return envelope, nil
}
