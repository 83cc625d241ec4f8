package app

import (
	"fmt"

	"github.com/convosec/keycore/internal/scheduler"

	keysDomain "github.com/convosec/keycore/internal/keys/domain"
	keysRepository "github.com/convosec/keycore/internal/keys/repository"
	keysService "github.com/convosec/keycore/internal/keys/service"
	keysUseCase "github.com/convosec/keycore/internal/keys/usecase"
)

// KeyRepository returns the key record repository instance.
func (c *Container) KeyRepository() (keysUseCase.KeyRepository, error) {
	var err error
	c.keyRepoInit.Do(func() {
		c.keyRepo, err = c.initKeyRepository()
		if err != nil {
			c.initErrors["keyRepo"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["keyRepo"]; exists {
		return nil, storedErr
	}
	return c.keyRepo, nil
}

// LifecycleUseCase returns the key lifecycle use case instance.
func (c *Container) LifecycleUseCase() (keysUseCase.LifecycleUseCase, error) {
	var err error
	c.lifecycleUseCaseInit.Do(func() {
		c.lifecycleUseCase, err = c.initLifecycleUseCase()
		if err != nil {
			c.initErrors["lifecycleUseCase"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["lifecycleUseCase"]; exists {
		return nil, storedErr
	}
	return c.lifecycleUseCase, nil
}

// EncryptionUseCase returns the encryption operation use case instance.
func (c *Container) EncryptionUseCase() (keysUseCase.EncryptionUseCase, error) {
	var err error
	c.encryptionUseCaseInit.Do(func() {
		c.encryptionUseCase, err = c.initEncryptionUseCase()
		if err != nil {
			c.initErrors["encryptionUseCase"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["encryptionUseCase"]; exists {
		return nil, storedErr
	}
	return c.encryptionUseCase, nil
}

// SessionUseCase returns the session key broker use case instance.
func (c *Container) SessionUseCase() (keysUseCase.SessionUseCase, error) {
	var err error
	c.sessionUseCaseInit.Do(func() {
		c.sessionUseCase, err = c.initSessionUseCase()
		if err != nil {
			c.initErrors["sessionUseCase"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["sessionUseCase"]; exists {
		return nil, storedErr
	}
	return c.sessionUseCase, nil
}

// Scheduler returns the background sweep scheduler instance.
func (c *Container) Scheduler() (*scheduler.Scheduler, error) {
	var err error
	c.schedulerInit.Do(func() {
		c.scheduler, err = c.initScheduler()
		if err != nil {
			c.initErrors["scheduler"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["scheduler"]; exists {
		return nil, storedErr
	}
	return c.scheduler, nil
}

// initKeyRepository creates the key record repository based on the database driver.
func (c *Container) initKeyRepository() (keysUseCase.KeyRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for key repository: %w", err)
	}

	switch c.config.DBDriver {
	case "postgres":
		return keysRepository.NewPostgreSQLKeyRepository(db, c.config.DBQueryTimeout), nil
	case "mysql":
		return keysRepository.NewMySQLKeyRepository(db, c.config.DBQueryTimeout), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

// initLifecycleUseCase creates the key lifecycle use case with all its
// dependencies, wrapping it with the key cache and metrics when enabled.
func (c *Container) initLifecycleUseCase() (keysUseCase.LifecycleUseCase, error) {
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for lifecycle use case: %w", err)
	}

	keyRepo, err := c.KeyRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get key repository for lifecycle use case: %w", err)
	}

	envelope, err := c.Envelope()
	if err != nil {
		return nil, fmt.Errorf("failed to get envelope for lifecycle use case: %w", err)
	}

	audit, err := c.AuditUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get audit use case for lifecycle use case: %w", err)
	}

	algorithm, err := keysDomain.ParseAlgorithm(c.config.DefaultAlgorithm)
	if err != nil {
		return nil, fmt.Errorf("invalid default algorithm: %w", err)
	}

	useCase := keysUseCase.NewLifecycleUseCase(
		txManager,
		keyRepo,
		keysService.NewKeyGenerator(),
		envelope,
		audit,
		c.Logger(),
		algorithm,
		c.config.SessionKeyValidity,
	)

	if c.config.KeyCacheEnabled {
		useCase = keysUseCase.NewLifecycleWithKeyCache(useCase, c.config.KeyCacheTTL)
	}

	if c.config.MetricsEnabled {
		businessMetrics, err := c.BusinessMetrics()
		if err != nil {
			return nil, fmt.Errorf("failed to get business metrics for lifecycle use case: %w", err)
		}
		useCase = keysUseCase.NewLifecycleUseCaseWithMetrics(useCase, businessMetrics)
	}

	return useCase, nil
}

// initEncryptionUseCase creates the encryption operation use case with all its
// dependencies.
func (c *Container) initEncryptionUseCase() (keysUseCase.EncryptionUseCase, error) {
	keyRepo, err := c.KeyRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get key repository for encryption use case: %w", err)
	}

	lifecycle, err := c.LifecycleUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get lifecycle use case for encryption use case: %w", err)
	}

	envelope, err := c.Envelope()
	if err != nil {
		return nil, fmt.Errorf("failed to get envelope for encryption use case: %w", err)
	}

	audit, err := c.AuditUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get audit use case for encryption use case: %w", err)
	}

	useCase := keysUseCase.NewEncryptionUseCase(
		keyRepo,
		lifecycle,
		envelope,
		keysService.NewAEADManager(),
		audit,
		c.Logger(),
		c.config.EncryptionEnabled,
	)

	if c.config.MetricsEnabled {
		businessMetrics, err := c.BusinessMetrics()
		if err != nil {
			return nil, fmt.Errorf("failed to get business metrics for encryption use case: %w", err)
		}
		useCase = keysUseCase.NewEncryptionUseCaseWithMetrics(useCase, businessMetrics)
	}

	return useCase, nil
}

// initSessionUseCase creates the session key broker use case with all its
// dependencies.
func (c *Container) initSessionUseCase() (keysUseCase.SessionUseCase, error) {
	keyRepo, err := c.KeyRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get key repository for session use case: %w", err)
	}

	lifecycle, err := c.LifecycleUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get lifecycle use case for session use case: %w", err)
	}

	audit, err := c.AuditUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get audit use case for session use case: %w", err)
	}

	useCase := keysUseCase.NewSessionUseCase(keyRepo, lifecycle, audit)

	if c.config.MetricsEnabled {
		businessMetrics, err := c.BusinessMetrics()
		if err != nil {
			return nil, fmt.Errorf("failed to get business metrics for session use case: %w", err)
		}
		useCase = keysUseCase.NewSessionUseCaseWithMetrics(useCase, businessMetrics)
	}

	return useCase, nil
}

// initScheduler creates the background sweep scheduler.
func (c *Container) initScheduler() (*scheduler.Scheduler, error) {
	lifecycle, err := c.LifecycleUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get lifecycle use case for scheduler: %w", err)
	}

	return scheduler.New(
		lifecycle,
		c.Logger(),
		c.config.AutoRotationSweepInterval,
		c.config.ExpirySweepInterval,
		c.config.SweepRotationsPerSec,
	), nil
}
