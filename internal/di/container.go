package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/crackersbazaar/api/internal/domain"
	"github.com/crackersbazaar/api/internal/platform/auth"
	"github.com/crackersbazaar/api/internal/platform/config"
	pfirestore "github.com/crackersbazaar/api/internal/platform/firestore"
	"github.com/crackersbazaar/api/internal/platform/idempotency"
	"github.com/crackersbazaar/api/internal/platform/observability"
	"github.com/crackersbazaar/api/internal/platform/security"
	"github.com/crackersbazaar/api/internal/platform/storage"
	"github.com/crackersbazaar/api/internal/repositories"
	"github.com/crackersbazaar/api/internal/repositories/cache"
	firestoreRepo "github.com/crackersbazaar/api/internal/repositories/firestore"
	"github.com/crackersbazaar/api/internal/repositories/memory"
	"github.com/crackersbazaar/api/internal/repositories/postgres"
	"github.com/crackersbazaar/api/internal/services"
)

const idempotencyCollection = "idempotency_keys"

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Accounts      services.AccountService
	Manufacturers services.ManufacturerService
	Catalog       services.CatalogService
	Images        services.ProductImageService
	Orders        services.OrderService
	Audit         services.AuditLogService
	Counters      *services.CounterService
}

// Backend is an opened persistence backend together with the idempotency store that fits it.
type Backend struct {
	Name        string
	Registry    repositories.Registry
	Idempotency idempotency.Store
}

// Container wires repositories, services, and shared infrastructure for runtime use.
type Container struct {
	Config        config.Config
	Repositories  repositories.Registry
	Services      Services
	Tokens        *auth.TokenService
	Authenticator *auth.Authenticator
	Redis         *redis.Client
	Readiness     *repositories.ReadinessProbe
}

// Option customises container construction.
type Option func(*containerOptions)

type containerOptions struct {
	logger *zap.Logger
	redis  *redis.Client
	clock  func() time.Time
	hasher services.PasswordHasher
}

// WithLogger sets the base logger handed to services.
func WithLogger(logger *zap.Logger) Option {
	return func(o *containerOptions) {
		o.logger = logger
	}
}

// WithRedis enables the Redis product cache and adds Redis to the readiness probe.
func WithRedis(client *redis.Client) Option {
	return func(o *containerOptions) {
		o.redis = client
	}
}

// WithClock overrides the clock used by every service.
func WithClock(clock func() time.Time) Option {
	return func(o *containerOptions) {
		o.clock = clock
	}
}

// WithPasswordHasher replaces the bcrypt hasher, mainly so tests avoid bcrypt's cost.
func WithPasswordHasher(hasher services.PasswordHasher) Option {
	return func(o *containerOptions) {
		o.hasher = hasher
	}
}

// OpenBackend connects the repository backend selected by cfg.Persistence.Backend. Postgres schemas are
// migrated before the registry is returned.
func OpenBackend(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Backend, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Persistence.Backend {
	case config.BackendMemory, "":
		return &Backend{Name: config.BackendMemory, Registry: memory.NewStore(), Idempotency: idempotency.NewMemoryStore()}, nil
	case config.BackendFirestore:
		provider := pfirestore.NewProvider(cfg.Firestore)
		reg, err := firestoreRepo.NewRegistry(provider)
		if err != nil {
			return nil, fmt.Errorf("build firestore registry: %w", err)
		}
		return &Backend{
			Name:        config.BackendFirestore,
			Registry:    reg,
			Idempotency: idempotency.NewFirestoreStore(provider, idempotencyCollection),
		}, nil
	case config.BackendPostgres:
		pool, err := postgres.Open(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		if err := postgres.Migrate(ctx, pool, logger.Named("migrate")); err != nil {
			pool.Close()
			return nil, err
		}
		reg, err := postgres.NewRegistry(pool)
		if err != nil {
			pool.Close()
			return nil, err
		}
		return &Backend{Name: config.BackendPostgres, Registry: reg, Idempotency: idempotency.NewMemoryStore()}, nil
	}
	return nil, fmt.Errorf("unknown persistence backend %q", cfg.Persistence.Backend)
}

// NewContainer constructs the runtime dependencies on top of reg.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, opts ...Option) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}
	options := containerOptions{clock: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	if options.logger == nil {
		options.logger = zap.NewNop()
	}
	if options.hasher == nil {
		options.hasher = security.NewBcryptHasher(0)
	}

	tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL, auth.WithClock(options.clock))
	if err != nil {
		return nil, fmt.Errorf("build token service: %w", err)
	}

	svc, err := buildServices(ctx, reg, cfg, tokens, options)
	if err != nil {
		return nil, err
	}

	checks := []repositories.DependencyCheck{repositories.RegistryCheck(cfg.Persistence.Backend, reg)}
	if client := options.redis; client != nil {
		checks = append(checks, repositories.DependencyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}})
	}

	// Manufacturer accounts are re-checked per request; verification may deactivate them mid-session.
	authenticator := auth.NewAuthenticator(tokens, auth.WithAccountStatus(accountActive(reg.Accounts()), domain.RoleManufacturer))

	return &Container{
		Config:        cfg,
		Repositories:  reg,
		Services:      svc,
		Tokens:        tokens,
		Authenticator: authenticator,
		Redis:         options.redis,
		Readiness:     repositories.NewReadinessProbe(checks...),
	}, nil
}

func accountActive(accounts repositories.AccountRepository) auth.AccountStatusFunc {
	return func(ctx context.Context, accountID string) (bool, error) {
		account, err := accounts.FindByID(ctx, accountID)
		if err != nil {
			if repositories.IsNotFound(err) {
				return false, nil
			}
			return false, err
		}
		return account.Active, nil
	}
}

// Close releases the repository backend and the Redis client.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var errs []error
	if c.Redis != nil {
		errs = append(errs, c.Redis.Close())
	}
	if c.Repositories != nil {
		errs = append(errs, c.Repositories.Close(ctx))
	}
	return errors.Join(errs...)
}

func buildServices(_ context.Context, reg repositories.Registry, cfg config.Config, tokens *auth.TokenService, options containerOptions) (Services, error) {
	var svc Services
	serviceLogger := observability.ServiceLogger(options.logger.Named("services"))

	audit, err := services.NewAuditLogService(services.AuditLogServiceDeps{
		Repository: reg.AuditLogs(),
		Clock:      options.clock,
		Logger:     serviceLogger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build audit log service: %w", err)
	}
	svc.Audit = audit

	counters, err := services.NewCounterService(services.CounterServiceDeps{
		Repository: reg.Counters(),
		Clock:      options.clock,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build counter service: %w", err)
	}
	svc.Counters = counters

	var productCache services.ProductReader
	if options.redis != nil {
		productCache = cache.NewProductCache(reg.Products(), options.redis, cfg.Redis, options.logger)
	}

	accounts, err := services.NewAccountService(services.AccountServiceDeps{
		Accounts:   reg.Accounts(),
		UnitOfWork: reg,
		Hasher:     options.hasher,
		Tokens: services.TokenIssuerFunc(func(account domain.Account) (services.AccessToken, error) {
			token, err := tokens.Issue(account)
			if err != nil {
				return services.AccessToken{}, err
			}
			return services.AccessToken{Value: token.Value, ExpiresAt: token.ExpiresAt}, nil
		}),
		Clock:  options.clock,
		Logger: serviceLogger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build account service: %w", err)
	}
	svc.Accounts = accounts

	manufacturers, err := services.NewManufacturerService(services.ManufacturerServiceDeps{
		Manufacturers:     reg.Manufacturers(),
		Accounts:          reg.Accounts(),
		UnitOfWork:        reg,
		Hasher:            options.hasher,
		Audit:             audit,
		TemporaryPassword: security.TemporaryPassword,
		Clock:             options.clock,
		Logger:            serviceLogger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build manufacturer service: %w", err)
	}
	svc.Manufacturers = manufacturers

	catalog, err := services.NewCatalogService(services.CatalogServiceDeps{
		Products:      reg.Products(),
		Manufacturers: reg.Manufacturers(),
		UnitOfWork:    reg,
		Cache:         productCache,
		Audit:         audit,
		Clock:         options.clock,
		Logger:        serviceLogger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build catalog service: %w", err)
	}
	svc.Catalog = catalog

	if cfg.Storage.Enabled() {
		images, err := buildImageService(reg, cfg.Storage, options, serviceLogger)
		if err != nil {
			return Services{}, err
		}
		svc.Images = images
	}

	orders, err := services.NewOrderService(services.OrderServiceDeps{
		Products:     reg.Products(),
		Orders:       reg.Orders(),
		UnitOfWork:   reg,
		OrderNumbers: counters,
		Tax:          services.FlatTaxPolicy{Rate: cfg.Orders.TaxRate},
		ProductCache: productCache,
		Audit:        audit,
		Clock:        options.clock,
		Logger:       serviceLogger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orders

	return svc, nil
}

func buildImageService(reg repositories.Registry, cfg config.StorageConfig, options containerOptions, logger func(context.Context, string, map[string]any)) (services.ProductImageService, error) {
	signer, err := storage.NewKeySigner([]byte(cfg.SignerKeyJSON))
	if err != nil {
		return nil, fmt.Errorf("build storage signer: %w", err)
	}
	uploader, err := storage.NewUploader(signer, storage.UploaderConfig{
		Bucket:        cfg.ProductImagesBucket,
		PublicBaseURL: cfg.PublicBaseURL,
		TTL:           cfg.UploadURLTTL,
		MaxBytes:      cfg.MaxImageBytes,
	}, storage.WithClock(options.clock))
	if err != nil {
		return nil, fmt.Errorf("build image uploader: %w", err)
	}
	images, err := services.NewProductImageService(services.ProductImageServiceDeps{
		Products: reg.Products(),
		Signer:   uploader,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build product image service: %w", err)
	}
	return images, nil
}
