// internal/app/deps.go
package app

import (
	"context"
	"fmt"
	"time"

	"propdesk-service/internal/config"
	"propdesk-service/internal/db"
	"propdesk-service/internal/domain/billing"
	"propdesk-service/internal/domain/settings"
	"propdesk-service/internal/gateway"
	"propdesk-service/internal/pkg/fieldcrypt"
	"propdesk-service/internal/pkg/lock"
	"propdesk-service/internal/pkg/metrics"
	"propdesk-service/internal/pkg/ratelimit"
	"propdesk-service/internal/repository/memory"
	"propdesk-service/internal/repository/postgres"
	billingsvc "propdesk-service/internal/service/billing"
	"propdesk-service/internal/service/paymentmethod"
	"propdesk-service/internal/service/pricing"
	settingssvc "propdesk-service/internal/service/settings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Deps is the wired service graph shared by the API server and the billing binary.
type Deps struct {
	Accounts       billing.AccountRepository
	PaymentMethods billing.PaymentMethodRepository
	Billing        billing.BillingRepository
	Settings       settings.Repository

	Cipher    *fieldcrypt.Cipher
	Gateway   billing.PaymentGateway
	Locker    lock.Locker
	Limiter   ratelimit.Limiter
	Resolver  *pricing.Resolver
	Registry  *prometheus.Registry
	Metrics   *metrics.Metrics
	Processor *billingsvc.Processor
	Vault     *paymentmethod.Vault
	Bank      *settingssvc.BankSettingsService

	pool  *pgxpool.Pool
	redis redis.UniversalClient
}

// BuildDeps connects storage and builds every service from cfg.
func BuildDeps(ctx context.Context, cfg config.AppConfig, logger *zap.Logger) (*Deps, error) {
	d := &Deps{Resolver: pricing.NewResolver()}

	// ----- Storage -----
	switch cfg.StorageDriver {
	case config.StorageMemory:
		store := memory.NewStore()
		seedDevData(store)
		d.Accounts, d.PaymentMethods, d.Billing, d.Settings = store.Accounts(), store.PaymentMethods(), store.Billing(), store.Settings()
		logger.Warn("using in-memory storage; data is lost on restart")
	default:
		pool, err := db.ConnectDB(ctx, db.PostgresConfig{URL: cfg.DatabaseURL, MaxConns: cfg.DBMaxConns})
		if err != nil {
			return nil, err
		}
		d.pool = pool
		dbWrapper := postgres.NewDB(pool)
		if cfg.AutoMigrate {
			if err := dbWrapper.Migrate(ctx); err != nil {
				d.Close()
				return nil, err
			}
			logger.Info("database schema applied")
		}
		d.Accounts = postgres.NewAccountRepository(dbWrapper)
		d.PaymentMethods = postgres.NewPaymentMethodRepository(dbWrapper)
		d.Billing = postgres.NewBillingRepository(dbWrapper)
		d.Settings = postgres.NewSettingsRepository(dbWrapper)
		logger.Info("connected to PostgreSQL")
	}

	// ----- Billing lock & rate limiter -----
	if cfg.RedisAddr != "" {
		client, err := db.NewRedisClient(ctx, db.RedisConfig{
			Addresses: []string{cfg.RedisAddr},
			Password:  cfg.RedisPass,
			PoolSize:  10,
		})
		if err != nil {
			d.Close()
			return nil, err
		}
		d.redis = client
		d.Locker = lock.NewRedisLocker(client)
		d.Limiter = ratelimit.NewRedisLimiter(client)
		logger.Info("billing lock backed by Redis", zap.String("addr", cfg.RedisAddr))
	} else {
		d.Locker = lock.NewLocalLocker()
		d.Limiter = ratelimit.NewLocalLimiter()
		logger.Warn("REDIS_ADDR not set, billing lock and rate limits are process-local")
	}

	// ----- Field encryption -----
	if cfg.UsingDevMasterKey {
		logger.Warn("ENCRYPTION_MASTER_KEY not set, using the development key")
	}
	cipher, err := fieldcrypt.New(cfg.EncryptionMasterKey)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("failed to init field cipher: %w", err)
	}
	d.Cipher = cipher

	// ----- Metrics -----
	d.Registry = prometheus.NewRegistry()
	d.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	d.Metrics = metrics.NewMetrics(d.Registry)

	// ----- Services -----
	policy, err := billingsvc.ParsePricingPolicy(cfg.BillingPricingPolicy)
	if err != nil {
		d.Close()
		return nil, err
	}
	d.Gateway = gateway.NewSandbox(cfg.GatewayDeclineAccounts, logger.Named("gateway"))
	d.Processor = billingsvc.NewProcessor(
		d.Billing,
		d.Accounts,
		d.Gateway,
		d.Resolver,
		d.Locker,
		billingsvc.Config{
			Concurrency: cfg.BillingConcurrency,
			Policy:      policy,
			Currency:    cfg.BillingCurrency,
			LockTTL:     cfg.BillingLockTTL,
		},
		logger.Named("billing"),
		billingsvc.WithMetrics(d.Metrics),
	)
	d.Vault = paymentmethod.NewVault(d.Accounts, d.PaymentMethods, cipher, time.Now, logger.Named("vault"))
	d.Vault.UseMetrics(d.Metrics)
	d.Bank = settingssvc.NewBankSettingsService(d.Settings, cipher, logger.Named("settings"))

	return d, nil
}

// Close releases the database pool and Redis client.
func (d *Deps) Close() {
	if d.redis != nil {
		_ = d.redis.Close()
	}
	if d.pool != nil {
		d.pool.Close()
	}
}

// seedDevData gives the in-memory driver one billable account so the API and the
// billing binary have something to work on.
func seedDevData(store *memory.Store) {
	account := store.AddAccount("Demo Properties")
	user := store.AddUser(account.ID)
	store.AddProperties(account.ID, user.ID, 7)

	plan := store.AddPlan(billing.SubscriptionPlan{
		Name:          "Starter",
		BasePrice:     decimal.NewFromInt(40),
		MinProperties: 6,
		MaxProperties: 20,
		IsActive:      true,
	})

	now := time.Now().UTC()
	firstOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	store.AddSubscription(billing.Subscription{
		AccountID:       account.ID,
		UserID:          user.ID,
		PlanID:          plan.ID,
		Status:          billing.SubscriptionStatusActive,
		BillingCycleEnd: firstOfMonth.AddDate(0, 0, -1),
		NextBillingDate: firstOfMonth,
	})
}
