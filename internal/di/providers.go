package di

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/wire"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/sandeepkv93/security-monitoring-service/internal/config"
	"github.com/sandeepkv93/security-monitoring-service/internal/health"
	"github.com/sandeepkv93/security-monitoring-service/internal/http/handler"
	"github.com/sandeepkv93/security-monitoring-service/internal/http/router"
	"github.com/sandeepkv93/security-monitoring-service/internal/repository"
	"github.com/sandeepkv93/security-monitoring-service/internal/security"
	"github.com/sandeepkv93/security-monitoring-service/internal/service"
)

// Stack is the security core shared by the server and the maintenance commands.
type Stack struct {
	DB           *gorm.DB
	Redis        redis.UniversalClient
	Users        repository.UserRepository
	Auth         *service.AuthService
	Sessions     *service.SessionRegistry
	Guard        *service.CredentialPolicyGuard
	Events       *service.SecurityEventStore
	Orchestrator *service.SecurityResponseOrchestrator
	Detector     *service.AnomalyDetector
	Gate         *service.AccessGate
	Tokens       *service.TokenService
	Alerts       *service.AlertDispatcher
	Sweeper      *service.SessionSweeper
}

var RepositorySet = wire.NewSet(
	repository.NewUserRepository,
	repository.NewSessionRepository,
	repository.NewPasswordHistoryRepository,
	repository.NewSecurityEventRepository,
	repository.NewAuditLogRepository,
	repository.NewSecurityResponseRepository,
	repository.NewAccountFlagsRepository,
	repository.NewLockdownRepository,
)

var StoreSet = wire.NewSet(
	provideLoginAttemptStore,
	provideIPBlockStore,
	provideOperationCounter,
	provideLockdownState,
)

var ServiceSet = wire.NewSet(
	provideHasher,
	provideJWTManager,
	provideTokenService,
	provideNotificationChannels,
	provideNotifier,
	provideAlertDispatcher,
	wire.Bind(new(service.AlertPublisher), new(*service.AlertDispatcher)),
	provideCredentialGuard,
	provideSessionRegistry,
	provideSecurityEventStore,
	provideOrchestrator,
	provideAnomalyDetector,
	provideAccessGate,
	provideAuthService,
	provideSessionSweeper,
)

var StackSet = wire.NewSet(
	provideDB,
	provideRedis,
	RepositorySet,
	StoreSet,
	ServiceSet,
	wire.Struct(new(Stack), "*"),
)

var HTTPSet = wire.NewSet(
	wire.FieldsOf(new(*Stack), "DB", "Redis", "Auth", "Sessions", "Events", "Orchestrator", "Detector", "Gate", "Tokens", "Alerts", "Sweeper"),
	provideAuthHandler,
	handler.NewSessionHandler,
	handler.NewSecurityHandler,
	provideReadiness,
	provideRouter,
	provideHTTPServer,
)

func provideDB(cfg *config.Config, logger *slog.Logger) (*gorm.DB, func(), error) {
	db, err := repository.Open(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, fmt.Errorf("database handle: %w", err)
	}
	if cfg.DatabaseDriver == "sqlite" {
		sqlDB.SetMaxOpenConns(1)
	}
	cleanup := func() {
		if err := sqlDB.Close(); err != nil {
			logger.Warn("database close failed", "error", err)
		}
	}
	return db, cleanup, nil
}

// provideRedis returns a nil client when REDIS_ADDR is unset; every store then falls back
// to its process-local implementation.
func provideRedis(ctx context.Context, cfg *config.Config, logger *slog.Logger) (redis.UniversalClient, func(), error) {
	if cfg.RedisAddr == "" {
		logger.Info("redis disabled, using in-process security state")
		return nil, func() {}, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, cfg.StoreTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	cleanup := func() {
		if err := client.Close(); err != nil {
			logger.Warn("redis close failed", "error", err)
		}
	}
	return client, cleanup, nil
}

func redisPrefix(cfg *config.Config, name string) string {
	if cfg.RedisPrefix == "" {
		return name
	}
	return cfg.RedisPrefix + ":" + name
}

func provideLoginAttemptStore(cfg *config.Config, client redis.UniversalClient) service.LoginAttemptStore {
	if client == nil {
		return service.NewInMemoryLoginAttemptStore()
	}
	return service.NewRedisLoginAttemptStore(client, redisPrefix(cfg, "login_attempts"))
}

func provideIPBlockStore(cfg *config.Config, client redis.UniversalClient) service.IPBlockStore {
	if client == nil {
		return service.NewInMemoryIPBlockStore()
	}
	return service.NewRedisIPBlockStore(client, redisPrefix(cfg, "ip_block"))
}

func provideOperationCounter(cfg *config.Config, client redis.UniversalClient) service.OperationCounter {
	if client == nil {
		return service.NewInMemoryOperationCounter()
	}
	return service.NewRedisOperationCounter(client, redisPrefix(cfg, "op_count"))
}

// provideLockdownState prefers Redis so every replica sees the flag; without Redis the
// flag lives in the database row.
func provideLockdownState(cfg *config.Config, client redis.UniversalClient, repo repository.LockdownRepository) service.LockdownStateStore {
	if client == nil {
		return service.NewRepositoryLockdownState(repo)
	}
	return service.NewRedisLockdownState(client, redisPrefix(cfg, "lockdown"))
}

func provideHasher(cfg *config.Config) service.PasswordHasher {
	return security.NewBcryptHasher(cfg.BcryptCost)
}

func provideJWTManager(cfg *config.Config) *security.JWTManager {
	return security.NewJWTManager(cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTAccessSecret, cfg.JWTRefreshSecret)
}

func provideTokenService(cfg *config.Config, jwtMgr *security.JWTManager) *service.TokenService {
	return service.NewTokenService(jwtMgr, cfg.JWTAccessTTL, cfg.SessionTTL)
}

// provideNotificationChannels always includes the log channel and adds every configured
// transport. A transport that cannot connect fails startup.
func provideNotificationChannels(cfg *config.Config, logger *slog.Logger) ([]service.NotificationChannel, func(), error) {
	channels := []service.NotificationChannel{service.NewLogChannel(logger)}
	var closers []func() error
	cleanup := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				logger.Warn("notification channel close failed", "error", err)
			}
		}
	}
	if cfg.NotifyWebhookURL != "" {
		channels = append(channels, service.NewWebhookChannel(cfg.NotifyWebhookURL, cfg.StoreTimeout))
	}
	if cfg.NotifyNATSURL != "" {
		ch, err := service.NewNATSChannel(cfg.NotifyNATSURL, cfg.NotifyNATSSubject)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		channels = append(channels, ch)
		closers = append(closers, ch.Close)
	}
	if len(cfg.NotifyKafkaBrokers) > 0 {
		ch, err := service.NewKafkaChannel(cfg.NotifyKafkaBrokers, cfg.NotifyKafkaTopic)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		channels = append(channels, ch)
		closers = append(closers, ch.Close)
	}
	names := make([]string, 0, len(channels))
	for _, ch := range channels {
		names = append(names, ch.Name())
	}
	logger.Info("notification channels configured", "channels", names)
	return channels, cleanup, nil
}

func provideNotifier(cfg *config.Config, channels []service.NotificationChannel, logger *slog.Logger) service.Notifier {
	return service.NewRetryingNotifier(channels, cfg.NotifyMaxRetries, cfg.NotifyRetryBase, logger)
}

func provideAlertDispatcher(cfg *config.Config, notifier service.Notifier, logger *slog.Logger) *service.AlertDispatcher {
	return service.NewAlertDispatcher(notifier, cfg.NotifyQueueSize, cfg.NotifyRatePerSec, logger)
}

func provideCredentialGuard(cfg *config.Config, attempts service.LoginAttemptStore, history repository.PasswordHistoryRepository, hasher service.PasswordHasher, logger *slog.Logger) *service.CredentialPolicyGuard {
	return service.NewCredentialPolicyGuard(service.CredentialPolicy{
		MinLength:    cfg.PasswordMinLength,
		MaxFailures:  cfg.LockoutMaxFailures,
		Window:       cfg.LockoutWindow,
		HistoryDepth: cfg.PasswordHistoryDepth,
	}, attempts, history, hasher, logger)
}

func provideSessionRegistry(cfg *config.Config, repo repository.SessionRepository, logger *slog.Logger) *service.SessionRegistry {
	return service.NewSessionRegistry(repo, cfg.SessionMaxConcurrent, cfg.SessionTTL, logger)
}

func provideSecurityEventStore(cfg *config.Config, events repository.SecurityEventRepository, audit repository.AuditLogRepository, users repository.UserRepository, alerts service.AlertPublisher, logger *slog.Logger) *service.SecurityEventStore {
	return service.NewSecurityEventStore(events, audit, users, alerts, cfg.AdminRecipients, logger)
}

func provideOrchestrator(
	cfg *config.Config,
	audit repository.AuditLogRepository,
	responses repository.SecurityResponseRepository,
	flags repository.AccountFlagsRepository,
	ipBlocks service.IPBlockStore,
	sessions *service.SessionRegistry,
	lockdown service.LockdownStateStore,
	events *service.SecurityEventStore,
	alerts service.AlertPublisher,
	guard *service.CredentialPolicyGuard,
	logger *slog.Logger,
) *service.SecurityResponseOrchestrator {
	return service.NewSecurityResponseOrchestrator(service.ResponsePolicy{
		BruteForceThreshold: cfg.BruteForceThreshold,
		BruteForceWindow:    cfg.BruteForceWindow,
		IPBlockDuration:     cfg.IPBlockDuration,
	}, service.OrchestratorDeps{
		Audit:     audit,
		Responses: responses,
		Flags:     flags,
		IPBlocks:  ipBlocks,
		Sessions:  sessions,
		Lockdown:  lockdown,
		Events:    events,
		Alerts:    alerts,
		Attempts:  guard,
	}, logger)
}

func provideAnomalyDetector(
	cfg *config.Config,
	audit repository.AuditLogRepository,
	counter service.OperationCounter,
	events *service.SecurityEventStore,
	orchestrator *service.SecurityResponseOrchestrator,
	alerts service.AlertPublisher,
	logger *slog.Logger,
) *service.AnomalyDetector {
	return service.NewAnomalyDetector(service.AnomalyPolicy{
		HighFrequencyThreshold:   cfg.AnomalyHighFrequencyThreshold,
		HighFrequencyWindow:      cfg.AnomalyHighFrequencyWindow,
		PrivilegeChangeThreshold: cfg.AnomalyPrivilegeChangeThreshold,
		PrivilegeWindow:          cfg.AnomalyPrivilegeWindow,
		LoginHistoryWindow:       cfg.AnomalyLoginHistoryWindow,
		PrivilegeFailClosed:      cfg.AnomalyPrivilegeFailClosed,
	}, audit, counter, events, orchestrator, alerts, logger)
}

func provideAccessGate(lockdown service.LockdownStateStore, ipBlocks service.IPBlockStore, flags repository.AccountFlagsRepository, logger *slog.Logger) *service.AccessGate {
	return service.NewAccessGate(lockdown, ipBlocks, flags, logger)
}

func provideAuthService(
	users repository.UserRepository,
	audit repository.AuditLogRepository,
	flags repository.AccountFlagsRepository,
	hasher service.PasswordHasher,
	guard *service.CredentialPolicyGuard,
	sessions *service.SessionRegistry,
	detector *service.AnomalyDetector,
	orchestrator *service.SecurityResponseOrchestrator,
	gate *service.AccessGate,
	tokens *service.TokenService,
	logger *slog.Logger,
) *service.AuthService {
	return service.NewAuthService(service.AuthDeps{
		Users:        users,
		Audit:        audit,
		Flags:        flags,
		Hasher:       hasher,
		Guard:        guard,
		Sessions:     sessions,
		Detector:     detector,
		Orchestrator: orchestrator,
		Gate:         gate,
		Tokens:       tokens,
	}, logger)
}

func provideSessionSweeper(cfg *config.Config, sessions *service.SessionRegistry, guard *service.CredentialPolicyGuard, logger *slog.Logger) *service.SessionSweeper {
	return service.NewSessionSweeper(sessions, guard, cfg.SessionSweepInterval, cfg.StoreTimeout*10, logger)
}

func provideAuthHandler(cfg *config.Config, auth *service.AuthService) *handler.AuthHandler {
	return handler.NewAuthHandler(auth, cfg.AppEnv == "production")
}

func provideReadiness(cfg *config.Config, db *gorm.DB, client redis.UniversalClient) *health.ProbeRunner {
	probes := []health.Probe{{
		Name: "database",
		Check: func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}}
	if client != nil {
		probes = append(probes, health.Probe{
			Name:  "redis",
			Check: func(ctx context.Context) error { return client.Ping(ctx).Err() },
		})
	}
	return health.NewProbeRunner(cfg.StoreTimeout, 2*time.Second, probes...)
}

func provideRouter(
	cfg *config.Config,
	logger *slog.Logger,
	authHandler *handler.AuthHandler,
	sessionHandler *handler.SessionHandler,
	securityHandler *handler.SecurityHandler,
	tokens *service.TokenService,
	sessions *service.SessionRegistry,
	gate *service.AccessGate,
	detector *service.AnomalyDetector,
	readiness *health.ProbeRunner,
) http.Handler {
	return router.NewRouter(router.Dependencies{
		AuthHandler:           authHandler,
		SessionHandler:        sessionHandler,
		SecurityHandler:       securityHandler,
		Tokens:                tokens,
		Sessions:              sessions,
		Gate:                  gate,
		Monitor:               detector,
		Logger:                logger,
		LoginRateLimit:        cfg.LoginRateLimitPerMinute,
		RequestTimeout:        cfg.RequestTimeout,
		TrustForwardedHeaders: cfg.TrustForwardedHeaders,
		Readiness:             readiness,
		EnableOTelHTTP:        cfg.OTELTracingEnabled,
	})
}

func provideHTTPServer(cfg *config.Config, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
