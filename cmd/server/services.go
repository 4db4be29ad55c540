package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/openctemio/reposcan/internal/app"
	"github.com/openctemio/reposcan/internal/config"
	"github.com/openctemio/reposcan/internal/infra/jobs"
	"github.com/openctemio/reposcan/internal/infra/redis"
	"github.com/openctemio/reposcan/internal/infra/scm"
	"github.com/openctemio/reposcan/internal/infra/storage"
	"github.com/openctemio/reposcan/internal/infra/websocket"
	"github.com/openctemio/reposcan/pkg/crypto"
	"github.com/openctemio/reposcan/pkg/domain/plan"
	"github.com/openctemio/reposcan/pkg/domain/shared"
	"github.com/openctemio/reposcan/pkg/jwt"
	"github.com/openctemio/reposcan/pkg/logger"
	"github.com/openctemio/reposcan/pkg/validator"
)

// Services holds the application services and the infrastructure they
// share with handlers and workers.
type Services struct {
	Audit        *app.AuditService
	Entitlement  *app.EntitlementService
	Auth         *app.AuthService
	User         *app.UserService
	Organization *app.OrganizationService
	Workspace    *app.WorkspaceService
	Repository   *app.RepositoryService
	Scan         *app.ScanService
	Schedule     *app.ScheduleService

	Tokens       *jwt.Generator
	LoginLimiter *redis.RateLimiter
	Jobs         *jobs.Client
	Hub          *websocket.Hub
}

// ServiceDeps contains dependencies needed to create services.
type ServiceDeps struct {
	Config *config.Config
	Log    *logger.Logger
	Repos  *Repositories
	Redis  *redis.Client
}

// NewServices wires every service.
func NewServices(ctx context.Context, deps *ServiceDeps) (*Services, error) {
	cfg, log, repos := deps.Config, deps.Log, deps.Repos
	s := &Services{}

	planCache, err := redis.NewCache[plan.Plan](deps.Redis, "plan", cfg.Redis.PlanCacheTTL)
	if err != nil {
		return nil, fmt.Errorf("plan cache: %w", err)
	}
	quota, err := redis.NewQuotaCounter(deps.Redis, "quota:scans", func(ctx context.Context, orgID string, dayStart time.Time) (int, error) {
		id, err := shared.IDFromString(orgID)
		if err != nil {
			return 0, err
		}
		return repos.Scan.CountSince(ctx, id, dayStart)
	})
	if err != nil {
		return nil, fmt.Errorf("quota counter: %w", err)
	}
	s.LoginLimiter, err = redis.NewRateLimiter(deps.Redis, "ratelimit:login", cfg.Auth.LoginAttempts, cfg.Auth.LoginWindow, log)
	if err != nil {
		return nil, fmt.Errorf("login limiter: %w", err)
	}

	cipher, err := newTokenCipher(cfg.Encryption, log)
	if err != nil {
		return nil, fmt.Errorf("token cipher: %w", err)
	}
	hosts := validator.NewHostPolicy(validator.WithAllowInternalIPs(cfg.SCM.AllowInternalIPs))
	resolver := scm.NewGitResolver(cfg.SCM.Timeout, hosts, log)

	s.Jobs = jobs.NewClient(jobs.ClientConfig{
		RedisAddr:     cfg.Redis.Addr(),
		RedisPassword: cfg.Redis.Password,
		RedisDB:       cfg.Redis.DB,
	}, jobs.TaskOptions{MaxRetry: cfg.Worker.MaxRetry, Timeout: cfg.Worker.Timeout}, log)
	s.Hub = websocket.NewHub(log)

	// The entitlement service and the audit service need each other: audit
	// reads are plan gated and denials are audited.
	s.Entitlement = app.NewEntitlementService(repos.Organization, repos.Workspace, repos.Scan, planCache, quota, log)
	s.Audit = app.NewAuditService(repos.Audit, s.Entitlement, log)
	s.Entitlement.SetAuditService(s.Audit)

	s.Auth = app.NewAuthService(repos.User, repos.Organization, s.Audit, cfg.Auth, log)
	s.Tokens = s.Auth.TokenGenerator()
	s.User = app.NewUserService(repos.User, repos.Organization, log)
	s.Organization = app.NewOrganizationService(repos.Organization, repos.User, repos.Workspace, s.Entitlement, s.Audit, log)
	s.Workspace = app.NewWorkspaceService(repos.Workspace, repos.Organization, s.Entitlement, s.Audit, log)
	s.Repository = app.NewRepositoryService(repos.SourceRepo, s.Workspace, cipher, resolver, hosts, s.Entitlement, s.Audit, log)
	s.Scan = app.NewScanService(repos.Scan, s.Repository, quota, s.Jobs, s.Entitlement, s.Audit, log)
	s.Scan.SetEventPublisher(s.Hub)
	s.Scan.SetMaxResultsSize(cfg.Server.MaxUploadSize)
	s.Schedule = app.NewScheduleService(repos.Schedule, s.Repository, s.Workspace, s.Scan, s.Entitlement, s.Audit, log)

	if cfg.Storage.Enabled {
		reports, err := storage.NewS3ReportStore(ctx, cfg.Storage, log)
		if err != nil {
			return nil, fmt.Errorf("report storage: %w", err)
		}
		s.Scan.SetReportStore(reports, cfg.Storage.PresignTTL)
		log.Info("report storage enabled", "bucket", cfg.Storage.Bucket)
	}

	return s, nil
}

// newTokenCipher uses the configured key. Without one (development only,
// config validation enforces it in production) a random key is used and
// stored repository tokens become unreadable after a restart.
func newTokenCipher(cfg config.EncryptionConfig, log *logger.Logger) (*crypto.Cipher, error) {
	if cfg.IsConfigured() {
		return crypto.NewCipherFromHex(cfg.Key)
	}
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	log.Warn("APP_ENCRYPTION_KEY not set, using an ephemeral key for repository tokens")
	return crypto.NewCipher(key)
}
