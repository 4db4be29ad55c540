package main

import (
	"net/http"

	"github.com/openctemio/reposcan/internal/config"
	"github.com/openctemio/reposcan/internal/infra/http/handler"
	"github.com/openctemio/reposcan/internal/infra/http/middleware"
	"github.com/openctemio/reposcan/internal/infra/http/routes"
	"github.com/openctemio/reposcan/internal/infra/postgres"
	"github.com/openctemio/reposcan/internal/infra/redis"
	"github.com/openctemio/reposcan/internal/infra/websocket"
	"github.com/openctemio/reposcan/pkg/logger"
	"github.com/openctemio/reposcan/pkg/validator"
)

// HandlerDeps contains dependencies needed to create handlers.
type HandlerDeps struct {
	Config    *config.Config
	Log       *logger.Logger
	Validator *validator.Validator
	DB        *postgres.DB
	Redis     *redis.Client
	Services  *Services
}

// NewHandlers creates all HTTP handlers.
func NewHandlers(deps *HandlerDeps) routes.Handlers {
	cfg, log, v, svc := deps.Config, deps.Log, deps.Validator, deps.Services

	return routes.Handlers{
		Health: handler.NewHealthHandler(
			handler.WithVersion(cfg.App.Version),
			handler.WithCheck("postgres", deps.DB),
			handler.WithCheck("redis", deps.Redis),
		),
		Auth:         handler.NewAuthHandler(svc.Auth, v, log),
		User:         handler.NewUserHandler(svc.User, svc.Auth, v, log),
		Organization: handler.NewOrganizationHandler(svc.Organization, svc.Entitlement, v, log),
		Plan:         handler.NewPlanHandler(),
		Workspace:    handler.NewWorkspaceHandler(svc.Workspace, v, log),
		Repository:   handler.NewRepositoryHandler(svc.Repository, v, log),
		Scan:         handler.NewScanHandler(svc.Scan, v, log),
		Schedule:     handler.NewScheduleHandler(svc.Schedule, v, log),
		Audit:        handler.NewAuditHandler(svc.Audit, v, log),
		WebSocket:    websocket.NewHandler(svc.Hub, identity, cfg.CORS.AllowedOrigins, log),
	}
}

// identity reads what middleware.Authenticate stored on the request.
func identity(r *http.Request) (userID, orgID string) {
	return middleware.GetUserID(r.Context()), middleware.GetOrgID(r.Context())
}
