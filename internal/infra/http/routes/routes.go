// Package routes registers all HTTP routes for the API.
//
// Routes are split by area:
//   - auth.go: registration, login, the current user and the plan catalog
//   - organization.go: organization, plan and members
//   - workspaces.go: workspaces and their repositories
//   - scanning.go: scans, schedules and the realtime socket
//   - misc.go: health, metrics and audit logs
package routes

import (
	"github.com/openctemio/reposcan/internal/config"
	infrahttp "github.com/openctemio/reposcan/internal/infra/http"
	"github.com/openctemio/reposcan/internal/infra/http/handler"
	"github.com/openctemio/reposcan/internal/infra/http/middleware"
	"github.com/openctemio/reposcan/internal/infra/websocket"
	"github.com/openctemio/reposcan/pkg/logger"
)

const apiPrefix = "/api/v1"

// Middleware is an alias to the http package's Middleware type.
type Middleware = infrahttp.Middleware

// Router is an alias to the http package's Router interface.
type Router = infrahttp.Router

// Handlers holds all HTTP handlers for route registration.
type Handlers struct {
	Health       *handler.HealthHandler
	Auth         *handler.AuthHandler
	User         *handler.UserHandler
	Organization *handler.OrganizationHandler
	Plan         *handler.PlanHandler
	Workspace    *handler.WorkspaceHandler
	Repository   *handler.RepositoryHandler
	Scan         *handler.ScanHandler
	Schedule     *handler.ScheduleHandler
	Audit        *handler.AuditHandler
	WebSocket    *websocket.Handler // nil disables /ws
}

// Guards holds what the route level middleware needs.
type Guards struct {
	Tokens       middleware.TokenValidator
	Entitlements middleware.PermissionChecker
	// LoginLimiter throttles the auth endpoints. Nil disables it.
	LoginLimiter middleware.WindowLimiter
}

// guard builds route middleware from Guards.
type guard struct {
	auth    Middleware
	body    Middleware
	checker middleware.PermissionChecker
	log     *logger.Logger
}

func (g guard) perm(p string) Middleware {
	return middleware.RequirePermission(g.checker, p, g.log)
}

// Register registers all application routes.
func Register(router Router, h Handlers, guards Guards, cfg *config.Config, log *logger.Logger) {
	g := guard{
		auth:    middleware.Authenticate(guards.Tokens),
		body:    middleware.BodyLimit(cfg.Server.MaxBodySize),
		checker: guards.Entitlements,
		log:     log,
	}

	registerHealthRoutes(router, h.Health)

	var loginRL Middleware
	if guards.LoginLimiter != nil {
		loginRL = middleware.LoginRateLimit(guards.LoginLimiter, log)
	}
	registerAuthRoutes(router, h.Auth, g, loginRL)
	registerUserRoutes(router, h.User, g)
	registerPlanRoutes(router, h.Plan)
	registerOrganizationRoutes(router, h.Organization, g)
	registerWorkspaceRoutes(router, h.Workspace, h.Repository, g)
	registerRepositoryRoutes(router, h.Repository, g)
	registerScanRoutes(router, h.Scan, g, cfg.Server.MaxUploadSize)
	registerScheduleRoutes(router, h.Schedule, g)
	registerAuditRoutes(router, h.Audit, g)

	if h.WebSocket != nil {
		registerWebSocketRoutes(router, h.WebSocket, g)
	}
}

// compact drops nil middleware so optional guards can be passed inline.
func compact(mws ...Middleware) []Middleware {
	out := mws[:0]
	for _, mw := range mws {
		if mw != nil {
			out = append(out, mw)
		}
	}
	return out
}
