package routes

import (
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/openctemio/reposcan/internal/infra/http/handler"
	"github.com/openctemio/reposcan/internal/infra/http/middleware"
	"github.com/openctemio/reposcan/pkg/domain/organization"
	"github.com/openctemio/reposcan/pkg/domain/plan"
)

func registerHealthRoutes(router Router, h *handler.HealthHandler) {
	router.GET("/health", h.Health)
	router.GET("/ready", h.Ready)
	router.Mount("/metrics", promhttp.Handler())
}

// registerAuditRoutes registers the audit trail. Admins only; reading needs
// AUDIT:READ and bulk export AUDIT:EXPORT.
func registerAuditRoutes(router Router, h *handler.AuditHandler, g guard) {
	admin := middleware.RequireOrgRole(organization.RoleAdmin)
	router.GET(apiPrefix+"/audit-logs", h.List, g.auth, admin, g.perm(plan.PermAuditRead))
	router.GET(apiPrefix+"/audit-logs/export", h.Export, g.auth, admin, g.perm(plan.PermAuditExport))
}
