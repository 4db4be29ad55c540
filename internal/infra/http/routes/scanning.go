package routes

import (
	"github.com/openctemio/reposcan/internal/infra/http/handler"
	"github.com/openctemio/reposcan/internal/infra/http/middleware"
	"github.com/openctemio/reposcan/internal/infra/websocket"
	"github.com/openctemio/reposcan/pkg/domain/organization"
	"github.com/openctemio/reposcan/pkg/domain/plan"
)

// registerScanRoutes registers scan endpoints. Result uploads get their own
// body limit and accept gzip or zstd bodies.
func registerScanRoutes(router Router, h *handler.ScanHandler, g guard, maxUpload int64) {
	member := middleware.RequireOrgRole(organization.RoleMember)
	decompressCfg := middleware.DefaultDecompressConfig()
	if maxUpload > 0 {
		decompressCfg.MaxDecompressedSize = maxUpload
	}

	router.Group(apiPrefix+"/scans", func(r Router) {
		r.GET("/", h.List, g.body, g.perm(plan.PermScanView))
		r.POST("/", h.Trigger, g.body, member, g.perm(plan.PermScanRun))
		// The detail carries the findings summary.
		r.GET("/{id}", h.Get, g.body, g.perm(plan.PermScanView), g.perm(plan.PermReportView))
		r.POST("/{id}/cancel", h.Cancel, g.body, member)
		r.POST("/{id}/report", h.ExportReport, g.body, g.perm(plan.PermReportExport))
		r.POST("/{id}/results", h.SubmitResults,
			member,
			g.perm(plan.PermResultsUpload),
			middleware.BodyLimit(maxUpload),
			middleware.Decompress(decompressCfg),
		)
	}, g.auth)
}

func registerScheduleRoutes(router Router, h *handler.ScheduleHandler, g guard) {
	member := middleware.RequireOrgRole(organization.RoleMember)

	router.Group(apiPrefix+"/schedules", func(r Router) {
		r.GET("/", h.List)
		r.POST("/", h.Create, member, g.perm(plan.PermScanSchedule))
		r.GET("/{id}", h.Get)
		r.PATCH("/{id}", h.Update, member)
		r.DELETE("/{id}", h.Delete, member)
		r.POST("/{id}/enable", h.Enable, member)
		r.POST("/{id}/disable", h.Disable, member)
	}, g.body, g.auth)
}

// registerWebSocketRoutes registers the realtime scan event socket. Browsers
// can't set headers on the upgrade, so the token may also come as a query
// parameter; see middleware.Authenticate.
func registerWebSocketRoutes(router Router, h *websocket.Handler, g guard) {
	router.GET(apiPrefix+"/ws", h.ServeWS, g.auth, g.perm(plan.PermScanRealtime))
}
