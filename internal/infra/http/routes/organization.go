package routes

import (
	"github.com/openctemio/reposcan/internal/infra/http/handler"
	"github.com/openctemio/reposcan/internal/infra/http/middleware"
	"github.com/openctemio/reposcan/pkg/domain/organization"
)

func registerOrganizationRoutes(router Router, h *handler.OrganizationHandler, g guard) {
	admin := middleware.RequireOrgRole(organization.RoleAdmin)
	owner := middleware.RequireOrgRole(organization.RoleOwner)

	router.Group(apiPrefix+"/organization", func(r Router) {
		r.GET("/", h.Get)
		r.PATCH("/", h.Rename, admin)
		r.GET("/entitlements", h.Entitlements)
		r.PUT("/plan", h.ChangePlan, owner)

		r.GET("/members", h.ListMembers)
		r.POST("/members", h.AddMember, admin)
		r.PATCH("/members/{userId}", h.UpdateMemberRole, admin)
		r.DELETE("/members/{userId}", h.RemoveMember, admin)
	}, g.body, g.auth)
}
