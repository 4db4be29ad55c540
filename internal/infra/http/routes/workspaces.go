package routes

import (
	"github.com/openctemio/reposcan/internal/infra/http/handler"
	"github.com/openctemio/reposcan/internal/infra/http/middleware"
	"github.com/openctemio/reposcan/pkg/domain/organization"
	"github.com/openctemio/reposcan/pkg/domain/plan"
)

// registerWorkspaceRoutes registers workspaces and the repository endpoints
// nested under them.
func registerWorkspaceRoutes(router Router, h *handler.WorkspaceHandler, repos *handler.RepositoryHandler, g guard) {
	member := middleware.RequireOrgRole(organization.RoleMember)
	admin := middleware.RequireOrgRole(organization.RoleAdmin)

	router.Group(apiPrefix+"/workspaces", func(r Router) {
		r.GET("/", h.List)
		r.POST("/", h.Create, member, g.perm(plan.PermWorkspaceCreate))

		r.GET("/{id}", h.Get)
		r.PATCH("/{id}", h.Update, member)
		r.DELETE("/{id}", h.Delete, admin)

		r.GET("/{id}/members", h.ListMembers)
		r.POST("/{id}/members", h.AddMember, admin)
		r.DELETE("/{id}/members/{userId}", h.RemoveMember, admin)

		r.GET("/{id}/repositories", repos.List)
		r.POST("/{id}/repositories", repos.Connect, member, g.perm(plan.PermRepositoryConnect))
	}, g.body, g.auth)
}

func registerRepositoryRoutes(router Router, h *handler.RepositoryHandler, g guard) {
	member := middleware.RequireOrgRole(organization.RoleMember)

	router.Group(apiPrefix+"/repositories", func(r Router) {
		r.GET("/{id}", h.Get)
		r.PATCH("/{id}", h.Update, member)
		r.DELETE("/{id}", h.Disconnect, member)
		r.POST("/{id}/verify", h.Verify, member)
	}, g.body, g.auth)
}
