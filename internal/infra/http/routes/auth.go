package routes

import (
	"github.com/openctemio/reposcan/internal/infra/http/handler"
)

// registerAuthRoutes registers the public auth endpoints. They share the
// login limiter so registration can't be used to guess passwords either.
func registerAuthRoutes(router Router, h *handler.AuthHandler, g guard, loginRL Middleware) {
	router.Group(apiPrefix+"/auth", func(r Router) {
		r.POST("/register", h.Register)
		r.POST("/login", h.Login)
		r.POST("/refresh", h.Refresh)
	}, compact(g.body, loginRL)...)
}

func registerUserRoutes(router Router, h *handler.UserHandler, g guard) {
	router.Group(apiPrefix+"/me", func(r Router) {
		r.GET("/", h.GetMe)
		r.PATCH("/", h.UpdateMe)
		r.POST("/password", h.ChangePassword)
	}, g.body, g.auth)
}

// registerPlanRoutes registers the public plan catalog.
func registerPlanRoutes(router Router, h *handler.PlanHandler) {
	router.GET(apiPrefix+"/plans", h.List)
}
