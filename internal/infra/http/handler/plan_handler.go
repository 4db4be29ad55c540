package handler

import (
	"net/http"

	"github.com/openctemio/reposcan/pkg/domain/plan"
)

// PlanHandler serves the public plan catalog.
type PlanHandler struct {
	catalog []PlanResponse
}

// PlanResponse describes one plan.
type PlanResponse struct {
	Name        string          `json:"name"`
	Rank        int             `json:"rank"`
	Permissions []string        `json:"permissions"`
	Limits      plan.PlanLimits `json:"limits"`
}

// NewPlanHandler builds the catalog once; the plan tables never change at
// runtime.
func NewPlanHandler() *PlanHandler {
	plans := plan.All()
	catalog := make([]PlanResponse, 0, len(plans))
	for _, p := range plans {
		perms, _ := plan.Permissions(p)
		limits, _ := plan.Limits(p)
		catalog = append(catalog, PlanResponse{Name: p.String(), Rank: p.Rank(), Permissions: perms, Limits: limits})
	}
	return &PlanHandler{catalog: catalog}
}

// List handles GET /api/v1/plans.
// @Summary      Plan catalog
// @Description  Every plan with its permissions and limits. A limit of -1 is unlimited.
// @Tags         Plans
// @Produce      json
// @Success      200  {object}  map[string][]PlanResponse
// @Router       /plans [get]
func (h *PlanHandler) List(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"data": h.catalog, "unlimited": plan.Unlimited})
}
