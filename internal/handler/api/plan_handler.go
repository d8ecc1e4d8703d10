package api

import (
	"github.com/labstack/echo/v4"

	"vpnshop/internal/models"
)

// PlanLister exposes the in-memory plan catalog.
type PlanLister interface {
	Plans() []models.Plan
}

type PlanHandler struct {
	plans PlanLister
}

func NewPlanHandler(plans PlanLister) *PlanHandler {
	return &PlanHandler{plans: plans}
}

// List returns every plan ordered by traffic.
// GET /api/plans
func (h *PlanHandler) List(c echo.Context) error {
	return successResponse(c, "Successful", h.plans.Plans())
}
