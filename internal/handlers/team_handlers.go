package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Mateo9804/gastoclaro/internal/common"
	"github.com/Mateo9804/gastoclaro/internal/models"
	"github.com/Mateo9804/gastoclaro/internal/services"
)

// TeamHandlers serves team administration. The super admin manages
// companies, tenant admins manage their members.
type TeamHandlers struct {
	teamService services.TeamService
}

// NewTeamHandlers creates the team management handlers
func NewTeamHandlers(teamService services.TeamService) *TeamHandlers {
	return &TeamHandlers{teamService: teamService}
}

func (h *TeamHandlers) operations(c echo.Context) (services.TeamOperations, error) {
	p, err := principal(c)
	if err != nil {
		return nil, err
	}
	return h.teamService.For(p)
}

// ListTeam handles GET /team
func (h *TeamHandlers) ListTeam(c echo.Context) error {
	ops, err := h.operations(c)
	if err != nil {
		return common.SendAppError(c, err)
	}
	users, err := ops.List(c.Request().Context())
	if err != nil {
		return common.SendAppError(c, err)
	}
	return c.JSON(http.StatusOK, users)
}

// CreateTeamMember handles POST /team
func (h *TeamHandlers) CreateTeamMember(c echo.Context) error {
	ops, err := h.operations(c)
	if err != nil {
		return common.SendAppError(c, err)
	}
	var req models.TeamRequest
	if err := c.Bind(&req); err != nil {
		return common.SendValidationError(c, "request", "Invalid request format")
	}
	user, err := ops.Create(c.Request().Context(), req)
	if err != nil {
		return common.SendAppError(c, err)
	}
	return c.JSON(http.StatusCreated, user)
}

// UpdateTeamMember handles PUT /team/:id
func (h *TeamHandlers) UpdateTeamMember(c echo.Context) error {
	ops, err := h.operations(c)
	if err != nil {
		return common.SendAppError(c, err)
	}
	id, err := pathID(c, "id")
	if err != nil {
		return common.SendAppError(c, err)
	}
	var req models.TeamRequest
	if err := c.Bind(&req); err != nil {
		return common.SendValidationError(c, "request", "Invalid request format")
	}
	user, err := ops.Update(c.Request().Context(), id, req)
	if err != nil {
		return common.SendAppError(c, err)
	}
	return c.JSON(http.StatusOK, user)
}

// DeleteTeamMember handles DELETE /team/:id
func (h *TeamHandlers) DeleteTeamMember(c echo.Context) error {
	ops, err := h.operations(c)
	if err != nil {
		return common.SendAppError(c, err)
	}
	id, err := pathID(c, "id")
	if err != nil {
		return common.SendAppError(c, err)
	}
	if err := ops.Delete(c.Request().Context(), id); err != nil {
		return common.SendAppError(c, err)
	}
	return c.JSON(http.StatusOK, MessageResponse{Message: "User deleted"})
}
