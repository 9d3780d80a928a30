package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Mateo9804/gastoclaro/internal/common"
	"github.com/Mateo9804/gastoclaro/internal/models"
	"github.com/Mateo9804/gastoclaro/internal/services"
)

// SubscriptionHandlers handles plan lifecycle HTTP requests
type SubscriptionHandlers struct {
	subscriptionService services.SubscriptionService
}

// NewSubscriptionHandlers creates the subscription handlers
func NewSubscriptionHandlers(subscriptionService services.SubscriptionService) *SubscriptionHandlers {
	return &SubscriptionHandlers{subscriptionService: subscriptionService}
}

type ChangePlanRequest struct {
	Plan models.Plan `json:"plan" validate:"required,oneof=basic pro enterprise"`
}

// GetSubscription handles GET /subscription
func (h *SubscriptionHandlers) GetSubscription(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return common.SendAppError(c, err)
	}
	sub, err := h.subscriptionService.Get(c.Request().Context(), p)
	if err != nil {
		return common.SendAppError(c, err)
	}
	return c.JSON(http.StatusOK, sub)
}

// CancelSubscription handles POST /subscription/cancel
func (h *SubscriptionHandlers) CancelSubscription(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return common.SendAppError(c, err)
	}
	tenant, err := h.subscriptionService.Cancel(c.Request().Context(), p)
	if err != nil {
		return common.SendAppError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"message": "Your subscription has been cancelled and stays active until the end of the current cycle.",
		"company": tenant,
	})
}

// ChangePlan handles POST /subscription/change-plan
func (h *SubscriptionHandlers) ChangePlan(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return common.SendAppError(c, err)
	}
	var req ChangePlanRequest
	if err := bindAndValidate(c, &req); err != nil {
		return common.SendAppError(c, err)
	}
	result, err := h.subscriptionService.ChangePlan(c.Request().Context(), p, req.Plan)
	if err != nil {
		return common.SendAppError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

// RenewSubscription handles POST /subscription/renew
func (h *SubscriptionHandlers) RenewSubscription(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return common.SendAppError(c, err)
	}
	tenant, err := h.subscriptionService.Renew(c.Request().Context(), p)
	if err != nil {
		return common.SendAppError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"message": "Your subscription has been renewed.",
		"company": tenant,
	})
}
