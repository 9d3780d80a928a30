package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Mateo9804/gastoclaro/internal/apperrors"
	"github.com/Mateo9804/gastoclaro/internal/common"
	"github.com/Mateo9804/gastoclaro/internal/middleware"
	"github.com/Mateo9804/gastoclaro/internal/models"
	"github.com/Mateo9804/gastoclaro/internal/services"
)

// AuthHandlers handles authentication-related HTTP requests
type AuthHandlers struct {
	authService services.AuthService
	leadService services.LeadService
}

// NewAuthHandlers creates a new auth handlers instance
func NewAuthHandlers(authService services.AuthService, leadService services.LeadService) *AuthHandlers {
	return &AuthHandlers{
		authService: authService,
		leadService: leadService,
	}
}

// Login handles user login with email and password
func (h *AuthHandlers) Login(c echo.Context) error {
	var req models.LoginRequest
	if err := bindAndValidate(c, &req); err != nil {
		return common.SendAppError(c, err)
	}

	resp, err := h.authService.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return common.SendAppError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// Logout revokes the bearer token of the request
func (h *AuthHandlers) Logout(c echo.Context) error {
	claims, ok := middleware.ClaimsFromContext(c)
	if !ok {
		return common.SendAppError(c, apperrors.ErrUnauthenticated)
	}
	if err := h.authService.Logout(c.Request().Context(), claims); err != nil {
		return common.SendAppError(c, err)
	}
	return c.JSON(http.StatusOK, MessageResponse{Message: "Logged out"})
}

// Me returns the session view of the authenticated user
func (h *AuthHandlers) Me(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return common.SendAppError(c, err)
	}
	user, err := h.authService.CurrentUser(c.Request().Context(), p)
	if err != nil {
		return common.SendAppError(c, err)
	}
	return c.JSON(http.StatusOK, user)
}

// ChangePassword handles POST /change-password
func (h *AuthHandlers) ChangePassword(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return common.SendAppError(c, err)
	}
	var req models.ChangePasswordRequest
	if err := bindAndValidate(c, &req); err != nil {
		return common.SendAppError(c, err)
	}
	if err := h.authService.ChangePassword(c.Request().Context(), p, req); err != nil {
		return common.SendAppError(c, err)
	}
	return c.JSON(http.StatusOK, MessageResponse{Message: "Password updated"})
}

// PricingRequest records a sales lead from the public pricing page
func (h *AuthHandlers) PricingRequest(c echo.Context) error {
	var req models.PricingRequest
	if err := bindAndValidate(c, &req); err != nil {
		return common.SendAppError(c, err)
	}
	if err := h.leadService.Submit(c.Request().Context(), c.RealIP(), req); err != nil {
		return common.SendAppError(c, err)
	}
	return c.JSON(http.StatusOK, MessageResponse{Message: "Thanks, our team will contact you shortly"})
}
