package middleware

import (
	"github.com/labstack/echo/v4"
	"github.com/samber/lo"

	"github.com/Mateo9804/gastoclaro/internal/apperrors"
	"github.com/Mateo9804/gastoclaro/internal/common"
	"github.com/Mateo9804/gastoclaro/internal/models"
	"github.com/Mateo9804/gastoclaro/internal/services"
)

// RequireCapability rejects callers whose role lacks capability. Services
// re-check the same matrix, this only fails fast at the route.
func RequireCapability(capability services.Capability) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p, ok := common.GetPrincipalFromContext(c.Request().Context())
			if !ok {
				return apperrors.ErrUnauthenticated
			}
			if !services.Can(p.Role, capability) {
				return apperrors.ErrForbidden
			}
			return next(c)
		}
	}
}

// RequireRoles rejects callers whose role is not listed.
func RequireRoles(roles ...models.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p, ok := common.GetPrincipalFromContext(c.Request().Context())
			if !ok {
				return apperrors.ErrUnauthenticated
			}
			if !lo.Contains(roles, p.Role) {
				return apperrors.ErrForbidden
			}
			return next(c)
		}
	}
}
