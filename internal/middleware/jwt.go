package middleware

import (
	"errors"

	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/Mateo9804/gastoclaro/internal/apperrors"
	"github.com/Mateo9804/gastoclaro/internal/common"
	"github.com/Mateo9804/gastoclaro/internal/logger"
	"github.com/Mateo9804/gastoclaro/internal/services"
)

// ClaimsContextKey is where the verified *services.TokenClaims are stored on the echo context.
const ClaimsContextKey = "claims"

// JWTMiddleware authenticates bearer tokens through the auth service, so
// revoked tokens are rejected. The principal is then rebuilt from the
// current user row and stored on the request context: a demoted member
// loses capabilities at once and a deleted member gets 401.
func JWTMiddleware(authSvc services.AuthService) echo.MiddlewareFunc {
	verify := echojwt.WithConfig(echojwt.Config{
		ContextKey:  ClaimsContextKey,
		TokenLookup: "header:Authorization:Bearer ",
		ParseTokenFunc: func(c echo.Context, auth string) (interface{}, error) {
			return authSvc.ValidateToken(c.Request().Context(), auth)
		},
		ErrorHandler: func(c echo.Context, err error) error {
			logger.FromEcho(c).Debug("token rejected", zap.Error(err))
			return apperrors.ErrUnauthenticated
		},
	})

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return verify(func(c echo.Context) error {
			claims, ok := ClaimsFromContext(c)
			if !ok {
				return apperrors.ErrUnauthenticated
			}
			p, err := authSvc.ResolvePrincipal(c.Request().Context(), claims)
			if err != nil {
				var authErr *apperrors.AuthenticationError
				if errors.As(err, &authErr) {
					logger.FromEcho(c).Debug("token holder no longer valid", zap.String("user_id", claims.UserID))
				}
				return err
			}
			c.SetRequest(c.Request().WithContext(common.WithPrincipal(c.Request().Context(), p)))
			return next(c)
		})
	}
}

// ClaimsFromContext returns the verified token claims of the request.
func ClaimsFromContext(c echo.Context) (*services.TokenClaims, bool) {
	claims, ok := c.Get(ClaimsContextKey).(*services.TokenClaims)
	return claims, ok
}
