package common

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/Mateo9804/gastoclaro/internal/apperrors"
)

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Error struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Details map[string]string `json:"details,omitempty"`
	} `json:"error"`
}

// CreateErrorResponse creates a standardized error response
func CreateErrorResponse(code string, message string, details map[string]string) *ErrorResponse {
	var resp ErrorResponse
	resp.Error.Code = code
	resp.Error.Message = message
	resp.Error.Details = details
	return &resp
}

// SendValidationError sends a validation error response
func SendValidationError(c echo.Context, field, message string) error {
	details := map[string]string{
		field: message,
	}
	return c.JSON(http.StatusUnprocessableEntity, CreateErrorResponse("VALIDATION_ERROR", "Validation failed", details))
}

// SendForbiddenError sends a generic authorization error response
func SendForbiddenError(c echo.Context) error {
	return c.JSON(http.StatusForbidden, CreateErrorResponse("FORBIDDEN", "This action is unauthorized", nil))
}

// SendServerError sends a server error response
func SendServerError(c echo.Context, message string) error {
	return c.JSON(http.StatusInternalServerError, CreateErrorResponse("SERVER_ERROR", message, nil))
}

// SendUnauthorizedError sends an unauthorized error response
func SendUnauthorizedError(c echo.Context, message string) error {
	return c.JSON(http.StatusUnauthorized, CreateErrorResponse("UNAUTHORIZED", message, nil))
}

// SendAppError maps the application error taxonomy onto HTTP responses.
func SendAppError(c echo.Context, err error) error {
	var (
		authnErr *apperrors.AuthenticationError
		authzErr *apperrors.AuthorizationError
		nfErr    *apperrors.NotFoundError
		valErr   *apperrors.ValidationError
		quotaErr *apperrors.QuotaExceededError
		rateErr  *apperrors.RateLimitedError
		httpErr  *echo.HTTPError
	)

	switch {
	case errors.As(err, &authnErr):
		return SendUnauthorizedError(c, authnErr.Message)
	case errors.As(err, &authzErr), errors.As(err, &nfErr):
		return SendForbiddenError(c)
	case errors.As(err, &valErr):
		field := valErr.Field
		if field == "" {
			field = "request"
		}
		return SendValidationError(c, field, valErr.Message)
	case errors.As(err, &quotaErr):
		return c.JSON(http.StatusUnprocessableEntity, CreateErrorResponse("QUOTA_EXCEEDED", quotaErr.Error(), map[string]string{
			"resource": quotaErr.Resource,
		}))
	case errors.As(err, &rateErr):
		return c.JSON(http.StatusTooManyRequests, CreateErrorResponse("RATE_LIMITED", rateErr.Message, nil))
	case errors.As(err, &httpErr):
		return c.JSON(httpErr.Code, CreateErrorResponse(http.StatusText(httpErr.Code), messageOf(httpErr), nil))
	}

	zap.L().Error("unhandled error",
		zap.String("method", c.Request().Method),
		zap.String("path", c.Path()),
		zap.Error(err),
	)
	return SendServerError(c, "Internal server error")
}

// HTTPErrorHandler renders every error returned by a handler or middleware
// in the ErrorResponse envelope.
func HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	if sendErr := SendAppError(c, err); sendErr != nil {
		zap.L().Warn("failed to write error response", zap.Error(sendErr))
	}
}

func messageOf(he *echo.HTTPError) string {
	if msg, ok := he.Message.(string); ok {
		return msg
	}
	return http.StatusText(he.Code)
}
