package common

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mateo9804/gastoclaro/internal/apperrors"
	"github.com/Mateo9804/gastoclaro/internal/models"
)

func TestParseDateFilter(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		granularity models.DateGranularity
		wantErr     bool
	}{
		{name: "year", input: "2024", granularity: models.GranularityYear},
		{name: "month", input: "2024-03", granularity: models.GranularityMonth},
		{name: "day", input: "2024-03-15", granularity: models.GranularityDay},
		{name: "bad year", input: "20x4", wantErr: true},
		{name: "bad day", input: "15/03/2024", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := ParseDateFilter(tt.input, "date", time.UTC)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.granularity, f.Granularity)
		})
	}

	f, err := ParseDateFilter("2024-03", "date", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC), f.From)
	assert.Equal(t, time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC), f.To)

	madrid, err := time.LoadLocation("Europe/Madrid")
	require.NoError(t, err)
	f, err = ParseDateFilter("2024", "date", madrid)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, time.January, 1, 0, 0, 0, 0, madrid), f.To)

	f, err = ParseDateFilter("  ", "date", time.UTC)
	require.NoError(t, err)
	assert.Nil(t, f)
}

func TestSendAppError_StatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "authentication", err: apperrors.ErrInvalidCredentials, status: http.StatusUnauthorized, code: "UNAUTHORIZED"},
		{name: "authorization", err: apperrors.ErrForbidden, status: http.StatusForbidden, code: "FORBIDDEN"},
		{name: "not found hides existence", err: apperrors.ErrReceiptNotFound, status: http.StatusForbidden, code: "FORBIDDEN"},
		{name: "validation", err: apperrors.NewValidation("email", "taken"), status: http.StatusUnprocessableEntity, code: "VALIDATION_ERROR"},
		{name: "quota", err: &apperrors.QuotaExceededError{Resource: "receipts", Limit: 100, Used: 100}, status: http.StatusUnprocessableEntity, code: "QUOTA_EXCEEDED"},
		{name: "rate limited", err: apperrors.ErrTooManyAttempts, status: http.StatusTooManyRequests, code: "RATE_LIMITED"},
		{name: "unknown", err: assert.AnError, status: http.StatusInternalServerError, code: "SERVER_ERROR"},
	}

	e := echo.New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			require.NoError(t, SendAppError(c, tt.err))
			assert.Equal(t, tt.status, rec.Code)

			var body ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.code, body.Error.Code)
		})
	}
}

func TestRequestValidator(t *testing.T) {
	v := NewRequestValidator()

	err := v.Validate(&models.ChangePasswordRequest{
		CurrentPassword:         "old-secret",
		NewPassword:             "short",
		NewPasswordConfirmation: "short",
	})
	var ve *apperrors.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "new_password", ve.Field)

	err = v.Validate(&models.ChangePasswordRequest{
		CurrentPassword:         "old-secret",
		NewPassword:             "long-enough",
		NewPasswordConfirmation: "different-one",
	})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "new_password_confirmation", ve.Field)

	assert.NoError(t, v.Validate(&models.LoginRequest{Email: "ana@acme.com", Password: "x"}))
}

func TestWithPrincipal(t *testing.T) {
	p := models.Principal{UserID: uuid.New(), Role: models.RoleAdmin}
	ctx := WithPrincipal(httptest.NewRequest(http.MethodGet, "/", nil).Context(), p)

	got, ok := GetPrincipalFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, models.RoleAdmin, got.Role)

	_, ok = GetTenantIDFromContext(ctx)
	assert.False(t, ok)
}
