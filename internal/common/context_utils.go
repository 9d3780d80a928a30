package common

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Mateo9804/gastoclaro/internal/models"
)

type contextKey string

const (
	UserIDKey    contextKey = "user_id"
	TenantIDKey  contextKey = "tenant_id"
	PrincipalKey contextKey = "principal"
)

// WithPrincipal stores the authenticated caller on ctx.
func WithPrincipal(ctx context.Context, p models.Principal) context.Context {
	ctx = context.WithValue(ctx, PrincipalKey, p)
	ctx = context.WithValue(ctx, UserIDKey, p.UserID)
	if p.TenantID != nil {
		ctx = context.WithValue(ctx, TenantIDKey, *p.TenantID)
	}
	return ctx
}

// GetPrincipalFromContext extracts the authenticated caller from the request context
func GetPrincipalFromContext(ctx context.Context) (models.Principal, bool) {
	p, ok := ctx.Value(PrincipalKey).(models.Principal)
	return p, ok
}

// GetUserIDFromContext extracts the user ID from the request context
func GetUserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	userID, ok := ctx.Value(UserIDKey).(uuid.UUID)
	return userID, ok
}

// GetTenantIDFromContext extracts the tenant ID from the request context
func GetTenantIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	tenantID, ok := ctx.Value(TenantIDKey).(uuid.UUID)
	return tenantID, ok
}

// ValidateUUID validates UUID format
func ValidateUUID(idStr string, fieldName string) (uuid.UUID, error) {
	idStr = strings.TrimSpace(idStr)
	if idStr == "" {
		return uuid.Nil, fmt.Errorf("%s is required", fieldName)
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%s is not a valid id", fieldName)
	}
	return id, nil
}

// ParseDateFilter infers the match granularity from the input length:
// 4 characters is a year, 7 is YYYY-MM, anything else an exact date.
// The window boundaries are midnights in loc.
func ParseDateFilter(value, fieldName string, loc *time.Location) (*models.DateFilter, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}

	var (
		layout      string
		granularity models.DateGranularity
		msg         string
	)
	switch len(value) {
	case 4:
		layout, granularity, msg = "2006", models.GranularityYear, "a year (YYYY)"
	case 7:
		layout, granularity, msg = "2006-01", models.GranularityMonth, "a month (YYYY-MM)"
	default:
		layout, granularity, msg = "2006-01-02", models.GranularityDay, "in YYYY-MM-DD format"
	}

	from, err := time.ParseInLocation(layout, value, loc)
	if err != nil {
		return nil, fmt.Errorf("%s must be %s", fieldName, msg)
	}

	var to time.Time
	switch granularity {
	case models.GranularityYear:
		to = from.AddDate(1, 0, 0)
	case models.GranularityMonth:
		to = from.AddDate(0, 1, 0)
	default:
		to = from.AddDate(0, 0, 1)
	}

	return &models.DateFilter{Granularity: granularity, From: from, To: to}, nil
}

// SafeString safely handles string pointer operations
func SafeString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
