package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/Mateo9804/gastoclaro/internal/apperrors"
	"github.com/Mateo9804/gastoclaro/internal/models"
	"github.com/Mateo9804/gastoclaro/internal/repositories"
)

// EntitlementService evaluates plan quotas and feature flags.
type EntitlementService interface {
	// MonthWindow returns the current calendar month as [from, to).
	MonthWindow() (time.Time, time.Time)
	ReceiptsThisMonth(ctx context.Context, tenantID uuid.UUID) (int, error)
	// CheckReceiptQuota rejects a batch of incoming uploads that would push
	// the tenant over its monthly receipt limit.
	CheckReceiptQuota(ctx context.Context, tenant *models.Tenant, incoming int) error
	// CheckMemberQuota rejects member creation once the tenant has more users
	// than its limit of additional members.
	CheckMemberQuota(ctx context.Context, tenant *models.Tenant) error
	AllowsExtraction(tenant *models.Tenant) bool
	AllowsAuditTrail(tenant *models.Tenant) bool
	AllowsExport(tenant *models.Tenant) bool
}

type entitlementService struct {
	receiptRepo repositories.ReceiptRepository
	userRepo    repositories.UserRepository
	clock       clockwork.Clock
	loc         *time.Location
}

func NewEntitlementService(receiptRepo repositories.ReceiptRepository, userRepo repositories.UserRepository, clock clockwork.Clock, loc *time.Location) EntitlementService {
	if loc == nil {
		loc = time.UTC
	}
	return &entitlementService{
		receiptRepo: receiptRepo,
		userRepo:    userRepo,
		clock:       clock,
		loc:         loc,
	}
}

func (s *entitlementService) MonthWindow() (time.Time, time.Time) {
	now := s.clock.Now().In(s.loc)
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, s.loc)
	return from, from.AddDate(0, 1, 0)
}

func (s *entitlementService) ReceiptsThisMonth(ctx context.Context, tenantID uuid.UUID) (int, error) {
	from, to := s.MonthWindow()
	return s.receiptRepo.CountCreatedBetween(ctx, tenantID, from, to)
}

func (s *entitlementService) CheckReceiptQuota(ctx context.Context, tenant *models.Tenant, incoming int) error {
	used, err := s.ReceiptsThisMonth(ctx, tenant.ID)
	if err != nil {
		return err
	}
	limit := tenant.ReceiptLimit
	if limit <= 0 {
		limit = DefaultReceiptLimit
	}
	if used+incoming > limit {
		return &apperrors.QuotaExceededError{Resource: "monthly receipt", Limit: limit, Used: used}
	}
	return nil
}

func (s *entitlementService) CheckMemberQuota(ctx context.Context, tenant *models.Tenant) error {
	count, err := s.userRepo.CountByTenant(ctx, tenant.ID)
	if err != nil {
		return err
	}
	limit := tenant.UserLimit
	if limit <= 0 {
		limit = LimitsFor(models.PlanBasic).UserLimit
	}
	if count > limit {
		return &apperrors.QuotaExceededError{Resource: "additional member", Limit: limit, Used: count - 1}
	}
	return nil
}

func (s *entitlementService) AllowsExtraction(tenant *models.Tenant) bool {
	return FeaturesFor(tenant.Plan).Extraction
}

func (s *entitlementService) AllowsAuditTrail(tenant *models.Tenant) bool {
	return FeaturesFor(tenant.Plan).AuditVisible
}

func (s *entitlementService) AllowsExport(tenant *models.Tenant) bool {
	return FeaturesFor(tenant.Plan).Export
}
