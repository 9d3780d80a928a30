package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/Mateo9804/gastoclaro/internal/apperrors"
	"github.com/Mateo9804/gastoclaro/internal/metrics"
	"github.com/Mateo9804/gastoclaro/internal/models"
	"github.com/Mateo9804/gastoclaro/internal/repositories"
)

// BillingCycle is the length of one paid subscription period.
const BillingCycle = 30 * 24 * time.Hour

// SubscriptionService handles the plan lifecycle of a tenant
type SubscriptionService interface {
	Get(ctx context.Context, p models.Principal) (*models.Subscription, error)
	Cancel(ctx context.Context, p models.Principal) (*models.Tenant, error)
	ChangePlan(ctx context.Context, p models.Principal, plan models.Plan) (*models.PlanChangeResult, error)
	Renew(ctx context.Context, p models.Principal) (*models.Tenant, error)
	// ExpireLapsed marks cancelled subscriptions past their end as expired.
	ExpireLapsed(ctx context.Context) (int, error)
}

type subscriptionService struct {
	tenantRepo   repositories.TenantRepository
	userRepo     repositories.UserRepository
	entitlements EntitlementService
	metrics      *metrics.Metrics
	clock        clockwork.Clock
	logger       *zap.Logger
}

// NewSubscriptionService creates a new SubscriptionService instance
func NewSubscriptionService(
	tenantRepo repositories.TenantRepository,
	userRepo repositories.UserRepository,
	entitlements EntitlementService,
	m *metrics.Metrics,
	clock clockwork.Clock,
	logger *zap.Logger,
) SubscriptionService {
	return &subscriptionService{
		tenantRepo:   tenantRepo,
		userRepo:     userRepo,
		entitlements: entitlements,
		metrics:      m,
		clock:        clock,
		logger:       logger,
	}
}

func (s *subscriptionService) tenantOf(ctx context.Context, p models.Principal, capability Capability) (*models.Tenant, error) {
	if err := authorize(p, capability); err != nil {
		return nil, err
	}
	return s.tenantRepo.GetByID(ctx, *p.TenantID)
}

func (s *subscriptionService) Get(ctx context.Context, p models.Principal) (*models.Subscription, error) {
	tenant, err := s.tenantOf(ctx, p, CapViewReceipts)
	if err != nil {
		return nil, err
	}
	used, err := s.entitlements.ReceiptsThisMonth(ctx, tenant.ID)
	if err != nil {
		return nil, err
	}
	members, err := s.userRepo.CountByTenant(ctx, tenant.ID)
	if err != nil {
		return nil, err
	}

	return &models.Subscription{
		Plan:          tenant.Plan,
		Status:        tenant.SubscriptionStatus,
		EndsAt:        tenant.SubscriptionEndsAt,
		PendingPlan:   tenant.PendingPlan,
		LastPaymentAt: tenant.LastPaymentAt,
		Limits:        models.PlanLimits{UserLimit: tenant.UserLimit, ReceiptLimit: tenant.ReceiptLimit},
		Features:      FeaturesFor(tenant.Plan),
		ReceiptsUsed:  used,
		Members:       members,
		Catalogue:     Catalogue(),
	}, nil
}

// Cancel keeps the plan usable until the end of the cycle and drops any
// scheduled change.
func (s *subscriptionService) Cancel(ctx context.Context, p models.Principal) (*models.Tenant, error) {
	tenant, err := s.tenantOf(ctx, p, CapManageSubscription)
	if err != nil {
		return nil, err
	}
	tenant.SubscriptionStatus = models.SubscriptionCancelled
	tenant.PendingPlan = nil
	if err := s.tenantRepo.Update(ctx, tenant); err != nil {
		return nil, err
	}

	s.metrics.PlanChanged("cancel")
	s.logger.Info("subscription cancelled", zap.String("tenant_id", tenant.ID.String()))
	return tenant, nil
}

// ChangePlan upgrades basic tenants immediately; every other change is
// deferred to the next renewal.
func (s *subscriptionService) ChangePlan(ctx context.Context, p models.Principal, plan models.Plan) (*models.PlanChangeResult, error) {
	if !plan.Valid() {
		return nil, apperrors.NewValidation("plan", "must be one of basic, pro, enterprise")
	}
	tenant, err := s.tenantOf(ctx, p, CapManageSubscription)
	if err != nil {
		return nil, err
	}
	if tenant.Plan == plan {
		return nil, apperrors.ErrSamePlan
	}

	result := &models.PlanChangeResult{Tenant: tenant}
	if tenant.Plan == models.PlanBasic {
		now := s.clock.Now()
		endsAt := now.Add(BillingCycle)
		applyPlan(tenant, plan)
		tenant.SubscriptionStatus = models.SubscriptionActive
		tenant.SubscriptionEndsAt = &endsAt
		tenant.LastPaymentAt = &now
		tenant.PendingPlan = nil

		listPrice := PriceFor(plan)
		firstPeriod := listPrice.Sub(UpgradeDiscount)
		discount := UpgradeDiscount
		result.Immediate = true
		result.ListPrice = &listPrice
		result.Discount = &discount
		result.FirstPeriod = &firstPeriod
		result.Message = fmt.Sprintf("Plan upgraded to %s. A discount of %s has been applied to your first month.",
			planTitle(plan), discount.StringFixed(0))
	} else {
		pending := plan
		tenant.PendingPlan = &pending
		tenant.SubscriptionStatus = models.SubscriptionActive
		result.Message = fmt.Sprintf("Your plan will change to %s at the end of the current billing cycle.", planTitle(plan))
	}

	if err := s.tenantRepo.Update(ctx, tenant); err != nil {
		return nil, err
	}

	kind := "deferred"
	if result.Immediate {
		kind = "upgrade"
	}
	s.metrics.PlanChanged(kind)
	s.logger.Info("plan change requested",
		zap.String("tenant_id", tenant.ID.String()),
		zap.String("plan", string(plan)),
		zap.String("kind", kind))
	return result, nil
}

// Renew starts a new billing cycle, applying any pending plan.
func (s *subscriptionService) Renew(ctx context.Context, p models.Principal) (*models.Tenant, error) {
	tenant, err := s.tenantOf(ctx, p, CapManageSubscription)
	if err != nil {
		return nil, err
	}

	plan := tenant.Plan
	if tenant.PendingPlan != nil {
		plan = *tenant.PendingPlan
	}
	now := s.clock.Now()
	endsAt := now.Add(BillingCycle)
	applyPlan(tenant, plan)
	tenant.SubscriptionStatus = models.SubscriptionActive
	tenant.SubscriptionEndsAt = &endsAt
	tenant.LastPaymentAt = &now
	tenant.PendingPlan = nil

	if err := s.tenantRepo.Update(ctx, tenant); err != nil {
		return nil, err
	}

	s.metrics.PlanChanged("renew")
	s.logger.Info("subscription renewed",
		zap.String("tenant_id", tenant.ID.String()),
		zap.String("plan", string(plan)))
	return tenant, nil
}

func (s *subscriptionService) ExpireLapsed(ctx context.Context) (int, error) {
	ids, err := s.tenantRepo.ExpireCancelled(ctx, s.clock.Now())
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		s.logger.Info("subscription expired", zap.String("tenant_id", id.String()))
	}
	return len(ids), nil
}

func planTitle(p models.Plan) string {
	s := string(p)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
