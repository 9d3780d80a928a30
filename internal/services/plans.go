package services

import (
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/Mateo9804/gastoclaro/internal/models"
)

// DefaultReceiptLimit applies when a tenant row carries no receipt limit.
const DefaultReceiptLimit = 100

// UpgradeDiscount is taken off the first period of a basic-to-paid upgrade.
var UpgradeDiscount = decimal.NewFromInt(20)

var planLimits = map[models.Plan]models.PlanLimits{
	models.PlanBasic:      {UserLimit: 3, ReceiptLimit: 100},
	models.PlanPro:        {UserLimit: 10, ReceiptLimit: 500},
	models.PlanEnterprise: {UserLimit: 20, ReceiptLimit: 1500},
}

var planPrices = map[models.Plan]decimal.Decimal{
	models.PlanBasic:      decimal.RequireFromString("19.99"),
	models.PlanPro:        decimal.RequireFromString("49.99"),
	models.PlanEnterprise: decimal.RequireFromString("79.99"),
}

// LimitsFor is the single source of truth for plan quotas. Unknown plans get
// the basic quotas.
func LimitsFor(plan models.Plan) models.PlanLimits {
	if l, ok := planLimits[plan]; ok {
		return l
	}
	return planLimits[models.PlanBasic]
}

// FeaturesFor reports the feature flags of a plan.
func FeaturesFor(plan models.Plan) models.PlanFeatures {
	paid := plan == models.PlanPro || plan == models.PlanEnterprise
	return models.PlanFeatures{
		Extraction:   paid,
		AuditVisible: paid,
		Export:       paid,
	}
}

// PriceFor returns the monthly list price of a plan.
func PriceFor(plan models.Plan) decimal.Decimal {
	return planPrices[plan]
}

// Catalogue lists every plan with its price, limits and features.
func Catalogue() []models.PlanOffer {
	return lo.Map(models.Plans, func(p models.Plan, _ int) models.PlanOffer {
		return models.PlanOffer{
			Plan:     p,
			Price:    PriceFor(p),
			Limits:   LimitsFor(p),
			Features: FeaturesFor(p),
		}
	})
}

// applyPlan sets plan and its quotas on a tenant.
func applyPlan(t *models.Tenant, plan models.Plan) {
	limits := LimitsFor(plan)
	t.Plan = plan
	t.UserLimit = limits.UserLimit
	t.ReceiptLimit = limits.ReceiptLimit
}
