package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Plan string

const (
	PlanBasic      Plan = "basic"
	PlanPro        Plan = "pro"
	PlanEnterprise Plan = "enterprise"
)

// Plans is the catalogue in ascending tier order.
var Plans = []Plan{PlanBasic, PlanPro, PlanEnterprise}

func (p Plan) Valid() bool {
	switch p {
	case PlanBasic, PlanPro, PlanEnterprise:
		return true
	}
	return false
}

type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
	SubscriptionExpired   SubscriptionStatus = "expired"
)

// PlanLimits are the quotas attached to a plan tier.
type PlanLimits struct {
	UserLimit    int `json:"user_limit"`
	ReceiptLimit int `json:"receipt_limit"`
}

// PlanFeatures are the feature flags attached to a plan tier.
type PlanFeatures struct {
	Extraction   bool `json:"ocr"`
	AuditVisible bool `json:"audit_trail"`
	Export       bool `json:"export"`
}

type PlanOffer struct {
	Plan     Plan            `json:"plan"`
	Price    decimal.Decimal `json:"price"`
	Limits   PlanLimits      `json:"limits"`
	Features PlanFeatures    `json:"features"`
}

// Subscription is the read model served by GET /subscription.
type Subscription struct {
	Plan          Plan               `json:"plan"`
	Status        SubscriptionStatus `json:"status"`
	EndsAt        *time.Time         `json:"ends_at"`
	PendingPlan   *Plan              `json:"pending_plan"`
	LastPaymentAt *time.Time         `json:"last_payment"`
	Limits        PlanLimits         `json:"limits"`
	Features      PlanFeatures       `json:"features"`
	ReceiptsUsed  int                `json:"receipts_this_month"`
	Members       int                `json:"members"`
	Catalogue     []PlanOffer        `json:"plans"`
}

// PlanChangeResult describes the outcome of a change-plan request.
type PlanChangeResult struct {
	Tenant      *Tenant          `json:"company"`
	Immediate   bool             `json:"immediate"`
	Message     string           `json:"message"`
	ListPrice   *decimal.Decimal `json:"list_price,omitempty"`
	Discount    *decimal.Decimal `json:"discount,omitempty"`
	FirstPeriod *decimal.Decimal `json:"first_month_price,omitempty"`
}
