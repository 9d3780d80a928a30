package models

import (
	"time"

	"github.com/google/uuid"
)

type Tenant struct {
	ID                 uuid.UUID          `json:"id" db:"id"`
	Name               string             `json:"name" db:"name"`
	Plan               Plan               `json:"plan" db:"plan"`
	UserLimit          int                `json:"user_limit" db:"user_limit"`
	ReceiptLimit       int                `json:"receipt_limit" db:"receipt_limit"`
	DefaultCurrency    string             `json:"default_currency" db:"default_currency"`
	SubscriptionStatus SubscriptionStatus `json:"subscription_status" db:"subscription_status"`
	SubscriptionEndsAt *time.Time         `json:"subscription_ends_at" db:"subscription_ends_at"`
	PendingPlan        *Plan              `json:"pending_plan" db:"pending_plan"`
	LastPaymentAt      *time.Time         `json:"last_payment_at" db:"last_payment_at"`
	CreatedAt          time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at" db:"updated_at"`
}
