package models

// PricingRequest is a sales lead from the public pricing page.
type PricingRequest struct {
	Name    string `json:"name" validate:"required,max=255"`
	Email   string `json:"email" validate:"required,email"`
	Company string `json:"company" validate:"max=255"`
	Plan    Plan   `json:"plan" validate:"omitempty,oneof=basic pro enterprise"`
	Message string `json:"message" validate:"max=2000"`
}
