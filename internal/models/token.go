package models

import (
	"time"

	"github.com/google/uuid"
)

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// SessionUser is the user view returned on login and by GET /user.
type SessionUser struct {
	ID        uuid.UUID  `json:"id"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	Role      Role       `json:"role"`
	Company   *string    `json:"company"`
	CompanyID *uuid.UUID `json:"company_id"`
	Plan      *Plan      `json:"plan"`
	UserLimit *int       `json:"user_limit"`
}

type TokenResponse struct {
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type"`
	ExpiresIn   int         `json:"expires_in"`
	User        SessionUser `json:"user"`
}

type ChangePasswordRequest struct {
	CurrentPassword         string `json:"current_password" validate:"required"`
	NewPassword             string `json:"new_password" validate:"required,min=8"`
	NewPasswordConfirmation string `json:"new_password_confirmation" validate:"required,eqfield=NewPassword"`
}

// RevokedToken identifies an access token invalidated before expiry.
type RevokedToken struct {
	TokenID   string
	ExpiresAt time.Time
}
