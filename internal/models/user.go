package models

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleSuperAdmin Role = "super_admin"
	RoleAdmin      Role = "admin"
	RoleEmployee   Role = "employee"
	RoleAccountant Role = "accountant"
)

// MemberRoles are the roles a tenant admin may hand out.
var MemberRoles = []Role{RoleAdmin, RoleEmployee, RoleAccountant}

type User struct {
	ID           uuid.UUID  `json:"id" db:"id"`
	TenantID     *uuid.UUID `json:"company_id" db:"tenant_id"`
	Name         string     `json:"name" db:"name"`
	Email        string     `json:"email" db:"email"`
	PasswordHash string     `json:"-" db:"password_hash"` // Never serialize in JSON
	Role         Role       `json:"role" db:"role"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`

	// Populated by joins for platform listings.
	Tenant *Tenant `json:"company,omitempty" db:"-"`
}

// Principal is the authenticated caller of a request.
type Principal struct {
	UserID   uuid.UUID
	TenantID *uuid.UUID
	Role     Role
}

// HasTenant reports whether the principal belongs to a tenant.
func (p Principal) HasTenant() bool {
	return p.TenantID != nil && *p.TenantID != uuid.Nil
}

// InTenant reports whether the principal belongs to the given tenant.
func (p Principal) InTenant(tenantID uuid.UUID) bool {
	return p.HasTenant() && *p.TenantID == tenantID
}
