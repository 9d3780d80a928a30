package services

import (
	"github.com/samber/lo"

	"github.com/Mateo9804/gastoclaro/internal/apperrors"
	"github.com/Mateo9804/gastoclaro/internal/models"
)

// Capability names an action gated by role.
type Capability string

const (
	CapViewReceipts       Capability = "receipts.view"
	CapUploadReceipts     Capability = "receipts.upload"
	CapEditReceipts       Capability = "receipts.edit"
	CapApproveReceipts    Capability = "receipts.approve"
	CapDeleteReceipts     Capability = "receipts.delete"
	CapExportReceipts     Capability = "receipts.export"
	CapComment            Capability = "comments.write"
	CapDeleteAnyComment   Capability = "comments.delete_any"
	CapManageTenants      Capability = "team.manage_tenants"
	CapManageMembers      Capability = "team.manage_members"
	CapManageSubscription Capability = "subscription.manage"
	CapViewActivity       Capability = "activity.view"
)

var roleCapabilities = map[models.Role][]Capability{
	models.RoleSuperAdmin: {
		CapManageTenants,
		CapDeleteAnyComment,
	},
	models.RoleAdmin: {
		CapViewReceipts, CapUploadReceipts, CapEditReceipts, CapApproveReceipts, CapDeleteReceipts,
		CapExportReceipts, CapComment, CapDeleteAnyComment, CapManageMembers, CapManageSubscription,
		CapViewActivity,
	},
	models.RoleEmployee: {
		CapViewReceipts, CapUploadReceipts, CapEditReceipts, CapDeleteReceipts, CapComment,
	},
	models.RoleAccountant: {
		CapViewReceipts, CapUploadReceipts, CapExportReceipts, CapComment,
	},
}

// Can reports whether role holds capability.
func Can(role models.Role, capability Capability) bool {
	return lo.Contains(roleCapabilities[role], capability)
}

// RolesWith lists the roles holding capability.
func RolesWith(capability Capability) []models.Role {
	roles := make([]models.Role, 0, len(roleCapabilities))
	for _, role := range []models.Role{models.RoleSuperAdmin, models.RoleAdmin, models.RoleEmployee, models.RoleAccountant} {
		if Can(role, capability) {
			roles = append(roles, role)
		}
	}
	return roles
}

// authorize fails with an AuthorizationError unless the principal's role holds
// capability. Tenant-scoped capabilities also require a tenant.
func authorize(p models.Principal, capability Capability) error {
	if !Can(p.Role, capability) {
		return apperrors.ErrForbidden
	}
	if p.Role != models.RoleSuperAdmin && !p.HasTenant() {
		return apperrors.ErrForbidden
	}
	return nil
}
