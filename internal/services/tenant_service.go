package services

import (
	"context"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Mateo9804/gastoclaro/internal/apperrors"
	"github.com/Mateo9804/gastoclaro/internal/models"
)

// platformOperations lets the super admin manage companies through their
// admin accounts.
type platformOperations struct {
	*teamDeps
	principal models.Principal
}

func newPlatformOperations(d *teamDeps, p models.Principal) TeamOperations {
	return &platformOperations{teamDeps: d, principal: p}
}

// CompanyAdminEmail derives the admin login of a company from its name.
func CompanyAdminEmail(companyName, domain string) string {
	local := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, companyName)
	return local + "@" + domain
}

func (o *platformOperations) List(ctx context.Context) ([]*models.User, error) {
	return o.userRepo.ListTenantAdmins(ctx)
}

func (o *platformOperations) Create(ctx context.Context, req models.TeamRequest) (*models.User, error) {
	in := req.Company()
	in.Name = strings.TrimSpace(in.Name)
	if err := o.validator.Validate(&in); err != nil {
		return nil, err
	}
	if in.Password == "" {
		return nil, apperrors.NewValidation("password", "is required")
	}

	email := CompanyAdminEmail(in.Name, o.cfg.EmailDomain)
	taken, err := o.userRepo.EmailTaken(ctx, email, nil)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, apperrors.NewValidation("name", "a company with that name already exists")
	}

	hash, err := HashPassword(in.Password, o.cfg.BcryptCost)
	if err != nil {
		return nil, err
	}

	now := o.clock.Now()
	endsAt := now.Add(BillingCycle)
	tenant := &models.Tenant{
		ID:                 uuid.New(),
		Name:               in.Name,
		DefaultCurrency:    o.cfg.DefaultCurrency,
		SubscriptionStatus: models.SubscriptionActive,
		SubscriptionEndsAt: &endsAt,
		LastPaymentAt:      &now,
	}
	applyPlan(tenant, in.Plan)

	admin := &models.User{
		ID:           uuid.New(),
		Name:         "Admin " + in.Name,
		Email:        email,
		PasswordHash: hash,
		Role:         models.RoleAdmin,
	}
	if err := o.tenantRepo.CreateWithAdmin(ctx, tenant, admin); err != nil {
		return nil, err
	}
	admin.Tenant = tenant

	o.logger.Info("company created",
		zap.String("tenant_id", tenant.ID.String()),
		zap.String("plan", string(tenant.Plan)),
		zap.String("admin_email", email))
	return admin, nil
}

// companyAdmin loads a user and checks it is a company admin.
func (o *platformOperations) companyAdmin(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	user, err := o.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Role != models.RoleAdmin {
		return nil, apperrors.NewForbidden("Only company administrators can be managed here")
	}
	return user, nil
}

// Update renames the company, moves it to the requested plan and optionally
// resets the admin password. The admin email is left unchanged.
func (o *platformOperations) Update(ctx context.Context, userID uuid.UUID, req models.TeamRequest) (*models.User, error) {
	in := req.Company()
	in.Name = strings.TrimSpace(in.Name)
	if err := o.validator.Validate(&in); err != nil {
		return nil, err
	}

	admin, err := o.companyAdmin(ctx, userID)
	if err != nil {
		return nil, err
	}

	if admin.TenantID != nil {
		tenant, err := o.tenantRepo.GetByID(ctx, *admin.TenantID)
		if err != nil {
			return nil, err
		}
		tenant.Name = in.Name
		applyPlan(tenant, in.Plan)
		if err := o.tenantRepo.Update(ctx, tenant); err != nil {
			return nil, err
		}
		admin.Tenant = tenant
	}

	admin.Name = "Admin " + in.Name
	if in.Password != "" {
		if admin.PasswordHash, err = HashPassword(in.Password, o.cfg.BcryptCost); err != nil {
			return nil, err
		}
	}
	if err := o.userRepo.Update(ctx, admin); err != nil {
		return nil, err
	}
	return admin, nil
}

// Delete removes a company admin. When the admin owns a company the whole
// company goes with it: members, receipts, comments and stored files.
func (o *platformOperations) Delete(ctx context.Context, userID uuid.UUID) error {
	admin, err := o.companyAdmin(ctx, userID)
	if err != nil {
		return err
	}

	if admin.TenantID == nil {
		return o.userRepo.Delete(ctx, admin.ID)
	}

	tenantID := *admin.TenantID
	if err := o.tenantRepo.Delete(ctx, tenantID); err != nil {
		return err
	}
	if err := o.storage.DeleteTenant(ctx, tenantID); err != nil {
		o.logger.Warn("failed to purge company files", zap.String("tenant_id", tenantID.String()), zap.Error(err))
	}
	o.logger.Info("company deleted", zap.String("tenant_id", tenantID.String()))
	return nil
}
