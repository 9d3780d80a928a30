package services

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/Mateo9804/gastoclaro/internal/apperrors"
	"github.com/Mateo9804/gastoclaro/internal/models"
	"github.com/Mateo9804/gastoclaro/internal/repositories"
)

// StructValidator validates bound request structs.
type StructValidator interface {
	Validate(i interface{}) error
}

// TeamOperations is the team administration surface of one role scope.
type TeamOperations interface {
	List(ctx context.Context) ([]*models.User, error)
	Create(ctx context.Context, req models.TeamRequest) (*models.User, error)
	Update(ctx context.Context, userID uuid.UUID, req models.TeamRequest) (*models.User, error)
	Delete(ctx context.Context, userID uuid.UUID) error
}

// TeamService selects the team operations available to a principal.
type TeamService interface {
	For(p models.Principal) (TeamOperations, error)
}

type TeamServiceConfig struct {
	EmailDomain     string
	DefaultCurrency string
	BcryptCost      int
}

type teamDeps struct {
	tenantRepo   repositories.TenantRepository
	userRepo     repositories.UserRepository
	entitlements EntitlementService
	storage      FileStorage
	validator    StructValidator
	clock        clockwork.Clock
	logger       *zap.Logger
	cfg          TeamServiceConfig
}

type teamService struct {
	deps     *teamDeps
	dispatch map[models.Role]func(*teamDeps, models.Principal) TeamOperations
}

func NewTeamService(
	tenantRepo repositories.TenantRepository,
	userRepo repositories.UserRepository,
	entitlements EntitlementService,
	storage FileStorage,
	validator StructValidator,
	clock clockwork.Clock,
	logger *zap.Logger,
	cfg TeamServiceConfig,
) TeamService {
	if cfg.EmailDomain == "" {
		cfg.EmailDomain = "gastoclaro.com"
	}
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = "EUR"
	}
	return &teamService{
		deps: &teamDeps{
			tenantRepo:   tenantRepo,
			userRepo:     userRepo,
			entitlements: entitlements,
			storage:      storage,
			validator:    validator,
			clock:        clock,
			logger:       logger,
			cfg:          cfg,
		},
		dispatch: map[models.Role]func(*teamDeps, models.Principal) TeamOperations{
			models.RoleSuperAdmin: newPlatformOperations,
			models.RoleAdmin:      newTenantAdminOperations,
		},
	}
}

func (s *teamService) For(p models.Principal) (TeamOperations, error) {
	build, ok := s.dispatch[p.Role]
	if !ok {
		return nil, apperrors.ErrForbidden
	}
	if p.Role != models.RoleSuperAdmin && !p.HasTenant() {
		return nil, apperrors.ErrForbidden
	}
	return build(s.deps, p), nil
}

// tenantAdminOperations manages the members of the admin's own tenant.
type tenantAdminOperations struct {
	*teamDeps
	principal models.Principal
}

func newTenantAdminOperations(d *teamDeps, p models.Principal) TeamOperations {
	return &tenantAdminOperations{teamDeps: d, principal: p}
}

func (o *tenantAdminOperations) tenantID() uuid.UUID {
	return *o.principal.TenantID
}

func (o *tenantAdminOperations) List(ctx context.Context) ([]*models.User, error) {
	return o.userRepo.ListByTenant(ctx, o.tenantID(), o.principal.UserID)
}

func (o *tenantAdminOperations) Create(ctx context.Context, req models.TeamRequest) (*models.User, error) {
	tenant, err := o.tenantRepo.GetByID(ctx, o.tenantID())
	if err != nil {
		return nil, err
	}
	if err := o.entitlements.CheckMemberQuota(ctx, tenant); err != nil {
		return nil, err
	}

	in := req.Member()
	in.Email = normalizeEmail(in.Email)
	if err := o.validator.Validate(&in); err != nil {
		return nil, err
	}
	if in.Password == "" {
		return nil, apperrors.NewValidation("password", "is required")
	}
	taken, err := o.userRepo.EmailTaken(ctx, in.Email, nil)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, apperrors.NewValidation("email", "the email has already been taken")
	}

	hash, err := HashPassword(in.Password, o.cfg.BcryptCost)
	if err != nil {
		return nil, err
	}
	tenantID := tenant.ID
	user := &models.User{
		ID:           uuid.New(),
		TenantID:     &tenantID,
		Name:         strings.TrimSpace(in.Name),
		Email:        in.Email,
		PasswordHash: hash,
		Role:         in.Role,
	}
	if err := o.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}
	o.logger.Info("member created",
		zap.String("tenant_id", tenantID.String()),
		zap.String("user_id", user.ID.String()),
		zap.String("role", string(user.Role)))
	return user, nil
}

// member loads a user and checks it belongs to the admin's tenant.
func (o *tenantAdminOperations) member(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	user, err := o.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.TenantID == nil || *user.TenantID != o.tenantID() {
		return nil, apperrors.ErrForbidden
	}
	return user, nil
}

func (o *tenantAdminOperations) Update(ctx context.Context, userID uuid.UUID, req models.TeamRequest) (*models.User, error) {
	user, err := o.member(ctx, userID)
	if err != nil {
		return nil, err
	}

	in := req.Member()
	in.Email = normalizeEmail(in.Email)
	if err := o.validator.Validate(&in); err != nil {
		return nil, err
	}
	taken, err := o.userRepo.EmailTaken(ctx, in.Email, &user.ID)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, apperrors.NewValidation("email", "the email has already been taken")
	}

	user.Name = strings.TrimSpace(in.Name)
	user.Email = in.Email
	user.Role = in.Role
	if in.Password != "" {
		if user.PasswordHash, err = HashPassword(in.Password, o.cfg.BcryptCost); err != nil {
			return nil, err
		}
	}
	if err := o.userRepo.Update(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (o *tenantAdminOperations) Delete(ctx context.Context, userID uuid.UUID) error {
	if userID == o.principal.UserID {
		return apperrors.ErrSelfDelete
	}
	user, err := o.member(ctx, userID)
	if err != nil {
		return err
	}
	if err := o.userRepo.Delete(ctx, user.ID); err != nil {
		return err
	}
	o.logger.Info("member deleted",
		zap.String("tenant_id", o.tenantID().String()),
		zap.String("user_id", user.ID.String()))
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
