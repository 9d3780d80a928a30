package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Mateo9804/gastoclaro/internal/apperrors"
	"github.com/Mateo9804/gastoclaro/internal/models"
)

type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	EmailTaken(ctx context.Context, email string, exceptID *uuid.UUID) (bool, error)
	Update(ctx context.Context, user *models.User) error
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	Delete(ctx context.Context, id uuid.UUID) error
	CountByTenant(ctx context.Context, tenantID uuid.UUID) (int, error)
	ListByTenant(ctx context.Context, tenantID uuid.UUID, exceptID uuid.UUID) ([]*models.User, error)
	ListTenantAdmins(ctx context.Context) ([]*models.User, error)
}

type userRepo struct {
	db DBTX
}

func NewUserRepo(db DBTX) UserRepository {
	return &userRepo{db: db}
}

const userColumns = `id, tenant_id, name, email, password_hash, role, created_at, updated_at`

func scanUser(row pgx.Row) (*models.User, error) {
	u := &models.User{}
	err := row.Scan(&u.ID, &u.TenantID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (r *userRepo) Create(ctx context.Context, user *models.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}

	query := `
		INSERT INTO users (id, tenant_id, name, email, password_hash, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
	`
	_, err := r.db.Exec(ctx, query, user.ID, user.TenantID, user.Name, user.Email, user.PasswordHash, user.Role)
	if isUniqueViolation(err) {
		return apperrors.NewValidation("email", "the email has already been taken")
	}
	return err
}

func (r *userRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	u, err := scanUser(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err, apperrors.ErrUserNotFound)
	}
	return u, nil
}

// GetByEmail looks the address up across all tenants; emails are globally unique.
func (r *userRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	u, err := scanUser(r.db.QueryRow(ctx, query, email))
	if err != nil {
		return nil, notFound(err, apperrors.ErrUserNotFound)
	}
	return u, nil
}

func (r *userRepo) EmailTaken(ctx context.Context, email string, exceptID *uuid.UUID) (bool, error) {
	var taken bool
	query := `SELECT EXISTS (SELECT 1 FROM users WHERE email = $1 AND ($2::uuid IS NULL OR id <> $2))`
	if err := r.db.QueryRow(ctx, query, email, exceptID).Scan(&taken); err != nil {
		return false, fmt.Errorf("failed to check email uniqueness: %w", err)
	}
	return taken, nil
}

func (r *userRepo) Update(ctx context.Context, user *models.User) error {
	query := `
		UPDATE users
		SET name = $1, email = $2, password_hash = $3, role = $4, updated_at = NOW()
		WHERE id = $5
	`
	tag, err := r.db.Exec(ctx, query, user.Name, user.Email, user.PasswordHash, user.Role, user.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.NewValidation("email", "the email has already been taken")
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrUserNotFound
	}
	return nil
}

func (r *userRepo) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	tag, err := r.db.Exec(ctx, `UPDATE users SET password_hash = $1, updated_at = NOW() WHERE id = $2`, passwordHash, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrUserNotFound
	}
	return nil
}

func (r *userRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrUserNotFound
	}
	return nil
}

func (r *userRepo) CountByTenant(ctx context.Context, tenantID uuid.UUID) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE tenant_id = $1`, tenantID).Scan(&count)
	return count, err
}

// ListByTenant returns the tenant's members ordered by name, without exceptID.
func (r *userRepo) ListByTenant(ctx context.Context, tenantID uuid.UUID, exceptID uuid.UUID) ([]*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE tenant_id = $1 AND id <> $2 ORDER BY name ASC`
	rows, err := r.db.Query(ctx, query, tenantID, exceptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// ListTenantAdmins returns every tenant admin with their tenant, ordered by name.
func (r *userRepo) ListTenantAdmins(ctx context.Context) ([]*models.User, error) {
	query := `
		SELECT u.id, u.tenant_id, u.name, u.email, u.password_hash, u.role, u.created_at, u.updated_at,
			t.id, t.name, t.plan, t.user_limit, t.receipt_limit, t.default_currency, t.subscription_status,
			t.subscription_ends_at, t.pending_plan, t.last_payment_at, t.created_at, t.updated_at
		FROM users u
		JOIN tenants t ON t.id = u.tenant_id
		WHERE u.role = 'admin'
		ORDER BY u.name ASC
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		u := &models.User{}
		t := &models.Tenant{}
		if err := rows.Scan(&u.ID, &u.TenantID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt, &u.UpdatedAt,
			&t.ID, &t.Name, &t.Plan, &t.UserLimit, &t.ReceiptLimit, &t.DefaultCurrency, &t.SubscriptionStatus,
			&t.SubscriptionEndsAt, &t.PendingPlan, &t.LastPaymentAt, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		u.Tenant = t
		users = append(users, u)
	}
	return users, rows.Err()
}
