package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Mateo9804/gastoclaro/internal/apperrors"
	"github.com/Mateo9804/gastoclaro/internal/models"
)

type TenantRepository interface {
	CreateWithAdmin(ctx context.Context, tenant *models.Tenant, admin *models.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error)
	Update(ctx context.Context, tenant *models.Tenant) error
	Delete(ctx context.Context, id uuid.UUID) error
	ExpireCancelled(ctx context.Context, now time.Time) ([]uuid.UUID, error)
}

type tenantRepo struct {
	db DBTX
}

func NewTenantRepo(db DBTX) TenantRepository {
	return &tenantRepo{db: db}
}

const tenantColumns = `id, name, plan, user_limit, receipt_limit, default_currency, subscription_status,
		subscription_ends_at, pending_plan, last_payment_at, created_at, updated_at`

func scanTenant(row pgx.Row) (*models.Tenant, error) {
	t := &models.Tenant{}
	err := row.Scan(&t.ID, &t.Name, &t.Plan, &t.UserLimit, &t.ReceiptLimit, &t.DefaultCurrency,
		&t.SubscriptionStatus, &t.SubscriptionEndsAt, &t.PendingPlan, &t.LastPaymentAt, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// CreateWithAdmin inserts a tenant and its first admin in one transaction.
func (r *tenantRepo) CreateWithAdmin(ctx context.Context, tenant *models.Tenant, admin *models.User) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}

	if tenant.ID == uuid.Nil {
		tenant.ID = uuid.New()
	}
	if admin.ID == uuid.Nil {
		admin.ID = uuid.New()
	}
	admin.TenantID = &tenant.ID

	_, err = tx.Exec(ctx, `
		INSERT INTO tenants (id, name, plan, user_limit, receipt_limit, default_currency, subscription_status,
			subscription_ends_at, pending_plan, last_payment_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
	`, tenant.ID, tenant.Name, tenant.Plan, tenant.UserLimit, tenant.ReceiptLimit, tenant.DefaultCurrency,
		tenant.SubscriptionStatus, tenant.SubscriptionEndsAt, tenant.PendingPlan, tenant.LastPaymentAt)
	if err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("failed to insert tenant: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO users (id, tenant_id, name, email, password_hash, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
	`, admin.ID, admin.TenantID, admin.Name, admin.Email, admin.PasswordHash, admin.Role)
	if err != nil {
		_ = tx.Rollback(ctx)
		if isUniqueViolation(err) {
			return apperrors.NewValidation("email", "the email has already been taken")
		}
		return fmt.Errorf("failed to insert tenant admin: %w", err)
	}

	return tx.Commit(ctx)
}

func (r *tenantRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE id = $1`
	t, err := scanTenant(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err, apperrors.ErrTenantNotFound)
	}
	return t, nil
}

func (r *tenantRepo) Update(ctx context.Context, tenant *models.Tenant) error {
	query := `
		UPDATE tenants
		SET name = $1, plan = $2, user_limit = $3, receipt_limit = $4, default_currency = $5,
			subscription_status = $6, subscription_ends_at = $7, pending_plan = $8, last_payment_at = $9,
			updated_at = NOW()
		WHERE id = $10
	`
	tag, err := r.db.Exec(ctx, query, tenant.Name, tenant.Plan, tenant.UserLimit, tenant.ReceiptLimit,
		tenant.DefaultCurrency, tenant.SubscriptionStatus, tenant.SubscriptionEndsAt, tenant.PendingPlan,
		tenant.LastPaymentAt, tenant.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrTenantNotFound
	}
	return nil
}

// Delete removes the tenant; members, receipts and comments go with it via ON DELETE CASCADE.
func (r *tenantRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM tenants WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrTenantNotFound
	}
	return nil
}

// ExpireCancelled moves cancelled subscriptions whose cycle has ended to expired.
func (r *tenantRepo) ExpireCancelled(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	query := `
		UPDATE tenants
		SET subscription_status = 'expired', updated_at = NOW()
		WHERE subscription_status = 'cancelled' AND subscription_ends_at IS NOT NULL AND subscription_ends_at < $1
		RETURNING id
	`
	rows, err := r.db.Query(ctx, query, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
