package testhelpers

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Mateo9804/gastoclaro/internal/models"
	"github.com/Mateo9804/gastoclaro/internal/repositories"
	"github.com/Mateo9804/gastoclaro/internal/services"
	"github.com/Mateo9804/gastoclaro/pkg/database"
)

// TestDB holds the database connection for testing
type TestDB struct {
	Pool    *pgxpool.Pool
	Cleanup func() error
}

// SetupTestDB connects to TEST_DATABASE_URL and applies the migrations.
// The test is skipped when the variable is unset.
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()

	connString := os.Getenv("TEST_DATABASE_URL")
	if connString == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := database.NewPool(ctx, connString, zap.NewNop())
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	if err := database.Migrate(ctx, pool, zap.NewNop()); err != nil {
		pool.Close()
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	db := &TestDB{
		Pool: pool,
		Cleanup: func() error {
			defer pool.Close()
			_, err := pool.Exec(context.Background(), `TRUNCATE audit_logs, comments, receipts, users, tenants CASCADE`)
			return err
		},
	}
	t.Cleanup(func() {
		if err := db.Cleanup(); err != nil {
			t.Logf("cleanup failed: %v", err)
		}
	})
	return db
}

// SetupTestTenant creates a tenant on plan with its admin.
func SetupTestTenant(t *testing.T, db *TestDB, name string, plan models.Plan) (*models.Tenant, *models.User) {
	t.Helper()

	limits := services.LimitsFor(plan)
	tenant := &models.Tenant{
		Name:               name,
		Plan:               plan,
		UserLimit:          limits.UserLimit,
		ReceiptLimit:       limits.ReceiptLimit,
		DefaultCurrency:    "EUR",
		SubscriptionStatus: models.SubscriptionActive,
	}
	admin := &models.User{
		Name:         "Admin " + name,
		Email:        strings.ToLower(strings.ReplaceAll(name, " ", "")) + "-" + uuid.NewString()[:8] + "@gastoclaro.test",
		PasswordHash: "not-a-real-hash",
		Role:         models.RoleAdmin,
	}
	if err := repositories.NewTenantRepo(db.Pool).CreateWithAdmin(context.Background(), tenant, admin); err != nil {
		t.Fatalf("Failed to create test tenant: %v", err)
	}
	return tenant, admin
}

// SetupTestUser adds a member with role to tenant.
func SetupTestUser(t *testing.T, db *TestDB, tenant *models.Tenant, role models.Role) *models.User {
	t.Helper()

	user := &models.User{
		TenantID:     &tenant.ID,
		Name:         "Member " + uuid.NewString()[:8],
		Email:        uuid.NewString() + "@gastoclaro.test",
		PasswordHash: "not-a-real-hash",
		Role:         role,
	}
	if err := repositories.NewUserRepo(db.Pool).Create(context.Background(), user); err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}
	return user
}

// SetupTestReceipt stores a completed receipt uploaded by user.
func SetupTestReceipt(t *testing.T, db *TestDB, user *models.User, vendor, amount string, date time.Time) *models.Receipt {
	t.Helper()

	receipt := &models.Receipt{
		TenantID:     *user.TenantID,
		UserID:       &user.ID,
		FilePath:     "receipts/" + user.TenantID.String() + "/" + uuid.NewString() + ".jpg",
		OriginalName: "ticket.jpg",
		Status:       models.ReceiptStatusCompleted,
		VendorName:   vendor,
		Date:         date,
		TotalAmount:  decimal.RequireFromString(amount),
		Currency:     "EUR",
		Category:     "General",
		UploadedBy:   &user.ID,
	}
	if err := repositories.NewReceiptRepo(db.Pool).Create(context.Background(), receipt); err != nil {
		t.Fatalf("Failed to create test receipt: %v", err)
	}
	return receipt
}
