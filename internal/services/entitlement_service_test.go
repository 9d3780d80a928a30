package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mateo9804/gastoclaro/internal/apperrors"
	"github.com/Mateo9804/gastoclaro/internal/models"
)

var madrid = time.FixedZone("CEST", 2*60*60)

func TestMonthWindow_UsesConfiguredZone(t *testing.T) {
	// 23:30 UTC on the last day of May is already June in Madrid.
	f := newFixture(time.Date(2026, 5, 31, 23, 30, 0, 0, time.UTC))
	svc := NewEntitlementService(f.receipts, f.users, f.clock, madrid)

	from, to := svc.MonthWindow()

	assert.True(t, from.Equal(time.Date(2026, 6, 1, 0, 0, 0, 0, madrid)))
	assert.True(t, to.Equal(time.Date(2026, 7, 1, 0, 0, 0, 0, madrid)))
}

func TestCheckReceiptQuota(t *testing.T) {
	f := newFixture(time.Date(2026, 5, 20, 10, 0, 0, 0, time.UTC))
	svc := NewEntitlementService(f.receipts, f.users, f.clock, time.UTC)
	tenant, admin := f.seedTenant(t, "Acme", models.PlanBasic)
	tenant.ReceiptLimit = 3

	// Last month's uploads do not count.
	f.seedReceipt(t, admin, func(r *models.Receipt) { r.CreatedAt = time.Date(2026, 4, 30, 23, 0, 0, 0, time.UTC) })
	f.seedReceipt(t, admin, nil)
	f.seedReceipt(t, admin, nil)

	used, err := svc.ReceiptsThisMonth(context.Background(), tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, used)

	assert.NoError(t, svc.CheckReceiptQuota(context.Background(), tenant, 1))

	err = svc.CheckReceiptQuota(context.Background(), tenant, 2)
	var quotaErr *apperrors.QuotaExceededError
	require.True(t, errors.As(err, &quotaErr))
	assert.Equal(t, 3, quotaErr.Limit)
	assert.Equal(t, 2, quotaErr.Used)
}

func TestCheckReceiptQuota_DefaultLimit(t *testing.T) {
	f := newFixture(time.Date(2026, 5, 20, 10, 0, 0, 0, time.UTC))
	svc := NewEntitlementService(f.receipts, f.users, f.clock, time.UTC)
	tenant, _ := f.seedTenant(t, "Acme", models.PlanBasic)
	tenant.ReceiptLimit = 0

	assert.NoError(t, svc.CheckReceiptQuota(context.Background(), tenant, DefaultReceiptLimit))
	assert.Error(t, svc.CheckReceiptQuota(context.Background(), tenant, DefaultReceiptLimit+1))
}

func TestCheckMemberQuota(t *testing.T) {
	f := newFixture(time.Date(2026, 5, 20, 10, 0, 0, 0, time.UTC))
	svc := NewEntitlementService(f.receipts, f.users, f.clock, time.UTC)
	tenant, _ := f.seedTenant(t, "Acme", models.PlanBasic)

	// Admin plus three members is the basic ceiling, so the third member
	// is still accepted.
	for i := 0; i < 2; i++ {
		f.seedUser(t, tenant, models.RoleEmployee)
	}
	assert.NoError(t, svc.CheckMemberQuota(context.Background(), tenant))

	f.seedUser(t, tenant, models.RoleAccountant)
	err := svc.CheckMemberQuota(context.Background(), tenant)
	var quotaErr *apperrors.QuotaExceededError
	require.True(t, errors.As(err, &quotaErr))
	assert.Equal(t, 3, quotaErr.Limit)
	assert.Equal(t, 3, quotaErr.Used)
}

func TestFeatureGates(t *testing.T) {
	f := newFixture(time.Now())
	svc := NewEntitlementService(f.receipts, f.users, f.clock, nil)

	basic := &models.Tenant{Plan: models.PlanBasic}
	pro := &models.Tenant{Plan: models.PlanPro}

	assert.False(t, svc.AllowsExtraction(basic))
	assert.False(t, svc.AllowsAuditTrail(basic))
	assert.False(t, svc.AllowsExport(basic))
	assert.True(t, svc.AllowsExtraction(pro))
	assert.True(t, svc.AllowsAuditTrail(pro))
	assert.True(t, svc.AllowsExport(pro))
}
