package services

import (
	"context"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"github.com/Mateo9804/gastoclaro/internal/apperrors"
	"github.com/Mateo9804/gastoclaro/internal/caching"
	"github.com/Mateo9804/gastoclaro/internal/models"
)

// In-memory repositories shared by the service tests. They keep just enough
// of the SQL semantics (tenant scoping, cascades, ordering) for the services
// to behave as they do against Postgres.

type store struct {
	mu       sync.Mutex
	clock    clockwork.Clock
	tenants  map[uuid.UUID]models.Tenant
	users    map[uuid.UUID]models.User
	receipts map[uuid.UUID]models.Receipt
	comments map[uuid.UUID]models.Comment
	audit    []models.AuditLog
}

func newStore(clock clockwork.Clock) *store {
	return &store{
		clock:    clock,
		tenants:  make(map[uuid.UUID]models.Tenant),
		users:    make(map[uuid.UUID]models.User),
		receipts: make(map[uuid.UUID]models.Receipt),
		comments: make(map[uuid.UUID]models.Comment),
	}
}

// MemTenantRepo

type memTenantRepo struct{ s *store }

func (r *memTenantRepo) CreateWithAdmin(ctx context.Context, tenant *models.Tenant, admin *models.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := r.s.clock.Now()
	tenant.CreatedAt, tenant.UpdatedAt = now, now
	r.s.tenants[tenant.ID] = *tenant
	tenantID := tenant.ID
	admin.TenantID = &tenantID
	admin.CreatedAt, admin.UpdatedAt = now, now
	r.s.users[admin.ID] = *admin
	return nil
}

func (r *memTenantRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tenants[id]
	if !ok {
		return nil, apperrors.ErrTenantNotFound
	}
	return &t, nil
}

func (r *memTenantRepo) Update(ctx context.Context, tenant *models.Tenant) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.tenants[tenant.ID]; !ok {
		return apperrors.ErrTenantNotFound
	}
	tenant.UpdatedAt = r.s.clock.Now()
	r.s.tenants[tenant.ID] = *tenant
	return nil
}

func (r *memTenantRepo) Delete(ctx context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.tenants[id]; !ok {
		return apperrors.ErrTenantNotFound
	}
	delete(r.s.tenants, id)
	for uid, u := range r.s.users {
		if u.TenantID != nil && *u.TenantID == id {
			delete(r.s.users, uid)
		}
	}
	for rid, rc := range r.s.receipts {
		if rc.TenantID == id {
			delete(r.s.receipts, rid)
			for cid, c := range r.s.comments {
				if c.ReceiptID == rid {
					delete(r.s.comments, cid)
				}
			}
		}
	}
	return nil
}

func (r *memTenantRepo) ExpireCancelled(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var ids []uuid.UUID
	for id, t := range r.s.tenants {
		if t.SubscriptionStatus == models.SubscriptionCancelled && t.SubscriptionEndsAt != nil && t.SubscriptionEndsAt.Before(now) {
			t.SubscriptionStatus = models.SubscriptionExpired
			r.s.tenants[id] = t
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// MemUserRepo

type memUserRepo struct{ s *store }

func (r *memUserRepo) Create(ctx context.Context, user *models.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := r.s.clock.Now()
	user.CreatedAt, user.UpdatedAt = now, now
	r.s.users[user.ID] = *user
	return nil
}

func (r *memUserRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, apperrors.ErrUserNotFound
	}
	return &u, nil
}

func (r *memUserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, apperrors.ErrUserNotFound
}

func (r *memUserRepo) EmailTaken(ctx context.Context, email string, exceptID *uuid.UUID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, u := range r.s.users {
		if u.Email == email && (exceptID == nil || id != *exceptID) {
			return true, nil
		}
	}
	return false, nil
}

func (r *memUserRepo) Update(ctx context.Context, user *models.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[user.ID]; !ok {
		return apperrors.ErrUserNotFound
	}
	stored := *user
	stored.Tenant = nil
	r.s.users[user.ID] = stored
	return nil
}

func (r *memUserRepo) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return apperrors.ErrUserNotFound
	}
	u.PasswordHash = passwordHash
	r.s.users[id] = u
	return nil
}

func (r *memUserRepo) Delete(ctx context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[id]; !ok {
		return apperrors.ErrUserNotFound
	}
	delete(r.s.users, id)

	// ON DELETE SET NULL on every receipt and comment reference.
	unset := func(ref *uuid.UUID) *uuid.UUID {
		if ref != nil && *ref == id {
			return nil
		}
		return ref
	}
	for rid, rc := range r.s.receipts {
		rc.UserID, rc.UploadedBy = unset(rc.UserID), unset(rc.UploadedBy)
		rc.EditedBy, rc.ApprovedBy = unset(rc.EditedBy), unset(rc.ApprovedBy)
		r.s.receipts[rid] = rc
	}
	for cid, c := range r.s.comments {
		c.UserID = unset(c.UserID)
		r.s.comments[cid] = c
	}
	return nil
}

func (r *memUserRepo) CountByTenant(ctx context.Context, tenantID uuid.UUID) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for _, u := range r.s.users {
		if u.TenantID != nil && *u.TenantID == tenantID {
			n++
		}
	}
	return n, nil
}

func (r *memUserRepo) ListByTenant(ctx context.Context, tenantID uuid.UUID, exceptID uuid.UUID) ([]*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	users := []*models.User{}
	for id, u := range r.s.users {
		if u.TenantID != nil && *u.TenantID == tenantID && id != exceptID {
			u := u
			users = append(users, &u)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Name < users[j].Name })
	return users, nil
}

func (r *memUserRepo) ListTenantAdmins(ctx context.Context) ([]*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	users := []*models.User{}
	for _, u := range r.s.users {
		if u.Role != models.RoleAdmin {
			continue
		}
		u := u
		if u.TenantID != nil {
			if t, ok := r.s.tenants[*u.TenantID]; ok {
				u.Tenant = &t
			}
		}
		users = append(users, &u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Name < users[j].Name })
	return users, nil
}

// MemReceiptRepo

type memReceiptRepo struct{ s *store }

func (r *memReceiptRepo) Create(ctx context.Context, receipt *models.Receipt) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := r.s.clock.Now()
	receipt.CreatedAt, receipt.UpdatedAt = now, now
	r.s.receipts[receipt.ID] = *receipt
	return nil
}

func (r *memReceiptRepo) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*models.Receipt, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rc, ok := r.s.receipts[id]
	if !ok || rc.TenantID != tenantID {
		return nil, apperrors.ErrReceiptNotFound
	}
	r.readModel(&rc)
	return &rc, nil
}

// readModel fills the joined fields; callers hold the lock.
func (r *memReceiptRepo) readModel(rc *models.Receipt) {
	name := func(id *uuid.UUID) *string {
		if id == nil {
			return nil
		}
		u, ok := r.s.users[*id]
		if !ok {
			return nil
		}
		return &u.Name
	}
	rc.UploaderName = name(rc.UploadedBy)
	rc.EditorName = name(rc.EditedBy)
	rc.ApproverName = name(rc.ApprovedBy)
	rc.CommentsCount = 0
	for _, c := range r.s.comments {
		if c.ReceiptID == rc.ID {
			rc.CommentsCount++
		}
	}
}

func (r *memReceiptRepo) Update(ctx context.Context, receipt *models.Receipt) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.receipts[receipt.ID]; !ok {
		return apperrors.ErrReceiptNotFound
	}
	receipt.UpdatedAt = r.s.clock.Now()
	r.s.receipts[receipt.ID] = *receipt
	return nil
}

func (r *memReceiptRepo) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rc, ok := r.s.receipts[id]
	if !ok || rc.TenantID != tenantID {
		return apperrors.ErrReceiptNotFound
	}
	delete(r.s.receipts, id)
	for cid, c := range r.s.comments {
		if c.ReceiptID == id {
			delete(r.s.comments, cid)
		}
	}
	return nil
}

func (r *memReceiptRepo) List(ctx context.Context, tenantID uuid.UUID, filter models.ReceiptFilter) ([]*models.Receipt, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []*models.Receipt{}
	for _, rc := range r.s.receipts {
		if rc.TenantID != tenantID {
			continue
		}
		if filter.Status != nil && rc.Status != *filter.Status {
			continue
		}
		if filter.Category != nil && rc.Category != *filter.Category {
			continue
		}
		if filter.Date != nil && (rc.Date.Before(filter.Date.From) || !rc.Date.Before(filter.Date.To)) {
			continue
		}
		if filter.UploadDate != nil && (rc.CreatedAt.Before(filter.UploadDate.From) || !rc.CreatedAt.Before(filter.UploadDate.To)) {
			continue
		}
		rc := rc
		r.readModel(&rc)
		out = append(out, &rc)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		switch {
		case filter.OrderByDate:
			return a.Date.After(b.Date)
		case filter.Sort == models.SortOldest:
			return a.CreatedAt.Before(b.CreatedAt)
		case filter.Sort == models.SortAmountHigh:
			return a.TotalAmount.GreaterThan(b.TotalAmount)
		case filter.Sort == models.SortAmountLow:
			return a.TotalAmount.LessThan(b.TotalAmount)
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
	return out, nil
}

func (r *memReceiptRepo) CountCreatedBetween(ctx context.Context, tenantID uuid.UUID, from, to time.Time) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for _, rc := range r.s.receipts {
		if rc.TenantID == tenantID && !rc.CreatedAt.Before(from) && rc.CreatedAt.Before(to) {
			n++
		}
	}
	return n, nil
}

func (r *memReceiptRepo) DuplicateExists(ctx context.Context, tenantID, exceptID uuid.UUID, vendor string, amount decimal.Decimal, date time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, rc := range r.s.receipts {
		if id != exceptID && rc.TenantID == tenantID && rc.VendorName == vendor &&
			rc.TotalAmount.Equal(amount) && rc.Date.Equal(date) {
			return true, nil
		}
	}
	return false, nil
}

// MemCommentRepo

type memCommentRepo struct{ s *store }

func (r *memCommentRepo) Create(ctx context.Context, comment *models.Comment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	comment.CreatedAt = r.s.clock.Now()
	r.s.comments[comment.ID] = *comment
	return nil
}

func (r *memCommentRepo) GetByID(ctx context.Context, tenantID *uuid.UUID, id uuid.UUID) (*models.Comment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.comments[id]
	if !ok {
		return nil, apperrors.ErrCommentNotFound
	}
	if tenantID != nil {
		rc, ok := r.s.receipts[c.ReceiptID]
		if !ok || rc.TenantID != *tenantID {
			return nil, apperrors.ErrCommentNotFound
		}
	}
	return &c, nil
}

func (r *memCommentRepo) ListByReceipt(ctx context.Context, receiptID uuid.UUID) ([]*models.Comment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []*models.Comment{}
	for _, c := range r.s.comments {
		if c.ReceiptID == receiptID {
			c := c
			if c.UserID != nil {
				c.UserName = r.s.users[*c.UserID].Name
			}
			out = append(out, &c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *memCommentRepo) Delete(ctx context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.comments[id]; !ok {
		return apperrors.ErrCommentNotFound
	}
	delete(r.s.comments, id)
	return nil
}

// MemAuditLogsRepo

type memAuditLogsRepo struct{ s *store }

func (r *memAuditLogsRepo) Create(ctx context.Context, auditLog *models.AuditLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	auditLog.CreatedAt = r.s.clock.Now()
	r.s.audit = append(r.s.audit, *auditLog)
	return nil
}

func (r *memAuditLogsRepo) List(ctx context.Context, tenantID uuid.UUID, filters *models.AuditLogFilters) ([]*models.AuditLog, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []*models.AuditLog{}
	for _, l := range r.s.audit {
		if l.TenantID != tenantID {
			continue
		}
		if filters.TableName != nil && l.TableName != *filters.TableName {
			continue
		}
		if filters.RecordID != nil && l.RecordID != *filters.RecordID {
			continue
		}
		if filters.Action != nil && l.Action != *filters.Action {
			continue
		}
		if filters.ChangedBy != nil && (l.ChangedBy == nil || *l.ChangedBy != *filters.ChangedBy) {
			continue
		}
		l := l
		out = append(out, &l)
	}
	if filters.Offset >= len(out) {
		return []*models.AuditLog{}, nil
	}
	out = out[filters.Offset:]
	if filters.Limit > 0 && len(out) > filters.Limit {
		out = out[:filters.Limit]
	}
	return out, nil
}

// MockFileStorage is a mock implementation of FileStorage
type MockFileStorage struct {
	mock.Mock
}

func (m *MockFileStorage) Store(ctx context.Context, tenantID uuid.UUID, originalName, contentType string, reader io.Reader, size int64) (string, error) {
	args := m.Called(ctx, tenantID, originalName, contentType, reader, size)
	return args.String(0), args.Error(1)
}

func (m *MockFileStorage) Delete(ctx context.Context, objectPath string) error {
	args := m.Called(ctx, objectPath)
	return args.Error(0)
}

func (m *MockFileStorage) DeleteTenant(ctx context.Context, tenantID uuid.UUID) error {
	args := m.Called(ctx, tenantID)
	return args.Error(0)
}

func (m *MockFileStorage) PresignedURL(ctx context.Context, objectPath string, expiry time.Duration) (string, error) {
	args := m.Called(ctx, objectPath, expiry)
	return args.String(0), args.Error(1)
}

func (m *MockFileStorage) EnsureBucket(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockFileStorage) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// newTestCache returns a CacheService backed by an in-process redis server.
func newTestCache(t *testing.T) (caching.CacheService, *miniredis.Miniredis) {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { client.Close() })
	return caching.NewRedisCacheServiceWithClient(client, zap.NewNop()), server
}

// fixture wires the in-memory repositories to a fake clock.
type fixture struct {
	clock    *clockwork.FakeClock
	store    *store
	tenants  *memTenantRepo
	users    *memUserRepo
	receipts *memReceiptRepo
	comments *memCommentRepo
	audit    *memAuditLogsRepo
}

func newFixture(now time.Time) *fixture {
	clock := clockwork.NewFakeClockAt(now)
	s := newStore(clock)
	return &fixture{
		clock:    clock,
		store:    s,
		tenants:  &memTenantRepo{s: s},
		users:    &memUserRepo{s: s},
		receipts: &memReceiptRepo{s: s},
		comments: &memCommentRepo{s: s},
		audit:    &memAuditLogsRepo{s: s},
	}
}

// seedTenant stores a tenant on plan with an admin and returns both.
func (f *fixture) seedTenant(t *testing.T, name string, plan models.Plan) (*models.Tenant, models.Principal) {
	t.Helper()
	now := f.clock.Now()
	endsAt := now.Add(BillingCycle)
	tenant := &models.Tenant{
		ID:                 uuid.New(),
		Name:               name,
		DefaultCurrency:    "EUR",
		SubscriptionStatus: models.SubscriptionActive,
		SubscriptionEndsAt: &endsAt,
		LastPaymentAt:      &now,
	}
	applyPlan(tenant, plan)
	admin := &models.User{
		ID:    uuid.New(),
		Name:  "Admin " + name,
		Email: CompanyAdminEmail(name, "gastoclaro.com"),
		Role:  models.RoleAdmin,
	}
	if err := f.tenants.CreateWithAdmin(context.Background(), tenant, admin); err != nil {
		t.Fatal(err)
	}
	return tenant, principalOf(admin)
}

// seedUser adds a member with role to tenant.
func (f *fixture) seedUser(t *testing.T, tenant *models.Tenant, role models.Role) models.Principal {
	t.Helper()
	tenantID := tenant.ID
	user := &models.User{
		ID:       uuid.New(),
		TenantID: &tenantID,
		Name:     string(role) + " " + uuid.NewString()[:8],
		Email:    uuid.NewString()[:8] + "@example.com",
		Role:     role,
	}
	if err := f.users.Create(context.Background(), user); err != nil {
		t.Fatal(err)
	}
	return principalOf(user)
}

// seedReceipt stores a receipt owned by p.
func (f *fixture) seedReceipt(t *testing.T, p models.Principal, mutate func(*models.Receipt)) *models.Receipt {
	t.Helper()
	userID := p.UserID
	rc := &models.Receipt{
		ID:           uuid.New(),
		TenantID:     *p.TenantID,
		UserID:       &userID,
		FilePath:     "receipts/" + p.TenantID.String() + "/" + uuid.NewString() + ".jpg",
		OriginalName: "ticket.jpg",
		Status:       models.ReceiptStatusPending,
		VendorName:   placeholderVendor,
		Date:         time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
		TotalAmount:  decimal.Zero,
		Currency:     "EUR",
		Category:     models.DefaultCategory,
		UploadedBy:   &userID,
	}
	if mutate != nil {
		mutate(rc)
	}
	createdAt := rc.CreatedAt
	if err := f.receipts.Create(context.Background(), rc); err != nil {
		t.Fatal(err)
	}
	if !createdAt.IsZero() {
		f.store.mu.Lock()
		rc.CreatedAt = createdAt
		f.store.receipts[rc.ID] = *rc
		f.store.mu.Unlock()
	}
	return rc
}

func principalOf(u *models.User) models.Principal {
	return models.Principal{UserID: u.ID, TenantID: u.TenantID, Role: u.Role}
}

func strPtr(s string) *string { return &s }
