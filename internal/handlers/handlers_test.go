package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Mateo9804/gastoclaro/internal/apperrors"
	"github.com/Mateo9804/gastoclaro/internal/common"
	"github.com/Mateo9804/gastoclaro/internal/models"
	"github.com/Mateo9804/gastoclaro/internal/services"
)

type MockReceiptService struct {
	mock.Mock
}

func (m *MockReceiptService) Upload(ctx context.Context, p models.Principal, files []services.UploadFile, extractions []models.ExtractionPayload) ([]*models.Receipt, error) {
	args := m.Called(ctx, p, files, extractions)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Receipt), args.Error(1)
}

func (m *MockReceiptService) List(ctx context.Context, p models.Principal, filter models.ReceiptFilter) ([]*models.Receipt, error) {
	args := m.Called(ctx, p, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Receipt), args.Error(1)
}

func (m *MockReceiptService) Get(ctx context.Context, p models.Principal, id uuid.UUID) (*models.Receipt, error) {
	args := m.Called(ctx, p, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Receipt), args.Error(1)
}

func (m *MockReceiptService) Update(ctx context.Context, p models.Principal, id uuid.UUID, patch models.ReceiptPatch) (*models.Receipt, []models.Warning, error) {
	args := m.Called(ctx, p, id, patch)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	return args.Get(0).(*models.Receipt), args.Get(1).([]models.Warning), args.Error(2)
}

func (m *MockReceiptService) Approve(ctx context.Context, p models.Principal, id uuid.UUID) (*models.Receipt, error) {
	args := m.Called(ctx, p, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Receipt), args.Error(1)
}

func (m *MockReceiptService) Delete(ctx context.Context, p models.Principal, id uuid.UUID) error {
	args := m.Called(ctx, p, id)
	return args.Error(0)
}

func (m *MockReceiptService) History(ctx context.Context, p models.Principal, id uuid.UUID) ([]*models.AuditLog, error) {
	args := m.Called(ctx, p, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.AuditLog), args.Error(1)
}

func (m *MockReceiptService) Activity(ctx context.Context, p models.Principal, filters *models.AuditLogFilters) ([]*models.AuditLog, error) {
	args := m.Called(ctx, p, filters)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.AuditLog), args.Error(1)
}

type MockExportService struct {
	mock.Mock
}

func (m *MockExportService) Export(ctx context.Context, p models.Principal, filter services.ExportFilter, format services.ExportFormat) (*services.ExportFile, error) {
	args := m.Called(ctx, p, filter, format)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.ExportFile), args.Error(1)
}

type MockSubscriptionService struct {
	mock.Mock
}

func (m *MockSubscriptionService) Get(ctx context.Context, p models.Principal) (*models.Subscription, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscription), args.Error(1)
}

func (m *MockSubscriptionService) ChangePlan(ctx context.Context, p models.Principal, plan models.Plan) (*models.PlanChangeResult, error) {
	args := m.Called(ctx, p, plan)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PlanChangeResult), args.Error(1)
}

func (m *MockSubscriptionService) Cancel(ctx context.Context, p models.Principal) (*models.Tenant, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Tenant), args.Error(1)
}

func (m *MockSubscriptionService) Renew(ctx context.Context, p models.Principal) (*models.Tenant, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Tenant), args.Error(1)
}

func (m *MockSubscriptionService) ExpireLapsed(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

type stubPinger struct {
	err error
}

func (s stubPinger) Ping(context.Context) error { return s.err }

func testPrincipal(role models.Role) models.Principal {
	tenantID := uuid.New()
	return models.Principal{UserID: uuid.New(), TenantID: &tenantID, Role: role}
}

func newContext(method, target, body string, p *models.Principal) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	e.Validator = common.NewRequestValidator()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if p != nil {
		req = req.WithContext(common.WithPrincipal(req.Context(), *p))
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) common.ErrorResponse {
	t.Helper()
	var resp common.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestCollectExtractions(t *testing.T) {
	tests := []struct {
		name   string
		values url.Values
		n      int
		want   []models.ExtractionPayload
	}{
		{
			name: "bracketed fields",
			values: url.Values{
				"ocr_results[0][vendor_name]":  {"Repsol"},
				"ocr_results[0][total_amount]": {"60,10"},
				"ocr_results[1][vendor_name]":  {"Mercadona"},
			},
			n: 2,
			want: []models.ExtractionPayload{
				{Fields: map[string]string{"vendor_name": "Repsol", "total_amount": "60,10"}},
				{Fields: map[string]string{"vendor_name": "Mercadona"}},
			},
		},
		{
			name: "json documents in upload order",
			values: url.Values{
				"ocr_results[]": {`{"vendor_name":"Repsol","date":"2026-04-03"}`, `null`},
			},
			n: 2,
			want: []models.ExtractionPayload{
				{JSON: []byte(`{"vendor_name":"Repsol","date":"2026-04-03"}`)},
				{JSON: []byte(`null`)},
			},
		},
		{
			name:   "indexed json document",
			values: url.Values{"ocr_results[1]": {`{"currency":"USD"}`}},
			n:      2,
			want:   []models.ExtractionPayload{{}, {JSON: []byte(`{"currency":"USD"}`)}},
		},
		{
			name: "entries beyond the uploaded files are ignored",
			values: url.Values{
				"ocr_results[3][vendor_name]": {"Ghost"},
				"unrelated":                   {"x"},
			},
			n:    1,
			want: []models.ExtractionPayload{{}},
		},
		{
			name:   "malformed json is passed through undecoded",
			values: url.Values{"ocr_results[]": {`{"vendor_name":`}},
			n:      1,
			want:   []models.ExtractionPayload{{JSON: []byte(`{"vendor_name":`)}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, collectExtractions(tt.values, tt.n))
		})
	}
}

func TestListReceipts_Filters(t *testing.T) {
	svc := new(MockReceiptService)
	h := NewReceiptHandlers(svc, nil)
	p := testPrincipal(models.RoleAdmin)

	svc.On("List", mock.Anything, p, mock.MatchedBy(func(f models.ReceiptFilter) bool {
		return f.Status != nil && *f.Status == models.ReceiptStatusCompleted &&
			f.Sort == models.SortAmountHigh &&
			f.Category != nil && *f.Category == "Travel" &&
			f.Date != nil && f.Date.Granularity == models.GranularityMonth
	})).Return([]*models.Receipt{}, nil)

	c, rec := newContext(http.MethodGet, "/api/receipts?status=completed&sort=amount_high&category=Travel&date=2026-04", "", &p)
	require.NoError(t, h.ListReceipts(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	svc.AssertExpectations(t)
}

func TestListReceipts_InvalidQuery(t *testing.T) {
	p := testPrincipal(models.RoleAdmin)

	for _, tt := range []struct {
		query string
		field string
	}{
		{"status=archived", "status"},
		{"sort=cheapest", "sort"},
		{"date=2026-13", "date"},
		{"upload_date=yesterday", "upload_date"},
	} {
		t.Run(tt.query, func(t *testing.T) {
			svc := new(MockReceiptService)
			h := NewReceiptHandlers(svc, nil)

			c, rec := newContext(http.MethodGet, "/api/receipts?"+tt.query, "", &p)
			require.NoError(t, h.ListReceipts(c))

			assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
			assert.Contains(t, decodeError(t, rec).Error.Details, tt.field)
			svc.AssertNotCalled(t, "List", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestReceiptHandlers_RequiresPrincipal(t *testing.T) {
	h := NewReceiptHandlers(new(MockReceiptService), nil)

	c, rec := newContext(http.MethodGet, "/api/receipts", "", nil)
	require.NoError(t, h.ListReceipts(c))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetReceipt_PathAndErrors(t *testing.T) {
	svc := new(MockReceiptService)
	h := NewReceiptHandlers(svc, nil)
	p := testPrincipal(models.RoleEmployee)

	c, rec := newContext(http.MethodGet, "/api/receipts/abc", "", &p)
	c.SetParamNames("id")
	c.SetParamValues("abc")
	require.NoError(t, h.GetReceipt(c))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	// Another tenant's receipt is indistinguishable from a forbidden one.
	id := uuid.New()
	svc.On("Get", mock.Anything, p, id).Return(nil, apperrors.ErrReceiptNotFound)
	c, rec = newContext(http.MethodGet, "/api/receipts/"+id.String(), "", &p)
	c.SetParamNames("id")
	c.SetParamValues(id.String())
	require.NoError(t, h.GetReceipt(c))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "FORBIDDEN", decodeError(t, rec).Error.Code)
}

func TestUpdateReceipt_ReturnsWarnings(t *testing.T) {
	svc := new(MockReceiptService)
	h := NewReceiptHandlers(svc, nil)
	p := testPrincipal(models.RoleAdmin)
	id := uuid.New()

	warnings := []models.Warning{{Code: "duplicate", Message: "Possible duplicate"}}
	svc.On("Update", mock.Anything, p, id, mock.MatchedBy(func(patch models.ReceiptPatch) bool {
		return patch.VendorName != nil && *patch.VendorName == "Repsol"
	})).Return(&models.Receipt{ID: id, VendorName: "Repsol"}, warnings, nil)

	c, rec := newContext(http.MethodPut, "/api/receipts/"+id.String(), `{"vendor_name":"Repsol"}`, &p)
	c.SetParamNames("id")
	c.SetParamValues(id.String())
	require.NoError(t, h.UpdateReceipt(c))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Receipt  models.Receipt   `json:"receipt"`
		Warnings []models.Warning `json:"warnings"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Repsol", resp.Receipt.VendorName)
	assert.Equal(t, warnings, resp.Warnings)
}

func TestUploadReceipts_QuotaExceeded(t *testing.T) {
	svc := new(MockReceiptService)
	h := NewReceiptHandlers(svc, nil)
	p := testPrincipal(models.RoleEmployee)

	body := &strings.Builder{}
	body.WriteString("--b\r\n")
	body.WriteString("Content-Disposition: form-data; name=\"receipts[]\"; filename=\"ticket.jpg\"\r\n")
	body.WriteString("Content-Type: image/jpeg\r\n\r\n")
	body.WriteString("jpeg-bytes\r\n")
	body.WriteString("--b\r\n")
	body.WriteString("Content-Disposition: form-data; name=\"ocr_results[0][vendor_name]\"\r\n\r\n")
	body.WriteString("Repsol\r\n")
	body.WriteString("--b--\r\n")

	svc.On("Upload", mock.Anything, p, mock.MatchedBy(func(files []services.UploadFile) bool {
		return len(files) == 1 && files[0].Name == "ticket.jpg"
	}), mock.MatchedBy(func(ex []models.ExtractionPayload) bool {
		return len(ex) == 1 && ex[0].Fields["vendor_name"] == "Repsol"
	})).Return(nil, &apperrors.QuotaExceededError{Resource: "receipts", Limit: 20, Used: 20})

	c, rec := newContext(http.MethodPost, "/api/receipts", body.String(), &p)
	c.Request().Header.Set(echo.HeaderContentType, "multipart/form-data; boundary=b")
	require.NoError(t, h.UploadReceipts(c))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, "QUOTA_EXCEEDED", resp.Error.Code)
	assert.Equal(t, "receipts", resp.Error.Details["resource"])
	svc.AssertExpectations(t)
}

func TestUploadReceipts_MalformedExtractionReachesService(t *testing.T) {
	svc := new(MockReceiptService)
	h := NewReceiptHandlers(svc, nil)
	p := testPrincipal(models.RoleEmployee)

	body := &strings.Builder{}
	body.WriteString("--b\r\n")
	body.WriteString("Content-Disposition: form-data; name=\"receipts[]\"; filename=\"ticket.jpg\"\r\n")
	body.WriteString("Content-Type: image/jpeg\r\n\r\n")
	body.WriteString("jpeg-bytes\r\n")
	body.WriteString("--b\r\n")
	body.WriteString("Content-Disposition: form-data; name=\"ocr_results[0][total_amount]\"\r\n\r\n")
	body.WriteString("doce euros\r\n")
	body.WriteString("--b--\r\n")

	pending := &models.Receipt{ID: uuid.New(), Status: models.ReceiptStatusPending}
	svc.On("Upload", mock.Anything, p, mock.Anything, mock.MatchedBy(func(ex []models.ExtractionPayload) bool {
		return len(ex) == 1 && ex[0].Fields["total_amount"] == "doce euros"
	})).Return([]*models.Receipt{pending}, nil)

	c, rec := newContext(http.MethodPost, "/api/receipts", body.String(), &p)
	c.Request().Header.Set(echo.HeaderContentType, "multipart/form-data; boundary=b")
	require.NoError(t, h.UploadReceipts(c))

	assert.Equal(t, http.StatusCreated, rec.Code)
	svc.AssertExpectations(t)
}

func TestUploadReceipts_RequiresFiles(t *testing.T) {
	h := NewReceiptHandlers(new(MockReceiptService), nil)
	p := testPrincipal(models.RoleEmployee)

	c, rec := newContext(http.MethodPost, "/api/receipts", "", &p)
	require.NoError(t, h.UploadReceipts(c))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, decodeError(t, rec).Error.Details, "receipts")
}

func TestExportReceipts(t *testing.T) {
	svc := new(MockExportService)
	h := NewExportHandlers(svc, nil)
	p := testPrincipal(models.RoleAccountant)

	svc.On("Export", mock.Anything, p, mock.MatchedBy(func(f services.ExportFilter) bool {
		return f.Category != nil && *f.Category == "Food" && f.Date == nil
	}), services.ExportXLSX).Return(&services.ExportFile{
		Filename:    "expense_report_2026-05-10.xlsx",
		ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		Data:        []byte("PK"),
	}, nil)

	c, rec := newContext(http.MethodGet, "/api/receipts/export?format=xlsx&category=Food", "", &p)
	require.NoError(t, h.ExportReceipts(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "attachment; filename=expense_report_2026-05-10.xlsx", rec.Header().Get(echo.HeaderContentDisposition))
	assert.Equal(t, "no-cache", rec.Header().Get("Pragma"))
	assert.Equal(t, "PK", rec.Body.String())
}

func TestExportReceipts_Errors(t *testing.T) {
	p := testPrincipal(models.RoleAdmin)

	svc := new(MockExportService)
	h := NewExportHandlers(svc, nil)
	c, rec := newContext(http.MethodGet, "/api/receipts/export?format=docx", "", &p)
	require.NoError(t, h.ExportReceipts(c))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	svc.On("Export", mock.Anything, p, mock.Anything, services.ExportCSV).
		Return(nil, apperrors.NewForbidden("Exports are available on the pro and enterprise plans"))
	c, rec = newContext(http.MethodGet, "/api/receipts/export", "", &p)
	require.NoError(t, h.ExportReceipts(c))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestChangePlan_Validation(t *testing.T) {
	svc := new(MockSubscriptionService)
	h := NewSubscriptionHandlers(svc)
	p := testPrincipal(models.RoleAdmin)

	c, rec := newContext(http.MethodPost, "/api/subscription/change-plan", `{"plan":"gold"}`, &p)
	require.NoError(t, h.ChangePlan(c))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, decodeError(t, rec).Error.Details, "plan")

	svc.On("ChangePlan", mock.Anything, p, models.PlanPro).Return(&models.PlanChangeResult{Message: "ok"}, nil)
	c, rec = newContext(http.MethodPost, "/api/subscription/change-plan", `{"plan":"pro"}`, &p)
	require.NoError(t, h.ChangePlan(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	svc.AssertExpectations(t)
}

func TestCancelSubscription_Forbidden(t *testing.T) {
	svc := new(MockSubscriptionService)
	h := NewSubscriptionHandlers(svc)
	p := testPrincipal(models.RoleEmployee)
	svc.On("Cancel", mock.Anything, p).Return(nil, apperrors.ErrForbidden)

	c, rec := newContext(http.MethodPost, "/api/subscription/cancel", "", &p)
	require.NoError(t, h.CancelSubscription(c))

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestReadinessCheck(t *testing.T) {
	h := NewHealthHandlers("test", map[string]Pinger{
		"database": stubPinger{},
		"redis":    stubPinger{err: errors.New("connection refused")},
	})

	c, rec := newContext(http.MethodGet, "/health/ready", "", nil)
	require.NoError(t, h.ReadinessCheck(c))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var health HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "not_ready", health.Status)
	assert.Equal(t, "healthy", health.Services["database"])
	assert.Equal(t, "unhealthy", health.Services["redis"])
}

func TestLivenessCheck(t *testing.T) {
	h := NewHealthHandlers("1.2.3", nil)

	c, rec := newContext(http.MethodGet, "/health/live", "", nil)
	require.NoError(t, h.LivenessCheck(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"version":"1.2.3"`)
}
