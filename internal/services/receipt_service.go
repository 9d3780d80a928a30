package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Mateo9804/gastoclaro/internal/apperrors"
	"github.com/Mateo9804/gastoclaro/internal/caching"
	"github.com/Mateo9804/gastoclaro/internal/extraction"
	"github.com/Mateo9804/gastoclaro/internal/metrics"
	"github.com/Mateo9804/gastoclaro/internal/models"
	"github.com/Mateo9804/gastoclaro/internal/repositories"
)

const (
	// MaxUploadSize is the per-file upload limit.
	MaxUploadSize = 10 << 20

	uploadLockScope   = "receipt-upload"
	presignExpiry     = 15 * time.Minute
	dateLayout        = "2006-01-02"
	placeholderVendor = "Vendor pending review"
	unknownVendor     = "Unknown vendor"
)

// HighAmountThreshold triggers a high_amount warning when exceeded.
var HighAmountThreshold = decimal.NewFromInt(5000)

var uploadContentTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".pdf":  "application/pdf",
}

// UploadFile is one file of an upload batch.
type UploadFile struct {
	Name string
	Size int64
	Open func() (io.ReadCloser, error)
}

// ReceiptService drives the receipt lifecycle: upload, edit, approve, delete.
type ReceiptService interface {
	Upload(ctx context.Context, p models.Principal, files []UploadFile, extractions []models.ExtractionPayload) ([]*models.Receipt, error)
	List(ctx context.Context, p models.Principal, filter models.ReceiptFilter) ([]*models.Receipt, error)
	Get(ctx context.Context, p models.Principal, id uuid.UUID) (*models.Receipt, error)
	Update(ctx context.Context, p models.Principal, id uuid.UUID, patch models.ReceiptPatch) (*models.Receipt, []models.Warning, error)
	Approve(ctx context.Context, p models.Principal, id uuid.UUID) (*models.Receipt, error)
	Delete(ctx context.Context, p models.Principal, id uuid.UUID) error
	History(ctx context.Context, p models.Principal, id uuid.UUID) ([]*models.AuditLog, error)
	Activity(ctx context.Context, p models.Principal, filters *models.AuditLogFilters) ([]*models.AuditLog, error)
}

// ReceiptServiceConfig carries the tunables of the receipt service.
type ReceiptServiceConfig struct {
	DefaultCurrency string
	UploadLockTTL   time.Duration
	Location        *time.Location
}

type receiptService struct {
	receiptRepo  repositories.ReceiptRepository
	tenantRepo   repositories.TenantRepository
	entitlements EntitlementService
	audit        AuditLogsService
	storage      FileStorage
	cache        caching.CacheService
	metrics      *metrics.Metrics
	clock        clockwork.Clock
	logger       *zap.Logger
	cfg          ReceiptServiceConfig
}

func NewReceiptService(
	receiptRepo repositories.ReceiptRepository,
	tenantRepo repositories.TenantRepository,
	entitlements EntitlementService,
	audit AuditLogsService,
	storage FileStorage,
	cache caching.CacheService,
	m *metrics.Metrics,
	clock clockwork.Clock,
	logger *zap.Logger,
	cfg ReceiptServiceConfig,
) ReceiptService {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.UploadLockTTL <= 0 {
		cfg.UploadLockTTL = 30 * time.Second
	}
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = "EUR"
	}
	return &receiptService{
		receiptRepo:  receiptRepo,
		tenantRepo:   tenantRepo,
		entitlements: entitlements,
		audit:        audit,
		storage:      storage,
		cache:        cache,
		metrics:      m,
		clock:        clock,
		logger:       logger,
		cfg:          cfg,
	}
}

// ValidateUploadFile checks extension, size and sniffed content of one file
// and returns the content type it is stored under.
func ValidateUploadFile(f UploadFile) (string, error) {
	badType := apperrors.NewValidation("receipts", fmt.Sprintf("%s must be a jpeg, jpg, png or pdf file", f.Name))
	if _, ok := uploadContentTypes[strings.ToLower(filepath.Ext(f.Name))]; !ok {
		return "", badType
	}
	if f.Size > MaxUploadSize {
		return "", apperrors.NewValidation("receipts", fmt.Sprintf("%s is larger than 10 MB", f.Name))
	}

	rc, err := f.Open()
	if err != nil {
		return "", fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer rc.Close()
	sniffed, err := mimetype.DetectReader(rc)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", f.Name, err)
	}
	for _, contentType := range uploadContentTypes {
		if sniffed.Is(contentType) {
			return contentType, nil
		}
	}
	return "", badType
}

// decodeExtractions validates the payload of every file in the batch.
func decodeExtractions(payloads []models.ExtractionPayload, n int) ([]*models.ExtractionResult, error) {
	out := make([]*models.ExtractionResult, n)
	for i := 0; i < n && i < len(payloads); i++ {
		res, err := extraction.Decode(payloads[i])
		if err != nil {
			return nil, apperrors.NewValidation(fmt.Sprintf("ocr_results.%d", i), err.Error())
		}
		out[i] = res
	}
	return out, nil
}

func (s *receiptService) today() time.Time {
	now := s.clock.Now().In(s.cfg.Location)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

// Upload stores a batch atomically with respect to validation and quota. OCR
// payloads are decoded only on plans with extraction; an invalid payload there
// rejects the batch, elsewhere it is ignored with the rest of the payload.
func (s *receiptService) Upload(ctx context.Context, p models.Principal, files []UploadFile, payloads []models.ExtractionPayload) ([]*models.Receipt, error) {
	if err := authorize(p, CapUploadReceipts); err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, apperrors.NewValidation("receipts", "at least one file is required")
	}
	contentTypes := make([]string, len(files))
	for i, f := range files {
		contentType, err := ValidateUploadFile(f)
		if err != nil {
			return nil, err
		}
		contentTypes[i] = contentType
	}

	tenant, err := s.tenantRepo.GetByID(ctx, *p.TenantID)
	if err != nil {
		return nil, err
	}

	allowExtraction := s.entitlements.AllowsExtraction(tenant)
	var extractions []*models.ExtractionResult
	if allowExtraction {
		if extractions, err = decodeExtractions(payloads, len(files)); err != nil {
			return nil, err
		}
	}

	lockCtx, cancel := context.WithTimeout(ctx, s.cfg.UploadLockTTL)
	release, err := s.cache.AcquireTenantLock(lockCtx, uploadLockScope, tenant.ID, s.cfg.UploadLockTTL)
	cancel()
	if err != nil {
		if errors.Is(err, caching.ErrLockTimeout) {
			return nil, &apperrors.RateLimitedError{Message: "Another upload for this company is in progress, try again"}
		}
		return nil, fmt.Errorf("acquire upload lock: %w", err)
	}
	defer func() {
		if rErr := release(context.WithoutCancel(ctx)); rErr != nil {
			s.logger.Warn("failed to release upload lock", zap.String("tenant_id", tenant.ID.String()), zap.Error(rErr))
		}
	}()

	if err := s.entitlements.CheckReceiptQuota(ctx, tenant, len(files)); err != nil {
		var quotaErr *apperrors.QuotaExceededError
		if errors.As(err, &quotaErr) {
			s.metrics.QuotaRejected()
			s.logger.Info("upload batch rejected by quota",
				zap.String("tenant_id", tenant.ID.String()),
				zap.Int("incoming", len(files)),
				zap.Int("used", quotaErr.Used),
				zap.Int("limit", quotaErr.Limit))
		}
		return nil, err
	}

	currency := tenant.DefaultCurrency
	if currency == "" {
		currency = s.cfg.DefaultCurrency
	}

	created := make([]*models.Receipt, 0, len(files))
	for i, f := range files {
		var ext *models.ExtractionResult
		if i < len(extractions) {
			ext = extractions[i]
		}

		receipt, err := s.storeOne(ctx, p, tenant, f, contentTypes[i], ext, currency)
		if err != nil {
			s.logger.Error("upload batch failed part-way",
				zap.String("tenant_id", tenant.ID.String()),
				zap.Int("stored", len(created)),
				zap.Int("total", len(files)),
				zap.Error(err))
			return nil, err
		}
		created = append(created, receipt)
	}

	s.metrics.ReceiptsUploaded(string(tenant.Plan), len(created))
	s.logger.Info("upload batch accepted",
		zap.String("tenant_id", tenant.ID.String()),
		zap.String("user_id", p.UserID.String()),
		zap.Int("count", len(created)),
		zap.Bool("extraction", allowExtraction))
	return created, nil
}

func (s *receiptService) storeOne(ctx context.Context, p models.Principal, tenant *models.Tenant, f UploadFile, contentType string, ext *models.ExtractionResult, currency string) (*models.Receipt, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", f.Name, err)
	}
	objectPath, err := s.storage.Store(ctx, tenant.ID, f.Name, contentType, rc, f.Size)
	rc.Close()
	if err != nil {
		return nil, err
	}

	userID := p.UserID
	receipt := &models.Receipt{
		ID:           uuid.New(),
		TenantID:     tenant.ID,
		UserID:       &userID,
		FilePath:     objectPath,
		OriginalName: f.Name,
		Status:       models.ReceiptStatusPending,
		VendorName:   placeholderVendor,
		Date:         s.today(),
		TotalAmount:  decimal.Zero,
		Currency:     currency,
		Category:     models.DefaultCategory,
		UploadedBy:   &userID,
	}
	if ext != nil {
		s.applyExtraction(receipt, extraction.Complete(*ext, currency))
	}

	if err := s.receiptRepo.Create(ctx, receipt); err != nil {
		return nil, err
	}
	if err := s.audit.LogReceiptUpload(ctx, receipt, userID); err != nil {
		s.logger.Warn("failed to write audit log", zap.String("receipt_id", receipt.ID.String()), zap.Error(err))
	}
	return receipt, nil
}

// applyExtraction fills a new receipt from trusted OCR output and completes it.
func (s *receiptService) applyExtraction(r *models.Receipt, ext models.ExtractionResult) {
	r.VendorName = unknownVendor
	if ext.VendorName != nil && strings.TrimSpace(*ext.VendorName) != "" {
		r.VendorName = strings.TrimSpace(*ext.VendorName)
	}
	if ext.TotalAmount != nil && !ext.TotalAmount.IsNegative() {
		r.TotalAmount = ext.TotalAmount.Round(2)
	}
	if ext.Currency != nil && strings.TrimSpace(*ext.Currency) != "" {
		r.Currency = strings.ToUpper(strings.TrimSpace(*ext.Currency))
	}
	if ext.Date != nil {
		if d, err := time.Parse(dateLayout, *ext.Date); err == nil {
			r.Date = d
		}
	}
	r.OCRText = ext.RawText
	r.Status = models.ReceiptStatusCompleted
}

func (s *receiptService) List(ctx context.Context, p models.Principal, filter models.ReceiptFilter) ([]*models.Receipt, error) {
	if err := authorize(p, CapViewReceipts); err != nil {
		return nil, err
	}
	tenant, err := s.tenantRepo.GetByID(ctx, *p.TenantID)
	if err != nil {
		return nil, err
	}
	receipts, err := s.receiptRepo.List(ctx, tenant.ID, filter)
	if err != nil {
		return nil, err
	}
	s.decorate(ctx, tenant, receipts...)
	return receipts, nil
}

func (s *receiptService) Get(ctx context.Context, p models.Principal, id uuid.UUID) (*models.Receipt, error) {
	if err := authorize(p, CapViewReceipts); err != nil {
		return nil, err
	}
	tenant, err := s.tenantRepo.GetByID(ctx, *p.TenantID)
	if err != nil {
		return nil, err
	}
	receipt, err := s.receiptRepo.GetByID(ctx, tenant.ID, id)
	if err != nil {
		return nil, err
	}
	s.decorate(ctx, tenant, receipt)
	return receipt, nil
}

// decorate strips audit fields for plans without audit visibility and attaches
// presigned download links.
func (s *receiptService) decorate(ctx context.Context, tenant *models.Tenant, receipts ...*models.Receipt) {
	auditVisible := s.entitlements.AllowsAuditTrail(tenant)
	for _, r := range receipts {
		if !auditVisible {
			r.StripAudit()
		}
		if r.FilePath == "" {
			continue
		}
		u, err := s.storage.PresignedURL(ctx, r.FilePath, presignExpiry)
		if err != nil {
			s.logger.Warn("failed to presign receipt file", zap.String("receipt_id", r.ID.String()), zap.Error(err))
			continue
		}
		r.FileURL = u
	}
}

func (s *receiptService) Update(ctx context.Context, p models.Principal, id uuid.UUID, patch models.ReceiptPatch) (*models.Receipt, []models.Warning, error) {
	if err := authorize(p, CapEditReceipts); err != nil {
		return nil, nil, err
	}
	receipt, err := s.receiptRepo.GetByID(ctx, *p.TenantID, id)
	if err != nil {
		return nil, nil, err
	}
	if p.Role == models.RoleEmployee &&
		receipt.Status != models.ReceiptStatusPending && receipt.Status != models.ReceiptStatusError {
		return nil, nil, apperrors.ErrNotCompleted
	}

	before := *receipt
	if err := applyPatch(receipt, patch); err != nil {
		return nil, nil, err
	}
	editor := p.UserID
	receipt.EditedBy = &editor

	if err := s.receiptRepo.Update(ctx, receipt); err != nil {
		return nil, nil, err
	}
	if err := s.audit.LogReceiptUpdate(ctx, &before, receipt, editor); err != nil {
		s.logger.Warn("failed to write audit log", zap.String("receipt_id", receipt.ID.String()), zap.Error(err))
	}

	warnings, err := s.businessWarnings(ctx, receipt)
	if err != nil {
		return nil, nil, err
	}

	updated, err := s.Get(ctx, p, id)
	if err != nil {
		return nil, nil, err
	}
	return updated, warnings, nil
}

// applyPatch merges a partial update into r, validating every supplied field.
func applyPatch(r *models.Receipt, patch models.ReceiptPatch) error {
	if patch.VendorName != nil {
		v := strings.TrimSpace(*patch.VendorName)
		if len(v) > 255 {
			return apperrors.NewValidation("vendor_name", "may not be greater than 255 characters")
		}
		r.VendorName = v
	}
	if patch.Date != nil {
		d, err := time.Parse(dateLayout, *patch.Date)
		if err != nil {
			return apperrors.NewValidation("date", "must be a date in YYYY-MM-DD format")
		}
		r.Date = d
	}
	if patch.TotalAmount != nil {
		if patch.TotalAmount.IsNegative() {
			return apperrors.NewValidation("total_amount", "must not be negative")
		}
		r.TotalAmount = patch.TotalAmount.Round(2)
	}
	if patch.Currency != nil {
		c := strings.ToUpper(strings.TrimSpace(*patch.Currency))
		if c == "" || len(c) > 10 {
			return apperrors.NewValidation("currency", "must be between 1 and 10 characters")
		}
		r.Currency = c
	}
	if patch.Status != nil {
		switch *patch.Status {
		case models.ReceiptStatusPending, models.ReceiptStatusError:
			r.Status = *patch.Status
		case models.ReceiptStatusCompleted:
			if r.Status != models.ReceiptStatusCompleted {
				return apperrors.NewValidation("status", "receipts are completed through approval")
			}
		default:
			return apperrors.NewValidation("status", "must be pending or error")
		}
	}
	if patch.Category != nil {
		c := strings.TrimSpace(*patch.Category)
		if len(c) > 100 {
			return apperrors.NewValidation("category", "may not be greater than 100 characters")
		}
		if c == "" {
			c = models.DefaultCategory
		}
		r.Category = c
	}
	return nil
}

// businessWarnings evaluates the advisory rules against the saved state.
func (s *receiptService) businessWarnings(ctx context.Context, r *models.Receipt) ([]models.Warning, error) {
	warnings := []models.Warning{}
	if r.Date.After(s.today()) {
		warnings = append(warnings, models.Warning{
			Code:    models.WarningFutureDate,
			Message: "The receipt date is in the future.",
		})
	}
	if r.TotalAmount.GreaterThan(HighAmountThreshold) {
		warnings = append(warnings, models.Warning{
			Code:    models.WarningHighAmount,
			Message: fmt.Sprintf("The amount is unusually high (%s %s).", r.TotalAmount.StringFixed(2), r.Currency),
		})
	}
	// Unreviewed placeholders all share vendor, zero amount and upload day.
	if r.VendorName == placeholderVendor {
		return warnings, nil
	}
	dup, err := s.receiptRepo.DuplicateExists(ctx, r.TenantID, r.ID, r.VendorName, r.TotalAmount, r.Date)
	if err != nil {
		return nil, err
	}
	if dup {
		warnings = append(warnings, models.Warning{
			Code:    models.WarningPossibleDuplicate,
			Message: "Another receipt with the same vendor, amount and date already exists.",
		})
	}
	return warnings, nil
}

func (s *receiptService) Approve(ctx context.Context, p models.Principal, id uuid.UUID) (*models.Receipt, error) {
	if err := authorize(p, CapApproveReceipts); err != nil {
		return nil, err
	}
	receipt, err := s.receiptRepo.GetByID(ctx, *p.TenantID, id)
	if err != nil {
		return nil, err
	}

	before := *receipt
	approver := p.UserID
	now := s.clock.Now()
	receipt.Status = models.ReceiptStatusCompleted
	receipt.ApprovedBy = &approver
	receipt.ApprovedAt = &now
	receipt.EditedBy = &approver

	if err := s.receiptRepo.Update(ctx, receipt); err != nil {
		return nil, err
	}
	if err := s.audit.LogReceiptApprove(ctx, &before, receipt, approver); err != nil {
		s.logger.Warn("failed to write audit log", zap.String("receipt_id", receipt.ID.String()), zap.Error(err))
	}
	return s.Get(ctx, p, id)
}

func (s *receiptService) Delete(ctx context.Context, p models.Principal, id uuid.UUID) error {
	if err := authorize(p, CapDeleteReceipts); err != nil {
		return err
	}
	receipt, err := s.receiptRepo.GetByID(ctx, *p.TenantID, id)
	if err != nil {
		return err
	}
	if receipt.FilePath != "" {
		if err := s.storage.Delete(ctx, receipt.FilePath); err != nil {
			return fmt.Errorf("delete receipt file: %w", err)
		}
	}
	if err := s.receiptRepo.Delete(ctx, receipt.TenantID, receipt.ID); err != nil {
		return err
	}
	if err := s.audit.LogReceiptDelete(ctx, receipt, p.UserID); err != nil {
		s.logger.Warn("failed to write audit log", zap.String("receipt_id", receipt.ID.String()), zap.Error(err))
	}
	return nil
}

func (s *receiptService) History(ctx context.Context, p models.Principal, id uuid.UUID) ([]*models.AuditLog, error) {
	if err := authorize(p, CapViewReceipts); err != nil {
		return nil, err
	}
	tenant, err := s.tenantRepo.GetByID(ctx, *p.TenantID)
	if err != nil {
		return nil, err
	}
	if !s.entitlements.AllowsAuditTrail(tenant) {
		return nil, apperrors.NewForbidden("The audit trail is available on the pro and enterprise plans")
	}
	if _, err := s.receiptRepo.GetByID(ctx, tenant.ID, id); err != nil {
		return nil, err
	}
	return s.audit.GetEntityHistory(ctx, tenant.ID, models.TableReceipts, id.String())
}

// Activity lists the receipt audit trail of the whole tenant.
func (s *receiptService) Activity(ctx context.Context, p models.Principal, filters *models.AuditLogFilters) ([]*models.AuditLog, error) {
	if err := authorize(p, CapViewActivity); err != nil {
		return nil, err
	}
	tenant, err := s.tenantRepo.GetByID(ctx, *p.TenantID)
	if err != nil {
		return nil, err
	}
	if !s.entitlements.AllowsAuditTrail(tenant) {
		return nil, apperrors.NewForbidden("The audit trail is available on the pro and enterprise plans")
	}
	if filters == nil {
		filters = &models.AuditLogFilters{}
	}
	table := models.TableReceipts
	filters.TableName = &table
	return s.audit.ListAuditLogs(ctx, tenant.ID, filters)
}
