package services

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/Mateo9804/gastoclaro/internal/models"
	"github.com/Mateo9804/gastoclaro/internal/repositories"
)

const (
	auditPageDefault = 50
	auditPageMax     = 1000
)

// AuditLogsService writes and reads the change trail of tenant records.
type AuditLogsService interface {
	LogActivity(ctx context.Context, tenantID uuid.UUID, tableName, recordID, action string, changedBy *uuid.UUID, oldValues, newValues models.JSONB) error
	ListAuditLogs(ctx context.Context, tenantID uuid.UUID, filters *models.AuditLogFilters) ([]*models.AuditLog, error)
	GetEntityHistory(ctx context.Context, tenantID uuid.UUID, tableName, recordID string) ([]*models.AuditLog, error)

	LogReceiptUpload(ctx context.Context, receipt *models.Receipt, changedBy uuid.UUID) error
	LogReceiptUpdate(ctx context.Context, before, after *models.Receipt, changedBy uuid.UUID) error
	LogReceiptApprove(ctx context.Context, before, after *models.Receipt, changedBy uuid.UUID) error
	LogReceiptDelete(ctx context.Context, receipt *models.Receipt, changedBy uuid.UUID) error
}

type auditLogsService struct {
	repo repositories.AuditLogsRepository
}

func NewAuditLogsService(repo repositories.AuditLogsRepository) AuditLogsService {
	return &auditLogsService{repo: repo}
}

func (s *auditLogsService) LogActivity(ctx context.Context, tenantID uuid.UUID, tableName, recordID, action string, changedBy *uuid.UUID, oldValues, newValues models.JSONB) error {
	switch {
	case tableName == "":
		return errors.New("table_name is required")
	case action == "":
		return errors.New("action is required")
	}

	return s.repo.Create(ctx, &models.AuditLog{
		ID:        uuid.New(),
		TenantID:  tenantID,
		TableName: tableName,
		RecordID:  recordID,
		Action:    action,
		OldValues: oldValues,
		NewValues: newValues,
		ChangedBy: changedBy,
	})
}

// ListAuditLogs clamps paging to [1, 1000] rows, falling back to 50.
func (s *auditLogsService) ListAuditLogs(ctx context.Context, tenantID uuid.UUID, filters *models.AuditLogFilters) ([]*models.AuditLog, error) {
	f := models.AuditLogFilters{}
	if filters != nil {
		f = *filters
	}
	if f.Limit <= 0 || f.Limit > auditPageMax {
		f.Limit = auditPageDefault
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return s.repo.List(ctx, tenantID, &f)
}

// GetEntityHistory returns every entry of one record, oldest first.
func (s *auditLogsService) GetEntityHistory(ctx context.Context, tenantID uuid.UUID, tableName, recordID string) ([]*models.AuditLog, error) {
	return s.repo.List(ctx, tenantID, &models.AuditLogFilters{
		TableName: &tableName,
		RecordID:  &recordID,
		Limit:     auditPageMax,
	})
}

// logReceipt records a receipt transition. subject supplies the tenant and record id.
func (s *auditLogsService) logReceipt(ctx context.Context, action string, subject, before, after *models.Receipt, by uuid.UUID) error {
	return s.LogActivity(ctx, subject.TenantID, models.TableReceipts, subject.ID.String(), action, &by,
		ReceiptValues(before), ReceiptValues(after))
}

func (s *auditLogsService) LogReceiptUpload(ctx context.Context, receipt *models.Receipt, changedBy uuid.UUID) error {
	return s.logReceipt(ctx, models.ActionUpload, receipt, nil, receipt, changedBy)
}

func (s *auditLogsService) LogReceiptUpdate(ctx context.Context, before, after *models.Receipt, changedBy uuid.UUID) error {
	return s.logReceipt(ctx, models.ActionUpdate, after, before, after, changedBy)
}

func (s *auditLogsService) LogReceiptApprove(ctx context.Context, before, after *models.Receipt, changedBy uuid.UUID) error {
	return s.logReceipt(ctx, models.ActionApprove, after, before, after, changedBy)
}

func (s *auditLogsService) LogReceiptDelete(ctx context.Context, receipt *models.Receipt, changedBy uuid.UUID) error {
	return s.logReceipt(ctx, models.ActionDelete, receipt, receipt, nil, changedBy)
}

// ReceiptValues is the audited projection of a receipt. OCR text and read-model
// fields are left out.
func ReceiptValues(r *models.Receipt) models.JSONB {
	if r == nil {
		return nil
	}
	return models.JSONB{
		"vendor_name":  r.VendorName,
		"date":         r.Date.Format("2006-01-02"),
		"total_amount": r.TotalAmount.StringFixed(2),
		"currency":     r.Currency,
		"status":       string(r.Status),
		"category":     r.Category,
		"file_path":    r.FilePath,
	}
}
