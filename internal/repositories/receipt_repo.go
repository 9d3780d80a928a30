package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/Mateo9804/gastoclaro/internal/apperrors"
	"github.com/Mateo9804/gastoclaro/internal/models"
)

type ReceiptRepository interface {
	Create(ctx context.Context, receipt *models.Receipt) error
	GetByID(ctx context.Context, tenantID, id uuid.UUID) (*models.Receipt, error)
	Update(ctx context.Context, receipt *models.Receipt) error
	Delete(ctx context.Context, tenantID, id uuid.UUID) error
	List(ctx context.Context, tenantID uuid.UUID, filter models.ReceiptFilter) ([]*models.Receipt, error)
	CountCreatedBetween(ctx context.Context, tenantID uuid.UUID, from, to time.Time) (int, error)
	DuplicateExists(ctx context.Context, tenantID, exceptID uuid.UUID, vendor string, amount decimal.Decimal, date time.Time) (bool, error)
}

type receiptRepo struct {
	db DBTX
}

func NewReceiptRepo(db DBTX) ReceiptRepository {
	return &receiptRepo{db: db}
}

const receiptSelect = `
		SELECT r.id, r.tenant_id, r.user_id, r.file_path, r.original_name, r.status, r.vendor_name, r.date,
			r.total_amount, r.currency, r.ocr_text, r.category, r.uploaded_by, r.edited_by, r.approved_by,
			r.approved_at, r.created_at, r.updated_at,
			up.name, ed.name, ap.name,
			(SELECT COUNT(*) FROM comments c WHERE c.receipt_id = r.id)
		FROM receipts r
		LEFT JOIN users up ON up.id = r.uploaded_by
		LEFT JOIN users ed ON ed.id = r.edited_by
		LEFT JOIN users ap ON ap.id = r.approved_by`

func scanReceipt(row pgx.Row) (*models.Receipt, error) {
	rc := &models.Receipt{}
	err := row.Scan(&rc.ID, &rc.TenantID, &rc.UserID, &rc.FilePath, &rc.OriginalName, &rc.Status, &rc.VendorName,
		&rc.Date, &rc.TotalAmount, &rc.Currency, &rc.OCRText, &rc.Category, &rc.UploadedBy, &rc.EditedBy,
		&rc.ApprovedBy, &rc.ApprovedAt, &rc.CreatedAt, &rc.UpdatedAt,
		&rc.UploaderName, &rc.EditorName, &rc.ApproverName, &rc.CommentsCount)
	if err != nil {
		return nil, err
	}
	return rc, nil
}

func (r *receiptRepo) Create(ctx context.Context, receipt *models.Receipt) error {
	if receipt.ID == uuid.Nil {
		receipt.ID = uuid.New()
	}

	query := `
		INSERT INTO receipts (id, tenant_id, user_id, file_path, original_name, status, vendor_name, date,
			total_amount, currency, ocr_text, category, uploaded_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW(), NOW())
		RETURNING created_at, updated_at
	`
	return r.db.QueryRow(ctx, query, receipt.ID, receipt.TenantID, receipt.UserID, receipt.FilePath,
		receipt.OriginalName, receipt.Status, receipt.VendorName, receipt.Date, receipt.TotalAmount,
		receipt.Currency, receipt.OCRText, receipt.Category, receipt.UploadedBy).
		Scan(&receipt.CreatedAt, &receipt.UpdatedAt)
}

// GetByID is tenant scoped: a receipt of another tenant is reported as not found.
func (r *receiptRepo) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*models.Receipt, error) {
	query := receiptSelect + ` WHERE r.id = $1 AND r.tenant_id = $2`
	rc, err := scanReceipt(r.db.QueryRow(ctx, query, id, tenantID))
	if err != nil {
		return nil, notFound(err, apperrors.ErrReceiptNotFound)
	}
	return rc, nil
}

func (r *receiptRepo) Update(ctx context.Context, receipt *models.Receipt) error {
	query := `
		UPDATE receipts
		SET vendor_name = $1, date = $2, total_amount = $3, currency = $4, status = $5, category = $6,
			edited_by = $7, approved_by = $8, approved_at = $9, updated_at = NOW()
		WHERE id = $10 AND tenant_id = $11
	`
	tag, err := r.db.Exec(ctx, query, receipt.VendorName, receipt.Date, receipt.TotalAmount, receipt.Currency,
		receipt.Status, receipt.Category, receipt.EditedBy, receipt.ApprovedBy, receipt.ApprovedAt,
		receipt.ID, receipt.TenantID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrReceiptNotFound
	}
	return nil
}

func (r *receiptRepo) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM receipts WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrReceiptNotFound
	}
	return nil
}

var receiptOrder = map[models.ReceiptSort]string{
	models.SortNewest:     "r.created_at DESC",
	models.SortOldest:     "r.created_at ASC",
	models.SortAmountHigh: "r.total_amount DESC, r.created_at DESC",
	models.SortAmountLow:  "r.total_amount ASC, r.created_at DESC",
}

// buildReceiptWhere renders the conjunctive filter. Argument $1 is always the tenant.
func buildReceiptWhere(tenantID uuid.UUID, filter models.ReceiptFilter) (string, []interface{}) {
	where := " WHERE r.tenant_id = $1"
	args := []interface{}{tenantID}
	argIdx := 1

	if filter.Status != nil {
		argIdx++
		where += fmt.Sprintf(" AND r.status = $%d", argIdx)
		args = append(args, *filter.Status)
	}

	if filter.Category != nil {
		argIdx++
		where += fmt.Sprintf(" AND r.category = $%d", argIdx)
		args = append(args, *filter.Category)
	}

	if filter.Date != nil {
		where += fmt.Sprintf(" AND r.date >= $%d::date AND r.date < $%d::date", argIdx+1, argIdx+2)
		argIdx += 2
		args = append(args, filter.Date.From.Format("2006-01-02"), filter.Date.To.Format("2006-01-02"))
	}

	if filter.UploadDate != nil {
		where += fmt.Sprintf(" AND r.created_at >= $%d AND r.created_at < $%d", argIdx+1, argIdx+2)
		argIdx += 2
		args = append(args, filter.UploadDate.From, filter.UploadDate.To)
	}

	return where, args
}

func (r *receiptRepo) List(ctx context.Context, tenantID uuid.UUID, filter models.ReceiptFilter) ([]*models.Receipt, error) {
	where, args := buildReceiptWhere(tenantID, filter)

	order := "r.date DESC, r.created_at DESC"
	if !filter.OrderByDate {
		var ok bool
		if order, ok = receiptOrder[filter.Sort]; !ok {
			order = receiptOrder[models.SortNewest]
		}
	}

	rows, err := r.db.Query(ctx, receiptSelect+where+" ORDER BY "+order, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	receipts := []*models.Receipt{}
	for rows.Next() {
		rc, err := scanReceipt(rows)
		if err != nil {
			return nil, err
		}
		receipts = append(receipts, rc)
	}
	return receipts, rows.Err()
}

func (r *receiptRepo) CountCreatedBetween(ctx context.Context, tenantID uuid.UUID, from, to time.Time) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM receipts WHERE tenant_id = $1 AND created_at >= $2 AND created_at < $3`
	err := r.db.QueryRow(ctx, query, tenantID, from, to).Scan(&count)
	return count, err
}

// DuplicateExists reports whether another receipt of the tenant has the same
// vendor, amount and calendar date.
func (r *receiptRepo) DuplicateExists(ctx context.Context, tenantID, exceptID uuid.UUID, vendor string, amount decimal.Decimal, date time.Time) (bool, error) {
	var exists bool
	query := `
		SELECT EXISTS (
			SELECT 1 FROM receipts
			WHERE tenant_id = $1 AND id <> $2 AND vendor_name = $3 AND total_amount = $4 AND date = $5::date
		)
	`
	err := r.db.QueryRow(ctx, query, tenantID, exceptID, vendor, amount, date.Format("2006-01-02")).Scan(&exists)
	return exists, err
}
