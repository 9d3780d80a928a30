package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ReceiptStatus string

const (
	ReceiptStatusPending ReceiptStatus = "pending"
	// ReceiptStatusProcessing is declared for compatibility but never produced.
	ReceiptStatusProcessing ReceiptStatus = "processing"
	ReceiptStatusCompleted  ReceiptStatus = "completed"
	ReceiptStatusError      ReceiptStatus = "error"
)

// Valid reports whether s is one of the declared statuses.
func (s ReceiptStatus) Valid() bool {
	switch s {
	case ReceiptStatusPending, ReceiptStatusProcessing, ReceiptStatusCompleted, ReceiptStatusError:
		return true
	}
	return false
}

const DefaultCategory = "General"

type Receipt struct {
	ID           uuid.UUID       `json:"id" db:"id"`
	TenantID     uuid.UUID       `json:"company_id" db:"tenant_id"`
	UserID       *uuid.UUID      `json:"user_id" db:"user_id"`
	FilePath     string          `json:"file_path" db:"file_path"`
	OriginalName string          `json:"original_name" db:"original_name"`
	Status       ReceiptStatus   `json:"status" db:"status"`
	VendorName   string          `json:"vendor_name" db:"vendor_name"`
	Date         time.Time       `json:"date" db:"date"`
	TotalAmount  decimal.Decimal `json:"total_amount" db:"total_amount"`
	Currency     string          `json:"currency" db:"currency"`
	OCRText      *string         `json:"ocr_text" db:"ocr_text"`
	Category     string          `json:"category" db:"category"`
	UploadedBy   *uuid.UUID      `json:"uploaded_by" db:"uploaded_by"`
	EditedBy     *uuid.UUID      `json:"edited_by" db:"edited_by"`
	ApprovedBy   *uuid.UUID      `json:"approved_by" db:"approved_by"`
	ApprovedAt   *time.Time      `json:"approved_at" db:"approved_at"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at" db:"updated_at"`

	// Read-model fields filled by list queries.
	UploaderName  *string `json:"uploader_name,omitempty" db:"-"`
	EditorName    *string `json:"editor_name,omitempty" db:"-"`
	ApproverName  *string `json:"approver_name,omitempty" db:"-"`
	CommentsCount int     `json:"comments_count" db:"-"`
	FileURL       string  `json:"file_url,omitempty" db:"-"`
}

// StripAudit clears the audit trio for tenants without audit visibility.
func (r *Receipt) StripAudit() {
	r.UploadedBy = nil
	r.EditedBy = nil
	r.ApprovedBy = nil
	r.ApprovedAt = nil
	r.UploaderName = nil
	r.EditorName = nil
	r.ApproverName = nil
}

// ReceiptPatch is a partial update; nil fields are left untouched.
type ReceiptPatch struct {
	VendorName  *string          `json:"vendor_name" validate:"omitempty,max=255"`
	Date        *string          `json:"date"`
	TotalAmount *decimal.Decimal `json:"total_amount"`
	Currency    *string          `json:"currency" validate:"omitempty,max=10"`
	Status      *ReceiptStatus   `json:"status"`
	Category    *string          `json:"category" validate:"omitempty,max=100"`
}

// ExtractionResult holds caller-supplied OCR fields for one uploaded file.
type ExtractionResult struct {
	VendorName  *string          `json:"vendor_name,omitempty"`
	TotalAmount *decimal.Decimal `json:"total_amount,omitempty"`
	Currency    *string          `json:"currency,omitempty"`
	Date        *string          `json:"date,omitempty"`
	RawText     *string          `json:"raw_text,omitempty"`
}

// ExtractionPayload is one file's ocr_results entry as received: a JSON
// document or bracketed form fields. It is only decoded for plans with
// extraction.
type ExtractionPayload struct {
	JSON   []byte
	Fields map[string]string
}

// Warning is an advisory business-rule finding returned with a successful write.
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	WarningFutureDate        = "future_date"
	WarningHighAmount        = "high_amount"
	WarningPossibleDuplicate = "possible_duplicate"
)

type ReceiptSort string

const (
	SortNewest     ReceiptSort = "newest"
	SortOldest     ReceiptSort = "oldest"
	SortAmountHigh ReceiptSort = "amount_high"
	SortAmountLow  ReceiptSort = "amount_low"
)

// DateGranularity is inferred from the shape of a date filter value.
type DateGranularity int

const (
	GranularityDay DateGranularity = iota
	GranularityYear
	GranularityMonth
)

// DateFilter matches a column against the half-open window [From, To).
type DateFilter struct {
	Granularity DateGranularity
	From        time.Time
	To          time.Time
}

// ReceiptFilter holds the conjunctive list/export predicates.
type ReceiptFilter struct {
	Status      *ReceiptStatus
	Category    *string
	Date        *DateFilter
	UploadDate  *DateFilter
	Sort        ReceiptSort
	OrderByDate bool
}
