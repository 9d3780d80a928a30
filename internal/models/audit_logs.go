package models

import (
	"time"

	"github.com/google/uuid"
)

type JSONB map[string]interface{}

// AuditLog records one change to a tenant-owned record.
type AuditLog struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	TenantID  uuid.UUID  `json:"company_id" db:"tenant_id"`
	TableName string     `json:"table_name" db:"table_name"`
	RecordID  string     `json:"record_id" db:"record_id"`
	Action    string     `json:"action" db:"action"`
	NewValues JSONB      `json:"new_values" db:"new_values"`
	OldValues JSONB      `json:"old_values" db:"old_values"`
	ChangedBy *uuid.UUID `json:"changed_by" db:"changed_by"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`

	ChangedByName *string `json:"changed_by_name,omitempty" db:"-"`
}

const (
	ActionUpload  = "UPLOAD"
	ActionUpdate  = "UPDATE"
	ActionApprove = "APPROVE"
	ActionDelete  = "DELETE"
)

const TableReceipts = "receipts"

// AuditLogFilters narrows an audit log query.
type AuditLogFilters struct {
	TableName *string    `json:"table_name"`
	RecordID  *string    `json:"record_id"`
	Action    *string    `json:"action"`
	ChangedBy *uuid.UUID `json:"changed_by"`
	Limit     int        `json:"limit"`
	Offset    int        `json:"offset"`
}
