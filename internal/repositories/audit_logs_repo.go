package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Mateo9804/gastoclaro/internal/models"
)

// AuditLogsRepository stores the append-only change trail of tenant records.
type AuditLogsRepository interface {
	Create(ctx context.Context, auditLog *models.AuditLog) error
	// List returns the matching entries of one tenant, oldest first.
	List(ctx context.Context, tenantID uuid.UUID, filters *models.AuditLogFilters) ([]*models.AuditLog, error)
}

type auditLogsRepo struct {
	db DBTX
}

func NewAuditLogsRepo(db DBTX) AuditLogsRepository {
	return &auditLogsRepo{db: db}
}

// encodeSnapshot turns a snapshot into a jsonb parameter; nil stays SQL NULL.
func encodeSnapshot(values models.JSONB, column string) ([]byte, error) {
	if values == nil {
		return nil, nil
	}
	b, err := json.Marshal(values)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", column, err)
	}
	return b, nil
}

func decodeSnapshot(raw []byte, column string) (models.JSONB, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var values models.JSONB
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", column, err)
	}
	return values, nil
}

func (r *auditLogsRepo) Create(ctx context.Context, entry *models.AuditLog) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	newValues, err := encodeSnapshot(entry.NewValues, "new_values")
	if err != nil {
		return err
	}
	oldValues, err := encodeSnapshot(entry.OldValues, "old_values")
	if err != nil {
		return err
	}

	return r.db.QueryRow(ctx, `
		INSERT INTO audit_logs (id, tenant_id, table_name, record_id, action, new_values, old_values, changed_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		RETURNING created_at
	`, entry.ID, entry.TenantID, entry.TableName, entry.RecordID, entry.Action, newValues, oldValues, entry.ChangedBy,
	).Scan(&entry.CreatedAt)
}

// auditConditions renders the optional filters as AND-ed predicates after the tenant predicate ($1).
func auditConditions(tenantID uuid.UUID, f *models.AuditLogFilters) (string, []interface{}) {
	conds := []string{"a.tenant_id = $1"}
	args := []interface{}{tenantID}
	add := func(column string, value interface{}) {
		args = append(args, value)
		conds = append(conds, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if f.TableName != nil {
		add("a.table_name", *f.TableName)
	}
	if f.RecordID != nil {
		add("a.record_id", *f.RecordID)
	}
	if f.Action != nil {
		add("a.action", *f.Action)
	}
	if f.ChangedBy != nil {
		add("a.changed_by", *f.ChangedBy)
	}
	return strings.Join(conds, " AND "), args
}

func (r *auditLogsRepo) List(ctx context.Context, tenantID uuid.UUID, filters *models.AuditLogFilters) ([]*models.AuditLog, error) {
	if filters == nil {
		filters = &models.AuditLogFilters{}
	}
	where, args := auditConditions(tenantID, filters)

	query := `
		SELECT a.id, a.tenant_id, a.table_name, a.record_id, a.action, a.new_values, a.old_values,
			a.changed_by, a.created_at, u.name
		FROM audit_logs a
		LEFT JOIN users u ON u.id = a.changed_by
		WHERE ` + where + ` ORDER BY a.created_at ASC`
	if filters.Limit > 0 {
		args = append(args, filters.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filters.Offset > 0 {
		args = append(args, filters.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.AuditLog, error) {
		var (
			entry          models.AuditLog
			newRaw, oldRaw []byte
		)
		scanErr := row.Scan(&entry.ID, &entry.TenantID, &entry.TableName, &entry.RecordID, &entry.Action,
			&newRaw, &oldRaw, &entry.ChangedBy, &entry.CreatedAt, &entry.ChangedByName)
		if scanErr != nil {
			return nil, scanErr
		}
		if entry.NewValues, scanErr = decodeSnapshot(newRaw, "new_values"); scanErr != nil {
			return nil, scanErr
		}
		if entry.OldValues, scanErr = decodeSnapshot(oldRaw, "old_values"); scanErr != nil {
			return nil, scanErr
		}
		return &entry, nil
	})
}
