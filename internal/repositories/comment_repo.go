package repositories

import (
	"context"

	"github.com/google/uuid"

	"github.com/Mateo9804/gastoclaro/internal/apperrors"
	"github.com/Mateo9804/gastoclaro/internal/models"
)

type CommentRepository interface {
	Create(ctx context.Context, comment *models.Comment) error
	GetByID(ctx context.Context, tenantID *uuid.UUID, id uuid.UUID) (*models.Comment, error)
	ListByReceipt(ctx context.Context, receiptID uuid.UUID) ([]*models.Comment, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type commentRepo struct {
	db DBTX
}

func NewCommentRepo(db DBTX) CommentRepository {
	return &commentRepo{db: db}
}

func (r *commentRepo) Create(ctx context.Context, comment *models.Comment) error {
	if comment.ID == uuid.Nil {
		comment.ID = uuid.New()
	}

	query := `
		INSERT INTO comments (id, receipt_id, user_id, comment, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING created_at
	`
	return r.db.QueryRow(ctx, query, comment.ID, comment.ReceiptID, comment.UserID, comment.Comment).
		Scan(&comment.CreatedAt)
}

// GetByID only finds comments on receipts of the given tenant. A nil tenant
// searches every tenant.
func (r *commentRepo) GetByID(ctx context.Context, tenantID *uuid.UUID, id uuid.UUID) (*models.Comment, error) {
	query := `
		SELECT c.id, c.receipt_id, c.user_id, c.comment, c.created_at
		FROM comments c
		JOIN receipts r ON r.id = c.receipt_id
		WHERE c.id = $1 AND ($2::uuid IS NULL OR r.tenant_id = $2)
	`
	c := &models.Comment{}
	err := r.db.QueryRow(ctx, query, id, tenantID).Scan(&c.ID, &c.ReceiptID, &c.UserID, &c.Comment, &c.CreatedAt)
	if err != nil {
		return nil, notFound(err, apperrors.ErrCommentNotFound)
	}
	return c, nil
}

func (r *commentRepo) ListByReceipt(ctx context.Context, receiptID uuid.UUID) ([]*models.Comment, error) {
	query := `
		SELECT c.id, c.receipt_id, c.user_id, c.comment, c.created_at, COALESCE(u.name, '')
		FROM comments c
		LEFT JOIN users u ON u.id = c.user_id
		WHERE c.receipt_id = $1
		ORDER BY c.created_at ASC
	`
	rows, err := r.db.Query(ctx, query, receiptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	comments := []*models.Comment{}
	for rows.Next() {
		c := &models.Comment{}
		if err := rows.Scan(&c.ID, &c.ReceiptID, &c.UserID, &c.Comment, &c.CreatedAt, &c.UserName); err != nil {
			return nil, err
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

func (r *commentRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM comments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrCommentNotFound
	}
	return nil
}
