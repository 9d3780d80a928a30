package services

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/Mateo9804/gastoclaro/internal/apperrors"
	"github.com/Mateo9804/gastoclaro/internal/models"
	"github.com/Mateo9804/gastoclaro/internal/repositories"
)

const maxCommentLength = 2000

type CommentService interface {
	Add(ctx context.Context, p models.Principal, receiptID uuid.UUID, text string) (*models.Comment, error)
	List(ctx context.Context, p models.Principal, receiptID uuid.UUID) ([]*models.Comment, error)
	Delete(ctx context.Context, p models.Principal, commentID uuid.UUID) error
}

type commentService struct {
	commentRepo repositories.CommentRepository
	receiptRepo repositories.ReceiptRepository
}

func NewCommentService(commentRepo repositories.CommentRepository, receiptRepo repositories.ReceiptRepository) CommentService {
	return &commentService{commentRepo: commentRepo, receiptRepo: receiptRepo}
}

func (s *commentService) Add(ctx context.Context, p models.Principal, receiptID uuid.UUID, text string) (*models.Comment, error) {
	if err := authorize(p, CapComment); err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperrors.NewValidation("comment", "is required")
	}
	if len(text) > maxCommentLength {
		return nil, apperrors.NewValidation("comment", "may not be greater than 2000 characters")
	}
	if _, err := s.receiptRepo.GetByID(ctx, *p.TenantID, receiptID); err != nil {
		return nil, err
	}

	author := p.UserID
	comment := &models.Comment{
		ID:        uuid.New(),
		ReceiptID: receiptID,
		UserID:    &author,
		Comment:   text,
	}
	if err := s.commentRepo.Create(ctx, comment); err != nil {
		return nil, err
	}
	return comment, nil
}

func (s *commentService) List(ctx context.Context, p models.Principal, receiptID uuid.UUID) ([]*models.Comment, error) {
	if err := authorize(p, CapViewReceipts); err != nil {
		return nil, err
	}
	if _, err := s.receiptRepo.GetByID(ctx, *p.TenantID, receiptID); err != nil {
		return nil, err
	}
	return s.commentRepo.ListByReceipt(ctx, receiptID)
}

// Delete removes a comment. Authors may remove their own comments; roles
// holding CapDeleteAnyComment may remove any comment they can reach.
func (s *commentService) Delete(ctx context.Context, p models.Principal, commentID uuid.UUID) error {
	var scope *uuid.UUID
	switch {
	case p.Role == models.RoleSuperAdmin:
	case p.HasTenant():
		scope = p.TenantID
	default:
		return apperrors.ErrForbidden
	}

	comment, err := s.commentRepo.GetByID(ctx, scope, commentID)
	if err != nil {
		return err
	}
	own := comment.UserID != nil && *comment.UserID == p.UserID
	if !own && !Can(p.Role, CapDeleteAnyComment) {
		return apperrors.ErrForbidden
	}
	return s.commentRepo.Delete(ctx, comment.ID)
}
