package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Mateo9804/gastoclaro/internal/common"
	"github.com/Mateo9804/gastoclaro/internal/services"
)

type CommentHandlers struct {
	commentService services.CommentService
}

// NewCommentHandlers creates the receipt comment handlers
func NewCommentHandlers(commentService services.CommentService) *CommentHandlers {
	return &CommentHandlers{commentService: commentService}
}

type CommentRequest struct {
	Comment string `json:"comment" validate:"required,max=2000"`
}

// AddComment handles POST /receipts/:id/comments
func (h *CommentHandlers) AddComment(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return common.SendAppError(c, err)
	}
	receiptID, err := pathID(c, "id")
	if err != nil {
		return common.SendAppError(c, err)
	}
	var req CommentRequest
	if err := bindAndValidate(c, &req); err != nil {
		return common.SendAppError(c, err)
	}

	comment, err := h.commentService.Add(c.Request().Context(), p, receiptID, req.Comment)
	if err != nil {
		return common.SendAppError(c, err)
	}
	return c.JSON(http.StatusCreated, comment)
}

// ListComments handles GET /receipts/:id/comments
func (h *CommentHandlers) ListComments(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return common.SendAppError(c, err)
	}
	receiptID, err := pathID(c, "id")
	if err != nil {
		return common.SendAppError(c, err)
	}
	comments, err := h.commentService.List(c.Request().Context(), p, receiptID)
	if err != nil {
		return common.SendAppError(c, err)
	}
	return c.JSON(http.StatusOK, comments)
}

// DeleteComment handles DELETE /comments/:id
func (h *CommentHandlers) DeleteComment(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return common.SendAppError(c, err)
	}
	id, err := pathID(c, "id")
	if err != nil {
		return common.SendAppError(c, err)
	}
	if err := h.commentService.Delete(c.Request().Context(), p, id); err != nil {
		return common.SendAppError(c, err)
	}
	return c.JSON(http.StatusOK, MessageResponse{Message: "Comment deleted"})
}
