package models

import (
	"time"

	"github.com/google/uuid"
)

type Comment struct {
	ID        uuid.UUID `json:"id" db:"id"`
	ReceiptID uuid.UUID `json:"receipt_id" db:"receipt_id"`
	UserID    *uuid.UUID `json:"user_id" db:"user_id"`
	Comment   string    `json:"comment" db:"comment"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	UserName string `json:"user_name,omitempty" db:"-"`
}
