// Package tip implements the settlement state machine that moves value
// between users by redeeming and reissuing their cashout records.
package tip

import (
	"time"

	"gorm.io/gorm"
)

// Result is the terminal taxonomy of one settlement attempt.
type Result string

const (
	ResultProcessing          Result = "PROCESSING"
	ResultSuccess             Result = "SUCCESS"
	ResultInsufficientBalance Result = "INSUFFICIENT_BALANCE"
	ResultError               Result = "ERROR"
)

// Tip is the audit record of one attempted transfer. Created in
// PROCESSING state before any side effect and updated at each decision
// point; once terminal it is never touched again, and records are never
// deleted.
type Tip struct {
	ID          uint      `gorm:"primarykey" json:"id"`
	SenderID    uint      `json:"senderId"`
	Sender      string    `json:"sender"`
	RecipientID uint      `json:"recipientId"`
	Recipient   string    `json:"recipient"`
	Amount      string    `json:"amount"`
	Message     string    `json:"message"`
	Result      string    `json:"result"`
	CreatedAt   time.Time `json:"created"`
	UpdatedAt   time.Time `json:"updated"`
}

// Store persists tip audit records.
type Store interface {
	Save(t *Tip) error
}

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Save(t *Tip) error {
	return s.db.Save(t).Error
}
