package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	TransactionStatusPending  = "pending"
	TransactionStatusApproved = "approved"
	TransactionStatusRejected = "rejected"
)

// ValidStatusTransitions lists the only moves a top-up may make.
// Both terminal states are absent as keys.
var ValidStatusTransitions = map[string][]string{
	TransactionStatusPending: {TransactionStatusApproved, TransactionStatusRejected},
}

func CanTransitionTo(currentStatus, targetStatus string) bool {
	allowedStatuses, exists := ValidStatusTransitions[currentStatus]
	if !exists {
		return false
	}
	for _, s := range allowedStatuses {
		if s == targetStatus {
			return true
		}
	}
	return false
}

// Transaction is one top-up attempt, verified by an admin.
type Transaction struct {
	ID         int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	AccountID  int64           `gorm:"index;not null" json:"account_id"`
	ProductID  int64           `gorm:"index;not null" json:"product_id"`
	Code       string          `gorm:"type:varchar(32);uniqueIndex;not null" json:"code"`
	Amount     decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"amount"`
	Status     string          `gorm:"type:varchar(20);index;not null" json:"status"`
	ProofRef   *string         `gorm:"type:varchar(512)" json:"proof_ref,omitempty"`
	AdminNotes *string         `gorm:"type:varchar(512)" json:"admin_notes,omitempty"`
	ResolvedBy *int64          `json:"resolved_by,omitempty"`
	CreatedAt  time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt  time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Transaction) TableName() string {
	return "transactions"
}

// PendingTransaction is the admin review row: a pending top-up joined with
// its owner and product.
type PendingTransaction struct {
	Transaction
	ChatID       int64  `json:"chat_id"`
	DisplayName  string `json:"display_name"`
	ProductName  string `json:"product_name"`
	CreditAmount int64  `json:"credit_amount"`
}
