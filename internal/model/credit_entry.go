package model

import (
	"time"
)

const (
	CreditEntryTopup     = "TOPUP"     // approved top-up
	CreditEntryInjection = "INJECTION" // spent on a livery injection
)

// CreditEntry is the credit journal.
// Append only: one row per balance movement, with the balance before and
// after so the account balance can be reconciled.
type CreditEntry struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	EntryNo       string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"entry_no"`
	AccountID     int64     `gorm:"index;not null" json:"account_id"`
	Amount        int64     `gorm:"not null" json:"amount"` // positive credits in, negative out
	Type          string    `gorm:"type:varchar(20);not null" json:"type"`
	BalanceBefore int64     `gorm:"not null" json:"balance_before"`
	BalanceAfter  int64     `gorm:"not null" json:"balance_after"`
	Reference     string    `gorm:"type:varchar(128);index" json:"reference"` // tx code or livery id
	CreatedAt     time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (CreditEntry) TableName() string {
	return "credit_entries"
}
