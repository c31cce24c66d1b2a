package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is a purchasable credit bundle.
type Product struct {
	ID           int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	Name         string          `gorm:"type:varchar(128);not null" json:"name"`
	CreditAmount int64           `gorm:"not null" json:"credit_amount"`
	Price        decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"price"`
	IsActive     bool            `gorm:"not null;index" json:"is_active"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (Product) TableName() string {
	return "products"
}
