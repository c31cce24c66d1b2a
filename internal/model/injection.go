package model

import (
	"time"
)

// InjectionRecord is the provenance row written after a confirmed injection.
// Never updated or deleted.
type InjectionRecord struct {
	ID             int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	AccountID      int64     `gorm:"index;not null" json:"account_id"`
	LiveryID       string    `gorm:"type:varchar(128);not null" json:"livery_id"`
	LiveryName     string    `gorm:"type:varchar(256);not null" json:"livery_name"`
	CarName        string    `gorm:"type:varchar(256);not null" json:"car_name"`
	ItemInstanceID string    `gorm:"type:varchar(128)" json:"item_instance_id"`
	InjectedAt     time.Time `gorm:"autoCreateTime;index" json:"injected_at"`
}

func (InjectionRecord) TableName() string {
	return "injection_records"
}
