package model

import (
	"time"
)

// Account is one end user of the bot.
// Credit is the authoritative balance; AuthToken and ExternalID form the
// credential link and are always written together.
type Account struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ChatID      int64     `gorm:"uniqueIndex;not null" json:"chat_id"` // chat platform user id
	DisplayName string    `gorm:"type:varchar(128);not null;default:''" json:"display_name"`
	Credit      int64     `gorm:"not null;default:0" json:"credit"`
	AuthToken   *string   `gorm:"type:text" json:"-"`
	ExternalID  *string   `gorm:"type:varchar(64)" json:"external_id,omitempty"` // resolved game account id
	Version     int       `gorm:"not null;default:0" json:"version"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Account) TableName() string {
	return "accounts"
}

// Linked reports whether the account holds a validated credential.
func (a *Account) Linked() bool {
	return a.AuthToken != nil && *a.AuthToken != "" && a.ExternalID != nil
}
