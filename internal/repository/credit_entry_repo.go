package repository

import (
	"context"

	"liverymarket/internal/model"

	"gorm.io/gorm"
)

type CreditEntryRepository struct {
	db *gorm.DB
}

func NewCreditEntryRepository(db *gorm.DB) *CreditEntryRepository {
	return &CreditEntryRepository{db: db}
}

func (r *CreditEntryRepository) Create(ctx context.Context, tx *gorm.DB, entry *model.CreditEntry) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(entry).Error
}

func (r *CreditEntryRepository) ListByAccount(ctx context.Context, accountID int64, page, pageSize int) ([]*model.CreditEntry, int64, error) {
	var entries []*model.CreditEntry
	var total int64

	query := r.db.WithContext(ctx).Model(&model.CreditEntry{}).Where("account_id = ?", accountID)

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("created_at DESC").
		Order("id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&entries).Error

	return entries, total, err
}
