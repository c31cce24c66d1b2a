package repository

import (
	"context"

	"liverymarket/internal/model"

	"gorm.io/gorm"
)

type InjectionRepository struct {
	db *gorm.DB
}

func NewInjectionRepository(db *gorm.DB) *InjectionRepository {
	return &InjectionRepository{db: db}
}

// Create appends a provenance row. Records are never updated.
func (r *InjectionRepository) Create(ctx context.Context, tx *gorm.DB, record *model.InjectionRecord) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(record).Error
}

func (r *InjectionRepository) ListByAccount(ctx context.Context, accountID int64, limit int) ([]*model.InjectionRecord, error) {
	var records []*model.InjectionRecord
	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("injected_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&records).Error
	return records, err
}

func (r *InjectionRepository) CountByAccount(ctx context.Context, accountID int64) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&model.InjectionRecord{}).
		Where("account_id = ?", accountID).
		Count(&total).Error
	return total, err
}
