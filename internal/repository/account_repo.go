package repository

import (
	"context"
	"errors"

	"liverymarket/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrCreditNotEnough = errors.New("credit not enough")
)

type AccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// GetOrCreate returns the account for chatID, creating it on first contact.
func (r *AccountRepository) GetOrCreate(ctx context.Context, chatID int64, displayName string) (*model.Account, error) {
	account, err := r.GetByChatID(ctx, chatID)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, ErrAccountNotFound) {
		return nil, err
	}

	newAccount := &model.Account{
		ChatID:      chatID,
		DisplayName: displayName,
	}
	err = r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "chat_id"}},
			DoNothing: true,
		}).
		Create(newAccount).Error
	if err != nil {
		return nil, err
	}

	return r.GetByChatID(ctx, chatID)
}

func (r *AccountRepository) GetByChatID(ctx context.Context, chatID int64) (*model.Account, error) {
	var account model.Account
	err := r.db.WithContext(ctx).Where("chat_id = ?", chatID).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

func (r *AccountRepository) GetByID(ctx context.Context, tx *gorm.DB, id int64) (*model.Account, error) {
	if tx == nil {
		tx = r.db
	}
	var account model.Account
	err := tx.WithContext(ctx).Where("id = ?", id).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// SetLink writes the credential and the resolved external id in a single
// UPDATE so neither is ever visible without the other.
func (r *AccountRepository) SetLink(ctx context.Context, id int64, authToken, externalID string) error {
	return r.updateLink(ctx, id, map[string]interface{}{
		"auth_token":  authToken,
		"external_id": externalID,
		"version":     gorm.Expr("version + 1"),
	})
}

// ClearLink removes both halves of the credential link. Idempotent.
func (r *AccountRepository) ClearLink(ctx context.Context, id int64) error {
	return r.updateLink(ctx, id, map[string]interface{}{
		"auth_token":  nil,
		"external_id": nil,
		"version":     gorm.Expr("version + 1"),
	})
}

func (r *AccountRepository) updateLink(ctx context.Context, id int64, updates map[string]interface{}) error {
	result := r.db.WithContext(ctx).
		Model(&model.Account{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// Deduct takes amount credits off the balance. The WHERE guard keeps the
// balance non-negative under concurrent debits.
func (r *AccountRepository) Deduct(ctx context.Context, tx *gorm.DB, id int64, amount int64) error {
	result := tx.WithContext(ctx).
		Model(&model.Account{}).
		Where("id = ? AND credit >= ?", id, amount).
		Updates(map[string]interface{}{
			"credit":  gorm.Expr("credit - ?", amount),
			"version": gorm.Expr("version + 1"),
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		if _, err := r.GetByID(ctx, tx, id); err != nil {
			return err
		}
		return ErrCreditNotEnough
	}

	return nil
}

func (r *AccountRepository) Increase(ctx context.Context, tx *gorm.DB, id int64, amount int64) error {
	result := tx.WithContext(ctx).
		Model(&model.Account{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"credit":  gorm.Expr("credit + ?", amount),
			"version": gorm.Expr("version + 1"),
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrAccountNotFound
	}

	return nil
}

func (r *AccountRepository) Count(ctx context.Context) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&model.Account{}).Count(&total).Error
	return total, err
}
