package repository

import (
	"context"
	"errors"
	"fmt"

	"liverymarket/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrTransactionNotFound      = errors.New("transaction not found")
	ErrTransactionStatusInvalid = errors.New("transaction status invalid")
)

type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) Create(ctx context.Context, tx *gorm.DB, trans *model.Transaction) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(trans).Error
}

func (r *TransactionRepository) GetByID(ctx context.Context, tx *gorm.DB, id int64) (*model.Transaction, error) {
	if tx == nil {
		tx = r.db
	}
	var trans model.Transaction
	err := tx.WithContext(ctx).Where("id = ?", id).First(&trans).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return &trans, nil
}

func (r *TransactionRepository) GetByCode(ctx context.Context, code string) (*model.Transaction, error) {
	var trans model.Transaction
	err := r.db.WithContext(ctx).Where("code = ?", code).First(&trans).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return &trans, nil
}

// UpdateStatus moves a transaction from fromStatus to toStatus. The status
// check is part of the UPDATE, so of two concurrent callers exactly one wins
// and the other gets ErrTransactionStatusInvalid.
func (r *TransactionRepository) UpdateStatus(ctx context.Context, tx *gorm.DB, id int64, fromStatus, toStatus string, notes *string, resolvedBy *int64) error {
	if !model.CanTransitionTo(fromStatus, toStatus) {
		return ErrTransactionStatusInvalid
	}

	if tx == nil {
		tx = r.db
	}

	updates := map[string]interface{}{
		"status": toStatus,
	}
	if notes != nil {
		updates["admin_notes"] = *notes
	}
	if resolvedBy != nil {
		updates["resolved_by"] = *resolvedBy
	}

	result := tx.WithContext(ctx).
		Model(&model.Transaction{}).
		Where("id = ? AND status = ?", id, fromStatus).
		Updates(updates)

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		if _, err := r.GetByID(ctx, tx, id); err != nil {
			return err
		}
		return ErrTransactionStatusInvalid
	}

	return nil
}

// AttachProof records the payment proof while the transaction is pending.
func (r *TransactionRepository) AttachProof(ctx context.Context, tx *gorm.DB, id int64, proofRef string) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.Transaction{}).
		Where("id = ? AND status = ?", id, model.TransactionStatusPending).
		Update("proof_ref", proofRef)

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		if _, err := r.GetByID(ctx, tx, id); err != nil {
			return err
		}
		return ErrTransactionStatusInvalid
	}
	return nil
}

// ListPending returns pending top-ups, oldest first, with their owner and
// product for review.
func (r *TransactionRepository) ListPending(ctx context.Context, limit int) ([]*model.PendingTransaction, error) {
	var rows []*model.PendingTransaction
	err := r.db.WithContext(ctx).
		Table("transactions").
		Select("transactions.*, accounts.chat_id, accounts.display_name, products.name AS product_name, products.credit_amount").
		Joins("JOIN accounts ON accounts.id = transactions.account_id").
		Joins("JOIN products ON products.id = transactions.product_id").
		Where("transactions.status = ?", model.TransactionStatusPending).
		Order("transactions.created_at ASC").
		Order("transactions.id ASC").
		Limit(limit).
		Scan(&rows).Error
	return rows, err
}

func (r *TransactionRepository) ListByAccount(ctx context.Context, accountID int64, page, pageSize int) ([]*model.Transaction, int64, error) {
	var transactions []*model.Transaction
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Transaction{}).Where("account_id = ?", accountID)

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("created_at DESC").
		Order("id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&transactions).Error

	return transactions, total, err
}

// CountByStatus counts transactions in status; an empty status counts all.
func (r *TransactionRepository) CountByStatus(ctx context.Context, status string) (int64, error) {
	var total int64
	query := r.db.WithContext(ctx).Model(&model.Transaction{})
	if status != "" {
		query = query.Where("status = ?", status)
	}
	err := query.Count(&total).Error
	return total, err
}

func (r *TransactionRepository) SumAmountByStatus(ctx context.Context, status string) (decimal.Decimal, error) {
	var sum string
	err := r.db.WithContext(ctx).
		Model(&model.Transaction{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("status = ?", status).
		Row().
		Scan(&sum)
	if err != nil {
		return decimal.Zero, err
	}
	total, err := decimal.NewFromString(sum)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse amount sum %q: %w", sum, err)
	}
	return total, nil
}
