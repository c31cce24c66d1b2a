package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"liverymarket/internal/config"
	"liverymarket/internal/infrastructure/metrics"
	"liverymarket/internal/model"
	"liverymarket/internal/repository"
	"liverymarket/pkg/idgen"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const maxCodeAttempts = 3

type TopupService struct {
	db              *gorm.DB
	cfg             *config.Config
	accountRepo     *repository.AccountRepository
	productRepo     *repository.ProductRepository
	transactionRepo *repository.TransactionRepository
	creditRepo      *repository.CreditEntryRepository
	notifier        *notifier
	logger          *logrus.Logger
}

func NewTopupService(db *gorm.DB, cfg *config.Config, logger *logrus.Logger) *TopupService {
	return &TopupService{
		db:              db,
		cfg:             cfg,
		accountRepo:     repository.NewAccountRepository(db),
		productRepo:     repository.NewProductRepository(db),
		transactionRepo: repository.NewTransactionRepository(db),
		creditRepo:      repository.NewCreditEntryRepository(db),
		notifier:        &notifier{outboxRepo: repository.NewOutboxRepository(db)},
		logger:          logger,
	}
}

func (s *TopupService) ListProducts(ctx context.Context) ([]*model.Product, error) {
	return s.productRepo.ListActive(ctx)
}

type TopupResponse struct {
	Transaction  *model.Transaction `json:"transaction"`
	Product      *model.Product     `json:"product"`
	PaymentAsset *config.PriceAsset `json:"payment_asset,omitempty"`
}

// CreateTopup opens a pending top-up for product. The returned payment asset
// is the configured QRIS image whose price is closest to the product price.
func (s *TopupService) CreateTopup(ctx context.Context, chatID, productID int64) (*TopupResponse, error) {
	account, err := s.accountRepo.GetByChatID(ctx, chatID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("get account: %w", err)
	}

	product, err := s.productRepo.GetByID(ctx, nil, productID)
	if err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	if !product.IsActive {
		return nil, ErrProductNotFound
	}

	trans := &model.Transaction{
		AccountID: account.ID,
		ProductID: product.ID,
		Amount:    product.Price,
		Status:    model.TransactionStatusPending,
	}
	for attempt := 1; ; attempt++ {
		code, err := idgen.GenerateTxCode()
		if err != nil {
			return nil, fmt.Errorf("generate transaction code: %w", err)
		}
		trans.Code = code

		err = s.transactionRepo.Create(ctx, nil, trans)
		if err == nil {
			break
		}
		if attempt >= maxCodeAttempts || !isDuplicateKey(err) {
			return nil, fmt.Errorf("create transaction: %w", err)
		}
		trans.ID = 0
	}

	s.logger.WithFields(logrus.Fields{
		"account_id": account.ID,
		"tx_code":    trans.Code,
		"product_id": product.ID,
	}).Info("top-up created")

	return &TopupResponse{
		Transaction:  trans,
		Product:      product,
		PaymentAsset: closestAsset(s.cfg.Payment.Assets(), product.Price),
	}, nil
}

// AttachProof stores the payment proof of chatID's pending top-up and asks
// the admins to review it.
func (s *TopupService) AttachProof(ctx context.Context, chatID, transactionID int64, proofRef string) (*model.Transaction, error) {
	proofRef = strings.TrimSpace(proofRef)
	if proofRef == "" {
		return nil, ErrProofRequired
	}

	account, err := s.accountRepo.GetByChatID(ctx, chatID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("get account: %w", err)
	}

	var trans *model.Transaction
	err = s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		trans, err = s.transactionRepo.GetByID(ctx, tx, transactionID)
		if err != nil {
			return mapTransactionErr(err)
		}
		if trans.AccountID != account.ID {
			return ErrTransactionNotFound
		}

		if err := s.transactionRepo.AttachProof(ctx, tx, transactionID, proofRef); err != nil {
			return mapTransactionErr(err)
		}
		trans.ProofRef = &proofRef

		product, err := s.productRepo.GetByID(ctx, tx, trans.ProductID)
		if err != nil {
			return fmt.Errorf("get product: %w", err)
		}

		return s.notifier.enqueue(ctx, tx, s.cfg.Kafka.Topic.AdminNotify, model.EventTopupSubmitted, trans.Code, map[string]interface{}{
			"transaction_id": trans.ID,
			"tx_code":        trans.Code,
			"chat_id":        account.ChatID,
			"display_name":   account.DisplayName,
			"product_name":   product.Name,
			"credit_amount":  product.CreditAmount,
			"amount":         trans.Amount.String(),
			"proof_ref":      proofRef,
			"admin_ids":      s.cfg.Admin.IDs,
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"account_id": account.ID,
		"tx_code":    trans.Code,
	}).Info("payment proof submitted")
	return trans, nil
}

type DecisionResponse struct {
	Transaction *model.Transaction `json:"transaction"`
	Balance     int64              `json:"balance"`
}

// Approve moves a pending top-up to approved and credits the owner the
// product's credit amount, all in one database transaction. Only one of
// several concurrent decisions succeeds; the rest get ErrAlreadyResolved.
func (s *TopupService) Approve(ctx context.Context, transactionID, adminID int64, notes string) (*DecisionResponse, error) {
	var (
		trans   *model.Transaction
		balance int64
	)
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		trans, err = s.pendingTransaction(ctx, tx, transactionID)
		if err != nil {
			return err
		}

		if err := s.transactionRepo.UpdateStatus(ctx, tx, trans.ID, model.TransactionStatusPending,
			model.TransactionStatusApproved, optionalString(notes), &adminID); err != nil {
			return mapTransactionErr(err)
		}

		product, err := s.productRepo.GetByID(ctx, tx, trans.ProductID)
		if err != nil {
			return fmt.Errorf("get product: %w", err)
		}

		if err := s.accountRepo.Increase(ctx, tx, trans.AccountID, product.CreditAmount); err != nil {
			return fmt.Errorf("credit account: %w", err)
		}
		account, err := s.accountRepo.GetByID(ctx, tx, trans.AccountID)
		if err != nil {
			return fmt.Errorf("read balance: %w", err)
		}
		balance = account.Credit

		entry := &model.CreditEntry{
			EntryNo:       idgen.GenerateEntryNo(),
			AccountID:     account.ID,
			Amount:        product.CreditAmount,
			Type:          model.CreditEntryTopup,
			BalanceBefore: balance - product.CreditAmount,
			BalanceAfter:  balance,
			Reference:     trans.Code,
		}
		if err := s.creditRepo.Create(ctx, tx, entry); err != nil {
			return fmt.Errorf("record credit entry: %w", err)
		}

		trans.Status = model.TransactionStatusApproved
		trans.AdminNotes = optionalString(notes)
		trans.ResolvedBy = &adminID

		return s.notifier.enqueue(ctx, tx, s.cfg.Kafka.Topic.UserNotify, model.EventTopupApproved, trans.Code, map[string]interface{}{
			"chat_id":       account.ChatID,
			"tx_code":       trans.Code,
			"credit_amount": product.CreditAmount,
			"balance":       balance,
		})
	})
	if err != nil {
		return nil, err
	}

	metrics.TopupDecisions.WithLabelValues(model.TransactionStatusApproved).Inc()
	s.logger.WithFields(logrus.Fields{
		"tx_code":  trans.Code,
		"admin_id": adminID,
		"balance":  balance,
	}).Info("top-up approved")

	return &DecisionResponse{Transaction: trans, Balance: balance}, nil
}

// Reject moves a pending top-up to rejected. The balance is not touched.
func (s *TopupService) Reject(ctx context.Context, transactionID, adminID int64, notes string) (*DecisionResponse, error) {
	var (
		trans   *model.Transaction
		balance int64
	)
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		trans, err = s.pendingTransaction(ctx, tx, transactionID)
		if err != nil {
			return err
		}

		if err := s.transactionRepo.UpdateStatus(ctx, tx, trans.ID, model.TransactionStatusPending,
			model.TransactionStatusRejected, optionalString(notes), &adminID); err != nil {
			return mapTransactionErr(err)
		}

		account, err := s.accountRepo.GetByID(ctx, tx, trans.AccountID)
		if err != nil {
			return fmt.Errorf("get account: %w", err)
		}
		balance = account.Credit

		trans.Status = model.TransactionStatusRejected
		trans.AdminNotes = optionalString(notes)
		trans.ResolvedBy = &adminID

		return s.notifier.enqueue(ctx, tx, s.cfg.Kafka.Topic.UserNotify, model.EventTopupRejected, trans.Code, map[string]interface{}{
			"chat_id": account.ChatID,
			"tx_code": trans.Code,
			"notes":   notes,
		})
	})
	if err != nil {
		return nil, err
	}

	metrics.TopupDecisions.WithLabelValues(model.TransactionStatusRejected).Inc()
	s.logger.WithFields(logrus.Fields{
		"tx_code":  trans.Code,
		"admin_id": adminID,
	}).Info("top-up rejected")

	return &DecisionResponse{Transaction: trans, Balance: balance}, nil
}

func (s *TopupService) pendingTransaction(ctx context.Context, tx *gorm.DB, id int64) (*model.Transaction, error) {
	trans, err := s.transactionRepo.GetByID(ctx, tx, id)
	if err != nil {
		return nil, mapTransactionErr(err)
	}
	if trans.Status != model.TransactionStatusPending {
		return nil, ErrAlreadyResolved
	}
	return trans, nil
}

func (s *TopupService) GetTransaction(ctx context.Context, id int64) (*model.Transaction, error) {
	trans, err := s.transactionRepo.GetByID(ctx, nil, id)
	if err != nil {
		return nil, mapTransactionErr(err)
	}
	return trans, nil
}

// ListTopups pages through the caller's own top-ups, newest first.
func (s *TopupService) ListTopups(ctx context.Context, chatID int64, page, pageSize int) ([]*model.Transaction, int64, error) {
	account, err := s.accountRepo.GetByChatID(ctx, chatID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, 0, ErrAccountNotFound
		}
		return nil, 0, fmt.Errorf("get account: %w", err)
	}
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return s.transactionRepo.ListByAccount(ctx, account.ID, page, pageSize)
}

// GetTransactionByCode resolves the code a user quotes in chat. Codes are
// matched case-insensitively.
func (s *TopupService) GetTransactionByCode(ctx context.Context, code string) (*model.Transaction, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if !idgen.IsTxCode(code) {
		return nil, ErrTransactionNotFound
	}
	trans, err := s.transactionRepo.GetByCode(ctx, code)
	if err != nil {
		return nil, mapTransactionErr(err)
	}
	return trans, nil
}

func (s *TopupService) ListPending(ctx context.Context, limit int) ([]*model.PendingTransaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.transactionRepo.ListPending(ctx, limit)
}

type Stats struct {
	TotalAccounts       int64           `json:"total_accounts"`
	TotalTransactions   int64           `json:"total_transactions"`
	PendingTransactions int64           `json:"pending_transactions"`
	ApprovedRevenue     decimal.Decimal `json:"approved_revenue"`
}

func (s *TopupService) Stats(ctx context.Context) (*Stats, error) {
	var (
		stats Stats
		err   error
	)
	if stats.TotalAccounts, err = s.accountRepo.Count(ctx); err != nil {
		return nil, fmt.Errorf("count accounts: %w", err)
	}
	if stats.TotalTransactions, err = s.transactionRepo.CountByStatus(ctx, ""); err != nil {
		return nil, fmt.Errorf("count transactions: %w", err)
	}
	if stats.PendingTransactions, err = s.transactionRepo.CountByStatus(ctx, model.TransactionStatusPending); err != nil {
		return nil, fmt.Errorf("count pending transactions: %w", err)
	}
	if stats.ApprovedRevenue, err = s.transactionRepo.SumAmountByStatus(ctx, model.TransactionStatusApproved); err != nil {
		return nil, fmt.Errorf("sum approved revenue: %w", err)
	}
	return &stats, nil
}

// closestAsset picks the payment image whose price is nearest to price.
// Ties go to the cheaper entry.
func closestAsset(assets []config.PriceAsset, price decimal.Decimal) *config.PriceAsset {
	var best *config.PriceAsset
	var bestDiff decimal.Decimal
	for i := range assets {
		diff := decimal.NewFromInt(assets[i].Price).Sub(price).Abs()
		if best == nil || diff.LessThan(bestDiff) {
			best = &assets[i]
			bestDiff = diff
		}
	}
	return best
}

func mapTransactionErr(err error) error {
	switch {
	case errors.Is(err, repository.ErrTransactionNotFound):
		return ErrTransactionNotFound
	case errors.Is(err, repository.ErrTransactionStatusInvalid):
		return ErrAlreadyResolved
	default:
		return err
	}
}

func optionalString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate") || strings.Contains(msg, "unique constraint")
}
