package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"liverymarket/internal/model"
	"liverymarket/internal/repository"
	"liverymarket/internal/upstream"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// CredentialValidator resolves a game credential to its account id.
type CredentialValidator interface {
	ValidateCredential(ctx context.Context, credential string) (string, error)
}

type AccountService struct {
	accountRepo   *repository.AccountRepository
	injectionRepo *repository.InjectionRepository
	creditRepo    *repository.CreditEntryRepository
	validator     CredentialValidator
	logger        *logrus.Logger
}

func NewAccountService(db *gorm.DB, validator CredentialValidator, logger *logrus.Logger) *AccountService {
	return &AccountService{
		accountRepo:   repository.NewAccountRepository(db),
		injectionRepo: repository.NewInjectionRepository(db),
		creditRepo:    repository.NewCreditEntryRepository(db),
		validator:     validator,
		logger:        logger,
	}
}

// EnsureAccount returns the account of chatID, creating it on first contact.
func (s *AccountService) EnsureAccount(ctx context.Context, chatID int64, displayName string) (*model.Account, error) {
	account, err := s.accountRepo.GetOrCreate(ctx, chatID, displayName)
	if err != nil {
		return nil, fmt.Errorf("get or create account: %w", err)
	}
	return account, nil
}

func (s *AccountService) GetAccount(ctx context.Context, chatID int64) (*model.Account, error) {
	account, err := s.accountRepo.GetByChatID(ctx, chatID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("get account: %w", err)
	}
	return account, nil
}

// LinkAccount validates credential against the game backend and, on success,
// stores it together with the resolved external id. A failed validation
// leaves any previous link untouched.
func (s *AccountService) LinkAccount(ctx context.Context, chatID int64, credential string) (string, error) {
	account, err := s.GetAccount(ctx, chatID)
	if err != nil {
		return "", err
	}

	credential = strings.TrimSpace(credential)
	externalID, err := s.validator.ValidateCredential(ctx, credential)
	if err != nil {
		if errors.Is(err, upstream.ErrEmptyCredential) || errors.Is(err, upstream.ErrInvalidOrUnreachable) {
			return "", ErrInvalidCredential
		}
		return "", fmt.Errorf("validate credential: %w", err)
	}

	if err := s.accountRepo.SetLink(ctx, account.ID, credential, externalID); err != nil {
		return "", fmt.Errorf("store credential link: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"account_id":  account.ID,
		"external_id": externalID,
	}).Info("game account linked")
	return externalID, nil
}

func (s *AccountService) UnlinkAccount(ctx context.Context, chatID int64) error {
	account, err := s.GetAccount(ctx, chatID)
	if err != nil {
		return err
	}
	if err := s.accountRepo.ClearLink(ctx, account.ID); err != nil {
		return fmt.Errorf("clear credential link: %w", err)
	}
	s.logger.WithField("account_id", account.ID).Info("game account unlinked")
	return nil
}

// GetBalance reads the balance from storage on every call.
func (s *AccountService) GetBalance(ctx context.Context, chatID int64) (int64, error) {
	account, err := s.GetAccount(ctx, chatID)
	if err != nil {
		return 0, err
	}
	return account.Credit, nil
}

// GetLinkedID returns the external id of the linked game account, or false
// when none is linked.
func (s *AccountService) GetLinkedID(ctx context.Context, chatID int64) (string, bool, error) {
	account, err := s.GetAccount(ctx, chatID)
	if err != nil {
		return "", false, err
	}
	if !account.Linked() {
		return "", false, nil
	}
	return *account.ExternalID, true, nil
}

// InjectionHistory lists the account's latest injected liveries, newest
// first, with the lifetime injection count.
func (s *AccountService) InjectionHistory(ctx context.Context, chatID int64, limit int) ([]*model.InjectionRecord, int64, error) {
	account, err := s.GetAccount(ctx, chatID)
	if err != nil {
		return nil, 0, err
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	records, err := s.injectionRepo.ListByAccount(ctx, account.ID, limit)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.injectionRepo.CountByAccount(ctx, account.ID)
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// CreditStatement pages through the account's credit journal.
func (s *AccountService) CreditStatement(ctx context.Context, chatID int64, page, pageSize int) ([]*model.CreditEntry, int64, error) {
	account, err := s.GetAccount(ctx, chatID)
	if err != nil {
		return nil, 0, err
	}
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return s.creditRepo.ListByAccount(ctx, account.ID, page, pageSize)
}
