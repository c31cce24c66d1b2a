package service

import (
	"context"
	"errors"
	"fmt"

	"liverymarket/internal/catalog"
	"liverymarket/internal/config"
	"liverymarket/internal/infrastructure/lock"
	"liverymarket/internal/infrastructure/metrics"
	"liverymarket/internal/model"
	"liverymarket/internal/repository"
	"liverymarket/internal/upstream"
	"liverymarket/pkg/idgen"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Injector runs the grant and customize calls against the game backend.
type Injector interface {
	Inject(ctx context.Context, itemID, credential string) (*upstream.InjectionOutcome, error)
}

// LiveryLookup resolves catalog item ids.
type LiveryLookup interface {
	Get(ctx context.Context, id string) (catalog.Livery, error)
}

type InjectionService struct {
	db            *gorm.DB
	redisClient   *redis.Client
	cfg           *config.Config
	accountRepo   *repository.AccountRepository
	injectionRepo *repository.InjectionRepository
	creditRepo    *repository.CreditEntryRepository
	notifier      *notifier
	catalog       LiveryLookup
	injector      Injector
	logger        *logrus.Logger
}

func NewInjectionService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config,
	lookup LiveryLookup, injector Injector, logger *logrus.Logger) *InjectionService {
	return &InjectionService{
		db:            db,
		redisClient:   redisClient,
		cfg:           cfg,
		accountRepo:   repository.NewAccountRepository(db),
		injectionRepo: repository.NewInjectionRepository(db),
		creditRepo:    repository.NewCreditEntryRepository(db),
		notifier:      &notifier{outboxRepo: repository.NewOutboxRepository(db)},
		catalog:       lookup,
		injector:      injector,
		logger:        logger,
	}
}

type InjectResult struct {
	Record         *model.InjectionRecord `json:"record"`
	ItemInstanceID string                 `json:"item_instance_id"`
	Balance        int64                  `json:"balance"`
}

// InjectItem injects a catalog livery into the caller's linked game account
// and, only if both upstream phases succeed, debits the injection cost and
// records the injection in one database transaction.
//
// Balance, link and item are checked before any upstream request. Balance
// and link are checked again once the account lock is held. Upstream
// failures come back as *upstream.InjectionError; use upstream.IsPartial to
// tell a granted-but-uncustomized item from a clean failure. Neither debits.
func (s *InjectionService) InjectItem(ctx context.Context, chatID int64, itemID string) (*InjectResult, error) {
	cost := s.cfg.Business.InjectionCost
	log := s.logger.WithFields(logrus.Fields{"chat_id": chatID, "item_id": itemID})

	account, err := s.accountRepo.GetByChatID(ctx, chatID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("get account: %w", err)
	}
	log = log.WithField("account_id", account.ID)

	if account.Credit < cost {
		metrics.Injections.WithLabelValues("rejected").Inc()
		return nil, ErrInsufficientCredit
	}
	if !account.Linked() {
		metrics.Injections.WithLabelValues("rejected").Inc()
		return nil, ErrNotLinked
	}
	livery, err := s.catalog.Get(ctx, itemID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			metrics.Injections.WithLabelValues("rejected").Inc()
			return nil, ErrItemNotFound
		}
		return nil, fmt.Errorf("look up livery: %w", err)
	}

	injectLock := lock.NewInjectionLock(s.redisClient, account.ID, uuid.NewString(), s.cfg.Business.LockTTL)
	locked, err := injectLock.TryLock(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire injection lock: %w", err)
	}
	if !locked {
		metrics.Injections.WithLabelValues("rejected").Inc()
		return nil, ErrInjectionInProgress
	}
	defer func() {
		if err := injectLock.Unlock(context.WithoutCancel(ctx)); err != nil {
			log.WithError(err).Warn("release injection lock failed")
		}
	}()

	// Another injection may have spent the credit or an unlink may have run
	// between the first read and the lock.
	account, err = s.accountRepo.GetByID(ctx, nil, account.ID)
	if err != nil {
		return nil, fmt.Errorf("reload account: %w", err)
	}
	if account.Credit < cost {
		metrics.Injections.WithLabelValues("rejected").Inc()
		return nil, ErrInsufficientCredit
	}
	if !account.Linked() {
		metrics.Injections.WithLabelValues("rejected").Inc()
		return nil, ErrNotLinked
	}

	outcome, err := s.injector.Inject(ctx, itemID, *account.AuthToken)
	if err != nil {
		if upstream.IsPartial(err) {
			metrics.Injections.WithLabelValues("partial").Inc()
			log.WithError(err).Error("livery granted but not customized, no credit taken")
		} else {
			metrics.Injections.WithLabelValues("failed").Inc()
			log.WithError(err).Warn("injection failed, no credit taken")
		}
		return nil, err
	}

	// The item is in the game account now; the debit must not be cut short
	// by the caller going away.
	dbCtx := context.WithoutCancel(ctx)
	record := &model.InjectionRecord{
		AccountID:      account.ID,
		LiveryID:       livery.ID,
		LiveryName:     livery.Name,
		CarName:        livery.CarName,
		ItemInstanceID: outcome.ItemInstanceID,
	}
	var balance int64

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.accountRepo.Deduct(dbCtx, tx, account.ID, cost); err != nil {
			if errors.Is(err, repository.ErrCreditNotEnough) {
				return ErrInsufficientCredit
			}
			return fmt.Errorf("deduct credit: %w", err)
		}

		after, err := s.accountRepo.GetByID(dbCtx, tx, account.ID)
		if err != nil {
			return fmt.Errorf("read balance: %w", err)
		}
		balance = after.Credit

		if err := s.injectionRepo.Create(dbCtx, tx, record); err != nil {
			return fmt.Errorf("record injection: %w", err)
		}

		entry := &model.CreditEntry{
			EntryNo:       idgen.GenerateEntryNo(),
			AccountID:     account.ID,
			Amount:        -cost,
			Type:          model.CreditEntryInjection,
			BalanceBefore: balance + cost,
			BalanceAfter:  balance,
			Reference:     livery.ID,
		}
		if err := s.creditRepo.Create(dbCtx, tx, entry); err != nil {
			return fmt.Errorf("record credit entry: %w", err)
		}

		return s.notifier.enqueue(dbCtx, tx, s.cfg.Kafka.Topic.UserNotify, model.EventInjectionCompleted, "", map[string]interface{}{
			"chat_id":          account.ChatID,
			"livery_id":        livery.ID,
			"livery_name":      livery.Name,
			"car_name":         livery.CarName,
			"item_instance_id": outcome.ItemInstanceID,
			"balance":          balance,
		})
	})
	if err != nil {
		metrics.Injections.WithLabelValues("failed").Inc()
		log.WithError(err).Error("livery injected but ledger update failed")
		return nil, err
	}

	metrics.Injections.WithLabelValues("success").Inc()
	log.WithFields(logrus.Fields{
		"item_instance_id": outcome.ItemInstanceID,
		"balance":          balance,
	}).Info("livery injected")

	return &InjectResult{
		Record:         record,
		ItemInstanceID: outcome.ItemInstanceID,
		Balance:        balance,
	}, nil
}
