package job

import (
	"context"
	"time"

	"liverymarket/internal/model"
	"liverymarket/internal/repository"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Publisher delivers one message to the broker.
type Publisher interface {
	Publish(topic, key, value string) error
}

// OutboxSender drains pending outbox rows to Kafka. Messages that keep
// failing are parked as FAILED after maxRetry attempts.
type OutboxSender struct {
	outboxRepo *repository.OutboxRepository
	publisher  Publisher
	logger     *logrus.Logger
	stopCh     chan struct{}
	interval   time.Duration
	batchSize  int
	maxRetry   int
}

func NewOutboxSender(db *gorm.DB, publisher Publisher, maxRetry int, logger *logrus.Logger) *OutboxSender {
	if maxRetry <= 0 {
		maxRetry = 5
	}
	return &OutboxSender{
		outboxRepo: repository.NewOutboxRepository(db),
		publisher:  publisher,
		logger:     logger,
		stopCh:     make(chan struct{}),
		interval:   500 * time.Millisecond,
		batchSize:  100,
		maxRetry:   maxRetry,
	}
}

func (s *OutboxSender) Start(ctx context.Context) {
	s.logger.Info("outbox sender started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("outbox sender stopped by context")
			return
		case <-s.stopCh:
			s.logger.Info("outbox sender stopped")
			return
		case <-ticker.C:
			s.ProcessPending(ctx)
		}
	}
}

func (s *OutboxSender) Stop() {
	close(s.stopCh)
}

// ProcessPending sends one batch and returns how many messages went out.
func (s *OutboxSender) ProcessPending(ctx context.Context) int {
	messages, err := s.outboxRepo.GetPendingMessages(ctx, s.batchSize)
	if err != nil {
		s.logger.WithError(err).Error("load pending outbox messages failed")
		return 0
	}

	sent := 0
	for _, msg := range messages {
		if s.send(ctx, msg) {
			sent++
		}
	}
	return sent
}

func (s *OutboxSender) send(ctx context.Context, msg *model.OutboxMessage) bool {
	log := s.logger.WithFields(logrus.Fields{
		"outbox_id": msg.ID,
		"topic":     msg.Topic,
		"event":     msg.EventType,
	})

	if err := s.publisher.Publish(msg.Topic, msg.MessageKey, msg.Payload); err != nil {
		parked, recErr := s.outboxRepo.RecordFailure(ctx, msg.ID, s.maxRetry)
		if recErr != nil {
			log.WithError(recErr).Error("record outbox failure failed")
			return false
		}
		if parked {
			log.WithError(err).Error("outbox message parked after max retries")
		} else {
			log.WithError(err).Warn("outbox publish failed, will retry")
		}
		return false
	}

	if err := s.outboxRepo.MarkAsSent(ctx, msg.ID); err != nil {
		log.WithError(err).Error("mark outbox message sent failed")
		return false
	}
	log.Debug("outbox message sent")
	return true
}
