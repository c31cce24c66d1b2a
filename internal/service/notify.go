package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"liverymarket/internal/model"
	"liverymarket/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// notifier writes chat notifications into the outbox inside the caller's
// database transaction.
type notifier struct {
	outboxRepo *repository.OutboxRepository
}

func (n *notifier) enqueue(ctx context.Context, tx *gorm.DB, topic, eventType, key string, payload map[string]interface{}) error {
	messageID := uuid.NewString()
	if key == "" {
		key = messageID
	}
	payload["event"] = eventType
	payload["message_id"] = messageID
	payload["occurred_at"] = time.Now().Format(time.RFC3339)

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s notification: %w", eventType, err)
	}

	msg := &model.OutboxMessage{
		MessageKey: key,
		Topic:      topic,
		EventType:  eventType,
		Payload:    string(payloadBytes),
		Status:     model.OutboxStatusPending,
	}
	if err := n.outboxRepo.Create(ctx, tx, msg); err != nil {
		return fmt.Errorf("write %s notification: %w", eventType, err)
	}
	return nil
}
