// Package pub fans transaction lifecycle events out to the rest of the
// platform: a Redis channel for realtime subscribers and an optional Kafka
// topic for durable consumers. Publishing is best effort and never fails a
// money movement.
package pub

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"payment-service/internal/domain"
)

const TransactionEventsChannel = "payment.transaction_events"

type TransactionEvent struct {
	EventType       string    `json:"event_type"` // transaction.completed, transaction.failed, ...
	TransactionID   string    `json:"transaction_id"`
	UserID          string    `json:"user_id"`
	TransactionType string    `json:"transaction_type"`
	Status          string    `json:"status"`
	Amount          string    `json:"amount"`
	Fee             string    `json:"fee,omitempty"`
	EscrowID        string    `json:"escrow_id,omitempty"`
	ProjectID       string    `json:"project_id,omitempty"`
	MilestoneID     string    `json:"milestone_id,omitempty"`
	Reference       string    `json:"reference,omitempty"`
	ErrorMessage    string    `json:"error_message,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

type TransactionEventPublisher struct {
	rdb         *redis.Client
	kafkaWriter *kafka.Writer
	logger      *zap.Logger
}

// NewTransactionEventPublisher wires the Redis client and the optional Kafka
// writer. Either may be nil; publishing degrades to the sinks that exist.
func NewTransactionEventPublisher(rdb *redis.Client, kafkaWriter *kafka.Writer, logger *zap.Logger) *TransactionEventPublisher {
	return &TransactionEventPublisher{rdb: rdb, kafkaWriter: kafkaWriter, logger: logger}
}

// PublishTransaction emits one lifecycle event for the given transaction.
func (p *TransactionEventPublisher) PublishTransaction(ctx context.Context, t *domain.Transaction) {
	event := TransactionEvent{
		EventType:       "transaction." + string(t.Status),
		TransactionID:   t.ID,
		UserID:          t.UserID,
		TransactionType: string(t.Type),
		Status:          string(t.Status),
		Amount:          t.Amount.String(),
		Fee:             t.Fee.String(),
		ErrorMessage:    t.FailureReason,
		Timestamp:       time.Now(),
	}
	if t.EscrowID != nil {
		event.EscrowID = *t.EscrowID
	}
	if t.ProjectID != nil {
		event.ProjectID = *t.ProjectID
	}
	if t.MilestoneID != nil {
		event.MilestoneID = *t.MilestoneID
	}
	if t.Reference != nil {
		event.Reference = *t.Reference
	}

	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("failed to marshal transaction event", zap.Error(err))
		return
	}

	if p.rdb != nil {
		if err := p.rdb.Publish(ctx, TransactionEventsChannel, payload).Err(); err != nil {
			p.logger.Warn("failed to publish transaction event to redis",
				zap.String("transaction_id", t.ID),
				zap.Error(err))
		}
	}

	if p.kafkaWriter != nil {
		err := p.kafkaWriter.WriteMessages(ctx, kafka.Message{
			Key:   []byte(t.ID),
			Value: payload,
			Time:  event.Timestamp,
		})
		if err != nil {
			p.logger.Warn("failed to publish transaction event to kafka",
				zap.String("transaction_id", t.ID),
				zap.Error(err))
		}
	}

	p.logger.Debug("transaction event published",
		zap.String("event_type", event.EventType),
		zap.String("transaction_id", t.ID))
}
