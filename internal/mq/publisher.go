package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Poller/internal/domain"
)

// MessageType — тип сообщения в очереди.
type MessageType string

// Типы сообщений.
const (
	MessageTypeEventPending MessageType = "event.pending"
	MessageTypeEventStatus  MessageType = "event.status"
)

// Message — сообщение для публикации.
type Message struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	// Type — тип сообщения.
	Type MessageType `json:"type"`

	// Payload — полезная нагрузка.
	Payload any `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// EventPayload — payload сообщения о новом event.
type EventPayload struct {
	ID       string   `json:"id"`
	AssetIDs []string `json:"asset_ids"`
}

// EventStatusPayload — payload сообщения с итогом обработки event.
type EventStatusPayload struct {
	EventID      string         `json:"event_id"`
	Verdict      domain.Verdict `json:"verdict"`
	Submitted    int            `json:"submitted"`
	Success      int            `json:"success"`
	Retryable    int            `json:"retryable"`
	NonRetryable int            `json:"non_retryable"`
	TimedOut     int            `json:"timed_out,omitempty"`
	Cause        string         `json:"cause,omitempty"`
	FinishedAt   time.Time      `json:"finished_at"`
}

// NewEventStatusPayload сводит Report к счётчикам корзин.
func NewEventStatusPayload(report domain.Report) EventStatusPayload {
	return EventStatusPayload{
		EventID:      report.EventID,
		Verdict:      report.Verdict,
		Submitted:    report.Submitted,
		Success:      len(report.Buckets.Success),
		Retryable:    len(report.Buckets.Retryable),
		NonRetryable: len(report.Buckets.NonRetryable),
		TimedOut:     report.TimedOut,
		Cause:        report.Cause,
		FinishedAt:   report.FinishedAt,
	}
}

func newMessage(msgType MessageType, payload any) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// Publish публикует сообщение в указанный exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(exchange),
			string(routingKey),
			false,
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				MessageId:    msg.ID,
				Type:         string(msg.Type),
				Timestamp:    msg.Timestamp,
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", msg.ID,
			"type", msg.Type,
		)
		return nil
	})
}

// PublishEvent ставит event в очередь events.pending.
func (p *Publisher) PublishEvent(ctx context.Context, event domain.Event) error {
	if err := event.Validate(); err != nil {
		return err
	}
	msg := newMessage(MessageTypeEventPending, EventPayload{ID: event.ID, AssetIDs: event.AssetIDs})
	return p.Publish(ctx, ExchangeEvents, RoutingKeyPending, msg)
}

// Report публикует итог обработки event в events.status.
// Publisher может использоваться как status sink.
func (p *Publisher) Report(ctx context.Context, report domain.Report) error {
	msg := newMessage(MessageTypeEventStatus, NewEventStatusPayload(report))
	return p.Publish(ctx, ExchangeEvents, RoutingKeyStatus, msg)
}
