package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Poller/internal/domain"
)

// ErrUnexpectedMessage — сообщение не того типа.
var ErrUnexpectedMessage = errors.New("unexpected message type")

// envelope — входящее сообщение с ещё не разобранным payload.
type envelope struct {
	ID      string          `json:"id"`
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// ParsePayload разбирает payload сообщения в тип T.
func ParsePayload[T any](body []byte) (MessageType, T, error) {
	var payload T

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return "", payload, fmt.Errorf("unmarshal message: %w", err)
	}
	if len(env.Payload) == 0 {
		return env.Type, payload, errors.New("message has no payload")
	}
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		return env.Type, payload, fmt.Errorf("unmarshal payload: %w", err)
	}
	return env.Type, payload, nil
}

// DecodeEvent разбирает сообщение event.pending.
func DecodeEvent(body []byte) (domain.Event, error) {
	msgType, payload, err := ParsePayload[EventPayload](body)
	if err != nil {
		return domain.Event{}, err
	}
	if msgType != MessageTypeEventPending {
		return domain.Event{}, fmt.Errorf("%w: %q", ErrUnexpectedMessage, msgType)
	}
	return domain.NewEvent(payload.ID, payload.AssetIDs...)
}

// pendingDelivery — полученное, но ещё не подтверждённое сообщение.
type pendingDelivery struct {
	channel *amqp.Channel
	tag     uint64
}

// Source — pull-источник events из очереди events.pending.
//
// Fetch забирает не больше max сообщений через basic.get. Сообщение
// подтверждается только после отчёта по его event: Source реализует
// status sink. ALL_RETRYABLE возвращает сообщение в очередь, любой
// другой вердикт подтверждает его. Некорректные сообщения уходят в DLQ.
type Source struct {
	conn   *Connection
	queue  Queue
	logger *slog.Logger

	mu      sync.Mutex
	pending map[string]pendingDelivery
}

// NewSource создаёт Source для очереди queue (default: events.pending).
func NewSource(conn *Connection, queue Queue, logger *slog.Logger) *Source {
	if queue == "" {
		queue = QueueEventsPending
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{
		conn:    conn,
		queue:   queue,
		logger:  logger.With("queue", string(queue)),
		pending: make(map[string]pendingDelivery),
	}
}

// Fetch забирает до max events.
func (s *Source) Fetch(ctx context.Context, max int) ([]domain.Event, error) {
	if max <= 0 {
		return nil, nil
	}

	var events []domain.Event
	err := s.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		for len(events) < max {
			if err := ctx.Err(); err != nil {
				return err
			}

			d, ok, err := ch.Get(string(s.queue), false)
			if err != nil {
				return fmt.Errorf("get from %s: %w", s.queue, err)
			}
			if !ok {
				return nil
			}

			event, err := DecodeEvent(d.Body)
			if err != nil {
				s.logger.Warn("rejecting malformed event message",
					"message_id", d.MessageId,
					"error", err,
				)
				if nackErr := d.Nack(false, false); nackErr != nil {
					return fmt.Errorf("nack message: %w", nackErr)
				}
				continue
			}

			if !s.track(event.ID, ch, d.DeliveryTag) {
				// Тот же event уже в обработке.
				s.logger.Debug("duplicate event message dropped", "event_id", event.ID)
				if ackErr := d.Ack(false); ackErr != nil {
					return fmt.Errorf("ack duplicate: %w", ackErr)
				}
				continue
			}

			events = append(events, event)
		}
		return nil
	})

	// Уже полученные events отдаются даже при ошибке канала.
	if err != nil && len(events) == 0 {
		return nil, err
	}
	if err != nil {
		s.logger.Warn("fetch interrupted", "fetched", len(events), "error", err)
	}
	return events, nil
}

func (s *Source) track(eventID string, ch *amqp.Channel, tag uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pending[eventID]; ok {
		return false
	}
	s.pending[eventID] = pendingDelivery{channel: ch, tag: tag}
	return true
}

// Report подтверждает сообщение event по итогам обработки.
func (s *Source) Report(ctx context.Context, report domain.Report) error {
	s.mu.Lock()
	d, ok := s.pending[report.EventID]
	delete(s.pending, report.EventID)
	s.mu.Unlock()

	if !ok {
		return nil
	}

	// После переподключения брокер сам вернёт сообщение в очередь.
	if d.channel != s.conn.Channel() {
		s.logger.Debug("delivery channel closed, message will be redelivered", "event_id", report.EventID)
		return nil
	}

	if report.Verdict == domain.VerdictAllRetryable {
		if err := d.channel.Nack(d.tag, false, true); err != nil {
			return fmt.Errorf("requeue event %s: %w", report.EventID, err)
		}
		return nil
	}

	if err := d.channel.Ack(d.tag, false); err != nil {
		return fmt.Errorf("ack event %s: %w", report.EventID, err)
	}
	return nil
}

// Pending возвращает число неподтверждённых сообщений.
func (s *Source) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
