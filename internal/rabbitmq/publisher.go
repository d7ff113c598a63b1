package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"marketplace-realtime/internal/observability"
	"marketplace-realtime/internal/telemetry"
)

// Publisher ships ws lifecycle events and audit envelopes to the topic
// exchange shared with the rest of the marketplace.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error
	Close() error
}

var errPublisherClosed = errors.New("rabbitmq: publisher closed")

// redialBackoff bounds how often a lost broker connection is retried.
const redialBackoff = 5 * time.Second

// NewPublisher dials RabbitMQ and declares the exchange. Any failure at
// startup degrades to a noop publisher so the realtime path never depends
// on the broker.
func NewPublisher(amqpURL, exchange string) Publisher {
	if amqpURL == "" {
		log.Printf("rabbitmq disabled, using noop: empty amqp url")
		return noopPublisher{reason: "empty amqp url"}
	}

	p := &amqpPublisher{url: amqpURL, exchange: exchange}
	if err := p.connectLocked(); err != nil {
		log.Printf("rabbitmq disabled, using noop: %v", err)
		return noopPublisher{reason: err.Error()}
	}

	log.Printf("rabbitmq connected exchange=%s", exchange)
	return p
}

// amqpPublisher serializes publishes on one channel and redials lazily
// after the broker drops the connection.
type amqpPublisher struct {
	url      string
	exchange string

	mu         sync.Mutex
	conn       *amqp.Connection
	ch         *amqp.Channel
	closing    chan *amqp.Error
	lastDialAt time.Time
	closed     bool
}

func (p *amqpPublisher) connectLocked() error {
	p.lastDialAt = time.Now()

	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("declare exchange %s: %w", p.exchange, err)
	}

	p.conn = conn
	p.ch = ch
	p.closing = ch.NotifyClose(make(chan *amqp.Error, 1))
	return nil
}

// channelLocked returns a usable channel, redialing when the previous one
// was closed by the broker.
func (p *amqpPublisher) channelLocked() (*amqp.Channel, error) {
	if p.closed {
		return nil, errPublisherClosed
	}
	select {
	case amqpErr, ok := <-p.closing:
		if ok && amqpErr != nil {
			log.Printf("rabbitmq channel closed code=%d reason=%s", amqpErr.Code, amqpErr.Reason)
		}
		p.ch = nil
	default:
	}
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}

	if time.Since(p.lastDialAt) < redialBackoff {
		return nil, errors.New("rabbitmq: reconnect pending")
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	if err := p.connectLocked(); err != nil {
		return nil, err
	}
	log.Printf("rabbitmq reconnected exchange=%s", p.exchange)
	return p.ch, nil
}

func (p *amqpPublisher) Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %s: %w", routingKey, err)
	}

	table := amqp.Table{}
	for key, value := range headers {
		table[key] = value
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		Headers:      table,
		Body:         body,
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	ch, err := p.channelLocked()
	if err == nil {
		err = ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, msg)
	}
	if err != nil {
		log.Printf("rabbitmq publish failed routing_key=%s: %v", routingKey, err)
	}
	return err
}

func (p *amqpPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// noopPublisher logs what would have been published.
type noopPublisher struct {
	reason string
}

func (noopPublisher) Publish(_ context.Context, routingKey string, event any, headers map[string]string) error {
	switch envelope := event.(type) {
	case telemetry.AuditEnvelope:
		log.Printf("rabbitmq noop publish routing_key=%s action=%s user_id=%s request_id=%s", routingKey, envelope.Payload.Action, envelope.UserID, envelope.RequestID)
	case observability.EventEnvelope:
		log.Printf("rabbitmq noop publish routing_key=%s event=%s request_id=%s", routingKey, envelope.EventName, headers["x-request-id"])
	default:
		log.Printf("rabbitmq noop publish routing_key=%s request_id=%s", routingKey, headers["x-request-id"])
	}
	return nil
}

func (noopPublisher) Close() error {
	return nil
}

// PublisherMode reports the publisher mode for logging.
func PublisherMode(p Publisher) string {
	switch p.(type) {
	case *amqpPublisher:
		return "amqp"
	case noopPublisher:
		return "noop"
	default:
		return "unknown"
	}
}

func PublisherNoopReason(p Publisher) string {
	if publisher, ok := p.(noopPublisher); ok {
		return publisher.reason
	}
	return ""
}
