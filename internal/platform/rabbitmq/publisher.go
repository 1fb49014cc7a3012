// Package rabbitmq publishes consultation events to an AMQP topic exchange.
package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/streadway/amqp"

	"medical-voice-agent/internal/consultation"
	"medical-voice-agent/internal/platform/logger"
)

const RoutingKeyCompleted = "consultation.completed"

type Config struct {
	URL      string
	Exchange string
}

// channel is the part of *amqp.Channel the publisher uses.
type channel interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type Publisher struct {
	conn     *amqp.Connection
	mu       sync.Mutex
	ch       channel
	exchange string
	log      zerolog.Logger
}

func Dial(cfg Config) (*Publisher, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed connection: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(
		cfg.Exchange, // name
		"topic",      // kind
		true,         // durable
		false,        // delete when unused
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", cfg.Exchange, err)
	}
	p := newPublisher(ch, cfg.Exchange)
	p.conn = conn
	return p, nil
}

func newPublisher(ch channel, exchange string) *Publisher {
	return &Publisher{ch: ch, exchange: exchange, log: logger.NewLogger("rabbitmq")}
}

// CompletedEvent is the body of a consultation.completed message.
type CompletedEvent struct {
	ConsultationID string            `json:"consultation_id"`
	PatientID      string            `json:"patient_id"`
	Symptoms       map[string]string `json:"symptoms"`
	Diagnosis      string            `json:"diagnosis"`
	CompletedAt    time.Time         `json:"completed_at"`
}

func (p *Publisher) PublishCompleted(ctx context.Context, c consultation.Consultation) error {
	ev := CompletedEvent{
		ConsultationID: c.ID.String(),
		PatientID:      c.PatientID.String(),
		Symptoms:       make(map[string]string, len(c.Session.Symptoms)),
		Diagnosis:      c.Diagnosis,
		CompletedAt:    c.UpdatedAt,
	}
	for id, st := range c.Session.Symptoms {
		ev.Symptoms[id] = st.Status.String()
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.Publish(ctx, RoutingKeyCompleted, body)
}

func (p *Publisher) Publish(ctx context.Context, routingKey string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ch.Publish(p.exchange, routingKey, false, false, msg); err != nil {
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}
	p.log.Debug().Str("routing_key", routingKey).Str("message_id", msg.MessageId).Msg("published")
	return nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	err := p.ch.Close()
	if p.conn != nil {
		if cerr := p.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
