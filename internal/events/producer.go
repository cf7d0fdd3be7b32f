// Package events publishes user lifecycle events to the message bus.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/Skotchmaster/user_service/internal/logging"
)

const (
	UserRegistered = "user.registered"
	UserBanned     = "user.banned"
	UserUnbanned   = "user.unbanned"
	UserDeleted    = "user.deleted"

	headerEventName = "event_name"
	writeTimeout    = 5 * time.Second
	// Publish runs on the request path and sends one message per call, so
	// the writer must not hold it back waiting for a batch to fill.
	batchTimeout = 10 * time.Millisecond
)

type Publisher interface {
	Publish(ctx context.Context, eventName string, data any) error
}

// Envelope is the JSON value of every message on the topic.
type Envelope struct {
	EventID   string `json:"event_id"`
	EventName string `json:"event_name"`
	Data      any    `json:"data"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Producer struct {
	writer messageWriter
	topic  string
}

func NewProducer(brokers []string, topic string) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka: no brokers configured")
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka: empty topic")
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchSize:              1,
		BatchTimeout:           batchTimeout,
		WriteTimeout:           writeTimeout,
		AllowAutoTopicCreation: true,
	}
	return &Producer{writer: w, topic: topic}, nil
}

func newEnvelope(eventName string, data any) Envelope {
	return Envelope{
		EventID:   uuid.NewString(),
		EventName: eventName,
		Data:      data,
	}
}

func (p *Producer) Publish(ctx context.Context, eventName string, data any) error {
	env := newEnvelope(eventName, data)
	value, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("kafka: json.Marshal failed: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	msg := kafka.Message{
		Key:     []byte(eventName),
		Value:   value,
		Headers: []kafka.Header{{Key: headerEventName, Value: []byte(eventName)}},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka: write to %s failed: %w", p.topic, err)
	}
	logging.FromContext(ctx).Debug("event_published", "event", eventName, "event_id", env.EventID)
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

// LogPublisher stands in for the bus when no brokers are configured.
type LogPublisher struct{}

func (LogPublisher) Publish(ctx context.Context, eventName string, data any) error {
	env := newEnvelope(eventName, data)
	logging.FromContext(ctx).Info("event_not_sent", "event", eventName, "event_id", env.EventID, "reason", "no brokers configured")
	return nil
}
