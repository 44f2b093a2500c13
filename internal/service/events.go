package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"otp-gateway/internal/client"
	"otp-gateway/internal/util"
)

// Event types published to the lifecycle stream.
const (
	EventIssued         = "otp.issued"
	EventVerified       = "otp.verified"
	EventDeliveryFailed = "otp.delivery_failed"
)

// Event is the wire form of one lifecycle event. It never carries the
// code, and the identifier is masked the same way log fields are.
type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Identifier string    `json:"identifier"`
	Channel    string    `json:"channel,omitempty"`
	Diagnostic string    `json:"diagnostic,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// EventPublisher emits lifecycle events to Kafka, fire-and-forget. A
// nil producer turns every publish into a no-op, so the gateway runs
// unchanged without a broker.
type EventPublisher struct {
	producer *client.KafkaProducer
	logger   *zap.Logger
}

func NewEventPublisher(producer *client.KafkaProducer, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{producer: producer, logger: logger}
}

// Publish sends one event. Failures are logged and swallowed: the event
// stream is observability, never part of request correctness.
func (p *EventPublisher) Publish(eventType, identifier, channelName, diagnostic string) {
	if p == nil || p.producer == nil {
		return
	}

	event := Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		Identifier: util.MaskIdentifier(identifier),
		Channel:    channelName,
		Diagnostic: diagnostic,
		Timestamp:  time.Now().UTC(),
	}

	value, err := json.Marshal(event)
	if err != nil {
		p.logger.Warn("Failed to encode lifecycle event", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := p.producer.Publish(ctx, []byte(util.MaskIdentifier(identifier)), value, map[string]string{
		"event_type": eventType,
	}); err != nil {
		p.logger.Warn("Failed to publish lifecycle event",
			zap.String("event_type", eventType),
			zap.Error(err))
	}
}
