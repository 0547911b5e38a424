// Package pubsub publishes deal notifications to a Google Cloud Pub/Sub topic so that
// other deliverers can fan them out.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	"go.opentelemetry.io/otel"

	"github.com/JakeFAU/dealwatch/internal/watch"
)

// Payload is the JSON body of every published message.
type Payload struct {
	ChannelID string    `json:"channel_id"`
	Text      string    `json:"text"`
	SentAt    time.Time `json:"sent_at"`
}

// Sink wraps a Pub/Sub topic.
type Sink struct {
	topic *pubsub.Topic
	clock watch.Clock
}

// New creates a Sink publishing to topic.
func New(topic *pubsub.Topic, clock watch.Clock) *Sink {
	if clock == nil {
		clock = utcClock{}
	}
	return &Sink{topic: topic, clock: clock}
}

// Notify publishes one message and waits for the server to acknowledge it.
func (s *Sink) Notify(ctx context.Context, channelID, text string) error {
	if s.topic == nil {
		return fmt.Errorf("pubsub topic is not configured")
	}
	data, err := json.Marshal(Payload{ChannelID: channelID, Text: text, SentAt: s.clock.Now()})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	msg := &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"channel_id": channelID},
	}
	otel.GetTextMapPropagator().Inject(ctx, &pubsubCarrier{attrs: msg.Attributes})

	if _, err := s.topic.Publish(ctx, msg).Get(ctx); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

// Close flushes pending messages and stops the topic's background goroutines.
func (s *Sink) Close() {
	if s.topic != nil {
		s.topic.Stop()
	}
}

// pubsubCarrier implements propagation.TextMapCarrier for Pub/Sub attributes.
type pubsubCarrier struct {
	attrs map[string]string
}

func (c *pubsubCarrier) Get(key string) string {
	return c.attrs[key]
}

func (c *pubsubCarrier) Set(key, value string) {
	c.attrs[key] = value
}

func (c *pubsubCarrier) Keys() []string {
	keys := make([]string, 0, len(c.attrs))
	for k := range c.attrs {
		keys = append(keys, k)
	}
	return keys
}

type utcClock struct{}

func (utcClock) Now() time.Time { return time.Now().UTC() }
