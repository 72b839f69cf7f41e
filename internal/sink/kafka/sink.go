// Package kafka streams gated signals to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/alanyoungcy/arbscanner/internal/domain"
)

// Config holds the producer parameters.
type Config struct {
	Brokers  []string
	Topic    string
	ClientID string
}

// messageWriter is the subset of *kafka.Writer the sink needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Sink implements domain.SignalSink by writing one message per signal, keyed
// by "<symbol>|<buy>|<sell>" so a route always lands on the same partition.
type Sink struct {
	w     messageWriter
	topic string
}

// NewSink builds a synchronous writer for cfg.
func NewSink(cfg Config) *Sink {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 200 * time.Millisecond,
		Transport: &kafka.Transport{
			ClientID:    cfg.ClientID,
			DialTimeout: 10 * time.Second,
		},
	}
	return &Sink{w: w, topic: cfg.Topic}
}

// Name implements domain.SignalSink.
func (s *Sink) Name() string { return "kafka" }

// PublishSignals implements domain.SignalSink.
func (s *Sink) PublishSignals(ctx context.Context, signals []domain.Signal) error {
	if len(signals) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(signals))
	for _, sig := range signals {
		value, err := json.Marshal(sig)
		if err != nil {
			return fmt.Errorf("kafka: marshal signal %s: %w", sig.ID, err)
		}
		o := sig.Opportunity
		msgs = append(msgs, kafka.Message{
			Key:   []byte(o.Symbol + "|" + o.BuySource + "|" + o.SellSource),
			Value: value,
			Time:  sig.CreatedAt,
			Headers: []kafka.Header{
				{Key: "status", Value: []byte(sig.Status)},
			},
		})
	}
	if err := s.w.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("kafka: write %d signals to %s: %w", len(msgs), s.topic, err)
	}
	return nil
}

// Close flushes pending messages and closes the writer.
func (s *Sink) Close() error {
	return s.w.Close()
}

// Compile-time interface check.
var _ domain.SignalSink = (*Sink)(nil)
