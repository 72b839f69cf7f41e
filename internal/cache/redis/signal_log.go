package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/arbscanner/internal/domain"
)

// SignalLog fans gated signals out over a SignalBus: every signal is
// published on a Pub/Sub channel for live consumers and appended to a
// stream that doubles as a short signal history.
type SignalLog struct {
	bus     domain.SignalBus
	channel string
	stream  string
	logger  *slog.Logger
}

// NewSignalLog creates a SignalLog. An empty stream disables the history.
func NewSignalLog(bus domain.SignalBus, channel, stream string, logger *slog.Logger) *SignalLog {
	return &SignalLog{
		bus:     bus,
		channel: channel,
		stream:  stream,
		logger:  logger.With(slog.String("component", "redis_signal_log")),
	}
}

// Name implements domain.SignalSink.
func (l *SignalLog) Name() string { return "redis" }

// PublishSignals implements domain.SignalSink.
func (l *SignalLog) PublishSignals(ctx context.Context, signals []domain.Signal) error {
	for _, sig := range signals {
		payload, err := json.Marshal(sig)
		if err != nil {
			return fmt.Errorf("redis: marshal signal %s: %w", sig.ID, err)
		}
		if err := l.bus.Publish(ctx, l.channel, payload); err != nil {
			return err
		}
		if l.stream == "" {
			continue
		}
		if err := l.bus.StreamAppend(ctx, l.stream, payload); err != nil {
			return err
		}
	}
	return nil
}

// ListRecent implements domain.SignalHistory from the stream.
func (l *SignalLog) ListRecent(ctx context.Context, limit int) ([]domain.Signal, error) {
	if l.stream == "" {
		return nil, nil
	}
	msgs, err := l.bus.StreamRecent(ctx, l.stream, limit)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Signal, 0, len(msgs))
	for _, m := range msgs {
		var sig domain.Signal
		if err := json.Unmarshal(m.Payload, &sig); err != nil {
			l.logger.Warn("skipping undecodable stream entry",
				slog.String("id", m.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		out = append(out, sig)
	}
	return out, nil
}

var (
	_ domain.SignalSink    = (*SignalLog)(nil)
	_ domain.SignalHistory = (*SignalLog)(nil)
)
