package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbscanner/internal/domain"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestSink_PublishSignals(t *testing.T) {
	fw := &fakeWriter{}
	s := &Sink{w: fw, topic: "arbscan.signals"}
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	err := s.PublishSignals(context.Background(), []domain.Signal{
		{ID: "s1", Status: domain.SignalAccepted, CreatedAt: at,
			Opportunity: domain.Opportunity{Symbol: "BTC", BuySource: "mexc", SellSource: "bybit", NetPercent: 1.2}},
	})
	require.NoError(t, err)

	require.Len(t, fw.msgs, 1)
	msg := fw.msgs[0]
	assert.Equal(t, "BTC|mexc|bybit", string(msg.Key))
	assert.Equal(t, at, msg.Time)
	assert.Equal(t, "status", msg.Headers[0].Key)
	assert.Equal(t, "accepted", string(msg.Headers[0].Value))

	var decoded domain.Signal
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "s1", decoded.ID)
	assert.Equal(t, 1.2, decoded.Opportunity.NetPercent)

	require.NoError(t, s.Close())
	assert.True(t, fw.closed)
}

func TestSink_EmptyBatchIsNoop(t *testing.T) {
	fw := &fakeWriter{err: errors.New("should not be called")}
	s := &Sink{w: fw}
	require.NoError(t, s.PublishSignals(context.Background(), nil))
}

func TestSink_WrapsWriteError(t *testing.T) {
	boom := errors.New("broker down")
	s := &Sink{w: &fakeWriter{err: boom}, topic: "t"}

	err := s.PublishSignals(context.Background(), []domain.Signal{{ID: "x"}})

	require.ErrorIs(t, err, boom)
	assert.Equal(t, "kafka", s.Name())
}

func TestNewSink_ConfiguresWriter(t *testing.T) {
	s := NewSink(Config{Brokers: []string{"localhost:9092"}, Topic: "arbscan.signals", ClientID: "arbscanner"})
	defer s.Close()

	w, ok := s.w.(*kafka.Writer)
	require.True(t, ok)
	assert.Equal(t, "arbscan.signals", w.Topic)
	assert.Equal(t, kafka.RequireOne, w.RequiredAcks)
	assert.Equal(t, 200*time.Millisecond, w.BatchTimeout)

	tr, ok := w.Transport.(*kafka.Transport)
	require.True(t, ok)
	assert.Equal(t, "arbscanner", tr.ClientID)
	assert.Equal(t, "kafka", s.Name())
}
