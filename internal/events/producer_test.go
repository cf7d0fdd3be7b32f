package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestNewProducer_FlushesEachMessage(t *testing.T) {
	t.Parallel()

	p, err := NewProducer([]string{"kafka-1:9092", "kafka-2:9092"}, "user_events")
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	w, ok := p.writer.(*kafka.Writer)
	require.True(t, ok)
	assert.Equal(t, "user_events", w.Topic)
	assert.Equal(t, 1, w.BatchSize)
	assert.Equal(t, batchTimeout, w.BatchTimeout)
	assert.Less(t, w.BatchTimeout, 100*time.Millisecond)
	assert.Equal(t, kafka.RequireOne, w.RequiredAcks)
	assert.Equal(t, writeTimeout, w.WriteTimeout)
}

func TestProducer_Publish_WritesEnvelope(t *testing.T) {
	t.Parallel()

	w := &fakeWriter{}
	p := &Producer{writer: w, topic: "user_events"}

	err := p.Publish(context.Background(), UserBanned, map[string]any{"user_id": 7})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, []byte(UserBanned), msg.Key)
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "event_name", msg.Headers[0].Key)
	assert.Equal(t, UserBanned, string(msg.Headers[0].Value))

	var env struct {
		EventID   string         `json:"event_id"`
		EventName string         `json:"event_name"`
		Data      map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(msg.Value, &env))
	assert.Equal(t, UserBanned, env.EventName)
	assert.EqualValues(t, 7, env.Data["user_id"])
	_, err = uuid.Parse(env.EventID)
	assert.NoError(t, err)
}

func TestProducer_Publish_WrapsWriterError(t *testing.T) {
	t.Parallel()

	boom := errors.New("broker down")
	p := &Producer{writer: &fakeWriter{err: boom}, topic: "user_events"}

	err := p.Publish(context.Background(), UserDeleted, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestProducer_Close(t *testing.T) {
	t.Parallel()

	w := &fakeWriter{}
	p := &Producer{writer: w, topic: "user_events"}
	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestNewProducer_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewProducer(nil, "user_events")
	assert.Error(t, err)

	_, err = NewProducer([]string{"localhost:9092"}, "")
	assert.Error(t, err)

	p, err := NewProducer([]string{"localhost:9092"}, "user_events")
	require.NoError(t, err)
	assert.NoError(t, p.Close())
}

func TestLogPublisher_NeverFails(t *testing.T) {
	t.Parallel()
	assert.NoError(t, LogPublisher{}.Publish(context.Background(), UserRegistered, struct{}{}))
}
