package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/shiken_shop/pkg/logging"
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

func TestProducer_PublishEvent(t *testing.T) {
	t.Parallel()

	fw := &fakeWriter{}
	p := &Producer{w: fw}

	err := p.PublishEvent(context.Background(), TopicOrder, "ann@test.com", map[string]any{
		"type":    "order_created",
		"orderId": "ORD-1",
	})
	require.NoError(t, err)
	require.Len(t, fw.msgs, 1)

	m := fw.msgs[0]
	assert.Equal(t, TopicOrder, m.Topic)
	assert.Equal(t, "ann@test.com", string(m.Key))

	var got map[string]any
	require.NoError(t, json.Unmarshal(m.Value, &got))
	assert.Equal(t, "order_created", got["type"])

	require.NoError(t, p.Close())
	assert.True(t, fw.closed)
}

func TestProducer_MarshalError(t *testing.T) {
	t.Parallel()

	p := &Producer{w: &fakeWriter{}}
	err := p.PublishEvent(context.Background(), TopicCart, "k", map[string]any{"bad": make(chan int)})
	assert.Error(t, err)
}

func TestPublish_LogsAndSwallowsErrors(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	ctx := logging.IntoContext(context.Background(), logging.NewWithWriter(&buf, "info"))

	p := &Producer{w: &fakeWriter{err: errors.New("broker down")}}
	Publish(ctx, p, TopicUser, "k", map[string]any{"type": "user_registered"})

	assert.Contains(t, buf.String(), "kafka_publish_error")
	assert.Contains(t, buf.String(), "broker down")

	Publish(ctx, nil, TopicUser, "k", map[string]any{})
	Publish(ctx, Nop{}, TopicUser, "k", map[string]any{})
}

func TestNewProducer_RequiresBrokers(t *testing.T) {
	t.Parallel()

	_, err := NewProducer(nil)
	assert.Error(t, err)

	p, err := NewProducer([]string{"localhost:9092"})
	require.NoError(t, err)
	require.NoError(t, p.Close())
}

func TestNewProducer_WritesAsync(t *testing.T) {
	t.Parallel()
	p, err := NewProducer([]string{"127.0.0.1:1"})
	require.NoError(t, err)
	defer p.Close()

	w, ok := p.w.(*kafka.Writer)
	require.True(t, ok)
	assert.True(t, w.Async)
	assert.NotNil(t, w.Completion)
}
