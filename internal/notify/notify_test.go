package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/healthcare_records/internal/logging"
)

func TestMessages(t *testing.T) {
	t.Parallel()

	m := LoginOTP("a@example.com", "123456", 10*time.Minute)
	assert.Equal(t, KindLoginOTP, m.Kind)
	assert.Contains(t, m.Body, "123456")
	assert.Contains(t, m.Body, "10 minutes")

	r := ResetOTP("a@example.com", "654321", 15*time.Minute)
	assert.Equal(t, KindResetOTP, r.Kind)
	assert.Contains(t, r.Body, "15 minutes")
}

func TestLog_OmitsBody(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	n := NewLog(logging.NewWithWriter(&buf, "info"))
	require.NoError(t, n.Send(context.Background(), LoginOTP("a@example.com", "987654", time.Minute)))

	out := buf.String()
	assert.Contains(t, out, "notification_sent")
	assert.Contains(t, out, "a@example.com")
	assert.NotContains(t, out, "987654")
}

type fakePublisher struct {
	topic, key string
	event      any
	err        error
}

func (f *fakePublisher) PublishEvent(_ context.Context, topic, key string, event any) error {
	f.topic, f.key, f.event = topic, key, event
	return f.err
}

func TestKafka(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{}
	n := NewKafka(pub, "notifications.email")
	require.NoError(t, n.Send(context.Background(), ResetOTP("b@example.com", "111111", time.Minute)))

	assert.Equal(t, "notifications.email", pub.topic)
	assert.Equal(t, "b@example.com", pub.key)
	msg, ok := pub.event.(Message)
	require.True(t, ok)
	assert.False(t, msg.SentAt.IsZero())

	pub.err = errors.New("down")
	require.Error(t, n.Send(context.Background(), Message{To: "b@example.com"}))
}

type fakeChannel struct {
	declares  int
	published []amqp.Publishing
	keys      []string
	closed    bool
}

func (f *fakeChannel) QueueDeclare(name string, durable, _, _, _ bool, _ amqp.Table) (amqp.Queue, error) {
	f.declares++
	if !durable {
		return amqp.Queue{}, errors.New("queue must be durable")
	}
	return amqp.Queue{Name: name}, nil
}

func (f *fakeChannel) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp.Publishing) error {
	f.keys = append(f.keys, key)
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func TestAMQP(t *testing.T) {
	t.Parallel()

	ch := &fakeChannel{}
	n := NewAMQP(ch, "notifications.email")
	ctx := context.Background()

	require.NoError(t, n.Send(ctx, LoginOTP("c@example.com", "222222", time.Minute)))
	require.NoError(t, n.Send(ctx, LoginOTP("c@example.com", "333333", time.Minute)))

	assert.Equal(t, 1, ch.declares)
	require.Len(t, ch.published, 2)
	assert.Equal(t, []string{"notifications.email", "notifications.email"}, ch.keys)

	p := ch.published[0]
	assert.Equal(t, amqp.Persistent, p.DeliveryMode)
	assert.Equal(t, "application/json", p.ContentType)
	assert.Equal(t, KindLoginOTP, p.Type)
	assert.False(t, p.Timestamp.IsZero())

	var got Message
	require.NoError(t, json.Unmarshal(p.Body, &got))
	assert.Equal(t, "c@example.com", got.To)

	require.NoError(t, n.Close())
	assert.True(t, ch.closed)
}
