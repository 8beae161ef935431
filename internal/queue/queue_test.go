package queue

import (
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
)

func TestRedactURL(t *testing.T) {
	assert.Equal(t, "amqp://guest:REDACTED@mq:5672/", redactURL("amqp://guest:secret@mq:5672/"))
	assert.Equal(t, "amqp://guest@mq:5672/", redactURL("amqp://guest@mq:5672/"))
	assert.Equal(t, "amqp://mq:5672/", redactURL("amqp://mq:5672/"))
	assert.Equal(t, "<invalid url>", redactURL("amqp://[::1"))
}

func TestNewPublishing(t *testing.T) {
	p := newPublishing([]byte(`{"a":1}`))
	assert.Equal(t, "application/json", p.ContentType)
	assert.Equal(t, amqp.Persistent, p.DeliveryMode)
	assert.Len(t, p.MessageId, 36)
	assert.False(t, p.Timestamp.IsZero())
}

func TestMessageAckNack(t *testing.T) {
	var acked, requeued bool
	m := &Message{
		ack:  func(multiple bool) error { acked = !multiple; return nil },
		nack: func(multiple, requeue bool) error { requeued = requeue; return nil },
	}
	assert.NoError(t, m.Ack())
	assert.NoError(t, m.Nack(true))
	assert.True(t, acked)
	assert.True(t, requeued)

	var nilMsg *Message
	assert.NoError(t, nilMsg.Ack())
	assert.NoError(t, nilMsg.Nack(false))
}

func TestNewMessage(t *testing.T) {
	var requeue bool
	m := NewMessage([]byte("x"), true, nil, func(_, r bool) error { requeue = r; return nil })
	assert.True(t, m.Redelivered)
	assert.NoError(t, m.Ack())
	assert.NoError(t, m.Nack(true))
	assert.True(t, requeue)
}
