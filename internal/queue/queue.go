package queue

import (
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"ai-things/postforge/internal/utils"
)

type Client struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

type Message struct {
	Body        []byte
	MessageID   string
	Redelivered bool
	ack         func(bool) error
	nack        func(bool, bool) error
}

func New(url string) (*Client, error) {
	utils.Info("queue connect", "url", redactURL(url))
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return &Client{conn: conn, ch: ch}, nil
}

func redactURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return "<invalid url>"
	}
	if parsed.User == nil {
		return parsed.String()
	}
	username := parsed.User.Username()
	if _, hasPassword := parsed.User.Password(); hasPassword {
		parsed.User = url.UserPassword(username, "REDACTED")
	} else {
		parsed.User = url.User(username)
	}
	return parsed.String()
}

func (c *Client) Close() {
	if c.ch != nil {
		_ = c.ch.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

func (c *Client) ensureQueue(name string) error {
	utils.Debug("queue ensure", "queue", name)
	_, err := c.ch.QueueDeclare(
		name,
		true,
		false,
		false,
		false,
		nil,
	)
	return err
}

func (c *Client) Publish(queueName string, payload []byte) error {
	utils.Info("queue publish", "queue", queueName, "bytes", len(payload))
	if err := c.ensureQueue(queueName); err != nil {
		return err
	}
	return c.ch.Publish(
		"",
		queueName,
		false,
		false,
		newPublishing(payload),
	)
}

// PublishJSON marshals v and publishes it.
func (c *Client) PublishJSON(queueName string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s message: %w", queueName, err)
	}
	return c.Publish(queueName, payload)
}

func newPublishing(payload []byte) amqp.Publishing {
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		Body:         payload,
	}
}

// Pop fetches one message without auto-ack; nil means the queue is empty.
func (c *Client) Pop(queueName string) (*Message, error) {
	utils.Debug("queue pop", "queue", queueName)
	if err := c.ensureQueue(queueName); err != nil {
		return nil, err
	}
	msg, ok, err := c.ch.Get(queueName, false)
	if err != nil {
		return nil, err
	}
	if !ok {
		utils.Debug("queue empty", "queue", queueName)
		return nil, nil
	}
	utils.Info("queue received", "queue", queueName, "bytes", len(msg.Body), "redelivered", msg.Redelivered)
	return &Message{
		Body:        msg.Body,
		MessageID:   msg.MessageId,
		Redelivered: msg.Redelivered,
		ack:         msg.Ack,
		nack:        msg.Nack,
	}, nil
}

// NewMessage builds a message around caller-supplied acknowledgement
// functions, for consumers that do not come from Pop.
func NewMessage(body []byte, redelivered bool, ack func(multiple bool) error, nack func(multiple, requeue bool) error) *Message {
	return &Message{Body: body, Redelivered: redelivered, ack: ack, nack: nack}
}

func (m *Message) Ack() error {
	if m == nil || m.ack == nil {
		return nil
	}
	utils.Debug("queue ack", "message_id", m.MessageID)
	return m.ack(false)
}

func (m *Message) Nack(requeue bool) error {
	if m == nil || m.nack == nil {
		return nil
	}
	utils.Debug("queue nack", "message_id", m.MessageID, "requeue", requeue)
	return m.nack(false, requeue)
}
