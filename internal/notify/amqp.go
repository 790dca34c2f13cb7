package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Channel is the subset of *amqp.Channel used for publishing.
type Channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQP publishes persistent JSON messages to a durable queue on the default
// exchange.
type AMQP struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       Channel
	queue    string
	declared bool
}

func DialAMQP(url, queue string) (*AMQP, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq: dial failed: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq: channel open failed: %w", err)
	}
	n := &AMQP{conn: conn, ch: ch, queue: queue}
	if err := n.declare(); err != nil {
		_ = n.Close()
		return nil, err
	}
	return n, nil
}

func NewAMQP(ch Channel, queue string) *AMQP {
	return &AMQP{ch: ch, queue: queue}
}

func (n *AMQP) declare() error {
	if n.declared {
		return nil
	}
	if _, err := n.ch.QueueDeclare(n.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("rabbitmq: queue declare failed: %w", err)
	}
	n.declared = true
	return nil
}

func (n *AMQP) Send(ctx context.Context, msg Message) error {
	msg = stamp(msg)
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("rabbitmq: marshal failed: %w", err)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if err := n.declare(); err != nil {
		return err
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    msg.SentAt,
		Type:         msg.Kind,
		Body:         body,
	}
	if err := n.ch.PublishWithContext(ctx, "", n.queue, false, false, pub); err != nil {
		return fmt.Errorf("rabbitmq: publish failed: %w", err)
	}
	return nil
}

func (n *AMQP) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	err := n.ch.Close()
	if n.conn != nil {
		if cerr := n.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
