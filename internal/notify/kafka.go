package notify

import (
	"context"
)

type Publisher interface {
	PublishEvent(ctx context.Context, topic, key string, event any) error
}

// Kafka hands messages to a mail worker over a topic, keyed by recipient.
type Kafka struct {
	pub   Publisher
	topic string
}

func NewKafka(pub Publisher, topic string) *Kafka {
	return &Kafka{pub: pub, topic: topic}
}

func (n *Kafka) Send(ctx context.Context, msg Message) error {
	return n.pub.PublishEvent(ctx, n.topic, msg.To, stamp(msg))
}
