package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fjod/storefront/internal/domain"
	"github.com/segmentio/kafka-go"
)

// MessageWriter is the part of *kafka.Writer the notifier uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type KafkaNotifier struct {
	writer MessageWriter
}

// NewKafkaWriter returns a writer keyed by order id, shared by the
// notification and order event topics.
func NewKafkaWriter(topic string, brokers ...string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
}

func NewKafkaNotifier(writer MessageWriter) *KafkaNotifier {
	return &KafkaNotifier{writer: writer}
}

func (n *KafkaNotifier) NotifyNewOrder(ctx context.Context, order *domain.Order) error {
	return n.publish(ctx, newMessage(KindNewOrder, order, nil))
}

func (n *KafkaNotifier) NotifyOrderUpdated(ctx context.Context, order *domain.Order, changes domain.Changes) error {
	return n.publish(ctx, newMessage(KindOrderUpdated, order, changes))
}

func (n *KafkaNotifier) publish(ctx context.Context, m Message) error {
	value, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(m.OrderID.String()), // keeps one order's notifications in order
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(m.Kind)},
		},
	}
	if err := n.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish %s notification: %w", m.Kind, err)
	}
	return nil
}
