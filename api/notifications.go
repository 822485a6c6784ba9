package api

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"github.com/segmentio/kafka-go"

	"github.com/KripanshSrivastava/CivicVoice-report/core"
	"github.com/KripanshSrivastava/CivicVoice-report/core/logger"
)

// KafkaNotifier publishes a change event for every mutation to a
// kafka topic. Delivery is best effort; a failed publish is logged and
// never fails the request that caused it.
type KafkaNotifier struct {
	writer *kafka.Writer
}

// NewKafkaNotifier creates a notifier writing to topic on the given
// brokers.
func NewKafkaNotifier(brokers []string, topic string) *KafkaNotifier {
	return &KafkaNotifier{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireOne,
			Async:        true,
		},
	}
}

type changeEvent struct {
	Resource  string          `json:"resource"`
	Operation core.Operation  `json:"operation"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Notify implements core.Notifier.
func (n *KafkaNotifier) Notify(resource string, operation core.Operation, payload []byte) {
	event := changeEvent{
		Resource:  resource,
		Operation: operation,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
	value, err := json.Marshal(event)
	if err != nil {
		logger.Default().WithError(err).Errorln("cannot marshal change event")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = n.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(resource),
		Value: value,
	})
	if err != nil {
		logger.Default().WithError(err).Errorln("cannot publish change event for", resource)
	}
}

// Close flushes and closes the underlying writer.
func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}
