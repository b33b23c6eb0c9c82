package kafka

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	"ms-verify/internal/models"
)

// Producer streams scan events to Kafka for downstream consumers (live
// dashboards, fraud review). The audit table stays the source of truth;
// the stream is best effort.
type Producer struct {
	Writer *kafka.Writer
}

func NewProducer(brokers []string, topic string) *Producer {
	writer := kafka.NewWriter(kafka.WriterConfig{
		Brokers: brokers,
		Topic:   topic,
	})
	return &Producer{Writer: writer}
}

// PublishScanEvent streams one audit event, keyed by order id so attempts on
// the same ticket stay ordered within a partition.
func (p *Producer) PublishScanEvent(event models.ScanEvent) error {
	msgBytes, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return p.Writer.WriteMessages(context.Background(),
		kafka.Message{
			Key:   []byte(event.OrderID),
			Value: msgBytes,
		},
	)
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}
