package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaSender hands notifications to the mail service by publishing them on a topic.
type KafkaSender struct {
	writer *kafka.Writer
}

// NewKafkaSender creates a synchronous producer for topic.
func NewKafkaSender(brokers []string, topic string) *KafkaSender {
	return &KafkaSender{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

func (s *KafkaSender) SendHTML(ctx context.Context, to, subject, body string) error {
	msg, err := encodeMessage(Message{To: to, Subject: subject, HTML: body})
	if err != nil {
		return err
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka: write failed: %w", err)
	}
	return nil
}

// Close flushes pending writes.
func (s *KafkaSender) Close() error {
	return s.writer.Close()
}

// encodeMessage keys by recipient so one recipient's mails stay ordered on a partition.
func encodeMessage(m Message) (kafka.Message, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("kafka: json.Marshal failed: %w", err)
	}
	return kafka.Message{
		Key:   []byte(m.To),
		Value: data,
		Headers: []kafka.Header{
			{Key: "content-type", Value: []byte("application/json")},
		},
	}, nil
}
