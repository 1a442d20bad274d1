package notify

import (
	"context"
	"fmt"
	"time"

	"procurement/internal/domain"

	"github.com/segmentio/kafka-go"
)

// KafkaSender publishes jobs to a topic keyed by recipient, so one recipient's
// jobs land on one partition.
type KafkaSender struct {
	w *kafka.Writer
}

func NewKafkaSender(brokers []string, topic string) *KafkaSender {
	return &KafkaSender{
		w: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
		},
	}
}

func (s *KafkaSender) Send(ctx context.Context, job domain.Job) error {
	body, err := Encode(job)
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Key:   []byte(job.RecipientID.String()),
		Value: body,
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(job.Kind)},
		},
	}
	if err := s.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

func (s *KafkaSender) Close() error {
	return s.w.Close()
}
