package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"procurement/internal/domain"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const exchangeType = "topic"

// AMQPSender publishes jobs to a topic exchange with routing key notify.<kind>
type AMQPSender struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

// NewAMQPSender dials the broker, retrying a few times while it starts up,
// and declares the exchange.
func NewAMQPSender(url, exchange string, logger *zap.Logger) (*AMQPSender, error) {
	var conn *amqp.Connection
	var err error
	for i := 0; i < 5; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			break
		}
		logger.Warn("Failed to connect to RabbitMQ", zap.Int("attempt", i+1), zap.Error(err))
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("could not connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("could not open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		exchange,     // name
		exchangeType, // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("could not declare exchange: %w", err)
	}

	return &AMQPSender{conn: conn, ch: ch, exchange: exchange}, nil
}

func routingKey(kind domain.JobKind) string {
	return "notify." + string(kind)
}

func (s *AMQPSender) Send(ctx context.Context, job domain.Job) error {
	body, err := Encode(job)
	if err != nil {
		return err
	}

	// amqp channels are not safe for concurrent publishing
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ch.PublishWithContext(ctx,
		s.exchange,
		routingKey(job.Kind),
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    job.ID.String(),
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
}

func (s *AMQPSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ch.Close(); err != nil {
		s.conn.Close()
		return err
	}
	return s.conn.Close()
}
