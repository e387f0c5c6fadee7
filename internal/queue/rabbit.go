package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/stolenhq/notify/internal/config"
)

// Publisher is the queue-facing contract the channel adapters depend on.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, message interface{}) error
	IsConnected() bool
}

type RabbitMqClient struct {
	Conn    *amqp.Connection
	Channel *amqp.Channel
	Config  config.RabbitMQConfig
}

func NewRabbitMqClient(cfg config.RabbitMQConfig) (*RabbitMqClient, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open rabbitmq channel: %w", err)
	}
	return &RabbitMqClient{
		Conn:    conn,
		Channel: channel,
		Config:  cfg,
	}, nil
}

func (r *RabbitMqClient) CloseConnection() {
	r.Channel.Close()
	r.Conn.Close()
}

func (r *RabbitMqClient) IsConnected() bool {
	return r.Conn != nil && !r.Conn.IsClosed()
}

// SetUpExchangeAndQueues declares the direct exchange and binds one durable
// queue per delivery channel plus the retry queue.
func (r *RabbitMqClient) SetUpExchangeAndQueues() error {
	if err := r.Channel.ExchangeDeclare(
		r.Config.Exchange,
		"direct",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	); err != nil {
		return fmt.Errorf("error declaring exchange: %w", err)
	}
	queues := []string{
		r.Config.EmailQueue,
		r.Config.SMSQueue,
		r.Config.PushQueue,
		r.Config.RetryQueue,
	}
	for _, queueName := range queues {
		if _, err := r.Channel.QueueDeclare(
			queueName,
			true,
			false,
			false,
			false,
			nil,
		); err != nil {
			return fmt.Errorf("error declaring queue %s: %w", queueName, err)
		}
		err := r.Channel.QueueBind(
			queueName,
			queueName,
			r.Config.Exchange,
			false,
			nil,
		)
		if err != nil {
			return fmt.Errorf("failed to bind queue %s: %w", queueName, err)
		}
	}
	return nil
}

func (r *RabbitMqClient) Publish(ctx context.Context, routingKey string, message interface{}) error {
	by, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	err = r.Channel.PublishWithContext(
		ctx,
		r.Config.Exchange,
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         by,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}
