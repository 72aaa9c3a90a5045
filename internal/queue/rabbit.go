package queue

import (
	"context"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// RabbitConfig holds connection settings for the RabbitMQ broker.
type RabbitConfig struct {
	URL           string
	Exchange      string
	PrefetchCount int
	DialAttempts  int
	DialInterval  time.Duration
}

// RabbitBroker implements Broker over RabbitMQ. Queues are durable and
// messages persistent, so enqueued jobs survive broker restarts. Consumers
// use manual acks with a bounded prefetch.
type RabbitBroker struct {
	cfg  RabbitConfig
	conn *amqp.Connection

	mu       sync.Mutex
	channel  *amqp.Channel
	declared map[string]bool
}

// NewRabbitBroker dials RabbitMQ and declares the exchange.
func NewRabbitBroker(cfg RabbitConfig) (*RabbitBroker, error) {
	if cfg.Exchange == "" {
		cfg.Exchange = "disclosure"
	}
	if cfg.DialAttempts <= 0 {
		cfg.DialAttempts = 5
	}
	if cfg.DialInterval <= 0 {
		cfg.DialInterval = 2 * time.Second
	}
	if cfg.PrefetchCount <= 0 {
		cfg.PrefetchCount = 4
	}

	var conn *amqp.Connection
	var err error
	for attempt := 1; attempt <= cfg.DialAttempts; attempt++ {
		conn, err = amqp.Dial(cfg.URL)
		if err == nil {
			break
		}
		zap.L().Warn("rabbit: dial failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", cfg.DialAttempts),
			zap.Error(err),
		)
		if attempt < cfg.DialAttempts {
			time.Sleep(cfg.DialInterval)
		}
	}
	if err != nil {
		return nil, eris.Wrapf(err, "rabbit: dial after %d attempts", cfg.DialAttempts)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, eris.Wrap(err, "rabbit: open channel")
	}

	if err := ch.ExchangeDeclare(
		cfg.Exchange, // name
		"direct",     // type
		true,         // durable
		false,        // auto-delete
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, eris.Wrapf(err, "rabbit: declare exchange %s", cfg.Exchange)
	}

	return &RabbitBroker{
		cfg:      cfg,
		conn:     conn,
		channel:  ch,
		declared: make(map[string]bool),
	}, nil
}

// declareQueue declares and binds a durable queue, once per name.
func (b *RabbitBroker) declareQueue(queueName string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.declared[queueName] {
		return nil
	}
	if _, err := b.channel.QueueDeclare(
		queueName, // name
		true,      // durable
		false,     // auto-delete
		false,     // exclusive
		false,     // no-wait
		nil,       // arguments
	); err != nil {
		return eris.Wrapf(err, "rabbit: declare queue %s", queueName)
	}
	if err := b.channel.QueueBind(queueName, queueName, b.cfg.Exchange, false, nil); err != nil {
		return eris.Wrapf(err, "rabbit: bind queue %s", queueName)
	}
	b.declared[queueName] = true
	return nil
}

// Publish sends body to the named queue as a persistent message.
func (b *RabbitBroker) Publish(ctx context.Context, queueName string, body []byte) error {
	if err := b.declareQueue(queueName); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	err := b.channel.PublishWithContext(
		ctx,
		b.cfg.Exchange, // exchange
		queueName,      // routing key
		false,          // mandatory
		false,          // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return eris.Wrapf(err, "rabbit: publish to %s", queueName)
	}
	return nil
}

// Consume opens a dedicated channel for the named queue and returns its
// deliveries. Each consumer channel gets its own QoS prefetch so one slow
// job kind cannot starve the others.
func (b *RabbitBroker) Consume(ctx context.Context, queueName string) (<-chan Delivery, error) {
	if err := b.declareQueue(queueName); err != nil {
		return nil, err
	}

	ch, err := b.conn.Channel()
	if err != nil {
		return nil, eris.Wrap(err, "rabbit: open consumer channel")
	}
	if err := ch.Qos(b.cfg.PrefetchCount, 0, false); err != nil {
		ch.Close()
		return nil, eris.Wrap(err, "rabbit: set qos")
	}

	deliveries, err := ch.Consume(
		queueName, // queue
		"",        // consumer tag
		false,     // auto-ack
		false,     // exclusive
		false,     // no-local
		false,     // no-wait
		nil,       // args
	)
	if err != nil {
		ch.Close()
		return nil, eris.Wrapf(err, "rabbit: consume %s", queueName)
	}

	out := make(chan Delivery)
	go func() {
		defer close(out)
		defer ch.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					zap.L().Warn("rabbit: delivery channel closed", zap.String("queue", queueName))
					return
				}
				out <- Delivery{
					Body: d.Body,
					Ack:  func() error { return d.Ack(false) },
					Nack: func(requeue bool) error { return d.Nack(false, requeue) },
				}
			}
		}
	}()
	return out, nil
}

// Close shuts down the publish channel and connection.
func (b *RabbitBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.channel != nil {
		if err := b.channel.Close(); err != nil {
			zap.L().Warn("rabbit: close channel", zap.Error(err))
		}
	}
	if b.conn != nil {
		if err := b.conn.Close(); err != nil {
			return eris.Wrap(err, "rabbit: close connection")
		}
	}
	return nil
}
