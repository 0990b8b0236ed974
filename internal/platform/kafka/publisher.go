package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/digiflow/taskkeeper/internal/config"
	"github.com/digiflow/taskkeeper/internal/events"
)

const flushTimeout = 5 * time.Second

// producer is the part of *kafka.Producer the publisher uses
type producer interface {
	Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error
	Events() chan kafka.Event
	Flush(timeoutMs int) int
	Close()
}

// Publisher implements events.EventHandler by producing every event as a
// JSON message keyed by task id, which keeps the events of one task ordered.
type Publisher struct {
	producer producer
	topic    string
	logger   *slog.Logger

	drained   sync.WaitGroup
	closeOnce sync.Once
}

var _ events.EventHandler = (*Publisher)(nil)

// NewPublisher creates an idempotent producer for the configured brokers
func NewPublisher(cfg config.KafkaConfig, logger *slog.Logger) (*Publisher, error) {
	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers":        cfg.Brokers,
		"enable.idempotence":       true,
		"acks":                     "all",
		"reconnect.backoff.max.ms": 30000,
		"linger.ms":                5,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	return newPublisher(p, cfg.Topic, logger), nil
}

func newPublisher(p producer, topic string, logger *slog.Logger) *Publisher {
	pub := &Publisher{
		producer: p,
		topic:    topic,
		logger:   logger.With("component", "kafka_publisher", "topic", topic),
	}
	pub.drained.Add(1)
	go pub.drain()
	return pub
}

// HandleEvent implements events.EventHandler. Delivery is asynchronous;
// failures are logged by the delivery loop.
func (p *Publisher) HandleEvent(ctx context.Context, event *events.TaskEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg, err := p.message(event)
	if err != nil {
		return err
	}
	if err := p.producer.Produce(msg, nil); err != nil {
		return fmt.Errorf("failed to produce %s event for task %s: %w", event.Type, event.TaskID, err)
	}
	return nil
}

func (p *Publisher) message(event *events.TaskEvent) (*kafka.Message, error) {
	value, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s event: %w", event.Type, err)
	}
	return &kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &p.topic,
			Partition: kafka.PartitionAny,
		},
		Key:   []byte(event.TaskID.String()),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	}, nil
}

func (p *Publisher) drain() {
	defer p.drained.Done()
	for e := range p.producer.Events() {
		switch ev := e.(type) {
		case *kafka.Message:
			if ev.TopicPartition.Error != nil {
				p.logger.Error("event delivery failed",
					"key", string(ev.Key),
					"error", ev.TopicPartition.Error)
			} else {
				p.logger.Debug("event delivered",
					"key", string(ev.Key),
					"partition", ev.TopicPartition.Partition,
					"offset", ev.TopicPartition.Offset)
			}
		case kafka.Error:
			p.logger.Error("kafka producer error", "error", ev)
		}
	}
}

// Close waits for outstanding deliveries and closes the producer
func (p *Publisher) Close() {
	p.closeOnce.Do(func() {
		if remaining := p.producer.Flush(int(flushTimeout.Milliseconds())); remaining > 0 {
			p.logger.Warn("closing kafka publisher with undelivered events", "remaining", remaining)
		}
		p.producer.Close()
		p.drained.Wait()
	})
}
