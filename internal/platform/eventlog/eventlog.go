// Package eventlog is the typed publish/subscribe client over a
// partitioned, ordered, durable log. It wraps sarama the way this repo's
// application packages wrap gorm: a thin adapter exposing only the seams
// the domain ports need.
package eventlog

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/IBM/sarama"

	eventsv1 "porterdispatch/contracts/gen/events/v1"
)

// Publisher publishes envelopes keyed by correlation id so per-key ordering
// is preserved to a single partition.
type Publisher struct {
	producer sarama.SyncProducer
	logger *slog.Logger
}

func NewPublisher(brokers []string, clientID string, logger *slog.Logger) (*Publisher, error) {
	cfg := sarama.NewConfig()
	cfg.ClientID = clientID
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Return.Successes = true
	cfg.Producer.Partitioner = sarama.NewHashPartitioner

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, err
	}
	return &Publisher{producer: producer, logger: resolveLogger(logger)}, nil
}

// Publish sends envelope to topic, keyed by its partition key (correlation id
// by convention) so same-key messages land on the same partition in order.
func (p *Publisher) Publish(ctx context.Context, topic string, envelope eventsv1.Envelope) error {
	body, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	key := envelope.PartitionKey
	if key == "" {
		key = envelope.CorrelationID
	}
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key: sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(body),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event-type"), Value: []byte(envelope.EventType)},
			{Key: []byte("correlation-id"), Value: []byte(envelope.CorrelationID)},
		},
	}
	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		p.logger.Error("eventlog publish failed",
			"event", "eventlog_publish_failed",
			"topic", topic,
			"event_type", envelope.EventType,
			"correlation_id", envelope.CorrelationID,
			"error", err.Error(),
		)
		return err
	}
	p.logger.Debug("eventlog publish succeeded",
		"event", "eventlog_publish_succeeded",
		"topic", topic,
		"event_type", envelope.EventType,
		"correlation_id", envelope.CorrelationID,
		"partition", partition,
		"offset", offset,
	)
	return nil
}

func (p *Publisher) Close() error {
	return p.producer.Close()
}

// Handler processes one envelope; returning an error causes redelivery
// (offset commit is skipped) under an at-least-once contract.
type Handler func(ctx context.Context, envelope eventsv1.Envelope) error

// Registry dispatches by event type rather than a string-switch, keyed on
// event type. Unknown types are counted and discarded.
type Registry struct {
	mu sync.RWMutex
	handlers map[string]Handler
	unknown int64
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

func (r *Registry) On(eventType string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[eventType] = h
}

func (r *Registry) Dispatch(ctx context.Context, envelope eventsv1.Envelope) error {
	r.mu.RLock()
	h, ok := r.handlers[envelope.EventType]
	r.mu.RUnlock()
	if !ok {
		r.mu.Lock()
		r.unknown++
		r.mu.Unlock()
		return nil
	}
	return h(ctx, envelope)
}

func (r *Registry) UnknownCount() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.unknown
}

// Consumer wraps a sarama consumer group; one Consumer per consumer group
// per process. Offset commits only happen after ConsumeClaim's handler
// returns nil (sarama's default auto-commit-on-mark behavior), giving
// at-least-once delivery with per-key (partition) ordering.
type Consumer struct {
	group sarama.ConsumerGroup
	registry *Registry
	topics []string
	logger *slog.Logger
}

func NewConsumer(brokers []string, groupID string, topics []string, registry *Registry, logger *slog.Logger) (*Consumer, error) {
	cfg := sarama.NewConfig()
	cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	cfg.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(brokers, groupID, cfg)
	if err != nil {
		return nil, err
	}
	return &Consumer{group: group, registry: registry, topics: topics, logger: resolveLogger(logger)}, nil
}

// Run blocks, rejoining the consumer group after each session ends (e.g. on
// rebalance), until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	go func() {
		for err := range c.group.Errors {
			c.logger.Error("eventlog consumer group error",
				"event", "eventlog_consumer_group_error",
				"error", err.Error(),
			)
		}
	}()
	for {
		if err := c.group.Consume(ctx, c.topics, c); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			c.logger.Error("eventlog consume session failed",
				"event", "eventlog_consume_session_failed",
				"error", err.Error(),
			)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (c *Consumer) Close() error {
	return c.group.Close()
}

func (c *Consumer) Setup(sarama.ConsumerGroupSession) error { return nil }
func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			var envelope eventsv1.Envelope
			if err := json.Unmarshal(msg.Value, &envelope); err != nil {
				c.logger.Error("eventlog envelope decode failed",
					"event", "eventlog_decode_failed",
					"topic", msg.Topic,
					"error", err.Error(),
				)
				session.MarkMessage(msg, "")
				continue
			}
			if err := c.registry.Dispatch(session.Context, envelope); err != nil {
				c.logger.Error("eventlog handler failed; leaving uncommitted for redelivery",
					"event", "eventlog_handler_failed",
					"topic", msg.Topic,
					"event_type", envelope.EventType,
					"correlation_id", envelope.CorrelationID,
					"error", err.Error(),
				)
				return err
			}
			session.MarkMessage(msg, "")
		case <-session.Context.Done():
			return nil
		}
	}
}

func resolveLogger(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}
