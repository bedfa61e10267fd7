package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"medqueue/internal/queues"
	"medqueue/pkg/logger"

	"github.com/IBM/sarama"
)

// KafkaProducerConfig contains configuration for the transition event producer
type KafkaProducerConfig struct {
	Brokers          []string
	TransitionTopic  string
	RetryMax         int
	TimeoutMs        int
	RequiredAcks     sarama.RequiredAcks
	CompressionType  sarama.CompressionCodec
	IdempotentWrites bool
}

// DefaultKafkaProducerConfig returns a default producer configuration
func DefaultKafkaProducerConfig() *KafkaProducerConfig {
	return &KafkaProducerConfig{
		Brokers:          []string{"localhost:9092"},
		TransitionTopic:  "queue.transitions",
		RetryMax:         3,
		TimeoutMs:        10000,
		RequiredAcks:     sarama.WaitForAll,
		CompressionType:  sarama.CompressionSnappy,
		IdempotentWrites: true,
	}
}

// KafkaTransitionProducer publishes committed transitions to Kafka. It
// implements queues.Notifier and is only ever invoked after a successful
// commit: a publish failure is surfaced to the caller for logging but can
// no longer affect the stored state.
type KafkaTransitionProducer struct {
	producer sarama.SyncProducer
	config   *KafkaProducerConfig
	log      *logger.Logger
}

// NewKafkaTransitionProducer creates a new transition event producer
func NewKafkaTransitionProducer(config *KafkaProducerConfig, log *logger.Logger) (*KafkaTransitionProducer, error) {
	if log == nil {
		log = logger.GetDefault()
	}

	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true
	saramaConfig.Producer.RequiredAcks = config.RequiredAcks
	saramaConfig.Producer.Compression = config.CompressionType
	saramaConfig.Producer.Retry.Max = config.RetryMax
	saramaConfig.Producer.Timeout = time.Duration(config.TimeoutMs) * time.Millisecond
	saramaConfig.Producer.Idempotent = config.IdempotentWrites
	if config.IdempotentWrites {
		saramaConfig.Net.MaxOpenRequests = 1
	}

	// Hash partitioner keyed by queue id keeps per-queue event order.
	saramaConfig.Producer.Partitioner = sarama.NewHashPartitioner

	producer, err := sarama.NewSyncProducer(config.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	log.Info("Kafka transition producer created",
		slog.String("topic", config.TransitionTopic),
	)

	return &KafkaTransitionProducer{
		producer: producer,
		config:   config,
		log:      log,
	}, nil
}

// PublishTransition publishes one committed transition event
func (p *KafkaTransitionProducer) PublishTransition(ctx context.Context, event queues.TransitionEvent) error {
	msg := NewTransitionMessage(event)

	messageBytes, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal transition event: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic:     p.config.TransitionTopic,
		Key:       sarama.StringEncoder(msg.PartitionKey()),
		Value:     sarama.ByteEncoder(messageBytes),
		Headers:   p.createHeaders(msg),
		Timestamp: msg.OccurredAt,
	}

	partition, offset, err := p.producer.SendMessage(message)
	if err != nil {
		return fmt.Errorf("failed to send transition event to Kafka: %w", err)
	}

	p.log.DebugContext(ctx, "transition event published",
		slog.String("topic", p.config.TransitionTopic),
		slog.Int64("partition", int64(partition)),
		slog.Int64("offset", offset),
		slog.String("item_id", msg.ItemID.String()),
		slog.String("new_status", msg.NewStatus),
	)

	return nil
}

// createHeaders creates Kafka headers for transition events
func (p *KafkaTransitionProducer) createHeaders(msg *TransitionMessage) []sarama.RecordHeader {
	headers := []sarama.RecordHeader{
		{Key: []byte("event_id"), Value: []byte(msg.EventID.String())},
		{Key: []byte("item_id"), Value: []byte(msg.ItemID.String())},
		{Key: []byte("queue_id"), Value: []byte(msg.QueueID.String())},
		{Key: []byte("new_status"), Value: []byte(msg.NewStatus)},
		{Key: []byte("producer"), Value: []byte("medqueue-engine")},
		{Key: []byte("occurred_at"), Value: []byte(msg.OccurredAt.Format(time.RFC3339))},
	}
	if msg.OldStatus != nil {
		headers = append(headers, sarama.RecordHeader{
			Key:   []byte("old_status"),
			Value: []byte(*msg.OldStatus),
		})
	}
	if msg.System {
		headers = append(headers, sarama.RecordHeader{
			Key:   []byte("system"),
			Value: []byte("true"),
		})
	}
	return headers
}

// Close closes the Kafka producer
func (p *KafkaTransitionProducer) Close() error {
	if p.producer != nil {
		if err := p.producer.Close(); err != nil {
			return fmt.Errorf("failed to close Kafka producer: %w", err)
		}
	}
	return nil
}

// HealthCheck validates the producer configuration and connectivity state
func (p *KafkaTransitionProducer) HealthCheck(ctx context.Context) error {
	if p.producer == nil {
		return fmt.Errorf("health check failed: producer is nil")
	}
	if p.config.TransitionTopic == "" {
		return fmt.Errorf("health check failed: transition topic not configured")
	}
	return nil
}
