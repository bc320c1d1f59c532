// Package events publishes GC lifecycle events to the cluster event stream.
// Publishing is fire-and-forget: a lost event costs nothing but visibility.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/teresy/marathon/internal/logging"
	"github.com/teresy/marathon/internal/state"
)

// DefaultTopic is the topic cycle events are produced to when the
// configuration names none.
const DefaultTopic = "marathon.persistence.gc"

// CycleEvent describes one completed collection cycle.
type CycleEvent struct {
	CycleID              string       `json:"cycleId"`
	CompletedAt          time.Time    `json:"completedAt"`
	ScanDurationMs       int64        `json:"scanDurationMs"`
	CompactionDurationMs int64        `json:"compactionDurationMs"`
	Deleted              state.Counts `json:"deleted"`
}

// Publisher emits cycle events. Implementations must not block the caller
// beyond enqueueing.
type Publisher interface {
	PublishCycle(ctx context.Context, ev CycleEvent)
	Close() error
}

// Nop is a Publisher that discards every event.
type Nop struct{}

// PublishCycle discards the event.
func (Nop) PublishCycle(context.Context, CycleEvent) {}

// Close is a no-op.
func (Nop) Close() error { return nil }

// KafkaConfig configures the Kafka publisher.
type KafkaConfig struct {
	// Brokers are the seed brokers, host:port.
	Brokers []string

	// Topic receives the events. Default: DefaultTopic.
	Topic string
}

// KafkaPublisher produces cycle events to a Kafka topic.
type KafkaPublisher struct {
	client *kgo.Client
	logger *logging.Logger
}

// NewKafkaPublisher connects a producer to the configured brokers.
func NewKafkaPublisher(cfg KafkaConfig, logger *logging.Logger) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("events: at least one broker is required")
	}
	topic := cfg.Topic
	if topic == "" {
		topic = DefaultTopic
	}
	if logger == nil {
		logger = logging.L()
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(topic),
	)
	if err != nil {
		return nil, fmt.Errorf("events: create kafka client: %w", err)
	}
	return &KafkaPublisher{client: client, logger: logger}, nil
}

// PublishCycle produces the event asynchronously. Delivery failures are
// logged and dropped.
func (p *KafkaPublisher) PublishCycle(ctx context.Context, ev CycleEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		p.logger.Warnf("gc event marshal failed", map[string]any{
			"cycleId": ev.CycleID,
			"error":   err.Error(),
		})
		return
	}
	record := &kgo.Record{
		Key:   []byte(ev.CycleID),
		Value: data,
	}
	p.client.Produce(ctx, record, func(_ *kgo.Record, err error) {
		if err != nil {
			p.logger.Warnf("gc event publish failed", map[string]any{
				"cycleId": ev.CycleID,
				"error":   err.Error(),
			})
		}
	})
}

// Close releases the producer. Buffered records are not flushed first; any
// still undelivered are dropped.
func (p *KafkaPublisher) Close() error {
	p.client.Close()
	return nil
}
