package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/goccy/go-json"

	"github.com/ylxai/Hafiportrait-sub001/internal/domain"
	"github.com/ylxai/Hafiportrait-sub001/internal/metrics"
	pkglog "github.com/ylxai/Hafiportrait-sub001/pkg/log"
)

const headerEventType = "event_type"

// ConfluentProducer streams accepted publishes to one Kafka topic, keyed by
// event so one gallery's activity stays ordered on one partition.
type ConfluentProducer struct {
	producer *kafka.Producer
	topic    string
	doneCh   chan struct{}
}

func NewConfluentProducer(brokers, topic string, partitions int) (*ConfluentProducer, error) {
	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": brokers,
		"client.id":         "photo-relay",
		"acks":              "1",
		"linger.ms":         5,
		"compression.type":  "snappy",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	cp := &ConfluentProducer{
		producer: p,
		topic:    topic,
		doneCh:   make(chan struct{}),
	}
	go cp.deliveryReportHandler()

	if err := cp.ensureTopic(partitions); err != nil {
		l := pkglog.L()
		l.Warn().Err(err).Str("topic", topic).Msg("could not ensure activity topic")
	}
	return cp, nil
}

func (cp *ConfluentProducer) ensureTopic(partitions int) error {
	admin, err := kafka.NewAdminClientFromProducer(cp.producer)
	if err != nil {
		return fmt.Errorf("failed to create admin client: %w", err)
	}
	defer admin.Close()

	if partitions <= 0 {
		partitions = 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	results, err := admin.CreateTopics(ctx, []kafka.TopicSpecification{{
		Topic:             cp.topic,
		NumPartitions:     partitions,
		ReplicationFactor: 1,
	}})
	if err != nil {
		return err
	}
	for _, result := range results {
		if code := result.Error.Code(); code != kafka.ErrNoError && code != kafka.ErrTopicAlreadyExists {
			return fmt.Errorf("failed to create topic %s: %v", result.Topic, result.Error)
		}
	}
	return nil
}

func (cp *ConfluentProducer) deliveryReportHandler() {
	defer close(cp.doneCh)

	l := pkglog.L()
	for e := range cp.producer.Events() {
		switch ev := e.(type) {
		case *kafka.Message:
			if ev.TopicPartition.Error != nil {
				metrics.ActivityEvents.WithLabelValues(metrics.ActivityFailed).Inc()
				l.Warn().
					Err(ev.TopicPartition.Error).
					Str(pkglog.FieldEventID, string(ev.Key)).
					Str(pkglog.FieldEventType, eventTypeOf(ev)).
					Msg("activity delivery failed")
			}
		case kafka.Error:
			l.Warn().Err(ev).Bool("fatal", ev.IsFatal()).Msg("kafka producer error")
		}
	}
}

func eventTypeOf(m *kafka.Message) string {
	for _, h := range m.Headers {
		if h.Key == headerEventType {
			return string(h.Value)
		}
	}
	return ""
}

// ProduceActivity queues the record; delivery is reported asynchronously.
func (cp *ConfluentProducer) ProduceActivity(ctx context.Context, activity *domain.Activity) error {
	value, err := json.Marshal(activity)
	if err != nil {
		return fmt.Errorf("failed to marshal activity: %w", err)
	}

	err = cp.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &cp.topic,
			Partition: kafka.PartitionAny,
		},
		Key:       []byte(activity.PartitionKey()),
		Value:     value,
		Timestamp: activity.ReceivedAt,
		Headers: []kafka.Header{
			{Key: headerEventType, Value: []byte(activity.EventType)},
		},
	}, nil)
	if err != nil {
		metrics.ActivityEvents.WithLabelValues(metrics.ActivityFailed).Inc()
		return fmt.Errorf("failed to produce activity: %w", err)
	}

	metrics.ActivityEvents.WithLabelValues(metrics.ActivityQueued).Inc()
	return nil
}

// Close flushes queued activity for up to five seconds.
func (cp *ConfluentProducer) Close() error {
	if remaining := cp.producer.Flush(5000); remaining > 0 {
		l := pkglog.L()
		l.Warn().Int("remaining", remaining).Msg("activity stream closed with undelivered records")
	}
	cp.producer.Close()
	<-cp.doneCh
	return nil
}
