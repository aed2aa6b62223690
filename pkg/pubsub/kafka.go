package pubsub

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

const originHeader = "origin"

// channelToTopicAndKey maps a room channel to a topic shared by every room
// and a key that keeps one room's broadcasts ordered on one partition.
//
//	"relay:room:event-42:broadcast" → topic "relay-broadcast", key "event-42"
func channelToTopicAndKey(channel string) (topic, key string, err error) {
	prefix, roomID, suffix, err := splitChannel(channel)
	if err != nil {
		return "", "", err
	}
	return prefix + "-" + strings.ReplaceAll(suffix, "_", "-"), roomID, nil
}

// patternToTopic maps "relay:room:*:broadcast" to "relay-broadcast".
func patternToTopic(pattern string) (string, error) {
	topic, _, err := channelToTopicAndKey(pattern)
	return topic, err
}

// KafkaPubSub carries room broadcasts over one Kafka topic. Broadcasts are
// ephemeral: consumers start at the latest offset and never commit.
type KafkaPubSub struct {
	producer *kafka.Producer
	config   KafkaConfig
	reports  chan struct{}
	closing  chan struct{}

	mu        sync.Mutex
	consumers []*kafka.Consumer
	wg        sync.WaitGroup
}

func NewKafkaPubSub(cfg KafkaConfig) (*KafkaPubSub, error) {
	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": cfg.Brokers,
		"acks":              "1",
		"linger.ms":         5,
		"compression.type":  "snappy",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	k := &KafkaPubSub{
		producer: p,
		config:   cfg,
		reports:  make(chan struct{}),
		closing:  make(chan struct{}),
	}
	go k.watchDeliveries()

	if err := k.ensureTopic(); err != nil {
		l := logger()
		l.Warn().Err(err).Msg("kafka: could not ensure broadcast topic")
	}
	return k, nil
}

func (k *KafkaPubSub) ensureTopic() error {
	topic, err := patternToTopic(PatternRoomBroadcast)
	if err != nil {
		return err
	}

	admin, err := kafka.NewAdminClientFromProducer(k.producer)
	if err != nil {
		return fmt.Errorf("failed to create admin client: %w", err)
	}
	defer admin.Close()

	partitions := k.config.Partitions
	if partitions <= 0 {
		partitions = 4
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	results, err := admin.CreateTopics(ctx, []kafka.TopicSpecification{{
		Topic:             topic,
		NumPartitions:     partitions,
		ReplicationFactor: 1,
	}})
	if err != nil {
		return fmt.Errorf("failed to create topic %s: %w", topic, err)
	}
	for _, res := range results {
		if code := res.Error.Code(); code != kafka.ErrNoError && code != kafka.ErrTopicAlreadyExists {
			return fmt.Errorf("topic %s: %s", res.Topic, res.Error.String())
		}
	}
	return nil
}

func (k *KafkaPubSub) watchDeliveries() {
	defer close(k.reports)
	for e := range k.producer.Events() {
		if m, ok := e.(*kafka.Message); ok && m.TopicPartition.Error != nil {
			l := logger()
			l.Error().Err(m.TopicPartition.Error).Str("room_id", string(m.Key)).Msg("kafka: broadcast delivery failed")
		}
	}
}

func (k *KafkaPubSub) Publish(ctx context.Context, channel string, event *Event) error {
	topic, key, err := channelToTopicAndKey(channel)
	if err != nil {
		return fmt.Errorf("failed to parse channel: %w", err)
	}

	data, err := encodeEvent(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = k.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Key:            []byte(key),
		Value:          data,
		Headers:        []kafka.Header{{Key: originHeader, Value: []byte(event.Origin)}},
	}, nil)
	if err != nil {
		return fmt.Errorf("failed to produce to %s: %w", topic, err)
	}
	return nil
}

// SubscribePattern consumes the whole broadcast topic. Every instance needs
// its own GroupID so that each one sees every partition.
func (k *KafkaPubSub) SubscribePattern(ctx context.Context, pattern string) (<-chan *Event, error) {
	topic, err := patternToTopic(pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to parse pattern: %w", err)
	}

	groupID := k.config.GroupID
	if groupID == "" {
		groupID = "photo-relay"
	}

	c, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers":  k.config.Brokers,
		"group.id":           groupID,
		"auto.offset.reset":  "latest",
		"enable.auto.commit": false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer: %w", err)
	}
	if err := c.Subscribe(topic, nil); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}

	k.mu.Lock()
	k.consumers = append(k.consumers, c)
	k.mu.Unlock()

	out := make(chan *Event, subscriptionBuffer)
	k.wg.Add(1)
	go k.consume(ctx, c, out)
	return out, nil
}

func (k *KafkaPubSub) consume(ctx context.Context, c *kafka.Consumer, out chan<- *Event) {
	defer k.wg.Done()
	defer close(out)

	for {
		select {
		case <-ctx.Done():
			return
		case <-k.closing:
			return
		default:
		}

		switch e := c.Poll(500).(type) {
		case *kafka.Message:
			event, err := decodeEvent(e.Value)
			if err != nil {
				l := logger()
				l.Warn().Err(err).Str("room_id", string(e.Key)).Msg("kafka: invalid event")
				continue
			}
			if !forward(ctx, out, event, DriverKafka) {
				return
			}

		case kafka.Error:
			l := logger()
			l.Error().Err(e).Bool("fatal", e.IsFatal()).Msg("kafka: consumer error")
			if e.IsFatal() {
				return
			}
		}
	}
}

// Close stops every consumer loop before closing the consumers and flushing
// the producer.
func (k *KafkaPubSub) Close() error {
	close(k.closing)
	k.wg.Wait()

	k.mu.Lock()
	for _, c := range k.consumers {
		c.Close()
	}
	k.consumers = nil
	k.mu.Unlock()

	k.producer.Flush(5000)
	k.producer.Close()
	<-k.reports
	return nil
}
