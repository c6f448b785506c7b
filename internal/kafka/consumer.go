package kafka

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/golang/glog"

	"im-sync/internal/config"
)

// retryBackoff is how long the consumer waits before redelivering a message
// its handler refused.
const retryBackoff = time.Second

// MessageHandler processes one consumed message. The offset is committed
// only when it returns nil.
type MessageHandler func(ctx context.Context, msg *kafka.Message) error

// MessageConsumer consumes topics within a consumer group.
type MessageConsumer interface {
	Consume(ctx context.Context, topics []string, groupID string, handler MessageHandler) error
	Close()
}

// partitionCursor is the part of *kafka.Consumer that moves a partition's
// committed and fetch positions.
type partitionCursor interface {
	CommitMessage(m *kafka.Message) ([]kafka.TopicPartition, error)
	Seek(partition kafka.TopicPartition, ignoredTimeoutMs int) error
}

// confluentKafkaConsumer is a MessageConsumer on confluent-kafka-go.
type confluentKafkaConsumer struct {
	consumer *kafka.Consumer
	cfg      config.KafkaConfig
	groupID  string
}

// NewConfluentKafkaConsumer creates a consumer for cfg.Brokers. The
// underlying consumer is created by Consume.
func NewConfluentKafkaConsumer(cfg config.KafkaConfig) (MessageConsumer, error) {
	return &confluentKafkaConsumer{cfg: cfg}, nil
}

// Consume polls topics until ctx is done or a fatal error occurs.
func (c *confluentKafkaConsumer) Consume(ctx context.Context, topics []string, groupID string, handler MessageHandler) error {
	if len(topics) == 0 {
		return fmt.Errorf("kafka consumer: no topics specified")
	}
	c.groupID = groupID

	configMap := &kafka.ConfigMap{
		"bootstrap.servers":  strings.Join(c.cfg.Brokers, ","),
		"group.id":           c.groupID,
		"auto.offset.reset":  "earliest",
		"enable.auto.commit": "false",
		"security.protocol":  c.cfg.Protocol,
	}
	if c.cfg.ClientID != "" {
		_ = configMap.SetKey("client.id", c.cfg.ClientID)
	}

	consumer, err := kafka.NewConsumer(configMap)
	if err != nil {
		return fmt.Errorf("failed to create Kafka consumer for group %s: %w", groupID, err)
	}
	c.consumer = consumer

	if err := c.consumer.SubscribeTopics(topics, nil); err != nil {
		_ = c.consumer.Close()
		c.consumer = nil
		return fmt.Errorf("failed to subscribe to topics %v for group %s: %w", topics, groupID, err)
	}

	glog.Infof("kafka: consumer group %s subscribed to %v", groupID, topics)

	for {
		select {
		case <-ctx.Done():
			glog.Infof("kafka: consumer group %s stopping", groupID)
			return nil
		default:
		}

		ev := c.consumer.Poll(1000)
		if ev == nil {
			continue
		}

		switch e := ev.(type) {
		case *kafka.Message:
			handleMessage(ctx, c.consumer, groupID, handler, e, retryBackoff)
		case kafka.Error:
			glog.Errorf("kafka: group %s: %v (code %d, fatal %t, retriable %t)", groupID, e, e.Code(), e.IsFatal(), e.IsRetriable())
			if e.IsFatal() {
				return e
			}
		case kafka.AssignedPartitions:
			glog.V(1).Infof("kafka: group %s assigned %v", groupID, e.Partitions)
			c.consumer.Assign(e.Partitions)
		case kafka.RevokedPartitions:
			glog.V(1).Infof("kafka: group %s revoked %v", groupID, e.Partitions)
			c.consumer.Unassign()
		}
	}
}

// handleMessage runs handler on msg and commits it on success. On failure the
// partition is rewound to msg, so a later commit never covers it, and the
// next delivery waits for backoff.
func handleMessage(ctx context.Context, cursor partitionCursor, groupID string, handler MessageHandler, msg *kafka.Message, backoff time.Duration) bool {
	tp := msg.TopicPartition
	if err := handler(ctx, msg); err != nil {
		glog.Warningf("kafka: group %s: message %s@%v not processed, retrying: %v", groupID, *tp.Topic, tp.Offset, err)
		if err := cursor.Seek(tp, 0); err != nil {
			glog.Errorf("kafka: group %s: rewind %s@%v: %v", groupID, *tp.Topic, tp.Offset, err)
		}
		select {
		case <-ctx.Done():
		case <-time.After(backoff):
		}
		return false
	}
	if _, err := cursor.CommitMessage(msg); err != nil {
		glog.Warningf("kafka: group %s: commit %s@%v: %v", groupID, *tp.Topic, tp.Offset, err)
	}
	return true
}

// Close closes the consumer.
func (c *confluentKafkaConsumer) Close() {
	if c.consumer == nil {
		return
	}
	if err := c.consumer.Close(); err != nil {
		glog.Warningf("kafka: close consumer group %s: %v", c.groupID, err)
	}
	c.consumer = nil
}
