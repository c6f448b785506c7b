package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCursor struct {
	committed []kafka.Offset
	seeks     []kafka.TopicPartition
}

func (f *fakeCursor) CommitMessage(m *kafka.Message) ([]kafka.TopicPartition, error) {
	f.committed = append(f.committed, m.TopicPartition.Offset)
	return []kafka.TopicPartition{m.TopicPartition}, nil
}

func (f *fakeCursor) Seek(partition kafka.TopicPartition, _ int) error {
	f.seeks = append(f.seeks, partition)
	return nil
}

func outboxAt(offset kafka.Offset) *kafka.Message {
	topic := "im-sync-outbox"
	return &kafka.Message{TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: 2, Offset: offset}}
}

func TestHandleMessageRewindsRefusedMessage(t *testing.T) {
	cursor := &fakeCursor{}
	open := false
	handler := func(ctx context.Context, msg *kafka.Message) error {
		if !open {
			return errors.New("not open")
		}
		return nil
	}
	ctx := context.Background()

	assert.False(t, handleMessage(ctx, cursor, "g", handler, outboxAt(5), 0))
	assert.Empty(t, cursor.committed)
	require.Len(t, cursor.seeks, 1)
	assert.Equal(t, kafka.Offset(5), cursor.seeks[0].Offset)
	assert.Equal(t, int32(2), cursor.seeks[0].Partition)

	// Redelivered from the same offset once the client is open, then the
	// following message.
	open = true
	assert.True(t, handleMessage(ctx, cursor, "g", handler, outboxAt(5), 0))
	assert.True(t, handleMessage(ctx, cursor, "g", handler, outboxAt(6), 0))
	assert.Equal(t, []kafka.Offset{5, 6}, cursor.committed)
	assert.Len(t, cursor.seeks, 1)
}
