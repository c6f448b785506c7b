package kafkahandlers

import (
	"context"
	"testing"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/stretchr/testify/assert"

	"im-sync/internal/imtypes"
)

type fakeSender struct {
	open    bool
	sent    []imtypes.OutboundMessage
	typings []string
}

func (f *fakeSender) Send(msg imtypes.OutboundMessage) bool {
	if !f.open {
		return false
	}
	f.sent = append(f.sent, msg)
	return true
}

func (f *fakeSender) SendTyping(conversationID string, isTyping bool) bool {
	if !f.open {
		return false
	}
	f.typings = append(f.typings, conversationID)
	return true
}

func outboxMessage(value string) *kafka.Message {
	topic := "im-sync-outbox"
	return &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Offset: 7},
		Value:          []byte(value),
	}
}

func TestHandleOutbox(t *testing.T) {
	sender := &fakeSender{open: true}
	h := NewOutboxConsumerLogic(sender)
	ctx := context.Background()

	assert.NoError(t, h.HandleOutbox(ctx, outboxMessage(`{"to":"u2","text":"from a script"}`)))
	assert.NoError(t, h.HandleOutbox(ctx, outboxMessage(`{"kind":"typing","conversation_id":"chat-u1-u2","is_typing":true}`)))

	// Skipped, and committed so they are not retried.
	assert.NoError(t, h.HandleOutbox(ctx, outboxMessage(`not json`)))
	assert.NoError(t, h.HandleOutbox(ctx, outboxMessage(`{"text":"nobody"}`)))
	assert.NoError(t, h.HandleOutbox(ctx, outboxMessage(`{"to":"u2","text":"   "}`)))
	assert.NoError(t, h.HandleOutbox(ctx, outboxMessage(`{"to":"u2","text":"hi","msg_type":"sticker"}`)))
	assert.NoError(t, h.HandleOutbox(ctx, outboxMessage(`{"kind":"call"}`)))

	if assert.Len(t, sender.sent, 1) {
		assert.Equal(t, "u2", sender.sent[0].To)
		assert.Equal(t, "from a script", sender.sent[0].Text)
	}
	assert.Equal(t, []string{"chat-u1-u2"}, sender.typings)
}

func TestHandleOutboxNotOpen(t *testing.T) {
	h := NewOutboxConsumerLogic(&fakeSender{})
	err := h.HandleOutbox(context.Background(), outboxMessage(`{"to":"u2","text":"later"}`))
	assert.ErrorIs(t, err, ErrNotSent)
}
