package kafkahandlers

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/golang/glog"

	"im-sync/internal/imtypes"
)

// ErrNotSent is returned when the client refused an outbox entry. The offset
// is not committed and the consumer rewinds to retry the entry.
var ErrNotSent = errors.New("outbox entry not sent")

// OutboxEntry is a send request published to the outbox topic by another
// process on behalf of the local user.
type OutboxEntry struct {
	Kind           imtypes.OutboundKind `json:"kind"` // "message" (default) or "typing"
	To             string               `json:"to,omitempty"`
	ChatID         string               `json:"chat_id,omitempty"`
	Text           string               `json:"text,omitempty"`
	MsgType        imtypes.MessageType  `json:"msg_type,omitempty"`
	ConversationID string               `json:"conversation_id,omitempty"`
	IsTyping       bool                 `json:"is_typing,omitempty"`
}

// Sender is the part of the realtime client the outbox uses.
type Sender interface {
	Send(msg imtypes.OutboundMessage) bool
	SendTyping(conversationID string, isTyping bool) bool
}

// OutboxConsumerLogic forwards outbox entries to the realtime client.
type OutboxConsumerLogic struct {
	sender Sender
}

// NewOutboxConsumerLogic creates an OutboxConsumerLogic for sender.
func NewOutboxConsumerLogic(sender Sender) *OutboxConsumerLogic {
	if sender == nil {
		glog.Fatal("kafkahandlers: outbox sender cannot be nil")
	}
	return &OutboxConsumerLogic{sender: sender}
}

// HandleOutbox is the MessageHandler of the outbox topic. Entries that cannot
// be decoded are skipped.
func (h *OutboxConsumerLogic) HandleOutbox(ctx context.Context, msg *kafka.Message) error {
	var entry OutboxEntry
	if err := json.Unmarshal(msg.Value, &entry); err != nil {
		glog.Warningf("kafkahandlers: skip undecodable outbox entry at offset %v: %v", msg.TopicPartition.Offset, err)
		return nil
	}

	var sent bool
	switch entry.Kind {
	case imtypes.OutboundTypingKind:
		if entry.ConversationID == "" {
			glog.Warningf("kafkahandlers: skip typing entry without conversation_id")
			return nil
		}
		sent = h.sender.SendTyping(entry.ConversationID, entry.IsTyping)
	case imtypes.OutboundMessageKind, "":
		if entry.To == "" && entry.ChatID == "" {
			glog.Warningf("kafkahandlers: skip message entry without recipient")
			return nil
		}
		if strings.TrimSpace(entry.Text) == "" {
			glog.Warningf("kafkahandlers: skip message entry without text")
			return nil
		}
		if !entry.MsgType.Valid() {
			glog.Warningf("kafkahandlers: skip message entry of type %q", entry.MsgType)
			return nil
		}
		sent = h.sender.Send(imtypes.OutboundMessage{
			To:      entry.To,
			ChatID:  entry.ChatID,
			Text:    entry.Text,
			MsgType: entry.MsgType,
		})
	default:
		glog.Warningf("kafkahandlers: skip outbox entry of kind %q", entry.Kind)
		return nil
	}
	if !sent {
		return ErrNotSent
	}
	glog.V(2).Infof("kafkahandlers: forwarded outbox %s entry", entry.Kind)
	return nil
}
