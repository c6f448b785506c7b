package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/golang/glog"

	"im-sync/internal/imtypes"
	"im-sync/internal/state"
)

// MirrorEvent is the payload published for every mirrored change.
type MirrorEvent struct {
	Kind           state.ChangeKind      `json:"kind"`
	Identity       string                `json:"identity"`
	ConversationID string                `json:"conversationId,omitempty"`
	Message        *imtypes.Message      `json:"message,omitempty"`
	Notification   *imtypes.Notification `json:"notification,omitempty"`
	MirroredAt     imtypes.Timestamp     `json:"mirroredAt"`
}

// Mirror publishes new messages and notifications of a LocalState to a
// topic, keyed by conversation id so one conversation stays on one
// partition. Provisional messages are not mirrored.
type Mirror struct {
	producer MessageProducer
	topic    string
	state    *state.LocalState
	timeout  time.Duration

	queue chan MirrorEvent
}

// NewMirror creates a Mirror of st publishing to topic.
func NewMirror(producer MessageProducer, topic string, st *state.LocalState) *Mirror {
	return &Mirror{
		producer: producer,
		topic:    topic,
		state:    st,
		timeout:  10 * time.Second,
		queue:    make(chan MirrorEvent, 1024),
	}
}

// Attach subscribes the mirror to its state until detach is called.
func (m *Mirror) Attach() (detach func()) {
	return m.state.Subscribe(m.enqueue)
}

func (m *Mirror) enqueue(c state.Change) {
	ev := MirrorEvent{Kind: c.Kind, ConversationID: c.ConversationID}
	switch c.Kind {
	case state.MessageAppended:
		if c.Message == nil || c.Message.Provisional() {
			return
		}
		ev.Message = c.Message
	case state.NotificationAdded:
		if c.Notification == nil {
			return
		}
		ev.Notification = c.Notification
	default:
		return
	}
	select {
	case m.queue <- ev:
	default:
		glog.Warningf("kafka: mirror queue full, dropping %s", c.Kind)
	}
}

// Run publishes queued events until ctx is done.
func (m *Mirror) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-m.queue:
			if err := m.publish(ctx, ev); err != nil {
				glog.Errorf("kafka: mirror %s: %v", ev.Kind, err)
			}
		}
	}
}

func (m *Mirror) publish(ctx context.Context, ev MirrorEvent) error {
	ev.Identity = m.state.Identity()
	ev.MirroredAt = imtypes.Now()
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	key := ev.ConversationID
	if key == "" && ev.Notification != nil {
		key = ev.Notification.UserID
	}
	if key == "" {
		key = ev.Identity
	}
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	return m.producer.SendMessage(ctx, m.topic, []byte(key), payload)
}
