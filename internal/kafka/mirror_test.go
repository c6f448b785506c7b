package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"im-sync/internal/imtypes"
	kafka_mock "im-sync/internal/kafka/mock"
	"im-sync/internal/state"
)

func TestMirrorPublishesMessagesAndNotifications(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	defer mockCtrl.Finish()

	st := state.NewLocalState("u1")
	producer := kafka_mock.NewMockMessageProducer(mockCtrl)
	mirror := NewMirror(producer, "im-sync-events", st)
	detach := mirror.Attach()
	defer detach()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	published := make(chan MirrorEvent, 4)
	keys := make(chan string, 4)
	producer.EXPECT().SendMessage(gomock.Any(), "im-sync-events", gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, key, payload []byte) error {
			var ev MirrorEvent
			assert.NoError(t, json.Unmarshal(payload, &ev))
			keys <- string(key)
			published <- ev
			return nil
		}).Times(2)

	go mirror.Run(ctx)

	st.AppendProvisional(imtypes.Message{ClientID: "u1-x", From: "u1", To: "u2", Text: "draft"})
	st.OnTyping(imtypes.TypingEvent{UserID: "u2", IsTyping: true})
	st.OnMessage(imtypes.MessageEvent{Message: imtypes.Message{ID: "m1", From: "u2", To: "u1", Text: "hi", Status: imtypes.StatusSent}})
	st.OnNotification(imtypes.NotificationEvent{Notification: imtypes.Notification{ID: "n1", UserID: "u1", Title: "ping"}})

	var events []MirrorEvent
	var gotKeys []string
	for i := 0; i < 2; i++ {
		select {
		case ev := <-published:
			events = append(events, ev)
			gotKeys = append(gotKeys, <-keys)
		case <-time.After(2 * time.Second):
			t.Fatal("mirror did not publish")
		}
	}

	assert.Equal(t, state.MessageAppended, events[0].Kind)
	assert.Equal(t, "u1", events[0].Identity)
	require.NotNil(t, events[0].Message)
	assert.Equal(t, imtypes.ID("m1"), events[0].Message.ID)
	assert.Equal(t, "chat-u1-u2", gotKeys[0])

	assert.Equal(t, state.NotificationAdded, events[1].Kind)
	require.NotNil(t, events[1].Notification)
	assert.Equal(t, "u1", gotKeys[1])
}
