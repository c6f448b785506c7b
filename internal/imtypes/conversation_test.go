package imtypes

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConversationIDIsSymmetric(t *testing.T) {
	pairs := [][2]string{
		{"user1@example.com", "user2@example.com"},
		{"b", "a"},
		{"same", "same"},
		{"", "x"},
		{"Zed", "adam"},
	}
	for _, p := range pairs {
		assert.Equal(t, ConversationID(p[0], p[1]), ConversationID(p[1], p[0]), "pair %v", p)
	}
}

func TestConversationIDFormat(t *testing.T) {
	assert.Equal(t, "chat-user1@example.com-user2@example.com",
		ConversationID("user2@example.com", "user1@example.com"))
}

func TestMessageConversationKeyPrefersChatID(t *testing.T) {
	m := Message{From: "a", To: "b", ChatID: "room-7"}
	assert.Equal(t, "room-7", m.ConversationKey())

	m.ChatID = ""
	assert.Equal(t, "chat-a-b", m.ConversationKey())
}
