package imtypes

import "strings"

const conversationPrefix = "chat"

// ConversationID derives the id of the one-to-one conversation between a and
// b. The participants are ordered lexicographically so both sides compute the
// same id regardless of who initiates.
func ConversationID(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return strings.Join([]string{conversationPrefix, a, b}, "-")
}
