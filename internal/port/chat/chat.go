// Package chat defines the port interface for the chat transport an Echo
// instance converses through.
package chat

import (
	"context"
	"time"
)

// UnreadScanLimit is the page size used when deriving the unread count.
// Beyond this many messages the count saturates rather than paginating.
const UnreadScanLimit = 100

// Reaction is an emoji reaction on a message. Me reports whether the bot
// itself applied it.
type Reaction struct {
	Emoji string `json:"emoji"`
	Me    bool   `json:"me"`
}

// Message is a single chat message.
type Message struct {
	ID         string     `json:"id"`
	AuthorID   string     `json:"author_id"`
	AuthorName string     `json:"author_name"`
	Content    string     `json:"content"`
	Timestamp  time.Time  `json:"timestamp"`
	Reactions  []Reaction `json:"reactions,omitempty"`
}

// Transport is the chat port. ReadMessages returns newest first, mirroring
// the underlying service; callers wanting chronological order reverse it.
type Transport interface {
	// UnreadCount derives how many messages are unread for the bot in the
	// given channel, saturating at UnreadScanLimit.
	UnreadCount(ctx context.Context, channelID string) (int, error)

	ReadMessages(ctx context.Context, channelID string, limit int) ([]Message, error)
	Send(ctx context.Context, channelID, content string) error

	// React adds the bot's own reaction to a message, which also marks the
	// conversation read up to that message.
	React(ctx context.Context, channelID, messageID, emoji string) error
}

// CountUnread derives the unread count from a newest-first message page.
// The read boundary is the newest message either authored by selfID or
// carrying a self-applied reaction; everything newer is unread. Without a
// boundary in the page, the whole page counts as unread.
func CountUnread(messages []Message, selfID string) int {
	for i, msg := range messages {
		if msg.AuthorID == selfID {
			return i
		}
		for _, r := range msg.Reactions {
			if r.Me {
				return i
			}
		}
	}
	return len(messages)
}
