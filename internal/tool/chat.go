package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/echo-agent/echochamber/internal/domain/usage"
	"github.com/echo-agent/echochamber/internal/port/chat"
)

// maxChatMessageLength is the hard cap the chat service enforces.
const maxChatMessageLength = 2000

// CheckNotifications reports the unread count and a preview of the latest
// message in the conversation channel.
func CheckNotifications() *Tool {
	return &Tool{
		Name:        "check_notifications",
		Description: "Check how many unread messages are waiting in your chat channel, with a preview of the latest one.",
		Handler: func(ctx context.Context, tc *Context, _ json.RawMessage) (any, error) {
			count, err := tc.Chat.UnreadCount(ctx, tc.Instance.ChatChannelID)
			if err != nil {
				return Fail(fmt.Sprintf("failed to check notifications: %v", err)), nil
			}

			display := fmt.Sprintf("%d", count)
			if count >= chat.UnreadScanLimit {
				display = "99+"
			}

			preview := ""
			if count > 0 {
				msgs, err := tc.Chat.ReadMessages(ctx, tc.Instance.ChatChannelID, 1)
				if err == nil && len(msgs) > 0 {
					preview = formatMessage(msgs[0])
				}
			}

			return struct {
				Result
				Unread  string `json:"unread"`
				Preview string `json:"latest_message,omitempty"`
			}{OK(), display, preview}, nil
		},
	}
}

// ReadChatMessages returns recent channel messages, oldest first.
func ReadChatMessages() *Tool {
	return &Tool{
		Name:        "read_chat_messages",
		Description: "Read recent messages from your chat channel, oldest first. Reading does not mark them as seen; react to a message to do that.",
		Parameters: ObjectSchema(map[string]any{
			"limit": map[string]any{
				"type":        "integer",
				"description": "How many messages to fetch (1-100).",
			},
		}, []string{"limit"}),
		Handler: func(ctx context.Context, tc *Context, raw json.RawMessage) (any, error) {
			var args struct {
				Limit int `json:"limit"`
			}
			if err := DecodeArgs(raw, &args); err != nil {
				return Fail(err.Error()), nil
			}
			if args.Limit < 1 || args.Limit > chat.UnreadScanLimit {
				return Fail(fmt.Sprintf("limit must be between 1 and %d", chat.UnreadScanLimit)), nil
			}

			msgs, err := tc.Chat.ReadMessages(ctx, tc.Instance.ChatChannelID, args.Limit)
			if err != nil {
				return Fail(fmt.Sprintf("failed to read messages: %v", err)), nil
			}

			// Newest-first from the transport; present oldest-first.
			formatted := make([]string, 0, len(msgs))
			for i := len(msgs) - 1; i >= 0; i-- {
				formatted = append(formatted, formatMessage(msgs[i]))
			}

			return struct {
				Result
				Messages []string `json:"messages"`
			}{OK(), formatted}, nil
		},
	}
}

// SendChatMessage posts a message to the conversation channel.
func SendChatMessage() *Tool {
	return &Tool{
		Name:        "send_chat_message",
		Description: "Send a message to your chat channel.",
		Parameters: ObjectSchema(map[string]any{
			"content": StringSchema("The message to send (max 2000 characters)."),
		}, []string{"content"}),
		Handler: func(ctx context.Context, tc *Context, raw json.RawMessage) (any, error) {
			var args struct {
				Content string `json:"content"`
			}
			if err := DecodeArgs(raw, &args); err != nil {
				return Fail(err.Error()), nil
			}
			if args.Content == "" {
				return Fail("content must not be empty"), nil
			}
			if len([]rune(args.Content)) > maxChatMessageLength {
				return Fail(fmt.Sprintf("content exceeds %d characters", maxChatMessageLength)), nil
			}

			if err := tc.Chat.Send(ctx, tc.Instance.ChatChannelID, args.Content); err != nil {
				return Fail(fmt.Sprintf("failed to send message: %v", err)), nil
			}
			return OK(), nil
		},
	}
}

// AddReaction reacts to a message, which also marks the conversation read
// up to that message.
func AddReaction() *Tool {
	return &Tool{
		Name:        "add_reaction_to_chat_message",
		Description: "Add an emoji reaction to a chat message. This also marks the conversation as read up to that message.",
		Parameters: ObjectSchema(map[string]any{
			"message_id": StringSchema("ID of the message to react to."),
			"emoji":      StringSchema("The emoji to react with, e.g. 👍."),
		}, []string{"message_id", "emoji"}),
		Handler: func(ctx context.Context, tc *Context, raw json.RawMessage) (any, error) {
			var args struct {
				MessageID string `json:"message_id"`
				Emoji     string `json:"emoji"`
			}
			if err := DecodeArgs(raw, &args); err != nil {
				return Fail(err.Error()), nil
			}
			if args.MessageID == "" || args.Emoji == "" {
				return Fail("message_id and emoji are required"), nil
			}

			if err := tc.Chat.React(ctx, tc.Instance.ChatChannelID, args.MessageID, args.Emoji); err != nil {
				return Fail(fmt.Sprintf("failed to add reaction: %v", err)), nil
			}
			return OK(), nil
		},
	}
}

// formatMessage renders one message for the model: id, author, local
// timestamp, content, and any reactions.
func formatMessage(m chat.Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s (%s): %s",
		m.Timestamp.In(usage.Zone).Format("2006-01-02 15:04"),
		m.AuthorName, m.ID, m.Content)
	if len(m.Reactions) > 0 {
		emojis := make([]string, 0, len(m.Reactions))
		for _, r := range m.Reactions {
			emojis = append(emojis, r.Emoji)
		}
		fmt.Fprintf(&b, " [reactions: %s]", strings.Join(emojis, " "))
	}
	return b.String()
}
