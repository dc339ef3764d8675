package discord

import (
	"context"
	"errors"
	"log/slog"
)

// ErrNotConfigured is returned when a sink has no log channel set.
var ErrNotConfigured = errors.New("log channel not configured")

// maxNotifyLength truncates mirrored log lines to stay under the Discord
// message limit.
const maxNotifyLength = 1900

// LogSink mirrors log records into an instance's log channel. It implements
// logger.Sink.
type LogSink struct {
	client    *Client
	channelID string
}

// NewLogSink creates a sink posting to the given channel. An empty channel
// ID yields a sink that reports ErrNotConfigured.
func NewLogSink(client *Client, channelID string) *LogSink {
	return &LogSink{client: client, channelID: channelID}
}

// NotifyLog posts the formatted record to the log channel.
func (s *LogSink) NotifyLog(ctx context.Context, _ slog.Level, message string) error {
	if s.channelID == "" {
		return ErrNotConfigured
	}
	if len(message) > maxNotifyLength {
		message = message[:maxNotifyLength] + "..."
	}
	return s.client.Send(ctx, s.channelID, message)
}
