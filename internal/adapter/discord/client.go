// Package discord implements the chat transport over the Discord bot REST API.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/echo-agent/echochamber/internal/port/cache"
	"github.com/echo-agent/echochamber/internal/port/chat"
	"github.com/echo-agent/echochamber/internal/resilience"
)

const defaultBaseURL = "https://discord.com/api/v10"

// identityTTL bounds how long a cached bot identity is trusted.
const identityTTL = time.Hour

// Client talks to the Discord REST API with bot authentication. One Client
// serves one bot token, and therefore one Echo instance.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	breaker    *resilience.Breaker
	cache      cache.Cache
}

// NewClient creates a Discord client for the given bot token.
func NewClient(token string) *Client {
	return &Client{
		baseURL: defaultBaseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// SetBreaker attaches a circuit breaker to all outgoing HTTP calls.
func (c *Client) SetBreaker(b *resilience.Breaker) {
	c.breaker = b
}

// SetCache attaches a cache for bot identity lookups.
func (c *Client) SetCache(cc cache.Cache) {
	c.cache = cc
}

// SetBaseURL overrides the API base URL, for tests.
func (c *Client) SetBaseURL(base string) {
	c.baseURL = base
}

// user is the Discord user object, reduced to what the runtime needs.
type user struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	GlobalName string `json:"global_name"`
}

// message is the Discord message object, reduced to what the runtime needs.
type message struct {
	ID        string    `json:"id"`
	Author    user      `json:"author"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Reactions []struct {
		Emoji struct {
			Name string `json:"name"`
		} `json:"emoji"`
		Me bool `json:"me"`
	} `json:"reactions"`
}

func (m message) toPort() chat.Message {
	out := chat.Message{
		ID:         m.ID,
		AuthorID:   m.Author.ID,
		AuthorName: m.Author.displayName(),
		Content:    m.Content,
		Timestamp:  m.Timestamp,
	}
	for _, r := range m.Reactions {
		out.Reactions = append(out.Reactions, chat.Reaction{Emoji: r.Emoji.Name, Me: r.Me})
	}
	return out
}

func (u user) displayName() string {
	if u.GlobalName != "" {
		return u.GlobalName
	}
	return u.Username
}

// SelfID returns the bot's own user ID, cached for identityTTL.
func (c *Client) SelfID(ctx context.Context) (string, error) {
	cacheKey := "discord:self:" + c.token[:min(8, len(c.token))]
	if c.cache != nil {
		if data, ok, err := c.cache.Get(ctx, cacheKey); err == nil && ok {
			return string(data), nil
		}
	}

	data, err := c.doRequest(ctx, http.MethodGet, "/users/@me", nil)
	if err != nil {
		return "", fmt.Errorf("fetch bot identity: %w", err)
	}

	var u user
	if err := json.Unmarshal(data, &u); err != nil {
		return "", fmt.Errorf("unmarshal bot identity: %w", err)
	}

	if c.cache != nil {
		_ = c.cache.Set(ctx, cacheKey, []byte(u.ID), identityTTL)
	}
	return u.ID, nil
}

// UnreadCount derives the unread count for the bot in the given channel.
// It scans the newest page of messages and counts those posted after the
// last message the bot authored or reacted to.
func (c *Client) UnreadCount(ctx context.Context, channelID string) (int, error) {
	selfID, err := c.SelfID(ctx)
	if err != nil {
		return 0, err
	}

	messages, err := c.ReadMessages(ctx, channelID, chat.UnreadScanLimit)
	if err != nil {
		return 0, err
	}

	return chat.CountUnread(messages, selfID), nil
}

// ReadMessages returns up to limit messages from the channel, newest first.
func (c *Client) ReadMessages(ctx context.Context, channelID string, limit int) ([]chat.Message, error) {
	path := fmt.Sprintf("/channels/%s/messages?limit=%d", channelID, limit)
	data, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("read messages: %w", err)
	}

	var raw []message
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal messages: %w", err)
	}

	out := make([]chat.Message, 0, len(raw))
	for _, m := range raw {
		out = append(out, m.toPort())
	}
	return out, nil
}

// Send posts a message to the channel.
func (c *Client) Send(ctx context.Context, channelID, content string) error {
	body, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	path := fmt.Sprintf("/channels/%s/messages", channelID)
	if _, err := c.doRequest(ctx, http.MethodPost, path, body); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// React adds the bot's own reaction to a message. Unicode emoji are
// path-escaped per the Discord API.
func (c *Client) React(ctx context.Context, channelID, messageID, emoji string) error {
	path := fmt.Sprintf("/channels/%s/messages/%s/reactions/%s/@me",
		channelID, messageID, url.PathEscape(emoji))
	if _, err := c.doRequest(ctx, http.MethodPut, path, nil); err != nil {
		return fmt.Errorf("add reaction: %w", err)
	}
	return nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var result []byte
	call := func() error {
		var bodyReader io.Reader
		if body != nil {
			bodyReader = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bot "+c.token)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("http request: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}

		if resp.StatusCode >= 400 {
			return fmt.Errorf("discord API error %d: %s", resp.StatusCode, string(data))
		}

		result = data
		return nil
	}

	if c.breaker != nil {
		if err := c.breaker.Execute(call); err != nil {
			return nil, err
		}
		return result, nil
	}

	if err := call(); err != nil {
		return nil, err
	}
	return result, nil
}
