package slack

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	goslack "github.com/slack-go/slack"
)

// historyLookback bounds how far FindMessageByFingerprint searches for an
// earlier alert to thread under.
const historyLookback = 24 * time.Hour

// Client is a thin wrapper around the slack-go SDK.
type Client struct {
	api       *goslack.Client
	channelID string
	log       *slog.Logger
}

// NewClient creates a Slack API client posting to one channel.
func NewClient(token, channelID string) *Client {
	return &Client{
		api:       goslack.New(token),
		channelID: channelID,
		log:       slog.Default().With("component", "slack-client"),
	}
}

// NewClientWithAPIURL creates a Slack API client that targets a custom API
// URL. Useful for testing with a mock server.
func NewClientWithAPIURL(token, channelID, apiURL string) *Client {
	return &Client{
		api:       goslack.New(token, goslack.OptionAPIURL(apiURL)),
		channelID: channelID,
		log:       slog.Default().With("component", "slack-client"),
	}
}

// PostMessage sends a message to the configured channel and returns its
// timestamp for threading. text is the notification fallback shown outside
// Block Kit surfaces; it also makes the message findable by fingerprint.
// If threadTS is non-empty the message is posted as a threaded reply.
func (c *Client) PostMessage(ctx context.Context, text string, blocks []goslack.Block, threadTS string, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	opts := []goslack.MsgOption{
		goslack.MsgOptionText(text, false),
		goslack.MsgOptionBlocks(blocks...),
	}
	if threadTS != "" {
		opts = append(opts, goslack.MsgOptionTS(threadTS))
	}

	_, ts, err := c.api.PostMessageContext(ctx, c.channelID, opts...)
	if err != nil {
		return "", fmt.Errorf("chat.postMessage failed: %w", err)
	}
	return ts, nil
}

// FindMessageByFingerprint searches recent channel history for a message
// containing the given fingerprint text. Returns the message timestamp (ts)
// for threading, or empty string if not found.
func (c *Client) FindMessageByFingerprint(ctx context.Context, fingerprint string) (string, error) {
	oldest := fmt.Sprintf("%d", time.Now().Add(-historyLookback).Unix())

	params := &goslack.GetConversationHistoryParameters{
		ChannelID: c.channelID,
		Oldest:    oldest,
		Limit:     50,
	}
	history, err := c.api.GetConversationHistoryContext(ctx, params)
	if err != nil {
		return "", fmt.Errorf("conversations.history failed: %w", err)
	}

	want := normalizeText(fingerprint)
	for _, msg := range history.Messages {
		if strings.Contains(normalizeText(collectMessageText(msg)), want) {
			return msg.Timestamp, nil
		}
	}
	return "", nil
}
