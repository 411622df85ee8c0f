// Package slack implements the alert Notifier for Slack.
package slack

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	slackapi "github.com/slack-go/slack"
	"github.com/zulandar/qualitygate/internal/alert"
)

const (
	// maxRetries is the max number of retries for rate-limited API calls.
	maxRetries = 3
)

// slackClient abstracts the Slack API methods we use, enabling test mocks.
type slackClient interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slackapi.MsgOption) (string, string, error)
}

// Notifier posts alert events to a Slack channel as attachments.
type Notifier struct {
	client    slackClient
	channelID string
	logger    *slog.Logger
}

// Opts holds parameters for creating a Slack Notifier.
type Opts struct {
	BotToken  string // xoxb-... Slack bot token
	ChannelID string
	Logger    *slog.Logger
	// For testing: inject a mock client instead of the real Slack API.
	Client slackClient
}

// New creates a Slack Notifier.
func New(opts Opts) (*Notifier, error) {
	if opts.Client == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("slack: bot token is required")
	}
	if opts.ChannelID == "" {
		return nil, fmt.Errorf("slack: channel is required")
	}
	n := &Notifier{client: opts.Client, channelID: opts.ChannelID, logger: opts.Logger}
	if n.client == nil {
		n.client = slackapi.New(opts.BotToken)
	}
	if n.logger == nil {
		n.logger = slog.Default()
	}
	return n, nil
}

// Name implements alert.Notifier.
func (n *Notifier) Name() string { return "slack" }

// Notify implements alert.Notifier.
func (n *Notifier) Notify(ctx context.Context, evt alert.Event) error {
	options := buildMessageOptions(evt)
	err := n.retryOnRateLimit(ctx, func() error {
		_, _, postErr := n.client.PostMessageContext(ctx, n.channelID, options...)
		return postErr
	})
	if err != nil {
		return fmt.Errorf("slack: post message: %w", err)
	}
	return nil
}

// buildMessageOptions renders evt as a fallback text plus one attachment.
func buildMessageOptions(evt alert.Event) []slackapi.MsgOption {
	return []slackapi.MsgOption{
		slackapi.MsgOptionText(evt.Title, false),
		slackapi.MsgOptionAttachments(eventToAttachment(evt)),
	}
}

// eventToAttachment converts an Event to a Slack Attachment.
func eventToAttachment(evt alert.Event) slackapi.Attachment {
	att := slackapi.Attachment{
		Title:    evt.Title,
		Text:     evt.Body,
		Color:    evt.Color,
		Fallback: evt.Title,
	}
	for _, f := range evt.Fields {
		att.Fields = append(att.Fields, slackapi.AttachmentField{
			Title: f.Name,
			Value: f.Value,
			Short: f.Short,
		})
	}
	return att
}

// retryOnRateLimit calls fn and retries on Slack rate limit errors, waiting
// the RetryAfter duration Slack reports. It respects context cancellation.
func (n *Notifier) retryOnRateLimit(ctx context.Context, fn func() error) error {
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		var rle *slackapi.RateLimitedError
		if !errors.As(err, &rle) || attempt == maxRetries {
			return err
		}

		wait := rle.RetryAfter
		if wait <= 0 {
			wait = time.Second
		}
		n.logger.Warn("slack: rate limited", "attempt", attempt+1, "max", maxRetries, "wait", wait)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}
