// Package discord implements the alert Notifier for Discord. Messages are
// sent over the REST API; no gateway connection is opened.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/zulandar/qualitygate/internal/alert"
)

const (
	maxRetries  = 3
	baseBackoff = time.Second
	maxBackoff  = 30 * time.Second
)

// session abstracts the discordgo.Session methods we use, enabling test mocks.
type session interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Notifier posts alert events to a Discord channel as embeds.
type Notifier struct {
	sess        session
	channelID   string
	logger      *slog.Logger
	baseBackoff time.Duration
}

// Opts holds parameters for creating a Discord Notifier.
type Opts struct {
	BotToken  string
	ChannelID string
	Logger    *slog.Logger
	// For testing: inject a mock session instead of the real Discord API.
	Session session
}

// New creates a Discord Notifier.
func New(opts Opts) (*Notifier, error) {
	if opts.Session == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("discord: bot token is required")
	}
	if opts.ChannelID == "" {
		return nil, fmt.Errorf("discord: channel is required")
	}
	n := &Notifier{sess: opts.Session, channelID: opts.ChannelID, logger: opts.Logger, baseBackoff: baseBackoff}
	if n.sess == nil {
		dg, err := discordgo.New("Bot " + opts.BotToken)
		if err != nil {
			return nil, fmt.Errorf("discord: create session: %w", err)
		}
		n.sess = dg
	}
	if n.logger == nil {
		n.logger = slog.Default()
	}
	return n, nil
}

// Name implements alert.Notifier.
func (n *Notifier) Name() string { return "discord" }

// Notify implements alert.Notifier.
func (n *Notifier) Notify(ctx context.Context, evt alert.Event) error {
	data := &discordgo.MessageSend{
		Content: evt.Title,
		Embeds:  []*discordgo.MessageEmbed{eventToEmbed(evt)},
	}
	err := n.retryOnRateLimit(ctx, func() error {
		_, sendErr := n.sess.ChannelMessageSendComplex(n.channelID, data, discordgo.WithContext(ctx))
		return sendErr
	})
	if err != nil {
		return fmt.Errorf("discord: send message: %w", err)
	}
	return nil
}

// eventToEmbed converts an Event to a Discord embed.
func eventToEmbed(evt alert.Event) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       evt.Title,
		Description: evt.Body,
	}
	if evt.Color != "" {
		embed.Color = parseHexColor(evt.Color)
	}
	for _, f := range evt.Fields {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   f.Name,
			Value:  f.Value,
			Inline: f.Short,
		})
	}
	return embed
}

// parseHexColor converts a hex color string (e.g. "#36a64f") to an int.
func parseHexColor(hex string) int {
	if len(hex) > 0 && hex[0] == '#' {
		hex = hex[1:]
	}
	var color int
	for _, c := range hex {
		color <<= 4
		switch {
		case c >= '0' && c <= '9':
			color |= int(c - '0')
		case c >= 'a' && c <= 'f':
			color |= int(c-'a') + 10
		case c >= 'A' && c <= 'F':
			color |= int(c-'A') + 10
		}
	}
	return color
}

// retryOnRateLimit calls fn and retries with exponential backoff on Discord
// 429 responses. It respects context cancellation.
func (n *Notifier) retryOnRateLimit(ctx context.Context, fn func() error) error {
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		restErr, ok := err.(*discordgo.RESTError)
		if !ok || restErr.Response == nil || restErr.Response.StatusCode != 429 || attempt == maxRetries {
			return err
		}

		wait := time.Duration(math.Pow(2, float64(attempt))) * n.baseBackoff
		if wait > maxBackoff {
			wait = maxBackoff
		}
		n.logger.Warn("discord: rate limited", "attempt", attempt+1, "max", maxRetries, "wait", wait)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}
