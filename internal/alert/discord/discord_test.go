package discord

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/zulandar/qualitygate/internal/alert"
	"github.com/zulandar/qualitygate/internal/logging"
)

type mockSession struct {
	sent      []*discordgo.MessageSend
	channels  []string
	failTimes int
	failErr   error
}

func (m *mockSession) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	if m.failTimes > 0 {
		m.failTimes--
		return nil, m.failErr
	}
	m.sent = append(m.sent, data)
	m.channels = append(m.channels, channelID)
	return &discordgo.Message{ID: "m1", ChannelID: channelID}, nil
}

func newTestNotifier(t *testing.T, sess *mockSession) *Notifier {
	t.Helper()
	n, err := New(Opts{ChannelID: "123", Session: sess, Logger: logging.Discard()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	n.baseBackoff = time.Millisecond
	return n
}

func rateLimited() error {
	return &discordgo.RESTError{Response: &http.Response{StatusCode: http.StatusTooManyRequests}}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Opts{ChannelID: "1"}); err == nil || !strings.Contains(err.Error(), "bot token") {
		t.Errorf("error = %v, want bot token", err)
	}
	if _, err := New(Opts{BotToken: "t"}); err == nil || !strings.Contains(err.Error(), "channel") {
		t.Errorf("error = %v, want channel", err)
	}
}

func TestNew_RealSession(t *testing.T) {
	n, err := New(Opts{BotToken: "token", ChannelID: "1"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := n.sess.(*discordgo.Session); !ok {
		t.Errorf("sess = %T, want *discordgo.Session", n.sess)
	}
	if n.Name() != "discord" {
		t.Errorf("Name = %q", n.Name())
	}
}

func TestNotify_SendsEmbed(t *testing.T) {
	sess := &mockSession{}
	n := newTestNotifier(t, sess)
	evt := alert.Event{Title: "Critical defect", Body: "crack", Color: alert.ColorError,
		Fields: []alert.Field{{Name: "Batch", Value: "B-1", Short: true}}}
	if err := n.Notify(context.Background(), evt); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(sess.sent) != 1 || sess.channels[0] != "123" {
		t.Fatalf("sent = %d to %v", len(sess.sent), sess.channels)
	}
	embed := sess.sent[0].Embeds[0]
	if embed.Title != "Critical defect" || embed.Color != 0xe53935 {
		t.Errorf("embed = %+v", embed)
	}
	if len(embed.Fields) != 1 || !embed.Fields[0].Inline {
		t.Errorf("fields = %+v", embed.Fields)
	}
}

func TestNotify_RetriesRateLimit(t *testing.T) {
	sess := &mockSession{failTimes: 2, failErr: rateLimited()}
	n := newTestNotifier(t, sess)
	if err := n.Notify(context.Background(), alert.Event{Title: "x"}); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(sess.sent) != 1 {
		t.Errorf("sent %d, want 1", len(sess.sent))
	}
}

func TestNotify_OtherErrorsFailFast(t *testing.T) {
	sess := &mockSession{failTimes: 1, failErr: errors.New("missing access")}
	n := newTestNotifier(t, sess)
	if err := n.Notify(context.Background(), alert.Event{Title: "x"}); err == nil {
		t.Fatal("expected error")
	}
	if len(sess.sent) != 0 {
		t.Error("should not retry non rate-limit errors")
	}
}

func TestParseHexColor(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"#36a64f", 0x36a64f},
		{"ff9800", 0xff9800},
		{"#E53935", 0xe53935},
		{"", 0},
	}
	for _, tt := range tests {
		if got := parseHexColor(tt.in); got != tt.want {
			t.Errorf("parseHexColor(%q) = %#x, want %#x", tt.in, got, tt.want)
		}
	}
}
