package slack

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	slackapi "github.com/slack-go/slack"
	"github.com/zulandar/qualitygate/internal/alert"
	"github.com/zulandar/qualitygate/internal/logging"
)

// --- Mock Slack client ---

type mockSlackClient struct {
	mu        sync.Mutex
	posted    []string
	failTimes int
	failErr   error
}

func (m *mockSlackClient) PostMessageContext(_ context.Context, channelID string, options ...slackapi.MsgOption) (string, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failTimes > 0 {
		m.failTimes--
		return "", "", m.failErr
	}
	m.posted = append(m.posted, channelID)
	return channelID, "1234567890.123456", nil
}

func newTestNotifier(t *testing.T, client *mockSlackClient) *Notifier {
	t.Helper()
	n, err := New(Opts{ChannelID: "C_ALERTS", Client: client, Logger: logging.Discard()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return n
}

func TestNew_RequiresToken(t *testing.T) {
	_, err := New(Opts{ChannelID: "C1"})
	if err == nil || !strings.Contains(err.Error(), "bot token") {
		t.Errorf("error = %v, want bot token error", err)
	}
}

func TestNew_RequiresChannel(t *testing.T) {
	_, err := New(Opts{BotToken: "xoxb-1"})
	if err == nil || !strings.Contains(err.Error(), "channel") {
		t.Errorf("error = %v, want channel error", err)
	}
}

func TestNew_RealClient(t *testing.T) {
	n, err := New(Opts{BotToken: "xoxb-1", ChannelID: "C1"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if n.client == nil {
		t.Error("expected a real Slack client")
	}
	if n.Name() != "slack" {
		t.Errorf("Name = %q", n.Name())
	}
}

func TestNotify_Posts(t *testing.T) {
	client := &mockSlackClient{}
	n := newTestNotifier(t, client)
	if err := n.Notify(context.Background(), alert.Event{Title: "Critical defect", Body: "crack"}); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(client.posted) != 1 || client.posted[0] != "C_ALERTS" {
		t.Errorf("posted = %v", client.posted)
	}
}

func TestNotify_RetriesRateLimit(t *testing.T) {
	client := &mockSlackClient{failTimes: 2, failErr: &slackapi.RateLimitedError{RetryAfter: time.Millisecond}}
	n := newTestNotifier(t, client)
	if err := n.Notify(context.Background(), alert.Event{Title: "x"}); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(client.posted) != 1 {
		t.Errorf("posted %d, want 1 after retries", len(client.posted))
	}
}

func TestNotify_GivesUpAfterMaxRetries(t *testing.T) {
	client := &mockSlackClient{failTimes: maxRetries + 1, failErr: &slackapi.RateLimitedError{RetryAfter: time.Millisecond}}
	n := newTestNotifier(t, client)
	if err := n.Notify(context.Background(), alert.Event{Title: "x"}); err == nil {
		t.Fatal("expected error after exhausting retries")
	}
}

func TestNotify_NonRateLimitErrorNotRetried(t *testing.T) {
	client := &mockSlackClient{failTimes: 1, failErr: errors.New("channel_not_found")}
	n := newTestNotifier(t, client)
	err := n.Notify(context.Background(), alert.Event{Title: "x"})
	if err == nil || !strings.Contains(err.Error(), "channel_not_found") {
		t.Errorf("error = %v", err)
	}
	if client.failTimes != 0 || len(client.posted) != 0 {
		t.Errorf("unexpected retry: posted=%v", client.posted)
	}
}

func TestEventToAttachment(t *testing.T) {
	evt := alert.Event{
		Title: "Defect rate 10% on batch B-1",
		Body:  "body",
		Color: alert.ColorWarning,
		Fields: []alert.Field{
			{Name: "Inspection", Value: "ins-1", Short: true},
			{Name: "Rate", Value: "10%", Short: true},
		},
	}
	att := eventToAttachment(evt)
	if att.Title != evt.Title || att.Text != "body" || att.Color != alert.ColorWarning {
		t.Errorf("attachment = %+v", att)
	}
	if len(att.Fields) != 2 || att.Fields[1].Value != "10%" || !att.Fields[0].Short {
		t.Errorf("fields = %+v", att.Fields)
	}
	if att.Fallback != evt.Title {
		t.Errorf("Fallback = %q", att.Fallback)
	}
}
