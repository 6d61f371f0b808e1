package notify

import (
	"context"
	"strings"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/Candra0x6/WA-Website-Offer-Automation/internal/campaign"
	"github.com/Candra0x6/WA-Website-Offer-Automation/internal/eventbus"
	"github.com/Candra0x6/WA-Website-Offer-Automation/pkg/logx"
)

type fakeBot struct {
	texts []string
}

func (f *fakeBot) Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error) {
	f.texts = append(f.texts, what.(string))
	return &tele.Message{}, nil
}

func TestNewDisabled(t *testing.T) {
	n, err := New(Config{Enabled: false}, logx.Nop())
	if err != nil || n != nil {
		t.Fatalf("New disabled = %v, %v", n, err)
	}
}

func TestConsumeFiltersEvents(t *testing.T) {
	bot := &fakeBot{}
	n := newWithBot(bot, Config{ChatID: 42, RatePerSec: 100}, logx.Nop())

	bus := eventbus.New()
	ch, unsub := bus.Subscribe(32)
	done := n.Consume(context.Background(), ch)

	bus.Publish(eventbus.Event{Data: campaign.RunStarted{RunID: "r", Total: 10, ResumeFrom: -1}})
	bus.Publish(eventbus.Event{Data: campaign.JobResult{Status: "sent", Business: "Joe's Diner"}})
	bus.Publish(eventbus.Event{Data: campaign.JobResult{
		Status: "failed", Business: "Flaky Cafe", Phone: "+14155550003", Attempts: 4, Error: "send: timeout",
	}})
	bus.Publish(eventbus.Event{Data: campaign.QuotaReached{Reason: "daily limit reached (50/50)"}})
	bus.Publish(eventbus.Event{Data: campaign.RunFinished{
		Status:  campaign.StatusPausedQuota,
		Summary: campaign.Summary{Total: 10, Sent: 5, Failed: 1, Skipped: 1},
	}})
	unsub()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not drain")
	}

	if len(bot.texts) != 4 {
		t.Fatalf("sent %d messages: %v", len(bot.texts), bot.texts)
	}
	if !strings.Contains(bot.texts[0], "Campaign started (live): 10 contacts") {
		t.Fatalf("start message = %q", bot.texts[0])
	}
	if !strings.Contains(bot.texts[1], "Flaky Cafe") || !strings.Contains(bot.texts[1], "4 attempts") {
		t.Fatalf("failure message = %q", bot.texts[1])
	}
	if !strings.Contains(bot.texts[2], "paused: daily limit") {
		t.Fatalf("quota message = %q", bot.texts[2])
	}
	if !strings.Contains(bot.texts[3], "paused_quota") || !strings.Contains(bot.texts[3], "5 sent") {
		t.Fatalf("finish message = %q", bot.texts[3])
	}
}

// Shutdown milestones are published after the run context is already
// cancelled; the consumer must still deliver them.
func TestConsumeDeliversAfterCancellation(t *testing.T) {
	bot := &fakeBot{}
	n := newWithBot(bot, Config{ChatID: 42, RatePerSec: 100}, logx.Nop())

	bus := eventbus.New()
	ch, unsub := bus.Subscribe(8)
	ctx, cancel := context.WithCancel(context.Background())
	done := n.Consume(ctx, ch)
	cancel()

	bus.Publish(eventbus.Event{Data: campaign.RunFinished{
		Status:  campaign.StatusPaused,
		Summary: campaign.Summary{Total: 5, Sent: 2},
	}})
	unsub()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not drain")
	}

	if len(bot.texts) != 1 || !strings.Contains(bot.texts[0], "Campaign paused: 2 sent") {
		t.Fatalf("texts = %v", bot.texts)
	}
}

func TestFormatResume(t *testing.T) {
	got := format(eventbus.Event{Data: campaign.RunStarted{Total: 10, ResumeFrom: 4, DryRun: true}})
	if !strings.Contains(got, "resumed (dry-run)") || !strings.Contains(got, "after index 4") {
		t.Fatalf("format = %q", got)
	}
}
