// Package notify pushes run milestones to an operator Telegram chat.
// Everything here is best-effort: a failed notification is logged and
// forgotten, never surfaced to the run.
package notify

import (
	"context"
	"fmt"

	tele "gopkg.in/telebot.v4"

	"golang.org/x/time/rate"

	"github.com/Candra0x6/WA-Website-Offer-Automation/internal/campaign"
	"github.com/Candra0x6/WA-Website-Offer-Automation/internal/eventbus"
	"github.com/Candra0x6/WA-Website-Offer-Automation/pkg/logx"
)

// Config controls the Telegram notifier.
type Config struct {
	Enabled    bool
	Token      string
	ChatID     int64
	RatePerSec int
}

// texter is the slice of *tele.Bot used here, kept narrow for tests.
type texter interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// Notifier sends run milestones to one chat, rate limited so a burst
// of failures cannot hit Telegram's flood control.
type Notifier struct {
	bot     texter
	chat    tele.ChatID
	limiter *rate.Limiter
	log     logx.Logger
}

// New connects the bot. Returns (nil, nil) when disabled so callers
// can treat the notifier as optional.
func New(cfg Config, log logx.Logger) (*Notifier, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	bot, err := tele.NewBot(tele.Settings{Token: cfg.Token})
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return newWithBot(bot, cfg, log), nil
}

func newWithBot(bot texter, cfg Config, log logx.Logger) *Notifier {
	per := cfg.RatePerSec
	if per <= 0 {
		per = 1
	}
	return &Notifier{
		bot:     bot,
		chat:    tele.ChatID(cfg.ChatID),
		limiter: rate.NewLimiter(rate.Limit(per), per),
		log:     log.With(logx.String("component", "notify")),
	}
}

// Consume drains events from ch until it closes, pushing the ones an
// operator cares about. The returned channel closes when done.
//
// The drain outlives run cancellation: pause and final-summary
// milestones arrive after the operator interrupts, and those are the
// ones worth delivering. The channel closing is the stop signal.
func (n *Notifier) Consume(ctx context.Context, ch <-chan eventbus.Event) <-chan struct{} {
	dctx := context.WithoutCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range ch {
			if text := format(e); text != "" {
				n.send(dctx, text)
			}
		}
	}()
	return done
}

func (n *Notifier) send(ctx context.Context, text string) {
	if err := n.limiter.Wait(ctx); err != nil {
		return
	}
	if _, err := n.bot.Send(n.chat, text); err != nil {
		n.log.Warn("telegram send failed", logx.Err(err))
	}
}

// format renders an event for the operator. Per-job successes are too
// chatty; only failures and run milestones go out.
func format(e eventbus.Event) string {
	switch data := e.Data.(type) {
	case campaign.RunStarted:
		mode := "live"
		if data.DryRun {
			mode = "dry-run"
		}
		if data.ResumeFrom >= 0 {
			return fmt.Sprintf("Campaign resumed (%s): %d contacts, continuing after index %d", mode, data.Total, data.ResumeFrom)
		}
		return fmt.Sprintf("Campaign started (%s): %d contacts", mode, data.Total)
	case campaign.QuotaReached:
		return "Campaign paused: " + data.Reason
	case campaign.JobResult:
		if data.Status != "failed" {
			return ""
		}
		return fmt.Sprintf("Send failed for %s (%s) after %d attempts: %s", data.Business, data.Phone, data.Attempts, data.Error)
	case campaign.RunFinished:
		s := data.Summary
		return fmt.Sprintf("Campaign %s: %d sent, %d failed, %d skipped of %d",
			data.Status, s.Sent, s.Failed, s.Skipped, s.Total)
	default:
		return ""
	}
}
