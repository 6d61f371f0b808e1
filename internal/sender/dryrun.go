package sender

import (
	"context"
	"time"

	"github.com/Candra0x6/WA-Website-Offer-Automation/internal/compose"
	"github.com/Candra0x6/WA-Website-Offer-Automation/pkg/logx"
)

// DryRun logs every message instead of delivering it. Pacing, quota
// and persistence all behave as in a live run.
type DryRun struct {
	log     logx.Logger
	latency time.Duration
	sent    int
}

// NewDryRun builds a dry-run sender. latency is charged per send so
// reports stay plausible; zero is fine.
func NewDryRun(log logx.Logger, latency time.Duration) *DryRun {
	return &DryRun{
		log:     log.With(logx.String("component", "sender"), logx.Bool("dry_run", true)),
		latency: latency,
	}
}

func (d *DryRun) Start(ctx context.Context) error { return nil }

func (d *DryRun) Send(ctx context.Context, msg Message) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	d.sent++
	d.log.Info("would send message",
		logx.String("phone", msg.Phone),
		logx.String("preview", compose.Preview(msg.Text, 80)))
	return d.latency, nil
}

// Sent reports how many messages were logged.
func (d *DryRun) Sent() int { return d.sent }

func (d *DryRun) Close() error { return nil }
