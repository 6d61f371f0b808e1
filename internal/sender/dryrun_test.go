package sender

import (
	"context"
	"testing"
	"time"

	"github.com/Candra0x6/WA-Website-Offer-Automation/pkg/logx"
)

func TestDryRunSend(t *testing.T) {
	d := NewDryRun(logx.Nop(), 150*time.Millisecond)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	lat, err := d.Send(context.Background(), Message{Phone: "+14155552671", Text: "hello"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if lat != 150*time.Millisecond {
		t.Fatalf("latency = %s", lat)
	}
	if d.Sent() != 1 {
		t.Fatalf("sent = %d", d.Sent())
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestDryRunHonorsCancellation(t *testing.T) {
	d := NewDryRun(logx.Nop(), 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := d.Send(ctx, Message{Phone: "+14155552671", Text: "hello"}); err == nil {
		t.Fatal("expected context error")
	}
	if d.Sent() != 0 {
		t.Fatalf("sent = %d after cancelled send", d.Sent())
	}
}
