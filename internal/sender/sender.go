// Package sender delivers composed messages over an outbound channel
// and classifies delivery failures.
package sender

import (
	"context"
	"time"
)

// Message is one outbound delivery: a validated E.164 phone number and
// the composed text.
type Message struct {
	Phone string
	Text  string
}

// Sender delivers messages one at a time. Send blocks until the
// message is confirmed handed to the channel or an error is known;
// implementations must not cancel a delivery that already started.
type Sender interface {
	// Start brings up the channel session, interactively if needed.
	Start(ctx context.Context) error
	// Send delivers one message and reports how long it took.
	Send(ctx context.Context, msg Message) (time.Duration, error)
	Close() error
}
