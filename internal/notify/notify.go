// Package notify delivers proactive messages to the user over whichever
// channels are configured. Delivery is best effort: a channel failure is
// reported but never propagates as fatal.
package notify

import (
	"context"

	"go.uber.org/zap"
)

// Message is one outbound proactive message.
type Message struct {
	ID      string `json:"id"`
	Content string `json:"content"`
	Reason  string `json:"reason"`
	Urgency string `json:"urgency"`
}

// Notifier is a single delivery channel.
type Notifier interface {
	Name() string
	Send(ctx context.Context, msg *Message) (bool, error)
}

// Fanout attempts delivery on every registered channel and reports success
// if at least one accepted the message.
type Fanout struct {
	channels []Notifier
	logger   *zap.Logger
}

func NewFanout(logger *zap.Logger, channels ...Notifier) *Fanout {
	return &Fanout{channels: channels, logger: logger}
}

// Register adds a delivery channel.
func (f *Fanout) Register(n Notifier) {
	f.channels = append(f.channels, n)
}

// Send delivers msg on all channels. Returns true if any channel delivered;
// the returned error is the last channel error, if every channel failed.
func (f *Fanout) Send(ctx context.Context, msg *Message) (bool, error) {
	if len(f.channels) == 0 {
		return false, nil
	}
	var delivered bool
	var lastErr error
	for _, ch := range f.channels {
		ok, err := ch.Send(ctx, msg)
		if err != nil {
			f.logger.Warn("channel delivery failed",
				zap.String("channel", ch.Name()),
				zap.String("message", msg.ID),
				zap.Error(err))
			lastErr = err
			continue
		}
		if ok {
			delivered = true
		}
	}
	if delivered {
		return true, nil
	}
	return false, lastErr
}
