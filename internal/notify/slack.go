package notify

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"
)

// SlackNotifier posts proactive messages to a Slack channel.
type SlackNotifier struct {
	client  *slack.Client
	channel string
}

func NewSlackNotifier(token, channel string) *SlackNotifier {
	return &SlackNotifier{
		client:  slack.New(token),
		channel: channel,
	}
}

func (s *SlackNotifier) Name() string { return "slack" }

func (s *SlackNotifier) Send(ctx context.Context, msg *Message) (bool, error) {
	opts := []slack.MsgOption{slack.MsgOptionText(msg.Content, false)}
	if msg.Urgency == "high" {
		opts = append(opts, slack.MsgOptionIconEmoji(":rotating_light:"))
	}
	if _, _, err := s.client.PostMessageContext(ctx, s.channel, opts...); err != nil {
		return false, fmt.Errorf("slack post: %w", err)
	}
	return true, nil
}
