package notify

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// DiscordNotifier sends proactive messages to a single Discord channel.
// Outbound only: the agent speaks, it does not listen here.
type DiscordNotifier struct {
	session   *discordgo.Session
	channelID string
}

// NewDiscordNotifier opens a Discord session with the given bot token.
func NewDiscordNotifier(token, channelID string) (*DiscordNotifier, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	if err := session.Open(); err != nil {
		return nil, fmt.Errorf("open discord session: %w", err)
	}
	return &DiscordNotifier{session: session, channelID: channelID}, nil
}

func (d *DiscordNotifier) Name() string { return "discord" }

func (d *DiscordNotifier) Send(ctx context.Context, msg *Message) (bool, error) {
	content := msg.Content
	if msg.Urgency == "high" {
		content = "**" + content + "**"
	}
	if _, err := d.session.ChannelMessageSend(d.channelID, content); err != nil {
		return false, fmt.Errorf("discord send: %w", err)
	}
	return true, nil
}

// Close shuts the Discord session down.
func (d *DiscordNotifier) Close() error {
	return d.session.Close()
}
