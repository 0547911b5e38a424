// Package discord delivers deal notifications to Discord text channels through the bot REST API.
package discord

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
)

// messageSender is the subset of *discordgo.Session the sink needs.
type messageSender interface {
	ChannelMessageSendComplex(
		channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption,
	) (*discordgo.Message, error)
}

// Sink posts messages with a bot token. Only role mentions are allowed to ping.
type Sink struct {
	sender messageSender
}

// New creates a Sink authenticated with botToken. The "Bot " prefix is optional.
func New(botToken string) (*Sink, error) {
	botToken = strings.TrimSpace(botToken)
	if botToken == "" {
		return nil, errors.New("discord bot token is required")
	}
	if !strings.HasPrefix(botToken, "Bot ") {
		botToken = "Bot " + botToken
	}
	session, err := discordgo.New(botToken)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	session.UserAgent = "dealwatch (https://github.com/JakeFAU/dealwatch, 1.0)"
	return &Sink{sender: session}, nil
}

// Notify sends text to channelID.
func (s *Sink) Notify(ctx context.Context, channelID, text string) error {
	if channelID == "" {
		return errors.New("discord channel id is required")
	}
	msg := &discordgo.MessageSend{
		Content: text,
		AllowedMentions: &discordgo.MessageAllowedMentions{
			Parse: []discordgo.AllowedMentionType{discordgo.AllowedMentionTypeRoles},
		},
	}
	if _, err := s.sender.ChannelMessageSendComplex(channelID, msg, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("send discord message to %s: %w", channelID, err)
	}
	return nil
}
