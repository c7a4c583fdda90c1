// Package discord connects the bottle command handler to the Discord
// gateway via discordgo.
package discord

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"

	"github.com/wuyan1003/driftbottle/internal/channel"
)

const Type = channel.TypeDiscord

// Discord caps message content at 2000 characters.
const maxContentLength = 2000

type DiscordAdapter struct {
	token  string
	logger *slog.Logger
}

func NewDiscordAdapter(log *slog.Logger, token string) *DiscordAdapter {
	if log == nil {
		log = slog.Default()
	}
	return &DiscordAdapter{
		token:  token,
		logger: log.With(slog.String("adapter", "discord")),
	}
}

func (a *DiscordAdapter) Type() channel.ChannelType {
	return Type
}

// Connect opens a gateway session and feeds guild and DM messages through
// the handler. Replies returned by the handler are sent on the same session.
func (a *DiscordAdapter) Connect(ctx context.Context, handler channel.InboundHandler) (channel.Connection, error) {
	session, err := discordgo.New("Bot " + a.token)
	if err != nil {
		a.logger.Error("create session failed", slog.Any("error", err))
		return nil, err
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentMessageContent

	connCtx, cancel := context.WithCancel(ctx)

	session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		if m.Author == nil || m.Author.Bot {
			return
		}
		msg := buildInbound(m)
		if msg.Message.IsEmpty() {
			return
		}
		go func() {
			replies, err := handler(connCtx, msg)
			if err != nil {
				a.logger.Error("handle inbound failed", slog.Any("error", err))
				return
			}
			for _, reply := range replies {
				if err := a.send(s, reply); err != nil {
					a.logger.Error("send reply failed", slog.Any("error", err))
				}
			}
		}()
	})

	if err := session.Open(); err != nil {
		cancel()
		a.logger.Error("open session failed", slog.Any("error", err))
		return nil, err
	}
	a.logger.Info("start", slog.String("bot", session.State.User.Username))

	stop := func(context.Context) error {
		a.logger.Info("stop")
		cancel()
		return session.Close()
	}
	return channel.NewConnection(Type, stop), nil
}

// Send delivers one outbound message on a short-lived session.
func (a *DiscordAdapter) Send(_ context.Context, msg channel.OutboundMessage) error {
	session, err := discordgo.New("Bot " + a.token)
	if err != nil {
		a.logger.Error("create session failed", slog.Any("error", err))
		return err
	}
	if err := session.Open(); err != nil {
		a.logger.Error("open session failed", slog.Any("error", err))
		return err
	}
	defer session.Close()
	return a.send(session, msg)
}

func (a *DiscordAdapter) send(session *discordgo.Session, msg channel.OutboundMessage) error {
	target := strings.TrimSpace(msg.Target)
	if target == "" {
		return fmt.Errorf("discord target is required")
	}
	if msg.Message.IsEmpty() {
		return fmt.Errorf("message is required")
	}

	send := &discordgo.MessageSend{
		Content: truncateContent(strings.TrimSpace(msg.Message.Text)),
	}
	for i, att := range msg.Message.Attachments {
		file, err := attachmentFile(att, i)
		if err != nil {
			a.logger.Error("prepare attachment failed", slog.Any("error", err))
			return err
		}
		if file != nil {
			send.Files = append(send.Files, file)
		}
	}
	_, err := session.ChannelMessageSendComplex(target, send)
	return err
}

func attachmentFile(att channel.Attachment, index int) (*discordgo.File, error) {
	// URL attachments ride along in the message content; Discord fetches
	// and previews them itself.
	if strings.TrimSpace(att.Data) == "" {
		return nil, nil
	}
	raw, err := base64.StdEncoding.DecodeString(att.Data)
	if err != nil {
		return nil, fmt.Errorf("decode attachment: %w", err)
	}
	return &discordgo.File{
		Name:        fmt.Sprintf("bottle-%d.jpg", index+1),
		ContentType: att.Mime,
		Reader:      bytes.NewReader(raw),
	}, nil
}

func buildInbound(m *discordgo.MessageCreate) channel.InboundMessage {
	receivedAt := m.Timestamp
	if receivedAt.IsZero() {
		receivedAt = time.Now()
	}
	return channel.InboundMessage{
		Channel: Type,
		Message: channel.Message{
			ID:          m.ID,
			Text:        strings.TrimSpace(m.Content),
			Attachments: collectAttachments(m.Attachments),
		},
		Sender: channel.Identity{
			ExternalID:  m.Author.ID,
			DisplayName: resolveDisplayName(m),
		},
		ReplyTarget: m.ChannelID,
		ReceivedAt:  receivedAt.UTC(),
	}
}

func resolveDisplayName(m *discordgo.MessageCreate) string {
	if m.Member != nil && strings.TrimSpace(m.Member.Nick) != "" {
		return strings.TrimSpace(m.Member.Nick)
	}
	if name := strings.TrimSpace(m.Author.GlobalName); name != "" {
		return name
	}
	return strings.TrimSpace(m.Author.Username)
}

func collectAttachments(items []*discordgo.MessageAttachment) []channel.Attachment {
	var attachments []channel.Attachment
	for _, item := range items {
		if item == nil || !strings.HasPrefix(item.ContentType, "image/") {
			continue
		}
		attachments = append(attachments, channel.Attachment{
			Type: channel.AttachmentImage,
			URL:  item.URL,
			Mime: item.ContentType,
		})
	}
	return attachments
}

// truncateContent caps the text at Discord's character limit without
// splitting a multi-byte rune.
func truncateContent(text string) string {
	if utf8.RuneCountInString(text) <= maxContentLength {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxContentLength-3]) + "..."
}
