// Package telegram connects the bottle command handler to the Telegram Bot
// API over long polling.
package telegram

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/wuyan1003/driftbottle/internal/channel"
)

const Type = channel.TypeTelegram

type TelegramAdapter struct {
	token  string
	logger *slog.Logger
}

func NewTelegramAdapter(log *slog.Logger, token string) *TelegramAdapter {
	if log == nil {
		log = slog.Default()
	}
	return &TelegramAdapter{
		token:  token,
		logger: log.With(slog.String("adapter", "telegram")),
	}
}

func (a *TelegramAdapter) Type() channel.ChannelType {
	return Type
}

// Connect starts long polling and feeds each message through the handler.
// Replies returned by the handler are sent back on the same bot.
func (a *TelegramAdapter) Connect(ctx context.Context, handler channel.InboundHandler) (channel.Connection, error) {
	bot, err := tgbotapi.NewBotAPI(a.token)
	if err != nil {
		a.logger.Error("create bot failed", slog.Any("error", err))
		return nil, err
	}
	a.logger.Info("start", slog.String("bot", bot.Self.UserName))

	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 30
	updates := bot.GetUpdatesChan(updateConfig)
	connCtx, cancel := context.WithCancel(ctx)

	go func() {
		for {
			select {
			case <-connCtx.Done():
				a.logger.Info("stop")
				bot.StopReceivingUpdates()
				return
			case update, ok := <-updates:
				if !ok {
					a.logger.Info("updates channel closed")
					return
				}
				if update.Message == nil {
					continue
				}
				msg := a.buildInbound(bot, update.Message)
				if msg.Message.IsEmpty() {
					continue
				}
				go func() {
					replies, err := handler(connCtx, msg)
					if err != nil {
						a.logger.Error("handle inbound failed", slog.Any("error", err))
						return
					}
					for _, reply := range replies {
						if err := a.send(bot, reply); err != nil {
							a.logger.Error("send reply failed", slog.Any("error", err))
						}
					}
				}()
			}
		}
	}()

	stop := func(context.Context) error {
		a.logger.Info("stop")
		cancel()
		bot.StopReceivingUpdates()
		return nil
	}
	return channel.NewConnection(Type, stop), nil
}

// Send delivers one outbound message on a fresh bot instance.
func (a *TelegramAdapter) Send(_ context.Context, msg channel.OutboundMessage) error {
	bot, err := tgbotapi.NewBotAPI(a.token)
	if err != nil {
		a.logger.Error("create bot failed", slog.Any("error", err))
		return err
	}
	return a.send(bot, msg)
}

func (a *TelegramAdapter) buildInbound(bot *tgbotapi.BotAPI, msg *tgbotapi.Message) channel.InboundMessage {
	text := strings.TrimSpace(msg.Text)
	caption := strings.TrimSpace(msg.Caption)
	if text == "" && caption != "" {
		text = caption
	}

	chatID := ""
	if msg.Chat != nil {
		chatID = strconv.FormatInt(msg.Chat.ID, 10)
	}

	return channel.InboundMessage{
		Channel: Type,
		Message: channel.Message{
			ID:          strconv.Itoa(msg.MessageID),
			Text:        text,
			Attachments: a.collectAttachments(bot, msg),
		},
		Sender:      resolveSender(msg),
		ReplyTarget: chatID,
		ReceivedAt:  time.Unix(int64(msg.Date), 0).UTC(),
	}
}

func (a *TelegramAdapter) send(bot *tgbotapi.BotAPI, msg channel.OutboundMessage) error {
	target := strings.TrimSpace(msg.Target)
	if target == "" {
		return fmt.Errorf("telegram target is required")
	}
	chatID, err := strconv.ParseInt(target, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram target must be a chat_id")
	}
	if msg.Message.IsEmpty() {
		return fmt.Errorf("message is required")
	}

	text := strings.TrimSpace(msg.Message.Text)
	if len(msg.Message.Attachments) == 0 {
		message := tgbotapi.NewMessage(chatID, text)
		_, err := bot.Send(message)
		return err
	}

	// First attachment carries the text as its caption.
	usedCaption := false
	for _, att := range msg.Message.Attachments {
		caption := ""
		if !usedCaption && text != "" {
			caption = text
			usedCaption = true
		}
		if err := sendPhoto(bot, chatID, att, caption); err != nil {
			a.logger.Error("send attachment failed", slog.Any("error", err))
			return err
		}
	}
	if text != "" && !usedCaption {
		_, err := bot.Send(tgbotapi.NewMessage(chatID, text))
		return err
	}
	return nil
}

func sendPhoto(bot *tgbotapi.BotAPI, chatID int64, att channel.Attachment, caption string) error {
	var file tgbotapi.RequestFileData
	switch {
	case strings.TrimSpace(att.URL) != "":
		file = tgbotapi.FileURL(att.URL)
	case strings.TrimSpace(att.Data) != "":
		raw, err := base64.StdEncoding.DecodeString(att.Data)
		if err != nil {
			return fmt.Errorf("decode attachment: %w", err)
		}
		file = tgbotapi.FileBytes{Name: "bottle.jpg", Bytes: raw}
	case strings.TrimSpace(att.Path) != "":
		file = tgbotapi.FilePath(att.Path)
	default:
		return fmt.Errorf("attachment has no content")
	}
	photo := tgbotapi.NewPhoto(chatID, file)
	photo.Caption = caption
	_, err := bot.Send(photo)
	return err
}

func resolveSender(msg *tgbotapi.Message) channel.Identity {
	if msg.From == nil {
		return channel.Identity{}
	}
	displayName := strings.TrimSpace(msg.From.UserName)
	if displayName == "" {
		displayName = strings.TrimSpace(msg.From.FirstName + " " + msg.From.LastName)
	}
	return channel.Identity{
		ExternalID:  strconv.FormatInt(msg.From.ID, 10),
		DisplayName: displayName,
	}
}

func (a *TelegramAdapter) collectAttachments(bot *tgbotapi.BotAPI, msg *tgbotapi.Message) []channel.Attachment {
	var attachments []channel.Attachment
	if len(msg.Photo) > 0 {
		photo := pickPhoto(msg.Photo)
		attachments = append(attachments, a.buildAttachment(bot, channel.AttachmentImage, photo.FileID, ""))
	}
	if msg.Document != nil && strings.HasPrefix(msg.Document.MimeType, "image/") {
		attachments = append(attachments, a.buildAttachment(bot, channel.AttachmentImage, msg.Document.FileID, msg.Document.MimeType))
	}
	if msg.Sticker != nil && !msg.Sticker.IsAnimated {
		attachments = append(attachments, a.buildAttachment(bot, channel.AttachmentImage, msg.Sticker.FileID, ""))
	}
	return attachments
}

func (a *TelegramAdapter) buildAttachment(bot *tgbotapi.BotAPI, attType channel.AttachmentType, fileID, mime string) channel.Attachment {
	url := ""
	if bot != nil && strings.TrimSpace(fileID) != "" {
		value, err := bot.GetFileDirectURL(fileID)
		if err != nil {
			a.logger.Error("resolve file url failed", slog.Any("error", err))
		} else {
			url = value
		}
	}
	return channel.Attachment{
		Type: attType,
		URL:  strings.TrimSpace(url),
		Mime: strings.TrimSpace(mime),
	}
}

// pickPhoto chooses the largest rendition Telegram offers, by file size
// with pixel area as the tie-breaker.
func pickPhoto(items []tgbotapi.PhotoSize) tgbotapi.PhotoSize {
	best := items[0]
	for _, item := range items[1:] {
		if item.FileSize > best.FileSize {
			best = item
			continue
		}
		if item.FileSize == best.FileSize && item.Width*item.Height > best.Width*best.Height {
			best = item
		}
	}
	return best
}
