// Package channel defines the adapter boundary between chat platforms and
// the drift-bottle command layer.
package channel

import (
	"strings"
	"time"
)

type ChannelType string

const (
	TypeTelegram ChannelType = "telegram"
	TypeDiscord  ChannelType = "discord"
)

// Identity describes the sender of an inbound message as the platform sees it.
type Identity struct {
	ExternalID  string
	DisplayName string
}

// Name returns the best human-readable name for the identity.
func (i Identity) Name() string {
	if name := strings.TrimSpace(i.DisplayName); name != "" {
		return name
	}
	return strings.TrimSpace(i.ExternalID)
}

type AttachmentType string

const (
	AttachmentImage AttachmentType = "image"
	AttachmentFile  AttachmentType = "file"
)

// Attachment carries media referenced by a message. Exactly one of URL,
// Path, or Data is normally set; Data holds a base64 payload or data URL.
type Attachment struct {
	Type AttachmentType `json:"type"`
	URL  string         `json:"url,omitempty"`
	Path string         `json:"path,omitempty"`
	Data string         `json:"data,omitempty"`
	Mime string         `json:"mime,omitempty"`
}

// Message is the platform-neutral message body.
type Message struct {
	ID          string       `json:"id,omitempty"`
	Text        string       `json:"text,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
	// RawText is the unparsed platform payload, kept for fallback
	// extraction of embedded image references.
	RawText string `json:"raw_text,omitempty"`
}

func (m Message) IsEmpty() bool {
	return strings.TrimSpace(m.Text) == "" && len(m.Attachments) == 0
}

// InboundMessage is a message received from a chat platform.
type InboundMessage struct {
	Channel     ChannelType
	Message     Message
	Sender      Identity
	ReplyTarget string
	ReceivedAt  time.Time
}

// OutboundMessage is a reply to be delivered to a chat platform.
type OutboundMessage struct {
	Target  string  `json:"target"`
	Message Message `json:"message"`
}
