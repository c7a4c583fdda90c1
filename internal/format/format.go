// Package format renders bottle records into outbound chat messages.
package format

import (
	"fmt"
	"strings"

	"github.com/wuyan1003/driftbottle/internal/bottle"
	"github.com/wuyan1003/driftbottle/internal/channel"
)

const timeLayout = "2006-01-02 15:04:05"

// BottleText renders the text block shown for a single bottle.
func BottleText(b bottle.Bottle) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Bottle #%d\n", b.ID)
	fmt.Fprintf(&sb, "From: %s\n", b.Sender)
	fmt.Fprintf(&sb, "Time: %s\n", b.CreatedAt.Local().Format(timeLayout))
	fmt.Fprintf(&sb, "Content: %s", b.Content)
	return sb.String()
}

// BottleMessage builds the reply for a picked bottle: an optional prefix
// line, the text block, and one attachment per image.
func BottleMessage(b bottle.Bottle, prefix string) channel.Message {
	text := BottleText(b)
	if prefix != "" {
		text = prefix + "\n" + text
	}

	msg := channel.Message{Text: text}
	for _, img := range b.Images {
		att := channel.Attachment{Type: channel.AttachmentImage}
		switch img.Type {
		case bottle.ImageTypeURL:
			att.URL = img.Data
		default:
			att.Data = img.Data
		}
		msg.Attachments = append(msg.Attachments, att)
	}
	return msg
}

// PickedList renders the picked-bottle overview, newest first (the store
// already orders the slice).
func PickedList(bottles []bottle.Bottle) string {
	if len(bottles) == 0 {
		return "No bottle has been picked up yet..."
	}

	var sb strings.Builder
	sb.WriteString("All picked bottles so far:\n\n")
	for _, b := range bottles {
		fmt.Fprintf(&sb, "Bottle #%d\n", b.ID)
		fmt.Fprintf(&sb, "Thrown by: %s\n", b.Sender)
		fmt.Fprintf(&sb, "Thrown at: %s\n", b.CreatedAt.Local().Format(timeLayout))
		sb.WriteString("------------------------\n")
	}
	return strings.TrimSpace(sb.String())
}
