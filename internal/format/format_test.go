package format

import (
	"strings"
	"testing"
	"time"

	"github.com/wuyan1003/driftbottle/internal/bottle"
	"github.com/wuyan1003/driftbottle/internal/channel"
)

func sampleBottle() bottle.Bottle {
	return bottle.Bottle{
		ID:        12,
		Content:   "hello from the sea",
		Sender:    "amy",
		SenderID:  "u1",
		CreatedAt: time.Date(2024, 6, 1, 12, 30, 0, 0, time.UTC),
	}
}

func TestBottleMessageText(t *testing.T) {
	msg := BottleMessage(sampleBottle(), "You picked up a bottle!")
	if !strings.HasPrefix(msg.Text, "You picked up a bottle!\n") {
		t.Fatalf("missing prefix: %q", msg.Text)
	}
	for _, want := range []string{"Bottle #12", "From: amy", "hello from the sea"} {
		if !strings.Contains(msg.Text, want) {
			t.Fatalf("text %q missing %q", msg.Text, want)
		}
	}
	if len(msg.Attachments) != 0 {
		t.Fatalf("attachments = %v", msg.Attachments)
	}
}

func TestBottleMessageImages(t *testing.T) {
	b := sampleBottle()
	b.Images = []bottle.Image{
		{Type: bottle.ImageTypeBase64, Data: "QUJD"},
		{Type: bottle.ImageTypeURL, Data: "https://img.example.com/a.jpg"},
	}
	msg := BottleMessage(b, "")
	if len(msg.Attachments) != 2 {
		t.Fatalf("attachments = %d, want 2", len(msg.Attachments))
	}
	if msg.Attachments[0].Type != channel.AttachmentImage || msg.Attachments[0].Data != "QUJD" {
		t.Fatalf("first attachment = %+v", msg.Attachments[0])
	}
	if msg.Attachments[1].URL != "https://img.example.com/a.jpg" {
		t.Fatalf("second attachment = %+v", msg.Attachments[1])
	}
}

func TestPickedListEmpty(t *testing.T) {
	if got := PickedList(nil); !strings.Contains(got, "No bottle") {
		t.Fatalf("empty list = %q", got)
	}
}

func TestPickedListEntries(t *testing.T) {
	got := PickedList([]bottle.Bottle{sampleBottle(), {ID: 3, Sender: "bob"}})
	if !strings.Contains(got, "Bottle #12") || !strings.Contains(got, "Bottle #3") {
		t.Fatalf("list = %q", got)
	}
	if strings.HasSuffix(got, "\n") {
		t.Fatal("list should be trimmed")
	}
}
