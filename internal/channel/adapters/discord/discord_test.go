package discord

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
)

func TestCollectAttachmentsKeepsOnlyImages(t *testing.T) {
	t.Parallel()

	items := []*discordgo.MessageAttachment{
		{URL: "https://cdn.example/a.png", ContentType: "image/png"},
		{URL: "https://cdn.example/b.pdf", ContentType: "application/pdf"},
		nil,
	}
	attachments := collectAttachments(items)
	if len(attachments) != 1 || attachments[0].URL != "https://cdn.example/a.png" {
		t.Fatalf("unexpected attachments: %#v", attachments)
	}
}

func TestTruncateContent(t *testing.T) {
	t.Parallel()

	short := "hello"
	if got := truncateContent(short); got != short {
		t.Fatalf("short content changed: %q", got)
	}
	long := strings.Repeat("x", maxContentLength+50)
	got := truncateContent(long)
	if utf8.RuneCountInString(got) != maxContentLength || !strings.HasSuffix(got, "...") {
		t.Fatalf("runes = %d, suffix = %q", utf8.RuneCountInString(got), got[len(got)-3:])
	}

	// Multi-byte runes must be counted as characters and never split.
	wide := strings.Repeat("漂", maxContentLength+1)
	got = truncateContent(wide)
	if utf8.RuneCountInString(got) != maxContentLength {
		t.Fatalf("wide runes = %d, want %d", utf8.RuneCountInString(got), maxContentLength)
	}
	if !utf8.ValidString(got) || !strings.HasSuffix(got, "...") {
		t.Fatalf("truncation split a rune: %q", got[:12])
	}
}

func TestResolveDisplayName(t *testing.T) {
	t.Parallel()

	m := &discordgo.MessageCreate{Message: &discordgo.Message{
		Author: &discordgo.User{Username: "user", GlobalName: "Global"},
		Member: &discordgo.Member{Nick: "Nick"},
	}}
	if got := resolveDisplayName(m); got != "Nick" {
		t.Fatalf("want nick, got %q", got)
	}
	m.Member = nil
	if got := resolveDisplayName(m); got != "Global" {
		t.Fatalf("want global name, got %q", got)
	}
	m.Message.Author.GlobalName = ""
	if got := resolveDisplayName(m); got != "user" {
		t.Fatalf("want username, got %q", got)
	}
}
