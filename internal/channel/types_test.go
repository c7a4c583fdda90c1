package channel

import (
	"context"
	"testing"
)

func TestIdentityName(t *testing.T) {
	t.Parallel()

	cases := []struct {
		identity Identity
		want     string
	}{
		{Identity{DisplayName: "Amy"}, "Amy"},
		{Identity{ExternalID: "123"}, "123"},
		{Identity{ExternalID: "123", DisplayName: "  Amy  "}, "Amy"},
		{Identity{}, ""},
	}
	for _, tc := range cases {
		if got := tc.identity.Name(); got != tc.want {
			t.Errorf("Name(%#v) = %q, want %q", tc.identity, got, tc.want)
		}
	}
}

func TestMessageIsEmpty(t *testing.T) {
	t.Parallel()

	if !(Message{Text: "  "}).IsEmpty() {
		t.Error("whitespace-only message should be empty")
	}
	if (Message{Text: "hi"}).IsEmpty() {
		t.Error("text message should not be empty")
	}
	if (Message{Attachments: []Attachment{{Type: AttachmentImage}}}).IsEmpty() {
		t.Error("attachment-only message should not be empty")
	}
}

func TestConnectionStop(t *testing.T) {
	t.Parallel()

	stopped := false
	conn := NewConnection(TypeTelegram, func(context.Context) error {
		stopped = true
		return nil
	})
	if !conn.Running() {
		t.Fatal("new connection should be running")
	}
	if err := conn.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !stopped || conn.Running() {
		t.Fatalf("stopped = %v, running = %v", stopped, conn.Running())
	}

	noStop := NewConnection(TypeDiscord, nil)
	if err := noStop.Stop(context.Background()); err != ErrStopNotSupported {
		t.Fatalf("err = %v, want ErrStopNotSupported", err)
	}
}
