package channels

import (
	"testing"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"

	"github.com/rainbow-desk/rainbow/internal/bus"
	"github.com/rainbow-desk/rainbow/internal/config"
)

func TestExtractText(t *testing.T) {
	tests := []struct {
		name string
		msg  *waE2E.Message
		want string
	}{
		{
			name: "plain conversation",
			msg:  &waE2E.Message{Conversation: proto.String("what time is checkout?")},
			want: "what time is checkout?",
		},
		{
			name: "extended text",
			msg: &waE2E.Message{ExtendedTextMessage: &waE2E.ExtendedTextMessage{
				Text: proto.String("quoted reply"),
			}},
			want: "quoted reply",
		},
		{
			name: "image with caption",
			msg: &waE2E.Message{ImageMessage: &waE2E.ImageMessage{
				Caption: proto.String("my booking screenshot"),
			}},
			want: "my booking screenshot",
		},
		{
			name: "image without caption",
			msg:  &waE2E.Message{ImageMessage: &waE2E.ImageMessage{}},
			want: "[image]",
		},
		{
			name: "empty",
			msg:  &waE2E.Message{},
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := extractText(&events.Message{Message: tt.msg})
			if got != tt.want {
				t.Errorf("extractText = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSenderAllowed(t *testing.T) {
	open := NewWhatsAppChannel(config.WhatsAppConfig{}, t.TempDir(), bus.NewMessageBus(), nil)
	if !open.senderAllowed("60123456789") {
		t.Error("empty allowlist should admit every guest")
	}

	restricted := NewWhatsAppChannel(config.WhatsAppConfig{
		AllowFrom: []string{"+60 12-345 6789"},
	}, t.TempDir(), bus.NewMessageBus(), nil)
	if !restricted.senderAllowed("60123456789") {
		t.Error("allowlisted sender rejected despite formatting differences")
	}
	if restricted.senderAllowed("60999999999") {
		t.Error("unlisted sender admitted")
	}
}

func TestSystemNoiseDropped(t *testing.T) {
	if !isSystemNoise("senderKeyDistributionMessage:{...}") {
		t.Error("key distribution noise not detected")
	}
	if isSystemNoise("the wifi is broken") {
		t.Error("guest text misdetected as noise")
	}
}
