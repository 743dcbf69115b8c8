// Package channels connects chat platforms to the message bus.
package channels

import (
	"context"

	"github.com/rainbow-desk/rainbow/internal/bus"
)

// Channel is a chat platform adapter. Inbound guest messages go onto
// the bus; outbound replies arrive via the bus subscription.
type Channel interface {
	// Name returns the channel name (e.g. "whatsapp").
	Name() string
	// Start connects and begins listening.
	Start(ctx context.Context) error
	// Stop disconnects.
	Stop() error
	// Send delivers one message to a guest.
	Send(ctx context.Context, msg *bus.OutboundMessage) error
}

// BaseChannel provides common functionality for channels.
type BaseChannel struct {
	Bus *bus.MessageBus
}
