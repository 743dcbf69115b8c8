package channels

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/skip2/go-qrcode"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	_ "modernc.org/sqlite"

	"github.com/rainbow-desk/rainbow/internal/bus"
	"github.com/rainbow-desk/rainbow/internal/config"
	"github.com/rainbow-desk/rainbow/internal/conversation"
)

const sendTimeout = 30 * time.Second

// WhatsAppChannel is the native WhatsApp client. Guest phones map to
// conversation keys; an empty allowlist means every guest may write.
type WhatsAppChannel struct {
	BaseChannel
	client    *whatsmeow.Client
	cfg       config.WhatsAppConfig
	dataDir   string
	container *sqlstore.Container
	logger    *slog.Logger
}

func NewWhatsAppChannel(cfg config.WhatsAppConfig, dataDir string, messageBus *bus.MessageBus, logger *slog.Logger) *WhatsAppChannel {
	if logger == nil {
		logger = slog.Default()
	}
	return &WhatsAppChannel{
		BaseChannel: BaseChannel{Bus: messageBus},
		cfg:         cfg,
		dataDir:     dataDir,
		logger:      logger.With("component", "whatsapp"),
	}
}

func (c *WhatsAppChannel) Name() string { return "whatsapp" }

func (c *WhatsAppChannel) Start(ctx context.Context) error {
	if !c.cfg.Enabled {
		return nil
	}

	dbLog := waLog.Stdout("Database", "WARN", true)
	clientLog := waLog.Stdout("Client", "WARN", true)

	dbPath := filepath.Join(c.dataDir, "whatsapp.db")
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return fmt.Errorf("create whatsapp data dir: %w", err)
	}

	container, err := sqlstore.New(ctx, "sqlite",
		"file:"+dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", dbLog)
	if err != nil {
		return fmt.Errorf("init whatsapp db: %w", err)
	}
	c.container = container

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		return fmt.Errorf("get device: %w", err)
	}
	c.client = whatsmeow.NewClient(deviceStore, clientLog)
	c.client.AddEventHandler(c.eventHandler)

	if c.client.Store.ID == nil {
		if err := c.pair(ctx); err != nil {
			return err
		}
	} else {
		if err := c.client.Connect(); err != nil {
			return fmt.Errorf("connect: %w", err)
		}
		c.logger.Info("whatsapp connected")
	}

	c.Bus.Subscribe(c.Name(), func(msg *bus.OutboundMessage) {
		go c.handleOutbound(msg)
	})
	return nil
}

// pair runs the QR login flow, writing the code to a PNG so operators
// without a rich terminal can still scan it.
func (c *WhatsAppChannel) pair(ctx context.Context) error {
	qrChan, _ := c.client.GetQRChannel(ctx)
	if err := c.client.Connect(); err != nil {
		return fmt.Errorf("connect for pairing: %w", err)
	}
	c.logger.Info("whatsapp pairing required, waiting for QR scan")
	for evt := range qrChan {
		switch evt.Event {
		case "code":
			qrPath := filepath.Join(c.dataDir, "whatsapp-qr.png")
			if err := qrcode.WriteFile(evt.Code, qrcode.Medium, 512, qrPath); err == nil {
				fmt.Printf("WhatsApp login QR code saved to %s - scan it with your phone.\n", qrPath)
			} else {
				c.logger.Warn("qr image write failed", "error", err)
			}
		case "success":
			c.logger.Info("whatsapp paired")
		default:
			c.logger.Info("whatsapp pairing event", "event", evt.Event)
		}
	}
	return nil
}

func (c *WhatsAppChannel) Stop() error {
	if c.client != nil {
		c.client.Disconnect()
	}
	if c.container != nil {
		c.container.Close()
	}
	return nil
}

// Send delivers a text, or a media attachment when Media is set.
func (c *WhatsAppChannel) Send(ctx context.Context, msg *bus.OutboundMessage) error {
	if c.client == nil {
		return fmt.Errorf("whatsapp client not initialized")
	}
	jid := types.NewJID(msg.Phone, types.DefaultUserServer)

	if len(msg.Media) > 0 {
		return c.sendMedia(ctx, jid, msg)
	}
	_, err := c.client.SendMessage(ctx, jid, &waE2E.Message{
		Conversation: proto.String(msg.Content),
	})
	return err
}

func (c *WhatsAppChannel) sendMedia(ctx context.Context, jid types.JID, msg *bus.OutboundMessage) error {
	mediaType := whatsmeow.MediaImage
	if strings.HasPrefix(msg.MimeType, "application/") {
		mediaType = whatsmeow.MediaDocument
	}
	uploaded, err := c.client.Upload(ctx, msg.Media, mediaType)
	if err != nil {
		return fmt.Errorf("upload media: %w", err)
	}

	var waMsg *waE2E.Message
	if mediaType == whatsmeow.MediaImage {
		waMsg = &waE2E.Message{ImageMessage: &waE2E.ImageMessage{
			Caption:       proto.String(msg.Content),
			Mimetype:      proto.String(msg.MimeType),
			URL:           proto.String(uploaded.URL),
			DirectPath:    proto.String(uploaded.DirectPath),
			MediaKey:      uploaded.MediaKey,
			FileEncSHA256: uploaded.FileEncSHA256,
			FileSHA256:    uploaded.FileSHA256,
			FileLength:    proto.Uint64(uploaded.FileLength),
		}}
	} else {
		waMsg = &waE2E.Message{DocumentMessage: &waE2E.DocumentMessage{
			Caption:       proto.String(msg.Content),
			Mimetype:      proto.String(msg.MimeType),
			URL:           proto.String(uploaded.URL),
			DirectPath:    proto.String(uploaded.DirectPath),
			MediaKey:      uploaded.MediaKey,
			FileEncSHA256: uploaded.FileEncSHA256,
			FileSHA256:    uploaded.FileSHA256,
			FileLength:    proto.Uint64(uploaded.FileLength),
		}}
	}
	_, err = c.client.SendMessage(ctx, jid, waMsg)
	return err
}

func (c *WhatsAppChannel) handleOutbound(msg *bus.OutboundMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	if err := c.Send(ctx, msg); err != nil {
		c.logger.Error("whatsapp send failed", "phone", msg.Phone, "trace_id", msg.TraceID, "error", err)
		return
	}
	c.logger.Info("whatsapp message sent", "phone", msg.Phone, "trace_id", msg.TraceID)
}

func (c *WhatsAppChannel) eventHandler(evt any) {
	msg, ok := evt.(*events.Message)
	if !ok {
		return
	}

	content := extractText(msg)
	if content == "" || isSystemNoise(content) {
		return
	}

	sender := msg.Info.Sender.User
	if !c.senderAllowed(sender) {
		c.logger.Warn("unauthorized sender", "sender", sender)
		if c.cfg.DropUnauthorized {
			return
		}
	}

	c.Bus.PublishInbound(&bus.InboundMessage{
		Channel:   c.Name(),
		Phone:     conversation.NormalizePhone(sender),
		PushName:  msg.Info.PushName,
		TraceID:   traceIDFromEvent(msg.Info.ID),
		Content:   content,
		Timestamp: msg.Info.Timestamp,
		Metadata: map[string]any{
			bus.MetaKeyPushName: msg.Info.PushName,
			bus.MetaKeyIsFromMe: msg.Info.IsFromMe,
		},
	})
}

// extractText pulls the guest-visible text out of the protobuf shapes
// WhatsApp uses for plain, quoted, and captioned messages.
func extractText(msg *events.Message) string {
	switch {
	case msg.Message.GetConversation() != "":
		return msg.Message.GetConversation()
	case msg.Message.GetExtendedTextMessage().GetText() != "":
		return msg.Message.GetExtendedTextMessage().GetText()
	case msg.Message.GetImageMessage().GetCaption() != "":
		return msg.Message.GetImageMessage().GetCaption()
	case msg.Message.GetImageMessage() != nil:
		return "[image]"
	case msg.Message.GetAudioMessage() != nil:
		return "[voice message]"
	case msg.Message.GetDocumentMessage() != nil:
		title := msg.Message.GetDocumentMessage().GetTitle()
		if title == "" {
			title = msg.Message.GetDocumentMessage().GetFileName()
		}
		return fmt.Sprintf("[document: %s]", title)
	}
	return ""
}

func isSystemNoise(content string) bool {
	if strings.Contains(content, "senderKeyDistributionMessage") {
		return true
	}
	return strings.Contains(content, "messageContextInfo") && strings.Contains(content, "{")
}

// senderAllowed is open by default: guests are strangers. A non-empty
// allowlist restricts the channel, which is how staging runs.
func (c *WhatsAppChannel) senderAllowed(sender string) bool {
	if len(c.cfg.AllowFrom) == 0 {
		return true
	}
	normalized := conversation.NormalizePhone(sender)
	for _, allowed := range c.cfg.AllowFrom {
		if conversation.NormalizePhone(allowed) == normalized {
			return true
		}
	}
	return false
}

func traceIDFromEvent(eventID string) string {
	if eventID != "" {
		return "wa-" + eventID
	}
	var b [8]byte
	if _, err := rand.Read(b[:]); err == nil {
		return hex.EncodeToString(b[:])
	}
	return fmt.Sprintf("wa-%d", time.Now().UnixNano())
}
