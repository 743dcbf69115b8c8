// Package notify fans staff alerts and ops events out to the configured
// sinks: staff WhatsApp numbers, a Slack channel, and a Kafka topic.
// Every sink is best-effort; a dead sink never fails the caller.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/slack-go/slack"

	"github.com/rainbow-desk/rainbow/internal/bus"
	"github.com/rainbow-desk/rainbow/internal/config"
	"github.com/rainbow-desk/rainbow/internal/conversation"
)

const kafkaWriteTimeout = 5 * time.Second

// Service implements the notifier used by the router and the scheduler,
// and the text sender used for scheduled messages.
type Service struct {
	bus          *bus.MessageBus
	staffPhones  []string
	slackClient  *slack.Client
	slackChannel string
	kafkaWriter  *kafka.Writer
	kafkaTopic   string
	logger       *slog.Logger
}

func New(cfg config.NotifyConfig, b *bus.MessageBus, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		bus:         b,
		staffPhones: cfg.StaffPhones,
		logger:      logger.With("component", "notify"),
	}
	if cfg.Slack.Enabled && cfg.Slack.Token != "" {
		s.slackClient = slack.New(cfg.Slack.Token)
		s.slackChannel = cfg.Slack.Channel
	}
	if cfg.Kafka.Enabled && len(cfg.Kafka.Brokers) > 0 {
		s.kafkaWriter = &kafka.Writer{
			Addr:         kafka.TCP(cfg.Kafka.Brokers...),
			Topic:        cfg.Kafka.Topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireOne,
		}
		s.kafkaTopic = cfg.Kafka.Topic
	}
	return s
}

func (s *Service) Close() error {
	if s.kafkaWriter != nil {
		return s.kafkaWriter.Close()
	}
	return nil
}

// SendText queues one outbound WhatsApp message. Delivery errors show
// up at the channel layer; the queue itself does not fail.
func (s *Service) SendText(ctx context.Context, phone, text string) error {
	if s.bus == nil {
		return fmt.Errorf("no message bus configured")
	}
	s.bus.PublishOutbound(&bus.OutboundMessage{
		Channel: "whatsapp",
		Phone:   conversation.NormalizePhone(phone),
		Content: text,
	})
	return nil
}

// StaffAlert notifies every configured staff sink.
func (s *Service) StaffAlert(ctx context.Context, subject, body string) {
	text := subject
	if body != "" {
		text = subject + "\n\n" + body
	}

	if s.bus != nil {
		for _, phone := range s.staffPhones {
			s.bus.PublishOutbound(&bus.OutboundMessage{
				Channel: "whatsapp",
				Phone:   conversation.NormalizePhone(phone),
				Content: text,
			})
		}
	}

	if s.slackClient != nil {
		_, _, err := s.slackClient.PostMessageContext(ctx, s.slackChannel,
			slack.MsgOptionText(text, false))
		if err != nil {
			s.logger.Warn("slack alert failed", "error", err)
		}
	}

	s.OpsEvent(ctx, "staff_alert", map[string]any{"subject": subject})
}

// OpsEvent publishes one JSON record to the ops topic. Dropped silently
// when Kafka is not configured.
func (s *Service) OpsEvent(ctx context.Context, event string, fields map[string]any) {
	if s.kafkaWriter == nil {
		return
	}
	record := map[string]any{
		"event": event,
		"at":    time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range fields {
		record[k] = v
	}
	value, err := json.Marshal(record)
	if err != nil {
		s.logger.Warn("ops event marshal failed", "event", event, "error", err)
		return
	}

	writeCtx, cancel := context.WithTimeout(ctx, kafkaWriteTimeout)
	defer cancel()
	err = s.kafkaWriter.WriteMessages(writeCtx, kafka.Message{
		Key:   []byte(event),
		Value: value,
		Time:  time.Now(),
	})
	if err != nil {
		s.logger.Warn("ops event write failed", "event", event, "topic", s.kafkaTopic, "error", err)
	}
}
