// Package worker consumes inbound guest messages from the bus and runs
// them through the processing core, one at a time per phone number.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/rainbow-desk/rainbow/internal/bus"
	"github.com/rainbow-desk/rainbow/internal/conversation"
	"github.com/rainbow-desk/rainbow/internal/router"
)

// Handler processes one guest message and produces a reply.
type Handler interface {
	HandleMessage(ctx context.Context, phone, content, pushName string) (*router.Response, error)
}

const queueDepth = 32

// Pool fans inbound messages out to one queue per phone. Messages for
// the same phone are processed strictly in arrival order; different
// phones proceed in parallel.
type Pool struct {
	bus     *bus.MessageBus
	handler Handler
	logger  *slog.Logger

	mu      sync.Mutex
	queues  map[string]chan *bus.InboundMessage
	wg      sync.WaitGroup
	running atomic.Bool
}

func NewPool(b *bus.MessageBus, h Handler, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		bus:     b,
		handler: h,
		logger:  logger,
		queues:  make(map[string]chan *bus.InboundMessage),
	}
}

// Run consumes inbound messages until the context is cancelled. The
// single consumer loop is what guarantees per-phone ordering: messages
// are enqueued in the order they arrive on the bus.
func (p *Pool) Run(ctx context.Context) error {
	p.running.Store(true)
	p.logger.Info("worker pool started")

	for p.running.Load() {
		msg, err := p.bus.ConsumeInbound(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			p.logger.Error("consume inbound failed", "error", err)
			continue
		}
		if msg.Metadata[bus.MetaKeyIsFromMe] == true {
			continue
		}
		// Queues key on digits only, so "+60 12-345 6789" and
		// "60123456789" share one queue and stay ordered.
		key := conversation.NormalizePhone(msg.Phone)
		if key == "" || msg.Content == "" {
			continue
		}

		queue := p.queueFor(ctx, key)
		select {
		case queue <- msg:
		case <-ctx.Done():
		}
	}

	p.wg.Wait()
	p.logger.Info("worker pool stopped")
	return nil
}

// Stop signals the pool to stop after the current message.
func (p *Pool) Stop() {
	p.running.Store(false)
}

func (p *Pool) queueFor(ctx context.Context, phone string) chan *bus.InboundMessage {
	p.mu.Lock()
	defer p.mu.Unlock()

	queue, ok := p.queues[phone]
	if ok {
		return queue
	}
	queue = make(chan *bus.InboundMessage, queueDepth)
	p.queues[phone] = queue
	p.wg.Add(1)
	go p.drain(ctx, phone, queue)
	return queue
}

func (p *Pool) drain(ctx context.Context, phone string, queue chan *bus.InboundMessage) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-queue:
			p.process(ctx, msg)
		}
	}
}

func (p *Pool) process(ctx context.Context, msg *bus.InboundMessage) {
	resp, err := p.handler.HandleMessage(ctx, msg.Phone, msg.Content, msg.PushName)
	if err != nil {
		p.logger.Error("message processing failed",
			"phone", msg.Phone, "trace_id", msg.TraceID, "error", err)
		return
	}
	if resp == nil || resp.Reply == "" {
		return
	}
	p.bus.PublishOutbound(&bus.OutboundMessage{
		Channel: msg.Channel,
		Phone:   msg.Phone,
		TraceID: msg.TraceID,
		Content: resp.Reply,
	})
}
