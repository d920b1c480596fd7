// Package events publishes account lifecycle events to the message broker.
package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/shipnest/apiserver/internal/mq"
	"github.com/shipnest/apiserver/types"
	"go.uber.org/zap"
)

const (
	publishTimeout = 5 * time.Second
	publishBuffer  = 256
)

// Publisher sends events. Implementations must not fail the caller: a lost
// event is logged, never surfaced to the request.
type Publisher interface {
	Publish(ctx context.Context, event types.Event)
}

// Nop discards every event. It is used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, types.Event) {}

// BrokerPublisher publishes JSON-encoded events on a single channel. Publish
// only enqueues; a background worker sends, so a slow broker never delays the
// caller. Events are dropped with a warning when the buffer is full.
type BrokerPublisher struct {
	queue   *mq.MQ
	channel string
	logger  *zap.Logger
	now     func() time.Time

	mu      sync.Mutex
	closed  bool
	pending chan types.Event
	done    chan struct{}
}

func NewBrokerPublisher(queue *mq.MQ, channel string, logger *zap.Logger) *BrokerPublisher {
	return newBrokerPublisher(queue, channel, logger, publishBuffer)
}

func newBrokerPublisher(queue *mq.MQ, channel string, logger *zap.Logger, buffer int) *BrokerPublisher {
	p := &BrokerPublisher{
		queue:   queue,
		channel: channel,
		logger:  logger,
		now:     time.Now,
		pending: make(chan types.Event, buffer),
		done:    make(chan struct{}),
	}
	go p.run()
	return p
}

// Publish stamps the event and queues it for sending. It never blocks.
func (p *BrokerPublisher) Publish(_ context.Context, event types.Event) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = p.now().UTC()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		p.logger.Warn("event dropped, publisher closed", zap.String("type", string(event.Type)))
		return
	}
	select {
	case p.pending <- event:
	default:
		p.logger.Warn("event dropped, buffer full",
			zap.String("type", string(event.Type)),
			zap.String("user_id", event.UserID),
		)
	}
}

// Close stops accepting events and waits until queued ones are sent or ctx
// is done.
func (p *BrokerPublisher) Close(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.pending)
	}
	p.mu.Unlock()

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *BrokerPublisher) run() {
	defer close(p.done)
	for event := range p.pending {
		p.send(event)
	}
}

func (p *BrokerPublisher) send(event types.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("encode event", zap.String("type", string(event.Type)), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	id, err := p.queue.Publish(ctx, p.channel, data, map[string]string{
		"type":             string(event.Type),
		mq.AttrOrderingKey: event.UserID,
	})
	if err != nil {
		p.logger.Error("publish event",
			zap.String("type", string(event.Type)),
			zap.String("user_id", event.UserID),
			zap.Error(err),
		)
		return
	}
	p.logger.Debug("event published", zap.String("type", string(event.Type)), zap.String("message_id", id))
}

// Tail subscribes to channel and logs every event until ctx is done.
// Undecodable messages are logged and acknowledged.
func Tail(ctx context.Context, queue *mq.MQ, channel string, logger *zap.Logger) error {
	return queue.Subscribe(ctx, channel, func(_ context.Context, msg mq.Message) error {
		var event types.Event
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			logger.Warn("undecodable event", zap.String("message_id", msg.ID), zap.Error(err))
			return nil
		}
		logger.Info("event",
			zap.String("message_id", msg.ID),
			zap.String("type", string(event.Type)),
			zap.String("user_id", event.UserID),
			zap.String("address_id", event.AddressID),
			zap.Time("occurred_at", event.OccurredAt),
		)
		return nil
	})
}
