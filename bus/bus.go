// Package bus provides the pub/sub channel between a running driver and its
// observers (watch mode, tests). A driver without observers uses Nop.
package bus

import (
	"log/slog"
	"reflect"

	"github.com/cskr/pubsub"
)

type Subscription chan any

type MessageBus interface {
	Publish(topic string, msg any)
	Subscribe(topic string) Subscription
	Unsubscribe(ch Subscription, topics ...string)
	Close()
}

const subscriberCapacity = 128

type PubSubBus struct {
	ps     *pubsub.PubSub
	logger *slog.Logger
}

func New(logger *slog.Logger) *PubSubBus {
	if logger == nil {
		logger = slog.With("component", "bus")
	}

	return &PubSubBus{
		ps:     pubsub.New(subscriberCapacity),
		logger: logger,
	}
}

func (b *PubSubBus) Publish(topic string, msg any) {
	b.logger.Debug("publish", "topic", topic, "payload_type", payloadType(msg))
	b.ps.Pub(msg, topic)
}

func (b *PubSubBus) Subscribe(topic string) Subscription {
	ch := b.ps.Sub(topic)
	b.logger.Debug("subscribe", "topic", topic)

	return ch
}

func (b *PubSubBus) Unsubscribe(ch Subscription, topics ...string) {
	if len(topics) == 0 {
		b.ps.Unsub(ch)
		b.logger.Debug("unsubscribe", "mode", "all")

		return
	}
	b.ps.Unsub(ch, topics...)
	b.logger.Debug("unsubscribe", "topics", topics)
}

func (b *PubSubBus) Close() {
	b.ps.Shutdown()
}

func payloadType(v any) string {
	if v == nil {
		return "<nil>"
	}

	return reflect.TypeOf(v).String()
}

// NopBus discards publishes and hands out subscriptions that never fire.
// It stands in wherever no observer is attached, so callers never branch
// on a nil bus.
type NopBus struct{}

func Nop() *NopBus { return &NopBus{} }

func (*NopBus) Publish(string, any) {}

func (*NopBus) Subscribe(string) Subscription { return make(Subscription) }

func (*NopBus) Unsubscribe(Subscription, ...string) {}

func (*NopBus) Close() {}
