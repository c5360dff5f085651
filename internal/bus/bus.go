// Package bus is the typed publish/subscribe surface the presentation layer
// uses for session events. Outbound events go to a Router; inbound events are
// delivered to subscribers synchronously, in registration order.
package bus

import (
	"sync"

	"go.uber.org/zap"

	"github.com/DoyleJ11/naval-sim/pkg/types"
)

type Handler func(types.Event)

// Router forwards an outbound event according to the local session role.
type Router interface {
	Route(types.Event)
}

type subscription struct {
	id      uint64
	handler Handler
}

type Bus struct {
	logger *zap.Logger

	mu     sync.Mutex
	router Router
	nextID uint64
	subs   []subscription
}

func New(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{logger: logger}
}

// Attach sets the router used by Send.
func (b *Bus) Attach(r Router) {
	b.mu.Lock()
	b.router = r
	b.mu.Unlock()
}

// Subscribe registers h for every delivered event. The returned function
// removes it and may be called any number of times.
//
// Handlers run on the router's goroutine. A handler must not call Send
// directly: with the router's inbox full it would wait on itself. Reply from
// another goroutine instead.
func (b *Bus) Subscribe(h Handler) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, handler: h})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(id) })
	}
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, sub := range b.subs {
		if sub.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}

// Send hands e to the router. Local subscribers are not invoked.
func (b *Bus) Send(e types.Event) {
	b.mu.Lock()
	r := b.router
	b.mu.Unlock()

	if r == nil {
		b.logger.Debug("no router attached, dropping event", zap.String("type", string(e.Type())))
		return
	}
	r.Route(e)
}

// Deliver invokes every subscriber with e. Handlers registered or removed
// while a delivery is running take effect from the next delivery.
func (b *Bus) Deliver(e types.Event) {
	b.mu.Lock()
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.Unlock()

	for _, sub := range subs {
		sub.handler(e)
	}
}

// Len is the number of live subscriptions.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
