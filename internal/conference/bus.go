package conference

import "sync"

// Token identifies one subscription.
type Token uint64

// Bus delivers events to handlers subscribed by kind, in subscription order.
type Bus struct {
	mu       sync.Mutex
	next     Token
	handlers map[EventKind][]subscription
}

type subscription struct {
	token Token
	fn    func(Event)
}

func NewBus() *Bus {
	return &Bus{handlers: make(map[EventKind][]subscription)}
}

func (b *Bus) Subscribe(kind EventKind, fn func(Event)) Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	b.handlers[kind] = append(b.handlers[kind], subscription{token: b.next, fn: fn})
	return b.next
}

// Unsubscribe reports whether token was registered.
func (b *Bus) Unsubscribe(token Token) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for kind, subs := range b.handlers {
		for i, s := range subs {
			if s.token == token {
				b.handlers[kind] = append(subs[:i:i], subs[i+1:]...)
				return true
			}
		}
	}
	return false
}

// Publish calls every handler for ev.Kind synchronously.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	subs := append([]subscription(nil), b.handlers[ev.Kind]...)
	b.mu.Unlock()

	for _, s := range subs {
		s.fn(ev)
	}
}
