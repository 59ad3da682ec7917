package store

import "sync"

// Subscription receives values from a hub until it is unsubscribed
type Subscription[T any] struct {
	ch chan T
}

// C returns the receive channel. It is closed on unsubscribe.
func (s *Subscription[T]) C() <-chan T {
	return s.ch
}

// hub delivers values to subscribers without ever blocking the publisher.
// A subscriber whose buffer is full misses that value.
type hub[T any] struct {
	mu   sync.RWMutex
	subs map[*Subscription[T]]struct{}
}

func newHub[T any]() *hub[T] {
	return &hub[T]{subs: make(map[*Subscription[T]]struct{})}
}

func (h *hub[T]) subscribe(buffer int) *Subscription[T] {
	if buffer < 1 {
		buffer = 1
	}
	sub := &Subscription[T]{ch: make(chan T, buffer)}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

func (h *hub[T]) unsubscribe(sub *Subscription[T]) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub]; !ok {
		return
	}
	delete(h.subs, sub)
	close(sub.ch)
}

func (h *hub[T]) broadcast(value T) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs {
		select {
		case sub.ch <- value:
		default:
		}
	}
}

func (h *hub[T]) len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
