package main

import "sync"

type subscription[T any] struct {
	ch chan T
	// lagged is set before ch is closed when the subscriber fell behind.
	lagged bool
}

// hub fans values out to subscribers. A subscriber whose buffer is full is
// dropped and its channel closed, so it never sees a gap silently.
type hub[T any] struct {
	mu     sync.Mutex
	subs   map[*subscription[T]]struct{}
	closed bool
}

func newHub[T any]() *hub[T] {
	return &hub[T]{subs: make(map[*subscription[T]]struct{})}
}

// Subscribe on a closed hub returns an already closed subscription.
func (h *hub[T]) Subscribe(buffer int) *subscription[T] {
	sub := &subscription[T]{ch: make(chan T, buffer)}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(sub.ch)
		return sub
	}
	h.subs[sub] = struct{}{}
	return sub
}

func (h *hub[T]) Unsubscribe(sub *subscription[T]) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub]; !ok {
		return
	}
	delete(h.subs, sub)
	close(sub.ch)
}

// Broadcast returns the number of subscribers dropped for lagging.
func (h *hub[T]) Broadcast(value T) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	dropped := 0
	for sub := range h.subs {
		select {
		case sub.ch <- value:
		default:
			sub.lagged = true
			delete(h.subs, sub)
			close(sub.ch)
			dropped++
		}
	}
	return dropped
}

// Close ends every subscription. Later broadcasts are dropped.
func (h *hub[T]) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for sub := range h.subs {
		delete(h.subs, sub)
		close(sub.ch)
	}
}
