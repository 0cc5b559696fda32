package server

import (
	"sync"

	"github.com/google/uuid"
)

// Hub fans values out to subscribers. Publishing never blocks: a subscriber whose buffer
// is full misses the value.
type Hub[T any] struct {
	mu   sync.RWMutex
	subs map[string]chan T
}

func NewHub[T any]() *Hub[T] {
	return &Hub[T]{subs: make(map[string]chan T)}
}

// Subscribe registers a subscriber with the given buffer. cancel unregisters it and
// closes ch.
func (h *Hub[T]) Subscribe(buffer int) (id string, ch <-chan T, cancel func()) {
	id = uuid.NewString()
	c := make(chan T, buffer)

	h.mu.Lock()
	h.subs[id] = c
	h.mu.Unlock()

	var once sync.Once
	return id, c, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(c)
		})
	}
}

// Publish returns the number of subscribers that received v.
func (h *Hub[T]) Publish(v T) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for id, c := range h.subs {
		select {
		case c <- v:
			n++
		default:
			logger.Debugf("hub: subscriber %s is behind, dropped", id)
		}
	}
	return n
}

func (h *Hub[T]) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
