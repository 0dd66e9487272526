// Package realtime delivers inserted rows to the bell, in memory or from Postgres LISTEN/NOTIFY.
package realtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/zerlake/thesisai-philippines-sub009/core"
	"github.com/zerlake/thesisai-philippines-sub009/core/notification"
)

type topic struct {
	table  string
	userID string
}

// Hub fans events out to the subscribers of their table and user.
type Hub struct {
	logger core.Logger

	mu   sync.RWMutex
	subs map[topic]map[int]func(notification.Event)
	next int
}

var _ notification.Stream = (*Hub)(nil) // interface compliance check

func NewHub(logger core.Logger) *Hub {
	return &Hub{
		logger: logger,
		subs:   make(map[topic]map[int]func(notification.Event)),
	}
}

// Subscribe registers fn until unsubscribe is called; ctx is not retained.
func (h *Hub) Subscribe(_ context.Context, table, userID string, fn func(notification.Event)) (func(), error) {
	t := topic{table: table, userID: userID}

	h.mu.Lock()
	h.next++
	id := h.next
	if h.subs[t] == nil {
		h.subs[t] = make(map[int]func(notification.Event))
	}
	h.subs[t][id] = fn
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[t], id)
			if len(h.subs[t]) == 0 {
				delete(h.subs, t)
			}
			h.mu.Unlock()
		})
	}, nil
}

// Publish delivers e to its subscribers on the calling goroutine.
func (h *Hub) Publish(e notification.Event) {
	h.mu.RLock()
	subs := h.subs[topic{table: e.Table, userID: e.UserID}]
	fns := make([]func(notification.Event), 0, len(subs))
	for _, fn := range subs {
		fns = append(fns, fn)
	}
	h.mu.RUnlock()

	for _, fn := range fns {
		h.deliver(fn, e)
	}
}

// Subscribers counts the subscribers of every topic.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, subs := range h.subs {
		n += len(subs)
	}
	return n
}

func (h *Hub) deliver(fn func(notification.Event), e notification.Event) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error(fmt.Sprintf("realtime: subscriber of %s panicked: %v", e.Table, r))
		}
	}()
	fn(e)
}
