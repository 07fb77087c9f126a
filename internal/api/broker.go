package api

import (
	"sync"
)

// SSEEvent is one progress event for an optimization batch.
type SSEEvent struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// Broker is the in-memory fanout keyed by batch id.
type Broker struct {
	mu   sync.Mutex
	subs map[string]map[chan SSEEvent]struct{}
}

func NewBroker() *Broker {
	return &Broker{subs: map[string]map[chan SSEEvent]struct{}{}}
}

func (b *Broker) Subscribe(batchID string) chan SSEEvent {
	ch := make(chan SSEEvent, 8)
	b.mu.Lock()
	if b.subs[batchID] == nil {
		b.subs[batchID] = map[chan SSEEvent]struct{}{}
	}
	b.subs[batchID][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broker) Unsubscribe(batchID string, ch chan SSEEvent) {
	b.mu.Lock()
	if m := b.subs[batchID]; m != nil {
		delete(m, ch)
		if len(m) == 0 {
			delete(b.subs, batchID)
		}
	}
	b.mu.Unlock()
	close(ch)
}

func (b *Broker) Publish(batchID string, evt SSEEvent) {
	b.mu.Lock()
	for ch := range b.subs[batchID] {
		select {
		case ch <- evt:
		default:
		}
	}
	b.mu.Unlock()
}
