// Package events fans out monitoring run summaries to live subscribers.
package events

import (
	"sync"
	"time"
)

// RunCompleted summarizes one finished monitoring run.
// Decimal values are carried as strings so consumers do not lose precision.
type RunCompleted struct {
	Timestamp       time.Time `json:"ts"`
	RunID           string    `json:"run_id"`
	FundID          string    `json:"fund_id"`
	Date            string    `json:"date"`
	BaselineDate    string    `json:"baseline_date,omitempty"`
	BaselineMissing bool      `json:"baseline_missing"`
	New             int       `json:"new"`
	Removed         int       `json:"removed"`
	Increased       int       `json:"increased"`
	Decreased       int       `json:"decreased"`
	DriftRatio      string    `json:"drift_ratio,omitempty"`
	Degraded        bool      `json:"degraded"`
}

// Broadcaster fans out events to all subscribers via buffered channels.
type Broadcaster[T any] struct {
	mu     sync.RWMutex
	subs   map[chan T]struct{}
	buffer int
}

// NewBroadcaster creates a broadcaster with the given per-subscriber buffer.
func NewBroadcaster[T any](buffer int) *Broadcaster[T] {
	if buffer < 1 {
		buffer = 64
	}
	return &Broadcaster[T]{
		subs:   make(map[chan T]struct{}),
		buffer: buffer,
	}
}

// Publish sends the event to all subscribers, dropping it for slow readers.
func (b *Broadcaster[T]) Publish(e T) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
			// drop slow consumer
		}
	}
}

// Subscribe returns a channel that receives events until Unsubscribe is called.
func (b *Broadcaster[T]) Subscribe() chan T {
	ch := make(chan T, b.buffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes the channel and closes it.
func (b *Broadcaster[T]) Unsubscribe(ch chan T) {
	b.mu.Lock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
	b.mu.Unlock()
}

// Subscribers returns the number of active subscriptions.
func (b *Broadcaster[T]) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
