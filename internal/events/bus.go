// Package events provides simple in-process pub/sub for load-run
// observability.
package events

import (
	"sync"
	"time"
)

// JobEvent marks a lifecycle transition of one load job.
type JobEvent struct {
	JobID   string    `json:"job_id"`
	Stage   string    `json:"stage"`
	Subject string    `json:"subject"`
	Status  string    `json:"status"`
	At      time.Time `json:"at"`
}

// RunEvent carries the tallies of one finished trip cleaning run.
type RunEvent struct {
	JobID    string    `json:"job_id"`
	Raw      int64     `json:"total_raw"`
	Kept     int64     `json:"total_kept"`
	Excluded int64     `json:"total_excluded"`
	At       time.Time `json:"at"`
}

// Bus fans events out to subscribers. Slow subscribers drop events rather
// than block publishers.
type Bus struct {
	mu   sync.RWMutex
	subs []chan any
}

func NewBus() *Bus { return &Bus{} }

func (b *Bus) Subscribe() <-chan any {
	ch := make(chan any, 16)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, ch)
	return ch
}

func (b *Bus) Publish(ev any) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
