package stream

import (
	"context"
	"sync"
	"time"
)

// PostingKind labels what produced a posting event.
type PostingKind string

const (
	KindCreate    PostingKind = "create"
	KindUpdate    PostingKind = "update"
	KindDelete    PostingKind = "delete"
	KindImport    PostingKind = "import"
	KindRecompute PostingKind = "recompute"
)

// PostingEvent describes a completed balance posting. The reporting cache
// subscribes to these to invalidate itself; the SSE endpoint relays them to
// clients watching the register.
type PostingEvent struct {
	Kind          PostingKind `json:"kind"`
	CheckbookID   string      `json:"checkbook_id"`
	TransactionID string      `json:"transaction_id,omitempty"`
	AccountIDs    []string    `json:"account_ids,omitempty"`
	Amount        int64       `json:"amount,omitempty"`
	Timestamp     time.Time   `json:"timestamp"`
}

// Stream fan-outs posting events to all active subscribers.
type Stream struct {
	mu   sync.RWMutex
	subs map[int]chan PostingEvent
	next int
}

// New initialises an empty stream.
func New() *Stream {
	return &Stream{subs: make(map[int]chan PostingEvent)}
}

// Subscribe registers a subscriber and returns a channel which will receive
// events. The channel is closed when the provided context ends.
func (s *Stream) Subscribe(ctx context.Context) <-chan PostingEvent {
	ch := make(chan PostingEvent, 16)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// Publish fan-outs the event to all subscribers.
func (s *Stream) Publish(evt PostingEvent) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- evt:
		default:
			// Drop when subscriber is slow to avoid blocking postings.
		}
	}
}
