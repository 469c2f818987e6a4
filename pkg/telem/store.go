// Package telem keeps recent system events (reading batches collected,
// pipeline runs, resets) in a RAM ring buffer with time-based retention.
package telem

import (
	"fmt"
	"sync"
	"time"

	"github.com/rfidlab/tagpos/pkg"
)

// Store is a fixed-capacity, time-bounded ring buffer of events.
type Store struct {
	mu sync.RWMutex

	retention time.Duration
	capacity  int

	events []*pkg.Event
	head   int
	size   int

	// Called outside the lock whenever an event is recorded, used to fan
	// events out to MQTT.
	callback func(*pkg.Event)
}

// NewStore creates an event store retaining at most capacity events for at
// most retentionHours hours.
func NewStore(retentionHours, capacity int) (*Store, error) {
	if retentionHours < 1 || retentionHours > 168 {
		return nil, fmt.Errorf("retention_hours must be between 1 and 168")
	}
	if capacity < 1 {
		return nil, fmt.Errorf("capacity must be positive")
	}
	return &Store{
		retention: time.Duration(retentionHours) * time.Hour,
		capacity:  capacity,
		events:    make([]*pkg.Event, capacity),
	}, nil
}

// SetEventCallback registers a function invoked (in its own goroutine) for
// every recorded event.
func (s *Store) SetEventCallback(callback func(*pkg.Event)) {
	s.mu.Lock()
	s.callback = callback
	s.mu.Unlock()
}

// AddEvent records an event, evicting the oldest entry when full.
func (s *Store) AddEvent(event *pkg.Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	s.mu.Lock()
	pos := (s.head + s.size) % s.capacity
	if s.size == s.capacity {
		s.head = (s.head + 1) % s.capacity
	} else {
		s.size++
	}
	s.events[pos] = event
	callback := s.callback
	s.mu.Unlock()

	if callback != nil {
		go callback(event)
	}
}

// Record is a convenience constructor for AddEvent.
func (s *Store) Record(eventType, message string, data map[string]interface{}) {
	s.AddEvent(&pkg.Event{
		Timestamp: time.Now().UTC(),
		Type:      eventType,
		Message:   message,
		Data:      data,
	})
}

// GetEvents returns events newer than since, oldest first, capped at limit
// (0 means no cap). Events older than the retention window are excluded.
func (s *Store) GetEvents(since time.Time, limit int) []*pkg.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := time.Now().Add(-s.retention)
	if since.Before(cutoff) {
		since = cutoff
	}

	out := make([]*pkg.Event, 0, s.size)
	for i := 0; i < s.size; i++ {
		ev := s.events[(s.head+i)%s.capacity]
		if ev == nil || !ev.Timestamp.After(since) {
			continue
		}
		out = append(out, ev)
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// Len returns the number of buffered events.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}
