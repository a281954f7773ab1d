package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryRecorder struct {
	mu     sync.Mutex
	events []Event
}

// NewMemoryRecorder keeps events in memory for tests and development.
func NewMemoryRecorder() Recorder {
	return &memoryRecorder{}
}

func (r *memoryRecorder) Record(_ context.Context, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	event.ID = "au_" + uuid.NewString()
	event.CreatedAt = time.Now().UTC()
	r.events = append(r.events, event)
	return nil
}

func (r *memoryRecorder) List(_ context.Context, page, limit int) ([]Event, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	total := len(r.events)

	// Newest first.
	reversed := make([]Event, 0, total)
	for i := total - 1; i >= 0; i-- {
		reversed = append(reversed, r.events[i])
	}
	start := (page - 1) * limit
	if start >= total {
		return []Event{}, total, nil
	}
	end := start + limit
	if end > total {
		end = total
	}
	return reversed[start:end], total, nil
}

// Events returns every recorded event, for test assertions.
func Events(r Recorder) []Event {
	if mem, ok := r.(*memoryRecorder); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		out := make([]Event, len(mem.events))
		copy(out, mem.events)
		return out
	}
	return nil
}
