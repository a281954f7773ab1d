// Package audit records privileged mutations. Recording is best-effort: the
// services log failures and never roll back a financial mutation because the
// audit write failed.
package audit

import (
	"context"
	"time"
)

// Event is one privileged mutation.
type Event struct {
	ID         string
	ActorID    string
	Action     string
	TargetID   string
	TargetType string
	Status     string
	Details    map[string]string
	CreatedAt  time.Time
}

// Recorder persists audit events.
type Recorder interface {
	Record(ctx context.Context, event Event) error
	List(ctx context.Context, page, limit int) ([]Event, int, error)
}
