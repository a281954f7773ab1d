package payout

import (
	"context"
	"sync"
	"time"

	"github.com/consulta-pay/consulta_pay/internal/apperr"
)

type memoryRepository struct {
	mu      sync.Mutex
	storage map[string]Request
	order   []string
}

// NewMemoryRepository constructs an in-memory repository for tests and local
// development.
func NewMemoryRepository() Repository {
	return &memoryRepository{storage: make(map[string]Request)}
}

func (r *memoryRepository) Create(_ context.Context, req Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.storage[req.ID]; exists {
		return apperr.Conflict("payout request %s already exists", req.ID)
	}
	r.storage[req.ID] = req
	r.order = append(r.order, req.ID)
	return nil
}

func (r *memoryRepository) Get(_ context.Context, id string) (Request, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.storage[id]
	if !ok {
		return Request{}, apperr.NotFound("payout request %s not found", id)
	}
	return req, nil
}

func (r *memoryRepository) Update(_ context.Context, req Request, from Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.storage[req.ID]
	if !ok {
		return apperr.NotFound("payout request %s not found", req.ID)
	}
	if current.Status != from {
		return apperr.InvalidTransition(string(current.Status),
			"payout %s is no longer %s", req.ID, from)
	}
	req.UpdatedAt = time.Now().UTC()
	r.storage[req.ID] = req
	return nil
}

func (r *memoryRepository) List(_ context.Context, filter Filter) ([]Request, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var matched []Request
	// Newest first.
	for i := len(r.order) - 1; i >= 0; i-- {
		req := r.storage[r.order[i]]
		if filter.OwnerID != "" && req.OwnerID != filter.OwnerID {
			continue
		}
		if filter.Status != "" && req.Status != filter.Status {
			continue
		}
		matched = append(matched, req)
	}

	total := len(matched)
	page, limit := filter.Page, filter.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	start := (page - 1) * limit
	if start >= total {
		return []Request{}, total, nil
	}
	end := start + limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}
