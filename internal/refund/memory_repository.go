package refund

import (
	"context"
	"sync"
	"time"

	"github.com/consulta-pay/consulta_pay/internal/apperr"
)

type memoryRepository struct {
	mu           sync.Mutex
	refunds      map[string]Refund
	refundOrder  []string
	cashouts     map[string]CashoutRequest
	cashoutOrder []string
}

// NewMemoryRepository constructs an in-memory repository for tests and local
// development.
func NewMemoryRepository() Repository {
	return &memoryRepository{
		refunds:  make(map[string]Refund),
		cashouts: make(map[string]CashoutRequest),
	}
}

func (r *memoryRepository) CreateRefund(_ context.Context, refund Refund, captured int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var total int64
	for _, rec := range r.refunds {
		if rec.PaymentReference == refund.PaymentReference && rec.Status != StatusFailed {
			total += rec.Amount
		}
	}
	if total+refund.Amount > captured {
		return apperr.Conflict("payment %s already refunded %d of %d captured; %d more would overshoot",
			refund.PaymentReference, total, captured, refund.Amount)
	}

	r.refunds[refund.ID] = refund
	r.refundOrder = append(r.refundOrder, refund.ID)
	return nil
}

func (r *memoryRepository) FinishRefund(_ context.Context, id string, status Status, gatewayRefundID, entryID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.refunds[id]
	if !ok || rec.Status != StatusPending {
		return apperr.NotFound("pending refund %s not found", id)
	}
	rec.Status = status
	rec.GatewayRefundID = gatewayRefundID
	rec.EntryID = entryID
	r.refunds[id] = rec
	return nil
}

func (r *memoryRepository) RefundedTotal(_ context.Context, paymentReference string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var total int64
	for _, rec := range r.refunds {
		if rec.PaymentReference == paymentReference && rec.Status != StatusFailed {
			total += rec.Amount
		}
	}
	return total, nil
}

func (r *memoryRepository) Refunds(_ context.Context, filter Filter) ([]Refund, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var matched []Refund
	for i := len(r.refundOrder) - 1; i >= 0; i-- {
		rec := r.refunds[r.refundOrder[i]]
		if filter.PaymentReference != "" && rec.PaymentReference != filter.PaymentReference {
			continue
		}
		if filter.OwnerID != "" && rec.OwnerID != filter.OwnerID {
			continue
		}
		if filter.Kind != "" && rec.Kind != filter.Kind {
			continue
		}
		matched = append(matched, rec)
	}
	items, total := pageSlice(matched, filter.Page, filter.Limit)
	return items, total, nil
}

func (r *memoryRepository) CreateCashout(_ context.Context, req CashoutRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.cashouts[req.ID]; exists {
		return apperr.Conflict("cash-out request %s already exists", req.ID)
	}
	r.cashouts[req.ID] = req
	r.cashoutOrder = append(r.cashoutOrder, req.ID)
	return nil
}

func (r *memoryRepository) GetCashout(_ context.Context, id string) (CashoutRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.cashouts[id]
	if !ok {
		return CashoutRequest{}, apperr.NotFound("cash-out request %s not found", id)
	}
	return req, nil
}

func (r *memoryRepository) UpdateCashout(_ context.Context, req CashoutRequest, from CashoutStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.cashouts[req.ID]
	if !ok {
		return apperr.NotFound("cash-out request %s not found", req.ID)
	}
	if current.Status != from {
		return apperr.InvalidTransition(string(current.Status),
			"cash-out request %s is no longer %s", req.ID, from)
	}
	req.UpdatedAt = time.Now().UTC()
	r.cashouts[req.ID] = req
	return nil
}

func (r *memoryRepository) Cashouts(_ context.Context, filter CashoutFilter) ([]CashoutRequest, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var matched []CashoutRequest
	for i := len(r.cashoutOrder) - 1; i >= 0; i-- {
		req := r.cashouts[r.cashoutOrder[i]]
		if filter.OwnerID != "" && req.OwnerID != filter.OwnerID {
			continue
		}
		if filter.Status != "" && req.Status != filter.Status {
			continue
		}
		matched = append(matched, req)
	}
	items, total := pageSlice(matched, filter.Page, filter.Limit)
	return items, total, nil
}

func pageSlice[T any](items []T, page, limit int) ([]T, int) {
	total := len(items)
	page, limit = normalizePage(page, limit)
	start := (page - 1) * limit
	if start >= total {
		return []T{}, total
	}
	end := start + limit
	if end > total {
		end = total
	}
	return items[start:end], total
}
