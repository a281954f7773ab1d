package giftcard

import (
	"context"
	"sync"
	"time"

	"github.com/consulta-pay/consulta_pay/internal/apperr"
)

type memoryRepository struct {
	mu              sync.Mutex
	cards           map[string]Card // keyed by code
	cardOrder       []string
	redemptions     map[string]Redemption
	redemptionOrder []string
}

// NewMemoryRepository constructs an in-memory repository for tests and local
// development.
func NewMemoryRepository() Repository {
	return &memoryRepository{
		cards:       make(map[string]Card),
		redemptions: make(map[string]Redemption),
	}
}

func (r *memoryRepository) Create(_ context.Context, card Card) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.cards[card.Code]; exists {
		return apperr.DuplicateCode("gift card code %s already exists", card.Code)
	}
	r.cards[card.Code] = card
	r.cardOrder = append(r.cardOrder, card.Code)
	return nil
}

func (r *memoryRepository) GetByCode(_ context.Context, code string) (Card, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	card, ok := r.cards[code]
	if !ok {
		return Card{}, apperr.NotFound("gift card %s not found", code)
	}
	return card, nil
}

func (r *memoryRepository) Consume(_ context.Context, code string, now time.Time) (Card, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	card, ok := r.cards[code]
	if !ok {
		return Card{}, apperr.NotFound("gift card %s not found", code)
	}
	if card.Status != StatusActive || card.Expired(now) || card.Redeemed >= card.MaxRedemptions {
		return Card{}, classifyUnredeemable(card, now)
	}

	card.Redeemed++
	if card.Redeemed >= card.MaxRedemptions {
		card.Status = StatusExhausted
	}
	card.UpdatedAt = now
	r.cards[code] = card
	return card, nil
}

func (r *memoryRepository) Release(_ context.Context, cardID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for code, card := range r.cards {
		if card.ID != cardID || card.Redeemed == 0 {
			continue
		}
		card.Redeemed--
		if card.Status == StatusExhausted {
			card.Status = StatusActive
		}
		card.UpdatedAt = time.Now().UTC()
		r.cards[code] = card
		return nil
	}
	return nil
}

func (r *memoryRepository) SetStatus(_ context.Context, code string, status Status) (Card, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	card, ok := r.cards[code]
	if !ok {
		return Card{}, apperr.NotFound("gift card %s not found", code)
	}
	card.Status = status
	card.UpdatedAt = time.Now().UTC()
	r.cards[code] = card
	return card, nil
}

func (r *memoryRepository) Cards(_ context.Context, filter Filter) ([]Card, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var matched []Card
	for i := len(r.cardOrder) - 1; i >= 0; i-- {
		card := r.cards[r.cardOrder[i]]
		if filter.Status != "" && card.Status != filter.Status {
			continue
		}
		matched = append(matched, card)
	}
	items, total := pageSlice(matched, filter.Page, filter.Limit)
	return items, total, nil
}

func (r *memoryRepository) CreateRedemption(_ context.Context, redemption Redemption) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.redemptions[redemption.ID] = redemption
	r.redemptionOrder = append(r.redemptionOrder, redemption.ID)
	return nil
}

func (r *memoryRepository) Redemptions(_ context.Context, filter RedemptionFilter) ([]Redemption, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var matched []Redemption
	for i := len(r.redemptionOrder) - 1; i >= 0; i-- {
		red := r.redemptions[r.redemptionOrder[i]]
		if filter.CardID != "" && red.CardID != filter.CardID {
			continue
		}
		if filter.OwnerID != "" && red.OwnerID != filter.OwnerID {
			continue
		}
		matched = append(matched, red)
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
