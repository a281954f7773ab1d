package ledger

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/consulta-pay/consulta_pay/internal/apperr"
)

type memoryStore struct {
	mu          sync.Mutex
	accounts    map[string]*Account
	entries     map[string]*Entry
	byReference map[string]string
	order       []string
}

// NewInMemory creates a concurrency-safe in-memory store. It backs unit tests
// and local development without Postgres; the single mutex gives the same
// per-owner serialization guarantee as the row locks in the Postgres backend.
func NewInMemory() Store {
	return &memoryStore{
		accounts:    make(map[string]*Account),
		entries:     make(map[string]*Entry),
		byReference: make(map[string]string),
	}
}

func (s *memoryStore) CreateAccount(_ context.Context, ownerID string, kind OwnerKind) (Account, error) {
	if ownerID == "" {
		return Account{}, apperr.Validation("owner_id", "owner id is required")
	}
	if kind != OwnerClient && kind != OwnerProvider {
		return Account{}, apperr.Validation("owner_kind", "unknown owner kind %q", kind)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[ownerID]; exists {
		return Account{}, apperr.Conflict("wallet account for owner %s already exists", ownerID)
	}
	now := time.Now().UTC()
	acc := &Account{OwnerID: ownerID, OwnerKind: kind, CreatedAt: now, UpdatedAt: now}
	s.accounts[ownerID] = acc
	return *acc, nil
}

func (s *memoryStore) Account(_ context.Context, ownerID string) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[ownerID]
	if !ok {
		return Account{}, apperr.NotFound("wallet account for owner %s not found", ownerID)
	}
	return *acc, nil
}

func (s *memoryStore) Append(_ context.Context, input AppendInput) (Entry, error) {
	if err := validateAppend(input); err != nil {
		return Entry{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, exists := s.byReference[input.Reference]; exists {
		return *s.entries[id], apperr.Conflict("entry with reference %s already recorded", input.Reference)
	}

	acc, ok := s.accounts[input.OwnerID]
	if !ok {
		return Entry{}, apperr.NotFound("wallet account for owner %s not found", input.OwnerID)
	}

	if input.Type != TypeHold && input.Type.Direction() == DirDebit && acc.Available() < input.Amount {
		return Entry{}, apperr.InsufficientBalance("available balance %d is below debit of %d", acc.Available(), input.Amount)
	}

	before, after := apply(acc, input.Type, input.Amount)
	acc.UpdatedAt = time.Now().UTC()

	status := EntryCompleted
	if input.Type == TypeHold {
		status = EntryPending
	}

	entry := &Entry{
		ID:            "le_" + uuid.NewString(),
		OwnerID:       input.OwnerID,
		Type:          input.Type,
		Amount:        input.Amount,
		BalanceBefore: before,
		BalanceAfter:  after,
		Status:        status,
		Reference:     input.Reference,
		LinkedEntryID: input.LinkedEntryID,
		ExternalRef:   input.ExternalRef,
		CreatedAt:     time.Now().UTC(),
	}
	s.entries[entry.ID] = entry
	s.byReference[entry.Reference] = entry.ID
	s.order = append(s.order, entry.ID)

	// A withdrawal settling a pending hold completes that hold; the pending
	// figure was already released by apply.
	if input.Type == TypeWithdrawal && input.LinkedEntryID != "" {
		if hold, ok := s.entries[input.LinkedEntryID]; ok && hold.Type == TypeHold && hold.Status == EntryPending {
			hold.Status = EntryCompleted
		}
	}

	return *entry, nil
}

func (s *memoryStore) Reverse(_ context.Context, entryID string) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.entries[entryID]
	if !ok {
		return Entry{}, apperr.NotFound("ledger entry %s not found", entryID)
	}
	if original.Status != EntryCompleted {
		return Entry{}, apperr.InvalidTransition(string(original.Status), "only completed entries can be reversed")
	}
	for _, id := range s.order {
		if e := s.entries[id]; e.LinkedEntryID == entryID && e.Status == EntryCompleted {
			return Entry{}, apperr.Conflict("entry %s already reversed by %s", entryID, e.ID)
		}
	}

	acc, ok := s.accounts[original.OwnerID]
	if !ok {
		return Entry{}, apperr.NotFound("wallet account for owner %s not found", original.OwnerID)
	}

	typ := reversalType(original.Type)
	if typ.Direction() == DirDebit && acc.Available() < original.Amount {
		return Entry{}, apperr.InsufficientBalance("available balance %d is below reversal debit of %d", acc.Available(), original.Amount)
	}

	before, after := apply(acc, typ, original.Amount)
	acc.UpdatedAt = time.Now().UTC()

	entry := &Entry{
		ID:            "le_" + uuid.NewString(),
		OwnerID:       original.OwnerID,
		Type:          typ,
		Amount:        original.Amount,
		BalanceBefore: before,
		BalanceAfter:  after,
		Status:        EntryCompleted,
		Reference:     "reverse:" + entryID,
		LinkedEntryID: entryID,
		ExternalRef:   original.ExternalRef,
		CreatedAt:     time.Now().UTC(),
	}
	s.entries[entry.ID] = entry
	s.byReference[entry.Reference] = entry.ID
	s.order = append(s.order, entry.ID)
	return *entry, nil
}

func (s *memoryStore) ReleaseHold(_ context.Context, entryID string) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hold, ok := s.entries[entryID]
	if !ok {
		return Entry{}, apperr.NotFound("ledger entry %s not found", entryID)
	}
	if hold.Type != TypeHold {
		return Entry{}, apperr.Validation("entry_id", "entry %s is not a hold", entryID)
	}
	if hold.Status != EntryPending {
		return Entry{}, apperr.InvalidTransition(string(hold.Status), "only pending holds can be released")
	}

	acc := s.accounts[hold.OwnerID]
	acc.PendingWithdrawal -= hold.Amount
	if acc.PendingWithdrawal < 0 {
		acc.PendingWithdrawal = 0
	}
	acc.UpdatedAt = time.Now().UTC()

	hold.Status = EntryCancelled
	return *hold, nil
}

func (s *memoryStore) Entry(_ context.Context, entryID string) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[entryID]
	if !ok {
		return Entry{}, apperr.NotFound("ledger entry %s not found", entryID)
	}
	return *entry, nil
}

func (s *memoryStore) Entries(_ context.Context, filter Filter) ([]Entry, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []Entry
	// Newest first.
	for i := len(s.order) - 1; i >= 0; i-- {
		e := s.entries[s.order[i]]
		if filter.OwnerID != "" && e.OwnerID != filter.OwnerID {
			continue
		}
		if filter.Type != "" && e.Type != filter.Type {
			continue
		}
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		if filter.ExternalRef != "" && !strings.EqualFold(e.ExternalRef, filter.ExternalRef) {
			continue
		}
		matched = append(matched, *e)
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
		return []Entry{}, total, nil
	}
	end := start + limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}
