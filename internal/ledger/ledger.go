// Package ledger is the sole writer of balance truth: an append-only log of
// balance-changing entries plus the wallet account aggregates kept in
// lockstep with it. Every other component routes balance mutation through
// Store.Append/Reverse; nothing writes aggregate figures directly.
package ledger

import (
	"context"
	"time"

	"github.com/consulta-pay/consulta_pay/internal/apperr"
)

// OwnerKind distinguishes client prepaid wallets from provider earnings wallets.
type OwnerKind string

const (
	OwnerClient   OwnerKind = "client"
	OwnerProvider OwnerKind = "provider"
)

// EntryType names the business event behind a ledger entry. The direction of
// the posting is implied by the type.
type EntryType string

const (
	TypeRecharge   EntryType = "recharge"
	TypeDeduction  EntryType = "deduction"
	TypeRefund     EntryType = "refund"
	TypeHold       EntryType = "hold"
	TypeCharge     EntryType = "charge"
	TypeBonus      EntryType = "bonus"
	TypeReward     EntryType = "reward"
	TypeWithdrawal EntryType = "withdrawal"
	TypeGiftCard   EntryType = "giftcard"
)

// Direction of a posting relative to the owner's available balance.
type Direction string

const (
	DirCredit Direction = "credit"
	DirDebit  Direction = "debit"
)

// Direction returns the posting direction implied by the entry type. Hold is
// debit-shaped but does not reduce the available balance (see Append).
func (t EntryType) Direction() Direction {
	switch t {
	case TypeRecharge, TypeRefund, TypeBonus, TypeReward, TypeGiftCard:
		return DirCredit
	default:
		return DirDebit
	}
}

// Valid reports whether t is a known entry type.
func (t EntryType) Valid() bool {
	switch t {
	case TypeRecharge, TypeDeduction, TypeRefund, TypeHold, TypeCharge,
		TypeBonus, TypeReward, TypeWithdrawal, TypeGiftCard:
		return true
	}
	return false
}

// EntryStatus is the lifecycle state of a ledger entry. Completed entries are
// immutable; entries are never physically deleted.
type EntryStatus string

const (
	EntryPending   EntryStatus = "pending"
	EntryCompleted EntryStatus = "completed"
	EntryFailed    EntryStatus = "failed"
	EntryCancelled EntryStatus = "cancelled"
)

// Entry is one immutable balance-changing record. Amount is always a positive
// magnitude in the smallest currency unit; BalanceBefore/BalanceAfter snapshot
// the owner's available balance around the posting.
type Entry struct {
	ID            string
	OwnerID       string
	Type          EntryType
	Amount        int64
	BalanceBefore int64
	BalanceAfter  int64
	Status        EntryStatus
	Reference     string
	LinkedEntryID string
	ExternalRef   string
	CreatedAt     time.Time
}

// Account is the denormalized read view for one owner, mutated only inside
// Store operations so it cannot drift from the entry log.
type Account struct {
	OwnerID   string
	OwnerKind OwnerKind

	// Client figures.
	Balance        int64
	TotalRecharged int64
	TotalSpent     int64

	// Provider figures.
	Withdrawable      int64
	PendingWithdrawal int64
	TotalWithdrawn    int64
	TotalEarned       int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Available returns the balance a debit is checked against: the prepaid
// balance for clients, the withdrawable amount for providers.
func (a Account) Available() int64 {
	if a.OwnerKind == OwnerProvider {
		return a.Withdrawable
	}
	return a.Balance
}

// AppendInput describes one posting. Reference is the idempotency key: a
// second append with the same reference returns the stored entry together
// with a Conflict error instead of double-posting.
type AppendInput struct {
	OwnerID       string
	Type          EntryType
	Amount        int64
	Reference     string
	ExternalRef   string
	LinkedEntryID string
}

// Filter narrows paged entry listings for the admin surface.
type Filter struct {
	OwnerID     string
	Type        EntryType
	Status      EntryStatus
	ExternalRef string
	Page        int
	Limit       int
}

// Store is the ledger contract implemented by the Postgres and in-memory
// backends. Append and Reverse are serialized per owner: the entry insert and
// the aggregate update commit as one atomic unit.
type Store interface {
	CreateAccount(ctx context.Context, ownerID string, kind OwnerKind) (Account, error)
	Account(ctx context.Context, ownerID string) (Account, error)
	Append(ctx context.Context, input AppendInput) (Entry, error)
	Reverse(ctx context.Context, entryID string) (Entry, error)
	ReleaseHold(ctx context.Context, entryID string) (Entry, error)
	Entry(ctx context.Context, entryID string) (Entry, error)
	Entries(ctx context.Context, filter Filter) ([]Entry, int, error)
}

// validateAppend applies the input checks shared by all backends.
func validateAppend(input AppendInput) error {
	if input.OwnerID == "" {
		return apperr.Validation("owner_id", "owner id is required")
	}
	if !input.Type.Valid() {
		return apperr.Validation("type", "unknown entry type %q", input.Type)
	}
	if input.Amount <= 0 {
		return apperr.Validation("amount", "amount must be positive, got %d", input.Amount)
	}
	if input.Reference == "" {
		return apperr.Validation("reference", "idempotency reference is required")
	}
	return nil
}

// apply mutates the aggregate for a posting and returns the before/after
// snapshots of the available balance. Hold postings only raise
// PendingWithdrawal and never move the available balance. The caller must
// have verified sufficiency for debits.
func apply(acc *Account, typ EntryType, amount int64) (before, after int64) {
	before = acc.Available()
	if typ == TypeHold {
		acc.PendingWithdrawal += amount
		return before, before
	}

	switch typ.Direction() {
	case DirCredit:
		if acc.OwnerKind == OwnerProvider {
			acc.Withdrawable += amount
			acc.TotalEarned += amount
		} else {
			acc.Balance += amount
			if typ == TypeRecharge {
				acc.TotalRecharged += amount
			}
		}
	default:
		if acc.OwnerKind == OwnerProvider {
			acc.Withdrawable -= amount
			if typ == TypeWithdrawal {
				acc.TotalWithdrawn += amount
				acc.PendingWithdrawal -= amount
				if acc.PendingWithdrawal < 0 {
					acc.PendingWithdrawal = 0
				}
			}
		} else {
			acc.Balance -= amount
			if typ == TypeCharge || typ == TypeDeduction {
				acc.TotalSpent += amount
			}
		}
	}
	return before, acc.Available()
}

// reversalType maps an original entry type to the type of its reversing posting.
func reversalType(original EntryType) EntryType {
	if original.Direction() == DirDebit {
		return TypeRefund
	}
	return TypeDeduction
}
