package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/consulta-pay/consulta_pay/internal/apperr"
)

func TestInMemoryStore_AppendKeepsAggregateInLockstep(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()

	if _, err := s.CreateAccount(ctx, "client-1", OwnerClient); err != nil {
		t.Fatalf("create account: %v", err)
	}

	entry, err := s.Append(ctx, AppendInput{OwnerID: "client-1", Type: TypeRecharge, Amount: 10_000, Reference: "r-1"})
	if err != nil {
		t.Fatalf("append recharge: %v", err)
	}
	if entry.BalanceBefore != 0 || entry.BalanceAfter != 10_000 {
		t.Fatalf("unexpected snapshots: before=%d after=%d", entry.BalanceBefore, entry.BalanceAfter)
	}

	acc, err := s.Account(ctx, "client-1")
	if err != nil {
		t.Fatalf("account: %v", err)
	}
	if acc.Balance != entry.BalanceAfter {
		t.Fatalf("aggregate %d out of lockstep with entry balanceAfter %d", acc.Balance, entry.BalanceAfter)
	}
	if acc.TotalRecharged != 10_000 {
		t.Fatalf("expected totalRecharged 10000, got %d", acc.TotalRecharged)
	}

	debit, err := s.Append(ctx, AppendInput{OwnerID: "client-1", Type: TypeCharge, Amount: 3_500, Reference: "r-2"})
	if err != nil {
		t.Fatalf("append charge: %v", err)
	}
	acc, _ = s.Account(ctx, "client-1")
	if acc.Balance != 6_500 || debit.BalanceAfter != 6_500 {
		t.Fatalf("expected balance 6500, got aggregate=%d entry=%d", acc.Balance, debit.BalanceAfter)
	}
	if acc.TotalSpent != 3_500 {
		t.Fatalf("expected totalSpent 3500, got %d", acc.TotalSpent)
	}
}

func TestInMemoryStore_DuplicateReference(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	if err := SeedAccount(ctx, s, "client-1", OwnerClient, 5_000); err != nil {
		t.Fatalf("seed: %v", err)
	}

	first, err := s.Append(ctx, AppendInput{OwnerID: "client-1", Type: TypeCharge, Amount: 1_000, Reference: "dup"})
	if err != nil {
		t.Fatalf("first append: %v", err)
	}

	replay, err := s.Append(ctx, AppendInput{OwnerID: "client-1", Type: TypeCharge, Amount: 1_000, Reference: "dup"})
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if replay.ID != first.ID {
		t.Fatalf("replay should return original entry, got %s want %s", replay.ID, first.ID)
	}

	acc, _ := s.Account(ctx, "client-1")
	if acc.Balance != 4_000 {
		t.Fatalf("duplicate must not double-debit, balance=%d", acc.Balance)
	}
}

func TestInMemoryStore_InsufficientBalance(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	if err := SeedAccount(ctx, s, "client-1", OwnerClient, 100); err != nil {
		t.Fatalf("seed: %v", err)
	}

	_, err := s.Append(ctx, AppendInput{OwnerID: "client-1", Type: TypeDeduction, Amount: 101, Reference: "over"})
	if !errors.Is(err, apperr.ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}

	acc, _ := s.Account(ctx, "client-1")
	if acc.Balance != 100 {
		t.Fatalf("failed debit must not change balance, got %d", acc.Balance)
	}
}

func TestInMemoryStore_ConcurrentDebitsNeverGoNegative(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	if err := SeedAccount(ctx, s, "provider-1", OwnerProvider, 10_000); err != nil {
		t.Fatalf("seed: %v", err)
	}

	const workers = 40
	const amount = int64(500) // 40 * 500 = 20000: half must fail

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Append(ctx, AppendInput{
				OwnerID:   "provider-1",
				Type:      TypeWithdrawal,
				Amount:    amount,
				Reference: fmt.Sprintf("wd-%d", i),
			})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			} else if !errors.Is(err, apperr.ErrInsufficientBalance) {
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if succeeded != 20 {
		t.Fatalf("expected exactly 20 successful debits, got %d", succeeded)
	}
	acc, _ := s.Account(ctx, "provider-1")
	if acc.Withdrawable != 0 {
		t.Fatalf("expected withdrawable 0, got %d", acc.Withdrawable)
	}
	if acc.TotalWithdrawn != 10_000 {
		t.Fatalf("expected totalWithdrawn 10000, got %d", acc.TotalWithdrawn)
	}
}

func TestInMemoryStore_Reverse(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	if err := SeedAccount(ctx, s, "client-1", OwnerClient, 5_000); err != nil {
		t.Fatalf("seed: %v", err)
	}

	charge, err := s.Append(ctx, AppendInput{OwnerID: "client-1", Type: TypeCharge, Amount: 2_000, Reference: "c-1"})
	if err != nil {
		t.Fatalf("charge: %v", err)
	}

	rev, err := s.Reverse(ctx, charge.ID)
	if err != nil {
		t.Fatalf("reverse: %v", err)
	}
	if rev.Type != TypeRefund || rev.LinkedEntryID != charge.ID {
		t.Fatalf("unexpected reversal entry: %+v", rev)
	}
	acc, _ := s.Account(ctx, "client-1")
	if acc.Balance != 5_000 {
		t.Fatalf("expected balance restored to 5000, got %d", acc.Balance)
	}

	if _, err := s.Reverse(ctx, charge.ID); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("second reversal should conflict, got %v", err)
	}
}

func TestInMemoryStore_ReversePendingEntryFails(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	if err := SeedAccount(ctx, s, "provider-1", OwnerProvider, 1_000); err != nil {
		t.Fatalf("seed: %v", err)
	}

	hold, err := s.Append(ctx, AppendInput{OwnerID: "provider-1", Type: TypeHold, Amount: 500, Reference: "h-1"})
	if err != nil {
		t.Fatalf("hold: %v", err)
	}
	if _, err := s.Reverse(ctx, hold.ID); !errors.Is(err, apperr.ErrInvalidStateTransition) {
		t.Fatalf("expected invalid state transition, got %v", err)
	}
}

func TestInMemoryStore_HoldAndRelease(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	if err := SeedAccount(ctx, s, "provider-1", OwnerProvider, 2_000); err != nil {
		t.Fatalf("seed: %v", err)
	}

	hold, err := s.Append(ctx, AppendInput{OwnerID: "provider-1", Type: TypeHold, Amount: 1_500, Reference: "h-1"})
	if err != nil {
		t.Fatalf("hold: %v", err)
	}
	if hold.Status != EntryPending {
		t.Fatalf("hold should be pending, got %s", hold.Status)
	}

	acc, _ := s.Account(ctx, "provider-1")
	if acc.PendingWithdrawal != 1_500 {
		t.Fatalf("expected pendingWithdrawal 1500, got %d", acc.PendingWithdrawal)
	}
	if acc.Withdrawable != 2_000 {
		t.Fatalf("hold must not reduce withdrawable, got %d", acc.Withdrawable)
	}

	released, err := s.ReleaseHold(ctx, hold.ID)
	if err != nil {
		t.Fatalf("release hold: %v", err)
	}
	if released.Status != EntryCancelled {
		t.Fatalf("released hold should be cancelled, got %s", released.Status)
	}
	acc, _ = s.Account(ctx, "provider-1")
	if acc.PendingWithdrawal != 0 {
		t.Fatalf("expected pendingWithdrawal 0 after release, got %d", acc.PendingWithdrawal)
	}

	if _, err := s.ReleaseHold(ctx, hold.ID); !errors.Is(err, apperr.ErrInvalidStateTransition) {
		t.Fatalf("double release should fail, got %v", err)
	}
}

func TestInMemoryStore_WithdrawalCompletesLinkedHold(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	if err := SeedAccount(ctx, s, "provider-1", OwnerProvider, 1_000); err != nil {
		t.Fatalf("seed: %v", err)
	}

	hold, err := s.Append(ctx, AppendInput{OwnerID: "provider-1", Type: TypeHold, Amount: 1_000, Reference: "h-1"})
	if err != nil {
		t.Fatalf("hold: %v", err)
	}

	wd, err := s.Append(ctx, AppendInput{
		OwnerID: "provider-1", Type: TypeWithdrawal, Amount: 1_000,
		Reference: "wd-1", LinkedEntryID: hold.ID,
	})
	if err != nil {
		t.Fatalf("withdrawal: %v", err)
	}
	if wd.BalanceAfter != 0 {
		t.Fatalf("expected balanceAfter 0, got %d", wd.BalanceAfter)
	}

	settled, _ := s.Entry(ctx, hold.ID)
	if settled.Status != EntryCompleted {
		t.Fatalf("linked hold should complete with withdrawal, got %s", settled.Status)
	}
	acc, _ := s.Account(ctx, "provider-1")
	if acc.PendingWithdrawal != 0 || acc.Withdrawable != 0 || acc.TotalWithdrawn != 1_000 {
		t.Fatalf("unexpected aggregate after settlement: %+v", acc)
	}
}

func TestInMemoryStore_EntriesFilterAndPaging(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	if err := SeedAccount(ctx, s, "client-1", OwnerClient, 10_000); err != nil {
		t.Fatalf("seed: %v", err)
	}

	for i := 0; i < 5; i++ {
		if _, err := s.Append(ctx, AppendInput{
			OwnerID: "client-1", Type: TypeCharge, Amount: 100,
			Reference: fmt.Sprintf("c-%d", i),
		}); err != nil {
			t.Fatalf("charge %d: %v", i, err)
		}
	}

	entries, total, err := s.Entries(ctx, Filter{OwnerID: "client-1", Type: TypeCharge, Page: 1, Limit: 2})
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if total != 5 {
		t.Fatalf("expected total 5, got %d", total)
	}
	if len(entries) != 2 {
		t.Fatalf("expected page of 2, got %d", len(entries))
	}
	// Newest first.
	if entries[0].Reference != "c-4" {
		t.Fatalf("expected newest entry first, got %s", entries[0].Reference)
	}
}
