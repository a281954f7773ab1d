package payout

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/consulta-pay/consulta_pay/internal/apperr"
	"github.com/consulta-pay/consulta_pay/internal/audit"
	"github.com/consulta-pay/consulta_pay/internal/ledger"
	"github.com/consulta-pay/consulta_pay/internal/logging"
	"github.com/consulta-pay/consulta_pay/internal/metrics"
)

const provider = "provider-1"

func newTestService(t *testing.T, withdrawable int64) (*Service, ledger.Store) {
	t.Helper()
	store := ledger.NewInMemory()
	require.NoError(t, ledger.SeedAccount(context.Background(), store, provider, ledger.OwnerProvider, withdrawable))
	svc := NewService(NewMemoryRepository(), store, Bounds{Min: 100, Max: 1_000_000},
		audit.NewMemoryRecorder(), nil, logging.Discard(), metrics.NewNop())
	return svc, store
}

func bank() BankDetails {
	return BankDetails{AccountName: "A Provider", AccountNumber: "0011223344", BankName: "Test Bank", IFSC: "TEST0001"}
}

func TestSubmitValidation(t *testing.T) {
	svc, _ := newTestService(t, 5_000)
	ctx := context.Background()

	_, err := svc.Submit(ctx, SubmitInput{OwnerID: provider, Amount: 50, BankDetails: bank()})
	assert.ErrorIs(t, err, apperr.ErrValidation, "below minimum")

	_, err = svc.Submit(ctx, SubmitInput{OwnerID: provider, Amount: 2_000_000, BankDetails: bank()})
	assert.ErrorIs(t, err, apperr.ErrValidation, "above maximum")

	_, err = svc.Submit(ctx, SubmitInput{OwnerID: provider, Amount: 500})
	assert.ErrorIs(t, err, apperr.ErrValidation, "missing bank details")

	_, err = svc.Submit(ctx, SubmitInput{OwnerID: provider, Amount: 6_000, BankDetails: bank()})
	assert.ErrorIs(t, err, apperr.ErrInsufficientBalance, "exceeds withdrawable")
}

func TestSubmitRejectsClientWallets(t *testing.T) {
	svc, store := newTestService(t, 0)
	ctx := context.Background()
	require.NoError(t, ledger.SeedAccount(ctx, store, "client-1", ledger.OwnerClient, 10_000))

	_, err := svc.Submit(ctx, SubmitInput{OwnerID: "client-1", Amount: 500, BankDetails: bank()})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestFullLifecycle(t *testing.T) {
	svc, store := newTestService(t, 1_000)
	ctx := context.Background()

	req, err := svc.Submit(ctx, SubmitInput{OwnerID: provider, Amount: 1_000, BankDetails: bank()})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, req.Status)

	acc, err := store.Account(ctx, provider)
	require.NoError(t, err)
	assert.Equal(t, int64(1_000), acc.Withdrawable, "submit must not move money")
	assert.Equal(t, int64(1_000), acc.PendingWithdrawal)

	req, err = svc.Approve(ctx, req.ID, "admin-1", "ref-42")
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, req.Status)
	assert.Equal(t, "admin-1", req.ReviewedBy)
	require.NotNil(t, req.ApprovedAt)

	req, err = svc.Process(ctx, req.ID, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, req.Status)

	acc, _ = store.Account(ctx, provider)
	assert.Equal(t, int64(1_000), acc.Withdrawable, "processing must not move money")

	req, err = svc.Complete(ctx, req.ID, "admin-1", "utr-777")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, req.Status)
	assert.Equal(t, "utr-777", req.BankReference)

	acc, _ = store.Account(ctx, provider)
	assert.Equal(t, int64(0), acc.Withdrawable)
	assert.Equal(t, int64(1_000), acc.TotalWithdrawn)
	assert.Equal(t, int64(0), acc.PendingWithdrawal)

	// The withdrawal debit is on the ledger, linked to the hold.
	entries, _, err := store.Entries(ctx, ledger.Filter{OwnerID: provider, Type: ledger.TypeWithdrawal})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, req.HoldEntryID, entries[0].LinkedEntryID)
}

func TestCompleteOnPendingFails(t *testing.T) {
	svc, _ := newTestService(t, 1_000)
	ctx := context.Background()

	req, err := svc.Submit(ctx, SubmitInput{OwnerID: provider, Amount: 500, BankDetails: bank()})
	require.NoError(t, err)

	_, err = svc.Complete(ctx, req.ID, "admin-1", "utr-1")
	assert.ErrorIs(t, err, apperr.ErrInvalidStateTransition)

	_, err = svc.Process(ctx, req.ID, "admin-1")
	assert.ErrorIs(t, err, apperr.ErrInvalidStateTransition, "process requires approved")
}

func TestRejectRequiresReasonAndReleasesHold(t *testing.T) {
	svc, store := newTestService(t, 1_000)
	ctx := context.Background()

	req, err := svc.Submit(ctx, SubmitInput{OwnerID: provider, Amount: 500, BankDetails: bank()})
	require.NoError(t, err)

	_, err = svc.Reject(ctx, req.ID, "admin-1", "")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	req, err = svc.Reject(ctx, req.ID, "admin-1", "suspicious bank account")
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, req.Status)
	assert.Equal(t, "suspicious bank account", req.RejectReason)

	acc, _ := store.Account(ctx, provider)
	assert.Equal(t, int64(0), acc.PendingWithdrawal, "rejection releases the hold")
	assert.Equal(t, int64(1_000), acc.Withdrawable, "no balance was ever held")

	_, err = svc.Approve(ctx, req.ID, "admin-1", "")
	assert.ErrorIs(t, err, apperr.ErrInvalidStateTransition, "rejected is terminal")
}

func TestCompleteRevalidatesBalance(t *testing.T) {
	// Two payouts whose combined amount exceeds the withdrawable balance both
	// reach processing; only one can settle.
	svc, store := newTestService(t, 1_000)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 2; i++ {
		req, err := svc.Submit(ctx, SubmitInput{OwnerID: provider, Amount: 800, BankDetails: bank()})
		require.NoError(t, err)
		_, err = svc.Approve(ctx, req.ID, "admin-1", "")
		require.NoError(t, err)
		_, err = svc.Process(ctx, req.ID, "admin-1")
		require.NoError(t, err)
		ids = append(ids, req.ID)
	}

	var wg sync.WaitGroup
	results := make([]error, len(ids))
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, results[i] = svc.Complete(ctx, id, "admin-1", "utr")
		}(i, id)
	}
	wg.Wait()

	succeeded, insufficient := 0, 0
	for _, err := range results {
		switch {
		case err == nil:
			succeeded++
		case assert.ErrorIs(t, err, apperr.ErrInsufficientBalance):
			insufficient++
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, insufficient)

	acc, _ := store.Account(ctx, provider)
	assert.GreaterOrEqual(t, acc.Withdrawable, int64(0), "balance never goes negative")
	assert.Equal(t, int64(200), acc.Withdrawable)
}

func TestTransitionTable(t *testing.T) {
	cases := []struct {
		from, to Status
		ok       bool
	}{
		{StatusPending, StatusApproved, true},
		{StatusPending, StatusRejected, true},
		{StatusPending, StatusProcessing, false},
		{StatusPending, StatusCompleted, false},
		{StatusApproved, StatusProcessing, true},
		{StatusApproved, StatusRejected, true},
		{StatusApproved, StatusCompleted, false},
		{StatusProcessing, StatusCompleted, true},
		{StatusProcessing, StatusRejected, false},
		{StatusCompleted, StatusRejected, false},
		{StatusRejected, StatusApproved, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.ok, tc.from.CanTransitionTo(tc.to), "%s -> %s", tc.from, tc.to)
	}
}
