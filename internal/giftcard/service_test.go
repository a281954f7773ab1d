package giftcard

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/consulta-pay/consulta_pay/internal/apperr"
	"github.com/consulta-pay/consulta_pay/internal/audit"
	"github.com/consulta-pay/consulta_pay/internal/ledger"
	"github.com/consulta-pay/consulta_pay/internal/logging"
	"github.com/consulta-pay/consulta_pay/internal/metrics"
)

func newTestService(t *testing.T, owners ...string) (*Service, ledger.Store) {
	t.Helper()
	store := ledger.NewInMemory()
	for _, owner := range owners {
		require.NoError(t, ledger.SeedAccount(context.Background(), store, owner, ledger.OwnerClient, 0))
	}
	svc := NewService(NewMemoryRepository(), store,
		audit.NewMemoryRecorder(), nil, logging.Discard(), metrics.NewNop())
	return svc, store
}

func TestCreateValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateInput{Code: "  ", Amount: 100, Currency: "INR", MaxRedemptions: 1})
	assert.ErrorIs(t, err, apperr.ErrValidation, "blank code")

	_, err = svc.Create(ctx, CreateInput{Code: "WELCOME", Amount: 0, Currency: "INR", MaxRedemptions: 1})
	assert.ErrorIs(t, err, apperr.ErrValidation, "non-positive amount")

	_, err = svc.Create(ctx, CreateInput{Code: "WELCOME", Amount: 100, Currency: "INR", MaxRedemptions: 0})
	assert.ErrorIs(t, err, apperr.ErrValidation, "zero max redemptions")

	past := time.Now().Add(-time.Hour)
	_, err = svc.Create(ctx, CreateInput{Code: "WELCOME", Amount: 100, Currency: "INR", MaxRedemptions: 1, ExpiresAt: &past})
	assert.ErrorIs(t, err, apperr.ErrValidation, "expiry in the past")
}

func TestCreateNormalizesAndRejectsDuplicates(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	card, err := svc.Create(ctx, CreateInput{Code: "  welcome100 ", Amount: 100, Currency: "INR", MaxRedemptions: 5})
	require.NoError(t, err)
	assert.Equal(t, "WELCOME100", card.Code)

	// Collides after normalization even though the raw input differs.
	_, err = svc.Create(ctx, CreateInput{Code: "Welcome100", Amount: 200, Currency: "INR", MaxRedemptions: 1})
	assert.ErrorIs(t, err, apperr.ErrDuplicateCode)
}

func TestRedeemExhaustsSingleUseCard(t *testing.T) {
	svc, store := newTestService(t, "client-1")
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateInput{ActorID: "admin-1", Code: "ONCE", Amount: 250, Currency: "INR", MaxRedemptions: 1})
	require.NoError(t, err)

	red, err := svc.Redeem(ctx, "client-1", "once", "client-1")
	require.NoError(t, err)
	assert.Equal(t, int64(250), red.Amount)
	assert.NotEmpty(t, red.EntryID)

	acc, err := store.Account(ctx, "client-1")
	require.NoError(t, err)
	assert.Equal(t, int64(250), acc.Balance)

	// Same owner, same code: the single slot is gone.
	_, err = svc.Redeem(ctx, "client-1", "ONCE", "client-1")
	assert.ErrorIs(t, err, apperr.ErrConflict)

	card, err := svc.Get(ctx, "ONCE")
	require.NoError(t, err)
	assert.Equal(t, StatusExhausted, card.Status)
}

func TestConcurrentRedeemsNeverExceedMax(t *testing.T) {
	const max = 5
	owners := make([]string, 20)
	for i := range owners {
		owners[i] = "client-" + string(rune('a'+i))
	}
	svc, store := newTestService(t, owners...)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateInput{Code: "RACE", Amount: 100, Currency: "INR", MaxRedemptions: max})
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make(chan error, len(owners))
	for _, owner := range owners {
		wg.Add(1)
		go func(owner string) {
			defer wg.Done()
			_, err := svc.Redeem(ctx, owner, "RACE", owner)
			results <- err
		}(owner)
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, apperr.ErrConflict)
		}
	}
	assert.Equal(t, max, succeeded)

	card, err := svc.Get(ctx, "RACE")
	require.NoError(t, err)
	assert.Equal(t, max, card.Redeemed)
	assert.Equal(t, StatusExhausted, card.Status)

	var credited int64
	for _, owner := range owners {
		acc, err := store.Account(ctx, owner)
		require.NoError(t, err)
		credited += acc.Balance
	}
	assert.Equal(t, int64(max*100), credited)
}

func TestRedeemExpiryBoundary(t *testing.T) {
	svc, _ := newTestService(t, "client-1")
	ctx := context.Background()

	expiresAt := time.Now().UTC().Add(time.Hour)
	_, err := svc.Create(ctx, CreateInput{Code: "SOON", Amount: 100, Currency: "INR", MaxRedemptions: 3, ExpiresAt: &expiresAt})
	require.NoError(t, err)

	// One tick before expiry still redeems.
	svc.now = func() time.Time { return expiresAt.Add(-time.Nanosecond) }
	_, err = svc.Redeem(ctx, "client-1", "SOON", "client-1")
	require.NoError(t, err)

	// Exactly at expiry is already too late.
	svc.now = func() time.Time { return expiresAt }
	_, err = svc.Redeem(ctx, "client-1", "SOON", "client-1")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestRedeemUnknownAndDisabled(t *testing.T) {
	svc, _ := newTestService(t, "client-1")
	ctx := context.Background()

	_, err := svc.Redeem(ctx, "client-1", "NOPE", "client-1")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = svc.Create(ctx, CreateInput{Code: "PAUSED", Amount: 100, Currency: "INR", MaxRedemptions: 1})
	require.NoError(t, err)
	_, err = svc.SetStatus(ctx, "admin-1", "PAUSED", StatusDisabled)
	require.NoError(t, err)

	_, err = svc.Redeem(ctx, "client-1", "PAUSED", "client-1")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestRedeemReleasesSlotWhenCreditFails(t *testing.T) {
	// No wallet account exists for the owner, so the credit fails and the
	// consumed slot must come back.
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateInput{Code: "ONCE", Amount: 100, Currency: "INR", MaxRedemptions: 1})
	require.NoError(t, err)

	_, err = svc.Redeem(ctx, "ghost", "ONCE", "ghost")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	card, err := svc.Get(ctx, "ONCE")
	require.NoError(t, err)
	assert.Zero(t, card.Redeemed)
	assert.Equal(t, StatusActive, card.Status)
}

func TestSetStatusGuards(t *testing.T) {
	svc, _ := newTestService(t, "client-1")
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateInput{Code: "ONCE", Amount: 100, Currency: "INR", MaxRedemptions: 1})
	require.NoError(t, err)

	_, err = svc.SetStatus(ctx, "admin-1", "ONCE", StatusExpired)
	assert.ErrorIs(t, err, apperr.ErrValidation, "derived statuses cannot be set by hand")

	_, err = svc.Redeem(ctx, "client-1", "ONCE", "client-1")
	require.NoError(t, err)

	_, err = svc.SetStatus(ctx, "admin-1", "ONCE", StatusActive)
	assert.ErrorIs(t, err, apperr.ErrInvalidStateTransition, "exhausted cards stay exhausted")
}

func TestRedemptionHistory(t *testing.T) {
	svc, _ := newTestService(t, "client-1", "client-2")
	ctx := context.Background()

	card, err := svc.Create(ctx, CreateInput{Code: "MULTI", Amount: 100, Currency: "INR", MaxRedemptions: 5})
	require.NoError(t, err)

	_, err = svc.Redeem(ctx, "client-1", "MULTI", "client-1")
	require.NoError(t, err)
	_, err = svc.Redeem(ctx, "client-2", "MULTI", "client-2")
	require.NoError(t, err)

	all, total, err := svc.Redemptions(ctx, RedemptionFilter{CardID: card.ID})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, all, 2)

	mine, total, err := svc.Redemptions(ctx, RedemptionFilter{CardID: card.ID, OwnerID: "client-2"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, mine, 1)
	assert.Equal(t, "client-2", mine[0].OwnerID)
}
