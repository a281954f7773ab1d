package refund

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/consulta-pay/consulta_pay/internal/apperr"
	"github.com/consulta-pay/consulta_pay/internal/audit"
	"github.com/consulta-pay/consulta_pay/internal/gateway"
	"github.com/consulta-pay/consulta_pay/internal/ledger"
	"github.com/consulta-pay/consulta_pay/internal/logging"
	"github.com/consulta-pay/consulta_pay/internal/metrics"
)

const (
	client     = "client-1"
	paymentRef = "pay_123"
)

type failGateway struct{}

func (failGateway) Refund(context.Context, string, int64, string) (gateway.RefundConfirmation, error) {
	return gateway.RefundConfirmation{}, errors.New("connection reset")
}

type declineGateway struct{}

func (declineGateway) Refund(context.Context, string, int64, string) (gateway.RefundConfirmation, error) {
	return gateway.RefundConfirmation{RefundID: "gw_declined", Status: "failed"}, nil
}

type hangGateway struct{}

func (hangGateway) Refund(ctx context.Context, _ string, _ int64, _ string) (gateway.RefundConfirmation, error) {
	<-ctx.Done()
	return gateway.RefundConfirmation{}, ctx.Err()
}

// newTestService seeds a client with 1000, captures a 500 charge under
// paymentRef and returns a service wired to the given gateway.
func newTestService(t *testing.T, gw gateway.Gateway, timeout time.Duration) (*Service, ledger.Store) {
	t.Helper()
	ctx := context.Background()
	store := ledger.NewInMemory()
	require.NoError(t, ledger.SeedAccount(ctx, store, client, ledger.OwnerClient, 1_000))
	_, err := store.Append(ctx, ledger.AppendInput{
		OwnerID:     client,
		Type:        ledger.TypeCharge,
		Amount:      500,
		Reference:   "session:1",
		ExternalRef: paymentRef,
	})
	require.NoError(t, err)

	svc := NewService(NewMemoryRepository(), store, gw, timeout,
		audit.NewMemoryRecorder(), nil, logging.Discard(), metrics.NewNop())
	return svc, store
}

func TestGatewayRefundFull(t *testing.T) {
	svc, store := newTestService(t, gateway.StaticGateway{}, time.Second)
	ctx := context.Background()

	rec, err := svc.GatewayRefund(ctx, RefundInput{
		ActorID: "admin-1", PaymentReference: paymentRef, Percentage: 100, Reason: "session cancelled",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, rec.Status)
	assert.Equal(t, int64(500), rec.Amount)
	assert.NotEmpty(t, rec.GatewayRefundID)

	entry, err := store.Entry(ctx, rec.EntryID)
	require.NoError(t, err)
	assert.Equal(t, ledger.TypeRefund, entry.Type)
	assert.Equal(t, paymentRef, entry.ExternalRef)
	assert.NotEmpty(t, entry.LinkedEntryID, "refund entry links back to the original charge")

	acc, err := store.Account(ctx, client)
	require.NoError(t, err)
	assert.Equal(t, int64(1_000), acc.Balance, "full refund restores the balance")

	// The captured total is exhausted; any further refund overshoots it.
	_, err = svc.GatewayRefund(ctx, RefundInput{PaymentReference: paymentRef, Percentage: 1})
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestRefundPercentageValidation(t *testing.T) {
	svc, _ := newTestService(t, gateway.StaticGateway{}, time.Second)
	ctx := context.Background()

	for _, pct := range []int{0, -5, 101} {
		_, err := svc.GatewayRefund(ctx, RefundInput{PaymentReference: paymentRef, Percentage: pct})
		assert.ErrorIs(t, err, apperr.ErrValidation, "percentage %d", pct)
	}
}

func TestRefundUnknownPayment(t *testing.T) {
	svc, _ := newTestService(t, gateway.StaticGateway{}, time.Second)

	_, err := svc.GatewayRefund(context.Background(), RefundInput{PaymentReference: "pay_missing", Percentage: 50})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestGatewayFailureFailsClosed(t *testing.T) {
	for name, gw := range map[string]gateway.Gateway{
		"transport error": failGateway{},
		"declined":        declineGateway{},
	} {
		t.Run(name, func(t *testing.T) {
			svc, store := newTestService(t, gw, time.Second)
			ctx := context.Background()

			_, err := svc.GatewayRefund(ctx, RefundInput{PaymentReference: paymentRef, Percentage: 50})
			assert.ErrorIs(t, err, apperr.ErrExternalGateway)

			acc, err := store.Account(ctx, client)
			require.NoError(t, err)
			assert.Equal(t, int64(500), acc.Balance, "no credit without confirmation")

			// The failed record no longer reserves the amount.
			total, err := svc.repo.RefundedTotal(ctx, paymentRef)
			require.NoError(t, err)
			assert.Zero(t, total)
		})
	}
}

func TestGatewayTimeoutFailsClosed(t *testing.T) {
	svc, store := newTestService(t, hangGateway{}, 10*time.Millisecond)
	ctx := context.Background()

	_, err := svc.GatewayRefund(ctx, RefundInput{PaymentReference: paymentRef, Percentage: 50})
	assert.ErrorIs(t, err, apperr.ErrExternalGateway)

	acc, err := store.Account(ctx, client)
	require.NoError(t, err)
	assert.Equal(t, int64(500), acc.Balance)
}

func TestPartialRefundsCapAtCaptured(t *testing.T) {
	svc, _ := newTestService(t, gateway.StaticGateway{}, time.Second)
	ctx := context.Background()

	_, err := svc.GatewayRefund(ctx, RefundInput{PaymentReference: paymentRef, Percentage: 60})
	require.NoError(t, err)

	// 60% + 50% > 100%.
	_, err = svc.GatewayRefund(ctx, RefundInput{PaymentReference: paymentRef, Percentage: 50})
	assert.ErrorIs(t, err, apperr.ErrConflict)

	// 60% + 40% exactly exhausts the capture.
	_, err = svc.GatewayRefund(ctx, RefundInput{PaymentReference: paymentRef, Percentage: 40})
	assert.NoError(t, err)
}

func TestWalletRefundSkipsGateway(t *testing.T) {
	// A gateway that would fail proves the wallet path never calls it.
	svc, store := newTestService(t, failGateway{}, time.Second)
	ctx := context.Background()

	rec, err := svc.WalletRefund(ctx, RefundInput{PaymentReference: paymentRef, Percentage: 100})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, rec.Status)
	assert.Empty(t, rec.GatewayRefundID)

	acc, err := store.Account(ctx, client)
	require.NoError(t, err)
	assert.Equal(t, int64(1_000), acc.Balance)
}

func TestCashoutLifecycle(t *testing.T) {
	svc, store := newTestService(t, gateway.StaticGateway{}, time.Second)
	ctx := context.Background()

	req, err := svc.SubmitCashout(ctx, client, 400)
	require.NoError(t, err)
	assert.Equal(t, CashoutPending, req.Status)
	assert.Equal(t, int64(500), req.CashBalanceSnapshot)

	// Processing before approval is refused.
	_, err = svc.ProcessCashout(ctx, req.ID, "admin-1", "bank_tx_9")
	assert.ErrorIs(t, err, apperr.ErrInvalidStateTransition)

	// Partial approval below the requested amount.
	req, err = svc.ApproveCashout(ctx, req.ID, "admin-1", 300)
	require.NoError(t, err)
	assert.Equal(t, CashoutApproved, req.Status)
	assert.Equal(t, int64(300), req.AmountApproved)
	assert.Equal(t, "admin-1", req.ReviewedBy)

	req, err = svc.ProcessCashout(ctx, req.ID, "admin-1", "bank_tx_9")
	require.NoError(t, err)
	assert.Equal(t, CashoutProcessed, req.Status)
	assert.Equal(t, "bank_tx_9", req.PaymentReference)
	assert.NotEmpty(t, req.EntryID)

	acc, err := store.Account(ctx, client)
	require.NoError(t, err)
	assert.Equal(t, int64(200), acc.Balance, "approved amount debited")
}

func TestCashoutValidation(t *testing.T) {
	svc, _ := newTestService(t, gateway.StaticGateway{}, time.Second)
	ctx := context.Background()

	_, err := svc.SubmitCashout(ctx, client, 0)
	assert.ErrorIs(t, err, apperr.ErrValidation, "non-positive amount")

	_, err = svc.SubmitCashout(ctx, client, 600)
	assert.ErrorIs(t, err, apperr.ErrValidation, "above current balance")

	req, err := svc.SubmitCashout(ctx, client, 400)
	require.NoError(t, err)

	_, err = svc.ApproveCashout(ctx, req.ID, "admin-1", 500)
	assert.ErrorIs(t, err, apperr.ErrValidation, "approved above requested")

	_, err = svc.RejectCashout(ctx, req.ID, "admin-1", "")
	assert.ErrorIs(t, err, apperr.ErrValidation, "rejection needs a reason")

	rejected, err := svc.RejectCashout(ctx, req.ID, "admin-1", "unverified bank account")
	require.NoError(t, err)
	assert.Equal(t, CashoutRejected, rejected.Status)

	_, err = svc.ApproveCashout(ctx, req.ID, "admin-1", 100)
	assert.ErrorIs(t, err, apperr.ErrInvalidStateTransition, "rejected is terminal")
}

func TestCashoutRejectsProviderWallets(t *testing.T) {
	svc, store := newTestService(t, gateway.StaticGateway{}, time.Second)
	ctx := context.Background()
	require.NoError(t, ledger.SeedAccount(ctx, store, "provider-1", ledger.OwnerProvider, 5_000))

	_, err := svc.SubmitCashout(ctx, "provider-1", 500)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}
