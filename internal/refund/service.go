package refund

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/consulta-pay/consulta_pay/internal/apperr"
	"github.com/consulta-pay/consulta_pay/internal/audit"
	"github.com/consulta-pay/consulta_pay/internal/gateway"
	"github.com/consulta-pay/consulta_pay/internal/ledger"
	"github.com/consulta-pay/consulta_pay/internal/metrics"
	"github.com/consulta-pay/consulta_pay/internal/notification"
)

// Service reconciles refunds against the ledger and the payment gateway.
type Service struct {
	repo           Repository
	store          ledger.Store
	gw             gateway.Gateway
	gatewayTimeout time.Duration
	auditor        audit.Recorder
	notifier       notification.Notifier
	logger         *slog.Logger
	metrics        *metrics.Metrics
}

// NewService builds a refund service.
func NewService(repo Repository, store ledger.Store, gw gateway.Gateway, gatewayTimeout time.Duration,
	auditor audit.Recorder, notifier notification.Notifier, logger *slog.Logger, m *metrics.Metrics) *Service {
	if gatewayTimeout <= 0 {
		gatewayTimeout = 10 * time.Second
	}
	return &Service{repo: repo, store: store, gw: gw, gatewayTimeout: gatewayTimeout,
		auditor: auditor, notifier: notifier, logger: logger, metrics: m}
}

// RefundInput captures a refund of a captured payment. Percentage selects the
// slice of the captured amount to send back (100 for a full refund).
type RefundInput struct {
	ActorID          string
	PaymentReference string
	Percentage       int
	Reason           string
}

// GatewayRefund reverses (part of) the original charge on the payment
// instrument, then appends the linked ledger credit. The gateway call runs
// outside any ledger lock under its own timeout; a timeout or error fails
// closed and nothing is credited.
func (s *Service) GatewayRefund(ctx context.Context, input RefundInput) (Refund, error) {
	return s.refund(ctx, input, KindGateway)
}

// WalletRefund appends the linked credit directly, without contacting the
// gateway; used when the money should return to the prepaid balance.
func (s *Service) WalletRefund(ctx context.Context, input RefundInput) (Refund, error) {
	return s.refund(ctx, input, KindWallet)
}

func (s *Service) refund(ctx context.Context, input RefundInput, kind Kind) (Refund, error) {
	if input.Percentage < 1 || input.Percentage > 100 {
		return Refund{}, apperr.Validation("percentage", "refund percentage must be between 1 and 100, got %d", input.Percentage)
	}
	if input.PaymentReference == "" {
		return Refund{}, apperr.Validation("payment_reference", "payment reference is required")
	}

	original, err := s.capturedCharge(ctx, input.PaymentReference)
	if err != nil {
		return Refund{}, err
	}

	amount := original.Amount * int64(input.Percentage) / 100
	if amount <= 0 {
		return Refund{}, apperr.Validation("percentage", "refund amount rounds to zero")
	}

	rec := Refund{
		ID:               "rf_" + uuid.NewString(),
		PaymentReference: input.PaymentReference,
		OwnerID:          original.OwnerID,
		Amount:           amount,
		Percentage:       input.Percentage,
		Kind:             kind,
		Status:           StatusPending,
		Reason:           input.Reason,
		CreatedAt:        time.Now().UTC(),
	}
	// Reserve the amount against the captured total before any side effect,
	// so a concurrent refund of the same payment cannot overshoot it.
	if err := s.repo.CreateRefund(ctx, rec, original.Amount); err != nil {
		return Refund{}, err
	}

	var gatewayRefundID string
	if kind == KindGateway {
		conf, err := s.callGateway(ctx, input.PaymentReference, amount, input.Reason)
		if err != nil {
			s.finish(ctx, rec.ID, StatusFailed, "", "")
			return Refund{}, err
		}
		gatewayRefundID = conf.RefundID
	}

	// The credit is idempotency-keyed on the refund (or gateway refund) id,
	// so a retried confirmation cannot double-credit.
	reference := "refund:" + rec.ID
	if gatewayRefundID != "" {
		reference = "refund:gw:" + gatewayRefundID
	}
	entry, err := s.store.Append(ctx, ledger.AppendInput{
		OwnerID:       original.OwnerID,
		Type:          ledger.TypeRefund,
		Amount:        amount,
		Reference:     reference,
		ExternalRef:   input.PaymentReference,
		LinkedEntryID: original.ID,
	})
	if err != nil && !errors.Is(err, apperr.ErrConflict) {
		s.finish(ctx, rec.ID, StatusFailed, gatewayRefundID, "")
		return Refund{}, err
	}

	s.finish(ctx, rec.ID, StatusCompleted, gatewayRefundID, entry.ID)
	rec.Status = StatusCompleted
	rec.GatewayRefundID = gatewayRefundID
	rec.EntryID = entry.ID

	s.record(ctx, input.ActorID, "refund."+string(kind), rec.ID, "refund", string(rec.Status), map[string]string{
		"payment_reference": input.PaymentReference,
		"owner_id":          original.OwnerID,
		"amount":            fmt.Sprintf("%d", amount),
		"percentage":        fmt.Sprintf("%d", input.Percentage),
	})
	s.notify(ctx, notification.Message{
		Kind: notification.KindRefundIssued, OwnerID: original.OwnerID,
		Body: fmt.Sprintf("A refund of %d for payment %s was issued", amount, input.PaymentReference),
	})
	return rec, nil
}

// capturedCharge resolves the completed debit entry a payment reference captured.
func (s *Service) capturedCharge(ctx context.Context, paymentReference string) (ledger.Entry, error) {
	entries, _, err := s.store.Entries(ctx, ledger.Filter{
		ExternalRef: paymentReference,
		Type:        ledger.TypeCharge,
		Status:      ledger.EntryCompleted,
		Page:        1,
		Limit:       1,
	})
	if err != nil {
		return ledger.Entry{}, err
	}
	if len(entries) == 0 {
		return ledger.Entry{}, apperr.NotFound("no captured charge found for payment %s", paymentReference)
	}
	return entries[0], nil
}

func (s *Service) callGateway(ctx context.Context, paymentReference string, amount int64, reason string) (gateway.RefundConfirmation, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	defer cancel()

	start := time.Now()
	conf, err := s.gw.Refund(callCtx, paymentReference, amount, reason)
	if s.metrics != nil {
		s.metrics.GatewayRefundSync.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		if errors.Is(err, apperr.ErrExternalGateway) {
			return gateway.RefundConfirmation{}, err
		}
		return gateway.RefundConfirmation{}, apperr.Gateway(err, "gateway refund for %s did not confirm", paymentReference)
	}
	if conf.Status != gateway.StatusSucceeded {
		return gateway.RefundConfirmation{}, apperr.Gateway(
			fmt.Errorf("gateway status %q", conf.Status), "gateway did not confirm refund for %s", paymentReference)
	}
	return conf, nil
}

// SubmitCashout opens a client's request to convert prepaid balance to cash.
func (s *Service) SubmitCashout(ctx context.Context, ownerID string, amountRequested int64) (CashoutRequest, error) {
	if amountRequested <= 0 {
		return CashoutRequest{}, apperr.Validation("amount_requested", "amount must be positive, got %d", amountRequested)
	}

	acc, err := s.store.Account(ctx, ownerID)
	if err != nil {
		return CashoutRequest{}, err
	}
	if acc.OwnerKind != ledger.OwnerClient {
		return CashoutRequest{}, apperr.Validation("owner_id", "only client wallets can request cash-outs")
	}
	if amountRequested > acc.Balance {
		return CashoutRequest{}, apperr.Validation("amount_requested",
			"requested %d exceeds current balance %d", amountRequested, acc.Balance)
	}

	now := time.Now().UTC()
	req := CashoutRequest{
		ID:                  "rr_" + uuid.NewString(),
		OwnerID:             ownerID,
		AmountRequested:     amountRequested,
		CashBalanceSnapshot: acc.Balance,
		Status:              CashoutPending,
		SubmittedAt:         now,
		UpdatedAt:           now,
	}
	if err := s.repo.CreateCashout(ctx, req); err != nil {
		return CashoutRequest{}, err
	}

	s.record(ctx, ownerID, "cashout.submit", req.ID, "cashout_request", string(req.Status), map[string]string{
		"amount_requested": fmt.Sprintf("%d", amountRequested),
	})
	s.notify(ctx, notification.Message{
		Kind: notification.KindCashoutSubmitted, OwnerID: ownerID,
		Body: fmt.Sprintf("Your cash-out request for %d was received", amountRequested),
	})
	return req, nil
}

// ApproveCashout approves the request, possibly for a lower amount.
func (s *Service) ApproveCashout(ctx context.Context, id, actorID string, amountApproved int64) (CashoutRequest, error) {
	req, err := s.repo.GetCashout(ctx, id)
	if err != nil {
		return CashoutRequest{}, err
	}
	if err := ensureCashoutTransition(req.Status, CashoutApproved); err != nil {
		return req, err
	}
	if amountApproved <= 0 || amountApproved > req.AmountRequested {
		return req, apperr.Validation("amount_approved",
			"approved amount must be in (0, %d], got %d", req.AmountRequested, amountApproved)
	}

	now := time.Now().UTC()
	from := req.Status
	req.Status = CashoutApproved
	req.AmountApproved = amountApproved
	req.ReviewedBy = actorID
	req.ReviewedAt = &now
	if err := s.repo.UpdateCashout(ctx, req, from); err != nil {
		return req, err
	}

	s.record(ctx, actorID, "cashout.approve", req.ID, "cashout_request", string(req.Status), map[string]string{
		"amount_approved": fmt.Sprintf("%d", amountApproved),
	})
	s.notify(ctx, notification.Message{
		Kind: notification.KindCashoutApproved, OwnerID: req.OwnerID,
		Body: fmt.Sprintf("Your cash-out request was approved for %d", amountApproved),
	})
	return req, nil
}

// RejectCashout terminates the request with a reason.
func (s *Service) RejectCashout(ctx context.Context, id, actorID, reason string) (CashoutRequest, error) {
	if reason == "" {
		return CashoutRequest{}, apperr.Validation("reason", "a rejection reason is required")
	}

	req, err := s.repo.GetCashout(ctx, id)
	if err != nil {
		return CashoutRequest{}, err
	}
	if err := ensureCashoutTransition(req.Status, CashoutRejected); err != nil {
		return req, err
	}

	now := time.Now().UTC()
	from := req.Status
	req.Status = CashoutRejected
	req.ReviewedBy = actorID
	req.RejectReason = reason
	req.ReviewedAt = &now
	if err := s.repo.UpdateCashout(ctx, req, from); err != nil {
		return req, err
	}

	s.record(ctx, actorID, "cashout.reject", req.ID, "cashout_request", string(req.Status), map[string]string{
		"reason": reason,
	})
	s.notify(ctx, notification.Message{
		Kind: notification.KindCashoutRejected, OwnerID: req.OwnerID,
		Body: "Your cash-out request was rejected: " + reason,
	})
	return req, nil
}

// ProcessCashout moves the money: debits the approved amount from the wallet
// and records the external payment reference of the outbound transfer. The
// debit is idempotency-keyed on the request id.
func (s *Service) ProcessCashout(ctx context.Context, id, actorID, paymentReference string) (CashoutRequest, error) {
	req, err := s.repo.GetCashout(ctx, id)
	if err != nil {
		return CashoutRequest{}, err
	}
	if err := ensureCashoutTransition(req.Status, CashoutProcessed); err != nil {
		return req, err
	}

	entry, err := s.store.Append(ctx, ledger.AppendInput{
		OwnerID:     req.OwnerID,
		Type:        ledger.TypeDeduction,
		Amount:      req.AmountApproved,
		Reference:   "cashout:" + req.ID,
		ExternalRef: paymentReference,
	})
	if err != nil && !errors.Is(err, apperr.ErrConflict) {
		return req, err
	}

	now := time.Now().UTC()
	from := req.Status
	req.Status = CashoutProcessed
	req.PaymentReference = paymentReference
	req.EntryID = entry.ID
	req.ProcessedAt = &now
	if err := s.repo.UpdateCashout(ctx, req, from); err != nil {
		return req, err
	}

	s.record(ctx, actorID, "cashout.process", req.ID, "cashout_request", string(req.Status), map[string]string{
		"owner_id":          req.OwnerID,
		"amount":            fmt.Sprintf("%d", req.AmountApproved),
		"payment_reference": paymentReference,
	})
	s.notify(ctx, notification.Message{
		Kind: notification.KindCashoutProcessed, OwnerID: req.OwnerID,
		Body: fmt.Sprintf("Your cash-out of %d was paid out", req.AmountApproved),
	})
	return req, nil
}

// GetCashout fetches one cash-out request.
func (s *Service) GetCashout(ctx context.Context, id string) (CashoutRequest, error) {
	return s.repo.GetCashout(ctx, id)
}

// Refunds lists refund records for the admin surface.
func (s *Service) Refunds(ctx context.Context, filter Filter) ([]Refund, int, error) {
	return s.repo.Refunds(ctx, filter)
}

// Cashouts lists cash-out requests for the admin surface.
func (s *Service) Cashouts(ctx context.Context, filter CashoutFilter) ([]CashoutRequest, int, error) {
	return s.repo.Cashouts(ctx, filter)
}

func (s *Service) finish(ctx context.Context, id string, status Status, gatewayRefundID, entryID string) {
	if err := s.repo.FinishRefund(ctx, id, status, gatewayRefundID, entryID); err != nil {
		s.logger.Error("finalize refund record failed", "refund_id", id, "status", status, "error", err)
	}
}

func (s *Service) record(ctx context.Context, actorID, action, targetID, targetType, status string, details map[string]string) {
	if s.auditor == nil {
		return
	}
	err := s.auditor.Record(ctx, audit.Event{
		ActorID: actorID, Action: action, TargetID: targetID,
		TargetType: targetType, Status: status, Details: details,
	})
	if err != nil {
		s.logger.Warn("audit record failed", "action", action, "error", err)
	}
}

func (s *Service) notify(ctx context.Context, msg notification.Message) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Send(ctx, msg); err != nil {
		s.logger.Warn("notification failed", "kind", msg.Kind, "error", err)
	}
}
