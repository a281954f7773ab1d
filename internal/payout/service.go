package payout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/consulta-pay/consulta_pay/internal/apperr"
	"github.com/consulta-pay/consulta_pay/internal/audit"
	"github.com/consulta-pay/consulta_pay/internal/ledger"
	"github.com/consulta-pay/consulta_pay/internal/metrics"
	"github.com/consulta-pay/consulta_pay/internal/notification"
)

// Bounds is the configured [min, max] window a submitted payout must fall in.
type Bounds struct {
	Min int64
	Max int64
}

// Service drives the payout lifecycle over the repository and the ledger.
type Service struct {
	repo     Repository
	store    ledger.Store
	bounds   Bounds
	auditor  audit.Recorder
	notifier notification.Notifier
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewService builds a payout service.
func NewService(repo Repository, store ledger.Store, bounds Bounds, auditor audit.Recorder,
	notifier notification.Notifier, logger *slog.Logger, m *metrics.Metrics) *Service {
	return &Service{repo: repo, store: store, bounds: bounds, auditor: auditor,
		notifier: notifier, logger: logger, metrics: m}
}

// SubmitInput captures a provider's withdrawal request.
type SubmitInput struct {
	OwnerID     string
	Amount      int64
	BankDetails BankDetails
}

// Submit validates the request against the configured bounds and the current
// withdrawable balance, places a pending hold and creates the request. The
// balance is only checked here, not reserved: the authoritative check happens
// again at completion.
func (s *Service) Submit(ctx context.Context, input SubmitInput) (Request, error) {
	if input.Amount < s.bounds.Min || input.Amount > s.bounds.Max {
		return Request{}, apperr.Validation("amount",
			"amount %d is outside the allowed payout range [%d, %d]", input.Amount, s.bounds.Min, s.bounds.Max)
	}
	if input.BankDetails.AccountNumber == "" || input.BankDetails.AccountName == "" {
		return Request{}, apperr.Validation("bank_details", "account name and number are required")
	}

	acc, err := s.store.Account(ctx, input.OwnerID)
	if err != nil {
		return Request{}, err
	}
	if acc.OwnerKind != ledger.OwnerProvider {
		return Request{}, apperr.Validation("owner_id", "only provider wallets can request payouts")
	}
	if acc.Withdrawable < input.Amount {
		return Request{}, apperr.InsufficientBalance(
			"withdrawable balance %d is below requested payout of %d", acc.Withdrawable, input.Amount)
	}

	id := "po_" + uuid.NewString()
	hold, err := s.store.Append(ctx, ledger.AppendInput{
		OwnerID:   input.OwnerID,
		Type:      ledger.TypeHold,
		Amount:    input.Amount,
		Reference: "payout:hold:" + id,
	})
	if err != nil {
		return Request{}, err
	}

	now := time.Now().UTC()
	req := Request{
		ID:          id,
		OwnerID:     input.OwnerID,
		Amount:      input.Amount,
		BankDetails: input.BankDetails,
		Status:      StatusPending,
		HoldEntryID: hold.ID,
		SubmittedAt: now,
		UpdatedAt:   now,
	}
	if err := s.repo.Create(ctx, req); err != nil {
		if _, relErr := s.store.ReleaseHold(ctx, hold.ID); relErr != nil {
			s.logger.Error("orphaned payout hold", "hold_entry_id", hold.ID, "error", relErr)
		}
		return Request{}, err
	}

	s.transitioned(ctx, req, input.OwnerID, "payout.submit", notification.KindPayoutSubmitted,
		fmt.Sprintf("Payout request for %d submitted", input.Amount))
	return req, nil
}

// Approve moves pending -> approved. No balance change.
func (s *Service) Approve(ctx context.Context, id, actorID, reference string) (Request, error) {
	req, err := s.repo.Get(ctx, id)
	if err != nil {
		return Request{}, err
	}
	if err := ensureTransition(req.Status, StatusApproved); err != nil {
		return req, err
	}

	now := time.Now().UTC()
	from := req.Status
	req.Status = StatusApproved
	req.ReviewedBy = actorID
	req.Reference = reference
	req.ApprovedAt = &now
	if err := s.repo.Update(ctx, req, from); err != nil {
		return req, err
	}

	s.transitioned(ctx, req, actorID, "payout.approve", notification.KindPayoutApproved,
		fmt.Sprintf("Payout request for %d approved", req.Amount))
	return req, nil
}

// Process moves approved -> processing: the transfer is in flight at the
// bank. Deliberately separate from approval; still no balance change.
func (s *Service) Process(ctx context.Context, id, actorID string) (Request, error) {
	req, err := s.repo.Get(ctx, id)
	if err != nil {
		return Request{}, err
	}
	if err := ensureTransition(req.Status, StatusProcessing); err != nil {
		return req, err
	}

	now := time.Now().UTC()
	from := req.Status
	req.Status = StatusProcessing
	req.ProcessedAt = &now
	if err := s.repo.Update(ctx, req, from); err != nil {
		return req, err
	}

	s.transitioned(ctx, req, actorID, "payout.process", notification.KindPayoutProcessing,
		fmt.Sprintf("Payout request for %d is being processed", req.Amount))
	return req, nil
}

// Complete settles a processing payout. The withdrawable balance is
// re-validated at this moment inside the ledger append (it may have dropped
// since submission). The debit is idempotency-keyed on the payout id, so a
// completion replayed after a crash between the debit and the status write
// finds the existing entry and finishes the transition instead of
// double-debiting.
func (s *Service) Complete(ctx context.Context, id, actorID, bankReference string) (Request, error) {
	req, err := s.repo.Get(ctx, id)
	if err != nil {
		return Request{}, err
	}
	if err := ensureTransition(req.Status, StatusCompleted); err != nil {
		return req, err
	}

	_, err = s.store.Append(ctx, ledger.AppendInput{
		OwnerID:       req.OwnerID,
		Type:          ledger.TypeWithdrawal,
		Amount:        req.Amount,
		Reference:     "payout:" + req.ID,
		ExternalRef:   bankReference,
		LinkedEntryID: req.HoldEntryID,
	})
	if err != nil && !errors.Is(err, apperr.ErrConflict) {
		return req, err
	}

	now := time.Now().UTC()
	from := req.Status
	req.Status = StatusCompleted
	req.BankReference = bankReference
	req.CompletedAt = &now
	if err := s.repo.Update(ctx, req, from); err != nil {
		return req, err
	}

	s.transitioned(ctx, req, actorID, "payout.complete", notification.KindPayoutCompleted,
		fmt.Sprintf("Payout of %d settled to your bank account", req.Amount))
	return req, nil
}

// Reject terminates a pending or approved payout. No balance was ever held,
// so only the informational hold is released. A reason is required.
func (s *Service) Reject(ctx context.Context, id, actorID, reason string) (Request, error) {
	if reason == "" {
		return Request{}, apperr.Validation("reason", "a rejection reason is required")
	}

	req, err := s.repo.Get(ctx, id)
	if err != nil {
		return Request{}, err
	}
	if err := ensureTransition(req.Status, StatusRejected); err != nil {
		return req, err
	}

	now := time.Now().UTC()
	from := req.Status
	req.Status = StatusRejected
	req.ReviewedBy = actorID
	req.RejectReason = reason
	req.RejectedAt = &now
	if err := s.repo.Update(ctx, req, from); err != nil {
		return req, err
	}

	if _, err := s.store.ReleaseHold(ctx, req.HoldEntryID); err != nil {
		s.logger.Warn("release payout hold failed", "payout_id", req.ID, "error", err)
	}

	s.transitioned(ctx, req, actorID, "payout.reject", notification.KindPayoutRejected,
		fmt.Sprintf("Payout request for %d was rejected: %s", req.Amount, reason))
	return req, nil
}

// Get fetches one payout request.
func (s *Service) Get(ctx context.Context, id string) (Request, error) {
	return s.repo.Get(ctx, id)
}

// List returns payout requests for the admin surface.
func (s *Service) List(ctx context.Context, filter Filter) ([]Request, int, error) {
	return s.repo.List(ctx, filter)
}

func (s *Service) transitioned(ctx context.Context, req Request, actorID, action, kind, body string) {
	if s.metrics != nil {
		s.metrics.PayoutTransitions.WithLabelValues(string(req.Status)).Inc()
	}
	if s.auditor != nil {
		err := s.auditor.Record(ctx, audit.Event{
			ActorID: actorID, Action: action,
			TargetID: req.ID, TargetType: "payout_request", Status: string(req.Status),
			Details: map[string]string{
				"owner_id": req.OwnerID,
				"amount":   fmt.Sprintf("%d", req.Amount),
			},
		})
		if err != nil {
			s.logger.Warn("audit record failed", "action", action, "error", err)
		}
	}
	if s.notifier != nil {
		err := s.notifier.Send(ctx, notification.Message{Kind: kind, OwnerID: req.OwnerID, Body: body})
		if err != nil {
			s.logger.Warn("notification failed", "kind", kind, "error", err)
		}
	}
}
