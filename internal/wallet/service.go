// Package wallet exposes the account-level operations over the ledger store:
// registration, aggregate reads, statements, admin adjustments and session
// charges. All balance mutation flows through the store; this service never
// touches aggregate figures directly.
package wallet

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/consulta-pay/consulta_pay/internal/apperr"
	"github.com/consulta-pay/consulta_pay/internal/audit"
	"github.com/consulta-pay/consulta_pay/internal/ledger"
	"github.com/consulta-pay/consulta_pay/internal/metrics"
	"github.com/consulta-pay/consulta_pay/internal/notification"
)

// Service wires wallet operations over the ledger store.
type Service struct {
	store    ledger.Store
	auditor  audit.Recorder
	notifier notification.Notifier
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewService builds a wallet service instance.
func NewService(store ledger.Store, auditor audit.Recorder, notifier notification.Notifier, logger *slog.Logger, m *metrics.Metrics) *Service {
	return &Service{store: store, auditor: auditor, notifier: notifier, logger: logger, metrics: m}
}

// RegisterInput captures data required to open a wallet account.
type RegisterInput struct {
	OwnerID   string
	OwnerKind ledger.OwnerKind
}

// Register opens a zero-balance account for a newly registered owner.
func (s *Service) Register(ctx context.Context, input RegisterInput) (ledger.Account, error) {
	acc, err := s.store.CreateAccount(ctx, input.OwnerID, input.OwnerKind)
	if err != nil {
		return ledger.Account{}, err
	}
	s.record(ctx, audit.Event{
		ActorID: input.OwnerID, Action: "wallet.register",
		TargetID: acc.OwnerID, TargetType: "wallet_account", Status: "created",
		Details: map[string]string{"owner_kind": string(input.OwnerKind)},
	})
	return acc, nil
}

// Get retrieves the account aggregate.
func (s *Service) Get(ctx context.Context, ownerID string) (ledger.Account, error) {
	return s.store.Account(ctx, ownerID)
}

// Statement returns the owner's entries newest first.
func (s *Service) Statement(ctx context.Context, ownerID string, page, limit int) ([]ledger.Entry, int, error) {
	if _, err := s.store.Account(ctx, ownerID); err != nil {
		return nil, 0, err
	}
	return s.store.Entries(ctx, ledger.Filter{OwnerID: ownerID, Page: page, Limit: limit})
}

// AdjustInput captures an admin balance adjustment.
type AdjustInput struct {
	ActorID   string
	OwnerID   string
	Type      ledger.EntryType
	Amount    int64
	Reference string
	Note      string
}

// Credit applies an admin credit (recharge, bonus or reward).
func (s *Service) Credit(ctx context.Context, input AdjustInput) (ledger.Entry, error) {
	switch input.Type {
	case ledger.TypeRecharge, ledger.TypeBonus, ledger.TypeReward:
	default:
		return ledger.Entry{}, apperr.Validation("type", "type %q is not a credit adjustment", input.Type)
	}
	return s.adjust(ctx, input, notification.KindWalletCredited)
}

// Debit applies an admin debit (deduction or charge).
func (s *Service) Debit(ctx context.Context, input AdjustInput) (ledger.Entry, error) {
	switch input.Type {
	case ledger.TypeDeduction, ledger.TypeCharge:
	default:
		return ledger.Entry{}, apperr.Validation("type", "type %q is not a debit adjustment", input.Type)
	}
	return s.adjust(ctx, input, notification.KindWalletDebited)
}

func (s *Service) adjust(ctx context.Context, input AdjustInput, kind string) (ledger.Entry, error) {
	if input.Reference == "" {
		input.Reference = "adjust:" + uuid.NewString()
	}
	entry, err := s.store.Append(ctx, ledger.AppendInput{
		OwnerID:     input.OwnerID,
		Type:        input.Type,
		Amount:      input.Amount,
		Reference:   input.Reference,
		ExternalRef: input.Note,
	})
	s.countAppend(input.Type, err)
	if err != nil {
		return entry, err
	}

	s.record(ctx, audit.Event{
		ActorID: input.ActorID, Action: "wallet.adjust",
		TargetID: entry.ID, TargetType: "ledger_entry", Status: string(entry.Status),
		Details: map[string]string{
			"owner_id": input.OwnerID,
			"type":     string(input.Type),
			"amount":   fmt.Sprintf("%d", input.Amount),
		},
	})
	s.notify(ctx, notification.Message{
		Kind: kind, OwnerID: input.OwnerID,
		Body: fmt.Sprintf("Your wallet was adjusted by %d (%s)", input.Amount, input.Type),
	})
	return entry, nil
}

// ChargeInput captures a captured consultation payment: the client is debited
// and the provider earns the amount. PaymentRef is the gateway capture
// reference the refund flow reconciles against.
type ChargeInput struct {
	ActorID    string
	ClientID   string
	ProviderID string
	Amount     int64
	PaymentRef string
	Reference  string
}

// ChargeResult carries both sides of a posted session charge.
type ChargeResult struct {
	ClientEntry   ledger.Entry
	ProviderEntry ledger.Entry
}

// Charge debits the client and credits the provider as two linked postings.
// If the provider credit fails after the client debit committed, the debit is
// reversed so the pair never half-applies.
func (s *Service) Charge(ctx context.Context, input ChargeInput) (ChargeResult, error) {
	if input.ClientID == input.ProviderID {
		return ChargeResult{}, apperr.Validation("provider_id", "client and provider must differ")
	}
	if input.Reference == "" {
		input.Reference = "charge:" + uuid.NewString()
	}

	clientEntry, err := s.store.Append(ctx, ledger.AppendInput{
		OwnerID:     input.ClientID,
		Type:        ledger.TypeCharge,
		Amount:      input.Amount,
		Reference:   input.Reference,
		ExternalRef: input.PaymentRef,
	})
	s.countAppend(ledger.TypeCharge, err)
	if err != nil {
		return ChargeResult{}, err
	}

	providerEntry, err := s.store.Append(ctx, ledger.AppendInput{
		OwnerID:       input.ProviderID,
		Type:          ledger.TypeReward,
		Amount:        input.Amount,
		Reference:     input.Reference + ":earn",
		ExternalRef:   input.PaymentRef,
		LinkedEntryID: clientEntry.ID,
	})
	s.countAppend(ledger.TypeReward, err)
	if err != nil {
		// Compensate: the client debit must not stand without the earning.
		if _, revErr := s.store.Reverse(ctx, clientEntry.ID); revErr != nil {
			s.logger.Error("charge compensation failed", "entry_id", clientEntry.ID, "error", revErr)
		}
		return ChargeResult{}, err
	}

	s.record(ctx, audit.Event{
		ActorID: input.ActorID, Action: "wallet.charge",
		TargetID: clientEntry.ID, TargetType: "ledger_entry", Status: "completed",
		Details: map[string]string{
			"client_id":   input.ClientID,
			"provider_id": input.ProviderID,
			"amount":      fmt.Sprintf("%d", input.Amount),
			"payment_ref": input.PaymentRef,
		},
	})
	return ChargeResult{ClientEntry: clientEntry, ProviderEntry: providerEntry}, nil
}

// Reverse undoes a completed entry in full (admin operation).
func (s *Service) Reverse(ctx context.Context, actorID, entryID string) (ledger.Entry, error) {
	entry, err := s.store.Reverse(ctx, entryID)
	if err != nil {
		return ledger.Entry{}, err
	}
	s.record(ctx, audit.Event{
		ActorID: actorID, Action: "ledger.reverse",
		TargetID: entryID, TargetType: "ledger_entry", Status: "reversed",
		Details: map[string]string{"reversal_entry_id": entry.ID},
	})
	return entry, nil
}

// ListEntries is the admin-wide ledger listing.
func (s *Service) ListEntries(ctx context.Context, filter ledger.Filter) ([]ledger.Entry, int, error) {
	return s.store.Entries(ctx, filter)
}

func (s *Service) record(ctx context.Context, event audit.Event) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Record(ctx, event); err != nil {
		s.logger.Warn("audit record failed", "action", event.Action, "error", err)
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

func (s *Service) countAppend(typ ledger.EntryType, err error) {
	if s.metrics == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = apperr.KindOf(err).String()
	}
	s.metrics.LedgerAppends.WithLabelValues(string(typ), outcome).Inc()
}
