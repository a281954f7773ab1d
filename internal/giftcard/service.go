package giftcard

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

// Service owns the gift card lifecycle and mints ledger credits on
// redemption.
type Service struct {
	repo     Repository
	store    ledger.Store
	auditor  audit.Recorder
	notifier notification.Notifier
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// NewService builds a gift card service.
func NewService(repo Repository, store ledger.Store, auditor audit.Recorder,
	notifier notification.Notifier, logger *slog.Logger, m *metrics.Metrics) *Service {
	return &Service{repo: repo, store: store, auditor: auditor, notifier: notifier,
		logger: logger, metrics: m, now: func() time.Time { return time.Now().UTC() }}
}

// CreateInput describes a new card.
type CreateInput struct {
	ActorID        string
	Code           string
	Amount         int64
	Currency       string
	MaxRedemptions int
	ExpiresAt      *time.Time
}

// Create registers a card under its normalized code.
func (s *Service) Create(ctx context.Context, input CreateInput) (Card, error) {
	code := NormalizeCode(input.Code)
	if code == "" {
		return Card{}, apperr.Validation("code", "gift card code is required")
	}
	if input.Amount <= 0 {
		return Card{}, apperr.Validation("amount", "amount must be positive, got %d", input.Amount)
	}
	if input.Currency == "" {
		return Card{}, apperr.Validation("currency", "currency is required")
	}
	if input.MaxRedemptions < 1 {
		return Card{}, apperr.Validation("max_redemptions", "max redemptions must be at least 1, got %d", input.MaxRedemptions)
	}
	if input.ExpiresAt != nil && !input.ExpiresAt.After(s.now()) {
		return Card{}, apperr.Validation("expires_at", "expiry must be in the future")
	}

	now := s.now()
	card := Card{
		ID:             "gc_" + uuid.NewString(),
		Code:           code,
		Amount:         input.Amount,
		Currency:       input.Currency,
		MaxRedemptions: input.MaxRedemptions,
		Status:         StatusActive,
		ExpiresAt:      input.ExpiresAt,
		CreatedBy:      input.ActorID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.Create(ctx, card); err != nil {
		return Card{}, err
	}

	s.record(ctx, input.ActorID, "giftcard.create", card.ID, "gift_card", string(card.Status), map[string]string{
		"code":            code,
		"amount":          fmt.Sprintf("%d", input.Amount),
		"max_redemptions": fmt.Sprintf("%d", input.MaxRedemptions),
	})
	return card, nil
}

// Redeem consumes one slot of a card and credits its amount to the owner's
// wallet. The slot consume is atomic with the exhaustion check; if the wallet
// credit fails the slot is handed back.
func (s *Service) Redeem(ctx context.Context, actorID, code, ownerID string) (Redemption, error) {
	code = NormalizeCode(code)
	if code == "" {
		return Redemption{}, apperr.Validation("code", "gift card code is required")
	}
	if ownerID == "" {
		return Redemption{}, apperr.Validation("owner_id", "owner id is required")
	}

	card, err := s.repo.Consume(ctx, code, s.now())
	if err != nil {
		s.countRedemption("rejected")
		return Redemption{}, err
	}

	redemptionID := "gr_" + uuid.NewString()
	entry, err := s.store.Append(ctx, ledger.AppendInput{
		OwnerID:   ownerID,
		Type:      ledger.TypeGiftCard,
		Amount:    card.Amount,
		Reference: "giftcard:" + redemptionID,
	})
	if err != nil && !errors.Is(err, apperr.ErrConflict) {
		if relErr := s.repo.Release(ctx, card.ID); relErr != nil {
			s.logger.Error("release gift card slot failed", "card_id", card.ID, "error", relErr)
		}
		s.countRedemption("failed")
		return Redemption{}, err
	}

	redemption := Redemption{
		ID:        redemptionID,
		CardID:    card.ID,
		Code:      code,
		OwnerID:   ownerID,
		Amount:    card.Amount,
		EntryID:   entry.ID,
		CreatedAt: s.now(),
	}
	if err := s.repo.CreateRedemption(ctx, redemption); err != nil {
		s.logger.Error("record gift card redemption failed", "card_id", card.ID, "error", err)
	}

	s.countRedemption("redeemed")
	s.record(ctx, actorID, "giftcard.redeem", card.ID, "gift_card", string(card.Status), map[string]string{
		"code":     code,
		"owner_id": ownerID,
		"amount":   fmt.Sprintf("%d", card.Amount),
		"entry_id": entry.ID,
	})
	s.notify(ctx, notification.Message{
		Kind: notification.KindGiftCardRedeemed, OwnerID: ownerID,
		Body: fmt.Sprintf("Gift card %s credited %d to your wallet", code, card.Amount),
	})
	return redemption, nil
}

// SetStatus applies an admin override; only active and disabled may be set by
// hand, expiry and exhaustion are derived.
func (s *Service) SetStatus(ctx context.Context, actorID, code string, status Status) (Card, error) {
	if status != StatusActive && status != StatusDisabled {
		return Card{}, apperr.Validation("status", "status must be active or disabled, got %s", status)
	}
	code = NormalizeCode(code)

	card, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		return Card{}, err
	}
	if card.Status == StatusExhausted {
		return card, apperr.InvalidTransition(string(card.Status), "gift card %s is fully redeemed", code)
	}
	if status == StatusActive && card.Expired(s.now()) {
		return card, apperr.InvalidTransition(string(card.Status), "gift card %s has expired", code)
	}

	card, err = s.repo.SetStatus(ctx, code, status)
	if err != nil {
		return Card{}, err
	}

	s.record(ctx, actorID, "giftcard.set_status", card.ID, "gift_card", string(card.Status), map[string]string{
		"code": code,
	})
	return card, nil
}

// Get fetches one card by code.
func (s *Service) Get(ctx context.Context, code string) (Card, error) {
	return s.repo.GetByCode(ctx, NormalizeCode(code))
}

// Cards lists cards for the admin surface.
func (s *Service) Cards(ctx context.Context, filter Filter) ([]Card, int, error) {
	return s.repo.Cards(ctx, filter)
}

// Redemptions lists redemption history for the admin surface.
func (s *Service) Redemptions(ctx context.Context, filter RedemptionFilter) ([]Redemption, int, error) {
	return s.repo.Redemptions(ctx, filter)
}

func (s *Service) countRedemption(outcome string) {
	if s.metrics != nil {
		s.metrics.GiftCardRedemptions.WithLabelValues(outcome).Inc()
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
