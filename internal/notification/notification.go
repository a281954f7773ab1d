// Package notification delivers owner-facing notifications after financial
// transitions. Delivery is fire-and-forget: a failed send never rolls back
// the mutation that triggered it.
package notification

import (
	"context"
	"log/slog"
)

// Notification kinds emitted by the money-movement services.
const (
	KindPayoutSubmitted  = "payout_submitted"
	KindPayoutApproved   = "payout_approved"
	KindPayoutProcessing = "payout_processing"
	KindPayoutCompleted  = "payout_completed"
	KindPayoutRejected   = "payout_rejected"

	KindRefundIssued      = "refund_issued"
	KindCashoutSubmitted  = "cashout_submitted"
	KindCashoutApproved   = "cashout_approved"
	KindCashoutRejected   = "cashout_rejected"
	KindCashoutProcessed  = "cashout_processed"
	KindGiftCardRedeemed  = "giftcard_redeemed"
	KindWalletCredited    = "wallet_credited"
	KindWalletDebited     = "wallet_debited"
)

// Message describes a notification payload.
type Message struct {
	Kind    string
	OwnerID string
	Body    string
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier is a stub implementation that writes notifications to the logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier stub.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification", "kind", message.Kind, "owner_id", message.OwnerID, "body", message.Body)
	return nil
}
