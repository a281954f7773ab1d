// Package gateway is the connector to the external payment processor. Only
// the refund contract is modelled: the ledger credits a refund solely after
// the gateway confirms it, and a timed-out or failed call is treated as
// no-refund (fail closed).
package gateway

import (
	"context"

	"github.com/google/uuid"
)

// RefundConfirmation is the gateway's answer to a refund request.
type RefundConfirmation struct {
	RefundID string
	Status   string
}

// StatusSucceeded is the only status the ledger accepts as confirmation.
const StatusSucceeded = "succeeded"

// Gateway reverses captured payments on the original instrument.
type Gateway interface {
	Refund(ctx context.Context, paymentReference string, amount int64, reason string) (RefundConfirmation, error)
}

// StaticGateway simulates a gateway that confirms every refund. Used in
// development and tests.
type StaticGateway struct{}

// Refund approves the request with a synthetic reference.
func (StaticGateway) Refund(_ context.Context, _ string, _ int64, _ string) (RefundConfirmation, error) {
	return RefundConfirmation{RefundID: "gw_" + uuid.NewString(), Status: StatusSucceeded}, nil
}
