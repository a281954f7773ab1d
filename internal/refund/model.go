// Package refund reconciles money going back to clients: gateway refunds to
// the original instrument, direct wallet refunds, and client cash-out
// requests converting prepaid balance to cash.
package refund

import (
	"time"

	"github.com/consulta-pay/consulta_pay/internal/apperr"
)

// Kind distinguishes where the refunded money lands.
type Kind string

const (
	KindGateway Kind = "gateway"
	KindWallet  Kind = "wallet"
)

// Status of one refund record. Pending records reserve their amount against
// the original payment's captured total before the gateway is contacted, so
// two racing refunds cannot overshoot it together.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Refund is one (possibly partial) refund of a captured payment.
type Refund struct {
	ID               string
	PaymentReference string
	OwnerID          string
	Amount           int64
	Percentage       int
	Kind             Kind
	Status           Status
	GatewayRefundID  string
	EntryID          string
	Reason           string
	CreatedAt        time.Time
}

// CashoutStatus is the lifecycle state of a wallet refund request.
type CashoutStatus string

const (
	CashoutPending   CashoutStatus = "pending"
	CashoutApproved  CashoutStatus = "approved"
	CashoutRejected  CashoutStatus = "rejected"
	CashoutProcessed CashoutStatus = "processed"
)

var cashoutTransitions = map[CashoutStatus][]CashoutStatus{
	CashoutPending:  {CashoutApproved, CashoutRejected},
	CashoutApproved: {CashoutProcessed, CashoutRejected},
}

// CanTransitionTo reports whether the move s -> to is allowed.
func (s CashoutStatus) CanTransitionTo(to CashoutStatus) bool {
	for _, next := range cashoutTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

func ensureCashoutTransition(current, to CashoutStatus) error {
	if !current.CanTransitionTo(to) {
		return apperr.InvalidTransition(string(current), "cash-out request cannot move from %s to %s", current, to)
	}
	return nil
}

// CashoutRequest is a client's request to convert prepaid balance to cash.
// AmountApproved may be below AmountRequested (partial approval);
// CashBalanceSnapshot is the balance at submission time, an upper bound on
// the request.
type CashoutRequest struct {
	ID                  string
	OwnerID             string
	AmountRequested     int64
	AmountApproved      int64
	CashBalanceSnapshot int64
	Status              CashoutStatus
	ReviewedBy          string
	RejectReason        string
	PaymentReference    string
	EntryID             string
	SubmittedAt         time.Time
	ReviewedAt          *time.Time
	ProcessedAt         *time.Time
	UpdatedAt           time.Time
}
