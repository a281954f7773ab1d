// Package payout implements the provider withdrawal lifecycle: submission,
// review, bank processing and settlement. Money moves exactly once, at
// completion, through a ledger withdrawal debit.
package payout

import (
	"time"

	"github.com/consulta-pay/consulta_pay/internal/apperr"
)

// Status is the lifecycle state of a payout request.
type Status string

const (
	StatusPending    Status = "pending"
	StatusApproved   Status = "approved"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusRejected   Status = "rejected"
)

// transitions is the single source of truth for allowed lifecycle moves.
// completed and rejected are terminal.
var transitions = map[Status][]Status{
	StatusPending:    {StatusApproved, StatusRejected},
	StatusApproved:   {StatusProcessing, StatusRejected},
	StatusProcessing: {StatusCompleted},
}

// CanTransitionTo reports whether the move s -> to is allowed.
func (s Status) CanTransitionTo(to Status) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// ensureTransition refuses a move the table does not allow, carrying the
// current state back to the caller.
func ensureTransition(current, to Status) error {
	if !current.CanTransitionTo(to) {
		return apperr.InvalidTransition(string(current), "payout cannot move from %s to %s", current, to)
	}
	return nil
}

// BankDetails is the destination of a payout.
type BankDetails struct {
	AccountName   string `json:"account_name"`
	AccountNumber string `json:"account_number"`
	BankName      string `json:"bank_name"`
	IFSC          string `json:"ifsc"`
}

// Request is one provider withdrawal request. HoldEntryID points at the
// pending ledger hold raising the provider's pending-withdrawal figure; the
// hold settles or releases with the request.
type Request struct {
	ID            string
	OwnerID       string
	Amount        int64
	BankDetails   BankDetails
	Status        Status
	HoldEntryID   string
	ReviewedBy    string
	Reference     string
	BankReference string
	RejectReason  string
	SubmittedAt   time.Time
	ApprovedAt    *time.Time
	ProcessedAt   *time.Time
	CompletedAt   *time.Time
	RejectedAt    *time.Time
	UpdatedAt     time.Time
}
