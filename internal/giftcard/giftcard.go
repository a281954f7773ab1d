// Package giftcard manages bounded-use prepaid codes that mint wallet
// credits on redemption.
package giftcard

import (
	"strings"
	"time"
)

// Status of a gift card. Exhausted is set by the repository the moment the
// redemption counter reaches MaxRedemptions; admins may only toggle between
// active and disabled.
type Status string

const (
	StatusActive    Status = "active"
	StatusDisabled  Status = "disabled"
	StatusExpired   Status = "expired"
	StatusExhausted Status = "exhausted"
)

// Card is one prepaid code. Redeemed counts consumed redemptions and never
// exceeds MaxRedemptions.
type Card struct {
	ID             string
	Code           string
	Amount         int64
	Currency       string
	MaxRedemptions int
	Redeemed       int
	Status         Status
	ExpiresAt      *time.Time
	CreatedBy      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Expired reports whether the card can no longer be redeemed at the given
// instant. A redemption exactly at ExpiresAt is already too late.
func (c Card) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && !now.Before(*c.ExpiresAt)
}

// Redemption is one consumed slot of a card, kept for the admin surface.
type Redemption struct {
	ID        string
	CardID    string
	Code      string
	OwnerID   string
	Amount    int64
	EntryID   string
	CreatedAt time.Time
}

// NormalizeCode maps user input onto the stored form of a code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
