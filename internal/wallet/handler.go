package wallet

import (
	"context"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/consulta-pay/consulta_pay/internal/api"
	"github.com/consulta-pay/consulta_pay/internal/apperr"
	"github.com/consulta-pay/consulta_pay/internal/ledger"
)

// Handler exposes wallet HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a wallet HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type registerRequest struct {
	OwnerID   string `json:"owner_id"`
	OwnerKind string `json:"owner_kind"`
}

type accountResponse struct {
	OwnerID           string `json:"owner_id"`
	OwnerKind         string `json:"owner_kind"`
	Balance           int64  `json:"balance"`
	TotalRecharged    int64  `json:"total_recharged"`
	TotalSpent        int64  `json:"total_spent"`
	Withdrawable      int64  `json:"withdrawable"`
	PendingWithdrawal int64  `json:"pending_withdrawal"`
	TotalWithdrawn    int64  `json:"total_withdrawn"`
	TotalEarned       int64  `json:"total_earned"`
}

func toAccountResponse(acc ledger.Account) accountResponse {
	return accountResponse{
		OwnerID:           acc.OwnerID,
		OwnerKind:         string(acc.OwnerKind),
		Balance:           acc.Balance,
		TotalRecharged:    acc.TotalRecharged,
		TotalSpent:        acc.TotalSpent,
		Withdrawable:      acc.Withdrawable,
		PendingWithdrawal: acc.PendingWithdrawal,
		TotalWithdrawn:    acc.TotalWithdrawn,
		TotalEarned:       acc.TotalEarned,
	}
}

type entryResponse struct {
	ID            string    `json:"id"`
	OwnerID       string    `json:"owner_id"`
	Type          string    `json:"type"`
	Direction     string    `json:"direction"`
	Amount        int64     `json:"amount"`
	BalanceBefore int64     `json:"balance_before"`
	BalanceAfter  int64     `json:"balance_after"`
	Status        string    `json:"status"`
	Reference     string    `json:"reference"`
	LinkedEntryID string    `json:"linked_entry_id,omitempty"`
	ExternalRef   string    `json:"external_ref,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

func toEntryResponse(e ledger.Entry) entryResponse {
	return entryResponse{
		ID:            e.ID,
		OwnerID:       e.OwnerID,
		Type:          string(e.Type),
		Direction:     string(e.Type.Direction()),
		Amount:        e.Amount,
		BalanceBefore: e.BalanceBefore,
		BalanceAfter:  e.BalanceAfter,
		Status:        string(e.Status),
		Reference:     e.Reference,
		LinkedEntryID: e.LinkedEntryID,
		ExternalRef:   e.ExternalRef,
		CreatedAt:     e.CreatedAt,
	}
}

func toEntryResponses(entries []ledger.Entry) []entryResponse {
	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toEntryResponse(e))
	}
	return out
}

// Register opens a wallet account for an owner.
func (h *Handler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return api.Fail(c, apperr.Validation("body", "invalid request body"))
	}
	acc, err := h.service.Register(c.UserContext(), RegisterInput{
		OwnerID:   req.OwnerID,
		OwnerKind: ledger.OwnerKind(req.OwnerKind),
	})
	if err != nil {
		return api.Fail(c, err)
	}
	return c.Status(http.StatusCreated).JSON(toAccountResponse(acc))
}

// Get returns the account aggregate.
func (h *Handler) Get(c *fiber.Ctx) error {
	acc, err := h.service.Get(c.UserContext(), c.Params("ownerId"))
	if err != nil {
		return api.Fail(c, err)
	}
	return c.JSON(toAccountResponse(acc))
}

// Statement lists the owner's entries.
func (h *Handler) Statement(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)
	limit := c.QueryInt("limit", 20)
	entries, total, err := h.service.Statement(c.UserContext(), c.Params("ownerId"), page, limit)
	if err != nil {
		return api.Fail(c, err)
	}
	return api.List(c, toEntryResponses(entries), api.NewPagination(page, limit, total))
}

type adjustRequest struct {
	Type      string `json:"type"`
	Amount    int64  `json:"amount"`
	Reference string `json:"reference"`
	Note      string `json:"note"`
}

// Credit applies an admin credit adjustment.
func (h *Handler) Credit(c *fiber.Ctx) error {
	return h.adjust(c, h.service.Credit)
}

// Debit applies an admin debit adjustment.
func (h *Handler) Debit(c *fiber.Ctx) error {
	return h.adjust(c, h.service.Debit)
}

func (h *Handler) adjust(c *fiber.Ctx, op func(ctx context.Context, input AdjustInput) (ledger.Entry, error)) error {
	var req adjustRequest
	if err := c.BodyParser(&req); err != nil {
		return api.Fail(c, apperr.Validation("body", "invalid request body"))
	}
	actorID, _ := c.Locals("actor_id").(string)
	entry, err := op(c.UserContext(), AdjustInput{
		ActorID:   actorID,
		OwnerID:   c.Params("ownerId"),
		Type:      ledger.EntryType(req.Type),
		Amount:    req.Amount,
		Reference: req.Reference,
		Note:      req.Note,
	})
	if err != nil {
		return api.Fail(c, err)
	}
	return c.Status(http.StatusCreated).JSON(toEntryResponse(entry))
}

type chargeRequest struct {
	ClientID   string `json:"client_id"`
	ProviderID string `json:"provider_id"`
	Amount     int64  `json:"amount"`
	PaymentRef string `json:"payment_reference"`
	Reference  string `json:"reference"`
}

// Charge posts a captured session payment: client debit plus provider earning.
func (h *Handler) Charge(c *fiber.Ctx) error {
	var req chargeRequest
	if err := c.BodyParser(&req); err != nil {
		return api.Fail(c, apperr.Validation("body", "invalid request body"))
	}
	actorID, _ := c.Locals("actor_id").(string)
	res, err := h.service.Charge(c.UserContext(), ChargeInput{
		ActorID:    actorID,
		ClientID:   req.ClientID,
		ProviderID: req.ProviderID,
		Amount:     req.Amount,
		PaymentRef: req.PaymentRef,
		Reference:  req.Reference,
	})
	if err != nil {
		return api.Fail(c, err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"client_entry":   toEntryResponse(res.ClientEntry),
		"provider_entry": toEntryResponse(res.ProviderEntry),
	})
}

// ReverseEntry undoes a completed ledger entry (admin).
func (h *Handler) ReverseEntry(c *fiber.Ctx) error {
	actorID, _ := c.Locals("actor_id").(string)
	entry, err := h.service.Reverse(c.UserContext(), actorID, c.Params("entryId"))
	if err != nil {
		return api.Fail(c, err)
	}
	return c.Status(http.StatusCreated).JSON(toEntryResponse(entry))
}

// ListEntries is the admin-wide ledger listing.
func (h *Handler) ListEntries(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)
	limit := c.QueryInt("limit", 20)
	filter := ledger.Filter{
		OwnerID:     c.Query("owner_id"),
		Type:        ledger.EntryType(c.Query("type")),
		Status:      ledger.EntryStatus(c.Query("status")),
		ExternalRef: c.Query("external_ref"),
		Page:        page,
		Limit:       limit,
	}
	entries, total, err := h.service.ListEntries(c.UserContext(), filter)
	if err != nil {
		return api.Fail(c, err)
	}
	return api.List(c, toEntryResponses(entries), api.NewPagination(page, limit, total))
}
