package payout

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/consulta-pay/consulta_pay/internal/api"
	"github.com/consulta-pay/consulta_pay/internal/apperr"
)

// Handler exposes payout HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a payout HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type submitRequest struct {
	Amount      int64       `json:"amount"`
	BankDetails BankDetails `json:"bank_details"`
}

type payoutResponse struct {
	ID            string      `json:"id"`
	OwnerID       string      `json:"owner_id"`
	Amount        int64       `json:"amount"`
	BankDetails   BankDetails `json:"bank_details"`
	Status        string      `json:"status"`
	ReviewedBy    string      `json:"reviewed_by,omitempty"`
	Reference     string      `json:"reference,omitempty"`
	BankReference string      `json:"bank_reference,omitempty"`
	RejectReason  string      `json:"reject_reason,omitempty"`
	SubmittedAt   time.Time   `json:"submitted_at"`
	ApprovedAt    *time.Time  `json:"approved_at,omitempty"`
	ProcessedAt   *time.Time  `json:"processed_at,omitempty"`
	CompletedAt   *time.Time  `json:"completed_at,omitempty"`
	RejectedAt    *time.Time  `json:"rejected_at,omitempty"`
}

func toPayoutResponse(req Request) payoutResponse {
	return payoutResponse{
		ID:            req.ID,
		OwnerID:       req.OwnerID,
		Amount:        req.Amount,
		BankDetails:   req.BankDetails,
		Status:        string(req.Status),
		ReviewedBy:    req.ReviewedBy,
		Reference:     req.Reference,
		BankReference: req.BankReference,
		RejectReason:  req.RejectReason,
		SubmittedAt:   req.SubmittedAt,
		ApprovedAt:    req.ApprovedAt,
		ProcessedAt:   req.ProcessedAt,
		CompletedAt:   req.CompletedAt,
		RejectedAt:    req.RejectedAt,
	}
}

// Submit creates a payout request for the authenticated provider.
func (h *Handler) Submit(c *fiber.Ctx) error {
	var req submitRequest
	if err := c.BodyParser(&req); err != nil {
		return api.Fail(c, apperr.Validation("body", "invalid request body"))
	}
	actorID, _ := c.Locals("actor_id").(string)
	created, err := h.service.Submit(c.UserContext(), SubmitInput{
		OwnerID:     actorID,
		Amount:      req.Amount,
		BankDetails: req.BankDetails,
	})
	if err != nil {
		return api.Fail(c, err)
	}
	return c.Status(http.StatusCreated).JSON(toPayoutResponse(created))
}

type reviewRequest struct {
	Reference     string `json:"reference"`
	BankReference string `json:"bank_reference"`
	Reason        string `json:"reason"`
}

// Approve moves a payout from pending to approved.
func (h *Handler) Approve(c *fiber.Ctx) error {
	var req reviewRequest
	_ = c.BodyParser(&req)
	actorID, _ := c.Locals("actor_id").(string)
	updated, err := h.service.Approve(c.UserContext(), c.Params("id"), actorID, req.Reference)
	if err != nil {
		return api.Fail(c, err)
	}
	return c.JSON(toPayoutResponse(updated))
}

// Process marks an approved payout as in flight at the bank.
func (h *Handler) Process(c *fiber.Ctx) error {
	actorID, _ := c.Locals("actor_id").(string)
	updated, err := h.service.Process(c.UserContext(), c.Params("id"), actorID)
	if err != nil {
		return api.Fail(c, err)
	}
	return c.JSON(toPayoutResponse(updated))
}

// Complete settles a processing payout and moves the money.
func (h *Handler) Complete(c *fiber.Ctx) error {
	var req reviewRequest
	_ = c.BodyParser(&req)
	actorID, _ := c.Locals("actor_id").(string)
	updated, err := h.service.Complete(c.UserContext(), c.Params("id"), actorID, req.BankReference)
	if err != nil {
		return api.Fail(c, err)
	}
	return c.JSON(toPayoutResponse(updated))
}

// Reject terminates a pending or approved payout with a reason.
func (h *Handler) Reject(c *fiber.Ctx) error {
	var req reviewRequest
	_ = c.BodyParser(&req)
	actorID, _ := c.Locals("actor_id").(string)
	updated, err := h.service.Reject(c.UserContext(), c.Params("id"), actorID, req.Reason)
	if err != nil {
		return api.Fail(c, err)
	}
	return c.JSON(toPayoutResponse(updated))
}

// Get returns one payout request.
func (h *Handler) Get(c *fiber.Ctx) error {
	req, err := h.service.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return api.Fail(c, err)
	}
	return c.JSON(toPayoutResponse(req))
}

// List returns payout requests for the admin surface.
func (h *Handler) List(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)
	limit := c.QueryInt("limit", 20)
	requests, total, err := h.service.List(c.UserContext(), Filter{
		OwnerID: c.Query("owner_id"),
		Status:  Status(c.Query("status")),
		Page:    page,
		Limit:   limit,
	})
	if err != nil {
		return api.Fail(c, err)
	}
	items := make([]payoutResponse, 0, len(requests))
	for _, r := range requests {
		items = append(items, toPayoutResponse(r))
	}
	return api.List(c, items, api.NewPagination(page, limit, total))
}
