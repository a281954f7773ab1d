package refund

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/consulta-pay/consulta_pay/internal/api"
	"github.com/consulta-pay/consulta_pay/internal/apperr"
)

// Handler exposes refund and cash-out HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a refund HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type refundRequest struct {
	PaymentReference string `json:"payment_reference"`
	Percentage       int    `json:"percentage"`
	Reason           string `json:"reason"`
}

type refundResponse struct {
	ID               string    `json:"id"`
	PaymentReference string    `json:"payment_reference"`
	OwnerID          string    `json:"owner_id"`
	Amount           int64     `json:"amount"`
	Percentage       int       `json:"percentage"`
	Kind             string    `json:"kind"`
	Status           string    `json:"status"`
	GatewayRefundID  string    `json:"gateway_refund_id,omitempty"`
	EntryID          string    `json:"entry_id,omitempty"`
	Reason           string    `json:"reason,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

func toRefundResponse(r Refund) refundResponse {
	return refundResponse{
		ID:               r.ID,
		PaymentReference: r.PaymentReference,
		OwnerID:          r.OwnerID,
		Amount:           r.Amount,
		Percentage:       r.Percentage,
		Kind:             string(r.Kind),
		Status:           string(r.Status),
		GatewayRefundID:  r.GatewayRefundID,
		EntryID:          r.EntryID,
		Reason:           r.Reason,
		CreatedAt:        r.CreatedAt,
	}
}

// GatewayRefund sends (part of) a captured payment back to the instrument.
func (h *Handler) GatewayRefund(c *fiber.Ctx) error {
	return h.refund(c, KindGateway)
}

// WalletRefund returns (part of) a captured payment to the wallet balance.
func (h *Handler) WalletRefund(c *fiber.Ctx) error {
	return h.refund(c, KindWallet)
}

func (h *Handler) refund(c *fiber.Ctx, kind Kind) error {
	var req refundRequest
	if err := c.BodyParser(&req); err != nil {
		return api.Fail(c, apperr.Validation("body", "invalid request body"))
	}
	actorID, _ := c.Locals("actor_id").(string)
	input := RefundInput{
		ActorID:          actorID,
		PaymentReference: req.PaymentReference,
		Percentage:       req.Percentage,
		Reason:           req.Reason,
	}
	var (
		rec Refund
		err error
	)
	if kind == KindGateway {
		rec, err = h.service.GatewayRefund(c.UserContext(), input)
	} else {
		rec, err = h.service.WalletRefund(c.UserContext(), input)
	}
	if err != nil {
		return api.Fail(c, err)
	}
	return c.Status(http.StatusCreated).JSON(toRefundResponse(rec))
}

// ListRefunds is the admin refund listing.
func (h *Handler) ListRefunds(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)
	limit := c.QueryInt("limit", 20)
	refunds, total, err := h.service.Refunds(c.UserContext(), Filter{
		PaymentReference: c.Query("payment_reference"),
		OwnerID:          c.Query("owner_id"),
		Kind:             Kind(c.Query("kind")),
		Page:             page,
		Limit:            limit,
	})
	if err != nil {
		return api.Fail(c, err)
	}
	out := make([]refundResponse, 0, len(refunds))
	for _, r := range refunds {
		out = append(out, toRefundResponse(r))
	}
	return api.List(c, out, api.NewPagination(page, limit, total))
}

type cashoutResponse struct {
	ID                  string     `json:"id"`
	OwnerID             string     `json:"owner_id"`
	AmountRequested     int64      `json:"amount_requested"`
	AmountApproved      int64      `json:"amount_approved,omitempty"`
	CashBalanceSnapshot int64      `json:"cash_balance_snapshot"`
	Status              string     `json:"status"`
	ReviewedBy          string     `json:"reviewed_by,omitempty"`
	RejectReason        string     `json:"reject_reason,omitempty"`
	PaymentReference    string     `json:"payment_reference,omitempty"`
	EntryID             string     `json:"entry_id,omitempty"`
	SubmittedAt         time.Time  `json:"submitted_at"`
	ReviewedAt          *time.Time `json:"reviewed_at,omitempty"`
	ProcessedAt         *time.Time `json:"processed_at,omitempty"`
}

func toCashoutResponse(req CashoutRequest) cashoutResponse {
	return cashoutResponse{
		ID:                  req.ID,
		OwnerID:             req.OwnerID,
		AmountRequested:     req.AmountRequested,
		AmountApproved:      req.AmountApproved,
		CashBalanceSnapshot: req.CashBalanceSnapshot,
		Status:              string(req.Status),
		ReviewedBy:          req.ReviewedBy,
		RejectReason:        req.RejectReason,
		PaymentReference:    req.PaymentReference,
		EntryID:             req.EntryID,
		SubmittedAt:         req.SubmittedAt,
		ReviewedAt:          req.ReviewedAt,
		ProcessedAt:         req.ProcessedAt,
	}
}

type submitCashoutRequest struct {
	AmountRequested int64 `json:"amount_requested"`
}

// SubmitCashout opens a cash-out request for the authenticated client.
func (h *Handler) SubmitCashout(c *fiber.Ctx) error {
	var req submitCashoutRequest
	if err := c.BodyParser(&req); err != nil {
		return api.Fail(c, apperr.Validation("body", "invalid request body"))
	}
	ownerID, _ := c.Locals("actor_id").(string)
	out, err := h.service.SubmitCashout(c.UserContext(), ownerID, req.AmountRequested)
	if err != nil {
		return api.Fail(c, err)
	}
	return c.Status(http.StatusCreated).JSON(toCashoutResponse(out))
}

type approveCashoutRequest struct {
	AmountApproved int64 `json:"amount_approved"`
}

// ApproveCashout approves a pending request, possibly partially.
func (h *Handler) ApproveCashout(c *fiber.Ctx) error {
	var req approveCashoutRequest
	if err := c.BodyParser(&req); err != nil {
		return api.Fail(c, apperr.Validation("body", "invalid request body"))
	}
	actorID, _ := c.Locals("actor_id").(string)
	out, err := h.service.ApproveCashout(c.UserContext(), c.Params("id"), actorID, req.AmountApproved)
	if err != nil {
		return api.Fail(c, err)
	}
	return c.JSON(toCashoutResponse(out))
}

type rejectCashoutRequest struct {
	Reason string `json:"reason"`
}

// RejectCashout terminates a request with a reason.
func (h *Handler) RejectCashout(c *fiber.Ctx) error {
	var req rejectCashoutRequest
	if err := c.BodyParser(&req); err != nil {
		return api.Fail(c, apperr.Validation("body", "invalid request body"))
	}
	actorID, _ := c.Locals("actor_id").(string)
	out, err := h.service.RejectCashout(c.UserContext(), c.Params("id"), actorID, req.Reason)
	if err != nil {
		return api.Fail(c, err)
	}
	return c.JSON(toCashoutResponse(out))
}

type processCashoutRequest struct {
	PaymentReference string `json:"payment_reference"`
}

// ProcessCashout debits the wallet and records the outbound transfer.
func (h *Handler) ProcessCashout(c *fiber.Ctx) error {
	var req processCashoutRequest
	if err := c.BodyParser(&req); err != nil {
		return api.Fail(c, apperr.Validation("body", "invalid request body"))
	}
	actorID, _ := c.Locals("actor_id").(string)
	out, err := h.service.ProcessCashout(c.UserContext(), c.Params("id"), actorID, req.PaymentReference)
	if err != nil {
		return api.Fail(c, err)
	}
	return c.JSON(toCashoutResponse(out))
}

// GetCashout fetches one cash-out request.
func (h *Handler) GetCashout(c *fiber.Ctx) error {
	out, err := h.service.GetCashout(c.UserContext(), c.Params("id"))
	if err != nil {
		return api.Fail(c, err)
	}
	return c.JSON(toCashoutResponse(out))
}

// ListCashouts is the admin cash-out listing.
func (h *Handler) ListCashouts(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)
	limit := c.QueryInt("limit", 20)
	reqs, total, err := h.service.Cashouts(c.UserContext(), CashoutFilter{
		OwnerID: c.Query("owner_id"),
		Status:  CashoutStatus(c.Query("status")),
		Page:    page,
		Limit:   limit,
	})
	if err != nil {
		return api.Fail(c, err)
	}
	out := make([]cashoutResponse, 0, len(reqs))
	for _, r := range reqs {
		out = append(out, toCashoutResponse(r))
	}
	return api.List(c, out, api.NewPagination(page, limit, total))
}
