package giftcard

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/consulta-pay/consulta_pay/internal/api"
	"github.com/consulta-pay/consulta_pay/internal/apperr"
)

// Handler exposes gift card HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a gift card HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type cardResponse struct {
	ID             string     `json:"id"`
	Code           string     `json:"code"`
	Amount         int64      `json:"amount"`
	Currency       string     `json:"currency"`
	MaxRedemptions int        `json:"max_redemptions"`
	Redeemed       int        `json:"redeemed"`
	Status         string     `json:"status"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	CreatedBy      string     `json:"created_by,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

func toCardResponse(card Card) cardResponse {
	return cardResponse{
		ID:             card.ID,
		Code:           card.Code,
		Amount:         card.Amount,
		Currency:       card.Currency,
		MaxRedemptions: card.MaxRedemptions,
		Redeemed:       card.Redeemed,
		Status:         string(card.Status),
		ExpiresAt:      card.ExpiresAt,
		CreatedBy:      card.CreatedBy,
		CreatedAt:      card.CreatedAt,
	}
}

type redemptionResponse struct {
	ID        string    `json:"id"`
	CardID    string    `json:"card_id"`
	Code      string    `json:"code"`
	OwnerID   string    `json:"owner_id"`
	Amount    int64     `json:"amount"`
	EntryID   string    `json:"entry_id"`
	CreatedAt time.Time `json:"created_at"`
}

func toRedemptionResponse(red Redemption) redemptionResponse {
	return redemptionResponse{
		ID:        red.ID,
		CardID:    red.CardID,
		Code:      red.Code,
		OwnerID:   red.OwnerID,
		Amount:    red.Amount,
		EntryID:   red.EntryID,
		CreatedAt: red.CreatedAt,
	}
}

type createCardRequest struct {
	Code           string     `json:"code"`
	Amount         int64      `json:"amount"`
	Currency       string     `json:"currency"`
	MaxRedemptions int        `json:"max_redemptions"`
	ExpiresAt      *time.Time `json:"expires_at"`
}

// Create registers a new card (admin).
func (h *Handler) Create(c *fiber.Ctx) error {
	var req createCardRequest
	if err := c.BodyParser(&req); err != nil {
		return api.Fail(c, apperr.Validation("body", "invalid request body"))
	}
	actorID, _ := c.Locals("actor_id").(string)
	card, err := h.service.Create(c.UserContext(), CreateInput{
		ActorID:        actorID,
		Code:           req.Code,
		Amount:         req.Amount,
		Currency:       req.Currency,
		MaxRedemptions: req.MaxRedemptions,
		ExpiresAt:      req.ExpiresAt,
	})
	if err != nil {
		return api.Fail(c, err)
	}
	return c.Status(http.StatusCreated).JSON(toCardResponse(card))
}

type redeemRequest struct {
	Code string `json:"code"`
}

// Redeem credits the authenticated owner with the card amount.
func (h *Handler) Redeem(c *fiber.Ctx) error {
	var req redeemRequest
	if err := c.BodyParser(&req); err != nil {
		return api.Fail(c, apperr.Validation("body", "invalid request body"))
	}
	ownerID, _ := c.Locals("actor_id").(string)
	red, err := h.service.Redeem(c.UserContext(), ownerID, req.Code, ownerID)
	if err != nil {
		return api.Fail(c, err)
	}
	return c.Status(http.StatusCreated).JSON(toRedemptionResponse(red))
}

type setStatusRequest struct {
	Status string `json:"status"`
}

// SetStatus applies an admin status override.
func (h *Handler) SetStatus(c *fiber.Ctx) error {
	var req setStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return api.Fail(c, apperr.Validation("body", "invalid request body"))
	}
	actorID, _ := c.Locals("actor_id").(string)
	card, err := h.service.SetStatus(c.UserContext(), actorID, c.Params("code"), Status(req.Status))
	if err != nil {
		return api.Fail(c, err)
	}
	return c.JSON(toCardResponse(card))
}

// Get fetches one card by code (admin).
func (h *Handler) Get(c *fiber.Ctx) error {
	card, err := h.service.Get(c.UserContext(), c.Params("code"))
	if err != nil {
		return api.Fail(c, err)
	}
	return c.JSON(toCardResponse(card))
}

// List is the admin card listing.
func (h *Handler) List(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)
	limit := c.QueryInt("limit", 20)
	cards, total, err := h.service.Cards(c.UserContext(), Filter{
		Status: Status(c.Query("status")),
		Page:   page,
		Limit:  limit,
	})
	if err != nil {
		return api.Fail(c, err)
	}
	out := make([]cardResponse, 0, len(cards))
	for _, card := range cards {
		out = append(out, toCardResponse(card))
	}
	return api.List(c, out, api.NewPagination(page, limit, total))
}

// Redemptions is the admin redemption history listing.
func (h *Handler) Redemptions(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)
	limit := c.QueryInt("limit", 20)
	reds, total, err := h.service.Redemptions(c.UserContext(), RedemptionFilter{
		CardID:  c.Query("card_id"),
		OwnerID: c.Query("owner_id"),
		Page:    page,
		Limit:   limit,
	})
	if err != nil {
		return api.Fail(c, err)
	}
	out := make([]redemptionResponse, 0, len(reds))
	for _, red := range reds {
		out = append(out, toRedemptionResponse(red))
	}
	return api.List(c, out, api.NewPagination(page, limit, total))
}
