package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/consulta-pay/consulta_pay/internal/giftcard"
)

// RegisterGiftCardRoutes wires card administration and redemption.
func RegisterGiftCardRoutes(api, admin fiber.Router, h *giftcard.Handler) {
	api.Post("/giftcards/redeem", h.Redeem)

	admin.Post("/giftcards", h.Create)
	admin.Get("/giftcards", h.List)
	admin.Get("/giftcards/redemptions", h.Redemptions)
	admin.Get("/giftcards/:code", h.Get)
	admin.Post("/giftcards/:code/status", h.SetStatus)
}
