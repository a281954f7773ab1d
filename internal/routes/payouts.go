package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/consulta-pay/consulta_pay/internal/payout"
)

// RegisterPayoutRoutes wires the payout lifecycle. Providers submit and read
// their own requests; transitions belong to admins.
func RegisterPayoutRoutes(api, admin fiber.Router, h *payout.Handler) {
	api.Post("/payouts", h.Submit)
	api.Get("/payouts/:id", h.Get)

	admin.Get("/payouts", h.List)
	admin.Post("/payouts/:id/approve", h.Approve)
	admin.Post("/payouts/:id/process", h.Process)
	admin.Post("/payouts/:id/complete", h.Complete)
	admin.Post("/payouts/:id/reject", h.Reject)
}
