package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/consulta-pay/consulta_pay/internal/refund"
)

// RegisterRefundRoutes wires gateway/wallet refunds (admin) and the client
// cash-out request flow.
func RegisterRefundRoutes(api, admin fiber.Router, h *refund.Handler) {
	api.Post("/refund-requests", h.SubmitCashout)
	api.Get("/refund-requests/:id", h.GetCashout)

	admin.Post("/refunds/gateway", h.GatewayRefund)
	admin.Post("/refunds/wallet", h.WalletRefund)
	admin.Get("/refunds", h.ListRefunds)
	admin.Get("/refund-requests", h.ListCashouts)
	admin.Post("/refund-requests/:id/approve", h.ApproveCashout)
	admin.Post("/refund-requests/:id/reject", h.RejectCashout)
	admin.Post("/refund-requests/:id/process", h.ProcessCashout)
}
