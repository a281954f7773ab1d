package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/consulta-pay/consulta_pay/internal/wallet"
)

// RegisterWalletRoutes wires wallet and ledger endpoints. Reads are open to
// any authenticated actor; balance-affecting adjustments are admin-only.
func RegisterWalletRoutes(api, admin fiber.Router, h *wallet.Handler) {
	api.Get("/wallets/:ownerId", h.Get)
	api.Get("/wallets/:ownerId/entries", h.Statement)

	admin.Post("/wallets", h.Register)
	admin.Post("/wallets/:ownerId/credit", h.Credit)
	admin.Post("/wallets/:ownerId/debit", h.Debit)
	admin.Post("/charges", h.Charge)
	admin.Get("/ledger/entries", h.ListEntries)
	admin.Post("/ledger/entries/:entryId/reverse", h.ReverseEntry)
}
