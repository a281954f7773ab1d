package middleware

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/consulta-pay/consulta_pay/internal/token"
)

// Auth validates bearer tokens and stashes the actor id and role for the
// handlers downstream.
func Auth(secret []byte) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		claims, err := token.Verify(strings.TrimSpace(authz[len("Bearer "):]), secret)
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, "invalid token")
		}

		c.Locals("actor_id", claims.Subject)
		c.Locals("actor_role", claims.Role)
		return c.Next()
	}
}

// RequireRole guards a route group to actors carrying the given role.
func RequireRole(role string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actual, _ := c.Locals("actor_role").(string)
		if actual != role {
			return fiber.NewError(http.StatusForbidden, "insufficient permissions")
		}
		return c.Next()
	}
}
