package middleware

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/consulta-pay/consulta_pay/internal/token"
)

var secret = []byte("test-secret")

func authedApp() *fiber.App {
	app := fiber.New()
	app.Use(Auth(secret))
	app.Get("/me", func(c *fiber.Ctx) error {
		actor, _ := c.Locals("actor_id").(string)
		return c.SendString(actor)
	})
	admin := app.Group("/admin", RequireRole("admin"))
	admin.Get("/ping", func(c *fiber.Ctx) error {
		return c.SendString("pong")
	})
	return app
}

func TestAuthRejectsMissingAndInvalidTokens(t *testing.T) {
	app := authedApp()

	req := httptest.NewRequest(fiber.MethodGet, "/me", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("missing token: expected %d got %d", fiber.StatusUnauthorized, resp.StatusCode)
	}

	req = httptest.NewRequest(fiber.MethodGet, "/me", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer not.a.token")
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("garbage token: expected %d got %d", fiber.StatusUnauthorized, resp.StatusCode)
	}
}

func TestAuthAcceptsSignedToken(t *testing.T) {
	app := authedApp()

	tok, err := token.Sign("client-1", "client", time.Minute, secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	req := httptest.NewRequest(fiber.MethodGet, "/me", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+tok)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected %d got %d", fiber.StatusOK, resp.StatusCode)
	}
}

func TestRequireRole(t *testing.T) {
	app := authedApp()

	clientTok, err := token.Sign("client-1", "client", time.Minute, secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	req := httptest.NewRequest(fiber.MethodGet, "/admin/ping", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+clientTok)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusForbidden {
		t.Fatalf("client on admin route: expected %d got %d", fiber.StatusForbidden, resp.StatusCode)
	}

	adminTok, err := token.Sign("admin-1", "admin", time.Minute, secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	req = httptest.NewRequest(fiber.MethodGet, "/admin/ping", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+adminTok)
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("admin on admin route: expected %d got %d", fiber.StatusOK, resp.StatusCode)
	}
}
