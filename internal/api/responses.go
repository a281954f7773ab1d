// Package api holds the response envelopes shared by all HTTP handlers.
package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/consulta-pay/consulta_pay/internal/apperr"
)

// ErrorBody is the wire shape of a failed request. Field and CurrentState are
// present only when they carry actionable detail.
type ErrorBody struct {
	Kind         string `json:"kind"`
	Message      string `json:"message"`
	Field        string `json:"field,omitempty"`
	CurrentState string `json:"current_state,omitempty"`
}

// ErrorResponse wraps ErrorBody.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// Pagination describes the position of a page within a listing.
type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

// ListResponse is the envelope for every paginated admin listing.
type ListResponse struct {
	Items      any        `json:"items"`
	Pagination Pagination `json:"pagination"`
}

// NewPagination computes the page metadata for a listing.
func NewPagination(page, limit, total int) Pagination {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	pages := total / limit
	if total%limit != 0 {
		pages++
	}
	return Pagination{Page: page, Limit: limit, Total: total, Pages: pages}
}

// List writes a paginated listing.
func List(c *fiber.Ctx, items any, p Pagination) error {
	return c.JSON(ListResponse{Items: items, Pagination: p})
}

// Fail maps a taxonomy error to its HTTP status and wire shape. Non-taxonomy
// errors become opaque 500s.
func Fail(c *fiber.Ctx, err error) error {
	status := apperr.HTTPStatus(err)
	body := ErrorBody{Kind: apperr.KindOf(err).String(), Message: "internal error"}
	var e *apperr.Error
	if errors.As(err, &e) {
		body.Message = e.Message
		body.Field = e.Field
		body.CurrentState = e.CurrentState
	}
	return c.Status(status).JSON(ErrorResponse{Error: body})
}
