package audit

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/consulta-pay/consulta_pay/internal/api"
)

// Handler exposes the admin audit trail.
type Handler struct {
	recorder Recorder
}

// NewHandler builds an audit HTTP handler.
func NewHandler(recorder Recorder) *Handler {
	return &Handler{recorder: recorder}
}

type eventResponse struct {
	ID         string            `json:"id"`
	ActorID    string            `json:"actor_id"`
	Action     string            `json:"action"`
	TargetID   string            `json:"target_id"`
	TargetType string            `json:"target_type"`
	Status     string            `json:"status"`
	Details    map[string]string `json:"details,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// List returns audit events newest first.
func (h *Handler) List(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)
	limit := c.QueryInt("limit", 20)
	events, total, err := h.recorder.List(c.UserContext(), page, limit)
	if err != nil {
		return api.Fail(c, err)
	}
	out := make([]eventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, eventResponse{
			ID:         e.ID,
			ActorID:    e.ActorID,
			Action:     e.Action,
			TargetID:   e.TargetID,
			TargetType: e.TargetType,
			Status:     e.Status,
			Details:    e.Details,
			CreatedAt:  e.CreatedAt,
		})
	}
	return api.List(c, out, api.NewPagination(page, limit, total))
}
