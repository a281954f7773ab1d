package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRecorder stores audit events in PostgreSQL.
type PostgresRecorder struct {
	db *pgxpool.Pool
}

// NewPostgresRecorder builds a recorder backed by PostgreSQL.
func NewPostgresRecorder(db *pgxpool.Pool) *PostgresRecorder {
	return &PostgresRecorder{db: db}
}

// Record inserts one event row.
func (r *PostgresRecorder) Record(ctx context.Context, event Event) error {
	details, err := json.Marshal(event.Details)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO audit_events (id, actor_id, action, target_id, target_type, status, details, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		"au_"+uuid.NewString(), event.ActorID, event.Action, event.TargetID, event.TargetType,
		event.Status, details, time.Now().UTC())
	return err
}

// List returns events newest first.
func (r *PostgresRecorder) List(ctx context.Context, page, limit int) ([]Event, int, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM audit_events`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.Query(ctx, `SELECT id, actor_id, action, target_id, target_type, status, details, created_at
        FROM audit_events ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		var e Event
		var details []byte
		if err := rows.Scan(&e.ID, &e.ActorID, &e.Action, &e.TargetID, &e.TargetType, &e.Status, &details, &e.CreatedAt); err != nil {
			return nil, 0, err
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, 0, err
			}
		}
		e.CreatedAt = e.CreatedAt.UTC()
		events = append(events, e)
	}
	return events, total, rows.Err()
}
