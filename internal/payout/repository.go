package payout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/consulta-pay/consulta_pay/internal/apperr"
)

// Filter narrows paged payout listings.
type Filter struct {
	OwnerID string
	Status  Status
	Page    int
	Limit   int
}

// Repository persists payout requests. Update is conditional on the request's
// current status so two racing transitions cannot both win.
type Repository interface {
	Create(ctx context.Context, req Request) error
	Get(ctx context.Context, id string) (Request, error)
	Update(ctx context.Context, req Request, from Status) error
	List(ctx context.Context, filter Filter) ([]Request, int, error)
}

// PostgresRepository stores payout requests in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const payoutColumns = `id, owner_id, amount, bank_details, status, hold_entry_id, reviewed_by,
	reference, bank_reference, reject_reason, submitted_at, approved_at, processed_at,
	completed_at, rejected_at, updated_at`

// Create inserts a payout request.
func (r *PostgresRepository) Create(ctx context.Context, req Request) error {
	bank, err := json.Marshal(req.BankDetails)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO payout_requests (id, owner_id, amount, bank_details,
        status, hold_entry_id, submitted_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		req.ID, req.OwnerID, req.Amount, bank, string(req.Status), req.HoldEntryID,
		req.SubmittedAt, req.UpdatedAt)
	return err
}

// Get fetches one payout request.
func (r *PostgresRepository) Get(ctx context.Context, id string) (Request, error) {
	row := r.db.QueryRow(ctx, `SELECT `+payoutColumns+` FROM payout_requests WHERE id = $1`, id)
	req, err := scanPayout(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Request{}, apperr.NotFound("payout request %s not found", id)
		}
		return Request{}, err
	}
	return req, nil
}

// Update persists a transition, guarded by the expected source status. When
// the row is no longer in that status the current state is reported instead.
func (r *PostgresRepository) Update(ctx context.Context, req Request, from Status) error {
	bank, err := json.Marshal(req.BankDetails)
	if err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, `UPDATE payout_requests SET amount = $2, bank_details = $3,
        status = $4, hold_entry_id = $5, reviewed_by = NULLIF($6, ''), reference = NULLIF($7, ''),
        bank_reference = NULLIF($8, ''), reject_reason = NULLIF($9, ''), approved_at = $10,
        processed_at = $11, completed_at = $12, rejected_at = $13, updated_at = $14
        WHERE id = $1 AND status = $15`,
		req.ID, req.Amount, bank, string(req.Status), req.HoldEntryID, req.ReviewedBy,
		req.Reference, req.BankReference, req.RejectReason, req.ApprovedAt, req.ProcessedAt,
		req.CompletedAt, req.RejectedAt, time.Now().UTC(), string(from))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		current, getErr := r.Get(ctx, req.ID)
		if getErr != nil {
			return getErr
		}
		return apperr.InvalidTransition(string(current.Status),
			"payout %s is no longer %s", req.ID, from)
	}
	return nil
}

// List returns payout requests newest first.
func (r *PostgresRepository) List(ctx context.Context, filter Filter) ([]Request, int, error) {
	where := []string{"1=1"}
	args := []any{}
	if filter.OwnerID != "" {
		args = append(args, filter.OwnerID)
		where = append(where, fmt.Sprintf("owner_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM payout_requests WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page, limit := filter.Page, filter.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	args = append(args, limit, (page-1)*limit)
	query := fmt.Sprintf(`SELECT `+payoutColumns+` FROM payout_requests WHERE %s
        ORDER BY submitted_at DESC LIMIT $%d OFFSET $%d`, cond, len(args)-1, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	requests := []Request{}
	for rows.Next() {
		req, err := scanPayout(rows)
		if err != nil {
			return nil, 0, err
		}
		requests = append(requests, req)
	}
	return requests, total, rows.Err()
}

func scanPayout(row pgx.Row) (Request, error) {
	var req Request
	var bank []byte
	var status string
	var reviewedBy, reference, bankReference, rejectReason *string
	err := row.Scan(&req.ID, &req.OwnerID, &req.Amount, &bank, &status, &req.HoldEntryID,
		&reviewedBy, &reference, &bankReference, &rejectReason, &req.SubmittedAt,
		&req.ApprovedAt, &req.ProcessedAt, &req.CompletedAt, &req.RejectedAt, &req.UpdatedAt)
	if err != nil {
		return Request{}, err
	}
	req.Status = Status(status)
	if err := json.Unmarshal(bank, &req.BankDetails); err != nil {
		return Request{}, err
	}
	if reviewedBy != nil {
		req.ReviewedBy = *reviewedBy
	}
	if reference != nil {
		req.Reference = *reference
	}
	if bankReference != nil {
		req.BankReference = *bankReference
	}
	if rejectReason != nil {
		req.RejectReason = *rejectReason
	}
	return req, nil
}
