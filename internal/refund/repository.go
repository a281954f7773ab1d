package refund

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/consulta-pay/consulta_pay/internal/apperr"
)

// Filter narrows paged refund listings.
type Filter struct {
	PaymentReference string
	OwnerID          string
	Kind             Kind
	Page             int
	Limit            int
}

// CashoutFilter narrows paged cash-out listings.
type CashoutFilter struct {
	OwnerID string
	Status  CashoutStatus
	Page    int
	Limit   int
}

// Repository persists refund records and cash-out requests. CreateRefund
// atomically reserves the refund amount against the captured total of the
// original payment: pending and completed records both count toward the cap.
type Repository interface {
	CreateRefund(ctx context.Context, refund Refund, captured int64) error
	FinishRefund(ctx context.Context, id string, status Status, gatewayRefundID, entryID string) error
	RefundedTotal(ctx context.Context, paymentReference string) (int64, error)
	Refunds(ctx context.Context, filter Filter) ([]Refund, int, error)

	CreateCashout(ctx context.Context, req CashoutRequest) error
	GetCashout(ctx context.Context, id string) (CashoutRequest, error)
	UpdateCashout(ctx context.Context, req CashoutRequest, from CashoutStatus) error
	Cashouts(ctx context.Context, filter CashoutFilter) ([]CashoutRequest, int, error)
}

// PostgresRepository stores refunds and cash-out requests in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const refundColumns = `id, payment_reference, owner_id, amount, percentage, kind, status,
	gateway_refund_id, entry_id, reason, created_at`

// CreateRefund inserts a pending refund if the cumulative refunded amount for
// the payment stays within the captured total. An advisory lock on the
// payment reference serializes racing refunds of the same payment, including
// the first two.
func (r *PostgresRepository) CreateRefund(ctx context.Context, refund Refund, captured int64) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, refund.PaymentReference); err != nil {
		return err
	}

	var total int64
	err = tx.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0) FROM refunds
        WHERE payment_reference = $1 AND status IN ($2, $3)`,
		refund.PaymentReference, string(StatusPending), string(StatusCompleted)).Scan(&total)
	if err != nil {
		return err
	}
	if total+refund.Amount > captured {
		return apperr.Conflict("payment %s already refunded %d of %d captured; %d more would overshoot",
			refund.PaymentReference, total, captured, refund.Amount)
	}

	_, err = tx.Exec(ctx, `INSERT INTO refunds (id, payment_reference, owner_id, amount,
        percentage, kind, status, reason, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9)`,
		refund.ID, refund.PaymentReference, refund.OwnerID, refund.Amount, refund.Percentage,
		string(refund.Kind), string(refund.Status), refund.Reason, refund.CreatedAt)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// FinishRefund marks a pending refund completed or failed.
func (r *PostgresRepository) FinishRefund(ctx context.Context, id string, status Status, gatewayRefundID, entryID string) error {
	tag, err := r.db.Exec(ctx, `UPDATE refunds SET status = $2, gateway_refund_id = NULLIF($3, ''),
        entry_id = NULLIF($4, '') WHERE id = $1 AND status = $5`,
		id, string(status), gatewayRefundID, entryID, string(StatusPending))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("pending refund %s not found", id)
	}
	return nil
}

// RefundedTotal sums the pending and completed refunds for a payment.
func (r *PostgresRepository) RefundedTotal(ctx context.Context, paymentReference string) (int64, error) {
	var total int64
	err := r.db.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0) FROM refunds
        WHERE payment_reference = $1 AND status IN ($2, $3)`,
		paymentReference, string(StatusPending), string(StatusCompleted)).Scan(&total)
	return total, err
}

// Refunds lists refund records newest first.
func (r *PostgresRepository) Refunds(ctx context.Context, filter Filter) ([]Refund, int, error) {
	where := []string{"1=1"}
	args := []any{}
	if filter.PaymentReference != "" {
		args = append(args, filter.PaymentReference)
		where = append(where, fmt.Sprintf("payment_reference = $%d", len(args)))
	}
	if filter.OwnerID != "" {
		args = append(args, filter.OwnerID)
		where = append(where, fmt.Sprintf("owner_id = $%d", len(args)))
	}
	if filter.Kind != "" {
		args = append(args, string(filter.Kind))
		where = append(where, fmt.Sprintf("kind = $%d", len(args)))
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM refunds WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page, limit := normalizePage(filter.Page, filter.Limit)
	args = append(args, limit, (page-1)*limit)
	query := fmt.Sprintf(`SELECT `+refundColumns+` FROM refunds WHERE %s
        ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, cond, len(args)-1, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	refunds := []Refund{}
	for rows.Next() {
		var rec Refund
		var kind, status string
		var gatewayID, entryID, reason *string
		if err := rows.Scan(&rec.ID, &rec.PaymentReference, &rec.OwnerID, &rec.Amount, &rec.Percentage,
			&kind, &status, &gatewayID, &entryID, &reason, &rec.CreatedAt); err != nil {
			return nil, 0, err
		}
		rec.Kind = Kind(kind)
		rec.Status = Status(status)
		if gatewayID != nil {
			rec.GatewayRefundID = *gatewayID
		}
		if entryID != nil {
			rec.EntryID = *entryID
		}
		if reason != nil {
			rec.Reason = *reason
		}
		refunds = append(refunds, rec)
	}
	return refunds, total, rows.Err()
}

const cashoutColumns = `id, owner_id, amount_requested, amount_approved, balance_snapshot,
	status, reviewed_by, reject_reason, payment_reference, entry_id, submitted_at,
	reviewed_at, processed_at, updated_at`

// CreateCashout inserts a cash-out request.
func (r *PostgresRepository) CreateCashout(ctx context.Context, req CashoutRequest) error {
	_, err := r.db.Exec(ctx, `INSERT INTO cashout_requests (id, owner_id, amount_requested,
        amount_approved, balance_snapshot, status, submitted_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		req.ID, req.OwnerID, req.AmountRequested, req.AmountApproved, req.CashBalanceSnapshot,
		string(req.Status), req.SubmittedAt, req.UpdatedAt)
	return err
}

// GetCashout fetches one cash-out request.
func (r *PostgresRepository) GetCashout(ctx context.Context, id string) (CashoutRequest, error) {
	row := r.db.QueryRow(ctx, `SELECT `+cashoutColumns+` FROM cashout_requests WHERE id = $1`, id)
	req, err := scanCashout(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CashoutRequest{}, apperr.NotFound("cash-out request %s not found", id)
		}
		return CashoutRequest{}, err
	}
	return req, nil
}

// UpdateCashout persists a transition guarded by the expected source status.
func (r *PostgresRepository) UpdateCashout(ctx context.Context, req CashoutRequest, from CashoutStatus) error {
	tag, err := r.db.Exec(ctx, `UPDATE cashout_requests SET amount_approved = $2, status = $3,
        reviewed_by = NULLIF($4, ''), reject_reason = NULLIF($5, ''), payment_reference = NULLIF($6, ''),
        entry_id = NULLIF($7, ''), reviewed_at = $8, processed_at = $9, updated_at = $10
        WHERE id = $1 AND status = $11`,
		req.ID, req.AmountApproved, string(req.Status), req.ReviewedBy, req.RejectReason,
		req.PaymentReference, req.EntryID, req.ReviewedAt, req.ProcessedAt, time.Now().UTC(), string(from))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		current, getErr := r.GetCashout(ctx, req.ID)
		if getErr != nil {
			return getErr
		}
		return apperr.InvalidTransition(string(current.Status),
			"cash-out request %s is no longer %s", req.ID, from)
	}
	return nil
}

// Cashouts lists cash-out requests newest first.
func (r *PostgresRepository) Cashouts(ctx context.Context, filter CashoutFilter) ([]CashoutRequest, int, error) {
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
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM cashout_requests WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page, limit := normalizePage(filter.Page, filter.Limit)
	args = append(args, limit, (page-1)*limit)
	query := fmt.Sprintf(`SELECT `+cashoutColumns+` FROM cashout_requests WHERE %s
        ORDER BY submitted_at DESC LIMIT $%d OFFSET $%d`, cond, len(args)-1, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	requests := []CashoutRequest{}
	for rows.Next() {
		req, err := scanCashout(rows)
		if err != nil {
			return nil, 0, err
		}
		requests = append(requests, req)
	}
	return requests, total, rows.Err()
}

func scanCashout(row pgx.Row) (CashoutRequest, error) {
	var req CashoutRequest
	var status string
	var reviewedBy, rejectReason, paymentRef, entryID *string
	err := row.Scan(&req.ID, &req.OwnerID, &req.AmountRequested, &req.AmountApproved,
		&req.CashBalanceSnapshot, &status, &reviewedBy, &rejectReason, &paymentRef, &entryID,
		&req.SubmittedAt, &req.ReviewedAt, &req.ProcessedAt, &req.UpdatedAt)
	if err != nil {
		return CashoutRequest{}, err
	}
	req.Status = CashoutStatus(status)
	if reviewedBy != nil {
		req.ReviewedBy = *reviewedBy
	}
	if rejectReason != nil {
		req.RejectReason = *rejectReason
	}
	if paymentRef != nil {
		req.PaymentReference = *paymentRef
	}
	if entryID != nil {
		req.EntryID = *entryID
	}
	return req, nil
}

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	return page, limit
}
