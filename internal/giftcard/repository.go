package giftcard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/consulta-pay/consulta_pay/internal/apperr"
)

// Filter narrows paged card listings.
type Filter struct {
	Status Status
	Page   int
	Limit  int
}

// RedemptionFilter narrows paged redemption listings.
type RedemptionFilter struct {
	CardID  string
	OwnerID string
	Page    int
	Limit   int
}

// Repository persists gift cards and their redemptions. Consume increments
// the redemption counter and runs the exhaustion check as one atomic write,
// so concurrent redeems cannot exceed MaxRedemptions; Release hands a
// consumed slot back when the wallet credit could not be appended.
type Repository interface {
	Create(ctx context.Context, card Card) error
	GetByCode(ctx context.Context, code string) (Card, error)
	Consume(ctx context.Context, code string, now time.Time) (Card, error)
	Release(ctx context.Context, cardID string) error
	SetStatus(ctx context.Context, code string, status Status) (Card, error)
	Cards(ctx context.Context, filter Filter) ([]Card, int, error)

	CreateRedemption(ctx context.Context, redemption Redemption) error
	Redemptions(ctx context.Context, filter RedemptionFilter) ([]Redemption, int, error)
}

// PostgresRepository stores gift cards in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const uniqueViolation = "23505"

const cardColumns = `id, code, amount, currency, max_redemptions, redeemed, status,
	expires_at, created_by, created_at, updated_at`

// Create inserts a card; a code collision reports DuplicateCode.
func (r *PostgresRepository) Create(ctx context.Context, card Card) error {
	_, err := r.db.Exec(ctx, `INSERT INTO gift_cards (id, code, amount, currency,
        max_redemptions, redeemed, status, expires_at, created_by, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		card.ID, card.Code, card.Amount, card.Currency, card.MaxRedemptions, card.Redeemed,
		string(card.Status), card.ExpiresAt, card.CreatedBy, card.CreatedAt, card.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return apperr.DuplicateCode("gift card code %s already exists", card.Code)
		}
		return err
	}
	return nil
}

// GetByCode fetches one card by its normalized code.
func (r *PostgresRepository) GetByCode(ctx context.Context, code string) (Card, error) {
	row := r.db.QueryRow(ctx, `SELECT `+cardColumns+` FROM gift_cards WHERE code = $1`, code)
	card, err := scanCard(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Card{}, apperr.NotFound("gift card %s not found", code)
		}
		return Card{}, err
	}
	return card, nil
}

// Consume claims one redemption slot. The guarded UPDATE only matches an
// active, unexpired card with slots left; when it matches nothing the card is
// re-read to report why.
func (r *PostgresRepository) Consume(ctx context.Context, code string, now time.Time) (Card, error) {
	row := r.db.QueryRow(ctx, `UPDATE gift_cards
        SET redeemed = redeemed + 1,
            status = CASE WHEN redeemed + 1 >= max_redemptions THEN 'exhausted' ELSE status END,
            updated_at = $2
        WHERE code = $1 AND status = 'active' AND redeemed < max_redemptions
          AND (expires_at IS NULL OR expires_at > $3)
        RETURNING `+cardColumns, code, now, now)
	card, err := scanCard(row)
	if err == nil {
		return card, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Card{}, err
	}

	card, err = r.GetByCode(ctx, code)
	if err != nil {
		return Card{}, err
	}
	return Card{}, classifyUnredeemable(card, now)
}

// Release returns a consumed slot, undoing the exhaustion flip if it was the
// slot that caused it.
func (r *PostgresRepository) Release(ctx context.Context, cardID string) error {
	_, err := r.db.Exec(ctx, `UPDATE gift_cards
        SET redeemed = redeemed - 1,
            status = CASE WHEN status = 'exhausted' THEN 'active' ELSE status END,
            updated_at = $2
        WHERE id = $1 AND redeemed > 0`, cardID, time.Now().UTC())
	return err
}

// SetStatus writes an admin override and returns the updated card.
func (r *PostgresRepository) SetStatus(ctx context.Context, code string, status Status) (Card, error) {
	row := r.db.QueryRow(ctx, `UPDATE gift_cards SET status = $2, updated_at = $3
        WHERE code = $1 RETURNING `+cardColumns, code, string(status), time.Now().UTC())
	card, err := scanCard(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Card{}, apperr.NotFound("gift card %s not found", code)
		}
		return Card{}, err
	}
	return card, nil
}

// Cards returns cards newest first.
func (r *PostgresRepository) Cards(ctx context.Context, filter Filter) ([]Card, int, error) {
	where := []string{"1=1"}
	args := []any{}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM gift_cards WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page, limit := normalizePage(filter.Page, filter.Limit)
	args = append(args, limit, (page-1)*limit)
	query := fmt.Sprintf(`SELECT `+cardColumns+` FROM gift_cards WHERE %s
        ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, cond, len(args)-1, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	cards := []Card{}
	for rows.Next() {
		card, err := scanCard(rows)
		if err != nil {
			return nil, 0, err
		}
		cards = append(cards, card)
	}
	return cards, total, rows.Err()
}

// CreateRedemption inserts a redemption history row.
func (r *PostgresRepository) CreateRedemption(ctx context.Context, redemption Redemption) error {
	_, err := r.db.Exec(ctx, `INSERT INTO giftcard_redemptions (id, card_id, code, owner_id,
        amount, entry_id, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		redemption.ID, redemption.CardID, redemption.Code, redemption.OwnerID,
		redemption.Amount, redemption.EntryID, redemption.CreatedAt)
	return err
}

// Redemptions returns redemption rows newest first.
func (r *PostgresRepository) Redemptions(ctx context.Context, filter RedemptionFilter) ([]Redemption, int, error) {
	where := []string{"1=1"}
	args := []any{}
	if filter.CardID != "" {
		args = append(args, filter.CardID)
		where = append(where, fmt.Sprintf("card_id = $%d", len(args)))
	}
	if filter.OwnerID != "" {
		args = append(args, filter.OwnerID)
		where = append(where, fmt.Sprintf("owner_id = $%d", len(args)))
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM giftcard_redemptions WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page, limit := normalizePage(filter.Page, filter.Limit)
	args = append(args, limit, (page-1)*limit)
	query := fmt.Sprintf(`SELECT id, card_id, code, owner_id, amount, entry_id, created_at
        FROM giftcard_redemptions WHERE %s
        ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, cond, len(args)-1, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	redemptions := []Redemption{}
	for rows.Next() {
		var red Redemption
		if err := rows.Scan(&red.ID, &red.CardID, &red.Code, &red.OwnerID,
			&red.Amount, &red.EntryID, &red.CreatedAt); err != nil {
			return nil, 0, err
		}
		redemptions = append(redemptions, red)
	}
	return redemptions, total, rows.Err()
}

// classifyUnredeemable reports why an existing card refused a redemption.
func classifyUnredeemable(card Card, now time.Time) error {
	switch {
	case card.Expired(now) || card.Status == StatusExpired:
		return apperr.Validation("code", "gift card %s expired", card.Code)
	case card.Status == StatusDisabled:
		return apperr.Validation("code", "gift card %s is disabled", card.Code)
	case card.Status == StatusExhausted || card.Redeemed >= card.MaxRedemptions:
		return apperr.Conflict("gift card %s is fully redeemed", card.Code)
	default:
		return apperr.Conflict("gift card %s cannot be redeemed", card.Code)
	}
}

func scanCard(row pgx.Row) (Card, error) {
	var card Card
	var status string
	err := row.Scan(&card.ID, &card.Code, &card.Amount, &card.Currency, &card.MaxRedemptions,
		&card.Redeemed, &status, &card.ExpiresAt, &card.CreatedBy, &card.CreatedAt, &card.UpdatedAt)
	if err != nil {
		return Card{}, err
	}
	card.Status = Status(status)
	return card, nil
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
