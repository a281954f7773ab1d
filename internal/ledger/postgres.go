package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/consulta-pay/consulta_pay/internal/apperr"
)

const uniqueViolation = "23505"

// PostgresStore persists the entry log and account aggregates in PostgreSQL.
// The account row is locked FOR UPDATE for the duration of each posting, so
// the entry insert and the aggregate update commit as one atomic unit per
// owner.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a Postgres-backed ledger store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

const accountColumns = `owner_id, owner_kind, balance, total_recharged, total_spent,
	withdrawable, pending_withdrawal, total_withdrawn, total_earned, created_at, updated_at`

const entryColumns = `id, owner_id, type, amount, balance_before, balance_after,
	status, reference, linked_entry_id, external_ref, created_at`

// CreateAccount inserts a zero-valued wallet account for the owner.
func (s *PostgresStore) CreateAccount(ctx context.Context, ownerID string, kind OwnerKind) (Account, error) {
	if ownerID == "" {
		return Account{}, apperr.Validation("owner_id", "owner id is required")
	}
	if kind != OwnerClient && kind != OwnerProvider {
		return Account{}, apperr.Validation("owner_kind", "unknown owner kind %q", kind)
	}

	now := time.Now().UTC()
	_, err := s.db.Exec(ctx, `INSERT INTO wallet_accounts (owner_id, owner_kind, created_at, updated_at)
        VALUES ($1, $2, $3, $3)`, ownerID, string(kind), now)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return Account{}, apperr.Conflict("wallet account for owner %s already exists", ownerID)
		}
		return Account{}, fmt.Errorf("insert wallet account: %w", err)
	}
	return Account{OwnerID: ownerID, OwnerKind: kind, CreatedAt: now, UpdatedAt: now}, nil
}

// Account fetches the aggregate for one owner.
func (s *PostgresStore) Account(ctx context.Context, ownerID string) (Account, error) {
	row := s.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM wallet_accounts WHERE owner_id = $1`, ownerID)
	return scanAccount(row, ownerID)
}

// Append posts a new entry and updates the aggregate within one transaction.
func (s *PostgresStore) Append(ctx context.Context, input AppendInput) (Entry, error) {
	if err := validateAppend(input); err != nil {
		return Entry{}, err
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Entry{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if existing, err := entryByReference(ctx, tx, input.Reference); err == nil {
		return existing, apperr.Conflict("entry with reference %s already recorded", input.Reference)
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, err
	}

	acc, err := lockAccount(ctx, tx, input.OwnerID)
	if err != nil {
		return Entry{}, err
	}

	if input.Type != TypeHold && input.Type.Direction() == DirDebit && acc.Available() < input.Amount {
		return Entry{}, apperr.InsufficientBalance("available balance %d is below debit of %d", acc.Available(), input.Amount)
	}

	before, after := apply(&acc, input.Type, input.Amount)

	status := EntryCompleted
	if input.Type == TypeHold {
		status = EntryPending
	}

	entry := Entry{
		ID:            "le_" + uuid.NewString(),
		OwnerID:       input.OwnerID,
		Type:          input.Type,
		Amount:        input.Amount,
		BalanceBefore: before,
		BalanceAfter:  after,
		Status:        status,
		Reference:     input.Reference,
		LinkedEntryID: input.LinkedEntryID,
		ExternalRef:   input.ExternalRef,
		CreatedAt:     time.Now().UTC(),
	}

	if err := insertEntry(ctx, tx, entry); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return Entry{}, apperr.Conflict("entry with reference %s already recorded", input.Reference)
		}
		return Entry{}, err
	}
	if err := updateAccount(ctx, tx, acc); err != nil {
		return Entry{}, err
	}

	// A withdrawal settling a pending hold completes it in the same commit.
	if input.Type == TypeWithdrawal && input.LinkedEntryID != "" {
		if _, err := tx.Exec(ctx, `UPDATE ledger_entries SET status = $1
            WHERE id = $2 AND type = $3 AND status = $4`,
			string(EntryCompleted), input.LinkedEntryID, string(TypeHold), string(EntryPending)); err != nil {
			return Entry{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// Reverse posts a linked opposite entry undoing a completed posting in full.
func (s *PostgresStore) Reverse(ctx context.Context, entryID string) (Entry, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Entry{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	row := tx.QueryRow(ctx, `SELECT `+entryColumns+` FROM ledger_entries WHERE id = $1`, entryID)
	original, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, apperr.NotFound("ledger entry %s not found", entryID)
		}
		return Entry{}, err
	}
	if original.Status != EntryCompleted {
		return Entry{}, apperr.InvalidTransition(string(original.Status), "only completed entries can be reversed")
	}

	var reversedBy string
	err = tx.QueryRow(ctx, `SELECT id FROM ledger_entries WHERE linked_entry_id = $1 AND status = $2`,
		entryID, string(EntryCompleted)).Scan(&reversedBy)
	if err == nil {
		return Entry{}, apperr.Conflict("entry %s already reversed by %s", entryID, reversedBy)
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, err
	}

	acc, err := lockAccount(ctx, tx, original.OwnerID)
	if err != nil {
		return Entry{}, err
	}

	typ := reversalType(original.Type)
	if typ.Direction() == DirDebit && acc.Available() < original.Amount {
		return Entry{}, apperr.InsufficientBalance("available balance %d is below reversal debit of %d", acc.Available(), original.Amount)
	}

	before, after := apply(&acc, typ, original.Amount)
	entry := Entry{
		ID:            "le_" + uuid.NewString(),
		OwnerID:       original.OwnerID,
		Type:          typ,
		Amount:        original.Amount,
		BalanceBefore: before,
		BalanceAfter:  after,
		Status:        EntryCompleted,
		Reference:     "reverse:" + entryID,
		LinkedEntryID: entryID,
		ExternalRef:   original.ExternalRef,
		CreatedAt:     time.Now().UTC(),
	}

	if err := insertEntry(ctx, tx, entry); err != nil {
		return Entry{}, err
	}
	if err := updateAccount(ctx, tx, acc); err != nil {
		return Entry{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// ReleaseHold cancels a pending hold, restoring the pending-withdrawal figure.
func (s *PostgresStore) ReleaseHold(ctx context.Context, entryID string) (Entry, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Entry{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	row := tx.QueryRow(ctx, `SELECT `+entryColumns+` FROM ledger_entries WHERE id = $1 FOR UPDATE`, entryID)
	hold, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, apperr.NotFound("ledger entry %s not found", entryID)
		}
		return Entry{}, err
	}
	if hold.Type != TypeHold {
		return Entry{}, apperr.Validation("entry_id", "entry %s is not a hold", entryID)
	}
	if hold.Status != EntryPending {
		return Entry{}, apperr.InvalidTransition(string(hold.Status), "only pending holds can be released")
	}

	acc, err := lockAccount(ctx, tx, hold.OwnerID)
	if err != nil {
		return Entry{}, err
	}
	acc.PendingWithdrawal -= hold.Amount
	if acc.PendingWithdrawal < 0 {
		acc.PendingWithdrawal = 0
	}
	acc.UpdatedAt = time.Now().UTC()

	if err := updateAccount(ctx, tx, acc); err != nil {
		return Entry{}, err
	}
	if _, err := tx.Exec(ctx, `UPDATE ledger_entries SET status = $1 WHERE id = $2`,
		string(EntryCancelled), entryID); err != nil {
		return Entry{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Entry{}, err
	}
	hold.Status = EntryCancelled
	return hold, nil
}

// Entry fetches one entry by id.
func (s *PostgresStore) Entry(ctx context.Context, entryID string) (Entry, error) {
	row := s.db.QueryRow(ctx, `SELECT `+entryColumns+` FROM ledger_entries WHERE id = $1`, entryID)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, apperr.NotFound("ledger entry %s not found", entryID)
		}
		return Entry{}, err
	}
	return entry, nil
}

// Entries lists entries newest first with optional filters.
func (s *PostgresStore) Entries(ctx context.Context, filter Filter) ([]Entry, int, error) {
	where := []string{"1=1"}
	args := []any{}
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if filter.OwnerID != "" {
		add("owner_id = $%d", filter.OwnerID)
	}
	if filter.Type != "" {
		add("type = $%d", string(filter.Type))
	}
	if filter.Status != "" {
		add("status = $%d", string(filter.Status))
	}
	if filter.ExternalRef != "" {
		add("external_ref = $%d", filter.ExternalRef)
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM ledger_entries WHERE `+cond, args...).Scan(&total); err != nil {
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
	query := fmt.Sprintf(`SELECT `+entryColumns+` FROM ledger_entries WHERE %s
        ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, cond, len(args)-1, len(args))

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		entries = append(entries, entry)
	}
	return entries, total, rows.Err()
}

func lockAccount(ctx context.Context, tx pgx.Tx, ownerID string) (Account, error) {
	row := tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM wallet_accounts WHERE owner_id = $1 FOR UPDATE`, ownerID)
	return scanAccount(row, ownerID)
}

func updateAccount(ctx context.Context, tx pgx.Tx, acc Account) error {
	_, err := tx.Exec(ctx, `UPDATE wallet_accounts SET balance = $2, total_recharged = $3,
        total_spent = $4, withdrawable = $5, pending_withdrawal = $6, total_withdrawn = $7,
        total_earned = $8, updated_at = $9 WHERE owner_id = $1`,
		acc.OwnerID, acc.Balance, acc.TotalRecharged, acc.TotalSpent,
		acc.Withdrawable, acc.PendingWithdrawal, acc.TotalWithdrawn, acc.TotalEarned,
		time.Now().UTC())
	return err
}

func insertEntry(ctx context.Context, tx pgx.Tx, e Entry) error {
	_, err := tx.Exec(ctx, `INSERT INTO ledger_entries (id, owner_id, type, amount,
        balance_before, balance_after, status, reference, linked_entry_id, external_ref, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), NULLIF($10, ''), $11)`,
		e.ID, e.OwnerID, string(e.Type), e.Amount, e.BalanceBefore, e.BalanceAfter,
		string(e.Status), e.Reference, e.LinkedEntryID, e.ExternalRef, e.CreatedAt)
	return err
}

func entryByReference(ctx context.Context, tx pgx.Tx, reference string) (Entry, error) {
	row := tx.QueryRow(ctx, `SELECT `+entryColumns+` FROM ledger_entries WHERE reference = $1`, reference)
	return scanEntry(row)
}

func scanAccount(row pgx.Row, ownerID string) (Account, error) {
	var acc Account
	var kind string
	err := row.Scan(&acc.OwnerID, &kind, &acc.Balance, &acc.TotalRecharged, &acc.TotalSpent,
		&acc.Withdrawable, &acc.PendingWithdrawal, &acc.TotalWithdrawn, &acc.TotalEarned,
		&acc.CreatedAt, &acc.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, apperr.NotFound("wallet account for owner %s not found", ownerID)
		}
		return Account{}, err
	}
	acc.OwnerKind = OwnerKind(kind)
	return acc, nil
}

func scanEntry(row pgx.Row) (Entry, error) {
	var e Entry
	var typ, status string
	var linked, external *string
	err := row.Scan(&e.ID, &e.OwnerID, &typ, &e.Amount, &e.BalanceBefore, &e.BalanceAfter,
		&status, &e.Reference, &linked, &external, &e.CreatedAt)
	if err != nil {
		return Entry{}, err
	}
	e.Type = EntryType(typ)
	e.Status = EntryStatus(status)
	if linked != nil {
		e.LinkedEntryID = *linked
	}
	if external != nil {
		e.ExternalRef = *external
	}
	e.CreatedAt = e.CreatedAt.UTC()
	return e, nil
}
