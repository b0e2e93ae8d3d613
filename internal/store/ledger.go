package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/susupay/walletops/internal/domain"
)

const entryColumns = "id, sender_id, recipient_id, amount, fee, currency, kind, status, external_ref, description, created_at"

// AppendEntry inserts a new ledger entry. A duplicate external reference
// returns domain.ErrDuplicateReference without writing anything; the unique
// index is the idempotency backstop for retried webhooks.
func (q *Queries) AppendEntry(ctx context.Context, e *domain.LedgerEntry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	_, err := q.db.Exec(ctx, `
		INSERT INTO ledger_entries (id, sender_id, recipient_id, amount, fee, currency, kind, status, external_ref, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		e.ID, e.SenderID, e.RecipientID, e.Amount, e.Fee, e.Currency, e.Kind, e.Status, e.ExternalRef, e.Description, e.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateReference
		}
		return err
	}
	return nil
}

// MarkEntryTerminal transitions a pending entry to completed or failed
// exactly once. Re-mutating a terminal entry is domain.ErrInvalidTransition.
func (q *Queries) MarkEntryTerminal(ctx context.Context, id uuid.UUID, status domain.EntryStatus, externalRef *string) error {
	tag, err := q.db.Exec(ctx, `
		UPDATE ledger_entries
		SET status = $2, external_ref = COALESCE($3, external_ref)
		WHERE id = $1 AND status = $4`,
		id, status, externalRef, domain.EntryPending)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateReference
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInvalidTransition
	}
	return nil
}

func (q *Queries) SetEntryExternalRef(ctx context.Context, id uuid.UUID, ref string) error {
	_, err := q.db.Exec(ctx, "UPDATE ledger_entries SET external_ref = $1 WHERE id = $2", ref, id)
	if err != nil && isUniqueViolation(err) {
		return domain.ErrDuplicateReference
	}
	return err
}

// SumForAccount derives the account balance: completed credits minus
// completed debits and their fees. Pass currency to scope the aggregate;
// empty means all currencies.
func (q *Queries) SumForAccount(ctx context.Context, accountID int64, currency string) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := q.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(CASE WHEN recipient_id = $1 THEN amount ELSE 0 END), 0)
		     - COALESCE(SUM(CASE WHEN sender_id = $1 THEN amount + fee ELSE 0 END), 0)
		FROM ledger_entries
		WHERE status = $2
		  AND (sender_id = $1 OR recipient_id = $1)
		  AND ($3 = '' OR currency = $3)`,
		accountID, domain.EntryCompleted, currency).Scan(&balance)
	if err != nil {
		return decimal.Zero, err
	}
	return balance, nil
}

func (q *Queries) EntriesForAccount(ctx context.Context, accountID int64, limit int32) ([]domain.LedgerEntry, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+entryColumns+`
		FROM ledger_entries
		WHERE sender_id = $1 OR recipient_id = $1
		ORDER BY created_at DESC
		LIMIT $2`,
		accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		if err := rows.Scan(&e.ID, &e.SenderID, &e.RecipientID, &e.Amount, &e.Fee, &e.Currency, &e.Kind, &e.Status, &e.ExternalRef, &e.Description, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
