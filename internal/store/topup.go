package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/susupay/walletops/internal/domain"
)

const intentColumns = "id, account_id, amount, currency, external_ref, payment_method_ref, status, ledger_entry_id, created_at, updated_at"

func (q *Queries) CreateTopUpIntent(ctx context.Context, in *domain.TopUpIntent) error {
	err := q.db.QueryRow(ctx, `
		INSERT INTO topup_intents (account_id, amount, currency, external_ref, payment_method_ref, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`,
		in.AccountID, in.Amount, in.Currency, in.ExternalRef, in.PaymentMethodRef, in.Status,
	).Scan(&in.ID, &in.CreatedAt, &in.UpdatedAt)
	if err != nil && isUniqueViolation(err) {
		return domain.ErrDuplicateReference
	}
	return err
}

// GetTopUpIntentByRef loads an intent by its provider reference. With
// forUpdate the row is locked, serializing concurrent webhook deliveries for
// the same charge.
func (q *Queries) GetTopUpIntentByRef(ctx context.Context, ref string, forUpdate bool) (*domain.TopUpIntent, error) {
	query := "SELECT " + intentColumns + " FROM topup_intents WHERE external_ref = $1"
	if forUpdate {
		query += " FOR UPDATE"
	}

	var in domain.TopUpIntent
	err := q.db.QueryRow(ctx, query, ref).Scan(
		&in.ID, &in.AccountID, &in.Amount, &in.Currency, &in.ExternalRef,
		&in.PaymentMethodRef, &in.Status, &in.LedgerEntryID, &in.CreatedAt, &in.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrIntentNotFound
		}
		return nil, err
	}
	return &in, nil
}

// SettleTopUpIntent moves a pending intent to a terminal status. A second
// settlement attempt affects zero rows and reports ErrInvalidTransition.
func (q *Queries) SettleTopUpIntent(ctx context.Context, id int64, status domain.IntentStatus, entryID *uuid.UUID) error {
	tag, err := q.db.Exec(ctx, `
		UPDATE topup_intents
		SET status = $2, ledger_entry_id = $3, updated_at = now()
		WHERE id = $1 AND status = $4`,
		id, status, entryID, domain.IntentPending)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInvalidTransition
	}
	return nil
}
