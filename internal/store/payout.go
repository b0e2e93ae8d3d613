package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/susupay/walletops/internal/domain"
)

const payoutColumns = "id, account_id, amount, fee, net_amount, currency, status, external_ref, failure_reason, reservation_entry_id, created_at, updated_at"

func (q *Queries) CreatePayoutRequest(ctx context.Context, pr *domain.PayoutRequest) error {
	return q.db.QueryRow(ctx, `
		INSERT INTO payout_requests (account_id, amount, fee, net_amount, currency, status, reservation_entry_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`,
		pr.AccountID, pr.Amount, pr.Fee, pr.NetAmount, pr.Currency, pr.Status, pr.ReservationEntryID,
	).Scan(&pr.ID, &pr.CreatedAt, &pr.UpdatedAt)
}

func scanPayout(row pgx.Row) (*domain.PayoutRequest, error) {
	var pr domain.PayoutRequest
	err := row.Scan(
		&pr.ID, &pr.AccountID, &pr.Amount, &pr.Fee, &pr.NetAmount, &pr.Currency,
		&pr.Status, &pr.ExternalRef, &pr.FailureReason, &pr.ReservationEntryID,
		&pr.CreatedAt, &pr.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPayoutNotFound
		}
		return nil, err
	}
	return &pr, nil
}

func (q *Queries) GetPayoutRequest(ctx context.Context, id int64) (*domain.PayoutRequest, error) {
	return scanPayout(q.db.QueryRow(ctx,
		"SELECT "+payoutColumns+" FROM payout_requests WHERE id = $1", id))
}

// GetPayoutRequestByRef loads a request by its provider payout reference.
// With forUpdate the row is locked, serializing concurrent webhook
// deliveries for the same payout.
func (q *Queries) GetPayoutRequestByRef(ctx context.Context, ref string, forUpdate bool) (*domain.PayoutRequest, error) {
	query := "SELECT " + payoutColumns + " FROM payout_requests WHERE external_ref = $1"
	if forUpdate {
		query += " FOR UPDATE"
	}
	return scanPayout(q.db.QueryRow(ctx, query, ref))
}

func (q *Queries) UpdatePayoutStatus(ctx context.Context, id int64, status domain.PayoutStatus, externalRef, failureReason *string) error {
	_, err := q.db.Exec(ctx, `
		UPDATE payout_requests
		SET status = $2,
		    external_ref = COALESCE($3, external_ref),
		    failure_reason = COALESCE($4, failure_reason),
		    updated_at = now()
		WHERE id = $1`,
		id, status, externalRef, failureReason)
	return err
}

// LockedPayoutTotal sums the net amounts of this account's in-flight payout
// requests. Funds promised to a pending or processing payout are excluded
// from what a new request may spend.
func (q *Queries) LockedPayoutTotal(ctx context.Context, accountID int64) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := q.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(net_amount), 0)
		FROM payout_requests
		WHERE account_id = $1 AND status IN ($2, $3)`,
		accountID, domain.PayoutPending, domain.PayoutProcessing).Scan(&total)
	if err != nil {
		return decimal.Zero, err
	}
	return total, nil
}
