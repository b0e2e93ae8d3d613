package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/susupay/walletops/internal/domain"
)

func (q *Queries) CreateTontine(ctx context.Context, t *domain.Tontine) error {
	return q.db.QueryRow(ctx, `
		INSERT INTO tontines (name, pool_account_id, contribution_amount, currency)
		VALUES ($1, $2, $3, $4)
		RETURNING id, pool_total, created_at`,
		t.Name, t.PoolAccountID, t.ContributionAmount, t.Currency,
	).Scan(&t.ID, &t.PoolTotal, &t.CreatedAt)
}

func (q *Queries) GetTontine(ctx context.Context, id int64) (*domain.Tontine, error) {
	var t domain.Tontine
	err := q.db.QueryRow(ctx, `
		SELECT id, name, pool_account_id, contribution_amount, currency, pool_total, created_at
		FROM tontines WHERE id = $1`, id,
	).Scan(&t.ID, &t.Name, &t.PoolAccountID, &t.ContributionAmount, &t.Currency, &t.PoolTotal, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTontineNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (q *Queries) AddTontineMember(ctx context.Context, m *domain.TontineMember) error {
	return q.db.QueryRow(ctx, `
		INSERT INTO tontine_members (tontine_id, account_id, position)
		VALUES ($1, $2, $3)
		RETURNING id, joined_at`,
		m.TontineID, m.AccountID, m.Position,
	).Scan(&m.ID, &m.JoinedAt)
}

func scanMember(row pgx.Row) (*domain.TontineMember, error) {
	var m domain.TontineMember
	err := row.Scan(&m.ID, &m.TontineID, &m.AccountID, &m.Position, &m.JoinedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrMemberNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (q *Queries) GetTontineMember(ctx context.Context, tontineID, accountID int64) (*domain.TontineMember, error) {
	return scanMember(q.db.QueryRow(ctx, `
		SELECT id, tontine_id, account_id, position, joined_at
		FROM tontine_members WHERE tontine_id = $1 AND account_id = $2`,
		tontineID, accountID))
}

func (q *Queries) GetTontineMemberByID(ctx context.Context, memberID int64) (*domain.TontineMember, error) {
	return scanMember(q.db.QueryRow(ctx, `
		SELECT id, tontine_id, account_id, position, joined_at
		FROM tontine_members WHERE id = $1`, memberID))
}

func (q *Queries) CountTontineMembers(ctx context.Context, tontineID int64) (int, error) {
	var n int
	err := q.db.QueryRow(ctx,
		"SELECT COUNT(*) FROM tontine_members WHERE tontine_id = $1", tontineID).Scan(&n)
	return n, err
}

func (q *Queries) CreateContribution(ctx context.Context, c *domain.TontineContribution) error {
	err := q.db.QueryRow(ctx, `
		INSERT INTO tontine_contributions (tontine_id, member_id, amount, round, session_ref, ledger_entry_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`,
		c.TontineID, c.MemberID, c.Amount, c.Round, c.SessionRef, c.LedgerEntryID,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil && isUniqueViolation(err) {
		return domain.ErrDuplicateReference
	}
	return err
}

func (q *Queries) GetContributionBySession(ctx context.Context, sessionRef string) (*domain.TontineContribution, error) {
	var c domain.TontineContribution
	err := q.db.QueryRow(ctx, `
		SELECT id, tontine_id, member_id, amount, round, session_ref, ledger_entry_id, created_at
		FROM tontine_contributions WHERE session_ref = $1`, sessionRef,
	).Scan(&c.ID, &c.TontineID, &c.MemberID, &c.Amount, &c.Round, &c.SessionRef, &c.LedgerEntryID, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Absence is not an error here; the webhook path probes for an
			// existing contribution before creating one.
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

func (q *Queries) CreateTontinePayout(ctx context.Context, p *domain.TontinePayout) error {
	return q.db.QueryRow(ctx, `
		INSERT INTO tontine_payouts (tontine_id, member_id, amount, status, ledger_entry_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		p.TontineID, p.MemberID, p.Amount, p.Status, p.LedgerEntryID,
	).Scan(&p.ID, &p.CreatedAt)
}

func (q *Queries) UpdatePoolTotal(ctx context.Context, tontineID int64, total decimal.Decimal) error {
	_, err := q.db.Exec(ctx, "UPDATE tontines SET pool_total = $1 WHERE id = $2", total, tontineID)
	return err
}
