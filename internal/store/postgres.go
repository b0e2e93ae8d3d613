package store

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/susupay/walletops/internal/domain"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx, so every query method
// works unchanged inside and outside a transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Queries implements Querier against a DBTX.
type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// SQLStore is the production Store over a pgx connection pool.
type SQLStore struct {
	*Queries
	pool *pgxpool.Pool
}

func NewSQLStore(connString string) (*SQLStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &SQLStore{Queries: New(pool), pool: pool}, nil
}

func (s *SQLStore) Close() {
	s.pool.Close()
}

// WithTx runs fn inside a single transaction.
func (s *SQLStore) WithTx(ctx context.Context, fn func(Querier) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(New(tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("tx commit failed: %w", err)
	}
	return nil
}

// WithAccountLock runs fn inside a transaction holding FOR UPDATE locks on
// the given account rows. Locks are taken in ascending id order; a concurrent
// caller touching the same accounts blocks here until the first commits, so
// its balance reads always see the committed debits.
func (s *SQLStore) WithAccountLock(ctx context.Context, accountIDs []int64, fn func(Querier) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	ids := append([]int64(nil), accountIDs...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var prev int64 = -1
	for _, id := range ids {
		if id == prev {
			continue
		}
		prev = id

		var locked int64
		err := tx.QueryRow(ctx, "SELECT id FROM accounts WHERE id = $1 FOR UPDATE", id).Scan(&locked)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.ErrAccountNotFound
			}
			return fmt.Errorf("lock acquisition failed: %w", err)
		}
	}

	if err := fn(New(tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("tx commit failed: %w", err)
	}
	return nil
}

const accountColumns = "id, currency, balance_hint, customer_ref, payee_ref, payouts_enabled, created_at"

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var a domain.Account
	err := row.Scan(&a.ID, &a.Currency, &a.BalanceHint, &a.CustomerRef, &a.PayeeRef, &a.PayoutsEnabled, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (q *Queries) CreateAccount(ctx context.Context, currency string) (*domain.Account, error) {
	row := q.db.QueryRow(ctx,
		"INSERT INTO accounts (currency) VALUES ($1) RETURNING "+accountColumns,
		currency)
	return scanAccount(row)
}

func (q *Queries) GetAccount(ctx context.Context, id int64) (*domain.Account, error) {
	row := q.db.QueryRow(ctx, "SELECT "+accountColumns+" FROM accounts WHERE id = $1", id)
	return scanAccount(row)
}

func (q *Queries) UpdateBalanceHint(ctx context.Context, id int64, hint decimal.Decimal) error {
	_, err := q.db.Exec(ctx, "UPDATE accounts SET balance_hint = $1 WHERE id = $2", hint, id)
	return err
}

func (q *Queries) SetCustomerRef(ctx context.Context, id int64, ref string) error {
	_, err := q.db.Exec(ctx, "UPDATE accounts SET customer_ref = $1 WHERE id = $2", ref, id)
	return err
}

func (q *Queries) SetPayeeRef(ctx context.Context, id int64, ref string) error {
	_, err := q.db.Exec(ctx, "UPDATE accounts SET payee_ref = $1 WHERE id = $2", ref, id)
	return err
}

func (q *Queries) SetPayoutCapability(ctx context.Context, id int64, enabled bool) error {
	_, err := q.db.Exec(ctx, "UPDATE accounts SET payouts_enabled = $1 WHERE id = $2", enabled, id)
	return err
}

func (q *Queries) GetSettings(ctx context.Context) (*domain.Settings, error) {
	var s domain.Settings
	err := q.db.QueryRow(ctx,
		"SELECT transfer_fee_percent, payout_flat_fee, currency FROM settings WHERE id = TRUE",
	).Scan(&s.TransferFeePercent, &s.PayoutFlatFee, &s.Currency)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSettingsMissing
		}
		return nil, err
	}
	return &s, nil
}

func (q *Queries) UpsertSettings(ctx context.Context, s *domain.Settings) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO settings (id, transfer_fee_percent, payout_flat_fee, currency)
		VALUES (TRUE, $1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET transfer_fee_percent = EXCLUDED.transfer_fee_percent,
		    payout_flat_fee = EXCLUDED.payout_flat_fee,
		    currency = EXCLUDED.currency`,
		s.TransferFeePercent, s.PayoutFlatFee, s.Currency)
	return err
}

// isUniqueViolation reports a Postgres 23505 error, the idempotency backstop.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
