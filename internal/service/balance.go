package service

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/susupay/walletops/internal/cache"
	"github.com/susupay/walletops/internal/store"
)

// BalanceService derives account balances from the ledger. The Redis
// snapshot only serves the display path; every sufficiency check recomputes
// from the ledger inside the mutating transaction.
type BalanceService struct {
	store store.Store
	snap  *cache.BalanceSnapshot
}

func NewBalanceService(st store.Store, snap *cache.BalanceSnapshot) *BalanceService {
	return &BalanceService{store: st, snap: snap}
}

// ComputeBalance aggregates completed credits minus completed debits and
// fees straight from the ledger.
func (s *BalanceService) ComputeBalance(ctx context.Context, accountID int64) (decimal.Decimal, error) {
	return s.store.SumForAccount(ctx, accountID, "")
}

// DisplayBalance serves the cached snapshot when present, falling back to a
// fresh ledger aggregate and repopulating the cache.
func (s *BalanceService) DisplayBalance(ctx context.Context, accountID int64) (decimal.Decimal, error) {
	if bal, ok := s.snap.Get(ctx, accountID); ok {
		return bal, nil
	}

	bal, err := s.store.SumForAccount(ctx, accountID, "")
	if err != nil {
		return decimal.Zero, err
	}
	s.snap.Set(ctx, accountID, bal)
	return bal, nil
}

// refreshBalanceHints recomputes the advisory balance_hint column from the
// ledger for each account, inside the caller's transaction.
func refreshBalanceHints(ctx context.Context, q store.Querier, accountIDs ...int64) error {
	for _, id := range accountIDs {
		bal, err := q.SumForAccount(ctx, id, "")
		if err != nil {
			return err
		}
		if err := q.UpdateBalanceHint(ctx, id, bal); err != nil {
			return err
		}
	}
	return nil
}
