package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/susupay/walletops/internal/cache"
	"github.com/susupay/walletops/internal/domain"
	"github.com/susupay/walletops/internal/store"
)

// TransferService moves money between two internal accounts inside one
// atomic unit of work.
type TransferService struct {
	store store.Store
	snap  *cache.BalanceSnapshot
}

func NewTransferService(st store.Store, snap *cache.BalanceSnapshot) *TransferService {
	return &TransferService{store: st, snap: snap}
}

// SendMoney debits the sender by amount plus the configured percentage fee
// and credits the recipient by amount, as a single completed ledger entry.
// The balance check and the append happen under row locks on both accounts,
// so two concurrent transfers from the same sender cannot both pass the
// check against a stale read.
func (s *TransferService) SendMoney(ctx context.Context, senderID, recipientID int64, amount decimal.Decimal, description string) (*domain.LedgerEntry, error) {
	if !amount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}
	if senderID == recipientID {
		return nil, fmt.Errorf("%w: self-transfer not allowed", domain.ErrInvalidAmount)
	}

	var entry *domain.LedgerEntry
	err := s.store.WithAccountLock(ctx, []int64{senderID, recipientID}, func(q store.Querier) error {
		sender, err := q.GetAccount(ctx, senderID)
		if err != nil {
			return err
		}

		settings, err := q.GetSettings(ctx)
		if err != nil {
			return err
		}

		fee := amount.Mul(settings.TransferFeePercent).Round(2)
		totalDeduction := amount.Add(fee)

		balance, err := q.SumForAccount(ctx, senderID, "")
		if err != nil {
			return err
		}
		if balance.LessThan(totalDeduction) {
			return domain.ErrInsufficientFunds
		}

		entry = &domain.LedgerEntry{
			SenderID:    &senderID,
			RecipientID: &recipientID,
			Amount:      amount,
			Fee:         fee,
			Currency:    sender.Currency,
			Kind:        domain.KindWalletTransfer,
			Status:      domain.EntryCompleted,
			Description: description,
		}
		if err := q.AppendEntry(ctx, entry); err != nil {
			return err
		}

		return refreshBalanceHints(ctx, q, senderID, recipientID)
	})
	if err != nil {
		return nil, err
	}

	s.snap.Invalidate(ctx, senderID, recipientID)
	return entry, nil
}
