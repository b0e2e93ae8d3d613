package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/susupay/walletops/internal/domain"
)

// A pending entry settles exactly once. Once terminal it is immutable, so a
// second settlement attempt, or a provider redelivery racing the first one,
// must be rejected rather than silently rewriting history.
func TestMarkEntryTerminal_TerminalIsFinal(t *testing.T) {
	ctx := context.Background()
	f := newFakeStore()
	acc := f.seedAccount("0")

	entry := &domain.LedgerEntry{
		RecipientID: &acc.ID,
		Amount:      dec("250"),
		Currency:    "XOF",
		Kind:        domain.KindWalletTopup,
		Status:      domain.EntryPending,
		Description: "card top-up",
	}
	if err := f.AppendEntry(ctx, entry); err != nil {
		t.Fatalf("AppendEntry() error = %v", err)
	}

	// Pending entries do not count toward the balance.
	balance, err := f.SumForAccount(ctx, acc.ID, "XOF")
	if err != nil {
		t.Fatalf("SumForAccount() error = %v", err)
	}
	if !balance.IsZero() {
		t.Fatalf("balance before settlement = %s, want 0", balance)
	}

	ref := "charge-settled-1"
	if err := f.MarkEntryTerminal(ctx, entry.ID, domain.EntryCompleted, &ref); err != nil {
		t.Fatalf("first MarkEntryTerminal() error = %v", err)
	}

	balance, err = f.SumForAccount(ctx, acc.ID, "XOF")
	if err != nil {
		t.Fatalf("SumForAccount() error = %v", err)
	}
	if !balance.Equal(dec("250")) {
		t.Errorf("balance after settlement = %s, want 250", balance)
	}

	err = f.MarkEntryTerminal(ctx, entry.ID, domain.EntryCompleted, &ref)
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("second completion error = %v, want ErrInvalidTransition", err)
	}
	err = f.MarkEntryTerminal(ctx, entry.ID, domain.EntryFailed, nil)
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("failing a completed entry error = %v, want ErrInvalidTransition", err)
	}
}

func TestMarkEntryTerminal_RejectsNonPending(t *testing.T) {
	ctx := context.Background()
	f := newFakeStore()
	acc := f.seedAccount("100")

	// seedAccount records the deposit as completed at append time.
	deposit := f.completedEntries(domain.KindDeposit)[0]
	err := f.MarkEntryTerminal(ctx, deposit.ID, domain.EntryFailed, nil)
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("completed-at-append entry error = %v, want ErrInvalidTransition", err)
	}

	err = f.MarkEntryTerminal(ctx, uuid.New(), domain.EntryCompleted, nil)
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("unknown entry error = %v, want ErrInvalidTransition", err)
	}

	balance, err := f.SumForAccount(ctx, acc.ID, "XOF")
	if err != nil {
		t.Fatalf("SumForAccount() error = %v", err)
	}
	if !balance.Equal(dec("100")) {
		t.Errorf("balance = %s, want 100 untouched", balance)
	}
}

func TestSettleTopUpIntent_TerminalIsFinal(t *testing.T) {
	ctx := context.Background()
	f := newFakeStore()
	acc := f.seedAccount("0")

	intent := &domain.TopUpIntent{
		AccountID:   acc.ID,
		Amount:      dec("50"),
		Currency:    "XOF",
		ExternalRef: "charge-lifecycle-1",
		Status:      domain.IntentPending,
	}
	if err := f.CreateTopUpIntent(ctx, intent); err != nil {
		t.Fatalf("CreateTopUpIntent() error = %v", err)
	}

	entryID := uuid.New()
	if err := f.SettleTopUpIntent(ctx, intent.ID, domain.IntentSucceeded, &entryID); err != nil {
		t.Fatalf("first SettleTopUpIntent() error = %v", err)
	}

	err := f.SettleTopUpIntent(ctx, intent.ID, domain.IntentSucceeded, &entryID)
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("second settlement error = %v, want ErrInvalidTransition", err)
	}
	err = f.SettleTopUpIntent(ctx, intent.ID, domain.IntentFailed, nil)
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("failing a succeeded intent error = %v, want ErrInvalidTransition", err)
	}

	got, err := f.GetTopUpIntentByRef(ctx, "charge-lifecycle-1", false)
	if err != nil {
		t.Fatalf("GetTopUpIntentByRef() error = %v", err)
	}
	if got.Status != domain.IntentSucceeded {
		t.Errorf("intent status = %s, want succeeded", got.Status)
	}
	if got.LedgerEntryID == nil || *got.LedgerEntryID != entryID {
		t.Errorf("intent ledger entry link = %v, want %s", got.LedgerEntryID, entryID)
	}
}
