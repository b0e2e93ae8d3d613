package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/susupay/walletops/internal/domain"
	"github.com/susupay/walletops/internal/processor"
	"github.com/susupay/walletops/internal/store"
)

// fakeStore is an in-memory store.Store. txMu serializes units of work the
// way row locks do in Postgres, so concurrency tests exercise the real
// read-then-write races. mu guards the maps themselves.
type fakeStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	accounts      map[int64]*domain.Account
	nextAccountID int64

	settings *domain.Settings

	entries      []*domain.LedgerEntry
	externalRefs map[string]bool

	intents      map[int64]*domain.TopUpIntent
	nextIntentID int64

	payouts      map[int64]*domain.PayoutRequest
	nextPayoutID int64

	tontines           map[int64]*domain.Tontine
	nextTontineID      int64
	members            map[int64]*domain.TontineMember
	nextMemberID       int64
	contributions      map[int64]*domain.TontineContribution
	nextContributionID int64
	tontinePayouts     map[int64]*domain.TontinePayout
	nextTPayoutID      int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		accounts:       make(map[int64]*domain.Account),
		externalRefs:   make(map[string]bool),
		intents:        make(map[int64]*domain.TopUpIntent),
		payouts:        make(map[int64]*domain.PayoutRequest),
		tontines:       make(map[int64]*domain.Tontine),
		members:        make(map[int64]*domain.TontineMember),
		contributions:  make(map[int64]*domain.TontineContribution),
		tontinePayouts: make(map[int64]*domain.TontinePayout),
		settings: &domain.Settings{
			TransferFeePercent: dec("0.015"),
			PayoutFlatFee:      dec("5"),
			Currency:           "XOF",
		},
	}
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// seedAccount creates an account funded by a completed deposit entry, the
// same way the seeder does.
func (f *fakeStore) seedAccount(balance string) *domain.Account {
	acc, _ := f.CreateAccount(context.Background(), "XOF")
	if dec(balance).IsPositive() {
		f.AppendEntry(context.Background(), &domain.LedgerEntry{
			RecipientID: &acc.ID,
			Amount:      dec(balance),
			Currency:    "XOF",
			Kind:        domain.KindDeposit,
			Status:      domain.EntryCompleted,
			Description: "opening balance",
		})
	}
	return acc
}

func (f *fakeStore) seedPayoutAccount(balance, payeeRef string) *domain.Account {
	acc := f.seedAccount(balance)
	f.SetPayeeRef(context.Background(), acc.ID, payeeRef)
	f.SetPayoutCapability(context.Background(), acc.ID, true)
	acc.PayeeRef = &payeeRef
	acc.PayoutsEnabled = true
	return acc
}

func (f *fakeStore) seedTontine(contribution string, memberAccounts ...int64) (*domain.Tontine, []*domain.TontineMember) {
	pool, _ := f.CreateAccount(context.Background(), "XOF")
	t := &domain.Tontine{
		Name:               "test circle",
		PoolAccountID:      pool.ID,
		ContributionAmount: dec(contribution),
		Currency:           "XOF",
	}
	f.CreateTontine(context.Background(), t)

	members := make([]*domain.TontineMember, 0, len(memberAccounts))
	for i, accID := range memberAccounts {
		m := &domain.TontineMember{TontineID: t.ID, AccountID: accID, Position: i + 1}
		f.AddTontineMember(context.Background(), m)
		members = append(members, m)
	}
	return t, members
}

func (f *fakeStore) WithTx(ctx context.Context, fn func(store.Querier) error) error {
	f.txMu.Lock()
	defer f.txMu.Unlock()
	return fn(f)
}

func (f *fakeStore) WithAccountLock(ctx context.Context, accountIDs []int64, fn func(store.Querier) error) error {
	f.txMu.Lock()
	defer f.txMu.Unlock()
	f.mu.Lock()
	for _, id := range accountIDs {
		if _, ok := f.accounts[id]; !ok {
			f.mu.Unlock()
			return domain.ErrAccountNotFound
		}
	}
	f.mu.Unlock()
	return fn(f)
}

func (f *fakeStore) CreateAccount(ctx context.Context, currency string) (*domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextAccountID++
	acc := &domain.Account{ID: f.nextAccountID, Currency: currency, CreatedAt: time.Now()}
	f.accounts[acc.ID] = acc
	out := *acc
	return &out, nil
}

func (f *fakeStore) GetAccount(ctx context.Context, id int64) (*domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	acc, ok := f.accounts[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	out := *acc
	return &out, nil
}

func (f *fakeStore) UpdateBalanceHint(ctx context.Context, id int64, hint decimal.Decimal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	acc, ok := f.accounts[id]
	if !ok {
		return domain.ErrAccountNotFound
	}
	acc.BalanceHint = hint
	return nil
}

func (f *fakeStore) SetCustomerRef(ctx context.Context, id int64, ref string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	acc, ok := f.accounts[id]
	if !ok {
		return domain.ErrAccountNotFound
	}
	acc.CustomerRef = &ref
	return nil
}

func (f *fakeStore) SetPayeeRef(ctx context.Context, id int64, ref string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	acc, ok := f.accounts[id]
	if !ok {
		return domain.ErrAccountNotFound
	}
	acc.PayeeRef = &ref
	return nil
}

func (f *fakeStore) SetPayoutCapability(ctx context.Context, id int64, enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	acc, ok := f.accounts[id]
	if !ok {
		return domain.ErrAccountNotFound
	}
	acc.PayoutsEnabled = enabled
	return nil
}

func (f *fakeStore) GetSettings(ctx context.Context) (*domain.Settings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.settings == nil {
		return nil, domain.ErrSettingsMissing
	}
	out := *f.settings
	return &out, nil
}

func (f *fakeStore) UpsertSettings(ctx context.Context, s *domain.Settings) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *s
	f.settings = &copied
	return nil
}

func (f *fakeStore) AppendEntry(ctx context.Context, e *domain.LedgerEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e.ExternalRef != nil {
		if f.externalRefs[*e.ExternalRef] {
			return domain.ErrDuplicateReference
		}
		f.externalRefs[*e.ExternalRef] = true
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	f.entries = append(f.entries, e)
	return nil
}

func (f *fakeStore) MarkEntryTerminal(ctx context.Context, id uuid.UUID, status domain.EntryStatus, externalRef *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.entries {
		if e.ID == id {
			if e.Status != domain.EntryPending {
				return domain.ErrInvalidTransition
			}
			e.Status = status
			if externalRef != nil {
				e.ExternalRef = externalRef
			}
			return nil
		}
	}
	return domain.ErrInvalidTransition
}

func (f *fakeStore) SetEntryExternalRef(ctx context.Context, id uuid.UUID, ref string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.entries {
		if e.ID == id {
			e.ExternalRef = &ref
			f.externalRefs[ref] = true
			return nil
		}
	}
	return domain.ErrInvalidTransition
}

func (f *fakeStore) SumForAccount(ctx context.Context, accountID int64, currency string) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sum := decimal.Zero
	for _, e := range f.entries {
		if e.Status != domain.EntryCompleted {
			continue
		}
		if currency != "" && e.Currency != currency {
			continue
		}
		if e.RecipientID != nil && *e.RecipientID == accountID {
			sum = sum.Add(e.Amount)
		}
		if e.SenderID != nil && *e.SenderID == accountID {
			sum = sum.Sub(e.Amount).Sub(e.Fee)
		}
	}
	return sum, nil
}

func (f *fakeStore) EntriesForAccount(ctx context.Context, accountID int64, limit int32) ([]domain.LedgerEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.LedgerEntry
	for i := len(f.entries) - 1; i >= 0 && len(out) < int(limit); i-- {
		e := f.entries[i]
		touches := (e.SenderID != nil && *e.SenderID == accountID) ||
			(e.RecipientID != nil && *e.RecipientID == accountID)
		if touches {
			out = append(out, *e)
		}
	}
	return out, nil
}

// completedEntries returns copies of all completed entries of one kind, for
// assertions.
func (f *fakeStore) completedEntries(kind domain.EntryKind) []domain.LedgerEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.LedgerEntry
	for _, e := range f.entries {
		if e.Kind == kind && e.Status == domain.EntryCompleted {
			out = append(out, *e)
		}
	}
	return out
}

func (f *fakeStore) CreateTopUpIntent(ctx context.Context, in *domain.TopUpIntent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.intents {
		if existing.ExternalRef == in.ExternalRef {
			return domain.ErrDuplicateReference
		}
	}
	f.nextIntentID++
	in.ID = f.nextIntentID
	in.CreatedAt = time.Now()
	in.UpdatedAt = in.CreatedAt
	copied := *in
	f.intents[in.ID] = &copied
	return nil
}

func (f *fakeStore) GetTopUpIntentByRef(ctx context.Context, ref string, forUpdate bool) (*domain.TopUpIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, in := range f.intents {
		if in.ExternalRef == ref {
			out := *in
			return &out, nil
		}
	}
	return nil, domain.ErrIntentNotFound
}

func (f *fakeStore) SettleTopUpIntent(ctx context.Context, id int64, status domain.IntentStatus, entryID *uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	in, ok := f.intents[id]
	if !ok {
		return domain.ErrIntentNotFound
	}
	if in.Status != domain.IntentPending {
		return domain.ErrInvalidTransition
	}
	in.Status = status
	in.LedgerEntryID = entryID
	in.UpdatedAt = time.Now()
	return nil
}

func (f *fakeStore) CreatePayoutRequest(ctx context.Context, pr *domain.PayoutRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextPayoutID++
	pr.ID = f.nextPayoutID
	pr.CreatedAt = time.Now()
	pr.UpdatedAt = pr.CreatedAt
	copied := *pr
	f.payouts[pr.ID] = &copied
	return nil
}

func (f *fakeStore) GetPayoutRequest(ctx context.Context, id int64) (*domain.PayoutRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pr, ok := f.payouts[id]
	if !ok {
		return nil, domain.ErrPayoutNotFound
	}
	out := *pr
	return &out, nil
}

func (f *fakeStore) GetPayoutRequestByRef(ctx context.Context, ref string, forUpdate bool) (*domain.PayoutRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, pr := range f.payouts {
		if pr.ExternalRef != nil && *pr.ExternalRef == ref {
			out := *pr
			return &out, nil
		}
	}
	return nil, domain.ErrPayoutNotFound
}

func (f *fakeStore) UpdatePayoutStatus(ctx context.Context, id int64, status domain.PayoutStatus, externalRef, failureReason *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	pr, ok := f.payouts[id]
	if !ok {
		return domain.ErrPayoutNotFound
	}
	pr.Status = status
	if externalRef != nil {
		pr.ExternalRef = externalRef
	}
	if failureReason != nil {
		pr.FailureReason = failureReason
	}
	pr.UpdatedAt = time.Now()
	return nil
}

func (f *fakeStore) LockedPayoutTotal(ctx context.Context, accountID int64) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sum := decimal.Zero
	for _, pr := range f.payouts {
		if pr.AccountID != accountID {
			continue
		}
		if pr.Status == domain.PayoutPending || pr.Status == domain.PayoutProcessing {
			sum = sum.Add(pr.NetAmount)
		}
	}
	return sum, nil
}

func (f *fakeStore) CreateTontine(ctx context.Context, t *domain.Tontine) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextTontineID++
	t.ID = f.nextTontineID
	t.CreatedAt = time.Now()
	copied := *t
	f.tontines[t.ID] = &copied
	return nil
}

func (f *fakeStore) GetTontine(ctx context.Context, id int64) (*domain.Tontine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tontines[id]
	if !ok {
		return nil, domain.ErrTontineNotFound
	}
	out := *t
	return &out, nil
}

func (f *fakeStore) AddTontineMember(ctx context.Context, m *domain.TontineMember) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextMemberID++
	m.ID = f.nextMemberID
	m.JoinedAt = time.Now()
	copied := *m
	f.members[m.ID] = &copied
	return nil
}

func (f *fakeStore) GetTontineMember(ctx context.Context, tontineID, accountID int64) (*domain.TontineMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.members {
		if m.TontineID == tontineID && m.AccountID == accountID {
			out := *m
			return &out, nil
		}
	}
	return nil, domain.ErrMemberNotFound
}

func (f *fakeStore) GetTontineMemberByID(ctx context.Context, memberID int64) (*domain.TontineMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.members[memberID]
	if !ok {
		return nil, domain.ErrMemberNotFound
	}
	out := *m
	return &out, nil
}

func (f *fakeStore) CountTontineMembers(ctx context.Context, tontineID int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, m := range f.members {
		if m.TontineID == tontineID {
			count++
		}
	}
	return count, nil
}

func (f *fakeStore) CreateContribution(ctx context.Context, c *domain.TontineContribution) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c.SessionRef != nil {
		for _, existing := range f.contributions {
			if existing.SessionRef != nil && *existing.SessionRef == *c.SessionRef {
				return domain.ErrDuplicateReference
			}
		}
	}
	f.nextContributionID++
	c.ID = f.nextContributionID
	c.CreatedAt = time.Now()
	copied := *c
	f.contributions[c.ID] = &copied
	return nil
}

func (f *fakeStore) GetContributionBySession(ctx context.Context, sessionRef string) (*domain.TontineContribution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.contributions {
		if c.SessionRef != nil && *c.SessionRef == sessionRef {
			out := *c
			return &out, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) CreateTontinePayout(ctx context.Context, p *domain.TontinePayout) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextTPayoutID++
	p.ID = f.nextTPayoutID
	p.CreatedAt = time.Now()
	copied := *p
	f.tontinePayouts[p.ID] = &copied
	return nil
}

func (f *fakeStore) UpdatePoolTotal(ctx context.Context, tontineID int64, total decimal.Decimal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tontines[tontineID]
	if !ok {
		return domain.ErrTontineNotFound
	}
	t.PoolTotal = total
	return nil
}

var _ store.Store = (*fakeStore)(nil)

// fakeProcessor is an in-memory processor.Client with scriptable failures.
type fakeProcessor struct {
	mu sync.Mutex

	customers   int
	charges     int
	sessions    int
	payoutCalls int

	staleCustomer bool
	payoutErr     error
}

func (p *fakeProcessor) CreateCustomer(ctx context.Context, accountID int64) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.customers++
	return fmt.Sprintf("cus-%d-%d", accountID, p.customers), nil
}

func (p *fakeProcessor) CreateChargeIntent(ctx context.Context, customerRef string, amount decimal.Decimal, currency, paymentMethodRef string) (*processor.ChargeIntent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.staleCustomer {
		p.staleCustomer = false
		return nil, processor.ErrCustomerNotFound
	}
	p.charges++
	return &processor.ChargeIntent{
		Ref:         fmt.Sprintf("charge-%d", p.charges),
		ClientToken: fmt.Sprintf("tok-%d", p.charges),
	}, nil
}

func (p *fakeProcessor) CreateCheckoutSession(ctx context.Context, customerRef string, amount decimal.Decimal, currency string, metadata map[string]string) (*processor.CheckoutSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessions++
	ref := fmt.Sprintf("sess-%d", p.sessions)
	return &processor.CheckoutSession{Ref: ref, URL: "https://checkout.test/" + ref}, nil
}

func (p *fakeProcessor) CreatePayout(ctx context.Context, payeeRef string, amount decimal.Decimal, currency string) (*processor.Payout, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.payoutErr != nil {
		return nil, p.payoutErr
	}
	p.payoutCalls++
	return &processor.Payout{Ref: fmt.Sprintf("po-%d", p.payoutCalls)}, nil
}

var _ processor.Client = (*fakeProcessor)(nil)
