package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oregpt/escrowservice-sub000/internal/domain"
	"github.com/oregpt/escrowservice-sub000/internal/models"
	"github.com/oregpt/escrowservice-sub000/internal/repository"
)

// stubGateway replaces the mock rail so tests control the outcome.
type stubGateway struct {
	ref   string
	err   error
	calls int
}

func (g *stubGateway) SendWithdrawal(ctx context.Context, destination string, amountMicros int64, currency string) (string, error) {
	g.calls++
	if g.err != nil {
		return "", g.err
	}
	return g.ref, nil
}

func testDestination() WithdrawalDestinationInput {
	return WithdrawalDestinationInput{IBAN: "DE89370400440532013000", Name: "ACME GmbH"}
}

func TestRequestWithdrawalDebitsAvailable(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	svc := NewWithdrawalService(repository.NewStore(db), &stubGateway{ref: "GW-1"})

	_, org := newTestUser(t, db, "wd-user")
	account := fundOrgAccount(t, db, org.ID, "USD", 5_000_000)

	resp, err := svc.RequestWithdrawal(ctx, RequestWithdrawalRequest{
		AccountID:    account.ID,
		AmountMicros: 3_000_000,
		Currency:     "USD",
		Destination:  testDestination(),
		ReferenceID:  "wd-ref-1",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.WithdrawalStatusPending, resp.Status)

	available, _ := accountBalances(t, db, account.ID)
	assert.Equal(t, int64(2_000_000), available)

	w, err := svc.GetWithdrawal(ctx, "wd-ref-1")
	require.NoError(t, err)
	assert.Equal(t, domain.WithdrawalStatusPending, w.Status)
	assert.Equal(t, int64(3_000_000), w.AmountMicros)
}

func TestRequestWithdrawalIdempotentOnReference(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	svc := NewWithdrawalService(repository.NewStore(db), &stubGateway{ref: "GW-1"})

	_, org := newTestUser(t, db, "wd-idem")
	account := fundOrgAccount(t, db, org.ID, "USD", 5_000_000)

	req := RequestWithdrawalRequest{
		AccountID:    account.ID,
		AmountMicros: 3_000_000,
		Currency:     "USD",
		Destination:  testDestination(),
		ReferenceID:  "wd-ref-2",
	}
	first, err := svc.RequestWithdrawal(ctx, req)
	require.NoError(t, err)

	second, err := svc.RequestWithdrawal(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first.WithdrawalID, second.WithdrawalID)
	assert.Equal(t, "Withdrawal already exists", second.Message)

	// The debit applied once.
	available, _ := accountBalances(t, db, account.ID)
	assert.Equal(t, int64(2_000_000), available)
}

func TestRequestWithdrawalInsufficientFunds(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	svc := NewWithdrawalService(repository.NewStore(db), &stubGateway{ref: "GW-1"})

	_, org := newTestUser(t, db, "wd-poor")
	account := fundOrgAccount(t, db, org.ID, "USD", 1_000_000)

	_, err := svc.RequestWithdrawal(ctx, RequestWithdrawalRequest{
		AccountID:    account.ID,
		AmountMicros: 2_000_000,
		Currency:     "USD",
		Destination:  testDestination(),
		ReferenceID:  "wd-ref-3",
	})
	assert.ErrorIs(t, err, models.ErrInsufficientFunds)

	available, _ := accountBalances(t, db, account.ID)
	assert.Equal(t, int64(1_000_000), available)
}

func TestRequestWithdrawalInContractNotSpendable(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	svc := NewWithdrawalService(repository.NewStore(db), &stubGateway{ref: "GW-1"})

	_, org := newTestUser(t, db, "wd-locked")
	account := fundOrgAccount(t, db, org.ID, "USD", 5_000_000)

	// Move most of the balance into the in_contract bucket.
	store := repository.NewStore(db)
	err := store.RunInTx(ctx, func(qtx *repository.Queries) error {
		return NewLedgerService().LockForEscrow(ctx, qtx, account.ID, 4_000_000, account.ID)
	})
	require.NoError(t, err)

	_, err = svc.RequestWithdrawal(ctx, RequestWithdrawalRequest{
		AccountID:    account.ID,
		AmountMicros: 2_000_000,
		Currency:     "USD",
		Destination:  testDestination(),
		ReferenceID:  "wd-ref-4",
	})
	assert.ErrorIs(t, err, models.ErrInsufficientFunds)
}

func TestProcessWithdrawalsCompletes(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	gw := &stubGateway{ref: "GW-OK-1"}
	svc := NewWithdrawalService(repository.NewStore(db), gw)

	_, org := newTestUser(t, db, "wd-proc")
	account := fundOrgAccount(t, db, org.ID, "USD", 5_000_000)

	_, err := svc.RequestWithdrawal(ctx, RequestWithdrawalRequest{
		AccountID:    account.ID,
		AmountMicros: 3_000_000,
		Currency:     "USD",
		Destination:  testDestination(),
		ReferenceID:  "wd-ref-5",
	})
	require.NoError(t, err)

	require.NoError(t, svc.ProcessWithdrawals(ctx, 10))
	assert.Equal(t, 1, gw.calls)

	w, err := svc.GetWithdrawal(ctx, "wd-ref-5")
	require.NoError(t, err)
	assert.Equal(t, domain.WithdrawalStatusCompleted, w.Status)
	require.NotNil(t, w.GatewayRef)
	assert.Equal(t, "GW-OK-1", *w.GatewayRef)

	// The money stays gone.
	available, _ := accountBalances(t, db, account.ID)
	assert.Equal(t, int64(2_000_000), available)
}

func TestProcessWithdrawalsRefundsOnFailure(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	gw := &stubGateway{err: errors.New("gateway rejected destination")}
	svc := NewWithdrawalService(repository.NewStore(db), gw)

	_, org := newTestUser(t, db, "wd-fail")
	account := fundOrgAccount(t, db, org.ID, "USD", 5_000_000)

	_, err := svc.RequestWithdrawal(ctx, RequestWithdrawalRequest{
		AccountID:    account.ID,
		AmountMicros: 3_000_000,
		Currency:     "USD",
		Destination:  testDestination(),
		ReferenceID:  "wd-ref-6",
	})
	require.NoError(t, err)

	require.NoError(t, svc.ProcessWithdrawals(ctx, 10))

	w, err := svc.GetWithdrawal(ctx, "wd-ref-6")
	require.NoError(t, err)
	assert.Equal(t, domain.WithdrawalStatusFailed, w.Status)

	// The debit was re-credited through a REFUND entry.
	available, _ := accountBalances(t, db, account.ID)
	assert.Equal(t, int64(5_000_000), available)

	entry, err := repository.New(db).GetLedgerEntryByReference(ctx, "wd-ref-6", domain.EntryRefund)
	require.NoError(t, err)
	assert.Equal(t, int64(3_000_000), entry.AmountMicros)
}

func TestProcessWithdrawalsStopsOnContextCancel(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	gw := &stubGateway{ref: "GW-1"}
	svc := NewWithdrawalService(repository.NewStore(db), gw)

	_, org := newTestUser(t, db, "wd-cancel")
	account := fundOrgAccount(t, db, org.ID, "USD", 5_000_000)

	_, err := svc.RequestWithdrawal(context.Background(), RequestWithdrawalRequest{
		AccountID:    account.ID,
		AmountMicros: 1_000_000,
		Currency:     "USD",
		Destination:  testDestination(),
		ReferenceID:  "wd-ref-7",
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = svc.ProcessWithdrawals(ctx, 10)
	require.Error(t, err)
	assert.Equal(t, 0, gw.calls)

	// The withdrawal is untouched and eligible for the next run.
	w, err := svc.GetWithdrawal(context.Background(), "wd-ref-7")
	require.NoError(t, err)
	assert.Equal(t, domain.WithdrawalStatusPending, w.Status)
}
