package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oregpt/escrowservice-sub000/internal/domain"
	"github.com/oregpt/escrowservice-sub000/internal/models"
	"github.com/oregpt/escrowservice-sub000/internal/repository"
)

func TestEscrowHappyPath(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	svc := NewEscrowService(repository.NewStore(db))

	alice, aliceOrg := newTestUser(t, db, "alice")
	bob, bobOrg := newTestUser(t, db, "bob")
	st := newTestServiceType(t, db, "15")

	// Alice's org starts with 200.00 USD available.
	aliceAcc := fundOrgAccount(t, db, aliceOrg.ID, "USD", 200_000_000)

	// 1. Alice opens a 100.00 USD escrow, open acceptance.
	escrow, err := svc.CreateEscrow(ctx, CreateEscrowRequest{
		CreatorUserID: alice.ID,
		ServiceTypeID: st.ID,
		AmountMicros:  100_000_000,
		Currency:      "USD",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.EscrowStatusCreated, escrow.Status)
	assert.Equal(t, int64(15_000_000), escrow.FeeMicros) // 15% frozen at creation
	assert.True(t, escrow.IsOpen)
	assert.Equal(t, domain.ObligationPending, escrow.ObligationA.Status)
	assert.Equal(t, domain.ObligationPending, escrow.ObligationB.Status)

	// 2. Bob accepts; his primary org becomes Party B.
	escrow, err = svc.AcceptEscrow(ctx, escrow.ID, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EscrowStatusPendingFunding, escrow.Status)
	require.NotNil(t, escrow.PartyBOrgID)
	assert.Equal(t, bobOrg.ID, *escrow.PartyBOrgID)
	assert.NotNil(t, escrow.AcceptedAt)

	// 3. Alice funds: 115.00 USD moves into the in_contract bucket.
	escrow, err = svc.FundEscrow(ctx, escrow.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EscrowStatusFunded, escrow.Status)
	assert.Equal(t, domain.ObligationCompleted, escrow.ObligationA.Status)

	available, inContract := accountBalances(t, db, aliceAcc.ID)
	assert.Equal(t, int64(85_000_000), available)
	assert.Equal(t, int64(115_000_000), inContract)

	// 4. Both parties confirm; second confirmation completes and releases.
	escrow, err = svc.ConfirmEscrow(ctx, escrow.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EscrowStatusPartyAConfirmed, escrow.Status)

	escrow, err = svc.ConfirmEscrow(ctx, escrow.ID, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EscrowStatusCompleted, escrow.Status)
	assert.Equal(t, domain.ObligationCompleted, escrow.ObligationB.Status)
	assert.NotNil(t, escrow.CompletedAt)

	available, inContract = accountBalances(t, db, aliceAcc.ID)
	assert.Equal(t, int64(85_000_000), available)
	assert.Equal(t, int64(0), inContract)

	bobAcc, err := repository.New(db).GetAccountByOwnerOrg(ctx, bobOrg.ID, "USD")
	require.NoError(t, err)
	assert.Equal(t, int64(100_000_000), bobAcc.AvailableMicros)

	feeAccountID, err := FeeAccountID("USD")
	require.NoError(t, err)
	feeAvailable, _ := accountBalances(t, db, feeAccountID)
	assert.Equal(t, int64(15_000_000), feeAvailable)

	// 5. The audit trail records every transition in order.
	events, err := svc.GetEscrowEvents(ctx, escrow.ID)
	require.NoError(t, err)
	var types []string
	for _, e := range events {
		types = append(types, e.EventType)
	}
	assert.Equal(t, []string{
		domain.EventCreated,
		domain.EventAccepted,
		domain.EventFunded,
		domain.EventPartyAConfirmed,
		domain.EventPartyBConfirmed,
		domain.EventCompleted,
	}, types)
}

func TestAcceptEscrow_ConcurrentSingleWinner(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	svc := NewEscrowService(repository.NewStore(db))

	alice, _ := newTestUser(t, db, "race-a")
	bob, _ := newTestUser(t, db, "race-b")
	carol, _ := newTestUser(t, db, "race-c")
	st := newTestServiceType(t, db, "10")

	escrow, err := svc.CreateEscrow(ctx, CreateEscrowRequest{
		CreatorUserID: alice.ID,
		ServiceTypeID: st.ID,
		AmountMicros:  10_000_000,
		Currency:      "USD",
	})
	require.NoError(t, err)

	errs := make(chan error, 2)
	for _, actor := range []uuid.UUID{bob.ID, carol.ID} {
		go func(userID uuid.UUID) {
			_, err := svc.AcceptEscrow(ctx, escrow.ID, userID)
			errs <- err
		}(actor)
	}

	var succeeded, conflicted int
	for i := 0; i < 2; i++ {
		err := <-errs
		switch {
		case err == nil:
			succeeded++
		case assert.ErrorIs(t, err, models.ErrStateConflict):
			conflicted++
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, conflicted)

	final, err := svc.GetEscrow(ctx, escrow.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EscrowStatusPendingFunding, final.Status)
	assert.NotNil(t, final.PartyBUserID)
}

func TestAcceptEscrow_AssignmentEnforced(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	svc := NewEscrowService(repository.NewStore(db))

	alice, _ := newTestUser(t, db, "assign-a")
	bob, _ := newTestUser(t, db, "assign-b")
	carol, _ := newTestUser(t, db, "assign-c")
	st := newTestServiceType(t, db, "10")

	escrow, err := svc.CreateEscrow(ctx, CreateEscrowRequest{
		CreatorUserID:  alice.ID,
		ServiceTypeID:  st.ID,
		AmountMicros:   10_000_000,
		Currency:       "USD",
		AssignedUserID: &carol.ID,
	})
	require.NoError(t, err)
	assert.False(t, escrow.IsOpen)

	_, err = svc.AcceptEscrow(ctx, escrow.ID, bob.ID)
	assert.ErrorIs(t, err, models.ErrNotEligible)

	escrow, err = svc.AcceptEscrow(ctx, escrow.ID, carol.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EscrowStatusPendingFunding, escrow.Status)
}

func TestAcceptEscrow_CreatorOrgCannotAccept(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	svc := NewEscrowService(repository.NewStore(db))

	alice, _ := newTestUser(t, db, "self-a")
	st := newTestServiceType(t, db, "10")

	escrow, err := svc.CreateEscrow(ctx, CreateEscrowRequest{
		CreatorUserID: alice.ID,
		ServiceTypeID: st.ID,
		AmountMicros:  10_000_000,
		Currency:      "USD",
	})
	require.NoError(t, err)

	_, err = svc.AcceptEscrow(ctx, escrow.ID, alice.ID)
	assert.ErrorIs(t, err, models.ErrNotEligible)
}

func TestFundEscrow_InsufficientFunds(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	svc := NewEscrowService(repository.NewStore(db))

	alice, aliceOrg := newTestUser(t, db, "poor-a")
	bob, _ := newTestUser(t, db, "poor-b")
	st := newTestServiceType(t, db, "15")

	// 50.00 USD available, but amount+fee needs 115.00.
	aliceAcc := fundOrgAccount(t, db, aliceOrg.ID, "USD", 50_000_000)

	escrow, err := svc.CreateEscrow(ctx, CreateEscrowRequest{
		CreatorUserID: alice.ID,
		ServiceTypeID: st.ID,
		AmountMicros:  100_000_000,
		Currency:      "USD",
	})
	require.NoError(t, err)
	_, err = svc.AcceptEscrow(ctx, escrow.ID, bob.ID)
	require.NoError(t, err)

	_, err = svc.FundEscrow(ctx, escrow.ID, alice.ID)
	assert.ErrorIs(t, err, models.ErrInsufficientFunds)

	// Nothing moved and the escrow is still fundable.
	available, inContract := accountBalances(t, db, aliceAcc.ID)
	assert.Equal(t, int64(50_000_000), available)
	assert.Equal(t, int64(0), inContract)

	final, err := svc.GetEscrow(ctx, escrow.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EscrowStatusPendingFunding, final.Status)
}

func TestFundEscrow_SecondFundRejected(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	svc := NewEscrowService(repository.NewStore(db))

	alice, aliceOrg := newTestUser(t, db, "double-a")
	bob, _ := newTestUser(t, db, "double-b")
	st := newTestServiceType(t, db, "10")
	aliceAcc := fundOrgAccount(t, db, aliceOrg.ID, "USD", 500_000_000)

	escrow, err := svc.CreateEscrow(ctx, CreateEscrowRequest{
		CreatorUserID: alice.ID,
		ServiceTypeID: st.ID,
		AmountMicros:  100_000_000,
		Currency:      "USD",
	})
	require.NoError(t, err)
	_, err = svc.AcceptEscrow(ctx, escrow.ID, bob.ID)
	require.NoError(t, err)
	_, err = svc.FundEscrow(ctx, escrow.ID, alice.ID)
	require.NoError(t, err)

	_, err = svc.FundEscrow(ctx, escrow.ID, alice.ID)
	assert.ErrorIs(t, err, models.ErrStateConflict)

	// The debit applied exactly once.
	available, inContract := accountBalances(t, db, aliceAcc.ID)
	assert.Equal(t, int64(390_000_000), available)
	assert.Equal(t, int64(110_000_000), inContract)
}

func TestCancelEscrow_BeforeFunding(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	svc := NewEscrowService(repository.NewStore(db))

	alice, _ := newTestUser(t, db, "cancel-a")
	st := newTestServiceType(t, db, "10")

	escrow, err := svc.CreateEscrow(ctx, CreateEscrowRequest{
		CreatorUserID: alice.ID,
		ServiceTypeID: st.ID,
		AmountMicros:  10_000_000,
		Currency:      "USD",
	})
	require.NoError(t, err)

	escrow, err = svc.CancelEscrow(ctx, escrow.ID, alice.ID, "changed my mind")
	require.NoError(t, err)
	assert.Equal(t, domain.EscrowStatusCanceled, escrow.Status)
	assert.Equal(t, "changed my mind", escrow.CancelReason)
	assert.NotNil(t, escrow.CanceledAt)
}

func TestCancelEscrow_RejectedOnceFunded(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	svc := NewEscrowService(repository.NewStore(db))

	alice, aliceOrg := newTestUser(t, db, "locked-a")
	bob, _ := newTestUser(t, db, "locked-b")
	st := newTestServiceType(t, db, "10")
	fundOrgAccount(t, db, aliceOrg.ID, "USD", 200_000_000)

	escrow, err := svc.CreateEscrow(ctx, CreateEscrowRequest{
		CreatorUserID: alice.ID,
		ServiceTypeID: st.ID,
		AmountMicros:  100_000_000,
		Currency:      "USD",
	})
	require.NoError(t, err)
	_, err = svc.AcceptEscrow(ctx, escrow.ID, bob.ID)
	require.NoError(t, err)
	_, err = svc.FundEscrow(ctx, escrow.ID, alice.ID)
	require.NoError(t, err)

	_, err = svc.CancelEscrow(ctx, escrow.ID, alice.ID, "trying to back out")
	assert.ErrorIs(t, err, models.ErrStateConflict)

	_, err = svc.CancelEscrow(ctx, escrow.ID, bob.ID, "me too")
	assert.ErrorIs(t, err, models.ErrStateConflict)
}

func TestConfirmEscrow_DoubleConfirmRejected(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	svc := NewEscrowService(repository.NewStore(db))

	alice, aliceOrg := newTestUser(t, db, "confirm-a")
	bob, _ := newTestUser(t, db, "confirm-b")
	st := newTestServiceType(t, db, "10")
	fundOrgAccount(t, db, aliceOrg.ID, "USD", 200_000_000)

	escrow, err := svc.CreateEscrow(ctx, CreateEscrowRequest{
		CreatorUserID: alice.ID,
		ServiceTypeID: st.ID,
		AmountMicros:  100_000_000,
		Currency:      "USD",
	})
	require.NoError(t, err)
	_, err = svc.AcceptEscrow(ctx, escrow.ID, bob.ID)
	require.NoError(t, err)
	_, err = svc.FundEscrow(ctx, escrow.ID, alice.ID)
	require.NoError(t, err)

	_, err = svc.ConfirmEscrow(ctx, escrow.ID, alice.ID)
	require.NoError(t, err)

	_, err = svc.ConfirmEscrow(ctx, escrow.ID, alice.ID)
	assert.ErrorIs(t, err, models.ErrAlreadyConfirmed)
}

func TestAdminCancel_RefundPartyA(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	svc := NewEscrowService(repository.NewStore(db))

	alice, aliceOrg := newTestUser(t, db, "refund-a")
	bob, bobOrg := newTestUser(t, db, "refund-b")
	admin := newPlatformAdmin(t, db, "refund-admin")
	st := newTestServiceType(t, db, "15")
	aliceAcc := fundOrgAccount(t, db, aliceOrg.ID, "USD", 200_000_000)

	escrow, err := svc.CreateEscrow(ctx, CreateEscrowRequest{
		CreatorUserID: alice.ID,
		ServiceTypeID: st.ID,
		AmountMicros:  100_000_000,
		Currency:      "USD",
	})
	require.NoError(t, err)
	_, err = svc.AcceptEscrow(ctx, escrow.ID, bob.ID)
	require.NoError(t, err)
	_, err = svc.FundEscrow(ctx, escrow.ID, alice.ID)
	require.NoError(t, err)

	escrow, err = svc.AdminCancelEscrow(ctx, escrow.ID, admin.ID, "seller unresponsive", true)
	require.NoError(t, err)
	assert.Equal(t, domain.EscrowStatusCanceled, escrow.Status)

	// The full hold (amount + fee) returned to Party A; nobody else paid.
	available, inContract := accountBalances(t, db, aliceAcc.ID)
	assert.Equal(t, int64(200_000_000), available)
	assert.Equal(t, int64(0), inContract)

	bobAcc, err := repository.New(db).GetAccountByOwnerOrg(ctx, bobOrg.ID, "USD")
	require.NoError(t, err)
	assert.Equal(t, int64(0), bobAcc.AvailableMicros)
}

func TestAdminCancel_SettlesToPartyB(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	svc := NewEscrowService(repository.NewStore(db))

	alice, aliceOrg := newTestUser(t, db, "settle-a")
	bob, bobOrg := newTestUser(t, db, "settle-b")
	admin := newPlatformAdmin(t, db, "settle-admin")
	st := newTestServiceType(t, db, "15")
	aliceAcc := fundOrgAccount(t, db, aliceOrg.ID, "USD", 200_000_000)

	escrow, err := svc.CreateEscrow(ctx, CreateEscrowRequest{
		CreatorUserID: alice.ID,
		ServiceTypeID: st.ID,
		AmountMicros:  100_000_000,
		Currency:      "USD",
	})
	require.NoError(t, err)
	_, err = svc.AcceptEscrow(ctx, escrow.ID, bob.ID)
	require.NoError(t, err)
	_, err = svc.FundEscrow(ctx, escrow.ID, alice.ID)
	require.NoError(t, err)

	escrow, err = svc.AdminCancelEscrow(ctx, escrow.ID, admin.ID, "buyer disputed in bad faith", false)
	require.NoError(t, err)
	assert.Equal(t, domain.EscrowStatusCanceled, escrow.Status)

	// Settled as if completed: Party B paid, fee collected.
	available, inContract := accountBalances(t, db, aliceAcc.ID)
	assert.Equal(t, int64(85_000_000), available)
	assert.Equal(t, int64(0), inContract)

	bobAcc, err := repository.New(db).GetAccountByOwnerOrg(ctx, bobOrg.ID, "USD")
	require.NoError(t, err)
	assert.Equal(t, int64(100_000_000), bobAcc.AvailableMicros)

	feeAccountID, err := FeeAccountID("USD")
	require.NoError(t, err)
	feeAvailable, _ := accountBalances(t, db, feeAccountID)
	assert.Equal(t, int64(15_000_000), feeAvailable)
}

func TestAdminCancel_UnauthorizedActor(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	svc := NewEscrowService(repository.NewStore(db))

	alice, _ := newTestUser(t, db, "unauth-a")
	mallory, _ := newTestUser(t, db, "unauth-m")
	st := newTestServiceType(t, db, "10")

	escrow, err := svc.CreateEscrow(ctx, CreateEscrowRequest{
		CreatorUserID: alice.ID,
		ServiceTypeID: st.ID,
		AmountMicros:  10_000_000,
		Currency:      "USD",
	})
	require.NoError(t, err)

	_, err = svc.AdminCancelEscrow(ctx, escrow.ID, mallory.ID, "not my call", true)
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestAdminForceComplete_ByPersonArbiter(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	svc := NewEscrowService(repository.NewStore(db))

	alice, aliceOrg := newTestUser(t, db, "force-a")
	bob, bobOrg := newTestUser(t, db, "force-b")
	judge, _ := newTestUser(t, db, "force-judge")
	st := newTestServiceType(t, db, "15")
	fundOrgAccount(t, db, aliceOrg.ID, "USD", 200_000_000)

	escrow, err := svc.CreateEscrow(ctx, CreateEscrowRequest{
		CreatorUserID: alice.ID,
		ServiceTypeID: st.ID,
		AmountMicros:  100_000_000,
		Currency:      "USD",
		ArbiterType:   domain.ArbiterPerson,
		ArbiterUserID: &judge.ID,
	})
	require.NoError(t, err)
	_, err = svc.AcceptEscrow(ctx, escrow.ID, bob.ID)
	require.NoError(t, err)
	_, err = svc.FundEscrow(ctx, escrow.ID, alice.ID)
	require.NoError(t, err)

	// Bob cannot invoke the arbiter path himself.
	_, err = svc.AdminForceComplete(ctx, escrow.ID, bob.ID, "I delivered")
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	escrow, err = svc.AdminForceComplete(ctx, escrow.ID, judge.ID, "delivery verified")
	require.NoError(t, err)
	assert.Equal(t, domain.EscrowStatusCompleted, escrow.Status)

	bobAcc, err := repository.New(db).GetAccountByOwnerOrg(ctx, bobOrg.ID, "USD")
	require.NoError(t, err)
	assert.Equal(t, int64(100_000_000), bobAcc.AvailableMicros)
}

func TestAdminForceComplete_RequiresLockedFunds(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	svc := NewEscrowService(repository.NewStore(db))

	alice, _ := newTestUser(t, db, "unlocked-a")
	admin := newPlatformAdmin(t, db, "unlocked-admin")
	st := newTestServiceType(t, db, "10")

	escrow, err := svc.CreateEscrow(ctx, CreateEscrowRequest{
		CreatorUserID: alice.ID,
		ServiceTypeID: st.ID,
		AmountMicros:  10_000_000,
		Currency:      "USD",
	})
	require.NoError(t, err)

	_, err = svc.AdminForceComplete(ctx, escrow.ID, admin.ID, "nothing to settle")
	assert.ErrorIs(t, err, models.ErrStateConflict)
}

func TestAttachEvidence(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	svc := NewEscrowService(repository.NewStore(db))

	alice, aliceOrg := newTestUser(t, db, "evidence-a")
	bob, _ := newTestUser(t, db, "evidence-b")
	st := newTestServiceType(t, db, "10")
	fundOrgAccount(t, db, aliceOrg.ID, "USD", 200_000_000)

	escrow, err := svc.CreateEscrow(ctx, CreateEscrowRequest{
		CreatorUserID: alice.ID,
		ServiceTypeID: st.ID,
		AmountMicros:  100_000_000,
		Currency:      "USD",
	})
	require.NoError(t, err)
	_, err = svc.AcceptEscrow(ctx, escrow.ID, bob.ID)
	require.NoError(t, err)
	_, err = svc.FundEscrow(ctx, escrow.ID, alice.ID)
	require.NoError(t, err)

	// Bob cannot attach to Party A's obligation.
	_, err = svc.AttachEvidence(ctx, escrow.ID, bob.ID, "evidence_a", []string{"att-1"})
	assert.ErrorIs(t, err, models.ErrNotAParty)

	escrow, err = svc.AttachEvidence(ctx, escrow.ID, bob.ID, "evidence_b", []string{"att-1", "att-2"})
	require.NoError(t, err)
	assert.Equal(t, []string{"att-1", "att-2"}, escrow.ObligationB.EvidenceIDs)
	// Linking evidence never flips the obligation status.
	assert.Equal(t, domain.ObligationPending, escrow.ObligationB.Status)
}
