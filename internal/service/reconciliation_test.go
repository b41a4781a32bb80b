package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oregpt/escrowservice-sub000/internal/repository"
)

func TestReconciliationCleanLedger(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	store := repository.NewStore(db)

	_, org := newTestUser(t, db, "rec-clean")
	account := fundOrgAccount(t, db, org.ID, "USD", 10_000_000)

	// Lock part of the balance so both buckets carry entries.
	err := store.RunInTx(ctx, func(qtx *repository.Queries) error {
		return NewLedgerService().LockForEscrow(ctx, qtx, account.ID, 4_000_000, account.ID)
	})
	require.NoError(t, err)

	drift, err := repository.New(db).GetLedgerBucketDrift(ctx)
	require.NoError(t, err)
	assert.Empty(t, drift)

	require.NoError(t, NewReconciliationService(store).Run(ctx))
}

func TestReconciliationDetectsDrift(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	store := repository.NewStore(db)

	_, org := newTestUser(t, db, "rec-drift")
	account := fundOrgAccount(t, db, org.ID, "USD", 10_000_000)

	// Corrupt the stored balance behind the ledger's back.
	_, err := db.Exec(ctx, "UPDATE accounts SET available_micros = available_micros + 500 WHERE id = $1", account.ID)
	require.NoError(t, err)

	drift, err := repository.New(db).GetLedgerBucketDrift(ctx)
	require.NoError(t, err)
	require.Len(t, drift, 1)
	assert.Equal(t, account.ID, drift[0].AccountID)
	assert.Equal(t, "available", drift[0].Bucket)
	assert.Equal(t, int64(10_000_000), drift[0].EntrySum)
	assert.Equal(t, int64(10_000_500), drift[0].Balance)

	// Run only logs; it must not fail on drift.
	require.NoError(t, NewReconciliationService(store).Run(ctx))
}

func TestReconciliationDetectsBucketDrift(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()

	_, org := newTestUser(t, db, "rec-bucket")
	account := fundOrgAccount(t, db, org.ID, "USD", 10_000_000)

	// An in_contract balance with no matching entries is drift too.
	_, err := db.Exec(ctx, "UPDATE accounts SET in_contract_micros = 1000 WHERE id = $1", account.ID)
	require.NoError(t, err)

	drift, err := repository.New(db).GetLedgerBucketDrift(ctx)
	require.NoError(t, err)
	require.Len(t, drift, 1)
	assert.Equal(t, "in_contract", drift[0].Bucket)
}
