package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oregpt/escrowservice-sub000/internal/domain"
	"github.com/oregpt/escrowservice-sub000/internal/repository"
)

func TestHandleDepositWebhookCreditsAvailable(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	svc := NewWebhookService(repository.NewStore(db), "secret", false)

	_, org := newTestUser(t, db, "deposit-user")
	account := fundOrgAccount(t, db, org.ID, "USD", 0)

	payload := DepositWebhookPayload{
		AccountID:    account.ID.String(),
		AmountMicros: 750_000,
		Currency:     "USD",
		Reference:    "dep-1",
	}
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	resp, err := svc.HandleDepositWebhook(ctx, body, signPayload("secret", body))
	require.NoError(t, err)
	assert.Equal(t, "COMPLETED", resp.Status)

	available, inContract := accountBalances(t, db, account.ID)
	assert.Equal(t, int64(750_000), available)
	assert.Equal(t, int64(0), inContract)

	entry, err := repository.New(db).GetLedgerEntryByReference(ctx, "dep-1", domain.EntryDeposit)
	require.NoError(t, err)
	assert.Equal(t, int64(750_000), entry.AmountMicros)
	assert.Equal(t, domain.BucketAvailable, entry.Bucket)
}

func TestHandleDepositWebhookRejectsBadSignature(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	svc := NewWebhookService(repository.NewStore(db), "secret", false)

	_, org := newTestUser(t, db, "sig-user")
	account := fundOrgAccount(t, db, org.ID, "USD", 0)

	payload := DepositWebhookPayload{
		AccountID:    account.ID.String(),
		AmountMicros: 100_000,
		Currency:     "USD",
		Reference:    "dep-2",
	}
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	_, err = svc.HandleDepositWebhook(ctx, body, "sha256=bad")
	assert.ErrorIs(t, err, ErrInvalidSignature)

	available, _ := accountBalances(t, db, account.ID)
	assert.Equal(t, int64(0), available)
}

func TestHandleDepositWebhookReplayCreditsOnce(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	svc := NewWebhookService(repository.NewStore(db), "secret", false)

	_, org := newTestUser(t, db, "replay-user")
	account := fundOrgAccount(t, db, org.ID, "USD", 0)

	payload := DepositWebhookPayload{
		AccountID:    account.ID.String(),
		AmountMicros: 2_000_000,
		Currency:     "USD",
		Reference:    "dep-3",
	}
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	signature := signPayload("secret", body)

	_, err = svc.HandleDepositWebhook(ctx, body, signature)
	require.NoError(t, err)

	// The rail re-delivers the identical notification.
	resp, err := svc.HandleDepositWebhook(ctx, body, signature)
	require.NoError(t, err)
	assert.Equal(t, "Deposit already processed", resp.Message)

	available, _ := accountBalances(t, db, account.ID)
	assert.Equal(t, int64(2_000_000), available)
}

func TestHandleDepositWebhookRejectsMismatchedReplay(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	svc := NewWebhookService(repository.NewStore(db), "secret", false)

	_, org := newTestUser(t, db, "mismatch-user")
	account := fundOrgAccount(t, db, org.ID, "USD", 0)

	payload := DepositWebhookPayload{
		AccountID:    account.ID.String(),
		AmountMicros: 1_000_000,
		Currency:     "USD",
		Reference:    "dep-4",
	}
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	_, err = svc.HandleDepositWebhook(ctx, body, signPayload("secret", body))
	require.NoError(t, err)

	// Same reference, different amount.
	payload.AmountMicros = 9_000_000
	body, err = json.Marshal(payload)
	require.NoError(t, err)

	_, err = svc.HandleDepositWebhook(ctx, body, signPayload("secret", body))
	assert.ErrorIs(t, err, ErrDepositPayloadMismatch)

	available, _ := accountBalances(t, db, account.ID)
	assert.Equal(t, int64(1_000_000), available)
}

func TestHandleDepositWebhookRejectsCurrencyMismatch(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	svc := NewWebhookService(repository.NewStore(db), "secret", false)

	_, org := newTestUser(t, db, "currency-user")
	account := fundOrgAccount(t, db, org.ID, "USD", 0)

	payload := DepositWebhookPayload{
		AccountID:    account.ID.String(),
		AmountMicros: 1_000_000,
		Currency:     "EUR",
		Reference:    "dep-5",
	}
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	_, err = svc.HandleDepositWebhook(ctx, body, signPayload("secret", body))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "currency mismatch")
}

func signPayload(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
