package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/oregpt/escrowservice-sub000/internal/domain"
	"github.com/oregpt/escrowservice-sub000/internal/repository"
)

var (
	ErrInvalidSignature       = errors.New("invalid signature")
	ErrDepositPayloadMismatch = errors.New("deposit payload does not match existing reference")
)

// WebhookService ingests deposit notifications from the external funding
// rail. Deposits are the only way money enters the platform.
type WebhookService struct {
	store   QueryStore
	ledger  *LedgerService
	hmacKey []byte
	skipSig bool
}

func NewWebhookService(store QueryStore, hmacKey string, skipSignature bool) *WebhookService {
	return &WebhookService{
		store:   store,
		ledger:  NewLedgerService(),
		hmacKey: []byte(hmacKey),
		skipSig: skipSignature,
	}
}

// DepositWebhookPayload is the rail's deposit notification body.
type DepositWebhookPayload struct {
	AccountID    string `json:"account_id"`
	AmountMicros int64  `json:"amount_micros"`
	Currency     string `json:"currency"`
	Reference    string `json:"reference"`
}

type DepositWebhookResponse struct {
	AccountID uuid.UUID `json:"account_id"`
	Reference string    `json:"reference"`
	Status    string    `json:"status"`
	Message   string    `json:"message"`
}

// HandleDepositWebhook verifies the HMAC signature, then credits the target
// account's available bucket exactly once per external reference. A replay
// with the same reference returns the original outcome; a replay with a
// different amount or account is rejected.
func (s *WebhookService) HandleDepositWebhook(ctx context.Context, payload []byte, signature string) (*DepositWebhookResponse, error) {
	if !s.verifyHMAC(payload, signature) {
		return nil, ErrInvalidSignature
	}

	var deposit DepositWebhookPayload
	if err := json.Unmarshal(payload, &deposit); err != nil {
		return nil, fmt.Errorf("invalid payload: %w", err)
	}
	deposit.Currency = strings.ToUpper(strings.TrimSpace(deposit.Currency))
	deposit.Reference = strings.TrimSpace(deposit.Reference)
	deposit.AccountID = strings.TrimSpace(deposit.AccountID)

	if deposit.AmountMicros <= 0 {
		return nil, fmt.Errorf("invalid amount: %d", deposit.AmountMicros)
	}
	if deposit.Reference == "" {
		return nil, errors.New("reference is required")
	}
	if !domain.IsValidCurrency(deposit.Currency) {
		return nil, fmt.Errorf("unsupported currency: %s", deposit.Currency)
	}
	accountID, err := uuid.Parse(deposit.AccountID)
	if err != nil {
		return nil, fmt.Errorf("invalid account_id: %w", err)
	}

	err = s.store.RunInTx(ctx, func(qtx *repository.Queries) error {
		account, err := qtx.GetAccountForUpdate(ctx, accountID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("deposit account %s not found", accountID)
			}
			return fmt.Errorf("lock deposit account: %w", err)
		}
		if account.Currency != deposit.Currency {
			return fmt.Errorf("currency mismatch: account is %s, deposit is %s", account.Currency, deposit.Currency)
		}

		// Replay check runs under the account lock so two deliveries of
		// the same reference serialize instead of double-crediting.
		existing, err := qtx.GetLedgerEntryByReference(ctx, deposit.Reference, domain.EntryDeposit)
		if err == nil {
			if existing.AccountID != accountID || existing.AmountMicros != deposit.AmountMicros {
				return ErrDepositPayloadMismatch
			}
			return errAlreadyProcessed
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("check deposit reference: %w", err)
		}

		return s.ledger.Deposit(ctx, qtx, accountID, deposit.AmountMicros, deposit.Reference)
	})
	if errors.Is(err, errAlreadyProcessed) {
		return &DepositWebhookResponse{
			AccountID: accountID,
			Reference: deposit.Reference,
			Status:    "COMPLETED",
			Message:   "Deposit already processed",
		}, nil
	}
	if err != nil {
		return nil, err
	}

	return &DepositWebhookResponse{
		AccountID: accountID,
		Reference: deposit.Reference,
		Status:    "COMPLETED",
		Message:   "Deposit processed successfully",
	}, nil
}

var errAlreadyProcessed = errors.New("deposit already processed")

func (s *WebhookService) verifyHMAC(payload []byte, signature string) bool {
	if s.skipSig {
		return true
	}
	if len(s.hmacKey) == 0 {
		return false
	}

	h := hmac.New(sha256.New, s.hmacKey)
	h.Write(payload)
	expected := "sha256=" + hex.EncodeToString(h.Sum(nil))
	return hmac.Equal([]byte(signature), []byte(expected))
}
