package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/oregpt/escrowservice-sub000/internal/domain"
	"github.com/oregpt/escrowservice-sub000/internal/models"
	"github.com/oregpt/escrowservice-sub000/internal/repository"
)

// LedgerService is the only component allowed to mutate account balances.
// Every method runs on a transaction-scoped query handle whose transaction
// already holds row locks on the touched accounts (acquired in ascending id
// order by the caller); re-acquiring a lock the transaction holds is free.
// Each balance mutation writes matching append-only ledger entries so the
// per-bucket running sum always equals the stored balance.
type LedgerService struct{}

func NewLedgerService() *LedgerService {
	return &LedgerService{}
}

// LockForEscrow moves amount from the available bucket into in_contract,
// failing with ErrInsufficientFunds when the available balance is short.
func (s *LedgerService) LockForEscrow(ctx context.Context, qtx *repository.Queries, accountID uuid.UUID, amountMicros int64, escrowID uuid.UUID) error {
	if amountMicros <= 0 {
		return fmt.Errorf("invalid lock amount: %d", amountMicros)
	}

	account, err := qtx.GetAccountForUpdate(ctx, accountID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("account %s: %w", accountID, models.ErrNotFound)
		}
		return fmt.Errorf("lock account %s: %w", accountID, err)
	}
	if account.AvailableMicros < amountMicros {
		return models.ErrInsufficientFunds
	}

	rows, err := qtx.AdjustAccountBalances(ctx, repository.AdjustAccountBalancesParams{
		ID:              accountID,
		AvailableDelta:  -amountMicros,
		InContractDelta: amountMicros,
	})
	if err != nil {
		return fmt.Errorf("move funds into contract: %w", err)
	}
	if err := requireExactlyOne(rows, "escrow lock balance update"); err != nil {
		return err
	}

	ref := escrowID.String()
	if err := qtx.InsertLedgerEntry(ctx, repository.InsertLedgerEntryParams{
		AccountID: accountID, AmountMicros: -amountMicros,
		Bucket: domain.BucketAvailable, EntryType: domain.EntryEscrowLock, ReferenceID: ref,
	}); err != nil {
		return err
	}
	return qtx.InsertLedgerEntry(ctx, repository.InsertLedgerEntryParams{
		AccountID: accountID, AmountMicros: amountMicros,
		Bucket: domain.BucketInContract, EntryType: domain.EntryEscrowLock, ReferenceID: ref,
	})
}

// ReleaseEscrow settles a completed escrow: the payer's in_contract hold is
// drained, the payee receives total minus fee into available, and the
// platform fee account collects the fee.
func (s *LedgerService) ReleaseEscrow(ctx context.Context, qtx *repository.Queries, payerID, payeeID, feeAccountID uuid.UUID, totalMicros, feeMicros int64, escrowID uuid.UUID) error {
	if totalMicros <= 0 || feeMicros < 0 || feeMicros > totalMicros {
		return fmt.Errorf("invalid release amounts: total=%d fee=%d", totalMicros, feeMicros)
	}

	payer, err := qtx.GetAccountForUpdate(ctx, payerID)
	if err != nil {
		return fmt.Errorf("lock payer account: %w", err)
	}
	if payer.InContractMicros < totalMicros {
		return fmt.Errorf("payer in_contract balance %d below release total %d", payer.InContractMicros, totalMicros)
	}

	ref := escrowID.String()

	rows, err := qtx.AdjustAccountBalances(ctx, repository.AdjustAccountBalancesParams{
		ID: payerID, InContractDelta: -totalMicros,
	})
	if err != nil {
		return fmt.Errorf("drain payer hold: %w", err)
	}
	if err := requireExactlyOne(rows, "payer release update"); err != nil {
		return err
	}
	if err := qtx.InsertLedgerEntry(ctx, repository.InsertLedgerEntryParams{
		AccountID: payerID, AmountMicros: -totalMicros,
		Bucket: domain.BucketInContract, EntryType: domain.EntryEscrowRelease, ReferenceID: ref,
	}); err != nil {
		return err
	}

	payeeAmount := totalMicros - feeMicros
	rows, err = qtx.AdjustAccountBalances(ctx, repository.AdjustAccountBalancesParams{
		ID: payeeID, AvailableDelta: payeeAmount,
	})
	if err != nil {
		return fmt.Errorf("credit payee: %w", err)
	}
	if err := requireExactlyOne(rows, "payee release update"); err != nil {
		return err
	}
	if err := qtx.InsertLedgerEntry(ctx, repository.InsertLedgerEntryParams{
		AccountID: payeeID, AmountMicros: payeeAmount,
		Bucket: domain.BucketAvailable, EntryType: domain.EntryEscrowReceive, ReferenceID: ref,
	}); err != nil {
		return err
	}

	if feeMicros == 0 {
		return nil
	}
	rows, err = qtx.AdjustAccountBalances(ctx, repository.AdjustAccountBalancesParams{
		ID: feeAccountID, AvailableDelta: feeMicros,
	})
	if err != nil {
		return fmt.Errorf("credit fee account: %w", err)
	}
	if err := requireExactlyOne(rows, "fee account update"); err != nil {
		return err
	}
	return qtx.InsertLedgerEntry(ctx, repository.InsertLedgerEntryParams{
		AccountID: feeAccountID, AmountMicros: feeMicros,
		Bucket: domain.BucketAvailable, EntryType: domain.EntryPlatformFee, ReferenceID: ref,
	})
}

// RefundEscrow reverses a lock, returning the full hold to the payer's
// available bucket.
func (s *LedgerService) RefundEscrow(ctx context.Context, qtx *repository.Queries, accountID uuid.UUID, totalMicros int64, escrowID uuid.UUID) error {
	if totalMicros <= 0 {
		return fmt.Errorf("invalid refund amount: %d", totalMicros)
	}

	account, err := qtx.GetAccountForUpdate(ctx, accountID)
	if err != nil {
		return fmt.Errorf("lock refund account: %w", err)
	}
	if account.InContractMicros < totalMicros {
		return fmt.Errorf("in_contract balance %d below refund total %d", account.InContractMicros, totalMicros)
	}

	rows, err := qtx.AdjustAccountBalances(ctx, repository.AdjustAccountBalancesParams{
		ID:              accountID,
		AvailableDelta:  totalMicros,
		InContractDelta: -totalMicros,
	})
	if err != nil {
		return fmt.Errorf("refund balance update: %w", err)
	}
	if err := requireExactlyOne(rows, "refund balance update"); err != nil {
		return err
	}

	ref := escrowID.String()
	if err := qtx.InsertLedgerEntry(ctx, repository.InsertLedgerEntryParams{
		AccountID: accountID, AmountMicros: -totalMicros,
		Bucket: domain.BucketInContract, EntryType: domain.EntryRefund, ReferenceID: ref,
	}); err != nil {
		return err
	}
	return qtx.InsertLedgerEntry(ctx, repository.InsertLedgerEntryParams{
		AccountID: accountID, AmountMicros: totalMicros,
		Bucket: domain.BucketAvailable, EntryType: domain.EntryRefund, ReferenceID: ref,
	})
}

// Deposit credits an external top-up into the available bucket.
func (s *LedgerService) Deposit(ctx context.Context, qtx *repository.Queries, accountID uuid.UUID, amountMicros int64, referenceID string) error {
	if amountMicros <= 0 {
		return fmt.Errorf("invalid deposit amount: %d", amountMicros)
	}

	rows, err := qtx.AdjustAccountBalances(ctx, repository.AdjustAccountBalancesParams{
		ID: accountID, AvailableDelta: amountMicros,
	})
	if err != nil {
		return fmt.Errorf("deposit balance update: %w", err)
	}
	if err := requireExactlyOne(rows, "deposit balance update"); err != nil {
		return err
	}
	return qtx.InsertLedgerEntry(ctx, repository.InsertLedgerEntryParams{
		AccountID: accountID, AmountMicros: amountMicros,
		Bucket: domain.BucketAvailable, EntryType: domain.EntryDeposit, ReferenceID: referenceID,
	})
}

// RefundWithdrawal re-credits the available bucket after a failed payout.
func (s *LedgerService) RefundWithdrawal(ctx context.Context, qtx *repository.Queries, accountID uuid.UUID, amountMicros int64, referenceID string) error {
	if amountMicros <= 0 {
		return fmt.Errorf("invalid withdrawal refund amount: %d", amountMicros)
	}

	rows, err := qtx.AdjustAccountBalances(ctx, repository.AdjustAccountBalancesParams{
		ID: accountID, AvailableDelta: amountMicros,
	})
	if err != nil {
		return fmt.Errorf("withdrawal refund balance update: %w", err)
	}
	if err := requireExactlyOne(rows, "withdrawal refund balance update"); err != nil {
		return err
	}
	return qtx.InsertLedgerEntry(ctx, repository.InsertLedgerEntryParams{
		AccountID: accountID, AmountMicros: amountMicros,
		Bucket: domain.BucketAvailable, EntryType: domain.EntryRefund, ReferenceID: referenceID,
	})
}

// Withdraw debits the available bucket for an external payout.
func (s *LedgerService) Withdraw(ctx context.Context, qtx *repository.Queries, accountID uuid.UUID, amountMicros int64, referenceID string) error {
	if amountMicros <= 0 {
		return fmt.Errorf("invalid withdrawal amount: %d", amountMicros)
	}

	account, err := qtx.GetAccountForUpdate(ctx, accountID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("account %s: %w", accountID, models.ErrNotFound)
		}
		return fmt.Errorf("lock account %s: %w", accountID, err)
	}
	if account.AvailableMicros < amountMicros {
		return models.ErrInsufficientFunds
	}

	rows, err := qtx.AdjustAccountBalances(ctx, repository.AdjustAccountBalancesParams{
		ID: accountID, AvailableDelta: -amountMicros,
	})
	if err != nil {
		return fmt.Errorf("withdrawal balance update: %w", err)
	}
	if err := requireExactlyOne(rows, "withdrawal balance update"); err != nil {
		return err
	}
	return qtx.InsertLedgerEntry(ctx, repository.InsertLedgerEntryParams{
		AccountID: accountID, AmountMicros: -amountMicros,
		Bucket: domain.BucketAvailable, EntryType: domain.EntryWithdraw, ReferenceID: referenceID,
	})
}

// FeeAccountID returns the fixed platform fee account for a currency.
func FeeAccountID(currency string) (uuid.UUID, error) {
	var idStr string
	switch currency {
	case "USD":
		idStr = domain.FeeAccountUSD
	case "EUR":
		idStr = domain.FeeAccountEUR
	case "GBP":
		idStr = domain.FeeAccountGBP
	default:
		return uuid.Nil, fmt.Errorf("unsupported currency for platform fees: %s", currency)
	}
	return uuid.Parse(idStr)
}
