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

// AccountService serves read paths over accounts and their ledger.
type AccountService struct {
	store QueryStore
}

func NewAccountService(store QueryStore) *AccountService {
	return &AccountService{store: store}
}

// GetAccount returns one account with both bucket balances.
func (s *AccountService) GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	account, err := s.store.Queries().GetAccount(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("account %s: %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("get account: %w", err)
	}
	return account, nil
}

// GetOrgAccount resolves an organization's account in one currency, creating
// it lazily with zero balances on first reference.
func (s *AccountService) GetOrgAccount(ctx context.Context, orgID uuid.UUID, currency string) (*models.Account, error) {
	if !domain.IsValidCurrency(currency) {
		return nil, fmt.Errorf("unsupported currency: %s", currency)
	}

	var account *models.Account
	err := s.store.RunInTx(ctx, func(qtx *repository.Queries) error {
		var err error
		account, err = qtx.GetAccountByOwnerOrg(ctx, orgID, currency)
		if err == nil {
			return nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("get org account: %w", err)
		}
		if err := qtx.UpsertOrgAccount(ctx, uuid.New(), orgID, currency); err != nil {
			return err
		}
		account, err = qtx.GetAccountByOwnerOrg(ctx, orgID, currency)
		if err != nil {
			return fmt.Errorf("reload org account: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

// Statement returns an account's ledger entries, newest first.
func (s *AccountService) Statement(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]models.LedgerEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	if offset < 0 {
		offset = 0
	}

	if _, err := s.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	return s.store.Queries().ListLedgerEntries(ctx, accountID, limit, offset)
}
