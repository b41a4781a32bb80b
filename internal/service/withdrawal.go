package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/oregpt/escrowservice-sub000/internal/domain"
	"github.com/oregpt/escrowservice-sub000/internal/gateway"
	"github.com/oregpt/escrowservice-sub000/internal/models"
	"github.com/oregpt/escrowservice-sub000/internal/repository"
)

// WithdrawalService moves available funds back out to the external rail.
// The debit happens synchronously at request time so the balance can never
// be spent twice; the gateway call runs asynchronously in the worker.
type WithdrawalService struct {
	store   QueryStore
	gateway gateway.Gateway
	ledger  *LedgerService
}

func NewWithdrawalService(store QueryStore, gw gateway.Gateway) *WithdrawalService {
	return &WithdrawalService{
		store:   store,
		gateway: gw,
		ledger:  NewLedgerService(),
	}
}

// WithdrawalDestinationInput is the external destination payload expected
// from clients.
type WithdrawalDestinationInput struct {
	IBAN string `json:"iban"`
	Name string `json:"name"`
}

func (d WithdrawalDestinationInput) Validate() error {
	if d.IBAN == "" {
		return errors.New("destination.iban is required")
	}
	if d.Name == "" {
		return errors.New("destination.name is required")
	}
	return nil
}

type RequestWithdrawalRequest struct {
	AccountID    uuid.UUID
	AmountMicros int64
	Currency     string
	Destination  WithdrawalDestinationInput
	ReferenceID  string
}

type WithdrawalResponse struct {
	WithdrawalID uuid.UUID `json:"withdrawal_id"`
	Status       string    `json:"status"`
	Message      string    `json:"message"`
}

// RequestWithdrawal debits the account's available bucket and queues the
// payout. Requests are idempotent on reference id.
func (s *WithdrawalService) RequestWithdrawal(ctx context.Context, req RequestWithdrawalRequest) (*WithdrawalResponse, error) {
	if req.AmountMicros <= 0 {
		return nil, fmt.Errorf("invalid amount: %d", req.AmountMicros)
	}
	if req.ReferenceID == "" {
		return nil, errors.New("reference_id is required")
	}
	if !domain.IsValidCurrency(req.Currency) {
		return nil, fmt.Errorf("unsupported currency: %s", req.Currency)
	}
	if err := req.Destination.Validate(); err != nil {
		return nil, err
	}

	existing, err := s.store.Queries().GetWithdrawalByReference(ctx, req.ReferenceID)
	if err == nil {
		return &WithdrawalResponse{
			WithdrawalID: existing.ID,
			Status:       existing.Status,
			Message:      "Withdrawal already exists",
		}, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("check withdrawal reference: %w", err)
	}

	destination, err := json.Marshal(req.Destination)
	if err != nil {
		return nil, fmt.Errorf("encode destination: %w", err)
	}

	withdrawal := &models.Withdrawal{
		ID:           uuid.New(),
		AccountID:    req.AccountID,
		AmountMicros: req.AmountMicros,
		Currency:     req.Currency,
		Destination:  destination,
		Status:       domain.WithdrawalStatusPending,
		ReferenceID:  req.ReferenceID,
	}
	err = s.store.RunInTx(ctx, func(qtx *repository.Queries) error {
		account, err := qtx.GetAccount(ctx, req.AccountID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("account %s: %w", req.AccountID, models.ErrNotFound)
			}
			return fmt.Errorf("load withdrawal account: %w", err)
		}
		if account.Currency != req.Currency {
			return fmt.Errorf("currency mismatch: account is %s, requested %s", account.Currency, req.Currency)
		}

		if err := s.ledger.Withdraw(ctx, qtx, req.AccountID, req.AmountMicros, req.ReferenceID); err != nil {
			return err
		}
		return qtx.InsertWithdrawal(ctx, withdrawal)
	})
	if err != nil {
		return nil, err
	}

	return &WithdrawalResponse{
		WithdrawalID: withdrawal.ID,
		Status:       domain.WithdrawalStatusPending,
		Message:      "Withdrawal queued for processing",
	}, nil
}

// ProcessWithdrawals claims a batch of pending withdrawals and pushes each
// through the gateway. Failures re-credit the account; gateway cancellation
// leaves the row PROCESSING for the next run to pick up after requeue.
func (s *WithdrawalService) ProcessWithdrawals(ctx context.Context, batchSize int32) error {
	var claimed []models.Withdrawal
	err := s.store.RunInTx(ctx, func(qtx *repository.Queries) error {
		var err error
		claimed, err = qtx.ClaimPendingWithdrawals(ctx, batchSize)
		return err
	})
	if err != nil {
		return err
	}

	for _, w := range claimed {
		if err := ctx.Err(); err != nil {
			return err
		}

		var dest WithdrawalDestinationInput
		_ = json.Unmarshal(w.Destination, &dest)

		gatewayRef, err := s.gateway.SendWithdrawal(ctx, formatDestination(dest), w.AmountMicros, w.Currency)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			s.failWithdrawal(ctx, w, err.Error())
			continue
		}
		s.completeWithdrawal(ctx, w, gatewayRef)
	}
	return nil
}

func (s *WithdrawalService) completeWithdrawal(ctx context.Context, w models.Withdrawal, gatewayRef string) {
	err := s.store.RunInTx(ctx, func(qtx *repository.Queries) error {
		rows, err := qtx.FinishWithdrawal(ctx, repository.FinishWithdrawalParams{
			ID:         w.ID,
			Status:     domain.WithdrawalStatusCompleted,
			GatewayRef: &gatewayRef,
		})
		if err != nil {
			return err
		}
		return requireExactlyOne(rows, "complete withdrawal")
	})
	if err != nil {
		zap.L().Error("withdrawal sent at gateway but local completion failed",
			zap.Error(err),
			zap.String("withdrawal_id", w.ID.String()),
			zap.String("gateway_ref", gatewayRef))
		return
	}
	zap.L().Info("withdrawal completed",
		zap.String("withdrawal_id", w.ID.String()),
		zap.String("gateway_ref", gatewayRef))
}

func (s *WithdrawalService) failWithdrawal(ctx context.Context, w models.Withdrawal, reason string) {
	err := s.store.RunInTx(ctx, func(qtx *repository.Queries) error {
		rows, err := qtx.FinishWithdrawal(ctx, repository.FinishWithdrawalParams{
			ID:     w.ID,
			Status: domain.WithdrawalStatusFailed,
		})
		if err != nil {
			return err
		}
		if err := requireExactlyOne(rows, "fail withdrawal"); err != nil {
			return err
		}
		if err := lockAccountsInOrder(ctx, qtx, w.AccountID); err != nil {
			return err
		}
		return s.ledger.RefundWithdrawal(ctx, qtx, w.AccountID, w.AmountMicros, w.ReferenceID)
	})
	if err != nil {
		zap.L().Error("withdrawal failure handling failed",
			zap.Error(err),
			zap.String("withdrawal_id", w.ID.String()))
		return
	}
	zap.L().Warn("withdrawal failed and refunded",
		zap.String("withdrawal_id", w.ID.String()),
		zap.String("reason", reason))
}

// GetWithdrawal looks up a withdrawal by its external reference.
func (s *WithdrawalService) GetWithdrawal(ctx context.Context, referenceID string) (*models.Withdrawal, error) {
	w, err := s.store.Queries().GetWithdrawalByReference(ctx, referenceID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("withdrawal %s: %w", referenceID, models.ErrNotFound)
		}
		return nil, fmt.Errorf("get withdrawal: %w", err)
	}
	return w, nil
}

func formatDestination(dest WithdrawalDestinationInput) string {
	if dest.IBAN == "" && dest.Name == "" {
		return "EXTERNAL_ACCOUNT"
	}
	if dest.Name == "" {
		return dest.IBAN
	}
	if dest.IBAN == "" {
		return dest.Name
	}
	return fmt.Sprintf("%s (%s)", dest.Name, dest.IBAN)
}
