package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/oregpt/escrowservice-sub000/internal/domain"
	"github.com/oregpt/escrowservice-sub000/internal/observability"
	"github.com/oregpt/escrowservice-sub000/internal/repository"
)

// ExpiryService closes escrows whose deadline passed before funding. Funded
// escrows never expire; once money is locked only confirmation or admin
// intervention resolves them.
type ExpiryService struct {
	store  QueryStore
	events *EventService
}

func NewExpiryService(store QueryStore) *ExpiryService {
	return &ExpiryService{store: store, events: NewEventService()}
}

// Sweep expires one batch of overdue escrows and returns how many it closed.
func (s *ExpiryService) Sweep(ctx context.Context, batchSize int32) (int, error) {
	var expired int
	err := s.store.RunInTx(ctx, func(qtx *repository.Queries) error {
		escrows, err := qtx.ListExpiredEscrows(ctx, time.Now(), batchSize)
		if err != nil {
			return fmt.Errorf("list expired escrows: %w", err)
		}

		for _, escrow := range escrows {
			if !domain.CanTransition(escrow.Status, domain.EscrowStatusExpired) {
				continue
			}
			rows, err := qtx.CloseEscrow(ctx, repository.CloseEscrowParams{
				ID:     escrow.ID,
				Status: domain.EscrowStatusExpired,
				Reason: "deadline passed before funding",
			})
			if err != nil {
				return err
			}
			if err := requireExactlyOne(rows, "expire escrow"); err != nil {
				return err
			}
			if err := s.events.Append(ctx, qtx, escrow.ID, domain.EventExpired, nil, map[string]any{
				"expired_at": escrow.ExpiresAt,
				"status_was": escrow.Status,
			}); err != nil {
				return err
			}
			expired++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if expired > 0 {
		for i := 0; i < expired; i++ {
			observability.IncrementEscrowExpired()
		}
		zap.L().Info("expired overdue escrows", zap.Int("count", expired))
	}
	return expired, nil
}
