package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/oregpt/escrowservice-sub000/internal/observability"
)

// ReconciliationService verifies that every account bucket equals the sum
// of its ledger entries. Drift means a balance was mutated without matching
// entries and is always a bug.
type ReconciliationService struct {
	store QueryStore
}

func NewReconciliationService(store QueryStore) *ReconciliationService {
	return &ReconciliationService{store: store}
}

// Run reports every bucket whose stored balance diverged from its entry sum.
func (s *ReconciliationService) Run(ctx context.Context) error {
	drift, err := s.store.Queries().GetLedgerBucketDrift(ctx)
	if err != nil {
		return fmt.Errorf("run ledger drift query: %w", err)
	}

	if len(drift) == 0 {
		zap.L().Info("ledger balanced")
		return nil
	}

	for _, row := range drift {
		observability.IncrementLedgerImbalance(row.Currency)
		zap.L().Error("CRITICAL: ledger bucket drift detected",
			zap.String("account_id", row.AccountID.String()),
			zap.String("currency", row.Currency),
			zap.String("bucket", row.Bucket),
			zap.Int64("entry_sum", row.EntrySum),
			zap.Int64("balance", row.Balance))
	}
	return nil
}
