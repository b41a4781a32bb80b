package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/oregpt/escrowservice-sub000/internal/models"
)

const withdrawalColumns = `id, account_id, amount_micros, currency, destination,
	status, gateway_ref, reference_id, created_at, updated_at`

// InsertWithdrawal persists a queued withdrawal request.
func (q *Queries) InsertWithdrawal(ctx context.Context, w *models.Withdrawal) error {
	query := `INSERT INTO withdrawals
			(id, account_id, amount_micros, currency, destination, status, reference_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		RETURNING created_at, updated_at`
	err := q.db.QueryRow(ctx, query, w.ID, w.AccountID, w.AmountMicros, w.Currency,
		[]byte(w.Destination), w.Status, w.ReferenceID).Scan(&w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert withdrawal: %w", err)
	}
	return nil
}

// GetWithdrawalByReference supports idempotent withdrawal requests.
func (q *Queries) GetWithdrawalByReference(ctx context.Context, referenceID string) (*models.Withdrawal, error) {
	query := fmt.Sprintf(`SELECT %s FROM withdrawals WHERE reference_id = $1`, withdrawalColumns)
	return scanWithdrawal(q.db.QueryRow(ctx, query, referenceID))
}

// ClaimPendingWithdrawals locks a batch of PENDING withdrawals and marks
// them PROCESSING. SKIP LOCKED lets concurrent workers share the queue.
func (q *Queries) ClaimPendingWithdrawals(ctx context.Context, limit int32) ([]models.Withdrawal, error) {
	query := fmt.Sprintf(`UPDATE withdrawals SET status = 'PROCESSING', updated_at = NOW()
		WHERE id IN (
			SELECT id FROM withdrawals
			WHERE status = 'PENDING'
			ORDER BY created_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING %s`, withdrawalColumns)
	rows, err := q.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("claim pending withdrawals: %w", err)
	}
	defer rows.Close()

	var claimed []models.Withdrawal
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan withdrawal: %w", err)
		}
		claimed = append(claimed, *w)
	}
	return claimed, rows.Err()
}

type FinishWithdrawalParams struct {
	ID         uuid.UUID
	Status     string
	GatewayRef *string
}

// FinishWithdrawal records the gateway outcome for a PROCESSING withdrawal.
func (q *Queries) FinishWithdrawal(ctx context.Context, p FinishWithdrawalParams) (int64, error) {
	tag, err := q.db.Exec(ctx, `UPDATE withdrawals
		SET status = $2, gateway_ref = $3, updated_at = NOW()
		WHERE id = $1 AND status = 'PROCESSING'`,
		p.ID, p.Status, p.GatewayRef)
	if err != nil {
		return 0, fmt.Errorf("finish withdrawal: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanWithdrawal(row interface{ Scan(dest ...any) error }) (*models.Withdrawal, error) {
	w := &models.Withdrawal{}
	var destination []byte
	err := row.Scan(&w.ID, &w.AccountID, &w.AmountMicros, &w.Currency, &destination,
		&w.Status, &w.GatewayRef, &w.ReferenceID, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	w.Destination = destination
	return w, nil
}
