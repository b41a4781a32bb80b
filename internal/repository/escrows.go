package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/oregpt/escrowservice-sub000/internal/models"
)

const escrowColumns = `id, service_type_id,
	party_a_user_id, party_a_org_id, party_b_user_id, party_b_org_id,
	assigned_user_id, assigned_org_id, assigned_email, is_open,
	amount_micros, fee_micros, currency, status,
	arbiter_type, arbiter_user_id, arbiter_email, arbiter_org_id,
	terms, metadata, obligation_a, obligation_b,
	accepted_at, funded_at, a_confirmed_at, b_confirmed_at,
	completed_at, canceled_at, expires_at, cancel_reason,
	created_at, updated_at`

func scanEscrow(row pgx.Row) (*models.Escrow, error) {
	var (
		e           models.Escrow
		metadata    []byte
		obligationA []byte
		obligationB []byte
	)
	err := row.Scan(
		&e.ID, &e.ServiceTypeID,
		&e.PartyAUserID, &e.PartyAOrgID, &e.PartyBUserID, &e.PartyBOrgID,
		&e.AssignedUserID, &e.AssignedOrgID, &e.AssignedEmail, &e.IsOpen,
		&e.AmountMicros, &e.FeeMicros, &e.Currency, &e.Status,
		&e.ArbiterType, &e.ArbiterUserID, &e.ArbiterEmail, &e.ArbiterOrgID,
		&e.Terms, &metadata, &obligationA, &obligationB,
		&e.AcceptedAt, &e.FundedAt, &e.AConfirmedAt, &e.BConfirmedAt,
		&e.CompletedAt, &e.CanceledAt, &e.ExpiresAt, &e.CancelReason,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.Metadata = metadata
	if err := json.Unmarshal(obligationA, &e.ObligationA); err != nil {
		return nil, fmt.Errorf("decode obligation_a: %w", err)
	}
	if err := json.Unmarshal(obligationB, &e.ObligationB); err != nil {
		return nil, fmt.Errorf("decode obligation_b: %w", err)
	}
	return &e, nil
}

// InsertEscrow persists a freshly built escrow and fills server-side
// timestamps back into the struct.
func (q *Queries) InsertEscrow(ctx context.Context, e *models.Escrow) error {
	obligationA, err := json.Marshal(e.ObligationA)
	if err != nil {
		return fmt.Errorf("encode obligation_a: %w", err)
	}
	obligationB, err := json.Marshal(e.ObligationB)
	if err != nil {
		return fmt.Errorf("encode obligation_b: %w", err)
	}

	query := `INSERT INTO escrows (
			id, service_type_id,
			party_a_user_id, party_a_org_id,
			assigned_user_id, assigned_org_id, assigned_email, is_open,
			amount_micros, fee_micros, currency, status,
			arbiter_type, arbiter_user_id, arbiter_email, arbiter_org_id,
			terms, metadata, obligation_a, obligation_b, expires_at,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
			$13, $14, $15, $16, $17, $18, $19, $20, $21, NOW(), NOW())
		RETURNING created_at, updated_at`
	err = q.db.QueryRow(ctx, query,
		e.ID, e.ServiceTypeID,
		e.PartyAUserID, e.PartyAOrgID,
		e.AssignedUserID, e.AssignedOrgID, e.AssignedEmail, e.IsOpen,
		e.AmountMicros, e.FeeMicros, e.Currency, e.Status,
		e.ArbiterType, e.ArbiterUserID, e.ArbiterEmail, e.ArbiterOrgID,
		e.Terms, []byte(e.Metadata), obligationA, obligationB, e.ExpiresAt,
	).Scan(&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert escrow: %w", err)
	}
	return nil
}

// GetEscrow loads an escrow without locking it.
func (q *Queries) GetEscrow(ctx context.Context, id uuid.UUID) (*models.Escrow, error) {
	query := fmt.Sprintf(`SELECT %s FROM escrows WHERE id = $1`, escrowColumns)
	return scanEscrow(q.db.QueryRow(ctx, query, id))
}

// GetEscrowForUpdate loads and row-locks an escrow. Every lifecycle
// transition re-validates its preconditions against the row returned here.
func (q *Queries) GetEscrowForUpdate(ctx context.Context, id uuid.UUID) (*models.Escrow, error) {
	query := fmt.Sprintf(`SELECT %s FROM escrows WHERE id = $1 FOR UPDATE`, escrowColumns)
	return scanEscrow(q.db.QueryRow(ctx, query, id))
}

type AcceptEscrowParams struct {
	ID           uuid.UUID
	PartyBUserID uuid.UUID
	PartyBOrgID  uuid.UUID
	Status       string
}

// AcceptEscrow binds Party B and advances the status.
func (q *Queries) AcceptEscrow(ctx context.Context, p AcceptEscrowParams) (int64, error) {
	tag, err := q.db.Exec(ctx, `UPDATE escrows
		SET party_b_user_id = $2, party_b_org_id = $3, status = $4,
			accepted_at = NOW(), updated_at = NOW()
		WHERE id = $1`,
		p.ID, p.PartyBUserID, p.PartyBOrgID, p.Status)
	if err != nil {
		return 0, fmt.Errorf("accept escrow: %w", err)
	}
	return tag.RowsAffected(), nil
}

// MarkEscrowFunded records the funding transition together with Party A's
// completed obligation.
func (q *Queries) MarkEscrowFunded(ctx context.Context, id uuid.UUID, status string, obligationA []byte) (int64, error) {
	tag, err := q.db.Exec(ctx, `UPDATE escrows
		SET status = $2, obligation_a = $3, funded_at = NOW(), updated_at = NOW()
		WHERE id = $1`,
		id, status, obligationA)
	if err != nil {
		return 0, fmt.Errorf("mark escrow funded: %w", err)
	}
	return tag.RowsAffected(), nil
}

// MarkEscrowPartyAConfirmed stamps Party A's confirmation.
func (q *Queries) MarkEscrowPartyAConfirmed(ctx context.Context, id uuid.UUID, status string) (int64, error) {
	tag, err := q.db.Exec(ctx, `UPDATE escrows
		SET status = $2, a_confirmed_at = NOW(), updated_at = NOW()
		WHERE id = $1`,
		id, status)
	if err != nil {
		return 0, fmt.Errorf("mark party A confirmed: %w", err)
	}
	return tag.RowsAffected(), nil
}

// MarkEscrowPartyBConfirmed stamps Party B's confirmation and its completed
// obligation.
func (q *Queries) MarkEscrowPartyBConfirmed(ctx context.Context, id uuid.UUID, status string, obligationB []byte) (int64, error) {
	tag, err := q.db.Exec(ctx, `UPDATE escrows
		SET status = $2, obligation_b = $3, b_confirmed_at = NOW(), updated_at = NOW()
		WHERE id = $1`,
		id, status, obligationB)
	if err != nil {
		return 0, fmt.Errorf("mark party B confirmed: %w", err)
	}
	return tag.RowsAffected(), nil
}

// MarkEscrowCompleted stamps the terminal completion.
func (q *Queries) MarkEscrowCompleted(ctx context.Context, id uuid.UUID) (int64, error) {
	tag, err := q.db.Exec(ctx, `UPDATE escrows
		SET status = $2, completed_at = NOW(), updated_at = NOW()
		WHERE id = $1`,
		id, "COMPLETED")
	if err != nil {
		return 0, fmt.Errorf("mark escrow completed: %w", err)
	}
	return tag.RowsAffected(), nil
}

type CloseEscrowParams struct {
	ID     uuid.UUID
	Status string
	Reason string
}

// CloseEscrow moves the escrow into CANCELED or EXPIRED.
func (q *Queries) CloseEscrow(ctx context.Context, p CloseEscrowParams) (int64, error) {
	tag, err := q.db.Exec(ctx, `UPDATE escrows
		SET status = $2, cancel_reason = $3, canceled_at = NOW(), updated_at = NOW()
		WHERE id = $1`,
		p.ID, p.Status, p.Reason)
	if err != nil {
		return 0, fmt.Errorf("close escrow: %w", err)
	}
	return tag.RowsAffected(), nil
}

// UpdateEscrowObligation rewrites one party's obligation document.
func (q *Queries) UpdateEscrowObligation(ctx context.Context, id uuid.UUID, party string, data []byte) (int64, error) {
	column := "obligation_a"
	if party == "B" {
		column = "obligation_b"
	}
	query := fmt.Sprintf(`UPDATE escrows SET %s = $2, updated_at = NOW() WHERE id = $1`, column)
	tag, err := q.db.Exec(ctx, query, id, data)
	if err != nil {
		return 0, fmt.Errorf("update escrow obligation: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListExpiredEscrows locks and returns unfunded escrows whose expiry has
// passed. SKIP LOCKED keeps concurrent sweeps from contending.
func (q *Queries) ListExpiredEscrows(ctx context.Context, now time.Time, limit int32) ([]models.Escrow, error) {
	query := fmt.Sprintf(`SELECT %s FROM escrows
		WHERE expires_at IS NOT NULL AND expires_at <= $1
			AND status IN ('CREATED', 'PENDING_ACCEPTANCE', 'PENDING_FUNDING')
		ORDER BY expires_at
		LIMIT $2
		FOR UPDATE SKIP LOCKED`, escrowColumns)
	rows, err := q.db.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list expired escrows: %w", err)
	}
	defer rows.Close()

	var escrows []models.Escrow
	for rows.Next() {
		e, err := scanEscrow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expired escrow: %w", err)
		}
		escrows = append(escrows, *e)
	}
	return escrows, rows.Err()
}
