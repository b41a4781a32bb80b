package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/oregpt/escrowservice-sub000/internal/models"
)

type InsertEscrowEventParams struct {
	EscrowID    uuid.UUID
	EventType   string
	ActorUserID *uuid.UUID
	Details     []byte
}

// InsertEscrowEvent appends one audit row. Rows are never updated or
// deleted.
func (q *Queries) InsertEscrowEvent(ctx context.Context, p InsertEscrowEventParams) error {
	_, err := q.db.Exec(ctx, `INSERT INTO escrow_events
			(escrow_id, event_type, actor_user_id, details, created_at)
		VALUES ($1, $2, $3, $4, NOW())`,
		p.EscrowID, p.EventType, p.ActorUserID, p.Details)
	if err != nil {
		return fmt.Errorf("insert escrow event: %w", err)
	}
	return nil
}

// ListEscrowEvents returns the full audit trail for an escrow, oldest first.
func (q *Queries) ListEscrowEvents(ctx context.Context, escrowID uuid.UUID) ([]models.EscrowEvent, error) {
	rows, err := q.db.Query(ctx, `SELECT id, escrow_id, event_type, actor_user_id, details, created_at
		FROM escrow_events
		WHERE escrow_id = $1
		ORDER BY id`, escrowID)
	if err != nil {
		return nil, fmt.Errorf("list escrow events: %w", err)
	}
	defer rows.Close()

	var events []models.EscrowEvent
	for rows.Next() {
		var e models.EscrowEvent
		var details []byte
		if err := rows.Scan(&e.ID, &e.EscrowID, &e.EventType, &e.ActorUserID, &details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan escrow event: %w", err)
		}
		e.Details = details
		events = append(events, e)
	}
	return events, rows.Err()
}
