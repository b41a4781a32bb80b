package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/oregpt/escrowservice-sub000/internal/repository"
)

// EventService appends immutable escrow lifecycle events. Writes happen
// inside the transaction that performs the triggering mutation, so an event
// is visible if and only if its transition committed.
type EventService struct{}

func NewEventService() *EventService {
	return &EventService{}
}

// Append stores a single audit row. actorUserID is nil for system-generated
// events such as expiry sweeps.
func (s *EventService) Append(ctx context.Context, qtx *repository.Queries, escrowID uuid.UUID, eventType string, actorUserID *uuid.UUID, details map[string]any) error {
	var payload []byte
	if len(details) > 0 {
		var err error
		payload, err = json.Marshal(details)
		if err != nil {
			return fmt.Errorf("encode event details: %w", err)
		}
	}

	if err := qtx.InsertEscrowEvent(ctx, repository.InsertEscrowEventParams{
		EscrowID:    escrowID,
		EventType:   eventType,
		ActorUserID: actorUserID,
		Details:     payload,
	}); err != nil {
		return fmt.Errorf("append escrow event: %w", err)
	}
	return nil
}
