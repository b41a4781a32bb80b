package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oregpt/escrowservice-sub000/internal/domain"
	"github.com/oregpt/escrowservice-sub000/internal/models"
	"github.com/oregpt/escrowservice-sub000/internal/repository"
)

// buildObligations derives the two per-escrow delivery obligations from the
// service type's templates. Both start pending; they are created atomically
// with the escrow and mutated only by lifecycle transitions.
func buildObligations(st *models.ServiceType) (models.Obligation, models.Obligation) {
	a := models.Obligation{
		Party:       domain.PartyA,
		Description: st.PartyADeliver.Label,
		Type:        st.PartyADeliver.Type,
		Status:      domain.ObligationPending,
	}
	b := models.Obligation{
		Party:       domain.PartyB,
		Description: st.PartyBDeliver.Label,
		Type:        st.PartyBDeliver.Type,
		Status:      domain.ObligationPending,
	}
	return a, b
}

// completeObligation marks an obligation fulfilled at the given instant.
func completeObligation(o models.Obligation, at time.Time) models.Obligation {
	o.Status = domain.ObligationCompleted
	o.CompletedAt = &at
	return o
}

// evidencePartyFor maps an attachment purpose tag onto the owning party.
func evidencePartyFor(purpose string) (string, error) {
	switch purpose {
	case "evidence_a", "deliverable_a":
		return domain.PartyA, nil
	case "evidence_b", "deliverable_b":
		return domain.PartyB, nil
	default:
		return "", fmt.Errorf("unknown evidence purpose: %s", purpose)
	}
}

// linkEvidence appends attachment ids to one party's obligation and persists
// the updated document. Linking evidence never changes the obligation
// status.
func linkEvidence(ctx context.Context, qtx *repository.Queries, escrow *models.Escrow, party string, attachmentIDs []string) error {
	obligation := escrow.ObligationA
	if party == domain.PartyB {
		obligation = escrow.ObligationB
	}
	obligation.EvidenceIDs = append(obligation.EvidenceIDs, attachmentIDs...)

	data, err := json.Marshal(obligation)
	if err != nil {
		return fmt.Errorf("encode obligation: %w", err)
	}
	rows, err := qtx.UpdateEscrowObligation(ctx, escrow.ID, party, data)
	if err != nil {
		return err
	}
	return requireExactlyOne(rows, "link obligation evidence")
}
