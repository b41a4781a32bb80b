package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/oregpt/escrowservice-sub000/internal/domain"
	"github.com/oregpt/escrowservice-sub000/internal/models"
	"github.com/oregpt/escrowservice-sub000/internal/observability"
	"github.com/oregpt/escrowservice-sub000/internal/repository"
)

// AdminCancelEscrow force-cancels on behalf of the platform or the resolved
// arbiter, overriding two-party consent. When funds are locked,
// refundPartyA decides the dispute: true returns the full hold to Party A,
// false settles it to Party B as if the escrow had completed.
func (s *EscrowService) AdminCancelEscrow(ctx context.Context, escrowID, adminUserID uuid.UUID, reason string, refundPartyA bool) (*models.Escrow, error) {
	err := s.store.RunInTx(ctx, func(qtx *repository.Queries) error {
		escrow, err := s.lockEscrow(ctx, qtx, escrowID)
		if err != nil {
			return err
		}
		if domain.IsTerminal(escrow.Status) {
			return models.NewStateConflict("admin-cancel", escrow.Status)
		}

		actor, err := s.loadActor(ctx, qtx, adminUserID)
		if err != nil {
			return err
		}
		authorized, err := s.arbiterAuthorized(ctx, qtx, escrow, actor)
		if err != nil {
			return err
		}
		if !authorized {
			return models.ErrUnauthorized
		}

		if domain.IsFundsLocked(escrow.Status) {
			payer, err := qtx.GetAccountByOwnerOrg(ctx, escrow.PartyAOrgID, escrow.Currency)
			if err != nil {
				return fmt.Errorf("load payer account: %w", err)
			}
			if refundPartyA {
				if err := lockAccountsInOrder(ctx, qtx, payer.ID); err != nil {
					return err
				}
				if err := s.ledger.RefundEscrow(ctx, qtx, payer.ID, escrow.TotalMicros(), escrow.ID); err != nil {
					return err
				}
			} else {
				if err := s.releaseToPartyB(ctx, qtx, escrow); err != nil {
					return err
				}
			}
		}

		if !domain.CanTransition(escrow.Status, domain.EscrowStatusCanceled) {
			return models.NewStateConflict("admin-cancel", escrow.Status)
		}
		rows, err := qtx.CloseEscrow(ctx, repository.CloseEscrowParams{
			ID:     escrow.ID,
			Status: domain.EscrowStatusCanceled,
			Reason: reason,
		})
		if err != nil {
			return err
		}
		if err := requireExactlyOne(rows, "admin cancel escrow"); err != nil {
			return err
		}
		return s.events.Append(ctx, qtx, escrow.ID, domain.EventAdminCanceled, &actor.ID, map[string]any{
			"reason":         reason,
			"refund_party_a": refundPartyA,
		})
	})
	if err != nil {
		return nil, err
	}

	observability.IncrementEscrowTransition("admin_cancel", domain.EscrowStatusCanceled)
	return s.store.Queries().GetEscrow(ctx, escrowID)
}

// AdminForceComplete settles a funded escrow to Party B without waiting for
// mutual confirmation. Reachable only from funds-locked states, so the
// release still fires at most once even when racing a Confirm call.
func (s *EscrowService) AdminForceComplete(ctx context.Context, escrowID, adminUserID uuid.UUID, reason string) (*models.Escrow, error) {
	err := s.store.RunInTx(ctx, func(qtx *repository.Queries) error {
		escrow, err := s.lockEscrow(ctx, qtx, escrowID)
		if err != nil {
			return err
		}
		if !domain.IsFundsLocked(escrow.Status) {
			return models.NewStateConflict("force-complete", escrow.Status)
		}

		actor, err := s.loadActor(ctx, qtx, adminUserID)
		if err != nil {
			return err
		}
		authorized, err := s.arbiterAuthorized(ctx, qtx, escrow, actor)
		if err != nil {
			return err
		}
		if !authorized {
			return models.ErrUnauthorized
		}

		if !domain.CanTransition(escrow.Status, domain.EscrowStatusCompleted) {
			return models.NewStateConflict("force-complete", escrow.Status)
		}
		if err := s.releaseToPartyB(ctx, qtx, escrow); err != nil {
			return err
		}
		rows, err := qtx.MarkEscrowCompleted(ctx, escrow.ID)
		if err != nil {
			return err
		}
		if err := requireExactlyOne(rows, "force complete escrow"); err != nil {
			return err
		}
		return s.events.Append(ctx, qtx, escrow.ID, domain.EventAdminForceCompleted, &actor.ID, map[string]any{
			"reason": reason,
		})
	})
	if err != nil {
		return nil, err
	}

	observability.IncrementEscrowTransition("force_complete", domain.EscrowStatusCompleted)
	return s.store.Queries().GetEscrow(ctx, escrowID)
}

// AttachEvidence links attachment ids from the external attachment store to
// one party's obligation, selected by purpose tag. It never changes the
// obligation status.
func (s *EscrowService) AttachEvidence(ctx context.Context, escrowID, actorUserID uuid.UUID, purpose string, attachmentIDs []string) (*models.Escrow, error) {
	if len(attachmentIDs) == 0 {
		return nil, fmt.Errorf("no attachment ids given")
	}
	party, err := evidencePartyFor(purpose)
	if err != nil {
		return nil, err
	}

	err = s.store.RunInTx(ctx, func(qtx *repository.Queries) error {
		escrow, err := s.lockEscrow(ctx, qtx, escrowID)
		if err != nil {
			return err
		}
		if domain.IsTerminal(escrow.Status) {
			return models.NewStateConflict("attach evidence to", escrow.Status)
		}

		actor, err := s.loadActor(ctx, qtx, actorUserID)
		if err != nil {
			return err
		}
		actorParty, err := s.partyOf(ctx, qtx, escrow, actor.ID)
		if err != nil {
			return err
		}
		if actorParty != party {
			return models.ErrNotAParty
		}

		if err := linkEvidence(ctx, qtx, escrow, party, attachmentIDs); err != nil {
			return err
		}
		return s.events.Append(ctx, qtx, escrow.ID, domain.EventEvidenceLinked, &actor.ID, map[string]any{
			"party":          party,
			"purpose":        purpose,
			"attachment_ids": attachmentIDs,
		})
	})
	if err != nil {
		return nil, err
	}
	return s.store.Queries().GetEscrow(ctx, escrowID)
}

// GetEscrow is the read-only lookup used by the API layer.
func (s *EscrowService) GetEscrow(ctx context.Context, escrowID uuid.UUID) (*models.Escrow, error) {
	escrow, err := s.store.Queries().GetEscrow(ctx, escrowID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("escrow %s: %w", escrowID, models.ErrNotFound)
		}
		return nil, err
	}
	return escrow, nil
}

// GetEscrowEvents returns the escrow's audit trail, oldest first. Events
// become visible only after their transaction commits.
func (s *EscrowService) GetEscrowEvents(ctx context.Context, escrowID uuid.UUID) ([]models.EscrowEvent, error) {
	if _, err := s.GetEscrow(ctx, escrowID); err != nil {
		return nil, err
	}
	return s.store.Queries().ListEscrowEvents(ctx, escrowID)
}

// arbiterAuthorized adapts the pure policy to the stored escrow row, wiring
// org-role lookups through the current transaction.
func (s *EscrowService) arbiterAuthorized(ctx context.Context, qtx *repository.Queries, escrow *models.Escrow, actor *models.User) (bool, error) {
	var lookupErr error
	roleLookup := func(orgID, userID uuid.UUID) string {
		role, err := qtx.GetOrgRole(ctx, orgID, userID)
		if err != nil {
			lookupErr = err
			return ""
		}
		return role
	}

	authorized := domain.ArbiterAuthorized(
		domain.ArbiterActor{
			UserID:        actor.ID,
			Email:         actor.Email,
			EmailVerified: actor.EmailVerified,
			PlatformAdmin: actor.Role == domain.RolePlatformAdmin,
		},
		domain.ArbiterRef{
			Type:   escrow.ArbiterType,
			UserID: escrow.ArbiterUserID,
			Email:  escrow.ArbiterEmail,
			OrgID:  escrow.ArbiterOrgID,
		},
		roleLookup,
	)
	if lookupErr != nil {
		return false, fmt.Errorf("arbiter org role lookup: %w", lookupErr)
	}
	return authorized, nil
}
