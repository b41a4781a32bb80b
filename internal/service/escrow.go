package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/oregpt/escrowservice-sub000/internal/domain"
	"github.com/oregpt/escrowservice-sub000/internal/models"
	"github.com/oregpt/escrowservice-sub000/internal/observability"
	"github.com/oregpt/escrowservice-sub000/internal/repository"
)

// EscrowService owns the escrow lifecycle state machine. Every operation
// runs inside a single transaction that row-locks the escrow first, then any
// touched accounts in ascending id order, re-validates its precondition
// against the locked row, applies ledger and obligation side effects, writes
// the new status, and appends an audit event. A failure at any step rolls
// back the whole operation; partial transitions are never observable.
type EscrowService struct {
	store  QueryStore
	ledger *LedgerService
	events *EventService
}

func NewEscrowService(store QueryStore) *EscrowService {
	return &EscrowService{
		store:  store,
		ledger: NewLedgerService(),
		events: NewEventService(),
	}
}

// CreateEscrowRequest holds the parameters for opening a new escrow.
type CreateEscrowRequest struct {
	CreatorUserID  uuid.UUID
	ServiceTypeID  uuid.UUID
	AmountMicros   int64
	Currency       string
	AssignedUserID *uuid.UUID
	AssignedOrgID  *uuid.UUID
	AssignedEmail  string
	ArbiterType    string
	ArbiterUserID  *uuid.UUID
	ArbiterEmail   string
	ArbiterOrgID   *uuid.UUID
	Terms          string
	Metadata       json.RawMessage
	ExpiresAt      *time.Time
}

// CreateEscrow validates the request, freezes the platform fee from the
// service type's percentage, derives both obligations, and persists the
// escrow with its creation event.
func (s *EscrowService) CreateEscrow(ctx context.Context, req CreateEscrowRequest) (*models.Escrow, error) {
	if req.AmountMicros <= 0 {
		return nil, fmt.Errorf("invalid amount: %d", req.AmountMicros)
	}
	if !domain.IsValidCurrency(req.Currency) {
		return nil, fmt.Errorf("unsupported currency: %s", req.Currency)
	}

	arbiterType := req.ArbiterType
	if arbiterType == "" {
		arbiterType = domain.ArbiterPlatformOnly
	}
	switch arbiterType {
	case domain.ArbiterPlatformOnly, domain.ArbiterPerson, domain.ArbiterOrganization, domain.ArbiterPlatformAI:
	default:
		return nil, fmt.Errorf("unknown arbiter type: %s", arbiterType)
	}

	queries := s.store.Queries()

	serviceType, err := queries.GetServiceType(ctx, req.ServiceTypeID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrInvalidServiceType
		}
		return nil, fmt.Errorf("load service type: %w", err)
	}

	feePercent, err := decimal.NewFromString(serviceType.FeePercent)
	if err != nil {
		return nil, fmt.Errorf("service type fee percent %q: %w", serviceType.FeePercent, models.ErrInvalidServiceType)
	}

	if _, err := domain.DecodeMetadata(serviceType.Kind, req.Metadata); err != nil {
		return nil, err
	}

	creator, err := s.loadActor(ctx, queries, req.CreatorUserID)
	if err != nil {
		return nil, err
	}
	partyAOrgID, err := queries.GetPrimaryOrgID(ctx, creator.ID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNoPrimaryOrg
		}
		return nil, fmt.Errorf("resolve primary org: %w", err)
	}
	if req.AssignedOrgID != nil && *req.AssignedOrgID == partyAOrgID {
		return nil, fmt.Errorf("cannot assign escrow to the creator's own organization")
	}

	obligationA, obligationB := buildObligations(serviceType)

	escrow := &models.Escrow{
		ID:             uuid.New(),
		ServiceTypeID:  serviceType.ID,
		PartyAUserID:   creator.ID,
		PartyAOrgID:    partyAOrgID,
		AssignedUserID: req.AssignedUserID,
		AssignedOrgID:  req.AssignedOrgID,
		AssignedEmail:  req.AssignedEmail,
		IsOpen:         req.AssignedUserID == nil && req.AssignedOrgID == nil && req.AssignedEmail == "",
		AmountMicros:   req.AmountMicros,
		FeeMicros:      domain.FeeFor(req.AmountMicros, feePercent),
		Currency:       req.Currency,
		Status:         domain.EscrowStatusCreated,
		ArbiterType:    arbiterType,
		ArbiterUserID:  req.ArbiterUserID,
		ArbiterEmail:   req.ArbiterEmail,
		ArbiterOrgID:   req.ArbiterOrgID,
		Terms:          req.Terms,
		Metadata:       req.Metadata,
		ObligationA:    obligationA,
		ObligationB:    obligationB,
		ExpiresAt:      req.ExpiresAt,
	}

	err = s.store.RunInTx(ctx, func(qtx *repository.Queries) error {
		if err := qtx.InsertEscrow(ctx, escrow); err != nil {
			return err
		}
		return s.events.Append(ctx, qtx, escrow.ID, domain.EventCreated, &creator.ID, map[string]any{
			"amount_micros": escrow.AmountMicros,
			"fee_micros":    escrow.FeeMicros,
			"currency":      escrow.Currency,
			"is_open":       escrow.IsOpen,
		})
	})
	if err != nil {
		return nil, err
	}

	observability.IncrementEscrowTransition("create", escrow.Status)
	return escrow, nil
}

// AcceptEscrow binds the acting user (and their primary org) as Party B.
// Two concurrent accepts race for the row lock; the loser observes the
// changed status and fails with a state conflict.
func (s *EscrowService) AcceptEscrow(ctx context.Context, escrowID, actorUserID uuid.UUID) (*models.Escrow, error) {
	err := s.store.RunInTx(ctx, func(qtx *repository.Queries) error {
		escrow, err := s.lockEscrow(ctx, qtx, escrowID)
		if err != nil {
			return err
		}
		if !domain.AwaitingAcceptance(escrow.Status) {
			return models.NewStateConflict("accept", escrow.Status)
		}

		actor, err := s.loadActor(ctx, qtx, actorUserID)
		if err != nil {
			return err
		}
		partyBOrgID, err := qtx.GetPrimaryOrgID(ctx, actor.ID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return models.ErrNoPrimaryOrg
			}
			return fmt.Errorf("resolve acceptor org: %w", err)
		}
		if partyBOrgID == escrow.PartyAOrgID {
			return models.ErrNotEligible
		}

		orgIDs, err := qtx.ListUserOrgIDs(ctx, actor.ID)
		if err != nil {
			return err
		}
		policy := acceptancePolicyOf(escrow)
		candidate := domain.Candidate{
			UserID:        actor.ID,
			Email:         actor.Email,
			EmailVerified: actor.EmailVerified,
			OrgIDs:        orgIDs,
		}
		if !policy.Eligible(candidate) {
			return models.ErrNotEligible
		}

		if !domain.CanTransition(escrow.Status, domain.EscrowStatusPendingFunding) {
			return models.NewStateConflict("accept", escrow.Status)
		}
		rows, err := qtx.AcceptEscrow(ctx, repository.AcceptEscrowParams{
			ID:           escrow.ID,
			PartyBUserID: actor.ID,
			PartyBOrgID:  partyBOrgID,
			Status:       domain.EscrowStatusPendingFunding,
		})
		if err != nil {
			return err
		}
		if err := requireExactlyOne(rows, "accept escrow"); err != nil {
			return err
		}
		return s.events.Append(ctx, qtx, escrow.ID, domain.EventAccepted, &actor.ID, map[string]any{
			"party_b_org_id": partyBOrgID.String(),
		})
	})
	if err != nil {
		return nil, err
	}

	observability.IncrementEscrowTransition("accept", domain.EscrowStatusPendingFunding)
	return s.store.Queries().GetEscrow(ctx, escrowID)
}

// FundEscrow moves amount+fee from Party A's available balance into the
// in_contract bucket and completes Party A's obligation. The status check
// under the row lock guarantees the debit happens at most once.
func (s *EscrowService) FundEscrow(ctx context.Context, escrowID, actorUserID uuid.UUID) (*models.Escrow, error) {
	err := s.store.RunInTx(ctx, func(qtx *repository.Queries) error {
		escrow, err := s.lockEscrow(ctx, qtx, escrowID)
		if err != nil {
			return err
		}
		if escrow.Status != domain.EscrowStatusPendingFunding {
			return models.NewStateConflict("fund", escrow.Status)
		}

		actor, err := s.loadActor(ctx, qtx, actorUserID)
		if err != nil {
			return err
		}
		isA, err := s.isPartyA(ctx, qtx, escrow, actor.ID)
		if err != nil {
			return err
		}
		if !isA {
			return models.ErrNotAParty
		}

		account, err := s.ensureOrgAccount(ctx, qtx, escrow.PartyAOrgID, escrow.Currency)
		if err != nil {
			return err
		}
		if err := s.ledger.LockForEscrow(ctx, qtx, account.ID, escrow.TotalMicros(), escrow.ID); err != nil {
			return err
		}

		obligationA, err := json.Marshal(completeObligation(escrow.ObligationA, time.Now().UTC()))
		if err != nil {
			return fmt.Errorf("encode obligation_a: %w", err)
		}
		if !domain.CanTransition(escrow.Status, domain.EscrowStatusFunded) {
			return models.NewStateConflict("fund", escrow.Status)
		}
		rows, err := qtx.MarkEscrowFunded(ctx, escrow.ID, domain.EscrowStatusFunded, obligationA)
		if err != nil {
			return err
		}
		if err := requireExactlyOne(rows, "mark escrow funded"); err != nil {
			return err
		}
		return s.events.Append(ctx, qtx, escrow.ID, domain.EventFunded, &actor.ID, map[string]any{
			"locked_micros": escrow.TotalMicros(),
			"account_id":    account.ID.String(),
		})
	})
	if err != nil {
		return nil, err
	}

	observability.IncrementEscrowTransition("fund", domain.EscrowStatusFunded)
	return s.store.Queries().GetEscrow(ctx, escrowID)
}

// ConfirmEscrow records one party's delivery confirmation. When the other
// party has already confirmed, the escrow completes and funds are released
// in the same transaction. The "has not already confirmed" precondition is
// re-checked under the row lock, so a confirmation applies at most once per
// party and the release fires exactly once.
func (s *EscrowService) ConfirmEscrow(ctx context.Context, escrowID, actorUserID uuid.UUID) (*models.Escrow, error) {
	var finalStatus string
	err := s.store.RunInTx(ctx, func(qtx *repository.Queries) error {
		escrow, err := s.lockEscrow(ctx, qtx, escrowID)
		if err != nil {
			return err
		}
		if !domain.IsFundsLocked(escrow.Status) {
			return models.NewStateConflict("confirm", escrow.Status)
		}

		actor, err := s.loadActor(ctx, qtx, actorUserID)
		if err != nil {
			return err
		}
		party, err := s.partyOf(ctx, qtx, escrow, actor.ID)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		var otherConfirmed bool
		switch party {
		case domain.PartyA:
			if escrow.AConfirmedAt != nil {
				return models.ErrAlreadyConfirmed
			}
			otherConfirmed = escrow.BConfirmedAt != nil
		case domain.PartyB:
			if escrow.BConfirmedAt != nil {
				return models.ErrAlreadyConfirmed
			}
			otherConfirmed = escrow.AConfirmedAt != nil
		}

		nextStatus := domain.EscrowStatusPartyAConfirmed
		eventType := domain.EventPartyAConfirmed
		if party == domain.PartyB {
			nextStatus = domain.EscrowStatusPartyBConfirmed
			eventType = domain.EventPartyBConfirmed
		}
		if otherConfirmed {
			nextStatus = domain.EscrowStatusCompleted
		}
		if !domain.CanTransition(escrow.Status, nextStatus) {
			return models.NewStateConflict("confirm", escrow.Status)
		}

		switch party {
		case domain.PartyA:
			rows, err := qtx.MarkEscrowPartyAConfirmed(ctx, escrow.ID, nextStatus)
			if err != nil {
				return err
			}
			if err := requireExactlyOne(rows, "mark party A confirmed"); err != nil {
				return err
			}
		case domain.PartyB:
			obligationB, err := json.Marshal(completeObligation(escrow.ObligationB, now))
			if err != nil {
				return fmt.Errorf("encode obligation_b: %w", err)
			}
			rows, err := qtx.MarkEscrowPartyBConfirmed(ctx, escrow.ID, nextStatus, obligationB)
			if err != nil {
				return err
			}
			if err := requireExactlyOne(rows, "mark party B confirmed"); err != nil {
				return err
			}
		}
		if err := s.events.Append(ctx, qtx, escrow.ID, eventType, &actor.ID, nil); err != nil {
			return err
		}

		finalStatus = nextStatus
		if nextStatus != domain.EscrowStatusCompleted {
			return nil
		}
		if err := s.releaseToPartyB(ctx, qtx, escrow); err != nil {
			return err
		}
		rows, err := qtx.MarkEscrowCompleted(ctx, escrow.ID)
		if err != nil {
			return err
		}
		if err := requireExactlyOne(rows, "mark escrow completed"); err != nil {
			return err
		}
		return s.events.Append(ctx, qtx, escrow.ID, domain.EventCompleted, &actor.ID, map[string]any{
			"released_micros": escrow.TotalMicros(),
			"fee_micros":      escrow.FeeMicros,
		})
	})
	if err != nil {
		return nil, err
	}

	observability.IncrementEscrowTransition("confirm", finalStatus)
	return s.store.Queries().GetEscrow(ctx, escrowID)
}

// CancelEscrow is the two-party cancel path, legal only before funding.
// Once FUNDED the parties must go through the admin/arbiter path.
func (s *EscrowService) CancelEscrow(ctx context.Context, escrowID, actorUserID uuid.UUID, reason string) (*models.Escrow, error) {
	err := s.store.RunInTx(ctx, func(qtx *repository.Queries) error {
		escrow, err := s.lockEscrow(ctx, qtx, escrowID)
		if err != nil {
			return err
		}
		if domain.IsFundsLocked(escrow.Status) || domain.IsTerminal(escrow.Status) {
			return models.NewStateConflict("cancel", escrow.Status)
		}

		actor, err := s.loadActor(ctx, qtx, actorUserID)
		if err != nil {
			return err
		}
		if _, err := s.partyOf(ctx, qtx, escrow, actor.ID); err != nil {
			return err
		}

		if !domain.CanTransition(escrow.Status, domain.EscrowStatusCanceled) {
			return models.NewStateConflict("cancel", escrow.Status)
		}
		rows, err := qtx.CloseEscrow(ctx, repository.CloseEscrowParams{
			ID:     escrow.ID,
			Status: domain.EscrowStatusCanceled,
			Reason: reason,
		})
		if err != nil {
			return err
		}
		if err := requireExactlyOne(rows, "cancel escrow"); err != nil {
			return err
		}
		return s.events.Append(ctx, qtx, escrow.ID, domain.EventCanceled, &actor.ID, map[string]any{
			"reason": reason,
		})
	})
	if err != nil {
		return nil, err
	}

	observability.IncrementEscrowTransition("cancel", domain.EscrowStatusCanceled)
	return s.store.Queries().GetEscrow(ctx, escrowID)
}

// releaseToPartyB settles the locked funds: Party B's org receives amount,
// the platform fee account receives the fee. Accounts are locked in
// ascending id order before any balance moves.
func (s *EscrowService) releaseToPartyB(ctx context.Context, qtx *repository.Queries, escrow *models.Escrow) error {
	if escrow.PartyBOrgID == nil {
		return fmt.Errorf("escrow %s has no party B to release to", escrow.ID)
	}

	payer, err := qtx.GetAccountByOwnerOrg(ctx, escrow.PartyAOrgID, escrow.Currency)
	if err != nil {
		return fmt.Errorf("load payer account: %w", err)
	}
	payee, err := s.ensureOrgAccount(ctx, qtx, *escrow.PartyBOrgID, escrow.Currency)
	if err != nil {
		return err
	}
	feeAccountID, err := FeeAccountID(escrow.Currency)
	if err != nil {
		return err
	}

	if err := lockAccountsInOrder(ctx, qtx, payer.ID, payee.ID, feeAccountID); err != nil {
		return err
	}
	return s.ledger.ReleaseEscrow(ctx, qtx, payer.ID, payee.ID, feeAccountID,
		escrow.TotalMicros(), escrow.FeeMicros, escrow.ID)
}

func (s *EscrowService) lockEscrow(ctx context.Context, qtx *repository.Queries, escrowID uuid.UUID) (*models.Escrow, error) {
	escrow, err := qtx.GetEscrowForUpdate(ctx, escrowID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("escrow %s: %w", escrowID, models.ErrNotFound)
		}
		return nil, fmt.Errorf("lock escrow: %w", err)
	}
	return escrow, nil
}

func (s *EscrowService) loadActor(ctx context.Context, q *repository.Queries, userID uuid.UUID) (*models.User, error) {
	user, err := q.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("user %s: %w", userID, models.ErrNotFound)
		}
		return nil, err
	}
	return user, nil
}

// isPartyA reports whether the user acts for Party A: the creator, or an
// admin of the creating organization.
func (s *EscrowService) isPartyA(ctx context.Context, qtx *repository.Queries, escrow *models.Escrow, userID uuid.UUID) (bool, error) {
	if escrow.PartyAUserID == userID {
		return true, nil
	}
	role, err := qtx.GetOrgRole(ctx, escrow.PartyAOrgID, userID)
	if err != nil {
		return false, err
	}
	return role == domain.OrgRoleAdmin, nil
}

// isPartyB mirrors isPartyA for the accepting side.
func (s *EscrowService) isPartyB(ctx context.Context, qtx *repository.Queries, escrow *models.Escrow, userID uuid.UUID) (bool, error) {
	if escrow.PartyBUserID != nil && *escrow.PartyBUserID == userID {
		return true, nil
	}
	if escrow.PartyBOrgID == nil {
		return false, nil
	}
	role, err := qtx.GetOrgRole(ctx, *escrow.PartyBOrgID, userID)
	if err != nil {
		return false, err
	}
	return role == domain.OrgRoleAdmin, nil
}

// partyOf resolves which side the user confirms for. Direct user identity
// wins over org-admin membership, so a user who administers both orgs still
// resolves deterministically to the side they are named on.
func (s *EscrowService) partyOf(ctx context.Context, qtx *repository.Queries, escrow *models.Escrow, userID uuid.UUID) (string, error) {
	if escrow.PartyAUserID == userID {
		return domain.PartyA, nil
	}
	if escrow.PartyBUserID != nil && *escrow.PartyBUserID == userID {
		return domain.PartyB, nil
	}
	if isB, err := s.isPartyB(ctx, qtx, escrow, userID); err != nil {
		return "", err
	} else if isB {
		return domain.PartyB, nil
	}
	if isA, err := s.isPartyA(ctx, qtx, escrow, userID); err != nil {
		return "", err
	} else if isA {
		return domain.PartyA, nil
	}
	return "", models.ErrNotAParty
}

// ensureOrgAccount lazily creates the org's account for the currency.
func (s *EscrowService) ensureOrgAccount(ctx context.Context, qtx *repository.Queries, orgID uuid.UUID, currency string) (*models.Account, error) {
	account, err := qtx.GetAccountByOwnerOrg(ctx, orgID, currency)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("load org account: %w", err)
	}
	if err := qtx.UpsertOrgAccount(ctx, uuid.New(), orgID, currency); err != nil {
		return nil, err
	}
	account, err = qtx.GetAccountByOwnerOrg(ctx, orgID, currency)
	if err != nil {
		return nil, fmt.Errorf("reload org account: %w", err)
	}
	return account, nil
}

// lockAccountsInOrder acquires row locks on the given accounts sorted by id,
// preventing deadlock between concurrent operations touching the same pair.
func lockAccountsInOrder(ctx context.Context, qtx *repository.Queries, ids ...uuid.UUID) error {
	sorted := make([]uuid.UUID, 0, len(ids))
	seen := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		sorted = append(sorted, id)
	}
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].String() < sorted[j].String()
	})

	for _, id := range sorted {
		if _, err := qtx.GetAccountForUpdate(ctx, id); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("account %s: %w", id, models.ErrNotFound)
			}
			return fmt.Errorf("lock account %s: %w", id, err)
		}
	}
	return nil
}

func acceptancePolicyOf(escrow *models.Escrow) domain.AcceptancePolicy {
	return domain.AcceptancePolicy{
		AssignedUserID: escrow.AssignedUserID,
		AssignedOrgID:  escrow.AssignedOrgID,
		AssignedEmail:  escrow.AssignedEmail,
		Open:           escrow.IsOpen,
	}
}
