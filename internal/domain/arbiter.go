package domain

import (
	"strings"

	"github.com/google/uuid"
)

// ArbiterRef identifies who may force-resolve a funded escrow, on top of the
// platform admin who always can.
type ArbiterRef struct {
	Type   string
	UserID *uuid.UUID
	Email  string
	OrgID  *uuid.UUID
}

// ArbiterActor is the identity attempting an admin-path operation.
type ArbiterActor struct {
	UserID        uuid.UUID
	Email         string
	EmailVerified bool
	PlatformAdmin bool
}

// OrgRoleLookup resolves the actor's role within an organization, returning
// "" when the actor is not a member. Kept as a function value so the policy
// itself stays pure and unit-testable.
type OrgRoleLookup func(orgID, userID uuid.UUID) string

// ArbiterAuthorized decides whether the actor may force-cancel or
// force-complete the escrow. It gates the admin paths only; the normal
// two-party flow never consults it.
func ArbiterAuthorized(actor ArbiterActor, arbiter ArbiterRef, orgRole OrgRoleLookup) bool {
	if actor.PlatformAdmin {
		return true
	}

	switch arbiter.Type {
	case ArbiterPerson:
		if arbiter.UserID != nil && *arbiter.UserID == actor.UserID {
			return true
		}
		return arbiter.Email != "" && actor.EmailVerified && strings.EqualFold(arbiter.Email, actor.Email)
	case ArbiterOrganization:
		if arbiter.OrgID == nil || orgRole == nil {
			return false
		}
		return orgRole(*arbiter.OrgID, actor.UserID) == OrgRoleAdmin
	case ArbiterPlatformAI:
		// Reserved; automated resolution is not implemented.
		return false
	default:
		// platform_only and anything unrecognized.
		return false
	}
}
