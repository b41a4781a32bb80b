package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestArbiterAuthorized_PlatformAdminAlwaysAllowed(t *testing.T) {
	admin := ArbiterActor{UserID: uuid.New(), PlatformAdmin: true}

	for _, arbiterType := range []string{ArbiterPlatformOnly, ArbiterPerson, ArbiterOrganization, ArbiterPlatformAI} {
		assert.True(t, ArbiterAuthorized(admin, ArbiterRef{Type: arbiterType}, nil), arbiterType)
	}
}

func TestArbiterAuthorized_PlatformOnlyRejectsEveryoneElse(t *testing.T) {
	actor := ArbiterActor{UserID: uuid.New(), Email: "a@example.com", EmailVerified: true}
	assert.False(t, ArbiterAuthorized(actor, ArbiterRef{Type: ArbiterPlatformOnly}, nil))
}

func TestArbiterAuthorized_PersonByUserID(t *testing.T) {
	arbiterID := uuid.New()
	ref := ArbiterRef{Type: ArbiterPerson, UserID: &arbiterID}

	assert.True(t, ArbiterAuthorized(ArbiterActor{UserID: arbiterID}, ref, nil))
	assert.False(t, ArbiterAuthorized(ArbiterActor{UserID: uuid.New()}, ref, nil))
}

func TestArbiterAuthorized_PersonByVerifiedEmail(t *testing.T) {
	ref := ArbiterRef{Type: ArbiterPerson, Email: "judge@example.com"}

	verified := ArbiterActor{UserID: uuid.New(), Email: "Judge@Example.com", EmailVerified: true}
	unverified := ArbiterActor{UserID: uuid.New(), Email: "judge@example.com", EmailVerified: false}

	assert.True(t, ArbiterAuthorized(verified, ref, nil))
	assert.False(t, ArbiterAuthorized(unverified, ref, nil))
}

func TestArbiterAuthorized_OrganizationRequiresAdminRole(t *testing.T) {
	orgID := uuid.New()
	adminID := uuid.New()
	memberID := uuid.New()
	ref := ArbiterRef{Type: ArbiterOrganization, OrgID: &orgID}

	roles := func(lookupOrg, userID uuid.UUID) string {
		if lookupOrg != orgID {
			return ""
		}
		switch userID {
		case adminID:
			return OrgRoleAdmin
		case memberID:
			return OrgRoleMember
		}
		return ""
	}

	assert.True(t, ArbiterAuthorized(ArbiterActor{UserID: adminID}, ref, roles))
	assert.False(t, ArbiterAuthorized(ArbiterActor{UserID: memberID}, ref, roles))
	assert.False(t, ArbiterAuthorized(ArbiterActor{UserID: uuid.New()}, ref, roles))
}

func TestArbiterAuthorized_OrganizationWithoutLookup(t *testing.T) {
	orgID := uuid.New()
	ref := ArbiterRef{Type: ArbiterOrganization, OrgID: &orgID}
	assert.False(t, ArbiterAuthorized(ArbiterActor{UserID: uuid.New()}, ref, nil))

	assert.False(t, ArbiterAuthorized(ArbiterActor{UserID: uuid.New()},
		ArbiterRef{Type: ArbiterOrganization}, func(_, _ uuid.UUID) string { return OrgRoleAdmin }))
}

func TestArbiterAuthorized_PlatformAIReserved(t *testing.T) {
	actor := ArbiterActor{UserID: uuid.New(), Email: "a@example.com", EmailVerified: true}
	assert.False(t, ArbiterAuthorized(actor, ArbiterRef{Type: ArbiterPlatformAI}, nil))
}
