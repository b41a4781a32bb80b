package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestAcceptancePolicy_AssignedUser(t *testing.T) {
	assignee := uuid.New()
	policy := AcceptancePolicy{AssignedUserID: &assignee}

	assert.True(t, policy.Eligible(Candidate{UserID: assignee}))
	assert.False(t, policy.Eligible(Candidate{UserID: uuid.New()}))
	assert.True(t, policy.Assigned())
}

func TestAcceptancePolicy_AssignedOrg(t *testing.T) {
	orgID := uuid.New()
	policy := AcceptancePolicy{AssignedOrgID: &orgID}

	member := Candidate{UserID: uuid.New(), OrgIDs: []uuid.UUID{uuid.New(), orgID}}
	outsider := Candidate{UserID: uuid.New(), OrgIDs: []uuid.UUID{uuid.New()}}

	assert.True(t, policy.Eligible(member))
	assert.False(t, policy.Eligible(outsider))
	assert.False(t, policy.Eligible(Candidate{UserID: uuid.New()}))
}

func TestAcceptancePolicy_AssignedEmail(t *testing.T) {
	policy := AcceptancePolicy{AssignedEmail: "seller@example.com"}

	verified := Candidate{UserID: uuid.New(), Email: "Seller@Example.COM", EmailVerified: true}
	unverified := Candidate{UserID: uuid.New(), Email: "seller@example.com", EmailVerified: false}
	wrong := Candidate{UserID: uuid.New(), Email: "other@example.com", EmailVerified: true}

	assert.True(t, policy.Eligible(verified), "email match is case-insensitive")
	assert.False(t, policy.Eligible(unverified), "unverified email never matches")
	assert.False(t, policy.Eligible(wrong))
}

func TestAcceptancePolicy_Open(t *testing.T) {
	open := AcceptancePolicy{Open: true}
	closed := AcceptancePolicy{Open: false}

	anyone := Candidate{UserID: uuid.New()}
	assert.True(t, open.Eligible(anyone))
	assert.False(t, closed.Eligible(anyone))
	assert.False(t, open.Assigned())
}

func TestAcceptancePolicy_UserIDWinsOverOtherFields(t *testing.T) {
	assignee := uuid.New()
	orgID := uuid.New()
	policy := AcceptancePolicy{
		AssignedUserID: &assignee,
		AssignedOrgID:  &orgID,
		AssignedEmail:  "seller@example.com",
	}

	// A candidate matching org and email but not the assigned user loses.
	byOrgAndEmail := Candidate{
		UserID:        uuid.New(),
		Email:         "seller@example.com",
		EmailVerified: true,
		OrgIDs:        []uuid.UUID{orgID},
	}
	assert.False(t, policy.Eligible(byOrgAndEmail))
	assert.True(t, policy.Eligible(Candidate{UserID: assignee}))
}

func TestAcceptancePolicy_OrgWinsOverEmail(t *testing.T) {
	orgID := uuid.New()
	policy := AcceptancePolicy{
		AssignedOrgID: &orgID,
		AssignedEmail: "seller@example.com",
	}

	byEmailOnly := Candidate{UserID: uuid.New(), Email: "seller@example.com", EmailVerified: true}
	assert.False(t, policy.Eligible(byEmailOnly))
	assert.True(t, policy.Eligible(Candidate{UserID: uuid.New(), OrgIDs: []uuid.UUID{orgID}}))
}
