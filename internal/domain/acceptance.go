package domain

import (
	"strings"

	"github.com/google/uuid"
)

// AcceptancePolicy captures who may accept an escrow. It is derived once
// from the escrow row and evaluated as a value, rather than re-deriving the
// matching rules at each call site.
//
// When several assignment fields are set the precedence is deterministic:
// assigned user id, then assigned organization membership, then assigned
// email, then open acceptance.
type AcceptancePolicy struct {
	AssignedUserID *uuid.UUID
	AssignedOrgID  *uuid.UUID
	AssignedEmail  string
	Open           bool
}

// Candidate describes the actor attempting to accept.
type Candidate struct {
	UserID        uuid.UUID
	Email         string
	EmailVerified bool
	// OrgIDs are the organizations the candidate is a member of.
	OrgIDs []uuid.UUID
}

// Eligible reports whether the candidate may accept under this policy.
func (p AcceptancePolicy) Eligible(c Candidate) bool {
	if p.AssignedUserID != nil {
		return *p.AssignedUserID == c.UserID
	}
	if p.AssignedOrgID != nil {
		for _, orgID := range c.OrgIDs {
			if orgID == *p.AssignedOrgID {
				return true
			}
		}
		return false
	}
	if p.AssignedEmail != "" {
		return c.EmailVerified && strings.EqualFold(p.AssignedEmail, c.Email)
	}
	return p.Open
}

// Assigned reports whether the policy targets a specific user, org or email.
func (p AcceptancePolicy) Assigned() bool {
	return p.AssignedUserID != nil || p.AssignedOrgID != nil || p.AssignedEmail != ""
}
