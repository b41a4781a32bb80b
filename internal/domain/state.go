package domain

import "strings"

// escrowTransitions is the complete set of legal status transitions.
// CREATED is initial; COMPLETED, CANCELED and EXPIRED are terminal.
// Transitions out of FUNDED and the confirmed states into CANCELED are only
// reachable via the admin/arbiter path; the two-party cancel is rejected
// before this table is consulted.
var escrowTransitions = map[string]map[string]struct{}{
	EscrowStatusCreated: {
		EscrowStatusPendingAcceptance: {},
		EscrowStatusPendingFunding:    {},
		EscrowStatusCanceled:          {},
		EscrowStatusExpired:           {},
	},
	EscrowStatusPendingAcceptance: {
		EscrowStatusPendingFunding: {},
		EscrowStatusCanceled:       {},
		EscrowStatusExpired:        {},
	},
	EscrowStatusPendingFunding: {
		EscrowStatusFunded:   {},
		EscrowStatusCanceled: {},
		EscrowStatusExpired:  {},
	},
	EscrowStatusFunded: {
		EscrowStatusPartyAConfirmed: {},
		EscrowStatusPartyBConfirmed: {},
		EscrowStatusCompleted:       {},
		EscrowStatusCanceled:        {},
	},
	EscrowStatusPartyAConfirmed: {
		EscrowStatusCompleted: {},
		EscrowStatusCanceled:  {},
	},
	EscrowStatusPartyBConfirmed: {
		EscrowStatusCompleted: {},
		EscrowStatusCanceled:  {},
	},
	EscrowStatusCompleted: {},
	EscrowStatusCanceled:  {},
	EscrowStatusExpired:   {},
}

// NormalizeStatus canonicalizes a stored status value.
func NormalizeStatus(status string) string {
	return strings.ToUpper(strings.TrimSpace(status))
}

// CanTransition reports whether the state machine permits current -> next.
func CanTransition(current, next string) bool {
	nextStates, ok := escrowTransitions[NormalizeStatus(current)]
	if !ok {
		return false
	}
	_, ok = nextStates[NormalizeStatus(next)]
	return ok
}

// IsTerminal reports whether no transition leaves the given status.
func IsTerminal(status string) bool {
	nextStates, ok := escrowTransitions[NormalizeStatus(status)]
	return ok && len(nextStates) == 0
}

// IsFundsLocked reports whether Party A's amount+fee is currently held in
// the in_contract bucket, i.e. the escrow reached FUNDED and has not yet
// been released or refunded.
func IsFundsLocked(status string) bool {
	switch NormalizeStatus(status) {
	case EscrowStatusFunded, EscrowStatusPartyAConfirmed, EscrowStatusPartyBConfirmed:
		return true
	}
	return false
}

// AwaitingAcceptance reports whether the escrow can still be accepted.
func AwaitingAcceptance(status string) bool {
	switch NormalizeStatus(status) {
	case EscrowStatusCreated, EscrowStatusPendingAcceptance:
		return true
	}
	return false
}
