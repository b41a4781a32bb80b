package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition_HappyPath(t *testing.T) {
	steps := [][2]string{
		{EscrowStatusCreated, EscrowStatusPendingAcceptance},
		{EscrowStatusPendingAcceptance, EscrowStatusPendingFunding},
		{EscrowStatusPendingFunding, EscrowStatusFunded},
		{EscrowStatusFunded, EscrowStatusPartyAConfirmed},
		{EscrowStatusPartyAConfirmed, EscrowStatusCompleted},
	}
	for _, step := range steps {
		assert.True(t, CanTransition(step[0], step[1]), "%s -> %s", step[0], step[1])
	}
}

func TestCanTransition_SkipsAcceptance(t *testing.T) {
	// A directly assigned escrow can move straight to funding.
	assert.True(t, CanTransition(EscrowStatusCreated, EscrowStatusPendingFunding))
}

func TestCanTransition_RejectsIllegalMoves(t *testing.T) {
	assert.False(t, CanTransition(EscrowStatusCreated, EscrowStatusFunded))
	assert.False(t, CanTransition(EscrowStatusCreated, EscrowStatusCompleted))
	assert.False(t, CanTransition(EscrowStatusFunded, EscrowStatusPendingFunding))
	assert.False(t, CanTransition(EscrowStatusCompleted, EscrowStatusCanceled))
	assert.False(t, CanTransition(EscrowStatusCanceled, EscrowStatusCreated))
	assert.False(t, CanTransition(EscrowStatusExpired, EscrowStatusPendingFunding))
	// Funded escrows never expire.
	assert.False(t, CanTransition(EscrowStatusFunded, EscrowStatusExpired))
	assert.False(t, CanTransition(EscrowStatusPartyAConfirmed, EscrowStatusExpired))
}

func TestCanTransition_UnknownStatus(t *testing.T) {
	assert.False(t, CanTransition("BOGUS", EscrowStatusFunded))
	assert.False(t, CanTransition(EscrowStatusCreated, "BOGUS"))
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, IsTerminal(EscrowStatusCompleted))
	assert.True(t, IsTerminal(EscrowStatusCanceled))
	assert.True(t, IsTerminal(EscrowStatusExpired))

	assert.False(t, IsTerminal(EscrowStatusCreated))
	assert.False(t, IsTerminal(EscrowStatusPendingAcceptance))
	assert.False(t, IsTerminal(EscrowStatusPendingFunding))
	assert.False(t, IsTerminal(EscrowStatusFunded))
	assert.False(t, IsTerminal(EscrowStatusPartyAConfirmed))
	assert.False(t, IsTerminal(EscrowStatusPartyBConfirmed))
	assert.False(t, IsTerminal("BOGUS"))
}

func TestIsFundsLocked(t *testing.T) {
	assert.True(t, IsFundsLocked(EscrowStatusFunded))
	assert.True(t, IsFundsLocked(EscrowStatusPartyAConfirmed))
	assert.True(t, IsFundsLocked(EscrowStatusPartyBConfirmed))

	assert.False(t, IsFundsLocked(EscrowStatusCreated))
	assert.False(t, IsFundsLocked(EscrowStatusPendingFunding))
	assert.False(t, IsFundsLocked(EscrowStatusCompleted))
	assert.False(t, IsFundsLocked(EscrowStatusCanceled))
	assert.False(t, IsFundsLocked(EscrowStatusExpired))
}

func TestAwaitingAcceptance(t *testing.T) {
	assert.True(t, AwaitingAcceptance(EscrowStatusCreated))
	assert.True(t, AwaitingAcceptance(EscrowStatusPendingAcceptance))
	assert.False(t, AwaitingAcceptance(EscrowStatusPendingFunding))
	assert.False(t, AwaitingAcceptance(EscrowStatusFunded))
}

func TestNormalizeStatus(t *testing.T) {
	assert.True(t, CanTransition(" created ", "pending_funding"))
	assert.True(t, IsTerminal("completed"))
}
