package gateway

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// Gateway is the external settlement rail used for withdrawals.
type Gateway interface {
	// SendWithdrawal pushes funds to an external destination and returns
	// the rail's reference id for the transfer.
	SendWithdrawal(ctx context.Context, destination string, amountMicros int64, currency string) (string, error)
}

// MockGateway simulates the settlement rail for local development and tests.
// It adds network-shaped latency and fails a configurable fraction of calls.
type MockGateway struct {
	// FailureRate is the probability of failure (0.0 to 1.0).
	FailureRate float64
	// MaxDelay caps the simulated latency. Zero means the 2-5s default.
	MaxDelay time.Duration
}

func NewMockGateway() *MockGateway {
	return &MockGateway{FailureRate: 0.1}
}

func (g *MockGateway) SendWithdrawal(ctx context.Context, destination string, amountMicros int64, currency string) (string, error) {
	delay := time.Duration(2000+rand.Intn(3000)) * time.Millisecond
	if g.MaxDelay > 0 && delay > g.MaxDelay {
		delay = g.MaxDelay
	}

	select {
	case <-time.After(delay):
	case <-ctx.Done():
		return "", fmt.Errorf("gateway call canceled: %w", ctx.Err())
	}

	if rand.Float64() < g.FailureRate {
		return "", fmt.Errorf("gateway temporarily unavailable")
	}

	return fmt.Sprintf("MOCK-%s-%05d", time.Now().Format("20060102-150405"), rand.Intn(100000)), nil
}
