package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID            uuid.UUID `json:"id"`
	Username      string    `json:"username"`
	Email         string    `json:"email"`
	EmailVerified bool      `json:"email_verified"`
	Role          string    `json:"role"`
	CreatedAt     time.Time `json:"created_at"`
}

type Organization struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type OrgMember struct {
	OrgID     uuid.UUID `json:"org_id"`
	UserID    uuid.UUID `json:"user_id"`
	Role      string    `json:"role"`
	IsPrimary bool      `json:"is_primary"`
}

// DeliveryTemplate is one side's delivery descriptor on a service type.
type DeliveryTemplate struct {
	Label string `json:"label"`
	Type  string `json:"type"`
}

type ServiceType struct {
	ID            uuid.UUID        `json:"id"`
	Name          string           `json:"name"`
	Kind          string           `json:"kind"`
	FeePercent    string           `json:"fee_percent"` // NUMERIC, parsed with shopspring/decimal
	PartyADeliver DeliveryTemplate `json:"party_a_delivers"`
	PartyBDeliver DeliveryTemplate `json:"party_b_delivers"`
	CreatedAt     time.Time        `json:"created_at"`
}

// Account holds one owner's funds in one currency, split across the
// available and in_contract buckets. Exactly one of OwnerUserID/OwnerOrgID
// is set. Both buckets are always >= 0; the total is derived, never stored.
type Account struct {
	ID               uuid.UUID  `json:"id"`
	OwnerUserID      *uuid.UUID `json:"owner_user_id,omitempty"`
	OwnerOrgID       *uuid.UUID `json:"owner_org_id,omitempty"`
	Currency         string     `json:"currency"`
	AvailableMicros  int64      `json:"available_micros"`
	InContractMicros int64      `json:"in_contract_micros"`
	CreatedAt        time.Time  `json:"created_at"`
}

// TotalMicros is the derived total balance.
func (a Account) TotalMicros() int64 {
	return a.AvailableMicros + a.InContractMicros
}

// LedgerEntry is append-only and immutable once written. For any account the
// running sum of entry amounts per bucket equals that bucket's balance.
type LedgerEntry struct {
	ID           uuid.UUID `json:"id"`
	AccountID    uuid.UUID `json:"account_id"`
	AmountMicros int64     `json:"amount_micros"` // signed
	Bucket       string    `json:"bucket"`
	EntryType    string    `json:"entry_type"`
	ReferenceID  string    `json:"reference_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// Obligation is one party's tracked deliverable, generated from the service
// type at escrow creation and mutated only by lifecycle transitions.
type Obligation struct {
	Party       string     `json:"party"`
	Description string     `json:"description"`
	Type        string     `json:"type"`
	Status      string     `json:"status"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	EvidenceIDs []string   `json:"evidence_attachment_ids,omitempty"`
}

type Escrow struct {
	ID            uuid.UUID `json:"id"`
	ServiceTypeID uuid.UUID `json:"service_type_id"`

	PartyAUserID uuid.UUID  `json:"party_a_user_id"`
	PartyAOrgID  uuid.UUID  `json:"party_a_org_id"`
	PartyBUserID *uuid.UUID `json:"party_b_user_id,omitempty"`
	PartyBOrgID  *uuid.UUID `json:"party_b_org_id,omitempty"`

	// Acceptance assignment; all empty means open acceptance.
	AssignedUserID *uuid.UUID `json:"assigned_user_id,omitempty"`
	AssignedOrgID  *uuid.UUID `json:"assigned_org_id,omitempty"`
	AssignedEmail  string     `json:"assigned_email,omitempty"`
	IsOpen         bool       `json:"is_open"`

	AmountMicros int64  `json:"amount_micros"`
	FeeMicros    int64  `json:"fee_micros"` // frozen at creation
	Currency     string `json:"currency"`
	Status       string `json:"status"`

	ArbiterType   string     `json:"arbiter_type"`
	ArbiterUserID *uuid.UUID `json:"arbiter_user_id,omitempty"`
	ArbiterEmail  string     `json:"arbiter_email,omitempty"`
	ArbiterOrgID  *uuid.UUID `json:"arbiter_org_id,omitempty"`

	Terms    string          `json:"terms,omitempty"`
	Metadata json.RawMessage `json:"metadata,omitempty"`

	ObligationA Obligation `json:"obligation_a"`
	ObligationB Obligation `json:"obligation_b"`

	AcceptedAt   *time.Time `json:"accepted_at,omitempty"`
	FundedAt     *time.Time `json:"funded_at,omitempty"`
	AConfirmedAt *time.Time `json:"a_confirmed_at,omitempty"`
	BConfirmedAt *time.Time `json:"b_confirmed_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	CanceledAt   *time.Time `json:"canceled_at,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	CancelReason string     `json:"cancel_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TotalMicros is the amount Party A locks when funding: amount plus fee.
func (e Escrow) TotalMicros() int64 {
	return e.AmountMicros + e.FeeMicros
}

// EscrowEvent is an append-only audit row. ActorUserID is nil for
// system-generated events (e.g. expiry sweeps).
type EscrowEvent struct {
	ID          int64           `json:"id"`
	EscrowID    uuid.UUID       `json:"escrow_id"`
	EventType   string          `json:"event_type"`
	ActorUserID *uuid.UUID      `json:"actor_user_id,omitempty"`
	Details     json.RawMessage `json:"details,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

type Withdrawal struct {
	ID           uuid.UUID       `json:"id"`
	AccountID    uuid.UUID       `json:"account_id"`
	AmountMicros int64           `json:"amount_micros"`
	Currency     string          `json:"currency"`
	Destination  json.RawMessage `json:"destination"`
	Status       string          `json:"status"`
	GatewayRef   *string         `json:"gateway_ref,omitempty"`
	ReferenceID  string          `json:"reference_id"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}
