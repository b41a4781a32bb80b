package domain

// System IDs (must match migration 000002).
// The platform fee accounts collect released escrow fees per currency.
const (
	SystemUserID = "11111111-1111-1111-1111-111111111111"

	FeeAccountUSD = "22222222-2222-2222-2222-222222222222"
	FeeAccountEUR = "33333333-3333-3333-3333-333333333333"
	FeeAccountGBP = "44444444-4444-4444-4444-444444444444"

	// Ledger buckets
	BucketAvailable  = "available"
	BucketInContract = "in_contract"

	// Ledger entry types
	EntryDeposit       = "DEPOSIT"
	EntryWithdraw      = "WITHDRAW"
	EntryEscrowLock    = "ESCROW_LOCK"
	EntryEscrowRelease = "ESCROW_RELEASE"
	EntryEscrowReceive = "ESCROW_RECEIVE"
	EntryPlatformFee   = "PLATFORM_FEE"
	EntryRefund        = "REFUND"

	// Escrow statuses
	EscrowStatusCreated           = "CREATED"
	EscrowStatusPendingAcceptance = "PENDING_ACCEPTANCE"
	EscrowStatusPendingFunding    = "PENDING_FUNDING"
	EscrowStatusFunded            = "FUNDED"
	EscrowStatusPartyAConfirmed   = "PARTY_A_CONFIRMED"
	EscrowStatusPartyBConfirmed   = "PARTY_B_CONFIRMED"
	EscrowStatusCompleted         = "COMPLETED"
	EscrowStatusCanceled          = "CANCELED"
	EscrowStatusExpired           = "EXPIRED"

	// Escrow parties
	PartyA = "A"
	PartyB = "B"

	// Obligation statuses
	ObligationPending   = "pending"
	ObligationCompleted = "completed"
	ObligationDisputed  = "disputed"

	// Arbiter types
	ArbiterPlatformOnly = "platform_only"
	ArbiterPerson       = "person"
	ArbiterOrganization = "organization"
	ArbiterPlatformAI   = "platform_ai"

	// Escrow event types
	EventCreated             = "created"
	EventAccepted            = "accepted"
	EventFunded              = "funded"
	EventPartyAConfirmed     = "party_a_confirmed"
	EventPartyBConfirmed     = "party_b_confirmed"
	EventCompleted           = "completed"
	EventCanceled            = "canceled"
	EventAdminCanceled       = "admin_canceled"
	EventAdminForceCompleted = "admin_force_completed"
	EventExpired             = "expired"
	EventEvidenceLinked      = "evidence_linked"

	// User / org roles
	RolePlatformAdmin = "admin"
	OrgRoleAdmin      = "admin"
	OrgRoleMember     = "member"

	// Withdrawal statuses
	WithdrawalStatusPending    = "PENDING"
	WithdrawalStatusProcessing = "PROCESSING"
	WithdrawalStatusCompleted  = "COMPLETED"
	WithdrawalStatusFailed     = "FAILED"
)

var supportedCurrencies = map[string]struct{}{
	"USD": {},
	"EUR": {},
	"GBP": {},
}

// IsValidCurrency reports whether the currency has a platform fee account.
func IsValidCurrency(currency string) bool {
	_, ok := supportedCurrencies[currency]
	return ok
}
