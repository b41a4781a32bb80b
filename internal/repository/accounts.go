package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/oregpt/escrowservice-sub000/internal/models"
)

const accountColumns = `id, owner_user_id, owner_org_id, currency,
	available_micros, in_contract_micros, created_at`

func scanAccount(row interface{ Scan(dest ...any) error }) (*models.Account, error) {
	a := &models.Account{}
	err := row.Scan(&a.ID, &a.OwnerUserID, &a.OwnerOrgID, &a.Currency,
		&a.AvailableMicros, &a.InContractMicros, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// InsertAccount creates an account row. Accounts are created lazily on first
// reference to an owner and never deleted.
func (q *Queries) InsertAccount(ctx context.Context, a *models.Account) error {
	query := `INSERT INTO accounts (id, owner_user_id, owner_org_id, currency,
			available_micros, in_contract_micros, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		RETURNING created_at`
	err := q.db.QueryRow(ctx, query, a.ID, a.OwnerUserID, a.OwnerOrgID,
		a.Currency, a.AvailableMicros, a.InContractMicros).Scan(&a.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

// GetAccount loads an account without locking.
func (q *Queries) GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	query := fmt.Sprintf(`SELECT %s FROM accounts WHERE id = $1`, accountColumns)
	return scanAccount(q.db.QueryRow(ctx, query, id))
}

// GetAccountForUpdate loads and row-locks an account. Callers lock multiple
// accounts in ascending id order to avoid deadlock.
func (q *Queries) GetAccountForUpdate(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	query := fmt.Sprintf(`SELECT %s FROM accounts WHERE id = $1 FOR UPDATE`, accountColumns)
	return scanAccount(q.db.QueryRow(ctx, query, id))
}

// GetAccountByOwnerUser finds a user-owned account in the given currency.
func (q *Queries) GetAccountByOwnerUser(ctx context.Context, userID uuid.UUID, currency string) (*models.Account, error) {
	query := fmt.Sprintf(`SELECT %s FROM accounts WHERE owner_user_id = $1 AND currency = $2`, accountColumns)
	return scanAccount(q.db.QueryRow(ctx, query, userID, currency))
}

// GetAccountByOwnerOrg finds an org-owned account in the given currency.
func (q *Queries) GetAccountByOwnerOrg(ctx context.Context, orgID uuid.UUID, currency string) (*models.Account, error) {
	query := fmt.Sprintf(`SELECT %s FROM accounts WHERE owner_org_id = $1 AND currency = $2`, accountColumns)
	return scanAccount(q.db.QueryRow(ctx, query, orgID, currency))
}

// UpsertOrgAccount lazily creates an org-owned account with zero balances.
// ON CONFLICT DO NOTHING makes concurrent first references race-safe without
// aborting the enclosing transaction; callers re-read after the upsert.
func (q *Queries) UpsertOrgAccount(ctx context.Context, id, orgID uuid.UUID, currency string) error {
	_, err := q.db.Exec(ctx, `INSERT INTO accounts
			(id, owner_org_id, currency, available_micros, in_contract_micros, created_at)
		VALUES ($1, $2, $3, 0, 0, NOW())
		ON CONFLICT (owner_org_id, currency) WHERE owner_org_id IS NOT NULL DO NOTHING`,
		id, orgID, currency)
	if err != nil {
		return fmt.Errorf("upsert org account: %w", err)
	}
	return nil
}

type AdjustAccountBalancesParams struct {
	ID              uuid.UUID
	AvailableDelta  int64
	InContractDelta int64
}

// AdjustAccountBalances applies deltas to both buckets. The table CHECK
// constraints reject any update that would take a bucket negative.
func (q *Queries) AdjustAccountBalances(ctx context.Context, p AdjustAccountBalancesParams) (int64, error) {
	tag, err := q.db.Exec(ctx, `UPDATE accounts
		SET available_micros = available_micros + $2,
			in_contract_micros = in_contract_micros + $3
		WHERE id = $1`,
		p.ID, p.AvailableDelta, p.InContractDelta)
	if err != nil {
		return 0, fmt.Errorf("adjust account balances: %w", err)
	}
	return tag.RowsAffected(), nil
}

type InsertLedgerEntryParams struct {
	AccountID    uuid.UUID
	AmountMicros int64
	Bucket       string
	EntryType    string
	ReferenceID  string
}

// InsertLedgerEntry appends one immutable ledger row.
func (q *Queries) InsertLedgerEntry(ctx context.Context, p InsertLedgerEntryParams) error {
	_, err := q.db.Exec(ctx, `INSERT INTO ledger_entries
			(id, account_id, amount_micros, bucket, entry_type, reference_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())`,
		uuid.New(), p.AccountID, p.AmountMicros, p.Bucket, p.EntryType, p.ReferenceID)
	if err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

// ListLedgerEntries returns an account's statement, newest first.
func (q *Queries) ListLedgerEntries(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]models.LedgerEntry, error) {
	rows, err := q.db.Query(ctx, `SELECT id, account_id, amount_micros, bucket, entry_type, reference_id, created_at
		FROM ledger_entries
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		accountID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []models.LedgerEntry
	for rows.Next() {
		var e models.LedgerEntry
		if err := rows.Scan(&e.ID, &e.AccountID, &e.AmountMicros, &e.Bucket, &e.EntryType, &e.ReferenceID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetLedgerEntryByReference finds a prior entry of one type for an external
// reference, used to detect replayed deposits.
func (q *Queries) GetLedgerEntryByReference(ctx context.Context, referenceID, entryType string) (*models.LedgerEntry, error) {
	var e models.LedgerEntry
	err := q.db.QueryRow(ctx, `SELECT id, account_id, amount_micros, bucket, entry_type, reference_id, created_at
		FROM ledger_entries
		WHERE reference_id = $1 AND entry_type = $2
		ORDER BY created_at
		LIMIT 1`,
		referenceID, entryType).Scan(&e.ID, &e.AccountID, &e.AmountMicros, &e.Bucket, &e.EntryType, &e.ReferenceID, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// BucketDriftRow reports a bucket whose entry sum diverged from the stored
// balance, violating the ledger's correctness axiom.
type BucketDriftRow struct {
	AccountID uuid.UUID
	Currency  string
	Bucket    string
	EntrySum  int64
	Balance   int64
}

// GetLedgerBucketDrift compares, per account and bucket, the running sum of
// ledger entries against the stored balance, and returns every divergence.
func (q *Queries) GetLedgerBucketDrift(ctx context.Context) ([]BucketDriftRow, error) {
	rows, err := q.db.Query(ctx, `
		WITH sums AS (
			SELECT account_id, bucket, SUM(amount_micros) AS total
			FROM ledger_entries
			GROUP BY account_id, bucket
		)
		SELECT a.id, a.currency, b.bucket,
			COALESCE(s.total, 0) AS entry_sum,
			CASE WHEN b.bucket = 'available' THEN a.available_micros ELSE a.in_contract_micros END AS balance
		FROM accounts a
		CROSS JOIN (VALUES ('available'), ('in_contract')) AS b(bucket)
		LEFT JOIN sums s ON s.account_id = a.id AND s.bucket = b.bucket
		WHERE COALESCE(s.total, 0) <> CASE WHEN b.bucket = 'available' THEN a.available_micros ELSE a.in_contract_micros END`)
	if err != nil {
		return nil, fmt.Errorf("ledger drift query: %w", err)
	}
	defer rows.Close()

	var drift []BucketDriftRow
	for rows.Next() {
		var d BucketDriftRow
		if err := rows.Scan(&d.AccountID, &d.Currency, &d.Bucket, &d.EntrySum, &d.Balance); err != nil {
			return nil, fmt.Errorf("scan drift row: %w", err)
		}
		drift = append(drift, d)
	}
	return drift, rows.Err()
}
