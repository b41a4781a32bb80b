package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/oregpt/escrowservice-sub000/internal/models"
)

func (q *Queries) CreateUser(ctx context.Context, user *models.User) error {
	query := `INSERT INTO users (id, username, email, email_verified, role, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW()) RETURNING created_at`
	err := q.db.QueryRow(ctx, query, user.ID, user.Username, user.Email, user.EmailVerified, user.Role).Scan(&user.CreatedAt)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (q *Queries) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user := &models.User{}
	query := `SELECT id, username, email, email_verified, role, created_at FROM users WHERE id = $1`
	err := q.db.QueryRow(ctx, query, id).Scan(&user.ID, &user.Username, &user.Email, &user.EmailVerified, &user.Role, &user.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

func (q *Queries) CreateOrganization(ctx context.Context, org *models.Organization) error {
	query := `INSERT INTO organizations (id, name, created_at) VALUES ($1, $2, NOW()) RETURNING created_at`
	err := q.db.QueryRow(ctx, query, org.ID, org.Name).Scan(&org.CreatedAt)
	if err != nil {
		return fmt.Errorf("create organization: %w", err)
	}
	return nil
}

func (q *Queries) AddOrgMember(ctx context.Context, m models.OrgMember) error {
	_, err := q.db.Exec(ctx, `INSERT INTO org_members (org_id, user_id, role, is_primary)
		VALUES ($1, $2, $3, $4)`,
		m.OrgID, m.UserID, m.Role, m.IsPrimary)
	if err != nil {
		return fmt.Errorf("add org member: %w", err)
	}
	return nil
}

// GetPrimaryOrgID returns the organization the user acts for by default.
func (q *Queries) GetPrimaryOrgID(ctx context.Context, userID uuid.UUID) (uuid.UUID, error) {
	var orgID uuid.UUID
	err := q.db.QueryRow(ctx, `SELECT org_id FROM org_members
		WHERE user_id = $1 AND is_primary
		LIMIT 1`, userID).Scan(&orgID)
	if err != nil {
		return uuid.Nil, err
	}
	return orgID, nil
}

// GetOrgRole returns the user's role in the org, or "" when not a member.
func (q *Queries) GetOrgRole(ctx context.Context, orgID, userID uuid.UUID) (string, error) {
	var role string
	err := q.db.QueryRow(ctx, `SELECT role FROM org_members
		WHERE org_id = $1 AND user_id = $2`, orgID, userID).Scan(&role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("get org role: %w", err)
	}
	return role, nil
}

// ListUserOrgIDs returns every organization the user belongs to.
func (q *Queries) ListUserOrgIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := q.db.Query(ctx, `SELECT org_id FROM org_members WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("list user orgs: %w", err)
	}
	defer rows.Close()

	var orgIDs []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan org id: %w", err)
		}
		orgIDs = append(orgIDs, id)
	}
	return orgIDs, rows.Err()
}

func (q *Queries) CreateServiceType(ctx context.Context, st *models.ServiceType) error {
	deliverA, err := json.Marshal(st.PartyADeliver)
	if err != nil {
		return fmt.Errorf("encode party_a_delivers: %w", err)
	}
	deliverB, err := json.Marshal(st.PartyBDeliver)
	if err != nil {
		return fmt.Errorf("encode party_b_delivers: %w", err)
	}
	query := `INSERT INTO service_types (id, name, kind, fee_percent, party_a_delivers, party_b_delivers, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW()) RETURNING created_at`
	err = q.db.QueryRow(ctx, query, st.ID, st.Name, st.Kind, st.FeePercent, deliverA, deliverB).Scan(&st.CreatedAt)
	if err != nil {
		return fmt.Errorf("create service type: %w", err)
	}
	return nil
}

func (q *Queries) GetServiceType(ctx context.Context, id uuid.UUID) (*models.ServiceType, error) {
	st := &models.ServiceType{}
	var deliverA, deliverB []byte
	query := `SELECT id, name, kind, fee_percent::text, party_a_delivers, party_b_delivers, created_at
		FROM service_types WHERE id = $1`
	err := q.db.QueryRow(ctx, query, id).Scan(&st.ID, &st.Name, &st.Kind, &st.FeePercent, &deliverA, &deliverB, &st.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(deliverA, &st.PartyADeliver); err != nil {
		return nil, fmt.Errorf("decode party_a_delivers: %w", err)
	}
	if err := json.Unmarshal(deliverB, &st.PartyBDeliver); err != nil {
		return nil, fmt.Errorf("decode party_b_delivers: %w", err)
	}
	return st, nil
}
