package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/oregpt/escrowservice-sub000/internal/domain"
	"github.com/oregpt/escrowservice-sub000/internal/models"
	"github.com/oregpt/escrowservice-sub000/internal/repository"
)

// DirectoryHandler manages users, organizations, and service types.
type DirectoryHandler struct {
	store *repository.Store
}

func NewDirectoryHandler(store *repository.Store) *DirectoryHandler {
	return &DirectoryHandler{store: store}
}

func (h *DirectoryHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username      string `json:"username"`
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Username) == "" || strings.TrimSpace(req.Email) == "" {
		RespondError(w, r, http.StatusBadRequest, "request/missing-fields", "username and email are required")
		return
	}

	user := &models.User{
		ID:            uuid.New(),
		Username:      req.Username,
		Email:         req.Email,
		EmailVerified: req.EmailVerified,
		Role:          "user",
	}
	if err := h.store.Queries().CreateUser(r.Context(), user); err != nil {
		if status, pType, msg, ok := mapDBError(err); ok {
			RespondError(w, r, status, pType, msg)
			return
		}
		zap.L().Error("create user failed", zap.Error(err), zap.String("email", req.Email))
		RespondError(w, r, http.StatusInternalServerError, "user/create-failed", "Failed to create user")
		return
	}

	RespondJSON(w, http.StatusCreated, user)
}

func (h *DirectoryHandler) CreateOrganization(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		RespondError(w, r, http.StatusBadRequest, "request/missing-name", "name is required")
		return
	}

	org := &models.Organization{ID: uuid.New(), Name: req.Name}
	err = h.store.RunInTx(r.Context(), func(qtx *repository.Queries) error {
		if err := qtx.CreateOrganization(r.Context(), org); err != nil {
			return err
		}
		// The founder becomes an admin; the first org is their primary.
		_, primaryErr := qtx.GetPrimaryOrgID(r.Context(), actorID)
		return qtx.AddOrgMember(r.Context(), models.OrgMember{
			OrgID:     org.ID,
			UserID:    actorID,
			Role:      domain.OrgRoleAdmin,
			IsPrimary: primaryErr != nil,
		})
	})
	if err != nil {
		if status, pType, msg, ok := mapDBError(err); ok {
			RespondError(w, r, status, pType, msg)
			return
		}
		zap.L().Error("create organization failed", zap.Error(err))
		RespondError(w, r, http.StatusInternalServerError, "org/create-failed", "Failed to create organization")
		return
	}

	RespondJSON(w, http.StatusCreated, org)
}

func (h *DirectoryHandler) AddOrgMember(w http.ResponseWriter, r *http.Request) {
	actorID, isAdmin, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	var req struct {
		OrgID     string `json:"org_id"`
		UserID    string `json:"user_id"`
		Role      string `json:"role"`
		IsPrimary bool   `json:"is_primary"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}
	orgID, err := uuid.Parse(req.OrgID)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-org-id", "Invalid org_id")
		return
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-user-id", "Invalid user_id")
		return
	}
	role := req.Role
	if role == "" {
		role = domain.OrgRoleMember
	}
	if role != domain.OrgRoleAdmin && role != domain.OrgRoleMember {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-role", "role must be admin or member")
		return
	}

	if !isAdmin {
		actorRole, err := h.store.Queries().GetOrgRole(r.Context(), orgID, actorID)
		if err != nil {
			RespondError(w, r, http.StatusInternalServerError, "org/role-read-failed", "Failed to check membership")
			return
		}
		if actorRole != domain.OrgRoleAdmin {
			RespondError(w, r, http.StatusForbidden, "auth/insufficient-permissions", "insufficient permissions")
			return
		}
	}

	member := models.OrgMember{OrgID: orgID, UserID: userID, Role: role, IsPrimary: req.IsPrimary}
	if err := h.store.Queries().AddOrgMember(r.Context(), member); err != nil {
		if status, pType, msg, ok := mapDBError(err); ok {
			RespondError(w, r, status, pType, msg)
			return
		}
		zap.L().Error("add org member failed", zap.Error(err))
		RespondError(w, r, http.StatusInternalServerError, "org/member-add-failed", "Failed to add member")
		return
	}

	RespondJSON(w, http.StatusCreated, member)
}

// CreateServiceType registers a new escrow template (admin only).
func (h *DirectoryHandler) CreateServiceType(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name          string                  `json:"name"`
		Kind          string                  `json:"kind"`
		FeePercent    string                  `json:"fee_percent"`
		PartyADeliver models.DeliveryTemplate `json:"party_a_delivers"`
		PartyBDeliver models.DeliveryTemplate `json:"party_b_delivers"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		RespondError(w, r, http.StatusBadRequest, "request/missing-name", "name is required")
		return
	}
	switch req.Kind {
	case domain.ServiceKindTrafficPurchase, domain.ServiceKindDocument, domain.ServiceKindCustom:
	default:
		RespondError(w, r, http.StatusBadRequest, "request/invalid-kind", "unknown service type kind")
		return
	}
	feePercent, err := decimal.NewFromString(req.FeePercent)
	if err != nil || feePercent.IsNegative() || feePercent.GreaterThan(decimal.NewFromInt(100)) {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-fee-percent", "fee_percent must be between 0 and 100")
		return
	}

	st := &models.ServiceType{
		ID:            uuid.New(),
		Name:          req.Name,
		Kind:          req.Kind,
		FeePercent:    feePercent.String(),
		PartyADeliver: req.PartyADeliver,
		PartyBDeliver: req.PartyBDeliver,
	}
	if err := h.store.Queries().CreateServiceType(r.Context(), st); err != nil {
		if status, pType, msg, ok := mapDBError(err); ok {
			RespondError(w, r, status, pType, msg)
			return
		}
		zap.L().Error("create service type failed", zap.Error(err))
		RespondError(w, r, http.StatusInternalServerError, "service-type/create-failed", "Failed to create service type")
		return
	}

	RespondJSON(w, http.StatusCreated, st)
}
