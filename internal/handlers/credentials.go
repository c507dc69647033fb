package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rizonesoft/isotone-sub002/internal/auth"
	"github.com/rizonesoft/isotone-sub002/internal/models"
	"github.com/rizonesoft/isotone-sub002/internal/services"
	pkghttp "github.com/rizonesoft/isotone-sub002/pkg/http"
)

// CredentialServiceInterface defines the credential operations used by the handler
type CredentialServiceInterface interface {
	CreateCredential(ctx context.Context, input services.CreateCredentialInput) (*models.GeneratedCredential, error)
	RevokeCredential(ctx context.Context, id, revokedBy string) error
	ListCredentials(ctx context.Context, limit, offset int) ([]*models.APICredential, error)
	GetCredential(ctx context.Context, id string) (*models.APICredential, error)
}

// CredentialHandler handles API credential HTTP requests
type CredentialHandler struct {
	service CredentialServiceInterface
}

// NewCredentialHandler creates a new CredentialHandler
func NewCredentialHandler(service CredentialServiceInterface) *CredentialHandler {
	return &CredentialHandler{service: service}
}

// CreateCredentialRequest represents the request to issue a credential
type CreateCredentialRequest struct {
	OwnerID     string     `json:"owner_id" validate:"required,max=255"`
	Name        string     `json:"name" validate:"required,min=1,max=255"`
	Permissions []string   `json:"permissions" validate:"required,min=1,dive,required,max=128,permission"`
	Env         string     `json:"env" validate:"omitempty,oneof=live test"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	IPAllowlist []string   `json:"ip_allowlist" validate:"omitempty,dive,ip"`
}

// ListCredentialsResponse is a page of credentials
type ListCredentialsResponse struct {
	Credentials []*models.APICredential `json:"credentials"`
	Count       int                     `json:"count"`
}

// WhoAmI GET /api/v1/identity
func (h *CredentialHandler) WhoAmI(w http.ResponseWriter, r *http.Request) {
	identity := auth.GetIdentity(r.Context())
	if identity == nil {
		pkghttp.WriteUnauthorized(w)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, identity)
}

// Create POST /admin/credentials
func (h *CredentialHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateCredentialRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	var createdBy string
	if identity := auth.GetIdentity(r.Context()); identity != nil {
		createdBy = identity.CredentialID
	}

	generated, err := h.service.CreateCredential(r.Context(), services.CreateCredentialInput{
		OwnerID:     req.OwnerID,
		Name:        req.Name,
		Permissions: req.Permissions,
		Env:         req.Env,
		ExpiresAt:   req.ExpiresAt,
		IPAllowlist: req.IPAllowlist,
		CreatedBy:   createdBy,
	})
	if err != nil {
		writeServiceError(w, err, "failed to create credential")
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, generated)
}

// Get GET /admin/credentials/{id}
func (h *CredentialHandler) Get(w http.ResponseWriter, r *http.Request) {
	cred, err := h.service.GetCredential(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err, "failed to load credential")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, cred)
}

// List GET /admin/credentials
func (h *CredentialHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parsePagination(r)
	if err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	creds, err := h.service.ListCredentials(r.Context(), limit, offset)
	if err != nil {
		writeServiceError(w, err, "failed to list credentials")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, ListCredentialsResponse{Credentials: creds, Count: len(creds)})
}

// Revoke DELETE /admin/credentials/{id}
func (h *CredentialHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	var revokedBy string
	if identity := auth.GetIdentity(r.Context()); identity != nil {
		revokedBy = identity.CredentialID
	}

	if err := h.service.RevokeCredential(r.Context(), chi.URLParam(r, "id"), revokedBy); err != nil {
		writeServiceError(w, err, "failed to revoke credential")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
