package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/rizonesoft/isotone-sub002/internal/auth"
	"github.com/rizonesoft/isotone-sub002/internal/models"
	pkghttp "github.com/rizonesoft/isotone-sub002/pkg/http"
)

// AccessListManager curates the allow and deny lists
type AccessListManager interface {
	AddToList(ctx context.Context, scope models.ListScope, subject string, listType models.ListType, reason, addedBy string) (*models.ListEntry, error)
	RemoveFromList(ctx context.Context, scope models.ListScope, subject string, listType models.ListType) error
	ListEntries(ctx context.Context, listType models.ListType, scope models.ListScope) ([]*models.ListEntry, error)
}

// LockoutManager exposes lockout administration
type LockoutManager interface {
	ClearLockout(ctx context.Context, ip, username string) (int64, error)
	GetActiveLockouts(ctx context.Context) ([]*models.Lockout, error)
	GetDeniedAttemptsLog(ctx context.Context, limit, offset int) ([]*models.LoginAttempt, error)
}

// AuthLogReader pages through credential authentication outcomes
type AuthLogReader interface {
	ListAuthLog(ctx context.Context, success *bool, limit, offset int) ([]*models.AuthLogEntry, error)
}

// AdminHandler serves the protection administration endpoints
type AdminHandler struct {
	lists    AccessListManager
	lockouts LockoutManager
	authLog  AuthLogReader
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(lists AccessListManager, lockouts LockoutManager, authLog AuthLogReader) *AdminHandler {
	return &AdminHandler{lists: lists, lockouts: lockouts, authLog: authLog}
}

// ListEntryRequest identifies or creates an access list entry
type ListEntryRequest struct {
	Scope    string `json:"scope" validate:"required,oneof=ip username"`
	Subject  string `json:"subject" validate:"required,max=255"`
	ListType string `json:"list_type" validate:"required,oneof=allow deny"`
	Reason   string `json:"reason" validate:"omitempty,max=1024"`
}

// ClearLockoutResponse reports how many lockouts were lifted
type ClearLockoutResponse struct {
	Cleared int64 `json:"cleared"`
}

// ListEntries GET /admin/lists?list_type=&scope=
func (h *AdminHandler) ListEntries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var listType models.ListType
	if v := q.Get("list_type"); v != "" {
		t, err := models.ParseListType(v)
		if err != nil {
			pkghttp.WriteBadRequest(w, "invalid list_type")
			return
		}
		listType = t
	}

	var scope models.ListScope
	if v := q.Get("scope"); v != "" {
		s, err := models.ParseListScope(v)
		if err != nil {
			pkghttp.WriteBadRequest(w, "invalid scope")
			return
		}
		scope = s
	}

	entries, err := h.lists.ListEntries(r.Context(), listType, scope)
	if err != nil {
		writeServiceError(w, err, "failed to list entries")
		return
	}
	if entries == nil {
		entries = []*models.ListEntry{}
	}

	pkghttp.WriteJSON(w, http.StatusOK, entries)
}

// AddToList POST /admin/lists
func (h *AdminHandler) AddToList(w http.ResponseWriter, r *http.Request) {
	var req ListEntryRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	var addedBy string
	if identity := auth.GetIdentity(r.Context()); identity != nil {
		addedBy = identity.Name
	}

	entry, err := h.lists.AddToList(r.Context(),
		models.ListScope(req.Scope), req.Subject, models.ListType(req.ListType), req.Reason, addedBy)
	if err != nil {
		writeServiceError(w, err, "failed to save entry")
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, entry)
}

// RemoveFromList DELETE /admin/lists?scope=&subject=&list_type=
func (h *AdminHandler) RemoveFromList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	scope, err := models.ParseListScope(q.Get("scope"))
	if err != nil {
		pkghttp.WriteBadRequest(w, "invalid scope")
		return
	}
	listType, err := models.ParseListType(q.Get("list_type"))
	if err != nil {
		pkghttp.WriteBadRequest(w, "invalid list_type")
		return
	}

	if err := h.lists.RemoveFromList(r.Context(), scope, q.Get("subject"), listType); err != nil {
		writeServiceError(w, err, "failed to remove entry")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ActiveLockouts GET /admin/lockouts
func (h *AdminHandler) ActiveLockouts(w http.ResponseWriter, r *http.Request) {
	lockouts, err := h.lockouts.GetActiveLockouts(r.Context())
	if err != nil {
		writeServiceError(w, err, "failed to list lockouts")
		return
	}
	if lockouts == nil {
		lockouts = []*models.Lockout{}
	}

	pkghttp.WriteJSON(w, http.StatusOK, lockouts)
}

// ClearLockout DELETE /admin/lockouts?ip=&username=
func (h *AdminHandler) ClearLockout(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	cleared, err := h.lockouts.ClearLockout(r.Context(), q.Get("ip"), q.Get("username"))
	if err != nil {
		writeServiceError(w, err, "failed to clear lockout")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, ClearLockoutResponse{Cleared: cleared})
}

// DeniedAttempts GET /admin/attempts/denied
func (h *AdminHandler) DeniedAttempts(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parsePagination(r)
	if err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	attempts, err := h.lockouts.GetDeniedAttemptsLog(r.Context(), limit, offset)
	if err != nil {
		writeServiceError(w, err, "failed to list attempts")
		return
	}
	if attempts == nil {
		attempts = []*models.LoginAttempt{}
	}

	pkghttp.WriteJSON(w, http.StatusOK, attempts)
}

// AuthLog GET /admin/auth-log?success=&limit=&offset=
func (h *AdminHandler) AuthLog(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parsePagination(r)
	if err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	var success *bool
	if v := r.URL.Query().Get("success"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			pkghttp.WriteBadRequest(w, "invalid success parameter")
			return
		}
		success = &b
	}

	entries, err := h.authLog.ListAuthLog(r.Context(), success, limit, offset)
	if err != nil {
		writeServiceError(w, err, "failed to list auth log")
		return
	}
	if entries == nil {
		entries = []*models.AuthLogEntry{}
	}

	pkghttp.WriteJSON(w, http.StatusOK, entries)
}
