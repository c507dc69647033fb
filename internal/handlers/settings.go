package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rizonesoft/isotone-sub002/internal/models"
	"github.com/rizonesoft/isotone-sub002/internal/settings"
	pkghttp "github.com/rizonesoft/isotone-sub002/pkg/http"
)

// SettingsManager reads and updates the runtime protection settings
type SettingsManager interface {
	Current() settings.Settings
	Update(ctx context.Context, key, value string) (settings.Settings, error)
}

// SettingsHandler serves /admin/settings
type SettingsHandler struct {
	settings SettingsManager
}

// NewSettingsHandler creates a new SettingsHandler
func NewSettingsHandler(s SettingsManager) *SettingsHandler {
	return &SettingsHandler{settings: s}
}

// UpdateSettingRequest carries the new raw value; it is parsed by the setting's declared type
type UpdateSettingRequest struct {
	Value *string `json:"value" validate:"required"`
}

// List GET /admin/settings
func (h *SettingsHandler) List(w http.ResponseWriter, r *http.Request) {
	pkghttp.WriteJSON(w, http.StatusOK, h.settings.Current().Rows())
}

// Update PUT /admin/settings/{key}
func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if _, ok := models.SettingTypes[key]; !ok {
		pkghttp.WriteNotFound(w, "unknown setting")
		return
	}

	var req UpdateSettingRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	next, err := h.settings.Update(r.Context(), key, *req.Value)
	if err != nil {
		writeServiceError(w, err, "failed to update setting")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, next.Rows())
}
