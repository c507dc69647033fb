package handlers

import (
	"context"
	"net/http"

	"github.com/rizonesoft/isotone-sub002/internal/models"
	pkghttp "github.com/rizonesoft/isotone-sub002/pkg/http"
)

// BruteForceChecker decides whether a login may proceed
type BruteForceChecker interface {
	CheckBruteForce(ctx context.Context, ip, username string) models.Decision
}

// AttemptRecorder stores the outcome of a login
type AttemptRecorder interface {
	RecordAttempt(ctx context.Context, ip, username string, success bool, userAgent string)
}

// ProtectionHandler serves the login protection hooks called by the login flow
type ProtectionHandler struct {
	checker  BruteForceChecker
	recorder AttemptRecorder
	ipConfig *pkghttp.IPConfig
}

// NewProtectionHandler creates a new ProtectionHandler
func NewProtectionHandler(checker BruteForceChecker, recorder AttemptRecorder, ipConfig *pkghttp.IPConfig) *ProtectionHandler {
	return &ProtectionHandler{checker: checker, recorder: recorder, ipConfig: ipConfig}
}

// CheckRequest is the body of a pre-login check. The client ip always comes
// from the connection, never from the body.
type CheckRequest struct {
	Username string `json:"username" validate:"omitempty,max=255"`
}

// RecordAttemptRequest is the body reporting a login outcome
type RecordAttemptRequest struct {
	Username  string `json:"username" validate:"omitempty,max=255"`
	Success   *bool  `json:"success" validate:"required"`
	UserAgent string `json:"user_agent" validate:"omitempty,max=1024"`
}

// Check evaluates a login before credentials are verified
//
// @Summary Pre-login brute force check
// @Accept json
// @Produce json
// @Success 200 {object} models.Decision
// @Failure 400 {object} pkghttp.ErrorResponse
// @Router /protection/login/check [post]
func (h *ProtectionHandler) Check(w http.ResponseWriter, r *http.Request) {
	var req CheckRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ip := pkghttp.ExtractClientIP(r, h.ipConfig)
	decision := h.checker.CheckBruteForce(r.Context(), ip, req.Username)

	pkghttp.WriteJSON(w, http.StatusOK, decision)
}

// RecordAttempt stores a login outcome
//
// @Summary Report a login outcome
// @Accept json
// @Success 204
// @Failure 400 {object} pkghttp.ErrorResponse
// @Router /protection/login/attempts [post]
func (h *ProtectionHandler) RecordAttempt(w http.ResponseWriter, r *http.Request) {
	var req RecordAttemptRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	userAgent := req.UserAgent
	if userAgent == "" {
		userAgent = r.UserAgent()
	}

	ip := pkghttp.ExtractClientIP(r, h.ipConfig)
	h.recorder.RecordAttempt(r.Context(), ip, req.Username, *req.Success, userAgent)

	w.WriteHeader(http.StatusNoContent)
}
