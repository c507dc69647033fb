package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/rizonesoft/isotone-sub002/internal/models"
	pkghttp "github.com/rizonesoft/isotone-sub002/pkg/http"
)

const maxBodyBytes = 1 << 16

// decodeJSON reads a bounded JSON body into dst and validates it
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		pkghttp.WriteBadRequest(w, "invalid request body")
		return false
	}

	if err := ValidateRequest(dst); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return false
	}
	return true
}

// parsePagination reads limit and offset. Missing values are left to the service defaults.
func parsePagination(r *http.Request) (limit, offset int, err error) {
	if l := r.URL.Query().Get("limit"); l != "" {
		if limit, err = parseIntParam(l, 1, 100); err != nil {
			return 0, 0, errors.New("invalid limit parameter")
		}
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		if offset, err = parseIntParam(o, 0, 100000); err != nil {
			return 0, 0, errors.New("invalid offset parameter")
		}
	}
	return limit, offset, nil
}

func parseIntParam(value string, min, max int) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}
	if n < min || n > max {
		return 0, errors.New("parameter out of range")
	}
	return n, nil
}

// writeServiceError maps the service error taxonomy onto HTTP responses
func writeServiceError(w http.ResponseWriter, err error, internal string) {
	switch {
	case errors.Is(err, models.ErrBadRequest):
		pkghttp.WriteBadRequest(w, err.Error())
	case errors.Is(err, models.ErrNotFound):
		pkghttp.WriteNotFound(w, "not found")
	case errors.Is(err, models.ErrConflict):
		pkghttp.WriteConflict(w, "already exists")
	case errors.Is(err, models.ErrStoreUnavailable):
		pkghttp.WriteServiceUnavailable(w, "protection store unavailable")
	default:
		pkghttp.WriteInternalError(w, internal)
	}
}
