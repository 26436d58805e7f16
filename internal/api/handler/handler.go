// Package handler contains HTTP handlers grouped by resource.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/d9705996/granthub/internal/api/jsonapi"
	"github.com/d9705996/granthub/internal/api/middleware"
	"github.com/d9705996/granthub/internal/auth"
	"github.com/d9705996/granthub/internal/model"
	"gorm.io/gorm"
)

// decodeBody decodes a JSON request body into dst, rendering a 400 on
// failure. Returns false when the response has already been written.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		jsonapi.RenderError(w, http.StatusBadRequest,
			"invalid_body", "Bad Request", "request body must be valid JSON")
		return false
	}
	return true
}

// renderLookupError maps a load failure to 404 for missing rows and 500
// otherwise.
func renderLookupError(w http.ResponseWriter, err error, what string) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		jsonapi.RenderError(w, http.StatusNotFound,
			"not_found", "Not Found", what+" does not exist")
		return
	}
	jsonapi.RenderError(w, http.StatusInternalServerError,
		"internal_error", "Internal Server Error", "failed to load "+what)
}

// currentUser loads the authenticated user's row. Rendering is handled on
// failure; callers bail out when nil is returned.
func currentUser(w http.ResponseWriter, r *http.Request, db *gorm.DB) *model.User {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		jsonapi.RenderError(w, http.StatusUnauthorized,
			"missing_token", "Unauthorized", "authentication required")
		return nil
	}
	var u model.User
	if err := db.WithContext(r.Context()).First(&u, "id = ?", claims.UserID).Error; err != nil {
		jsonapi.RenderError(w, http.StatusUnauthorized,
			"user_not_found", "Unauthorized", "user account does not exist")
		return nil
	}
	return &u
}

// claimsOrg returns the organization ID claim, empty for administrators.
func claimsOrg(r *http.Request) string {
	if c := middleware.ClaimsFromContext(r.Context()); c != nil {
		return c.OrganizationID
	}
	return ""
}

// tokenClaims returns the parsed claims for the request.
func tokenClaims(r *http.Request) *auth.Claims {
	return middleware.ClaimsFromContext(r.Context())
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// pageParams reads page/page_size query parameters with defaults.
func pageParams(r *http.Request) (page, size int) {
	page, size = 1, defaultPageSize
	if v, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && v > 0 {
		page = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("page_size")); err == nil && v > 0 {
		size = min(v, maxPageSize)
	}
	return page, size
}

// paginate applies offset pagination to a GORM query.
func paginate(q *gorm.DB, page, size int) *gorm.DB {
	return q.Offset((page - 1) * size).Limit(size)
}
