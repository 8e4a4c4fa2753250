package common

import (
	"net/http"
	"strconv"
)

// Pagination holds pagination metadata for list responses.
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	TotalItems int `json:"total_items"`
}

// ParsePagination extracts page and per-page parameters from query values.
// Both "per_page" and the legacy "limit" spelling are accepted.
func ParsePagination(r *http.Request, defaultPerPage int) (page, perPage int) {
	page = 1
	perPage = defaultPerPage
	if p, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && p > 0 {
		page = p
	}
	raw := r.URL.Query().Get("per_page")
	if raw == "" {
		raw = r.URL.Query().Get("limit")
	}
	if l, err := strconv.Atoi(raw); err == nil && l > 0 {
		perPage = l
	}
	return
}
