// Package handlers holds the HTTP handlers for the camvision control API.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
)

const (
	headerContentType = "Content-Type"
	mimeJSON          = "application/json"
)

// paginationParams holds parsed limit and offset values.
type paginationParams struct {
	Limit  int
	Offset int
}

const (
	defaultPaginationLimit = 25
	maxPaginationLimit     = 100
)

// Meta contains pagination metadata.
type Meta struct {
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// parsePaginationParams extracts and validates limit/offset from URL query params.
func parsePaginationParams(r *http.Request) paginationParams {
	limit := defaultPaginationLimit
	offset := 0

	if lim, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && lim > 0 {
		if lim > maxPaginationLimit {
			lim = maxPaginationLimit
		}
		limit = lim
	}

	if off, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && off >= 0 {
		offset = off
	}

	return paginationParams{Limit: limit, Offset: offset}
}

// decodeOptionalJSON decodes the body into v; an empty body leaves v untouched.
func decodeOptionalJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// coalesce returns val if non-empty, otherwise returns fallback.
func coalesce(val, fallback string) string {
	if val == "" {
		return fallback
	}
	return val
}

// coalesceInt returns val if positive, otherwise returns fallback.
func coalesceInt(val, fallback int) int {
	if val <= 0 {
		return fallback
	}
	return val
}

// writeJSON writes v as a JSON response with the given status.
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set(headerContentType, mimeJSON)
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set(headerContentType, mimeJSON)
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": message}); err != nil {
		http.Error(w, `{"error":"failed to encode error response"}`, http.StatusInternalServerError)
	}
}

// bound is an optional request field; zero selects the default.
type bound struct {
	name  string
	value int
	limit int
}

// outOfRange describes the first field outside [0, limit], or returns "".
func outOfRange(bounds ...bound) string {
	for _, b := range bounds {
		if b.value < 0 || b.value > b.limit {
			return fmt.Sprintf("%s must be between 0 and %d", b.name, b.limit)
		}
	}
	return ""
}

// checkProvider resolves name up front so a typo fails the request instead
// of every later dispatch. A nil router accepts any name.
func checkProvider(router ProviderRouter, name string) error {
	if router == nil {
		return nil
	}
	_, err := router.Route(name)
	return err
}
