// Package handler provides HTTP handlers for the API.
package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/capitalize-ai/shop-assistant/internal/middleware"
	"github.com/capitalize-ai/shop-assistant/pkg/apperr"
)

// maxBodyBytes caps request bodies; document ingestion is the largest.
const maxBodyBytes = 8 << 20

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}

// writeAppError maps a classified error to its HTTP status.
func writeAppError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	message := "internal error"

	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		status, message = http.StatusBadRequest, err.Error()
	case apperr.KindNotFound:
		status, message = http.StatusNotFound, err.Error()
	case apperr.KindConflict:
		status, message = http.StatusConflict, err.Error()
	case apperr.KindExternal:
		status, message = http.StatusBadGateway, "upstream service failed"
	}
	writeError(w, status, message)
}

// decodeAndValidate reads a JSON body into v and checks its struct tags.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := middleware.Validate(v); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

// queryInt parses a positive integer query parameter, clamped to max.
func queryInt(r *http.Request, key string, def, max int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}
