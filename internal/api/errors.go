// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/orionhq/orion/internal/core"
)

type errorBody struct {
	Error string `json:"error"`
	Found *int   `json:"found,omitempty"` // capacity errors report the shortfall
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the core error taxonomy onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	body := errorBody{Error: err.Error()}
	code := http.StatusInternalServerError

	var tagged *core.Error
	if errors.As(err, &tagged) {
		switch tagged.Kind {
		case core.KindNotFound:
			code = http.StatusNotFound
		case core.KindPermissionDenied:
			code = http.StatusForbidden
		case core.KindNotActive:
			code = http.StatusBadRequest
		case core.KindInsufficientCapacity:
			code = http.StatusServiceUnavailable
			found := tagged.Found
			body.Found = &found
		case core.KindConflict:
			code = http.StatusConflict
		default:
			// internal and decryption failures carry no detail outward
			body.Error = "internal error"
		}
	} else {
		body.Error = "internal error"
	}
	writeJSON(w, code, body)
}

// writeBadRequest rejects malformed input before it reaches the core.
func writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg})
}

// writeUnauthorized signals a missing or invalid token.
func writeUnauthorized(w http.ResponseWriter) {
	writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
}
