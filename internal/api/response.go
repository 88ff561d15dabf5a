package api

import (
	"encoding/json"
	"net/http"
)

// writeJSON writes v with the given status. Encoding failures are not
// recoverable here: the header is already out, the body is best effort.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError wraps msg in the standard {"error": ...} envelope.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
